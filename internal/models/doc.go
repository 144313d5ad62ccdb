// Package models defines the entities shared by the vidx client packages.
//
// The package contains three categories of types:
//
// 1. Server records decoded from the dashboard REST API
//   - [Identity] : the authenticated user and their [Role]
//   - [Video] : an uploaded video with its processing status and sensitivity flag
//   - [Stats], [Frame], [Pagination] : dashboard aggregates, extracted frames and list paging
//
// 2. Client-side lifecycle state
//   - [JobID] : correlation key shared by REST responses and realtime payloads
//   - [TransferState], [ProcessingState] : the two halves of an upload's state machine
//   - [UploadJob] : a snapshot of one upload
//   - [JobEvent] : a decoded realtime notification for one job
//
// 3. Persistent entities
//   - [Credential] : the single stored bearer token and the identity it last resolved to
//
// [Credential] implements [Model]; the credential repository implements [Repository].
package models
