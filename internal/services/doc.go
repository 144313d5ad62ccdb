// Package services implements the dashboard REST client.
//
// # Client
//
// [Client] exposes one method per server capability (see [Service]). Requests carry the
// credential returned by the bound [Credentials] as an RFC 6750 bearer header, except
// [Client.Login] and [Client.Register] which are anonymous. Responses are unwrapped from the
// {"success", "data"} envelope before decoding.
//
// # Uploads
//
// [Client.UploadVideo] streams a multipart body (fields "title" and "video") with an exact
// Content-Length and reports whole-percent progress. Reports are non-decreasing, start at 0
// and only reach 100 once the server has acknowledged the upload with a video id.
//
// # Error Handling
//
// Every non-2xx response and transport failure becomes an [*APIError] whose Kind unwraps to a
// shared sentinel:
//   - [shared.ErrAuth] : 401, the used credential is passed to [Credentials.Invalidate]
//   - [shared.ErrNotFound] : 404
//   - [shared.ErrValidation] : 400, 409, 413, 422 and client-side checks that never reach the network
//   - [shared.ErrServer] : 5xx and undecodable success bodies
//   - [shared.ErrTransport] : connection failures
//
// The message is the server's "error" field, else "message", else a generic fallback.
package services
