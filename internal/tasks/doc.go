// Package tasks drives uploads from file selection to a terminal processing outcome with
// real-time progress reporting.
//
// # Lifecycle
//
// A [Controller] owns one upload:
//
//  1. [Controller.Start] validates the file (video MIME type allow-list, size ceiling, title)
//     and returns a validation error without touching the network when any check fails.
//  2. The transfer runs in the background. Progress comes only from the upload callback.
//     A failed transfer is terminal and never subscribes.
//  3. Once the server returns a job id the controller watches and subscribes through the
//     realtime registry, then folds processing events into its state. Progress is
//     last-write-wins; duplicate terminal events are ignored.
//  4. On Completed or Failed the controller disposes its watcher, unsubscribes and signals
//     the outcome exactly once.
//
// [Controller.Dismiss] abandons a job at any point. An in-flight request is not cancelled;
// its result is discarded.
//
// # Reconciliation
//
// Realtime delivery is best effort. [UploadEngine] owns every live controller and, on each
// channel reconnect and every poll interval, fetches the authoritative status of non-terminal
// jobs over REST and applies it through the same transition path. Requests are rate limited.
//
// # Progress Reporting
//
// Controllers send a [ProgressUpdate] after every observable transition. Updates use select
// with default so a slow consumer never blocks a transition.
package tasks
