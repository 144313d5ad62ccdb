// Package realtime maintains the authenticated push channel to the dashboard and multiplexes
// per-job interest over it.
//
// # Channel
//
// [Channel] owns at most one websocket. Binding a credential with [Channel.SetCredential]
// starts a connection goroutine that dials, reads frames in order and dispatches them by event
// name; binding a different credential (or none) closes the old socket and waits until
// Disconnected has been observed before anything new is dialed. Transport drops reconnect with
// exponential backoff up to the configured attempt budget, after which the channel stays
// Disconnected until a credential is bound again.
//
// State listeners and event handlers run on the connection goroutine. On every transition into
// Connected listeners receive the live [Emitter] for that connection instance.
//
// # Registry
//
// [Registry] is the interest set. It replays every subscription on each Connected transition,
// sends subscribe and unsubscribe frames at most once per connection instance, and routes
// inbound job events to the handlers registered with [Registry.Watch]. Events for jobs nobody
// watches are dropped.
//
// # Wire Format
//
// Frames are JSON envelopes {"event": name, "data": payload}. The client emits
// "subscribe-video" and "unsubscribe-video" with the job id as data; the server emits
// "video-processing-progress" {videoId, progress}, "video-processing-complete" {videoId} and
// "video-processing-error" {videoId, error}.
package realtime
