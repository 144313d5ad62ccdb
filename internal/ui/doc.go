// Package ui implements an interactive terminal interface using bubbletea's Elm architecture.
//
// The TUI has three views:
//  1. [VideoListView] : Browse the paginated video library, filter by title
//  2. [VideoDetailView] : Status, sensitivity, metadata and processing progress of one video
//  3. [UploadsView] : Monitor live uploads from transfer through processing
//
// The (view) [Model] implements bubbletea/Elm's standard Init/Update/View pattern, receiving messages via the Msg union type.
// Progress updates flow through a channel from the UploadEngine, so rendering never blocks the realtime channel.
// A status line shows whether realtime updates are live or the engine is falling back to polling.
//
// Keyboard navigation uses vim-style bindings (j/k, enter, esc, tab, t, x, q) with contextual help displayed via charmbracelet/bubbles/help.
package ui
