package ui

import (
	tea "github.com/charmbracelet/bubbletea"

	"github.com/desertthunder/vidx/internal/models"
	"github.com/desertthunder/vidx/internal/tasks"
)

// MsgKind enumerates all message types in the application.
type MsgKind int

// Msg represents all possible messages in the TUI (Elm-style message union).
type Msg struct {
	kind MsgKind
	data any
}

var (
	_ tea.Msg = Msg{}
)

const (
	MsgVideosFetched MsgKind = iota
	MsgVideoFetched
	MsgTracked
	MsgProgressUpdate
	MsgProgressClosed
)

type videosFetched struct {
	list *models.VideoList
	err  error
}

type videoFetched struct {
	video *models.Video
	err   error
}

type tracked struct {
	localID string
	err     error
}

// videosFetchedMsg is the constructor for [MsgVideosFetched]
func videosFetchedMsg(list *models.VideoList, err error) Msg {
	return Msg{kind: MsgVideosFetched, data: videosFetched{list, err}}
}

// videoFetchedMsg is the constructor for [MsgVideoFetched]
func videoFetchedMsg(video *models.Video, err error) Msg {
	return Msg{kind: MsgVideoFetched, data: videoFetched{video, err}}
}

// trackedMsg is the constructor for [MsgTracked]
func trackedMsg(localID string, err error) Msg {
	return Msg{kind: MsgTracked, data: tracked{localID, err}}
}

// progressUpdateMsg is the constructor for [MsgProgressUpdate]
func progressUpdateMsg(update tasks.ProgressUpdate) Msg {
	return Msg{kind: MsgProgressUpdate, data: update}
}

func progressClosedMsg() Msg {
	return Msg{kind: MsgProgressClosed}
}
