package ui

import (
	"context"
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/help"
	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/list"
	tea "github.com/charmbracelet/bubbletea"

	"github.com/desertthunder/vidx/internal/models"
	"github.com/desertthunder/vidx/internal/realtime"
	"github.com/desertthunder/vidx/internal/shared"
	"github.com/desertthunder/vidx/internal/tasks"
)

// ViewState represents the current view in the TUI.
type ViewState int

const (
	VideoListView ViewState = iota
	VideoDetailView
	UploadsView
)

// VideoAPI is the part of the dashboard API the TUI browses.
type VideoAPI interface {
	ListVideos(ctx context.Context, filter models.VideoFilter) (*models.VideoList, error)
	GetVideo(ctx context.Context, id models.JobID) (*models.Video, error)
}

// Uploads is the upload engine as seen by the TUI.
type Uploads interface {
	Jobs() []models.UploadJob
	Track(ctx context.Context, id models.JobID) (*tasks.Controller, error)
	Dismiss(localID string) bool
}

// ChannelSource reports the realtime connection state for the status line.
type ChannelSource interface {
	Status() realtime.Status
}

// Options configure a [Model].
type Options struct {
	// Progress receives updates from the upload engine. It is never closed by the TUI.
	Progress <-chan tasks.ProgressUpdate
	Channel  ChannelSource
	PageSize int
}

// Model represents the TUI application state.
type Model struct {
	ctx          context.Context
	view         ViewState
	api          VideoAPI
	uploads      Uploads
	channel      ChannelSource
	progressChan <-chan tasks.ProgressUpdate
	pageSize     int
	width        int
	height       int
	videoList    list.Model
	page         models.Pagination
	selected     *models.Video
	uploadList   list.Model
	lastUpdate   *tasks.ProgressUpdate
	err          error
	help         help.Model
	keys         keyMap
}

// NewModel creates a new TUI model with the provided dependencies.
func NewModel(ctx context.Context, api VideoAPI, uploads Uploads, opts Options) *Model {
	if opts.PageSize <= 0 {
		opts.PageSize = 20
	}

	videos := list.New(nil, list.NewDefaultDelegate(), 0, 0)
	videos.Title = "Videos"
	uploadsList := list.New(nil, list.NewDefaultDelegate(), 0, 0)
	uploadsList.Title = "Uploads"
	uploadsList.SetFilteringEnabled(false)

	return &Model{
		ctx:          ctx,
		view:         VideoListView,
		api:          api,
		uploads:      uploads,
		channel:      opts.Channel,
		progressChan: opts.Progress,
		pageSize:     opts.PageSize,
		page:         models.Pagination{CurrentPage: 1},
		videoList:    videos,
		uploadList:   uploadsList,
		help:         help.New(),
		keys:         newKeyMap(),
	}
}

// Init fetches the first page of videos and starts listening for upload progress.
func (m *Model) Init() tea.Cmd {
	m.refreshUploads()
	return tea.Batch(m.fetchVideos(1), m.waitForProgress())
}

// Update handles incoming messages and updates the model state.
func (m *Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.videoList.SetSize(msg.Width-4, msg.Height-8)
		m.uploadList.SetSize(msg.Width-4, msg.Height-8)
		return m, nil

	case tea.KeyMsg:
		if m.filtering() {
			return m.updateLists(msg)
		}
		if key.Matches(msg, m.keys.quit) {
			return m, tea.Quit
		}
		if key.Matches(msg, m.keys.tab) {
			m.err = nil
			if m.view == UploadsView {
				m.view = VideoListView
			} else {
				m.refreshUploads()
				m.view = UploadsView
			}
			return m, nil
		}

		switch m.view {
		case VideoListView:
			return m.handleVideoListKeys(msg)
		case VideoDetailView:
			return m.handleDetailKeys(msg)
		case UploadsView:
			return m.handleUploadsKeys(msg)
		}

	case Msg:
		return m.handleMsg(msg)
	}

	return m.updateLists(msg)
}

func (m *Model) handleMsg(msg Msg) (tea.Model, tea.Cmd) {
	switch msg.kind {
	case MsgVideosFetched:
		data := msg.data.(videosFetched)
		if data.err != nil {
			m.err = data.err
			return m, nil
		}
		m.err = nil
		m.page = data.list.Pagination
		items := make([]list.Item, len(data.list.Videos))
		for i, v := range data.list.Videos {
			items[i] = videoItem{video: v}
		}
		m.videoList.Title = fmt.Sprintf("Videos (page %d of %d)", max(m.page.CurrentPage, 1), max(m.page.TotalPages, 1))
		return m, m.videoList.SetItems(items)

	case MsgVideoFetched:
		data := msg.data.(videoFetched)
		if data.err != nil {
			m.err = data.err
			return m, nil
		}
		m.err = nil
		m.selected = data.video
		m.view = VideoDetailView
		return m, nil

	case MsgTracked:
		data := msg.data.(tracked)
		if data.err != nil {
			m.err = data.err
			return m, nil
		}
		m.err = nil
		m.refreshUploads()
		m.view = UploadsView
		return m, nil

	case MsgProgressUpdate:
		update := msg.data.(tasks.ProgressUpdate)
		m.lastUpdate = &update
		m.refreshUploads()
		return m, m.waitForProgress()

	case MsgProgressClosed:
		m.progressChan = nil
		return m, nil
	}
	return m, nil
}

// View renders the UI based on the current view state.
func (m *Model) View() string {
	var body string
	switch m.view {
	case VideoListView:
		body = m.renderVideoList()
	case VideoDetailView:
		body = m.renderDetail()
	case UploadsView:
		body = m.renderUploads()
	}

	if m.err != nil {
		body = fmt.Sprintf("%s\n%s", body, styles.err.Render(fmt.Sprintf("Error: %v", m.err)))
	}
	return fmt.Sprintf("%s\n%s", body, m.statusLine())
}

func (m *Model) filtering() bool {
	return m.view == VideoListView && m.videoList.FilterState() == list.Filtering
}

func (m *Model) handleVideoListKeys(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch {
	case key.Matches(msg, m.keys.enter):
		if item, ok := m.videoList.SelectedItem().(videoItem); ok {
			return m, m.fetchVideo(item.video.ID)
		}
		return m, nil
	case key.Matches(msg, m.keys.track):
		if item, ok := m.videoList.SelectedItem().(videoItem); ok {
			return m, m.track(item.video.ID)
		}
		return m, nil
	case key.Matches(msg, m.keys.refresh):
		return m, m.fetchVideos(max(m.page.CurrentPage, 1))
	case key.Matches(msg, m.keys.next):
		if m.page.HasNext() {
			return m, m.fetchVideos(m.page.CurrentPage + 1)
		}
		return m, nil
	case key.Matches(msg, m.keys.prev):
		if m.page.CurrentPage > 1 {
			return m, m.fetchVideos(m.page.CurrentPage - 1)
		}
		return m, nil
	}

	var cmd tea.Cmd
	m.videoList, cmd = m.videoList.Update(msg)
	return m, cmd
}

func (m *Model) handleDetailKeys(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch {
	case key.Matches(msg, m.keys.back):
		m.view = VideoListView
		m.selected = nil
	case key.Matches(msg, m.keys.track):
		if m.selected != nil {
			return m, m.track(m.selected.ID)
		}
	case key.Matches(msg, m.keys.refresh):
		if m.selected != nil {
			return m, m.fetchVideo(m.selected.ID)
		}
	}
	return m, nil
}

func (m *Model) handleUploadsKeys(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch {
	case key.Matches(msg, m.keys.back):
		m.view = VideoListView
		return m, nil
	case key.Matches(msg, m.keys.dismiss):
		if item, ok := m.uploadList.SelectedItem().(uploadItem); ok && m.uploads != nil {
			m.uploads.Dismiss(item.job.LocalID)
			m.refreshUploads()
		}
		return m, nil
	case key.Matches(msg, m.keys.refresh):
		m.refreshUploads()
		return m, nil
	}

	var cmd tea.Cmd
	m.uploadList, cmd = m.uploadList.Update(msg)
	return m, cmd
}

func (m *Model) updateLists(msg tea.Msg) (tea.Model, tea.Cmd) {
	var cmd tea.Cmd
	switch m.view {
	case VideoListView:
		m.videoList, cmd = m.videoList.Update(msg)
	case UploadsView:
		m.uploadList, cmd = m.uploadList.Update(msg)
	}
	return m, cmd
}

func (m *Model) refreshUploads() {
	if m.uploads == nil {
		return
	}
	jobs := m.uploads.Jobs()
	items := make([]list.Item, len(jobs))
	for i, job := range jobs {
		items[i] = uploadItem{job: job}
	}
	m.uploadList.SetItems(items)
}

func (m *Model) fetchVideos(page int) tea.Cmd {
	return func() tea.Msg {
		videos, err := m.api.ListVideos(m.ctx, models.VideoFilter{Page: page, Limit: m.pageSize})
		return videosFetchedMsg(videos, err)
	}
}

func (m *Model) fetchVideo(id models.JobID) tea.Cmd {
	return func() tea.Msg {
		video, err := m.api.GetVideo(m.ctx, id)
		return videoFetchedMsg(video, err)
	}
}

func (m *Model) track(id models.JobID) tea.Cmd {
	if m.uploads == nil {
		return nil
	}
	return func() tea.Msg {
		c, err := m.uploads.Track(m.ctx, id)
		if err != nil {
			return trackedMsg("", err)
		}
		return trackedMsg(c.ID(), nil)
	}
}

func (m *Model) waitForProgress() tea.Cmd {
	ch := m.progressChan
	if ch == nil {
		return nil
	}
	return func() tea.Msg {
		select {
		case update, ok := <-ch:
			if !ok {
				return progressClosedMsg()
			}
			return progressUpdateMsg(update)
		case <-m.ctx.Done():
			return progressClosedMsg()
		}
	}
}

func (m *Model) renderVideoList() string {
	helpKeys := []key.Binding{m.keys.enter, m.keys.track, m.keys.prev, m.keys.next, m.keys.refresh, m.keys.tab, m.keys.quit}
	return fmt.Sprintf("%s\n\n%s", m.videoList.View(), m.help.ShortHelpView(helpKeys))
}

func (m *Model) renderDetail() string {
	v := m.selected
	if v == nil {
		return ""
	}

	var b strings.Builder
	b.WriteString(styles.title.Render(v.Title))
	b.WriteString("\n")
	fmt.Fprintf(&b, "ID:          %s\n", v.ID)
	fmt.Fprintf(&b, "Status:      %s\n", v.Status)
	if v.Status == models.StatusProcessing {
		fmt.Fprintf(&b, "Progress:    %s %d%%\n", bar(v.ProcessProgress, 30), v.ProcessProgress)
	}
	if v.Status == models.StatusFailed && v.ErrorMessage != "" {
		fmt.Fprintf(&b, "Error:       %s\n", styles.err.Render(v.ErrorMessage))
	}
	if v.SensitivityFlag != "" {
		flag := string(v.SensitivityFlag)
		if v.SensitivityFlag == models.FlagFlagged {
			flag = styles.warn.Render(flag)
		}
		fmt.Fprintf(&b, "Sensitivity: %s\n", flag)
	}
	if v.Duration > 0 {
		fmt.Fprintf(&b, "Duration:    %s\n", shared.FormatDuration(v.Duration))
	}
	if v.Size > 0 {
		fmt.Fprintf(&b, "Size:        %s\n", shared.FormatBytes(v.Size))
	}
	if v.Metadata.Resolution != "" {
		fmt.Fprintf(&b, "Resolution:  %s %s\n", v.Metadata.Resolution, v.Metadata.Codec)
	}
	if v.Description != "" {
		fmt.Fprintf(&b, "\n%s\n", v.Description)
	}

	helpKeys := []key.Binding{m.keys.track, m.keys.refresh, m.keys.back, m.keys.quit}
	return fmt.Sprintf("%s\n%s", b.String(), m.help.ShortHelpView(helpKeys))
}

func (m *Model) renderUploads() string {
	var last string
	if m.lastUpdate != nil {
		last = styles.help.Render(m.lastUpdate.Message)
	}

	if len(m.uploadList.Items()) == 0 {
		empty := styles.help.Render("No uploads yet. Start one with `vidx upload <file>` or press t on a video to follow it.")
		return fmt.Sprintf("%s\n\n%s\n\n%s", styles.title.Render("Uploads"), empty, m.help.ShortHelpView([]key.Binding{m.keys.tab, m.keys.quit}))
	}

	helpKeys := []key.Binding{m.keys.dismiss, m.keys.refresh, m.keys.back, m.keys.quit}
	return fmt.Sprintf("%s\n%s\n\n%s", m.uploadList.View(), last, m.help.ShortHelpView(helpKeys))
}

func (m *Model) statusLine() string {
	if m.channel == nil {
		return ""
	}
	st := m.channel.Status()
	switch st.State {
	case realtime.Connected:
		return styles.ok.Render("● live")
	case realtime.Connecting:
		return styles.warn.Render(fmt.Sprintf("○ reconnecting (attempt %d)", st.Attempt))
	default:
		if !st.Bound {
			return styles.help.Render("○ offline")
		}
		return styles.err.Render("○ disconnected, polling for updates")
	}
}
