package ui

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/list"

	"github.com/desertthunder/vidx/internal/models"
	"github.com/desertthunder/vidx/internal/shared"
)

var (
	_ list.Item = videoItem{}
	_ list.Item = uploadItem{}
)

// videoItem wraps [models.Video] to implement [list.Item].
type videoItem struct {
	video models.Video
}

func (i videoItem) FilterValue() string { return i.video.Title }
func (i videoItem) Title() string       { return i.video.Title }
func (i videoItem) Description() string {
	parts := []string{string(i.video.Status)}
	switch i.video.Status {
	case models.StatusProcessing:
		parts[0] = fmt.Sprintf("processing %d%%", i.video.ProcessProgress)
	case models.StatusCompleted:
		if i.video.SensitivityFlag != "" {
			parts = append(parts, string(i.video.SensitivityFlag))
		}
	}
	if i.video.Duration > 0 {
		parts = append(parts, shared.FormatDuration(i.video.Duration))
	}
	if i.video.Size > 0 {
		parts = append(parts, shared.FormatBytes(i.video.Size))
	}
	return strings.Join(parts, " • ")
}

// uploadItem wraps [models.UploadJob] to implement [list.Item].
type uploadItem struct {
	job models.UploadJob
}

func (i uploadItem) FilterValue() string { return i.job.Title }
func (i uploadItem) Title() string {
	if i.job.JobID.Assigned() {
		return fmt.Sprintf("%s (%s)", i.job.Title, i.job.JobID)
	}
	return i.job.Title
}

func (i uploadItem) Description() string {
	return styles.job(i.job).Render(fmt.Sprintf("%s %3d%% %s", bar(jobPercent(i.job), 20), jobPercent(i.job), i.job.Status()))
}

// jobPercent is the progress of whichever half of the lifecycle is current.
func jobPercent(j models.UploadJob) int {
	switch {
	case j.Transfer.Phase != models.Transferred:
		return j.Transfer.Percent
	case j.Processing.Phase == models.ProcessingCompleted:
		return 100
	default:
		return j.Processing.Percent
	}
}
