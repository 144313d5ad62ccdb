package main

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/urfave/cli/v3"

	"github.com/desertthunder/vidx/internal/formatter"
	"github.com/desertthunder/vidx/internal/models"
	"github.com/desertthunder/vidx/internal/shared"
	"github.com/desertthunder/vidx/internal/tasks"
)

func videoID(cmd *cli.Command) (models.JobID, error) {
	id := models.JobID(strings.TrimSpace(cmd.StringArg("id")))
	if !id.Assigned() {
		return "", fmt.Errorf("%w: video id", shared.ErrMissingArgument)
	}
	return id, nil
}

func videoFilter(cmd *cli.Command) (models.VideoFilter, error) {
	filter := models.VideoFilter{
		Page:            cmd.Int("page"),
		Limit:           cmd.Int("limit"),
		Status:          models.VideoStatus(cmd.String("status")),
		SensitivityFlag: models.SensitivityFlag(cmd.String("flag")),
		Search:          cmd.String("search"),
	}

	switch filter.Status {
	case "", models.StatusPending, models.StatusProcessing, models.StatusCompleted, models.StatusFailed:
	default:
		return filter, fmt.Errorf("%w: unknown status %q", shared.ErrInvalidFlag, filter.Status)
	}
	switch filter.SensitivityFlag {
	case "", models.FlagSafe, models.FlagFlagged, models.FlagUnknown:
	default:
		return filter, fmt.Errorf("%w: unknown sensitivity flag %q", shared.ErrInvalidFlag, filter.SensitivityFlag)
	}
	return filter, nil
}

// VideosList prints one page of the library.
func (r *Runner) VideosList(ctx context.Context, cmd *cli.Command) error {
	filter, err := videoFilter(cmd)
	if err != nil {
		return err
	}
	if _, err := r.authenticated(ctx); err != nil {
		return err
	}

	list, err := r.api.ListVideos(ctx, filter)
	if err != nil {
		return fmt.Errorf("failed to list videos: %w", err)
	}

	if cmd.Bool("json") {
		return r.writeJSON(list, cmd.Bool("pretty"))
	}

	if len(list.Videos) == 0 {
		return r.writePlain("No videos found\n")
	}

	data, err := formatter.ExportToText(formatter.NewVideoExport(list, nil))
	if err != nil {
		return err
	}
	r.writePlain("%s", data)
	return r.writePlainln("Page %d of %d", list.Pagination.CurrentPage, max(list.Pagination.TotalPages, 1))
}

// VideosGet prints the details of one video.
func (r *Runner) VideosGet(ctx context.Context, cmd *cli.Command) error {
	id, err := videoID(cmd)
	if err != nil {
		return err
	}
	if _, err := r.authenticated(ctx); err != nil {
		return err
	}

	video, err := r.api.GetVideo(ctx, id)
	if err != nil {
		return fmt.Errorf("failed to get video: %w", err)
	}

	if cmd.Bool("json") {
		return r.writeJSON(video, cmd.Bool("pretty"))
	}
	return r.printVideo(video)
}

// VideosUpdate edits the title and/or description.
func (r *Runner) VideosUpdate(ctx context.Context, cmd *cli.Command) error {
	id, err := videoID(cmd)
	if err != nil {
		return err
	}

	var update models.VideoUpdate
	if cmd.IsSet("title") {
		title := strings.TrimSpace(cmd.String("title"))
		if title == "" {
			return fmt.Errorf("%w: title must not be empty", shared.ErrInvalidFlag)
		}
		update.Title = &title
	}
	if cmd.IsSet("description") {
		description := cmd.String("description")
		update.Description = &description
	}
	if update.Title == nil && update.Description == nil {
		return fmt.Errorf("%w: --title or --description", shared.ErrMissingArgument)
	}

	if _, err := r.authenticated(ctx); err != nil {
		return err
	}

	video, err := r.api.UpdateVideo(ctx, id, update)
	if err != nil {
		return fmt.Errorf("failed to update video: %w", err)
	}

	r.writePlain("✓ Video updated\n")
	return r.printVideo(video)
}

// VideosDelete deletes a video after confirmation.
func (r *Runner) VideosDelete(ctx context.Context, cmd *cli.Command) error {
	id, err := videoID(cmd)
	if err != nil {
		return err
	}
	if _, err := r.authenticated(ctx); err != nil {
		return err
	}

	if !cmd.Bool("yes") {
		answer, err := r.prompt(fmt.Sprintf("Delete video %s? [y/N]", id))
		if err != nil {
			return err
		}
		if !strings.EqualFold(answer, "y") && !strings.EqualFold(answer, "yes") {
			return r.writePlain("Cancelled\n")
		}
	}

	if err := r.api.DeleteVideo(ctx, id); err != nil {
		return fmt.Errorf("failed to delete video: %w", err)
	}
	return r.writePlain("✓ Deleted %s\n", id)
}

// VideosStats prints the library summary.
func (r *Runner) VideosStats(ctx context.Context, cmd *cli.Command) error {
	if _, err := r.authenticated(ctx); err != nil {
		return err
	}

	stats, err := r.api.Stats(ctx)
	if err != nil {
		return fmt.Errorf("failed to load stats: %w", err)
	}

	if cmd.Bool("json") {
		return r.writeJSON(stats, cmd.Bool("pretty"))
	}

	r.writePlainHeader("Library")
	r.writePlain("Total:      %d\n", stats.TotalVideos)
	r.writePlain("Pending:    %d\n", stats.Pending)
	r.writePlain("Processing: %d\n", stats.Processing)
	r.writePlain("Completed:  %d\n", stats.Completed)
	r.writePlain("Failed:     %d\n", stats.Failed)
	r.writePlain("Safe:       %d\n", stats.Safe)
	r.writePlain("Flagged:    %d\n", stats.Flagged)
	return r.writePlain("Storage:    %s\n", shared.FormatBytes(stats.TotalSize))
}

// VideosFrames lists the extracted frames, or saves them with --output.
func (r *Runner) VideosFrames(ctx context.Context, cmd *cli.Command) error {
	id, err := videoID(cmd)
	if err != nil {
		return err
	}
	if _, err := r.authenticated(ctx); err != nil {
		return err
	}

	frames, err := r.api.Frames(ctx, id)
	if err != nil {
		return fmt.Errorf("failed to load frames: %w", err)
	}

	if cmd.IsSet("output") {
		video, err := r.api.GetVideo(ctx, id)
		if err != nil {
			return fmt.Errorf("failed to get video: %w", err)
		}
		result, err := formatter.WriteFramesExport(video, frames, cmd.String("output"))
		if err != nil {
			return err
		}
		return r.writePlain("✓ Saved %d files to %s\n", len(result.Files), result.Directory)
	}

	if cmd.Bool("json") {
		return r.writeJSON(frames, cmd.Bool("pretty"))
	}

	if len(frames) == 0 {
		return r.writePlain("No frames extracted\n")
	}
	for i, f := range frames {
		label := f.Classification
		if label == "" {
			label = "unclassified"
		}
		r.writePlain("%d. %s %s\n", i+1, shared.FormatDuration(f.Timestamp), label)
	}
	return nil
}

// VideosStream prints the stream locator, which embeds the current credential.
func (r *Runner) VideosStream(ctx context.Context, cmd *cli.Command) error {
	id, err := videoID(cmd)
	if err != nil {
		return err
	}
	if _, err := r.authenticated(ctx); err != nil {
		return err
	}

	loc, err := r.api.StreamLocator(id)
	if err != nil {
		return fmt.Errorf("failed to build stream url: %w", err)
	}
	if loc.Expired(time.Now()) {
		return fmt.Errorf("%w: sign in again to stream", shared.ErrTokenExpired)
	}
	if !loc.ExpiresAt.IsZero() {
		r.logger.Info("stream url expires", "at", loc.ExpiresAt.Local().Format(time.RFC1123))
	}

	if cmd.Bool("open") {
		if err := shared.OpenStream(loc.URL); err != nil {
			r.logger.Warn("could not open stream", "error", err)
		}
	}
	return r.writePlain("%s\n", loc.URL)
}

// VideosWatch follows an existing job until it reaches a terminal state.
func (r *Runner) VideosWatch(ctx context.Context, cmd *cli.Command) error {
	id, err := videoID(cmd)
	if err != nil {
		return err
	}

	engine, err := r.Realtime(ctx)
	if err != nil {
		return err
	}

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	r.runEngine(runCtx, engine)

	c, err := engine.Track(ctx, id)
	if err != nil {
		return fmt.Errorf("failed to follow video: %w", err)
	}
	return r.follow(ctx, c, cmd.Duration("timeout"))
}

// VideosExport writes a page of the library via the formatter package.
func (r *Runner) VideosExport(ctx context.Context, cmd *cli.Command) error {
	filter, err := videoFilter(cmd)
	if err != nil {
		return err
	}
	format := strings.ToLower(cmd.String("format"))
	switch format {
	case "csv", "markdown", "md", "text", "txt":
	default:
		return fmt.Errorf("%w: format must be csv, markdown or text", shared.ErrInvalidFlag)
	}

	if _, err := r.authenticated(ctx); err != nil {
		return err
	}

	list, err := r.api.ListVideos(ctx, filter)
	if err != nil {
		return fmt.Errorf("failed to list videos: %w", err)
	}

	var stats *models.Stats
	if cmd.Bool("stats") {
		if stats, err = r.api.Stats(ctx); err != nil {
			r.logger.Warn("exporting without stats", "error", err)
			stats = nil
		}
	}

	export := formatter.NewVideoExport(list, stats)
	output := cmd.String("output")

	switch format {
	case "csv":
		result, err := formatter.WriteCSVExport(export, output)
		if err != nil {
			return err
		}
		return r.writePlain("✓ Exported %d videos to %s and %s\n", len(export.Videos), result.VideosFile, result.MetadataFile)
	case "markdown", "md":
		result, err := formatter.WriteMarkdownExport(export, output)
		if err != nil {
			return err
		}
		return r.writePlain("✓ Exported %d videos to %s\n", len(export.Videos), result.Directory)
	default:
		path, err := formatter.WriteTextExport(export, output)
		if err != nil {
			return err
		}
		return r.writePlain("✓ Exported %d videos to %s\n", len(export.Videos), path)
	}
}

// follow prints progress for c until it is terminal, the timeout passes or ctx is done.
//
// The timeout only bounds how long the command waits; the job keeps its state.
func (r *Runner) follow(ctx context.Context, c *tasks.Controller, timeout time.Duration) error {
	waitCtx := ctx
	if timeout > 0 {
		var cancel context.CancelFunc
		waitCtx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	last := ""
	show := func(u tasks.ProgressUpdate) {
		if u.Job.LocalID != c.ID() || u.Message == last {
			return
		}
		last = u.Message
		r.writePlain("%s\n", u.Message)
	}

	for {
		select {
		case u := <-r.updates:
			show(u)
		case <-c.Done():
			r.drain(show)
			return r.outcome(c.Snapshot())
		case <-waitCtx.Done():
			job := c.Snapshot()
			if ctx.Err() != nil {
				return ctx.Err()
			}
			r.writePlain("Stopped waiting; %s is still %s\n", job.Title, job.Status())
			if job.JobID.Assigned() {
				r.writePlain("Resume with: vidx videos watch %s\n", job.JobID)
			}
			return fmt.Errorf("timed out after %s: %w", timeout, context.DeadlineExceeded)
		}
	}
}

// drain hands every buffered update to fn without blocking.
func (r *Runner) drain(fn func(tasks.ProgressUpdate)) {
	for {
		select {
		case u := <-r.updates:
			fn(u)
		default:
			return
		}
	}
}

func (r *Runner) outcome(job models.UploadJob) error {
	switch {
	case job.Transfer.Phase == models.TransferFailed:
		return fmt.Errorf("upload failed: %s", job.Transfer.Reason)
	case job.Processing.Phase == models.ProcessingFailed:
		return fmt.Errorf("processing failed: %s", job.Processing.Reason)
	case job.Dismissed:
		return shared.ErrDismissed
	}
	return nil
}

func (r *Runner) printVideo(v *models.Video) error {
	r.writePlainHeader(v.Title)
	r.writePlain("ID:          %s\n", v.ID)
	r.writePlain("Status:      %s\n", v.Status)
	if v.Status == models.StatusProcessing {
		r.writePlain("Progress:    %d%%\n", v.ProcessProgress)
	}
	if v.ErrorMessage != "" {
		r.writePlain("Error:       %s\n", v.ErrorMessage)
	}
	if v.SensitivityFlag != "" {
		r.writePlain("Sensitivity: %s\n", v.SensitivityFlag)
	}
	if v.Duration > 0 {
		r.writePlain("Duration:    %s\n", shared.FormatDuration(v.Duration))
	}
	if v.Size > 0 {
		r.writePlain("Size:        %s\n", shared.FormatBytes(v.Size))
	}
	if v.Metadata.Resolution != "" {
		r.writePlain("Resolution:  %s\n", v.Metadata.Resolution)
	}
	if v.Metadata.Codec != "" {
		r.writePlain("Codec:       %s\n", v.Metadata.Codec)
	}
	if v.Owner.Username != "" {
		r.writePlain("Owner:       %s\n", v.Owner.Username)
	}
	if !v.CreatedAt.IsZero() {
		r.writePlain("Created:     %s\n", v.CreatedAt.Local().Format(time.RFC1123))
	}
	if v.Description != "" {
		r.writePlainln("%s", v.Description)
	}
	return nil
}
