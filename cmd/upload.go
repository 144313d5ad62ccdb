package main

import (
	"context"
	"fmt"
	"strings"

	"github.com/urfave/cli/v3"

	"github.com/desertthunder/vidx/internal/models"
	"github.com/desertthunder/vidx/internal/shared"
	"github.com/desertthunder/vidx/internal/tasks"
)

// Upload validates and uploads a file, then follows it through processing.
//
// With --detach the command returns once the server has assigned a job id.
func (r *Runner) Upload(ctx context.Context, cmd *cli.Command) error {
	path := strings.TrimSpace(cmd.StringArg("file"))
	if path == "" {
		return fmt.Errorf("%w: file", shared.ErrMissingArgument)
	}

	engine, err := r.Realtime(ctx)
	if err != nil {
		return err
	}

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	r.runEngine(runCtx, engine)

	c, err := engine.NewUpload(ctx, path, cmd.String("title"))
	if err != nil {
		return err
	}

	if cmd.Bool("detach") {
		return r.detach(ctx, c)
	}
	return r.follow(ctx, c, cmd.Duration("timeout"))
}

// detach prints transfer progress until the controller reports the transfer finished, then
// prints the job id. Progress lines are best effort; the outcome comes from the controller.
func (r *Runner) detach(ctx context.Context, c *tasks.Controller) error {
	for {
		select {
		case u := <-r.updates:
			if u.Job.LocalID == c.ID() && u.Phase == tasks.Transfer {
				r.writePlain("%s\n", u.Message)
			}
		case <-c.Sent():
			return r.detached(c.Snapshot())
		case <-c.Done():
			return r.detached(c.Snapshot())
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

func (r *Runner) detached(job models.UploadJob) error {
	if job.Transfer.Phase == models.Transferred && !job.Dismissed {
		return r.accepted(job)
	}
	return r.outcome(job)
}

func (r *Runner) accepted(job models.UploadJob) error {
	r.writePlain("✓ Uploaded %s (ID: %s)\n", job.Title, job.JobID)
	return r.writePlain("Follow with: vidx videos watch %s\n", job.JobID)
}
