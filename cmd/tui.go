package main

import (
	"context"
	"fmt"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/urfave/cli/v3"

	"github.com/desertthunder/vidx/internal/shared"
	"github.com/desertthunder/vidx/internal/ui"
)

// TUI launches the interactive terminal UI for browsing videos and monitoring uploads.
func (r *Runner) TUI(ctx context.Context, cmd *cli.Command) error {
	// Redirect logs to file to avoid interfering with TUI rendering
	fileLogger, err := shared.NewFileLogger(cmd.String("log-file"))
	if err != nil {
		return fmt.Errorf("failed to create file logger: %w", err)
	}
	shared.SetLogLevel(fileLogger, r.logger.GetLevel())
	r.SetLogger(fileLogger)

	engine, err := r.Realtime(ctx)
	if err != nil {
		return err
	}

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	r.runEngine(runCtx, engine)

	model := ui.NewModel(runCtx, r.api, engine, ui.Options{Progress: r.updates, Channel: r.channel})
	p := tea.NewProgram(model, tea.WithContext(runCtx), tea.WithAltScreen())

	if _, err := p.Run(); err != nil {
		return fmt.Errorf("error running TUI: %w", err)
	}

	return nil
}
