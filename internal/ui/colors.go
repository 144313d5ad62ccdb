package ui

import (
	"strings"

	"github.com/charmbracelet/lipgloss"

	"github.com/desertthunder/vidx/internal/models"
)

var styles = NewPalette("#7D56F4", "#04B575", "#FF0000", "#FFA500", "#626262")

// interface Painter defines coloring text with [lipgloss] styles
type Painter interface {
	On(string, lipgloss.Color) string // Sets background color
	As(string, lipgloss.Color) string // Sets foreground color
}

// struct Palette is a simple stylesheet built with named [lipgloss.Style] fields
type Palette struct {
	title lipgloss.Style
	ok    lipgloss.Style
	err   lipgloss.Style
	warn  lipgloss.Style
	help  lipgloss.Style
}

var _ Painter = (*Palette)(nil)

func NewPalette(t, s, e, w, h string) *Palette {
	return &Palette{
		title: NewBold(t).MarginBottom(1),
		ok:    NewBold(s),
		err:   NewBold(e),
		warn:  NewStyle(w),
		help:  NewEm(h),
	}
}

func (p *Palette) On(s string, c lipgloss.Color) string {
	return lipgloss.NewStyle().Background(c).Render(s)
}

func (p *Palette) As(s string, c lipgloss.Color) string {
	return lipgloss.NewStyle().Foreground(c).Render(s)
}

// job picks the style for an upload's current phase.
func (p *Palette) job(j models.UploadJob) lipgloss.Style {
	switch {
	case j.Transfer.Phase == models.TransferFailed, j.Processing.Phase == models.ProcessingFailed:
		return p.err
	case j.Processing.Phase == models.ProcessingCompleted:
		return p.ok
	case j.Transfer.Phase == models.Transferred && j.Processing.Phase == models.ProcessingUnknown:
		return p.warn
	default:
		return lipgloss.NewStyle()
	}
}

func NewStyle(fg string) lipgloss.Style {
	return lipgloss.NewStyle().Foreground(lipgloss.Color(fg))
}

func NewBold(fg string) lipgloss.Style {
	return NewStyle(fg).Bold(true)
}

func NewEm(fg string) lipgloss.Style {
	return NewStyle(fg).Italic(true)
}

// bar renders percent in [0,100] as a fixed-width text progress bar.
func bar(percent, width int) string {
	percent = min(max(percent, 0), 100)
	filled := width * percent / 100
	return strings.Repeat("█", filled) + strings.Repeat("░", width-filled)
}
