package ui

import (
	"github.com/charmbracelet/lipgloss"
	"github.com/desertthunder/setlistsync/internal/models"
)

var styles = NewPalette("#7D56F4", "#04B575", "#FF0000", "#FFA500", "#626262")

// struct Palette is a simple stylesheet built with named [lipgloss.Style] fields
type Palette struct {
	title lipgloss.Style
	ok    lipgloss.Style
	err   lipgloss.Style
	warn  lipgloss.Style
	help  lipgloss.Style
}

func NewPalette(t, s, e, w, h string) *Palette {
	return &Palette{
		title: NewBold(t).MarginBottom(1),
		ok:    NewBold(s),
		err:   NewBold(e),
		warn:  NewStyle(w),
		help:  NewEm(h),
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

func Title(s string) string { return styles.title.Render(s) }
func OK(s string) string    { return styles.ok.Render(s) }
func Err(s string) string   { return styles.err.Render(s) }
func Warn(s string) string  { return styles.warn.Render(s) }
func Help(s string) string  { return styles.help.Render(s) }

// JobStatus colours a queue status: completed green, failed red, retrying orange, the rest muted.
func JobStatus(s models.JobStatus) string {
	switch s {
	case models.JobCompleted:
		return OK(string(s))
	case models.JobFailed:
		return Err(string(s))
	case models.JobRetrying:
		return Warn(string(s))
	default:
		return Help(string(s))
	}
}

// OperationStatus colours an orchestrated task status.
func OperationStatus(s models.OperationStatus) string {
	switch s {
	case models.OpCompleted:
		return OK(string(s))
	case models.OpFailed:
		return Err(string(s))
	case models.OpCompletedWithErrors:
		return Warn(string(s))
	default:
		return Help(string(s))
	}
}

// Outcome colours a processed job outcome ("completed", "retried", "failed").
func Outcome(outcome string) string {
	switch outcome {
	case "completed":
		return OK(outcome)
	case "failed":
		return Err(outcome)
	case "retried":
		return Warn(outcome)
	default:
		return outcome
	}
}
