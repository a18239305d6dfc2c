// Package ui provides terminal rendering helpers for podlog's CLI output.
package ui

import (
	"github.com/charmbracelet/lipgloss"
	"github.com/podlog/podlog/internal/queue"
)

var (
	accentStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("12")).Bold(true)
	dimStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("8"))
	pendingStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("11"))
	syncingStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("14"))
	errorStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("9")).Bold(true)
	okStyle      = lipgloss.NewStyle().Foreground(lipgloss.Color("10"))
)

// RenderAccent highlights a heading or marker.
func RenderAccent(s string) string { return accentStyle.Render(s) }

// RenderDim de-emphasizes secondary detail like ids and timestamps.
func RenderDim(s string) string { return dimStyle.Render(s) }

// RenderOK marks a successful outcome.
func RenderOK(s string) string { return okStyle.Render(s) }

// RenderError marks a failure message.
func RenderError(s string) string { return errorStyle.Render(s) }

// RenderStatus colors a queue status for listings.
func RenderStatus(st queue.Status) string {
	switch st {
	case queue.StatusPending:
		return pendingStyle.Render(string(st))
	case queue.StatusSyncing:
		return syncingStyle.Render(string(st))
	case queue.StatusError:
		return errorStyle.Render(string(st))
	default:
		return string(st)
	}
}
