package app

import (
	"fmt"
	"io"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/vk/modplan/internal/scheduler"
)

var (
	summaryTitle  = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("#5B8DEF"))
	summaryOK     = lipgloss.NewStyle().Foreground(lipgloss.Color("#4CAF50"))
	summaryFailed = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("#FF6B6B"))
	summaryMuted  = lipgloss.NewStyle().Foreground(lipgloss.Color("#888888"))
)

// renderSummary writes a human-readable report of res.
func renderSummary(w io.Writer, res *scheduler.BuildResult) error {
	lines := []string{summaryTitle.Render(fmt.Sprintf("build %s: %s", res.Target, res.Status))}

	if len(res.Built) > 0 {
		lines = append(lines, summaryOK.Render("built:")+" "+strings.Join(res.Built, ", "))
	}
	if len(res.Reused) > 0 {
		lines = append(lines, summaryMuted.Render("up to date: "+strings.Join(res.Reused, ", ")))
	}
	for _, f := range res.Failures {
		lines = append(lines, summaryFailed.Render("failed: "+f.Module)+" "+firstLine(f.Err))
	}
	if len(res.NotAttempted) > 0 {
		lines = append(lines, summaryMuted.Render("not attempted: "+strings.Join(res.NotAttempted, ", ")))
	}

	switch {
	case res.LinkErr != nil:
		lines = append(lines, summaryFailed.Render("link failed:")+" "+firstLine(res.LinkErr))
	case res.LinkReused:
		lines = append(lines, summaryMuted.Render("link up to date: "+res.LinkArtifact))
	case res.LinkArtifact != "":
		lines = append(lines, summaryOK.Render("linked:")+" "+res.LinkArtifact)
	}

	_, err := fmt.Fprintln(w, lipgloss.JoinVertical(lipgloss.Left, lines...))
	return err
}

func firstLine(err error) string {
	msg := err.Error()
	if i := strings.IndexByte(msg, '\n'); i >= 0 {
		return msg[:i]
	}
	return msg
}
