// Package report renders the facts a run recorded as a terminal summary.
package report

import (
	"errors"
	"io"
	"strings"
	"syscall"

	"github.com/charmbracelet/lipgloss"

	"seqpack/internal/runctx"
)

var (
	titleStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("#7dd3fc"))
	labelStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("#888888"))
	boxStyle   = lipgloss.NewStyle().Border(lipgloss.RoundedBorder()).Padding(0, 1)
)

// Render draws title and facts as a two-column boxed table, labels left
// aligned to the widest label. Multi-line values are indented under their row.
func Render(title string, facts []runctx.Fact) string {
	width := 0
	for _, f := range facts {
		width = max(width, lipgloss.Width(f.Label))
	}
	label := labelStyle.Width(width + 2)

	rows := make([]string, 0, len(facts)+1)
	rows = append(rows, titleStyle.Render(title))
	for _, f := range facts {
		rows = append(rows, lipgloss.JoinHorizontal(lipgloss.Top,
			label.Render(f.Label),
			strings.TrimRight(f.Value, "\n"),
		))
	}
	return boxStyle.Render(lipgloss.JoinVertical(lipgloss.Left, rows...))
}

// Print writes the rendered summary to w. A reader that went away early
// (e.g. `| head`) is not an error.
func Print(w io.Writer, title string, facts []runctx.Fact) error {
	_, err := io.WriteString(w, Render(title, facts)+"\n")
	if IsBrokenPipe(err) {
		return nil
	}
	return err
}

// IsBrokenPipe reports whether an error is a broken pipe / closed pipe.
func IsBrokenPipe(err error) bool {
	return err != nil && (errors.Is(err, syscall.EPIPE) || errors.Is(err, io.ErrClosedPipe))
}
