// Package printer formats human CLI output with colors.
//
// Only the CLI prints through here; the MCP server keeps stdout for the
// protocol and logs to stderr.
package printer

import (
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/fatih/color"

	"github.com/HendryAvila/twining/internal/blackboard"
)

var (
	green  = color.New(color.FgGreen)
	yellow = color.New(color.FgYellow)
	red    = color.New(color.FgRed, color.Bold)
	cyan   = color.New(color.FgCyan)
	faint  = color.New(color.Faint)
)

// entryColors picks the color of an entry type in Entry output.
var entryColors = map[string]*color.Color{
	blackboard.TypeWarning:  yellow,
	blackboard.TypeDecision: cyan,
	blackboard.TypeNeed:     color.New(color.FgMagenta),
	blackboard.TypeQuestion: color.New(color.FgBlue),
	blackboard.TypeFinding:  green,
}

// Success prints a success message in green with a checkmark prefix.
func Success(format string, a ...any) {
	msg := fmt.Sprintf(format, a...)
	if !strings.HasPrefix(msg, "✓") {
		msg = "✓ " + msg
	}
	green.Println(msg)
}

// Warning prints a warning in yellow.
func Warning(format string, a ...any) {
	yellow.Printf("! %s\n", fmt.Sprintf(format, a...))
}

// Step prints a step message with emphasis.
func Step(format string, a ...any) {
	cyan.Printf("→ %s\n", fmt.Sprintf(format, a...))
}

// Error prints title and suggestions to stderr and returns a plain error
// for cobra, which is configured not to print it again.
func Error(title, explanation string, suggestions []string) error {
	red.Fprintf(os.Stderr, "%s\n", title)
	if explanation != "" {
		fmt.Fprintf(os.Stderr, "\n%s\n", explanation)
	}
	if len(suggestions) > 0 {
		fmt.Fprintln(os.Stderr)
		for _, s := range suggestions {
			fmt.Fprintf(os.Stderr, "  - %s\n", s)
		}
	}
	return &shownError{title: title}
}

type shownError struct{ title string }

func (e *shownError) Error() string { return e.title }

// Shown reports whether err was already written to stderr by Error.
func Shown(err error) bool {
	var se *shownError
	return errors.As(err, &se)
}

// Entry writes one blackboard entry as a single line:
// time, type, scope, agent and summary.
func Entry(w io.Writer, e blackboard.Entry) {
	c, ok := entryColors[e.EntryType]
	if !ok {
		c = color.New(color.Reset)
	}
	ts := e.Timestamp
	if len(ts) >= 19 {
		ts = ts[11:19]
	}
	faint.Fprintf(w, "%s ", ts)
	c.Fprintf(w, "%-10s", e.EntryType)
	fmt.Fprintf(w, " %s", e.Summary)
	faint.Fprintf(w, "  [%s · %s]\n", e.Scope, orDash(e.AgentID))
}

func orDash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}
