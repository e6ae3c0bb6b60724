package printer

import (
	"bytes"
	"errors"
	"fmt"
	"strings"
	"testing"

	"github.com/fatih/color"

	"github.com/HendryAvila/twining/internal/blackboard"
)

func TestEntry(t *testing.T) {
	color.NoColor = true
	t.Cleanup(func() { color.NoColor = false })

	var buf bytes.Buffer
	Entry(&buf, blackboard.Entry{
		Timestamp: "2025-06-01T12:34:56.789Z",
		EntryType: blackboard.TypeWarning,
		Summary:   "clock skew",
		Scope:     "src/auth/",
	})

	got := buf.String()
	for _, want := range []string{"12:34:56", "warning", "clock skew", "[src/auth/ · -]"} {
		if !strings.Contains(got, want) {
			t.Errorf("Entry output %q missing %q", got, want)
		}
	}
	if !strings.HasSuffix(got, "\n") {
		t.Error("Entry should end with a newline")
	}
}

func TestError_ReturnsTitle(t *testing.T) {
	err := Error("no project", "", nil)
	if err == nil || err.Error() != "no project" {
		t.Errorf("Error() = %v", err)
	}
}

func TestShown(t *testing.T) {
	if !Shown(Error("boom", "", nil)) {
		t.Error("Shown should report errors built by Error")
	}
	if !Shown(fmt.Errorf("wrapped: %w", Error("boom", "", nil))) {
		t.Error("Shown should see through wrapping")
	}
	if Shown(errors.New("plain")) {
		t.Error("Shown should be false for plain errors")
	}
}
