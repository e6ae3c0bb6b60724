// Package planning reads the optional .planning/ directory some projects
// keep next to the code, so its phase, blockers and open requirements can be
// surfaced in assembled context.
//
// The bridge is read-only and never fails: anything it cannot read yields a
// nil state.
package planning

import (
	"bufio"
	"os"
	"path/filepath"
	"regexp"
	"strings"
)

// State is the parsed planning snapshot.
type State struct {
	CurrentPhase     string   `json:"current_phase"`
	Progress         string   `json:"progress"`
	Blockers         []string `json:"blockers"`
	PendingTodos     []string `json:"pending_todos"`
	OpenRequirements []string `json:"open_requirements"`
}

// Bridge locates .planning/ under a project root.
type Bridge struct {
	dir string
}

// NewBridge creates a Bridge for projectRoot.
func NewBridge(projectRoot string) *Bridge {
	return &Bridge{dir: filepath.Join(projectRoot, ".planning")}
}

// Available reports whether .planning/STATE.md exists.
func (b *Bridge) Available() bool {
	if b == nil {
		return false
	}
	_, err := os.Stat(filepath.Join(b.dir, "STATE.md"))
	return err == nil
}

var (
	phaseRe       = regexp.MustCompile(`Phase:\s*(.+)`)
	progressRe    = regexp.MustCompile(`Progress:\s*(.+)`)
	headerRe      = regexp.MustCompile(`^#{1,4}\s+`)
	listItemRe    = regexp.MustCompile(`^[-*]\s+(.+)`)
	requirementRe = regexp.MustCompile(`^-\s*\[\s*\]\s*\*\*([A-Z]+-\d+)\*\*:\s*(.+)`)
)

// Read parses STATE.md and REQUIREMENTS.md. It returns nil when planning
// is unavailable or STATE.md cannot be read.
func (b *Bridge) Read() *State {
	if !b.Available() {
		return nil
	}
	data, err := os.ReadFile(filepath.Join(b.dir, "STATE.md"))
	if err != nil {
		return nil
	}
	content := string(data)
	return &State{
		CurrentPhase:     firstMatch(phaseRe, content),
		Progress:         firstMatch(progressRe, content),
		Blockers:         listSection(content, "Blockers/Concerns"),
		PendingTodos:     listSection(content, "Pending Todos"),
		OpenRequirements: b.openRequirements(),
	}
}

// Summary renders the state as the text of a synthetic finding.
func (s *State) Summary() string {
	var b strings.Builder
	b.WriteString("Planning: phase ")
	b.WriteString(s.CurrentPhase)
	b.WriteString(", progress ")
	b.WriteString(s.Progress)
	if len(s.Blockers) > 0 {
		b.WriteString(". Blockers: ")
		b.WriteString(strings.Join(s.Blockers, "; "))
	}
	if len(s.OpenRequirements) > 0 {
		b.WriteString(". Open requirements: ")
		b.WriteString(strings.Join(s.OpenRequirements, "; "))
	}
	return b.String()
}

func firstMatch(re *regexp.Regexp, content string) string {
	m := re.FindStringSubmatch(content)
	if m == nil {
		return "unknown"
	}
	return strings.TrimSpace(m[1])
}

// listSection returns the list items under a "## name" header. A section
// that only says "none" is empty; a section with prose but no list items is
// returned as one item.
func listSection(content, name string) []string {
	lines := strings.Split(content, "\n")
	start := -1
	for i, l := range lines {
		if headerRe.MatchString(l) && strings.TrimSpace(headerRe.ReplaceAllString(l, "")) == name {
			start = i + 1
			break
		}
	}
	if start < 0 {
		return []string{}
	}
	end := len(lines)
	for i := start; i < len(lines); i++ {
		if headerRe.MatchString(lines[i]) {
			end = i
			break
		}
	}
	section := strings.TrimSpace(strings.Join(lines[start:end], "\n"))
	switch strings.ToLower(section) {
	case "", "none", "none.":
		return []string{}
	}

	items := []string{}
	for _, l := range strings.Split(section, "\n") {
		if m := listItemRe.FindStringSubmatch(l); m != nil {
			if item := strings.TrimSpace(m[1]); item != "" {
				items = append(items, item)
			}
		}
	}
	if len(items) == 0 {
		return []string{section}
	}
	return items
}

func (b *Bridge) openRequirements() []string {
	f, err := os.Open(filepath.Join(b.dir, "REQUIREMENTS.md"))
	if err != nil {
		return []string{}
	}
	defer f.Close()

	out := []string{}
	sc := bufio.NewScanner(f)
	for sc.Scan() {
		if m := requirementRe.FindStringSubmatch(sc.Text()); m != nil {
			out = append(out, m[1]+": "+strings.TrimSpace(m[2]))
		}
	}
	return out
}
