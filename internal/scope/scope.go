// Package scope implements the scope-overlap rules shared by all stores.
//
// A scope is a file path, a module name, or the literal "project". Two
// scopes overlap when either one is a string prefix of the other.
package scope

import (
	"strings"
	"unicode"
)

// Project is the scope that stands for the whole project.
const Project = "project"

// Overlaps reports whether a and b overlap (bidirectional prefix match).
func Overlaps(a, b string) bool {
	return strings.HasPrefix(a, b) || strings.HasPrefix(b, a)
}

// OrProject returns s, or Project when s is empty.
func OrProject(s string) string {
	if strings.TrimSpace(s) == "" {
		return Project
	}
	return s
}

// Filter turns a query scope into a filter value: the empty string and
// Project both mean no filter.
func Filter(s string) string {
	s = strings.TrimSpace(s)
	if s == Project {
		return ""
	}
	return s
}

// Words splits text into lowercase alphanumeric tokens, dropping empties.
func Words(text string) []string {
	return strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
}

// NormalizeTags lowercases and trims tags, dropping empties and duplicates
// while keeping first-seen order.
func NormalizeTags(tags []string) []string {
	out := make([]string, 0, len(tags))
	seen := make(map[string]bool, len(tags))
	for _, t := range tags {
		t = strings.ToLower(strings.TrimSpace(t))
		if t == "" || seen[t] {
			continue
		}
		seen[t] = true
		out = append(out, t)
	}
	return out
}
