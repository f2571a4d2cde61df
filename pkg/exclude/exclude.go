// Package exclude filters directory entry names by glob pattern.
package exclude

import (
	"fmt"
	"os"
	"strings"

	"github.com/bmatcuk/doublestar/v4"
)

// Set is a collection of glob patterns matched against bare entry names.
// The zero Set excludes nothing.
type Set struct {
	patterns []string
}

// Add registers a pattern. Invalid patterns are diagnosed at Add time so a
// bad command line fails up front rather than mid-comparison.
func (s *Set) Add(pattern string) error {
	if !doublestar.ValidatePattern(pattern) {
		return fmt.Errorf("invalid exclude pattern %q", pattern)
	}
	s.patterns = append(s.patterns, pattern)
	return nil
}

// AddFile registers one pattern per line of the named file. Blank lines are
// skipped.
func (s *Set) AddFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	for _, line := range strings.Split(string(data), "\n") {
		line = strings.TrimRight(line, "\r")
		if line == "" {
			continue
		}
		if err := s.Add(line); err != nil {
			return fmt.Errorf("%s: %w", path, err)
		}
	}
	return nil
}

// Match reports whether name matches any registered pattern.
func (s *Set) Match(name string) bool {
	for _, p := range s.patterns {
		if ok, _ := doublestar.Match(p, name); ok {
			return true
		}
	}
	return false
}

// Empty reports whether the set has no patterns.
func (s *Set) Empty() bool { return len(s.patterns) == 0 }
