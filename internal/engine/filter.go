// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package engine

import (
	"github.com/gobwas/glob"
	"github.com/samber/oops"
)

// compiledPattern holds a pattern and its compiled glob.
type compiledPattern struct {
	pattern string
	glob    glob.Glob
}

// Filter selects messages by name with glob patterns such as
// "GAME_CLIENT_*" or "G_FS_*". Names contain no separators, so '*' matches
// any run of characters.
//
// The zero value matches nothing.
type Filter struct {
	patterns []compiledPattern
}

// NewFilter compiles patterns. An empty pattern or invalid glob syntax is an
// error; no partial filter is returned.
func NewFilter(patterns []string) (*Filter, error) {
	compiled := make([]compiledPattern, 0, len(patterns))
	for i, pattern := range patterns {
		if pattern == "" {
			return nil, oops.Code("FILTER_INVALID").With("index", i).Errorf("empty message pattern")
		}
		g, err := glob.Compile(pattern)
		if err != nil {
			return nil, oops.Code("FILTER_INVALID").With("pattern", pattern).Wrap(err)
		}
		compiled = append(compiled, compiledPattern{pattern: pattern, glob: g})
	}
	return &Filter{patterns: compiled}, nil
}

// Empty reports whether the filter has no patterns.
func (f *Filter) Empty() bool {
	return f == nil || len(f.patterns) == 0
}

// Match reports whether name matches any pattern.
func (f *Filter) Match(name string) bool {
	if f == nil {
		return false
	}
	for _, p := range f.patterns {
		if p.glob.Match(name) {
			return true
		}
	}
	return false
}

// Patterns returns the source patterns.
func (f *Filter) Patterns() []string {
	if f == nil {
		return nil
	}
	out := make([]string, len(f.patterns))
	for i, p := range f.patterns {
		out[i] = p.pattern
	}
	return out
}
