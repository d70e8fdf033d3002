// Package pattern compiles dictionary terms into case-insensitive matchers
// that catch the term itself and common obfuscations of it.
package pattern

import (
	"fmt"
	"log/slog"
	"regexp"
	"unicode/utf8"
)

const (
	// MinFuzzyTermLength is the shortest term that gets fuzzy strategies.
	MinFuzzyTermLength = 3
	// DefaultMaxFuzzyTermLength caps the terms that get fuzzy strategies.
	// Longer terms are matched exactly only.
	DefaultMaxFuzzyTermLength = 32
)

// Pattern is one compiled strategy for one term.
type Pattern struct {
	Strategy Strategy
	Source   string
	regex    *regexp.Regexp
}

func (p *Pattern) Regexp() *regexp.Regexp { return p.regex }

// TermMatcher holds every compiled pattern for a single term. The exact
// pattern, when it compiled, is always first.
type TermMatcher struct {
	Term     string
	Patterns []Pattern
}

// Exact returns the exact-match pattern, or nil if it failed to compile.
func (m *TermMatcher) Exact() *Pattern {
	if len(m.Patterns) > 0 && m.Patterns[0].Strategy == StrategyExact {
		return &m.Patterns[0]
	}
	return nil
}

// CompiledSet is the read-only result of compiling one dictionary snapshot.
type CompiledSet struct {
	Matchers []TermMatcher
	// Skipped lists terms for which no pattern compiled.
	Skipped []string
}

func (s *CompiledSet) PatternCount() int {
	n := 0
	for i := range s.Matchers {
		n += len(s.Matchers[i].Patterns)
	}
	return n
}

type Options struct {
	MaxFuzzyTermLength int
}

type Compiler struct {
	maxFuzzy int
}

func NewCompiler(opts Options) (*Compiler, error) {
	maxFuzzy := opts.MaxFuzzyTermLength
	if maxFuzzy == 0 {
		maxFuzzy = DefaultMaxFuzzyTermLength
	}
	if maxFuzzy < MinFuzzyTermLength {
		return nil, fmt.Errorf("max fuzzy term length must be >= %d, got %d", MinFuzzyTermLength, maxFuzzy)
	}
	return &Compiler{maxFuzzy: maxFuzzy}, nil
}

// Compile builds matchers for every term. A pattern that fails to compile
// is logged and dropped; the rest of the dictionary is unaffected.
func (c *Compiler) Compile(terms []string) *CompiledSet {
	set := &CompiledSet{Matchers: make([]TermMatcher, 0, len(terms))}
	for _, term := range terms {
		m, ok := c.CompileTerm(term)
		if !ok {
			slog.Warn("Skipping dictionary term, no pattern compiled", "term", term)
			set.Skipped = append(set.Skipped, term)
			continue
		}
		set.Matchers = append(set.Matchers, m)
	}
	return set
}

// CompileTerm compiles the strategies that apply to term.
func (c *Compiler) CompileTerm(term string) (TermMatcher, bool) {
	m := TermMatcher{Term: term}
	if term == "" {
		return m, false
	}
	n := utf8.RuneCountInString(term)
	fuzzy := n >= MinFuzzyTermLength && n <= c.maxFuzzy

	for _, sb := range builders {
		if sb.fuzzy && !fuzzy {
			continue
		}
		src, ok := sb.build(term)
		if !ok {
			continue
		}
		compiled, err := compileSafe(src)
		if err != nil {
			slog.Error("Failed to compile term pattern", "term", term, "strategy", sb.strategy, "error", err)
			continue
		}
		m.Patterns = append(m.Patterns, Pattern{Strategy: sb.strategy, Source: src, regex: compiled})
	}
	return m, len(m.Patterns) > 0
}

func compileSafe(src string) (rx *regexp.Regexp, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic compiling pattern: %v", r)
		}
	}()
	return regexp.Compile(src)
}
