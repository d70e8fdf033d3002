// Package profanity scans text for dictionary terms and their obfuscated
// variants, and masks them for display.
package profanity

import (
	"fmt"
	"log/slog"
	"slices"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"
	"unicode"

	lru "github.com/hashicorp/golang-lru/v2/expirable"
	"golang.org/x/sync/singleflight"
	"golang.org/x/text/unicode/norm"

	"github.com/lessucettes/adresu-wordguard/internal/pattern"
)

const (
	DefaultMask = "***"

	// StrategyToken marks a whitespace token found verbatim in the dictionary.
	StrategyToken pattern.Strategy = "token"

	maxCachedTextLen = 4096
)

type Severity string

const (
	SeverityNone     Severity = "none"
	SeverityMild     Severity = "mild"
	SeverityModerate Severity = "moderate"
	SeveritySevere   Severity = "severe"
)

// SeverityFor classifies the number of distinct terms found.
func SeverityFor(distinct int) Severity {
	switch {
	case distinct >= 5:
		return SeveritySevere
	case distinct >= 3:
		return SeverityModerate
	case distinct >= 1:
		return SeverityMild
	default:
		return SeverityNone
	}
}

type Match struct {
	Term     string           `json:"term"`
	Text     string           `json:"text"`
	Strategy pattern.Strategy `json:"strategy"`
}

type ScanResult struct {
	IsClean      bool     `json:"is_clean"`
	FoundWords   []string `json:"found_words"`
	Severity     Severity `json:"severity"`
	FilteredText string   `json:"filtered_text"`
	Matches      []Match  `json:"matches,omitempty"`
}

func (r ScanResult) clone() ScanResult {
	r.FoundWords = slices.Clone(r.FoundWords)
	r.Matches = slices.Clone(r.Matches)
	return r
}

// snapshot pairs a dictionary with the patterns compiled from it. It is
// never modified after being published.
type snapshot struct {
	generation uint64
	version    string
	terms      map[string]struct{}
	set        *pattern.CompiledSet
}

type Options struct {
	Mask               string
	MaxFuzzyTermLength int
	// CacheSize enables a result cache when positive.
	CacheSize int
	CacheTTL  time.Duration
}

type LoadStats struct {
	Generation uint64
	Terms      int
	Patterns   int
	Skipped    int
}

type Scanner struct {
	compiler *pattern.Compiler
	mask     string

	loadMu     sync.Mutex
	generation uint64
	snap       atomic.Pointer[snapshot]

	cache *lru.LRU[string, ScanResult]
	sf    singleflight.Group
}

func NewScanner(opts Options) (*Scanner, error) {
	compiler, err := pattern.NewCompiler(pattern.Options{MaxFuzzyTermLength: opts.MaxFuzzyTermLength})
	if err != nil {
		return nil, fmt.Errorf("failed to create pattern compiler: %w", err)
	}
	mask := opts.Mask
	if mask == "" {
		mask = DefaultMask
	}
	s := &Scanner{compiler: compiler, mask: mask}
	if opts.CacheSize > 0 {
		ttl := opts.CacheTTL
		if ttl <= 0 {
			ttl = 10 * time.Minute
		}
		s.cache = lru.NewLRU[string, ScanResult](opts.CacheSize, nil, ttl)
	}
	return s, nil
}

// Load compiles words and publishes them as the active dictionary. Scans
// running concurrently see either the previous snapshot or this one.
func (s *Scanner) Load(words []string, version string) LoadStats {
	set := s.compiler.Compile(words)
	terms := make(map[string]struct{}, len(words))
	for _, w := range words {
		terms[w] = struct{}{}
	}

	s.loadMu.Lock()
	defer s.loadMu.Unlock()
	s.generation++
	s.snap.Store(&snapshot{
		generation: s.generation,
		version:    version,
		terms:      terms,
		set:        set,
	})

	stats := LoadStats{
		Generation: s.generation,
		Terms:      len(terms),
		Patterns:   set.PatternCount(),
		Skipped:    len(set.Skipped),
	}
	slog.Debug("Scanner dictionary published", "generation", stats.Generation, "version", version,
		"terms", stats.Terms, "patterns", stats.Patterns, "skipped", stats.Skipped)
	return stats
}

// Ready reports whether a dictionary has been loaded.
func (s *Scanner) Ready() bool { return s.snap.Load() != nil }

func (s *Scanner) Generation() uint64 {
	if snap := s.snap.Load(); snap != nil {
		return snap.generation
	}
	return 0
}

// Scan reports every dictionary term found in text, directly or through
// one of the obfuscation patterns.
func (s *Scanner) Scan(text string) ScanResult {
	snap := s.snap.Load()
	if snap == nil {
		return ScanResult{IsClean: true, FoundWords: []string{}, Severity: SeverityNone, FilteredText: text}
	}
	if s.cache == nil || len(text) > maxCachedTextLen {
		return s.scan(snap, text)
	}

	key := strconv.FormatUint(snap.generation, 10) + "\x00" + text
	if res, ok := s.cache.Get(key); ok {
		return res.clone()
	}
	v, _, _ := s.sf.Do(key, func() (any, error) {
		if res, ok := s.cache.Get(key); ok {
			return res, nil
		}
		res := s.scan(snap, text)
		s.cache.Add(key, res)
		return res, nil
	})
	return v.(ScanResult).clone()
}

func (s *Scanner) scan(snap *snapshot, text string) ScanResult {
	found := make(map[string]struct{})
	seen := make(map[Match]struct{})
	var matches []Match
	record := func(m Match) {
		found[m.Term] = struct{}{}
		key := Match{Term: m.Term, Text: m.Text}
		if _, dup := seen[key]; dup {
			return
		}
		seen[key] = struct{}{}
		matches = append(matches, m)
	}

	lower := norm.NFC.String(strings.ToLower(text))
	for _, tok := range strings.Fields(lower) {
		clean := stripNonWord(tok)
		if _, ok := snap.terms[clean]; ok {
			record(Match{Term: clean, Text: clean, Strategy: StrategyToken})
		}
	}

	for _, m := range snap.set.Matchers {
		for _, p := range m.Patterns {
			for _, hit := range p.Regexp().FindAllString(text, -1) {
				record(Match{Term: m.Term, Text: strings.ToLower(hit), Strategy: p.Strategy})
			}
		}
	}

	words := make([]string, 0, len(found))
	for w := range found {
		words = append(words, w)
	}
	slices.Sort(words)

	return ScanResult{
		IsClean:      len(words) == 0,
		FoundWords:   words,
		Severity:     SeverityFor(len(words)),
		FilteredText: redact(snap, text, s.mask),
		Matches:      matches,
	}
}

// stripNonWord keeps letters, digits, marks and underscores, so words in
// scripts with combining vowels (Thai) survive intact.
func stripNonWord(tok string) string {
	return strings.Map(func(r rune) rune {
		if unicode.IsLetter(r) || unicode.IsDigit(r) || unicode.IsMark(r) || r == '_' {
			return r
		}
		return -1
	}, tok)
}
