package profanity

import (
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lessucettes/adresu-wordguard/internal/pattern"
)

func newLoadedScanner(t *testing.T, opts Options, words ...string) *Scanner {
	t.Helper()
	s, err := NewScanner(opts)
	require.NoError(t, err)
	s.Load(words, "1.0")
	return s
}

func TestSeverityFor(t *testing.T) {
	expected := []Severity{
		SeverityNone,
		SeverityMild, SeverityMild,
		SeverityModerate, SeverityModerate,
		SeveritySevere, SeveritySevere, SeveritySevere,
	}
	for n, want := range expected {
		require.Equal(t, want, SeverityFor(n), "count %d", n)
	}
}

func TestScanner_NotLoaded(t *testing.T) {
	s, err := NewScanner(Options{})
	require.NoError(t, err)

	require.False(t, s.Ready())
	res := s.Scan("anything at all")
	require.True(t, res.IsClean)
	require.Equal(t, SeverityNone, res.Severity)
	require.Equal(t, "anything at all", s.Filter("anything at all", ""))
}

func TestScanner_Scan(t *testing.T) {
	s := newLoadedScanner(t, Options{}, "ass", "damn", "fuck", "hell", "shit", "spam", "ควาย")

	testCases := []struct {
		name     string
		text     string
		words    []string
		severity Severity
	}{
		{
			name:     "Clean text",
			text:     "What time does the library open?",
			words:    []string{},
			severity: SeverityNone,
		},
		{
			name:     "Literal token with punctuation",
			text:     "well, damn!",
			words:    []string{"damn"},
			severity: SeverityMild,
		},
		{
			name:     "Separator obfuscation",
			text:     "f u c k you",
			words:    []string{"fuck"},
			severity: SeverityMild,
		},
		{
			name:     "Variants collapse to one term",
			text:     "shit sh1t shiiiit s-h-i-t",
			words:    []string{"shit"},
			severity: SeverityMild,
		},
		{
			name:     "Substring of a longer word is ignored",
			text:     "a classic assignment from hello world",
			words:    []string{},
			severity: SeverityNone,
		},
		{
			name:     "Three distinct terms",
			text:     "damn this hell of a sh1t show",
			words:    []string{"damn", "hell", "shit"},
			severity: SeverityModerate,
		},
		{
			name:     "Five distinct terms",
			text:     "damn hell shit fuuuck and your ass",
			words:    []string{"ass", "damn", "fuck", "hell", "shit"},
			severity: SeveritySevere,
		},
		{
			name:     "Fuzzy matching only covers dictionary terms",
			text:     "buy cheap v1agra now",
			words:    []string{},
			severity: SeverityNone,
		},
		{
			name:     "Thai term inside unspaced text",
			text:     "ไอ้ควายตัวนี้",
			words:    []string{"ควาย"},
			severity: SeverityMild,
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			res := s.Scan(tc.text)
			require.Equal(t, tc.words, res.FoundWords)
			require.Equal(t, tc.severity, res.Severity)
			require.Equal(t, len(tc.words) == 0, res.IsClean)
		})
	}
}

func TestScanner_MatchDetails(t *testing.T) {
	s := newLoadedScanner(t, Options{}, "fuck")

	res := s.Scan("F-U-C-K this")
	require.Equal(t, []string{"fuck"}, res.FoundWords)
	require.Contains(t, res.Matches, Match{Term: "fuck", Text: "f-u-c-k", Strategy: pattern.StrategySeparator})

	res = s.Scan("fuck")
	require.Len(t, res.Matches, 1, "a token and its exact match are the same hit")
	require.Equal(t, StrategyToken, res.Matches[0].Strategy)
}

func TestScanner_CaseInsensitive(t *testing.T) {
	s := newLoadedScanner(t, Options{}, "badword")

	upper := s.Scan("BADWORD")
	lower := s.Scan("badword")
	require.Equal(t, lower.FoundWords, upper.FoundWords)
	require.Equal(t, []string{"badword"}, upper.FoundWords)
}

func TestScanner_Deterministic(t *testing.T) {
	s := newLoadedScanner(t, Options{}, "damn", "hell", "shit")
	text := "d a m n, sh1t and HELL"

	first := s.Scan(text)
	for i := 0; i < 20; i++ {
		require.Equal(t, first, s.Scan(text))
	}
}

func TestScanner_MonotonicSeverity(t *testing.T) {
	s := newLoadedScanner(t, Options{}, "ass", "damn", "fuck", "hell", "shit")
	texts := []string{
		"nothing here",
		"damn",
		"damn hell",
		"damn hell shit",
		"damn hell shit fuck",
		"damn hell shit fuck ass",
	}
	rank := map[Severity]int{SeverityNone: 0, SeverityMild: 1, SeverityModerate: 2, SeveritySevere: 3}

	prev := -1
	for _, text := range texts {
		r := rank[s.Scan(text).Severity]
		require.GreaterOrEqual(t, r, prev, "text %q", text)
		prev = r
	}
}

func TestScanner_ReloadIsVisible(t *testing.T) {
	for _, cacheSize := range []int{0, 16} {
		t.Run(fmt.Sprintf("cache_size=%d", cacheSize), func(t *testing.T) {
			s := newLoadedScanner(t, Options{CacheSize: cacheSize, CacheTTL: time.Minute}, "hell")
			text := "oh darn it"

			require.True(t, s.Scan(text).IsClean)
			gen := s.Generation()

			s.Load([]string{"darn", "hell"}, "1.0")
			require.Greater(t, s.Generation(), gen)
			require.Equal(t, []string{"darn"}, s.Scan(text).FoundWords)

			s.Load([]string{"hell"}, "1.0")
			require.True(t, s.Scan(text).IsClean)
		})
	}
}

func TestScanner_CachedResultsAreCopies(t *testing.T) {
	s := newLoadedScanner(t, Options{CacheSize: 8}, "damn")

	first := s.Scan("damn")
	first.FoundWords[0] = "mutated"

	second := s.Scan("damn")
	require.Equal(t, []string{"damn"}, second.FoundWords)
}

func TestScanner_ConcurrentScansDuringReload(t *testing.T) {
	s := newLoadedScanner(t, Options{CacheSize: 64}, "damn")

	var wg sync.WaitGroup
	stop := make(chan struct{})
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for {
				select {
				case <-stop:
					return
				default:
				}
				res := s.Scan("damn and hell")
				// damn is in both snapshots, so it must always be found.
				assert.Contains(t, res.FoundWords, "damn")
			}
		}()
	}

	for i := 0; i < 50; i++ {
		if i%2 == 0 {
			s.Load([]string{"damn", "hell"}, "1.0")
		} else {
			s.Load([]string{"damn"}, "1.0")
		}
	}
	close(stop)
	wg.Wait()
}
