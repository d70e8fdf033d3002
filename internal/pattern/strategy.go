package pattern

import (
	"regexp"
	"strings"
	"unicode"
	"unicode/utf8"
)

// Strategy names a way a dictionary term may be disguised in text.
type Strategy string

const (
	StrategyExact        Strategy = "exact"
	StrategySubstitution Strategy = "substitution"
	StrategySeparator    Strategy = "separator"
	StrategyRepetition   Strategy = "repetition"
)

// Builder turns a normalized term into a regexp source. It returns false
// when the strategy has nothing to add for the term.
type Builder func(term string) (string, bool)

type strategyBuilder struct {
	strategy Strategy
	build    Builder
	fuzzy    bool
}

var builders = []strategyBuilder{
	{StrategyExact, buildExact, false},
	{StrategySubstitution, buildSubstitution, true},
	{StrategySeparator, buildSeparator, true},
	{StrategyRepetition, buildRepetition, true},
}

var substitutions = map[rune]string{
	'a': "[a@4]",
	'e': "[e3]",
	'i': "[i1!]",
	'o': "[o0]",
}

const separatorClass = `[\s\-_]*`

func buildExact(term string) (string, bool) {
	return bounded(term, regexp.QuoteMeta(term)), true
}

func buildSubstitution(term string) (string, bool) {
	var b strings.Builder
	changed := false
	for _, r := range term {
		if class, ok := substitutions[unicode.ToLower(r)]; ok {
			b.WriteString(class)
			changed = true
			continue
		}
		b.WriteString(regexp.QuoteMeta(string(r)))
	}
	if !changed {
		return "", false
	}
	return bounded(term, b.String()), true
}

func buildSeparator(term string) (string, bool) {
	parts := make([]string, 0, utf8.RuneCountInString(term))
	for _, r := range term {
		parts = append(parts, regexp.QuoteMeta(string(r)))
	}
	return bounded(term, strings.Join(parts, separatorClass)), true
}

func buildRepetition(term string) (string, bool) {
	var b strings.Builder
	for _, r := range term {
		b.WriteString(regexp.QuoteMeta(string(r)))
		if unicode.IsLetter(r) {
			b.WriteByte('+')
		}
	}
	return bounded(term, b.String()), true
}

// bounded wraps body in \b on each side whose edge rune of term is an
// ASCII word character. RE2's \b is ASCII-only, so a boundary next to a
// Thai or Cyrillic rune would never match.
func bounded(term, body string) string {
	first, _ := utf8.DecodeRuneInString(term)
	last, _ := utf8.DecodeLastRuneInString(term)
	var b strings.Builder
	b.WriteString("(?i)")
	if isASCIIWord(first) {
		b.WriteString(`\b`)
	}
	b.WriteString(body)
	if isASCIIWord(last) {
		b.WriteString(`\b`)
	}
	return b.String()
}

func isASCIIWord(r rune) bool {
	return r < utf8.RuneSelf && (r == '_' || unicode.IsLetter(r) || unicode.IsDigit(r))
}
