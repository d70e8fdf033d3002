package profanity

import "github.com/lessucettes/adresu-wordguard/internal/pattern"

// Filter replaces every dictionary term and every obfuscated variant in
// text with mask. An empty mask selects the scanner's configured mask.
func (s *Scanner) Filter(text, mask string) string {
	if mask == "" {
		mask = s.mask
	}
	snap := s.snap.Load()
	if snap == nil {
		return text
	}
	return redact(snap, text, mask)
}

// redact masks exact matches of every term first and fuzzy matches second.
// Overlapping spans are masked by whichever pattern runs last.
func redact(snap *snapshot, text, mask string) string {
	out := text
	matchers := snap.set.Matchers
	for i := range matchers {
		if exact := matchers[i].Exact(); exact != nil {
			out = exact.Regexp().ReplaceAllLiteralString(out, mask)
		}
	}
	for i := range matchers {
		for j := range matchers[i].Patterns {
			p := &matchers[i].Patterns[j]
			if p.Strategy == pattern.StrategyExact {
				continue
			}
			out = p.Regexp().ReplaceAllLiteralString(out, mask)
		}
	}
	return out
}
