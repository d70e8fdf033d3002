// Package spam implements structural spam heuristics for submitted text.
package spam

import (
	"fmt"
	"regexp"
	"unicode"
)

const (
	ReasonRepeatedChars = "excessive repeated characters"
	ReasonUppercase     = "excessive uppercase"
	ReasonTooManyLinks  = "too many links"
)

var urlRegex = regexp.MustCompile(`https?://\S+`)

type Config struct {
	MaxRepeatRun      int     `toml:"max_repeat_run"`
	MinLettersForCaps int     `toml:"min_letters_for_caps_check"`
	MaxCapsRatio      float64 `toml:"max_caps_ratio"`
	MaxLinks          int     `toml:"max_links"`
}

func DefaultConfig() Config {
	return Config{
		MaxRepeatRun:      6,
		MinLettersForCaps: 10,
		MaxCapsRatio:      0.7,
		MaxLinks:          3,
	}
}

func (c Config) Validate() error {
	if c.MaxRepeatRun < 2 {
		return fmt.Errorf("max_repeat_run must be >= 2, got %d", c.MaxRepeatRun)
	}
	if c.MinLettersForCaps < 0 {
		return fmt.Errorf("min_letters_for_caps_check must not be negative, got %d", c.MinLettersForCaps)
	}
	if c.MaxCapsRatio <= 0.0 || c.MaxCapsRatio > 1.0 {
		return fmt.Errorf("max_caps_ratio must be in (0.0, 1.0], got %f", c.MaxCapsRatio)
	}
	if c.MaxLinks < 0 {
		return fmt.Errorf("max_links must not be negative, got %d", c.MaxLinks)
	}
	return nil
}

type Result struct {
	IsSpam bool   `json:"is_spam"`
	Reason string `json:"reason,omitempty"`
}

type check func(cfg *Config, text string) (bool, string)

// Checks run in this order and the first one that fires wins.
var checks = []check{
	repeatedRun,
	uppercaseRatio,
	linkDensity,
}

type Detector struct {
	cfg Config
}

func NewDetector(cfg Config) (*Detector, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid spam config: %w", err)
	}
	return &Detector{cfg: cfg}, nil
}

func (d *Detector) Check(text string) Result {
	for _, c := range checks {
		if hit, reason := c(&d.cfg, text); hit {
			return Result{IsSpam: true, Reason: reason}
		}
	}
	return Result{}
}

// repeatedRun reports a run of the same rune. Line breaks never count.
func repeatedRun(cfg *Config, text string) (bool, string) {
	var prev rune
	count := 0
	for _, r := range text {
		if r == '\n' || r == '\r' {
			prev, count = 0, 0
			continue
		}
		if count > 0 && r == prev {
			count++
		} else {
			prev, count = r, 1
		}
		if count >= cfg.MaxRepeatRun {
			return true, ReasonRepeatedChars
		}
	}
	return false, ""
}

// uppercaseRatio only counts letters that have case, so uncased scripts
// such as Thai neither dilute nor inflate the ratio.
func uppercaseRatio(cfg *Config, text string) (bool, string) {
	letters, caps := 0, 0
	for _, r := range text {
		switch {
		case unicode.IsUpper(r):
			letters++
			caps++
		case unicode.IsLower(r):
			letters++
		}
	}
	if letters <= cfg.MinLettersForCaps {
		return false, ""
	}
	if float64(caps)/float64(letters) > cfg.MaxCapsRatio {
		return true, ReasonUppercase
	}
	return false, ""
}

func linkDensity(cfg *Config, text string) (bool, string) {
	links := urlRegex.FindAllStringIndex(text, cfg.MaxLinks+1)
	if len(links) > cfg.MaxLinks {
		return true, ReasonTooManyLinks
	}
	return false, ""
}
