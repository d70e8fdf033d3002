// Package validation combines length, profanity and spam checks into a
// single accept/reject decision for submitted text.
package validation

import (
	"errors"
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/lessucettes/adresu-wordguard/internal/profanity"
	"github.com/lessucettes/adresu-wordguard/internal/spam"
)

const (
	MsgSevereProfanity   = "too much disallowed language, please revise"
	MsgModerateProfanity = "disallowed language found, please use polite language"
	MsgMildProfanity     = "inappropriate word found, please use polite language"
	MsgFilterUnavailable = "content filter is not available, please try again later"
)

type ContentType string

const (
	ContentTitle   ContentType = "title"
	ContentBody    ContentType = "body"
	ContentComment ContentType = "comment"
)

// Config selects which checks run and the accepted length range, counted
// in runes of the trimmed text.
type Config struct {
	CheckProfanity bool `toml:"check_profanity" json:"check_profanity"`
	CheckSpam      bool `toml:"check_spam" json:"check_spam"`
	CheckLength    bool `toml:"check_length" json:"check_length"`
	MinLength      int  `toml:"min_length" json:"min_length"`
	MaxLength      int  `toml:"max_length" json:"max_length"`
}

func (c Config) Validate() error {
	if !c.CheckLength {
		return nil
	}
	if c.MinLength < 0 {
		return errors.New("min_length must not be negative")
	}
	if c.MaxLength < c.MinLength {
		return fmt.Errorf("max_length (%d) must be >= min_length (%d)", c.MaxLength, c.MinLength)
	}
	return nil
}

// DefaultConfig runs every check with bounds suited to free text.
func DefaultConfig() Config {
	return Config{CheckProfanity: true, CheckSpam: true, CheckLength: true, MinLength: 10, MaxLength: 5000}
}

func TitleConfig() Config {
	return Config{CheckProfanity: true, CheckSpam: true, CheckLength: true, MinLength: 5, MaxLength: 200}
}

func BodyConfig() Config {
	return Config{CheckProfanity: true, CheckSpam: true, CheckLength: true, MinLength: 10, MaxLength: 10000}
}

func CommentConfig() Config {
	return Config{CheckProfanity: true, CheckSpam: true, CheckLength: true, MinLength: 1, MaxLength: 5000}
}

type Outcome struct {
	IsValid  bool                  `json:"is_valid"`
	Errors   []string              `json:"errors"`
	Warnings []string              `json:"warnings"`
	Scan     *profanity.ScanResult `json:"scan,omitempty"`
}

// FirstError is the message to show the submitter, or "" when valid.
func (o Outcome) FirstError() string {
	if len(o.Errors) == 0 {
		return ""
	}
	return o.Errors[0]
}

// Scanner is the subset of *profanity.Scanner the validator needs.
type Scanner interface {
	Ready() bool
	Scan(text string) profanity.ScanResult
}

// SpamChecker is the subset of *spam.Detector the validator needs.
type SpamChecker interface {
	Check(text string) spam.Result
}

type Validator struct {
	scanner  Scanner
	spam     SpamChecker
	profiles map[ContentType]Config
}

func NewValidator(scanner Scanner, spamChecker SpamChecker, profiles map[ContentType]Config) (*Validator, error) {
	for ct, p := range profiles {
		if err := p.Validate(); err != nil {
			return nil, fmt.Errorf("invalid %s profile: %w", ct, err)
		}
	}
	merged := map[ContentType]Config{
		ContentTitle:   TitleConfig(),
		ContentBody:    BodyConfig(),
		ContentComment: CommentConfig(),
	}
	for ct, p := range profiles {
		merged[ct] = p
	}
	return &Validator{scanner: scanner, spam: spamChecker, profiles: merged}, nil
}

// Profile returns the config for a content type. Unknown or empty types
// get DefaultConfig.
func (v *Validator) Profile(ct ContentType) (Config, bool) {
	p, ok := v.profiles[ct]
	if !ok {
		return DefaultConfig(), false
	}
	return p, true
}

// ValidateAs validates text with the profile for ct.
func (v *Validator) ValidateAs(text string, ct ContentType) Outcome {
	cfg, _ := v.Profile(ct)
	return v.Validate(text, cfg)
}

// Validate runs length, profanity and spam checks in that order. Every
// enabled check runs, so all problems are reported together.
func (v *Validator) Validate(text string, cfg Config) Outcome {
	out := Outcome{Errors: []string{}, Warnings: []string{}}

	if cfg.CheckLength {
		n := utf8.RuneCountInString(strings.TrimSpace(text))
		switch {
		case n < cfg.MinLength:
			out.Errors = append(out.Errors, fmt.Sprintf("text below minimum length %d", cfg.MinLength))
		case n > cfg.MaxLength:
			out.Errors = append(out.Errors, fmt.Sprintf("text exceeds maximum length %d", cfg.MaxLength))
		}
	}

	if cfg.CheckProfanity {
		if !v.scanner.Ready() {
			out.Errors = append(out.Errors, MsgFilterUnavailable)
		} else {
			res := v.scanner.Scan(text)
			out.Scan = &res
			if !res.IsClean {
				out.Errors = append(out.Errors, profanityMessage(res.Severity))
			}
		}
	}

	if cfg.CheckSpam {
		if res := v.spam.Check(text); res.IsSpam {
			out.Errors = append(out.Errors, res.Reason)
		}
	}

	out.IsValid = len(out.Errors) == 0
	return out
}

// profanityMessage maps severity to a blocking error. Mild hits are errors
// too; there is no warning path.
func profanityMessage(sev profanity.Severity) string {
	switch sev {
	case profanity.SeveritySevere:
		return MsgSevereProfanity
	case profanity.SeverityModerate:
		return MsgModerateProfanity
	default:
		return MsgMildProfanity
	}
}
