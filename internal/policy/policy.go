package policy

import (
	"context"
	"time"

	"github.com/lessucettes/adresu-wordguard/internal/profanity"
	"github.com/lessucettes/adresu-wordguard/internal/validation"
)

const (
	ActionAccept = "accept"
	ActionReject = "reject"
)

// Submission is one piece of user text on its way to being stored.
type Submission struct {
	ID          string
	ContentType validation.ContentType
	Text        string
	Author      string
	IP          string
}

type PolicyResponse struct {
	ID       string                `json:"id"`
	Action   string                `json:"action"`
	Msg      string                `json:"msg,omitempty"`
	Errors   []string              `json:"errors,omitempty"`
	Warnings []string              `json:"warnings,omitempty"`
	Scan     *profanity.ScanResult `json:"scan,omitempty"`
}

// FilterResult is the structured return type for all filters. Outcome is
// set by filters that run the content validator.
type FilterResult struct {
	Allowed  bool
	Filter   string
	Reason   string
	Duration time.Duration
	Outcome  *validation.Outcome
}

type Filter interface {
	Match(ctx context.Context, sub *Submission) (FilterResult, error)
}

type RejectionHandler interface {
	HandleRejection(ctx context.Context, sub *Submission, filterName string)
}

// NewResultFunc returns a helper function for creating FilterResult objects.
func NewResultFunc(filterName string) func(allowed bool, reason string, err error) (FilterResult, error) {
	start := time.Now()
	return func(allowed bool, reason string, err error) (FilterResult, error) {
		return FilterResult{
			Allowed:  allowed,
			Filter:   filterName,
			Reason:   reason,
			Duration: time.Since(start),
		}, err
	}
}
