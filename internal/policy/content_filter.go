package policy

import (
	"context"
	"errors"

	"github.com/lessucettes/adresu-wordguard/internal/validation"
)

const contentFilterName = "ContentFilter"

// ContentValidator is satisfied by *validation.Validator.
type ContentValidator interface {
	ValidateAs(text string, ct validation.ContentType) validation.Outcome
}

// ContentFilter runs the validator with the profile of the submission's
// content type and rejects on the first validation error.
type ContentFilter struct {
	validator ContentValidator
}

func NewContentFilter(v ContentValidator) (*ContentFilter, error) {
	if v == nil {
		return nil, errors.New("content filter requires a validator")
	}
	return &ContentFilter{validator: v}, nil
}

func (f *ContentFilter) Match(_ context.Context, sub *Submission) (FilterResult, error) {
	newResult := NewResultFunc(contentFilterName)

	outcome := f.validator.ValidateAs(sub.Text, sub.ContentType)
	res, err := newResult(outcome.IsValid, outcome.FirstError(), nil)
	if outcome.IsValid {
		res.Reason = "content_ok"
	}
	res.Outcome = &outcome
	return res, err
}
