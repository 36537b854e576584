// Package schema validates entry front matter against configured rules.
package schema

import (
	"errors"
	"fmt"
	"slices"

	"github.com/go-playground/validator/v10"
)

// Rules maps front matter fields to validation tags, e.g.
// {"title": "required", "date": "required,datetime=2006-01-02"}. Nested maps
// validate nested front matter.
type Rules map[string]any

// Validator checks entry front matter. An empty rule set accepts everything.
type Validator struct {
	rules Rules
	v     *validator.Validate
}

func New(rules Rules) *Validator {
	return &Validator{rules: rules, v: validator.New()}
}

// Validate checks data for one entry and returns it on success. A failure is
// a content-correctness problem and is surfaced to the caller of the pass,
// not just logged.
func (s *Validator) Validate(id string, data map[string]any, filePath string) (map[string]any, error) {
	if len(s.rules) == 0 {
		return data, nil
	}

	failed := s.v.ValidateMap(data, s.rules)
	if len(failed) == 0 {
		return data, nil
	}

	fields := make([]string, 0, len(failed))
	for f := range failed {
		fields = append(fields, f)
	}
	slices.Sort(fields)

	errs := make([]error, 0, len(fields))
	for _, f := range fields {
		errs = append(errs, fmt.Errorf("field %q: %v", f, failed[f]))
	}
	return nil, fmt.Errorf("%s (%s): front matter invalid: %w", id, filePath, errors.Join(errs...))
}
