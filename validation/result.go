// Package validation checks candidate health data against the biomarker
// registry. Checks never fail with an error; they return a Result so callers
// can decide whether to reject or merely warn.
package validation

import (
	"strings"

	"github.com/teranos/healthtwin/errors"
)

// Issue is a single finding.
type Issue struct {
	Code    errors.Code `json:"code"`
	Field   string      `json:"field,omitempty"`
	Message string      `json:"message"`
}

func (i Issue) String() string {
	if i.Field == "" {
		return string(i.Code) + ": " + i.Message
	}
	return string(i.Code) + " " + i.Field + ": " + i.Message
}

// Result is the verdict of one or more checks. Warnings never affect IsValid.
type Result struct {
	IsValid  bool    `json:"is_valid"`
	Errors   []Issue `json:"errors"`
	Warnings []Issue `json:"warnings"`
}

// NewResult returns a valid, empty result.
func NewResult() Result {
	return Result{IsValid: true, Errors: []Issue{}, Warnings: []Issue{}}
}

// AddError records an error and marks the result invalid.
func (r *Result) AddError(code errors.Code, field, message string) {
	r.Errors = append(r.Errors, Issue{Code: code, Field: field, Message: message})
	r.IsValid = false
}

// AddWarning records a warning.
func (r *Result) AddWarning(code errors.Code, field, message string) {
	r.Warnings = append(r.Warnings, Issue{Code: code, Field: field, Message: message})
}

// Merge returns the combination of r and other.
func (r Result) Merge(other Result) Result {
	out := Result{
		IsValid:  r.IsValid && other.IsValid,
		Errors:   make([]Issue, 0, len(r.Errors)+len(other.Errors)),
		Warnings: make([]Issue, 0, len(r.Warnings)+len(other.Warnings)),
	}
	out.Errors = append(append(out.Errors, r.Errors...), other.Errors...)
	out.Warnings = append(append(out.Warnings, r.Warnings...), other.Warnings...)
	return out
}

// Err converts an invalid result into an error wrapping the sentinel for the
// first error's code. It returns nil for valid results.
func (r Result) Err() error {
	if r.IsValid || len(r.Errors) == 0 {
		return nil
	}
	first := r.Errors[0]
	sentinel := errors.Sentinel(first.Code)
	if sentinel == nil {
		sentinel = errors.ErrInvalidRequest
	}
	msg := first.Message
	if first.Field != "" {
		msg = first.Field + ": " + msg
	}
	err := errors.Wrap(sentinel, msg)
	for _, extra := range r.Errors[1:] {
		err = errors.WithDetail(err, extra.String())
	}
	return err
}

// prefixed returns a copy of r with every issue's field qualified by prefix.
func (r Result) prefixed(prefix string) Result {
	out := r.Merge(NewResult())
	for i := range out.Errors {
		out.Errors[i].Field = qualify(prefix, out.Errors[i].Field)
	}
	for i := range out.Warnings {
		out.Warnings[i].Field = qualify(prefix, out.Warnings[i].Field)
	}
	return out
}

func qualify(prefix, field string) string {
	switch {
	case field == "":
		return prefix
	case prefix == "" || strings.HasPrefix(field, prefix+"."):
		return field
	default:
		return prefix + "." + field
	}
}
