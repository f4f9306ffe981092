// Package errors provides error handling for healthtwin.
//
// This package re-exports github.com/cockroachdb/errors, providing:
//   - Stack traces for debugging
//   - Error wrapping and context
//   - User-facing hints and details
//
// On top of the re-exports it defines the sentinel taxonomy used by the twin,
// biomarker, validation and reasoning packages. Every domain sentinel wraps one of
// the generic sentinels (ErrNotFound, ErrInvalidRequest, ErrConflict) so callers
// that only care about the broad class can keep using IsNotFoundError and
// IsInvalidRequestError.
//
// Usage:
//
//	if _, err := t.GetValue("biomarkers", "hba1c", true); err != nil {
//	    if errors.Is(err, errors.ErrFieldNotPopulated) {
//	        // nothing recorded yet
//	    }
//	}
package errors

import (
	crdb "github.com/cockroachdb/errors"
)

// Core error creation and wrapping
var (
	New          = crdb.New
	Newf         = crdb.Newf
	Wrap         = crdb.Wrap
	Wrapf        = crdb.Wrapf
	WithStack    = crdb.WithStack
	WithMessage  = crdb.WithMessage
	WithMessagef = crdb.WithMessagef
	Mark         = crdb.Mark
)

// User-facing messages and details
var (
	WithHint           = crdb.WithHint
	WithHintf          = crdb.WithHintf
	WithDetail         = crdb.WithDetail
	WithDetailf        = crdb.WithDetailf
	WithSecondaryError = crdb.WithSecondaryError
)

// Error inspection
var (
	Is             = crdb.Is
	IsAny          = crdb.IsAny
	As             = crdb.As
	Unwrap         = crdb.Unwrap
	UnwrapAll      = crdb.UnwrapAll
	GetAllHints    = crdb.GetAllHints
	GetAllDetails  = crdb.GetAllDetails
	FlattenHints   = crdb.FlattenHints
	FlattenDetails = crdb.FlattenDetails
)

// Assertions
var (
	AssertionFailedf = crdb.AssertionFailedf
)

// Generic sentinels. Use with errors.Is().
var (
	// ErrNotFound indicates the requested resource does not exist
	ErrNotFound = New("not found")

	// ErrInvalidRequest indicates the input was malformed or invalid
	ErrInvalidRequest = New("invalid request")

	// ErrConflict indicates a resource conflict (e.g., duplicate key)
	ErrConflict = New("resource conflict")
)

// Validation errors
var (
	ErrInvalidBiomarkerValue = Mark(New("invalid biomarker value"), ErrInvalidRequest)
	ErrInvalidUnit           = Mark(New("invalid unit"), ErrInvalidRequest)
	ErrInvalidTimestamp      = Mark(New("invalid timestamp"), ErrInvalidRequest)
	ErrMissingRequiredField  = Mark(New("missing required field"), ErrInvalidRequest)
)

// Structural and loading errors
var (
	ErrInvalidDataFormat = Mark(New("invalid data format"), ErrInvalidRequest)
	ErrTypeMismatch      = Mark(New("type mismatch"), ErrInvalidRequest)
	ErrDuplicateField    = Mark(New("duplicate field"), ErrConflict)

	// ErrOverlappingAgeRanges is returned when a biomarker registers age brackets
	// that share at least one age.
	ErrOverlappingAgeRanges = Mark(New("overlapping age ranges"), ErrInvalidRequest)
)

// Query errors
var (
	ErrDomainNotFound    = Mark(New("domain not found"), ErrNotFound)
	ErrFieldNotFound     = Mark(New("field not found"), ErrNotFound)
	ErrFieldNotPopulated = Mark(New("field not populated"), ErrNotFound)
	ErrInvalidDateRange  = Mark(New("invalid date range"), ErrInvalidRequest)
)

// Code is a stable string identifier for an error condition, used when errors
// or validation issues are serialised for API consumers.
type Code string

const (
	CodeInvalidBiomarkerValue Code = "INVALID_BIOMARKER_VALUE"
	CodeInvalidUnit           Code = "INVALID_UNIT"
	CodeInvalidTimestamp      Code = "INVALID_TIMESTAMP"
	CodeMissingRequiredField  Code = "MISSING_REQUIRED_FIELD"
	CodeInvalidDataFormat     Code = "INVALID_DATA_FORMAT"
	CodeTypeMismatch          Code = "TYPE_MISMATCH"
	CodeDuplicateField        Code = "DUPLICATE_FIELD"
	CodeDomainNotFound        Code = "DOMAIN_NOT_FOUND"
	CodeFieldNotFound         Code = "FIELD_NOT_FOUND"
	CodeInvalidDateRange      Code = "INVALID_DATE_RANGE"
	CodeOutOfRange            Code = "OUT_OF_REFERENCE_RANGE"
	CodeNoReferenceData       Code = "NO_REFERENCE_DATA"
	CodeDuplicateTimestamp    Code = "DUPLICATE_TIMESTAMP"
	CodeUnknown               Code = "UNKNOWN"
)

var codeSentinels = []struct {
	sentinel error
	code     Code
}{
	{ErrInvalidBiomarkerValue, CodeInvalidBiomarkerValue},
	{ErrInvalidUnit, CodeInvalidUnit},
	{ErrInvalidTimestamp, CodeInvalidTimestamp},
	{ErrMissingRequiredField, CodeMissingRequiredField},
	{ErrInvalidDataFormat, CodeInvalidDataFormat},
	{ErrTypeMismatch, CodeTypeMismatch},
	{ErrDuplicateField, CodeDuplicateField},
	{ErrDomainNotFound, CodeDomainNotFound},
	{ErrFieldNotFound, CodeFieldNotFound},
	{ErrInvalidDateRange, CodeInvalidDateRange},
}

// CodeOf returns the Code of the first domain sentinel err wraps, or CodeUnknown.
func CodeOf(err error) Code {
	if err == nil {
		return ""
	}
	for _, cs := range codeSentinels {
		if Is(err, cs.sentinel) {
			return cs.code
		}
	}
	return CodeUnknown
}

// Sentinel returns the domain sentinel registered for code, or nil.
func Sentinel(code Code) error {
	for _, cs := range codeSentinels {
		if cs.code == code {
			return cs.sentinel
		}
	}
	return nil
}

// IsNotFoundError checks if an error is or wraps ErrNotFound.
func IsNotFoundError(err error) bool {
	return err != nil && Is(err, ErrNotFound)
}

// IsInvalidRequestError checks if an error is or wraps ErrInvalidRequest
func IsInvalidRequestError(err error) bool {
	return err != nil && Is(err, ErrInvalidRequest)
}

// IsConflictError checks if an error is or wraps ErrConflict
func IsConflictError(err error) bool {
	return err != nil && Is(err, ErrConflict)
}

// NewNotFoundError creates a not-found error with a formatted message
func NewNotFoundError(format string, args ...interface{}) error {
	return Wrap(ErrNotFound, Newf(format, args...).Error())
}
