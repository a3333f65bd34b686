// Package errors carries the typed error used across the API. A Code decides
// the HTTP status, whether clients may retry, and whether details are shown.
package errors

import (
	stdErrors "errors"
	"fmt"
	"net/http"
)

type Code string

// Generic codes.
const (
	CodeValidation    Code = "VALIDATION_ERROR"
	CodeNotFound      Code = "NOT_FOUND"
	CodeConflict      Code = "CONFLICT"
	CodeStateConflict Code = "STATE_CONFLICT"
	CodeIdempotency   Code = "IDEMPOTENCY_KEY_REUSED"
	CodeInternal      Code = "INTERNAL_ERROR"
	CodeDependency    Code = "DEPENDENCY_ERROR"
)

// Production workflow codes.
const (
	CodeInvalidTransition     Code = "INVALID_TRANSITION"
	CodeStageTerminal         Code = "STAGE_TERMINAL"
	CodeQuantityNegative      Code = "QUANTITY_NOT_NON_NEGATIVE"
	CodeQuantityOverAllocated Code = "QUANTITY_OVER_ALLOCATED"
	CodeRejectionOverflow     Code = "REJECTION_OVERFLOW"
	CodeEmptyReason           Code = "EMPTY_REASON"
	CodeAlreadyDispatched     Code = "ALREADY_DISPATCHED"
	CodeExternalHandoff       Code = "EXTERNAL_HANDOFF_FAILED"
)

// Metadata is how a Code is rendered to API clients.
type Metadata struct {
	HTTPStatus     int
	Retryable      bool
	PublicMessage  string
	DetailsAllowed bool
}

const (
	retry   = true
	details = true
)

var metadataByCode = map[Code]Metadata{
	CodeValidation:    {http.StatusBadRequest, false, "validation failed", details},
	CodeNotFound:      {http.StatusNotFound, false, "resource not found", false},
	CodeConflict:      {http.StatusConflict, false, "conflict detected", false},
	CodeStateConflict: {http.StatusUnprocessableEntity, false, "state transition disallowed", details},
	CodeIdempotency:   {http.StatusConflict, false, "idempotency key reused", details},
	CodeInternal:      {http.StatusInternalServerError, retry, "internal server error", false},
	CodeDependency:    {http.StatusServiceUnavailable, retry, "dependency unavailable", details},

	CodeInvalidTransition:     {http.StatusConflict, retry, "action not allowed from current stage status", details},
	CodeStageTerminal:         {http.StatusConflict, false, "stage is already closed", details},
	CodeQuantityNegative:      {http.StatusBadRequest, false, "quantities must be non-negative", details},
	CodeQuantityOverAllocated: {http.StatusBadRequest, false, "approved and rejected exceed processed quantity", details},
	CodeRejectionOverflow:     {http.StatusUnprocessableEntity, false, "rejection lines exceed declared rejected quantity", details},
	CodeEmptyReason:           {http.StatusBadRequest, false, "rejection reason is required", false},
	CodeAlreadyDispatched:     {http.StatusConflict, false, "stage already dispatched to vendor", details},
	CodeExternalHandoff:       {http.StatusBadGateway, retry, "document issuance failed", details},
}

// MetadataFor falls back to the internal error rendering for unknown codes.
func MetadataFor(code Code) Metadata {
	meta, ok := metadataByCode[code]
	if !ok {
		return metadataByCode[CodeInternal]
	}
	return meta
}

// Error is a coded error with an optional cause and client-facing details.
type Error struct {
	code    Code
	message string
	details any
	cause   error
}

func New(code Code, message string) *Error {
	return &Error{code: code, message: message}
}

func Newf(code Code, format string, args ...any) *Error {
	return New(code, fmt.Sprintf(format, args...))
}

// Wrap attaches cause to a coded error. A nil cause behaves like New.
func Wrap(code Code, cause error, message string) *Error {
	e := New(code, message)
	e.cause = cause
	return e
}

// WithDetails sets the payload rendered under error.details and returns e.
func (e *Error) WithDetails(details any) *Error {
	if e != nil {
		e.details = details
	}
	return e
}

func (e *Error) Code() Code {
	if e == nil {
		return CodeInternal
	}
	return e.code
}

func (e *Error) Message() string {
	if e == nil {
		return ""
	}
	return e.message
}

func (e *Error) Details() any {
	if e == nil {
		return nil
	}
	return e.details
}

func (e *Error) Error() string {
	switch {
	case e == nil:
		return ""
	case e.cause == nil:
		return string(e.code) + ": " + e.message
	default:
		return fmt.Sprintf("%s: %s: %v", e.code, e.message, e.cause)
	}
}

func (e *Error) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.cause
}

// As returns the outermost *Error in the chain, if any.
func As(err error) *Error {
	var typed *Error
	if err != nil && stdErrors.As(err, &typed) {
		return typed
	}
	return nil
}

// CodeOf returns the code of the outermost typed error in the chain, or
// CodeInternal for untyped errors. A nil error has no code.
func CodeOf(err error) Code {
	if err == nil {
		return ""
	}
	return As(err).Code()
}

// HasCode reports whether err carries the given code.
func HasCode(err error, code Code) bool {
	return err != nil && CodeOf(err) == code
}
