// Package errs defines the error taxonomy shared by the data providers,
// the estimation engine and the HTTP layer. Each category maps to a
// distinct user-facing affordance, so callers branch with errors.As
// instead of string matching.
package errs

import (
	"errors"
	"fmt"
)

// ValidationError marks a malformed request. It is raised before any
// dispatch to the network or the mock data layer.
type ValidationError struct {
	Field   string `json:"field,omitempty"`
	Message string `json:"message"`
}

func (e *ValidationError) Error() string {
	if e.Field != "" {
		return fmt.Sprintf("validation failed on %s: %s", e.Field, e.Message)
	}
	return "validation failed: " + e.Message
}

// NewValidation builds a ValidationError for a single field.
func NewValidation(field, message string) *ValidationError {
	return &ValidationError{Field: field, Message: message}
}

// TransportError surfaces a failed exchange with the upstream API: network
// unreachable, non-2xx status, or an unparseable body. Status is zero when
// no HTTP response was received.
type TransportError struct {
	Status int    `json:"status"`
	Detail string `json:"detail,omitempty"`
	cause  error
}

func (e *TransportError) Error() string {
	switch {
	case e.Status != 0 && e.Detail != "":
		return fmt.Sprintf("upstream returned %d: %s", e.Status, e.Detail)
	case e.Status != 0:
		return fmt.Sprintf("upstream returned %d", e.Status)
	case e.cause != nil:
		return "upstream unreachable: " + e.cause.Error()
	}
	return "upstream request failed"
}

func (e *TransportError) Unwrap() error { return e.cause }

// NewTransport builds a TransportError for a non-2xx response.
func NewTransport(status int, detail string) *TransportError {
	return &TransportError{Status: status, Detail: detail}
}

// WrapTransport builds a TransportError around a network-level failure.
func WrapTransport(cause error) *TransportError {
	return &TransportError{cause: cause}
}

// NotFoundError reports that a referenced entity does not exist. The UI
// renders this as "not found" rather than a retry affordance, so it must
// stay distinct from TransportError.
type NotFoundError struct {
	Entity string `json:"entity"`
	ID     string `json:"id"`
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s %s not found", e.Entity, e.ID)
}

// NewNotFound builds a NotFoundError.
func NewNotFound(entity, id string) *NotFoundError {
	return &NotFoundError{Entity: entity, ID: id}
}

// InsufficientCreditsError is a domain rejection raised before any credits
// are reserved. Required and Current feed the dedicated upsell modal.
type InsufficientCreditsError struct {
	Required int `json:"required"`
	Current  int `json:"current"`
}

func (e *InsufficientCreditsError) Error() string {
	return fmt.Sprintf("insufficient credits: need %d, have %d", e.Required, e.Current)
}

// NewInsufficientCredits builds an InsufficientCreditsError.
func NewInsufficientCredits(required, current int) *InsufficientCreditsError {
	return &InsufficientCreditsError{Required: required, Current: current}
}

// IsValidation reports whether err is (or wraps) a ValidationError.
func IsValidation(err error) bool {
	var v *ValidationError
	return errors.As(err, &v)
}

// IsNotFound reports whether err is (or wraps) a NotFoundError.
func IsNotFound(err error) bool {
	var n *NotFoundError
	return errors.As(err, &n)
}

// IsTransport reports whether err is (or wraps) a TransportError.
func IsTransport(err error) bool {
	var t *TransportError
	return errors.As(err, &t)
}

// IsInsufficientCredits reports whether err is (or wraps) an
// InsufficientCreditsError.
func IsInsufficientCredits(err error) bool {
	var c *InsufficientCreditsError
	return errors.As(err, &c)
}
