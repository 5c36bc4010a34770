package provider

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
)

// Code classifies a provider failure for retry decisions and API responses.
type Code string

const (
	CodeTransport    Code = "transport"
	CodeRateLimited  Code = "rate_limited"
	CodeServer       Code = "server"
	CodeClient       Code = "client"
	CodeCircuitOpen  Code = "circuit_open"
	CodeNoChoice     Code = "no_choice"
	CodeUnknownModel Code = "unknown_model"
)

// Error is the single user-visible failure type. The raw cause is preserved
// for diagnostics via Unwrap.
type Error struct {
	Provider string
	Code     Code
	Status   int
	Message  string
	Err      error
}

func (e *Error) Error() string {
	if e.Status > 0 {
		return fmt.Sprintf("%s: %s (status %d): %s", e.Provider, e.Code, e.Status, e.Message)
	}
	return fmt.Sprintf("%s: %s: %s", e.Provider, e.Code, e.Message)
}

func (e *Error) Unwrap() error { return e.Err }

// NewError builds a typed provider error wrapping cause.
func NewError(providerName string, code Code, msg string, cause error) *Error {
	return &Error{Provider: providerName, Code: code, Message: msg, Err: cause}
}

// FromStatus classifies a non-2xx HTTP response.
func FromStatus(providerName string, status int, body string) *Error {
	code := CodeClient
	switch {
	case status == http.StatusTooManyRequests:
		code = CodeRateLimited
	case status >= 500:
		code = CodeServer
	}
	return &Error{Provider: providerName, Code: code, Status: status, Message: body}
}

// TransportError wraps a network-level failure.
func TransportError(providerName string, cause error) *Error {
	return &Error{Provider: providerName, Code: CodeTransport, Message: cause.Error(), Err: cause}
}

// NoChoiceError marks a syntactically valid but semantically empty response.
func NoChoiceError(providerName string) *Error {
	return &Error{Provider: providerName, Code: CodeNoChoice, Message: "provider returned no response choice"}
}

// Retryable reports whether err is worth retrying: connection failures,
// 5xx and 429. Other client errors, empty responses and cancellation are
// permanent.
func Retryable(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	var pe *Error
	if errors.As(err, &pe) {
		switch pe.Code {
		case CodeTransport, CodeRateLimited, CodeServer:
			return true
		default:
			return false
		}
	}
	var ne net.Error
	if errors.As(err, &ne) {
		return true
	}
	return false
}
