// Package apperr defines the failure kinds surfaced by the checkout core.
package apperr

import (
	"context"
	"errors"
	"fmt"
	"net"
)

type Kind string

const (
	InvalidFrequency       Kind = "invalid_frequency"
	InvalidInput           Kind = "invalid_input"
	ValidatorPoolExhausted Kind = "validator_pool_exhausted"
	InsufficientAllowance  Kind = "insufficient_allowance"
	AccountUnavailable     Kind = "account_unavailable"
	UpstreamTimeout        Kind = "upstream_timeout"
	UpstreamFailure        Kind = "upstream_failure"
	SigningFailure         Kind = "signing_failure"
	MalformedResponse      Kind = "malformed_response"
)

// Error carries a Kind and the step that produced it.
type Error struct {
	Kind Kind
	Step string
	Msg  string
	Err  error
}

func (e *Error) Error() string {
	msg := string(e.Kind)
	if e.Step != "" {
		msg = e.Step + ": " + msg
	}
	if e.Msg != "" {
		msg += ": " + e.Msg
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *Error) Unwrap() error { return e.Err }

func New(kind Kind, step, msg string) *Error {
	return &Error{Kind: kind, Step: step, Msg: msg}
}

func Newf(kind Kind, step, format string, args ...any) *Error {
	return &Error{Kind: kind, Step: step, Msg: fmt.Sprintf(format, args...)}
}

func Wrap(kind Kind, step string, err error) *Error {
	return &Error{Kind: kind, Step: step, Err: err}
}

// Upstream classifies a collaborator error. Errors that already carry a Kind
// pass through untouched; deadlines and network timeouts become
// UpstreamTimeout, everything else UpstreamFailure.
func Upstream(step string, err error) error {
	if err == nil {
		return nil
	}
	var ae *Error
	if errors.As(err, &ae) {
		return err
	}
	if IsTimeout(err) {
		return Wrap(UpstreamTimeout, step, err)
	}
	return Wrap(UpstreamFailure, step, err)
}

func IsTimeout(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var ne net.Error
	return errors.As(err, &ne) && ne.Timeout()
}

func KindOf(err error) Kind {
	var ae *Error
	if errors.As(err, &ae) {
		return ae.Kind
	}
	return ""
}

func IsKind(err error, kind Kind) bool {
	return KindOf(err) == kind
}

// Retryable reports whether the user may retry the same attempt later without
// changing anything on their side.
func Retryable(err error) bool {
	switch KindOf(err) {
	case ValidatorPoolExhausted, UpstreamTimeout:
		return true
	}
	return false
}
