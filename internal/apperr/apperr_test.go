package apperr

import (
	"context"
	"errors"
	"fmt"
	"testing"
)

type timeoutErr struct{}

func (timeoutErr) Error() string   { return "i/o timeout" }
func (timeoutErr) Timeout() bool   { return true }
func (timeoutErr) Temporary() bool { return true }

func TestUpstreamClassification(t *testing.T) {
	cases := []struct {
		name string
		err  error
		want Kind
	}{
		{"deadline", context.DeadlineExceeded, UpstreamTimeout},
		{"wrapped deadline", fmt.Errorf("call: %w", context.DeadlineExceeded), UpstreamTimeout},
		{"net timeout", timeoutErr{}, UpstreamTimeout},
		{"plain", errors.New("boom"), UpstreamFailure},
		{"already typed", New(SigningFailure, "sign", "rejected"), SigningFailure},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got := KindOf(Upstream("step", tc.err))
			if got != tc.want {
				t.Fatalf("kind=%q want %q", got, tc.want)
			}
		})
	}
	if Upstream("x", nil) != nil {
		t.Fatalf("nil error must stay nil")
	}
}

func TestErrorMessageAndUnwrap(t *testing.T) {
	base := errors.New("connection refused")
	err := Wrap(UpstreamFailure, "fee oracle", base)
	if !errors.Is(err, base) {
		t.Fatalf("expected unwrap to reach base error")
	}
	if got := err.Error(); got != "fee oracle: upstream_failure: connection refused" {
		t.Fatalf("unexpected message %q", got)
	}
	wrapped := fmt.Errorf("subscribe: %w", err)
	if !IsKind(wrapped, UpstreamFailure) {
		t.Fatalf("kind lost through wrapping")
	}
}

func TestRetryable(t *testing.T) {
	if !Retryable(New(ValidatorPoolExhausted, "allocate", "")) {
		t.Fatalf("pool exhaustion should be retryable")
	}
	if Retryable(New(InsufficientAllowance, "allowance", "")) {
		t.Fatalf("insufficient allowance needs approval, not retry")
	}
	if Retryable(errors.New("plain")) {
		t.Fatalf("untyped errors are not retryable")
	}
}
