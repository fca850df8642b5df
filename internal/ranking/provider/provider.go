// Package provider sends one ranking request to an LLM backend and reports
// either the raw text it returned or a typed failure.
package provider

import (
	"context"
	"errors"
	"fmt"
	"net"
)

// Client issues a single provider call. Implementations must abort the
// in-flight call when ctx is done.
type Client interface {
	Call(ctx context.Context, req Request) (string, error)
}

type Request struct {
	System string
	Prompt string
}

type Kind string

const (
	KindTimeout   Kind = "timeout"
	KindTransport Kind = "transport"
	KindRefusal   Kind = "refusal"
	KindEmpty     Kind = "empty"
)

// Error is the typed failure every Client returns.
type Error struct {
	Kind       Kind
	StatusCode int
	// Body is the provider's structured error message, or the refusal reason.
	Body string
	Err  error
}

func (e *Error) Error() string {
	switch {
	case e.StatusCode != 0:
		return fmt.Sprintf("provider %s: status %d: %s", e.Kind, e.StatusCode, e.Body)
	case e.Body != "":
		return fmt.Sprintf("provider %s: %s", e.Kind, e.Body)
	case e.Err != nil:
		return fmt.Sprintf("provider %s: %v", e.Kind, e.Err)
	}
	return fmt.Sprintf("provider %s", e.Kind)
}

func (e *Error) Unwrap() error { return e.Err }

// AsError extracts a typed provider error. Untyped errors are classified by
// classifyTransport.
func AsError(err error) *Error {
	var pe *Error
	if errors.As(err, &pe) {
		return pe
	}
	return classifyTransport(err)
}

// classifyTransport maps a network-level error to Timeout or Transport.
func classifyTransport(err error) *Error {
	if errors.Is(err, context.DeadlineExceeded) {
		return &Error{Kind: KindTimeout, Err: err}
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return &Error{Kind: KindTimeout, Err: err}
	}
	return &Error{Kind: KindTransport, Err: err}
}
