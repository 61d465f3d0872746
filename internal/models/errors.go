package models

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrUnauthorized means the delivery signature was missing or wrong.
	ErrUnauthorized = errors.New("invalid webhook signature")
	// ErrMalformedPayload means the body could not be decoded or lacks the
	// sub-object its event type requires.
	ErrMalformedPayload = errors.New("malformed webhook payload")
	// ErrUpstream covers every failed call to GitHub.
	ErrUpstream = errors.New("github unavailable")
	// ErrSchemaMismatch means the board has no Status field or no option
	// with the requested label.
	ErrSchemaMismatch = fmt.Errorf("%w: project schema mismatch", ErrUpstream)
)

// UpstreamError describes a failed GitHub call.
type UpstreamError struct {
	Op         string
	StatusCode int
	Messages   []string
	Err        error
}

func (e *UpstreamError) Error() string {
	var b strings.Builder
	b.WriteString(e.Op)
	b.WriteString(" failed")
	if e.StatusCode != 0 {
		fmt.Fprintf(&b, " (status %d)", e.StatusCode)
	}
	if len(e.Messages) > 0 {
		b.WriteString(": ")
		b.WriteString(strings.Join(e.Messages, "; "))
	}
	if e.Err != nil {
		b.WriteString(": ")
		b.WriteString(e.Err.Error())
	}
	return b.String()
}

func (e *UpstreamError) Unwrap() []error {
	if e.Err != nil {
		return []error{ErrUpstream, e.Err}
	}
	return []error{ErrUpstream}
}
