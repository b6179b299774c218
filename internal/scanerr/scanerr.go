// Package scanerr classifies failures raised by scan sources and the scan
// pipeline so that retry, scheduling and API layers can react by kind rather
// than by inspecting provider-specific errors.
package scanerr

import (
	"context"
	"errors"
	"fmt"
)

// Kind represents the failure class of a scan error
type Kind string

const (
	// KindTransient represents failures worth retrying (5xx, resets, broken pipes)
	KindTransient Kind = "transient"
	// KindPermanent represents failures retries cannot fix (4xx, malformed payloads)
	KindPermanent Kind = "permanent"
	// KindTimeout represents an elapsed per-call or per-job deadline
	KindTimeout Kind = "timeout"
	// KindRateLimit represents a rate-limit token that could not be acquired in time
	KindRateLimit Kind = "rate_limit"
	// KindBackpressure represents a full job queue; surfaced to callers, never retried internally
	KindBackpressure Kind = "backpressure"
	// KindNoData represents a scan in which no source produced data, so nothing can be scored
	KindNoData Kind = "no_data"
)

// Error represents a classified scan failure
type Error struct {
	Kind    Kind
	Source  string // originating component, e.g. "pagespeed", "aiquality", "queue"
	Message string
	Cause   error
}

// Error implements the error interface
func (e *Error) Error() string {
	switch {
	case e.Source != "" && e.Cause != nil:
		return fmt.Sprintf("%s: %s: %s: %v", e.Kind, e.Source, e.Message, e.Cause)
	case e.Source != "":
		return fmt.Sprintf("%s: %s: %s", e.Kind, e.Source, e.Message)
	case e.Cause != nil:
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Cause)
	default:
		return fmt.Sprintf("%s: %s", e.Kind, e.Message)
	}
}

// Unwrap returns the underlying cause
func (e *Error) Unwrap() error {
	return e.Cause
}

// Is matches errors by kind, so errors.Is(err, &Error{Kind: KindTransient})
// holds for any transient error regardless of source and message
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Kind == e.Kind && (t.Source == "" || t.Source == e.Source)
}

// Transient creates a retryable error
func Transient(source, message string, cause error) *Error {
	return &Error{Kind: KindTransient, Source: source, Message: message, Cause: cause}
}

// Permanent creates a non-retryable error
func Permanent(source, message string, cause error) *Error {
	return &Error{Kind: KindPermanent, Source: source, Message: message, Cause: cause}
}

// Timeout creates a deadline-elapsed error
func Timeout(source, message string, cause error) *Error {
	return &Error{Kind: KindTimeout, Source: source, Message: message, Cause: cause}
}

// RateLimit creates an error for a rate-limit slot that could not be acquired
// before the acquisition timeout
func RateLimit(source string) *Error {
	return &Error{Kind: KindRateLimit, Source: source, Message: "rate limit slot not acquired in time"}
}

// Backpressure creates an error for a submission rejected by a full queue
func Backpressure(message string) *Error {
	return &Error{Kind: KindBackpressure, Source: "queue", Message: message}
}

// NoData creates an error for a scan in which every source came back empty
func NoData(message string) *Error {
	return &Error{Kind: KindNoData, Message: message}
}

// KindOf extracts the failure class from an arbitrary error. Context deadline
// errors classify as timeouts; anything unrecognized classifies as transient so
// that one-off infrastructure hiccups are retried within the attempt budget.
func KindOf(err error) Kind {
	if err == nil {
		return ""
	}
	var se *Error
	if errors.As(err, &se) {
		return se.Kind
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return KindTimeout
	}
	return KindTransient
}

// IsRetryable reports whether another attempt could plausibly succeed.
// Rate-limit acquisition failures retry like transients; timeouts retry until
// the caller's overall deadline stops them.
func IsRetryable(err error) bool {
	switch KindOf(err) {
	case KindTransient, KindTimeout, KindRateLimit:
		return true
	}
	return false
}
