package client

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"strconv"
	"syscall"
	"time"

	"github.com/sony/gobreaker"
)

// Common errors returned by the client. FetchError matches them with
// errors.Is.
var (
	// ErrRetryExhausted is returned when all retry attempts are exhausted.
	ErrRetryExhausted = errors.New("retry attempts exhausted")

	// ErrContractMismatch marks an upstream response that no longer matches
	// the expected shape.
	ErrContractMismatch = errors.New("upstream contract mismatch")

	// ErrCancelled is returned when the caller's context ends a fetch.
	ErrCancelled = errors.New("fetch cancelled")

	// ErrUpstreamUnavailable is returned when an upstream cannot serve the
	// request after retries, or its circuit breaker is open.
	ErrUpstreamUnavailable = errors.New("upstream unavailable")
)

// ErrorClass represents a classification of fetch failures.
type ErrorClass string

const (
	// ClassNetwork represents connection-level failures.
	ClassNetwork ErrorClass = "network"

	// ClassTimeout represents an attempt exceeding its deadline.
	ClassTimeout ErrorClass = "timeout"

	// ClassServer represents 5xx responses.
	ClassServer ErrorClass = "server"

	// ClassClient represents any other non-success status.
	ClassClient ErrorClass = "client"

	// ClassContract represents malformed or unexpected response bodies.
	ClassContract ErrorClass = "contract"

	// ClassCancelled represents caller-initiated cancellation.
	ClassCancelled ErrorClass = "cancelled"

	// ClassBreakerOpen represents a call rejected by an open circuit breaker.
	ClassBreakerOpen ErrorClass = "breaker_open"

	ClassUnknown ErrorClass = "unknown"
)

// Retryable reports whether failures of this class are attempted again.
func (c ErrorClass) Retryable() bool {
	switch c {
	case ClassNetwork, ClassTimeout, ClassServer:
		return true
	default:
		return false
	}
}

// StatusError is a non-success upstream HTTP status.
type StatusError struct {
	StatusCode int
	Status     string

	// RetryAfter is the upstream's Retry-After hint, if any.
	RetryAfter time.Duration
}

// Error implements the error interface.
func (e *StatusError) Error() string {
	return fmt.Sprintf("upstream status %d", e.StatusCode)
}

func newStatusError(resp *http.Response) *StatusError {
	return &StatusError{
		StatusCode: resp.StatusCode,
		Status:     resp.Status,
		RetryAfter: parseRetryAfter(resp.Header.Get("Retry-After"), time.Now()),
	}
}

func parseRetryAfter(v string, now time.Time) time.Duration {
	if v == "" {
		return 0
	}
	if secs, err := strconv.Atoi(v); err == nil && secs > 0 {
		return time.Duration(secs) * time.Second
	}
	if at, err := http.ParseTime(v); err == nil && at.After(now) {
		return at.Sub(now)
	}
	return 0
}

// ContractError describes how an upstream response broke its contract.
type ContractError struct {
	Detail string
	Err    error
}

// Error implements the error interface.
func (e *ContractError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", ErrContractMismatch, e.Detail, e.Err)
	}
	return fmt.Sprintf("%s: %s", ErrContractMismatch, e.Detail)
}

// Unwrap implements error unwrapping for errors.Is/As.
func (e *ContractError) Unwrap() error { return e.Err }

// Is matches ErrContractMismatch.
func (e *ContractError) Is(target error) bool { return target == ErrContractMismatch }

// FetchError is the terminal error of a fetch, with its classification.
type FetchError struct {
	Class      ErrorClass
	StatusCode int
	Attempts   int

	// Exhausted is set when a retryable failure used up every attempt.
	Exhausted bool

	// RetryAfter is a hint for how long callers should wait.
	RetryAfter time.Duration

	Err error
}

// Error implements the error interface.
func (e *FetchError) Error() string {
	msg := fmt.Sprintf("fetch %s error after %d attempt(s)", e.Class, e.Attempts)
	if e.StatusCode != 0 {
		msg += fmt.Sprintf(" (status %d)", e.StatusCode)
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

// Unwrap implements error unwrapping for errors.Is/As.
func (e *FetchError) Unwrap() error {
	return e.Err
}

// Is maps the classification onto the package sentinels.
func (e *FetchError) Is(target error) bool {
	switch target {
	case ErrRetryExhausted:
		return e.Exhausted
	case ErrContractMismatch:
		return e.Class == ClassContract
	case ErrCancelled:
		return e.Class == ClassCancelled
	case ErrUpstreamUnavailable:
		return e.Exhausted || e.Class == ClassBreakerOpen
	default:
		return false
	}
}

// Classify categorizes err, returned by an attempt made under ctx's
// lifetime. A done parent context always classifies as cancellation.
func Classify(ctx context.Context, err error) ErrorClass {
	if err == nil {
		return ""
	}
	if ctx != nil && ctx.Err() != nil {
		return ClassCancelled
	}

	var (
		statusErr *StatusError
		netErr    net.Error
	)
	switch {
	case errors.Is(err, context.Canceled), errors.Is(err, ErrCancelled):
		return ClassCancelled
	case errors.Is(err, gobreaker.ErrOpenState), errors.Is(err, gobreaker.ErrTooManyRequests):
		return ClassBreakerOpen
	case errors.Is(err, ErrContractMismatch):
		return ClassContract
	case errors.As(err, &statusErr):
		if statusErr.StatusCode >= 500 {
			return ClassServer
		}
		return ClassClient
	case errors.Is(err, context.DeadlineExceeded):
		return ClassTimeout
	case errors.As(err, &netErr) && netErr.Timeout():
		return ClassTimeout
	case errors.As(err, &netErr),
		errors.Is(err, io.ErrUnexpectedEOF),
		errors.Is(err, io.EOF),
		errors.Is(err, syscall.ECONNREFUSED),
		errors.Is(err, syscall.ECONNRESET):
		return ClassNetwork
	default:
		return ClassUnknown
	}
}

func statusOf(err error) (int, time.Duration) {
	var statusErr *StatusError
	if errors.As(err, &statusErr) {
		return statusErr.StatusCode, statusErr.RetryAfter
	}
	return 0, 0
}
