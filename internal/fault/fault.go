// Package fault defines the error taxonomy shared by the director pipeline
// and the performance engine. Callers distinguish kinds with errors.As and
// decide retry behavior through Retryable.
package fault

import (
	"context"
	"errors"
	"fmt"
)

// NetworkError reports a transport or HTTP failure while calling the model
// service. StatusCode is 0 for connection-level failures.
type NetworkError struct {
	Op           string
	StatusCode   int
	RetryAfterMS int64
	Timeout      bool
	Err          error
}

func (e *NetworkError) Error() string {
	switch {
	case e.StatusCode > 0:
		return fmt.Sprintf("%s: http status %d", e.Op, e.StatusCode)
	case e.Timeout:
		return fmt.Sprintf("%s: timeout: %v", e.Op, e.Err)
	default:
		return fmt.Sprintf("%s: %v", e.Op, e.Err)
	}
}

func (e *NetworkError) Unwrap() error { return e.Err }

// Temporary reports whether a retry could plausibly succeed. Client errors
// other than timeout/throttle are permanent.
func (e *NetworkError) Temporary() bool {
	if e.StatusCode == 0 {
		return true
	}
	switch {
	case e.StatusCode == 408 || e.StatusCode == 429:
		return true
	case e.StatusCode >= 500:
		return true
	default:
		return false
	}
}

// ParseError reports model output that could not be bound to the expected
// plan structure. Parse failures are retryable; the next attempt may yield
// well-formed output.
type ParseError struct {
	Stage  string
	Detail string
	Err    error
}

func (e *ParseError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Stage, e.Detail, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Stage, e.Detail)
}

func (e *ParseError) Unwrap() error { return e.Err }

// CancellationError reports a run aborted by its caller. It is distinct from
// failure: no fallback is produced and no retry is attempted.
type CancellationError struct {
	Err error
}

func (e *CancellationError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("run cancelled: %v", e.Err)
	}
	return "run cancelled"
}

func (e *CancellationError) Unwrap() error { return e.Err }

// ExecutionError reports a failed action dispatch during playback. The
// engine logs these and continues; they never abort a performance.
type ExecutionError struct {
	Action string
	TimeMS int64
	Err    error
}

func (e *ExecutionError) Error() string {
	return fmt.Sprintf("action %s at %dms: %v", e.Action, e.TimeMS, e.Err)
}

func (e *ExecutionError) Unwrap() error { return e.Err }

// ConfigError reports a missing or invalid configuration value. Config
// errors surface immediately and are never retried.
type ConfigError struct {
	Field  string
	Detail string
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("config %s: %s", e.Field, e.Detail)
}

// Cancelled wraps err as a CancellationError, defaulting to context.Canceled.
func Cancelled(err error) error {
	if err == nil {
		err = context.Canceled
	}
	return &CancellationError{Err: err}
}

// IsCancellation reports whether err is a cancellation in any form: the
// typed error, context.Canceled, or a wrapped occurrence of either.
func IsCancellation(err error) bool {
	if err == nil {
		return false
	}
	var ce *CancellationError
	if errors.As(err, &ce) {
		return true
	}
	return errors.Is(err, context.Canceled)
}

// Retryable reports whether another attempt is worthwhile. Cancellation and
// configuration errors are never retryable; parse errors always are;
// network errors defer to Temporary.
func Retryable(err error) bool {
	if err == nil || IsCancellation(err) {
		return false
	}
	var cfg *ConfigError
	if errors.As(err, &cfg) {
		return false
	}
	var pe *ParseError
	if errors.As(err, &pe) {
		return true
	}
	var ne *NetworkError
	if errors.As(err, &ne) {
		return ne.Temporary()
	}
	return false
}

// RetryAfterMS extracts a server-requested backoff, 0 when none applies.
func RetryAfterMS(err error) int64 {
	var ne *NetworkError
	if errors.As(err, &ne) {
		return ne.RetryAfterMS
	}
	return 0
}
