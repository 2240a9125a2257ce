package llm

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
)

// RetryPolicy wraps a call with exponential backoff, a per-call timeout
// and an overall wall-clock ceiling.
type RetryPolicy struct {
	// MaxRetries is the number of retries after the first attempt.
	MaxRetries int `koanf:"max_retries"`

	// BaseBackoff is the first backoff interval.
	BaseBackoff time.Duration `koanf:"base_backoff"`

	// MaxBackoff caps the backoff interval.
	MaxBackoff time.Duration `koanf:"max_backoff"`

	// CallTimeout bounds each individual attempt.
	CallTimeout time.Duration `koanf:"call_timeout"`

	// OverallTimeout bounds the whole operation across attempts.
	OverallTimeout time.Duration `koanf:"overall_timeout"`
}

// DefaultRetryPolicy returns the standard retry parameters.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		MaxRetries:     3,
		BaseBackoff:    1 * time.Second,
		MaxBackoff:     30 * time.Second,
		CallTimeout:    30 * time.Second,
		OverallTimeout: 2 * time.Minute,
	}
}

// retryableError marks an error as transient.
type retryableError struct {
	err error
}

func (e *retryableError) Error() string { return e.err.Error() }
func (e *retryableError) Unwrap() error { return e.err }

// markRetryable wraps err so IsRetryable reports true.
func markRetryable(err error) error {
	return &retryableError{err: err}
}

// transientSignatures are substrings of error messages, codes or statuses
// known to indicate transient provider failures.
var transientSignatures = []string{
	"rate limit",
	"rate_limit",
	"429",
	"500",
	"502",
	"503",
	"529",
	"timeout",
	"timed out",
	"deadline exceeded",
	"connection reset",
	"connection refused",
	"server error",
	"overloaded",
	"temporarily unavailable",
}

// IsRetryable reports whether an error should be retried: either it is
// explicitly marked retryable, or its message matches a known transient
// signature.
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}
	var re *retryableError
	if errors.As(err, &re) {
		return true
	}
	msg := strings.ToLower(err.Error())
	for _, sig := range transientSignatures {
		if strings.Contains(msg, sig) {
			return true
		}
	}
	return false
}

// AttemptError records one failed attempt for the aggregated failure.
type AttemptError struct {
	Attempt int
	Err     error
}

// RetryExhaustedError surfaces a detailed failure with every attempt's
// error after retries ran out.
type RetryExhaustedError struct {
	Attempts []AttemptError
}

func (e *RetryExhaustedError) Error() string {
	var b strings.Builder
	fmt.Fprintf(&b, "all %d attempts failed:", len(e.Attempts))
	for _, a := range e.Attempts {
		fmt.Fprintf(&b, " [attempt %d: %v]", a.Attempt, a.Err)
	}
	return b.String()
}

// Unwrap exposes the last attempt's error for errors.Is/As.
func (e *RetryExhaustedError) Unwrap() error {
	if len(e.Attempts) == 0 {
		return nil
	}
	return e.Attempts[len(e.Attempts)-1].Err
}

// Do runs fn under the policy. Non-retryable errors return immediately;
// retryable ones back off exponentially until the retry budget or the
// overall ceiling runs out.
func (p RetryPolicy) Do(ctx context.Context, fn func(ctx context.Context) error) error {
	if p.OverallTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, p.OverallTimeout)
		defer cancel()
	}

	var attempts []AttemptError
	backoff := p.BaseBackoff
	for attempt := 0; attempt <= p.MaxRetries; attempt++ {
		if attempt > 0 {
			select {
			case <-time.After(backoff):
			case <-ctx.Done():
				attempts = append(attempts, AttemptError{Attempt: attempt, Err: ctx.Err()})
				return &RetryExhaustedError{Attempts: attempts}
			}
			backoff *= 2
			if p.MaxBackoff > 0 && backoff > p.MaxBackoff {
				backoff = p.MaxBackoff
			}
		}

		attemptCtx := ctx
		var cancel context.CancelFunc
		if p.CallTimeout > 0 {
			attemptCtx, cancel = context.WithTimeout(ctx, p.CallTimeout)
		}
		err := fn(attemptCtx)
		if cancel != nil {
			cancel()
		}
		if err == nil {
			return nil
		}
		attempts = append(attempts, AttemptError{Attempt: attempt + 1, Err: err})
		if !IsRetryable(err) {
			return err
		}
		if ctx.Err() != nil {
			return &RetryExhaustedError{Attempts: attempts}
		}
	}
	return &RetryExhaustedError{Attempts: attempts}
}
