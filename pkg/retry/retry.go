// Package retry wraps outbound calls to the completion and workflow
// services with a bounded attempt budget and exponential backoff.
package retry

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/pennyworth-bot/pennyworth/pkg/logger"
)

// TransientError marks a failure worth retrying: network trouble,
// rate limits, 5xx-equivalent provider errors.
type TransientError struct {
	Err error
}

func (e *TransientError) Error() string { return e.Err.Error() }
func (e *TransientError) Unwrap() error { return e.Err }

// PermanentError marks a failure retrying will not fix: auth or
// validation problems. It propagates immediately without consuming budget.
type PermanentError struct {
	Err error
}

func (e *PermanentError) Error() string { return e.Err.Error() }
func (e *PermanentError) Unwrap() error { return e.Err }

func Transient(err error) error {
	if err == nil {
		return nil
	}
	return &TransientError{Err: err}
}

func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return &PermanentError{Err: err}
}

func IsPermanent(err error) bool {
	var pe *PermanentError
	return errors.As(err, &pe)
}

// ServiceUnavailableError aggregates an exhausted attempt budget into a
// single outcome carrying the last underlying failure.
type ServiceUnavailableError struct {
	Attempts int
	Last     error
}

func (e *ServiceUnavailableError) Error() string {
	return fmt.Sprintf("service unavailable after %d attempts: %v", e.Attempts, e.Last)
}

func (e *ServiceUnavailableError) Unwrap() error { return e.Last }

func IsUnavailable(err error) bool {
	var ue *ServiceUnavailableError
	return errors.As(err, &ue)
}

type Policy struct {
	MaxAttempts int
	BaseDelay   time.Duration
	Multiplier  float64
}

func (p Policy) normalized() Policy {
	if p.MaxAttempts < 1 {
		p.MaxAttempts = 3
	}
	if p.BaseDelay <= 0 {
		p.BaseDelay = 500 * time.Millisecond
	}
	if p.Multiplier < 1 {
		p.Multiplier = 2.0
	}
	return p
}

// Do runs op until it succeeds, fails permanently, or the attempt budget
// runs out. Errors not classified as permanent are treated as transient.
func Do[T any](ctx context.Context, p Policy, name string, op func(ctx context.Context) (T, error)) (T, error) {
	var zero T
	p = p.normalized()

	delay := p.BaseDelay
	var last error
	for attempt := 1; attempt <= p.MaxAttempts; attempt++ {
		result, err := op(ctx)
		if err == nil {
			return result, nil
		}
		if IsPermanent(err) {
			return zero, err
		}
		last = err

		if attempt == p.MaxAttempts {
			break
		}
		logger.WarnCF("retry", "Transient failure, backing off", map[string]interface{}{
			"operation": name,
			"attempt":   attempt,
			"delay":     delay.String(),
			"error":     err.Error(),
		})
		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return zero, ctx.Err()
		}
		delay = time.Duration(float64(delay) * p.Multiplier)
	}

	return zero, &ServiceUnavailableError{Attempts: p.MaxAttempts, Last: last}
}
