package utils

import (
	"context"
	"math/rand"
	"time"

	modguard "github.com/heibot/modguard"
)

// Backoff describes how a failed call is retried. The zero value makes a
// single attempt.
type Backoff struct {
	// Retries is the number of attempts made after the first one.
	Retries int

	// Base is the wait before the first retry. Each later wait is Factor
	// times the previous one, up to Cap.
	Base   time.Duration
	Cap    time.Duration
	Factor float64

	// Jitter spreads each wait by up to this fraction in either direction.
	Jitter float64

	// ShouldRetry decides whether err is worth another attempt.
	// Defaults to modguard.IsRetryable.
	ShouldRetry func(err error) bool

	// OnRetry observes each retry before its wait starts.
	OnRetry func(attempt int, err error, wait time.Duration)
}

// PostingPathBackoff returns short waits for calls made while a message
// is being posted.
func PostingPathBackoff() Backoff {
	return Backoff{
		Retries: 2,
		Base:    100 * time.Millisecond,
		Cap:     time.Second,
		Factor:  2,
		Jitter:  0.1,
	}
}

func (b Backoff) normalized() Backoff {
	if b.ShouldRetry == nil {
		b.ShouldRetry = modguard.IsRetryable
	}
	if b.Base <= 0 {
		b.Base = 100 * time.Millisecond
	}
	if b.Cap < b.Base {
		b.Cap = b.Base
	}
	if b.Factor < 1 {
		b.Factor = 2
	}
	return b
}

// Wait returns the pause before retry number attempt, counted from zero.
func (b Backoff) Wait(attempt int) time.Duration {
	b = b.normalized()
	wait := float64(b.Base)
	for i := 0; i < attempt && wait < float64(b.Cap); i++ {
		wait *= b.Factor
	}
	if b.Jitter > 0 {
		wait += (rand.Float64()*2 - 1) * b.Jitter * wait
	}
	if wait > float64(b.Cap) {
		wait = float64(b.Cap)
	}
	return time.Duration(wait)
}

// Retry runs fn until it succeeds, fails with an error ShouldRetry rejects,
// runs out of retries or ctx ends. It returns the last error from fn, or
// ctx.Err() when ctx ended while waiting.
func Retry(ctx context.Context, b Backoff, fn func(ctx context.Context) error) error {
	_, err := RetryValue(ctx, b, func(ctx context.Context) (struct{}, error) {
		return struct{}{}, fn(ctx)
	})
	return err
}

// RetryValue is Retry for calls that produce a value.
func RetryValue[T any](ctx context.Context, b Backoff, fn func(ctx context.Context) (T, error)) (T, error) {
	b = b.normalized()
	for attempt := 0; ; attempt++ {
		val, err := fn(ctx)
		if err == nil || attempt == b.Retries || !b.ShouldRetry(err) {
			return val, err
		}

		wait := b.Wait(attempt)
		if b.OnRetry != nil {
			b.OnRetry(attempt+1, err, wait)
		}
		if err := sleep(ctx, wait); err != nil {
			var zero T
			return zero, err
		}
	}
}

func sleep(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
