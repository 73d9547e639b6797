// Package bootstrap retries the initialization of the service until it succeeds, runs out of retries or reaches its
// deadline. The server only starts accepting traffic once Attempt has returned successfully.
package bootstrap

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/tarancss/chainquery/lib/fault"
)

// DefaultDelay is the pause between two attempts.
const DefaultDelay = time.Second

var attempts = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "chainquery_bootstrap_attempts_total",
	Help: "Initialization attempts by outcome.",
}, []string{"outcome"})

type options struct {
	delay  time.Duration
	logger *slog.Logger
}

// Option customizes Attempt.
type Option func(*options)

// WithDelay sets the pause between attempts.
func WithDelay(d time.Duration) Option {
	return func(o *options) {
		if d >= 0 {
			o.delay = d
		}
	}
}

// WithLogger sets the logger failed attempts are reported to.
func WithLogger(l *slog.Logger) Option {
	return func(o *options) {
		if l != nil {
			o.logger = l
		}
	}
}

// Retries returns a pointer to n, for use as Attempt's maxRetry.
func Retries(n int) *int {
	return &n
}

// Attempt calls initFn until it succeeds. It gives up when maxRetry retries have failed after the first attempt or
// when deadline passes, whichever comes first. A maxRetry of zero fails fast on the first error and a nil maxRetry
// retries until the deadline. Each attempt receives a context that expires at deadline.
//
// On failure the returned error is tagged fault.Bootstrap and wraps the last error from initFn. Releasing whatever
// the failed attempts acquired is up to the caller.
func Attempt[T any](ctx context.Context, initFn func(context.Context) (T, error), maxRetry *int, deadline time.Time,
	opts ...Option) (T, error) {
	o := options{delay: DefaultDelay, logger: slog.Default()}
	for _, opt := range opts {
		opt(&o)
	}

	ctx, cancel := context.WithDeadline(ctx, deadline)
	defer cancel()

	var (
		zero    T
		lastErr error
		n       int
	)

	for {
		n++

		v, err := initFn(ctx)
		if err == nil {
			attempts.WithLabelValues("success").Inc()

			if n > 1 {
				o.logger.Info("Initialization succeeded", slog.Int("attempt", n))
			}

			return v, nil
		}

		attempts.WithLabelValues("failure").Inc()

		lastErr = err
		o.logger.Error("Initialization attempt failed", slog.Int("attempt", n), slog.Any("error", err))

		if maxRetry != nil && n > *maxRetry {
			return zero, fault.New(fault.Bootstrap, "bootstrap", "",
				fmt.Errorf("giving up after %d attempt(s): %w", n, lastErr))
		}

		if ctx.Err() != nil {
			break
		}

		wait := time.NewTimer(o.delay)
		select {
		case <-wait.C:
		case <-ctx.Done():
			wait.Stop()
		}

		if ctx.Err() != nil {
			break
		}
	}

	return zero, fault.New(fault.Bootstrap, "bootstrap", "",
		fmt.Errorf("deadline %s reached after %d attempt(s): %w", deadline.Format(time.RFC3339), n, lastErr))
}
