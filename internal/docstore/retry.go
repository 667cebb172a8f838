package docstore

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/charmbracelet/log"

	"rememberme/api/internal/apperr"
	"rememberme/api/internal/metrics"
)

const (
	DefaultMaxAttempts = 5
	DefaultRetryBase   = 20 * time.Millisecond
)

type RetryOptions struct {
	MaxAttempts int
	BaseDelay   time.Duration
}

// Retrying turns a Backend into a Store by re-running conflicting
// transactions with exponential backoff.
type Retrying struct {
	Backend
	opts RetryOptions
}

func NewRetrying(backend Backend, opts RetryOptions) *Retrying {
	if opts.MaxAttempts <= 0 {
		opts.MaxAttempts = DefaultMaxAttempts
	}
	if opts.BaseDelay <= 0 {
		opts.BaseDelay = DefaultRetryBase
	}
	return &Retrying{Backend: backend, opts: opts}
}

func (r *Retrying) RunTransaction(ctx context.Context, fn TxFunc) error {
	waitForRetry := func(attempt int) error {
		delay := r.opts.BaseDelay << (attempt - 1)
		timer := time.NewTimer(delay)
		defer timer.Stop()
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-timer.C:
			return nil
		}
	}

	var lastErr error
	for attempt := 1; attempt <= r.opts.MaxAttempts; attempt++ {
		err := r.Attempt(ctx, fn)
		if err == nil {
			metrics.TxAttempts.WithLabelValues("committed").Inc()
			return nil
		}
		if !errors.Is(err, ErrConflict) {
			metrics.TxAttempts.WithLabelValues("failed").Inc()
			return err
		}
		metrics.TxAttempts.WithLabelValues("conflict").Inc()
		lastErr = err
		log.Debug("transaction conflict, retrying", "attempt", attempt)
		if attempt == r.opts.MaxAttempts {
			break
		}
		if waitErr := waitForRetry(attempt); waitErr != nil {
			return apperr.Unavailable(waitErr)
		}
	}
	log.Warn("transaction retries exhausted", "attempts", r.opts.MaxAttempts)
	return apperr.Internal(fmt.Errorf("after %d attempts: %w", r.opts.MaxAttempts, lastErr))
}
