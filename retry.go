package listora

import (
	"context"
	"errors"
	log "log/slog"
	"net/http"
	"time"

	"github.com/sethvargo/go-retry"
)

// HTTPStatusCoder is implemented by backend errors that carry an HTTP status
// code (see sheets.StatusError). Only the numeric status class is interpreted
// here; everything else about the error is opaque.
type HTTPStatusCoder interface {
	HTTPStatus() int
}

// Retry executes task with exponential backoff (base delay doubling per
// attempt) up to o.MaxRetryAttempts total invocations. Only errors classified
// retryable by ShouldRetry are retried; any other error fails on first
// occurrence. If attempts are exhausted, gaveUpTask is invoked (when not nil)
// and the last error is returned.
func Retry(ctx context.Context, o Options, task func(ctx context.Context) error, gaveUpTask func(ctx context.Context)) error {
	attempts := o.MaxRetryAttempts
	if attempts < 1 {
		attempts = 1
	}
	b := retry.NewExponential(o.RetryBaseDelay)
	err := retry.Do(ctx, retry.WithMaxRetries(uint64(attempts-1), b), func(ctx context.Context) error {
		if err := task(ctx); err != nil {
			if ShouldRetry(err) {
				return retry.RetryableError(err)
			}
			return err
		}
		return nil
	})
	if err != nil && ShouldRetry(err) {
		log.Warn(err.Error() + ", gave up")
		if gaveUpTask != nil {
			gaveUpTask(ctx)
		}
	}
	return err
}

// ShouldRetry reports whether the error is transient: a rate limit or an
// upstream server error. Status codes 429, 500, 502, 503 and 504 are
// retryable; everything else (including errors carrying no status at all)
// is permanent.
func ShouldRetry(err error) bool {
	if err == nil {
		return false
	}
	// Context cancellations/timeouts are permanent from the caller's POV.
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	var sc HTTPStatusCoder
	if !errors.As(err, &sc) {
		return false
	}
	switch sc.HTTPStatus() {
	case http.StatusTooManyRequests,
		http.StatusInternalServerError,
		http.StatusBadGateway,
		http.StatusServiceUnavailable,
		http.StatusGatewayTimeout:
		return true
	}
	return false
}

// backoffSchedule returns the delays Retry would sleep between attempts,
// for logging and tests.
func backoffSchedule(o Options) []time.Duration {
	if o.MaxRetryAttempts < 2 {
		return nil
	}
	out := make([]time.Duration, 0, o.MaxRetryAttempts-1)
	d := o.RetryBaseDelay
	for i := 0; i < o.MaxRetryAttempts-1; i++ {
		out = append(out, d)
		d *= 2
	}
	return out
}
