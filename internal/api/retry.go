package api

import (
	"context"
	"math/rand"
	"time"

	"github.com/dl-alexandre/gdmirror/internal/logging"
	"github.com/dl-alexandre/gdmirror/internal/utils"
)

// Retrier re-issues rate-limited Drive calls with exponential backoff.
// Only rate-limit rejections are retried; every other failure is returned
// after the call that produced it.
type Retrier struct {
	maxAttempts int
	logger      logging.Logger

	// Sleep waits for d or until ctx is done. Tests replace it.
	Sleep func(ctx context.Context, d time.Duration) error
	// Jitter returns the random part of a backoff, in [0, 1s).
	Jitter func() time.Duration
}

// NewRetrier returns a Retrier making at most maxAttempts calls.
func NewRetrier(maxAttempts int, logger logging.Logger) *Retrier {
	if maxAttempts < 1 {
		maxAttempts = utils.DefaultMaxAttempts
	}
	if logger == nil {
		logger = logging.NewNoOpLogger()
	}
	return &Retrier{
		maxAttempts: maxAttempts,
		logger:      logger,
		Sleep:       sleepContext,
		Jitter:      defaultJitter,
	}
}

// Backoff is the deterministic part of the wait after attempt n (0-indexed).
func Backoff(attempt int) time.Duration {
	return time.Duration(1<<uint(attempt)) * time.Second
}

// Do calls fn until it succeeds, fails permanently, or maxAttempts calls
// have been made. The last Result is returned. No wait follows the final
// attempt.
func (r *Retrier) Do(ctx context.Context, op string, fn func(ctx context.Context) Result) Result {
	logger := r.logger.WithContext(ctx)

	var res Result
	for attempt := 0; attempt < r.maxAttempts; attempt++ {
		res = fn(ctx)
		if res.OK() || !res.RateLimited() {
			if attempt > 0 && res.OK() {
				logger.Debug("Call succeeded after retry",
					logging.F("op", op),
					logging.F("attempts", attempt+1),
				)
			}
			return res
		}

		if attempt == r.maxAttempts-1 {
			break
		}

		delay := Backoff(attempt) + r.Jitter()
		logger.Warn("Rate limited, backing off",
			logging.F("op", op),
			logging.F("attempt", attempt+1),
			logging.F("status", res.Status),
			logging.F("reason", res.Reason),
			logging.F("delay_ms", delay.Milliseconds()),
		)
		if err := r.Sleep(ctx, delay); err != nil {
			logger.Warn("Backoff interrupted", logging.F("op", op), logging.F("error", err))
			return res
		}
	}

	logger.Error("Giving up after repeated rate limiting",
		logging.F("op", op),
		logging.F("attempts", r.maxAttempts),
		logging.F("status", res.Status),
		logging.F("reason", res.Reason),
	)
	return res
}

func sleepContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

func defaultJitter() time.Duration {
	return time.Duration(rand.Int63n(int64(time.Second)))
}
