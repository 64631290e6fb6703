// Package retry provides a bounded retry loop with exponential backoff and
// jitter. The SSH executor uses it around dialing, where transient network
// failures are common and a single failed dial should not mark a host dark.
package retry

import (
	"context"
	"fmt"
	"math"
	"math/rand"
	"sync"
	"time"

	droverlog "github.com/drover-labs/drover/pkg/drover/v1/log"
)

// Operation is the retried unit of work.
type Operation func(ctx context.Context) error

// Config bounds one retry loop.
type Config struct {
	// Attempts is the total number of tries, including the first. Values
	// below 1 mean a single attempt.
	Attempts int
	// Delay is the base wait between attempts.
	Delay time.Duration
	// MaxDelay caps the backed-off wait. Zero means uncapped.
	MaxDelay time.Duration
	// BackoffFactor multiplies the delay after each failure. Values below
	// 1.0 mean a constant delay.
	BackoffFactor float64
	// Jitter randomizes each wait by up to the given fraction (0..1).
	Jitter float64
	// Label names the operation in log lines.
	Label string
}

// Helper runs operations under a retry policy.
type Helper struct {
	log droverlog.Logger

	mu         sync.Mutex
	randSource *rand.Rand
}

func NewHelper(log droverlog.Logger) *Helper {
	if log == nil {
		panic("retry.NewHelper requires a non-nil logger")
	}
	return &Helper{
		log:        log,
		randSource: rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

// Do runs op until it succeeds, the attempts are exhausted, or the context
// ends. It returns the last error op produced.
func (h *Helper) Do(ctx context.Context, cfg Config, op Operation) error {
	if cfg.Attempts <= 0 {
		cfg.Attempts = 1
	}
	if cfg.BackoffFactor < 1.0 {
		cfg.BackoffFactor = 1.0
	}
	if cfg.Jitter < 0.0 {
		cfg.Jitter = 0.0
	} else if cfg.Jitter > 1.0 {
		cfg.Jitter = 1.0
	}

	logPrefix := ""
	if cfg.Label != "" {
		logPrefix = cfg.Label + ": "
	}

	var lastErr error
	for attempt := 1; attempt <= cfg.Attempts; attempt++ {
		select {
		case <-ctx.Done():
			if lastErr == nil {
				return ctx.Err()
			}
			return fmt.Errorf("cancelled after %d attempts with last error: %w", attempt-1, lastErr)
		default:
		}

		lastErr = op(ctx)
		if lastErr == nil {
			if attempt > 1 {
				h.log.Infof("%ssucceeded on attempt %d/%d", logPrefix, attempt, cfg.Attempts)
			}
			return nil
		}
		if attempt == cfg.Attempts {
			break
		}

		wait := float64(cfg.Delay) * math.Pow(cfg.BackoffFactor, float64(attempt-1))
		if wait > float64(math.MaxInt64) {
			wait = float64(math.MaxInt64)
		}
		waitDelay := time.Duration(wait)
		if cfg.Jitter > 0.0 {
			h.mu.Lock()
			jitterFactor := cfg.Jitter * (h.randSource.Float64()*2.0 - 1.0)
			h.mu.Unlock()
			waitDelay += time.Duration(float64(waitDelay) * jitterFactor)
			if waitDelay < 0 {
				waitDelay = 0
			}
		}
		if cfg.MaxDelay > 0 && waitDelay > cfg.MaxDelay {
			waitDelay = cfg.MaxDelay
		}

		h.log.Warnf("%sattempt %d/%d failed (retrying in %v): %v",
			logPrefix, attempt, cfg.Attempts, waitDelay.Truncate(time.Millisecond), lastErr)

		select {
		case <-time.After(waitDelay):
		case <-ctx.Done():
			return fmt.Errorf("retry delay cancelled after attempt %d with error: %w", attempt, lastErr)
		}
	}
	return lastErr
}
