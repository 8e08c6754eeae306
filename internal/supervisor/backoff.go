package supervisor

import (
	"errors"
	"fmt"
	"math"
	"math/rand"
	"time"
)

var ErrInvalidBackoff = errors.New("supervisor: invalid backoff")

// BackoffConfig shapes the delay between reconnect attempts.
type BackoffConfig struct {
	InitialDelay time.Duration
	Multiplier   float64
	MaxDelay     time.Duration
	Jitter       bool
}

func DefaultBackoff() BackoffConfig {
	return BackoffConfig{
		InitialDelay: 250 * time.Millisecond,
		Multiplier:   2.0,
		MaxDelay:     5 * time.Second,
		Jitter:       true,
	}
}

// Validate rejects negative delays and a multiplier below 1, which would shrink
// the delay between attempts.
func (c BackoffConfig) Validate() error {
	if c.InitialDelay < 0 || c.MaxDelay < 0 {
		return fmt.Errorf("%w: delays must not be negative", ErrInvalidBackoff)
	}
	if math.IsNaN(c.Multiplier) || c.Multiplier < 1.0 {
		return fmt.Errorf("%w: multiplier must be >= 1, got %v", ErrInvalidBackoff, c.Multiplier)
	}
	return nil
}

// NextBackoffDelay returns the delay before attempt N (1-based). Jitter scales the
// delay by a factor in [0.5, 1.5). cfg is assumed valid; a zero InitialDelay
// retries immediately.
func NextBackoffDelay(cfg BackoffConfig, attempt int, rng *rand.Rand) time.Duration {
	if cfg.InitialDelay <= 0 {
		return 0
	}
	if attempt < 1 {
		attempt = 1
	}
	delay := float64(cfg.InitialDelay) * math.Pow(cfg.Multiplier, float64(attempt-1))
	if cfg.MaxDelay > 0 && delay > float64(cfg.MaxDelay) {
		delay = float64(cfg.MaxDelay)
	}
	if cfg.Jitter {
		f := 1.0
		if rng != nil {
			f = 0.5 + rng.Float64()
		}
		delay *= f
	}
	return time.Duration(delay)
}
