// Package mretry provides bounded exponential backoff configuration,
// modeled on the teacher's pkg/mretry. Used for C2's optimistic-lock
// retry (3 attempts, 100ms initial) and C5's webhook retry (5
// attempts, exponential, cap at 5) — spec §5's retry discipline: "no
// unbounded retries anywhere."
package mretry

import (
	"errors"
	"math"
	"math/rand"
	"time"
)

// Config controls a bounded exponential-backoff retry loop.
type Config struct {
	MaxRetries     int
	InitialBackoff time.Duration
	MaxBackoff     time.Duration
	JitterFactor   float64
}

// Defaults for the wallet optimistic-lock retry path (spec §4.2:
// "retry up to 3 times with exponential backoff starting at 100 ms").
const (
	WalletMaxRetries     = 3
	WalletInitialBackoff = 100 * time.Millisecond
	WalletMaxBackoff     = 2 * time.Second
	WalletJitterFactor   = 0.25
)

// Defaults for the webhook retry path (spec §4.5/§5: "bounded (5,
// exponential)").
const (
	WebhookMaxRetries     = 5
	WebhookInitialBackoff = 1 * time.Second
	WebhookMaxBackoff     = 30 * time.Minute
	WebhookJitterFactor   = 0.25
)

// DefaultWalletConfig returns the spec §4.2 retry configuration.
func DefaultWalletConfig() Config {
	return Config{
		MaxRetries:     WalletMaxRetries,
		InitialBackoff: WalletInitialBackoff,
		MaxBackoff:     WalletMaxBackoff,
		JitterFactor:   WalletJitterFactor,
	}
}

// DefaultWebhookConfig returns the spec §4.5 retry configuration.
func DefaultWebhookConfig() Config {
	return Config{
		MaxRetries:     WebhookMaxRetries,
		InitialBackoff: WebhookInitialBackoff,
		MaxBackoff:     WebhookMaxBackoff,
		JitterFactor:   WebhookJitterFactor,
	}
}

func (c Config) WithMaxRetries(n int) Config     { c.MaxRetries = n; return c }
func (c Config) WithInitialBackoff(d time.Duration) Config { c.InitialBackoff = d; return c }
func (c Config) WithMaxBackoff(d time.Duration) Config     { c.MaxBackoff = d; return c }
func (c Config) WithJitterFactor(f float64) Config         { c.JitterFactor = f; return c }

// Validate reports whether the configuration is usable.
func (c Config) Validate() error {
	if c.MaxRetries < 0 {
		return errors.New("mretry: MaxRetries must be >= 0")
	}

	if c.InitialBackoff <= 0 || c.MaxBackoff <= 0 {
		return errors.New("mretry: backoff durations must be positive")
	}

	if c.JitterFactor < 0 || c.JitterFactor > 1 {
		return errors.New("mretry: JitterFactor must be in [0,1]")
	}

	return nil
}

// Backoff returns the delay to wait before retry attempt n (1-indexed),
// exponential and capped at MaxBackoff; jitter of up to JitterFactor is
// then added on top, so a jittered delay can exceed MaxBackoff.
func (c Config) Backoff(attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}

	raw := float64(c.InitialBackoff) * math.Pow(2, float64(attempt-1))
	if raw > float64(c.MaxBackoff) {
		raw = float64(c.MaxBackoff)
	}

	if c.JitterFactor > 0 {
		jitter := raw * c.JitterFactor * rand.Float64()
		raw += jitter
	}

	return time.Duration(raw)
}
