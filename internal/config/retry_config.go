package config

import (
	"time"
)

// RetryConfig holds the retry policy for optimistic state writes.
type RetryConfig struct {
	// MaxRetries is the number of re-reads after a stale write
	MaxRetries int
	// InitialDelay is the initial delay before first retry
	InitialDelay time.Duration
	// MaxDelay is the maximum delay between retries
	MaxDelay time.Duration
	// Multiplier is the exponential backoff multiplier
	Multiplier float64
	// Jitter randomizes delays so concurrent writers spread out
	Jitter bool
}

// GetRetryConfig returns the state write retry configuration
func (c Config) GetRetryConfig() RetryConfig {
	if c.IsTest() {
		return RetryConfig{MaxRetries: c.StateWriteRetries, InitialDelay: time.Millisecond, MaxDelay: 5 * time.Millisecond, Multiplier: 2, Jitter: false}
	}
	return RetryConfig{
		MaxRetries:   c.StateWriteRetries,
		InitialDelay: c.StateWriteInitialDelay,
		MaxDelay:     c.StateWriteMaxDelay,
		Multiplier:   c.StateWriteMultiplier,
		Jitter:       c.StateWriteJitter,
	}
}
