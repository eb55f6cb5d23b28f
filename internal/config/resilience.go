package config

import "time"

// Retry configuration constants
const (
	// API Request retry configuration
	APIRequestMaxAttempts       = 3
	APIRequestInitialWait       = 1 * time.Second
	APIRequestMaxWait           = 10 * time.Second
	APIRequestBackoffMultiplier = 2.0
	APIRequestTimeout           = 30 * time.Second

	// Store writes retry inside SQLite's busy handler, so only the timeout matters
	StoreWriteMaxAttempts       = 1
	StoreWriteInitialWait       = 0
	StoreWriteMaxWait           = 0
	StoreWriteBackoffMultiplier = 1.0
	StoreWriteTimeout           = 5 * time.Second

	// Sheet Write retry configuration
	SheetWriteMaxAttempts       = 3
	SheetWriteInitialWait       = 1 * time.Second
	SheetWriteMaxWait           = 10 * time.Second
	SheetWriteBackoffMultiplier = 2.0
	SheetWriteTimeout           = 30 * time.Second
)

// RetryConfig defines retry behavior for operations
type RetryConfig struct {
	MaxAttempts int
	InitialWait time.Duration
	MaxWait     time.Duration
	Multiplier  float64
	Timeout     time.Duration
}

// Backoff returns the wait before retry number attempt (1-based), growing by
// Multiplier from InitialWait and capped at MaxWait.
func (c RetryConfig) Backoff(attempt int) time.Duration {
	if attempt < 1 || c.InitialWait <= 0 {
		return 0
	}
	wait := float64(c.InitialWait)
	for i := 1; i < attempt; i++ {
		wait *= c.Multiplier
		if c.MaxWait > 0 && wait >= float64(c.MaxWait) {
			return c.MaxWait
		}
	}
	if c.MaxWait > 0 && time.Duration(wait) > c.MaxWait {
		return c.MaxWait
	}
	return time.Duration(wait)
}

// ResilienceConfig contains all retry configurations
type ResilienceConfig struct {
	APIRequest RetryConfig
	StoreWrite RetryConfig
	SheetWrite RetryConfig
}

// DefaultResilienceConfig provides sensible defaults
var DefaultResilienceConfig = ResilienceConfig{
	APIRequest: RetryConfig{
		MaxAttempts: APIRequestMaxAttempts,
		InitialWait: APIRequestInitialWait,
		MaxWait:     APIRequestMaxWait,
		Multiplier:  APIRequestBackoffMultiplier,
		Timeout:     APIRequestTimeout,
	},
	StoreWrite: RetryConfig{
		MaxAttempts: StoreWriteMaxAttempts,
		InitialWait: StoreWriteInitialWait,
		MaxWait:     StoreWriteMaxWait,
		Multiplier:  StoreWriteBackoffMultiplier,
		Timeout:     StoreWriteTimeout,
	},
	SheetWrite: RetryConfig{
		MaxAttempts: SheetWriteMaxAttempts,
		InitialWait: SheetWriteInitialWait,
		MaxWait:     SheetWriteMaxWait,
		Multiplier:  SheetWriteBackoffMultiplier,
		Timeout:     SheetWriteTimeout,
	},
}
