package linkcheck

import "time"

const (
	DefaultTimeout      = 15 * time.Second
	DefaultMaxRetries   = 2
	DefaultRetryDelay   = 2 * time.Second
	DefaultMaxRedirects = 10
	DefaultUserAgent    = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/124.0.0.0 Safari/537.36"
)

// Config tunes the prober and scanner. It is passed in at construction and never mutated.
type Config struct {
	Timeout         time.Duration
	MaxRetries      int
	RetryDelay      time.Duration
	MaxRedirects    int
	UserAgent       string
	TolerantDomains []string
	// RatePerSecond caps probe starts across all workers of a scanner. Zero disables the limit.
	RatePerSecond float64
	Burst         int
}

func DefaultConfig() Config {
	return Config{
		Timeout:         DefaultTimeout,
		MaxRetries:      DefaultMaxRetries,
		RetryDelay:      DefaultRetryDelay,
		MaxRedirects:    DefaultMaxRedirects,
		UserAgent:       DefaultUserAgent,
		TolerantDomains: DefaultTolerantDomains,
	}
}

// withDefaults fills zero values. Negative MaxRetries means no retries.
func (c Config) withDefaults() Config {
	if c.Timeout <= 0 {
		c.Timeout = DefaultTimeout
	}
	if c.MaxRetries < 0 {
		c.MaxRetries = 0
	}
	if c.RetryDelay < 0 {
		c.RetryDelay = 0
	}
	if c.MaxRedirects <= 0 {
		c.MaxRedirects = DefaultMaxRedirects
	}
	if c.UserAgent == "" {
		c.UserAgent = DefaultUserAgent
	}
	if c.Burst <= 0 {
		c.Burst = 1
	}
	return c
}
