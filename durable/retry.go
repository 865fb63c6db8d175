package durable

import "time"

// RetryPolicy governs retries of live activity executions. Transient
// failures are retried with exponential backoff; exhausting MaxAttempts
// journals a terminal failure, which replays identically.
type RetryPolicy struct {
	InitialInterval    time.Duration
	BackoffCoefficient float64
	MaxInterval        time.Duration
	MaxAttempts        int
}

// DefaultRetryPolicy returns the retry policy used when none is configured.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		InitialInterval:    time.Second,
		BackoffCoefficient: 2.0,
		MaxInterval:        30 * time.Second,
		MaxAttempts:        5,
	}
}

// Backoff returns the wait before the given retry attempt (1-based: the
// wait after the first failure is Backoff(1)).
func (p RetryPolicy) Backoff(attempt int) time.Duration {
	interval := p.InitialInterval
	if interval <= 0 {
		interval = time.Second
	}
	coefficient := p.BackoffCoefficient
	if coefficient < 1 {
		coefficient = 2.0
	}

	for i := 1; i < attempt; i++ {
		interval = time.Duration(float64(interval) * coefficient)
		if p.MaxInterval > 0 && interval > p.MaxInterval {
			return p.MaxInterval
		}
	}
	if p.MaxInterval > 0 && interval > p.MaxInterval {
		return p.MaxInterval
	}
	return interval
}
