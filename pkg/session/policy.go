package session

import "time"

// RetryPolicy bounds reconnection after an unclean close. Delays grow
// exponentially from BaseDelay, doubling per attempt.
type RetryPolicy struct {
	MaxRetries int
	BaseDelay  time.Duration
}

// DefaultRetryPolicy returns the standard schedule: three attempts at
// 1s, 2s and 4s.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{MaxRetries: 3, BaseDelay: time.Second}
}

// Delay returns the wait before the given attempt (1-based).
func (p RetryPolicy) Delay(attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	return p.BaseDelay << (attempt - 1)
}

// Exhausted reports whether attempt exceeds the retry budget.
func (p RetryPolicy) Exhausted(attempt int) bool {
	return attempt > p.MaxRetries
}
