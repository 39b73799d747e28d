package worker

import (
	"math"
	"time"
)

// Запасные значения на случай пустой секции sync в конфиге.
const (
	defaultInitialDelay  = time.Second
	defaultBackoffFactor = 2.0
)

// RetryPolicy controls redelivery of failed sync jobs. A job gets up to
// MaxRetries attempts, each waiting exponentially longer than the last,
// capped at MaxDelay.
type RetryPolicy struct {
	MaxRetries    int
	InitialDelay  time.Duration
	MaxDelay      time.Duration
	BackoffFactor float64
}

// NextDelay returns the wait before the given attempt. Attempts count
// from 1; out-of-range attempts and zeroed policy fields fall back to
// sane values instead of erroring.
func (r RetryPolicy) NextDelay(attempt int) time.Duration {
	base := r.InitialDelay
	if base <= 0 {
		base = defaultInitialDelay
	}
	factor := r.BackoffFactor
	if factor <= 0 {
		factor = defaultBackoffFactor
	}
	if attempt < 1 {
		attempt = 1
	}

	d := time.Duration(float64(base) * math.Pow(factor, float64(attempt-1)))
	if r.MaxDelay > 0 && d > r.MaxDelay {
		return r.MaxDelay
	}
	if d <= 0 {
		// Переполнение при очень больших attempt
		return defaultInitialDelay
	}
	return d
}
