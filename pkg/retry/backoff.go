package retry

import (
	"math"
	"math/rand/v2"
	"time"
)

// BackoffStrategy decides how long to wait before retrying.
type BackoffStrategy interface {
	// NextBackoff returns the delay after the given failed attempt (attempt starts at 1)
	NextBackoff(attempt int) time.Duration
}

// ConstantBackoff waits the same interval between every attempt
type ConstantBackoff struct {
	Interval time.Duration
}

func (b *ConstantBackoff) NextBackoff(int) time.Duration {
	return b.Interval
}

// ExponentialBackoff grows the delay by Multiplier per attempt up to
// MaxInterval. JitterFactor spreads each delay by up to that fraction
// downwards, so concurrent callers hitting a recovering store do not retry
// in lockstep. The result never exceeds MaxInterval.
type ExponentialBackoff struct {
	InitialInterval time.Duration
	MaxInterval     time.Duration
	Multiplier      float64
	JitterFactor    float64
}

func (b *ExponentialBackoff) NextBackoff(attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	mult := b.Multiplier
	if mult < 1 {
		mult = 2
	}

	d := math.Min(
		float64(b.InitialInterval)*math.Pow(mult, float64(attempt-1)),
		float64(b.MaxInterval),
	)

	if b.JitterFactor > 0 {
		d -= rand.Float64() * math.Min(b.JitterFactor, 1) * d
	}

	return time.Duration(d)
}

// NewDefaultExponentialBackoff returns the backoff used for order store calls.
func NewDefaultExponentialBackoff() *ExponentialBackoff {
	return &ExponentialBackoff{
		InitialInterval: 200 * time.Millisecond,
		MaxInterval:     2 * time.Second,
		Multiplier:      2,
		JitterFactor:    0.2,
	}
}
