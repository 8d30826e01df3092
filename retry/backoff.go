package retry

import (
	"math"
	"math/rand"
	"time"
)

// ExponentialBackoff computes the delay before a given attempt number.
// Delay grows geometrically from Initial, is capped at Max, and carries a
// uniform jitter in [0, JitterMax) so bursts of failures spread out.
type ExponentialBackoff struct {
	Initial    time.Duration
	Max        time.Duration
	Multiplier float64
	JitterMax  time.Duration
	Rand       func() float64
}

func NewExponentialBackoff(initial, maximum time.Duration, multiplier float64, jitterMax time.Duration) *ExponentialBackoff {
	if initial <= 0 {
		initial = time.Second
	}
	if maximum < initial {
		maximum = initial
	}
	if multiplier < 1 {
		multiplier = 2
	}
	if jitterMax < 0 {
		jitterMax = 0
	}
	return &ExponentialBackoff{
		Initial:    initial,
		Max:        maximum,
		Multiplier: multiplier,
		JitterMax:  jitterMax,
		Rand:       rand.Float64,
	}
}

// Delay returns the backoff before attempt. Attempt numbering starts at 1;
// the capped base delay is computed before jitter is added, so the result
// can exceed Max by at most JitterMax.
func (b *ExponentialBackoff) Delay(attempt int) time.Duration {
	if b == nil {
		return time.Second
	}
	if attempt < 1 {
		attempt = 1
	}

	base := float64(b.initial()) * math.Pow(b.multiplier(), float64(attempt-1))
	capped := b.maximum()
	delay := time.Duration(base)
	if delay <= 0 || delay > capped {
		delay = capped
	}
	return delay + b.jitter()
}

func (b *ExponentialBackoff) jitter() time.Duration {
	if b.JitterMax <= 0 {
		return 0
	}
	roll := b.Rand
	if roll == nil {
		roll = rand.Float64
	}
	return time.Duration(roll() * float64(b.JitterMax))
}

func (b *ExponentialBackoff) initial() time.Duration {
	if b.Initial > 0 {
		return b.Initial
	}
	return time.Second
}

func (b *ExponentialBackoff) maximum() time.Duration {
	if b.Max >= b.initial() {
		return b.Max
	}
	return b.initial()
}

func (b *ExponentialBackoff) multiplier() float64 {
	if b.Multiplier >= 1 {
		return b.Multiplier
	}
	return 2
}
