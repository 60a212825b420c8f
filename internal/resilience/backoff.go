package resilience

import (
	"math/rand/v2"
	"time"
)

const maxBackoff = 10 * time.Second

// Backoff returns the exponential delay before retry number attempt, capped
// at ten seconds. jitterPct spreads the delay by up to that fraction either
// way, so 0.2 yields a result within 20% of the nominal value.
func Backoff(base time.Duration, attempt int, jitterPct float64) time.Duration {
	if base <= 0 {
		base = 100 * time.Millisecond
	}
	d := base
	for i := 1; i < attempt && d < maxBackoff; i++ {
		d *= 2
	}
	d = min(d, maxBackoff)
	if jitterPct <= 0 {
		return d
	}
	spread := float64(d) * min(jitterPct, 1)
	return d + time.Duration((rand.Float64()*2-1)*spread)
}
