// Package backoff computes retry delays: base * multiplier^attempt with a
// symmetric jitter band, capped so a misconfigured multiplier cannot schedule
// a retry past any reasonable horizon.
package backoff

import (
	"math"
	"math/rand/v2"
	"time"
)

// MaxDelay bounds a single computed delay regardless of policy.
const MaxDelay = 24 * time.Hour

type Policy struct {
	Base       time.Duration
	Multiplier float64
	// Jitter is the half-width of the random band as a fraction of the
	// computed delay, e.g. 0.2 yields [0.8d, 1.2d]. Zero disables jitter.
	Jitter float64
}

// Delay returns the deterministic (jitter-free) delay before the given
// attempt, where attempt is zero-based: attempt 0 already happened and we are
// scheduling attempt 1, waiting base * multiplier^0.
func (p Policy) Delay(attempt int) time.Duration {
	if p.Base <= 0 {
		return 0
	}
	mult := p.Multiplier
	if mult < 1 {
		mult = 1
	}
	if attempt < 1 {
		attempt = 1
	}
	d := float64(p.Base) * math.Pow(mult, float64(attempt-1))
	if d > float64(MaxDelay) {
		return MaxDelay
	}
	return time.Duration(d)
}

// Next returns the wall-clock time of the next attempt with jitter applied.
func (p Policy) Next(now time.Time, attempt int) time.Time {
	d := p.Delay(attempt)
	if p.Jitter > 0 && d > 0 {
		band := p.Jitter
		if band > 1 {
			band = 1
		}
		// factor in [1-band, 1+band]
		factor := 1 + band*(2*rand.Float64()-1)
		d = time.Duration(float64(d) * factor)
		if d > MaxDelay {
			d = MaxDelay
		}
	}
	return now.Add(d)
}
