// Package timing implements the jittered duration model used by every
// sleeping operation in the engine. Nominal durations are scaled by a
// uniformly drawn factor so that repeated identical actions never produce
// an identical, machine-perfect cadence.
package timing

import (
	"fmt"
	"math"
	"math/rand"
	"sync"
	"time"
)

// Randomizer scales nominal durations by a random factor drawn from a
// configured [low, high] interval. The zero value is not usable; construct
// instances with NewRandomizer.
type Randomizer struct {
	mu      sync.Mutex
	rng     *rand.Rand
	enabled bool
	low     float64
	high    float64
}

// NewRandomizer creates a Randomizer with the given multiplicative bounds.
// The bounds must satisfy 0 < low <= 1.0 <= high. If rng is nil, a source
// seeded from the wall clock is used; tests inject a fixed-seed source for
// deterministic output.
func NewRandomizer(low, high float64, enabled bool, rng *rand.Rand) (*Randomizer, error) {
	if err := validateBounds(low, high); err != nil {
		return nil, err
	}
	if rng == nil {
		rng = rand.New(rand.NewSource(time.Now().UnixNano()))
	}
	return &Randomizer{
		rng:     rng,
		enabled: enabled,
		low:     low,
		high:    high,
	}, nil
}

// Jitter returns d scaled by a uniformly random factor in [low, high],
// rounded to the nearest nanosecond and clamped to be non-negative. With
// randomization disabled it returns d unchanged.
func (r *Randomizer) Jitter(d time.Duration) time.Duration {
	r.mu.Lock()
	defer r.mu.Unlock()

	if !r.enabled {
		return d
	}
	if d <= 0 {
		return 0
	}

	factor := r.low + r.rng.Float64()*(r.high-r.low)
	scaled := time.Duration(math.Round(float64(d) * factor))
	if scaled < 0 {
		return 0
	}
	return scaled
}

// SetEnabled toggles randomization at runtime.
func (r *Randomizer) SetEnabled(enabled bool) {
	r.mu.Lock()
	r.enabled = enabled
	r.mu.Unlock()
}

// Enabled reports whether randomization is currently active.
func (r *Randomizer) Enabled() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.enabled
}

// SetBounds replaces the jitter factor bounds. Invalid bounds are rejected
// and the previous bounds remain in effect.
func (r *Randomizer) SetBounds(low, high float64) error {
	if err := validateBounds(low, high); err != nil {
		return err
	}
	r.mu.Lock()
	r.low, r.high = low, high
	r.mu.Unlock()
	return nil
}

// Bounds returns the current jitter factor bounds.
func (r *Randomizer) Bounds() (low, high float64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.low, r.high
}

func validateBounds(low, high float64) error {
	if low <= 0 || high <= 0 {
		return fmt.Errorf("timing: jitter bounds must be positive, got [%v, %v]", low, high)
	}
	if low > 1.0 || high < 1.0 {
		return fmt.Errorf("timing: jitter bounds must straddle 1.0, got [%v, %v]", low, high)
	}
	return nil
}
