package timing

import (
	"math"
	"math/rand"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestRandomizer(t *testing.T, low, high float64, enabled bool) *Randomizer {
	t.Helper()
	rng := rand.New(rand.NewSource(42))
	r, err := NewRandomizer(low, high, enabled, rng)
	require.NoError(t, err)
	return r
}

func TestJitterStaysWithinBounds(t *testing.T) {
	const (
		low  = 0.8
		high = 1.2
	)
	r := newTestRandomizer(t, low, high, true)

	nominal := 50 * time.Millisecond
	lowerBound := time.Duration(math.Floor(float64(nominal) * low))
	upperBound := time.Duration(math.Ceil(float64(nominal) * high))

	for i := 0; i < 10000; i++ {
		got := r.Jitter(nominal)
		require.GreaterOrEqual(t, got, lowerBound, "iteration %d", i)
		require.LessOrEqual(t, got, upperBound, "iteration %d", i)
	}
}

func TestJitterProducesVaryingValues(t *testing.T) {
	r := newTestRandomizer(t, 0.8, 1.2, true)

	seen := make(map[time.Duration]struct{})
	for i := 0; i < 100; i++ {
		seen[r.Jitter(50*time.Millisecond)] = struct{}{}
	}
	// A mechanically fixed output would defeat the human-mimicry property.
	assert.Greater(t, len(seen), 1)
}

func TestJitterDisabledIsIdentity(t *testing.T) {
	r := newTestRandomizer(t, 0.8, 1.2, false)

	for _, d := range []time.Duration{0, time.Millisecond, 5 * time.Millisecond, time.Second} {
		assert.Equal(t, d, r.Jitter(d))
	}
}

func TestJitterNonPositiveDuration(t *testing.T) {
	r := newTestRandomizer(t, 0.8, 1.2, true)

	assert.Equal(t, time.Duration(0), r.Jitter(0))
	assert.Equal(t, time.Duration(0), r.Jitter(-time.Second))
}

func TestSetEnabledTogglesRandomization(t *testing.T) {
	r := newTestRandomizer(t, 0.5, 1.5, true)

	r.SetEnabled(false)
	assert.False(t, r.Enabled())
	assert.Equal(t, 7*time.Millisecond, r.Jitter(7*time.Millisecond))

	r.SetEnabled(true)
	assert.True(t, r.Enabled())
}

func TestBoundsValidation(t *testing.T) {
	tests := []struct {
		name      string
		low, high float64
		wantErr   bool
	}{
		{"defaults", 0.8, 1.2, false},
		{"identity bounds", 1.0, 1.0, false},
		{"wide bounds", 0.1, 3.0, false},
		{"zero low", 0, 1.2, true},
		{"negative low", -0.5, 1.2, true},
		{"low above one", 1.1, 1.2, true},
		{"high below one", 0.8, 0.9, true},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			_, err := NewRandomizer(tc.low, tc.high, true, nil)
			if tc.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestSetBoundsRejectsInvalidAndKeepsPrevious(t *testing.T) {
	r := newTestRandomizer(t, 0.8, 1.2, true)

	require.Error(t, r.SetBounds(2.0, 3.0))
	low, high := r.Bounds()
	assert.Equal(t, 0.8, low)
	assert.Equal(t, 1.2, high)

	require.NoError(t, r.SetBounds(0.5, 1.5))
	low, high = r.Bounds()
	assert.Equal(t, 0.5, low)
	assert.Equal(t, 1.5, high)
}
