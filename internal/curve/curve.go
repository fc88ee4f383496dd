// Package curve generates humanized mouse trajectories. A movement is
// planned as a cubic Bezier path from the current cursor position to the
// destination, paced by a Fitts's law duration estimate, warped by an
// ease-in-out profile and perturbed by Perlin micro-drift so that no two
// movements trace the same mechanical line. The planner emits relative
// integer deltas whose sum is exactly the destination minus the start;
// per-step rounding error is carried forward and never accumulates.
package curve

import (
	"image"
	"math"
	"math/rand"
	"sync"
	"time"

	"github.com/aquilax/go-perlin"
)

// Assumed target width in pixels for the Fitts's law index of difficulty.
const fittsTargetWidth = 30.0

const driftFrequency = 0.8

// Delta is a single relative motion step in integer pixels.
type Delta struct {
	DX, DY int
}

// Params lets a caller override parts of the planned trajectory. A nil
// Params (or any zero field) falls back to synthesized defaults.
type Params struct {
	// Control holds up to two interior Bezier control points in absolute
	// coordinates. With no control points the planner bends the path itself.
	Control []Vector2D
	// Steps fixes the number of samples along the path.
	Steps int
	// Duration fixes the overall movement time instead of deriving it from
	// the travel distance.
	Duration time.Duration
}

// Options tunes the planner. See DefaultOptions for the baseline values.
type Options struct {
	// MinSteps and MaxSteps bound the sample count regardless of distance.
	MinSteps int `mapstructure:"min_steps" yaml:"min_steps"`
	MaxSteps int `mapstructure:"max_steps" yaml:"max_steps"`

	// FittsA and FittsB are the intercept and slope, in milliseconds, of the
	// movement-time model MT = A + B*log2(1 + D/W).
	FittsA float64 `mapstructure:"fitts_a" yaml:"fitts_a"`
	FittsB float64 `mapstructure:"fitts_b" yaml:"fitts_b"`

	// DriftAmplitude is the magnitude, in pixels, of the Perlin noise applied
	// to interior path samples.
	DriftAmplitude float64 `mapstructure:"drift_amplitude" yaml:"drift_amplitude"`
}

// DefaultOptions returns planner settings representing an average user.
func DefaultOptions() Options {
	return Options{
		MinSteps:       8,
		MaxSteps:       240,
		FittsA:         100.0,
		FittsB:         120.0,
		DriftAmplitude: 2.5,
	}
}

// Plan is a fully paced trajectory ready for dispatch.
type Plan struct {
	// Deltas are the relative steps, in order. Their component-wise sum
	// equals destination minus start exactly.
	Deltas []Delta
	// StepInterval is the nominal per-step delay; the dispatcher jitters it
	// independently for every step.
	StepInterval time.Duration
}

// Generator plans trajectories. Safe for concurrent use.
type Generator struct {
	mu     sync.Mutex
	rng    *rand.Rand
	noiseX *perlin.Perlin
	noiseY *perlin.Perlin
	opts   Options
}

// NewGenerator creates a Generator. A nil rng is replaced with a wall-clock
// seeded source; tests pass a fixed seed for reproducible paths.
func NewGenerator(opts Options, rng *rand.Rand) *Generator {
	seed := time.Now().UnixNano()
	if rng == nil {
		rng = rand.New(rand.NewSource(seed))
	}
	if opts.MinSteps < 1 {
		opts.MinSteps = 1
	}
	if opts.MaxSteps < opts.MinSteps {
		opts.MaxSteps = opts.MinSteps
	}

	// Standard Perlin noise parameters.
	alpha, beta, n := 2.0, 2.0, int32(3)
	return &Generator{
		rng:    rng,
		noiseX: perlin.NewPerlin(alpha, beta, n, seed),
		noiseY: perlin.NewPerlin(alpha, beta, n, seed+1),
		opts:   opts,
	}
}

// Plan computes the trajectory from start to dest. It always returns at
// least one delta unless start and dest coincide.
func (g *Generator) Plan(start, dest image.Point, params *Params) Plan {
	g.mu.Lock()
	defer g.mu.Unlock()

	s := Vector2D{X: float64(start.X), Y: float64(start.Y)}
	e := Vector2D{X: float64(dest.X), Y: float64(dest.Y)}
	dist := s.Dist(e)

	total := g.movementTime(dist, params)
	steps := g.stepCount(total, params)

	if start == dest {
		return Plan{StepInterval: total / time.Duration(steps)}
	}

	p1, p2 := g.controlPoints(s, e, dist, params)

	deltas := make([]Delta, 0, steps)
	// cx/cy track the integer position actually emitted so far. Rounding
	// error lives in the difference to the ideal path and is absorbed by
	// the next step instead of accumulating.
	cx, cy := start.X, start.Y
	for i := 1; i <= steps; i++ {
		t := easeInOutCubic(float64(i) / float64(steps))
		point := cubicBezier(s, p1, p2, e, t)
		if i < steps {
			elapsed := total.Seconds() * t
			point = point.Add(Vector2D{
				X: g.noiseX.Noise1D(elapsed*driftFrequency) * g.opts.DriftAmplitude,
				Y: g.noiseY.Noise1D(elapsed*driftFrequency) * g.opts.DriftAmplitude,
			})
		} else {
			// The last sample lands on the destination exactly so the
			// emitted deltas close the movement with zero drift.
			point = e
		}

		dx := int(math.Round(point.X - float64(cx)))
		dy := int(math.Round(point.Y - float64(cy)))
		cx += dx
		cy += dy
		if dx == 0 && dy == 0 && i < steps {
			continue
		}
		deltas = append(deltas, Delta{DX: dx, DY: dy})
	}

	return Plan{
		Deltas:       deltas,
		StepInterval: total / time.Duration(steps),
	}
}

// movementTime estimates how long the whole movement should take.
func (g *Generator) movementTime(dist float64, params *Params) time.Duration {
	if params != nil && params.Duration > 0 {
		return params.Duration
	}

	// Fitts's law: MT = A + B * log2(1 + D/W).
	id := math.Log2(1.0 + dist/fittsTargetWidth)
	mt := g.opts.FittsA + g.opts.FittsB*id
	// +/- 15% so equal distances do not take equal times.
	mt += mt * (g.rng.Float64()*0.3 - 0.15)
	if mt < 1.0 {
		mt = 1.0
	}
	return time.Duration(mt) * time.Millisecond
}

// stepCount derives the sample count from the movement time, bounded by the
// configured limits.
func (g *Generator) stepCount(total time.Duration, params *Params) int {
	if params != nil && params.Steps > 0 {
		return params.Steps
	}
	steps := int(total.Seconds() * 100)
	if steps < g.opts.MinSteps {
		steps = g.opts.MinSteps
	}
	if steps > g.opts.MaxSteps {
		steps = g.opts.MaxSteps
	}
	return steps
}

// controlPoints picks the two interior Bezier control points. Synthesized
// points sit at one and two thirds of the chord, pushed perpendicular to it
// by independently randomized amounts so the bend is never symmetric.
func (g *Generator) controlPoints(s, e Vector2D, dist float64, params *Params) (Vector2D, Vector2D) {
	if params != nil {
		switch len(params.Control) {
		case 1:
			return params.Control[0], params.Control[0]
		case 2:
			return params.Control[0], params.Control[1]
		}
	}

	dir := e.Sub(s).Normalize()
	perp := dir.Perp()

	p1 := s.Add(dir.Mul(dist / 3.0)).Add(perp.Mul(g.bendOffset(dist)))
	p2 := s.Add(dir.Mul(dist * 2.0 / 3.0)).Add(perp.Mul(g.bendOffset(dist)))
	return p1, p2
}

// bendOffset returns a signed perpendicular displacement proportional to the
// travel distance.
func (g *Generator) bendOffset(dist float64) float64 {
	magnitude := dist * (0.04 + g.rng.Float64()*0.08)
	if g.rng.Intn(2) == 0 {
		return -magnitude
	}
	return magnitude
}

// easeInOutCubic provides a smooth acceleration and deceleration profile.
func easeInOutCubic(t float64) float64 {
	if t < 0.5 {
		return 4 * t * t * t
	}
	return 1 - math.Pow(-2*t+2, 3)/2
}

// cubicBezier evaluates the curve defined by p0..p3 at parameter t.
func cubicBezier(p0, p1, p2, p3 Vector2D, t float64) Vector2D {
	omt := 1.0 - t
	omt2 := omt * omt
	omt3 := omt2 * omt
	t2 := t * t
	t3 := t2 * t

	return p0.Mul(omt3).
		Add(p1.Mul(3 * omt2 * t)).
		Add(p2.Mul(3 * omt * t2)).
		Add(p3.Mul(t3))
}
