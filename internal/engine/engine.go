// Package engine is the dispatch facade of the input synthesizer. It
// composes the device selector, the timing randomizer and the trajectory
// planner into the public operations (press, hold, release, write, scroll,
// mouse movement) and owns the per-input held state that keeps those
// operations idempotent and safe to repeat.
package engine

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/xkilldash9x/marionette/internal/config"
	"github.com/xkilldash9x/marionette/internal/curve"
	"github.com/xkilldash9x/marionette/internal/devices"
	"github.com/xkilldash9x/marionette/internal/timing"
)

// ErrNoDevice is returned when an operation needs a device that has not
// been captured yet.
var ErrNoDevice = errors.New("engine: no captured device; call CaptureInputDevices first")

type inputKind uint8

const (
	kindKey inputKind = iota + 1
	kindButton
)

// Input identifies a keyboard key or mouse button. Values are comparable
// and serve as the held-state map key.
type Input struct {
	kind inputKind
	code uint16
}

// Key wraps a keyboard key code (see the keymap package for the values).
func Key(code uint16) Input {
	return Input{kind: kindKey, code: code}
}

// Button wraps a mouse button.
func Button(b devices.Button) Input {
	return Input{kind: kindButton, code: uint16(b)}
}

func (in Input) String() string {
	switch in.kind {
	case kindKey:
		return fmt.Sprintf("key(%d)", in.code)
	case kindButton:
		return fmt.Sprintf("button(%s)", devices.Button(in.code))
	default:
		return "input(invalid)"
	}
}

// sleeper abstracts blocking delays so tests can record them instead of
// waiting.
type sleeper interface {
	Sleep(ctx context.Context, d time.Duration) error
}

type clockSleeper struct{}

func (clockSleeper) Sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// Engine is the public input surface. All operations are synchronous and
// blocking; callers wanting concurrent input streams run them on separate
// goroutines. One mutex guards held state, pending auto-release timers and
// the mutable timing configuration.
type Engine struct {
	mu        sync.Mutex
	cfg       config.InputConfig
	held      map[Input]bool
	timers    map[Input]*time.Timer
	transport devices.Transport
	selector  *devices.Selector
	rnd       *timing.Randomizer
	curves    *curve.Generator
	sleep     sleeper
	logger    *zap.Logger
}

// New builds an Engine over the given transport.
func New(cfg config.Config, transport devices.Transport, logger *zap.Logger) (*Engine, error) {
	return newEngine(cfg, transport, logger, nil)
}

// newEngine is the injectable constructor used by tests to pin the random
// source.
func newEngine(cfg config.Config, transport devices.Transport, logger *zap.Logger, rng *rand.Rand) (*Engine, error) {
	if transport == nil {
		return nil, errors.New("engine: transport must not be nil")
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	rnd, err := timing.NewRandomizer(
		cfg.Input.JitterLowFactor,
		cfg.Input.JitterHighFactor,
		cfg.Input.RandomizeDurations,
		rng,
	)
	if err != nil {
		return nil, err
	}

	return &Engine{
		cfg:       cfg.Input,
		held:      make(map[Input]bool),
		timers:    make(map[Input]*time.Timer),
		transport: transport,
		selector:  devices.NewSelector(transport, cfg.Input.AutoDisableMouseAccel, logger),
		rnd:       rnd,
		curves:    curve.NewGenerator(cfg.Curve, rng),
		sleep:     clockSleeper{},
		logger:    logger,
	}, nil
}

// CaptureInputDevices selects and opens the keyboard and mouse to act
// through. It reports success; on failure previously captured devices stay
// usable and the call can be retried with different filters.
func (e *Engine) CaptureInputDevices(keyboardFilter, mouseFilter string) bool {
	return e.selector.Capture(keyboardFilter, mouseFilter)
}

// SetRandomizeDurations toggles timing jitter at runtime.
func (e *Engine) SetRandomizeDurations(enabled bool) {
	e.mu.Lock()
	e.cfg.RandomizeDurations = enabled
	e.mu.Unlock()
	e.rnd.SetEnabled(enabled)
}

// SetJitterBounds replaces the random factor bounds. Must satisfy
// 0 < low <= 1.0 <= high.
func (e *Engine) SetJitterBounds(low, high float64) error {
	if err := e.rnd.SetBounds(low, high); err != nil {
		return err
	}
	e.mu.Lock()
	e.cfg.JitterLowFactor, e.cfg.JitterHighFactor = low, high
	e.mu.Unlock()
	return nil
}

// SetDefaultPressDuration changes the duration used by press cycles that
// do not specify their own.
func (e *Engine) SetDefaultPressDuration(d time.Duration) error {
	if d < 0 {
		return fmt.Errorf("engine: press duration must not be negative, got %v", d)
	}
	e.mu.Lock()
	e.cfg.DefaultPressDuration = d
	e.mu.Unlock()
	return nil
}

// SetPressInterval changes the pause used between repeated presses and
// written characters when no explicit interval is given.
func (e *Engine) SetPressInterval(d time.Duration) error {
	if d < 0 {
		return fmt.Errorf("engine: press interval must not be negative, got %v", d)
	}
	e.mu.Lock()
	e.cfg.PressInterval = d
	e.mu.Unlock()
	return nil
}

// SetAutoDisableMouseAccel controls whether future captures switch pointer
// acceleration off on the mouse device.
func (e *Engine) SetAutoDisableMouseAccel(disable bool) {
	e.mu.Lock()
	e.cfg.AutoDisableMouseAccel = disable
	e.mu.Unlock()
	e.selector.SetDisableAccel(disable)
}

// Close cancels pending auto-release timers, lifts any inputs still held
// and releases the captured devices.
func (e *Engine) Close() error {
	e.mu.Lock()
	for in, t := range e.timers {
		t.Stop()
		delete(e.timers, in)
	}
	stillHeld := make([]Input, 0, len(e.held))
	for in := range e.held {
		stillHeld = append(stillHeld, in)
	}
	e.mu.Unlock()

	for _, in := range stillHeld {
		if err := e.Release(in); err != nil {
			e.logger.Debug("failed to release input during shutdown",
				zap.Stringer("input", in), zap.Error(err))
		}
	}
	return e.selector.Close()
}

// handleFor resolves the device handle an input dispatches through.
func (e *Engine) handleFor(in Input) (devices.Handle, error) {
	var h devices.Handle
	if in.kind == kindButton {
		h = e.selector.Mouse()
	} else {
		h = e.selector.Keyboard()
	}
	if h == nil {
		return nil, ErrNoDevice
	}
	return h, nil
}

// sendTransition emits a down or up event for the input.
func (e *Engine) sendTransition(in Input, down bool) error {
	h, err := e.handleFor(in)
	if err != nil {
		return err
	}
	if in.kind == kindButton {
		return e.transport.SendButtonEvent(h, devices.Button(in.code), down)
	}
	return e.transport.SendKeyEvent(h, in.code, down)
}

// mouseHandle returns the captured mouse handle.
func (e *Engine) mouseHandle() (devices.Handle, error) {
	h := e.selector.Mouse()
	if h == nil {
		return nil, ErrNoDevice
	}
	return h, nil
}

// snapshotConfig copies the mutable timing configuration under the lock.
func (e *Engine) snapshotConfig() config.InputConfig {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.cfg
}
