package engine

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/xkilldash9x/marionette/internal/keymap"
)

// PressOptions configures a Press call. The zero value of each field falls
// back to the configured default (one repetition, the default press
// duration, a 50ms interval).
type PressOptions struct {
	// Times is the number of press cycles. Negative values are a no-op.
	Times int
	// Duration is how long the input stays down within each cycle.
	Duration time.Duration
	// Interval separates consecutive cycles.
	Interval time.Duration
}

// resolvePressOptions fills unset option fields from the current
// configuration.
func (e *Engine) resolvePressOptions(opts *PressOptions) (times int, duration, interval time.Duration) {
	cfg := e.snapshotConfig()
	times, duration, interval = 1, cfg.DefaultPressDuration, cfg.PressInterval
	if opts == nil {
		return times, duration, interval
	}
	if opts.Times != 0 {
		times = opts.Times
	}
	if opts.Duration != 0 {
		duration = opts.Duration
	}
	if opts.Interval != 0 {
		interval = opts.Interval
	}
	return times, duration, interval
}

// Hold emits a down event for the input and leaves it held. Holding an
// input that is already down is a no-op, so repeated calls never leak
// duplicate down events. If duration is positive, a release is scheduled
// on an independent timer after a jittered delay; Hold itself returns
// immediately either way. A manual Release before the timer fires wins and
// the timer then does nothing.
func (e *Engine) Hold(ctx context.Context, in Input, duration time.Duration) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	if e.held[in] {
		e.logger.Debug("hold on already held input ignored", zap.Stringer("input", in))
		return nil
	}
	if err := e.sendTransition(in, true); err != nil {
		// The down event never reached the device, so the input is not
		// considered held.
		return fmt.Errorf("engine: hold %s: %w", in, err)
	}
	e.held[in] = true

	if duration > 0 {
		delay := e.rnd.Jitter(duration)
		e.timers[in] = time.AfterFunc(delay, func() {
			if err := e.Release(in); err != nil {
				e.logger.Warn("scheduled release failed",
					zap.Stringer("input", in), zap.Error(err))
			}
		})
	}
	return nil
}

// Release emits an up event for the input. Releasing an input that is not
// held is a no-op and emits nothing. A pending auto-release timer for the
// input is cancelled.
func (e *Engine) Release(in Input) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if !e.held[in] {
		return nil
	}
	if t, ok := e.timers[in]; ok {
		t.Stop()
		delete(e.timers, in)
	}
	if err := e.sendTransition(in, false); err != nil {
		// The input is still physically down; keep the state so a retry
		// can lift it.
		return fmt.Errorf("engine: release %s: %w", in, err)
	}
	delete(e.held, in)
	return nil
}

// Press performs full down-hold-up cycles of the input. Press owns the
// whole cycle: the down event is sent unconditionally, re-asserting the
// input even if something already holds it. Each hold lasts a jittered
// Duration and cycles are separated by a jittered Interval.
func (e *Engine) Press(ctx context.Context, in Input, opts *PressOptions) error {
	times, duration, interval := e.resolvePressOptions(opts)
	if times <= 0 {
		return nil
	}

	for i := 0; i < times; i++ {
		if i > 0 {
			if err := e.sleep.Sleep(ctx, e.rnd.Jitter(interval)); err != nil {
				return err
			}
		}
		if err := e.pressOnce(ctx, in, duration); err != nil {
			return err
		}
	}
	return nil
}

// pressOnce is one forced down-hold-up cycle.
func (e *Engine) pressOnce(ctx context.Context, in Input, duration time.Duration) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	e.mu.Lock()
	if err := e.sendTransition(in, true); err != nil {
		e.mu.Unlock()
		return fmt.Errorf("engine: press %s: %w", in, err)
	}
	e.held[in] = true
	// A pending auto-release would fight the cycle's own up event.
	if t, ok := e.timers[in]; ok {
		t.Stop()
		delete(e.timers, in)
	}
	e.mu.Unlock()

	if err := e.sleep.Sleep(ctx, e.rnd.Jitter(duration)); err != nil {
		return err
	}
	return e.Release(in)
}

// Write types out the text character by character, each one a full press
// cycle with a jittered inter-character pause. Case is respected: shifted
// characters are wrapped in their own shift hold, and the modifier is not
// touched around unshifted ones. Characters without a key mapping are
// skipped silently.
func (e *Engine) Write(ctx context.Context, text string) error {
	cfg := e.snapshotConfig()
	shift := Key(keymap.KEY_LEFTSHIFT)

	emitted := false
	for _, r := range text {
		m, ok := keymap.Lookup(r)
		if !ok {
			e.logger.Debug("skipping unmapped character", zap.String("char", string(r)))
			continue
		}
		if emitted {
			if err := e.sleep.Sleep(ctx, e.rnd.Jitter(cfg.PressInterval)); err != nil {
				return err
			}
		}

		if m.Shift {
			if err := e.Hold(ctx, shift, 0); err != nil {
				return err
			}
		}
		err := e.pressOnce(ctx, Key(m.Code), cfg.DefaultPressDuration)
		if m.Shift {
			// Lift the modifier even when the key cycle failed half way.
			if rerr := e.Release(shift); err == nil && rerr != nil {
				err = rerr
			}
		}
		if err != nil {
			return err
		}
		emitted = true
	}
	return nil
}
