package engine

import (
	"context"
	"fmt"
	"image"
	"time"

	"go.uber.org/zap"

	"github.com/xkilldash9x/marionette/internal/curve"
	"github.com/xkilldash9x/marionette/internal/devices"
)

// MoveMouseTo moves the cursor to the destination along a humanized curve.
// The trajectory starts at the transport's current cursor position and is
// emitted as relative deltas, each followed by an independently jittered
// inter-step delay so the cadence never turns mechanical. A nil params uses
// the synthesized default curve.
func (e *Engine) MoveMouseTo(ctx context.Context, to image.Point, params *curve.Params) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	mouse, err := e.mouseHandle()
	if err != nil {
		return err
	}

	start, err := e.transport.CursorPosition()
	if err != nil {
		return fmt.Errorf("engine: query cursor position: %w", err)
	}

	plan := e.curves.Plan(start, to, params)
	e.logger.Debug("moving mouse",
		zap.Int("from_x", start.X), zap.Int("from_y", start.Y),
		zap.Int("to_x", to.X), zap.Int("to_y", to.Y),
		zap.Int("steps", len(plan.Deltas)))

	for i, d := range plan.Deltas {
		if i > 0 {
			if err := e.sleep.Sleep(ctx, e.rnd.Jitter(plan.StepInterval)); err != nil {
				return err
			}
		}
		if err := e.transport.SendMouseMove(mouse, d.DX, d.DY); err != nil {
			return fmt.Errorf("engine: mouse move step %d/%d: %w", i+1, len(plan.Deltas), err)
		}
	}
	return nil
}

// SetMousePos teleports the cursor to the absolute position with a single
// event. No curve, no stepping, no jitter.
func (e *Engine) SetMousePos(pos image.Point) error {
	mouse, err := e.mouseHandle()
	if err != nil {
		return err
	}
	if err := e.transport.SendMouseMoveAbsolute(mouse, pos.X, pos.Y); err != nil {
		return fmt.Errorf("engine: set mouse position: %w", err)
	}
	return nil
}

// Scroll emits the given number of wheel events in the direction, with a
// jittered pause between consecutive events. times <= 0 is a no-op. A zero
// interval uses the configured scroll interval.
func (e *Engine) Scroll(ctx context.Context, dir devices.ScrollDirection, times int, interval time.Duration) error {
	if times <= 0 {
		return nil
	}
	mouse, err := e.mouseHandle()
	if err != nil {
		return err
	}
	if interval == 0 {
		interval = e.snapshotConfig().ScrollInterval
	}

	for i := 0; i < times; i++ {
		if i > 0 {
			if err := e.sleep.Sleep(ctx, e.rnd.Jitter(interval)); err != nil {
				return err
			}
		}
		if err := e.transport.SendScroll(mouse, dir, 1); err != nil {
			return fmt.Errorf("engine: scroll event %d/%d: %w", i+1, times, err)
		}
	}
	return nil
}
