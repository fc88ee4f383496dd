package cmd

import (
	"fmt"
	"image"
	"strconv"
	"time"

	"github.com/spf13/cobra"

	"github.com/xkilldash9x/marionette/internal/devices"
	"github.com/xkilldash9x/marionette/internal/engine"
)

func newTypeCommand() *cobra.Command {
	var interval time.Duration

	cmd := &cobra.Command{
		Use:   "type <text>",
		Short: "Type text on the captured keyboard",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			eng, cleanup, err := buildEngine(cmd)
			if err != nil {
				return err
			}
			defer cleanup()

			if interval > 0 {
				// The per character pause rides on the press interval.
				if err := eng.SetPressInterval(interval); err != nil {
					return err
				}
			}
			return eng.Write(cmd.Context(), args[0])
		},
	}
	cmd.Flags().DurationVar(&interval, "interval", 0, "pause between characters (default from config)")
	return cmd
}

func newClickCommand() *cobra.Command {
	var (
		button   string
		times    int
		duration time.Duration
		interval time.Duration
	)

	cmd := &cobra.Command{
		Use:   "click",
		Short: "Click a mouse button at the current cursor position",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			btn, err := parseButton(button)
			if err != nil {
				return err
			}
			eng, cleanup, err := buildEngine(cmd)
			if err != nil {
				return err
			}
			defer cleanup()

			return eng.Press(cmd.Context(), engine.Button(btn), &engine.PressOptions{
				Times:    times,
				Duration: duration,
				Interval: interval,
			})
		},
	}
	cmd.Flags().StringVar(&button, "button", "left", "button to click (left, right, middle)")
	cmd.Flags().IntVar(&times, "times", 1, "number of clicks")
	cmd.Flags().DurationVar(&duration, "duration", 0, "how long the button stays down (default from config)")
	cmd.Flags().DurationVar(&interval, "interval", 0, "pause between repeated clicks (default from config)")
	return cmd
}

func newMoveCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "move <x> <y>",
		Short: "Move the cursor to a point along a curved trajectory",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			to, err := parsePoint(args[0], args[1])
			if err != nil {
				return err
			}
			eng, cleanup, err := buildEngine(cmd)
			if err != nil {
				return err
			}
			defer cleanup()

			return eng.MoveMouseTo(cmd.Context(), to, nil)
		},
	}
}

func newSetPosCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "setpos <x> <y>",
		Short: "Teleport the cursor to a point without a trajectory",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			to, err := parsePoint(args[0], args[1])
			if err != nil {
				return err
			}
			eng, cleanup, err := buildEngine(cmd)
			if err != nil {
				return err
			}
			defer cleanup()

			return eng.SetMousePos(to)
		},
	}
}

func newScrollCommand() *cobra.Command {
	var (
		times    int
		interval time.Duration
	)

	cmd := &cobra.Command{
		Use:   "scroll <up|down>",
		Short: "Scroll the wheel on the captured mouse",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var dir devices.ScrollDirection
			switch args[0] {
			case "up":
				dir = devices.ScrollUp
			case "down":
				dir = devices.ScrollDown
			default:
				return fmt.Errorf("unknown scroll direction %q (want up or down)", args[0])
			}

			eng, cleanup, err := buildEngine(cmd)
			if err != nil {
				return err
			}
			defer cleanup()

			return eng.Scroll(cmd.Context(), dir, times, interval)
		},
	}
	cmd.Flags().IntVar(&times, "times", 1, "number of wheel ticks")
	cmd.Flags().DurationVar(&interval, "interval", 0, "pause between ticks (default from config)")
	return cmd
}

func parsePoint(xs, ys string) (image.Point, error) {
	x, err := strconv.Atoi(xs)
	if err != nil {
		return image.Point{}, fmt.Errorf("invalid x coordinate %q: %w", xs, err)
	}
	y, err := strconv.Atoi(ys)
	if err != nil {
		return image.Point{}, fmt.Errorf("invalid y coordinate %q: %w", ys, err)
	}
	return image.Pt(x, y), nil
}
