// Package devices defines the boundary to the raw input transport and the
// selector that binds the process to one keyboard and one mouse device.
// The transport itself (driver, virtual device, test double) is an external
// collaborator implementing the Transport interface.
package devices

import (
	"errors"
	"image"
)

// ErrUnsupported is returned by transport operations the underlying
// platform cannot perform (for example querying the cursor on a raw event
// device, or building the transport on an unsupported OS).
var ErrUnsupported = errors.New("devices: operation not supported by transport")

// Class tags a device descriptor as keyboard or mouse.
type Class int

const (
	ClassKeyboard Class = iota + 1
	ClassMouse
)

func (c Class) String() string {
	switch c {
	case ClassKeyboard:
		return "keyboard"
	case ClassMouse:
		return "mouse"
	default:
		return "unknown"
	}
}

// Descriptor identifies an enumerable input device.
type Descriptor struct {
	Class Class
	// HardwareID is the identification string filters are matched against.
	HardwareID string
	// Path locates the device for Open. Transport specific.
	Path string
}

// Handle is an opened device. Handles are owned by the Selector for the
// process lifetime and closed when a re-capture replaces them.
type Handle interface {
	Close() error
}

// ScrollDirection selects the wheel direction for scroll events.
type ScrollDirection int

const (
	ScrollUp ScrollDirection = iota + 1
	ScrollDown
)

func (d ScrollDirection) String() string {
	switch d {
	case ScrollUp:
		return "up"
	case ScrollDown:
		return "down"
	default:
		return "unknown"
	}
}

// Button identifies a physical mouse button. Values follow the Linux
// input-event-codes BTN_* constants.
type Button uint16

const (
	ButtonLeft   Button = 0x110
	ButtonRight  Button = 0x111
	ButtonMiddle Button = 0x112
)

func (b Button) String() string {
	switch b {
	case ButtonLeft:
		return "left"
	case ButtonRight:
		return "right"
	case ButtonMiddle:
		return "middle"
	default:
		return "unknown"
	}
}

// Transport is the raw injection boundary. Implementations deliver hardware
// level events to whatever consumes them; the engine never bypasses it.
type Transport interface {
	// EnumerateDevices lists the device descriptors currently available.
	EnumerateDevices() ([]Descriptor, error)

	// Open acquires a handle for the described device.
	Open(desc Descriptor) (Handle, error)

	// SendKeyEvent emits a single key down or up transition.
	SendKeyEvent(h Handle, code uint16, down bool) error

	// SendButtonEvent emits a single mouse button down or up transition.
	SendButtonEvent(h Handle, button Button, down bool) error

	// SendMouseMove emits one relative motion delta.
	SendMouseMove(h Handle, dx, dy int) error

	// SendMouseMoveAbsolute positions the cursor at absolute coordinates.
	SendMouseMoveAbsolute(h Handle, x, y int) error

	// SendScroll emits one wheel event of the given magnitude.
	SendScroll(h Handle, dir ScrollDirection, magnitude int) error

	// CursorPosition reports the current absolute cursor position.
	CursorPosition() (image.Point, error)

	// SetMouseAcceleration toggles pointer acceleration on the device.
	SetMouseAcceleration(h Handle, enabled bool) error
}
