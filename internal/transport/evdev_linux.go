//go:build linux

package transport

import (
	"encoding/binary"
	"fmt"
	"image"
	"os"
	"path/filepath"
	"sync"
	"unsafe"

	"go.uber.org/zap"
	"golang.org/x/sys/unix"

	"github.com/xkilldash9x/marionette/internal/devices"
)

// Event types and codes from include/uapi/linux/input-event-codes.h.
const (
	EV_SYN uint16 = 0x00
	EV_KEY uint16 = 0x01
	EV_REL uint16 = 0x02
	EV_REP uint16 = 0x14

	SYN_REPORT uint16 = 0

	REL_X     uint16 = 0x00
	REL_Y     uint16 = 0x01
	REL_WHEEL uint16 = 0x08
)

// ioctl request plumbing for the EVIOCG* family ('E' ioctls, read
// direction). See include/uapi/linux/input.h.
const (
	iocRead      = 2
	iocSizeShift = 16
	iocDirShift  = 30
	evIoctlBase  = 'E'

	eviocgnameNr = 0x06
	eviocgbitNr  = 0x20 // + event type
)

func evIoctlRequest(nr, size uintptr) uintptr {
	return iocRead<<iocDirShift | size<<iocSizeShift | evIoctlBase<<8 | nr
}

// inputEvent mirrors struct input_event on 64-bit Linux.
type inputEvent struct {
	Time  unix.Timeval
	Type  uint16
	Code  uint16
	Value int32
}

// Evdev injects events by writing input_event records to the device nodes
// selected during capture. Because the raw event layer has no notion of a
// screen, the cursor position is tracked from the events this transport
// itself emitted; it starts at the origin until the first absolute move.
type Evdev struct {
	mu     sync.Mutex
	logger *zap.Logger
	cursor image.Point
}

// New returns the evdev transport.
func New(logger *zap.Logger) (devices.Transport, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Evdev{logger: logger}, nil
}

type eventHandle struct {
	f *os.File
}

func (h *eventHandle) Close() error {
	return h.f.Close()
}

// EnumerateDevices scans /dev/input/event* and classifies each node from
// its event capability bits: keyboards advertise key repeat, mice relative
// axes. The device name reported by EVIOCGNAME serves as the hardware id.
func (t *Evdev) EnumerateDevices() ([]devices.Descriptor, error) {
	paths, err := filepath.Glob("/dev/input/event*")
	if err != nil {
		return nil, fmt.Errorf("transport: scanning input devices: %w", err)
	}

	var out []devices.Descriptor
	for _, path := range paths {
		fd, err := unix.Open(path, unix.O_RDONLY|unix.O_NONBLOCK, 0)
		if err != nil {
			// Nodes we cannot probe (permissions, races with hotplug) are
			// simply not offered for selection.
			t.logger.Debug("skipping unreadable input node",
				zap.String("path", path), zap.Error(err))
			continue
		}

		name, nameErr := deviceName(fd)
		evbits, bitErr := deviceEvbits(fd)
		_ = unix.Close(fd)
		if nameErr != nil || bitErr != nil {
			t.logger.Debug("skipping unprobeable input node",
				zap.String("path", path),
				zap.NamedError("name_err", nameErr),
				zap.NamedError("bits_err", bitErr))
			continue
		}

		class, ok := classifyEvbits(evbits)
		if !ok {
			continue
		}
		out = append(out, devices.Descriptor{
			Class:      class,
			HardwareID: name,
			Path:       path,
		})
	}
	return out, nil
}

// Open acquires the device node for writing.
func (t *Evdev) Open(desc devices.Descriptor) (devices.Handle, error) {
	f, err := os.OpenFile(desc.Path, os.O_WRONLY, 0)
	if err != nil {
		return nil, fmt.Errorf("transport: open %s: %w", desc.Path, err)
	}
	return &eventHandle{f: f}, nil
}

func (t *Evdev) SendKeyEvent(h devices.Handle, code uint16, down bool) error {
	return t.emitAndSync(h, EV_KEY, code, pressValue(down))
}

func (t *Evdev) SendButtonEvent(h devices.Handle, button devices.Button, down bool) error {
	return t.emitAndSync(h, EV_KEY, uint16(button), pressValue(down))
}

func (t *Evdev) SendMouseMove(h devices.Handle, dx, dy int) error {
	eh, err := handleFile(h)
	if err != nil {
		return err
	}
	if dx != 0 {
		if err := emit(eh, EV_REL, REL_X, int32(dx)); err != nil {
			return err
		}
	}
	if dy != 0 {
		if err := emit(eh, EV_REL, REL_Y, int32(dy)); err != nil {
			return err
		}
	}
	if err := emit(eh, EV_SYN, SYN_REPORT, 0); err != nil {
		return err
	}

	t.mu.Lock()
	t.cursor = t.cursor.Add(image.Pt(dx, dy))
	t.mu.Unlock()
	return nil
}

// SendMouseMoveAbsolute emulates absolute positioning on a relative
// device: it emits the delta from the tracked cursor to the target in a
// single event pair.
func (t *Evdev) SendMouseMoveAbsolute(h devices.Handle, x, y int) error {
	t.mu.Lock()
	cur := t.cursor
	t.mu.Unlock()
	return t.SendMouseMove(h, x-cur.X, y-cur.Y)
}

func (t *Evdev) SendScroll(h devices.Handle, dir devices.ScrollDirection, magnitude int) error {
	if magnitude <= 0 {
		magnitude = 1
	}
	value := int32(magnitude)
	if dir == devices.ScrollDown {
		value = -value
	}
	return t.emitAndSync(h, EV_REL, REL_WHEEL, value)
}

// CursorPosition reports the position tracked from emitted motion events.
func (t *Evdev) CursorPosition() (image.Point, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.cursor, nil
}

// SetMouseAcceleration is not available at the raw event layer; pointer
// acceleration lives in the display server. The selector treats this as a
// non-fatal condition.
func (t *Evdev) SetMouseAcceleration(h devices.Handle, enabled bool) error {
	return devices.ErrUnsupported
}

func (t *Evdev) emitAndSync(h devices.Handle, typ, code uint16, value int32) error {
	eh, err := handleFile(h)
	if err != nil {
		return err
	}
	if err := emit(eh, typ, code, value); err != nil {
		return err
	}
	return emit(eh, EV_SYN, SYN_REPORT, 0)
}

func handleFile(h devices.Handle) (*eventHandle, error) {
	eh, ok := h.(*eventHandle)
	if !ok || eh == nil || eh.f == nil {
		return nil, fmt.Errorf("transport: handle is not an open evdev device")
	}
	return eh, nil
}

func emit(h *eventHandle, typ, code uint16, value int32) error {
	ev := inputEvent{Type: typ, Code: code, Value: value}
	if err := binary.Write(h.f, binary.LittleEndian, &ev); err != nil {
		return fmt.Errorf("transport: emit event: %w", err)
	}
	return nil
}

func pressValue(down bool) int32 {
	if down {
		return 1
	}
	return 0
}

// classifyEvbits maps a device's event-type bitmask to a descriptor class.
// Keyboards support key events with autorepeat; mice pair key events
// (buttons) with relative axes.
func classifyEvbits(evbits uint64) (devices.Class, bool) {
	hasKey := evbits&(1<<EV_KEY) != 0
	hasRel := evbits&(1<<EV_REL) != 0
	hasRep := evbits&(1<<EV_REP) != 0

	switch {
	case hasKey && hasRel:
		return devices.ClassMouse, true
	case hasKey && hasRep:
		return devices.ClassKeyboard, true
	default:
		return 0, false
	}
}

func deviceName(fd int) (string, error) {
	var buf [256]byte
	req := evIoctlRequest(eviocgnameNr, uintptr(len(buf)))
	if _, _, errno := unix.Syscall(unix.SYS_IOCTL, uintptr(fd), req, uintptr(unsafe.Pointer(&buf[0]))); errno != 0 {
		return "", fmt.Errorf("transport: EVIOCGNAME: %w", errno)
	}
	n := 0
	for n < len(buf) && buf[n] != 0 {
		n++
	}
	return string(buf[:n]), nil
}

func deviceEvbits(fd int) (uint64, error) {
	var bits uint64
	req := evIoctlRequest(eviocgbitNr+0, unsafe.Sizeof(bits))
	if _, _, errno := unix.Syscall(unix.SYS_IOCTL, uintptr(fd), req, uintptr(unsafe.Pointer(&bits))); errno != 0 {
		return 0, fmt.Errorf("transport: EVIOCGBIT: %w", errno)
	}
	return bits, nil
}
