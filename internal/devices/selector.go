package devices

import (
	"strings"
	"sync"

	"go.uber.org/zap"
)

// Selector matches enumerated descriptors against filter keywords and owns
// the resulting keyboard and mouse handles. At most one of each is live; a
// successful re-capture replaces both, a failed one replaces neither.
type Selector struct {
	mu           sync.Mutex
	transport    Transport
	logger       *zap.Logger
	disableAccel bool

	keyboard Handle
	mouse    Handle
}

// NewSelector creates a Selector over the given transport. If disableAccel
// is set, pointer acceleration is switched off on every newly captured
// mouse device.
func NewSelector(transport Transport, disableAccel bool, logger *zap.Logger) *Selector {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Selector{
		transport:    transport,
		logger:       logger,
		disableAccel: disableAccel,
	}
}

// Capture enumerates devices and selects the first keyboard-class device
// whose hardware id contains keyboardFilter and the first mouse-class
// device whose hardware id contains mouseFilter. An empty filter matches
// the first device of that class. It reports whether BOTH devices were
// selected and opened; on failure any previously captured handles stay in
// place so the caller can retry with different filters.
func (s *Selector) Capture(keyboardFilter, mouseFilter string) bool {
	descriptors, err := s.transport.EnumerateDevices()
	if err != nil {
		s.logger.Error("device enumeration failed", zap.Error(err))
		return false
	}

	kbDesc, kbFound := matchFirst(descriptors, ClassKeyboard, keyboardFilter)
	mouseDesc, mouseFound := matchFirst(descriptors, ClassMouse, mouseFilter)
	if !kbFound || !mouseFound {
		s.logger.Warn("no matching device",
			zap.Bool("keyboard_found", kbFound),
			zap.Bool("mouse_found", mouseFound),
			zap.String("keyboard_filter", keyboardFilter),
			zap.String("mouse_filter", mouseFilter),
			zap.Int("enumerated", len(descriptors)))
		return false
	}

	keyboard, err := s.transport.Open(kbDesc)
	if err != nil {
		s.logger.Warn("failed to open keyboard device",
			zap.String("hardware_id", kbDesc.HardwareID), zap.Error(err))
		return false
	}
	mouse, err := s.transport.Open(mouseDesc)
	if err != nil {
		s.logger.Warn("failed to open mouse device",
			zap.String("hardware_id", mouseDesc.HardwareID), zap.Error(err))
		// Keep the prior pair intact; only the just-opened handle is closed.
		if cerr := keyboard.Close(); cerr != nil {
			s.logger.Debug("closing keyboard handle after failed capture", zap.Error(cerr))
		}
		return false
	}

	s.mu.Lock()
	oldKeyboard, oldMouse := s.keyboard, s.mouse
	s.keyboard, s.mouse = keyboard, mouse
	disableAccel := s.disableAccel
	s.mu.Unlock()

	closeQuietly(oldKeyboard, s.logger)
	closeQuietly(oldMouse, s.logger)

	if disableAccel {
		// Best effort: an injection target without acceleration control is
		// still usable, just less precise on relative moves.
		if err := s.transport.SetMouseAcceleration(mouse, false); err != nil {
			s.logger.Warn("could not disable mouse acceleration", zap.Error(err))
		}
	}

	s.logger.Info("input devices captured",
		zap.String("keyboard", kbDesc.HardwareID),
		zap.String("mouse", mouseDesc.HardwareID))
	return true
}

// Keyboard returns the captured keyboard handle, or nil before a successful
// Capture.
func (s *Selector) Keyboard() Handle {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.keyboard
}

// Mouse returns the captured mouse handle, or nil before a successful
// Capture.
func (s *Selector) Mouse() Handle {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.mouse
}

// SetDisableAccel updates the acceleration flag consulted on the next
// capture.
func (s *Selector) SetDisableAccel(disable bool) {
	s.mu.Lock()
	s.disableAccel = disable
	s.mu.Unlock()
}

// Close releases both captured handles. The selector can capture again
// afterwards.
func (s *Selector) Close() error {
	s.mu.Lock()
	keyboard, mouse := s.keyboard, s.mouse
	s.keyboard, s.mouse = nil, nil
	s.mu.Unlock()

	var firstErr error
	for _, h := range []Handle{keyboard, mouse} {
		if h == nil {
			continue
		}
		if err := h.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

func matchFirst(descriptors []Descriptor, class Class, filter string) (Descriptor, bool) {
	for _, d := range descriptors {
		if d.Class != class {
			continue
		}
		if filter == "" || strings.Contains(d.HardwareID, filter) {
			return d, true
		}
	}
	return Descriptor{}, false
}

func closeQuietly(h Handle, logger *zap.Logger) {
	if h == nil {
		return
	}
	if err := h.Close(); err != nil {
		logger.Debug("closing replaced device handle", zap.Error(err))
	}
}
