package engine

import (
	"context"
	"errors"
	"image"
	"math/rand"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
	"go.uber.org/zap"

	"github.com/xkilldash9x/marionette/internal/config"
	"github.com/xkilldash9x/marionette/internal/devices"
	"github.com/xkilldash9x/marionette/internal/keymap"
)

func TestMain(m *testing.M) {
	// The auto-release timers must not leak goroutines past their tests.
	goleak.VerifyTestMain(m)
}

// =============================================================================
// Test infrastructure: mocks and helpers
// =============================================================================

type eventKind string

const (
	evKey     eventKind = "key"
	evButton  eventKind = "button"
	evMove    eventKind = "move"
	evMoveAbs eventKind = "moveabs"
	evScroll  eventKind = "scroll"
)

// recordedEvent is one transport call as observed by the mock.
type recordedEvent struct {
	kind   eventKind
	code   uint16
	button devices.Button
	down   bool
	dx, dy int
	dir    devices.ScrollDirection
}

type mockHandle struct {
	class  devices.Class
	closed bool
}

func (h *mockHandle) Close() error {
	h.closed = true
	return nil
}

// mockTransport records every injected event and can be told to fail
// specific calls.
type mockTransport struct {
	mu     sync.Mutex
	events []recordedEvent

	descriptors []devices.Descriptor
	cursor      image.Point
	cursorErr   error

	keyEventErr    error
	buttonEventErr error
	moveErr        error
	scrollErr      error
}

func newMockTransport() *mockTransport {
	return &mockTransport{
		descriptors: []devices.Descriptor{
			{Class: devices.ClassKeyboard, HardwareID: "mock keyboard", Path: "kb0"},
			{Class: devices.ClassMouse, HardwareID: "mock mouse", Path: "mouse0"},
		},
		cursor: image.Pt(0, 0),
	}
}

func (m *mockTransport) EnumerateDevices() ([]devices.Descriptor, error) {
	return m.descriptors, nil
}

func (m *mockTransport) Open(desc devices.Descriptor) (devices.Handle, error) {
	return &mockHandle{class: desc.Class}, nil
}

func (m *mockTransport) SendKeyEvent(h devices.Handle, code uint16, down bool) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.keyEventErr != nil {
		return m.keyEventErr
	}
	m.events = append(m.events, recordedEvent{kind: evKey, code: code, down: down})
	return nil
}

func (m *mockTransport) SendButtonEvent(h devices.Handle, b devices.Button, down bool) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.buttonEventErr != nil {
		return m.buttonEventErr
	}
	m.events = append(m.events, recordedEvent{kind: evButton, button: b, down: down})
	return nil
}

func (m *mockTransport) SendMouseMove(h devices.Handle, dx, dy int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.moveErr != nil {
		return m.moveErr
	}
	m.events = append(m.events, recordedEvent{kind: evMove, dx: dx, dy: dy})
	return nil
}

func (m *mockTransport) SendMouseMoveAbsolute(h devices.Handle, x, y int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.events = append(m.events, recordedEvent{kind: evMoveAbs, dx: x, dy: y})
	return nil
}

func (m *mockTransport) SendScroll(h devices.Handle, dir devices.ScrollDirection, magnitude int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.scrollErr != nil {
		return m.scrollErr
	}
	m.events = append(m.events, recordedEvent{kind: evScroll, dir: dir})
	return nil
}

func (m *mockTransport) CursorPosition() (image.Point, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.cursor, m.cursorErr
}

func (m *mockTransport) SetMouseAcceleration(h devices.Handle, enabled bool) error {
	return nil
}

// snapshot returns a copy of the recorded events.
func (m *mockTransport) snapshot() []recordedEvent {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]recordedEvent, len(m.events))
	copy(out, m.events)
	return out
}

func (m *mockTransport) eventCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.events)
}

// recordingSleeper collects requested delays instead of waiting.
type recordingSleeper struct {
	mu        sync.Mutex
	durations []time.Duration
}

func (s *recordingSleeper) Sleep(ctx context.Context, d time.Duration) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	s.durations = append(s.durations, d)
	s.mu.Unlock()
	return nil
}

func (s *recordingSleeper) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.durations)
}

// newTestEngine wires an engine with a deterministic random source, a
// recording sleeper and captured mock devices.
func newTestEngine(t *testing.T, tr *mockTransport) (*Engine, *recordingSleeper) {
	t.Helper()

	rng := rand.New(rand.NewSource(12345))
	e, err := newEngine(config.Default(), tr, zap.NewNop(), rng)
	require.NoError(t, err)

	sl := &recordingSleeper{}
	e.sleep = sl

	require.True(t, e.CaptureInputDevices("", ""))
	t.Cleanup(func() { _ = e.Close() })
	return e, sl
}

func keyEvents(events []recordedEvent) []recordedEvent {
	out := make([]recordedEvent, 0, len(events))
	for _, ev := range events {
		if ev.kind == evKey {
			out = append(out, ev)
		}
	}
	return out
}

// =============================================================================
// Held-state tracking
// =============================================================================

func TestHoldIsIdempotent(t *testing.T) {
	tr := newMockTransport()
	e, _ := newTestEngine(t, tr)
	ctx := context.Background()
	in := Key(keymap.KEY_A)

	require.NoError(t, e.Hold(ctx, in, 0))
	require.NoError(t, e.Hold(ctx, in, 0))
	require.NoError(t, e.Hold(ctx, in, 0))

	events := tr.snapshot()
	require.Len(t, events, 1)
	assert.True(t, events[0].down)

	require.NoError(t, e.Release(in))
}

func TestReleaseWithoutHoldEmitsNothing(t *testing.T) {
	tr := newMockTransport()
	e, _ := newTestEngine(t, tr)

	require.NoError(t, e.Release(Key(keymap.KEY_Q)))
	require.NoError(t, e.Release(Button(devices.ButtonLeft)))
	assert.Zero(t, tr.eventCount())
}

func TestHoldDurationAutoReleases(t *testing.T) {
	tr := newMockTransport()
	e, _ := newTestEngine(t, tr)
	in := Key(keymap.KEY_W)

	require.NoError(t, e.Hold(context.Background(), in, 5*time.Millisecond))

	require.Eventually(t, func() bool {
		events := tr.snapshot()
		return len(events) == 2 && !events[1].down
	}, time.Second, time.Millisecond, "auto-release never fired")
}

func TestManualReleaseBeatsAutoRelease(t *testing.T) {
	tr := newMockTransport()
	e, _ := newTestEngine(t, tr)
	in := Key(keymap.KEY_E)

	require.NoError(t, e.Hold(context.Background(), in, 50*time.Millisecond))
	require.NoError(t, e.Release(in))

	// Give a mis-scheduled timer ample time to misbehave.
	time.Sleep(120 * time.Millisecond)

	events := tr.snapshot()
	require.Len(t, events, 2, "exactly one down and one up in total")
	assert.True(t, events[0].down)
	assert.False(t, events[1].down)
}

func TestFailedDownDoesNotMarkHeld(t *testing.T) {
	tr := newMockTransport()
	e, _ := newTestEngine(t, tr)
	in := Key(keymap.KEY_A)

	tr.mu.Lock()
	tr.keyEventErr = errors.New("device unplugged")
	tr.mu.Unlock()

	require.Error(t, e.Hold(context.Background(), in, 0))

	// The key was never down, so a release must emit nothing.
	tr.mu.Lock()
	tr.keyEventErr = nil
	tr.mu.Unlock()
	require.NoError(t, e.Release(in))
	assert.Zero(t, tr.eventCount())
}

func TestFailedUpKeepsInputHeld(t *testing.T) {
	tr := newMockTransport()
	e, _ := newTestEngine(t, tr)
	in := Key(keymap.KEY_A)
	require.NoError(t, e.Hold(context.Background(), in, 0))

	tr.mu.Lock()
	tr.keyEventErr = errors.New("device unplugged")
	tr.mu.Unlock()
	require.Error(t, e.Release(in))

	// Once the device recovers the retry lifts the key.
	tr.mu.Lock()
	tr.keyEventErr = nil
	tr.mu.Unlock()
	require.NoError(t, e.Release(in))

	events := tr.snapshot()
	require.Len(t, events, 2)
	assert.False(t, events[1].down)
}

// =============================================================================
// Press
// =============================================================================

func TestPressPerformsFullCycles(t *testing.T) {
	tr := newMockTransport()
	e, sl := newTestEngine(t, tr)

	require.NoError(t, e.Press(context.Background(), Key(keymap.KEY_SPACE), &PressOptions{Times: 3}))

	events := tr.snapshot()
	require.Len(t, events, 6)
	for i := 0; i < 6; i += 2 {
		assert.True(t, events[i].down, "event %d", i)
		assert.False(t, events[i+1].down, "event %d", i+1)
	}
	// Three hold sleeps plus two inter-repetition sleeps.
	assert.Equal(t, 5, sl.count())
}

func TestPressNonPositiveTimesIsNoop(t *testing.T) {
	tr := newMockTransport()
	e, sl := newTestEngine(t, tr)

	require.NoError(t, e.Press(context.Background(), Key(keymap.KEY_A), &PressOptions{Times: -2}))
	assert.Zero(t, tr.eventCount())
	assert.Zero(t, sl.count())
}

func TestPressUsesConfiguredDefaultDuration(t *testing.T) {
	tr := newMockTransport()
	e, sl := newTestEngine(t, tr)
	e.SetRandomizeDurations(false)
	require.NoError(t, e.SetDefaultPressDuration(9*time.Millisecond))

	require.NoError(t, e.Press(context.Background(), Key(keymap.KEY_A), nil))

	sl.mu.Lock()
	defer sl.mu.Unlock()
	require.Len(t, sl.durations, 1)
	assert.Equal(t, 9*time.Millisecond, sl.durations[0])
}

func TestPressReassertsHeldInput(t *testing.T) {
	tr := newMockTransport()
	e, _ := newTestEngine(t, tr)
	ctx := context.Background()
	in := Key(keymap.KEY_A)

	require.NoError(t, e.Hold(ctx, in, 0))
	require.NoError(t, e.Press(ctx, in, nil))

	events := tr.snapshot()
	// Hold down, press down (forced), press up.
	require.Len(t, events, 3)
	assert.True(t, events[0].down)
	assert.True(t, events[1].down)
	assert.False(t, events[2].down)

	// The press cycle released the key; a further release is a no-op.
	require.NoError(t, e.Release(in))
	assert.Equal(t, 3, tr.eventCount())
}

func TestPressMouseButton(t *testing.T) {
	tr := newMockTransport()
	e, _ := newTestEngine(t, tr)

	require.NoError(t, e.Press(context.Background(), Button(devices.ButtonRight), nil))

	events := tr.snapshot()
	require.Len(t, events, 2)
	assert.Equal(t, evButton, events[0].kind)
	assert.Equal(t, devices.ButtonRight, events[0].button)
}

// =============================================================================
// Write
// =============================================================================

func TestWriteShiftSequence(t *testing.T) {
	tr := newMockTransport()
	e, _ := newTestEngine(t, tr)

	require.NoError(t, e.Write(context.Background(), "Ab"))

	events := keyEvents(tr.snapshot())
	require.Len(t, events, 6)

	expected := []struct {
		code uint16
		down bool
	}{
		{keymap.KEY_LEFTSHIFT, true},
		{keymap.KEY_A, true},
		{keymap.KEY_A, false},
		{keymap.KEY_LEFTSHIFT, false},
		{keymap.KEY_B, true},
		{keymap.KEY_B, false},
	}
	for i, want := range expected {
		assert.Equal(t, want.code, events[i].code, "event %d", i)
		assert.Equal(t, want.down, events[i].down, "event %d", i)
	}
}

func TestWriteSkipsUnmappedCharacters(t *testing.T) {
	tr := newMockTransport()
	e, _ := newTestEngine(t, tr)

	require.NoError(t, e.Write(context.Background(), "a€b"))

	events := keyEvents(tr.snapshot())
	require.Len(t, events, 4)
	assert.Equal(t, keymap.KEY_A, events[0].code)
	assert.Equal(t, keymap.KEY_B, events[2].code)
}

func TestWriteEmptyString(t *testing.T) {
	tr := newMockTransport()
	e, sl := newTestEngine(t, tr)

	require.NoError(t, e.Write(context.Background(), ""))
	assert.Zero(t, tr.eventCount())
	assert.Zero(t, sl.count())
}

// =============================================================================
// Mouse
// =============================================================================

func TestScrollEmitsExactCounts(t *testing.T) {
	tr := newMockTransport()
	e, sl := newTestEngine(t, tr)

	require.NoError(t, e.Scroll(context.Background(), devices.ScrollDown, 3, 5*time.Millisecond))

	events := tr.snapshot()
	require.Len(t, events, 3)
	for _, ev := range events {
		assert.Equal(t, evScroll, ev.kind)
		assert.Equal(t, devices.ScrollDown, ev.dir)
	}
	// Two sleeps separate three events.
	assert.Equal(t, 2, sl.count())
}

func TestScrollZeroTimesIsNoop(t *testing.T) {
	tr := newMockTransport()
	e, _ := newTestEngine(t, tr)

	require.NoError(t, e.Scroll(context.Background(), devices.ScrollUp, 0, time.Millisecond))
	assert.Zero(t, tr.eventCount())
}

func TestMoveMouseToReachesDestinationExactly(t *testing.T) {
	tr := newMockTransport()
	e, sl := newTestEngine(t, tr)
	tr.mu.Lock()
	tr.cursor = image.Pt(100, 200)
	tr.mu.Unlock()

	dest := image.Pt(740, 480)
	require.NoError(t, e.MoveMouseTo(context.Background(), dest, nil))

	var dx, dy int
	moves := 0
	for _, ev := range tr.snapshot() {
		require.Equal(t, evMove, ev.kind, "humanized movement must be relative")
		dx += ev.dx
		dy += ev.dy
		moves++
	}
	assert.Equal(t, dest.X-100, dx)
	assert.Equal(t, dest.Y-200, dy)
	assert.Greater(t, moves, 1, "movement should be stepped, not teleported")
	assert.Equal(t, moves-1, sl.count())
}

func TestMoveMouseToCursorQueryFailure(t *testing.T) {
	tr := newMockTransport()
	e, _ := newTestEngine(t, tr)
	tr.mu.Lock()
	tr.cursorErr = errors.New("no cursor source")
	tr.mu.Unlock()

	err := e.MoveMouseTo(context.Background(), image.Pt(10, 10), nil)
	require.Error(t, err)
	assert.Zero(t, tr.eventCount())
}

func TestSetMousePosIsSingleAbsoluteEvent(t *testing.T) {
	tr := newMockTransport()
	e, sl := newTestEngine(t, tr)

	require.NoError(t, e.SetMousePos(image.Pt(640, 360)))

	events := tr.snapshot()
	require.Len(t, events, 1)
	assert.Equal(t, evMoveAbs, events[0].kind)
	assert.Equal(t, 640, events[0].dx)
	assert.Equal(t, 360, events[0].dy)
	assert.Zero(t, sl.count(), "teleport must not sleep")
}

// =============================================================================
// Device and lifecycle plumbing
// =============================================================================

func TestOperationsWithoutCaptureReturnErrNoDevice(t *testing.T) {
	rng := rand.New(rand.NewSource(1))
	e, err := newEngine(config.Default(), newMockTransport(), zap.NewNop(), rng)
	require.NoError(t, err)
	t.Cleanup(func() { _ = e.Close() })
	ctx := context.Background()

	assert.ErrorIs(t, e.Hold(ctx, Key(keymap.KEY_A), 0), ErrNoDevice)
	assert.ErrorIs(t, e.Press(ctx, Key(keymap.KEY_A), nil), ErrNoDevice)
	assert.ErrorIs(t, e.Scroll(ctx, devices.ScrollUp, 1, 0), ErrNoDevice)
	assert.ErrorIs(t, e.MoveMouseTo(ctx, image.Pt(1, 1), nil), ErrNoDevice)
	assert.ErrorIs(t, e.SetMousePos(image.Pt(1, 1)), ErrNoDevice)
}

func TestCancelledContextStopsOperation(t *testing.T) {
	tr := newMockTransport()
	e, _ := newTestEngine(t, tr)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	assert.ErrorIs(t, e.Press(ctx, Key(keymap.KEY_A), nil), context.Canceled)
	assert.ErrorIs(t, e.Write(ctx, "hi"), context.Canceled)
	assert.ErrorIs(t, e.MoveMouseTo(ctx, image.Pt(5, 5), nil), context.Canceled)
}

func TestCloseReleasesHeldInputs(t *testing.T) {
	tr := newMockTransport()
	rng := rand.New(rand.NewSource(7))
	e, err := newEngine(config.Default(), tr, zap.NewNop(), rng)
	require.NoError(t, err)
	e.sleep = &recordingSleeper{}
	require.True(t, e.CaptureInputDevices("", ""))

	require.NoError(t, e.Hold(context.Background(), Key(keymap.KEY_A), time.Minute))
	require.NoError(t, e.Close())

	events := tr.snapshot()
	require.Len(t, events, 2)
	assert.False(t, events[1].down, "shutdown must lift held keys")
}

func TestSetJitterBoundsValidation(t *testing.T) {
	tr := newMockTransport()
	e, _ := newTestEngine(t, tr)

	assert.Error(t, e.SetJitterBounds(1.5, 2.0))
	assert.NoError(t, e.SetJitterBounds(0.9, 1.1))
}

func TestSetPressIntervalValidation(t *testing.T) {
	tr := newMockTransport()
	e, _ := newTestEngine(t, tr)

	assert.Error(t, e.SetPressInterval(-time.Millisecond))
	assert.NoError(t, e.SetPressInterval(75*time.Millisecond))
	assert.Equal(t, 75*time.Millisecond, e.snapshotConfig().PressInterval)
}
