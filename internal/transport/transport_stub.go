//go:build !linux

package transport

import (
	"fmt"
	"runtime"

	"go.uber.org/zap"

	"github.com/xkilldash9x/marionette/internal/devices"
)

// New fails on platforms without an event injection backend.
func New(logger *zap.Logger) (devices.Transport, error) {
	return nil, fmt.Errorf("transport: no injection backend for %s: %w",
		runtime.GOOS, devices.ErrUnsupported)
}
