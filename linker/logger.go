package linker

import (
	"github.com/wippyai/wasm-adapter/internal/logging"
	"go.uber.org/zap"
)

var linkLog = logging.New("linker")

// Logger returns the logger instantiation steps, faults and handle events
// are reported to.
func Logger() *zap.Logger {
	return linkLog.Get()
}

// SetLogger replaces the linker's logger. Passing nil silences it again.
func SetLogger(l *zap.Logger) {
	linkLog.Set(l)
}
