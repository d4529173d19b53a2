package adapter

import (
	"github.com/wippyai/wasm-adapter/internal/logging"
	"go.uber.org/zap"
)

var synthLog = logging.New("adapter")

// Logger returns the logger synthesis reports signature choices to.
func Logger() *zap.Logger {
	return synthLog.Get()
}

// SetLogger replaces the synthesis logger. Passing nil silences it again.
func SetLogger(l *zap.Logger) {
	synthLog.Set(l)
}
