// Package logging holds the replaceable zap loggers of the adapter and
// linker packages.
package logging

import (
	"sync/atomic"

	"go.uber.org/zap"
)

var nop = zap.NewNop()

// Logger is a package logger. It is a no-op logger until Set is called
// and may be replaced while other goroutines log.
type Logger struct {
	name string
	l    atomic.Pointer[zap.Logger]
}

// New creates a Logger whose output is named after pkg.
func New(pkg string) *Logger {
	return &Logger{name: pkg}
}

// Get returns the current logger.
func (p *Logger) Get() *zap.Logger {
	if l := p.l.Load(); l != nil {
		return l
	}
	return nop
}

// Set replaces the logger. A nil logger restores the no-op logger.
func (p *Logger) Set(l *zap.Logger) {
	if l == nil {
		p.l.Store(nil)
		return
	}
	p.l.Store(l.Named(p.name))
}
