package logging

import (
	"testing"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func TestLogger(t *testing.T) {
	p := New("linker")
	if p.Get() != nop {
		t.Fatal("new logger is not the no-op logger")
	}

	core, logs := observer.New(zapcore.DebugLevel)
	p.Set(zap.New(core))
	p.Get().Debug("linked", zap.String("interface", "test:e2e/api"))

	entries := logs.All()
	if len(entries) != 1 {
		t.Fatalf("got %d entries", len(entries))
	}
	if e := entries[0]; e.LoggerName != "linker" || e.Message != "linked" || e.ContextMap()["interface"] != "test:e2e/api" {
		t.Errorf("entry = %s %q %v", e.LoggerName, e.Message, e.ContextMap())
	}

	p.Set(nil)
	p.Get().Info("dropped")
	if logs.Len() != 1 {
		t.Error("reset logger still writes to the old core")
	}
}
