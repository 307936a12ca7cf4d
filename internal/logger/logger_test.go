package logger

import (
	"testing"

	"go.uber.org/zap/zapcore"
)

func TestNew_Levels(t *testing.T) {
	if !New("debug").Core().Enabled(zapcore.DebugLevel) {
		t.Fatalf("expected debug enabled")
	}
	l := New("bogus")
	if l.Core().Enabled(zapcore.DebugLevel) || !l.Core().Enabled(zapcore.InfoLevel) {
		t.Fatalf("expected unknown level to fall back to info")
	}
	if New("WARN").Core().Enabled(zapcore.InfoLevel) {
		t.Fatalf("expected warn level to disable info")
	}
}
