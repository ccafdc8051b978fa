package logging

import (
	"testing"

	"go.uber.org/zap"
)

func TestInitLevels(t *testing.T) {
	l, err := Init("debug", "dev")
	if err != nil {
		t.Fatalf("init: %v", err)
	}
	defer l.Closer()
	if l.Level.Level() != zap.DebugLevel {
		t.Fatalf("level = %v", l.Level.Level())
	}

	l2, err := Init("nonsense", "production")
	if err != nil {
		t.Fatalf("init: %v", err)
	}
	defer l2.Closer()
	if l2.Level.Level() != zap.InfoLevel {
		t.Fatalf("fallback level = %v", l2.Level.Level())
	}
	if l2.Base.Core().Enabled(zap.DebugLevel) {
		t.Fatalf("debug should be disabled at info level")
	}
}
