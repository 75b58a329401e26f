package logger

import (
	"testing"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func TestComponentFields(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)
	SetLogger(zap.New(core))
	t.Cleanup(func() { SetLogger(newDefault()) })

	InfoCF("store", "Mirror loaded", map[string]any{"profiles": 3, "users": 1})
	WarnC("bot", "Slow send")
	Error("plain")

	entries := logs.AllUntimed()
	if len(entries) != 3 {
		t.Fatalf("got %d entries, want 3", len(entries))
	}

	first := entries[0].ContextMap()
	if first["component"] != "store" || first["profiles"] != int64(3) || first["users"] != int64(1) {
		t.Fatalf("unexpected fields: %v", first)
	}
	if entries[1].Level != zapcore.WarnLevel || entries[1].ContextMap()["component"] != "bot" {
		t.Fatalf("unexpected warn entry: %+v", entries[1])
	}
	if _, ok := entries[2].ContextMap()["component"]; ok {
		t.Fatalf("plain entry should not carry a component")
	}
}

func TestSetLevelFiltersDefaultLogger(t *testing.T) {
	t.Cleanup(func() { SetLevel(INFO) })

	SetLevel(WARN)
	if level.Enabled(zapcore.InfoLevel) {
		t.Fatal("info should be filtered at WARN")
	}
	SetLevel(DEBUG)
	if !level.Enabled(zapcore.DebugLevel) {
		t.Fatal("debug should pass at DEBUG")
	}
}

func TestParseLevel(t *testing.T) {
	tests := map[string]LogLevel{
		"debug":   DEBUG,
		" WARN ":  WARN,
		"warning": WARN,
		"error":   ERROR,
		"info":    INFO,
		"":        INFO,
		"verbose": INFO,
	}
	for in, want := range tests {
		if got := ParseLevel(in); got != want {
			t.Fatalf("ParseLevel(%q) = %v, want %v", in, got, want)
		}
	}
}
