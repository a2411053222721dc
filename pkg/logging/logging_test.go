package logging

import (
	"bytes"
	"log/slog"
	"strings"
	"testing"
)

func TestParseLevel(t *testing.T) {
	tcases := map[string]slog.Level{
		"debug":   slog.LevelDebug,
		" INFO ":  slog.LevelInfo,
		"":        slog.LevelInfo,
		"warning": slog.LevelWarn,
		"error":   slog.LevelError,
		"chatty":  slog.LevelInfo,
	}
	for in, want := range tcases {
		if got := ParseLevel(in); got != want {
			t.Errorf("ParseLevel(%q) = %v, want %v", in, got, want)
		}
	}
}

func TestSetup(t *testing.T) {
	prev := slog.Default()
	t.Cleanup(func() { slog.SetDefault(prev) })

	if err := Setup(Options{Level: "loud"}); err == nil {
		t.Fatalf("Setup accepted an unknown level")
	}

	var buf bytes.Buffer
	if err := Setup(Options{Level: "warn", Format: "json", Output: &buf}); err != nil {
		t.Fatalf("Setup: %v", err)
	}
	slog.Info("hidden")
	slog.Warn("shown", "room", "general")

	out := buf.String()
	if strings.Contains(out, "hidden") {
		t.Errorf("info record written at warn level: %s", out)
	}
	if !strings.Contains(out, `"msg":"shown"`) || !strings.Contains(out, `"room":"general"`) {
		t.Errorf("json record missing fields: %s", out)
	}
}

func TestLoadEnv(t *testing.T) {
	t.Setenv("ROOMSPEAK_LOG_LEVEL", "debug")
	t.Setenv("ROOMSPEAK_LOG_FORMAT", "json")

	opts := Options{Level: "info", Format: "text"}
	if err := LoadEnv(&opts); err != nil {
		t.Fatalf("LoadEnv: %v", err)
	}
	if opts.Level != "debug" || opts.Format != "json" {
		t.Errorf("LoadEnv = %+v", opts)
	}
	if err := Setup(Options{Format: "xml"}); err == nil {
		t.Errorf("Setup accepted an unknown format")
	}
}
