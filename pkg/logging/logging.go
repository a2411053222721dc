// Package logging configures the process-wide log/slog logger for the
// RoomSpeak binaries. Packages log through slog directly with key/value
// pairs; only main calls Setup.
package logging

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/caarlos0/env/v11"
)

// Options controls how logging is configured. Zero values mean info level,
// text format, stdout.
type Options struct {
	Level  string    `env:"ROOMSPEAK_LOG_LEVEL"`
	Format string    `env:"ROOMSPEAK_LOG_FORMAT"`
	Output io.Writer
}

var levels = map[string]slog.Level{
	"debug":   slog.LevelDebug,
	"info":    slog.LevelInfo,
	"":        slog.LevelInfo,
	"warn":    slog.LevelWarn,
	"warning": slog.LevelWarn,
	"error":   slog.LevelError,
}

// LoadEnv overlays ROOMSPEAK_LOG_LEVEL and ROOMSPEAK_LOG_FORMAT onto opts.
func LoadEnv(opts *Options) error {
	if err := env.Parse(opts); err != nil {
		return fmt.Errorf("logging: parse env: %w", err)
	}
	return nil
}

// ParseLevel converts a level name to slog.Level, defaulting to info.
func ParseLevel(level string) slog.Level {
	if l, ok := levels[strings.ToLower(strings.TrimSpace(level))]; ok {
		return l
	}
	return slog.LevelInfo
}

// Validate returns an error if the level name is not recognized.
func Validate(level string) error {
	if _, ok := levels[strings.ToLower(strings.TrimSpace(level))]; !ok {
		return fmt.Errorf("unknown log level %q (valid: %s)", level, LevelNames())
	}
	return nil
}

// LevelNames lists the accepted level names for help text.
func LevelNames() string {
	return "debug, info, warn, error"
}

// Setup installs the default slog logger. Debug level adds source locations.
func Setup(opts Options) error {
	if err := Validate(opts.Level); err != nil {
		return err
	}
	out := opts.Output
	if out == nil {
		out = os.Stdout
	}
	level := ParseLevel(opts.Level)
	handlerOpts := &slog.HandlerOptions{
		Level:     level,
		AddSource: level == slog.LevelDebug,
	}

	var handler slog.Handler
	switch strings.ToLower(opts.Format) {
	case "json":
		handler = slog.NewJSONHandler(out, handlerOpts)
	case "text", "":
		handler = slog.NewTextHandler(out, handlerOpts)
	default:
		return fmt.Errorf("unknown log format %q (valid: text, json)", opts.Format)
	}

	slog.SetDefault(slog.New(handler))
	return nil
}
