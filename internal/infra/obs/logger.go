package obs

import (
	"io"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/lmittmann/tint"
)

// NewLogger returns a colourised tint logger for dev and local environments
// and JSON everywhere else. level overrides the environment default when it
// names a slog level ("debug", "info", "warn", "error").
func NewLogger(env, level string) *slog.Logger {
	return newLogger(os.Stdout, env, level)
}

func newLogger(w io.Writer, env, level string) *slog.Logger {
	dev := env == "dev" || env == "local"
	lvl := slog.LevelInfo
	if dev {
		lvl = slog.LevelDebug
	}
	if level != "" {
		// unknown names keep the default
		_ = lvl.UnmarshalText([]byte(strings.TrimSpace(level)))
	}
	if dev {
		return slog.New(tint.NewHandler(w, &tint.Options{
			Level:      lvl,
			TimeFormat: time.Kitchen,
			AddSource:  true,
		}))
	}
	return slog.New(slog.NewJSONHandler(w, &slog.HandlerOptions{Level: lvl}))
}
