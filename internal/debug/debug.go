// Package debug traces protocol traffic when the WAYLAND_DEBUG
// environment variable is set to a positive integer.
package debug

import (
	"fmt"
	"log/slog"
	"os"
	"strconv"
)

var logger *slog.Logger

func init() {
	debugLevel, err := strconv.ParseInt(os.Getenv("WAYLAND_DEBUG"), 10, 0)
	if err != nil {
		return
	}
	if debugLevel > 0 {
		logger = slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelDebug}))
	}
}

// Enabled reports whether tracing is on. Callers can use it to avoid
// formatting messages that will be thrown away.
func Enabled() bool {
	return logger != nil
}

func Printf(str string, args ...any) {
	if logger == nil {
		return
	}
	logger.Debug(fmt.Sprintf(str, args...), "component", "wayland")
}
