// Package logging builds the process-wide structured logger. Both
// binaries write JSON lines to stdout tagged with a service attribute,
// so one collector pipeline can split api and worker streams.
package logging

import (
	"log/slog"
	"os"
	"strings"
)

// New returns a JSON logger at the given level. An unknown level string
// falls back to info instead of failing startup.
func New(service, level string) *slog.Logger {
	handler := slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: parseLevel(level),
	})
	return slog.New(handler).With(slog.String("service", service))
}

func parseLevel(level string) slog.Level {
	name := strings.TrimSpace(level)
	if strings.EqualFold(name, "warning") {
		name = "warn"
	}
	var lvl slog.Level
	if err := lvl.UnmarshalText([]byte(name)); err != nil {
		return slog.LevelInfo
	}
	return lvl
}
