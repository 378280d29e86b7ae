package logging

import (
	"context"
	"log/slog"
	"testing"
)

func TestParseLevel(t *testing.T) {
	cases := []struct {
		in   string
		want slog.Level
	}{
		{"debug", slog.LevelDebug},
		{"INFO", slog.LevelInfo},
		{"warn", slog.LevelWarn},
		{"warning", slog.LevelWarn},
		{" Error ", slog.LevelError},
		{"", slog.LevelInfo},
		{"verbose", slog.LevelInfo},
	}
	for _, tc := range cases {
		if got := parseLevel(tc.in); got != tc.want {
			t.Errorf("parseLevel(%q) = %v, want %v", tc.in, got, tc.want)
		}
	}
}

func TestNewRespectsLevel(t *testing.T) {
	logger := New("test", "error")
	if logger.Enabled(context.Background(), slog.LevelWarn) {
		t.Fatalf("warn should be suppressed at error level")
	}
	if !logger.Enabled(context.Background(), slog.LevelError) {
		t.Fatalf("error should be enabled at error level")
	}
}
