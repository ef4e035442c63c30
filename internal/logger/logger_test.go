package logger

import (
	"bytes"
	"context"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestParseLevel(t *testing.T) {
	tests := map[string]slog.Level{
		"debug":   slog.LevelDebug,
		"INFO":    slog.LevelInfo,
		"warning": slog.LevelWarn,
		"warn":    slog.LevelWarn,
		"error":   slog.LevelError,
		"bogus":   slog.LevelInfo,
	}
	for name, want := range tests {
		t.Run(name, func(t *testing.T) {
			assert.Equal(t, want, ParseLevel(name))
		})
	}
}

func TestContextMatchIDIsAttached(t *testing.T) {
	var buf bytes.Buffer
	SetOutput(&buf, slog.LevelDebug)
	t.Cleanup(func() { SetLevel(slog.LevelInfo) })

	ctx := WithMatchID(context.Background(), "m-1")
	InfoContext(ctx, "turn switched", "to", "partner")

	out := buf.String()
	assert.Contains(t, out, "match_id=m-1")
	assert.Contains(t, out, "to=partner")
}

func TestLevelFiltersDebug(t *testing.T) {
	var buf bytes.Buffer
	SetOutput(&buf, slog.LevelInfo)
	t.Cleanup(func() { SetLevel(slog.LevelInfo) })

	Debug("hidden")
	Warn("shown")

	assert.NotContains(t, buf.String(), "hidden")
	assert.Contains(t, buf.String(), "shown")
}
