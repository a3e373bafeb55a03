package slogger

import (
	"bytes"
	"context"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestLevelFromString(t *testing.T) {
	require.Equal(t, LevelDebug, LevelFromString("debug"))
	require.Equal(t, LevelInfo, LevelFromString("INFO"))
	require.Equal(t, LevelWarn, LevelFromString("Warn"))
	require.Equal(t, LevelError, LevelFromString("error"))
	require.Equal(t, DefaultLogLevel, LevelFromString("bogus"))
}

func TestContextLogger(t *testing.T) {
	logger := NewDevNullLogger()
	ctx := WithLogger(context.Background(), logger)
	require.Equal(t, Logger(logger), Ctx(ctx))

	// A context without a logger yields a usable default.
	require.NotNil(t, Ctx(context.Background()))
}

func TestSloggerWith(t *testing.T) {
	var buf bytes.Buffer
	logger := FromSlog(slog.New(slog.NewTextHandler(&buf, nil)))

	child := logger.With("run_id", "run-1")
	child.Info("step completed", "step_id", "fetch")

	out := buf.String()
	require.Contains(t, out, "step completed")
	require.Contains(t, out, "run_id=run-1")
	require.Contains(t, out, "step_id=fetch")
}
