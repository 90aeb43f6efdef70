package logging

import (
	"bytes"
	"context"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newBufLogger(buf *bytes.Buffer) *SlogLogger {
	h := slog.NewTextHandler(buf, &slog.HandlerOptions{Level: slog.LevelDebug})
	return NewSlogLogger(slog.New(h))
}

func TestSlogLogger_Levels(t *testing.T) {
	var buf bytes.Buffer
	l := newBufLogger(&buf)
	ctx := context.Background()

	l.Debug(ctx, "debug msg", "k", "v")
	l.Info(ctx, "info msg")
	l.Warn(ctx, "warn msg")
	l.Error(ctx, "error msg")

	out := buf.String()
	assert.Contains(t, out, "debug msg")
	assert.Contains(t, out, "info msg")
	assert.Contains(t, out, "warn msg")
	assert.Contains(t, out, "error msg")
	assert.Contains(t, out, "k=v")
}

func TestSlogLogger_With(t *testing.T) {
	var buf bytes.Buffer
	l := newBufLogger(&buf)

	child := l.With("component", "api")
	require.NotNil(t, child)
	child.Info(context.Background(), "hello")

	assert.Contains(t, buf.String(), "component=api")
}

func TestNopLogger(t *testing.T) {
	var l Logger = NopLogger{}
	// must not panic, With must return a usable logger
	l.With("a", 1).Info(context.Background(), "ignored")
}
