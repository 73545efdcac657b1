package log_test

import (
	"bytes"
	"log/slog"
	"testing"

	"github.com/dukex/actflow/pkg/log"
	"github.com/stretchr/testify/assert"
)

func TestParseLevel(t *testing.T) {
	testCases := map[string]slog.Level{
		"debug":   slog.LevelDebug,
		"INFO":    slog.LevelInfo,
		"warn":    slog.LevelWarn,
		"warning": slog.LevelWarn,
		"error":   slog.LevelError,
		"":        slog.LevelInfo,
		"verbose": slog.LevelInfo,
	}

	for name, want := range testCases {
		assert.Equal(t, want, log.ParseLevel(name), name)
	}
}

func TestContextLogger(t *testing.T) {
	var buf bytes.Buffer

	logger := slog.New(slog.NewTextHandler(&buf, nil)).With("act_id", "act-1")
	ctx := log.IntoContext(t.Context(), logger)

	log.FromContext(ctx, nil).Info("hello")
	assert.Contains(t, buf.String(), "act_id=act-1")

	fallback := slog.New(slog.NewTextHandler(&buf, nil))
	assert.Same(t, fallback, log.FromContext(t.Context(), fallback))
}
