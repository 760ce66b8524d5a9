package logger

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWithRequestID(t *testing.T) {
	var buf bytes.Buffer
	base := slog.New(slog.NewJSONHandler(&buf, nil))
	ctx := WithRequestID(WithContext(context.Background(), base), "req-1")

	Info(ctx, "hello", "k", "v")

	var line map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &line))
	assert.Equal(t, "hello", line["msg"])
	assert.Equal(t, "req-1", line["request_id"])
	assert.Equal(t, "v", line["k"])
}

func TestParseLevel(t *testing.T) {
	assert.Equal(t, slog.LevelDebug, ParseLevel("DEBUG"))
	assert.Equal(t, slog.LevelWarn, ParseLevel("warning"))
	assert.Equal(t, slog.LevelError, ParseLevel("error"))
	assert.Equal(t, slog.LevelInfo, ParseLevel("nonsense"))
}

func TestSetupWritesToFile(t *testing.T) {
	prev := FromContext(context.Background())
	t.Cleanup(func() { SetDefault(prev) })

	path := filepath.Join(t.TempDir(), "taskd.log")
	closer := Setup(Options{Level: "debug", File: path})
	Debug(context.Background(), "to file")
	require.NoError(t, closer.Close())

	assert.FileExists(t, path)
}
