package logging

import (
	"bytes"
	"encoding/json"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewServerLogger(t *testing.T) {
	var buf bytes.Buffer
	logger := NewServerLogger("info", &buf)

	logger.Debug("hidden")
	assert.Zero(t, buf.Len())

	logger.Info("request", "status", 200)

	var rec map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &rec))
	assert.Equal(t, "request", rec["msg"])
	assert.Equal(t, "INFO", rec["level"])
	assert.Equal(t, "predictor", rec["service"])
	assert.Equal(t, float64(200), rec["status"])
}

func TestNewFileWriter(t *testing.T) {
	path := filepath.Join(t.TempDir(), "server.log")
	w := NewFileWriter(path)

	logger := NewServerLogger("debug", w)
	logger.Debug("written")
	require.NoError(t, w.Close())

	assert.FileExists(t, path)
}
