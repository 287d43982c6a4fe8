package cli

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/rahimizadeh/Prediction-API-with-Flask-and-MLflow/pkg/model"
	"github.com/rahimizadeh/Prediction-API-with-Flask-and-MLflow/pkg/registry"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRunServer(t *testing.T) {
	m, err := model.LoadFile(testForest)
	require.NoError(t, err)
	h, _ := newTestRouter(t, m)

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- runServer(ctx, newServer(h), ln) }()

	url := "http://" + ln.Addr().String()

	resp, err := http.Post(url+"/predict", "application/json", strings.NewReader(`{"level": 6.5}`))
	require.NoError(t, err)
	var body map[string]float64
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	resp.Body.Close()
	assert.Equal(t, 150000.0, body["prediction"])

	out, err := runAppWithHome(t, "client", "--url", url+"/predict", "--level", "6.5")
	require.NoError(t, err)
	assert.JSONEq(t, `{"prediction": 150000}`, out)

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(serverShutdownWaitSeconds * 2 * time.Second):
		t.Fatal("server did not stop")
	}
}

func TestRunServer_ServeError(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	require.NoError(t, ln.Close())

	err = runServer(context.Background(), newServer(http.NotFoundHandler()), ln)
	assert.Error(t, err)
}

func runAppWithHome(t *testing.T, args ...string) (string, error) {
	t.Helper()
	setupTestHome(t)
	return runApp(t, "", args...)
}

func TestClientCommand_ServerNotRunning(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	addr := ln.Addr().String()
	require.NoError(t, ln.Close())

	start := time.Now()
	out, err := runAppWithHome(t, "client", "--url", "http://"+addr+"/predict", "--timeout", "2s")
	require.NoError(t, err)
	assert.Equal(t, serverNotRunning+"\n", out)
	assert.Less(t, time.Since(start), 3*time.Second)
}

func TestClientCommand_Timeout(t *testing.T) {
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-release:
		case <-r.Context().Done():
		}
	}))
	defer srv.Close()
	defer close(release)

	out, err := runAppWithHome(t, "client", "--url", srv.URL, "--timeout", "200ms")
	require.NoError(t, err)
	assert.Equal(t, serverNotRunning+"\n", out)
}

func TestClientCommand_StatusError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeError(w, http.StatusBadRequest, "level is required")
	}))
	defer srv.Close()

	_, err := runAppWithHome(t, "client", "--url", srv.URL)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "level is required")
}

func TestClientCommand_NotAPredictor(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("<html>not a predictor</html>"))
	}))
	defer srv.Close()

	out, err := runAppWithHome(t, "client", "--url", srv.URL)
	require.Error(t, err)
	assert.NotContains(t, out, serverNotRunning)
}

func TestClientCommand_InvalidURL(t *testing.T) {
	out, err := runAppWithHome(t, "client", "--url", "://bad")
	require.Error(t, err)
	assert.NotContains(t, out, serverNotRunning)
}

func TestClientCommand_ConfigURL(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]float64{"prediction": 42})
	}))
	defer srv.Close()

	home := setupTestHome(t)
	dir := filepath.Join(home, "."+appName)
	cfgYAML := fmt.Sprintf("client:\n  url: %s/predict\n  timeout: 1s\n", srv.URL)
	require.NoError(t, writeFile(filepath.Join(dir, "config.yaml"), cfgYAML))

	out, err := runApp(t, "", "--format", "yaml", "client")
	require.NoError(t, err)
	assert.Equal(t, "prediction: 42\n", out)
}

func TestServeCommand_ModelLoadFails(t *testing.T) {
	setupTestHome(t)

	_, err := runApp(t, "", "--model", filepath.Join(t.TempDir(), "missing"), "serve", "--port", "0")
	assert.True(t, errors.Is(err, registry.ErrModelNotFound), "got %v", err)
}

func TestServeCommand_RegistryURIWithoutModel(t *testing.T) {
	setupTestHome(t)

	_, err := runApp(t, "", "serve", "--port", "0")
	assert.True(t, errors.Is(err, registry.ErrModelNotFound), "got %v", err)
}
