package client

import (
	"context"
	"encoding/json"
	"errors"
	"net"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func closedURL(t *testing.T) string {
	t.Helper()
	l, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	addr := l.Addr().String()
	require.NoError(t, l.Close())
	return "http://" + addr + "/predict"
}

func TestNew_Defaults(t *testing.T) {
	c, err := New("", 0)
	require.NoError(t, err)
	assert.Equal(t, DefaultURL, c.URL())
	assert.Equal(t, DefaultTimeout, c.http.Timeout)
}

func TestNew_InvalidURL(t *testing.T) {
	for _, u := range []string{"://bad", "localhost:5001/predict", "ftp://localhost/predict", "http:///predict"} {
		_, err := New(u, time.Second)
		assert.Error(t, err, u)
	}
}

func TestClient_Predict(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		var body map[string]float64
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, 6.5, body["level"])
		w.Write([]byte(`{"prediction": 150000.0}`))
	}))
	defer srv.Close()

	c, err := New(srv.URL+"/predict", time.Second)
	require.NoError(t, err)

	resp, err := c.Predict(context.Background(), 6.5)
	require.NoError(t, err)
	assert.Equal(t, 150000.0, resp.Prediction)
}

func TestClient_PredictStatusError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		w.Write([]byte(`{"error": "level is required"}`))
	}))
	defer srv.Close()

	c, err := New(srv.URL, time.Second)
	require.NoError(t, err)

	_, err = c.Predict(context.Background(), 1)
	var se *StatusError
	require.True(t, errors.As(err, &se))
	assert.Equal(t, http.StatusBadRequest, se.StatusCode)
	assert.Equal(t, "level is required", se.Message)
	assert.False(t, errors.Is(err, ErrServerUnreachable))
}

func TestClient_PredictUnreachable(t *testing.T) {
	c, err := New(closedURL(t), 2*time.Second)
	require.NoError(t, err)

	start := time.Now()
	_, err = c.Predict(context.Background(), 6.5)
	assert.True(t, errors.Is(err, ErrServerUnreachable), "got %v", err)
	assert.Less(t, time.Since(start), 2*time.Second)
}

func TestClient_PredictTimeout(t *testing.T) {
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-release:
		case <-r.Context().Done():
		}
	}))
	defer srv.Close()
	defer close(release)

	timeout := 200 * time.Millisecond
	c, err := New(srv.URL, timeout)
	require.NoError(t, err)

	start := time.Now()
	_, err = c.Predict(context.Background(), 6.5)
	elapsed := time.Since(start)

	assert.True(t, errors.Is(err, ErrServerUnreachable), "got %v", err)
	assert.GreaterOrEqual(t, elapsed, timeout)
	assert.Less(t, elapsed, timeout+2*time.Second)
}

func TestClient_PredictCanceled(t *testing.T) {
	c, err := New(closedURL(t), time.Second)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err = c.Predict(ctx, 1)
	assert.True(t, errors.Is(err, context.Canceled), "got %v", err)
}

func TestClient_PredictNotJSON(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("<html>not a predictor</html>"))
	}))
	defer srv.Close()

	c, err := New(srv.URL, time.Second)
	require.NoError(t, err)

	_, err = c.Predict(context.Background(), 6.5)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrInvalidResponse), "got %v", err)
	assert.False(t, errors.Is(err, ErrServerUnreachable))
}

func TestClient_PredictMissingPrediction(t *testing.T) {
	for _, body := range []string{`{}`, `{"prediction": null}`, `{"result": 1}`} {
		t.Run(body, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.Write([]byte(body))
			}))
			defer srv.Close()

			c, err := New(srv.URL, time.Second)
			require.NoError(t, err)

			resp, err := c.Predict(context.Background(), 6.5)
			assert.Nil(t, resp)
			assert.True(t, errors.Is(err, ErrInvalidResponse), "got %v", err)
			assert.False(t, errors.Is(err, ErrServerUnreachable))
		})
	}
}

func TestClient_PredictZero(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"prediction": 0}`))
	}))
	defer srv.Close()

	c, err := New(srv.URL, time.Second)
	require.NoError(t, err)

	resp, err := c.Predict(context.Background(), 6.5)
	require.NoError(t, err)
	assert.Equal(t, 0.0, resp.Prediction)
}

func TestClient_PredictBadRequestURL(t *testing.T) {
	c := &Client{url: "://bad", http: http.DefaultClient}

	_, err := c.Predict(context.Background(), 6.5)
	require.Error(t, err)
	assert.False(t, errors.Is(err, ErrServerUnreachable), "got %v", err)
}
