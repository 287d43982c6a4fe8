package client

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/rahimizadeh/Prediction-API-with-Flask-and-MLflow/pkg/net"
	"github.com/rahimizadeh/Prediction-API-with-Flask-and-MLflow/pkg/predict"
)

const (
	DefaultURL     = "http://localhost:5001/predict"
	DefaultTimeout = 8 * time.Second
)

var (
	// ErrServerUnreachable is returned when no response arrives within the timeout.
	ErrServerUnreachable = errors.New("server unreachable")

	// ErrInvalidResponse is returned when a 2xx body is not a prediction.
	ErrInvalidResponse = errors.New("invalid prediction response")
)

type request struct {
	Level float64 `json:"level"`
}

type response struct {
	Prediction *float64 `json:"prediction"`
}

type errorResponse struct {
	Error string `json:"error"`
}

// StatusError is returned when the server answers with a non-2xx status.
type StatusError struct {
	StatusCode int
	Message    string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("prediction failed (status: %d): %s", e.StatusCode, e.Message)
}

// Client calls a prediction server.
type Client struct {
	url  string
	http *http.Client
}

// New returns a client for endpoint. A zero timeout uses DefaultTimeout.
func New(endpoint string, timeout time.Duration) (*Client, error) {
	if endpoint == "" {
		endpoint = DefaultURL
	}
	u, err := url.Parse(endpoint)
	if err != nil {
		return nil, fmt.Errorf("invalid url %q: %w", endpoint, err)
	}
	if (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return nil, fmt.Errorf("invalid url %q: http(s) scheme and host required", endpoint)
	}
	if timeout <= 0 {
		timeout = DefaultTimeout
	}

	c, err := net.GetHTTPClientWithTimeout(timeout)
	if err != nil {
		return nil, fmt.Errorf("creating http client: %w", err)
	}

	return &Client{url: endpoint, http: c}, nil
}

// URL returns the endpoint the client posts to.
func (c *Client) URL() string {
	return c.url
}

// Predict posts level and returns the server's prediction. No retries.
func (c *Client) Predict(ctx context.Context, level float64) (*predict.Response, error) {
	var resp response
	err := net.PostJSON(ctx, c.http, c.url, request{Level: level}, &resp)
	if err == nil {
		if resp.Prediction == nil {
			return nil, fmt.Errorf("%w from %s: missing prediction", ErrInvalidResponse, c.url)
		}
		return &predict.Response{Prediction: *resp.Prediction}, nil
	}

	var se *net.StatusError
	if errors.As(err, &se) {
		msg := se.Body
		var er errorResponse
		if jerr := json.Unmarshal([]byte(se.Body), &er); jerr == nil && er.Error != "" {
			msg = er.Error
		}
		return nil, &StatusError{StatusCode: se.StatusCode, Message: msg}
	}

	if ctx.Err() != nil && !errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return nil, ctx.Err()
	}

	if errors.Is(err, net.ErrRoundTrip) {
		return nil, fmt.Errorf("%w: %s: %w", ErrServerUnreachable, c.url, err)
	}

	return nil, fmt.Errorf("%w from %s: %w", ErrInvalidResponse, c.url, err)
}
