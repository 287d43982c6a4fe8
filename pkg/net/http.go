package net

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
)

const (
	errorBodyLimit = 1 << 12
)

// ErrRoundTrip marks errors where no response was received.
var ErrRoundTrip = errors.New("no response")

// StatusError is returned for non-2xx responses.
type StatusError struct {
	URL        string
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("unexpected status %d from %s: %s", e.StatusCode, e.URL, e.Body)
}

// GetJSON retrieves the HTTP content and decodes it into the passed target.
func GetJSON[T any](ctx context.Context, c *http.Client, url string, target *T) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return fmt.Errorf("error creating HTTP Get request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	return doJSON(c, req, target)
}

// PostJSON encodes in as the request body and decodes the response into out.
// A nil out discards the response body.
func PostJSON[T any](ctx context.Context, c *http.Client, url string, in any, out *T) error {
	b, err := json.Marshal(in)
	if err != nil {
		return fmt.Errorf("error encoding request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(b))
	if err != nil {
		return fmt.Errorf("error creating HTTP Post request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	return doJSON(c, req, out)
}

func doJSON[T any](c *http.Client, req *http.Request, target *T) error {
	if c == nil {
		return errors.New("http client required")
	}

	resp, err := c.Do(req)
	if err != nil {
		return fmt.Errorf("%w: error executing %s %s: %w", ErrRoundTrip, req.Method, req.URL, err)
	}
	defer resp.Body.Close()
	PrintHTTPResponse(resp)

	if err := checkStatus(req, resp); err != nil {
		return err
	}

	if target == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(target); err != nil {
		return fmt.Errorf("error decoding content: %w", err)
	}
	return nil
}

func checkStatus(req *http.Request, resp *http.Response) error {
	if resp.StatusCode >= http.StatusOK && resp.StatusCode < http.StatusMultipleChoices {
		return nil
	}
	body := ""
	if b, err := io.ReadAll(io.LimitReader(resp.Body, errorBodyLimit)); err == nil {
		body = strings.TrimSpace(string(b))
	}
	return &StatusError{
		URL:        req.URL.String(),
		StatusCode: resp.StatusCode,
		Body:       body,
	}
}
