package net

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
)

var ErrorURLNotFound = errors.New("URL not found")

// Open issues a GET for url and returns the response body.
// Callers must close the returned reader.
func Open(ctx context.Context, c *http.Client, url string) (io.ReadCloser, error) {
	if c == nil {
		return nil, errors.New("http client required")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("error creating HTTP Get request: %w", err)
	}

	resp, err := c.Do(req)
	if err != nil {
		return nil, fmt.Errorf("error executing GET %s: %w", url, err)
	}

	if resp.StatusCode == http.StatusNotFound {
		resp.Body.Close()
		return nil, fmt.Errorf("%w: %s", ErrorURLNotFound, url)
	}

	if err := checkStatus(req, resp); err != nil {
		resp.Body.Close()
		return nil, err
	}

	return resp.Body, nil
}
