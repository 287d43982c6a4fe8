package net

import (
	"context"
	"fmt"
	"net/http"
	"net/http/cookiejar"
	"time"

	"golang.org/x/oauth2"
)

const (
	maxIdleConns     = 10
	timeoutInSeconds = 60
	clientAgent      = "predictor/1.0"
)

var (
	reqTransport = &http.Transport{
		Proxy:                 http.ProxyFromEnvironment,
		MaxIdleConns:          maxIdleConns,
		IdleConnTimeout:       timeoutInSeconds * time.Second,
		DisableKeepAlives:     false,
		ResponseHeaderTimeout: time.Duration(timeoutInSeconds) * time.Second,
	}
)

// GetHTTPClient returns a client on the shared transport with the default timeout.
func GetHTTPClient() (*http.Client, error) {
	return GetHTTPClientWithTimeout(timeoutInSeconds * time.Second)
}

// GetHTTPClientWithTimeout returns a client on the shared transport with the given timeout.
func GetHTTPClientWithTimeout(timeout time.Duration) (*http.Client, error) {
	jar, err := cookiejar.New(nil)
	if err != nil {
		return nil, fmt.Errorf("error creating cookie jar: %w", err)
	}
	return &http.Client{
		Timeout:   timeout,
		Transport: &agentTransport{base: reqTransport},
		Jar:       jar,
	}, nil
}

// GetOAuthClient wraps base so every request carries token as a bearer token.
// An empty token returns base unchanged.
func GetOAuthClient(ctx context.Context, token string, base *http.Client) *http.Client {
	if token == "" {
		return base
	}

	ts := oauth2.StaticTokenSource(
		&oauth2.Token{
			TokenType:   "Bearer",
			AccessToken: token,
		},
	)
	if base != nil {
		ctx = context.WithValue(ctx, oauth2.HTTPClient, base)
	}
	tc := oauth2.NewClient(ctx, ts)
	if base != nil {
		tc.Timeout = base.Timeout
		tc.Jar = base.Jar
	}

	return tc
}

type agentTransport struct {
	base http.RoundTripper
}

func (t *agentTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	if req.Header.Get("User-Agent") != "" {
		return t.base.RoundTrip(req)
	}
	r := req.Clone(req.Context())
	r.Header.Set("User-Agent", clientAgent)
	return t.base.RoundTrip(r)
}
