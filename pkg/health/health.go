// Package health probes the backend's HTTP health endpoint.
package health

import (
	"context"
	"io"
	"net/http"
	"time"
)

const (
	DefaultTimeout      = 3 * time.Second
	DefaultPollInterval = 500 * time.Millisecond
	DefaultReadyTimeout = 15 * time.Second
)

func NewClient(timeout time.Duration) *http.Client {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &http.Client{Timeout: timeout}
}

// Check issues one GET against url and reports whether a 2xx came back.
// Network errors, timeouts and non-2xx statuses all yield false.
func Check(ctx context.Context, client *http.Client, url string) bool {
	if client == nil {
		client = NewClient(DefaultTimeout)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return false
	}
	resp, err := client.Do(req)
	if err != nil {
		return false
	}
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))
	_ = resp.Body.Close()
	return resp.StatusCode >= 200 && resp.StatusCode < 300
}

type WaitOptions struct {
	Client   *http.Client
	Interval time.Duration
	Timeout  time.Duration
}

// Wait polls Check at a fixed interval until it succeeds or Timeout elapses.
// No single check runs past the overall deadline.
func Wait(ctx context.Context, url string, opts WaitOptions) bool {
	if opts.Interval <= 0 {
		opts.Interval = DefaultPollInterval
	}
	if opts.Timeout <= 0 {
		opts.Timeout = DefaultReadyTimeout
	}

	deadline := time.Now().Add(opts.Timeout)
	t := time.NewTicker(opts.Interval)
	defer t.Stop()

	for {
		if checkBefore(ctx, opts.Client, url, deadline) {
			return true
		}
		if time.Now().After(deadline) {
			return false
		}
		select {
		case <-ctx.Done():
			return false
		case <-t.C:
		}
	}
}

func checkBefore(ctx context.Context, client *http.Client, url string, deadline time.Time) bool {
	ctx, cancel := context.WithDeadline(ctx, deadline)
	defer cancel()
	return Check(ctx, client, url)
}
