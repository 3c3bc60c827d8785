package health

import (
	"context"
	"net"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func unusedURL(t *testing.T) string {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	addr := ln.Addr().String()
	require.NoError(t, ln.Close())
	return "http://" + addr + "/"
}

func TestCheck_StatusCodes(t *testing.T) {
	var status atomic.Int32
	status.Store(http.StatusOK)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(int(status.Load()))
	}))
	defer srv.Close()

	ctx := context.Background()
	require.True(t, Check(ctx, nil, srv.URL))

	status.Store(http.StatusNoContent)
	require.True(t, Check(ctx, nil, srv.URL))

	status.Store(http.StatusServiceUnavailable)
	require.False(t, Check(ctx, nil, srv.URL))

	status.Store(http.StatusNotFound)
	require.False(t, Check(ctx, nil, srv.URL))
}

func TestCheck_UnreachableReturnsFalseWithinBound(t *testing.T) {
	start := time.Now()
	require.False(t, Check(context.Background(), NewClient(DefaultTimeout), unusedURL(t)))
	require.Less(t, time.Since(start), DefaultTimeout+time.Second)

	require.False(t, Check(context.Background(), nil, "://bad url"))
}

func TestCheck_SlowServerTimesOut(t *testing.T) {
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		<-release
	}))
	defer srv.Close()
	defer close(release)

	start := time.Now()
	require.False(t, Check(context.Background(), NewClient(200*time.Millisecond), srv.URL))
	require.Less(t, time.Since(start), 2*time.Second)
}

func TestWait_SucceedsOnceHealthy(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		if calls.Add(1) < 3 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	ok := Wait(context.Background(), srv.URL, WaitOptions{Interval: 20 * time.Millisecond, Timeout: 2 * time.Second})
	require.True(t, ok)
	require.GreaterOrEqual(t, calls.Load(), int32(3))
}

func TestWait_TimesOut(t *testing.T) {
	start := time.Now()
	ok := Wait(context.Background(), unusedURL(t), WaitOptions{
		Client:   NewClient(100 * time.Millisecond),
		Interval: 50 * time.Millisecond,
		Timeout:  300 * time.Millisecond,
	})
	require.False(t, ok)
	elapsed := time.Since(start)
	require.GreaterOrEqual(t, elapsed, 300*time.Millisecond)
	require.Less(t, elapsed, 2*time.Second)
}

func TestWait_SlowCheckDoesNotOutlastTimeout(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-r.Context().Done():
		case <-time.After(3 * time.Second):
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	start := time.Now()
	ok := Wait(context.Background(), srv.URL, WaitOptions{
		Client:   NewClient(3 * time.Second),
		Interval: 50 * time.Millisecond,
		Timeout:  300 * time.Millisecond,
	})
	require.False(t, ok)
	require.Less(t, time.Since(start), 1500*time.Millisecond)
}
