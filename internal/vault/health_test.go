package vault

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestPingAPISucceedsOnSixthAttempt(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) < 6 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	c := newTestClient(t, "", "services: {}\n")
	c.httpClient = srv.Client()
	c.pingURL = srv.URL
	c.pingInterval = time.Millisecond

	assert.True(t, c.pingAPI(context.Background()))
	assert.Equal(t, int32(6), calls.Load())
}

func TestPingAPIGivesUpAfterAllRetries(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	c := newTestClient(t, "", "services: {}\n")
	c.httpClient = srv.Client()
	c.pingURL = srv.URL
	c.pingInterval = time.Millisecond

	assert.False(t, c.pingAPI(context.Background()))
	assert.Equal(t, int32(pingRetries), calls.Load())
}

func TestPingAPIStopsOnCancelledContext(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	c := newTestClient(t, "", "services: {}\n")
	c.httpClient = srv.Client()
	c.pingURL = srv.URL
	c.pingInterval = time.Minute

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	done := make(chan bool, 1)
	go func() { done <- c.pingAPI(ctx) }()

	select {
	case ok := <-done:
		assert.False(t, ok)
	case <-time.After(5 * time.Second):
		t.Fatal("pingAPI did not return after context cancellation")
	}
}
