package health

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/go-faster/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func passing() CheckFunc {
	return func(_ context.Context) error { return nil }
}

func failing(msg string) CheckFunc {
	return func(_ context.Context) error { return errors.New(msg) }
}

func probeLive(t *testing.T, h *Health) (*httptest.ResponseRecorder, statusResponse) {
	t.Helper()
	w := httptest.NewRecorder()
	h.LiveEndpoint(w, httptest.NewRequest(http.MethodGet, "/livez", nil))
	var body statusResponse
	require.NoError(t, json.NewDecoder(w.Body).Decode(&body))
	return w, body
}

func probeReady(t *testing.T, h *Health) (*httptest.ResponseRecorder, statusResponse) {
	t.Helper()
	w := httptest.NewRecorder()
	h.ReadyEndpoint(w, httptest.NewRequest(http.MethodGet, "/readyz", nil))
	var body statusResponse
	require.NoError(t, json.NewDecoder(w.Body).Decode(&body))
	return w, body
}

func TestLiveEndpointAllPassing(t *testing.T) {
	h := New()
	h.AddLivenessCheck("one", time.Second, passing())
	h.AddLivenessCheck("two", time.Second, passing())

	w, body := probeLive(t, h)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "application/json", w.Header().Get("Content-Type"))
	assert.Equal(t, "ok", body.Status)
}

func TestLiveEndpointFailureThreshold(t *testing.T) {
	h := New()
	h.AddLivenessCheck("db", time.Second, failing("connection refused"))

	ctx := context.Background()
	c := h.livenessChecks[0]

	// Below the threshold of 3 the check stays healthy.
	c.run(ctx)
	c.run(ctx)
	w, _ := probeLive(t, h)
	assert.Equal(t, http.StatusOK, w.Code)

	c.run(ctx)
	w, body := probeLive(t, h)
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
	assert.Equal(t, "unhealthy", body.Status)
	assert.Equal(t, "connection refused", body.Checks["db"])
}

func TestReadyEndpointManualGate(t *testing.T) {
	h := New()
	h.AddReadinessCheck("cache", time.Second, passing())

	w, body := probeReady(t, h)
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
	assert.Contains(t, body.Checks, "_readiness")

	h.SetReady(true)
	w, body = probeReady(t, h)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "ok", body.Status)

	h.SetReady(false)
	w, _ = probeReady(t, h)
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
}

func TestReadyEndpointOneFailingCheck(t *testing.T) {
	h := New()
	h.AddReadinessCheck("db", time.Second, passing())
	h.AddReadinessCheck("cache", time.Second, failing("cache miss"))
	h.SetReady(true)

	ctx := context.Background()
	for range 3 {
		h.readinessChecks[1].run(ctx)
	}

	w, body := probeReady(t, h)
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
	assert.Contains(t, body.Checks, "cache")
	assert.NotContains(t, body.Checks, "db")
}

func TestIsReady(t *testing.T) {
	h := New()
	h.AddReadinessCheck("db", time.Second, passing())

	assert.False(t, h.IsReady(), "not ready before SetReady")
	h.SetReady(true)
	assert.True(t, h.IsReady())
}

func TestCheckRecovery(t *testing.T) {
	down := true
	h := New()
	h.AddLivenessCheck("flaky", time.Second, func(_ context.Context) error {
		if down {
			return errors.New("down")
		}
		return nil
	})
	c := h.livenessChecks[0]
	ctx := context.Background()

	for range 3 {
		c.run(ctx)
	}
	assert.False(t, c.isHealthy())

	// successThreshold is 1, so a single pass recovers.
	down = false
	c.run(ctx)
	assert.True(t, c.isHealthy())
}

func TestLastErrorStored(t *testing.T) {
	h := New()
	h.AddLivenessCheck("db", time.Second, failing("timeout"))
	c := h.livenessChecks[0]

	assert.Nil(t, c.lastError())
	c.run(context.Background())
	assert.EqualError(t, c.lastError(), "timeout")
}

func TestStopIsIdempotent(t *testing.T) {
	h := New()
	h.AddLivenessCheck("noop", time.Second, passing())

	h.Start(context.Background(), 50*time.Millisecond)
	time.Sleep(20 * time.Millisecond)
	h.Stop()
	h.Stop()
}

func TestConcurrentAccess(t *testing.T) {
	h := New()
	h.AddLivenessCheck("live", time.Second, failing("err"))
	h.AddReadinessCheck("ready", time.Second, passing())
	h.SetReady(true)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	h.Start(ctx, 10*time.Millisecond)

	var wg sync.WaitGroup
	for range 8 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for range 50 {
				h.IsReady()

				w := httptest.NewRecorder()
				h.LiveEndpoint(w, httptest.NewRequest(http.MethodGet, "/livez", nil))
				w = httptest.NewRecorder()
				h.ReadyEndpoint(w, httptest.NewRequest(http.MethodGet, "/readyz", nil))
			}
		}()
	}
	wg.Wait()
	h.Stop()
}

func TestGoroutineCountCheck(t *testing.T) {
	assert.NoError(t, GoroutineCountCheck(100000)(context.Background()))

	err := GoroutineCountCheck(0)(context.Background())
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "exceeds threshold")
}

func TestGCMaxPauseCheck(t *testing.T) {
	assert.NoError(t, GCMaxPauseCheck(time.Hour)(context.Background()))
}
