package health

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-faster/errors"
	"github.com/stretchr/testify/require"
)

func TestReadinessGates(t *testing.T) {
	h := New()
	require.False(t, h.IsReady(), "zero state is not ready")

	h.SetReady(true)
	require.True(t, h.IsReady())

	h.SetReady(false)
	require.False(t, h.IsReady())
}

func TestFailureThreshold(t *testing.T) {
	boom := errors.New("down")
	c := &check{name: "dep", timeout: time.Second, fn: func(context.Context) error {
		return boom
	}}
	c.healthy.Store(true)

	ctx := context.Background()
	c.run(ctx)
	c.run(ctx)
	require.True(t, c.healthy.Load(), "below threshold stays healthy")

	c.run(ctx)
	require.False(t, c.healthy.Load(), "third consecutive failure flips unhealthy")

	c.fn = func(context.Context) error { return nil }
	c.run(ctx)
	require.True(t, c.healthy.Load(), "one success recovers")
}

func TestReadyEndpoint(t *testing.T) {
	h := New()
	h.AddReadinessCheck("db", time.Second, func(context.Context) error {
		return nil
	})
	h.SetReady(true)

	rec := httptest.NewRecorder()
	h.ReadyEndpoint(rec, httptest.NewRequest(http.MethodGet, "/readyz", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	require.JSONEq(t, `{"status":"ok"}`, rec.Body.String())

	h.SetReady(false)
	rec = httptest.NewRecorder()
	h.ReadyEndpoint(rec, httptest.NewRequest(http.MethodGet, "/readyz", nil))
	require.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestLiveEndpointReportsFailure(t *testing.T) {
	h := New()
	h.AddLivenessCheck("stuck", time.Second, func(context.Context) error {
		return errors.New("deadlocked")
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	h.Start(ctx, 10*time.Millisecond)
	defer h.Stop()

	require.Eventually(t, func() bool {
		rec := httptest.NewRecorder()
		h.LiveEndpoint(rec, httptest.NewRequest(http.MethodGet, "/livez", nil))
		return rec.Code == http.StatusServiceUnavailable
	}, time.Second, 10*time.Millisecond)
}

func TestGoroutineCountCheck(t *testing.T) {
	require.NoError(t, GoroutineCountCheck(1_000_000)(context.Background()))
	require.Error(t, GoroutineCountCheck(0)(context.Background()))
}
