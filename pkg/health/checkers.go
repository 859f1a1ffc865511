package health

import (
	"context"
	"fmt"
	"runtime"
)

// Pinger is satisfied by pgxpool.Pool and anything else that can verify
// connectivity with a round trip.
type Pinger interface {
	Ping(ctx context.Context) error
}

// PingCheck returns a readiness check that pings the dependency.
func PingCheck(p Pinger) CheckFunc {
	return func(ctx context.Context) error {
		return p.Ping(ctx)
	}
}

// GoroutineCountCheck returns a liveness check that fails when the process
// holds more than max goroutines, a cheap proxy for leaks.
func GoroutineCountCheck(max int) CheckFunc {
	return func(context.Context) error {
		if n := runtime.NumGoroutine(); n > max {
			return fmt.Errorf("too many goroutines: %d > %d", n, max)
		}
		return nil
	}
}
