package http

import (
	"context"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/jonboulle/clockwork"
)

// generateRoute is the model-backed route; its requests can outlive the shutdown window
// and are counted separately so drain logs say what is still pending.
const generateRoute = "/tasks/generate"

// InFlightTracker counts requests being served so shutdown can drain them.
type InFlightTracker struct {
	total      atomic.Int64
	generating atomic.Int64
	clock      clockwork.Clock
}

// NewInFlightTracker creates a tracker on clock. A nil clock uses the real clock.
func NewInFlightTracker(clock clockwork.Clock) *InFlightTracker {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &InFlightTracker{clock: clock}
}

// Begin records the start of r and returns the func that records its end.
func (t *InFlightTracker) Begin(r *http.Request) (done func()) {
	slow := getRoute(r) == generateRoute
	t.total.Add(1)
	if slow {
		t.generating.Add(1)
	}
	return func() {
		if slow {
			t.generating.Add(-1)
		}
		t.total.Add(-1)
	}
}

// Count returns the number of requests in flight.
func (t *InFlightTracker) Count() int64 {
	return t.total.Load()
}

// Generating returns the number of in-flight task generation requests.
func (t *InFlightTracker) Generating() int64 {
	return t.generating.Load()
}

// Drain blocks until no request is in flight or ctx is done, re-checking every interval.
func (t *InFlightTracker) Drain(ctx context.Context, interval time.Duration) error {
	if t.Count() == 0 {
		return nil
	}
	ticker := t.clock.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.Chan():
			if t.Count() == 0 {
				return nil
			}
		}
	}
}

// globalInFlightTracker is fed by InFlightMiddleware and drained by the serve command.
var globalInFlightTracker = NewInFlightTracker(nil)

// InFlightCount returns the number of requests in flight.
func InFlightCount() int64 {
	return globalInFlightTracker.Count()
}

// InFlightGenerating returns the number of task generation requests in flight.
func InFlightGenerating() int64 {
	return globalInFlightTracker.Generating()
}

// WaitForInFlight blocks until in-flight requests reach zero or ctx is done.
func WaitForInFlight(ctx context.Context, interval time.Duration) error {
	return globalInFlightTracker.Drain(ctx, interval)
}
