package validation

import (
	"context"
	"errors"
	"time"
)

// Load is a point-in-time utilisation reading, in percent.
type Load struct {
	CPUPercent    float64   `json:"cpuPercent"`
	MemoryPercent float64   `json:"memoryPercent"`
	SampledAt     time.Time `json:"sampledAt"`
}

// LoadProvider reports current system load.
// Implementations must honour ctx cancellation; the caller bounds every call.
type LoadProvider interface {
	CurrentLoad(ctx context.Context) (Load, error)
}

// ErrLoadUnavailable is returned by providers that have no reading.
var ErrLoadUnavailable = errors.New("system load unavailable")

// sampleLoad calls p with a deadline. A nil provider is unavailable.
func sampleLoad(ctx context.Context, p LoadProvider, timeout time.Duration) (Load, error) {
	if p == nil {
		return Load{}, ErrLoadUnavailable
	}
	if timeout <= 0 {
		timeout = defaultTelemetryTimeout
	}

	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	type reading struct {
		load Load
		err  error
	}
	ch := make(chan reading, 1)
	go func() {
		l, err := p.CurrentLoad(ctx)
		ch <- reading{l, err}
	}()

	select {
	case r := <-ch:
		return r.load, r.err
	case <-ctx.Done():
		return Load{}, ctx.Err()
	}
}

const defaultTelemetryTimeout = 200 * time.Millisecond
