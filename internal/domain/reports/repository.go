package reports

import (
	"context"
)

// Repository defines aggregate queries over the movement log.
type Repository interface {
	// MovementStats aggregates every record created within filter's range.
	MovementStats(ctx context.Context, filter StatsFilter) (*MovementStats, error)
}
