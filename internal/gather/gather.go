// Package gather downloads historical market data into the local bar store.
package gather

import (
	"context"
	"fmt"
	"time"
)

// Gatherer is the interface for all data gathering processes.
type Gatherer interface {
	// Name returns the gatherer identifier.
	Name() string
	// Run performs one gathering pass. It returns early when ctx is
	// cancelled.
	Run(ctx context.Context) error
}

// DateRange represents a time range for data fetching.
type DateRange struct {
	Start time.Time
	End   time.Time
}

// ParseDateRange parses YYYY-MM-DD bounds. An empty end means the end of
// yesterday in UTC, the latest day whose bars are final.
func ParseDateRange(start, end string, now time.Time) (DateRange, error) {
	var r DateRange
	var err error
	if r.Start, err = time.Parse(time.DateOnly, start); err != nil {
		return r, fmt.Errorf("parsing start date %q: %w", start, err)
	}
	if end == "" {
		r.End = now.UTC().Truncate(24 * time.Hour).Add(-time.Nanosecond)
	} else {
		if r.End, err = time.Parse(time.DateOnly, end); err != nil {
			return r, fmt.Errorf("parsing end date %q: %w", end, err)
		}
		r.End = r.End.Add(24*time.Hour - time.Nanosecond)
	}
	if r.End.Before(r.Start) {
		return r, fmt.Errorf("end %s before start %s", r.End.Format(time.DateOnly), start)
	}
	return r, nil
}

// Key returns the range as a stable string for progress tracking.
func (r DateRange) Key() string {
	return r.Start.Format(time.DateOnly) + ".." + r.End.Format(time.DateOnly)
}
