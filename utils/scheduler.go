package utils

import (
	"context"
	"log"
	"time"

	"github.com/pkg/errors"
	"github.com/robfig/cron/v3"
)

// RefreshFunc recomputes stored course aggregates and returns how many
// courses it touched.
type RefreshFunc func(ctx context.Context) (int, error)

// InitializeAggregateScheduler starts a cron job that repairs course
// enrollment counts and ratings on the given schedule.
func InitializeAggregateScheduler(schedule string, refresh RefreshFunc) (*cron.Cron, error) {
	log.Println("[AGGREGATE-SCHEDULER] Initializing aggregate scheduler...")

	c := cron.New()
	if _, err := c.AddFunc(schedule, func() { RunAggregateRefresh(refresh) }); err != nil {
		return nil, errors.Wrapf(err, "invalid aggregate schedule %q", schedule)
	}

	c.Start()
	log.Printf("[AGGREGATE-SCHEDULER] Aggregate scheduler started - runs on %q", schedule)
	return c, nil
}

// RunAggregateRefresh runs one refresh pass with a bounded deadline.
func RunAggregateRefresh(refresh RefreshFunc) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
	defer cancel()

	started := time.Now()
	n, err := refresh(ctx)
	if err != nil {
		ReportError("AGGREGATE-SCHEDULER", err, nil)
		return
	}
	log.Printf("[AGGREGATE-SCHEDULER] Refreshed %d courses in %s", n, time.Since(started).Round(time.Millisecond))
}
