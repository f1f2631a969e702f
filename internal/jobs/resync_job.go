package jobs

import (
	"context"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/printit/orderdesk/pkg/logger"
)

// Refresher reloads the order cache from the store.
type Refresher interface {
	Refresh(ctx context.Context) error
}

// ResyncJob periodically reconciles the order cache with the store, so
// changes made outside the console show up even without a change feed.
type ResyncJob struct {
	refresher Refresher
	schedule  string
	timeout   time.Duration
	cron      *cron.Cron
	logger    logger.Logger
}

// NewResyncJob creates a job running on schedule, which accepts standard
// cron specs (optionally with a seconds field) and descriptors like "@every 1m".
func NewResyncJob(refresher Refresher, schedule string, timeout time.Duration, logger logger.Logger) *ResyncJob {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}

	return &ResyncJob{
		refresher: refresher,
		schedule:  schedule,
		timeout:   timeout,
		cron: cron.New(
			cron.WithParser(cron.NewParser(
				cron.SecondOptional|cron.Minute|cron.Hour|cron.Dom|cron.Month|cron.Dow|cron.Descriptor,
			)),
			cron.WithChain(cron.SkipIfStillRunning(cron.DiscardLogger)),
		),
		logger: logger.With("component", "resync_job"),
	}
}

// Start schedules the job.
func (j *ResyncJob) Start() error {
	if _, err := j.cron.AddFunc(j.schedule, j.run); err != nil {
		return fmt.Errorf("invalid resync schedule %q: %w", j.schedule, err)
	}

	j.cron.Start()
	j.logger.Info("Resync job started", "schedule", j.schedule)
	return nil
}

// Stop stops scheduling and waits for a running resync to finish.
func (j *ResyncJob) Stop() {
	<-j.cron.Stop().Done()
	j.logger.Info("Resync job stopped")
}

func (j *ResyncJob) run() {
	ctx, cancel := context.WithTimeout(context.Background(), j.timeout)
	defer cancel()

	if err := j.refresher.Refresh(ctx); err != nil {
		j.logger.Error("Resync failed", "error", err)
	}
}
