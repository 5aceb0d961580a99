package worker

import (
	"context"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"

	"github.com/notifyhub/scribe-dispatch/internal/health"
)

// PruneWorker periodically forgets workers that have stopped reporting, so
// the health history does not grow with every host that ever checked in.
type PruneWorker struct {
	agg       *health.Aggregator
	retention time.Duration
	schedule  cron.Schedule
	spec      string
	logger    *zap.Logger

	// onPrune receives the number of workers still known after each run.
	onPrune func(known int)
}

// NewPruneWorker parses spec with the standard cron parser, which also
// accepts descriptors such as "@every 5m" and "@hourly".
func NewPruneWorker(
	agg *health.Aggregator,
	retention time.Duration,
	spec string,
	onPrune func(known int),
	logger *zap.Logger,
) (*PruneWorker, error) {
	parser := cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor)
	schedule, err := parser.Parse(spec)
	if err != nil {
		return nil, fmt.Errorf("parse prune schedule %q: %w", spec, err)
	}
	if onPrune == nil {
		onPrune = func(int) {}
	}
	return &PruneWorker{
		agg:       agg,
		retention: retention,
		schedule:  schedule,
		spec:      spec,
		logger:    logger,
		onPrune:   onPrune,
	}, nil
}

// Run schedules the prune job and blocks until ctx is cancelled.
func (pw *PruneWorker) Run(ctx context.Context) {
	c := cron.New()
	c.Schedule(pw.schedule, cron.FuncJob(pw.PruneOnce))
	c.Start()

	pw.logger.Info("prune worker started",
		zap.String("schedule", pw.spec),
		zap.Duration("retention", pw.retention))

	<-ctx.Done()
	pw.logger.Info("prune worker stopping")
	<-c.Stop().Done()
}

// PruneOnce runs a single pass.
func (pw *PruneWorker) PruneOnce() {
	removed := pw.agg.Prune(pw.retention)
	known := pw.agg.Workers()
	pw.onPrune(known)

	if removed > 0 {
		pw.logger.Info("pruned silent workers", zap.Int("removed", removed), zap.Int("known", known))
	}
}
