package jobs

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"accountpulse/internal/analytics"
	"accountpulse/internal/contacts"
	"accountpulse/internal/metrics"
	"accountpulse/internal/sequences"
)

// Job is one unit of scheduled background work.
type Job interface {
	Name() string
	Run(ctx context.Context) error
}

// AggregationJob rolls up yesterday's visits for every campaign.
type AggregationJob struct {
	aggregator *analytics.Aggregator
	metrics    *metrics.Metrics
	logger     *slog.Logger
}

func NewAggregationJob(aggregator *analytics.Aggregator, m *metrics.Metrics, logger *slog.Logger) *AggregationJob {
	return &AggregationJob{aggregator: aggregator, metrics: m, logger: logger}
}

func (j *AggregationJob) Name() string { return "daily_aggregation" }

// Run aggregates yesterday. Failed units are counted and reported as an
// error once the whole run has finished.
func (j *AggregationJob) Run(ctx context.Context) error {
	result, err := j.aggregator.AggregateYesterday(ctx)
	if err != nil {
		return err
	}
	j.metrics.AddAggregationUnits(result.Processed, len(result.Failures))
	if result.Failed() {
		return fmt.Errorf("%d of %d aggregation units failed", len(result.Failures), result.Processed+len(result.Failures))
	}
	return nil
}

// RescoreJob recomputes the engagement score of every contact.
type RescoreJob struct {
	scorer  *contacts.Scorer
	metrics *metrics.Metrics
	logger  *slog.Logger
}

func NewRescoreJob(scorer *contacts.Scorer, m *metrics.Metrics, logger *slog.Logger) *RescoreJob {
	return &RescoreJob{scorer: scorer, metrics: m, logger: logger}
}

func (j *RescoreJob) Name() string { return "engagement_rescore" }

func (j *RescoreJob) Run(ctx context.Context) error {
	result, err := j.scorer.RecomputeForAccount(ctx, nil)
	if err != nil {
		return err
	}
	j.metrics.AddContactsRescored(result.Processed, len(result.Failures))
	if len(result.Failures) > 0 {
		return fmt.Errorf("%d contacts failed to rescore", len(result.Failures))
	}
	return nil
}

// TouchScanJob counts the sequence touches that are due so drafting
// backlogs show up on the dashboard.
type TouchScanJob struct {
	engine  *sequences.Engine
	metrics *metrics.Metrics
	logger  *slog.Logger
	now     func() time.Time
}

func NewTouchScanJob(engine *sequences.Engine, m *metrics.Metrics, logger *slog.Logger) *TouchScanJob {
	return &TouchScanJob{engine: engine, metrics: m, logger: logger, now: time.Now}
}

func (j *TouchScanJob) Name() string { return "touch_scan" }

func (j *TouchScanJob) Run(ctx context.Context) error {
	due, err := j.engine.DueTouches(ctx, j.now(), 0)
	if err != nil {
		return err
	}
	j.metrics.SetTouchesDue(len(due))
	if len(due) > 0 {
		j.logger.Info("Sequence touches due", slog.Int("count", len(due)))
	}
	return nil
}
