package analytics

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/karloscodes/cartridge"
	"github.com/karloscodes/cartridge/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"accountpulse/internal/campaigns"
	"accountpulse/internal/pkg/async"
	"accountpulse/internal/visits"
)

// ErrInvalidRange is returned by backfills whose end precedes their start.
var ErrInvalidRange = errors.New("invalid date range")

const dateLayout = "2006-01-02"

var dailyStatKey = []clause.Column{{Name: "campaign_id"}, {Name: "date"}, {Name: "department_id"}}

var dailyStatColumns = []string{
	"total_visits", "unique_visitors", "returning_visitors",
	"avg_time_on_page", "avg_scroll_depth", "bounce_rate",
	"chat_sessions", "chat_messages", "cta_clicks", "form_submissions",
	"direct_visits", "email_visits", "linkedin_visits", "organic_visits", "paid_visits",
	"updated_at",
}

// UnitError records the failure of one (campaign, day) unit of a batch run.
type UnitError struct {
	CampaignID uint      `json:"campaign_id"`
	Date       time.Time `json:"date"`
	Err        error     `json:"-"`
}

func (e UnitError) Error() string {
	return fmt.Sprintf("campaign %d on %s: %v", e.CampaignID, e.Date.Format(dateLayout), e.Err)
}

func (e UnitError) Unwrap() error {
	return e.Err
}

// RunResult summarises a batch aggregation run.
type RunResult struct {
	Processed   int         `json:"processed"`
	CampaignIDs []uint      `json:"campaign_ids"`
	Failures    []UnitError `json:"failures"`
}

// Failed reports whether any unit of the run failed.
func (r *RunResult) Failed() bool {
	return len(r.Failures) > 0
}

// Aggregator computes and stores daily statistics.
type Aggregator struct {
	dbManager cartridge.DBManager
	logger    *slog.Logger
	workers   int
	now       func() time.Time
}

// Option configures an Aggregator.
type Option func(*Aggregator)

// WithWorkers sets how many (campaign, day) units run concurrently.
func WithWorkers(workers int) Option {
	return func(a *Aggregator) {
		if workers > 0 {
			a.workers = workers
		}
	}
}

// WithClock replaces time.Now, mainly for tests.
func WithClock(now func() time.Time) Option {
	return func(a *Aggregator) {
		a.now = now
	}
}

// NewAggregator creates an aggregator.
func NewAggregator(dbManager cartridge.DBManager, logger *slog.Logger, opts ...Option) *Aggregator {
	a := &Aggregator{
		dbManager: dbManager,
		logger:    logger,
		workers:   1,
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// AggregateCampaignDay recomputes the statistics row for one campaign, UTC day
// and department ("" for the campaign-wide row). Days without visits still
// get a zero-valued row.
func (a *Aggregator) AggregateCampaignDay(ctx context.Context, campaignID uint, date time.Time, departmentID string) (*DailyStat, error) {
	db := a.dbManager.GetConnection().WithContext(ctx)

	if err := campaigns.EnsureExists(db, campaignID); err != nil {
		return nil, err
	}

	dayStart := StartOfDay(date)
	dayEnd := dayStart.AddDate(0, 0, 1)

	query := db.Model(&visits.Visit{}).
		Where("campaign_id = ? AND visited_at >= ? AND visited_at < ?", campaignID, dayStart, dayEnd)
	if departmentID != OverallDepartment {
		query = query.Where("department_id = ?", departmentID)
	}

	var visitSet []visits.Visit
	if err := query.Order("id ASC").Find(&visitSet).Error; err != nil {
		return nil, fmt.Errorf("failed to load visits: %w", err)
	}

	stat := ComputeDailyStat(campaignID, dayStart, departmentID, visitSet)

	err := sqlite.PerformWrite(a.logger, db, func(tx *gorm.DB) error {
		return upsertDailyStat(tx, &stat)
	})
	if err != nil {
		return nil, fmt.Errorf("failed to store daily stat: %w", err)
	}

	a.logger.Debug("Aggregated campaign day",
		slog.Uint64("campaign_id", uint64(campaignID)),
		slog.String("date", dayStart.Format(dateLayout)),
		slog.String("department_id", departmentID),
		slog.Int("visits", stat.TotalVisits))

	return &stat, nil
}

// upsertDailyStat overwrites every computed column of the key's row.
func upsertDailyStat(tx *gorm.DB, stat *DailyStat) error {
	now := time.Now().UTC()
	stat.CreatedAt = now
	stat.UpdatedAt = now
	return tx.Clauses(clause.OnConflict{
		Columns:   dailyStatKey,
		DoUpdates: clause.AssignmentColumns(dailyStatColumns),
	}).Create(stat).Error
}

// AggregateAllCampaignsForDate aggregates the campaign-wide row of every
// campaign for one day.
func (a *Aggregator) AggregateAllCampaignsForDate(ctx context.Context, date time.Time) (*RunResult, error) {
	return a.run(ctx, []time.Time{StartOfDay(date)})
}

// AggregateYesterday aggregates the previous UTC day.
func (a *Aggregator) AggregateYesterday(ctx context.Context) (*RunResult, error) {
	yesterday := StartOfDay(a.now().UTC()).AddDate(0, 0, -1)
	return a.AggregateAllCampaignsForDate(ctx, yesterday)
}

// BackfillAggregation aggregates every campaign for each UTC day in
// [from, to], both inclusive.
func (a *Aggregator) BackfillAggregation(ctx context.Context, from, to time.Time) (*RunResult, error) {
	start, end := StartOfDay(from), StartOfDay(to)
	if end.Before(start) {
		return nil, fmt.Errorf("%w: %s is before %s", ErrInvalidRange, end.Format(dateLayout), start.Format(dateLayout))
	}

	var days []time.Time
	for day := start; !day.After(end); day = day.AddDate(0, 0, 1) {
		days = append(days, day)
	}
	return a.run(ctx, days)
}

type aggregationUnit struct {
	campaignID uint
	date       time.Time
}

// run fans the (campaign, day) units out over the worker pool. A failing
// unit is recorded and never stops the others.
func (a *Aggregator) run(ctx context.Context, days []time.Time) (*RunResult, error) {
	campaignIDs, err := campaigns.ListCampaignIDs(a.dbManager.GetConnection().WithContext(ctx))
	if err != nil {
		return nil, err
	}

	units := make([]aggregationUnit, 0, len(days)*len(campaignIDs))
	for _, day := range days {
		for _, campaignID := range campaignIDs {
			units = append(units, aggregationUnit{campaignID: campaignID, date: day})
		}
	}

	tasks := make([]async.Task[*DailyStat], len(units))
	for i, unit := range units {
		unit := unit
		tasks[i] = async.Task[*DailyStat]{
			Name: fmt.Sprintf("%d:%s", unit.campaignID, unit.date.Format(dateLayout)),
			Run: func(ctx context.Context) (*DailyStat, error) {
				return a.AggregateCampaignDay(ctx, unit.campaignID, unit.date, OverallDepartment)
			},
		}
	}

	started := time.Now()
	results := async.NewPool[*DailyStat](a.workers).Execute(ctx, tasks)

	result := &RunResult{CampaignIDs: []uint{}, Failures: []UnitError{}}
	seen := make(map[uint]bool, len(campaignIDs))
	for i, res := range results {
		unit := units[i]
		if res.Err != nil {
			a.logger.Error("Failed to aggregate campaign day",
				slog.Uint64("campaign_id", uint64(unit.campaignID)),
				slog.String("date", unit.date.Format(dateLayout)),
				slog.Any("error", res.Err))
			result.Failures = append(result.Failures, UnitError{CampaignID: unit.campaignID, Date: unit.date, Err: res.Err})
			continue
		}
		result.Processed++
		if !seen[unit.campaignID] {
			seen[unit.campaignID] = true
			result.CampaignIDs = append(result.CampaignIDs, unit.campaignID)
		}
	}

	a.logger.Info("Aggregation run finished",
		slog.Int("days", len(days)),
		slog.Int("campaigns", len(campaignIDs)),
		slog.Int("processed", result.Processed),
		slog.Int("failed", len(result.Failures)),
		slog.Duration("duration", time.Since(started)))

	return result, nil
}
