package analytics_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"accountpulse/internal/analytics"
	"accountpulse/internal/campaigns"
	"accountpulse/internal/testsupport"
	"accountpulse/internal/visits"
)

func countDailyStats(t *testing.T, db *gorm.DB) int64 {
	t.Helper()
	var count int64
	require.NoError(t, db.Model(&analytics.DailyStat{}).Count(&count).Error)
	return count
}

func TestAggregateCampaignDayZeroTraffic(t *testing.T) {
	dbManager, logger := testsupport.SetupTestDBManager(t)
	db := dbManager.GetConnection()
	campaign := testsupport.CreateTestCampaign(t, db, "quiet")

	aggregator := analytics.NewAggregator(dbManager, logger)
	stat, err := aggregator.AggregateCampaignDay(context.Background(), campaign.ID, statDay, analytics.OverallDepartment)
	require.NoError(t, err)

	assert.Equal(t, analytics.DailyMetrics{}, stat.DailyMetrics)
	assert.Equal(t, int64(1), countDailyStats(t, db), "no traffic is still recorded as a row")

	stored, err := analytics.GetDailyStats(db, analytics.NewCampaignScopedQueryParams(campaign.ID, statDay, statDay))
	require.NoError(t, err)
	require.Len(t, stored, 1)
	assert.Equal(t, analytics.DailyMetrics{}, stored[0].DailyMetrics)
}

func TestAggregateCampaignDayIsIdempotent(t *testing.T) {
	dbManager, logger := testsupport.SetupTestDBManager(t)
	db := dbManager.GetConnection()
	campaign := testsupport.CreateTestCampaign(t, db, "steady")

	testsupport.CreateTestVisit(t, db, visits.Visit{CampaignID: campaign.ID, SessionID: "before", VisitedAt: statDay.Add(-time.Second)})
	testsupport.CreateTestVisit(t, db, visits.Visit{CampaignID: campaign.ID, SessionID: "first", VisitedAt: statDay, TimeOnPage: testsupport.IntPtr(40), UTMSource: "google", UTMMedium: "cpc"})
	testsupport.CreateTestVisit(t, db, visits.Visit{CampaignID: campaign.ID, SessionID: "second", VisitedAt: statDay.Add(23 * time.Hour), TimeOnPage: testsupport.IntPtr(5), Referrer: "https://www.bing.com/"})
	testsupport.CreateTestVisit(t, db, visits.Visit{CampaignID: campaign.ID, SessionID: "after", VisitedAt: statDay.AddDate(0, 0, 1)})

	aggregator := analytics.NewAggregator(dbManager, logger)
	ctx := context.Background()

	first, err := aggregator.AggregateCampaignDay(ctx, campaign.ID, statDay, analytics.OverallDepartment)
	require.NoError(t, err)
	second, err := aggregator.AggregateCampaignDay(ctx, campaign.ID, statDay, analytics.OverallDepartment)
	require.NoError(t, err)

	assert.Equal(t, first.DailyMetrics, second.DailyMetrics)
	assert.Equal(t, 2, first.TotalVisits, "only visits inside the UTC day are counted")
	assert.Equal(t, 1, first.PaidVisits)
	assert.Equal(t, 1, first.OrganicVisits)
	assert.Equal(t, 50, first.BounceRate)
	assert.Equal(t, int64(1), countDailyStats(t, db))

	stored, err := analytics.GetDailyStats(db, analytics.NewCampaignScopedQueryParams(campaign.ID, statDay, statDay))
	require.NoError(t, err)
	require.Len(t, stored, 1)
	assert.Equal(t, first.DailyMetrics, stored[0].DailyMetrics)
}

func TestAggregateCampaignDayOverwritesPreviousRow(t *testing.T) {
	dbManager, logger := testsupport.SetupTestDBManager(t)
	db := dbManager.GetConnection()
	campaign := testsupport.CreateTestCampaign(t, db, "growing")

	aggregator := analytics.NewAggregator(dbManager, logger)
	ctx := context.Background()

	testsupport.CreateTestVisit(t, db, visits.Visit{CampaignID: campaign.ID, SessionID: "one", VisitedAt: statDay.Add(time.Hour), ChatMessages: 4})
	_, err := aggregator.AggregateCampaignDay(ctx, campaign.ID, statDay, analytics.OverallDepartment)
	require.NoError(t, err)

	testsupport.CreateTestVisit(t, db, visits.Visit{CampaignID: campaign.ID, SessionID: "two", VisitedAt: statDay.Add(2 * time.Hour)})
	_, err = aggregator.AggregateCampaignDay(ctx, campaign.ID, statDay, analytics.OverallDepartment)
	require.NoError(t, err)

	stored, err := analytics.GetDailyStats(db, analytics.NewCampaignScopedQueryParams(campaign.ID, statDay, statDay))
	require.NoError(t, err)
	require.Len(t, stored, 1)
	assert.Equal(t, 2, stored[0].TotalVisits)
	assert.Equal(t, 1, stored[0].ChatSessions)
	assert.Equal(t, 4, stored[0].ChatMessages)
	assert.Equal(t, 50, stored[0].BounceRate)
}

func TestAggregateCampaignDayByDepartment(t *testing.T) {
	dbManager, logger := testsupport.SetupTestDBManager(t)
	db := dbManager.GetConnection()
	campaign := testsupport.CreateTestCampaign(t, db, "segmented")

	testsupport.CreateTestVisit(t, db, visits.Visit{CampaignID: campaign.ID, DepartmentID: "finance", VisitedAt: statDay.Add(time.Hour)})
	testsupport.CreateTestVisit(t, db, visits.Visit{CampaignID: campaign.ID, DepartmentID: "finance", VisitedAt: statDay.Add(2 * time.Hour)})
	testsupport.CreateTestVisit(t, db, visits.Visit{CampaignID: campaign.ID, DepartmentID: "legal", VisitedAt: statDay.Add(3 * time.Hour)})

	aggregator := analytics.NewAggregator(dbManager, logger)
	ctx := context.Background()

	finance, err := aggregator.AggregateCampaignDay(ctx, campaign.ID, statDay, "finance")
	require.NoError(t, err)
	overall, err := aggregator.AggregateCampaignDay(ctx, campaign.ID, statDay, analytics.OverallDepartment)
	require.NoError(t, err)

	assert.Equal(t, 2, finance.TotalVisits)
	assert.Equal(t, 3, overall.TotalVisits)
	assert.Equal(t, int64(2), countDailyStats(t, db))

	params := analytics.NewCampaignScopedQueryParams(campaign.ID, statDay, statDay)
	params.DepartmentID = "finance"
	stored, err := analytics.GetDailyStats(db, params)
	require.NoError(t, err)
	require.Len(t, stored, 1)
	assert.Equal(t, "finance", stored[0].DepartmentID)
}

func TestAggregateCampaignDayUnknownCampaign(t *testing.T) {
	dbManager, logger := testsupport.SetupTestDBManager(t)
	db := dbManager.GetConnection()

	aggregator := analytics.NewAggregator(dbManager, logger)
	_, err := aggregator.AggregateCampaignDay(context.Background(), 12345, statDay, analytics.OverallDepartment)

	require.Error(t, err)
	assert.True(t, campaigns.IsNotFound(err))
	assert.Zero(t, countDailyStats(t, db))
}

func TestAggregateAllCampaignsForDate(t *testing.T) {
	dbManager, logger := testsupport.SetupTestDBManager(t)
	db := dbManager.GetConnection()
	first := testsupport.CreateTestCampaign(t, db, "first")
	second := testsupport.CreateTestCampaign(t, db, "second")
	testsupport.CreateTestVisit(t, db, visits.Visit{CampaignID: first.ID, VisitedAt: statDay.Add(time.Hour)})

	aggregator := analytics.NewAggregator(dbManager, logger, analytics.WithWorkers(2))
	result, err := aggregator.AggregateAllCampaignsForDate(context.Background(), statDay)
	require.NoError(t, err)

	assert.Equal(t, 2, result.Processed)
	assert.Equal(t, []uint{first.ID, second.ID}, result.CampaignIDs)
	assert.Empty(t, result.Failures)
	assert.False(t, result.Failed())
	assert.Equal(t, int64(2), countDailyStats(t, db))
}

func TestAggregateYesterdayUsesPreviousUTCDay(t *testing.T) {
	dbManager, logger := testsupport.SetupTestDBManager(t)
	db := dbManager.GetConnection()
	campaign := testsupport.CreateTestCampaign(t, db, "cron")
	testsupport.CreateTestVisit(t, db, visits.Visit{CampaignID: campaign.ID, VisitedAt: statDay.Add(20 * time.Hour)})

	now := statDay.AddDate(0, 0, 1).Add(3 * time.Hour)
	aggregator := analytics.NewAggregator(dbManager, logger, analytics.WithClock(testsupport.FixedClock(now)))

	result, err := aggregator.AggregateYesterday(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, result.Processed)

	stored, err := analytics.GetDailyStats(db, analytics.NewCampaignScopedQueryParams(campaign.ID, statDay, statDay))
	require.NoError(t, err)
	require.Len(t, stored, 1)
	assert.Equal(t, 1, stored[0].TotalVisits)
}

func TestBackfillAggregation(t *testing.T) {
	dbManager, logger := testsupport.SetupTestDBManager(t)
	db := dbManager.GetConnection()
	first := testsupport.CreateTestCampaign(t, db, "backfill-a")
	testsupport.CreateTestCampaign(t, db, "backfill-b")

	for day := 0; day < 3; day++ {
		testsupport.CreateTestVisit(t, db, visits.Visit{
			CampaignID: first.ID,
			VisitedAt:  statDay.AddDate(0, 0, day).Add(6 * time.Hour),
		})
	}

	aggregator := analytics.NewAggregator(dbManager, logger, analytics.WithWorkers(3))
	result, err := aggregator.BackfillAggregation(context.Background(), statDay, statDay.AddDate(0, 0, 2))
	require.NoError(t, err)

	assert.Equal(t, 6, result.Processed, "three days for each of two campaigns")
	assert.Len(t, result.CampaignIDs, 2)
	assert.Empty(t, result.Failures)
	assert.Equal(t, int64(6), countDailyStats(t, db))

	stored, err := analytics.GetDailyStats(db, analytics.NewCampaignScopedQueryParams(first.ID, statDay, statDay.AddDate(0, 0, 2)))
	require.NoError(t, err)
	require.Len(t, stored, 3)
	for _, stat := range stored {
		assert.Equal(t, 1, stat.TotalVisits)
	}
	assert.Equal(t, 3, analytics.SumDailyStats(stored).TotalVisits)
}

func TestBackfillAggregationRejectsInvertedRange(t *testing.T) {
	dbManager, logger := testsupport.SetupTestDBManager(t)
	aggregator := analytics.NewAggregator(dbManager, logger)

	_, err := aggregator.BackfillAggregation(context.Background(), statDay, statDay.AddDate(0, 0, -1))
	assert.ErrorIs(t, err, analytics.ErrInvalidRange)
}

func TestBatchRunsContinuePastFailedUnits(t *testing.T) {
	dbManager, logger := testsupport.SetupTestDBManager(t)
	db := dbManager.GetConnection()
	broken := testsupport.CreateTestCampaign(t, db, "broken")
	healthy := testsupport.CreateTestCampaign(t, db, "healthy")

	boom := errors.New("disk full")
	require.NoError(t, db.Callback().Create().Before("gorm:create").Register("test:fail_broken_campaign", func(tx *gorm.DB) {
		if stat, ok := tx.Statement.Dest.(*analytics.DailyStat); ok && stat.CampaignID == broken.ID {
			tx.AddError(boom)
		}
	}))

	aggregator := analytics.NewAggregator(dbManager, logger)
	result, err := aggregator.BackfillAggregation(context.Background(), statDay, statDay.AddDate(0, 0, 1))
	require.NoError(t, err)

	assert.Equal(t, 2, result.Processed)
	assert.Equal(t, []uint{healthy.ID}, result.CampaignIDs)
	require.Len(t, result.Failures, 2)
	assert.True(t, result.Failed())
	for i, failure := range result.Failures {
		assert.Equal(t, broken.ID, failure.CampaignID)
		assert.True(t, failure.Date.Equal(statDay.AddDate(0, 0, i)))
		assert.ErrorContains(t, failure, boom.Error())
	}
}

func TestGetTopVisitDimension(t *testing.T) {
	dbManager, _ := testsupport.SetupTestDBManager(t)
	db := dbManager.GetConnection()
	campaign := testsupport.CreateTestCampaign(t, db, "breakdown")

	for _, device := range []string{"mobile", "desktop", "mobile", "tablet", "mobile", "desktop"} {
		testsupport.CreateTestVisit(t, db, visits.Visit{CampaignID: campaign.ID, DeviceType: device, VisitedAt: statDay.Add(time.Hour)})
	}

	params := analytics.NewCampaignScopedQueryParams(campaign.ID, statDay, statDay)
	params.Limit = 2
	results, err := analytics.GetTopVisitDimension(db, params, analytics.DimensionDevice)
	require.NoError(t, err)

	assert.Equal(t, []analytics.MetricCountResult{
		{Name: "mobile", Count: 3},
		{Name: "desktop", Count: 2},
	}, results)

	_, err = analytics.GetTopVisitDimension(db, params, "password")
	assert.Error(t, err)
}
