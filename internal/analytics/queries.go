package analytics

import (
	"fmt"
	"math"
	"time"

	"gorm.io/gorm"

	"accountpulse/internal/visits"
)

// Breakdown dimensions that can be ranked with GetTopVisitDimension.
const (
	DimensionDevice   = "device_type"
	DimensionBrowser  = "browser"
	DimensionOS       = "os"
	DimensionCountry  = "country"
	DimensionSource   = "utm_source"
	DimensionCampaign = "utm_campaign"
	DimensionReferrer = "referrer"
)

var breakdownDimensions = map[string]bool{
	DimensionDevice:   true,
	DimensionBrowser:  true,
	DimensionOS:       true,
	DimensionCountry:  true,
	DimensionSource:   true,
	DimensionCampaign: true,
	DimensionReferrer: true,
}

// CampaignScopedQueryParams contains common parameters for campaign-scoped queries
type CampaignScopedQueryParams struct {
	CampaignID   uint
	DepartmentID string
	From         time.Time
	To           time.Time
	Limit        int // Number of records to return
}

// NewCampaignScopedQueryParams creates query params covering the UTC days
// from through to.
func NewCampaignScopedQueryParams(campaignID uint, from, to time.Time) CampaignScopedQueryParams {
	return CampaignScopedQueryParams{
		CampaignID: campaignID,
		From:       StartOfDay(from),
		To:         StartOfDay(to),
		Limit:      50,
	}
}

// GetDailyStats returns the stored rows for a campaign and department over an
// inclusive day range, oldest first.
func GetDailyStats(db *gorm.DB, params CampaignScopedQueryParams) ([]DailyStat, error) {
	var stats []DailyStat
	err := db.Where("campaign_id = ? AND department_id = ? AND date >= ? AND date <= ?",
		params.CampaignID, params.DepartmentID, StartOfDay(params.From), StartOfDay(params.To)).
		Order("date ASC").
		Find(&stats).Error
	if err != nil {
		return nil, fmt.Errorf("error fetching daily stats: %w", err)
	}
	return stats, nil
}

// SumDailyStats folds several days into one set of metrics. Counts are
// summed; averages and the bounce rate are weighted by each day's visits.
func SumDailyStats(stats []DailyStat) DailyMetrics {
	var total DailyMetrics
	var timeOnPage, scrollDepth, bounces float64

	for _, s := range stats {
		total.TotalVisits += s.TotalVisits
		total.UniqueVisitors += s.UniqueVisitors
		total.ReturningVisitors += s.ReturningVisitors
		total.ChatSessions += s.ChatSessions
		total.ChatMessages += s.ChatMessages
		total.CtaClicks += s.CtaClicks
		total.FormSubmissions += s.FormSubmissions
		total.DirectVisits += s.DirectVisits
		total.EmailVisits += s.EmailVisits
		total.LinkedInVisits += s.LinkedInVisits
		total.OrganicVisits += s.OrganicVisits
		total.PaidVisits += s.PaidVisits

		weight := float64(s.TotalVisits)
		timeOnPage += float64(s.AvgTimeOnPage) * weight
		scrollDepth += float64(s.AvgScrollDepth) * weight
		bounces += float64(s.BounceRate) * weight
	}

	if total.TotalVisits > 0 {
		visitsCount := float64(total.TotalVisits)
		total.AvgTimeOnPage = int(math.Round(timeOnPage / visitsCount))
		total.AvgScrollDepth = int(math.Round(scrollDepth / visitsCount))
		total.BounceRate = int(math.Round(bounces / visitsCount))
	}

	return total
}

// GetTopVisitDimension ranks the values of one visit attribute by number of
// visits within the params' day range.
func GetTopVisitDimension(db *gorm.DB, params CampaignScopedQueryParams, dimension string) ([]MetricCountResult, error) {
	if !breakdownDimensions[dimension] {
		return nil, fmt.Errorf("unsupported breakdown dimension: %s", dimension)
	}

	var rawResults []struct {
		Name  string
		Count int64
	}

	query := db.Model(&visits.Visit{}).
		Select(dimension+" AS name, COUNT(*) AS count").
		Where("campaign_id = ? AND visited_at >= ? AND visited_at < ?",
			params.CampaignID, StartOfDay(params.From), StartOfDay(params.To).AddDate(0, 0, 1)).
		Where(dimension + " != ''")
	if params.DepartmentID != OverallDepartment {
		query = query.Where("department_id = ?", params.DepartmentID)
	}

	limit := params.Limit
	if limit <= 0 {
		limit = 50
	}

	err := query.Group(dimension).
		Order("count DESC, name ASC").
		Limit(limit).
		Scan(&rawResults).Error
	if err != nil {
		return nil, fmt.Errorf("error fetching top %s: %w", dimension, err)
	}

	results := make([]MetricCountResult, len(rawResults))
	for i, r := range rawResults {
		results[i] = MetricCountResult{Name: r.Name, Count: r.Count}
	}
	return results, nil
}
