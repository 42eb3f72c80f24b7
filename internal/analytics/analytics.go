// Package analytics rolls visits up into daily per-campaign statistics and
// answers the read queries dashboards run against them.
//
// The package is organized into focused modules:
//   - analytics.go: DailyStat model and shared types
//   - compute.go: the pure visit-set to statistics computation
//   - aggregator.go: single-day, fan-out, yesterday and backfill runs
//   - queries.go: range reads, totals and top-N breakdowns
package analytics

import (
	"time"
)

// OverallDepartment is the department key of the campaign-wide row.
const OverallDepartment = ""

// MetricCountResult represents a generic key-count pair for query results
type MetricCountResult struct {
	Name  string `json:"name"`
	Count int64  `json:"count"`
}

// DailyMetrics are the computed values of one daily statistics row.
type DailyMetrics struct {
	TotalVisits       int `gorm:"not null;default:0" json:"total_visits"`
	UniqueVisitors    int `gorm:"not null;default:0" json:"unique_visitors"`
	ReturningVisitors int `gorm:"not null;default:0" json:"returning_visitors"`
	AvgTimeOnPage     int `gorm:"not null;default:0" json:"avg_time_on_page"`
	AvgScrollDepth    int `gorm:"not null;default:0" json:"avg_scroll_depth"`
	BounceRate        int `gorm:"not null;default:0" json:"bounce_rate"`
	ChatSessions      int `gorm:"not null;default:0" json:"chat_sessions"`
	ChatMessages      int `gorm:"not null;default:0" json:"chat_messages"`
	CtaClicks         int `gorm:"not null;default:0" json:"cta_clicks"`
	FormSubmissions   int `gorm:"not null;default:0" json:"form_submissions"`
	DirectVisits      int `gorm:"not null;default:0" json:"direct_visits"`
	EmailVisits       int `gorm:"not null;default:0" json:"email_visits"`
	LinkedInVisits    int `gorm:"column:linkedin_visits;not null;default:0" json:"linkedin_visits"`
	OrganicVisits     int `gorm:"not null;default:0" json:"organic_visits"`
	PaidVisits        int `gorm:"not null;default:0" json:"paid_visits"`
}

// DailyStat is the rollup of one (campaign, UTC day, department) key. It is
// always written whole by the aggregator.
type DailyStat struct {
	ID           uint      `gorm:"primaryKey;autoIncrement" json:"id"`
	CampaignID   uint      `gorm:"uniqueIndex:idx_daily_stat_key;not null" json:"campaign_id"`
	Date         time.Time `gorm:"uniqueIndex:idx_daily_stat_key;not null" json:"date"`
	DepartmentID string    `gorm:"uniqueIndex:idx_daily_stat_key;not null" json:"department_id"`

	DailyMetrics `gorm:"embedded"`

	// ReferralVisits is tallied during computation but has no column.
	ReferralVisits int `gorm:"-" json:"referral_visits"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// StartOfDay returns the UTC midnight that opens the UTC day containing t.
func StartOfDay(t time.Time) time.Time {
	t = t.UTC()
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}
