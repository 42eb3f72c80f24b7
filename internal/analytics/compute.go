package analytics

import (
	"math"
	"time"

	"accountpulse/internal/attribution"
	"accountpulse/internal/visits"
)

// bounceTimeThreshold is the time on page, in seconds, below which a visit
// without chat or CTA activity counts as a bounce.
const bounceTimeThreshold = 10

// IsBounce reports whether a visit had negligible engagement.
func IsBounce(v *visits.Visit) bool {
	return intValue(v.TimeOnPage) < bounceTimeThreshold && v.ChatMessages == 0 && !v.CtaClicked
}

// ComputeDailyStat derives the statistics row for a key from its visit set.
// It depends only on the visits, so recomputation yields identical values.
func ComputeDailyStat(campaignID uint, date time.Time, departmentID string, visitSet []visits.Visit) DailyStat {
	stat := DailyStat{
		CampaignID:   campaignID,
		Date:         StartOfDay(date),
		DepartmentID: departmentID,
	}

	total := len(visitSet)
	if total == 0 {
		return stat
	}

	sessions := make(map[string]struct{}, total)
	var timeOnPage, scrollDepth, bounces int

	for i := range visitSet {
		v := &visitSet[i]

		if v.SessionID != "" {
			sessions[v.SessionID] = struct{}{}
		}
		timeOnPage += intValue(v.TimeOnPage)
		scrollDepth += intValue(v.ScrollDepth)

		if IsBounce(v) {
			bounces++
		}
		if v.ChatMessages > 0 {
			stat.ChatSessions++
		}
		stat.ChatMessages += v.ChatMessages
		if v.CtaClicked {
			stat.CtaClicks++
		}
		if v.FormSubmitted {
			stat.FormSubmissions++
		}

		switch v.TrafficSource() {
		case attribution.SourceDirect:
			stat.DirectVisits++
		case attribution.SourceEmail:
			stat.EmailVisits++
		case attribution.SourceLinkedIn:
			stat.LinkedInVisits++
		case attribution.SourceOrganic:
			stat.OrganicVisits++
		case attribution.SourcePaid:
			stat.PaidVisits++
		case attribution.SourceReferral:
			stat.ReferralVisits++
		}
	}

	stat.TotalVisits = total
	stat.UniqueVisitors = len(sessions)
	stat.ReturningVisitors = max(0, total-len(sessions))
	stat.AvgTimeOnPage = roundRatio(timeOnPage, total)
	stat.AvgScrollDepth = roundRatio(scrollDepth, total)
	stat.BounceRate = roundRatio(100*bounces, total)

	return stat
}

func roundRatio(numerator, denominator int) int {
	if denominator == 0 {
		return 0
	}
	return int(math.Round(float64(numerator) / float64(denominator)))
}

func intValue(v *int) int {
	if v == nil {
		return 0
	}
	return *v
}
