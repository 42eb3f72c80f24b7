package v1

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/karloscodes/cartridge"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"accountpulse/internal/analytics"
	"accountpulse/internal/campaigns"
	"accountpulse/internal/pkg/async"
	"accountpulse/internal/pkg/geoip"
)

const defaultDashboardDays = 30

// CampaignDashboardResponse is the summary of a campaign over a day range.
type CampaignDashboardResponse struct {
	CampaignID   uint                          `json:"campaign_id"`
	DepartmentID string                        `json:"department_id"`
	From         string                        `json:"from"`
	To           string                        `json:"to"`
	Totals       analytics.DailyMetrics        `json:"totals"`
	Days         []analytics.DailyStat         `json:"days"`
	TopDevices   []analytics.MetricCountResult `json:"top_devices"`
	TopBrowsers  []analytics.MetricCountResult `json:"top_browsers"`
	TopOS        []analytics.MetricCountResult `json:"top_operating_systems"`
	TopCountries []analytics.MetricCountResult `json:"top_countries"`
	TopSources   []analytics.MetricCountResult `json:"top_utm_sources"`
	TopReferrers []analytics.MetricCountResult `json:"top_referrers"`
}

// CampaignDashboardHandler returns stored daily rows, their totals and the
// top visit breakdowns. The range defaults to the last 30 days.
func (h *Handlers) CampaignDashboardHandler(ctx *cartridge.Context) error {
	campaignID, err := paramID(ctx.Ctx, "id")
	if err != nil {
		return errorResponse(ctx.Ctx, http.StatusBadRequest, "INVALID_REQUEST", err.Error())
	}

	to := analytics.StartOfDay(h.Now().UTC())
	from := to.AddDate(0, 0, -(defaultDashboardDays - 1))
	if value := ctx.Query("from"); value != "" {
		if from, err = parseDate(value); err != nil {
			return errorResponse(ctx.Ctx, http.StatusBadRequest, "INVALID_DATE", "from must be YYYY-MM-DD")
		}
	}
	if value := ctx.Query("to"); value != "" {
		if to, err = parseDate(value); err != nil {
			return errorResponse(ctx.Ctx, http.StatusBadRequest, "INVALID_DATE", "to must be YYYY-MM-DD")
		}
	}
	if to.Before(from) {
		return errorResponse(ctx.Ctx, http.StatusBadRequest, "INVALID_RANGE", "to must not be before from")
	}

	db := ctx.DBManager.GetConnection().WithContext(ctx.UserContext())
	if err := campaigns.EnsureExists(db, campaignID); err != nil {
		if campaigns.IsNotFound(err) {
			return errorResponse(ctx.Ctx, http.StatusNotFound, "CAMPAIGN_NOT_FOUND", "Campaign not found")
		}
		return storageError(ctx.Ctx, err)
	}

	params := analytics.NewCampaignScopedQueryParams(campaignID, from, to)
	params.DepartmentID = ctx.Query("department_id")
	params.Limit = ctx.QueryInt("limit", 10)

	response := CampaignDashboardResponse{
		CampaignID:   campaignID,
		DepartmentID: params.DepartmentID,
		From:         from.Format(dateLayout),
		To:           to.Format(dateLayout),
	}

	days, err := analytics.GetDailyStats(db, params)
	if err != nil {
		ctx.Logger.Error("Failed to load daily stats", slog.Any("error", err))
		return storageError(ctx.Ctx, err)
	}
	response.Days = days
	response.Totals = analytics.SumDailyStats(days)

	// A Caser keeps state and cannot be shared between requests.
	titleCaser := cases.Title(language.English)
	breakdowns := []struct {
		dimension string
		target    *[]analytics.MetricCountResult
		label     func(string) string
	}{
		{analytics.DimensionDevice, &response.TopDevices, titleCaser.String},
		{analytics.DimensionBrowser, &response.TopBrowsers, titleCaser.String},
		{analytics.DimensionOS, &response.TopOS, titleCaser.String},
		{analytics.DimensionCountry, &response.TopCountries, countryLabel},
		{analytics.DimensionSource, &response.TopSources, nil},
		{analytics.DimensionReferrer, &response.TopReferrers, nil},
	}

	tasks := make([]async.Task[[]analytics.MetricCountResult], len(breakdowns))
	for i, b := range breakdowns {
		dimension := b.dimension
		tasks[i] = async.Task[[]analytics.MetricCountResult]{
			Name: dimension,
			Run: func(context.Context) ([]analytics.MetricCountResult, error) {
				return analytics.GetTopVisitDimension(db, params, dimension)
			},
		}
	}

	started := time.Now()
	results := async.NewPool[[]analytics.MetricCountResult](len(tasks)).Execute(ctx.UserContext(), tasks)
	for i, res := range results {
		if res.Err != nil {
			ctx.Logger.Error("Failed to load breakdown", slog.String("dimension", res.Name), slog.Any("error", res.Err))
			return storageError(ctx.Ctx, res.Err)
		}
		rows := res.Data
		if label := breakdowns[i].label; label != nil {
			for j := range rows {
				rows[j].Name = label(rows[j].Name)
			}
		}
		if rows == nil {
			rows = []analytics.MetricCountResult{}
		}
		*breakdowns[i].target = rows
	}
	ctx.Logger.Debug("Campaign dashboard loaded",
		slog.Uint64("campaign_id", uint64(campaignID)),
		slog.Duration("duration", time.Since(started)))

	return ctx.JSON(response)
}

// countryLabel renders an ISO code as its common name when known.
func countryLabel(code string) string {
	if name := geoip.CountryName(code); name != "" {
		return name
	}
	return code
}
