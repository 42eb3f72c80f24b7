package visits

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/karloscodes/cartridge"
	"github.com/karloscodes/cartridge/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"accountpulse/internal/attribution"
	"accountpulse/internal/campaigns"
	"accountpulse/internal/pkg/geoip"
)

// DefaultSessionWindow is how long a session keeps mutating the same visit.
const DefaultSessionWindow = 24 * time.Hour

// Recorder captures visits and their engagement signals.
type Recorder struct {
	dbManager cartridge.DBManager
	logger    *slog.Logger
	window    time.Duration
	now       func() time.Time
}

// Option configures a Recorder.
type Option func(*Recorder)

// WithSessionWindow overrides the rolling session window.
func WithSessionWindow(window time.Duration) Option {
	return func(r *Recorder) {
		if window > 0 {
			r.window = window
		}
	}
}

// WithClock replaces time.Now, mainly for tests.
func WithClock(now func() time.Time) Option {
	return func(r *Recorder) {
		r.now = now
	}
}

// NewRecorder creates a visit recorder.
func NewRecorder(dbManager cartridge.DBManager, logger *slog.Logger, opts ...Option) *Recorder {
	r := &Recorder{
		dbManager: dbManager,
		logger:    logger,
		window:    DefaultSessionWindow,
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// NewSessionID returns a random session identifier.
func NewSessionID() string {
	return uuid.NewString()
}

// RecordPageView merges the event into the session's visit when one started
// within the window, or creates a new visit. It returns the visit ID either way.
func (r *Recorder) RecordPageView(ctx context.Context, input *PageViewInput) (uint, error) {
	db := r.dbManager.GetConnection().WithContext(ctx)

	if err := campaigns.EnsureExists(db, input.CampaignID); err != nil {
		return 0, err
	}

	sessionID := strings.TrimSpace(input.SessionID)
	if sessionID == "" {
		sessionID = NewSessionID()
	}

	now := r.now().UTC()
	attr := input.Attribution.Or(input.Request.Attribution())
	updates := mergeUpdates(attr, input.Visitor, now)

	var visitID uint
	err := sqlite.PerformWrite(r.logger, db, func(tx *gorm.DB) error {
		var existing Visit
		err := tx.Where("campaign_id = ? AND session_id = ? AND visited_at >= ?",
			input.CampaignID, sessionID, now.Add(-r.window)).
			Order("visited_at DESC").
			First(&existing).Error
		if err == nil {
			visitID = existing.ID
			return tx.Model(&Visit{}).Where("id = ?", existing.ID).Updates(updates).Error
		}
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			return err
		}

		visit := r.newVisit(input, sessionID, attr, now)
		result := tx.Clauses(clause.OnConflict{DoNothing: true}).Create(visit)
		if result.Error != nil {
			return result.Error
		}
		if result.RowsAffected > 0 {
			visitID = visit.ID
			return nil
		}

		// A concurrent first event for the same session created the row.
		var winner Visit
		if err := tx.Where("campaign_id = ? AND session_id = ? AND visit_day = ?",
			input.CampaignID, sessionID, visit.VisitDay).First(&winner).Error; err != nil {
			return err
		}
		visitID = winner.ID
		return tx.Model(&Visit{}).Where("id = ?", winner.ID).Updates(updates).Error
	})
	if err != nil {
		r.logger.Error("Failed to record page view",
			slog.Uint64("campaign_id", uint64(input.CampaignID)),
			slog.Any("error", err))
		return 0, fmt.Errorf("failed to record page view: %w", err)
	}

	return visitID, nil
}

func (r *Recorder) newVisit(input *PageViewInput, sessionID string, attr attribution.Attribution, now time.Time) *Visit {
	device := attribution.ClassifyDevice(input.Request.UserAgent)
	return &Visit{
		CampaignID:     input.CampaignID,
		DepartmentID:   strings.TrimSpace(input.DepartmentID),
		SessionID:      sessionID,
		VisitDay:       visitDay(now),
		VisitorID:      strings.TrimSpace(input.VisitorID),
		QRCodeID:       input.QRCodeID,
		VisitedAt:      now,
		LastActivityAt: now,
		UTMSource:      deref(attr.UTMSource),
		UTMMedium:      deref(attr.UTMMedium),
		UTMCampaign:    deref(attr.UTMCampaign),
		UTMTerm:        deref(attr.UTMTerm),
		UTMContent:     deref(attr.UTMContent),
		Referrer:       deref(attr.Referrer),
		DeviceType:     device.DeviceType,
		Browser:        device.Browser,
		OS:             device.OS,
		Country:        geoip.ResolveCountry(input.Request.Country, input.Request.IP),
		VisitorEmail:   deref(input.Visitor.Email),
		VisitorName:    deref(input.Visitor.Name),
		VisitorCompany: deref(input.Visitor.Company),
		VisitorTitle:   deref(input.Visitor.Title),
	}
}

// mergeUpdates builds the column set for an existing visit: activity is
// always touched, other columns only when supplied.
func mergeUpdates(attr attribution.Attribution, visitor VisitorIdentity, now time.Time) map[string]any {
	updates := map[string]any{"last_activity_at": now}
	set := func(column string, value *string) {
		if value != nil {
			updates[column] = *value
		}
	}
	set("utm_source", attr.UTMSource)
	set("utm_medium", attr.UTMMedium)
	set("utm_campaign", attr.UTMCampaign)
	set("utm_term", attr.UTMTerm)
	set("utm_content", attr.UTMContent)
	set("referrer", attr.Referrer)
	set("visitor_email", visitor.Email)
	set("visitor_name", visitor.Name)
	set("visitor_company", visitor.Company)
	set("visitor_title", visitor.Title)
	return updates
}

// RecordEngagementMetrics applies a partial metrics update.
func (r *Recorder) RecordEngagementMetrics(ctx context.Context, visitID uint, metrics EngagementMetrics) error {
	updates := map[string]any{"last_activity_at": r.now().UTC()}
	set := func(column string, value *int, ceiling int) {
		if value == nil {
			return
		}
		v := *value
		if v < 0 {
			v = 0
		}
		if ceiling > 0 && v > ceiling {
			v = ceiling
		}
		updates[column] = v
	}
	set("time_on_page", metrics.TimeOnPage, 0)
	set("scroll_depth", metrics.ScrollDepth, 100)
	set("events_viewed", metrics.EventsViewed, 0)
	set("events_clicked", metrics.EventsClicked, 0)
	set("case_studies_viewed", metrics.CaseStudiesViewed, 0)

	if metrics.empty() {
		r.logger.Debug("Engagement metrics update carried no fields", slog.Uint64("visit_id", uint64(visitID)))
	}
	return r.update(ctx, visitID, "engagement metrics", updates)
}

// RecordCtaClick marks the visit as having clicked the call to action. The
// first click's timestamp is kept.
func (r *Recorder) RecordCtaClick(ctx context.Context, visitID uint) error {
	now := r.now().UTC()
	return r.update(ctx, visitID, "cta click", map[string]any{
		"cta_clicked":      true,
		"cta_clicked_at":   gorm.Expr("COALESCE(cta_clicked_at, ?)", now),
		"last_activity_at": now,
	})
}

// RecordFormSubmission marks the visit as having submitted the form.
func (r *Recorder) RecordFormSubmission(ctx context.Context, visitID uint) error {
	return r.update(ctx, visitID, "form submission", map[string]any{
		"form_submitted":   true,
		"last_activity_at": r.now().UTC(),
	})
}

// IncrementChatMessageCount adds one chat message in a single statement so
// concurrent turns never lose an increment.
func (r *Recorder) IncrementChatMessageCount(ctx context.Context, visitID uint) error {
	return r.update(ctx, visitID, "chat message", map[string]any{
		"chat_messages":    gorm.Expr("chat_messages + ?", 1),
		"last_activity_at": r.now().UTC(),
	})
}

func (r *Recorder) update(ctx context.Context, visitID uint, what string, updates map[string]any) error {
	db := r.dbManager.GetConnection().WithContext(ctx)

	var rowsAffected int64
	err := sqlite.PerformWrite(r.logger, db, func(tx *gorm.DB) error {
		result := tx.Model(&Visit{}).Where("id = ?", visitID).Updates(updates)
		rowsAffected = result.RowsAffected
		return result.Error
	})
	if err != nil {
		r.logger.Error("Failed to record "+what,
			slog.Uint64("visit_id", uint64(visitID)),
			slog.Any("error", err))
		return fmt.Errorf("failed to record %s: %w", what, err)
	}
	if rowsAffected == 0 {
		return ErrVisitNotFound
	}
	return nil
}

// GetVisit loads a visit by ID.
func (r *Recorder) GetVisit(ctx context.Context, visitID uint) (*Visit, error) {
	var visit Visit
	err := r.dbManager.GetConnection().WithContext(ctx).First(&visit, visitID).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrVisitNotFound
		}
		return nil, fmt.Errorf("failed to load visit: %w", err)
	}
	return &visit, nil
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
