package visits

import (
	"errors"
	"time"

	"accountpulse/internal/attribution"
)

// ErrVisitNotFound is returned when a mutator references an unknown visit.
var ErrVisitNotFound = errors.New("visit not found")

const visitDayLayout = "2006-01-02"

// Visit is one recorded session on a campaign page. Events arriving within
// the session window mutate the same row.
type Visit struct {
	ID           uint   `gorm:"primaryKey;autoIncrement" json:"id"`
	CampaignID   uint   `gorm:"not null;uniqueIndex:idx_visit_session_day;index:idx_visit_campaign_time" json:"campaign_id"`
	DepartmentID string `gorm:"not null;index" json:"department_id"`
	SessionID    string `gorm:"not null;uniqueIndex:idx_visit_session_day" json:"session_id"`
	// VisitDay is the UTC calendar day of VisitedAt, part of the duplicate guard.
	VisitDay  string `gorm:"not null;uniqueIndex:idx_visit_session_day" json:"visit_day"`
	VisitorID string `gorm:"index" json:"visitor_id"`
	QRCodeID  *uint  `json:"qr_code_id"`

	VisitedAt      time.Time `gorm:"not null;index:idx_visit_campaign_time" json:"visited_at"`
	LastActivityAt time.Time `gorm:"not null" json:"last_activity_at"`

	TimeOnPage        *int       `json:"time_on_page"`
	ScrollDepth       *int       `json:"scroll_depth"`
	EventsViewed      *int       `json:"events_viewed"`
	EventsClicked     *int       `json:"events_clicked"`
	CaseStudiesViewed *int       `json:"case_studies_viewed"`
	ChatMessages      int        `gorm:"not null;default:0" json:"chat_messages"`
	CtaClicked        bool       `gorm:"not null;default:false" json:"cta_clicked"`
	CtaClickedAt      *time.Time `json:"cta_clicked_at"`
	FormSubmitted     bool       `gorm:"not null;default:false" json:"form_submitted"`

	UTMSource   string `json:"utm_source"`
	UTMMedium   string `json:"utm_medium"`
	UTMCampaign string `json:"utm_campaign"`
	UTMTerm     string `json:"utm_term"`
	UTMContent  string `json:"utm_content"`
	Referrer    string `json:"referrer"`

	DeviceType string `json:"device_type"`
	Browser    string `json:"browser"`
	OS         string `gorm:"column:os" json:"os"`
	Country    string `json:"country"`

	VisitorEmail   string `json:"visitor_email"`
	VisitorName    string `json:"visitor_name"`
	VisitorCompany string `json:"visitor_company"`
	VisitorTitle   string `json:"visitor_title"`
}

// TrafficSource re-derives the acquisition channel from the stored fields.
func (v *Visit) TrafficSource() attribution.TrafficSource {
	return attribution.ClassifyTrafficSource(v.UTMSource, v.UTMMedium, v.Referrer)
}

// VisitorIdentity holds optional identity captured from forms or chat.
// Nil fields are left untouched on merge.
type VisitorIdentity struct {
	Email   *string
	Name    *string
	Company *string
	Title   *string
}

// PageViewInput defines the input required to record a page view.
type PageViewInput struct {
	CampaignID   uint
	DepartmentID string
	// SessionID is generated when empty.
	SessionID   string
	VisitorID   string
	QRCodeID    *uint
	Request     attribution.RequestContext
	Attribution attribution.Attribution
	Visitor     VisitorIdentity
}

// EngagementMetrics is a partial update; nil fields are left unchanged.
type EngagementMetrics struct {
	TimeOnPage        *int `json:"time_on_page"`
	ScrollDepth       *int `json:"scroll_depth"`
	EventsViewed      *int `json:"events_viewed"`
	EventsClicked     *int `json:"events_clicked"`
	CaseStudiesViewed *int `json:"case_studies_viewed"`
}

func (m EngagementMetrics) empty() bool {
	return m.TimeOnPage == nil && m.ScrollDepth == nil && m.EventsViewed == nil &&
		m.EventsClicked == nil && m.CaseStudiesViewed == nil
}

func visitDay(t time.Time) string {
	return t.UTC().Format(visitDayLayout)
}
