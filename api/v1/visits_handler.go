package v1

import (
	"context"
	"errors"
	"log/slog"
	"net/http"

	"github.com/gofiber/fiber/v2"
	"github.com/karloscodes/cartridge"

	"accountpulse/internal/attribution"
	"accountpulse/internal/campaigns"
	"accountpulse/internal/visitors"
	"accountpulse/internal/visits"
)

// CreateVisitParams is the body of a page view sent by the tracker script.
type CreateVisitParams struct {
	CampaignID   uint    `json:"campaign_id"`
	DepartmentID string  `json:"department_id"`
	SessionID    string  `json:"session_id"`
	VisitorID    string  `json:"visitor_id"`
	QRCodeID     *uint   `json:"qr_code_id"`
	Referrer     *string `json:"referrer"`
	UTMSource    *string `json:"utm_source"`
	UTMMedium    *string `json:"utm_medium"`
	UTMCampaign  *string `json:"utm_campaign"`
	UTMTerm      *string `json:"utm_term"`
	UTMContent   *string `json:"utm_content"`

	VisitorEmail   *string `json:"visitor_email"`
	VisitorName    *string `json:"visitor_name"`
	VisitorCompany *string `json:"visitor_company"`
	VisitorTitle   *string `json:"visitor_title"`
}

func (h *Handlers) recorder(ctx *cartridge.Context) *visits.Recorder {
	return visits.NewRecorder(ctx.DBManager, ctx.Logger,
		visits.WithSessionWindow(h.SessionWindow),
		visits.WithClock(h.Now))
}

// CreateVisitHandler records a page view and returns the visit and session
// ids the tracker reuses for follow-up events.
func (h *Handlers) CreateVisitHandler(ctx *cartridge.Context) error {
	var params CreateVisitParams
	if err := ctx.BodyParser(&params); err != nil {
		ctx.Logger.Debug("Failed to parse visit request", slog.Any("error", err))
		return errorResponse(ctx.Ctx, http.StatusBadRequest, "INVALID_REQUEST", errInvalidRequest)
	}
	if params.CampaignID == 0 {
		return errorResponse(ctx.Ctx, http.StatusBadRequest, "INVALID_REQUEST", "campaign_id is required")
	}

	sessionID := params.SessionID
	if sessionID == "" {
		sessionID = visits.NewSessionID()
	}

	request := requestContext(ctx.Ctx)
	input := &visits.PageViewInput{
		CampaignID:   params.CampaignID,
		DepartmentID: params.DepartmentID,
		SessionID:    sessionID,
		VisitorID:    visitors.Resolve(params.VisitorID, params.CampaignID, request.IP, request.UserAgent, h.FingerprintSalt),
		QRCodeID:     params.QRCodeID,
		Request:      request,
		Attribution: attribution.Attribution{
			UTMSource:   params.UTMSource,
			UTMMedium:   params.UTMMedium,
			UTMCampaign: params.UTMCampaign,
			UTMTerm:     params.UTMTerm,
			UTMContent:  params.UTMContent,
			Referrer:    params.Referrer,
		},
		Visitor: visits.VisitorIdentity{
			Email:   params.VisitorEmail,
			Name:    params.VisitorName,
			Company: params.VisitorCompany,
			Title:   params.VisitorTitle,
		},
	}

	visitID, err := h.recorder(ctx).RecordPageView(ctx.UserContext(), input)
	if err != nil {
		if campaigns.IsNotFound(err) {
			return errorResponse(ctx.Ctx, http.StatusNotFound, "CAMPAIGN_NOT_FOUND", "Campaign not found")
		}
		ctx.Logger.Error("Failed to record page view",
			slog.Uint64("campaign_id", uint64(params.CampaignID)),
			slog.Any("error", err))
		return storageError(ctx.Ctx, err)
	}

	h.Metrics.ObserveVisitEvent("page_view")
	return ctx.Status(http.StatusCreated).JSON(fiber.Map{
		"visit_id":   visitID,
		"session_id": sessionID,
	})
}

// RecordMetricsHandler applies a partial engagement update to a visit.
func (h *Handlers) RecordMetricsHandler(ctx *cartridge.Context) error {
	var metrics visits.EngagementMetrics
	if err := ctx.BodyParser(&metrics); err != nil {
		return errorResponse(ctx.Ctx, http.StatusBadRequest, "INVALID_REQUEST", errInvalidRequest)
	}
	return h.mutateVisit(ctx, "metrics", func(r *visits.Recorder, c context.Context, id uint) error {
		return r.RecordEngagementMetrics(c, id, metrics)
	})
}

// RecordCtaHandler marks the visit's call to action as clicked.
func (h *Handlers) RecordCtaHandler(ctx *cartridge.Context) error {
	return h.mutateVisit(ctx, "cta_click", (*visits.Recorder).RecordCtaClick)
}

// RecordFormHandler marks the visit's form as submitted.
func (h *Handlers) RecordFormHandler(ctx *cartridge.Context) error {
	return h.mutateVisit(ctx, "form_submission", (*visits.Recorder).RecordFormSubmission)
}

// RecordChatHandler counts one chat message on the visit.
func (h *Handlers) RecordChatHandler(ctx *cartridge.Context) error {
	return h.mutateVisit(ctx, "chat_message", (*visits.Recorder).IncrementChatMessageCount)
}

func (h *Handlers) mutateVisit(ctx *cartridge.Context, kind string, mutate func(*visits.Recorder, context.Context, uint) error) error {
	visitID, err := paramID(ctx.Ctx, "id")
	if err != nil {
		return errorResponse(ctx.Ctx, http.StatusBadRequest, "INVALID_REQUEST", err.Error())
	}

	if err := mutate(h.recorder(ctx), ctx.UserContext(), visitID); err != nil {
		if errors.Is(err, visits.ErrVisitNotFound) {
			return errorResponse(ctx.Ctx, http.StatusNotFound, "VISIT_NOT_FOUND", "Visit not found")
		}
		ctx.Logger.Error("Failed to update visit",
			slog.Uint64("visit_id", uint64(visitID)),
			slog.String("kind", kind),
			slog.Any("error", err))
		return storageError(ctx.Ctx, err)
	}

	h.Metrics.ObserveVisitEvent(kind)
	return ctx.SendStatus(http.StatusNoContent)
}
