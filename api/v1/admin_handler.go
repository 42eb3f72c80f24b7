package v1

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/gofiber/fiber/v2"
	"github.com/karloscodes/cartridge"

	"accountpulse/internal/analytics"
	"accountpulse/internal/campaigns"
	"accountpulse/internal/contacts"
	"accountpulse/internal/sequences"
)

type aggregateDayParams struct {
	CampaignID   *uint  `json:"campaign_id"`
	Date         string `json:"date"`
	DepartmentID string `json:"department_id"`
}

type backfillParams struct {
	From string `json:"from"`
	To   string `json:"to"`
}

type enrollParams struct {
	ContactID  uint `json:"contact_id"`
	SequenceID uint `json:"sequence_id"`
}

type advanceParams struct {
	StepIndex *int `json:"step_index"`
}

type rescoreParams struct {
	CompanyID *uint `json:"company_id"`
}

func (h *Handlers) aggregator(ctx *cartridge.Context) *analytics.Aggregator {
	return analytics.NewAggregator(ctx.DBManager, ctx.Logger,
		analytics.WithWorkers(h.AggregationWorkers),
		analytics.WithClock(h.Now))
}

func (h *Handlers) engine(ctx *cartridge.Context) *sequences.Engine {
	return sequences.NewEngine(ctx.DBManager, ctx.Logger, sequences.WithClock(h.Now))
}

// AggregateDayHandler aggregates one date, either for one campaign (and
// optionally one department) or for every campaign.
func (h *Handlers) AggregateDayHandler(ctx *cartridge.Context) error {
	var params aggregateDayParams
	if err := ctx.BodyParser(&params); err != nil {
		return errorResponse(ctx.Ctx, http.StatusBadRequest, "INVALID_REQUEST", errInvalidRequest)
	}
	date, err := parseDate(params.Date)
	if err != nil {
		return errorResponse(ctx.Ctx, http.StatusBadRequest, "INVALID_DATE", "date must be YYYY-MM-DD")
	}

	aggregator := h.aggregator(ctx)
	if params.CampaignID == nil {
		result, err := aggregator.AggregateAllCampaignsForDate(ctx.UserContext(), date)
		if err != nil {
			ctx.Logger.Error("Aggregation run failed", slog.Any("error", err))
			return storageError(ctx.Ctx, err)
		}
		h.Metrics.AddAggregationUnits(result.Processed, len(result.Failures))
		return ctx.JSON(runResponse(result))
	}

	stat, err := aggregator.AggregateCampaignDay(ctx.UserContext(), *params.CampaignID, date, params.DepartmentID)
	if err != nil {
		if campaigns.IsNotFound(err) {
			return errorResponse(ctx.Ctx, http.StatusNotFound, "CAMPAIGN_NOT_FOUND", "Campaign not found")
		}
		h.Metrics.AddAggregationUnits(0, 1)
		ctx.Logger.Error("Campaign day aggregation failed", slog.Any("error", err))
		return storageError(ctx.Ctx, err)
	}
	h.Metrics.AddAggregationUnits(1, 0)
	return ctx.JSON(stat)
}

// BackfillHandler aggregates every campaign for each day of an inclusive range.
func (h *Handlers) BackfillHandler(ctx *cartridge.Context) error {
	var params backfillParams
	if err := ctx.BodyParser(&params); err != nil {
		return errorResponse(ctx.Ctx, http.StatusBadRequest, "INVALID_REQUEST", errInvalidRequest)
	}
	from, err := parseDate(params.From)
	if err != nil {
		return errorResponse(ctx.Ctx, http.StatusBadRequest, "INVALID_DATE", "from must be YYYY-MM-DD")
	}
	to, err := parseDate(params.To)
	if err != nil {
		return errorResponse(ctx.Ctx, http.StatusBadRequest, "INVALID_DATE", "to must be YYYY-MM-DD")
	}

	result, err := h.aggregator(ctx).BackfillAggregation(ctx.UserContext(), from, to)
	if err != nil {
		if errors.Is(err, analytics.ErrInvalidRange) {
			return errorResponse(ctx.Ctx, http.StatusBadRequest, "INVALID_RANGE", err.Error())
		}
		ctx.Logger.Error("Backfill failed", slog.Any("error", err))
		return storageError(ctx.Ctx, err)
	}
	h.Metrics.AddAggregationUnits(result.Processed, len(result.Failures))
	return ctx.JSON(runResponse(result))
}

func runResponse(result *analytics.RunResult) fiber.Map {
	failures := make([]fiber.Map, len(result.Failures))
	for i, f := range result.Failures {
		failures[i] = fiber.Map{
			"campaign_id": f.CampaignID,
			"date":        f.Date.Format(dateLayout),
			"error":       f.Err.Error(),
		}
	}
	return fiber.Map{
		"processed":    result.Processed,
		"campaign_ids": result.CampaignIDs,
		"failures":     failures,
	}
}

// RescoreHandler recomputes engagement scores for one account or all of them.
func (h *Handlers) RescoreHandler(ctx *cartridge.Context) error {
	var params rescoreParams
	if len(ctx.Body()) > 0 {
		if err := ctx.BodyParser(&params); err != nil {
			return errorResponse(ctx.Ctx, http.StatusBadRequest, "INVALID_REQUEST", errInvalidRequest)
		}
	}

	scorer := contacts.NewScorer(ctx.DBManager, ctx.Logger, h.Now)
	result, err := scorer.RecomputeForAccount(ctx.UserContext(), params.CompanyID)
	if err != nil {
		if contacts.IsNotFound(err) {
			return errorResponse(ctx.Ctx, http.StatusNotFound, "COMPANY_NOT_FOUND", "Company not found")
		}
		ctx.Logger.Error("Rescore failed", slog.Any("error", err))
		return storageError(ctx.Ctx, err)
	}
	h.Metrics.AddContactsRescored(result.Processed, len(result.Failures))

	failures := make([]fiber.Map, len(result.Failures))
	for i, f := range result.Failures {
		failures[i] = fiber.Map{"contact_id": f.ContactID, "error": f.Err.Error()}
	}
	return ctx.JSON(fiber.Map{
		"processed": result.Processed,
		"results":   result.Results,
		"failures":  failures,
	})
}

// ContactScoreHandler rescores a single contact.
func (h *Handlers) ContactScoreHandler(ctx *cartridge.Context) error {
	contactID, err := paramID(ctx.Ctx, "id")
	if err != nil {
		return errorResponse(ctx.Ctx, http.StatusBadRequest, "INVALID_REQUEST", err.Error())
	}

	result, err := contacts.NewScorer(ctx.DBManager, ctx.Logger, h.Now).RecomputeAndPersist(ctx.UserContext(), contactID)
	if err != nil {
		if contacts.IsNotFound(err) {
			return errorResponse(ctx.Ctx, http.StatusNotFound, "CONTACT_NOT_FOUND", "Contact not found")
		}
		return storageError(ctx.Ctx, err)
	}

	contact, err := contacts.FindByID(ctx.DBManager.GetConnection(), contactID)
	if err != nil {
		return storageError(ctx.Ctx, err)
	}
	return ctx.JSON(fiber.Map{
		"score":     result,
		"seniority": contact.Seniority(),
	})
}

// EnrollHandler enrolls a contact in a sequence.
func (h *Handlers) EnrollHandler(ctx *cartridge.Context) error {
	var params enrollParams
	if err := ctx.BodyParser(&params); err != nil {
		return errorResponse(ctx.Ctx, http.StatusBadRequest, "INVALID_REQUEST", errInvalidRequest)
	}

	enrollment, err := h.engine(ctx).Enroll(ctx.UserContext(), params.ContactID, params.SequenceID)
	switch {
	case err == nil:
		return ctx.Status(http.StatusCreated).JSON(enrollment)
	case errors.Is(err, sequences.ErrAlreadyEnrolled):
		return errorResponse(ctx.Ctx, http.StatusConflict, "ALREADY_ENROLLED", err.Error())
	case errors.Is(err, contacts.ErrContactNotFound):
		return errorResponse(ctx.Ctx, http.StatusNotFound, "CONTACT_NOT_FOUND", "Contact not found")
	case errors.Is(err, sequences.ErrSequenceNotFound):
		return errorResponse(ctx.Ctx, http.StatusNotFound, "SEQUENCE_NOT_FOUND", "Sequence not found")
	default:
		ctx.Logger.Error("Failed to enroll contact", slog.Any("error", err))
		return storageError(ctx.Ctx, err)
	}
}

// NextTouchHandler returns the touch due for a contact, or 204 when nothing
// is due.
func (h *Handlers) NextTouchHandler(ctx *cartridge.Context) error {
	contactID, err := paramID(ctx.Ctx, "id")
	if err != nil {
		return errorResponse(ctx.Ctx, http.StatusBadRequest, "INVALID_REQUEST", err.Error())
	}

	touch, err := h.engine(ctx).GetNextTouchContext(ctx.UserContext(), contactID)
	if err != nil {
		if errors.Is(err, contacts.ErrContactNotFound) {
			return errorResponse(ctx.Ctx, http.StatusNotFound, "CONTACT_NOT_FOUND", "Contact not found")
		}
		return storageError(ctx.Ctx, err)
	}
	if touch == nil {
		return ctx.SendStatus(http.StatusNoContent)
	}
	return ctx.JSON(touch)
}

// AdvanceEnrollmentHandler records that a step's touch was sent.
func (h *Handlers) AdvanceEnrollmentHandler(ctx *cartridge.Context) error {
	enrollmentID, err := paramID(ctx.Ctx, "id")
	if err != nil {
		return errorResponse(ctx.Ctx, http.StatusBadRequest, "INVALID_REQUEST", err.Error())
	}
	var params advanceParams
	if err := ctx.BodyParser(&params); err != nil || params.StepIndex == nil {
		return errorResponse(ctx.Ctx, http.StatusBadRequest, "INVALID_REQUEST", "step_index is required")
	}

	enrollment, err := h.engine(ctx).AdvanceEnrollment(ctx.UserContext(), enrollmentID, *params.StepIndex)
	switch {
	case err == nil:
		return ctx.JSON(enrollment)
	case errors.Is(err, sequences.ErrEnrollmentNotFound):
		return errorResponse(ctx.Ctx, http.StatusNotFound, "ENROLLMENT_NOT_FOUND", "Enrollment not found")
	case errors.Is(err, sequences.ErrStaleStep):
		return errorResponse(ctx.Ctx, http.StatusConflict, "STALE_STEP", err.Error())
	default:
		ctx.Logger.Error("Failed to advance enrollment", slog.Any("error", err))
		return storageError(ctx.Ctx, err)
	}
}
