// Package v1 holds the JSON handlers for the tracking and admin APIs.
package v1

import (
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"

	"accountpulse/internal/config"
	"accountpulse/internal/metrics"
)

const (
	errInvalidRequest = "Invalid request"
	dateLayout        = "2006-01-02"
)

// Handlers carries what the handlers need beyond the per-request context.
type Handlers struct {
	Metrics            *metrics.Metrics
	SessionWindow      time.Duration
	AggregationWorkers int
	FingerprintSalt    string
	Now                func() time.Time
}

// NewHandlers builds handlers configured from cfg.
func NewHandlers(cfg *config.Config, m *metrics.Metrics) *Handlers {
	return &Handlers{
		Metrics:            m,
		SessionWindow:      time.Duration(cfg.VisitWindowHours) * time.Hour,
		AggregationWorkers: cfg.GetAggregationWorkers(),
		FingerprintSalt:    cfg.PrivateKey,
		Now:                time.Now,
	}
}

func errorResponse(c *fiber.Ctx, status int, code, message string) error {
	return c.Status(status).JSON(fiber.Map{
		"error": message,
		"code":  code,
	})
}

// isBusy reports whether err is SQLite refusing a write under contention.
func isBusy(err error) bool {
	if err == nil {
		return false
	}
	msg := err.Error()
	return strings.Contains(msg, "database is locked") || strings.Contains(msg, "busy")
}

func storageError(c *fiber.Ctx, err error) error {
	if isBusy(err) {
		return errorResponse(c, http.StatusServiceUnavailable, "STORAGE_BUSY", "Storage is busy, retry shortly")
	}
	return errorResponse(c, http.StatusInternalServerError, "STORAGE_ERROR", "Failed to store data")
}

func paramID(c *fiber.Ctx, name string) (uint, error) {
	id, err := c.ParamsInt(name)
	if err != nil || id <= 0 {
		return 0, errors.New("invalid " + name)
	}
	return uint(id), nil
}

func parseDate(value string) (time.Time, error) {
	return time.ParseInLocation(dateLayout, strings.TrimSpace(value), time.UTC)
}
