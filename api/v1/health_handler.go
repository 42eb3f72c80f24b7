package v1

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/karloscodes/cartridge"
)

// HealthStatus represents the health check response
type HealthStatus struct {
	Status    string    `json:"status"`
	Timestamp time.Time `json:"timestamp"`
	DBStatus  string    `json:"db_status"`
}

// HealthHandler reports whether the database answers a ping. A failing
// database turns the response into a 503 so load balancers drain the node.
func (h *Handlers) HealthHandler(ctx *cartridge.Context) error {
	health := HealthStatus{Status: "ok", Timestamp: h.Now().UTC(), DBStatus: "ok"}

	if err := ping(ctx); err != nil {
		ctx.Logger.Error("Database health check failed", slog.Any("error", err))
		health.Status = "degraded"
		health.DBStatus = "error"
		return ctx.Status(http.StatusServiceUnavailable).JSON(health)
	}
	return ctx.JSON(health)
}

func ping(ctx *cartridge.Context) error {
	sqlDB, err := ctx.DBManager.GetConnection().DB()
	if err != nil {
		return err
	}
	return sqlDB.PingContext(ctx.UserContext())
}
