package http

import (
	"net/http"

	echo "github.com/labstack/echo/v4"

	"github.com/jmehdipour/simbase-hub/internal/coordinator"
	"github.com/jmehdipour/simbase-hub/internal/ratelimit"
	"github.com/jmehdipour/simbase-hub/internal/registry"
	"github.com/jmehdipour/simbase-hub/internal/sensor"
)

func accountHandler(reg *registry.Registry) echo.HandlerFunc {
	return func(c echo.Context) error {
		latest := reg.Latest()
		if latest == nil {
			return c.JSON(http.StatusServiceUnavailable, map[string]string{"error": "no_snapshot_yet"})
		}

		return c.JSON(http.StatusOK, map[string]any{
			"cycle_id":   latest.CycleID,
			"updated_at": latest.Timestamp,
			"account":    sensor.AccountView(latest.Account),
		})
	}
}

// statusPayload joins the poll-loop view with the outbound request budget.
type statusPayload struct {
	coordinator.Status
	Limiter ratelimit.Stats `json:"limiter"`
}

func statusHandler(coord *coordinator.Coordinator, lim *ratelimit.Limiter) echo.HandlerFunc {
	return func(c echo.Context) error {
		return c.JSON(http.StatusOK, statusPayload{
			Status:  coord.Status(),
			Limiter: lim.Stats(),
		})
	}
}
