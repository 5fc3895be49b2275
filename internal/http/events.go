package http

import (
	"net/http"

	echo "github.com/labstack/echo/v4"

	"github.com/jmehdipour/simbase-hub/internal/gateway"
)

// eventsHandler proxies one page of the remote event feed. since and cursor
// ride through as query params; the next cursor comes back in the body.
func eventsHandler(gw *gateway.Gateway) echo.HandlerFunc {
	return func(c echo.Context) error {
		events, next, err := gw.Events(c.Request().Context(), c.QueryParam("since"), c.QueryParam("cursor"))
		if err != nil {
			return commandError(c, err)
		}

		out := map[string]any{
			"count":   len(events),
			"results": events,
		}
		if next != "" {
			out["cursor"] = next
		}
		return c.JSON(http.StatusOK, out)
	}
}
