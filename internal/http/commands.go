package http

import (
	"errors"
	"net/http"

	echo "github.com/labstack/echo/v4"
	"github.com/labstack/gommon/log"

	"github.com/jmehdipour/simbase-hub/internal/gateway"
	"github.com/jmehdipour/simbase-hub/internal/model"
	"github.com/jmehdipour/simbase-hub/internal/simbase"
)

type sendSmsReq struct {
	Message string `json:"message"`
}

type updateSimReq struct {
	Name *string  `json:"name"`
	Tags []string `json:"tags"`
}

// commandError maps gateway and upstream failures onto stable wire codes.
func commandError(c echo.Context, err error) error {
	switch {
	case errors.Is(err, gateway.ErrInvalidICCID):
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "invalid_iccid"})
	case errors.Is(err, gateway.ErrInvalidSms):
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "invalid_message"})
	case errors.Is(err, gateway.ErrEmptyUpdate):
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "empty_update"})
	case errors.Is(err, gateway.ErrUnknownSim):
		return c.JSON(http.StatusNotFound, map[string]string{"error": "sim_not_found"})
	case errors.Is(err, gateway.ErrNoSnapshot):
		return c.JSON(http.StatusServiceUnavailable, map[string]string{"error": "no_snapshot_yet"})
	case errors.Is(err, simbase.ErrAuth):
		return c.JSON(http.StatusBadGateway, map[string]string{"error": "upstream_auth"})
	default:
		log.Errorf("command failed: %v", err)

		return c.JSON(http.StatusBadGateway, map[string]string{"error": "upstream_error"})
	}
}

func activateSimHandler(gw *gateway.Gateway, active bool) echo.HandlerFunc {
	return func(c echo.Context) error {
		var err error
		if active {
			err = gw.Activate(c.Request().Context(), c.Param("iccid"))
		} else {
			err = gw.Deactivate(c.Request().Context(), c.Param("iccid"))
		}
		if err != nil {
			return commandError(c, err)
		}

		return c.JSON(http.StatusOK, map[string]any{
			"iccid":  c.Param("iccid"),
			"active": active,
		})
	}
}

func sendSmsHandler(gw *gateway.Gateway) echo.HandlerFunc {
	return func(c echo.Context) error {
		var req sendSmsReq
		if err := c.Bind(&req); err != nil {
			return c.JSON(http.StatusBadRequest, map[string]string{"error": "bad request"})
		}

		if err := gw.SendSms(c.Request().Context(), c.Param("iccid"), req.Message); err != nil {
			return commandError(c, err)
		}

		return c.JSON(http.StatusAccepted, map[string]any{
			"sent":  true,
			"iccid": c.Param("iccid"),
		})
	}
}

func readSmsHandler(gw *gateway.Gateway) echo.HandlerFunc {
	return func(c echo.Context) error {
		msgs, err := gw.ReadSms(c.Request().Context(), c.Param("iccid"))
		if err != nil {
			return commandError(c, err)
		}

		return c.JSON(http.StatusOK, map[string]any{
			"iccid":   c.Param("iccid"),
			"count":   len(msgs),
			"results": msgs,
		})
	}
}

func updateSimHandler(gw *gateway.Gateway) echo.HandlerFunc {
	return func(c echo.Context) error {
		var req updateSimReq
		if err := c.Bind(&req); err != nil {
			return c.JSON(http.StatusBadRequest, map[string]string{"error": "bad request"})
		}

		upd := model.SimUpdate{Name: req.Name, Tags: req.Tags}
		if err := gw.UpdateSim(c.Request().Context(), c.Param("iccid"), upd); err != nil {
			return commandError(c, err)
		}

		return c.JSON(http.StatusOK, map[string]any{
			"iccid":   c.Param("iccid"),
			"updated": true,
		})
	}
}

func bulkHandler(gw *gateway.Gateway, activate bool) echo.HandlerFunc {
	return func(c echo.Context) error {
		var (
			res gateway.BulkResult
			err error
		)
		if activate {
			res, err = gw.ActivateAll(c.Request().Context())
		} else {
			res, err = gw.DeactivateAll(c.Request().Context())
		}
		if err != nil {
			return commandError(c, err)
		}

		// Per-ICCID outcomes ride in the body; the sweep itself succeeded.
		return c.JSON(http.StatusOK, res)
	}
}

func refreshHandler(refresher gateway.Refresher) echo.HandlerFunc {
	return func(c echo.Context) error {
		refresher.Refresh()

		return c.JSON(http.StatusAccepted, map[string]string{"status": "refresh requested"})
	}
}
