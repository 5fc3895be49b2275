package http

import (
	"net/http"

	echo "github.com/labstack/echo/v4"

	"github.com/jmehdipour/simbase-hub/internal/registry"
	"github.com/jmehdipour/simbase-hub/internal/sensor"
	"github.com/jmehdipour/simbase-hub/internal/util"
)

func listSimsHandler(reg *registry.Registry, sel sensor.Selection) echo.HandlerFunc {
	return func(c echo.Context) error {
		latest := reg.Latest()
		if latest == nil {
			return c.JSON(http.StatusServiceUnavailable, map[string]string{"error": "no_snapshot_yet"})
		}

		results := make([]map[string]any, 0, len(latest.Sims))
		for _, rec := range latest.Sims {
			results = append(results, map[string]any{
				"iccid":   rec.ICCID,
				"name":    rec.Name,
				"sensors": sel.SimView(rec),
			})
		}

		return c.JSON(http.StatusOK, map[string]any{
			"cycle_id":   latest.CycleID,
			"updated_at": latest.Timestamp,
			"added":      latest.Added,
			"removed":    latest.Removed,
			"count":      len(results),
			"results":    results,
		})
	}
}

func getSimHandler(reg *registry.Registry, sel sensor.Selection) echo.HandlerFunc {
	return func(c echo.Context) error {
		iccid := util.NormalizeICCID(c.Param("iccid"))
		if !util.ValidICCID(iccid) {
			return c.JSON(http.StatusBadRequest, map[string]string{"error": "invalid_iccid"})
		}

		latest := reg.Latest()
		if latest == nil {
			return c.JSON(http.StatusServiceUnavailable, map[string]string{"error": "no_snapshot_yet"})
		}

		rec, ok := latest.Sim(iccid)
		if !ok {
			return c.JSON(http.StatusNotFound, map[string]string{"error": "sim_not_found"})
		}

		return c.JSON(http.StatusOK, map[string]any{
			"iccid":      rec.ICCID,
			"name":       rec.Name,
			"cycle_id":   latest.CycleID,
			"updated_at": latest.Timestamp,
			"sensors":    sel.SimView(rec),
		})
	}
}
