package http

import (
	"net/http"

	echo "github.com/labstack/echo/v4"

	"github.com/jmehdipour/simbase-hub/internal/config"
	"github.com/jmehdipour/simbase-hub/internal/coordinator"
	"github.com/jmehdipour/simbase-hub/internal/model"
	"github.com/jmehdipour/simbase-hub/internal/registry"
	"github.com/jmehdipour/simbase-hub/internal/sensor"
)

// redactTail keeps the last four characters so a support bundle can still
// correlate values without carrying whole identifiers or secrets.
func redactTail(s string) string {
	if s == "" {
		return ""
	}
	if len(s) <= 4 {
		return "****"
	}
	return "****" + s[len(s)-4:]
}

func redactedSim(rec model.SimRecord) map[string]any {
	return map[string]any{
		"iccid":            redactTail(rec.ICCID),
		"name":             rec.Name,
		"status":           rec.Status.String(),
		"data_usage_mb":    rec.DataUsageMB,
		"monthly_cost_usd": rec.MonthlyCostUSD,
		"sms_sent":         rec.SmsSent,
		"sms_received":     rec.SmsReceived,
		"plan":             rec.CoveragePlan,
		"hardware":         rec.HardwareModel,
		"imei":             redactTail(rec.IMEI),
		"msisdn":           redactTail(rec.MSISDN),
		"ip_address":       redactTail(rec.StaticIP),
	}
}

// diagnosticsHandler dumps everything a support bundle needs. It stays up
// before the first poll lands; the snapshot section is simply absent then.
func diagnosticsHandler(cfg config.Config, reg *registry.Registry, coord *coordinator.Coordinator) echo.HandlerFunc {
	return func(c echo.Context) error {
		out := map[string]any{
			"config": map[string]any{
				"api": map[string]any{
					"key":       redactTail(cfg.API.Key),
					"base_url":  cfg.API.BaseURL,
					"timeout":   cfg.API.Timeout.String(),
					"page_size": cfg.API.PageSize,
					"max_pages": cfg.API.MaxPages,
					"rate": map[string]any{
						"per_second": cfg.API.Rate.PerSecond,
						"per_day":    cfg.API.Rate.PerDay,
					},
					"retry": map[string]any{
						"attempts":      cfg.API.Retry.Attempts,
						"initial_delay": cfg.API.Retry.InitialDelay.String(),
						"max_delay":     cfg.API.Retry.MaxDelay.String(),
					},
				},
				"poll": map[string]any{"interval": cfg.Poll.Interval.String()},
				"http": map[string]any{
					"addr":           cfg.HTTP.Addr,
					"auth_token":     redactTail(cfg.HTTP.AuthToken),
					"rate_limit_rps": cfg.HTTP.RateLimitRPS,
				},
				"redis": map[string]any{"addr": redactTail(cfg.Redis.Addr)},
				"sensors": map[string]any{
					"enabled":                  cfg.Sensors.Enabled,
					"enabled_binary":           cfg.Sensors.EnabledBinary,
					"enable_activation_switch": cfg.Sensors.EnableActivationSwitch,
				},
				"log": map[string]any{"level": cfg.Log.Level},
			},
			"coordinator": coord.Status(),
		}

		if latest := reg.Latest(); latest != nil {
			sims := make([]map[string]any, 0, len(latest.Sims))
			for _, rec := range latest.Sims {
				sims = append(sims, redactedSim(rec))
			}
			out["snapshot"] = map[string]any{
				"cycle_id":   latest.CycleID,
				"updated_at": latest.Timestamp,
				"account":    sensor.AccountView(latest.Account),
				"sim_count":  len(latest.Sims),
				"sims":       sims,
			}
		}

		return c.JSON(http.StatusOK, out)
	}
}
