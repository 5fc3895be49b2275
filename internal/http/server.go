package http

import (
	"context"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	echoMid "github.com/labstack/echo/v4/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/jmehdipour/simbase-hub/internal/config"
	"github.com/jmehdipour/simbase-hub/internal/coordinator"
	"github.com/jmehdipour/simbase-hub/internal/gateway"
	"github.com/jmehdipour/simbase-hub/internal/http/middleware"
	"github.com/jmehdipour/simbase-hub/internal/ratelimit"
	"github.com/jmehdipour/simbase-hub/internal/registry"
	"github.com/jmehdipour/simbase-hub/internal/sensor"
)

type Server struct {
	e   *echo.Echo
	log *zap.Logger
}

// NewServer wires the host-facing API. rds may be nil; inbound rate limiting
// is skipped then.
func NewServer(
	cfg config.Config,
	log *zap.Logger,
	reg *registry.Registry,
	gw *gateway.Gateway,
	coord *coordinator.Coordinator,
	lim *ratelimit.Limiter,
	rds *redis.Client,
) *Server {
	sel := sensor.NewSelection(cfg.Sensors.Enabled, cfg.Sensors.EnabledBinary, cfg.Sensors.EnableActivationSwitch, log)

	// echo
	e := echo.New()
	e.HideBanner = true
	e.Use(echoMid.Recover(), echoMid.Logger())

	e.GET("/metrics", echo.WrapHandler(promhttp.Handler()))

	// health
	e.GET("/healthz", func(c echo.Context) error { return c.String(http.StatusOK, "ok") })

	// middlewares
	authMW := middleware.APIKeyMiddleware(cfg.HTTP.AuthToken)
	rlMW := middleware.RateLimitMiddleware(middleware.RateLimitConfig{
		Redis:          rds,
		RPS:            cfg.HTTP.RateLimitRPS,
		KeyPrefix:      "rl:ip:",
		Window:         time.Second,
		RetryAfterHint: true,
	})

	// routes
	v1 := e.Group("/v1", authMW, rlMW)
	v1.GET("/sims", listSimsHandler(reg, sel))
	v1.GET("/sims/:iccid", getSimHandler(reg, sel))
	v1.GET("/sims/:iccid/sms", readSmsHandler(gw))
	v1.PATCH("/sims/:iccid", updateSimHandler(gw))
	v1.POST("/sims/:iccid/activate", activateSimHandler(gw, true))
	v1.POST("/sims/:iccid/deactivate", activateSimHandler(gw, false))
	v1.POST("/sims/:iccid/sms", sendSmsHandler(gw))
	v1.POST("/sims/activate-all", bulkHandler(gw, true))
	v1.POST("/sims/deactivate-all", bulkHandler(gw, false))
	v1.GET("/account", accountHandler(reg))
	v1.GET("/events", eventsHandler(gw))
	v1.GET("/status", statusHandler(coord, lim))
	v1.GET("/diagnostics", diagnosticsHandler(cfg, reg, coord))
	v1.POST("/refresh", refreshHandler(coord))

	return &Server{e: e, log: log}
}

func (s *Server) Start(addr string) error {
	s.log.Info("http: listening", zap.String("addr", addr))
	return s.e.Start(addr)
}

func (s *Server) Shutdown(ctx context.Context) error { return s.e.Shutdown(ctx) }
