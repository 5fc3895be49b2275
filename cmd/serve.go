package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/jmehdipour/simbase-hub/internal/config"
	"github.com/jmehdipour/simbase-hub/internal/coordinator"
	"github.com/jmehdipour/simbase-hub/internal/db"
	"github.com/jmehdipour/simbase-hub/internal/gateway"
	httpSrv "github.com/jmehdipour/simbase-hub/internal/http"
	"github.com/jmehdipour/simbase-hub/internal/logger"
	"github.com/jmehdipour/simbase-hub/internal/metrics"
	"github.com/jmehdipour/simbase-hub/internal/ratelimit"
	"github.com/jmehdipour/simbase-hub/internal/registry"
	"github.com/jmehdipour/simbase-hub/internal/simbase"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Poll the Simbase account and serve the fleet API",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load(cfgPath)
		if err != nil {
			return fmt.Errorf("load config: %w", err)
		}
		if err := cfg.Validate(); err != nil {
			return err
		}

		log := logger.Init(cfg.Log.Level)
		defer func() { _ = log.Sync() }()

		metrics.MustRegister(prometheus.DefaultRegisterer)

		limiter := ratelimit.New(ratelimit.Opts{
			PerSecond: cfg.API.Rate.PerSecond,
			PerDay:    cfg.API.Rate.PerDay,
		}, log)

		client := simbase.New(simbase.Opts{
			BaseURL:  cfg.API.BaseURL,
			APIKey:   cfg.API.Key,
			Timeout:  cfg.API.Timeout,
			PageSize: cfg.API.PageSize,
			MaxPages: cfg.API.MaxPages,
			Retry: simbase.RetryConfig{
				Attempts:      cfg.API.Retry.Attempts,
				InitialDelay:  cfg.API.Retry.InitialDelay,
				MaxDelay:      cfg.API.Retry.MaxDelay,
				JitterEnabled: true,
			},
		}, limiter, log)

		reg := registry.New()
		coord := coordinator.New(coordinator.Opts{Interval: cfg.Poll.Interval}, client, reg, log)
		gw := gateway.New(gateway.Opts{}, client, reg, coord, log)

		var rds *redis.Client
		if cfg.Redis.Addr != "" {
			rds, err = db.NewRedisClient(db.RedisOpts{
				Addr:        cfg.Redis.Addr,
				Password:    cfg.Redis.Password,
				DB:          cfg.Redis.DB,
				DialTimeout: cfg.Redis.DialTimeout,
			})
			if err != nil {
				return fmt.Errorf("redis connect: %w", err)
			}
			defer func() { _ = rds.Close() }()
		}

		server := httpSrv.NewServer(cfg, log, reg, gw, coord, limiter, rds)

		if err := coord.Start(context.Background()); err != nil {
			return fmt.Errorf("start coordinator: %w", err)
		}

		errCh := make(chan error, 1)
		go func() {
			errCh <- server.Start(cfg.HTTP.Addr)
		}()

		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

		select {
		case sig := <-sigCh:
			log.Info("signal received, shutting down", zap.String("signal", sig.String()))
		case err := <-errCh:
			if err != nil {
				log.Error("http server exited", zap.Error(err))
			}
		}

		// HTTP stops taking commands first, then the poll loop drains.
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = server.Shutdown(ctx)
		coord.Stop()

		return nil
	},
}
