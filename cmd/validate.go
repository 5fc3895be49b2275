package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/jmehdipour/simbase-hub/internal/config"
	"github.com/jmehdipour/simbase-hub/internal/logger"
	"github.com/jmehdipour/simbase-hub/internal/ratelimit"
	"github.com/jmehdipour/simbase-hub/internal/simbase"
)

var validateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Check the configured API key against the remote",
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

		limiter := ratelimit.New(ratelimit.Opts{
			PerSecond: cfg.API.Rate.PerSecond,
			PerDay:    cfg.API.Rate.PerDay,
		}, log)
		client := simbase.New(simbase.Opts{
			BaseURL: cfg.API.BaseURL,
			APIKey:  cfg.API.Key,
			Timeout: cfg.API.Timeout,
		}, limiter, log)

		ok, err := client.ValidateKey(cmd.Context())
		if err != nil {
			return fmt.Errorf("validate key: %w", err)
		}
		if !ok {
			return fmt.Errorf("api key rejected by the remote")
		}

		fmt.Println("api key ok")
		return nil
	},
}
