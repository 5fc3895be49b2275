package cmd

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/jmehdipour/simbase-hub/internal/config"
	"github.com/jmehdipour/simbase-hub/internal/coordinator"
	"github.com/jmehdipour/simbase-hub/internal/logger"
	"github.com/jmehdipour/simbase-hub/internal/ratelimit"
	"github.com/jmehdipour/simbase-hub/internal/registry"
	"github.com/jmehdipour/simbase-hub/internal/simbase"
)

var snapshotPretty bool

var snapshotCmd = &cobra.Command{
	Use:   "snapshot",
	Short: "Run one poll cycle and print the result as JSON",
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
			BaseURL:  cfg.API.BaseURL,
			APIKey:   cfg.API.Key,
			Timeout:  cfg.API.Timeout,
			PageSize: cfg.API.PageSize,
			MaxPages: cfg.API.MaxPages,
		}, limiter, log)

		coord := coordinator.New(coordinator.Opts{Interval: cfg.Poll.Interval}, client, registry.New(), log)
		pr, err := coord.RunOnce(cmd.Context())
		if err != nil {
			return fmt.Errorf("poll cycle: %w", err)
		}

		enc := json.NewEncoder(os.Stdout)
		if snapshotPretty {
			enc.SetIndent("", "  ")
		}
		return enc.Encode(pr)
	},
}

func init() {
	snapshotCmd.Flags().BoolVar(&snapshotPretty, "pretty", false, "indent the JSON output")
}
