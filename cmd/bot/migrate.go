package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/bezpauzy/eva-bot/internal/config"
	"github.com/bezpauzy/eva-bot/internal/database"
	"github.com/bezpauzy/eva-bot/pkg/logger"
)

func newMigrateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply pending database migrations and exit",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load()
			if err != nil {
				return fmt.Errorf("config: %w", err)
			}
			log := logger.New("eva-bot", cfg.LogLevel, cfg.LogPretty)

			db, err := database.Connect(cmd.Context(), cfg.Database)
			if err != nil {
				return fmt.Errorf("database connect: %w", err)
			}
			defer db.Close()

			if err := database.Migrate(db, log); err != nil {
				return fmt.Errorf("database migrate: %w", err)
			}
			log.Info().Str("driver", cfg.Database.Driver).Msg("migrations applied")
			return nil
		},
	}
}
