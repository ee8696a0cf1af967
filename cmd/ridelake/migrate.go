package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/hyperengineering/ridelake/internal/config"
	"github.com/hyperengineering/ridelake/internal/store"
)

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Apply pending database migrations and exit",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load()
		if err != nil {
			return err
		}

		if err := store.RunMigrations(cfg.Database.DSN); err != nil {
			return fmt.Errorf("apply migrations: %w", err)
		}

		fmt.Fprintln(cmd.OutOrStdout(), "migrations applied")
		return nil
	},
}
