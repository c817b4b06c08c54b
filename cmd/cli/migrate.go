package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/turtacn/ubi/internal/infrastructure/persistence/postgres"
)

func newMigrateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Create or update the database schema",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			log, err := newLogger(cfg)
			if err != nil {
				return err
			}
			conn, err := postgres.NewDBConnection(cmd.Context(), &cfg.Database, log)
			if err != nil {
				return err
			}
			defer conn.Close()

			if err := postgres.AutoMigrate(conn.DB()); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "schema migrated on %s/%s\n", cfg.Database.Host, cfg.Database.Database)
			return nil
		},
	}
}
