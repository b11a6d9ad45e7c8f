package main

import (
	"fmt"

	"github.com/jmoiron/sqlx"
	"github.com/spf13/cobra"

	"github.com/Ramsey-B/aster/config"
	"github.com/Ramsey-B/aster/pkg/database"
)

func migrateCommand() *cobra.Command {
	var migration database.MigrationConfig
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Apply the catalog and approval schema migrations",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg := config.FromContext(cmd.Context())
			logger, sync, err := newLogger(cfg)
			if err != nil {
				return err
			}
			defer sync()

			dbConfig := cfg.DatabaseConfig()
			db, err := sqlx.ConnectContext(cmd.Context(), "postgres", dbConfig.DSN())
			if err != nil {
				return fmt.Errorf("failed to connect to database: %w", err)
			}
			defer db.Close()

			migration.MigrationFolderPath = cfg.DatabaseMigrationFolderPath
			return database.NewMigrationService(logger, &migration).MigratePostgres(db.DB, dbConfig.Name)
		},
	}
	cmd.Flags().UintVar(&migration.Version, "version", 0, "migrate to this version instead of the latest")
	cmd.Flags().IntVar(&migration.Force, "force", 0, "mark the schema clean at this version first")
	cmd.Flags().BoolVar(&migration.Down, "down", false, "roll back every migration")
	return cmd
}
