package main

import (
	"fmt"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/mmynk/splitledger/internal/config"
	"github.com/mmynk/splitledger/internal/storage/mongo"
	"github.com/mmynk/splitledger/internal/storage/sqlite"
)

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Create or upgrade the database schema",
	Long:  `Runs the embedded goose migrations for SQLite, or creates the indexes for MongoDB.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		switch appCfg.Database.Driver {
		case config.DriverMongo:
			store, err := mongo.New(cmd.Context(), appCfg.Database.URI, appCfg.Database.Name)
			if err != nil {
				return fmt.Errorf("failed to initialize storage: %w", err)
			}
			defer store.Close()
			slog.Info("Indexes ensured", "database", appCfg.Database.Name)
			return nil

		default:
			db, err := sqlite.Open(appCfg.Database.Path)
			if err != nil {
				return err
			}
			defer db.Close()

			slog.Info("Running migrations...", "database", appCfg.Database.Path)
			if err := sqlite.Migrate(db); err != nil {
				return err
			}
			version, err := sqlite.SchemaVersion(db)
			if err != nil {
				return err
			}
			slog.Info("Migrations complete", "version", version)
			return nil
		}
	},
}

func init() {
	rootCmd.AddCommand(migrateCmd)
}
