package main

import (
	"fmt"
	"log/slog"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/Veraticus/spice-ledger/internal/cli"
	"github.com/Veraticus/spice-ledger/internal/config"
	"github.com/Veraticus/spice-ledger/internal/storage"
)

func migrateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Run database migrations",
		Long: `Initialize or update the database schema to the latest version.

Every command migrates the database when it opens it. Use --status to see
the schema version without changing anything.`,
		RunE: runMigrate,
	}

	// Flags
	cmd.Flags().Bool("status", false, "Show current migration status without applying changes")

	return cmd
}

func runMigrate(cmd *cobra.Command, _ []string) error {
	status, _ := cmd.Flags().GetBool("status")
	// Get database path from config
	dbPath := config.DatabasePath(viper.GetString("database.path"))

	slog.Info("Starting database migration", "database", dbPath, "status_only", status)

	// Create storage instance
	store, err := storage.NewSQLiteStorage(dbPath, storage.WithLogger(slog.Default()))
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}
	defer func() { _ = store.Close() }()

	ctx := cmd.Context()
	if status {
		version, err := store.SchemaVersion(ctx)
		if err != nil {
			return err
		}
		cmd.Println(cli.FormatTitle("Database Migration Status"))
		cmd.Printf("Database:        %s\n", store.Path())
		cmd.Printf("Current version: %d\n", version)
		cmd.Printf("Latest version:  %d\n", storage.ExpectedSchemaVersion)
		if version < storage.ExpectedSchemaVersion {
			cmd.Println(cli.FormatWarning("Migrations pending, run: spice-ledger migrate"))
		}
		return nil
	}

	// Run migrations
	if err := store.Migrate(ctx); err != nil {
		return fmt.Errorf("migration failed: %w", err)
	}
	cmd.Println(cli.FormatSuccess(fmt.Sprintf("Database %s is at schema version %d", store.Path(), storage.ExpectedSchemaVersion)))
	return nil
}
