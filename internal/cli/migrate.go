package cli

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/seuros/mfdash/internal/database"
)

// databaseURL resolves the connection string the migrate commands act on.
func databaseURL() (string, error) {
	cfg, err := loadConfig()
	if err != nil {
		return "", err
	}
	if cfg.DatabaseURL == "" {
		return "", fmt.Errorf("DATABASE_URL environment variable not set")
	}
	return cfg.DatabaseURL, nil
}

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Manage the preference database schema",
}

var migrateUpCmd = &cobra.Command{
	Use:   "up",
	Short: "Apply pending migrations",
	RunE: func(cmd *cobra.Command, args []string) error {
		url, err := databaseURL()
		if err != nil {
			return err
		}
		if err := database.RunMigrations(url); err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), "✓ Migrations completed")
		return nil
	},
}

var migrateDownCmd = &cobra.Command{
	Use:   "down",
	Short: "Roll back migrations",
	RunE: func(cmd *cobra.Command, args []string) error {
		steps, _ := cmd.Flags().GetInt("steps")
		url, err := databaseURL()
		if err != nil {
			return err
		}
		if err := database.RollbackMigrations(url, steps); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "✓ Rolled back %d migration(s)\n", steps)
		return nil
	},
}

var migrateStatusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show the schema version and stored preference counts",
	RunE: func(cmd *cobra.Command, args []string) error {
		url, err := databaseURL()
		if err != nil {
			return err
		}
		version, dirty, err := database.GetMigrationVersion(url)
		if err != nil {
			return err
		}
		out := cmd.OutOrStdout()
		fmt.Fprintf(out, "Version:     %d (latest %d)\n", version, database.LatestVersion())
		fmt.Fprintf(out, "Dirty:       %t\n", dirty)

		if err := database.ConnectURL(url); err != nil {
			return fmt.Errorf("database connection failed: %w", err)
		}
		defer func() { _ = database.Close() }()

		ctx := cmd.Context()
		if ctx == nil {
			ctx = context.Background()
		}
		stats, err := database.GetPreferenceStats(ctx)
		if err != nil {
			return err
		}
		fmt.Fprintf(out, "Preferences: %d\n", stats.Count)
		if stats.LastUpdated != nil {
			fmt.Fprintf(out, "Last write:  %s\n", stats.LastUpdated.Format("2006-01-02 15:04:05 MST"))
		}
		return nil
	},
}

func init() {
	migrateDownCmd.Flags().Int("steps", 1, "Number of migrations to roll back")
	migrateCmd.AddCommand(migrateUpCmd, migrateDownCmd, migrateStatusCmd)
	RootCmd.AddCommand(migrateCmd)
}
