package cli

import (
	"github.com/spf13/cobra"

	"github.com/seuros/mfdash/internal/config"
)

var Version string

// Flag values shared by every command that loads configuration.
var (
	flagAPIBaseURL   string
	flagDatabaseURL  string
	flagPort         string
	flagDataDir      string
	flagPrefsBackend string
)

// runServer is swapped out by tests so the bare command does not bind a port.
var runServer = serveDashboard

// RootCmd represents the root command
var RootCmd = &cobra.Command{
	Use:   "mfdash",
	Short: "Analytics dashboard backend",
	Long: `mfdash - filter and table state for the analytics dashboard.

mfdash keeps the selection state of every filter pill and data table on the
dashboard, fetches report data from the analytics API, and remembers layouts
and submitted filters between visits.`,
	Version:       Version,
	SilenceUsage:  true,
	SilenceErrors: true,
	// Default to serve command if no subcommand provided
	RunE: func(cmd *cobra.Command, args []string) error {
		if len(args) == 0 {
			return runServer(cmd.Context())
		}
		return cmd.Help()
	},
}

// Execute is called by main
func Execute(version string) error {
	Version = version
	RootCmd.Version = version
	return RootCmd.Execute()
}

// loadConfig resolves configuration with command flags applied on top.
func loadConfig() (*config.Config, error) {
	return config.LoadWithOverrides(config.Overrides{
		APIBaseURL:   flagAPIBaseURL,
		DatabaseURL:  flagDatabaseURL,
		Port:         flagPort,
		DataDir:      flagDataDir,
		PrefsBackend: flagPrefsBackend,
	})
}

func init() {
	pf := RootCmd.PersistentFlags()
	pf.StringVar(&flagAPIBaseURL, "api-base-url", "", "Analytics API base URL (overrides MFDASH_API_BASE_URL)")
	pf.StringVar(&flagDatabaseURL, "database-url", "", "PostgreSQL connection string (overrides DATABASE_URL)")
	pf.StringVarP(&flagPort, "port", "p", "", "HTTP port (overrides PORT)")
	pf.StringVar(&flagDataDir, "data-dir", "", "Directory for file and sqlite preference stores (overrides DATA_DIR)")
	pf.StringVar(&flagPrefsBackend, "prefs-backend", "", "Preference backend: memory, file, redis, postgres or sqlite")

	RootCmd.AddCommand(serveCmd)
}
