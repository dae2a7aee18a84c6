package cli

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/lib/pq"
	"github.com/spf13/cobra"

	"github.com/seuros/mfdash/internal/apiclient"
	"github.com/seuros/mfdash/internal/config"
	"github.com/seuros/mfdash/internal/database"
	"github.com/seuros/mfdash/internal/prefs"
)

var doctorCmd = &cobra.Command{
	Use:   "doctor",
	Short: "Run health checks on the mfdash installation",
	Long: `Run health checks on the mfdash installation.

Checks performed:
  - Data directory writable
  - Preference store round trip
  - Database connection and migrations (when DATABASE_URL is set)
  - Preference tables exist
  - Analytics API reachable with the stored token

Example:
  mfdash doctor
  mfdash doctor --json`,
	RunE: runDoctor,
}

// errChecksFailed is returned when at least one check did not pass.
var errChecksFailed = errors.New("health checks failed")

type CheckResult struct {
	Name       string `json:"name"`
	Pass       bool   `json:"pass"`
	Error      string `json:"error,omitempty"`
	Suggestion string `json:"suggestion,omitempty"`
	Details    string `json:"details,omitempty"`
}

var requiredTables = []string{"preferences"}

func checkDataDirectory(cfg *config.Config) CheckResult {
	if err := os.MkdirAll(cfg.DataDir, 0o755); err != nil {
		return CheckResult{
			Name:       "Data Directory Writable",
			Pass:       false,
			Error:      err.Error(),
			Suggestion: "Ensure DATA_DIR exists and has write permissions",
		}
	}
	testFile := filepath.Join(cfg.DataDir, ".mfdash-write-test")
	if err := os.WriteFile(testFile, []byte("test"), 0o644); err != nil {
		return CheckResult{
			Name:       "Data Directory Writable",
			Pass:       false,
			Error:      err.Error(),
			Suggestion: "Ensure DATA_DIR has write permissions",
		}
	}
	_ = os.Remove(testFile)
	return CheckResult{Name: "Data Directory Writable", Pass: true, Details: cfg.DataDir}
}

// checkPreferenceStore writes, reads back and deletes a scratch key.
func checkPreferenceStore(ctx context.Context, store prefs.Store, backend string) CheckResult {
	const key = "doctor.check"
	want := time.Now().UTC().Format(time.RFC3339Nano)

	if err := store.Set(ctx, key, want); err != nil {
		return CheckResult{Name: "Preference Store", Pass: false, Error: err.Error(), Suggestion: "Check the " + backend + " backend settings"}
	}
	got, found, err := store.Get(ctx, key)
	_ = store.Delete(ctx, key)
	switch {
	case err != nil:
		return CheckResult{Name: "Preference Store", Pass: false, Error: err.Error()}
	case !found || got != want:
		return CheckResult{Name: "Preference Store", Pass: false, Error: "value written was not read back"}
	}
	return CheckResult{Name: "Preference Store", Pass: true, Details: backend}
}

func checkDatabaseConnection(ctx context.Context, db *sql.DB) CheckResult {
	ctx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	if err := db.PingContext(ctx); err != nil {
		return CheckResult{
			Name:       "Database Connection",
			Pass:       false,
			Error:      err.Error(),
			Suggestion: "Verify DATABASE_URL and ensure PostgreSQL is running",
		}
	}
	return CheckResult{Name: "Database Connection", Pass: true}
}

// migrationVersion is swapped out by tests.
var migrationVersion = database.GetMigrationVersion

func checkMigrations(cfg *config.Config) CheckResult {
	version, dirty, err := migrationVersion(cfg.DatabaseURL)
	if err != nil {
		return CheckResult{
			Name:       "Database Migrations",
			Pass:       false,
			Error:      err.Error(),
			Suggestion: "Run migrations with: mfdash migrate up",
		}
	}

	expectedVersion := database.LatestVersion()
	if version != expectedVersion {
		return CheckResult{
			Name:       "Database Migrations",
			Pass:       false,
			Error:      fmt.Sprintf("Migration version %d, expected %d", version, expectedVersion),
			Suggestion: "Run migrations with: mfdash migrate up",
		}
	}

	if dirty {
		return CheckResult{
			Name:       "Database Migrations",
			Pass:       false,
			Error:      "Migration state is dirty",
			Suggestion: "Fix dirty migration state, may need manual intervention",
		}
	}

	return CheckResult{Name: "Database Migrations", Pass: true, Details: fmt.Sprintf("v%d", version)}
}

func checkTables(ctx context.Context, db *sql.DB) CheckResult {
	query := `
		SELECT table_name
		FROM information_schema.tables
		WHERE table_schema = 'public' AND table_name = ANY($1)
	`

	rows, err := db.QueryContext(ctx, query, pq.Array(requiredTables))
	if err != nil {
		return CheckResult{Name: "Preference Tables", Pass: false, Error: err.Error()}
	}
	defer func() { _ = rows.Close() }()

	found := make(map[string]bool)
	for rows.Next() {
		var name string
		_ = rows.Scan(&name)
		found[name] = true
	}

	var missing []string
	for _, table := range requiredTables {
		if !found[table] {
			missing = append(missing, table)
		}
	}

	if len(missing) > 0 {
		return CheckResult{
			Name:       "Preference Tables",
			Pass:       false,
			Error:      fmt.Sprintf("Missing tables: %v", missing),
			Suggestion: "Run migrations to create missing tables",
		}
	}

	return CheckResult{
		Name:    "Preference Tables",
		Pass:    true,
		Details: fmt.Sprintf("%d/%d tables found", len(requiredTables), len(requiredTables)),
	}
}

// checkAnalyticsAPI fetches the dashboard summary, the cheapest call that
// needs a valid token.
func checkAnalyticsAPI(ctx context.Context, a *apiclient.Analytics) CheckResult {
	ctx, cancel := context.WithTimeout(ctx, 15*time.Second)
	defer cancel()

	_, err := a.SummaryStats(ctx, apiclient.Scope{}, apiclient.SummaryOptions{})
	switch {
	case err == nil:
		return CheckResult{Name: "Analytics API", Pass: true}
	case apiclient.IsUnauthorized(err):
		return CheckResult{
			Name:       "Analytics API",
			Pass:       false,
			Error:      "token rejected",
			Suggestion: "Store a fresh token with: mfdash prefs set " + prefs.TokenKey,
		}
	default:
		return CheckResult{
			Name:       "Analytics API",
			Pass:       false,
			Error:      err.Error(),
			Suggestion: "Verify MFDASH_API_BASE_URL",
		}
	}
}

func runDoctor(cmd *cobra.Command, args []string) error {
	jsonOutput, _ := cmd.Flags().GetBool("json")
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	cfg, err := loadConfig()
	if err != nil {
		fmt.Fprintf(cmd.ErrOrStderr(), "✗ Configuration Error: %v\n", err)
		return err
	}

	results := []CheckResult{checkDataDirectory(cfg)}

	if cfg.DatabaseURL != "" {
		db, err := database.Open(cfg.DatabaseURL)
		if err != nil {
			results = append(results, CheckResult{
				Name:       "Database Connection",
				Pass:       false,
				Error:      err.Error(),
				Suggestion: "Verify DATABASE_URL and ensure PostgreSQL is running",
			})
		} else {
			database.DB = db
			defer func() { _ = database.Close() }()

			results = append(results, checkDatabaseConnection(ctx, db))
			results = append(results, checkMigrations(cfg))
			results = append(results, checkTables(ctx, db))
		}
	}

	store, err := prefs.Open(ctx, prefs.Options{
		Backend:    cfg.PrefsBackend,
		DataDir:    cfg.DataDir,
		RedisURL:   cfg.RedisURL,
		SQLitePath: cfg.SQLitePath,
		DB:         database.DB,
	})
	if err != nil {
		results = append(results, CheckResult{Name: "Preference Store", Pass: false, Error: err.Error()})
	} else {
		defer func() { _ = store.Close() }()
		results = append(results, checkPreferenceStore(ctx, store, cfg.PrefsBackend))
	}

	if cfg.APIBaseURL != "" {
		client, err := apiclient.New(cfg.APIBaseURL,
			apiclient.WithRetries(0),
			apiclient.WithTokenSource(prefs.TokenSource{Store: store, Fallback: cfg.APIToken}),
		)
		if err != nil {
			results = append(results, CheckResult{Name: "Analytics API", Pass: false, Error: err.Error()})
		} else {
			results = append(results, checkAnalyticsAPI(ctx, apiclient.NewAnalytics(client)))
		}
	}

	if jsonOutput {
		outputDoctorJSON(cmd.OutOrStdout(), results)
	} else {
		outputDoctorHuman(cmd.OutOrStdout(), results)
	}

	for _, r := range results {
		if !r.Pass {
			return errChecksFailed
		}
	}
	return nil
}

func outputDoctorHuman(w io.Writer, results []CheckResult) {
	fmt.Fprintln(w, "\nmfdash health check")

	for _, r := range results {
		icon := "✓"
		if !r.Pass {
			icon = "✗"
		}

		fmt.Fprintf(w, "%s %s", icon, r.Name)
		if r.Details != "" {
			fmt.Fprintf(w, " (%s)", r.Details)
		}
		fmt.Fprintln(w)

		if !r.Pass {
			if r.Error != "" {
				fmt.Fprintf(w, "  Error: %s\n", r.Error)
			}
			if r.Suggestion != "" {
				fmt.Fprintf(w, "  Hint: %s\n", r.Suggestion)
			}
		}
	}

	passed := 0
	for _, r := range results {
		if r.Pass {
			passed++
		}
	}

	fmt.Fprintf(w, "\n%d/%d checks passed\n\n", passed, len(results))
}

func outputDoctorJSON(w io.Writer, results []CheckResult) {
	data, _ := json.MarshalIndent(results, "", "  ")
	fmt.Fprintln(w, string(data))
}

func init() {
	doctorCmd.Flags().Bool("json", false, "Output results as JSON")
	RootCmd.AddCommand(doctorCmd)
}
