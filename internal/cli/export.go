package cli

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/seuros/mfdash/internal/apiclient"
	"github.com/seuros/mfdash/internal/csvexport"
	"github.com/seuros/mfdash/internal/prefs"
	"github.com/seuros/mfdash/internal/reports"
	"github.com/seuros/mfdash/internal/tablestate"
)

var (
	exportOut         string
	exportPackage     string
	exportStart       string
	exportEnd         string
	exportIncludeBots bool
	exportSort        string
	exportPageSize    int
)

var exportCmd = &cobra.Command{
	Use:   "export <report>",
	Short: "Export a report as CSV",
	Long: `Fetch a report from the analytics API and write it as CSV.

Server-paged reports are walked page by page so the file holds every row.
--sort applies to reports paged locally.

Example:
  mfdash export top-pages --package shop --start 2026-10-01 --end 2026-10-18
  mfdash export dead-links -o exports/`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		if cfg.APIBaseURL == "" {
			return fmt.Errorf("no analytics API configured: set MFDASH_API_BASE_URL or --api-base-url")
		}

		ctx := cmd.Context()
		if ctx == nil {
			ctx = context.Background()
		}
		store, closeStore, err := openStore(ctx, cfg)
		if err != nil {
			return err
		}
		defer closeStore()

		client, err := apiclient.New(cfg.APIBaseURL, apiclient.WithTokenSource(prefs.TokenSource{
			Store:    store,
			Fallback: cfg.APIToken,
		}))
		if err != nil {
			return err
		}

		q := reports.Query{
			Scope: apiclient.Scope{
				StartDate:   exportStart,
				EndDate:     exportEnd,
				PackageName: exportPackage,
			},
			IncludeBots: exportIncludeBots,
		}

		w := cmd.OutOrStdout()
		var path string
		if exportOut != "" && exportOut != "-" {
			path = exportPath(exportOut, args[0], time.Now())
			f, err := os.Create(path)
			if err != nil {
				return fmt.Errorf("create %s: %w", path, err)
			}
			defer func() { _ = f.Close() }()
			w = f
		}
		if err := exportReport(ctx, apiclient.NewAnalytics(client), args[0], q, exportSort, exportPageSize, w); err != nil {
			return err
		}
		if path != "" {
			fmt.Fprintf(cmd.ErrOrStderr(), "✓ Wrote %s\n", path)
		}
		return nil
	},
}

// exportPath resolves --out: a directory gets a timestamped file name.
func exportPath(out, report string, now time.Time) string {
	if strings.HasSuffix(out, string(os.PathSeparator)) {
		return filepath.Join(out, csvexport.Filename(report, now))
	}
	if info, err := os.Stat(out); err == nil && info.IsDir() {
		return filepath.Join(out, csvexport.Filename(report, now))
	}
	return out
}

// parseSort reads "key" or "key:desc".
func parseSort(s string) (string, tablestate.Direction) {
	key, dir, _ := strings.Cut(strings.TrimSpace(s), ":")
	if strings.EqualFold(dir, string(tablestate.Desc)) {
		return key, tablestate.Desc
	}
	return key, tablestate.Asc
}

// exportReport writes every row of the named report to w.
func exportReport(ctx context.Context, a *apiclient.Analytics, name string, q reports.Query, sortSpec string, pageSize int, w io.Writer) error {
	r, ok := reports.Lookup(name)
	if !ok {
		return fmt.Errorf("unknown report %q (available: %s)", name, strings.Join(reports.Names(), ", "))
	}

	tbl := reports.NewTable(r, a, q, tablestate.Options{PageSize: pageSize})
	e := tbl.Engine()
	if sortSpec != "" {
		key, dir := parseSort(sortSpec)
		e.SetSort(key, dir)
	}
	if err := tbl.Ensure(ctx); err != nil {
		return err
	}

	rows := tbl.AllRows()
	if r.ServerPaged {
		for page := 2; page <= e.TotalPages(); page++ {
			e.SetPage(page)
			if err := tbl.Ensure(ctx); err != nil {
				return fmt.Errorf("page %d: %w", page, err)
			}
			rows = append(rows, tbl.AllRows()...)
		}
	}
	return csvexport.Table(w, e, rows)
}

func init() {
	f := exportCmd.Flags()
	f.StringVarP(&exportOut, "out", "o", "", "Output file or directory (default: stdout)")
	f.StringVar(&exportPackage, "package", "", "Restrict to one package")
	f.StringVar(&exportStart, "start", "", "Start date (YYYY-MM-DD)")
	f.StringVar(&exportEnd, "end", "", "End date (YYYY-MM-DD)")
	f.BoolVar(&exportIncludeBots, "include-bots", false, "Include bot traffic where the report supports it")
	f.StringVar(&exportSort, "sort", "", "Sort column, optionally with :desc")
	f.IntVar(&exportPageSize, "page-size", tablestate.MaxPageSize, "Rows per request for server-paged reports")
	RootCmd.AddCommand(exportCmd)
}
