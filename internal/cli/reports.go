package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/seuros/mfdash/internal/reports"
)

var reportsFormat string

type reportOutput struct {
	Name        string   `json:"name"`
	Title       string   `json:"title"`
	ServerPaged bool     `json:"server_paged"`
	Columns     []string `json:"columns"`
}

var reportsCmd = &cobra.Command{
	Use:   "reports [--format json|table]",
	Short: "List the reports that can back a table",
	RunE: func(cmd *cobra.Command, args []string) error {
		return outputReports(cmd.OutOrStdout(), reportsFormat)
	},
}

func outputReports(w io.Writer, format string) error {
	names := reports.Names()
	out := make([]reportOutput, 0, len(names))
	for _, n := range names {
		r, _ := reports.Lookup(n)
		cols := make([]string, len(r.Columns))
		for i, c := range r.Columns {
			cols[i] = c.Key
		}
		out = append(out, reportOutput{Name: r.Name, Title: r.Title, ServerPaged: r.ServerPaged, Columns: cols})
	}

	switch format {
	case "json":
		data, err := json.MarshalIndent(out, "", "  ")
		if err != nil {
			return err
		}
		_, err = fmt.Fprintln(w, string(data))
		return err
	case "table", "":
		tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
		fmt.Fprintln(tw, "NAME\tTITLE\tPAGING\tCOLUMNS")
		for _, r := range out {
			paging := "client"
			if r.ServerPaged {
				paging = "server"
			}
			fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n", r.Name, r.Title, paging, strings.Join(r.Columns, ","))
		}
		return tw.Flush()
	default:
		return fmt.Errorf("unknown format %q (use json or table)", format)
	}
}

func init() {
	reportsCmd.Flags().StringVarP(&reportsFormat, "format", "f", "table", "Output format (table, json)")
	RootCmd.AddCommand(reportsCmd)
}
