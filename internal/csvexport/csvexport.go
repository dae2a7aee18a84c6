// Package csvexport writes table exports as RFC 4180 CSV with every field quoted.
package csvexport

import (
	"bufio"
	"fmt"
	"io"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/seuros/mfdash/internal/tablestate"
)

// ContentType is the MIME type served with exports.
const ContentType = "text/csv; charset=utf-8"

// Write emits headers followed by rows. Every field is wrapped in double quotes
// with embedded quotes doubled, and records end in CRLF.
func Write(w io.Writer, headers []string, rows [][]string) error {
	bw := bufio.NewWriter(w)
	if err := writeRecord(bw, headers); err != nil {
		return err
	}
	for _, row := range rows {
		if err := writeRecord(bw, row); err != nil {
			return err
		}
	}
	return bw.Flush()
}

func writeRecord(w *bufio.Writer, fields []string) error {
	for i, field := range fields {
		if i > 0 {
			if err := w.WriteByte(','); err != nil {
				return err
			}
		}
		if _, err := w.WriteString(quote(field)); err != nil {
			return err
		}
	}
	_, err := w.WriteString("\r\n")
	return err
}

func quote(field string) string {
	return `"` + strings.ReplaceAll(field, `"`, `""`) + `"`
}

// Table exports the visible columns of e over every row given, in sort order,
// rather than just the current page.
func Table(w io.Writer, e *tablestate.Engine, rows []tablestate.Row) error {
	cols := e.VisibleColumns()
	headers := make([]string, len(cols))
	for i, c := range cols {
		headers[i] = c.Title
		if headers[i] == "" {
			headers[i] = c.Key
		}
	}

	rows = e.Sorted(rows)
	records := make([][]string, len(rows))
	for i, row := range rows {
		rec := make([]string, len(cols))
		for j, c := range cols {
			rec[j] = Cell(row[c.Key])
		}
		records[i] = rec
	}
	return Write(w, headers, records)
}

// Cell renders a cell value; missing values become empty strings.
func Cell(v any) string {
	switch val := v.(type) {
	case nil:
		return ""
	case string:
		return val
	case float64:
		return strconv.FormatFloat(val, 'f', -1, 64)
	case float32:
		return strconv.FormatFloat(float64(val), 'f', -1, 32)
	case bool:
		return strconv.FormatBool(val)
	default:
		return fmt.Sprint(val)
	}
}

var unsafeName = regexp.MustCompile(`[^a-zA-Z0-9._-]+`)

// Filename builds a download name such as "top-pages_20261018_142500.csv".
func Filename(base string, now time.Time) string {
	base = strings.Trim(unsafeName.ReplaceAllString(strings.TrimSpace(base), "-"), "-.")
	if base == "" {
		base = "export"
	}
	return fmt.Sprintf("%s_%s.csv", base, now.Format("20060102_150405"))
}
