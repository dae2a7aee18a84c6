package reports

import (
	"context"
	"fmt"
	"sort"

	"github.com/seuros/mfdash/internal/apiclient"
	"github.com/seuros/mfdash/internal/tablestate"
)

// Table binds a report to a table engine. Server-paged reports refetch when
// the engine asks for another page; the rest are fetched once per Refresh and
// paged by the engine.
type Table struct {
	report    Report
	analytics *apiclient.Analytics
	query     Query
	engine    *tablestate.Engine

	rows  []tablestate.Row
	stale bool
}

// NewTable builds an engine for r. Nothing is fetched until Refresh.
func NewTable(r Report, a *apiclient.Analytics, q Query, opts tablestate.Options) *Table {
	t := &Table{report: r, analytics: a, query: q, stale: true}
	opts.Mode = r.Mode()
	if opts.RowKey == "" {
		opts.RowKey = r.RowKey
	}
	if r.ServerPaged {
		opts.OnPageChange = func(int, int) { t.stale = true }
	}
	t.engine = tablestate.New(r.Columns, opts)
	return t
}

// Report returns the bound report.
func (t *Table) Report() Report { return t.report }

// Engine exposes the table state for column, sort and paging operations.
func (t *Table) Engine() *tablestate.Engine { return t.engine }

// Stale reports whether the next Rows call needs a fetch first.
func (t *Table) Stale() bool { return t.stale }

// Invalidate forces the next Ensure to refetch.
func (t *Table) Invalidate() { t.stale = true }

// SetQuery replaces the filters and invalidates the data. Server-paged tables
// go back to page one, like the dashboard does when the date range changes.
func (t *Table) SetQuery(q Query) {
	t.query = q
	t.stale = true
	if t.report.ServerPaged {
		t.engine.SyncExternal(1, 0)
	}
}

// Query returns the current filters.
func (t *Table) Query() Query { return t.query }

// Refresh fetches unconditionally.
func (t *Table) Refresh(ctx context.Context) error {
	q := t.query
	if t.report.ServerPaged {
		req := t.engine.Request()
		q.Page, q.Limit = req.Page, req.PageSize
	}
	page, err := t.report.Fetch(ctx, t.analytics, q)
	if err != nil {
		return fmt.Errorf("fetch %s: %w", t.report.Name, err)
	}
	t.rows = page.Rows
	if t.report.ServerPaged {
		t.engine.SetExternalTotals(page.TotalRecords, page.TotalPages)
	} else {
		t.engine.SetRowCount(len(t.rows))
	}
	t.stale = false
	return nil
}

// Ensure fetches only when the data is stale.
func (t *Table) Ensure(ctx context.Context) error {
	if !t.stale {
		return nil
	}
	return t.Refresh(ctx)
}

// Rows returns the visible page.
func (t *Table) Rows() []tablestate.Row {
	return t.engine.Rows(t.rows)
}

// AllRows returns every loaded row in display order, for exports.
func (t *Table) AllRows() []tablestate.Row {
	return t.engine.Sorted(t.rows)
}

// Layout is the part of a table's state worth remembering between visits.
type Layout struct {
	Hidden   []string       `json:"hidden,omitempty"`
	Widths   map[string]int `json:"widths,omitempty"`
	PageSize int            `json:"page_size,omitempty"`
	SortKey  string         `json:"sort_by,omitempty"`
	SortDir  string         `json:"sort_order,omitempty"`
}

// CaptureLayout reads the persistable state out of e.
func CaptureLayout(e *tablestate.Engine) Layout {
	var l Layout
	for _, c := range e.Columns() {
		if !e.IsVisible(c.Key) {
			l.Hidden = append(l.Hidden, c.Key)
		}
	}
	l.Widths = e.Widths()
	l.PageSize = e.PageSize()
	if s, ok := e.Sort(); ok {
		l.SortKey, l.SortDir = s.Key, string(s.Direction)
	}
	return l
}

// ApplyLayout restores l onto e. Unknown columns are ignored.
func ApplyLayout(e *tablestate.Engine, l Layout) {
	hidden := make(map[string]bool, len(l.Hidden))
	for _, k := range l.Hidden {
		hidden[k] = true
	}
	for _, c := range e.Columns() {
		if hidden[c.Key] == e.IsVisible(c.Key) {
			e.ToggleColumn(c.Key)
		}
	}

	keys := make([]string, 0, len(l.Widths))
	for k := range l.Widths {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		current := e.Width(k)
		if current == 0 {
			continue
		}
		e.BeginResize(k)
		e.ResizeColumn(k, l.Widths[k]-current)
		e.EndResize(k)
	}

	if l.PageSize > 0 && l.PageSize != e.PageSize() {
		e.SetPageSize(l.PageSize)
	}
	if l.SortKey != "" {
		e.SetSort(l.SortKey, tablestate.Direction(l.SortDir))
	}
}
