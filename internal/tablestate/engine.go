// Package tablestate owns the UI state of a resizable, sortable, paginated data
// table: column visibility, sort, column widths, pagination and row selection.
package tablestate

import (
	"fmt"
	"slices"
)

const (
	DefaultPageSize    = 10
	DefaultColumnWidth = 150
	DefaultMinWidth    = 100
)

// Column describes one table column. Renderer is an optional tag the front-end
// maps to a custom cell renderer.
type Column struct {
	Key      string `json:"key"`
	Title    string `json:"title"`
	Renderer string `json:"renderer,omitempty"`
}

// Row is one record as decoded from the network.
type Row = map[string]any

// Mode selects who owns pagination.
type Mode int

const (
	// Internal engines count rows and slice pages themselves.
	Internal Mode = iota
	// External engines relay page changes to an owner and display whatever
	// rows the owner supplies.
	External
)

func (m Mode) String() string {
	if m == External {
		return "external"
	}
	return "internal"
}

// PageChangeFunc is invoked in External mode with the clamped page and size.
type PageChangeFunc func(page, pageSize int)

// Options configure a new Engine.
type Options struct {
	Mode         Mode
	PageSize     int
	MinWidth     int
	DefaultWidth int
	// RowKey names the column whose value identifies a row for selection.
	RowKey       string
	OnPageChange PageChangeFunc
}

// Engine is the state of one table. Not safe for concurrent use.
type Engine struct {
	columns []Column
	hidden  map[string]bool

	widths     map[string]int
	dragStart  map[string]int
	minWidth   int
	sort       *Sort
	page       int
	pageSize   int
	mode       Mode
	onChange   PageChangeFunc
	rowCount   int
	extTotal   int64
	extPages   int
	rowKey     string
	selected   map[string]bool
	selectedAt []string
}

// New builds an engine for columns. Mode is fixed for the engine's lifetime.
func New(columns []Column, opts Options) *Engine {
	if opts.PageSize <= 0 {
		opts.PageSize = DefaultPageSize
	}
	if opts.MinWidth <= 0 {
		opts.MinWidth = DefaultMinWidth
	}
	if opts.DefaultWidth <= 0 {
		opts.DefaultWidth = DefaultColumnWidth
	}
	opts.DefaultWidth = max(opts.DefaultWidth, opts.MinWidth)

	cols := make([]Column, 0, len(columns))
	widths := make(map[string]int, len(columns))
	for _, c := range columns {
		if _, dup := widths[c.Key]; dup {
			continue
		}
		cols = append(cols, c)
		widths[c.Key] = opts.DefaultWidth
	}

	return &Engine{
		columns:   cols,
		hidden:    make(map[string]bool),
		widths:    widths,
		dragStart: make(map[string]int),
		minWidth:  opts.MinWidth,
		page:      1,
		pageSize:  opts.PageSize,
		mode:      opts.Mode,
		onChange:  opts.OnPageChange,
		rowKey:    opts.RowKey,
		selected:  make(map[string]bool),
	}
}

// Mode returns the pagination ownership mode.
func (e *Engine) Mode() Mode { return e.mode }

// Columns returns every column in declaration order.
func (e *Engine) Columns() []Column { return slices.Clone(e.columns) }

// VisibleColumns returns the shown columns in declaration order.
func (e *Engine) VisibleColumns() []Column {
	out := make([]Column, 0, len(e.columns))
	for _, c := range e.columns {
		if !e.hidden[c.Key] {
			out = append(out, c)
		}
	}
	return out
}

// IsVisible reports whether key is shown.
func (e *Engine) IsVisible(key string) bool {
	return e.hasColumn(key) && !e.hidden[key]
}

// ToggleColumn hides a shown column or shows a hidden one. Unknown keys are
// ignored.
func (e *Engine) ToggleColumn(key string) {
	if !e.hasColumn(key) {
		return
	}
	if e.hidden[key] {
		delete(e.hidden, key)
		return
	}
	e.hidden[key] = true
}

// Width returns the stored width of key, or 0 for unknown keys.
func (e *Engine) Width(key string) int { return e.widths[key] }

// Widths returns a copy of every column width.
func (e *Engine) Widths() map[string]int {
	out := make(map[string]int, len(e.widths))
	for k, v := range e.widths {
		out[k] = v
	}
	return out
}

// MinWidth is the width floor.
func (e *Engine) MinWidth() int { return e.minWidth }

// BeginResize records the reference width for a drag on key.
func (e *Engine) BeginResize(key string) {
	if !e.hasColumn(key) {
		return
	}
	e.dragStart[key] = e.widths[key]
}

// ResizeColumn sets key's width to the drag-start width plus delta, clamped to
// the floor. Repeated calls during one drag are not cumulative. Without a prior
// BeginResize the current width is taken as the reference.
func (e *Engine) ResizeColumn(key string, delta int) {
	if !e.hasColumn(key) {
		return
	}
	start, ok := e.dragStart[key]
	if !ok {
		start = e.widths[key]
		e.dragStart[key] = start
	}
	e.widths[key] = max(e.minWidth, start+delta)
}

// EndResize finishes the drag on key.
func (e *Engine) EndResize(key string) {
	delete(e.dragStart, key)
}

// Page is the 1-based current page.
func (e *Engine) Page() int { return e.page }

// PageSize is the number of rows per page.
func (e *Engine) PageSize() int { return e.pageSize }

// TotalPages returns the page count known to the engine. Internal engines
// derive it from the last row count; external engines report the owner's.
func (e *Engine) TotalPages() int {
	if e.mode == External {
		return max(e.extPages, 0)
	}
	if e.rowCount <= 0 {
		return 0
	}
	return (e.rowCount + e.pageSize - 1) / e.pageSize
}

// TotalRecords returns the row count known to the engine.
func (e *Engine) TotalRecords() int64 {
	if e.mode == External {
		return e.extTotal
	}
	return int64(e.rowCount)
}

// SetRowCount records how many rows an internal engine paginates over and
// clamps the page accordingly.
func (e *Engine) SetRowCount(n int) {
	if e.mode == External {
		return
	}
	e.rowCount = max(n, 0)
	e.page = e.clampPage(e.page)
}

// SetExternalTotals records the owner's totals for an external engine.
func (e *Engine) SetExternalTotals(totalRecords int64, totalPages int) {
	if e.mode != External {
		return
	}
	e.extTotal = max(totalRecords, 0)
	e.extPages = max(totalPages, 0)
}

// SyncExternal mirrors the owner's page and size without notifying it.
func (e *Engine) SyncExternal(page, pageSize int) {
	if pageSize > 0 {
		e.pageSize = pageSize
	}
	if page > 0 {
		e.page = page
	}
}

// SetPage moves to page n clamped to [1, TotalPages]. External engines forward
// the clamped value to the owner.
func (e *Engine) SetPage(n int) {
	e.page = e.clampPage(n)
	e.notify()
}

// SetPageSize changes the page size and returns to the first page.
func (e *Engine) SetPageSize(n int) {
	e.pageSize = max(n, 1)
	e.page = 1
	e.notify()
}

func (e *Engine) clampPage(n int) int {
	total := e.TotalPages()
	if total > 0 {
		n = min(n, total)
	}
	return max(n, 1)
}

func (e *Engine) notify() {
	if e.mode == External && e.onChange != nil {
		e.onChange(e.page, e.pageSize)
	}
}

// PageRequest is what an external owner needs to fetch the visible rows.
type PageRequest struct {
	Page          int       `json:"page"`
	PageSize      int       `json:"limit"`
	SortKey       string    `json:"sort_by,omitempty"`
	SortDirection Direction `json:"sort_order,omitempty"`
}

// Request describes the rows the table currently wants.
func (e *Engine) Request() PageRequest {
	req := PageRequest{Page: e.page, PageSize: e.pageSize}
	if e.sort != nil {
		req.SortKey = e.sort.Key
		req.SortDirection = e.sort.Direction
	}
	return req
}

// Rows returns the rows to display under the active sort. Internal engines
// also slice the current page; external engines get exactly one page from the
// owner and only reorder it.
func (e *Engine) Rows(data []Row) []Row {
	if e.mode == External {
		return e.Sorted(data)
	}
	e.SetRowCount(len(data))
	sorted := e.Sorted(data)
	start := min((e.page-1)*e.pageSize, len(sorted))
	end := min(start+e.pageSize, len(sorted))
	return sorted[start:end]
}

// Meta returns pagination metadata for the current state.
func (e *Engine) Meta() PaginationMeta {
	return BuildPaginationMeta(e.page, e.pageSize, e.TotalRecords(), e.TotalPages())
}

// ToggleRow selects or deselects the row whose RowKey value is id.
func (e *Engine) ToggleRow(id string) {
	if e.selected[id] {
		delete(e.selected, id)
		e.selectedAt = slices.DeleteFunc(e.selectedAt, func(s string) bool { return s == id })
		return
	}
	e.selected[id] = true
	e.selectedAt = append(e.selectedAt, id)
}

// RowID returns the selection id of row.
func (e *Engine) RowID(row Row) string {
	if e.rowKey == "" {
		return ""
	}
	v, ok := row[e.rowKey]
	if !ok || v == nil {
		return ""
	}
	return fmt.Sprint(v)
}

// SelectedRows returns selected row ids in selection order.
func (e *Engine) SelectedRows() []string { return slices.Clone(e.selectedAt) }

// ClearSelection deselects every row.
func (e *Engine) ClearSelection() {
	clear(e.selected)
	e.selectedAt = nil
}

func (e *Engine) hasColumn(key string) bool {
	_, ok := e.widths[key]
	return ok
}
