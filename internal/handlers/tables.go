package handlers

import (
	"bytes"
	"context"
	"strings"
	"time"

	"github.com/gofiber/fiber/v3"

	"github.com/seuros/mfdash/internal/csvexport"
	"github.com/seuros/mfdash/internal/logging"
	"github.com/seuros/mfdash/internal/prefs"
	"github.com/seuros/mfdash/internal/reports"
	"github.com/seuros/mfdash/internal/tablestate"
)

var nowFunc = time.Now

// tableSession is one data table. Report tables load their rows from the
// analytics API; the rest hold rows the client posted.
type tableSession struct {
	name   string
	engine *tablestate.Engine
	report *reports.Table
	rows   []tablestate.Row
}

func (ts *tableSession) ensure(ctx context.Context) error {
	if ts.report == nil {
		return nil
	}
	return ts.report.Ensure(ctx)
}

func (ts *tableSession) page() []tablestate.Row {
	if ts.report != nil {
		return ts.report.Rows()
	}
	return ts.engine.Rows(ts.rows)
}

func (ts *tableSession) all() []tablestate.Row {
	if ts.report != nil {
		return ts.report.AllRows()
	}
	return ts.rows
}

type tableState struct {
	ID         string                    `json:"id"`
	Name       string                    `json:"name"`
	Mode       string                    `json:"mode"`
	Columns    []tablestate.Column       `json:"columns"`
	Visible    []string                  `json:"visible"`
	Widths     map[string]int            `json:"widths"`
	MinWidth   int                       `json:"min_width"`
	Sort       *tablestate.Sort          `json:"sort,omitempty"`
	Pagination tablestate.PaginationMeta `json:"pagination"`
	Selected   []string                  `json:"selected"`
}

func newTableState(id string, ts *tableSession) tableState {
	e := ts.engine
	st := tableState{
		ID:         id,
		Name:       ts.name,
		Mode:       e.Mode().String(),
		Columns:    e.Columns(),
		Widths:     e.Widths(),
		MinWidth:   e.MinWidth(),
		Pagination: e.Meta(),
		Selected:   e.SelectedRows(),
	}
	for _, col := range e.VisibleColumns() {
		st.Visible = append(st.Visible, col.Key)
	}
	if s, ok := e.Sort(); ok {
		st.Sort = &s
	}
	if st.Selected == nil {
		st.Selected = []string{}
	}
	return st
}

type createTableRequest struct {
	Name     string              `json:"name"`
	Columns  []tablestate.Column `json:"columns"`
	Rows     []tablestate.Row    `json:"rows"`
	RowKey   string              `json:"row_key"`
	PageSize int                 `json:"page_size"`

	Report string        `json:"report"`
	Query  reports.Query `json:"query"`

	// Restore defaults to true: a saved layout for the table name is applied.
	Restore *bool `json:"restore"`
}

func (a *API) createTable(c fiber.Ctx) error {
	var req createTableRequest
	if err := bindJSON(c, &req); err != nil {
		return errorJSON(c, fiber.StatusBadRequest, "Invalid request body")
	}

	opts := tablestate.Options{
		PageSize: req.PageSize,
		MinWidth: a.deps.MinColumnWidth,
		RowKey:   req.RowKey,
	}
	if opts.PageSize <= 0 {
		opts.PageSize = a.deps.PageSize
	}
	if opts.PageSize > tablestate.MaxPageSize {
		opts.PageSize = tablestate.MaxPageSize
	}

	ts := &tableSession{name: strings.TrimSpace(req.Name)}
	if req.Report != "" {
		r, ok := reports.Lookup(req.Report)
		if !ok {
			return errorJSON(c, fiber.StatusBadRequest, "unknown report "+req.Report)
		}
		if a.deps.Analytics == nil {
			return errorJSON(c, fiber.StatusServiceUnavailable, "analytics API is not configured")
		}
		ts.report = reports.NewTable(r, a.deps.Analytics, req.Query, opts)
		ts.engine = ts.report.Engine()
		if ts.name == "" {
			ts.name = r.Name
		}
	} else {
		if len(req.Columns) == 0 {
			return errorJSON(c, fiber.StatusBadRequest, "columns or report is required")
		}
		ts.engine = tablestate.New(req.Columns, opts)
		ts.rows = req.Rows
		ts.engine.SetRowCount(len(ts.rows))
		if ts.name == "" {
			ts.name = "custom"
		}
	}

	if req.Restore == nil || *req.Restore {
		var layout reports.Layout
		found, err := prefs.GetJSON(c.Context(), a.deps.Prefs, prefs.TableKey(ts.name), &layout)
		switch {
		case err != nil:
			logging.L().Warn("ignoring saved table layout", "table", ts.name, "error", err)
		case found:
			reports.ApplyLayout(ts.engine, layout)
		}
	}

	if err := ts.ensure(c.Context()); err != nil {
		return upstreamError(c, err)
	}

	entry := a.tables.Create(ts)
	return c.Status(fiber.StatusCreated).JSON(newTableState(entry.ID, ts))
}

// mutateTable runs fn on the session and answers with the new state. A
// failed refetch maps to an upstream error.
func (a *API) mutateTable(c fiber.Ctx, fn func(ts *tableSession)) error {
	entry, ok := a.tables.Get(c.Params("id"))
	if !ok {
		return notFound(c, "table")
	}
	var st tableState
	err := entry.Do(func(ts *tableSession) error {
		fn(ts)
		if err := ts.ensure(c.Context()); err != nil {
			return err
		}
		st = newTableState(entry.ID, ts)
		return nil
	})
	if err != nil {
		return upstreamError(c, err)
	}
	return c.JSON(st)
}

func (a *API) getTable(c fiber.Ctx) error {
	return a.mutateTable(c, func(*tableSession) {})
}

func (a *API) deleteTable(c fiber.Ctx) error {
	return deleteEntry(c, a.tables, "table")
}

// tableRows answers one page. Query parameters are replayed onto the engine
// first, so a plain GET can also move the table.
func (a *API) tableRows(c fiber.Ctx) error {
	entry, ok := a.tables.Get(c.Params("id"))
	if !ok {
		return notFound(c, "table")
	}
	var resp tablestate.PaginatedResponse
	err := entry.Do(func(ts *tableSession) error {
		if err := ts.ensure(c.Context()); err != nil {
			return err
		}
		ParsePaginationParamsWithValidation(c, ts.engine).Apply(ts.engine)
		if err := ts.ensure(c.Context()); err != nil {
			return err
		}
		resp = NewPaginatedResponse(ts.page(), ts.engine)
		return nil
	})
	if err != nil {
		return upstreamError(c, err)
	}
	return c.JSON(resp)
}

func (a *API) toggleTableColumn(c fiber.Ctx) error {
	key := c.Params("key")
	return a.mutateTable(c, func(ts *tableSession) {
		ts.engine.ToggleColumn(key)
	})
}

func (a *API) sortTable(c fiber.Ctx) error {
	key := c.Params("key")
	dir := tablestate.Direction(strings.ToLower(c.Query("order")))
	return a.mutateTable(c, func(ts *tableSession) {
		if dir != "" {
			ts.engine.SetSort(key, dir)
			return
		}
		ts.engine.SortBy(key)
	})
}

func (a *API) clearTableSort(c fiber.Ctx) error {
	return a.mutateTable(c, func(ts *tableSession) {
		ts.engine.ClearSort()
	})
}

type resizeRequest struct {
	Key   string `json:"key"`
	Delta int    `json:"delta"`
	Begin bool   `json:"begin"`
	End   bool   `json:"end"`
}

// resizeTableColumn applies one drag step. Deltas are relative to the width
// at drag start.
func (a *API) resizeTableColumn(c fiber.Ctx) error {
	var req resizeRequest
	if err := bindJSON(c, &req); err != nil || req.Key == "" {
		return errorJSON(c, fiber.StatusBadRequest, "key is required")
	}
	return a.mutateTable(c, func(ts *tableSession) {
		if req.Begin {
			ts.engine.BeginResize(req.Key)
		}
		ts.engine.ResizeColumn(req.Key, req.Delta)
		if req.End {
			ts.engine.EndResize(req.Key)
		}
	})
}

type pageRequest struct {
	Page int `json:"page"`
}

func (a *API) setTablePage(c fiber.Ctx) error {
	var req pageRequest
	if err := bindJSON(c, &req); err != nil {
		return errorJSON(c, fiber.StatusBadRequest, "Invalid request body")
	}
	return a.mutateTable(c, func(ts *tableSession) {
		ts.engine.SetPage(req.Page)
	})
}

type pageSizeRequest struct {
	Size int `json:"size"`
}

func (a *API) setTablePageSize(c fiber.Ctx) error {
	var req pageSizeRequest
	if err := bindJSON(c, &req); err != nil || req.Size < 1 || req.Size > tablestate.MaxPageSize {
		return errorJSON(c, fiber.StatusBadRequest, "size must be between 1 and 100")
	}
	return a.mutateTable(c, func(ts *tableSession) {
		ts.engine.SetPageSize(req.Size)
	})
}

type selectRequest struct {
	ID    string `json:"id"`
	Clear bool   `json:"clear"`
}

func (a *API) toggleTableRow(c fiber.Ctx) error {
	var req selectRequest
	if err := bindJSON(c, &req); err != nil || (req.ID == "" && !req.Clear) {
		return errorJSON(c, fiber.StatusBadRequest, "id is required")
	}
	return a.mutateTable(c, func(ts *tableSession) {
		if req.Clear {
			ts.engine.ClearSelection()
			return
		}
		ts.engine.ToggleRow(req.ID)
	})
}

// setTableQuery changes the filters of a report table, e.g. a new date range.
func (a *API) setTableQuery(c fiber.Ctx) error {
	var q reports.Query
	if err := bindJSON(c, &q); err != nil {
		return errorJSON(c, fiber.StatusBadRequest, "Invalid request body")
	}
	entry, ok := a.tables.Get(c.Params("id"))
	if !ok {
		return notFound(c, "table")
	}
	var isReport bool
	_ = entry.Do(func(ts *tableSession) error {
		isReport = ts.report != nil
		return nil
	})
	if !isReport {
		return errorJSON(c, fiber.StatusBadRequest, "table is not backed by a report")
	}
	return a.mutateTable(c, func(ts *tableSession) {
		ts.report.SetQuery(q)
	})
}

// saveTableLayout stores column visibility, widths, page size and sort under
// the table's name.
func (a *API) saveTableLayout(c fiber.Ctx) error {
	entry, ok := a.tables.Get(c.Params("id"))
	if !ok {
		return notFound(c, "table")
	}
	var (
		layout reports.Layout
		name   string
	)
	_ = entry.Do(func(ts *tableSession) error {
		layout = reports.CaptureLayout(ts.engine)
		name = ts.name
		return nil
	})
	if err := prefs.SetJSON(c.Context(), a.deps.Prefs, prefs.TableKey(name), layout); err != nil {
		logging.L().Error("failed to save table layout", "table", name, "error", err)
		return errorJSON(c, fiber.StatusInternalServerError, "Failed to save layout")
	}
	return c.JSON(fiber.Map{"key": prefs.TableKey(name), "layout": layout})
}

// exportTable streams the visible columns as CSV. Client-paged tables export
// every row in sort order; server-paged reports export the loaded page.
func (a *API) exportTable(c fiber.Ctx) error {
	entry, ok := a.tables.Get(c.Params("id"))
	if !ok {
		return notFound(c, "table")
	}
	var (
		buf  bytes.Buffer
		name string
	)
	err := entry.Do(func(ts *tableSession) error {
		if err := ts.ensure(c.Context()); err != nil {
			return err
		}
		name = ts.name
		return csvexport.Table(&buf, ts.engine, ts.all())
	})
	if err != nil {
		return upstreamError(c, err)
	}
	c.Attachment(csvexport.Filename(name, nowFunc()))
	c.Set(fiber.HeaderContentType, csvexport.ContentType)
	return c.Send(buf.Bytes())
}
