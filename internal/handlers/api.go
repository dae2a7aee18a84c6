// Package handlers exposes the filter and table engines over a session-scoped
// JSON API. Each widget on the dashboard creates a session, drives it with
// small event requests, and reads back the derived state.
package handlers

import (
	"context"
	"time"

	"github.com/gofiber/fiber/v3"

	"github.com/seuros/mfdash/internal/apiclient"
	"github.com/seuros/mfdash/internal/prefs"
	"github.com/seuros/mfdash/internal/realtime"
	"github.com/seuros/mfdash/internal/search"
	"github.com/seuros/mfdash/internal/session"
	"github.com/seuros/mfdash/internal/tablestate"
)

// Deps are the collaborators the API is built from. Analytics may be nil, in
// which case report-backed tables are refused. Hub may be nil to disable /ws.
type Deps struct {
	Analytics      *apiclient.Analytics
	Prefs          prefs.Store
	Hub            *realtime.Hub
	Version        string
	PageSize       int
	MinColumnWidth int
	SearchDebounce time.Duration
}

// API owns the session registries.
type API struct {
	deps    Deps
	filters *session.Registry[*filterSession]
	tables  *session.Registry[*tableSession]

	ctx    context.Context
	cancel context.CancelFunc
}

// New builds the API. Call Close to cancel pending searches.
func New(d Deps) *API {
	if d.Prefs == nil {
		d.Prefs = prefs.NewMemoryStore()
	}
	if d.PageSize <= 0 {
		d.PageSize = tablestate.DefaultPageSize
	}
	if d.MinColumnWidth <= 0 {
		d.MinColumnWidth = tablestate.DefaultMinWidth
	}
	if d.SearchDebounce < 0 {
		d.SearchDebounce = search.DefaultDelay
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &API{
		deps:    d,
		filters: session.NewRegistry(func(fs *filterSession) { fs.close() }),
		tables:  session.NewRegistry[*tableSession](nil),
		ctx:     ctx,
		cancel:  cancel,
	}
}

// Register mounts every route on r.
func (a *API) Register(r fiber.Router) {
	r.Get("/health", handleHealth)
	r.Get("/up", handleUp)
	r.Get("/api/version", a.handleVersion)

	f := r.Group("/api/filters")
	f.Post("/", a.createFilter)
	f.Get("/:id", a.getFilter)
	f.Delete("/:id", a.deleteFilter)
	f.Post("/:id/toggle", a.toggleFilter)
	f.Post("/:id/toggle-group", a.toggleFilterGroup)
	f.Post("/:id/select-all", a.selectAllFilter)
	f.Post("/:id/unselect-all", a.unselectAllFilter)
	f.Post("/:id/options", a.loadFilterOptions)
	f.Get("/:id/search", a.searchFilter)
	f.Post("/:id/submit", a.submitFilter)

	t := r.Group("/api/tables")
	t.Post("/", a.createTable)
	t.Get("/:id", a.getTable)
	t.Delete("/:id", a.deleteTable)
	t.Get("/:id/rows", a.tableRows)
	t.Post("/:id/columns/:key/toggle", a.toggleTableColumn)
	t.Post("/:id/sort/:key", a.sortTable)
	t.Delete("/:id/sort", a.clearTableSort)
	t.Post("/:id/resize", a.resizeTableColumn)
	t.Post("/:id/page", a.setTablePage)
	t.Post("/:id/page-size", a.setTablePageSize)
	t.Post("/:id/select", a.toggleTableRow)
	t.Post("/:id/query", a.setTableQuery)
	t.Post("/:id/layout", a.saveTableLayout)
	t.Get("/:id/export.csv", a.exportTable)

	r.Get("/api/reports", handleReports)

	r.Get("/api/prefs/:key", a.getPref)
	r.Put("/api/prefs/:key", a.putPref)
	r.Delete("/api/prefs/:key", a.deletePref)

	if a.deps.Hub != nil {
		r.Get("/ws", realtime.UpgradeRequired, a.deps.Hub.Handler())
	}
}

// StartReapers drops sessions idle for longer than maxIdle until ctx ends.
func (a *API) StartReapers(ctx context.Context, interval, maxIdle time.Duration) {
	a.filters.StartReaper(ctx, "filters", interval, maxIdle)
	a.tables.StartReaper(ctx, "tables", interval, maxIdle)
}

// SessionCounts reports how many filter and table sessions are live.
func (a *API) SessionCounts() (filters, tables int) {
	return a.filters.Len(), a.tables.Len()
}

// Close cancels in-flight searches.
func (a *API) Close() {
	a.cancel()
}

func (a *API) handleVersion(c fiber.Ctx) error {
	return c.JSON(fiber.Map{
		"version": a.deps.Version,
	})
}
