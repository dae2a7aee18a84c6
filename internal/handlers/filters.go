package handlers

import (
	"context"
	"strconv"
	"strings"

	"github.com/gofiber/fiber/v3"

	"github.com/seuros/mfdash/internal/filterselect"
	"github.com/seuros/mfdash/internal/logging"
	"github.com/seuros/mfdash/internal/prefs"
)

// filterSession is one filter pill: its engine and the debounced search
// feeding the visible list.
type filterSession struct {
	widget string
	engine *filterselect.Engine
	live   *liveSearch
}

func (fs *filterSession) close() {
	if fs.live != nil {
		fs.live.close()
	}
}

type filterState struct {
	ID            string                             `json:"id"`
	Widget        string                             `json:"widget"`
	SelectedCount int                                `json:"selected_count"`
	IsSelectAll   bool                               `json:"is_select_all"`
	Grouped       bool                               `json:"grouped"`
	Touched       bool                               `json:"touched"`
	Total         int                                `json:"total"`
	Groups        map[string]filterselect.GroupState `json:"groups,omitempty"`
	GroupOrder    []string                           `json:"group_order,omitempty"`
	Alphabet      []string                           `json:"alphabet"`
	View          filterselect.View                  `json:"view"`
}

func newFilterState(id string, fs *filterSession) filterState {
	e := fs.engine
	st := filterState{
		ID:            id,
		Widget:        fs.widget,
		SelectedCount: e.SelectedCount(),
		IsSelectAll:   e.IsSelectAll(),
		Grouped:       e.Grouped(),
		Touched:       e.Touched(),
		Total:         e.Len(),
		Alphabet:      e.Alphabet(),
		View:          e.View(),
	}
	if st.Grouped {
		st.GroupOrder = e.Groups()
		st.Groups = make(map[string]filterselect.GroupState, len(st.GroupOrder))
		for _, g := range st.GroupOrder {
			st.Groups[g] = e.GroupState(g)
		}
	}
	return st
}

type createFilterRequest struct {
	Widget         string                `json:"widget"`
	Options        []filterselect.Option `json:"options"`
	Groups         []filterselect.Group  `json:"groups"`
	DefaultChecked bool                  `json:"default_checked"`
	Partial        bool                  `json:"partial"`
	Window         int                   `json:"window"`
	// Restore defaults to true: a previously submitted snapshot for the widget
	// is replayed onto the new engine.
	Restore *bool `json:"restore"`
}

func (a *API) createFilter(c fiber.Ctx) error {
	var req createFilterRequest
	if err := bindJSON(c, &req); err != nil {
		return errorJSON(c, fiber.StatusBadRequest, "Invalid request body")
	}
	req.Widget = strings.TrimSpace(req.Widget)
	if req.Widget == "" {
		return errorJSON(c, fiber.StatusBadRequest, "widget is required")
	}

	engine := filterselect.NewWithWindow(req.Window)
	engine.Initialize(filterselect.Source{Options: req.Options, Groups: req.Groups}, req.DefaultChecked)
	engine.SetPartial(req.Partial)

	if req.Restore == nil || *req.Restore {
		var snap filterselect.Snapshot
		found, err := prefs.GetJSON(c.Context(), a.deps.Prefs, prefs.FilterKey(req.Widget), &snap)
		switch {
		case err != nil:
			logging.L().Warn("ignoring saved filter", "widget", req.Widget, "error", err)
		case found:
			engine.Restore(snap)
		}
	}

	entry := a.filters.Create(&filterSession{widget: req.Widget, engine: engine})
	var st filterState
	_ = entry.Do(func(fs *filterSession) error {
		fs.live = newLiveSearch(a.ctx, a.deps.SearchDebounce, func(_ context.Context, q string) (filterselect.View, error) {
			var view filterselect.View
			err := entry.Do(func(fs *filterSession) error {
				view = fs.engine.Search(q)
				return nil
			})
			return view, err
		})
		st = newFilterState(entry.ID, fs)
		return nil
	})
	return c.Status(fiber.StatusCreated).JSON(st)
}

// mutateFilter runs fn on the session's engine and answers with the new state.
func (a *API) mutateFilter(c fiber.Ctx, fn func(e *filterselect.Engine)) error {
	entry, ok := a.filters.Get(c.Params("id"))
	if !ok {
		return notFound(c, "filter")
	}
	var st filterState
	_ = entry.Do(func(fs *filterSession) error {
		fn(fs.engine)
		st = newFilterState(entry.ID, fs)
		return nil
	})
	return c.JSON(st)
}

func (a *API) getFilter(c fiber.Ctx) error {
	return a.mutateFilter(c, func(*filterselect.Engine) {})
}

func (a *API) deleteFilter(c fiber.Ctx) error {
	return deleteEntry(c, a.filters, "filter")
}

type toggleRequest struct {
	Label string `json:"label"`
	Group string `json:"group"`
}

func (a *API) toggleFilter(c fiber.Ctx) error {
	var req toggleRequest
	if err := bindJSON(c, &req); err != nil || req.Label == "" {
		return errorJSON(c, fiber.StatusBadRequest, "label is required")
	}
	return a.mutateFilter(c, func(e *filterselect.Engine) {
		if req.Group != "" {
			e.ToggleGroupItem(req.Group, req.Label)
		} else {
			e.Toggle(req.Label)
		}
	})
}

type toggleGroupRequest struct {
	Group string `json:"group"`
	// Checked nil flips the category: fully selected goes off, anything
	// else goes on.
	Checked *bool `json:"checked"`
}

func (a *API) toggleFilterGroup(c fiber.Ctx) error {
	var req toggleGroupRequest
	if err := bindJSON(c, &req); err != nil || req.Group == "" {
		return errorJSON(c, fiber.StatusBadRequest, "group is required")
	}
	return a.mutateFilter(c, func(e *filterselect.Engine) {
		checked := !e.GroupState(req.Group).AllSelected
		if req.Checked != nil {
			checked = *req.Checked
		}
		e.ToggleGroup(req.Group, checked)
	})
}

func (a *API) selectAllFilter(c fiber.Ctx) error {
	return a.mutateFilter(c, func(e *filterselect.Engine) {
		e.SelectAll()
	})
}

func (a *API) unselectAllFilter(c fiber.Ctx) error {
	return a.mutateFilter(c, func(e *filterselect.Engine) {
		e.UnselectAll()
	})
}

type loadOptionsRequest struct {
	Options []filterselect.Option `json:"options"`
	// Replace swaps the whole list instead of appending a page of it.
	Replace bool  `json:"replace"`
	Partial *bool `json:"partial"`
}

func (a *API) loadFilterOptions(c fiber.Ctx) error {
	var req loadOptionsRequest
	if err := bindJSON(c, &req); err != nil {
		return errorJSON(c, fiber.StatusBadRequest, "Invalid request body")
	}
	return a.mutateFilter(c, func(e *filterselect.Engine) {
		if req.Replace {
			e.SetOptions(req.Options)
		} else {
			e.AppendOptions(req.Options)
		}
		if req.Partial != nil {
			e.SetPartial(*req.Partial)
		}
	})
}

type searchResponse struct {
	Generation uint64             `json:"generation"`
	Superseded bool               `json:"superseded"`
	View       *filterselect.View `json:"view,omitempty"`
}

// searchFilter runs the debounced search. Rapid requests for the same session
// supersede each other; only the newest one gets a view back.
func (a *API) searchFilter(c fiber.Ctx) error {
	entry, ok := a.filters.Get(c.Params("id"))
	if !ok {
		return notFound(c, "filter")
	}

	if more, _ := strconv.ParseBool(c.Query("more")); more {
		var resp searchResponse
		_ = entry.Do(func(fs *filterSession) error {
			view := fs.engine.LoadMore()
			resp = searchResponse{Generation: fs.live.latest(), View: &view}
			return nil
		})
		return c.JSON(resp)
	}

	var live *liveSearch
	_ = entry.Do(func(fs *filterSession) error {
		live = fs.live
		return nil
	})

	res, delivered, err := live.await(c.Context(), c.Query("q"))
	switch {
	case err != nil:
		return errorJSON(c, fiber.StatusRequestTimeout, "search cancelled")
	case !delivered:
		return c.JSON(searchResponse{Generation: res.Token, Superseded: true})
	case res.Err != nil:
		return errorJSON(c, fiber.StatusInternalServerError, "search failed")
	}
	return c.JSON(searchResponse{Generation: res.Token, View: &res.Value})
}

type submitResponse struct {
	Snapshot filterselect.Snapshot `json:"snapshot"`
	Saved    bool                  `json:"saved"`
}

// submitFilter produces the snapshot for the owning widget and remembers it
// for the next session of the same widget.
func (a *API) submitFilter(c fiber.Ctx) error {
	var (
		snap   filterselect.Snapshot
		widget string
	)
	entry, ok := a.filters.Get(c.Params("id"))
	if !ok {
		return notFound(c, "filter")
	}
	_ = entry.Do(func(fs *filterSession) error {
		snap = fs.engine.Submit()
		widget = fs.widget
		return nil
	})

	saved := true
	if err := prefs.SetJSON(c.Context(), a.deps.Prefs, prefs.FilterKey(widget), snap); err != nil {
		logging.L().Warn("failed to save filter snapshot", "widget", widget, "error", err)
		saved = false
	}
	return c.JSON(submitResponse{Snapshot: snap, Saved: saved})
}
