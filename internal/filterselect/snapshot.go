package filterselect

import (
	"encoding/json"
	"slices"
)

// Snapshot is the immutable result of Submit.
type Snapshot struct {
	IsSelectAll   bool
	SelectedCount int
	Grouped       bool
	// Options holds every option with its checked flag in flat mode.
	Options []Option
	// Groups maps each known category to its selected labels in grouped mode.
	// Every category is present; a category with nothing selected maps to an
	// empty slice.
	Groups map[string][]string
}

type snapshotJSON struct {
	IsSelectAll   bool `json:"is_select_all"`
	SelectedCount int  `json:"selected_count"`
	Filters       any  `json:"filters"`
	Grouped       bool `json:"grouped,omitempty"`
}

// MarshalJSON emits the wire shape consumed by the host widget.
func (s Snapshot) MarshalJSON() ([]byte, error) {
	out := snapshotJSON{
		IsSelectAll:   s.IsSelectAll,
		SelectedCount: s.SelectedCount,
		Grouped:       s.Grouped,
	}
	if s.Grouped {
		groups := s.Groups
		if groups == nil {
			groups = map[string][]string{}
		}
		out.Filters = groups
	} else {
		options := s.Options
		if options == nil {
			options = []Option{}
		}
		out.Filters = options
	}
	return json.Marshal(out)
}

// UnmarshalJSON restores a snapshot saved by MarshalJSON.
func (s *Snapshot) UnmarshalJSON(data []byte) error {
	var raw struct {
		IsSelectAll   bool            `json:"is_select_all"`
		SelectedCount int             `json:"selected_count"`
		Filters       json.RawMessage `json:"filters"`
		Grouped       bool            `json:"grouped"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	*s = Snapshot{
		IsSelectAll:   raw.IsSelectAll,
		SelectedCount: raw.SelectedCount,
		Grouped:       raw.Grouped,
	}
	if len(raw.Filters) == 0 || string(raw.Filters) == "null" {
		return nil
	}
	if raw.Grouped {
		return json.Unmarshal(raw.Filters, &s.Groups)
	}
	return json.Unmarshal(raw.Filters, &s.Options)
}

// Submit returns a snapshot of the current selection. In grouped mode the map
// is rebuilt from the options on every call.
func (e *Engine) Submit() Snapshot {
	snap := Snapshot{
		IsSelectAll:   e.isSelectAll,
		SelectedCount: e.selectedCount,
		Grouped:       e.grouped,
	}
	if !e.grouped {
		snap.Options = slices.Clone(e.options)
		return snap
	}

	snap.Groups = make(map[string][]string, len(e.groupOrder))
	for _, name := range e.groupOrder {
		snap.Groups[name] = []string{}
	}
	for _, opt := range e.options {
		if _, ok := snap.Groups[opt.Group]; !ok {
			snap.Groups[opt.Group] = []string{}
		}
		if opt.Checked {
			snap.Groups[opt.Group] = append(snap.Groups[opt.Group], opt.Label)
		}
	}
	return snap
}

// Restore applies a previously submitted snapshot onto the current options:
// labels present in the snapshot are checked, everything else is cleared. A
// select-all snapshot selects everything, including options loaded since.
func (e *Engine) Restore(snap Snapshot) {
	if snap.IsSelectAll {
		e.SelectAll()
		return
	}

	var checked func(opt Option) bool
	if snap.Grouped {
		checked = func(opt Option) bool {
			return slices.Contains(snap.Groups[opt.Group], opt.Label)
		}
	} else {
		set := make(map[string]bool, len(snap.Options))
		for _, o := range snap.Options {
			if o.Checked {
				set[o.Label] = true
			}
		}
		checked = func(opt Option) bool { return set[opt.Label] }
	}

	next := make([]Option, len(e.options))
	for i, opt := range e.options {
		next[i] = Option{Label: opt.Label, Checked: checked(opt), Group: opt.Group}
	}
	e.touched = true
	e.apply(next, recomputeManual)
}
