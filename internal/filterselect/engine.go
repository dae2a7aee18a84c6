// Package filterselect tracks which filter options of a dashboard filter pill are
// checked, flat or grouped into categories, and produces the snapshot handed to
// the owning widget on apply.
package filterselect

import (
	"slices"
)

// Option is a single selectable filter value.
type Option struct {
	Label   string `json:"label"`
	Checked bool   `json:"checked"`
	Group   string `json:"group,omitempty"`
}

// Group is one category of a grouped filter, in display order.
type Group struct {
	Name   string   `json:"name"`
	Labels []string `json:"labels"`
}

// Source seeds an engine. When Groups is non-nil the engine runs in grouped mode
// and Options is ignored.
type Source struct {
	Options []Option `json:"options,omitempty"`
	Groups  []Group  `json:"groups,omitempty"`
}

// Engine holds the selection state of one filter widget. It is not safe for
// concurrent use; the owning widget serializes events.
type Engine struct {
	options       []Option
	selectedCount int
	isSelectAll   bool

	grouped    bool
	groupOrder []string

	initialized bool
	// touched latches once Toggle/ToggleGroup ran; bulk loads can then only
	// clear isSelectAll, never set it.
	touched bool
	// partial marks an option list that is a window of a larger universe.
	partial bool

	query      string
	limit      int
	windowSize int
}

// New returns an uninitialized engine using the default window size.
func New() *Engine {
	return &Engine{windowSize: DefaultWindowSize, limit: DefaultWindowSize}
}

// NewWithWindow returns an engine whose visible list grows by size items.
func NewWithWindow(size int) *Engine {
	if size <= 0 {
		size = DefaultWindowSize
	}
	return &Engine{windowSize: size, limit: size}
}

// Initialize seeds the engine. Grouped sources are flattened in category order,
// each label tagged with its category. A second call before Reset is ignored and
// reports false.
func (e *Engine) Initialize(src Source, defaultChecked bool) bool {
	if e.initialized {
		return false
	}

	var options []Option
	if src.Groups != nil {
		e.grouped = true
		e.groupOrder = make([]string, 0, len(src.Groups))
		for _, g := range src.Groups {
			if !slices.Contains(e.groupOrder, g.Name) {
				e.groupOrder = append(e.groupOrder, g.Name)
			}
			for _, label := range g.Labels {
				options = append(options, Option{Label: label, Checked: defaultChecked, Group: g.Name})
			}
		}
	} else {
		options = make([]Option, 0, len(src.Options))
		for _, opt := range src.Options {
			options = append(options, Option{
				Label:   opt.Label,
				Checked: opt.Checked || defaultChecked,
				Group:   opt.Group,
			})
		}
	}

	e.initialized = true
	e.apply(options, recomputeDerived)
	return true
}

// Reset returns the engine to its uninitialized state.
func (e *Engine) Reset() {
	size := e.windowSize
	*e = Engine{windowSize: size, limit: size}
}

// Initialized reports whether Initialize has run since the last Reset.
func (e *Engine) Initialized() bool { return e.initialized }

// Grouped reports whether the engine was seeded from categories.
func (e *Engine) Grouped() bool { return e.grouped }

// Touched reports whether a manual toggle has happened.
func (e *Engine) Touched() bool { return e.touched }

// SetPartial marks the option list as a window of a larger set that has not been
// fully loaded. While partial, a manual toggle can never produce select-all.
func (e *Engine) SetPartial(partial bool) {
	e.partial = partial
	if partial && e.touched {
		e.isSelectAll = false
	}
}

// Options returns a copy of the current options.
func (e *Engine) Options() []Option { return slices.Clone(e.options) }

// SelectedCount is the number of checked options.
func (e *Engine) SelectedCount() int { return e.selectedCount }

// IsSelectAll reports whether every known option is selected.
func (e *Engine) IsSelectAll() bool { return e.isSelectAll }

// Len is the number of known options.
func (e *Engine) Len() int { return len(e.options) }

// Toggle flips every option carrying label. All matches take the negation of the
// first match so duplicated labels across categories stay in step. Unknown
// labels are ignored.
func (e *Engine) Toggle(label string) {
	idx := slices.IndexFunc(e.options, func(o Option) bool { return o.Label == label })
	if idx < 0 {
		return
	}
	value := !e.options[idx].Checked

	next := slices.Clone(e.options)
	for i := idx; i < len(next); i++ {
		if next[i].Label == label {
			next[i] = Option{Label: next[i].Label, Checked: value, Group: next[i].Group}
		}
	}
	e.touched = true
	e.apply(next, recomputeManual)
}

// ToggleGroup sets checked on every option of group. Unknown groups are ignored.
func (e *Engine) ToggleGroup(group string, checked bool) {
	if !slices.ContainsFunc(e.options, func(o Option) bool { return o.Group == group }) {
		return
	}
	next := slices.Clone(e.options)
	for i := range next {
		if next[i].Group == group {
			next[i] = Option{Label: next[i].Label, Checked: checked, Group: next[i].Group}
		}
	}
	e.touched = true
	e.apply(next, recomputeManual)
}

// ToggleGroupItem toggles label inside group, or when label is empty flips the
// whole group: check all unless every item is already checked.
func (e *Engine) ToggleGroupItem(group, label string) {
	if label == "" {
		state := e.GroupState(group)
		e.ToggleGroup(group, !state.AllSelected)
		return
	}
	idx := slices.IndexFunc(e.options, func(o Option) bool {
		return o.Group == group && o.Label == label
	})
	if idx < 0 {
		return
	}
	next := slices.Clone(e.options)
	next[idx] = Option{Label: next[idx].Label, Checked: !next[idx].Checked, Group: group}
	e.touched = true
	e.apply(next, recomputeManual)
}

// SelectAll checks every option.
func (e *Engine) SelectAll() {
	e.apply(withChecked(e.options, true), forceSelectAll)
}

// UnselectAll clears every option.
func (e *Engine) UnselectAll() {
	e.apply(withChecked(e.options, false), forceUnselectAll)
}

// SetOptions replaces the option list after a data refresh.
func (e *Engine) SetOptions(options []Option) {
	e.apply(slices.Clone(options), recomputeBulk)
}

// AppendOptions adds a newly loaded window of options. Under select-all the new
// options arrive checked.
func (e *Engine) AppendOptions(options []Option) {
	next := slices.Clone(e.options)
	for _, opt := range options {
		if e.isSelectAll {
			opt.Checked = true
		}
		next = append(next, opt)
		if e.grouped && opt.Group != "" && !slices.Contains(e.groupOrder, opt.Group) {
			e.groupOrder = append(e.groupOrder, opt.Group)
		}
	}
	e.apply(next, recomputeBulk)
}

// GroupState summarizes one category for a tri-state checkbox.
type GroupState struct {
	Total        int  `json:"total"`
	Selected     int  `json:"selected"`
	AllSelected  bool `json:"all_selected"`
	SomeSelected bool `json:"some_selected"`
}

// GroupState counts the options of group.
func (e *Engine) GroupState(group string) GroupState {
	var gs GroupState
	for _, opt := range e.options {
		if opt.Group != group {
			continue
		}
		gs.Total++
		if opt.Checked {
			gs.Selected++
		}
	}
	gs.AllSelected = gs.Total > 0 && gs.Selected == gs.Total
	gs.SomeSelected = gs.Selected > 0 && gs.Selected < gs.Total
	return gs
}

// Groups returns the known category names in first-seen order.
func (e *Engine) Groups() []string { return slices.Clone(e.groupOrder) }

type recomputeMode int

const (
	recomputeDerived recomputeMode = iota
	recomputeManual
	recomputeBulk
	forceSelectAll
	forceUnselectAll
)

// apply installs options and recomputes the aggregates. It is the only place the
// aggregates are written.
func (e *Engine) apply(options []Option, mode recomputeMode) {
	e.options = options

	count := 0
	for _, opt := range options {
		if opt.Checked {
			count++
		}
	}
	e.selectedCount = count
	allChecked := len(options) > 0 && count == len(options)

	switch mode {
	case forceSelectAll:
		e.isSelectAll = len(options) > 0
	case forceUnselectAll:
		e.isSelectAll = false
	case recomputeManual:
		e.isSelectAll = allChecked && !e.partial
	case recomputeBulk:
		if e.touched {
			e.isSelectAll = e.isSelectAll && allChecked
		} else {
			e.isSelectAll = allChecked && !e.partial
		}
	default:
		e.isSelectAll = allChecked && !e.partial
	}
}

func withChecked(options []Option, checked bool) []Option {
	next := make([]Option, len(options))
	for i, opt := range options {
		next[i] = Option{Label: opt.Label, Checked: checked, Group: opt.Group}
	}
	return next
}
