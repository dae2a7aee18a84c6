package filterselect

import (
	"slices"
	"strings"
	"unicode"
	"unicode/utf8"
)

// DefaultWindowSize is how many options the visible list shows before the
// next incremental load.
const DefaultWindowSize = 500

// View is a read-only, windowed projection of the options under a search query.
type View struct {
	Query   string   `json:"query"`
	Items   []Option `json:"items"`
	Total   int      `json:"total"`
	HasMore bool     `json:"has_more"`
}

// Search sets the active query and returns the new view. Options and their
// checked flags are untouched. An empty query restores the default window; a
// non-empty one shows every match.
func (e *Engine) Search(query string) View {
	e.query = strings.TrimSpace(query)
	e.limit = e.windowSize
	if e.query != "" {
		e.limit = len(e.matches())
	}
	return e.View()
}

// LoadMore grows the visible window by one window size.
func (e *Engine) LoadMore() View {
	total := len(e.matches())
	if e.limit < total {
		e.limit = min(e.limit+e.windowSize, total)
	}
	return e.View()
}

// Query returns the active search query.
func (e *Engine) Query() string { return e.query }

// View returns the current windowed projection.
func (e *Engine) View() View {
	matches := e.matches()
	limit := min(max(e.limit, 0), len(matches))
	return View{
		Query:   e.query,
		Items:   matches[:limit:limit],
		Total:   len(matches),
		HasMore: limit < len(matches),
	}
}

// matches returns copies of the options whose label contains the query,
// case-insensitively.
func (e *Engine) matches() []Option {
	if e.query == "" {
		return slices.Clone(e.options)
	}
	needle := strings.ToLower(e.query)
	out := make([]Option, 0, len(e.options))
	for _, opt := range e.options {
		if strings.Contains(strings.ToLower(opt.Label), needle) {
			out = append(out, opt)
		}
	}
	return out
}

// Alphabet returns the sorted first letters present in the searched options.
func (e *Engine) Alphabet() []string {
	index := e.ByLetter()
	letters := make([]string, 0, len(index))
	for letter := range index {
		letters = append(letters, letter)
	}
	slices.Sort(letters)
	return letters
}

// ByLetter buckets the searched options by upper-cased first letter.
func (e *Engine) ByLetter() map[string][]Option {
	index := make(map[string][]Option)
	for _, opt := range e.matches() {
		letter := firstLetter(opt.Label)
		index[letter] = append(index[letter], opt)
	}
	return index
}

// ByGroup buckets the searched options by category. Every known category is
// present even when the search leaves it empty. Flat engines use a single "All"
// bucket.
func (e *Engine) ByGroup() map[string][]Option {
	matches := e.matches()
	if !e.grouped {
		return map[string][]Option{"All": matches}
	}
	out := make(map[string][]Option, len(e.groupOrder))
	for _, name := range e.groupOrder {
		out[name] = []Option{}
	}
	for _, opt := range matches {
		if _, ok := out[opt.Group]; ok {
			out[opt.Group] = append(out[opt.Group], opt)
		}
	}
	return out
}

func firstLetter(label string) string {
	r, _ := utf8.DecodeRuneInString(label)
	if r == utf8.RuneError {
		return ""
	}
	return string(unicode.ToUpper(r))
}
