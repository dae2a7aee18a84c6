package tablestate

import (
	"net/url"
	"strconv"
	"strings"
)

// MaxPageSize caps page sizes requested over HTTP.
const MaxPageSize = 100

// PaginationMeta contains pagination metadata
type PaginationMeta struct {
	Page       int   `json:"page"`
	Per        int   `json:"per"`
	Total      int64 `json:"total"`       // Total items across all pages
	TotalPages int   `json:"total_pages"` // Calculated total pages
	HasMore    bool  `json:"has_more"`    // Whether more pages exist
}

// PaginatedResponse wraps any list response with pagination metadata
type PaginatedResponse struct {
	Data       any            `json:"data"`
	Pagination PaginationMeta `json:"pagination"`
}

// BuildPaginationMeta creates pagination metadata. A non-positive totalPages is
// derived from total and per.
func BuildPaginationMeta(page, per int, total int64, totalPages int) PaginationMeta {
	if totalPages <= 0 && total > 0 && per > 0 {
		totalPages = int((total + int64(per) - 1) / int64(per))
	}
	return PaginationMeta{
		Page:       page,
		Per:        per,
		Total:      total,
		TotalPages: totalPages,
		HasMore:    page < totalPages,
	}
}

// Query holds pagination and sorting parameters parsed from a request
type Query struct {
	Page      int       `json:"page"`
	Per       int       `json:"per"`
	SortBy    string    `json:"sort_by"`
	SortOrder Direction `json:"sort_order"`
}

// ParseQuery extracts page, per, sort_by and sort_order. Missing values stay
// zero so Apply leaves the engine's state alone.
func ParseQuery(values url.Values) Query {
	q := Query{
		Page:   queryInt(values, "page", 0),
		Per:    queryInt(values, "per", 0),
		SortBy: strings.TrimSpace(values.Get("sort_by")),
	}
	if q.Per > MaxPageSize {
		q.Per = MaxPageSize
	}
	switch Direction(strings.ToLower(values.Get("sort_order"))) {
	case Asc:
		q.SortOrder = Asc
	case Desc:
		q.SortOrder = Desc
	}
	return q
}

// Apply replays a parsed query onto the engine: size first (which resets the
// page), then page, then sort.
func (q Query) Apply(e *Engine) {
	if q.Per > 0 && q.Per != e.PageSize() {
		e.SetPageSize(q.Per)
	}
	if q.Page > 0 && q.Page != e.Page() {
		e.SetPage(q.Page)
	}
	if q.SortBy != "" {
		dir := q.SortOrder
		if dir == "" {
			dir = Asc
		}
		e.SetSort(q.SortBy, dir)
	}
}

func queryInt(values url.Values, key string, defaultValue int) int {
	val := values.Get(key)
	if val == "" {
		return defaultValue
	}
	parsed, err := strconv.Atoi(val)
	if err != nil {
		return defaultValue
	}
	return parsed
}
