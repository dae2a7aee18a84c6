package handlers

import (
	"net/url"
	"slices"

	"github.com/gofiber/fiber/v3"

	"github.com/seuros/mfdash/internal/tablestate"
)

// ParsePaginationParams extracts page, per, sort_by and sort_order from the
// query string.
func ParsePaginationParams(c fiber.Ctx) tablestate.Query {
	values := url.Values{}
	for k, v := range c.Queries() {
		values.Set(k, v)
	}
	return tablestate.ParseQuery(values)
}

// ParsePaginationParamsWithValidation drops a sort_by that names no column of e.
func ParsePaginationParamsWithValidation(c fiber.Ctx, e *tablestate.Engine) tablestate.Query {
	q := ParsePaginationParams(c)
	if q.SortBy != "" && !slices.ContainsFunc(e.Columns(), func(col tablestate.Column) bool { return col.Key == q.SortBy }) {
		q.SortBy = ""
		q.SortOrder = ""
	}
	return q
}

// NewPaginatedResponse wraps one page of rows with the engine's metadata.
func NewPaginatedResponse(rows []tablestate.Row, e *tablestate.Engine) tablestate.PaginatedResponse {
	if rows == nil {
		rows = []tablestate.Row{}
	}
	return tablestate.PaginatedResponse{
		Data:       rows,
		Pagination: e.Meta(),
	}
}
