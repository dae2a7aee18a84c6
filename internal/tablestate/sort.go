package tablestate

import (
	"encoding/json"
	"fmt"
	"math"
	"slices"
	"strconv"
	"strings"
)

// Direction is a sort order.
type Direction string

const (
	Asc  Direction = "asc"
	Desc Direction = "desc"
)

// Sort is the active sort column and direction.
type Sort struct {
	Key       string    `json:"key"`
	Direction Direction `json:"direction"`
}

// Sort returns the active sort, if any.
func (e *Engine) Sort() (Sort, bool) {
	if e.sort == nil {
		return Sort{}, false
	}
	return *e.sort, true
}

// SortBy cycles the sort on key: a new key sorts ascending, the active key
// flips direction. Unknown keys are ignored.
func (e *Engine) SortBy(key string) {
	if !e.hasColumn(key) {
		return
	}
	dir := Asc
	if e.sort != nil && e.sort.Key == key && e.sort.Direction == Asc {
		dir = Desc
	}
	e.sort = &Sort{Key: key, Direction: dir}
}

// SetSort installs an explicit sort. Unknown keys or directions are ignored.
func (e *Engine) SetSort(key string, dir Direction) {
	if !e.hasColumn(key) || (dir != Asc && dir != Desc) {
		return
	}
	e.sort = &Sort{Key: key, Direction: dir}
}

// ClearSort returns the table to data order.
func (e *Engine) ClearSort() { e.sort = nil }

// Sorted returns a stably sorted copy of data under the active sort.
func (e *Engine) Sorted(data []Row) []Row {
	out := slices.Clone(data)
	if e.sort == nil {
		return out
	}
	key, dir := e.sort.Key, e.sort.Direction
	slices.SortStableFunc(out, func(a, b Row) int {
		return CompareCells(a[key], b[key], dir)
	})
	return out
}

// cell ranks: numbers sort before text, missing values after both.
const (
	rankNumber = iota
	rankText
	rankMissing
)

// CompareCells orders two cell values for dir. Values that both parse as finite
// numbers compare numerically, text compares case-insensitively, numbers sort
// before text, and missing values sort last ascending and first descending.
func CompareCells(a, b any, dir Direction) int {
	ra, na, sa := classify(a)
	rb, nb, sb := classify(b)

	var c int
	switch {
	case ra != rb:
		c = cmpInt(ra, rb)
	case ra == rankNumber:
		c = cmpFloat(na, nb)
	case ra == rankText:
		c = strings.Compare(sa, sb)
	}
	if dir == Desc {
		return -c
	}
	return c
}

func classify(v any) (rank int, num float64, text string) {
	if v == nil {
		return rankMissing, 0, ""
	}
	if f, ok := toNumber(v); ok {
		return rankNumber, f, ""
	}
	return rankText, 0, strings.ToLower(fmt.Sprint(v))
}

func toNumber(v any) (float64, bool) {
	var f float64
	switch n := v.(type) {
	case int:
		f = float64(n)
	case int8:
		f = float64(n)
	case int16:
		f = float64(n)
	case int32:
		f = float64(n)
	case int64:
		f = float64(n)
	case uint:
		f = float64(n)
	case uint8:
		f = float64(n)
	case uint16:
		f = float64(n)
	case uint32:
		f = float64(n)
	case uint64:
		f = float64(n)
	case float32:
		f = float64(n)
	case float64:
		f = n
	case json.Number:
		parsed, err := n.Float64()
		if err != nil {
			return 0, false
		}
		f = parsed
	case string:
		s := strings.TrimSpace(n)
		if s == "" {
			return 0, false
		}
		parsed, err := strconv.ParseFloat(s, 64)
		if err != nil {
			return 0, false
		}
		f = parsed
	default:
		return 0, false
	}
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, false
	}
	return f, true
}

func cmpInt(a, b int) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	}
	return 0
}

func cmpFloat(a, b float64) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	}
	return 0
}
