package reports

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strconv"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/seuros/mfdash/internal/apiclient"
	"github.com/seuros/mfdash/internal/tablestate"
)

func analyticsFor(t *testing.T, h http.HandlerFunc) *apiclient.Analytics {
	t.Helper()
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)
	c, err := apiclient.New(srv.URL, apiclient.WithRetries(0))
	require.NoError(t, err)
	return apiclient.NewAnalytics(c)
}

func TestCatalogNames(t *testing.T) {
	assert.Equal(t, []string{
		"dead-links", "device-breakdown", "engagement-sessions", "page-views",
		"top-pages", "traffic-sources", "user-intent", "visitors",
	}, Names())

	r, ok := Lookup("dead-links")
	require.True(t, ok)
	assert.Equal(t, tablestate.External, r.Mode())

	r, ok = Lookup("top-pages")
	require.True(t, ok)
	assert.Equal(t, tablestate.Internal, r.Mode())

	_, ok = Lookup("nope")
	assert.False(t, ok)
}

func TestInternalReportPagesLocally(t *testing.T) {
	var calls atomic.Int32
	a := analyticsFor(t, func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		assert.Equal(t, apiclient.PathTopPages, r.URL.Path)
		assert.Equal(t, "true", r.URL.Query().Get("includeBots"))
		_, _ = w.Write([]byte(`{"data":[
			{"page_name":"/a","views":5},
			{"page_name":"/b","views":50},
			{"page_name":"/c","views":7}
		]}`))
	})

	r, _ := Lookup("top-pages")
	tbl := NewTable(r, a, Query{IncludeBots: true}, tablestate.Options{PageSize: 2})
	assert.True(t, tbl.Stale())

	require.NoError(t, tbl.Ensure(context.Background()))
	require.NoError(t, tbl.Ensure(context.Background()))
	assert.Equal(t, int32(1), calls.Load())

	tbl.Engine().SortBy("views")
	tbl.Engine().SortBy("views")
	rows := tbl.Rows()
	require.Len(t, rows, 2)
	assert.Equal(t, "/b", rows[0]["page_name"])
	assert.Equal(t, "/c", rows[1]["page_name"])
	assert.Equal(t, 2, tbl.Engine().TotalPages())

	tbl.Engine().SetPage(2)
	rows = tbl.Rows()
	require.Len(t, rows, 1)
	assert.Equal(t, "/a", rows[0]["page_name"])

	assert.Len(t, tbl.AllRows(), 3)
	assert.Equal(t, int32(1), calls.Load(), "paging an internal table never refetches")
}

func TestServerPagedReportRefetchesOnPageChange(t *testing.T) {
	var pages []string
	a := analyticsFor(t, func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		pages = append(pages, q.Get("page")+"/"+q.Get("limit"))
		page, _ := strconv.Atoi(q.Get("page"))
		_, _ = w.Write([]byte(`{"data":{"links":[{"id":` + strconv.Itoa(page) + `,"url":"u"}],
			"pagination":{"total":45,"page":` + q.Get("page") + `,"limit":` + q.Get("limit") + `,"pages":0}}}`))
	})

	r, _ := Lookup("dead-links")
	tbl := NewTable(r, a, Query{Scope: apiclient.Scope{PackageName: "p"}}, tablestate.Options{PageSize: 10})
	ctx := context.Background()

	require.NoError(t, tbl.Ensure(ctx))
	assert.Equal(t, int64(45), tbl.Engine().TotalRecords())
	assert.Equal(t, 5, tbl.Engine().TotalPages(), "pages derived from total and limit")

	tbl.Engine().SetPage(3)
	assert.True(t, tbl.Stale())
	require.NoError(t, tbl.Ensure(ctx))
	rows := tbl.Rows()
	require.Len(t, rows, 1)
	assert.Equal(t, "3", rows[0]["id"])

	tbl.Engine().SetPageSize(25)
	require.NoError(t, tbl.Ensure(ctx))

	tbl.SetQuery(Query{Scope: apiclient.Scope{PackageName: "q"}})
	assert.Equal(t, 1, tbl.Engine().Page())
	require.NoError(t, tbl.Ensure(ctx))

	assert.Equal(t, []string{"1/10", "3/10", "1/25", "1/25"}, pages)
}

func TestServerPagedReportSortsLoadedPage(t *testing.T) {
	var calls atomic.Int32
	a := analyticsFor(t, func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		_, _ = w.Write([]byte(`{"data":{"links":[
			{"id":1,"url":"c"},{"id":2,"url":"a"},{"id":3,"url":"b"}
		],"pagination":{"total":3,"page":1,"limit":10,"pages":1}}}`))
	})

	r, _ := Lookup("dead-links")
	tbl := NewTable(r, a, Query{}, tablestate.Options{})
	require.NoError(t, tbl.Ensure(context.Background()))

	tbl.Engine().SetSort("url", tablestate.Desc)
	assert.False(t, tbl.Stale())

	urls := func(rows []tablestate.Row) []any {
		out := make([]any, len(rows))
		for i, row := range rows {
			out[i] = row["url"]
		}
		return out
	}
	assert.Equal(t, []any{"c", "b", "a"}, urls(tbl.Rows()))
	assert.Equal(t, []any{"c", "b", "a"}, urls(tbl.AllRows()))
	assert.Equal(t, int32(1), calls.Load())
}

func TestRefreshWrapsErrors(t *testing.T) {
	a := analyticsFor(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	})
	r, _ := Lookup("visitors")
	tbl := NewTable(r, a, Query{}, tablestate.Options{})

	err := tbl.Refresh(context.Background())
	require.Error(t, err)
	assert.True(t, apiclient.IsUnauthorized(err))
	assert.Contains(t, err.Error(), "fetch visitors")
	assert.True(t, tbl.Stale())
}

func TestShareReportRows(t *testing.T) {
	a := analyticsFor(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"data":[{"label":"Mobile","visit":"12","percentage":"60%","colorCode":"#f00"}]}`))
	})
	r, _ := Lookup("device-breakdown")
	tbl := NewTable(r, a, Query{}, tablestate.Options{})
	require.NoError(t, tbl.Refresh(context.Background()))

	rows := tbl.Rows()
	require.Len(t, rows, 1)
	assert.Equal(t, tablestate.Row{"label": "Mobile", "visit": 12.0, "percentage": 60.0, "color": "#f00"}, rows[0])
}

func TestLayoutRoundTrip(t *testing.T) {
	r, _ := Lookup("dead-links")
	src := tablestate.New(r.Columns, tablestate.Options{})
	src.ToggleColumn("referrer")
	src.ResizeColumn("url", 90)
	src.EndResize("url")
	src.ResizeColumn("id", -500)
	src.EndResize("id")
	src.SetPageSize(25)
	src.SortBy("detectedAt")
	src.SortBy("detectedAt")

	layout := CaptureLayout(src)
	assert.Equal(t, []string{"referrer"}, layout.Hidden)
	assert.Equal(t, 240, layout.Widths["url"])
	assert.Equal(t, 100, layout.Widths["id"])
	assert.Equal(t, "desc", layout.SortDir)

	dst := tablestate.New(r.Columns, tablestate.Options{})
	dst.ToggleColumn("url")
	layout.Widths["ghost"] = 300
	ApplyLayout(dst, layout)

	assert.False(t, dst.IsVisible("referrer"))
	assert.True(t, dst.IsVisible("url"))
	assert.Equal(t, 240, dst.Width("url"))
	assert.Equal(t, 100, dst.Width("id"))
	assert.Equal(t, 25, dst.PageSize())
	s, ok := dst.Sort()
	require.True(t, ok)
	assert.Equal(t, tablestate.Sort{Key: "detectedAt", Direction: tablestate.Desc}, s)
}
