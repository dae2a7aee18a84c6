package apiclient

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type call struct {
	method string
	path   string
	params map[string]any
}

// fakeDoer answers every request with body decoded into dest.
type fakeDoer struct {
	calls []call
	body  string
	err   error
}

func (f *fakeDoer) Do(_ context.Context, method, path string, payload map[string]any, dest any) error {
	f.calls = append(f.calls, call{method: method, path: path, params: payload})
	if f.err != nil {
		return f.err
	}
	return json.Unmarshal([]byte(f.body), dest)
}

var scope = Scope{StartDate: "2026-10-01", EndDate: "2026-10-18", PackageName: "com.example"}

func TestScopeParamsOmitsEmpty(t *testing.T) {
	assert.Equal(t, map[string]any{"package_name": "p"}, Scope{PackageName: "p"}.Params())
}

func TestDeadLinksAcceptsBothSpellings(t *testing.T) {
	f := &fakeDoer{body: `{"data":{"links":[
		{"id":7,"url":"https://x/a","http_code":404,"is_broken":true,"detected_at":"2026-10-01","package_name":"com.example"},
		{"id":"8","url":"https://x/b","httpCode":"500","isBroken":false,"lastChecked":"2026-10-02"}
	],"pagination":{"total":42,"page":2,"limit":10,"pages":5}}}`}

	page, err := NewAnalytics(f).DeadLinks(context.Background(), scope, 2, 10)
	require.NoError(t, err)

	require.Len(t, f.calls, 1)
	assert.Equal(t, PathDeadLinks, f.calls[0].path)
	assert.Equal(t, 2, f.calls[0].params["page"])
	assert.Equal(t, 10, f.calls[0].params["limit"])
	assert.Equal(t, "com.example", f.calls[0].params["package_name"])

	require.Len(t, page.Links, 2)
	assert.Equal(t, "7", page.Links[0].ID)
	assert.Equal(t, "404", page.Links[0].HTTPCode)
	assert.True(t, page.Links[0].IsBroken)
	assert.Equal(t, "2026-10-01", page.Links[0].DetectedAt)
	assert.Equal(t, "500", page.Links[1].HTTPCode)
	assert.Equal(t, "2026-10-02", page.Links[1].LastChecked)
	assert.Equal(t, DeadLinksPagination{Total: 42, Page: 2, Limit: 10, Pages: 5}, page.Pagination)

	row := page.Links[0].Row()
	assert.Equal(t, "com.example", row["package_name"])
	assert.Equal(t, true, row["isBroken"])
}

func TestDeadLinksDefaultsPaging(t *testing.T) {
	f := &fakeDoer{body: `{"data":{"links":[]}}`}
	_, err := NewAnalytics(f).DeadLinks(context.Background(), scope, 0, 0)
	require.NoError(t, err)
	assert.Equal(t, 1, f.calls[0].params["page"])
	assert.Equal(t, 10, f.calls[0].params["limit"])
}

func TestPageViewsDeviceParam(t *testing.T) {
	f := &fakeDoer{body: `{"data":[{"date":"2026-10-01","views":"12"}]}`}
	a := NewAnalytics(f)

	points, err := a.PageViews(context.Background(), scope, PageViewOptions{})
	require.NoError(t, err)
	assert.Equal(t, "all", f.calls[0].params["deviceType"])
	assert.Equal(t, Number(12), points[0].Views)

	_, err = a.PageViews(context.Background(), scope, PageViewOptions{Devices: []string{"Mobile", "Tablet"}})
	require.NoError(t, err)
	assert.Equal(t, "mobile,tablet", f.calls[1].params["deviceType"])
}

func TestTopPagesCountFallback(t *testing.T) {
	f := &fakeDoer{body: `{"data":[{"page_name":"/a","views":3},{"page_name":"/b","pageViews":5},{"page_name":"/c","visit":"7"}]}`}
	pages, err := NewAnalytics(f).TopPages(context.Background(), scope, SummaryOptions{IncludeBots: true})
	require.NoError(t, err)
	assert.Equal(t, true, f.calls[0].params["includeBots"])
	require.Len(t, pages, 3)
	assert.Equal(t, []float64{3, 5, 7}, []float64{pages[0].Count(), pages[1].Count(), pages[2].Count()})
}

func TestSharesAndIntent(t *testing.T) {
	f := &fakeDoer{body: `{"data":[{"source":"Direct","visit":10,"percentage":"62.5%"},{"visit":1}]}`}
	shares, err := NewAnalytics(f).TrafficSources(context.Background(), scope)
	require.NoError(t, err)
	assert.Equal(t, "Direct", shares[0].Name())
	assert.Equal(t, Number(62.5), shares[0].Percentage)
	assert.Equal(t, "Unknown", shares[1].Name())

	f = &fakeDoer{body: `{"data":[{"intent_status":"High_Intent","visit_percentage":"40","event_percentage":null}]}`}
	intents, err := NewAnalytics(f).UserIntent(context.Background(), scope)
	require.NoError(t, err)
	assert.Equal(t, "High Intent", intents[0].Label())
	assert.Equal(t, Number(40), intents[0].VisitPercentage)
	assert.Equal(t, Number(0), intents[0].EventPercentage)
}

func TestEngagementSessionsFillsDefaults(t *testing.T) {
	f := &fakeDoer{body: `{"data":[{"trackingNo":"T1","deviceType":"mobile","visitDateTime":"2026-10-01 10:00"},{}]}`}
	sessions, err := NewAnalytics(f).EngagementSessions(context.Background(), scope)
	require.NoError(t, err)
	require.Len(t, sessions, 2)
	assert.Equal(t, "T1", sessions[0].TrackingNo)
	assert.Equal(t, "SESSION-2", sessions[1].TrackingNo)
	assert.Equal(t, "Unknown", sessions[1].DeviceType)
}

func TestAnalyticsPropagatesErrors(t *testing.T) {
	f := &fakeDoer{err: &APIError{Status: 401, Message: "nope"}}
	_, err := NewAnalytics(f).Visitors(context.Background(), scope)
	assert.True(t, IsUnauthorized(err))
}
