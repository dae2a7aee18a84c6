// Package reports describes the dashboard's tabular reports: which endpoint
// feeds each one, its columns, and whether it pages on the server.
package reports

import (
	"context"
	"fmt"
	"sort"

	"github.com/seuros/mfdash/internal/apiclient"
	"github.com/seuros/mfdash/internal/tablestate"
)

// Query is what a report fetch is filtered by.
type Query struct {
	Scope       apiclient.Scope `json:"scope"`
	IncludeBots bool            `json:"include_bots"`
	Devices     []string        `json:"devices,omitempty"`
	Page        int             `json:"-"`
	Limit       int             `json:"-"`
}

// Page is one fetch result.
type Page struct {
	Rows         []tablestate.Row
	TotalRecords int64
	TotalPages   int
}

// FetchFunc loads a report.
type FetchFunc func(ctx context.Context, a *apiclient.Analytics, q Query) (Page, error)

// Report is one catalog entry.
type Report struct {
	Name    string
	Title   string
	Columns []tablestate.Column
	RowKey  string
	// ServerPaged reports are bound to external-mode tables; the rest are
	// fetched whole and paged locally.
	ServerPaged bool
	Fetch       FetchFunc
}

// Mode is the pagination mode a table for this report uses.
func (r Report) Mode() tablestate.Mode {
	if r.ServerPaged {
		return tablestate.External
	}
	return tablestate.Internal
}

var catalog = map[string]Report{}

func register(r Report) {
	if _, dup := catalog[r.Name]; dup {
		panic(fmt.Sprintf("report %q registered twice", r.Name))
	}
	catalog[r.Name] = r
}

// Lookup returns the named report.
func Lookup(name string) (Report, bool) {
	r, ok := catalog[name]
	return r, ok
}

// Names lists every report, sorted.
func Names() []string {
	names := make([]string, 0, len(catalog))
	for n := range catalog {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

func init() {
	register(Report{
		Name:  "top-pages",
		Title: "Top Pages",
		Columns: []tablestate.Column{
			{Key: "page_name", Title: "Page"},
			{Key: "views", Title: "Views"},
		},
		RowKey: "page_name",
		Fetch: func(ctx context.Context, a *apiclient.Analytics, q Query) (Page, error) {
			pages, err := a.TopPages(ctx, q.Scope, apiclient.SummaryOptions{IncludeBots: q.IncludeBots})
			if err != nil {
				return Page{}, err
			}
			rows := make([]tablestate.Row, len(pages))
			for i, p := range pages {
				rows[i] = tablestate.Row{"page_name": p.PageName, "views": p.Count()}
			}
			return whole(rows), nil
		},
	})

	register(Report{
		Name:  "dead-links",
		Title: "Dead Links",
		Columns: []tablestate.Column{
			{Key: "id", Title: "ID"},
			{Key: "site_domain", Title: "Site Domain"},
			{Key: "referrer", Title: "Referrer"},
			{Key: "url", Title: "URL"},
			{Key: "httpCode", Title: "HTTP Code"},
			{Key: "error_message", Title: "Error Message"},
			{Key: "isBroken", Title: "Is Broken"},
			{Key: "detectedAt", Title: "Detected At"},
			{Key: "lastChecked", Title: "Last Checked"},
			{Key: "package_name", Title: "Package Name"},
		},
		RowKey:      "id",
		ServerPaged: true,
		Fetch: func(ctx context.Context, a *apiclient.Analytics, q Query) (Page, error) {
			res, err := a.DeadLinks(ctx, q.Scope, q.Page, q.Limit)
			if err != nil {
				return Page{}, err
			}
			rows := make([]tablestate.Row, len(res.Links))
			for i, l := range res.Links {
				rows[i] = l.Row()
			}
			pages := res.Pagination.Pages
			if pages == 0 && res.Pagination.Limit > 0 {
				pages = int((res.Pagination.Total + int64(res.Pagination.Limit) - 1) / int64(res.Pagination.Limit))
			}
			return Page{Rows: rows, TotalRecords: res.Pagination.Total, TotalPages: pages}, nil
		},
	})

	register(Report{
		Name:  "engagement-sessions",
		Title: "Engagement Sessions",
		Columns: []tablestate.Column{
			{Key: "sessionId", Title: "Session ID"},
			{Key: "device", Title: "Device"},
			{Key: "dateTime", Title: "Date & Time"},
			{Key: "actions", Title: "Actions", Renderer: "replay"},
		},
		RowKey: "sessionId",
		Fetch: func(ctx context.Context, a *apiclient.Analytics, q Query) (Page, error) {
			sessions, err := a.EngagementSessions(ctx, q.Scope)
			if err != nil {
				return Page{}, err
			}
			rows := make([]tablestate.Row, len(sessions))
			for i, s := range sessions {
				rows[i] = tablestate.Row{"sessionId": s.TrackingNo, "device": s.DeviceType, "dateTime": s.VisitDateTime}
			}
			return whole(rows), nil
		},
	})

	register(Report{
		Name:  "user-intent",
		Title: "User Intent",
		Columns: []tablestate.Column{
			{Key: "label", Title: "Intent"},
			{Key: "visit_pct", Title: "Visit %"},
			{Key: "event_pct", Title: "Event %"},
		},
		RowKey: "label",
		Fetch: func(ctx context.Context, a *apiclient.Analytics, q Query) (Page, error) {
			intents, err := a.UserIntent(ctx, q.Scope)
			if err != nil {
				return Page{}, err
			}
			rows := make([]tablestate.Row, len(intents))
			for i, u := range intents {
				rows[i] = tablestate.Row{
					"label":     u.Label(),
					"visit_pct": float64(u.VisitPercentage),
					"event_pct": float64(u.EventPercentage),
				}
			}
			return whole(rows), nil
		},
	})

	register(shareReport("traffic-sources", "Traffic Sources", "Source", (*apiclient.Analytics).TrafficSources))
	register(shareReport("device-breakdown", "Device Breakdown", "Device", (*apiclient.Analytics).DeviceBreakdown))

	register(Report{
		Name:  "visitors",
		Title: "Visitors",
		Columns: []tablestate.Column{
			{Key: "date", Title: "Date"},
			{Key: "visitors", Title: "Visitors"},
		},
		RowKey: "date",
		Fetch: func(ctx context.Context, a *apiclient.Analytics, q Query) (Page, error) {
			points, err := a.Visitors(ctx, q.Scope)
			if err != nil {
				return Page{}, err
			}
			rows := make([]tablestate.Row, len(points))
			for i, p := range points {
				rows[i] = tablestate.Row{"date": p.Date, "visitors": float64(p.TotalVisits)}
			}
			return whole(rows), nil
		},
	})

	register(Report{
		Name:  "page-views",
		Title: "Page Views",
		Columns: []tablestate.Column{
			{Key: "date", Title: "Date"},
			{Key: "page_views", Title: "Page Views"},
		},
		RowKey: "date",
		Fetch: func(ctx context.Context, a *apiclient.Analytics, q Query) (Page, error) {
			points, err := a.PageViews(ctx, q.Scope, apiclient.PageViewOptions{Devices: q.Devices})
			if err != nil {
				return Page{}, err
			}
			rows := make([]tablestate.Row, len(points))
			for i, p := range points {
				rows[i] = tablestate.Row{"date": p.Date, "page_views": float64(p.Views)}
			}
			return whole(rows), nil
		},
	})
}

type shareFetch func(a *apiclient.Analytics, ctx context.Context, scope apiclient.Scope) ([]apiclient.Share, error)

func shareReport(name, title, labelTitle string, fetch shareFetch) Report {
	return Report{
		Name:  name,
		Title: title,
		Columns: []tablestate.Column{
			{Key: "label", Title: labelTitle},
			{Key: "visit", Title: "Visits"},
			{Key: "percentage", Title: "Share %"},
			{Key: "color", Title: "Color", Renderer: "swatch"},
		},
		RowKey: "label",
		Fetch: func(ctx context.Context, a *apiclient.Analytics, q Query) (Page, error) {
			shares, err := fetch(a, ctx, q.Scope)
			if err != nil {
				return Page{}, err
			}
			rows := make([]tablestate.Row, len(shares))
			for i, s := range shares {
				rows[i] = tablestate.Row{
					"label":      s.Name(),
					"visit":      float64(s.Visit),
					"percentage": float64(s.Percentage),
					"color":      s.ColorCode,
				}
			}
			return whole(rows), nil
		},
	}
}

func whole(rows []tablestate.Row) Page {
	return Page{Rows: rows, TotalRecords: int64(len(rows)), TotalPages: 1}
}
