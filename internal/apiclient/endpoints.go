package apiclient

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"strings"
)

// Website-analytics endpoints.
const (
	PathSummaryStats       = "/api/v1/web/analytics/main-dashboard"
	PathVisitors           = "/api/v1/web/analytics/daywise-traffic-overview"
	PathPageViews          = "/api/v1/web/analytics/page-views-over-time"
	PathTopPages           = "/api/v1/web/analytics/top-pages"
	PathTrafficSources     = "/api/v1/web/analytics/traffic-sources"
	PathDeviceBreakdown    = "/api/v1/web/analytics/device-breakdown"
	PathDeadLinks          = "/api/v1/web/analytics/dead-links"
	PathUserIntent         = "/api/v1/web/analytics/user-intent"
	PathEngagementSessions = "/api/v1/web/analytics/engagement-sessions"
)

// Scope is the date range and package every report is filtered by. Dates are
// passed through as the caller formatted them (YYYY-MM-DD).
type Scope struct {
	StartDate   string `json:"startDate"`
	EndDate     string `json:"endDate"`
	PackageName string `json:"package_name"`
}

// Params renders the scope as a request payload; empty fields are omitted.
func (s Scope) Params() map[string]any {
	p := map[string]any{}
	if s.StartDate != "" {
		p["startDate"] = s.StartDate
	}
	if s.EndDate != "" {
		p["endDate"] = s.EndDate
	}
	if s.PackageName != "" {
		p["package_name"] = s.PackageName
	}
	return p
}

// Number accepts a JSON number or a numeric string. The API is not consistent
// about which one it sends for counts and percentages.
type Number float64

func (n *Number) UnmarshalJSON(data []byte) error {
	raw := strings.TrimSpace(string(data))
	if raw == "null" || raw == `""` {
		*n = 0
		return nil
	}
	raw = strings.Trim(raw, `"`)
	raw = strings.TrimSuffix(raw, "%")
	v, err := strconv.ParseFloat(strings.TrimSpace(raw), 64)
	if err != nil {
		return fmt.Errorf("parse number %s: %w", data, err)
	}
	*n = Number(v)
	return nil
}

// SummaryStats are the headline cards of the summary page.
type SummaryStats struct {
	TotalSessions     Number `json:"totalSessions"`
	UniqueVisitors    Number `json:"uniqueVisitors"`
	PageViews         Number `json:"pageViews"`
	DeadLinksDetected Number `json:"deadLinksDetected"`
}

// DailyVisitors is one point of the traffic overview.
type DailyVisitors struct {
	Date        string `json:"date"`
	TotalVisits Number `json:"totalVisits"`
}

// DailyPageViews is one point of the page views series.
type DailyPageViews struct {
	Date  string `json:"date"`
	Views Number `json:"views"`
}

// TopPage is a row of the top pages report.
type TopPage struct {
	PageName  string `json:"page_name"`
	Views     Number `json:"views"`
	PageViews Number `json:"pageViews"`
	Visit     Number `json:"visit"`
}

// Count returns the first non-zero of the view counters the API may send.
func (p TopPage) Count() float64 {
	for _, v := range []Number{p.Views, p.PageViews, p.Visit} {
		if v != 0 {
			return float64(v)
		}
	}
	return 0
}

// Share is a slice of a traffic-source or device breakdown.
type Share struct {
	Source     string `json:"source"`
	Label      string `json:"label"`
	ColorCode  string `json:"colorCode"`
	Visit      Number `json:"visit"`
	Percentage Number `json:"percentage"`
}

// Name returns the display label, falling back to "Unknown".
func (s Share) Name() string {
	switch {
	case s.Source != "":
		return s.Source
	case s.Label != "":
		return s.Label
	default:
		return "Unknown"
	}
}

// DeadLink is a broken link found by the crawler. Both camelCase and
// snake_case spellings are accepted.
type DeadLink struct {
	ID           string `json:"id"`
	SiteDomain   string `json:"site_domain"`
	Referrer     string `json:"referrer"`
	URL          string `json:"url"`
	HTTPCode     string `json:"httpCode"`
	ErrorMessage string `json:"error_message"`
	IsBroken     bool   `json:"isBroken"`
	DetectedAt   string `json:"detectedAt"`
	LastChecked  string `json:"lastChecked"`
	PackageName  string `json:"package_name"`
}

func (d *DeadLink) UnmarshalJSON(data []byte) error {
	var raw map[string]any
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	pick := func(keys ...string) any {
		for _, k := range keys {
			if v, ok := raw[k]; ok && v != nil {
				return v
			}
		}
		return nil
	}
	text := func(keys ...string) string {
		switch v := pick(keys...).(type) {
		case nil:
			return ""
		case string:
			return v
		case float64:
			return strconv.FormatFloat(v, 'f', -1, 64)
		default:
			return fmt.Sprint(v)
		}
	}

	*d = DeadLink{
		ID:           text("id"),
		SiteDomain:   text("site_domain"),
		Referrer:     text("referrer"),
		URL:          text("url"),
		HTTPCode:     text("httpCode", "http_code"),
		ErrorMessage: text("error_message"),
		DetectedAt:   text("detectedAt", "detected_at"),
		LastChecked:  text("lastChecked", "last_checked"),
		PackageName:  text("package_name"),
	}
	switch v := pick("isBroken", "is_broken").(type) {
	case bool:
		d.IsBroken = v
	case string:
		d.IsBroken, _ = strconv.ParseBool(v)
	case float64:
		d.IsBroken = v != 0
	}
	return nil
}

// Row flattens the link into table cells keyed by column key.
func (d DeadLink) Row() map[string]any {
	return map[string]any{
		"id":            d.ID,
		"site_domain":   d.SiteDomain,
		"referrer":      d.Referrer,
		"url":           d.URL,
		"httpCode":      d.HTTPCode,
		"error_message": d.ErrorMessage,
		"isBroken":      d.IsBroken,
		"detectedAt":    d.DetectedAt,
		"lastChecked":   d.LastChecked,
		"package_name":  d.PackageName,
	}
}

// DeadLinksPagination is the server-side paging block of the dead links report.
type DeadLinksPagination struct {
	Total int64 `json:"total"`
	Page  int   `json:"page"`
	Limit int   `json:"limit"`
	Pages int   `json:"pages"`
}

// DeadLinksPage is one page of dead links.
type DeadLinksPage struct {
	Links      []DeadLink          `json:"links"`
	Pagination DeadLinksPagination `json:"pagination"`
}

// UserIntent is the visit and event share of one intent bucket
// (High_Intent, Medium_Intent, Low_Intent).
type UserIntent struct {
	IntentStatus    string `json:"intent_status"`
	VisitPercentage Number `json:"visit_percentage"`
	EventPercentage Number `json:"event_percentage"`
}

// Label renders "High_Intent" as "High Intent".
func (u UserIntent) Label() string {
	return strings.Replace(u.IntentStatus, "_", " ", 1)
}

// EngagementSession is a recorded visitor session.
type EngagementSession struct {
	TrackingNo    string `json:"trackingNo"`
	DeviceType    string `json:"deviceType"`
	VisitDateTime string `json:"visitDateTime"`
}

type envelope[T any] struct {
	Data T `json:"data"`
}

// SummaryOptions are the extra filters of the summary cards and top pages.
type SummaryOptions struct {
	IncludeBots bool
}

// PageViewOptions filter the page views series by device. An empty Devices
// slice means all devices.
type PageViewOptions struct {
	Devices []string
}

func get[T any](ctx context.Context, d Doer, path string, params map[string]any) (T, error) {
	var env envelope[T]
	if err := d.Do(ctx, http.MethodGet, path, params, &env); err != nil {
		var zero T
		return zero, err
	}
	return env.Data, nil
}

// Analytics is the typed view of the website-analytics endpoints.
type Analytics struct {
	d Doer
}

// NewAnalytics wraps any Doer, usually a *Client.
func NewAnalytics(d Doer) *Analytics {
	return &Analytics{d: d}
}

func (a *Analytics) SummaryStats(ctx context.Context, scope Scope, opts SummaryOptions) (SummaryStats, error) {
	p := scope.Params()
	p["includeBots"] = opts.IncludeBots
	return get[SummaryStats](ctx, a.d, PathSummaryStats, p)
}

func (a *Analytics) Visitors(ctx context.Context, scope Scope) ([]DailyVisitors, error) {
	return get[[]DailyVisitors](ctx, a.d, PathVisitors, scope.Params())
}

func (a *Analytics) PageViews(ctx context.Context, scope Scope, opts PageViewOptions) ([]DailyPageViews, error) {
	p := scope.Params()
	p["deviceType"] = deviceParam(opts.Devices)
	return get[[]DailyPageViews](ctx, a.d, PathPageViews, p)
}

func (a *Analytics) TopPages(ctx context.Context, scope Scope, opts SummaryOptions) ([]TopPage, error) {
	p := scope.Params()
	p["includeBots"] = opts.IncludeBots
	return get[[]TopPage](ctx, a.d, PathTopPages, p)
}

func (a *Analytics) TrafficSources(ctx context.Context, scope Scope) ([]Share, error) {
	return get[[]Share](ctx, a.d, PathTrafficSources, scope.Params())
}

func (a *Analytics) DeviceBreakdown(ctx context.Context, scope Scope) ([]Share, error) {
	return get[[]Share](ctx, a.d, PathDeviceBreakdown, scope.Params())
}

// DeadLinks fetches one server-side page of dead links.
func (a *Analytics) DeadLinks(ctx context.Context, scope Scope, page, limit int) (DeadLinksPage, error) {
	p := scope.Params()
	if page < 1 {
		page = 1
	}
	if limit < 1 {
		limit = 10
	}
	p["page"] = page
	p["limit"] = limit
	return get[DeadLinksPage](ctx, a.d, PathDeadLinks, p)
}

func (a *Analytics) UserIntent(ctx context.Context, scope Scope) ([]UserIntent, error) {
	return get[[]UserIntent](ctx, a.d, PathUserIntent, scope.Params())
}

func (a *Analytics) EngagementSessions(ctx context.Context, scope Scope) ([]EngagementSession, error) {
	sessions, err := get[[]EngagementSession](ctx, a.d, PathEngagementSessions, scope.Params())
	if err != nil {
		return nil, err
	}
	for i := range sessions {
		if sessions[i].TrackingNo == "" {
			sessions[i].TrackingNo = fmt.Sprintf("SESSION-%d", i+1)
		}
		if sessions[i].DeviceType == "" {
			sessions[i].DeviceType = "Unknown"
		}
	}
	return sessions, nil
}

// deviceParam sends "all" when no device filter is active, otherwise the
// lower-cased device names.
func deviceParam(devices []string) string {
	if len(devices) == 0 {
		return "all"
	}
	out := make([]string, len(devices))
	for i, d := range devices {
		out[i] = strings.ToLower(d)
	}
	return strings.Join(out, ",")
}
