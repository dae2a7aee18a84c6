package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/seuros/mfdash/internal/apiclient"
	"github.com/seuros/mfdash/internal/config"
	"github.com/seuros/mfdash/internal/prefs"
	"github.com/seuros/mfdash/internal/reports"
	"github.com/seuros/mfdash/internal/tablestate"
)

func analyticsServer(t *testing.T, h http.HandlerFunc) *apiclient.Analytics {
	t.Helper()
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)
	c, err := apiclient.New(srv.URL, apiclient.WithRetries(0))
	require.NoError(t, err)
	return apiclient.NewAnalytics(c)
}

func TestOutputReportsTable(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, outputReports(&buf, "table"))

	out := buf.String()
	assert.Contains(t, out, "NAME")
	assert.Contains(t, out, "dead-links")
	assert.Contains(t, out, "server")
	assert.Contains(t, out, "page_name,views")
}

func TestOutputReportsJSON(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, outputReports(&buf, "json"))

	var out []reportOutput
	require.NoError(t, json.Unmarshal(buf.Bytes(), &out))
	assert.Len(t, out, len(reports.Names()))
	assert.Equal(t, "dead-links", out[0].Name)
	assert.True(t, out[0].ServerPaged)

	assert.Error(t, outputReports(&buf, "yaml"))
}

func TestParseSort(t *testing.T) {
	tests := []struct {
		in  string
		key string
		dir tablestate.Direction
	}{
		{"views", "views", tablestate.Asc},
		{"views:desc", "views", tablestate.Desc},
		{"views:DESC", "views", tablestate.Desc},
		{" page_name:asc ", "page_name", tablestate.Asc},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			key, dir := parseSort(tt.in)
			assert.Equal(t, tt.key, key)
			assert.Equal(t, tt.dir, dir)
		})
	}
}

func TestExportPath(t *testing.T) {
	dir := t.TempDir()
	now := time.Date(2026, 10, 18, 9, 5, 0, 0, time.UTC)

	assert.Equal(t, filepath.Join(dir, "top-pages_20261018_090500.csv"), exportPath(dir, "top-pages", now))
	assert.Equal(t, filepath.Join(dir, "out.csv"), exportPath(filepath.Join(dir, "out.csv"), "top-pages", now))
}

func TestExportReportSortsClientPagedReports(t *testing.T) {
	a := analyticsServer(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, apiclient.PathTopPages, r.URL.Path)
		assert.Equal(t, "shop", r.URL.Query().Get("package_name"))
		_, _ = w.Write([]byte(`{"data":[
			{"page_name":"/a","views":5},
			{"page_name":"/b","views":50},
			{"page_name":"/c","views":7}
		]}`))
	})

	var buf bytes.Buffer
	q := reports.Query{Scope: apiclient.Scope{PackageName: "shop"}}
	require.NoError(t, exportReport(context.Background(), a, "top-pages", q, "views:desc", 2, &buf))
	assert.Equal(t, "\"Page\",\"Views\"\r\n\"/b\",\"50\"\r\n\"/c\",\"7\"\r\n\"/a\",\"5\"\r\n", buf.String())
}

func TestExportReportWalksServerPages(t *testing.T) {
	var (
		mu    sync.Mutex
		pages []string
	)
	a := analyticsServer(t, func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		mu.Lock()
		pages = append(pages, q.Get("page"))
		mu.Unlock()
		_, _ = w.Write([]byte(`{"data":{"links":[{"id":` + q.Get("page") + `,"url":"u` + q.Get("page") + `"}],
			"pagination":{"total":3,"page":` + q.Get("page") + `,"limit":1,"pages":3}}}`))
	})

	var buf bytes.Buffer
	require.NoError(t, exportReport(context.Background(), a, "dead-links", reports.Query{}, "", 1, &buf))

	lines := bytes.Split(bytes.TrimSpace(buf.Bytes()), []byte("\r\n"))
	require.Len(t, lines, 4)
	assert.Contains(t, string(lines[1]), `"1"`)
	assert.Contains(t, string(lines[3]), `"u3"`)
	assert.Equal(t, []string{"1", "2", "3"}, pages)
}

func TestExportReportSortsAcrossServerPages(t *testing.T) {
	urls := map[string]string{"1": "b", "2": "c", "3": "a"}
	a := analyticsServer(t, func(w http.ResponseWriter, r *http.Request) {
		page := r.URL.Query().Get("page")
		_, _ = w.Write([]byte(`{"data":{"links":[{"id":` + page + `,"url":"` + urls[page] + `"}],
			"pagination":{"total":3,"page":` + page + `,"limit":1,"pages":3}}}`))
	})

	var buf bytes.Buffer
	require.NoError(t, exportReport(context.Background(), a, "dead-links", reports.Query{}, "url:desc", 1, &buf))

	lines := bytes.Split(bytes.TrimSpace(buf.Bytes()), []byte("\r\n"))
	require.Len(t, lines, 4)
	assert.True(t, bytes.HasPrefix(lines[1], []byte(`"2","","","c"`)))
	assert.True(t, bytes.HasPrefix(lines[2], []byte(`"1","","","b"`)))
	assert.True(t, bytes.HasPrefix(lines[3], []byte(`"3","","","a"`)))
}

func TestExportReportErrors(t *testing.T) {
	a := analyticsServer(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	})

	err := exportReport(context.Background(), a, "nope", reports.Query{}, "", 10, &bytes.Buffer{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "available: dead-links")

	err = exportReport(context.Background(), a, "visitors", reports.Query{}, "", 10, &bytes.Buffer{})
	assert.True(t, apiclient.IsUnauthorized(err))
}

func TestExportCommandRequiresAPI(t *testing.T) {
	isolateConfig(t)

	_, _, err := runCLI(t, "", "export", "top-pages")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no analytics API configured")
}

func TestMaskToken(t *testing.T) {
	assert.Equal(t, "***", maskToken("abc"))
	assert.Equal(t, "********6789", maskToken("eyJ0123456789"))
}

func TestPrefsCommands(t *testing.T) {
	dir := isolateConfig(t)

	out, _, err := runCLI(t, "", "prefs", "set", "ui.theme", "dark")
	require.NoError(t, err)
	assert.Contains(t, out, "Stored ui.theme")

	out, _, err = runCLI(t, "", "prefs", "get", "ui.theme")
	require.NoError(t, err)
	assert.Equal(t, "dark\n", out)

	_, _, err = runCLI(t, "tok-0123456789\n", "prefs", "set", prefs.TokenKey)
	require.NoError(t, err)
	out, _, err = runCLI(t, "", "prefs", "get", prefs.TokenKey)
	require.NoError(t, err)
	assert.Equal(t, "********6789\n", out)

	_, err = os.Stat(filepath.Join(dir, "prefs.toml"))
	require.NoError(t, err, "file backend writes under DATA_DIR")

	_, _, err = runCLI(t, "", "prefs", "delete", "ui.theme")
	require.NoError(t, err)
	_, _, err = runCLI(t, "", "prefs", "get", "ui.theme")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not set")
}

func TestPrefsCommandValidation(t *testing.T) {
	isolateConfig(t)

	_, _, err := runCLI(t, "", "prefs", "get", ".bad")
	assert.ErrorIs(t, err, prefs.ErrInvalidKey)

	_, _, err = runCLI(t, "\n", "prefs", "set", "ui.theme")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "empty")
}

func TestMigrateRequiresDatabaseURL(t *testing.T) {
	isolateConfig(t)

	_, _, err := runCLI(t, "", "migrate", "status")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "DATABASE_URL")
}

func TestCheckPreferenceStore(t *testing.T) {
	store := prefs.NewMemoryStore()
	res := checkPreferenceStore(context.Background(), store, "memory")
	assert.True(t, res.Pass)
	assert.Equal(t, "memory", res.Details)

	_, found, err := store.Get(context.Background(), "doctor.check")
	require.NoError(t, err)
	assert.False(t, found, "scratch key is cleaned up")
}

func stubMigrationVersion(t *testing.T, version uint, dirty bool, err error) {
	t.Helper()
	original := migrationVersion
	migrationVersion = func(string) (uint, bool, error) { return version, dirty, err }
	t.Cleanup(func() {
		migrationVersion = original
	})
}

func TestCheckMigrations(t *testing.T) {
	cfg := &config.Config{DatabaseURL: "postgres://example"}

	stubMigrationVersion(t, 1, false, nil)
	assert.True(t, checkMigrations(cfg).Pass)

	stubMigrationVersion(t, 0, false, nil)
	res := checkMigrations(cfg)
	assert.False(t, res.Pass)
	assert.Contains(t, res.Error, "expected 1")

	stubMigrationVersion(t, 1, true, nil)
	assert.Contains(t, checkMigrations(cfg).Error, "dirty")

	stubMigrationVersion(t, 0, false, errors.New("no route"))
	assert.Contains(t, checkMigrations(cfg).Suggestion, "mfdash migrate up")
}

func TestCheckTables(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	mock.ExpectQuery("SELECT table_name").
		WithArgs(sqlmock.AnyArg()).
		WillReturnRows(sqlmock.NewRows([]string{"table_name"}).AddRow("preferences"))
	assert.True(t, checkTables(context.Background(), db).Pass)

	mock.ExpectQuery("SELECT table_name").
		WithArgs(sqlmock.AnyArg()).
		WillReturnRows(sqlmock.NewRows([]string{"table_name"}))
	res := checkTables(context.Background(), db)
	assert.False(t, res.Pass)
	assert.Contains(t, res.Error, "preferences")

	require.NoError(t, mock.ExpectationsWereMet())
}

func TestCheckAnalyticsAPI(t *testing.T) {
	ok := analyticsServer(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"data":{"totalSessions":3}}`))
	})
	assert.True(t, checkAnalyticsAPI(context.Background(), ok).Pass)

	denied := analyticsServer(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	})
	res := checkAnalyticsAPI(context.Background(), denied)
	assert.False(t, res.Pass)
	assert.Equal(t, "token rejected", res.Error)
	assert.Contains(t, res.Suggestion, prefs.TokenKey)
}

func TestDoctorOutput(t *testing.T) {
	results := []CheckResult{
		{Name: "Data Directory Writable", Pass: true, Details: "./data"},
		{Name: "Analytics API", Pass: false, Error: "token rejected", Suggestion: "store a token"},
	}

	var human bytes.Buffer
	outputDoctorHuman(&human, results)
	assert.Contains(t, human.String(), "✓ Data Directory Writable (./data)")
	assert.Contains(t, human.String(), "Error: token rejected")
	assert.Contains(t, human.String(), "1/2 checks passed")

	var raw bytes.Buffer
	outputDoctorJSON(&raw, results)
	var decoded []CheckResult
	require.NoError(t, json.Unmarshal(raw.Bytes(), &decoded))
	assert.Equal(t, results, decoded)
}

func TestDoctorCommandWithLocalBackends(t *testing.T) {
	isolateConfig(t)

	out, _, err := runCLI(t, "", "doctor", "--json")
	require.NoError(t, err)

	var results []CheckResult
	require.NoError(t, json.Unmarshal([]byte(out), &results))
	require.Len(t, results, 2)
	assert.Equal(t, "Data Directory Writable", results[0].Name)
	assert.Equal(t, "Preference Store", results[1].Name)
	assert.True(t, results[1].Pass)
}
