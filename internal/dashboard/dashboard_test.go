package dashboard

import (
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xshift007/lab3-distri/internal/logger"
)

const summaryBody = `{"type":"window_summary","window_start_iso":"2025-01-15T10:00:00Z",` +
	`"window_end_iso":"2025-01-15T10:00:05Z","total_processed":3,` +
	`"stats_by_region":{"norte":{"security.incident":3}}}`

func get(t *testing.T, handler http.Handler, path string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, path, nil)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	return rec
}

func TestData_PlaceholderBeforeFirstWindow(t *testing.T) {
	logger.Init()
	router := NewRouter(&Snapshot{}, logger.For("dashboard"))

	rec := get(t, router, "/data")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))
	assert.JSONEq(t, `{"status":"waiting","last_update":null,"stats_by_region":{}}`, rec.Body.String())
}

func TestData_ServesLatestSummaryVerbatim(t *testing.T) {
	logger.Init()
	snap := &Snapshot{}
	router := NewRouter(snap, logger.For("dashboard"))

	c := &Consumer{snap: snap, log: logger.For("dashboard")}
	c.handleBody([]byte(summaryBody))

	rec := get(t, router, "/data")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, summaryBody, rec.Body.String())
}

func TestHandleBody_IgnoresNonSummaryMessages(t *testing.T) {
	logger.Init()
	snap := &Snapshot{}
	c := &Consumer{snap: snap, log: logger.For("dashboard")}

	c.handleBody([]byte(`{"metric_id":"x","date":"2025-01-15","region":"norte"}`))
	_, ok := snap.Load()
	assert.False(t, ok, "metrics on the shared exchange must not clobber the snapshot")

	c.handleBody([]byte("not json"))
	_, ok = snap.Load()
	assert.False(t, ok)
}

func TestHandleBody_LastWriterWins(t *testing.T) {
	logger.Init()
	snap := &Snapshot{}
	c := &Consumer{snap: snap, log: logger.For("dashboard")}

	c.handleBody([]byte(`{"type":"window_summary","total_processed":1,"stats_by_region":{}}`))
	c.handleBody([]byte(`{"type":"window_summary","total_processed":2,"stats_by_region":{}}`))

	body, ok := snap.Load()
	require.True(t, ok)
	assert.Contains(t, string(body), `"total_processed":2`)
}

func TestIndex_ServesHTML(t *testing.T) {
	logger.Init()
	router := NewRouter(&Snapshot{}, logger.For("dashboard"))

	rec := get(t, router, "/")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Header().Get("Content-Type"), "text/html")
	assert.Contains(t, rec.Body.String(), "Latest Window")
}

func TestSnapshot_ConcurrentAccess(t *testing.T) {
	snap := &Snapshot{}

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(2)
		go func() {
			defer wg.Done()
			snap.Store([]byte(summaryBody))
		}()
		go func() {
			defer wg.Done()
			snap.Load()
		}()
	}
	wg.Wait()

	body, ok := snap.Load()
	require.True(t, ok)
	assert.JSONEq(t, summaryBody, string(body))
}
