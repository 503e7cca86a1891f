package audit

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xshift007/lab3-distri/internal/domain"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	store, err := Open(filepath.Join(t.TempDir(), "audit.db"))
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	return store
}

func testEvent(id string) StoredEvent {
	return StoredEvent{
		EventID:     id,
		Timestamp:   "2025-01-15T10:30:00Z",
		Region:      "norte",
		Source:      "security.incident",
		PayloadJSON: `{"crime_type":"robbery"}`,
		RunID:       "default",
	}
}

func countRows(t *testing.T, store *Store, table string) int {
	t.Helper()
	var n int
	require.NoError(t, store.db.QueryRow("SELECT COUNT(*) FROM "+table).Scan(&n))
	return n
}

func TestInsertEvent_Idempotent(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	ev := testEvent("550e8400-e29b-41d4-a716-446655440000")
	require.NoError(t, store.InsertEvent(ctx, ev))

	// Redelivery of the same event must be a no-op, not an error.
	ev.Region = "sur"
	require.NoError(t, store.InsertEvent(ctx, ev))

	assert.Equal(t, 1, countRows(t, store, "events_in"))

	var region string
	require.NoError(t, store.db.QueryRow(
		"SELECT region FROM events_in WHERE event_id = ?", ev.EventID).Scan(&region))
	assert.Equal(t, "norte", region, "first write wins")
}

func TestInsertMetric_ReplaceOverwrites(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	m := domain.Metric{
		MetricID: "00000000-0000-4000-8000-000000000001",
		Date:     "2025-01-15",
		Region:   "norte",
		RunID:    "default",
	}
	require.NoError(t, store.InsertMetric(ctx, m, `{"security.incident":3}`))
	require.NoError(t, store.InsertMetric(ctx, m, `{"security.incident":5}`))

	assert.Equal(t, 1, countRows(t, store, "metrics_out"))

	var metricsJSON string
	require.NoError(t, store.db.QueryRow(
		"SELECT metrics_json FROM metrics_out WHERE metric_id = ?", m.MetricID).Scan(&metricsJSON))
	assert.Equal(t, `{"security.incident":5}`, metricsJSON, "resend replaces the row")
}

func TestInsertMetric_WritesLineage(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	ids := []string{
		"550e8400-e29b-41d4-a716-446655440000",
		"550e8400-e29b-41d4-a716-446655440001",
	}
	for _, id := range ids {
		require.NoError(t, store.InsertEvent(ctx, testEvent(id)))
	}

	m := domain.Metric{
		MetricID:      "00000000-0000-4000-8000-000000000001",
		Date:          "2025-01-15",
		Region:        "norte",
		RunID:         "default",
		InputEventIDs: ids,
	}
	require.NoError(t, store.InsertMetric(ctx, m, `{"security.incident":2}`))
	// Redelivery must not duplicate trace rows.
	require.NoError(t, store.InsertMetric(ctx, m, `{"security.incident":2}`))

	assert.Equal(t, 2, countRows(t, store, "trace"))

	var contribution string
	require.NoError(t, store.db.QueryRow(
		"SELECT contribution_type FROM trace WHERE event_id = ? AND metric_id = ?",
		ids[0], m.MetricID).Scan(&contribution))
	assert.Equal(t, "window_member", contribution)
}

func TestInsertMetric_UnknownEventRollsBack(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	m := domain.Metric{
		MetricID:      "00000000-0000-4000-8000-000000000001",
		Date:          "2025-01-15",
		Region:        "norte",
		RunID:         "default",
		InputEventIDs: []string{"550e8400-e29b-41d4-a716-446655440099"},
	}
	err := store.InsertMetric(ctx, m, `{"security.incident":1}`)
	require.Error(t, err, "lineage referencing an unstored event must fail")
	assert.True(t, domain.IsRetryable(err))

	// The whole transaction rolls back: no orphan metric row either.
	assert.Equal(t, 0, countRows(t, store, "metrics_out"))
	assert.Equal(t, 0, countRows(t, store, "trace"))
}

func TestInsertMetric_SucceedsOnceEventArrives(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	eventID := "550e8400-e29b-41d4-a716-446655440000"
	m := domain.Metric{
		MetricID:      "00000000-0000-4000-8000-000000000001",
		Date:          "2025-01-15",
		Region:        "norte",
		RunID:         "default",
		InputEventIDs: []string{eventID},
	}
	require.Error(t, store.InsertMetric(ctx, m, `{"security.incident":1}`))

	// The event writer catches up; the broker redelivers the metric.
	require.NoError(t, store.InsertEvent(ctx, testEvent(eventID)))
	require.NoError(t, store.InsertMetric(ctx, m, `{"security.incident":1}`))

	assert.Equal(t, 1, countRows(t, store, "metrics_out"))
	assert.Equal(t, 1, countRows(t, store, "trace"))
}

func TestOpen_SchemaIsIdempotent(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "audit.db")

	store, err := Open(path)
	require.NoError(t, err)
	require.NoError(t, store.InsertEvent(context.Background(),
		testEvent("550e8400-e29b-41d4-a716-446655440000")))
	require.NoError(t, store.Close())

	// Reopening an existing database keeps its rows.
	store, err = Open(path)
	require.NoError(t, err)
	defer store.Close()
	assert.Equal(t, 1, countRows(t, store, "events_in"))
}
