package analytics

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestPropertyColumnAllowList(t *testing.T) {
	require.True(t, ColumnPagePath.Valid())
	require.True(t, ColumnCountry.Valid())
	require.False(t, PropertyColumn("sql_injection; DROP TABLE events").Valid())
}

func TestPropertyColumnGeolocationRewritesFrom(t *testing.T) {
	from, groupBy, err := ColumnCountry.resolve()
	require.NoError(t, err)
	require.Contains(t, from, "LEFT JOIN ip_geolocations")
	require.Contains(t, groupBy, "COALESCE(ig.country, 'Unknown')")

	from, groupBy, err = ColumnPagePath.resolve()
	require.NoError(t, err)
	require.Equal(t, "events e", from)
	require.Equal(t, "e.page_path", groupBy)
}

func TestAggregationLevelExpressions(t *testing.T) {
	require.Equal(t, "COUNT(*)", LevelEvents.CountExpr())
	require.Equal(t, "COUNT(DISTINCT session_id)", LevelSessions.CountExpr())
	require.Equal(t, "COUNT(DISTINCT visitor_id)", LevelVisitors.CountExpr())

	_, ok := LevelEvents.ExtraPredicate()
	require.False(t, ok)
	pred, ok := LevelSessions.ExtraPredicate()
	require.True(t, ok)
	require.Equal(t, "session_id IS NOT NULL", pred)
}

func TestSelectBucketThresholds(t *testing.T) {
	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	require.Equal(t, "1 hour", SelectBucket(base, base.Add(12*time.Hour)))
	require.Equal(t, "1 day", SelectBucket(base, base.Add(5*24*time.Hour)))
	require.Equal(t, "1 week", SelectBucket(base, base.Add(30*24*time.Hour)))
	require.Equal(t, "1 month", SelectBucket(base, base.Add(90*24*time.Hour)))
}

func TestWhereBuilderParamIndexing(t *testing.T) {
	w := NewWhereBuilder()
	w.Eq("project_id", 7)
	w.Gte("timestamp", "2026-01-01")
	require.Equal(t, "project_id = $1 AND timestamp >= $2", w.Clause())
	require.Equal(t, []interface{}{7, "2026-01-01"}, w.Args())

	ph := w.Bind("extra")
	require.Equal(t, "$3", ph)
	require.Len(t, w.Args(), 3)
}

func TestWhereBuilderSeedOffsetsParamIndex(t *testing.T) {
	w := NewWhereBuilder("seed1", "seed2")
	w.Eq("project_id", 1)
	require.Equal(t, "project_id = $3", w.Clause())
}

func TestBuildEventsCountQueryDefaultsToCustomEventsOnly(t *testing.T) {
	req := EventsCountRequest{
		ProjectID: 1,
		Start:     time.Now(),
		End:       time.Now(),
	}
	query, args, err := BuildEventsCountQuery(req)
	require.NoError(t, err)
	require.Contains(t, query, "NOT IN ('page_view', 'page_leave', 'heartbeat')")
	require.Contains(t, query, "COALESCE(e.event_name, e.event_type)")
	require.Len(t, args, 4) // project_id, start, end, limit
}

func TestBuildEventsCountQueryWithEnvironmentAndGroupBy(t *testing.T) {
	env := 5
	falseVal := false
	req := EventsCountRequest{
		ProjectID:        1,
		EnvironmentID:    &env,
		Start:            time.Now(),
		End:              time.Now(),
		CustomEventsOnly: &falseVal,
		GroupBy:          ColumnCountry,
		Limit:            9999,
	}
	query, args, err := BuildEventsCountQuery(req)
	require.NoError(t, err)
	require.NotContains(t, query, "NOT IN ('page_view'")
	require.Contains(t, query, "ip_geolocations")
	require.Contains(t, query, "e.environment_id = $4")
	require.Len(t, args, 5) // project_id, start, end, env_id, limit
	// limit clamps to the max
	require.Equal(t, int64(maxEventsCountLimit), args[len(args)-1])
}

func TestBuildEventsCountQueryRejectsUnknownColumn(t *testing.T) {
	_, _, err := BuildEventsCountQuery(EventsCountRequest{
		GroupBy: PropertyColumn("not_a_real_column"),
	})
	require.Error(t, err)
}

func TestBuildActiveVisitorsCountQueryDefaultsWindow(t *testing.T) {
	query, args := BuildActiveVisitorsCountQuery(1, nil, 0)
	require.Contains(t, query, "make_interval(mins => $2)")
	require.Equal(t, []interface{}{1, defaultActiveWindowMinutes}, args)
}

func TestBuildActiveVisitorsCountQueryWithEnvironment(t *testing.T) {
	env := 3
	query, args := BuildActiveVisitorsCountQuery(1, &env, 15)
	require.Contains(t, query, "environment_id = $2")
	require.Equal(t, []interface{}{1, 3, 15}, args)
	require.Contains(t, query, "$3")
}

func TestBuildActiveVisitorsDetailsQueryWithLimit(t *testing.T) {
	query, args := BuildActiveVisitorsDetailsQuery(1, nil, 5, 10)
	require.Contains(t, query, "LIMIT $3")
	require.Equal(t, []interface{}{1, 5, int64(10)}, args)
}

func TestBuildActiveVisitorsDetailsQueryWithoutLimit(t *testing.T) {
	query, _ := BuildActiveVisitorsDetailsQuery(1, nil, 5, 0)
	require.NotContains(t, query, "LIMIT")
}

func TestBuildTimelineQueryGapFillsWithGenerateSeries(t *testing.T) {
	start := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	end := start.Add(6 * time.Hour)
	query, args := BuildTimelineQuery(SelectBucket(start, end), 1, nil, start, end)
	require.Contains(t, query, "generate_series")
	require.Contains(t, query, "'1 hour'::interval")
	require.Contains(t, query, "session_id IS NOT NULL")
	require.Equal(t, []interface{}{start, end, 1}, args)
}

func TestBuildGeneralStatsQueryUsesHalfOpenInterval(t *testing.T) {
	start := time.Now()
	end := start.Add(24 * time.Hour)
	query, args := BuildGeneralStatsQuery(start, end)
	require.True(t, strings.Count(query, ">= $1 AND") >= 3)
	require.Contains(t, query, "< $2")
	require.Equal(t, []interface{}{start, end}, args)
}

func TestEngineMethodsRequireDB(t *testing.T) {
	e := New(nil)
	_, err := e.GetEventsCount(context.Background(), EventsCountRequest{})
	require.Error(t, err)
	_, err = e.GetActiveVisitorsCount(context.Background(), 1, nil, 0)
	require.Error(t, err)
	_, err = e.GetGeneralStats(context.Background(), time.Now(), time.Now())
	require.Error(t, err)
}

// fakeSessionStore is an in-memory SessionStore for exercising the
// is_entry/is_exit/is_bounce derivation without a real database.
type fakeSessionStore struct {
	priorCounts map[string]int64
	bounceClear map[string]bool
	exitClear   map[string]bool
}

func newFakeSessionStore() *fakeSessionStore {
	return &fakeSessionStore{
		priorCounts: map[string]int64{},
		bounceClear: map[string]bool{},
		exitClear:   map[string]bool{},
	}
}

func (f *fakeSessionStore) PriorEventCount(_ context.Context, sessionID string) (int64, error) {
	return f.priorCounts[sessionID], nil
}

func (f *fakeSessionStore) ClearBounce(_ context.Context, sessionID string) error {
	f.bounceClear[sessionID] = true
	return nil
}

func (f *fakeSessionStore) ClearPreviousExit(_ context.Context, sessionID string) error {
	f.exitClear[sessionID] = true
	return nil
}

func TestRecordEventFirstEventIsEntryAndBounce(t *testing.T) {
	store := newFakeSessionStore()
	ev, err := RecordEvent(context.Background(), store, RecordEventRequest{
		ProjectID:   1,
		SessionID:   strPtr("sess-1"),
		EventName:   "page_view",
		RequestPath: "/home",
		EventData:   map[string]interface{}{"hostname": "example.com"},
	})
	require.NoError(t, err)
	require.True(t, ev.IsEntry)
	require.True(t, ev.IsBounce)
	require.True(t, ev.IsExit)
	require.Equal(t, "example.com", ev.Hostname)
	require.False(t, store.bounceClear["sess-1"])
	require.True(t, store.exitClear["sess-1"])
}

func TestRecordEventSecondEventClearsBounce(t *testing.T) {
	store := newFakeSessionStore()
	store.priorCounts["sess-1"] = 1

	ev, err := RecordEvent(context.Background(), store, RecordEventRequest{
		ProjectID:   1,
		SessionID:   strPtr("sess-1"),
		EventName:   "click",
		RequestPath: "/home",
	})
	require.NoError(t, err)
	require.False(t, ev.IsEntry)
	require.False(t, ev.IsBounce)
	require.True(t, store.bounceClear["sess-1"])
}

func TestRecordEventDerivesHrefFromHostnameAndPath(t *testing.T) {
	store := newFakeSessionStore()
	ev, err := RecordEvent(context.Background(), store, RecordEventRequest{
		ProjectID:   1,
		EventName:   "page_view",
		RequestPath: "/pricing",
	})
	require.NoError(t, err)
	require.Equal(t, "http://localhost/pricing", ev.Href)
}

func TestRecordEventRejectsEmptyEventName(t *testing.T) {
	store := newFakeSessionStore()
	_, err := RecordEvent(context.Background(), store, RecordEventRequest{ProjectID: 1})
	require.Error(t, err)
}

func TestRecordEventExtractsReferrerHostname(t *testing.T) {
	store := newFakeSessionStore()
	ref := "https://google.com/search?q=temps"
	ev, err := RecordEvent(context.Background(), store, RecordEventRequest{
		ProjectID:   1,
		EventName:   "page_view",
		RequestPath: "/",
		Referrer:    &ref,
	})
	require.NoError(t, err)
	require.NotNil(t, ev.ReferrerHostname)
	require.Equal(t, "google.com", *ev.ReferrerHostname)
}

func strPtr(s string) *string { return &s }
