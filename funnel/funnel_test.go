package funnel

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/temps-platform/control-plane/config"
	"github.com/temps-platform/control-plane/store"
)

func TestCustomDataFilterValidSegments(t *testing.T) {
	f := CustomDataFilter{Path: "user.plan", Value: "premium"}
	clause, ok := f.ToJSONCondition()
	require.True(t, ok)
	require.Equal(t, `event_data::jsonb->'user'->>'plan' = 'premium'`, clause)
}

func TestCustomDataFilterInvalidSegmentDropped(t *testing.T) {
	f := CustomDataFilter{Path: "user.plan; DROP TABLE events", Value: "x"}
	_, ok := f.ToJSONCondition()
	require.False(t, ok)
}

func TestCustomDataFilterEscapesQuotes(t *testing.T) {
	f := CustomDataFilter{Path: "note", Value: "it's here"}
	clause, ok := f.ToJSONCondition()
	require.True(t, ok)
	require.Contains(t, clause, "it''s here")
}

func TestEventFilterSerializeRoundTrips(t *testing.T) {
	ef := EventFilter{
		Columns: map[ColumnFilter]string{FilterPagePath: "/pricing"},
		CustomData: []CustomDataFilter{
			{Path: "user.plan", Value: "premium"},
		},
	}
	raw, err := ef.Serialize()
	require.NoError(t, err)

	var decoded map[string]interface{}
	require.NoError(t, json.Unmarshal([]byte(raw), &decoded))
	require.Equal(t, "/pricing", decoded["pathname"])
	require.Len(t, decoded["_custom_data"], 1)
}

func TestParseSerializedFilterDropsDisallowedColumn(t *testing.T) {
	raw := `{"evil_column": "x", "page_path": "/a"}`
	conditions, dropped := ParseSerializedFilter(raw)
	require.Len(t, conditions, 1)
	require.Equal(t, "page_path", conditions[0].Column)
	require.Len(t, dropped, 1)
}

func TestParseSerializedFilterHandlesCustomData(t *testing.T) {
	raw := `{"_custom_data": [{"path": "user.plan", "value": "premium"}, {"path": "bad.$egment", "value": "x"}]}`
	conditions, dropped := ParseSerializedFilter(raw)
	require.Len(t, conditions, 1)
	require.True(t, conditions[0].IsRaw)
	require.Len(t, dropped, 1)
}

func TestBuildStepQueryIncludesGlobalFilters(t *testing.T) {
	env := 3
	start := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	query, args, dropped := BuildStepQuery(StepQueryRequest{
		ProjectID:     1,
		EnvironmentID: &env,
		EventName:     "signup",
		Filter:        `{"page_path": "/signup"}`,
		Start:         &start,
	})
	require.Empty(t, dropped)
	require.Contains(t, query, "GROUP BY session_id")
	require.Contains(t, query, "page_path")
	require.Contains(t, query, "environment_id")
	require.Equal(t, []interface{}{1, "signup", "/signup", env, start}, args)
}

func TestComputeFirstStepAllSessionsQualify(t *testing.T) {
	t0 := time.Date(2026, 1, 1, 10, 0, 0, 0, time.UTC)
	steps := []StepDefinition{{Order: 0, EventName: "page_view"}}
	events := [][]SessionEvent{
		{{SessionID: "s1", Timestamp: t0}, {SessionID: "s2", Timestamp: t0.Add(time.Minute)}},
	}
	metrics := Compute(steps, events)
	require.Equal(t, 2, metrics.TotalEntries)
	require.Len(t, metrics.Steps, 1)
	require.Equal(t, 2, metrics.Steps[0].Completions)
	require.Equal(t, 100.0, metrics.OverallConversionRate)
}

func TestComputeMonotonicityDropsOutOfOrderSessions(t *testing.T) {
	t0 := time.Date(2026, 1, 1, 10, 0, 0, 0, time.UTC)
	steps := []StepDefinition{
		{Order: 0, EventName: "page_view"},
		{Order: 1, EventName: "signup"},
	}
	events := [][]SessionEvent{
		{ // step 0
			{SessionID: "s1", Timestamp: t0},
			{SessionID: "s2", Timestamp: t0.Add(10 * time.Minute)},
		},
		{ // step 1: s1 qualifies (after step 0), s2's signup is BEFORE its page_view, so it's dropped
			{SessionID: "s1", Timestamp: t0.Add(time.Minute)},
			{SessionID: "s2", Timestamp: t0},
		},
	}
	metrics := Compute(steps, events)
	require.Equal(t, 2, metrics.TotalEntries)
	require.Equal(t, 1, metrics.Steps[1].Completions)
	require.Equal(t, 50.0, metrics.Steps[1].ConversionRate)
	require.Equal(t, 50.0, metrics.Steps[1].DropOffRate)
	require.InDelta(t, 60.0, metrics.Steps[1].AverageTimeToCompleteSeconds, 0.001)
	require.Equal(t, 50.0, metrics.OverallConversionRate)
}

func TestComputeEmptySessionsYieldsZeroMetrics(t *testing.T) {
	metrics := Compute([]StepDefinition{{Order: 0, EventName: "x"}}, [][]SessionEvent{{}})
	require.Equal(t, 0, metrics.TotalEntries)
	require.Equal(t, 0.0, metrics.Steps[0].ConversionRate)
}

func TestComputeNoStepsReturnsEmpty(t *testing.T) {
	metrics := Compute(nil, nil)
	require.Equal(t, 0, metrics.TotalEntries)
	require.Empty(t, metrics.Steps)
}

func TestDryRunMatchColumnFilter(t *testing.T) {
	filter := EventFilter{Columns: map[ColumnFilter]string{FilterPagePath: "/pricing"}}
	events := []SampleEvent{
		{Columns: map[string]string{"pathname": "/pricing"}},
		{Columns: map[string]string{"pathname": "/home"}},
	}
	matched, err := DryRunMatch(filter, events)
	require.NoError(t, err)
	require.Len(t, matched, 1)
	require.Equal(t, "/pricing", matched[0].Columns["pathname"])
}

func TestDryRunMatchCustomData(t *testing.T) {
	filter := EventFilter{CustomData: []CustomDataFilter{{Path: "user.plan", Value: "premium"}}}
	events := []SampleEvent{
		{EventData: map[string]interface{}{"user": map[string]interface{}{"plan": "premium"}}},
		{EventData: map[string]interface{}{"user": map[string]interface{}{"plan": "free"}}},
		{EventData: map[string]interface{}{"other": "x"}},
	}
	matched, err := DryRunMatch(filter, events)
	require.NoError(t, err)
	require.Len(t, matched, 1)
}

func TestDryRunMatchCombinesColumnAndCustomData(t *testing.T) {
	filter := EventFilter{
		Columns:    map[ColumnFilter]string{FilterPagePath: "/checkout"},
		CustomData: []CustomDataFilter{{Path: "cart.items", Value: "3"}},
	}
	events := []SampleEvent{
		{
			Columns:   map[string]string{"pathname": "/checkout"},
			EventData: map[string]interface{}{"cart": map[string]interface{}{"items": "3"}},
		},
		{
			Columns:   map[string]string{"pathname": "/checkout"},
			EventData: map[string]interface{}{"cart": map[string]interface{}{"items": "1"}},
		},
	}
	matched, err := DryRunMatch(filter, events)
	require.NoError(t, err)
	require.Len(t, matched, 1)
}

type fakeRunner struct {
	byEventName map[string][]SessionEvent
}

func (f fakeRunner) QuerySessionEvents(_ context.Context, query string, args []interface{}) ([]SessionEvent, error) {
	// args[1] is always the event name bound by BuildStepQuery.
	name, _ := args[1].(string)
	return f.byEventName[name], nil
}

func newTestService(t *testing.T) *Service {
	t.Helper()
	dir := t.TempDir()
	st, err := store.NewSQLStore(config.Database{
		DbBackend: config.SQLiteBackend,
		SQLite:    config.SQLite{DBFile: filepath.Join(dir, "funnel.db")},
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = os.RemoveAll(dir) })
	return New(st, nil)
}

func TestServiceCreateRejectsEmptySteps(t *testing.T) {
	svc := newTestService(t)
	_, err := svc.Create(context.Background(), CreateRequest{Name: "Signup"})
	require.Error(t, err)
}

func TestServiceCreateAndComputeMetrics(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()

	f, err := svc.Create(ctx, CreateRequest{
		ProjectID: uuid.New(),
		Name:      "Signup funnel",
		Steps: []StepInput{
			{EventName: "page_view"},
			{EventName: "signup"},
		},
	})
	require.NoError(t, err)
	require.Len(t, f.Steps, 2)

	t0 := time.Date(2026, 1, 1, 10, 0, 0, 0, time.UTC)
	runner := fakeRunner{byEventName: map[string][]SessionEvent{
		"page_view": {{SessionID: "s1", Timestamp: t0}},
		"signup":    {{SessionID: "s1", Timestamp: t0.Add(time.Minute)}},
	}}

	metrics, err := svc.computeMetricsWith(ctx, MetricsRequest{FunnelID: f.ID, ProjectID: 1}, runner)
	require.NoError(t, err)
	require.Equal(t, 1, metrics.TotalEntries)
	require.Equal(t, 1, metrics.Steps[1].Completions)
	require.Equal(t, 100.0, metrics.OverallConversionRate)
}
