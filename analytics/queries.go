// Copyright 2025 Cloudbase Solutions SRL
//
//    Licensed under the Apache License, Version 2.0 (the "License"); you may
//    not use this file except in compliance with the License. You may obtain
//    a copy of the License at
//
//         http://www.apache.org/licenses/LICENSE-2.0
//
//    Unless required by applicable law or agreed to in writing, software
//    distributed under the License is distributed on an "AS IS" BASIS, WITHOUT
//    WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied. See the
//    License for the specific language governing permissions and limitations
//    under the License.

package analytics

import (
	"context"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	ctlerrors "github.com/temps-platform/control-plane/errors"
)

// Engine runs analytics queries against the analytic database. A nil DB is
// valid: every Build* method works standalone for SQL-generation tests, and
// the Get* wrappers only dereference db when actually asked to run a query.
type Engine struct {
	db *sqlx.DB
}

// New builds an Engine bound to the analytic database connection. db may be
// nil in tests that only exercise query builders.
func New(db *sqlx.DB) *Engine {
	return &Engine{db: db}
}

func (e *Engine) requireDB(op string) error {
	if e.db == nil {
		return &ctlerrors.AnalyticsError{Op: op, Reason: "no analytic database connection configured"}
	}
	return nil
}

// EventsCountRequest parameterizes GetEventsCount.
type EventsCountRequest struct {
	ProjectID        int
	EnvironmentID    *int
	Start            time.Time
	End              time.Time
	CustomEventsOnly *bool
	GroupBy          PropertyColumn
	Limit            int
}

// EventCount is one row of a GetEventsCount result: a breakdown bucket, its
// raw count, and its share of the total.
type EventCount struct {
	Name       string  `db:"event_name"`
	Count      int64   `db:"count"`
	Percentage float64 `db:"percentage"`
}

const maxEventsCountLimit = 100

// BuildEventsCountQuery assembles the parameterized SQL for an events-count
// breakdown: a per-bucket COUNT CTE, a total CTE, and a cross join that
// computes each bucket's percentage of the total. groupBy defaults to
// COALESCE(event_name, event_type) when req.GroupBy is empty; otherwise it
// must be on the PropertyColumn allow-list.
func BuildEventsCountQuery(req EventsCountRequest) (string, []interface{}, error) {
	groupBy := req.GroupBy
	from := "events e"
	var groupExpr string
	if groupBy == "" {
		groupExpr = "COALESCE(e.event_name, e.event_type)"
	} else {
		var err error
		from, groupExpr, err = groupBy.resolve()
		if err != nil {
			return "", nil, err
		}
	}

	w := NewWhereBuilder()
	w.Eq("e.project_id", req.ProjectID)
	w.Gte("e.timestamp", req.Start)
	w.Lte("e.timestamp", req.End)
	w.Raw("e.event_name IS NOT NULL")

	customOnly := true
	if req.CustomEventsOnly != nil {
		customOnly = *req.CustomEventsOnly
	}
	if customOnly {
		w.Raw(CustomEventsOnlyPredicate())
	}
	w.EqIfNotNil("e.environment_id", req.EnvironmentID)

	limit := req.Limit
	if limit <= 0 {
		limit = 20
	}
	if limit > maxEventsCountLimit {
		limit = maxEventsCountLimit
	}
	limitPH := w.Bind(int64(limit))

	query := fmt.Sprintf(`
WITH event_counts AS (
	SELECT
		%s AS event_name,
		COUNT(*) AS count
	FROM %s
	WHERE %s
	GROUP BY %s
),
total AS (
	SELECT SUM(count) AS total_count FROM event_counts
)
SELECT
	ec.event_name,
	ec.count,
	CASE WHEN t.total_count > 0
		THEN (ec.count::float / t.total_count::float * 100)
		ELSE 0 END AS percentage
FROM event_counts ec
CROSS JOIN total t
ORDER BY ec.count DESC
LIMIT %s`, groupExpr, from, w.Clause(), groupExpr, limitPH)

	return query, w.Args(), nil
}

// GetEventsCount runs BuildEventsCountQuery and decodes the result.
func (e *Engine) GetEventsCount(ctx context.Context, req EventsCountRequest) ([]EventCount, error) {
	if err := e.requireDB("get_events_count"); err != nil {
		return nil, err
	}
	query, args, err := BuildEventsCountQuery(req)
	if err != nil {
		return nil, err
	}
	var out []EventCount
	if err := e.db.SelectContext(ctx, &out, e.db.Rebind(query), args...); err != nil {
		return nil, &ctlerrors.AnalyticsError{Op: "get_events_count", Reason: err.Error()}
	}
	return out, nil
}

// ActiveVisitor is one session's activity summary within the active window.
type ActiveVisitor struct {
	SessionID       string    `db:"session_id"`
	VisitorID       *string   `db:"visitor_id"`
	SessionStart    time.Time `db:"session_start"`
	LastActivity    time.Time `db:"last_activity"`
	PageCount       int64     `db:"page_count"`
	EventCount      int64     `db:"event_count"`
	CurrentPage     *string   `db:"current_page"`
	DurationSeconds float64   `db:"duration_seconds"`
}

const defaultActiveWindowMinutes = 5

// BuildActiveVisitorsCountQuery counts distinct sessions with any event in
// the last windowMinutes minutes (default 5). The window is bound as an
// integer through make_interval rather than spliced into an INTERVAL
// literal, since it is caller-supplied and not one of the four fixed
// interval literals the composition rules permit as literal SQL.
func BuildActiveVisitorsCountQuery(projectID int, environmentID *int, windowMinutes int) (string, []interface{}) {
	if windowMinutes <= 0 {
		windowMinutes = defaultActiveWindowMinutes
	}
	w := NewWhereBuilder()
	w.Eq("project_id", projectID)
	w.EqIfNotNil("environment_id", environmentID)
	windowPH := w.Bind(windowMinutes)

	query := fmt.Sprintf(`
SELECT COUNT(DISTINCT session_id) AS active_visitors
FROM events
WHERE %s
  AND timestamp >= NOW() - make_interval(mins => %s)`, w.Clause(), windowPH)
	return query, w.Args()
}

// GetActiveVisitorsCount runs BuildActiveVisitorsCountQuery.
func (e *Engine) GetActiveVisitorsCount(ctx context.Context, projectID int, environmentID *int, windowMinutes int) (int64, error) {
	if err := e.requireDB("get_active_visitors_count"); err != nil {
		return 0, err
	}
	query, args := BuildActiveVisitorsCountQuery(projectID, environmentID, windowMinutes)
	var count int64
	if err := e.db.GetContext(ctx, &count, e.db.Rebind(query), args...); err != nil {
		return 0, &ctlerrors.AnalyticsError{Op: "get_active_visitors_count", Reason: err.Error()}
	}
	return count, nil
}

// BuildActiveVisitorsDetailsQuery returns the per-session summary for every
// session active within the window: start, last activity, page count,
// event count, current page (most recent page_path), and duration.
func BuildActiveVisitorsDetailsQuery(projectID int, environmentID *int, windowMinutes, limit int) (string, []interface{}) {
	if windowMinutes <= 0 {
		windowMinutes = defaultActiveWindowMinutes
	}
	w := NewWhereBuilder()
	w.Eq("e.project_id", projectID)
	w.EqIfNotNil("e.environment_id", environmentID)
	windowPH := w.Bind(windowMinutes)

	limitClause := ""
	if limit > 0 {
		limitPH := w.Bind(int64(limit))
		limitClause = "LIMIT " + limitPH
	}

	query := fmt.Sprintf(`
SELECT
	e.session_id,
	e.visitor_id,
	MIN(e.timestamp) AS session_start,
	MAX(e.timestamp) AS last_activity,
	COUNT(DISTINCT e.page_path) AS page_count,
	COUNT(*) AS event_count,
	(ARRAY_AGG(e.page_path ORDER BY e.timestamp DESC))[1] AS current_page,
	EXTRACT(EPOCH FROM (MAX(e.timestamp) - MIN(e.timestamp))) AS duration_seconds
FROM events e
WHERE %s
  AND e.timestamp >= NOW() - make_interval(mins => %s)
GROUP BY e.session_id, e.visitor_id
ORDER BY last_activity DESC
%s`, w.Clause(), windowPH, limitClause)
	return query, w.Args()
}

// GetActiveVisitorsDetails runs BuildActiveVisitorsDetailsQuery.
func (e *Engine) GetActiveVisitorsDetails(ctx context.Context, projectID int, environmentID *int, windowMinutes, limit int) ([]ActiveVisitor, error) {
	if err := e.requireDB("get_active_visitors_details"); err != nil {
		return nil, err
	}
	query, args := BuildActiveVisitorsDetailsQuery(projectID, environmentID, windowMinutes, limit)
	var out []ActiveVisitor
	if err := e.db.SelectContext(ctx, &out, e.db.Rebind(query), args...); err != nil {
		return nil, &ctlerrors.AnalyticsError{Op: "get_active_visitors_details", Reason: err.Error()}
	}
	return out, nil
}

// TimelineBucket is one gap-filled bucket of a visits timeline.
type TimelineBucket struct {
	Timestamp      time.Time `db:"bucket"`
	Visits         int64     `db:"visits"`
	Events         int64     `db:"events"`
	UniqueVisitors int64     `db:"unique_visitors"`
}

// BuildTimelineQuery builds a gap-filled bucketed timeline over [start, end]
// using generate_series so buckets with no activity come back as zero
// rather than being absent. bucket must be one of the four interval
// literals SelectBucket returns.
func BuildTimelineQuery(bucket string, projectID int, environmentID *int, start, end time.Time) (string, []interface{}) {
	unit := dateTruncUnit(bucket)

	w := NewWhereBuilder(start, end)
	w.Eq("project_id", projectID)
	w.Raw("session_id IS NOT NULL")
	w.EqIfNotNil("environment_id", environmentID)

	query := fmt.Sprintf(`
WITH time_buckets AS (
	SELECT generate_series(
		date_trunc('%s', $1::timestamp),
		date_trunc('%s', $2::timestamp),
		'%s'::interval
	) AS bucket
),
bucket_stats AS (
	SELECT
		date_trunc('%s', timestamp) AS bucket,
		COUNT(DISTINCT session_id) AS visits,
		COUNT(*) AS events,
		COUNT(DISTINCT visitor_id) AS unique_visitors
	FROM events
	WHERE %s
	GROUP BY date_trunc('%s', timestamp)
)
SELECT
	tb.bucket,
	COALESCE(bs.visits, 0) AS visits,
	COALESCE(bs.events, 0) AS events,
	COALESCE(bs.unique_visitors, 0) AS unique_visitors
FROM time_buckets tb
LEFT JOIN bucket_stats bs ON tb.bucket = bs.bucket
ORDER BY tb.bucket`, unit, unit, bucket, unit, w.Clause(), unit)

	return query, w.Args()
}

// GetVisitsTimeline auto-selects a bucket width from the requested range
// and runs the gap-filled timeline query.
func (e *Engine) GetVisitsTimeline(ctx context.Context, projectID int, environmentID *int, start, end time.Time) ([]TimelineBucket, error) {
	if err := e.requireDB("get_visits_timeline"); err != nil {
		return nil, err
	}
	bucket := SelectBucket(start, end)
	query, args := BuildTimelineQuery(bucket, projectID, environmentID, start, end)
	var out []TimelineBucket
	if err := e.db.SelectContext(ctx, &out, e.db.Rebind(query), args...); err != nil {
		return nil, &ctlerrors.AnalyticsError{Op: "get_visits_timeline", Reason: err.Error()}
	}
	return out, nil
}

// GeneralStats is the cross-tenant summary get_general_stats returns.
type GeneralStats struct {
	TotalUniqueVisitors int64   `db:"unique_visitors"`
	TotalVisits         int64   `db:"total_visits"`
	TotalPageViews      int64   `db:"total_page_views"`
	TotalEvents         int64   `db:"total_events"`
	TotalProjects       int64   `db:"total_projects"`
	AvgBounceRate       float64 `db:"avg_bounce_rate"`
	AvgEngagementRate   float64 `db:"avg_engagement_rate"`
}

// BuildGeneralStatsQuery assembles the half-open-interval per-metric CTEs
// and the terminal cross join, avoiding the join fan-out a single grouped
// query over events+sessions+projects would produce.
func BuildGeneralStatsQuery(start, end time.Time) (string, []interface{}) {
	query := `
WITH
	unique_visitors AS (
		SELECT COUNT(DISTINCT e.visitor_id) AS n
		FROM events e
		WHERE e.timestamp >= $1 AND e.timestamp < $2
	),
	total_visits AS (
		SELECT COUNT(*) AS n
		FROM request_sessions rs
		WHERE rs.started_at >= $1 AND rs.started_at < $2
	),
	total_events AS (
		SELECT COUNT(*) AS n
		FROM events e
		WHERE e.timestamp >= $1 AND e.timestamp < $2
	),
	total_page_views AS (
		SELECT COUNT(*) AS n
		FROM events e
		WHERE e.event_type = 'page_view'
		  AND e.timestamp >= $1 AND e.timestamp < $2
	),
	total_projects AS (
		SELECT COUNT(*) AS n
		FROM projects p
	)
SELECT
	unique_visitors.n AS unique_visitors,
	total_visits.n AS total_visits,
	total_page_views.n AS total_page_views,
	total_events.n AS total_events,
	total_projects.n AS total_projects,
	0.0::double precision AS avg_bounce_rate,
	0.0::double precision AS avg_engagement_rate
FROM unique_visitors, total_visits, total_page_views, total_events, total_projects`
	return query, []interface{}{start, end}
}

// GetGeneralStats runs BuildGeneralStatsQuery.
func (e *Engine) GetGeneralStats(ctx context.Context, start, end time.Time) (GeneralStats, error) {
	if err := e.requireDB("get_general_stats"); err != nil {
		return GeneralStats{}, err
	}
	query, args := BuildGeneralStatsQuery(start, end)
	var out GeneralStats
	if err := e.db.GetContext(ctx, &out, e.db.Rebind(query), args...); err != nil {
		return GeneralStats{}, &ctlerrors.AnalyticsError{Op: "get_general_stats", Reason: err.Error()}
	}
	return out, nil
}
