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

import "time"

// AggregationLevel selects what a COUNT aggregates over.
type AggregationLevel string

const (
	LevelEvents   AggregationLevel = "events"
	LevelSessions AggregationLevel = "sessions"
	LevelVisitors AggregationLevel = "visitors"
)

// CountExpr returns the SQL COUNT expression for the level.
func (l AggregationLevel) CountExpr() string {
	switch l {
	case LevelSessions:
		return "COUNT(DISTINCT session_id)"
	case LevelVisitors:
		return "COUNT(DISTINCT visitor_id)"
	default:
		return "COUNT(*)"
	}
}

// ExtraPredicate returns the additional WHERE predicate a level requires,
// and whether one applies at all.
func (l AggregationLevel) ExtraPredicate() (string, bool) {
	switch l {
	case LevelSessions:
		return "session_id IS NOT NULL", true
	case LevelVisitors:
		return "visitor_id IS NOT NULL", true
	default:
		return "", false
	}
}

// customEventNames are excluded by the custom_events_only filter, which
// defaults to true.
var customEventNames = []string{"page_view", "page_leave", "heartbeat"}

// CustomEventsOnlyPredicate returns the SQL fragment excluding the built-in
// system event names, used whenever custom_events_only is true (the
// default).
func CustomEventsOnlyPredicate() string {
	return "COALESCE(e.event_name, e.event_type) NOT IN ('page_view', 'page_leave', 'heartbeat')"
}

// SelectBucket auto-selects the GROUP BY / generate_series bucket width for
// a timeline spanning [start, end], per the thresholds in the query engine
// spec: <=1 day -> hourly, <=7 days -> daily, <=60 days -> weekly, else
// monthly. These are SQL interval literals, never interpolated from request
// input.
func SelectBucket(start, end time.Time) string {
	span := end.Sub(start)
	switch {
	case span <= 24*time.Hour:
		return "1 hour"
	case span <= 7*24*time.Hour:
		return "1 day"
	case span <= 60*24*time.Hour:
		return "1 week"
	default:
		return "1 month"
	}
}

// dateTruncUnit maps a bucket interval literal to the date_trunc() unit
// that produces matching buckets.
func dateTruncUnit(bucket string) string {
	switch bucket {
	case "1 hour":
		return "hour"
	case "1 day":
		return "day"
	case "1 week":
		return "week"
	case "1 month":
		return "month"
	default:
		return "hour"
	}
}
