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

package funnel

import (
	"fmt"
	"time"

	"github.com/temps-platform/control-plane/analytics"
)

// StepQueryRequest parameterizes BuildStepQuery.
type StepQueryRequest struct {
	ProjectID     int
	EnvironmentID *int
	EventName     string
	Filter        string // persisted event_filter JSON, may be empty
	Start         *time.Time
	End           *time.Time
}

// BuildStepQuery assembles the parameterized SQL for one funnel step: every
// (session_id, MIN(timestamp)) pair among events matching the step's event
// name, its parsed filter conditions, and the funnel's global predicates
// (environment, date range). Dropped filter entries (invalid column or
// CustomData path) are returned alongside the query for the caller to log.
func BuildStepQuery(req StepQueryRequest) (query string, args []interface{}, dropped []string) {
	w := analytics.NewWhereBuilder()
	w.Eq("project_id", req.ProjectID)
	w.Eq("COALESCE(event_name, event_type)", req.EventName)
	w.Raw("session_id IS NOT NULL")

	conditions, droppedFilters := ParseSerializedFilter(req.Filter)
	dropped = droppedFilters
	for _, c := range conditions {
		if c.IsRaw {
			w.Raw(c.RawClause)
			continue
		}
		w.Eq(c.Column, c.Value)
	}

	w.EqIfNotNil("environment_id", req.EnvironmentID)
	if req.Start != nil {
		w.Gte("timestamp", *req.Start)
	}
	if req.End != nil {
		w.Lte("timestamp", *req.End)
	}

	query = fmt.Sprintf(
		"SELECT session_id, MIN(timestamp) AS timestamp FROM events WHERE %s GROUP BY session_id",
		w.Clause(),
	)
	return query, w.Args(), dropped
}
