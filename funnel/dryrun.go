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

	"github.com/PaesslerAG/jsonpath"
)

// SampleEvent is one event from an in-process preview batch: the column
// values a step's column filters compare against, plus the raw event_data
// payload CustomData filters evaluate a JSON path over.
type SampleEvent struct {
	Columns   map[string]string
	EventData interface{}
}

// DryRunMatch previews which events in a sample batch a step's filter
// would match, without touching the analytic database. It is a preview
// only: the real computation always pushes the same predicates into SQL
// via BuildStepQuery: this evaluator exists so a UI can show "N of your
// last 100 events would match this filter" before a funnel is saved.
func DryRunMatch(filter EventFilter, events []SampleEvent) ([]SampleEvent, error) {
	var matched []SampleEvent
	for _, ev := range events {
		ok, err := dryRunMatches(filter, ev)
		if err != nil {
			return nil, err
		}
		if ok {
			matched = append(matched, ev)
		}
	}
	return matched, nil
}

func dryRunMatches(filter EventFilter, ev SampleEvent) (bool, error) {
	for col, want := range filter.Columns {
		if ev.Columns[col.Column()] != want {
			return false, nil
		}
	}
	for _, cd := range filter.CustomData {
		ok, err := dryRunMatchesCustomData(cd, ev.EventData)
		if err != nil {
			return false, err
		}
		if !ok {
			return false, nil
		}
	}
	return true, nil
}

func dryRunMatchesCustomData(cd CustomDataFilter, eventData interface{}) (bool, error) {
	if eventData == nil {
		return false, nil
	}
	expr := "$." + cd.Path
	value, err := jsonpath.Get(expr, eventData)
	if err != nil {
		// A path that does not resolve against this particular event is a
		// non-match, not an error: most sampled events won't have every
		// custom field a filter names.
		return false, nil //nolint:nilerr
	}
	str, ok := value.(string)
	if !ok {
		return false, fmt.Errorf("custom data path %q did not resolve to a string", cd.Path)
	}
	return str == cd.Value, nil
}
