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

// Package funnel computes step-completion metrics over ordered event
// sequences and builds the smart filters a funnel step's event_filter
// compiles down to.
package funnel

import (
	"encoding/json"
	"fmt"
	"strings"
)

// ColumnFilter names one of the simple column-equality smart filters.
type ColumnFilter string

const (
	FilterPagePath         ColumnFilter = "page_path"
	FilterHostname         ColumnFilter = "hostname"
	FilterUTMSource        ColumnFilter = "utm_source"
	FilterUTMCampaign      ColumnFilter = "utm_campaign"
	FilterUTMMedium        ColumnFilter = "utm_medium"
	FilterReferrerHostname ColumnFilter = "referrer_hostname"
	FilterChannel          ColumnFilter = "channel"
	FilterDeviceType       ColumnFilter = "device_type"
	FilterBrowser          ColumnFilter = "browser"
	FilterOperatingSystem  ColumnFilter = "operating_system"
	FilterLanguage         ColumnFilter = "language"
)

// columnOf maps a ColumnFilter to the events table column it compiles to.
// PagePath is the only filter whose column name differs from its own name.
var columnOf = map[ColumnFilter]string{
	FilterPagePath:         "pathname",
	FilterHostname:         "hostname",
	FilterUTMSource:        "utm_source",
	FilterUTMCampaign:      "utm_campaign",
	FilterUTMMedium:        "utm_medium",
	FilterReferrerHostname: "referrer_hostname",
	FilterChannel:          "channel",
	FilterDeviceType:       "device_type",
	FilterBrowser:          "browser",
	FilterOperatingSystem:  "operating_system",
	FilterLanguage:         "language",
}

// allowedEvaluationColumns is the allow-list a persisted filter's column
// name must appear on to be honored at evaluation time. It is broader than
// columnOf's targets since filters may be persisted under either the
// smart-filter column alias (page_path) or the underlying events column
// (pathname).
var allowedEvaluationColumns = map[string]bool{
	"pathname": true, "hostname": true, "page_path": true,
	"referrer": true, "referrer_hostname": true,
	"utm_source": true, "utm_medium": true, "utm_campaign": true,
	"utm_term": true, "utm_content": true,
	"channel": true, "device_type": true, "browser": true,
	"operating_system": true, "language": true,
}

// Column returns the events column this filter maps to.
func (f ColumnFilter) Column() string {
	return columnOf[f]
}

// EventFilter is one step's filter spec: any number of column filters plus
// any number of CustomData JSON-path filters.
type EventFilter struct {
	Columns    map[ColumnFilter]string
	CustomData []CustomDataFilter
}

// CustomDataFilter matches event_data at a dot-separated JSON path.
type CustomDataFilter struct {
	Path  string
	Value string
}

// pathSegmentValid reports whether a CustomData path segment is
// alphanumeric-or-underscore only, the one rule that decides whether a
// segment is honored or the whole filter is dropped.
func pathSegmentValid(segment string) bool {
	if segment == "" {
		return false
	}
	for _, r := range segment {
		if !(r >= 'a' && r <= 'z' || r >= 'A' && r <= 'Z' || r >= '0' && r <= '9' || r == '_') {
			return false
		}
	}
	return true
}

// ToJSONCondition builds the SQL fragment for a CustomData filter:
// event_data::jsonb -> 'seg0' -> 'seg1' ... ->> 'last' = '<value>', with the
// value's single quotes escaped by doubling. Returns ("", false) when any
// path segment fails the alphanumeric-or-underscore rule — the filter is
// dropped, not treated as an error.
func (f CustomDataFilter) ToJSONCondition() (string, bool) {
	segments := strings.Split(f.Path, ".")
	if len(segments) == 0 || f.Path == "" {
		return "", false
	}
	for _, seg := range segments {
		if !pathSegmentValid(seg) {
			return "", false
		}
	}

	var b strings.Builder
	b.WriteString("event_data::jsonb")
	for i, seg := range segments {
		if i == len(segments)-1 {
			fmt.Fprintf(&b, "->>'%s'", seg)
		} else {
			fmt.Fprintf(&b, "->'%s'", seg)
		}
	}
	escaped := strings.ReplaceAll(f.Value, "'", "''")
	fmt.Fprintf(&b, " = '%s'", escaped)
	return b.String(), true
}

// Serialize persists an EventFilter the way a funnel step stores its
// event_filter: a JSON object with simple column filters keyed by column
// name, plus a "_custom_data" array of {path, value} entries.
func (f EventFilter) Serialize() (string, error) {
	if len(f.Columns) == 0 && len(f.CustomData) == 0 {
		return "", nil
	}
	out := map[string]interface{}{}
	for col, value := range f.Columns {
		out[col.Column()] = value
	}
	if len(f.CustomData) > 0 {
		custom := make([]map[string]string, 0, len(f.CustomData))
		for _, cd := range f.CustomData {
			custom = append(custom, map[string]string{"path": cd.Path, "value": cd.Value})
		}
		out["_custom_data"] = custom
	}
	b, err := json.Marshal(out)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

// ParsedCondition is one bound predicate a persisted filter compiles to,
// either a "<column> = $n" column equality or a raw JSON-path fragment with
// no bound value (the value is already escaped and inlined).
type ParsedCondition struct {
	Column    string // empty for a raw/JSON condition
	Value     string
	IsRaw     bool
	RawClause string
}

// ParseSerializedFilter decodes a persisted event_filter JSON blob into the
// list of conditions to apply, dropping (not erroring on) any column
// outside the allow-list or any CustomData path that fails segment
// validation. dropped collects what was skipped, for logging by the
// caller.
func ParseSerializedFilter(raw string) (conditions []ParsedCondition, dropped []string) {
	if raw == "" {
		return nil, nil
	}
	var obj map[string]interface{}
	if err := json.Unmarshal([]byte(raw), &obj); err != nil {
		return nil, []string{"invalid filter JSON: " + err.Error()}
	}

	for key, value := range obj {
		if key == "_custom_data" {
			items, ok := value.([]interface{})
			if !ok {
				dropped = append(dropped, "_custom_data is not an array")
				continue
			}
			for _, item := range items {
				m, ok := item.(map[string]interface{})
				if !ok {
					continue
				}
				path, _ := m["path"].(string)
				val, _ := m["value"].(string)
				cd := CustomDataFilter{Path: path, Value: val}
				clause, ok := cd.ToJSONCondition()
				if !ok {
					dropped = append(dropped, fmt.Sprintf("custom data path %q has an invalid segment", path))
					continue
				}
				conditions = append(conditions, ParsedCondition{IsRaw: true, RawClause: clause})
			}
			continue
		}

		if !allowedEvaluationColumns[key] {
			dropped = append(dropped, fmt.Sprintf("column %q is not on the allow-list", key))
			continue
		}
		strVal, ok := value.(string)
		if !ok {
			dropped = append(dropped, fmt.Sprintf("unsupported filter value type for column %q", key))
			continue
		}
		conditions = append(conditions, ParsedCondition{Column: key, Value: strVal})
	}
	return conditions, dropped
}
