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
	"fmt"

	ctlerrors "github.com/temps-platform/control-plane/errors"
)

// PropertyColumn is the closed enum of columns a query may group or break
// down by. Anything outside this set is rejected rather than interpolated
// into SQL.
type PropertyColumn string

const (
	ColumnPagePath          PropertyColumn = "page_path"
	ColumnHostname          PropertyColumn = "hostname"
	ColumnReferrer          PropertyColumn = "referrer"
	ColumnReferrerHostname  PropertyColumn = "referrer_hostname"
	ColumnUTMSource         PropertyColumn = "utm_source"
	ColumnUTMMedium         PropertyColumn = "utm_medium"
	ColumnUTMCampaign       PropertyColumn = "utm_campaign"
	ColumnUTMTerm           PropertyColumn = "utm_term"
	ColumnUTMContent        PropertyColumn = "utm_content"
	ColumnChannel           PropertyColumn = "channel"
	ColumnDeviceType        PropertyColumn = "device_type"
	ColumnBrowser           PropertyColumn = "browser"
	ColumnOperatingSystem   PropertyColumn = "operating_system"
	ColumnLanguage          PropertyColumn = "language"
	ColumnCountry           PropertyColumn = "country"
	ColumnRegion            PropertyColumn = "region"
	ColumnCity              PropertyColumn = "city"
)

var allowedColumns = map[PropertyColumn]bool{
	ColumnPagePath:         true,
	ColumnHostname:         true,
	ColumnReferrer:         true,
	ColumnReferrerHostname: true,
	ColumnUTMSource:        true,
	ColumnUTMMedium:        true,
	ColumnUTMCampaign:      true,
	ColumnUTMTerm:          true,
	ColumnUTMContent:       true,
	ColumnChannel:          true,
	ColumnDeviceType:       true,
	ColumnBrowser:          true,
	ColumnOperatingSystem:  true,
	ColumnLanguage:         true,
	ColumnCountry:          true,
	ColumnRegion:           true,
	ColumnCity:             true,
}

var geolocationColumns = map[PropertyColumn]bool{
	ColumnCountry: true,
	ColumnRegion:  true,
	ColumnCity:    true,
}

// Valid reports whether c is on the allow-list.
func (c PropertyColumn) Valid() bool {
	return allowedColumns[c]
}

// IsGeolocation reports whether c lives on the joined ip_geolocations table
// rather than directly on events.
func (c PropertyColumn) IsGeolocation() bool {
	return geolocationColumns[c]
}

// fromClause and groupByExpr describe how to reference a
// PropertyColumn in a query: geolocation columns rewrite the FROM clause to
// join ip_geolocations and reference it through a COALESCE-to-'Unknown',
// everything else is referenced directly on events.
func (c PropertyColumn) fromClause() string {
	if c.IsGeolocation() {
		return "events e LEFT JOIN ip_geolocations ig ON e.ip_geolocation_id = ig.id"
	}
	return "events e"
}

func (c PropertyColumn) groupByExpr() string {
	if c.IsGeolocation() {
		return fmt.Sprintf("COALESCE(ig.%s, 'Unknown')", string(c))
	}
	return fmt.Sprintf("e.%s", string(c))
}

// resolve validates c and returns the FROM clause and GROUP BY / SELECT
// expression to use for it, or a typed error if c is not on the allow-list.
func (c PropertyColumn) resolve() (from, groupBy string, err error) {
	if !c.Valid() {
		return "", "", &ctlerrors.AnalyticsError{Op: "group_by_column", Reason: fmt.Sprintf("column %q is not on the allow-list", c)}
	}
	return c.fromClause(), c.groupByExpr(), nil
}
