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
	"net/url"
	"time"

	ctlerrors "github.com/temps-platform/control-plane/errors"
)

// RecordEventRequest is the single mutating insert path into the events
// table: everything else in this package only reads.
type RecordEventRequest struct {
	ProjectID       int
	EnvironmentID   *int
	DeploymentID    *int
	SessionID       *string
	VisitorID       *int
	EventName       string
	EventData       map[string]interface{}
	RequestPath     string
	RequestQuery    string
	PageTitle       *string
	Referrer        *string
	UserAgent       *string
	Browser         *string
	OperatingSystem *string
	DeviceType      *string
	Language        *string
}

// Event is the row record_event produces.
type Event struct {
	ProjectID         int
	EnvironmentID     *int
	DeploymentID      *int
	SessionID         *string
	VisitorID         *int
	EventType         string
	EventName         string
	Hostname          string
	Pathname          string
	Href              string
	Referrer          *string
	ReferrerHostname  *string
	UTMSource         *string
	UTMMedium         *string
	UTMCampaign       *string
	UTMTerm           *string
	UTMContent        *string
	Timestamp         time.Time
	IsEntry           bool
	IsExit            bool
	IsBounce          bool
}

// SessionStore is the narrow persistence surface record_event needs to
// derive is_entry/is_exit/is_bounce. Implementations back it with whatever
// table the analytic database uses for events; this package only specifies
// the three operations the derivation rules depend on.
type SessionStore interface {
	// PriorEventCount returns how many events already exist for sessionID,
	// before the event being recorded.
	PriorEventCount(ctx context.Context, sessionID string) (int64, error)
	// ClearBounce unsets is_bounce on a session's entry event, called once
	// a session's second qualifying event arrives.
	ClearBounce(ctx context.Context, sessionID string) error
	// ClearPreviousExit unsets is_exit on whatever event in the session was
	// previously the most recent one, since that is no longer true.
	ClearPreviousExit(ctx context.Context, sessionID string) error
}

// RecordEvent derives is_entry/is_exit/is_bounce and the hostname/href/UTM
// fields from event_data, then returns the Event row ready to insert.
//
// is_entry is true exactly for a session's first event. is_exit is always
// true for the event being recorded (it is, by construction, the most
// recent one for its session), which requires clearing the flag on
// whichever event previously held it. is_bounce starts true on the entry
// event and is cleared the moment a session's second qualifying event
// arrives, matching the "bounce = single-event session" definition.
func RecordEvent(ctx context.Context, store SessionStore, req RecordEventRequest) (Event, error) {
	if req.EventName == "" {
		return Event{}, &ctlerrors.EventsError{Reason: "event_name must not be empty"}
	}

	var priorCount int64
	if req.SessionID != nil {
		var err error
		priorCount, err = store.PriorEventCount(ctx, *req.SessionID)
		if err != nil {
			return Event{}, &ctlerrors.EventsError{Reason: fmt.Sprintf("counting prior session events: %s", err)}
		}
		if err := store.ClearPreviousExit(ctx, *req.SessionID); err != nil {
			return Event{}, &ctlerrors.EventsError{Reason: fmt.Sprintf("clearing previous exit flag: %s", err)}
		}
		if priorCount > 0 {
			if err := store.ClearBounce(ctx, *req.SessionID); err != nil {
				return Event{}, &ctlerrors.EventsError{Reason: fmt.Sprintf("clearing bounce flag: %s", err)}
			}
		}
	}
	isEntry := priorCount == 0

	hostname := stringField(req.EventData, "hostname")
	if hostname == "" {
		hostname = "localhost"
	}
	href := stringField(req.EventData, "href")
	if href == "" {
		href = fmt.Sprintf("http://%s%s", hostname, req.RequestPath)
	}

	var referrerHostname *string
	if req.Referrer != nil && *req.Referrer != "" {
		if u, err := url.Parse(*req.Referrer); err == nil && u.Host != "" {
			h := u.Host
			referrerHostname = &h
		}
	}

	event := Event{
		ProjectID:        req.ProjectID,
		EnvironmentID:    req.EnvironmentID,
		DeploymentID:     req.DeploymentID,
		SessionID:        req.SessionID,
		VisitorID:        req.VisitorID,
		EventType:        req.EventName,
		EventName:        req.EventName,
		Hostname:         hostname,
		Pathname:         req.RequestPath,
		Href:             href,
		Referrer:         req.Referrer,
		ReferrerHostname: referrerHostname,
		UTMSource:        optionalStringField(req.EventData, "utm_source"),
		UTMMedium:        optionalStringField(req.EventData, "utm_medium"),
		UTMCampaign:      optionalStringField(req.EventData, "utm_campaign"),
		UTMTerm:          optionalStringField(req.EventData, "utm_term"),
		UTMContent:       optionalStringField(req.EventData, "utm_content"),
		Timestamp:        time.Now().UTC(),
		IsEntry:          isEntry,
		IsExit:           true,
		IsBounce:         isEntry,
	}
	return event, nil
}

func stringField(data map[string]interface{}, key string) string {
	if v, ok := data[key].(string); ok {
		return v
	}
	return ""
}

func optionalStringField(data map[string]interface{}, key string) *string {
	if v, ok := data[key].(string); ok && v != "" {
		return &v
	}
	return nil
}
