package errors

import "fmt"

// AnalyticsError is returned by the Analytics Query Engine (4.G).
type AnalyticsError struct {
	Op     string
	Reason string
}

func (e *AnalyticsError) Error() string {
	return fmt.Sprintf("analytics %s: %s", e.Op, e.Reason)
}

// EventsError is returned by the record_event ingestion path.
type EventsError struct {
	Reason string
}

func (e *EventsError) Error() string {
	return fmt.Sprintf("events: %s", e.Reason)
}

// FunnelError is returned by the Funnel Engine (4.H).
type FunnelError struct {
	FunnelID string
	Reason   string
}

func (e *FunnelError) Error() string {
	return fmt.Sprintf("funnel %s: %s", e.FunnelID, e.Reason)
}

// InvalidCustomDataPath marks a dropped (not fatal) smart filter whose path
// segment failed the alphanumeric-or-underscore rule (4.H).
type InvalidCustomDataPath struct {
	Path string
}

func (e *InvalidCustomDataPath) Error() string {
	return fmt.Sprintf("invalid custom data path segment in %q", e.Path)
}

// EmailError is returned by the transactional email domain service.
type EmailError struct {
	Reason string
}

func (e *EmailError) Error() string {
	return fmt.Sprintf("email: %s", e.Reason)
}
