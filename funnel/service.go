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
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"gorm.io/datatypes"

	ctlerrors "github.com/temps-platform/control-plane/errors"
	"github.com/temps-platform/control-plane/store"
)

// Service persists funnel definitions in the control-plane store and
// computes their metrics against the analytic database.
type Service struct {
	store store.Store
	db    *sqlx.DB
}

// New builds a Service. db may be nil when only Create/Get/List/Delete are
// needed; ComputeMetrics requires a live analytic database connection.
func New(st store.Store, db *sqlx.DB) *Service {
	return &Service{store: st, db: db}
}

// StepInput is one step of a CreateRequest, prior to serialization.
type StepInput struct {
	EventName string
	Filter    EventFilter
}

// CreateRequest describes a new funnel.
type CreateRequest struct {
	ProjectID   uuid.UUID
	Name        string
	Description string
	Steps       []StepInput
}

// Create validates and persists a funnel with its ordered steps, each
// step's filter serialized the way the funnel engine reads it back.
func (s *Service) Create(ctx context.Context, req CreateRequest) (*store.Funnel, error) {
	if req.Name == "" {
		return nil, &ctlerrors.FunnelError{Reason: "funnel name must not be empty"}
	}
	if len(req.Steps) == 0 {
		return nil, &ctlerrors.FunnelError{Reason: "funnel must have at least one step"}
	}

	steps := make([]store.FunnelStep, len(req.Steps))
	for i, in := range req.Steps {
		if in.EventName == "" {
			return nil, &ctlerrors.FunnelError{Reason: fmt.Sprintf("step %d: event name must not be empty", i)}
		}
		serialized, err := in.Filter.Serialize()
		if err != nil {
			return nil, &ctlerrors.FunnelError{Reason: fmt.Sprintf("step %d: serializing filter: %s", i, err)}
		}
		steps[i] = store.FunnelStep{
			StepOrder:   i,
			EventName:   in.EventName,
			EventFilter: datatypes.JSON(serialized),
		}
	}

	f := &store.Funnel{
		ProjectID:   req.ProjectID,
		Name:        req.Name,
		Description: req.Description,
		IsActive:    true,
		Steps:       steps,
	}
	created, err := s.store.CreateFunnel(ctx, f)
	if err != nil {
		return nil, &ctlerrors.FunnelError{Reason: fmt.Sprintf("creating funnel: %s", err)}
	}
	return created, nil
}

// MetricsRequest scopes a ComputeMetrics call: the events a step's query
// matches against are additionally bound by project, environment, and date
// range.
type MetricsRequest struct {
	FunnelID      uuid.UUID
	ProjectID     int
	EnvironmentID *int
	Start         *time.Time
	End           *time.Time
}

// EventRunner executes a step query and returns the matching
// (session_id, earliest timestamp) pairs. Satisfied in production by
// sqlxRunner, which wraps a *sqlx.DB; tests supply a fake to avoid a live
// database.
type EventRunner interface {
	QuerySessionEvents(ctx context.Context, query string, args []interface{}) ([]SessionEvent, error)
}

type sqlxRunner struct{ db *sqlx.DB }

func (r sqlxRunner) QuerySessionEvents(ctx context.Context, query string, args []interface{}) ([]SessionEvent, error) {
	rows := []struct {
		SessionID string    `db:"session_id"`
		Timestamp time.Time `db:"timestamp"`
	}{}
	if err := r.db.SelectContext(ctx, &rows, r.db.Rebind(query), args...); err != nil {
		return nil, err
	}
	out := make([]SessionEvent, len(rows))
	for i, row := range rows {
		out[i] = SessionEvent{SessionID: row.SessionID, Timestamp: row.Timestamp}
	}
	return out, nil
}

// ComputeMetrics loads the funnel's steps, runs each step's query in order
// order, and computes step-completion metrics via Compute.
func (s *Service) ComputeMetrics(ctx context.Context, req MetricsRequest) (FunnelMetrics, error) {
	return s.computeMetricsWith(ctx, req, sqlxRunner{db: s.db})
}

func (s *Service) computeMetricsWith(ctx context.Context, req MetricsRequest, runner EventRunner) (FunnelMetrics, error) {
	f, err := s.store.GetFunnel(ctx, req.FunnelID)
	if err != nil {
		return FunnelMetrics{}, &ctlerrors.FunnelError{FunnelID: req.FunnelID.String(), Reason: fmt.Sprintf("loading funnel: %s", err)}
	}
	if len(f.Steps) == 0 {
		return FunnelMetrics{}, nil
	}

	steps := append([]store.FunnelStep{}, f.Steps...)
	sort.Slice(steps, func(i, j int) bool { return steps[i].StepOrder < steps[j].StepOrder })

	defs := make([]StepDefinition, len(steps))
	stepEvents := make([][]SessionEvent, len(steps))
	for i, step := range steps {
		defs[i] = StepDefinition{Order: step.StepOrder, EventName: step.EventName}

		query, args, _ := BuildStepQuery(StepQueryRequest{
			ProjectID:     req.ProjectID,
			EnvironmentID: req.EnvironmentID,
			EventName:     step.EventName,
			Filter:        string(step.EventFilter),
			Start:         req.Start,
			End:           req.End,
		})
		events, err := runner.QuerySessionEvents(ctx, query, args)
		if err != nil {
			return FunnelMetrics{}, &ctlerrors.FunnelError{FunnelID: req.FunnelID.String(), Reason: fmt.Sprintf("step %d query: %s", i, err)}
		}
		stepEvents[i] = events
	}

	return Compute(defs, stepEvents), nil
}
