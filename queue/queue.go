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

// Package queue is the Job Queue Port (spec section 4.C): a narrow
// Send/Subscribe abstraction so the project, services and gitprovider
// packages never depend on a specific transport. It mirrors the teacher's
// workers/common.Consumer shape, generalized from entity-state-change
// events to job kinds this control plane actually emits.
package queue

import (
	"context"
	"encoding/json"
	"time"
)

// Kind identifies a job's payload shape.
type Kind string

const (
	KindProjectCreated      Kind = "project_created"
	KindProjectUpdated      Kind = "project_updated"
	KindProjectDeleted      Kind = "project_deleted"
	KindEnvironmentDeleted  Kind = "environment_deleted"
	KindGitPushEvent        Kind = "git_push_event"
	KindUpdateRepoFramework Kind = "update_repo_framework"
)

// Job is the envelope carried on the queue. Payload is kind-specific JSON,
// decoded by the consumer once it has dispatched on Kind.
type Job struct {
	ID        string          `json:"id"`
	Kind      Kind            `json:"kind"`
	Payload   json.RawMessage `json:"payload"`
	EnqueuedAt time.Time      `json:"enqueued_at"`
}

// GitPushEventPayload is the body of a KindGitPushEvent job.
type GitPushEventPayload struct {
	Owner     string `json:"owner"`
	Repo      string `json:"repo"`
	Branch    string `json:"branch,omitempty"`
	Tag       string `json:"tag,omitempty"`
	Commit    string `json:"commit"`
	ProjectID string `json:"project_id"`
}

// UpdateRepoFrameworkPayload is the body of a KindUpdateRepoFramework job.
type UpdateRepoFrameworkPayload struct {
	RepositoryID string `json:"repo_id"`
}

// ProjectEventPayload is the body of the project/environment lifecycle jobs.
type ProjectEventPayload struct {
	ProjectID     string `json:"project_id"`
	EnvironmentID string `json:"environment_id,omitempty"`
}

// Delivery is a single message handed to a subscriber. Ack must be called
// once the handler has durably processed the job; a consumer-group backed
// implementation (Redis Streams) will redeliver unacked jobs to another
// consumer after the visibility timeout.
type Delivery struct {
	Job Job
	Ack func(ctx context.Context) error
}

// Handler processes one delivery. Returning an error leaves the job
// unacked so the transport can retry it.
type Handler func(ctx context.Context, d Delivery) error

// Queue is the port every producer and consumer in this control plane
// depends on.
type Queue interface {
	// Send enqueues a job for asynchronous processing.
	Send(ctx context.Context, kind Kind, payload any) error
	// Subscribe registers handler for group and blocks, dispatching
	// deliveries until ctx is canceled.
	Subscribe(ctx context.Context, group string, handler Handler) error
	// Close releases any underlying connection.
	Close() error
}
