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

package queue

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/matoous/go-nanoid/v2"
)

// memoryQueue is an in-process Queue used by tests and by the QueueBackendInMemory
// deployment mode. Delivery is synchronous and single-consumer: Send blocks
// until the job has been enqueued, the lone Subscribe loop drains it.
type memoryQueue struct {
	mu      sync.Mutex
	jobs    []Job
	closed  bool
	notify  chan struct{}
}

// NewMemoryQueue returns a Queue with no external dependency, useful in
// unit tests that exercise producers without standing up Redis.
func NewMemoryQueue() Queue {
	return &memoryQueue{notify: make(chan struct{}, 1)}
}

func (q *memoryQueue) Send(_ context.Context, kind Kind, payload any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	id, err := gonanoid.New()
	if err != nil {
		return err
	}

	q.mu.Lock()
	q.jobs = append(q.jobs, Job{ID: id, Kind: kind, Payload: body, EnqueuedAt: time.Now()})
	q.mu.Unlock()

	select {
	case q.notify <- struct{}{}:
	default:
	}
	return nil
}

func (q *memoryQueue) Subscribe(ctx context.Context, _ string, handler Handler) error {
	for {
		q.mu.Lock()
		if len(q.jobs) == 0 {
			q.mu.Unlock()
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-q.notify:
				continue
			}
		}
		job := q.jobs[0]
		q.jobs = q.jobs[1:]
		q.mu.Unlock()

		acked := false
		delivery := Delivery{Job: job, Ack: func(context.Context) error { acked = true; return nil }}
		if err := handler(ctx, delivery); err != nil {
			// No redelivery attempt in the in-memory backend: tests own retry semantics.
			continue
		}
		_ = acked
	}
}

func (q *memoryQueue) Close() error {
	q.mu.Lock()
	q.closed = true
	q.mu.Unlock()
	return nil
}
