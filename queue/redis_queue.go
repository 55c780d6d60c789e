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
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/matoous/go-nanoid/v2"

	"github.com/temps-platform/control-plane/metrics"
)

const (
	streamKey        = "temps:jobs"
	consumerIdleTime = 30 * time.Second
	claimBatchSize   = 16
)

// redisQueue is a Redis Streams backed Queue, using a consumer group per
// subscriber group for at-least-once delivery.
type redisQueue struct {
	client *redis.Client
	log    *slog.Logger
}

// NewRedisQueue dials Redis using a DSN of the form redis://host:port/db.
func NewRedisQueue(dsn string, log *slog.Logger) (Queue, error) {
	opts, err := redis.ParseURL(dsn)
	if err != nil {
		return nil, fmt.Errorf("error parsing redis dsn: %w", err)
	}
	client := redis.NewClient(opts)
	if err := client.Ping(context.Background()).Err(); err != nil {
		return nil, fmt.Errorf("error connecting to redis: %w", err)
	}
	if log == nil {
		log = slog.Default()
	}
	return &redisQueue{client: client, log: log}, nil
}

func (q *redisQueue) Send(ctx context.Context, kind Kind, payload any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("error marshaling job payload: %w", err)
	}
	id, err := gonanoid.New()
	if err != nil {
		return fmt.Errorf("error generating job id: %w", err)
	}
	job := Job{ID: id, Kind: kind, Payload: body, EnqueuedAt: time.Now()}
	encoded, err := json.Marshal(job)
	if err != nil {
		return fmt.Errorf("error marshaling job: %w", err)
	}

	metrics.QueueJobsSent.WithLabelValues(string(kind)).Inc()
	return q.client.XAdd(ctx, &redis.XAddArgs{
		Stream: streamKey,
		Values: map[string]interface{}{"job": encoded},
	}).Err()
}

func (q *redisQueue) Subscribe(ctx context.Context, group string, handler Handler) error {
	if err := q.client.XGroupCreateMkStream(ctx, streamKey, group, "0").Err(); err != nil {
		if !errors.Is(err, redis.Nil) && !isBusyGroupErr(err) {
			return fmt.Errorf("error creating consumer group: %w", err)
		}
	}

	consumer := fmt.Sprintf("%s-%d", group, time.Now().UnixNano())

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		if err := q.reclaimStale(ctx, group, consumer, handler); err != nil {
			q.log.ErrorContext(ctx, "error reclaiming stale jobs", "error", err)
		}

		streams, err := q.client.XReadGroup(ctx, &redis.XReadGroupArgs{
			Group:    group,
			Consumer: consumer,
			Streams:  []string{streamKey, ">"},
			Count:    10,
			Block:    5 * time.Second,
		}).Result()
		if err != nil {
			if errors.Is(err, redis.Nil) || errors.Is(err, context.Canceled) {
				continue
			}
			q.log.ErrorContext(ctx, "error reading from stream", "error", err)
			continue
		}

		for _, stream := range streams {
			for _, msg := range stream.Messages {
				q.dispatch(ctx, group, msg, handler)
			}
		}
	}
}

func (q *redisQueue) dispatch(ctx context.Context, group string, msg redis.XMessage, handler Handler) {
	raw, ok := msg.Values["job"].(string)
	if !ok {
		q.log.ErrorContext(ctx, "malformed stream entry, missing job field", "id", msg.ID)
		return
	}
	var job Job
	if err := json.Unmarshal([]byte(raw), &job); err != nil {
		q.log.ErrorContext(ctx, "error unmarshaling job", "error", err, "id", msg.ID)
		return
	}

	delivery := Delivery{
		Job: job,
		Ack: func(ackCtx context.Context) error {
			return q.client.XAck(ackCtx, streamKey, group, msg.ID).Err()
		},
	}

	err := handler(ctx, delivery)
	outcome := "ok"
	if err != nil {
		outcome = "error"
		q.log.ErrorContext(ctx, "job handler failed, leaving unacked for redelivery",
			"kind", job.Kind, "id", job.ID, "error", err)
	}
	metrics.QueueJobsProcessed.WithLabelValues(string(job.Kind), outcome).Inc()
}

// reclaimStale claims entries that were delivered to a consumer that died
// before acking, so a single crashed worker never loses a job.
func (q *redisQueue) reclaimStale(ctx context.Context, group, consumer string, handler Handler) error {
	msgs, _, err := q.client.XAutoClaim(ctx, &redis.XAutoClaimArgs{
		Stream:   streamKey,
		Group:    group,
		Consumer: consumer,
		MinIdle:  consumerIdleTime,
		Start:    "0",
		Count:    claimBatchSize,
	}).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil
		}
		return err
	}
	for _, msg := range msgs {
		q.dispatch(ctx, group, msg, handler)
	}
	return nil
}

func (q *redisQueue) Close() error {
	return q.client.Close()
}

func isBusyGroupErr(err error) bool {
	return err != nil && err.Error() == "BUSYGROUP Consumer Group name already exists"
}
