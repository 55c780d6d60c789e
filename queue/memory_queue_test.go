package queue

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestMemoryQueueSendAndSubscribe(t *testing.T) {
	q := NewMemoryQueue()
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	received := make(chan ProjectEventPayload, 1)
	go func() {
		_ = q.Subscribe(ctx, "workers", func(_ context.Context, d Delivery) error {
			var payload ProjectEventPayload
			if err := json.Unmarshal(d.Job.Payload, &payload); err != nil {
				return err
			}
			received <- payload
			return nil
		})
	}()

	require.NoError(t, q.Send(ctx, KindProjectCreated, ProjectEventPayload{ProjectID: "proj-1"}))

	select {
	case payload := <-received:
		require.Equal(t, "proj-1", payload.ProjectID)
	case <-ctx.Done():
		t.Fatal("timed out waiting for delivery")
	}
}
