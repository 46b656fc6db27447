package queue

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func receive(t *testing.T, ch <-chan Message) Message {
	t.Helper()
	select {
	case msg, ok := <-ch:
		require.True(t, ok, "channel closed")
		return msg
	case <-time.After(3 * time.Second):
		t.Fatal("timed out waiting for message")
		return Message{}
	}
}

func exerciseQueue(t *testing.T, q Queue) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	ch, err := q.Consume(ctx)
	require.NoError(t, err)

	msg, err := NewAttendanceSaved(AttendanceSaved{SubjectCode: "MATH101", Date: "2025-09-11", Faculty: "fac1", Marked: 2})
	require.NoError(t, err)
	require.NoError(t, q.Publish(ctx, msg))

	got := receive(t, ch)
	assert.Equal(t, TypeAttendanceSaved, got.Type)

	var evt AttendanceSaved
	require.NoError(t, json.Unmarshal(got.Body, &evt))
	assert.Equal(t, "MATH101", evt.SubjectCode)
	assert.Equal(t, 2, evt.Marked)

	cancel()
	for range ch {
	}
}

func TestInMemory(t *testing.T) {
	exerciseQueue(t, NewInMemory(4))
}

func TestInMemory_PublishRespectsContext(t *testing.T) {
	q := NewInMemory(1)
	require.NoError(t, q.Publish(context.Background(), Message{Type: "x"}))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.ErrorIs(t, q.Publish(ctx, Message{Type: "y"}), context.Canceled)
}

func TestRedisQueue(t *testing.T) {
	srv := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: srv.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	q := NewRedisQueue(client, "")
	q.timeout = 100 * time.Millisecond
	exerciseQueue(t, q)
}
