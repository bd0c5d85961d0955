package queue

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type recorder struct {
	mu       sync.Mutex
	payloads []string
	done     chan struct{}
	want     int
	fail     int
}

func newRecorder(want, fail int) *recorder {
	return &recorder{done: make(chan struct{}), want: want, fail: fail}
}

func (r *recorder) handle(_ context.Context, payload []byte) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.payloads = append(r.payloads, string(payload))
	if len(r.payloads) <= r.fail {
		return errors.New("transient handler failure")
	}
	if len(r.payloads) == r.want {
		close(r.done)
	}
	return nil
}

func (r *recorder) wait(t *testing.T) {
	t.Helper()
	select {
	case <-r.done:
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for deliveries")
	}
}

func (r *recorder) seen() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, len(r.payloads))
	copy(out, r.payloads)
	return out
}

func TestMemoryDelivers(t *testing.T) {
	q := NewMemory(3, zap.NewNop())
	defer q.Close()

	rec := newRecorder(2, 0)
	ctx := context.Background()
	require.NoError(t, q.Subscribe(ctx, rec.handle))

	require.NoError(t, q.Publish(ctx, []byte("first")))
	require.NoError(t, q.Publish(ctx, []byte("second")))

	rec.wait(t)
	assert.ElementsMatch(t, []string{"first", "second"}, rec.seen())
}

func TestMemoryRedeliversAfterHandlerError(t *testing.T) {
	q := NewMemory(3, zap.NewNop())
	defer q.Close()

	rec := newRecorder(3, 2)
	ctx := context.Background()
	require.NoError(t, q.Subscribe(ctx, rec.handle))

	require.NoError(t, q.Publish(ctx, []byte("retry-me")))

	rec.wait(t)
	assert.Equal(t, []string{"retry-me", "retry-me", "retry-me"}, rec.seen())
}

func TestMemoryDropsAfterRedeliveryLimit(t *testing.T) {
	q := NewMemory(2, zap.NewNop())
	defer q.Close()

	var mu sync.Mutex
	deliveries := 0
	second := make(chan struct{})
	ctx := context.Background()
	require.NoError(t, q.Subscribe(ctx, func(context.Context, []byte) error {
		mu.Lock()
		defer mu.Unlock()
		deliveries++
		if deliveries == 2 {
			close(second)
		}
		return errors.New("always failing")
	}))

	require.NoError(t, q.Publish(ctx, []byte("poison")))

	select {
	case <-second:
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for redelivery")
	}

	// give the queue a chance to violate the limit
	time.Sleep(50 * time.Millisecond)
	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, 2, deliveries)
}

func TestMemoryPublishAfterClose(t *testing.T) {
	q := NewMemory(1, zap.NewNop())
	require.NoError(t, q.Close())

	err := q.Publish(context.Background(), []byte("late"))
	assert.Error(t, err)
}

func TestMemoryCloseStopsConsumer(t *testing.T) {
	q := NewMemory(1, zap.NewNop())
	ctx := context.Background()
	require.NoError(t, q.Subscribe(ctx, func(context.Context, []byte) error { return nil }))

	done := make(chan struct{})
	go func() {
		q.Close()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("Close did not return")
	}
}
