package emit

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// blockingSender blocks every send until release is closed or the queue
// cancels it.
type blockingSender struct {
	release chan struct{}
	started chan struct{}

	mu   sync.Mutex
	got  []string
	errs []error
}

func newBlockingSender() *blockingSender {
	return &blockingSender{
		release: make(chan struct{}),
		started: make(chan struct{}, 16),
	}
}

func (s *blockingSender) send(ctx context.Context, tag string, es EventStream) error {
	s.started <- struct{}{}
	select {
	case <-s.release:
	case <-ctx.Done():
		s.mu.Lock()
		s.errs = append(s.errs, ctx.Err())
		s.mu.Unlock()
		return ctx.Err()
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, ev := range es {
		s.got = append(s.got, tag+":"+ev.Record["message"].(string))
	}
	return nil
}

func (s *blockingSender) delivered() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.got...)
}

func msg(text string) EventStream {
	return EventStream{{Time: time.Now(), Record: Record{"message": text}}}
}

func TestQueue_EnqueueDoesNotWaitForSend(t *testing.T) {
	s := newBlockingSender()
	q := NewQueue("test", s.send, WithQueueSize(4))
	t.Cleanup(func() {
		close(s.release)
		_ = q.Close()
	})

	start := time.Now()
	assert.True(t, q.Enqueue("a", msg("one")))
	<-s.started
	assert.True(t, q.Enqueue("a", msg("two")))
	assert.Less(t, time.Since(start), 100*time.Millisecond)
}

func TestQueue_DropsWhenFull(t *testing.T) {
	s := newBlockingSender()
	q := NewQueue("test", s.send, WithQueueSize(1))

	require.True(t, q.Enqueue("a", msg("one")))
	<-s.started
	require.True(t, q.Enqueue("a", msg("two")))
	assert.False(t, q.Enqueue("a", msg("three")))
	assert.False(t, q.Enqueue("a", EventStream{
		{Record: Record{"message": "four"}},
		{Record: Record{"message": "five"}},
	}))
	assert.Equal(t, uint64(3), q.Dropped())

	close(s.release)
	require.NoError(t, q.Close())
	assert.Equal(t, []string{"a:one", "a:two"}, s.delivered())
}

func TestQueue_CopiesBatch(t *testing.T) {
	s := newBlockingSender()
	q := NewQueue("test", s.send)

	es := msg("original")
	require.True(t, q.Enqueue("a", es))
	es[0].Record["message"] = "mutated"

	close(s.release)
	require.NoError(t, q.Close())
	assert.Equal(t, []string{"a:original"}, s.delivered())
}

func TestQueue_CloseDrains(t *testing.T) {
	var mu sync.Mutex
	var got []string
	q := NewQueue("test", func(_ context.Context, tag string, es EventStream) error {
		mu.Lock()
		defer mu.Unlock()
		got = append(got, es[0].Record["message"].(string))
		return nil
	})

	for _, m := range []string{"a", "b", "c"} {
		require.True(t, q.Enqueue("t", msg(m)))
	}
	require.NoError(t, q.Close())
	require.NoError(t, q.Close())

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, []string{"a", "b", "c"}, got)
	assert.False(t, q.Enqueue("t", msg("late")))
	assert.Equal(t, uint64(1), q.Dropped())
}

func TestQueue_CloseCancelsStalledSend(t *testing.T) {
	s := newBlockingSender()
	q := NewQueue("test", s.send, WithDrainTimeout(50*time.Millisecond))

	require.True(t, q.Enqueue("a", msg("stuck")))
	<-s.started
	require.True(t, q.Enqueue("a", msg("behind")))

	start := time.Now()
	require.NoError(t, q.Close())
	assert.Less(t, time.Since(start), 2*time.Second)

	s.mu.Lock()
	assert.Len(t, s.errs, 1)
	assert.ErrorIs(t, s.errs[0], context.Canceled)
	s.mu.Unlock()
	assert.Equal(t, uint64(1), q.Failed())
	assert.Equal(t, uint64(1), q.Dropped())
	assert.Empty(t, s.delivered())
}

func TestQueue_CountsFailures(t *testing.T) {
	done := make(chan struct{})
	q := NewQueue("test", func(context.Context, string, EventStream) error {
		defer close(done)
		return errors.New("unreachable")
	})

	require.True(t, q.Enqueue("a", EventStream{{}, {}}))
	<-done
	require.NoError(t, q.Close())
	assert.Equal(t, uint64(2), q.Failed())
}
