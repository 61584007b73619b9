package backup

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nerrad567/accessguard-core/internal/card"
	"github.com/nerrad567/accessguard-core/internal/infrastructure/config"
)

type fakeChangeHandler struct {
	mu      sync.Mutex
	changes []card.Change
	err     error
	release chan struct{}
}

func (f *fakeChangeHandler) HandleCardChange(_ context.Context, c card.Change) error {
	if f.release != nil {
		<-f.release
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.changes = append(f.changes, c)
	return f.err
}

func (f *fakeChangeHandler) Changes() []card.Change {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]card.Change(nil), f.changes...)
}

func queueConfig(timeout time.Duration, size int) config.BackupConfig {
	return config.BackupConfig{HandoffTimeout: timeout, QueueSize: size}
}

func TestQueue_Submit(t *testing.T) {
	h := &fakeChangeHandler{}
	q := NewQueue(h, queueConfig(time.Second, 4))
	ctx, cancel := context.WithCancel(context.Background())
	q.Start(ctx)

	change := card.Change{Kind: card.ChangeAdd, CardID: "A1"}
	require.NoError(t, q.Submit(context.Background(), change))
	assert.Equal(t, []card.Change{change}, h.Changes())

	cancel()
	q.Wait()
	assert.ErrorIs(t, q.Submit(context.Background(), change), ErrQueueClosed)
}

func TestQueue_SubmitAfterWorkerExit(t *testing.T) {
	h := &fakeChangeHandler{}
	q := NewQueue(h, queueConfig(time.Second, 4))

	// Worker gone but the stopped flag not yet visible to Submit.
	close(q.done)

	start := time.Now()
	err := q.Submit(context.Background(), card.Change{Kind: card.ChangeAdd, CardID: "A1"})
	assert.ErrorIs(t, err, ErrQueueClosed)
	assert.Less(t, time.Since(start), 500*time.Millisecond, "must not wait out the hand-off timeout")
	assert.Empty(t, h.Changes())
}

func TestQueue_SubmitReturnsHandlerError(t *testing.T) {
	h := &fakeChangeHandler{err: ErrPartialBackup}
	q := NewQueue(h, queueConfig(time.Second, 1))
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	q.Start(ctx)

	err := q.Submit(context.Background(), card.Change{Kind: card.ChangeRemove, CardID: "A1"})
	assert.ErrorIs(t, err, ErrPartialBackup)
}

func TestQueue_Timeout(t *testing.T) {
	h := &fakeChangeHandler{release: make(chan struct{})}
	q := NewQueue(h, queueConfig(20*time.Millisecond, 1))
	ctx, cancel := context.WithCancel(context.Background())
	q.Start(ctx)

	change := card.Change{Kind: card.ChangeAdd, CardID: "A1"}

	start := time.Now()
	err := q.Submit(context.Background(), change)
	assert.ErrorIs(t, err, ErrQueueTimeout)
	assert.Less(t, time.Since(start), time.Second)

	// The backup still completes after the caller gave up.
	close(h.release)
	cancel()
	q.Wait()
	assert.Equal(t, []card.Change{change}, h.Changes())
}

func TestQueue_FullQueueTimesOut(t *testing.T) {
	h := &fakeChangeHandler{release: make(chan struct{})}
	q := NewQueue(h, queueConfig(20*time.Millisecond, 1))
	ctx, cancel := context.WithCancel(context.Background())
	q.Start(ctx)

	// First fills the worker, second fills the buffer, third cannot enqueue.
	var wg sync.WaitGroup
	for i := 0; i < 2; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_ = q.Submit(context.Background(), card.Change{Kind: card.ChangeAdd, CardID: "X"})
		}()
	}
	wg.Wait()

	err := q.Submit(context.Background(), card.Change{Kind: card.ChangeAdd, CardID: "late"})
	assert.ErrorIs(t, err, ErrQueueTimeout)

	close(h.release)
	cancel()
	q.Wait()
}

func TestQueue_ContextCancelled(t *testing.T) {
	h := &fakeChangeHandler{release: make(chan struct{})}
	q := NewQueue(h, queueConfig(time.Second, 1))
	ctx, cancel := context.WithCancel(context.Background())
	q.Start(ctx)

	subCtx, subCancel := context.WithCancel(context.Background())
	subCancel()
	err := q.Submit(subCtx, card.Change{Kind: card.ChangeAdd, CardID: "A1"})
	assert.ErrorIs(t, err, context.Canceled)

	close(h.release)
	cancel()
	q.Wait()
}

func TestQueue_CardChangedNeverFails(t *testing.T) {
	h := &fakeChangeHandler{err: errors.New("disk full")}
	q := NewQueue(h, queueConfig(time.Second, 1))
	ctx, cancel := context.WithCancel(context.Background())
	q.Start(ctx)

	q.CardChanged(context.Background(), card.Change{Kind: card.ChangeAdd, CardID: "A1"})
	assert.Len(t, h.Changes(), 1)

	cancel()
	q.Wait()
	q.CardChanged(context.Background(), card.Change{Kind: card.ChangeAdd, CardID: "A2"})
	assert.Len(t, h.Changes(), 1)
}

func TestQueue_Concurrent(t *testing.T) {
	f := newFixture(t)
	q := NewQueue(f.manager, queueConfig(5*time.Second, 8))
	ctx, cancel := context.WithCancel(context.Background())
	q.Start(ctx)

	tracker := card.NewTracker(f.cards, q)

	var wg sync.WaitGroup
	for _, id := range []string{"A1", "B2", "C3", "D4"} {
		wg.Add(1)
		go func(id string) {
			defer wg.Done()
			assert.NoError(t, tracker.AddCard(context.Background(), id, ""))
		}(id)
	}
	wg.Wait()
	cancel()
	q.Wait()

	adds, err := f.repo.ListByType(context.Background(), TypeCardAdd)
	require.NoError(t, err)
	assert.Len(t, adds, 4)
}
