package backup

import (
	"context"
	"errors"
	"time"

	"go.uber.org/atomic"

	"github.com/nerrad567/accessguard-core/internal/card"
	"github.com/nerrad567/accessguard-core/internal/infrastructure/config"
)

// changeHandler is the part of Manager the queue worker drives.
type changeHandler interface {
	HandleCardChange(ctx context.Context, change card.Change) error
}

type request struct {
	change card.Change

	// result is buffered so the worker never blocks on a caller that
	// has already given up.
	result chan error
}

// Queue hands card-change backups from the MQTT callback goroutine to a
// single worker. Submit waits a bounded time for the backup to finish;
// when the wait runs out the backup still completes in the background.
// One worker keeps backups serial, which suits SQLite's single writer.
type Queue struct {
	handler changeHandler
	reqs    chan request
	timeout time.Duration
	logger  Logger

	stopped *atomic.Bool
	done    chan struct{}
}

// NewQueue creates a queue with the configured capacity and hand-off
// timeout. Call Start before submitting.
func NewQueue(handler changeHandler, cfg config.BackupConfig) *Queue {
	size := cfg.QueueSize
	if size <= 0 {
		size = 1
	}
	return &Queue{
		handler: handler,
		reqs:    make(chan request, size),
		timeout: cfg.HandoffTimeout,
		logger:  noopLogger{},
		stopped: atomic.NewBool(false),
		done:    make(chan struct{}),
	}
}

// SetLogger sets the logger for the queue.
func (q *Queue) SetLogger(logger Logger) {
	q.logger = logger
}

// Start runs the worker until ctx is cancelled. Requests already queued at
// that point are still processed; Wait blocks until they are.
func (q *Queue) Start(ctx context.Context) {
	go q.drain(ctx)
}

// Wait blocks until the worker has exited.
func (q *Queue) Wait() {
	<-q.done
}

func (q *Queue) drain(ctx context.Context) {
	defer close(q.done)
	for {
		select {
		case r := <-q.reqs:
			q.process(r)
		case <-ctx.Done():
			q.stopped.Store(true)
			for {
				select {
				case r := <-q.reqs:
					q.process(r)
				default:
					return
				}
			}
		}
	}
}

// process runs with a background context: a backup is never cut short
// half-way through its two writes.
func (q *Queue) process(r request) {
	err := q.handler.HandleCardChange(context.Background(), r.change)
	if err != nil {
		q.logger.Error("card change backup failed",
			"kind", string(r.change.Kind),
			"card_id", r.change.CardID,
			"error", err,
		)
	}
	r.result <- err
}

// Submit queues a backup for change and waits for it. It returns the
// backup's error, ErrQueueTimeout when neither queueing nor completion
// happened within the timeout, ErrQueueClosed after shutdown, or the
// context's error.
func (q *Queue) Submit(ctx context.Context, change card.Change) error {
	if q.stopped.Load() {
		return ErrQueueClosed
	}

	timer := time.NewTimer(q.timeout)
	defer timer.Stop()

	r := request{change: change, result: make(chan error, 1)}
	select {
	case q.reqs <- r:
	case <-timer.C:
		return ErrQueueTimeout
	case <-ctx.Done():
		return ctx.Err()
	}

	select {
	case err := <-r.result:
		return err
	case <-q.done:
		// The worker sends the result before exiting, so an empty result
		// here means the request landed in the buffer after the last drain.
		select {
		case err := <-r.result:
			return err
		default:
			return ErrQueueClosed
		}
	case <-timer.C:
		return ErrQueueTimeout
	case <-ctx.Done():
		return ctx.Err()
	}
}

// CardChanged implements card.ChangeNotifier. Hand-off failures are logged
// and never reach the registry mutation that triggered them.
func (q *Queue) CardChanged(ctx context.Context, change card.Change) {
	err := q.Submit(ctx, change)
	switch {
	case err == nil:
	case errors.Is(err, ErrQueueTimeout):
		q.logger.Warn("card change backup still running after hand-off timeout",
			"kind", string(change.Kind), "card_id", change.CardID, "timeout", q.timeout.String())
	default:
		q.logger.Warn("card change backup not completed",
			"kind", string(change.Kind), "card_id", change.CardID, "error", err)
	}
}
