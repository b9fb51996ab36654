// Package queue implements the single-writer action queue: a strictly FIFO
// worker that serializes pipeline invocations so that plan, commit, and
// propagation derivation are atomic with respect to every observer.
package queue

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/lucas/overmesh/internal/meshtypes"
)

// ErrStopped is returned by Enqueue once the queue has been stopped.
var ErrStopped = errors.New("queue: stopped")

// Pipeline runs plan, commit, and post-commit for one action. It is
// supplied by the orchestrator (internal/bus); the queue itself knows
// nothing about the RIB or propagations.
type Pipeline func(ctx context.Context, action meshtypes.Action) (any, error)

// Result is delivered on the channel Enqueue returns.
type Result struct {
	Value any
	Err   error
}

type job struct {
	ctx      context.Context
	action   meshtypes.Action
	resultCh chan Result
}

// ActionQueue serializes Pipeline invocations: at most one runs at a time,
// actions run in enqueue order, and a follow-up action enqueued from inside
// the pipeline goes to the tail rather than recursing.
type ActionQueue struct {
	pipeline Pipeline
	logger   *slog.Logger

	mu     sync.Mutex
	closed bool

	jobs chan job
	stop chan struct{}
	done chan struct{}
}

// New starts the queue's worker goroutine. depth bounds how many pending
// actions may be buffered before Enqueue blocks; 0 chooses a sensible
// default.
func New(pipeline Pipeline, logger *slog.Logger, depth int) *ActionQueue {
	if logger == nil {
		logger = slog.Default()
	}
	if depth <= 0 {
		depth = 256
	}
	q := &ActionQueue{
		pipeline: pipeline,
		logger:   logger,
		jobs:     make(chan job, depth),
		stop:     make(chan struct{}),
		done:     make(chan struct{}),
	}
	go q.run()
	return q
}

func (q *ActionQueue) run() {
	defer close(q.done)
	for {
		select {
		case j := <-q.jobs:
			value, err := q.pipeline(j.ctx, j.action)
			if err != nil {
				q.logger.Warn("pipeline rejected action", "action", j.action.Kind(), "error", err)
			}
			j.resultCh <- Result{Value: value, Err: err}
		case <-q.stop:
			// Anything already sitting in the buffer was enqueued before
			// Stop observed (see the mutex in Enqueue/Stop), so it must be
			// drained here rather than left to hang forever.
			for {
				select {
				case j := <-q.jobs:
					j.resultCh <- Result{Err: ErrStopped}
				default:
					return
				}
			}
		}
	}
}

// Enqueue appends action to the tail of the queue and returns a channel
// that receives exactly one Result once the pipeline has processed it.
func (q *ActionQueue) Enqueue(ctx context.Context, action meshtypes.Action) <-chan Result {
	resultCh := make(chan Result, 1)

	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		resultCh <- Result{Err: ErrStopped}
		return resultCh
	}
	q.jobs <- job{ctx: ctx, action: action, resultCh: resultCh}
	return resultCh
}

// EnqueueAndWait is a convenience wrapper for callers that want to block
// until the action has been processed, honoring ctx cancellation.
func (q *ActionQueue) EnqueueAndWait(ctx context.Context, action meshtypes.Action) (any, error) {
	resultCh := q.Enqueue(ctx, action)
	select {
	case res := <-resultCh:
		return res.Value, res.Err
	case <-ctx.Done():
		return nil, fmt.Errorf("queue: %w", ctx.Err())
	}
}

// Stop halts the worker goroutine. Pending actions in the buffer are
// dropped; in-flight Enqueue callers receive ErrStopped. Stop does not wait
// for the worker to exit — callers needing that should select on Done().
func (q *ActionQueue) Stop() {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		return
	}
	q.closed = true
	close(q.stop)
}

// Done reports when the worker goroutine has exited.
func (q *ActionQueue) Done() <-chan struct{} {
	return q.done
}
