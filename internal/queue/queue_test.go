package queue

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/lucas/overmesh/internal/meshtypes"
)

func TestActionsProcessedInEnqueueOrder(t *testing.T) {
	var order []int
	done := make(chan struct{})

	q := New(func(ctx context.Context, action meshtypes.Action) (any, error) {
		n := action.(meshtypes.LocalPeerDelete)
		order = append(order, len(n.Name))
		if len(order) == 3 {
			close(done)
		}
		return nil, nil
	}, nil, 0)
	defer q.Stop()

	q.Enqueue(context.Background(), meshtypes.LocalPeerDelete{Name: "a"})
	q.Enqueue(context.Background(), meshtypes.LocalPeerDelete{Name: "bb"})
	q.Enqueue(context.Background(), meshtypes.LocalPeerDelete{Name: "ccc"})

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for all actions to process")
	}
	if len(order) != 3 || order[0] != 1 || order[1] != 2 || order[2] != 3 {
		t.Fatalf("expected FIFO order [1 2 3], got %v", order)
	}
}

func TestNoOverlappingPipelineInvocations(t *testing.T) {
	var inFlight int32
	var maxObserved int32

	q := New(func(ctx context.Context, action meshtypes.Action) (any, error) {
		cur := atomic.AddInt32(&inFlight, 1)
		if cur > atomic.LoadInt32(&maxObserved) {
			atomic.StoreInt32(&maxObserved, cur)
		}
		time.Sleep(5 * time.Millisecond)
		atomic.AddInt32(&inFlight, -1)
		return nil, nil
	}, nil, 0)
	defer q.Stop()

	var results []<-chan Result
	for i := 0; i < 10; i++ {
		results = append(results, q.Enqueue(context.Background(), meshtypes.LocalPeerDelete{Name: "x"}))
	}
	for _, r := range results {
		<-r
	}

	if atomic.LoadInt32(&maxObserved) != 1 {
		t.Fatalf("expected at most 1 concurrent pipeline invocation, observed %d", maxObserved)
	}
}

func TestEnqueueAndWaitPropagatesPipelineError(t *testing.T) {
	wantErr := errors.New("boom")
	q := New(func(ctx context.Context, action meshtypes.Action) (any, error) {
		return nil, wantErr
	}, nil, 0)
	defer q.Stop()

	_, err := q.EnqueueAndWait(context.Background(), meshtypes.LocalPeerDelete{Name: "a"})
	if !errors.Is(err, wantErr) {
		t.Fatalf("expected wrapped %v, got %v", wantErr, err)
	}
}

func TestQueueContinuesAfterPipelineFailure(t *testing.T) {
	var processed int32
	q := New(func(ctx context.Context, action meshtypes.Action) (any, error) {
		n := atomic.AddInt32(&processed, 1)
		if n == 1 {
			return nil, errors.New("first action fails")
		}
		return nil, nil
	}, nil, 0)
	defer q.Stop()

	_, err1 := q.EnqueueAndWait(context.Background(), meshtypes.LocalPeerDelete{Name: "a"})
	if err1 == nil {
		t.Fatal("expected first action to fail")
	}
	_, err2 := q.EnqueueAndWait(context.Background(), meshtypes.LocalPeerDelete{Name: "b"})
	if err2 != nil {
		t.Fatalf("expected second action to succeed despite first failing, got %v", err2)
	}
}

func TestEnqueueAfterStopReturnsErrStopped(t *testing.T) {
	q := New(func(ctx context.Context, action meshtypes.Action) (any, error) {
		return nil, nil
	}, nil, 0)
	q.Stop()
	<-q.Done()

	_, err := q.EnqueueAndWait(context.Background(), meshtypes.LocalPeerDelete{Name: "a"})
	if !errors.Is(err, ErrStopped) {
		t.Fatalf("expected ErrStopped, got %v", err)
	}
}
