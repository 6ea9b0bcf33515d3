// Package processor holds the cancellable background tasks of the engine:
// ingestion, overlap classification and profile extraction. Tasks never touch
// index-owned state; they emit immutable batches that the coordinator
// applies.
package processor

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/earthscan/tsprofile/timeseries"
)

// DefaultProgressInterval is the flush/cancellation boundary period.
const DefaultProgressInterval = 2 * time.Second

var taskSeq uint64

func nextTaskID(kind string) string {
	return fmt.Sprintf("%s-%d", kind, atomic.AddUint64(&taskSeq, 1))
}

// InvalidSource is one (uri, reason) entry on a task's error list.
type InvalidSource struct {
	URI    string
	Reason string
}

// Completion is the single terminal emission of a task.
type Completion struct {
	TaskID  string
	Outcome timeseries.Outcome
	Invalid []InvalidSource
	Err     error
}

// task carries the plumbing shared by the concrete tasks.
type task struct {
	ID       string
	Context  context.Context
	cancel   context.CancelFunc
	Progress chan float64
	Done     chan *Completion
	Interval time.Duration
	Verbose  bool
}

func newTask(ctx context.Context, kind string, interval time.Duration) task {
	if interval <= 0 {
		interval = DefaultProgressInterval
	}
	ctx, cancel := context.WithCancel(ctx)
	return task{
		ID:       nextTaskID(kind),
		Context:  ctx,
		cancel:   cancel,
		Progress: make(chan float64, 100),
		Done:     make(chan *Completion, 1),
		Interval: interval,
	}
}

// Cancel requests cooperative cancellation. Idempotent; observed at the next
// progress boundary.
func (t *task) Cancel() {
	t.cancel()
}

func (t *task) cancelled() bool {
	select {
	case <-t.Context.Done():
		return true
	default:
		return false
	}
}

// emitProgress never blocks; a slow consumer only loses intermediate
// fractions, not the final one.
func (t *task) emitProgress(fraction float64) {
	select {
	case t.Progress <- fraction:
	default:
	}
}

func (t *task) finish(outcome timeseries.Outcome, invalid []InvalidSource, err error) {
	close(t.Progress)
	t.Done <- &Completion{TaskID: t.ID, Outcome: outcome, Invalid: invalid, Err: err}
	close(t.Done)
}
