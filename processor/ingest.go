package processor

import (
	"context"
	"log"
	"time"

	"github.com/earthscan/tsprofile/timeseries"
)

// SourceBatch is one immutable batch streamed to the index sink.
type SourceBatch struct {
	Sources []*timeseries.RasterSource
}

// IngestionTask turns a list of URIs into RasterSource batches. Failures are
// accumulated per URI and reported on the completion; they never abort the
// task.
type IngestionTask struct {
	task
	URIs       []string
	Visibility map[string]bool
	Batches    chan *SourceBatch
}

func NewIngestionTask(ctx context.Context, uris []string, visibility map[string]bool, interval time.Duration) *IngestionTask {
	return &IngestionTask{
		task:       newTask(ctx, "ingest", interval),
		URIs:       uris,
		Visibility: visibility,
		Batches:    make(chan *SourceBatch, 100),
	}
}

// Run enumerates the URIs in order, flushing the current batch at every
// progress boundary. Cancellation is observed at batch boundaries; a
// cancelled task does not flush its partial batch.
func (t *IngestionTask) Run() {
	defer close(t.Batches)

	var batch []*timeseries.RasterSource
	var invalid []InvalidSource
	lastFlush := time.Now()

	flush := func() {
		if len(batch) == 0 {
			return
		}
		t.Batches <- &SourceBatch{Sources: batch}
		batch = nil
	}

	for i, uri := range t.URIs {
		s, err := timeseries.NewRasterSource(uri)
		if err != nil {
			if t.Verbose {
				log.Printf("%s: %v", t.ID, err)
			}
			invalid = append(invalid, InvalidSource{URI: uri, Reason: err.Error()})
		} else {
			if v, found := t.Visibility[uri]; found {
				s.SetVisible(v)
			}
			batch = append(batch, s)
		}

		if time.Since(lastFlush) >= t.Interval {
			if t.cancelled() {
				t.finish(timeseries.OutcomeCancelled, invalid, timeseries.ErrCancelled)
				return
			}
			flush()
			t.emitProgress(float64(i+1) / float64(len(t.URIs)))
			lastFlush = time.Now()
		}
	}

	if t.cancelled() {
		t.finish(timeseries.OutcomeCancelled, invalid, timeseries.ErrCancelled)
		return
	}

	flush()
	t.emitProgress(1.0)
	if t.Verbose {
		log.Printf("%s: loading finished, %d of %d sources invalid", t.ID, len(invalid), len(t.URIs))
	}
	t.finish(timeseries.OutcomeSuccess, invalid, nil)
}
