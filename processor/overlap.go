package processor

import (
	"context"
	"log"
	"sort"
	"time"

	"github.com/paulmach/orb"

	"github.com/earthscan/tsprofile/rasterio"
	"github.com/earthscan/tsprofile/timeseries"
)

// DefaultSampleSize is the per-axis statistics resolution.
const DefaultSampleSize = 16

// OverlapParams configures an overlap classification pass.
type OverlapParams struct {
	TargetExtent orb.Bound
	TargetCRS    string
	// Pivot is the date of interest; nil orders sources by date instead.
	Pivot *time.Time
	// MaxBackward / MaxForward cap the accepted sources strictly before
	// and after the pivot. Negative means unlimited.
	MaxBackward int
	MaxForward  int
	SampleSize  int
	Interval    time.Duration
}

// OverlapTask classifies a snapshot of sources as intersecting the target
// extent with non-empty data or not. Partial result maps never repeat a URI.
type OverlapTask struct {
	task
	Params   OverlapParams
	Sources  []*timeseries.RasterSource
	Partials chan map[string]bool
}

// NewOverlapTask snapshots the source descriptors; the live index is never
// touched from the task goroutine.
func NewOverlapTask(ctx context.Context, sources []*timeseries.RasterSource, params OverlapParams) *OverlapTask {
	if params.SampleSize < 1 {
		params.SampleSize = DefaultSampleSize
	}
	snapshot := make([]*timeseries.RasterSource, len(sources))
	for i, s := range sources {
		snapshot[i] = s.Clone()
	}
	return &OverlapTask{
		task:     newTask(ctx, "overlap", params.Interval),
		Params:   params,
		Sources:  snapshot,
		Partials: make(chan map[string]bool, 100),
	}
}

// clampPivot pins a pivot that falls outside the observed date range to the
// nearest in-range instant, so the backward/forward caps stay consistent
// with the ordering.
func clampPivot(pivot time.Time, sources []*timeseries.RasterSource) time.Time {
	if len(sources) == 0 {
		return pivot
	}
	lo, hi := sources[0].DTG, sources[0].DTG
	for _, s := range sources[1:] {
		if s.DTG.Before(lo) {
			lo = s.DTG
		}
		if s.DTG.After(hi) {
			hi = s.DTG
		}
	}
	if pivot.Before(lo) {
		return lo
	}
	if pivot.After(hi) {
		return hi
	}
	return pivot
}

func (t *OverlapTask) Run() {
	defer close(t.Partials)

	ordered := make([]*timeseries.RasterSource, len(t.Sources))
	copy(ordered, t.Sources)

	var pivot time.Time
	hasPivot := t.Params.Pivot != nil
	if hasPivot {
		pivot = clampPivot(t.Params.Pivot.UTC(), ordered)
		sort.SliceStable(ordered, func(i, j int) bool {
			di := absDuration(ordered[i].DTG.Sub(pivot))
			dj := absDuration(ordered[j].DTG.Sub(pivot))
			if di != dj {
				return di < dj
			}
			return ordered[i].DTG.Before(ordered[j].DTG)
		})
	} else {
		sort.SliceStable(ordered, func(i, j int) bool {
			return ordered[i].DTG.Before(ordered[j].DTG)
		})
	}

	// target extent per source CRS, computed on demand
	extentCache := map[string]*orb.Bound{}
	targetIn := func(crs string) (orb.Bound, bool) {
		if cached, found := extentCache[crs]; found {
			return deref(cached)
		}
		tr, err := rasterio.NewTransform(t.Params.TargetCRS, crs)
		if err != nil {
			extentCache[crs] = nil
			return orb.Bound{}, false
		}
		defer tr.Close()
		b, ok := tr.Bound(t.Params.TargetExtent)
		if !ok {
			extentCache[crs] = nil
			return orb.Bound{}, false
		}
		extentCache[crs] = &b
		return b, true
	}

	var invalid []InvalidSource
	batch := map[string]bool{}
	nBackward, nForward := 0, 0
	lastFlush := time.Now()

	flush := func() {
		if len(batch) == 0 {
			return
		}
		t.Partials <- batch
		batch = map[string]bool{}
	}

	for i, s := range ordered {
		if time.Since(lastFlush) >= t.Interval {
			if t.cancelled() {
				t.finish(timeseries.OutcomeCancelled, invalid, timeseries.ErrCancelled)
				return
			}
			flush()
			t.emitProgress(float64(i) / float64(len(ordered)))
			lastFlush = time.Now()
		}

		if hasPivot {
			if s.DTG.Before(pivot) && t.Params.MaxBackward >= 0 && nBackward >= t.Params.MaxBackward {
				continue
			}
			if s.DTG.After(pivot) && t.Params.MaxForward >= 0 && nForward >= t.Params.MaxForward {
				continue
			}
		}

		target, ok := targetIn(s.CRS)
		if !ok {
			if t.Verbose {
				log.Printf("%s: %s: %v", t.ID, s.URI, timeseries.ErrExtentEmpty)
			}
			invalid = append(invalid, InvalidSource{URI: s.URI, Reason: timeseries.ErrExtentEmpty.Error()})
			continue
		}

		if !target.Intersects(s.Extent) {
			batch[s.URI] = false
			continue
		}

		window, _ := rasterio.Intersection(target, s.Extent)
		ds, err := rasterio.Open(s.URI)
		if err != nil {
			invalid = append(invalid, InvalidSource{URI: s.URI, Reason: err.Error()})
			continue
		}
		statMin, statMax, err := ds.Statistics(1, window, t.Params.SampleSize)
		ds.Close()
		if err != nil {
			invalid = append(invalid, InvalidSource{URI: s.URI, Reason: err.Error()})
			continue
		}

		accepted := !rasterio.IsNoStats(statMin, statMax)
		batch[s.URI] = accepted
		if accepted && hasPivot {
			if s.DTG.Before(pivot) {
				nBackward++
			} else if s.DTG.After(pivot) {
				nForward++
			}
		}
	}

	if t.cancelled() {
		t.finish(timeseries.OutcomeCancelled, invalid, timeseries.ErrCancelled)
		return
	}

	flush()
	t.emitProgress(1.0)
	t.finish(timeseries.OutcomeSuccess, invalid, nil)
}

func absDuration(d time.Duration) time.Duration {
	if d < 0 {
		return -d
	}
	return d
}

func deref(b *orb.Bound) (orb.Bound, bool) {
	if b == nil {
		return orb.Bound{}, false
	}
	return *b, true
}
