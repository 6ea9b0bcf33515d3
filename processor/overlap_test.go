package processor

import (
	"context"
	"testing"
	"time"

	"github.com/paulmach/orb"

	"github.com/earthscan/tsprofile/rasterio"
	"github.com/earthscan/tsprofile/timeseries"
)

// overlapSource registers a raster at an offset along the x axis and returns
// its descriptor. fill is the constant cell value; NaN cells are produced by
// the caller mutating the dataset.
func overlapSource(t *testing.T, name string, acquired time.Time, xOrigin float64, fill float64) *timeseries.RasterSource {
	t.Helper()
	data := make([]float64, 16)
	for i := range data {
		data[i] = fill
	}
	uri := rasterio.RegisterMemDataset(&rasterio.MemDataset{
		Name:         name,
		SRS:          "EPSG:4326",
		GeoTransform: [6]float64{xOrigin, 1, 0, -30, 0, -1},
		NBands:       1,
		XSize:        4,
		YSize:        4,
		Data:         [][]float64{data},
		Time:         acquired,
		HasTime:      true,
	})
	s, err := timeseries.NewRasterSource(uri)
	if err != nil {
		t.Fatalf("failed to build source %s: %v", uri, err)
	}
	return s
}

func collectVerdicts(t *testing.T, task *OverlapTask) map[string]bool {
	t.Helper()
	out := map[string]bool{}
	for partial := range task.Partials {
		for uri, v := range partial {
			if _, seen := out[uri]; seen {
				t.Errorf("uri %s reported twice", uri)
			}
			out[uri] = v
		}
	}
	return out
}

func TestOverlapTask(t *testing.T) {
	acquired, _ := time.Parse(time.RFC3339, "2024-01-15T10:00:00Z")
	inside := overlapSource(t, "ov_inside", acquired, 140, 7)
	outside := overlapSource(t, "ov_outside", acquired.AddDate(0, 0, 1), 300, 7)
	defer rasterio.UnregisterMemDataset("ov_inside")
	defer rasterio.UnregisterMemDataset("ov_outside")

	task := NewOverlapTask(context.Background(), []*timeseries.RasterSource{inside, outside}, OverlapParams{
		TargetExtent: orb.Bound{Min: orb.Point{139, -35}, Max: orb.Point{145, -29}},
		TargetCRS:    "EPSG:4326",
		MaxBackward:  -1,
		MaxForward:   -1,
		Interval:     time.Minute,
	})
	go task.Run()

	verdicts := collectVerdicts(t, task)
	c := <-task.Done

	if c.Outcome != timeseries.OutcomeSuccess {
		t.Fatalf("outcome: expected success, actual %s (%v)", c.Outcome, c.Err)
	}
	if v, found := verdicts[inside.URI]; !found || !v {
		t.Errorf("intersecting source must be accepted: %v, %v", v, found)
	}
	if v, found := verdicts[outside.URI]; !found || v {
		t.Errorf("disjoint source must be rejected without opening it: %v, %v", v, found)
	}
}

func TestOverlapTaskNoDataWindow(t *testing.T) {
	acquired, _ := time.Parse(time.RFC3339, "2024-01-15T10:00:00Z")
	nodata := 0.0
	uri := rasterio.RegisterMemDataset(&rasterio.MemDataset{
		Name:         "ov_void",
		SRS:          "EPSG:4326",
		GeoTransform: [6]float64{140, 1, 0, -30, 0, -1},
		NBands:       1,
		XSize:        4,
		YSize:        4,
		NoDataValue:  &nodata,
		Data:         [][]float64{make([]float64, 16)},
		Time:         acquired,
		HasTime:      true,
	})
	defer rasterio.UnregisterMemDataset("ov_void")
	s, err := timeseries.NewRasterSource(uri)
	if err != nil {
		t.Fatalf("failed to build source: %v", err)
	}

	task := NewOverlapTask(context.Background(), []*timeseries.RasterSource{s}, OverlapParams{
		TargetExtent: orb.Bound{Min: orb.Point{139, -35}, Max: orb.Point{145, -29}},
		TargetCRS:    "EPSG:4326",
		MaxBackward:  -1,
		MaxForward:   -1,
		Interval:     time.Minute,
	})
	go task.Run()

	verdicts := collectVerdicts(t, task)
	<-task.Done

	if v, found := verdicts[uri]; !found || v {
		t.Errorf("all-nodata window must be rejected: %v, %v", v, found)
	}
}

func TestOverlapTaskPivotCaps(t *testing.T) {
	pivot, _ := time.Parse(time.RFC3339, "2024-01-15T00:00:00Z")
	before := overlapSource(t, "ov_before", pivot.AddDate(0, 0, -3), 140, 1)
	at := overlapSource(t, "ov_at", pivot, 140, 1)
	after1 := overlapSource(t, "ov_after1", pivot.AddDate(0, 0, 2), 140, 1)
	after2 := overlapSource(t, "ov_after2", pivot.AddDate(0, 0, 5), 140, 1)
	for _, name := range []string{"ov_before", "ov_at", "ov_after1", "ov_after2"} {
		defer rasterio.UnregisterMemDataset(name)
	}

	task := NewOverlapTask(context.Background(), []*timeseries.RasterSource{before, at, after1, after2}, OverlapParams{
		TargetExtent: orb.Bound{Min: orb.Point{139, -35}, Max: orb.Point{145, -29}},
		TargetCRS:    "EPSG:4326",
		Pivot:        &pivot,
		MaxBackward:  0,
		MaxForward:   1,
		Interval:     time.Minute,
	})
	go task.Run()

	verdicts := collectVerdicts(t, task)
	c := <-task.Done

	if c.Outcome != timeseries.OutcomeSuccess {
		t.Fatalf("outcome: expected success, actual %s (%v)", c.Outcome, c.Err)
	}
	if _, found := verdicts[before.URI]; found {
		t.Errorf("max_backward=0 must skip every source before the pivot")
	}
	if v, found := verdicts[at.URI]; !found || !v {
		t.Errorf("pivot-dated source must be accepted: %v, %v", v, found)
	}
	if v, found := verdicts[after1.URI]; !found || !v {
		t.Errorf("nearest forward source must be accepted: %v, %v", v, found)
	}
	if _, found := verdicts[after2.URI]; found {
		t.Errorf("max_forward=1 must skip the second forward source")
	}
}

func TestClampPivot(t *testing.T) {
	acquired, _ := time.Parse(time.RFC3339, "2024-01-15T10:00:00Z")
	sources := []*timeseries.RasterSource{
		{DTG: acquired},
		{DTG: acquired.AddDate(0, 0, 10)},
	}

	early := acquired.AddDate(0, -1, 0)
	if got := clampPivot(early, sources); !got.Equal(acquired) {
		t.Errorf("early pivot must clamp to the first observation, actual %v", got)
	}
	late := acquired.AddDate(0, 1, 0)
	if got := clampPivot(late, sources); !got.Equal(acquired.AddDate(0, 0, 10)) {
		t.Errorf("late pivot must clamp to the last observation, actual %v", got)
	}
	mid := acquired.AddDate(0, 0, 5)
	if got := clampPivot(mid, sources); !got.Equal(mid) {
		t.Errorf("in-range pivot must pass through, actual %v", got)
	}
}
