package processor

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/earthscan/tsprofile/rasterio"
	"github.com/earthscan/tsprofile/timeseries"
)

// registerTestRaster publishes a 4x4 two-band in-memory raster with a known
// acquisition time and returns its URI.
func registerTestRaster(name string, acquired time.Time, fill float64) string {
	data := make([]float64, 16)
	for i := range data {
		data[i] = fill
	}
	return rasterio.RegisterMemDataset(&rasterio.MemDataset{
		Name:         name,
		SRS:          "EPSG:4326",
		GeoTransform: [6]float64{140, 1, 0, -30, 0, -1},
		NBands:       2,
		XSize:        4,
		YSize:        4,
		DType:        "Float32",
		Data:         [][]float64{data, data},
		Time:         acquired,
		HasTime:      true,
	})
}

func drainBatches(t *testing.T, task *IngestionTask) []*timeseries.RasterSource {
	t.Helper()
	var out []*timeseries.RasterSource
	for batch := range task.Batches {
		out = append(out, batch.Sources...)
	}
	return out
}

func TestIngestionTask(t *testing.T) {
	acquired, _ := time.Parse(time.RFC3339, "2024-01-15T10:00:00Z")
	var uris []string
	for i := 0; i < 3; i++ {
		name := fmt.Sprintf("ingest_%d", i)
		uris = append(uris, registerTestRaster(name, acquired.AddDate(0, 0, i), float64(i)))
		defer rasterio.UnregisterMemDataset(name)
	}
	uris = append(uris, "mem://ingest_missing")

	task := NewIngestionTask(context.Background(), uris, map[string]bool{uris[1]: false}, time.Minute)
	go task.Run()

	sources := drainBatches(t, task)
	c := <-task.Done

	if c.Outcome != timeseries.OutcomeSuccess {
		t.Fatalf("outcome: expected success, actual %s (%v)", c.Outcome, c.Err)
	}
	if len(sources) != 3 {
		t.Fatalf("expected 3 sources, actual %d", len(sources))
	}
	if len(c.Invalid) != 1 || c.Invalid[0].URI != "mem://ingest_missing" {
		t.Errorf("expected one invalid entry for the missing raster, actual %v", c.Invalid)
	}

	for i, s := range sources {
		if s.URI != uris[i] {
			t.Errorf("source %d out of order: %s", i, s.URI)
		}
		if !s.DTG.Equal(acquired.AddDate(0, 0, i)) {
			t.Errorf("source %d: wrong acquisition date %v", i, s.DTG)
		}
		if s.Bands != 2 {
			t.Errorf("source %d: expected 2 bands, actual %d", i, s.Bands)
		}
	}
	if sources[1].IsVisible() {
		t.Errorf("requested visibility not applied to %s", uris[1])
	}
	if !sources[0].IsVisible() || !sources[2].IsVisible() {
		t.Errorf("sources must default to visible")
	}
}

func TestIngestionTaskProgress(t *testing.T) {
	acquired, _ := time.Parse(time.RFC3339, "2024-01-15T10:00:00Z")
	uri := registerTestRaster("ingest_progress", acquired, 1)
	defer rasterio.UnregisterMemDataset("ingest_progress")

	task := NewIngestionTask(context.Background(), []string{uri}, nil, time.Minute)
	go task.Run()
	drainBatches(t, task)

	var last float64
	for fraction := range task.Progress {
		if fraction < last {
			t.Errorf("progress went backwards: %v after %v", fraction, last)
		}
		last = fraction
	}
	if last != 1.0 {
		t.Errorf("final progress: expected 1.0, actual %v", last)
	}
	<-task.Done
}

func TestIngestionTaskCancel(t *testing.T) {
	acquired, _ := time.Parse(time.RFC3339, "2024-01-15T10:00:00Z")
	uri := registerTestRaster("ingest_cancel", acquired, 1)
	defer rasterio.UnregisterMemDataset("ingest_cancel")

	task := NewIngestionTask(context.Background(), []string{uri}, nil, time.Minute)
	task.Cancel()
	go task.Run()

	sources := drainBatches(t, task)
	c := <-task.Done

	if c.Outcome != timeseries.OutcomeCancelled {
		t.Errorf("outcome: expected cancelled, actual %s", c.Outcome)
	}
	if len(sources) != 0 {
		t.Errorf("cancelled task must not flush batches, actual %d sources", len(sources))
	}
}
