package processor

import (
	"context"
	"math"
	"testing"
	"time"

	"github.com/paulmach/orb"

	"github.com/earthscan/tsprofile/rasterio"
	"github.com/earthscan/tsprofile/timeseries"
)

// profileRaster registers a 4x4 two-band raster whose band values are
// band*100 + fill, with an optional NaN hole at cell (0, 0) of band 2.
func profileRaster(name string, acquired time.Time, fill float64, hole bool) string {
	b1 := make([]float64, 16)
	b2 := make([]float64, 16)
	for i := range b1 {
		b1[i] = 100 + fill
		b2[i] = 200 + fill
	}
	if hole {
		b2[0] = math.NaN()
	}
	return rasterio.RegisterMemDataset(&rasterio.MemDataset{
		Name:         name,
		SRS:          "EPSG:4326",
		GeoTransform: [6]float64{140, 1, 0, -30, 0, -1},
		NBands:       2,
		XSize:        4,
		YSize:        4,
		DType:        "Float32",
		Data:         [][]float64{b1, b2},
		Time:         acquired,
		HasTime:      true,
	})
}

func runProfileTask(t *testing.T, req ProfileRequest) ([]*timeseries.TemporalProfile, *Completion) {
	t.Helper()
	task := NewProfileTask(context.Background(), req)
	go task.Run()
	profiles := <-task.Out
	c := <-task.Done
	return profiles, c
}

func TestProfileTask(t *testing.T) {
	t0, _ := time.Parse(time.RFC3339, "2024-01-01T00:00:00Z")
	t1, _ := time.Parse(time.RFC3339, "2024-02-01T00:00:00Z")

	// Feed the later acquisition first; the profile must come out sorted.
	uris := []string{
		profileRaster("prof_b", t1, 2, false),
		profileRaster("prof_a", t0, 1, false),
	}
	defer rasterio.UnregisterMemDataset("prof_a")
	defer rasterio.UnregisterMemDataset("prof_b")

	profiles, c := runProfileTask(t, ProfileRequest{
		Points:      []orb.Point{{140.5, -30.5}, {10, 10}},
		CRS:         "EPSG:4326",
		URIs:        uris,
		Workers:     2,
		SaveSources: true,
		Interval:    time.Minute,
	})

	if c.Outcome != timeseries.OutcomeSuccess {
		t.Fatalf("outcome: expected success, actual %s (%v)", c.Outcome, c.Err)
	}
	if len(c.Invalid) != 0 {
		t.Fatalf("unexpected invalid entries: %v", c.Invalid)
	}
	if len(profiles) != 2 {
		t.Fatalf("expected one profile slot per point, actual %d", len(profiles))
	}

	p := profiles[0]
	if p == nil {
		t.Fatalf("covered point produced no profile")
	}
	if err := p.Verify(); err != nil {
		t.Fatalf("emitted profile fails verification: %v", err)
	}
	if p.Len() != 2 {
		t.Fatalf("expected 2 observations, actual %d", p.Len())
	}
	if p.Dates[0] != "2024-01-01T00:00:00.000" || p.Dates[1] != "2024-02-01T00:00:00.000" {
		t.Errorf("dates not ascending: %v", p.Dates)
	}
	if len(p.SensorIDs) != 1 {
		t.Errorf("identical rasters must share a sensor, actual %d ids", len(p.SensorIDs))
	}
	if *p.Values[0][0] != 101 || *p.Values[0][1] != 201 {
		t.Errorf("first observation values: expected (101, 201), actual (%v, %v)", *p.Values[0][0], *p.Values[0][1])
	}
	if *p.Values[1][0] != 102 || *p.Values[1][1] != 202 {
		t.Errorf("second observation values: expected (102, 202), actual (%v, %v)", *p.Values[1][0], *p.Values[1][1])
	}
	if len(p.Sources) != 2 || p.Sources[0] != "mem://prof_a" || p.Sources[1] != "mem://prof_b" {
		t.Errorf("sources column: %v", p.Sources)
	}

	if profiles[1] != nil {
		t.Errorf("point outside every raster must yield a nil profile, actual %v", profiles[1])
	}
}

func TestProfileTaskPartialNull(t *testing.T) {
	t0, _ := time.Parse(time.RFC3339, "2024-01-01T00:00:00Z")
	uri := profileRaster("prof_hole", t0, 3, true)
	defer rasterio.UnregisterMemDataset("prof_hole")

	profiles, c := runProfileTask(t, ProfileRequest{
		Points:   []orb.Point{{140.5, -30.5}},
		CRS:      "EPSG:4326",
		URIs:     []string{uri},
		Workers:  1,
		Interval: time.Minute,
	})

	if c.Outcome != timeseries.OutcomeSuccess {
		t.Fatalf("outcome: expected success, actual %s (%v)", c.Outcome, c.Err)
	}
	p := profiles[0]
	if p == nil || p.Len() != 1 {
		t.Fatalf("expected one observation, actual %v", p)
	}
	if p.Values[0][0] == nil || *p.Values[0][0] != 103 {
		t.Errorf("band 1 value: expected 103, actual %v", p.Values[0][0])
	}
	if p.Values[0][1] != nil {
		t.Errorf("band 2 hole must encode as null, actual %v", *p.Values[0][1])
	}
}

func TestProfileTaskInvalidSource(t *testing.T) {
	t0, _ := time.Parse(time.RFC3339, "2024-01-01T00:00:00Z")
	uri := profileRaster("prof_ok", t0, 4, false)
	defer rasterio.UnregisterMemDataset("prof_ok")

	profiles, c := runProfileTask(t, ProfileRequest{
		Points:   []orb.Point{{140.5, -30.5}},
		CRS:      "EPSG:4326",
		URIs:     []string{uri, "mem://prof_gone"},
		Workers:  2,
		Interval: time.Minute,
	})

	if c.Outcome != timeseries.OutcomeSuccess {
		t.Fatalf("a bad source must not abort the task: %s (%v)", c.Outcome, c.Err)
	}
	if len(c.Invalid) != 1 || c.Invalid[0].URI != "mem://prof_gone" {
		t.Errorf("expected one invalid entry, actual %v", c.Invalid)
	}
	if profiles[0] == nil || profiles[0].Len() != 1 {
		t.Errorf("valid source must still be sampled: %v", profiles[0])
	}
}

func TestProfileTaskCancel(t *testing.T) {
	t0, _ := time.Parse(time.RFC3339, "2024-01-01T00:00:00Z")
	uri := profileRaster("prof_cancel", t0, 5, false)
	defer rasterio.UnregisterMemDataset("prof_cancel")

	task := NewProfileTask(context.Background(), ProfileRequest{
		Points:   []orb.Point{{140.5, -30.5}},
		CRS:      "EPSG:4326",
		URIs:     []string{uri},
		Workers:  1,
		Interval: time.Minute,
	})
	task.Cancel()
	go task.Run()

	profiles := <-task.Out
	c := <-task.Done
	if c.Outcome != timeseries.OutcomeCancelled {
		t.Errorf("outcome: expected cancelled, actual %s", c.Outcome)
	}
	if profiles != nil {
		t.Errorf("cancelled task must not emit profiles, actual %v", profiles)
	}
}

func TestProfileTaskFromSources(t *testing.T) {
	t0, _ := time.Parse(time.RFC3339, "2024-01-01T00:00:00Z")
	uri := profileRaster("prof_desc", t0, 6, false)
	defer rasterio.UnregisterMemDataset("prof_desc")

	src, err := timeseries.NewRasterSource(uri)
	if err != nil {
		t.Fatalf("failed to build source: %v", err)
	}

	profiles, c := runProfileTask(t, ProfileRequest{
		Points:   []orb.Point{{140.5, -30.5}},
		CRS:      "EPSG:4326",
		Sources:  []*timeseries.RasterSource{src},
		Workers:  1,
		Interval: time.Minute,
	})
	if c.Outcome != timeseries.OutcomeSuccess {
		t.Fatalf("outcome: expected success, actual %s (%v)", c.Outcome, c.Err)
	}
	if profiles[0] == nil || *profiles[0].Values[0][0] != 106 {
		t.Errorf("descriptor-driven sampling failed: %v", profiles[0])
	}
}

func TestProbePointsFromGeoJSON(t *testing.T) {
	doc := []byte(`{"type": "Feature", "geometry": {"type": "Point", "coordinates": [145.2, -36.1]}}`)
	points, wkt, err := ProbePointsFromGeoJSON(doc)
	if err != nil {
		t.Fatalf("point parse: %v", err)
	}
	if len(points) != 1 || points[0][0] != 145.2 || points[0][1] != -36.1 {
		t.Errorf("point coordinates: %v", points)
	}
	if len(wkt) == 0 {
		t.Errorf("expected a WKT rendering")
	}

	doc = []byte(`{"type": "Feature", "geometry": {"type": "MultiPoint", "coordinates": [[1, 2], [3, 4]]}}`)
	points, _, err = ProbePointsFromGeoJSON(doc)
	if err != nil {
		t.Fatalf("multipoint parse: %v", err)
	}
	if len(points) != 2 || points[1][0] != 3 || points[1][1] != 4 {
		t.Errorf("multipoint coordinates: %v", points)
	}

	doc = []byte(`{"type": "Feature", "geometry": {"type": "Polygon", "coordinates": [[[0, 0], [1, 0], [1, 1], [0, 0]]]}}`)
	if _, _, err = ProbePointsFromGeoJSON(doc); err == nil {
		t.Errorf("polygon probe geometry must be rejected")
	}
}
