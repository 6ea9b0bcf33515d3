package processor

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/gammazero/workerpool"
	geo "github.com/nci/geometry"
	"github.com/paulmach/orb"

	"github.com/earthscan/tsprofile/rasterio"
	"github.com/earthscan/tsprofile/timeseries"
)

// DatasetCache shares open raster handles across passes. Thread safety is
// the cache owner's responsibility; the engine treats it as read-mostly.
type DatasetCache interface {
	Get(uri string) (rasterio.Dataset, bool)
	Put(uri string, ds rasterio.Dataset)
}

// SourceMeta is the cached (sensor, date) pair of a URI.
type SourceMeta struct {
	SensorID string
	DTG      time.Time
}

// ProfileRequest configures a profile extraction pass.
type ProfileRequest struct {
	// Points are the probe locations, all expressed in CRS.
	Points []orb.Point
	CRS    string
	// URIs name the sources to sample; Sources, when set, supplies
	// already-built descriptors instead.
	URIs    []string
	Sources []*timeseries.RasterSource
	// Workers sizes the sampling pool.
	Workers     int
	SaveSources bool
	Interval    time.Duration
	// Optional caches.
	Datasets DatasetCache
	Meta     map[string]SourceMeta
}

// observation is one (source, point) pair with at least one non-null band.
type observation struct {
	uri      string
	sensorID string
	dtg      time.Time
	values   []*float64
}

// ProfileTask samples every source at every probe point and merges the
// observations into one temporal profile per point.
type ProfileTask struct {
	task
	Req ProfileRequest
	// Out carries the single final emission: one profile per probe point,
	// nil for points with no observations.
	Out chan []*timeseries.TemporalProfile
	// Interim, when non-nil, receives aggregated snapshots at progress
	// boundaries for progressive consumers.
	Interim chan []*timeseries.TemporalProfile

	mu        sync.Mutex
	acc       [][]observation
	processed int
	invalid   []InvalidSource
}

func NewProfileTask(ctx context.Context, req ProfileRequest) *ProfileTask {
	if req.Workers < 1 {
		req.Workers = 1
	}
	return &ProfileTask{
		task: newTask(ctx, "profile", req.Interval),
		Req:  req,
		Out:  make(chan []*timeseries.TemporalProfile, 1),
		acc:  make([][]observation, len(req.Points)),
	}
}

// EnableInterim switches on progressive snapshot emissions.
func (t *ProfileTask) EnableInterim() {
	t.Interim = make(chan []*timeseries.TemporalProfile, 100)
}

// NumSources is the number of sources the task will sample.
func (t *ProfileTask) NumSources() int {
	if len(t.Req.Sources) > 0 {
		return len(t.Req.Sources)
	}
	return len(t.Req.URIs)
}

func (t *ProfileTask) Run() {
	defer close(t.Out)
	if t.Interim != nil {
		defer close(t.Interim)
	}

	total := t.NumSources()
	wp := workerpool.New(t.Req.Workers)

	boundary := time.NewTicker(t.Interval)
	boundaryDone := make(chan struct{})
	go func() {
		for {
			select {
			case <-boundary.C:
				t.mu.Lock()
				processed := t.processed
				t.mu.Unlock()
				if total > 0 {
					t.emitProgress(float64(processed) / float64(total))
				}
				if t.Interim != nil {
					snapshot := t.merge()
					select {
					case t.Interim <- snapshot:
					default:
					}
				}
			case <-boundaryDone:
				return
			}
		}
	}()

	submitted := 0
	if len(t.Req.Sources) > 0 {
		for _, s := range t.Req.Sources {
			if t.cancelled() {
				break
			}
			src := s.Clone()
			wp.Submit(func() { t.samplePass(src.URI, src) })
			submitted++
		}
	} else {
		for _, uri := range t.Req.URIs {
			if t.cancelled() {
				break
			}
			uri := uri
			wp.Submit(func() { t.samplePass(uri, nil) })
			submitted++
		}
	}

	wp.StopWait()
	boundary.Stop()
	close(boundaryDone)

	if t.cancelled() {
		t.finish(timeseries.OutcomeCancelled, t.invalid, timeseries.ErrCancelled)
		return
	}

	profiles := t.merge()
	for k, p := range profiles {
		if p == nil {
			continue
		}
		if err := p.Verify(); err != nil {
			log.Printf("%s: rejecting profile for point %d: %v", t.ID, k, err)
			t.invalid = append(t.invalid, InvalidSource{URI: fmt.Sprintf("point[%d]", k), Reason: err.Error()})
			profiles[k] = nil
		}
	}

	t.Out <- profiles
	t.emitProgress(1.0)
	t.finish(timeseries.OutcomeSuccess, t.invalid, nil)
}

// samplePass processes one source: open, resolve metadata, transform the
// probe points once, sample each and accumulate observations.
func (t *ProfileTask) samplePass(uri string, src *timeseries.RasterSource) {
	if t.cancelled() {
		return
	}

	ds, cached, err := t.openSource(uri)
	if err != nil {
		t.recordInvalid(uri, err)
		return
	}
	if !cached {
		defer ds.Close()
	}

	if src == nil {
		src, err = t.resolveSource(uri, ds)
		if err != nil {
			t.recordInvalid(uri, err)
			return
		}
	}

	tr, err := rasterio.NewTransform(t.Req.CRS, src.CRS)
	if err != nil {
		t.recordInvalid(uri, err)
		return
	}
	defer tr.Close()
	points, ok, err := tr.Points(t.Req.Points)
	if err != nil {
		t.recordInvalid(uri, err)
		return
	}

	type hit struct {
		point  int
		values []*float64
	}
	var hits []hit
	for k, pt := range points {
		if !ok[k] || !src.Extent.Contains(pt) {
			continue
		}
		values := src.SamplePointDataset(ds, pt)
		observed := false
		for _, v := range values {
			if v != nil {
				observed = true
				break
			}
		}
		if observed {
			hits = append(hits, hit{point: k, values: values})
		}
	}

	t.mu.Lock()
	for _, h := range hits {
		t.acc[h.point] = append(t.acc[h.point], observation{
			uri:      uri,
			sensorID: src.SensorID,
			dtg:      src.DTG,
			values:   h.values,
		})
	}
	t.processed++
	t.mu.Unlock()
}

func (t *ProfileTask) openSource(uri string) (rasterio.Dataset, bool, error) {
	if t.Req.Datasets != nil {
		if ds, found := t.Req.Datasets.Get(uri); found {
			return ds, true, nil
		}
	}
	ds, err := rasterio.Open(uri)
	if err != nil {
		return nil, false, err
	}
	if t.Req.Datasets != nil {
		t.Req.Datasets.Put(uri, ds)
		return ds, true, nil
	}
	return ds, false, nil
}

func (t *ProfileTask) resolveSource(uri string, ds rasterio.Dataset) (*timeseries.RasterSource, error) {
	if meta, found := t.Req.Meta[uri]; found {
		nb, nl, ns := ds.Dims()
		return timeseries.RestoreRasterSource(uri, ds.Provider(), uri, ds.CRS(), ds.Extent(), nb, nl, ns, meta.SensorID, meta.DTG, true)
	}
	return timeseries.NewRasterSourceFromDataset(uri, ds)
}

func (t *ProfileTask) recordInvalid(uri string, err error) {
	if t.Verbose {
		log.Printf("%s: %s: %v", t.ID, uri, err)
	}
	t.mu.Lock()
	t.invalid = append(t.invalid, InvalidSource{URI: uri, Reason: err.Error()})
	t.processed++
	t.mu.Unlock()
}

// ProbePointsFromGeoJSON parses a GeoJSON Point or MultiPoint feature into
// probe points, returning the WKT form alongside for logging and metrics.
func ProbePointsFromGeoJSON(doc []byte) ([]orb.Point, string, error) {
	var feat geo.Feature
	if err := json.Unmarshal(doc, &feat); err != nil {
		return nil, "", fmt.Errorf("problem unmarshalling GeoJSON object: %v", err)
	}
	wkt := feat.Geometry.MarshalWKT()

	var raw struct {
		Geometry struct {
			Type        string          `json:"type"`
			Coordinates json.RawMessage `json:"coordinates"`
		} `json:"geometry"`
	}
	if err := json.Unmarshal(doc, &raw); err != nil {
		return nil, "", fmt.Errorf("problem unmarshalling GeoJSON object: %v", err)
	}

	switch raw.Geometry.Type {
	case "Point":
		var coords []float64
		if err := json.Unmarshal(raw.Geometry.Coordinates, &coords); err != nil || len(coords) < 2 {
			return nil, "", fmt.Errorf("malformed Point coordinates")
		}
		return []orb.Point{{coords[0], coords[1]}}, wkt, nil
	case "MultiPoint":
		var coords [][]float64
		if err := json.Unmarshal(raw.Geometry.Coordinates, &coords); err != nil {
			return nil, "", fmt.Errorf("malformed MultiPoint coordinates")
		}
		points := make([]orb.Point, 0, len(coords))
		for _, c := range coords {
			if len(c) < 2 {
				return nil, "", fmt.Errorf("malformed MultiPoint coordinates")
			}
			points = append(points, orb.Point{c[0], c[1]})
		}
		return points, wkt, nil
	}
	return nil, "", fmt.Errorf("unsupported probe geometry: %s", raw.Geometry.Type)
}
