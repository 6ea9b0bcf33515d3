package timeseries

import (
	"fmt"
	"time"

	"github.com/paulmach/orb"

	"github.com/earthscan/tsprofile/rasterio"
)

// RasterSource is the immutable descriptor of one raster observation.
// Visibility is the only mutable field and is only touched on the
// coordinating goroutine.
type RasterSource struct {
	URI      string
	Provider string
	Name     string
	CRS      string
	Extent   orb.Bound
	Bands    int
	Lines    int
	Samples  int
	SensorID string
	DTG      time.Time
	visible  bool
}

// NewRasterSource opens a URI and derives the full descriptor. Failure to
// open, fingerprint or date the raster wraps ErrSourceInvalid.
func NewRasterSource(uri string) (*RasterSource, error) {
	ds, err := rasterio.Open(uri)
	if err != nil {
		return nil, SourceInvalidError(uri, err)
	}
	defer ds.Close()
	return NewRasterSourceFromDataset(uri, ds)
}

// NewRasterSourceFromDataset derives a descriptor from an already-open
// raster. The dataset stays owned by the caller.
func NewRasterSourceFromDataset(uri string, ds rasterio.Dataset) (*RasterSource, error) {
	fingerprint, err := FingerprintDataset(ds)
	if err != nil {
		return nil, SourceInvalidError(uri, err)
	}

	dtg, ok := ParseDate(uri, ds)
	if !ok {
		return nil, SourceInvalidError(uri, fmt.Errorf("no acquisition date"))
	}

	nb, nl, ns := ds.Dims()
	name := ds.Metadata("title")
	if len(name) == 0 {
		name = uri
	}

	return &RasterSource{
		URI:      uri,
		Provider: ds.Provider(),
		Name:     name,
		CRS:      ds.CRS(),
		Extent:   ds.Extent(),
		Bands:    nb,
		Lines:    nl,
		Samples:  ns,
		SensorID: fingerprint.Canonical(),
		DTG:      dtg,
		visible:  true,
	}, nil
}

// RestoreRasterSource rebuilds a descriptor from persisted fields, e.g. a
// catalog row, revalidating the construction invariants.
func RestoreRasterSource(uri, provider, name, crs string, extent orb.Bound, nb, nl, ns int, sensorID string, dtg time.Time, visible bool) (*RasterSource, error) {
	if nb < 1 || nl < 1 || ns < 1 {
		return nil, SourceInvalidError(uri, fmt.Errorf("degenerate dims (%d, %d, %d)", nb, nl, ns))
	}
	if dtg.IsZero() {
		return nil, SourceInvalidError(uri, fmt.Errorf("no acquisition date"))
	}
	if _, err := ParseFingerprint(sensorID); err != nil {
		return nil, SourceInvalidError(uri, err)
	}
	return &RasterSource{
		URI:      uri,
		Provider: provider,
		Name:     name,
		CRS:      crs,
		Extent:   extent,
		Bands:    nb,
		Lines:    nl,
		Samples:  ns,
		SensorID: sensorID,
		DTG:      dtg.UTC().Truncate(time.Millisecond),
		visible:  visible,
	}, nil
}

func (s *RasterSource) IsVisible() bool {
	return s.visible
}

func (s *RasterSource) SetVisible(visible bool) {
	s.visible = visible
}

// Clone copies the descriptor for a task snapshot.
func (s *RasterSource) Clone() *RasterSource {
	out := *s
	return &out
}

// SamplePoint reads every band at a point given in the source CRS. Entries
// are nil where the raster reports nodata or the point falls outside the
// extent.
func (s *RasterSource) SamplePoint(pt orb.Point) ([]*float64, error) {
	ds, err := rasterio.Open(s.URI)
	if err != nil {
		return nil, SourceInvalidError(s.URI, err)
	}
	defer ds.Close()
	return s.SamplePointDataset(ds, pt), nil
}

// SamplePointDataset is SamplePoint against a caller-held handle, e.g. one
// taken from a dataset cache.
func (s *RasterSource) SamplePointDataset(ds rasterio.Dataset, pt orb.Point) []*float64 {
	values := make([]*float64, s.Bands)
	if !s.Extent.Contains(pt) {
		return values
	}
	for band := 1; band <= s.Bands; band++ {
		if v, ok := ds.Sample(band, pt); ok {
			value := v
			values[band-1] = &value
		}
	}
	return values
}
