package timeseries

import (
	"fmt"

	"github.com/paulmach/orb"

	"github.com/earthscan/tsprofile/rasterio"
)

// CheckState is the aggregated visibility of a date bucket.
type CheckState int

const (
	Unchecked CheckState = iota
	PartiallyChecked
	Checked
)

func (c CheckState) String() string {
	switch c {
	case Unchecked:
		return "unchecked"
	case PartiallyChecked:
		return "partial"
	case Checked:
		return "checked"
	}
	return fmt.Sprintf("check_state(%d)", int(c))
}

// TimeSeriesDate is a (sensor, date range) bucket of raster sources. It is
// owned by its index; the parent handle is only read on the coordinating
// goroutine.
type TimeSeriesDate struct {
	Sensor  *Sensor
	Range   DateRange
	sources []*RasterSource
	index   *TimeSeriesIndex
}

func newTimeSeriesDate(sensor *Sensor, r DateRange, index *TimeSeriesIndex) *TimeSeriesDate {
	return &TimeSeriesDate{Sensor: sensor, Range: r, index: index}
}

// Add appends a source. The source must match the bucket's sensor under the
// index policy and fall in the bucket's range.
func (d *TimeSeriesDate) Add(s *RasterSource) error {
	policy := MatchPxDims
	if d.index != nil {
		policy = d.index.policy
	}
	if !Equivalent(s.SensorID, d.Sensor.ID, policy) {
		return fmt.Errorf("sensor mismatch: %s does not match %s under %s", s.URI, d.Sensor.Name, policy)
	}
	if !d.Range.Contains(s.DTG) {
		return fmt.Errorf("%s: %s outside %s", s.URI, s.DTG.Format(ISOFormat), d.Range)
	}
	d.sources = append(d.sources, s)
	return nil
}

// Remove drops a source by URI. False when the bucket does not hold it.
func (d *TimeSeriesDate) Remove(uri string) bool {
	for i, s := range d.sources {
		if s.URI == uri {
			d.sources = append(d.sources[:i], d.sources[i+1:]...)
			return true
		}
	}
	return false
}

// Sources iterates in insertion order.
func (d *TimeSeriesDate) Sources() []*RasterSource {
	return d.sources
}

func (d *TimeSeriesDate) Len() int {
	return len(d.sources)
}

// CheckState aggregates per-source visibility.
func (d *TimeSeriesDate) CheckState() CheckState {
	visible := 0
	for _, s := range d.sources {
		if s.IsVisible() {
			visible++
		}
	}
	switch {
	case len(d.sources) == 0 || visible == 0:
		return Unchecked
	case visible == len(d.sources):
		return Checked
	}
	return PartiallyChecked
}

// Extent is the union of the source extents, reprojected to dstCRS when one
// is given, otherwise expressed in the first source's CRS.
func (d *TimeSeriesDate) Extent(dstCRS string) (orb.Bound, error) {
	if len(d.sources) == 0 {
		return orb.Bound{}, ErrExtentEmpty
	}
	if len(dstCRS) == 0 {
		dstCRS = d.sources[0].CRS
	}

	var out orb.Bound
	any := false
	for _, s := range d.sources {
		tr, err := rasterio.NewTransform(s.CRS, dstCRS)
		if err != nil {
			continue
		}
		b, ok := tr.Bound(s.Extent)
		tr.Close()
		if !ok {
			continue
		}
		if !any {
			out = b
			any = true
		} else {
			out = out.Union(b)
		}
	}
	if !any {
		return orb.Bound{}, ErrExtentEmpty
	}
	return out, nil
}

// Scope is the read-only variable map this date exposes to expression
// evaluation.
func (d *TimeSeriesDate) Scope() map[string]interface{} {
	return map[string]interface{}{
		"date":        d.Range.Begin.Format(ISOFormat),
		"doy":         float64(d.Range.Begin.YearDay()),
		"decimalYear": DecimalYear(d.Range.Begin),
		"sensor":      d.Sensor.Name,
		"sensor_id":   d.Sensor.ID,
	}
}
