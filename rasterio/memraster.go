package rasterio

import (
	"fmt"
	"math"
	"sync"
	"time"

	"github.com/paulmach/orb"
)

// MemDataset is an in-memory raster registered under a mem:// URI. It backs
// the test suite and any caller that synthesizes observations.
type MemDataset struct {
	Name         string
	SRS          string
	GeoTransform [6]float64
	NBands       int
	XSize        int
	YSize        int
	DType        string
	NoDataValue  *float64
	// Data holds one row-major grid per band.
	Data     [][]float64
	Time     time.Time
	HasTime  bool
	Meta     map[string]string
	BandMeta []map[string]string
}

var (
	memMu    sync.Mutex
	memStore = map[string]*MemDataset{}
)

func init() {
	RegisterOpener("mem", openMem)
}

// RegisterMemDataset publishes a dataset under mem://<name>.
func RegisterMemDataset(ds *MemDataset) string {
	memMu.Lock()
	defer memMu.Unlock()
	memStore[ds.Name] = ds
	return "mem://" + ds.Name
}

func UnregisterMemDataset(name string) {
	memMu.Lock()
	defer memMu.Unlock()
	delete(memStore, name)
}

func openMem(uri string) (Dataset, error) {
	memMu.Lock()
	ds, found := memStore[uri[len("mem://"):]]
	memMu.Unlock()
	if !found {
		return nil, fmt.Errorf("no such mem dataset: %s", uri)
	}
	if ds.NBands < 1 || ds.XSize < 1 || ds.YSize < 1 {
		return nil, fmt.Errorf("degenerate mem dataset: %s", uri)
	}
	return ds, nil
}

func (m *MemDataset) Close() error { return nil }

func (m *MemDataset) Provider() string { return "mem" }

func (m *MemDataset) CRS() string { return m.SRS }

func (m *MemDataset) Extent() orb.Bound {
	return boundFromGeoTransform(m.GeoTransform, m.XSize, m.YSize)
}

func (m *MemDataset) Dims() (int, int, int) {
	return m.NBands, m.YSize, m.XSize
}

func (m *MemDataset) PixelSize() (float64, float64) {
	return math.Abs(m.GeoTransform[1]), math.Abs(m.GeoTransform[5])
}

func (m *MemDataset) DataType(band int) string {
	if len(m.DType) == 0 {
		return "Float64"
	}
	return m.DType
}

func (m *MemDataset) Timestamp() (time.Time, bool) {
	return m.Time, m.HasTime
}

func (m *MemDataset) Metadata(key string) string {
	return m.Meta[key]
}

func (m *MemDataset) MetadataAll() map[string]string {
	out := make(map[string]string, len(m.Meta))
	for k, v := range m.Meta {
		out[k] = v
	}
	return out
}

func (m *MemDataset) BandMetadata(band int, key string) string {
	if band < 1 || band > len(m.BandMeta) {
		return ""
	}
	return m.BandMeta[band-1][key]
}

func (m *MemDataset) pixel(pt orb.Point) (int, int, bool) {
	px := int(math.Floor((pt[0] - m.GeoTransform[0]) / m.GeoTransform[1]))
	py := int(math.Floor((pt[1] - m.GeoTransform[3]) / m.GeoTransform[5]))
	if px < 0 || px >= m.XSize || py < 0 || py >= m.YSize {
		return 0, 0, false
	}
	return px, py, true
}

func (m *MemDataset) Sample(band int, pt orb.Point) (float64, bool) {
	if err := validBand(m, band); err != nil {
		return 0, false
	}
	px, py, inside := m.pixel(pt)
	if !inside {
		return 0, false
	}
	value := m.Data[band-1][py*m.XSize+px]
	if math.IsNaN(value) {
		return 0, false
	}
	if m.NoDataValue != nil && value == *m.NoDataValue {
		return 0, false
	}
	return value, true
}

func (m *MemDataset) Statistics(band int, window orb.Bound, sampleSize int) (float64, float64, error) {
	if err := validBand(m, band); err != nil {
		return NoStatsMin, NoStatsMax, err
	}

	clipped, overlaps := Intersection(window, m.Extent())
	if !overlaps {
		return NoStatsMin, NoStatsMax, nil
	}

	statMin, statMax := NoStatsMin, NoStatsMax
	for py := 0; py < m.YSize; py++ {
		for px := 0; px < m.XSize; px++ {
			x := m.GeoTransform[0] + (float64(px)+0.5)*m.GeoTransform[1]
			y := m.GeoTransform[3] + (float64(py)+0.5)*m.GeoTransform[5]
			if !clipped.Contains(orb.Point{x, y}) {
				continue
			}
			value := m.Data[band-1][py*m.XSize+px]
			if math.IsNaN(value) {
				continue
			}
			if m.NoDataValue != nil && value == *m.NoDataValue {
				continue
			}
			statMin = math.Min(statMin, value)
			statMax = math.Max(statMax, value)
		}
	}
	return statMin, statMax, nil
}
