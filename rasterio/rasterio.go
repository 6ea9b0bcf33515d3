// Package rasterio is the raster I/O capability of the engine. The core
// consumes the Dataset interface only; concrete backends are registered per
// URI scheme, with GDAL (through godal) as the fallback for everything else.
package rasterio

import (
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/paulmach/orb"
)

// Dataset is one open raster observation.
type Dataset interface {
	Close() error
	// Provider is the short name of the backend that opened the raster.
	Provider() string
	// CRS is the spatial reference of the raster, as WKT or an EPSG code.
	CRS() string
	// Extent is the georeferenced bounding box in the raster's own CRS.
	Extent() orb.Bound
	// Dims returns (bands, lines, samples).
	Dims() (int, int, int)
	// PixelSize returns the ground sample distance along x and y.
	PixelSize() (float64, float64)
	// DataType names the pixel type of a band, e.g. "Int16".
	DataType(band int) string
	// Timestamp is the provider's temporal property, when one was set.
	Timestamp() (time.Time, bool)
	Metadata(key string) string
	MetadataAll() map[string]string
	BandMetadata(band int, key string) string
	// Sample reads one band value at a point in the raster's CRS. ok is
	// false when the point is outside the raster or the value is nodata.
	Sample(band int, pt orb.Point) (float64, bool)
	// Statistics computes (min, max) over the part of the window covered
	// by the raster, decimated to at most sampleSize samples per axis.
	// The no-statistics sentinel pair is returned when nothing usable
	// falls inside the window.
	Statistics(band int, window orb.Bound, sampleSize int) (float64, float64, error)
}

// The no-statistics sentinel pair.
var (
	NoStatsMin = math.MaxFloat64
	NoStatsMax = -math.MaxFloat64
)

func IsNoStats(min, max float64) bool {
	return min == NoStatsMin && max == NoStatsMax
}

// Opener opens a raster for one URI scheme.
type Opener func(uri string) (Dataset, error)

var openers = map[string]Opener{}

// RegisterOpener wires a backend for a URI scheme. Process-lifetime setup;
// not safe to call concurrently with Open.
func RegisterOpener(scheme string, op Opener) {
	openers[scheme] = op
}

// Open dispatches a URI to its backend.
func Open(uri string) (Dataset, error) {
	if idx := strings.Index(uri, "://"); idx > 0 {
		if op, found := openers[uri[:idx]]; found {
			return op(uri)
		}
	}
	return openGDAL(uri)
}

// Intersection clips a to b. The second return is false when they do not
// overlap.
func Intersection(a, b orb.Bound) (orb.Bound, bool) {
	if !a.Intersects(b) {
		return orb.Bound{}, false
	}
	out := orb.Bound{
		Min: orb.Point{math.Max(a.Min[0], b.Min[0]), math.Max(a.Min[1], b.Min[1])},
		Max: orb.Point{math.Min(a.Max[0], b.Max[0]), math.Min(a.Max[1], b.Max[1])},
	}
	return out, true
}

func validBand(ds Dataset, band int) error {
	nb, _, _ := ds.Dims()
	if band < 1 || band > nb {
		return fmt.Errorf("band %d out of range 1..%d", band, nb)
	}
	return nil
}
