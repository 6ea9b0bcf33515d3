package rasterio

import (
	"fmt"
	"math"
	"os"
	"sync"
	"time"

	"github.com/airbusgeo/godal"
	"github.com/paulmach/orb"
)

var initOnce sync.Once

// Init registers the GDAL drivers and applies the process-wide GDAL
// defaults. Idempotent; call once before the first Open.
func Init() {
	initOnce.Do(func() {
		setDefaultEnv("GDAL_PAM_ENABLED", "NO")
		setDefaultEnv("GDAL_DISABLE_READDIR_ON_OPEN", "EMPTY_DIR")
		setDefaultEnv("GDAL_NETCDF_VERIFY_DIMS", "NO")
		setDefaultEnv("GDAL_MAX_DATASET_POOL_SIZE", "10")
		godal.RegisterAll()
	})
}

func setDefaultEnv(envVar string, defaultVal string) {
	if _, ok := os.LookupEnv(envVar); !ok {
		os.Setenv(envVar, defaultVal)
	}
}

var acquisitionTimeLayouts = []string{
	"2006-01-02T15:04:05.000Z",
	"2006-01-02T15:04:05Z",
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
	"2006:01:02 15:04:05",
	"2006-01-02",
}

type gdalDataset struct {
	uri string
	ds  *godal.Dataset
	geo [6]float64
}

func openGDAL(uri string) (Dataset, error) {
	Init()
	ds, err := godal.Open(uri)
	if err != nil {
		return nil, fmt.Errorf("GDAL could not open %s: %v", uri, err)
	}

	geo, err := ds.GeoTransform()
	if err != nil {
		ds.Close()
		return nil, fmt.Errorf("%s has no geotransform: %v", uri, err)
	}
	if geo[1] == 0 || geo[5] == 0 {
		ds.Close()
		return nil, fmt.Errorf("%s has a degenerate geotransform", uri)
	}

	return &gdalDataset{uri: uri, ds: ds, geo: geo}, nil
}

func (g *gdalDataset) Close() error {
	return g.ds.Close()
}

func (g *gdalDataset) Provider() string {
	return "gdal"
}

func (g *gdalDataset) CRS() string {
	sr := g.ds.SpatialRef()
	if sr == nil {
		return ""
	}
	wkt, err := sr.WKT()
	if err != nil {
		return ""
	}
	return wkt
}

func (g *gdalDataset) Extent() orb.Bound {
	st := g.ds.Structure()
	return boundFromGeoTransform(g.geo, st.SizeX, st.SizeY)
}

func boundFromGeoTransform(geo [6]float64, xSize, ySize int) orb.Bound {
	x0, y0 := geo[0], geo[3]
	x1 := geo[0] + geo[1]*float64(xSize)
	y1 := geo[3] + geo[5]*float64(ySize)
	return orb.Bound{
		Min: orb.Point{math.Min(x0, x1), math.Min(y0, y1)},
		Max: orb.Point{math.Max(x0, x1), math.Max(y0, y1)},
	}
}

func (g *gdalDataset) Dims() (int, int, int) {
	st := g.ds.Structure()
	return st.NBands, st.SizeY, st.SizeX
}

func (g *gdalDataset) PixelSize() (float64, float64) {
	return math.Abs(g.geo[1]), math.Abs(g.geo[5])
}

func (g *gdalDataset) DataType(band int) string {
	bands := g.ds.Bands()
	if band < 1 || band > len(bands) {
		return "Unknown"
	}
	return dataTypeName(bands[band-1].Structure().DataType)
}

func dataTypeName(dt godal.DataType) string {
	switch dt {
	case godal.Byte:
		return "Byte"
	case godal.UInt16:
		return "UInt16"
	case godal.Int16:
		return "Int16"
	case godal.UInt32:
		return "UInt32"
	case godal.Int32:
		return "Int32"
	case godal.Float32:
		return "Float32"
	case godal.Float64:
		return "Float64"
	case godal.CInt16:
		return "CInt16"
	case godal.CInt32:
		return "CInt32"
	case godal.CFloat32:
		return "CFloat32"
	case godal.CFloat64:
		return "CFloat64"
	}
	return "Unknown"
}

func (g *gdalDataset) Timestamp() (time.Time, bool) {
	for _, key := range []string{"ACQUISITIONDATETIME", "TIFFTAG_DATETIME"} {
		value := g.ds.Metadata(key)
		if len(value) == 0 {
			value = g.ds.Metadata(key, godal.Domain("IMAGERY"))
		}
		if len(value) == 0 {
			continue
		}
		for _, layout := range acquisitionTimeLayouts {
			if t, err := time.ParseInLocation(layout, value, time.UTC); err == nil {
				return t, true
			}
		}
	}
	return time.Time{}, false
}

func (g *gdalDataset) Metadata(key string) string {
	return g.ds.Metadata(key)
}

func (g *gdalDataset) MetadataAll() map[string]string {
	return g.ds.Metadatas()
}

func (g *gdalDataset) BandMetadata(band int, key string) string {
	bands := g.ds.Bands()
	if band < 1 || band > len(bands) {
		return ""
	}
	return bands[band-1].Metadata(key)
}

// pixel maps a georeferenced point to pixel coordinates. Rotated rasters are
// not supported; geo[2] and geo[4] are assumed zero.
func (g *gdalDataset) pixel(pt orb.Point) (int, int, bool) {
	st := g.ds.Structure()
	px := int(math.Floor((pt[0] - g.geo[0]) / g.geo[1]))
	py := int(math.Floor((pt[1] - g.geo[3]) / g.geo[5]))
	if px < 0 || px >= st.SizeX || py < 0 || py >= st.SizeY {
		return 0, 0, false
	}
	return px, py, true
}

func (g *gdalDataset) Sample(band int, pt orb.Point) (float64, bool) {
	if err := validBand(g, band); err != nil {
		return 0, false
	}
	px, py, inside := g.pixel(pt)
	if !inside {
		return 0, false
	}

	b := g.ds.Bands()[band-1]
	buf := make([]float64, 1)
	if err := b.Read(px, py, buf, 1, 1); err != nil {
		return 0, false
	}
	value := buf[0]
	if math.IsNaN(value) {
		return 0, false
	}
	if nodata, ok := b.NoData(); ok && value == nodata {
		return 0, false
	}
	return value, true
}

func (g *gdalDataset) Statistics(band int, window orb.Bound, sampleSize int) (float64, float64, error) {
	if err := validBand(g, band); err != nil {
		return NoStatsMin, NoStatsMax, err
	}
	if sampleSize < 1 {
		sampleSize = 1
	}

	clipped, overlaps := Intersection(window, g.Extent())
	if !overlaps {
		return NoStatsMin, NoStatsMax, nil
	}

	st := g.ds.Structure()
	x0 := int(math.Floor((clipped.Min[0] - g.geo[0]) / g.geo[1]))
	x1 := int(math.Ceil((clipped.Max[0] - g.geo[0]) / g.geo[1]))
	// geo[5] is negative for north-up rasters
	y0 := int(math.Floor((clipped.Max[1] - g.geo[3]) / g.geo[5]))
	y1 := int(math.Ceil((clipped.Min[1] - g.geo[3]) / g.geo[5]))
	x0, x1 = clampRange(x0, x1, st.SizeX)
	y0, y1 = clampRange(y0, y1, st.SizeY)
	if x1 <= x0 || y1 <= y0 {
		return NoStatsMin, NoStatsMax, nil
	}

	sx := min(sampleSize, x1-x0)
	sy := min(sampleSize, y1-y0)
	b := g.ds.Bands()[band-1]
	buf := make([]float64, sx*sy)
	if err := b.Read(x0, y0, buf, sx, sy, godal.Window(x1-x0, y1-y0)); err != nil {
		return NoStatsMin, NoStatsMax, fmt.Errorf("statistics read failed on %s: %v", g.uri, err)
	}

	nodata, hasNodata := b.NoData()
	statMin, statMax := NoStatsMin, NoStatsMax
	for _, value := range buf {
		if math.IsNaN(value) || (hasNodata && value == nodata) {
			continue
		}
		statMin = math.Min(statMin, value)
		statMax = math.Max(statMax, value)
	}
	return statMin, statMax, nil
}

func clampRange(lo, hi, size int) (int, int) {
	if lo < 0 {
		lo = 0
	}
	if hi > size {
		hi = size
	}
	return lo, hi
}

func min(a, b int) int {
	if a < b {
		return a
	}
	return b
}
