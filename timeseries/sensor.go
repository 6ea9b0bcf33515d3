package timeseries

import (
	"encoding/json"
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/earthscan/tsprofile/rasterio"
)

// MatchPolicy controls which fingerprint fields must agree for two sources
// to share a sensor. Pixel dimensions are always required.
type MatchPolicy uint8

const (
	MatchPxDims MatchPolicy = 1 << iota
	MatchWavelengths
	MatchName
)

func (p MatchPolicy) normalized() MatchPolicy {
	return p | MatchPxDims
}

func (p MatchPolicy) String() string {
	parts := []string{"px_dims"}
	if p&MatchWavelengths != 0 {
		parts = append(parts, "wl")
	}
	if p&MatchName != 0 {
		parts = append(parts, "name")
	}
	return strings.Join(parts, "+")
}

// Fingerprint is the tuple of intrinsic raster properties from which a
// sensor identity is derived. The JSON encoding of this struct, with its
// fixed field order and explicit nulls, is the canonical sensor id string.
type Fingerprint struct {
	Bands          int       `json:"nb"`
	PxSizeX        float64   `json:"px_size_x"`
	PxSizeY        float64   `json:"px_size_y"`
	DataType       string    `json:"dt"`
	Wavelengths    []float64 `json:"wl"`
	WavelengthUnit *string   `json:"wlu"`
	Name           *string   `json:"name"`
}

// Canonical returns the deterministic string form used as a registry key.
func (f *Fingerprint) Canonical() string {
	buf, err := json.Marshal(f)
	if err != nil {
		return ""
	}
	return string(buf)
}

func ParseFingerprint(id string) (*Fingerprint, error) {
	var f Fingerprint
	if err := json.Unmarshal([]byte(id), &f); err != nil {
		return nil, fmt.Errorf("malformed sensor id %q: %v", id, err)
	}
	if f.Bands < 1 {
		return nil, fmt.Errorf("malformed sensor id %q: band count %d", id, f.Bands)
	}
	return &f, nil
}

// Matches compares two fingerprints under a match policy.
func (f *Fingerprint) Matches(o *Fingerprint, policy MatchPolicy) bool {
	policy = policy.normalized()

	if f.Bands != o.Bands || f.PxSizeX != o.PxSizeX || f.PxSizeY != o.PxSizeY || f.DataType != o.DataType {
		return false
	}

	if policy&MatchWavelengths != 0 {
		if !strPtrEqual(f.WavelengthUnit, o.WavelengthUnit) {
			return false
		}
		if len(f.Wavelengths) != len(o.Wavelengths) {
			return false
		}
		for i := range f.Wavelengths {
			if f.Wavelengths[i] != o.Wavelengths[i] {
				return false
			}
		}
	}

	if policy&MatchName != 0 && !strPtrEqual(f.Name, o.Name) {
		return false
	}
	return true
}

// Equivalent compares two canonical sensor id strings under a match policy.
// Malformed ids never match anything.
func Equivalent(a, b string, policy MatchPolicy) bool {
	fa, err := ParseFingerprint(a)
	if err != nil {
		return false
	}
	fb, err := ParseFingerprint(b)
	if err != nil {
		return false
	}
	return fa.Matches(fb, policy)
}

func strPtrEqual(a, b *string) bool {
	if a == nil || b == nil {
		return a == b
	}
	return *a == *b
}

var wavelengthUnitAliases = map[string]string{
	"nm":          "nm",
	"nanometer":   "nm",
	"nanometers":  "nm",
	"nanometre":   "nm",
	"nanometres":  "nm",
	"μm":          "μm",
	"um":          "μm",
	"micrometer":  "μm",
	"micrometers": "μm",
	"micrometre":  "μm",
	"micrometres": "μm",
	"micron":      "μm",
	"microns":     "μm",
	"mm":          "mm",
	"millimeters": "mm",
	"millimetres": "mm",
}

// NormalizeWavelengthUnit collapses unit aliases onto one canonical symbol.
func NormalizeWavelengthUnit(unit string) (string, bool) {
	canonical, found := wavelengthUnitAliases[strings.ToLower(strings.TrimSpace(unit))]
	return canonical, found
}

var sensorNameRe = regexp.MustCompile(`(?i)(SATELLITEID|(sensor|product)[ _]?(type|name))\s*=\s*([^<>;,"\s][^<>;,"]*)`)

// SensorNameFromMetadata scans provider metadata values for a sensor or
// product name declaration.
func SensorNameFromMetadata(metadata map[string]string) (string, bool) {
	for _, value := range metadata {
		match := sensorNameRe.FindStringSubmatch(value)
		if match != nil {
			return strings.TrimSpace(match[4]), true
		}
	}
	return "", false
}

var bandWavelengthKeys = []string{"wavelength", "WAVELENGTH", "wavelength_nm", "central_wavelength"}
var bandWavelengthUnitKeys = []string{"wavelength_units", "wavelength_unit", "WAVELENGTH_UNITS"}

// FingerprintDataset derives a fingerprint from an open raster.
func FingerprintDataset(ds rasterio.Dataset) (*Fingerprint, error) {
	nb, nl, ns := ds.Dims()
	if nb < 1 || nl < 1 || ns < 1 {
		return nil, fmt.Errorf("degenerate raster dims (%d, %d, %d)", nb, nl, ns)
	}

	pxX, pxY := ds.PixelSize()
	if pxX < 0 {
		pxX = -pxX
	}
	if pxY < 0 {
		pxY = -pxY
	}

	f := &Fingerprint{
		Bands:    nb,
		PxSizeX:  pxX,
		PxSizeY:  pxY,
		DataType: ds.DataType(1),
	}

	var wavelengths []float64
	for band := 1; band <= nb; band++ {
		var value string
		for _, key := range bandWavelengthKeys {
			if v := ds.BandMetadata(band, key); len(v) > 0 {
				value = v
				break
			}
		}
		if len(value) == 0 {
			break
		}
		wl, err := strconv.ParseFloat(strings.TrimSpace(value), 64)
		if err != nil {
			break
		}
		wavelengths = append(wavelengths, wl)
	}

	// A partial wavelength vector is no wavelength vector.
	if len(wavelengths) == nb {
		f.Wavelengths = wavelengths
		for _, key := range bandWavelengthUnitKeys {
			if v := ds.BandMetadata(1, key); len(v) > 0 {
				if canonical, ok := NormalizeWavelengthUnit(v); ok {
					unit := canonical
					f.WavelengthUnit = &unit
				}
				break
			}
		}
	}

	if name, found := SensorNameFromMetadata(ds.MetadataAll()); found {
		f.Name = &name
	}

	return f, nil
}

// DisplayName is the human readable sensor label: the embedded name when the
// fingerprint carries one, otherwise a bands-at-resolution tag.
func (f *Fingerprint) DisplayName() string {
	if f.Name != nil && len(*f.Name) > 0 {
		return *f.Name
	}
	return fmt.Sprintf("%db@%gm", f.Bands, f.PxSizeX)
}

// Sensor is one registry entry in a TimeSeriesIndex.
type Sensor struct {
	ID          string
	Fingerprint *Fingerprint
	Name        string
}

func NewSensor(f *Fingerprint) *Sensor {
	return &Sensor{
		ID:          f.Canonical(),
		Fingerprint: f,
		Name:        f.DisplayName(),
	}
}
