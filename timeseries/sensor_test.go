package timeseries

import (
	"strings"
	"testing"
)

func strPtr(s string) *string { return &s }

func testFingerprint() *Fingerprint {
	return &Fingerprint{
		Bands:          4,
		PxSizeX:        10,
		PxSizeY:        10,
		DataType:       "UInt16",
		Wavelengths:    []float64{490, 560, 665, 842},
		WavelengthUnit: strPtr("nm"),
		Name:           strPtr("S2A_MSI"),
	}
}

func TestFingerprintCanonical(t *testing.T) {
	f := testFingerprint()
	id := f.Canonical()
	expected := `{"nb":4,"px_size_x":10,"px_size_y":10,"dt":"UInt16","wl":[490,560,665,842],"wlu":"nm","name":"S2A_MSI"}`
	if id != expected {
		t.Errorf("canonical id mismatch.\nexpected: %s\nactual:   %s", expected, id)
	}

	parsed, err := ParseFingerprint(id)
	if err != nil {
		t.Errorf("failed to parse canonical id: %v", err)
	}
	if parsed.Canonical() != id {
		t.Errorf("canonical id not stable across a parse round trip")
	}
}

func TestFingerprintCanonicalNulls(t *testing.T) {
	f := &Fingerprint{Bands: 1, PxSizeX: 30, PxSizeY: 30, DataType: "Float32"}
	id := f.Canonical()
	if !strings.Contains(id, `"wl":null`) || !strings.Contains(id, `"wlu":null`) || !strings.Contains(id, `"name":null`) {
		t.Errorf("absent fields must encode as explicit nulls: %s", id)
	}
}

func TestEquivalentPolicies(t *testing.T) {
	a := testFingerprint()
	b := testFingerprint()
	b.Name = strPtr("S2B_MSI")

	if !Equivalent(a.Canonical(), b.Canonical(), MatchPxDims) {
		t.Errorf("name difference must not matter under px_dims")
	}
	if !Equivalent(a.Canonical(), b.Canonical(), MatchPxDims|MatchWavelengths) {
		t.Errorf("name difference must not matter under px_dims+wl")
	}
	if Equivalent(a.Canonical(), b.Canonical(), MatchPxDims|MatchName) {
		t.Errorf("name difference must matter under px_dims+name")
	}

	c := testFingerprint()
	c.Wavelengths[0] = 491
	if Equivalent(a.Canonical(), c.Canonical(), MatchPxDims|MatchWavelengths) {
		t.Errorf("wavelength difference must matter under px_dims+wl")
	}
	if !Equivalent(a.Canonical(), c.Canonical(), MatchPxDims) {
		t.Errorf("wavelength difference must not matter under px_dims")
	}

	d := testFingerprint()
	d.PxSizeX = 20
	if Equivalent(a.Canonical(), d.Canonical(), MatchPxDims) {
		t.Errorf("pixel size difference must always matter")
	}
}

func TestEquivalentReflexive(t *testing.T) {
	id := testFingerprint().Canonical()
	for _, policy := range []MatchPolicy{MatchPxDims, MatchPxDims | MatchWavelengths, MatchPxDims | MatchWavelengths | MatchName} {
		if !Equivalent(id, id, policy) {
			t.Errorf("fingerprint not equivalent to itself under %s", policy)
		}
	}
}

func TestEquivalentMalformed(t *testing.T) {
	id := testFingerprint().Canonical()
	if Equivalent("not json", id, MatchPxDims) {
		t.Errorf("malformed id must not match anything")
	}
	if Equivalent("not json", "not json", MatchPxDims) {
		t.Errorf("malformed ids must not match each other")
	}
}

func TestNormalizeWavelengthUnit(t *testing.T) {
	cases := map[string]string{
		"nm":          "nm",
		"Nanometers":  "nm",
		" nanometre ": "nm",
		"um":          "μm",
		"Microns":     "μm",
		"micrometres": "μm",
	}
	for input, expected := range cases {
		canonical, found := NormalizeWavelengthUnit(input)
		if !found {
			t.Errorf("unit %q not recognized", input)
			continue
		}
		if canonical != expected {
			t.Errorf("unit %q: expected %s, actual %s", input, expected, canonical)
		}
	}
	if _, found := NormalizeWavelengthUnit("parsec"); found {
		t.Errorf("unknown unit must not normalize")
	}
}

func TestSensorNameFromMetadata(t *testing.T) {
	name, found := SensorNameFromMetadata(map[string]string{
		"tags": "SATELLITEID=Sentinel-2A; PROCESSING=L2A",
	})
	if !found || name != "Sentinel-2A" {
		t.Errorf("SATELLITEID extraction failed: %q, %v", name, found)
	}

	name, found = SensorNameFromMetadata(map[string]string{
		"doc": `<Item name="x">sensor_type = OLI_TIRS</Item>`,
	})
	if !found || name != "OLI_TIRS" {
		t.Errorf("sensor_type extraction failed: %q, %v", name, found)
	}

	if _, found = SensorNameFromMetadata(map[string]string{"x": "no declarations here"}); found {
		t.Errorf("false positive on metadata without a sensor declaration")
	}
}

func TestMatchPolicyString(t *testing.T) {
	if s := (MatchPxDims | MatchWavelengths | MatchName).String(); s != "px_dims+wl+name" {
		t.Errorf("unexpected policy string: %s", s)
	}
	if s := MatchPxDims.String(); s != "px_dims" {
		t.Errorf("unexpected policy string: %s", s)
	}
}

func TestDisplayName(t *testing.T) {
	f := testFingerprint()
	if f.DisplayName() != "S2A_MSI" {
		t.Errorf("embedded name must win: %s", f.DisplayName())
	}
	f.Name = nil
	if f.DisplayName() != "4b@10m" {
		t.Errorf("fallback display name: expected 4b@10m, actual %s", f.DisplayName())
	}
}
