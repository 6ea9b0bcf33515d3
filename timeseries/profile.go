package timeseries

import (
	"encoding/json"
	"fmt"
	"time"
)

// TemporalProfile is the time-ordered, multi-sensor record produced for a
// single probe point. The JSON encoding of this struct is the canonical
// interchange form.
type TemporalProfile struct {
	SensorIDs []string     `json:"sensor_ids"`
	Sensors   []int        `json:"sensors"`
	Dates     []string     `json:"dates"`
	Values    [][]*float64 `json:"values"`
	Sources   []string     `json:"sources,omitempty"`
}

func (p *TemporalProfile) Len() int {
	return len(p.Dates)
}

// Verify checks the profile invariants. Every emitted profile passes through
// here; a failure means a bug upstream, not bad input.
func (p *TemporalProfile) Verify() error {
	n := len(p.Dates)
	if len(p.Sensors) != n || len(p.Values) != n {
		return InternalError("ragged profile: %d dates, %d sensors, %d values", n, len(p.Sensors), len(p.Values))
	}
	if len(p.Sources) > 0 && len(p.Sources) != n {
		return InternalError("ragged profile: %d dates, %d sources", n, len(p.Sources))
	}

	bandCounts := make([]int, len(p.SensorIDs))
	for i, id := range p.SensorIDs {
		fingerprint, err := ParseFingerprint(id)
		if err != nil {
			return InternalError("profile sensor %d: %v", i, err)
		}
		bandCounts[i] = fingerprint.Bands
	}

	var prev time.Time
	for i := 0; i < n; i++ {
		t, err := time.ParseInLocation(ISOFormat, p.Dates[i], time.UTC)
		if err != nil {
			return InternalError("profile date %d: %v", i, err)
		}
		if i > 0 && t.Before(prev) {
			return InternalError("profile dates not ascending at %d: %s < %s", i, p.Dates[i], p.Dates[i-1])
		}
		prev = t

		si := p.Sensors[i]
		if si < 0 || si >= len(p.SensorIDs) {
			return InternalError("profile sensor index %d out of range at %d", si, i)
		}
		if len(p.Values[i]) != bandCounts[si] {
			return InternalError("profile values at %d: %d bands, sensor declares %d", i, len(p.Values[i]), bandCounts[si])
		}

		observed := false
		for _, v := range p.Values[i] {
			if v != nil {
				observed = true
				break
			}
		}
		if !observed {
			return InternalError("profile holds all-null observation at %d", i)
		}
	}
	return nil
}

// EncodeProfile serializes to the canonical JSON form.
func EncodeProfile(p *TemporalProfile) ([]byte, error) {
	return json.Marshal(p)
}

// DecodeProfile parses and verifies the canonical JSON form.
func DecodeProfile(buf []byte) (*TemporalProfile, error) {
	var p TemporalProfile
	if err := json.Unmarshal(buf, &p); err != nil {
		return nil, fmt.Errorf("profile decode: %v", err)
	}
	if err := p.Verify(); err != nil {
		return nil, err
	}
	return &p, nil
}

// Equal compares two profiles value for value.
func (p *TemporalProfile) Equal(o *TemporalProfile) bool {
	if o == nil || p.Len() != o.Len() || len(p.SensorIDs) != len(o.SensorIDs) || len(p.Sources) != len(o.Sources) {
		return false
	}
	for i := range p.SensorIDs {
		if p.SensorIDs[i] != o.SensorIDs[i] {
			return false
		}
	}
	for i := 0; i < p.Len(); i++ {
		if p.Sensors[i] != o.Sensors[i] || p.Dates[i] != o.Dates[i] {
			return false
		}
		if len(p.Values[i]) != len(o.Values[i]) {
			return false
		}
		for j := range p.Values[i] {
			a, b := p.Values[i][j], o.Values[i][j]
			if (a == nil) != (b == nil) {
				return false
			}
			if a != nil && *a != *b {
				return false
			}
		}
	}
	for i := range p.Sources {
		if p.Sources[i] != o.Sources[i] {
			return false
		}
	}
	return true
}
