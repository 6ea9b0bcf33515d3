package utils

import (
	"encoding/json"
	"fmt"
	"io"
	"path/filepath"

	"github.com/edisonguo/jet"
	"github.com/gocarina/gocsv"

	"github.com/earthscan/tsprofile/timeseries"
)

// EncodeProfiles serializes a batch of profiles (one per probe point, null
// for points with no observations) to the canonical JSON form.
func EncodeProfiles(profiles []*timeseries.TemporalProfile) ([]byte, error) {
	return json.Marshal(profiles)
}

// DecodeProfiles parses a batch and verifies every non-null profile.
func DecodeProfiles(buf []byte) ([]*timeseries.TemporalProfile, error) {
	var profiles []*timeseries.TemporalProfile
	if err := json.Unmarshal(buf, &profiles); err != nil {
		return nil, fmt.Errorf("profiles decode: %v", err)
	}
	for i, p := range profiles {
		if p == nil {
			continue
		}
		if err := p.Verify(); err != nil {
			return nil, fmt.Errorf("profile %d: %v", i, err)
		}
	}
	return profiles, nil
}

// ProfileCSVRow is one (point, observation, band) sample in the flat CSV
// export.
type ProfileCSVRow struct {
	Point  int      `csv:"point"`
	Date   string   `csv:"date"`
	Sensor string   `csv:"sensor"`
	Source string   `csv:"source"`
	Band   int      `csv:"band"`
	Value  *float64 `csv:"value"`
}

// WriteProfilesCSV flattens profiles into CSV rows.
func WriteProfilesCSV(w io.Writer, profiles []*timeseries.TemporalProfile) error {
	var rows []*ProfileCSVRow
	for k, p := range profiles {
		if p == nil {
			continue
		}
		for i := 0; i < p.Len(); i++ {
			source := ""
			if len(p.Sources) > 0 {
				source = p.Sources[i]
			}
			for bi, v := range p.Values[i] {
				rows = append(rows, &ProfileCSVRow{
					Point:  k,
					Date:   p.Dates[i],
					Sensor: p.SensorIDs[p.Sensors[i]],
					Source: source,
					Band:   bi + 1,
					Value:  v,
				})
			}
		}
	}
	return gocsv.Marshal(&rows, w)
}

// RenderProfileReport renders profiles through a jet template. The template
// receives the profile batch as its data context.
func RenderProfileReport(w io.Writer, templatePath string, profiles []*timeseries.TemporalProfile) error {
	view := jet.NewSet(jet.SafeWriter(func(w io.Writer, b []byte) {
		w.Write(b)
	}), filepath.Dir(templatePath), "/")

	template, err := view.GetTemplate(filepath.Base(templatePath))
	if err != nil {
		return fmt.Errorf("report template error: %v", err)
	}

	vars := make(jet.VarMap)
	if err = template.Execute(w, vars, profiles); err != nil {
		return fmt.Errorf("report template error: %v", err)
	}
	return nil
}
