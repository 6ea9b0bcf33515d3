package timeseries

import (
	"fmt"
	"io/ioutil"
	"os"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v2"

	"github.com/earthscan/tsprofile/rasterio"
)

var acquisitionMetadataKeys = []string{
	"acquisition time",
	"acquisition_time",
	"acquisition_date",
	"ACQUISITIONDATETIME",
	"datetime",
	"DATETIME",
	"TIFFTAG_DATETIME",
}

var metadataTimeLayouts = []string{
	"2006-01-02T15:04:05.000Z",
	"2006-01-02T15:04:05Z",
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
	"2006-1-2 15:4:5",
	"2006:01:02 15:04:05",
	"2006-01-02",
	"2006/01/02",
}

// File name rule sets, most specific first. Named groups follow the crawler
// convention: year, month, day, julian_day, hour, minute, second.
var defaultNamePatterns = []*regexp.Regexp{
	// Sentinel granule names, e.g. S2A_MSIL2A_20180516T101031_...
	regexp.MustCompile(`_(?P<year>\d{4})(?P<month>\d{2})(?P<day>\d{2})T(?P<hour>\d{2})(?P<minute>\d{2})(?P<second>\d{2})_`),
	// Landsat-8 scene ids, e.g. LC80990722014255LGN00
	regexp.MustCompile(`L[COTEM]8\d{6}(?P<year>\d{4})(?P<julian_day>\d{3})`),
	// ISO date-times in paths
	regexp.MustCompile(`(?P<year>\d{4})-(?P<month>\d{2})-(?P<day>\d{2})[T_ ](?P<hour>\d{2})[:h]?(?P<minute>\d{2})[:m]?(?P<second>\d{2})`),
	regexp.MustCompile(`(?P<year>\d{4})-(?P<month>\d{2})-(?P<day>\d{2})`),
	// Compact dates, constrained enough to skip tile ids
	regexp.MustCompile(`(?P<year>(19|20)\d{2})(?P<month>[01]\d)(?P<day>[0-3]\d)T(?P<hour>\d{2})(?P<minute>\d{2})(?P<second>\d{2})`),
	regexp.MustCompile(`(?P<year>(19|20)\d{2})(?P<month>[01]\d)(?P<day>[0-3]\d)`),
	regexp.MustCompile(`(?P<year>(19|20)\d{2})(?P<julian_day>[0-3]\d{2})`),
}

var namePatterns = defaultNamePatterns

// AddDatePatterns appends caller-supplied file name rules ahead of the
// defaults. Patterns use the same named groups as the built-in rules.
func AddDatePatterns(patterns []string) error {
	var compiled []*regexp.Regexp
	for _, p := range patterns {
		re, err := regexp.Compile(p)
		if err != nil {
			return fmt.Errorf("bad date pattern %q: %v", p, err)
		}
		compiled = append(compiled, re)
	}
	namePatterns = append(compiled, namePatterns...)
	return nil
}

// ParseDate extracts the acquisition instant of a raster. The chain is: the
// provider's temporal property, domain metadata keys, a YAML sidecar, band
// wavelengths read as decimal years, and finally file name rules. The first
// success wins; false means the source cannot be indexed.
func ParseDate(uri string, ds rasterio.Dataset) (time.Time, bool) {
	if ds != nil {
		if t, ok := ds.Timestamp(); ok {
			return t.UTC().Truncate(time.Millisecond), true
		}

		for _, key := range acquisitionMetadataKeys {
			if t, ok := parseMetadataTime(ds.Metadata(key)); ok {
				return t, true
			}
		}
	}

	if t, ok := parseYAMLSidecar(uri); ok {
		return t, true
	}

	if ds != nil {
		if t, ok := parseDecimalYearBand(ds); ok {
			return t, true
		}
	}

	return parseNameDate(uri)
}

func parseMetadataTime(value string) (time.Time, bool) {
	value = strings.TrimSpace(value)
	if len(value) == 0 {
		return time.Time{}, false
	}
	for _, layout := range metadataTimeLayouts {
		if t, err := time.ParseInLocation(layout, value, time.UTC); err == nil {
			return t.Truncate(time.Millisecond), true
		}
	}
	return time.Time{}, false
}

// parseDecimalYearBand interprets wavelength style band metadata as decimal
// calendar years, the convention used by stacked annual series.
func parseDecimalYearBand(ds rasterio.Dataset) (time.Time, bool) {
	for _, key := range bandWavelengthKeys {
		value := strings.TrimSpace(ds.BandMetadata(1, key))
		if len(value) == 0 {
			continue
		}
		year, err := strconv.ParseFloat(value, 64)
		if err != nil {
			continue
		}
		if year < 1900 || year >= 2200 {
			continue
		}
		return TimeFromDecimalYear(year), true
	}
	return time.Time{}, false
}

func parseNameDate(uri string) (time.Time, bool) {
	_, basename := filepath.Split(uri)

	for _, re := range namePatterns {
		if !re.MatchString(basename) {
			continue
		}
		match := re.FindStringSubmatch(basename)
		fields := make(map[string]string)
		for i, name := range re.SubexpNames() {
			if i != 0 && len(name) > 0 {
				fields[name] = match[i]
			}
		}
		t, ok := timeFromNameFields(fields)
		if ok {
			return t, true
		}
	}
	return time.Time{}, false
}

func timeFromNameFields(fields map[string]string) (time.Time, bool) {
	yearStr, found := fields["year"]
	if !found {
		return time.Time{}, false
	}
	year, err := strconv.Atoi(yearStr)
	if err != nil {
		return time.Time{}, false
	}
	t := time.Date(year, 1, 1, 0, 0, 0, 0, time.UTC)

	if jd, found := fields["julian_day"]; found {
		julianDay, err := strconv.Atoi(jd)
		if err != nil || julianDay < 1 || julianDay > 366 {
			return time.Time{}, false
		}
		t = t.Add(time.Hour * 24 * time.Duration(julianDay-1))
	}

	if _, found := fields["month"]; found {
		month, errM := strconv.Atoi(fields["month"])
		day, errD := strconv.Atoi(fields["day"])
		if errM != nil || errD != nil || month < 1 || month > 12 || day < 1 || day > 31 {
			return time.Time{}, false
		}
		t = time.Date(year, time.Month(month), day, 0, 0, 0, 0, time.UTC)
		if t.Month() != time.Month(month) || t.Day() != day {
			return time.Time{}, false
		}
	}

	if hour, found := fields["hour"]; found {
		h, _ := strconv.Atoi(hour)
		t = t.Add(time.Hour * time.Duration(h))
	}
	if minute, found := fields["minute"]; found {
		m, _ := strconv.Atoi(minute)
		t = t.Add(time.Minute * time.Duration(m))
	}
	if second, found := fields["second"]; found {
		s, _ := strconv.Atoi(second)
		t = t.Add(time.Second * time.Duration(s))
	}
	return t, true
}

// ardSidecar is the subset of an ARD granule metadata document the engine
// cares about.
type ardSidecar struct {
	Extent struct {
		CenterDt string `yaml:"center_dt"`
	} `yaml:"extent"`
	Acquisition struct {
		AcquiredDt string `yaml:"acquired_dt"`
	} `yaml:"acquisition"`
}

var sidecarTimeLayouts = []string{
	"2006-01-02T15:04:05Z",
	"2006-01-02T15:04:05.000000Z",
	"2006-01-02 15:04:05",
}

// parseYAMLSidecar reads a granule metadata document next to the raster
// (<name>.yaml), or the URI itself when it points at one.
func parseYAMLSidecar(uri string) (time.Time, bool) {
	path := uri
	if !strings.HasSuffix(path, ".yaml") && !strings.HasSuffix(path, ".yml") {
		ext := filepath.Ext(path)
		path = strings.TrimSuffix(path, ext) + ".yaml"
	}
	if _, err := os.Stat(path); err != nil {
		return time.Time{}, false
	}

	buf, err := ioutil.ReadFile(path)
	if err != nil {
		return time.Time{}, false
	}

	var doc ardSidecar
	if err := yaml.Unmarshal(buf, &doc); err != nil {
		return time.Time{}, false
	}

	for _, value := range []string{doc.Extent.CenterDt, doc.Acquisition.AcquiredDt} {
		if len(value) == 0 {
			continue
		}
		for _, layout := range sidecarTimeLayouts {
			if t, err := time.ParseInLocation(layout, value, time.UTC); err == nil {
				return t.Truncate(time.Millisecond), true
			}
		}
	}
	return time.Time{}, false
}
