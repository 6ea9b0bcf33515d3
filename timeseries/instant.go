package timeseries

import (
	"fmt"
	"time"
)

// ISOFormat is the string used to format Go ISO times
const ISOFormat = "2006-01-02T15:04:05.000"

// Precision controls how acquisition instants are grouped into date buckets.
type Precision int

const (
	PrecisionOriginal Precision = iota
	PrecisionMillisecond
	PrecisionSecond
	PrecisionMinute
	PrecisionHour
	PrecisionDay
	PrecisionWeek
	PrecisionMonth
	PrecisionYear
)

var precisionNames = map[Precision]string{
	PrecisionOriginal:    "original",
	PrecisionMillisecond: "millisecond",
	PrecisionSecond:      "second",
	PrecisionMinute:      "minute",
	PrecisionHour:        "hour",
	PrecisionDay:         "day",
	PrecisionWeek:        "week",
	PrecisionMonth:       "month",
	PrecisionYear:        "year",
}

func (p Precision) String() string {
	if name, found := precisionNames[p]; found {
		return name
	}
	return fmt.Sprintf("precision(%d)", int(p))
}

func ParsePrecision(name string) (Precision, error) {
	for p, n := range precisionNames {
		if n == name {
			return p, nil
		}
	}
	return PrecisionDay, fmt.Errorf("unknown precision: %s", name)
}

// DateRange is the interval of instants considered equivalent under a
// precision. Both endpoints are inclusive at millisecond granularity.
type DateRange struct {
	Begin time.Time
	End   time.Time
}

func (r DateRange) Contains(t time.Time) bool {
	t = t.UTC().Truncate(time.Millisecond)
	return !t.Before(r.Begin) && !t.After(r.End)
}

func (r DateRange) Equal(o DateRange) bool {
	return r.Begin.Equal(o.Begin) && r.End.Equal(o.End)
}

func (r DateRange) String() string {
	return fmt.Sprintf("[%s, %s]", r.Begin.Format(ISOFormat), r.End.Format(ISOFormat))
}

// Bucket maps an instant to the date range that contains it at the given
// precision. Instants agreeing on all calendar fields at or coarser than the
// precision map to the same range. Weeks are ISO weeks starting Monday.
func Bucket(t time.Time, p Precision) DateRange {
	t = t.UTC().Truncate(time.Millisecond)

	switch p {
	case PrecisionOriginal, PrecisionMillisecond:
		return DateRange{t, t}
	case PrecisionSecond:
		lo := t.Truncate(time.Second)
		return DateRange{lo, lo.Add(time.Second - time.Millisecond)}
	case PrecisionMinute:
		lo := t.Truncate(time.Minute)
		return DateRange{lo, lo.Add(time.Minute - time.Millisecond)}
	case PrecisionHour:
		lo := t.Truncate(time.Hour)
		return DateRange{lo, lo.Add(time.Hour - time.Millisecond)}
	case PrecisionDay:
		lo := time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
		return DateRange{lo, lo.AddDate(0, 0, 1).Add(-time.Millisecond)}
	case PrecisionWeek:
		day := time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
		weekday := int(day.Weekday())
		if weekday == 0 {
			weekday = 7
		}
		lo := day.AddDate(0, 0, -(weekday - 1))
		return DateRange{lo, lo.AddDate(0, 0, 7).Add(-time.Millisecond)}
	case PrecisionMonth:
		lo := time.Date(t.Year(), t.Month(), 1, 0, 0, 0, 0, time.UTC)
		return DateRange{lo, lo.AddDate(0, 1, 0).Add(-time.Millisecond)}
	case PrecisionYear:
		lo := time.Date(t.Year(), 1, 1, 0, 0, 0, 0, time.UTC)
		return DateRange{lo, lo.AddDate(1, 0, 0).Add(-time.Millisecond)}
	}
	return DateRange{t, t}
}

// DecimalYear converts an instant to a fractional calendar year.
func DecimalYear(t time.Time) float64 {
	t = t.UTC()
	yearStart := time.Date(t.Year(), 1, 1, 0, 0, 0, 0, time.UTC)
	yearEnd := yearStart.AddDate(1, 0, 0)
	return float64(t.Year()) + float64(t.Sub(yearStart))/float64(yearEnd.Sub(yearStart))
}

// TimeFromDecimalYear is the inverse of DecimalYear up to millisecond
// rounding.
func TimeFromDecimalYear(year float64) time.Time {
	y := int(year)
	yearStart := time.Date(y, 1, 1, 0, 0, 0, 0, time.UTC)
	yearEnd := yearStart.AddDate(1, 0, 0)
	frac := year - float64(y)
	return yearStart.Add(time.Duration(frac * float64(yearEnd.Sub(yearStart)))).Truncate(time.Millisecond)
}
