package timeseries

import (
	"log"
	"sort"
	"time"

	"github.com/paulmach/orb"
)

// TimeSeriesIndex is the canonical time x sensor index. All mutations happen
// on the coordinating goroutine; the index itself takes no locks.
type TimeSeriesIndex struct {
	dates     []*TimeSeriesDate
	sensors   []*Sensor
	policy    MatchPolicy
	precision Precision
	byURI     map[string]*TimeSeriesDate
	listeners []func(Event)
	Verbose   bool
}

func NewTimeSeriesIndex(precision Precision, policy MatchPolicy) *TimeSeriesIndex {
	return &TimeSeriesIndex{
		policy:    policy.normalized(),
		precision: precision,
		byURI:     make(map[string]*TimeSeriesDate),
	}
}

// Subscribe registers a change listener. Listeners run synchronously on the
// coordinating goroutine in registration order.
func (x *TimeSeriesIndex) Subscribe(fn func(Event)) {
	x.listeners = append(x.listeners, fn)
}

func (x *TimeSeriesIndex) Emit(ev Event) {
	for _, fn := range x.listeners {
		fn(ev)
	}
}

func (x *TimeSeriesIndex) Precision() Precision   { return x.precision }
func (x *TimeSeriesIndex) MatchPolicy() MatchPolicy { return x.policy }

func (x *TimeSeriesIndex) Dates() []*TimeSeriesDate { return x.dates }
func (x *TimeSeriesIndex) Sensors() []*Sensor       { return x.sensors }

// Sources lists every held source in date order.
func (x *TimeSeriesIndex) Sources() []*RasterSource {
	var out []*RasterSource
	for _, d := range x.dates {
		out = append(out, d.sources...)
	}
	return out
}

func (x *TimeSeriesIndex) NumSources() int {
	return len(x.byURI)
}

// findSensor returns the first registered sensor the id matches under the
// current policy.
func (x *TimeSeriesIndex) findSensor(sensorID string) *Sensor {
	for _, s := range x.sensors {
		if Equivalent(sensorID, s.ID, x.policy) {
			return s
		}
	}
	return nil
}

func (x *TimeSeriesIndex) dateFor(r DateRange, sensor *Sensor) *TimeSeriesDate {
	i := x.searchDate(r.Begin, sensor.ID)
	if i < len(x.dates) && x.dates[i].Range.Begin.Equal(r.Begin) && x.dates[i].Sensor == sensor {
		return x.dates[i]
	}
	return nil
}

// searchDate is the insertion point for (begin, sensorID) in the ordered
// sequence.
func (x *TimeSeriesIndex) searchDate(begin time.Time, sensorID string) int {
	return sort.Search(len(x.dates), func(i int) bool {
		d := x.dates[i]
		if !d.Range.Begin.Equal(begin) {
			return d.Range.Begin.After(begin)
		}
		return d.Sensor.ID >= sensorID
	})
}

// addOne applies one source and reports the created date and sensor, if any.
// The mutation is atomic: either the source lands in exactly one date or the
// index is untouched.
func (x *TimeSeriesIndex) addOne(s *RasterSource) (*TimeSeriesDate, *Sensor, error) {
	if _, held := x.byURI[s.URI]; held {
		return nil, nil, SourceInvalidError(s.URI, ErrInternal)
	}

	r := Bucket(s.DTG, x.precision)

	var createdSensor *Sensor
	sensor := x.findSensor(s.SensorID)
	if sensor == nil {
		fingerprint, err := ParseFingerprint(s.SensorID)
		if err != nil {
			return nil, nil, SourceInvalidError(s.URI, err)
		}
		sensor = NewSensor(fingerprint)
		createdSensor = sensor
	}

	var createdDate *TimeSeriesDate
	date := x.dateFor(r, sensor)
	if date == nil {
		date = newTimeSeriesDate(sensor, r, x)
		createdDate = date
	}

	if err := date.Add(s); err != nil {
		return nil, nil, SourceInvalidError(s.URI, err)
	}

	if createdSensor != nil {
		x.sensors = append(x.sensors, createdSensor)
	}
	if createdDate != nil {
		i := x.searchDate(r.Begin, sensor.ID)
		x.dates = append(x.dates, nil)
		copy(x.dates[i+1:], x.dates[i:])
		x.dates[i] = createdDate
	}
	x.byURI[s.URI] = date
	return createdDate, createdSensor, nil
}

// Add indexes one source and emits the change events.
func (x *TimeSeriesIndex) Add(s *RasterSource) error {
	date, sensor, err := x.addOne(s)
	if err != nil {
		log.Printf("index: skipping %s: %v", s.URI, err)
		return err
	}
	if sensor != nil {
		x.Emit(SensorAdded{sensor})
	}
	if date != nil {
		x.Emit(DatesAdded{[]*TimeSeriesDate{date}})
	}
	x.Emit(SourcesAdded{[]*RasterSource{s}})
	return nil
}

// AddSources indexes a batch with one change event per kind. Invalid inputs
// are logged and skipped.
func (x *TimeSeriesIndex) AddSources(sources []*RasterSource) {
	var addedDates []*TimeSeriesDate
	var addedSources []*RasterSource
	var addedSensors []*Sensor
	for _, s := range sources {
		date, sensor, err := x.addOne(s)
		if err != nil {
			log.Printf("index: skipping %s: %v", s.URI, err)
			continue
		}
		if sensor != nil {
			addedSensors = append(addedSensors, sensor)
		}
		if date != nil {
			addedDates = append(addedDates, date)
		}
		addedSources = append(addedSources, s)
	}

	for _, sensor := range addedSensors {
		x.Emit(SensorAdded{sensor})
	}
	if len(addedDates) > 0 {
		x.Emit(DatesAdded{addedDates})
	}
	if len(addedSources) > 0 {
		x.Emit(SourcesAdded{addedSources})
	}
}

// RemoveDate detaches a date, its sources, and any sensor left unreferenced.
func (x *TimeSeriesIndex) RemoveDate(date *TimeSeriesDate) {
	i := x.searchDate(date.Range.Begin, date.Sensor.ID)
	if i >= len(x.dates) || x.dates[i] != date {
		return
	}
	x.dates = append(x.dates[:i], x.dates[i+1:]...)

	var uris []string
	for _, s := range date.sources {
		delete(x.byURI, s.URI)
		uris = append(uris, s.URI)
	}
	x.Emit(SourcesRemoved{uris})
	x.Emit(DatesRemoved{[]*TimeSeriesDate{date}})

	x.collectSensor(date.Sensor)
}

func (x *TimeSeriesIndex) collectSensor(sensor *Sensor) {
	for _, d := range x.dates {
		if d.Sensor == sensor {
			return
		}
	}
	for i, s := range x.sensors {
		if s == sensor {
			x.sensors = append(x.sensors[:i], x.sensors[i+1:]...)
			x.Emit(SensorRemoved{sensor})
			return
		}
	}
}

// RenameSensor updates a sensor's display name.
func (x *TimeSeriesIndex) RenameSensor(sensorID, name string) bool {
	for _, s := range x.sensors {
		if s.ID == sensorID {
			s.Name = name
			x.Emit(SensorNameChanged{s})
			return true
		}
	}
	return false
}

// Clear drops all dates and sensors.
func (x *TimeSeriesIndex) Clear() {
	var uris []string
	for uri := range x.byURI {
		uris = append(uris, uri)
	}
	sort.Strings(uris)

	dates := x.dates
	sensors := x.sensors
	x.dates = nil
	x.sensors = nil
	x.byURI = make(map[string]*TimeSeriesDate)

	if len(uris) > 0 {
		x.Emit(SourcesRemoved{uris})
	}
	if len(dates) > 0 {
		x.Emit(DatesRemoved{dates})
	}
	for _, s := range sensors {
		x.Emit(SensorRemoved{s})
	}
}

// SetPrecision re-keys every held source under a new precision. Source
// multiset and per-URI visibility are preserved.
func (x *TimeSeriesIndex) SetPrecision(p Precision) {
	if p == x.precision {
		return
	}
	x.precision = p
	x.rekey()
}

// SetMatchPolicy re-keys under a new policy; sensors may merge or split.
func (x *TimeSeriesIndex) SetMatchPolicy(policy MatchPolicy) {
	policy = policy.normalized()
	if policy == x.policy {
		return
	}
	x.policy = policy
	x.rekey()
}

func (x *TimeSeriesIndex) rekey() {
	held := x.Sources()
	x.Clear()
	x.AddSources(held)
}

// FindByURI returns the date holding a URI.
func (x *TimeSeriesIndex) FindByURI(uri string) *TimeSeriesDate {
	return x.byURI[uri]
}

func (x *TimeSeriesIndex) FindBySensor(sensorID string) []*TimeSeriesDate {
	var out []*TimeSeriesDate
	for _, d := range x.dates {
		if Equivalent(sensorID, d.Sensor.ID, x.policy) {
			out = append(out, d)
		}
	}
	return out
}

// FindNearestDate returns the date whose range is closest to an instant.
func (x *TimeSeriesIndex) FindNearestDate(t time.Time) *TimeSeriesDate {
	var best *TimeSeriesDate
	var bestDist time.Duration
	for _, d := range x.dates {
		var dist time.Duration
		switch {
		case d.Range.Contains(t):
			dist = 0
		case t.Before(d.Range.Begin):
			dist = d.Range.Begin.Sub(t)
		default:
			dist = t.Sub(d.Range.End)
		}
		if best == nil || dist < bestDist {
			best = d
			bestDist = dist
		}
	}
	return best
}

// MaxExtent is the union of all date extents, in crs when given.
func (x *TimeSeriesIndex) MaxExtent(crs string) (orb.Bound, error) {
	if len(x.dates) == 0 {
		return orb.Bound{}, ErrExtentEmpty
	}
	if len(crs) == 0 {
		crs = x.dates[0].sources[0].CRS
	}

	var out orb.Bound
	any := false
	for _, d := range x.dates {
		b, err := d.Extent(crs)
		if err != nil {
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

func (x *TimeSeriesIndex) VisibleDates() []*TimeSeriesDate {
	var out []*TimeSeriesDate
	for _, d := range x.dates {
		if d.CheckState() != Unchecked {
			out = append(out, d)
		}
	}
	return out
}

// ApplyVisibility flips per-source visibility from an overlap result map and
// emits a single VisibilityChanged event when anything moved.
func (x *TimeSeriesIndex) ApplyVisibility(visible map[string]bool) {
	changed := false
	for uri, v := range visible {
		date := x.byURI[uri]
		if date == nil {
			continue
		}
		for _, s := range date.sources {
			if s.URI == uri && s.IsVisible() != v {
				s.SetVisible(v)
				changed = true
			}
		}
	}
	if changed {
		x.Emit(VisibilityChanged{})
	}
}
