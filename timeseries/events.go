package timeseries

// Outcome is the terminal state of a background task.
type Outcome string

const (
	OutcomeSuccess   Outcome = "success"
	OutcomeCancelled Outcome = "cancelled"
	OutcomeFailed    Outcome = "failed"
)

// Event is the typed change stream emitted by the index and the task
// coordinator. Subscribers run synchronously on the coordinating goroutine.
type Event interface {
	event()
}

type SourcesAdded struct{ Sources []*RasterSource }

type SourcesRemoved struct{ URIs []string }

type DatesAdded struct{ Dates []*TimeSeriesDate }

type DatesRemoved struct{ Dates []*TimeSeriesDate }

type SensorAdded struct{ Sensor *Sensor }

type SensorRemoved struct{ Sensor *Sensor }

type SensorNameChanged struct{ Sensor *Sensor }

type VisibilityChanged struct{}

type TaskProgress struct {
	TaskID   string
	Fraction float64
}

type TaskCompleted struct {
	TaskID  string
	Outcome Outcome
}

func (SourcesAdded) event()      {}
func (SourcesRemoved) event()    {}
func (DatesAdded) event()        {}
func (DatesRemoved) event()      {}
func (SensorAdded) event()       {}
func (SensorRemoved) event()     {}
func (SensorNameChanged) event() {}
func (VisibilityChanged) event() {}
func (TaskProgress) event()      {}
func (TaskCompleted) event()     {}
