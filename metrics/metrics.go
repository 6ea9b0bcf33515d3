// Package metrics records per-task accounting the way the host's dashboards
// expect: one JSON object per completed task.
package metrics

import (
	"bytes"
	"encoding/json"
	"time"
)

type TaskInfo struct {
	ReqTime     string        `json:"req_time"`
	TaskID      string        `json:"task_id"`
	Kind        string        `json:"kind"`
	Duration    time.Duration `json:"duration"`
	NumSources  int           `json:"num_sources"`
	NumInvalid  int           `json:"num_invalid"`
	NumPoints   int           `json:"num_points,omitempty"`
	NumProfiles int           `json:"num_profiles,omitempty"`
	Outcome     string        `json:"outcome"`
}

func (info *TaskInfo) ToJSON() (string, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(info); err != nil {
		return "", err
	}
	return buf.String(), nil
}

// Collector accumulates one task's numbers and hands them to a logger.
type Collector struct {
	Info      *TaskInfo
	logger    Logger
	startTime time.Time
}

func NewCollector(logger Logger) *Collector {
	return &Collector{
		Info:      &TaskInfo{ReqTime: time.Now().UTC().Format(time.RFC3339)},
		logger:    logger,
		startTime: time.Now(),
	}
}

func (c *Collector) Log() {
	if c.logger == nil {
		return
	}
	c.Info.Duration = time.Since(c.startTime)
	c.logger.Log(c.Info)
}
