package processor

import (
	"sort"

	"github.com/earthscan/tsprofile/timeseries"
)

// merge builds one temporal profile per probe point from the accumulated
// observations. Safe to call concurrently with sample passes; it snapshots
// under the task lock.
func (t *ProfileTask) merge() []*timeseries.TemporalProfile {
	t.mu.Lock()
	acc := make([][]observation, len(t.acc))
	for k := range t.acc {
		acc[k] = append([]observation(nil), t.acc[k]...)
	}
	t.mu.Unlock()

	profiles := make([]*timeseries.TemporalProfile, len(acc))
	for k, observations := range acc {
		if len(observations) == 0 {
			continue
		}
		profiles[k] = buildProfile(observations, t.Req.SaveSources)
	}
	return profiles
}

// buildProfile sorts a point's observations by date and packs them into the
// canonical record. Sensor ids are indexed in order of first appearance
// after the sort.
func buildProfile(observations []observation, saveSources bool) *timeseries.TemporalProfile {
	sorted := append([]observation(nil), observations...)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].dtg.Before(sorted[j].dtg)
	})

	p := &timeseries.TemporalProfile{}
	sensorIdx := map[string]int{}
	for _, obs := range sorted {
		idx, found := sensorIdx[obs.sensorID]
		if !found {
			idx = len(p.SensorIDs)
			sensorIdx[obs.sensorID] = idx
			p.SensorIDs = append(p.SensorIDs, obs.sensorID)
		}
		p.Sensors = append(p.Sensors, idx)
		p.Dates = append(p.Dates, obs.dtg.Format(timeseries.ISOFormat))
		p.Values = append(p.Values, obs.values)
		if saveSources {
			p.Sources = append(p.Sources, obs.uri)
		}
	}
	return p
}
