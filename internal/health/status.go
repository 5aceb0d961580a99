package health

import "time"

const (
	StatusOK    = "ok"
	StatusError = "error"
)

// FleetStatus is the outcome of a status computation.
type FleetStatus struct {
	Status  string          `json:"workers"`
	Online  int             `json:"workers_online"`
	Workers map[string]bool `json:"-"`
}

// ComputeStatus derives fleet status from a Snapshot result. A worker is
// online when now minus the seen time of its latest report is strictly less
// than window. The fleet is ok when at least one worker is online.
// Reports without a numeric seen field count as seen at the epoch.
func ComputeStatus(snapshot map[string][]map[string]any, now time.Time, window time.Duration) FleetStatus {
	lastSeen := make(map[string]float64, len(snapshot))
	for id, entries := range snapshot {
		if len(entries) == 0 {
			continue
		}
		seen, _ := entries[len(entries)-1][SeenKey].(float64)
		lastSeen[id] = seen
	}
	return statusFromLastSeen(lastSeen, now, window)
}

func statusFromLastSeen(lastSeen map[string]float64, now time.Time, window time.Duration) FleetStatus {
	fs := FleetStatus{Status: StatusError, Workers: make(map[string]bool, len(lastSeen))}
	nowSec := epochSeconds(now)
	for id, seen := range lastSeen {
		online := nowSec-seen < window.Seconds()
		fs.Workers[id] = online
		if online {
			fs.Online++
		}
	}
	if fs.Online > 0 {
		fs.Status = StatusOK
	}
	return fs
}
