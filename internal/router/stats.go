package router

import (
	"context"
	"time"

	"go.uber.org/atomic"
)

// Stats counts router traffic. Counters only grow.
type Stats struct {
	received      atomic.Uint64
	readings      atomic.Uint64
	commands      atomic.Uint64
	dropped       atomic.Uint64
	granted       atomic.Uint64
	denied        atomic.Uint64
	publishErrors atomic.Uint64
}

// StatsSnapshot is a point-in-time copy of Stats.
type StatsSnapshot struct {
	Received      uint64 `json:"received"`
	Readings      uint64 `json:"readings"`
	Commands      uint64 `json:"commands"`
	Dropped       uint64 `json:"dropped"`
	Granted       uint64 `json:"granted"`
	Denied        uint64 `json:"denied"`
	PublishErrors uint64 `json:"publish_errors"`
}

// Snapshot returns the current counter values.
func (s *Stats) Snapshot() StatsSnapshot {
	return StatsSnapshot{
		Received:      s.received.Load(),
		Readings:      s.readings.Load(),
		Commands:      s.commands.Load(),
		Dropped:       s.dropped.Load(),
		Granted:       s.granted.Load(),
		Denied:        s.denied.Load(),
		PublishErrors: s.publishErrors.Load(),
	}
}

// PointWriter takes one measurement. *influxdb.Client satisfies it.
type PointWriter interface {
	WritePoint(measurement string, tags map[string]string, fields map[string]interface{})
}

// statsMeasurement is the measurement name of the periodic counter dump.
const statsMeasurement = "router_stats"

// fields returns the snapshot as point fields.
func (s StatsSnapshot) fields() map[string]interface{} {
	i := func(v uint64) int64 { return int64(v) } //nolint:gosec // counters stay far below MaxInt64
	return map[string]interface{}{
		"received":       i(s.Received),
		"readings":       i(s.Readings),
		"commands":       i(s.Commands),
		"dropped":        i(s.Dropped),
		"granted":        i(s.Granted),
		"denied":         i(s.Denied),
		"publish_errors": i(s.PublishErrors),
	}
}

// ReportStats writes a counter snapshot to w every interval until ctx is
// cancelled, and once more on the way out. It blocks.
func (r *Router) ReportStats(ctx context.Context, w PointWriter, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			w.WritePoint(statsMeasurement, map[string]string{}, r.Stats().fields())
			return
		case <-ticker.C:
			w.WritePoint(statsMeasurement, map[string]string{}, r.Stats().fields())
		}
	}
}
