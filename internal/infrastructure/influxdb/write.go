package influxdb

import (
	"time"

	"github.com/influxdata/influxdb-client-go/v2/api/write"
)

// Measurement names.
const (
	MeasurementAccess   = "access_decisions"
	MeasurementSecurity = "security_events"
	MeasurementBackup   = "backups"
)

// WriteAccessDecision records one authorization decision for a reading.
// Card UIDs are high cardinality, so they go in a field, not a tag.
func (c *Client) WriteAccessDecision(deviceID, cardID string, authorized bool, at time.Time) {
	c.writePoint(accessDecisionPoint(deviceID, cardID, authorized, at))
}

// WriteSecurityEvent records a detector finding.
func (c *Client) WriteSecurityEvent(eventType, cardID, deviceID string, attempts int, at time.Time) {
	c.writePoint(securityEventPoint(eventType, cardID, deviceID, attempts, at))
}

// WriteBackupResult records the outcome of one snapshot run.
func (c *Client) WriteBackupResult(backupType string, ok bool, cards, logs int, elapsed time.Duration, at time.Time) {
	c.writePoint(backupResultPoint(backupType, ok, cards, logs, elapsed, at))
}

// WritePoint writes a custom point with full control over tags and fields.
//
// Example:
//
//	client.WritePoint("router_stats",
//	    map[string]string{},
//	    map[string]interface{}{"dropped": int64(3)})
func (c *Client) WritePoint(measurement string, tags map[string]string, fields map[string]interface{}) {
	c.writePoint(write.NewPoint(measurement, tags, fields, time.Now()))
}

func (c *Client) writePoint(p *write.Point) {
	if !c.IsConnected() {
		return
	}
	c.writeAPI.WritePoint(p)
}

func accessDecisionPoint(deviceID, cardID string, authorized bool, at time.Time) *write.Point {
	result := "denied"
	if authorized {
		result = "granted"
	}
	return write.NewPoint(
		MeasurementAccess,
		map[string]string{
			"device_id": orUnknown(deviceID),
			"result":    result,
		},
		map[string]interface{}{
			"card_id":    cardID,
			"authorized": authorized,
		},
		at,
	)
}

func securityEventPoint(eventType, cardID, deviceID string, attempts int, at time.Time) *write.Point {
	fields := map[string]interface{}{
		"card_id": cardID,
	}
	if attempts > 0 {
		fields["attempts"] = attempts
	}
	return write.NewPoint(
		MeasurementSecurity,
		map[string]string{
			"type":      eventType,
			"device_id": orUnknown(deviceID),
		},
		fields,
		at,
	)
}

func backupResultPoint(backupType string, ok bool, cards, logs int, elapsed time.Duration, at time.Time) *write.Point {
	return write.NewPoint(
		MeasurementBackup,
		map[string]string{
			"type": backupType,
		},
		map[string]interface{}{
			"ok":          ok,
			"cards":       cards,
			"access_logs": logs,
			"duration_ms": elapsed.Milliseconds(),
		},
		at,
	)
}

// orUnknown keeps empty tag values out of line protocol, which drops them.
func orUnknown(v string) string {
	if v == "" {
		return "unknown"
	}
	return v
}
