// Package influxdb writes AccessGuard telemetry to InfluxDB v2.
//
// Three measurements are recorded:
//   - access_decisions: one point per card reading (granted or denied)
//   - security_events: one point per detector finding
//   - backups: one point per snapshot run
//
// Telemetry is optional. Connect returns ErrDisabled when the influxdb
// section is disabled, and every write method is a no-op on a nil or
// closed *Client, so callers never branch on whether it is configured.
//
// Writes are non-blocking and batched (batch_size, flush_interval). Async
// write failures reach the callback set with SetOnError.
//
// # Usage
//
//	client, err := influxdb.Connect(ctx, cfg.InfluxDB)
//	if err != nil && !errors.Is(err, influxdb.ErrDisabled) {
//	    log.Fatal(err)
//	}
//	defer client.Close()
//
//	client.WriteAccessDecision("door-1", uid, true, time.Now())
package influxdb
