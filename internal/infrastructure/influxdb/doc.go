// Package influxdb writes bridge telemetry to InfluxDB v2.
//
// Two measurements are produced:
//
//	kasa_device_state  tags: address, device_type, model   fields: on, alias, brightness, children, children_on
//	kasa_job           tags: action, success, address, error_code   fields: duration_ms
//
// Writes go through the library's non-blocking batched API, so a slow or
// unreachable InfluxDB never stalls the dispatch worker.
//
//	client, err := influxdb.Connect(cfg.InfluxDB)
//	if errors.Is(err, influxdb.ErrDisabled) {
//	    // telemetry off
//	}
package influxdb
