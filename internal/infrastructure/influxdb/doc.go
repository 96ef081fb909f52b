// Package influxdb provides InfluxDB connectivity for the device effect
// service.
//
// It wraps the official influxdb-client-go v2 library with connection
// management, non-blocking batched point writes and health checks. The
// events package turns effect lifecycle events into "device_effect" points.
//
// # Usage
//
//	client, err := influxdb.Connect(ctx, cfg.InfluxDB)
//	if errors.Is(err, influxdb.ErrDisabled) {
//	    // telemetry off
//	}
//	defer client.Close()
//
//	client.WritePoint("device_effect",
//	    map[string]string{"device_type": "AUDIO_DEVICE_OUT_SPEAKER"},
//	    map[string]any{"handles": 2})
//
// # Thread Safety
//
// All methods are safe for concurrent use. Write errors are delivered
// asynchronously to the SetOnError callback.
package influxdb
