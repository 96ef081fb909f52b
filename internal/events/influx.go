package events

import (
	"time"

	"github.com/nerrad567/gray-logic-fx/internal/effect"
)

// measurement is the InfluxDB measurement for lifecycle events.
const measurement = "device_effect"

// PointWriter is the subset of the InfluxDB client used here.
type PointWriter interface {
	WritePointWithTime(measurement string, tags map[string]string, fields map[string]any, timestamp time.Time)
}

// InfluxRecorder writes one point per lifecycle event.
type InfluxRecorder struct {
	w    PointWriter
	site string
}

// NewInfluxRecorder creates a recorder tagging every point with site.
func NewInfluxRecorder(w PointWriter, site string) *InfluxRecorder {
	return &InfluxRecorder{w: w, site: site}
}

// OnEffectEvent implements effect.Observer.
func (r *InfluxRecorder) OnEffectEvent(ev effect.Event) {
	tags := map[string]string{
		"kind":        string(ev.Kind),
		"device_type": ev.Device.Type.String(),
		"effect":      ev.EffectName,
		"effect_uuid": ev.EffectUUID.String(),
	}
	if ev.Device.Address != "" {
		tags["device_address"] = ev.Device.Address
	}
	if r.site != "" {
		tags["site"] = r.site
	}

	fields := map[string]any{
		"instance_id": int64(ev.InstanceID),
		"handles":     int64(ev.Handles),
		"enabled":     ev.Enabled,
		"pinned":      ev.Pinned,
	}
	if ev.PatchID != effect.PatchNone {
		fields["patch_id"] = int64(ev.PatchID)
	}

	ts := ev.Time
	if ts.IsZero() {
		ts = time.Now()
	}
	r.w.WritePointWithTime(measurement, tags, fields, ts)
}
