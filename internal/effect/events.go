package effect

import (
	"time"

	"github.com/google/uuid"
)

// EventKind names a lifecycle transition.
type EventKind string

// Lifecycle event kinds.
const (
	EventInstanceCreated EventKind = "instance_created"
	EventInstanceEvicted EventKind = "instance_evicted"
	EventHandleAttached  EventKind = "handle_attached"
	EventHandleDetached  EventKind = "handle_detached"
	EventPatchBound      EventKind = "patch_bound"
	EventPatchReleased   EventKind = "patch_released"
	EventEnabledChanged  EventKind = "enabled_changed"
)

// Event describes one lifecycle transition of a device effect instance.
// State fields (Handles, Enabled, Pinned) are sampled right after the change.
type Event struct {
	Kind       EventKind `json:"kind"`
	InstanceID int32     `json:"instance_id"`
	Device     DeviceKey `json:"device"`
	EffectUUID uuid.UUID `json:"effect_uuid"`
	EffectName string    `json:"effect_name"`
	PatchID    PatchID   `json:"patch_id,omitempty"`
	ClientID   string    `json:"client_id,omitempty"`
	Handles    int       `json:"handles"`
	Enabled    bool      `json:"enabled"`
	Pinned     bool      `json:"pinned"`
	Time       time.Time `json:"time"`
}

// Observer receives lifecycle events. It is never called while the registry
// lock or an instance lock is held.
type Observer interface {
	OnEffectEvent(ev Event)
}

// ObserverFunc adapts a function to Observer.
type ObserverFunc func(ev Event)

// OnEffectEvent calls f(ev).
func (f ObserverFunc) OnEffectEvent(ev Event) {
	f(ev)
}

type noopObserver struct{}

func (noopObserver) OnEffectEvent(Event) {}
