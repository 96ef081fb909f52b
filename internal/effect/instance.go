package effect

import (
	"errors"
	"fmt"
	"maps"
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"
)

// InstanceInfo is a value snapshot of an Instance.
type InstanceInfo struct {
	ID         int32        `json:"id"`
	Device     DeviceKey    `json:"device"`
	Descriptor Descriptor   `json:"descriptor"`
	Enabled    bool         `json:"enabled"`
	Pinned     bool         `json:"pinned"`
	Patches    []PatchID    `json:"patches"`
	Handles    []HandleInfo `json:"handles"`
}

// HandleInfo is a value snapshot of a Handle.
type HandleInfo struct {
	ID      uuid.UUID      `json:"id"`
	Client  ClientIdentity `json:"client"`
	Enabled bool           `json:"enabled"`
}

// Instance wraps exactly one HAL effect bound to one device.
//
// State machine:
//
//	new ──▶ unbound ──OnCreatePatch──▶ bound ──OnReleasePatch──▶ unbound
//	                       (any state) ──evicted by Registry──▶ retired
//
// Retired is terminal. A retired instance rejects new handles and bindings
// and its HAL effect has been closed.
//
// Lock ordering: registry lock, then instance lock, then handle lock.
type Instance struct {
	id        int32
	key       DeviceKey
	desc      Descriptor
	effect    HALEffect
	logger    Logger
	suspender SuspendCoordinator
	emit      func(Event)

	mu       sync.Mutex
	handles  []*Handle
	enabled  bool
	bindings map[PatchID]struct{}
	retired  bool
}

func newInstance(id int32, key DeviceKey, desc Descriptor, effect HALEffect, r *Registry) *Instance {
	return &Instance{
		id:        id,
		key:       key,
		desc:      desc,
		effect:    effect,
		logger:    r.logger,
		suspender: r.suspender,
		emit:      r.publish,
		bindings:  make(map[PatchID]struct{}),
	}
}

// ID returns the process-unique effect ID.
func (i *Instance) ID() int32 {
	return i.id
}

// Device returns the device the instance is bound to.
func (i *Instance) Device() DeviceKey {
	return i.key
}

// Descriptor returns the effect descriptor.
func (i *Instance) Descriptor() Descriptor {
	return i.desc
}

// IsPinned reports whether an active patch binding keeps the instance alive.
func (i *Instance) IsPinned() bool {
	i.mu.Lock()
	defer i.mu.Unlock()
	return len(i.bindings) > 0
}

// IsEnabled reports whether at least one attached handle is enabled.
func (i *Instance) IsEnabled() bool {
	i.mu.Lock()
	defer i.mu.Unlock()
	return i.enabled
}

// HandleCount returns the number of attached handles.
func (i *Instance) HandleCount() int {
	i.mu.Lock()
	defer i.mu.Unlock()
	return len(i.handles)
}

// Patches returns the bound patch IDs in ascending order.
func (i *Instance) Patches() []PatchID {
	i.mu.Lock()
	defer i.mu.Unlock()
	return slices.Sorted(maps.Keys(i.bindings))
}

// IsRetired reports whether the instance has been evicted.
func (i *Instance) IsRetired() bool {
	i.mu.Lock()
	defer i.mu.Unlock()
	return i.retired
}

// Info returns a snapshot of the instance.
func (i *Instance) Info() InstanceInfo {
	i.mu.Lock()
	defer i.mu.Unlock()
	return i.infoLocked()
}

func (i *Instance) infoLocked() InstanceInfo {
	info := InstanceInfo{
		ID:         i.id,
		Device:     i.key,
		Descriptor: i.desc,
		Enabled:    i.enabled,
		Pinned:     len(i.bindings) > 0,
		Patches:    slices.Sorted(maps.Keys(i.bindings)),
		Handles:    make([]HandleInfo, 0, len(i.handles)),
	}
	for _, h := range i.handles {
		info.Handles = append(info.Handles, h.Info())
	}
	return info
}

// OnCreatePatch binds the instance to patch when the patch routes its device.
// It returns ErrNoMatchingPatch when the device is not part of the patch, an
// ErrPatchBinding error when the HAL rejects the route, and nil when the
// instance is bound, including when it already was.
func (i *Instance) OnCreatePatch(id PatchID, patch Patch) error {
	_, err := i.bindPatch(id, patch)
	return err
}

// bindPatch reports whether a new binding was made.
func (i *Instance) bindPatch(id PatchID, patch Patch) (bool, error) {
	if !patch.Touches(i.key) {
		return false, ErrNoMatchingPatch
	}

	i.mu.Lock()
	defer i.mu.Unlock()

	if i.retired {
		return false, ErrInstanceRetired
	}
	if _, ok := i.bindings[id]; ok {
		return false, nil
	}
	if err := i.effect.AddToDevice(i.key, id); err != nil {
		return false, fmt.Errorf("%w: patch %d on %s: %w", ErrPatchBinding, id, i.key, err)
	}
	i.bindings[id] = struct{}{}
	return true, nil
}

// OnReleasePatch drops any binding to the patch. Unknown patches are ignored.
func (i *Instance) OnReleasePatch(id PatchID) {
	i.releasePatch(id)
}

// releasePatch reports whether a binding was dropped.
func (i *Instance) releasePatch(id PatchID) bool {
	i.mu.Lock()
	defer i.mu.Unlock()

	if _, ok := i.bindings[id]; !ok {
		return false
	}
	delete(i.bindings, id)
	if err := i.effect.RemoveFromDevice(i.key, id); err != nil {
		i.logger.Warn("device effect failed to leave patch",
			"instance_id", i.id, "patch_id", id, "error", err)
	}
	return true
}

// init binds a new instance against the patches known at creation time and
// returns the IDs it bound. ErrNoMatchingPatch means the device is not routed
// yet; ErrAlreadyBound means every matching patch was bound before.
func (i *Instance) init(patches PatchSnapshot) ([]PatchID, error) {
	var bound []PatchID
	matched := false

	for _, id := range patches.IDs() {
		ok, err := i.bindPatch(id, patches[id])
		if errors.Is(err, ErrNoMatchingPatch) {
			continue
		}
		if err != nil {
			return bound, err
		}
		matched = true
		if ok {
			bound = append(bound, id)
		}
	}

	switch {
	case !matched:
		return nil, ErrNoMatchingPatch
	case len(bound) == 0:
		return nil, ErrAlreadyBound
	}
	return bound, nil
}

// AddHandle attaches h and recomputes the enabled state.
func (i *Instance) AddHandle(h *Handle) error {
	i.mu.Lock()
	defer i.mu.Unlock()

	if i.retired {
		return ErrInstanceRetired
	}
	if !slices.Contains(i.handles, h) {
		i.handles = append(i.handles, h)
	}
	i.updateEnabledLocked()
	return nil
}

// RemoveHandle detaches h, recomputes the enabled state and returns the
// number of handles still attached.
func (i *Instance) RemoveHandle(h *Handle) int {
	i.mu.Lock()
	defer i.mu.Unlock()

	if idx := slices.Index(i.handles, h); idx >= 0 {
		i.handles = slices.Delete(i.handles, idx, idx+1)
	}
	i.updateEnabledLocked()
	return len(i.handles)
}

// updateEnabledLocked sets enabled to the OR of the attached handles and
// forwards transitions to the HAL. It reports whether the state changed.
func (i *Instance) updateEnabledLocked() bool {
	enabled := slices.ContainsFunc(i.handles, (*Handle).Enabled)
	if enabled == i.enabled {
		return false
	}
	i.enabled = enabled
	if i.retired {
		return true
	}
	if err := i.effect.SetEnabled(enabled); err != nil {
		i.logger.Warn("device effect HAL rejected enable change",
			"instance_id", i.id, "enabled", enabled, "error", err)
	}
	return true
}

// handleEnabledChanged is called by a handle after its own flag flipped.
func (i *Instance) handleEnabledChanged(h *Handle) (bool, error) {
	i.mu.Lock()
	if i.retired {
		i.mu.Unlock()
		return false, ErrStaleHandle
	}
	changed := i.updateEnabledLocked()
	enabled := i.enabled
	i.mu.Unlock()

	if changed {
		i.notify(EventEnabledChanged, PatchNone, h.client.ID)
		i.CheckSuspendOnEffectEnabled(enabled, false)
	}
	return enabled, nil
}

// CheckSuspendOnEffectEnabled forwards an enable transition to the suspend
// coordinator, which resumes effects suspended while this one was active.
func (i *Instance) CheckSuspendOnEffectEnabled(enabled bool, threadLocked bool) {
	i.suspender.CheckSuspendOnEffectEnabled(i.Info(), enabled, threadLocked)
}

// retire moves the instance to its terminal state and releases the HAL effect.
func (i *Instance) retire() {
	i.mu.Lock()
	defer i.mu.Unlock()

	if i.retired {
		return
	}
	i.retired = true

	for _, id := range slices.Sorted(maps.Keys(i.bindings)) {
		if err := i.effect.RemoveFromDevice(i.key, id); err != nil {
			i.logger.Warn("device effect failed to leave patch on retire",
				"instance_id", i.id, "patch_id", id, "error", err)
		}
	}
	clear(i.bindings)

	if err := i.effect.Close(); err != nil {
		i.logger.Warn("device effect HAL close failed", "instance_id", i.id, "error", err)
	}
}

// event samples the instance state into an Event. Must not be called with
// i.mu held.
func (i *Instance) event(kind EventKind, patch PatchID, clientID string) Event {
	i.mu.Lock()
	defer i.mu.Unlock()

	return Event{
		Kind:       kind,
		InstanceID: i.id,
		Device:     i.key,
		EffectUUID: i.desc.UUID,
		EffectName: i.desc.Name,
		PatchID:    patch,
		ClientID:   clientID,
		Handles:    len(i.handles),
		Enabled:    i.enabled,
		Pinned:     len(i.bindings) > 0,
		Time:       time.Now().UTC(),
	}
}

// notify queues an event raised outside the registry lock.
func (i *Instance) notify(kind EventKind, patch PatchID, clientID string) {
	if i.emit != nil {
		i.emit(i.event(kind, patch, clientID))
	}
}
