package effect

import (
	"cmp"
	"errors"
	"fmt"
	"slices"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
)

// Logger defines the logging interface used by the Registry.
// This allows different logging implementations to be used.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

// noopLogger is a logger that does nothing.
type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Warn(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}

// defaultDumpTimeout bounds how long Dump waits for the registry lock.
const defaultDumpTimeout = time.Second

// registryKey identifies one device effect: a device plus an effect UUID.
type registryKey struct {
	device DeviceKey
	effect uuid.UUID
}

// CreateRequest carries the arguments of Registry.CreateEffect.
type CreateRequest struct {
	Descriptor Descriptor
	Device     DeviceKey
	Client     ClientIdentity

	// Patches is the routing subsystem's patch set at the time of the call.
	Patches PatchSnapshot

	// Probe runs the compatibility check only; nothing is created.
	Probe bool

	NotifyFramesProcessed bool
}

// Registry owns the device effect instances.
//
// All mutations (create, evict, patch fan-out) run under a single mutex,
// which must be the innermost lock of any caller. Lifecycle events raised
// under the lock are queued in lock order and delivered to the Observer
// after it is released, by one goroutine at a time.
//
// The Set* methods must be called before the registry is shared.
type Registry struct {
	factory     EffectFactory
	ids         IDAllocator
	gate        Gate
	dumpTimeout time.Duration

	logger    Logger
	observer  Observer
	suspender SuspendCoordinator

	mu      sync.Mutex
	effects map[registryKey]*Instance

	// count mirrors len(effects) for lock-free diagnostics.
	count atomic.Int64

	// outbox holds events not yet delivered. It is filled under mu so its
	// order is the order of registry mutations.
	outMu    sync.Mutex
	outbox   []Event
	draining bool
}

// NewRegistry creates a registry that instantiates effects through factory
// and numbers them with ids.
func NewRegistry(factory EffectFactory, ids IDAllocator) *Registry {
	return &Registry{
		factory:     factory,
		ids:         ids,
		gate:        DefaultGate(),
		dumpTimeout: defaultDumpTimeout,
		logger:      noopLogger{},
		observer:    noopObserver{},
		suspender:   noopSuspender{},
		effects:     make(map[registryKey]*Instance),
	}
}

// SetLogger sets the logger for the registry.
func (r *Registry) SetLogger(logger Logger) {
	r.logger = logger
}

// SetObserver sets the receiver of lifecycle events.
func (r *Registry) SetObserver(o Observer) {
	r.observer = o
}

// SetSuspendCoordinator sets the collaborator that restores suspended effects.
func (r *Registry) SetSuspendCoordinator(s SuspendCoordinator) {
	r.suspender = s
}

// SetMinimumHalVersion overrides the gate's minimum HAL version.
func (r *Registry) SetMinimumHalVersion(v HalVersion) {
	r.gate = Gate{MinVersion: v}
}

// SetDumpTimeout sets how long Dump waits for the registry lock.
func (r *Registry) SetDumpTimeout(d time.Duration) {
	r.dumpTimeout = d
}

// CreateEffect attaches a new handle for req.Client to the instance for
// (req.Device, req.Descriptor.UUID), creating and initialising the instance
// if it does not exist yet.
//
// The compatibility gate runs first. For probe requests, or when the gate
// rejects the descriptor, the gate result is returned and nothing is created.
// A new instance that finds no patch for its device is still registered: the
// device may simply not be routed yet.
//
// Returns the handle, the instance's enabled state after the attach, and an
// error that wraps ErrIncompatibleEffect, ErrHalCreation, ErrInvalidClient or
// ErrPatchBinding on failure.
func (r *Registry) CreateEffect(req CreateRequest) (*Handle, bool, error) {
	if err := r.checkCompatibility(req.Descriptor); err != nil || req.Probe {
		return nil, false, err
	}

	var events []Event
	h, enabled, err := r.createEffectLocked(req, &events)
	r.flush()
	return h, enabled, err
}

func (r *Registry) checkCompatibility(desc Descriptor) error {
	version := r.factory.VersionInfo()
	if err := r.gate.Check(desc, version); err != nil {
		r.logger.Warn("device effect rejected",
			"effect", desc.Name, "hal_version", version.String(), "error", err)
		return err
	}
	return nil
}

func (r *Registry) createEffectLocked(req CreateRequest, events *[]Event) (*Handle, bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	defer func() { r.queueLocked(*events...) }()

	key := registryKey{device: req.Device, effect: req.Descriptor.UUID}
	inst, found := r.effects[key]
	if !found {
		var err error
		if inst, err = r.newInstanceLocked(req.Device, req.Descriptor); err != nil {
			return nil, false, err
		}
	}

	h := newHandle(r, inst, req.Client, req.NotifyFramesProcessed)
	if err := h.InitCheck(); err != nil {
		if !found {
			inst.retire()
		}
		return nil, false, err
	}
	if err := inst.AddHandle(h); err != nil {
		if !found {
			inst.retire()
		}
		return nil, false, err
	}

	if found {
		*events = append(*events, inst.event(EventHandleAttached, PatchNone, req.Client.ID))
		return h, inst.IsEnabled(), nil
	}

	bound, err := inst.init(req.Patches)
	switch {
	case errors.Is(err, ErrNoMatchingPatch):
		r.logger.Debug("device effect created before its device is routed",
			"instance_id", inst.id, "device", req.Device.String())
	case errors.Is(err, ErrAlreadyBound):
	case err != nil:
		inst.RemoveHandle(h)
		inst.retire()
		return nil, false, err
	}

	r.effects[key] = inst
	r.count.Store(int64(len(r.effects)))
	r.logger.Info("device effect created",
		"instance_id", inst.id,
		"effect", req.Descriptor.Name,
		"device", req.Device.String(),
		"patches", len(bound),
	)

	*events = append(*events, inst.event(EventInstanceCreated, PatchNone, ""))
	for _, id := range bound {
		*events = append(*events, inst.event(EventPatchBound, id, ""))
	}
	*events = append(*events, inst.event(EventHandleAttached, PatchNone, req.Client.ID))
	return h, inst.IsEnabled(), nil
}

// newInstanceLocked creates an instance that is not yet in the map.
func (r *Registry) newInstanceLocked(device DeviceKey, desc Descriptor) (*Instance, error) {
	id := r.ids.NewEffectID()
	halEffect, err := r.factory.CreateEffect(desc.UUID, SessionDevice, id)
	if err != nil {
		r.logger.Error("device effect HAL creation failed",
			"effect", desc.Name, "device", device.String(), "error", err)
		return nil, fmt.Errorf("%w: %s on %s: %w", ErrHalCreation, desc.Name, device, err)
	}
	return newInstance(id, device, desc, halEffect, r), nil
}

// OnPatchCreated notifies every instance of a new patch. Each instance binds
// itself if the patch routes its device. A failing instance is logged and
// does not stop the others from being notified.
func (r *Registry) OnPatchCreated(id PatchID, patch Patch) {
	var events []Event

	r.mu.Lock()
	for _, inst := range r.instancesLocked() {
		bound, err := inst.bindPatch(id, patch)
		switch {
		case errors.Is(err, ErrNoMatchingPatch):
		case err != nil:
			r.logger.Warn("device effect failed to bind patch",
				"instance_id", inst.id, "patch_id", id, "error", err)
		case bound:
			events = append(events, inst.event(EventPatchBound, id, ""))
		}
	}
	r.queueLocked(events...)
	r.mu.Unlock()

	r.flush()
}

// OnPatchReleased notifies every instance that a patch is gone. Instances not
// bound to the patch ignore it.
func (r *Registry) OnPatchReleased(id PatchID) {
	var events []Event

	r.mu.Lock()
	for _, inst := range r.instancesLocked() {
		if inst.releasePatch(id) {
			events = append(events, inst.event(EventPatchReleased, id, ""))
		}
	}
	r.queueLocked(events...)
	r.mu.Unlock()

	r.flush()
}

// RemoveEffectInstance evicts inst from the registry, releases its HAL effect
// and returns the number of instances left.
func (r *Registry) RemoveEffectInstance(inst *Instance) int {
	r.mu.Lock()
	if r.removeLocked(inst) {
		r.queueLocked(inst.event(EventInstanceEvicted, PatchNone, ""))
	}
	remaining := len(r.effects)
	r.mu.Unlock()

	r.flush()
	return remaining
}

// removeLocked deletes inst if it is still the registered instance for its
// key. A newer instance under the same key is left alone.
func (r *Registry) removeLocked(inst *Instance) bool {
	key := registryKey{device: inst.key, effect: inst.desc.UUID}
	if cur, ok := r.effects[key]; !ok || cur != inst {
		return false
	}
	delete(r.effects, key)
	r.count.Store(int64(len(r.effects)))
	inst.retire()

	r.logger.Info("device effect evicted",
		"instance_id", inst.id, "device", inst.key.String(), "remaining", len(r.effects))
	return true
}

// detachHandle removes h from inst and evicts inst if it was the last handle
// and the instance is unpinned or unpinIfLast is set. It reports eviction.
func (r *Registry) detachHandle(inst *Instance, h *Handle, unpinIfLast bool) bool {
	events := make([]Event, 0, 2)

	r.mu.Lock()
	remaining := inst.RemoveHandle(h)
	events = append(events, inst.event(EventHandleDetached, PatchNone, h.client.ID))
	evicted := false
	if remaining == 0 && (!inst.IsPinned() || unpinIfLast) {
		evicted = r.removeLocked(inst)
		if evicted {
			events = append(events, inst.event(EventInstanceEvicted, PatchNone, ""))
		}
	}
	r.queueLocked(events...)
	r.mu.Unlock()

	r.flush()
	return evicted
}

// DisconnectEffectHandle is the disconnect callback for client handles. It
// returns false for handles that are not device effect handles of this
// registry, so the caller can pass them to other handlers.
func (r *Registry) DisconnectEffectHandle(ch ClientHandle, unpinIfLast bool) bool {
	h, ok := ch.(*Handle)
	if !ok || h.registry != r {
		return false
	}
	return h.Disconnect(unpinIfLast)
}

// Find returns the live instance for a device and effect UUID.
func (r *Registry) Find(device DeviceKey, effectUUID uuid.UUID) (*Instance, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	inst, ok := r.effects[registryKey{device: device, effect: effectUUID}]
	return inst, ok
}

// Len returns the number of live instances.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.effects)
}

// Instances returns snapshots of every live instance ordered by device.
func (r *Registry) Instances() []InstanceInfo {
	r.mu.Lock()
	insts := r.instancesLocked()
	r.mu.Unlock()

	infos := make([]InstanceInfo, 0, len(insts))
	for _, inst := range insts {
		infos = append(infos, inst.Info())
	}
	return infos
}

// instancesLocked returns a stable, ordered slice of the live instances.
func (r *Registry) instancesLocked() []*Instance {
	insts := make([]*Instance, 0, len(r.effects))
	for _, inst := range r.effects {
		insts = append(insts, inst)
	}
	slices.SortFunc(insts, func(a, b *Instance) int {
		if c := compareDeviceKeys(a.key, b.key); c != 0 {
			return c
		}
		return cmp.Compare(a.id, b.id)
	})
	return insts
}

// queueLocked appends events to the outbox. Callers hold r.mu, except for
// publish, whose events are not tied to a registry mutation.
func (r *Registry) queueLocked(events ...Event) {
	if len(events) == 0 {
		return
	}
	r.outMu.Lock()
	r.outbox = append(r.outbox, events...)
	r.outMu.Unlock()
}

// publish queues and delivers an event raised outside the registry lock.
func (r *Registry) publish(ev Event) {
	r.queueLocked(ev)
	r.flush()
}

// flush delivers queued events in order. Only one goroutine drains at a
// time; a caller that finds a drain in progress returns and leaves its
// events to that goroutine. No registry lock is held while observing.
func (r *Registry) flush() {
	r.outMu.Lock()
	if r.draining {
		r.outMu.Unlock()
		return
	}
	r.draining = true

	for len(r.outbox) > 0 {
		batch := r.outbox
		r.outbox = nil
		r.outMu.Unlock()

		for _, ev := range batch {
			r.deliver(ev)
		}

		r.outMu.Lock()
	}
	r.draining = false
	r.outMu.Unlock()
}

func (r *Registry) deliver(ev Event) {
	defer func() {
		if rec := recover(); rec != nil {
			r.logger.Error("effect observer panicked", "kind", ev.Kind, "panic", rec)
		}
	}()
	r.observer.OnEffectEvent(ev)
}
