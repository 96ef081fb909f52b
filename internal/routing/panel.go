package routing

import (
	"fmt"
	"maps"
	"slices"
	"sync"

	"github.com/nerrad567/gray-logic-fx/internal/effect"
	"github.com/nerrad567/gray-logic-fx/internal/infrastructure/config"
)

// Logger is the logging interface used by the panel.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
}

type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Warn(string, ...any)  {}

// Listener is notified of patch transitions. Calls are made with the
// dispatch lock held and must not call back into the panel.
type Listener interface {
	OnPatchCreated(id effect.PatchID, patch effect.Patch)
	OnPatchReleased(id effect.PatchID)
}

// IDAllocator hands out patch IDs for patches created locally.
type IDAllocator interface {
	NewPatchID() int32
}

// PatchPanel is the authoritative set of active patches.
type PatchPanel struct {
	ids    IDAllocator
	logger Logger

	// dispatch serialises mutations, listener fan-out and WithSnapshot.
	dispatch  sync.Mutex
	listeners []Listener

	mu      sync.RWMutex
	patches effect.PatchSnapshot

	// local holds the IDs of patches made by CreatePatch. The routing
	// service may neither replace nor release them.
	local map[effect.PatchID]struct{}
}

// NewPatchPanel creates an empty panel.
func NewPatchPanel(ids IDAllocator) *PatchPanel {
	return &PatchPanel{
		ids:     ids,
		logger:  noopLogger{},
		patches: make(effect.PatchSnapshot),
		local:   make(map[effect.PatchID]struct{}),
	}
}

// SetLogger sets the panel logger.
func (p *PatchPanel) SetLogger(logger Logger) {
	p.logger = logger
}

// AddListener registers l. Listeners are notified in registration order.
func (p *PatchPanel) AddListener(l Listener) {
	p.dispatch.Lock()
	defer p.dispatch.Unlock()
	p.listeners = append(p.listeners, l)
}

// maxIDAttempts bounds the search for an allocated patch ID that no
// external patch already uses.
const maxIDAttempts = 16

// CreatePatch allocates an ID and adds a patch routing sources to sinks.
// Allocated IDs that collide with a live patch are skipped.
func (p *PatchPanel) CreatePatch(sources, sinks []effect.DeviceKey) (effect.Patch, error) {
	patch := effect.Patch{
		Sources: slices.Clone(sources),
		Sinks:   slices.Clone(sinks),
	}

	p.dispatch.Lock()
	defer p.dispatch.Unlock()

	for range maxIDAttempts {
		id := effect.PatchID(p.ids.NewPatchID())
		if _, taken := p.Patch(id); taken {
			p.logger.Warn("allocated patch ID already in use, skipping", "patch_id", id)
			continue
		}
		patch.ID = id
		if err := p.addLocked(patch, true); err != nil {
			return effect.Patch{}, err
		}
		return patch, nil
	}
	return effect.Patch{}, fmt.Errorf("%w: no free patch ID after %d attempts", ErrPatchConflict, maxIDAttempts)
}

// AddPatch adds a patch with a caller-chosen ID. A patch that reuses a live
// ID replaces it: listeners see the release of the old route before the
// creation of the new one. Patches made by CreatePatch cannot be replaced.
func (p *PatchPanel) AddPatch(patch effect.Patch) error {
	p.dispatch.Lock()
	defer p.dispatch.Unlock()
	return p.addLocked(patch, false)
}

// addLocked adds or replaces a patch. p.dispatch must be held.
func (p *PatchPanel) addLocked(patch effect.Patch, local bool) error {
	if err := validatePatch(patch); err != nil {
		return err
	}

	p.mu.Lock()
	if _, own := p.local[patch.ID]; own {
		p.mu.Unlock()
		return fmt.Errorf("%w: patch %d was created locally", ErrPatchConflict, patch.ID)
	}
	_, replaced := p.patches[patch.ID]
	p.patches[patch.ID] = patch
	if local {
		p.local[patch.ID] = struct{}{}
	}
	p.mu.Unlock()

	if replaced {
		p.logger.Info("patch replaced", "patch_id", patch.ID)
		for _, l := range p.listeners {
			l.OnPatchReleased(patch.ID)
		}
	} else {
		p.logger.Info("patch created", "patch_id", patch.ID,
			"sources", len(patch.Sources), "sinks", len(patch.Sinks))
	}
	for _, l := range p.listeners {
		l.OnPatchCreated(patch.ID, patch)
	}
	return nil
}

// ReleasePatch removes a patch and notifies listeners.
func (p *PatchPanel) ReleasePatch(id effect.PatchID) error {
	return p.release(id, true)
}

// release removes a patch. Unless allowLocal is set, a patch made by
// CreatePatch is refused with ErrPatchConflict.
func (p *PatchPanel) release(id effect.PatchID, allowLocal bool) error {
	p.dispatch.Lock()
	defer p.dispatch.Unlock()

	p.mu.Lock()
	_, ok := p.patches[id]
	if _, own := p.local[id]; own && !allowLocal {
		p.mu.Unlock()
		return fmt.Errorf("%w: patch %d was created locally", ErrPatchConflict, id)
	}
	delete(p.patches, id)
	delete(p.local, id)
	p.mu.Unlock()

	if !ok {
		return fmt.Errorf("%w: %d", ErrPatchNotFound, id)
	}

	p.logger.Info("patch released", "patch_id", id)
	for _, l := range p.listeners {
		l.OnPatchReleased(id)
	}
	return nil
}

// Snapshot returns a copy of the current patch set.
func (p *PatchPanel) Snapshot() effect.PatchSnapshot {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.snapshotLocked()
}

func (p *PatchPanel) snapshotLocked() effect.PatchSnapshot {
	snap := make(effect.PatchSnapshot, len(p.patches))
	for id, patch := range p.patches {
		snap[id] = clonePatch(patch)
	}
	return snap
}

// WithSnapshot runs fn with the dispatch lock held, so no patch transition
// can happen until fn returns.
func (p *PatchPanel) WithSnapshot(fn func(effect.PatchSnapshot)) {
	p.dispatch.Lock()
	defer p.dispatch.Unlock()
	fn(p.Snapshot())
}

// Patch returns one patch.
func (p *PatchPanel) Patch(id effect.PatchID) (effect.Patch, bool) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	patch, ok := p.patches[id]
	return clonePatch(patch), ok
}

// Patches returns every patch ordered by ID.
func (p *PatchPanel) Patches() []effect.Patch {
	p.mu.RLock()
	defer p.mu.RUnlock()

	out := make([]effect.Patch, 0, len(p.patches))
	for _, id := range slices.Sorted(maps.Keys(p.patches)) {
		out = append(out, clonePatch(p.patches[id]))
	}
	return out
}

// Len returns the number of active patches.
func (p *PatchPanel) Len() int {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return len(p.patches)
}

// LoadConfig adds the statically configured patches.
func (p *PatchPanel) LoadConfig(patches []config.PatchConfig) error {
	for i, pc := range patches {
		patch, err := PatchFromConfig(pc)
		if err != nil {
			return fmt.Errorf("routing.patches[%d]: %w", i, err)
		}
		if err := p.AddPatch(patch); err != nil {
			return fmt.Errorf("routing.patches[%d]: %w", i, err)
		}
	}
	return nil
}

// PatchFromConfig converts a configured patch.
func PatchFromConfig(pc config.PatchConfig) (effect.Patch, error) {
	sources, err := devicesFromConfig(pc.Sources)
	if err != nil {
		return effect.Patch{}, err
	}
	sinks, err := devicesFromConfig(pc.Sinks)
	if err != nil {
		return effect.Patch{}, err
	}
	return effect.Patch{ID: effect.PatchID(pc.ID), Sources: sources, Sinks: sinks}, nil
}

func devicesFromConfig(devices []config.DeviceConfig) ([]effect.DeviceKey, error) {
	keys := make([]effect.DeviceKey, 0, len(devices))
	for _, d := range devices {
		t, err := effect.ParseDeviceType(d.Type)
		if err != nil {
			return nil, fmt.Errorf("%w: %w", ErrInvalidPatch, err)
		}
		keys = append(keys, effect.DeviceKey{Type: t, Address: d.Address})
	}
	return keys, nil
}

func validatePatch(patch effect.Patch) error {
	if patch.ID <= effect.PatchNone {
		return fmt.Errorf("%w: id %d must be positive", ErrInvalidPatch, patch.ID)
	}
	if len(patch.Sources)+len(patch.Sinks) == 0 {
		return fmt.Errorf("%w: patch %d routes no device", ErrInvalidPatch, patch.ID)
	}
	return nil
}

func clonePatch(patch effect.Patch) effect.Patch {
	patch.Sources = slices.Clone(patch.Sources)
	patch.Sinks = slices.Clone(patch.Sinks)
	return patch
}
