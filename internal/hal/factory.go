package hal

import (
	"fmt"
	"maps"
	"slices"
	"sync"

	"github.com/google/uuid"

	"github.com/nerrad567/gray-logic-fx/internal/effect"
)

// SoftwareFactory implements effect.EffectFactory over a Catalog.
type SoftwareFactory struct {
	catalog *Catalog
	version effect.HalVersion

	mu      sync.Mutex
	effects map[int32]*SoftwareEffect
}

// NewSoftwareFactory creates a factory that reports version.
func NewSoftwareFactory(catalog *Catalog, version effect.HalVersion) *SoftwareFactory {
	return &SoftwareFactory{
		catalog: catalog,
		version: version,
		effects: make(map[int32]*SoftwareEffect),
	}
}

// VersionInfo implements effect.EffectFactory.
func (f *SoftwareFactory) VersionInfo() effect.HalVersion {
	return f.version
}

// Catalog returns the factory's catalog.
func (f *SoftwareFactory) Catalog() *Catalog {
	return f.catalog
}

// CreateEffect implements effect.EffectFactory. Only device effects
// (session effect.SessionDevice) are supported.
func (f *SoftwareFactory) CreateEffect(effectUUID uuid.UUID, sessionID, ioID int32) (effect.HALEffect, error) {
	if sessionID != effect.SessionDevice {
		return nil, fmt.Errorf("%w: %d", ErrInvalidSession, sessionID)
	}
	desc, err := f.catalog.Lookup(effectUUID)
	if err != nil {
		return nil, err
	}

	e := &SoftwareEffect{
		id:      ioID,
		desc:    desc,
		factory: f,
		routes:  make(map[effect.PatchID]effect.DeviceKey),
	}

	f.mu.Lock()
	f.effects[ioID] = e
	f.mu.Unlock()
	return e, nil
}

// Effect returns the live effect created with ioID.
func (f *SoftwareFactory) Effect(ioID int32) (*SoftwareEffect, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	e, ok := f.effects[ioID]
	return e, ok
}

// Live returns the number of effects not yet closed.
func (f *SoftwareFactory) Live() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.effects)
}

func (f *SoftwareFactory) release(ioID int32) {
	f.mu.Lock()
	delete(f.effects, ioID)
	f.mu.Unlock()
}

// SoftwareEffect is one instantiated catalog effect.
type SoftwareEffect struct {
	id      int32
	desc    effect.Descriptor
	factory *SoftwareFactory

	mu      sync.Mutex
	routes  map[effect.PatchID]effect.DeviceKey
	enabled bool
	closed  bool
}

// Descriptor returns the effect's catalog descriptor.
func (e *SoftwareEffect) Descriptor() effect.Descriptor {
	return e.desc
}

// AddToDevice implements effect.HALEffect.
func (e *SoftwareEffect) AddToDevice(device effect.DeviceKey, patch effect.PatchID) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed {
		return ErrEffectClosed
	}
	e.routes[patch] = device
	return nil
}

// RemoveFromDevice implements effect.HALEffect.
func (e *SoftwareEffect) RemoveFromDevice(_ effect.DeviceKey, patch effect.PatchID) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed {
		return ErrEffectClosed
	}
	delete(e.routes, patch)
	return nil
}

// SetEnabled implements effect.HALEffect.
func (e *SoftwareEffect) SetEnabled(enabled bool) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed {
		return ErrEffectClosed
	}
	e.enabled = enabled
	return nil
}

// Close implements effect.HALEffect. Closing twice is an error.
func (e *SoftwareEffect) Close() error {
	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		return ErrEffectClosed
	}
	e.closed = true
	clear(e.routes)
	e.mu.Unlock()

	e.factory.release(e.id)
	return nil
}

// Enabled reports whether processing is switched on.
func (e *SoftwareEffect) Enabled() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.enabled
}

// Routes returns the active patch IDs in ascending order.
func (e *SoftwareEffect) Routes() []effect.PatchID {
	e.mu.Lock()
	defer e.mu.Unlock()
	return slices.Sorted(maps.Keys(e.routes))
}

// Closed reports whether the effect has been released.
func (e *SoftwareEffect) Closed() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.closed
}
