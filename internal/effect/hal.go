package effect

import "github.com/google/uuid"

// HALEffect is one instantiated effect in the effect HAL.
//
// Calls are made while the registry lock may be held, so implementations
// must return promptly and must not call back into the registry.
type HALEffect interface {
	// AddToDevice signals that the route identified by patch is now active
	// on device and the effect should process it.
	AddToDevice(device DeviceKey, patch PatchID) error

	// RemoveFromDevice detaches the effect from a route.
	RemoveFromDevice(device DeviceKey, patch PatchID) error

	// SetEnabled switches processing on or off.
	SetEnabled(enabled bool) error

	// Close releases the HAL resource. The effect is unusable afterwards.
	Close() error
}

// EffectFactory creates HAL effects and reports the HAL version.
type EffectFactory interface {
	CreateEffect(effectUUID uuid.UUID, sessionID int32, ioID int32) (HALEffect, error)
	VersionInfo() HalVersion
}

// IDAllocator hands out process-unique effect IDs.
type IDAllocator interface {
	NewEffectID() int32
}

// SuspendCoordinator restores effects that were suspended while an exclusive
// effect was active. The registry calls it when an instance's last enabled
// handle goes away; it does not own the suspend bookkeeping itself.
type SuspendCoordinator interface {
	CheckSuspendOnEffectEnabled(info InstanceInfo, enabled bool, threadLocked bool)
}

// noopSuspender ignores suspend notifications.
type noopSuspender struct{}

func (noopSuspender) CheckSuspendOnEffectEnabled(InstanceInfo, bool, bool) {}
