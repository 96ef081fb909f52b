package effect

import "errors"

// Domain errors for the effect package.
//
// These errors can be checked using errors.Is():
//
//	if errors.Is(err, effect.ErrIncompatibleEffect) {
//	    // reject the request
//	}
var (
	// ErrIncompatibleEffect is returned when a descriptor is not a pre or post
	// processing effect, or the effect HAL is older than the minimum version
	// required for device effects.
	ErrIncompatibleEffect = errors.New("effect: incompatible device effect")

	// ErrHalCreation is returned when the effect factory cannot instantiate
	// the underlying HAL effect. No instance is registered.
	ErrHalCreation = errors.New("effect: HAL effect creation failed")

	// ErrNoMatchingPatch reports that a patch does not touch the instance's
	// device. It is informational: device effects may exist before routing.
	ErrNoMatchingPatch = errors.New("effect: no matching patch")

	// ErrAlreadyBound reports that every matching patch was already bound.
	ErrAlreadyBound = errors.New("effect: already bound")

	// ErrPatchBinding is returned when the HAL rejects a patch binding.
	ErrPatchBinding = errors.New("effect: patch binding rejected")

	// ErrStaleHandle is returned when a handle is used after its instance was
	// retired or after the handle was disconnected.
	ErrStaleHandle = errors.New("effect: stale handle")

	// ErrInstanceRetired is returned when attaching to a retired instance.
	ErrInstanceRetired = errors.New("effect: instance retired")

	// ErrInvalidClient is returned when a handle cannot be initialised for
	// the requesting client.
	ErrInvalidClient = errors.New("effect: invalid client")

	// ErrLockBusy is returned by Dump when the registry lock could not be
	// acquired in time. The partial report is still written.
	ErrLockBusy = errors.New("effect: registry busy")

	// ErrUnknownDeviceType is returned when parsing an unrecognised device name.
	ErrUnknownDeviceType = errors.New("effect: unknown device type")

	// ErrUnknownClassification is returned when parsing an unrecognised
	// effect classification.
	ErrUnknownClassification = errors.New("effect: unknown classification")

	// ErrUnknownHalType is returned when parsing an unrecognised HAL type.
	ErrUnknownHalType = errors.New("effect: unknown HAL type")
)
