package routing

import "errors"

var (
	// ErrInvalidPatch is returned for patches without a positive ID or
	// without any device, and for malformed MQTT payloads.
	ErrInvalidPatch = errors.New("routing: invalid patch")

	// ErrPatchNotFound is returned when releasing an unknown patch.
	ErrPatchNotFound = errors.New("routing: patch not found")

	// ErrPatchConflict is returned when the routing service reuses the ID
	// of a patch created through the panel itself.
	ErrPatchConflict = errors.New("routing: patch ID conflict")
)
