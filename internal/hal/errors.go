package hal

import "errors"

var (
	// ErrEffectNotFound is returned when a UUID or name is not in the catalog.
	ErrEffectNotFound = errors.New("hal: effect not found")

	// ErrInvalidSession is returned when an effect is requested for a session
	// other than the device session.
	ErrInvalidSession = errors.New("hal: invalid session")

	// ErrEffectClosed is returned by calls on a released effect.
	ErrEffectClosed = errors.New("hal: effect closed")

	// ErrInvalidCatalog is returned when a catalog entry cannot be parsed.
	ErrInvalidCatalog = errors.New("hal: invalid catalog entry")
)
