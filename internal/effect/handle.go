package effect

import (
	"fmt"
	"sync"

	"github.com/google/uuid"
)

// ClientHandle is any client-held effect reference passed to a disconnect
// callback. Only *Handle values created by a Registry are device effect
// handles; other kinds are left to their own disconnect logic.
type ClientHandle interface {
	ID() uuid.UUID
	Enabled() bool
}

// Handle is one client's reference to an Instance.
//
// The back-reference to the instance never keeps it alive: once the registry
// evicts the instance it is retired, and every call through the handle
// reports ErrStaleHandle.
type Handle struct {
	id                    uuid.UUID
	inst                  *Instance
	registry              *Registry
	client                ClientIdentity
	notifyFramesProcessed bool
	initErr               error

	mu           sync.Mutex
	enabled      bool
	disconnected bool
}

func newHandle(r *Registry, inst *Instance, client ClientIdentity, notifyFramesProcessed bool) *Handle {
	h := &Handle{
		id:                    uuid.New(),
		inst:                  inst,
		registry:              r,
		client:                client,
		notifyFramesProcessed: notifyFramesProcessed,
	}
	if client.ID == "" {
		h.initErr = fmt.Errorf("%w: empty client id", ErrInvalidClient)
	}
	return h
}

// ID returns the handle's unique identifier.
func (h *Handle) ID() uuid.UUID {
	return h.id
}

// Client returns the identity of the owning client.
func (h *Handle) Client() ClientIdentity {
	return h.client
}

// NotifyFramesProcessed reports whether the client asked for processed-frame
// notifications.
func (h *Handle) NotifyFramesProcessed() bool {
	return h.notifyFramesProcessed
}

// InitCheck returns the handle's initialisation result.
func (h *Handle) InitCheck() error {
	return h.initErr
}

// Enabled returns the handle's local enabled flag.
func (h *Handle) Enabled() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.enabled
}

// Info returns a snapshot of the handle.
func (h *Handle) Info() HandleInfo {
	return HandleInfo{ID: h.id, Client: h.client, Enabled: h.Enabled()}
}

// Instance resolves the back-reference. It returns false if the instance has
// been retired.
func (h *Handle) Instance() (*Instance, bool) {
	if h.inst == nil || h.inst.IsRetired() {
		return nil, false
	}
	return h.inst, true
}

// SetEnabled changes the handle's enabled flag and returns the instance's
// resulting enabled state.
func (h *Handle) SetEnabled(enabled bool) (bool, error) {
	inst, ok := h.Instance()
	if !ok {
		return false, ErrStaleHandle
	}

	h.mu.Lock()
	if h.disconnected {
		h.mu.Unlock()
		return false, ErrStaleHandle
	}
	if h.enabled == enabled {
		h.mu.Unlock()
		return inst.IsEnabled(), nil
	}
	h.enabled = enabled
	h.mu.Unlock()

	return inst.handleEnabledChanged(h)
}

// Disconnect detaches the handle from its instance. When this was the last
// handle and the instance is not pinned, or unpinIfLast is set, the instance
// is evicted and, if this handle was enabled, suspended effects are restored.
//
// It returns true once the handle has been processed, whether or not the
// instance was evicted, and false for a stale handle: a second call, or an
// instance that is already retired.
func (h *Handle) Disconnect(unpinIfLast bool) bool {
	h.mu.Lock()
	if h.disconnected {
		h.mu.Unlock()
		return false
	}
	h.disconnected = true
	wasEnabled := h.enabled
	h.mu.Unlock()

	inst, ok := h.Instance()
	if !ok {
		return false
	}

	if h.registry.detachHandle(inst, h, unpinIfLast) && wasEnabled {
		inst.CheckSuspendOnEffectEnabled(false, false)
	}
	return true
}
