// Package effect manages audio effects bound to a physical device rather than
// to an audio session.
//
// A device effect is created once per (device, effect UUID) pair and shared by
// every client that asks for the same combination. The registry keeps each
// instance in step with the routing subsystem's patch set, so an effect that
// was requested before its device was routed binds as soon as a patch touching
// the device appears, and unbinds when that patch is released.
//
// # Architecture
//
//	┌──────────────────────────────────────────────────────────────────────┐
//	│                        Device Effect Registry                        │
//	│                                                                      │
//	│   CreateEffect ──▶ Gate ──▶ Instance (one per device+effect) ◀─┐     │
//	│                               │  ▲                             │     │
//	│                               │  └── Handle (one per client) ──┘     │
//	│                               ▼                                      │
//	│                         HALEffect (EffectFactory)                    │
//	│                                                                      │
//	│   OnPatchCreated / OnPatchReleased ──▶ fan out to every instance     │
//	└──────────────────────────────────────────────────────────────────────┘
//
// # Key Types
//
//   - Registry: owns the device→instance map and serialises every mutation
//   - Instance: wraps one HAL effect bound to one device
//   - Handle: one client's reference to an instance
//   - Gate: rejects effects that cannot run as device effects
//
// # Lifetime
//
// An instance lives in the registry while it has at least one attached handle
// or is pinned by an active patch binding. When the last handle disconnects
// and the instance is not pinned (or the caller asks to unpin), the instance
// is evicted, its HAL effect released, and it becomes retired. Handles keep a
// back-reference to their instance but resolve it through the retired flag, so
// a handle outliving its instance sees ErrStaleHandle instead of acting on a
// released effect.
//
// # Thread Safety
//
// All Registry methods are safe for concurrent use. The registry lock must be
// the innermost lock taken by callers: CreateEffect is expected to run under
// the caller's coarser routing lock, and nothing invoked while the registry
// lock is held calls back out to the caller. Lifecycle events are collected
// under the lock and delivered to the Observer after it is released.
package effect
