// Package uniqueid hands out process-unique IDs for effects, patches and
// other audio objects.
//
// The low three bits of every ID name the kind of object it was allocated
// for, so an ID seen in a log or dump can be classified at a glance. Each use
// has its own counter that advances by UseMax.
package uniqueid

import (
	"fmt"
	"sync/atomic"
)

// Use names the kind of object an ID was allocated for.
type Use int32

// Known uses. The values occupy the low bits of every ID.
const (
	UseUnspecified Use = iota
	UseSession
	UseModule
	UseEffect
	UsePatch
	UseOutput
	UseInput
	UseClient
	UseMax
)

// useMask selects the use bits of an ID.
const useMask int32 = int32(UseMax) - 1

var useNames = [...]string{"unspecified", "session", "module", "effect", "patch", "output", "input", "client"}

// String returns the use name.
func (u Use) String() string {
	if u >= 0 && u < UseMax {
		return useNames[u]
	}
	return fmt.Sprintf("Use(%d)", int32(u))
}

// Allocator is safe for concurrent use. The zero value is not usable; call New.
type Allocator struct {
	next [UseMax]atomic.Int32
}

// New creates an allocator. The first ID of each use is UseMax|use, so no ID
// is ever zero.
func New() *Allocator {
	a := &Allocator{}
	for i := range a.next {
		a.next[i].Store(int32(UseMax))
	}
	return a
}

// Next returns a fresh ID tagged with use. It panics for an out-of-range use.
func (a *Allocator) Next(use Use) int32 {
	if use < 0 || use >= UseMax {
		panic(fmt.Sprintf("uniqueid: invalid use %d", use))
	}
	base := a.next[use].Add(int32(UseMax)) - int32(UseMax)
	return base | int32(use)
}

// NewEffectID implements effect.IDAllocator.
func (a *Allocator) NewEffectID() int32 {
	return a.Next(UseEffect)
}

// NewPatchID returns an ID for a patch created without one.
func (a *Allocator) NewPatchID() int32 {
	return a.Next(UsePatch)
}

// UseOf returns the use an ID was allocated for.
func UseOf(id int32) Use {
	return Use(id & useMask)
}
