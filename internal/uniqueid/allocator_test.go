package uniqueid

import (
	"sync"
	"testing"
)

func TestAllocator_Next(t *testing.T) {
	a := New()

	first := a.NewEffectID()
	second := a.NewEffectID()

	if first != int32(UseMax)|int32(UseEffect) {
		t.Errorf("first effect ID = %d, want %d", first, int32(UseMax)|int32(UseEffect))
	}
	if second-first != int32(UseMax) {
		t.Errorf("IDs advance by %d, want %d", second-first, UseMax)
	}
	if UseOf(first) != UseEffect || UseOf(second) != UseEffect {
		t.Errorf("UseOf() = %v, %v, want effect", UseOf(first), UseOf(second))
	}
}

func TestAllocator_UsesAreIndependent(t *testing.T) {
	a := New()

	patch := a.NewPatchID()
	eff := a.NewEffectID()

	if UseOf(patch) != UsePatch {
		t.Errorf("UseOf(patch) = %v, want patch", UseOf(patch))
	}
	if patch == eff {
		t.Error("patch and effect IDs collide")
	}
	if patch&^useMask != eff&^useMask {
		t.Error("each use should start from the same base")
	}
}

func TestAllocator_Concurrent(t *testing.T) {
	a := New()

	const workers, perWorker = 8, 200
	ids := make(chan int32, workers*perWorker)

	var wg sync.WaitGroup
	for range workers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for range perWorker {
				ids <- a.NewEffectID()
			}
		}()
	}
	wg.Wait()
	close(ids)

	seen := make(map[int32]bool, workers*perWorker)
	for id := range ids {
		if seen[id] {
			t.Fatalf("duplicate ID %d", id)
		}
		if id == 0 {
			t.Fatal("zero ID allocated")
		}
		seen[id] = true
	}
}

func TestAllocator_InvalidUsePanics(t *testing.T) {
	defer func() {
		if recover() == nil {
			t.Error("Next(UseMax) did not panic")
		}
	}()
	New().Next(UseMax)
}

func TestUse_String(t *testing.T) {
	if UseEffect.String() != "effect" {
		t.Errorf("UseEffect.String() = %q", UseEffect.String())
	}
	if Use(42).String() != "Use(42)" {
		t.Errorf("Use(42).String() = %q", Use(42).String())
	}
}
