package effect

import (
	"errors"
	"slices"
	"sync"
	"testing"
)

func speakerPatch(id PatchID) Patch {
	return Patch{ID: id, Sinks: []DeviceKey{speaker}}
}

func TestRegistry_CreateEffect(t *testing.T) {
	t.Run("creates instance without a patch", func(t *testing.T) {
		env := newTestEnv(t)

		h, enabled, err := env.registry.CreateEffect(CreateRequest{
			Descriptor: postProcDescriptor(),
			Device:     speaker,
			Client:     client("c1"),
		})
		if err != nil {
			t.Fatalf("CreateEffect() error = %v", err)
		}
		if enabled {
			t.Error("enabled = true, want false")
		}
		if env.registry.Len() != 1 {
			t.Errorf("Len() = %d, want 1", env.registry.Len())
		}
		inst, ok := h.Instance()
		if !ok {
			t.Fatal("Instance() reported retired")
		}
		if inst.IsPinned() {
			t.Error("instance pinned without any patch")
		}
		if env.factory.sessions[0] != SessionDevice {
			t.Errorf("session = %d, want %d", env.factory.sessions[0], SessionDevice)
		}
	})

	t.Run("binds to matching patches at creation", func(t *testing.T) {
		env := newTestEnv(t)
		patches := PatchSnapshot{
			3: speakerPatch(3),
			4: {ID: 4, Sinks: []DeviceKey{headset}},
		}

		h := env.create(t, postProcDescriptor(), speaker, client("c1"), patches)
		inst, _ := h.Instance()
		if got := inst.Patches(); !slices.Equal(got, []PatchID{3}) {
			t.Errorf("Patches() = %v, want [3]", got)
		}
		if !inst.IsPinned() {
			t.Error("instance not pinned after binding")
		}
		if env.observer.count(EventPatchBound) != 1 {
			t.Errorf("patch_bound events = %d, want 1", env.observer.count(EventPatchBound))
		}
	})

	t.Run("rejects incompatible descriptor regardless of patches", func(t *testing.T) {
		env := newTestEnv(t)
		desc := postProcDescriptor()
		desc.Flags = FlagTypeInsert

		_, _, err := env.registry.CreateEffect(CreateRequest{
			Descriptor: desc,
			Device:     speaker,
			Client:     client("c1"),
			Patches:    PatchSnapshot{1: speakerPatch(1)},
		})
		if !errors.Is(err, ErrIncompatibleEffect) {
			t.Errorf("CreateEffect() error = %v, want ErrIncompatibleEffect", err)
		}
		if env.registry.Len() != 0 {
			t.Errorf("Len() = %d, want 0", env.registry.Len())
		}
		if env.factory.createdCount() != 0 {
			t.Errorf("HAL effects created = %d, want 0", env.factory.createdCount())
		}
	})

	t.Run("rejects old HAL", func(t *testing.T) {
		env := newTestEnv(t)
		env.factory.version = HalVersion{Type: HalTypeHIDL, Major: 5, Minor: 0}

		_, _, err := env.registry.CreateEffect(CreateRequest{
			Descriptor: postProcDescriptor(),
			Device:     speaker,
			Client:     client("c1"),
		})
		if !errors.Is(err, ErrIncompatibleEffect) {
			t.Errorf("CreateEffect() error = %v, want ErrIncompatibleEffect", err)
		}
	})

	t.Run("probe creates nothing", func(t *testing.T) {
		env := newTestEnv(t)

		h, _, err := env.registry.CreateEffect(CreateRequest{
			Descriptor: postProcDescriptor(),
			Device:     speaker,
			Client:     client("c1"),
			Probe:      true,
		})
		if err != nil {
			t.Fatalf("CreateEffect(probe) error = %v", err)
		}
		if h != nil {
			t.Error("probe returned a handle")
		}
		if env.registry.Len() != 0 || env.factory.createdCount() != 0 {
			t.Error("probe created an instance")
		}
	})

	t.Run("HAL creation failure leaves map empty", func(t *testing.T) {
		env := newTestEnv(t)
		env.factory.createErr = errMockHAL

		_, _, err := env.registry.CreateEffect(CreateRequest{
			Descriptor: postProcDescriptor(),
			Device:     speaker,
			Client:     client("c1"),
		})
		if !errors.Is(err, ErrHalCreation) {
			t.Errorf("CreateEffect() error = %v, want ErrHalCreation", err)
		}
		if !errors.Is(err, errMockHAL) {
			t.Errorf("CreateEffect() error = %v, want wrapped HAL error", err)
		}
		if env.registry.Len() != 0 {
			t.Errorf("Len() = %d, want 0", env.registry.Len())
		}
	})

	t.Run("patch binding failure releases the new instance", func(t *testing.T) {
		env := newTestEnv(t)
		env.factory.addErr = errMockHAL

		_, _, err := env.registry.CreateEffect(CreateRequest{
			Descriptor: postProcDescriptor(),
			Device:     speaker,
			Client:     client("c1"),
			Patches:    PatchSnapshot{1: speakerPatch(1)},
		})
		if !errors.Is(err, ErrPatchBinding) {
			t.Errorf("CreateEffect() error = %v, want ErrPatchBinding", err)
		}
		if env.registry.Len() != 0 {
			t.Errorf("Len() = %d, want 0", env.registry.Len())
		}
		if env.factory.effect(0).closeCount() != 1 {
			t.Errorf("HAL Close() calls = %d, want 1", env.factory.effect(0).closeCount())
		}
	})

	t.Run("invalid client releases the new instance", func(t *testing.T) {
		env := newTestEnv(t)

		_, _, err := env.registry.CreateEffect(CreateRequest{
			Descriptor: postProcDescriptor(),
			Device:     speaker,
		})
		if !errors.Is(err, ErrInvalidClient) {
			t.Errorf("CreateEffect() error = %v, want ErrInvalidClient", err)
		}
		if env.registry.Len() != 0 {
			t.Errorf("Len() = %d, want 0", env.registry.Len())
		}
		if env.factory.effect(0).closeCount() != 1 {
			t.Error("HAL effect not closed")
		}
	})

	t.Run("distinct devices and effects get distinct instances", func(t *testing.T) {
		env := newTestEnv(t)

		env.create(t, postProcDescriptor(), speaker, client("c1"), nil)
		env.create(t, postProcDescriptor(), headset, client("c1"), nil)
		env.create(t, preProcDescriptor(), builtInMic, client("c1"), nil)
		env.create(t, postProcDescriptor(), speaker, client("c2"), nil)

		if env.registry.Len() != 3 {
			t.Errorf("Len() = %d, want 3", env.registry.Len())
		}
	})
}

func TestRegistry_ReuseReturnsEnabledState(t *testing.T) {
	env := newTestEnv(t)

	h1 := env.create(t, postProcDescriptor(), speaker, client("c1"), nil)
	if _, err := h1.SetEnabled(true); err != nil {
		t.Fatalf("SetEnabled() error = %v", err)
	}

	h2, enabled, err := env.registry.CreateEffect(CreateRequest{
		Descriptor: postProcDescriptor(),
		Device:     speaker,
		Client:     client("c2"),
	})
	if err != nil {
		t.Fatalf("CreateEffect() error = %v", err)
	}
	if !enabled {
		t.Error("enabled = false for shared enabled instance")
	}
	i1, _ := h1.Instance()
	i2, _ := h2.Instance()
	if i1 != i2 {
		t.Error("second request did not reuse the instance")
	}
	if env.factory.createdCount() != 1 {
		t.Errorf("HAL effects created = %d, want 1", env.factory.createdCount())
	}
}

func TestRegistry_LifecycleScenario(t *testing.T) {
	env := newTestEnv(t)

	h := env.create(t, postProcDescriptor(), speaker, client("c1"), nil)
	inst, _ := h.Instance()
	if inst.IsEnabled() {
		t.Fatal("new instance enabled")
	}

	env.registry.OnPatchCreated(1, speakerPatch(1))
	if got := inst.Patches(); !slices.Equal(got, []PatchID{1}) {
		t.Fatalf("Patches() = %v, want [1]", got)
	}

	enabled, err := h.SetEnabled(true)
	if err != nil {
		t.Fatalf("SetEnabled() error = %v", err)
	}
	if !enabled {
		t.Error("SetEnabled() instance enabled = false")
	}

	if !h.Disconnect(true) {
		t.Fatal("Disconnect() = false")
	}
	if env.registry.Len() != 0 {
		t.Fatalf("Len() = %d after unpinIfLast disconnect, want 0", env.registry.Len())
	}
	if !inst.IsRetired() {
		t.Error("evicted instance not retired")
	}
	if env.factory.effect(0).closeCount() != 1 {
		t.Error("evicted HAL effect not closed")
	}

	calls := env.suspender.snapshot()
	if len(calls) != 2 || !calls[0].enabled || calls[1].enabled || calls[1].threadLocked {
		t.Errorf("suspend calls = %+v, want enable then restore", calls)
	}

	h2 := env.create(t, postProcDescriptor(), speaker, client("c1"), nil)
	inst2, _ := h2.Instance()
	if inst2 == inst {
		t.Error("instance reused after eviction")
	}
	if inst2.ID() == inst.ID() {
		t.Error("new instance has the old ID")
	}
	if env.factory.createdCount() != 2 {
		t.Errorf("HAL effects created = %d, want 2", env.factory.createdCount())
	}
}

func TestRegistry_ConcurrentCreate(t *testing.T) {
	env := newTestEnv(t)

	const clients = 16
	handles := make([]*Handle, clients)
	var wg sync.WaitGroup
	for n := range clients {
		wg.Add(1)
		go func() {
			defer wg.Done()
			h, _, err := env.registry.CreateEffect(CreateRequest{
				Descriptor: postProcDescriptor(),
				Device:     speaker,
				Client:     client("c" + string(rune('a'+n))),
			})
			if err != nil {
				t.Errorf("CreateEffect() error = %v", err)
				return
			}
			handles[n] = h
		}()
	}
	wg.Wait()

	if env.registry.Len() != 1 {
		t.Fatalf("Len() = %d, want 1", env.registry.Len())
	}
	if env.factory.createdCount() != 1 {
		t.Errorf("HAL effects created = %d, want 1", env.factory.createdCount())
	}
	inst, ok := env.registry.Find(speaker, eqUUID)
	if !ok {
		t.Fatal("Find() did not return the instance")
	}
	if inst.HandleCount() != clients {
		t.Errorf("HandleCount() = %d, want %d", inst.HandleCount(), clients)
	}
}

func TestRegistry_ReferenceCounting(t *testing.T) {
	env := newTestEnv(t)

	const n = 5
	handles := make([]*Handle, 0, n)
	for i := range n {
		handles = append(handles, env.create(t, postProcDescriptor(), speaker, client("c"+string(rune('0'+i))), nil))
	}

	for i, h := range handles {
		if !h.Disconnect(false) {
			t.Fatalf("Disconnect(%d) = false", i)
		}
		wantLen := 1
		if i == n-1 {
			wantLen = 0
		}
		if env.registry.Len() != wantLen {
			t.Fatalf("after %d disconnects Len() = %d, want %d", i+1, env.registry.Len(), wantLen)
		}
	}

	if got := env.observer.count(EventInstanceEvicted); got != 1 {
		t.Errorf("instance_evicted events = %d, want 1", got)
	}
	if env.factory.effect(0).closeCount() != 1 {
		t.Errorf("HAL Close() calls = %d, want 1", env.factory.effect(0).closeCount())
	}
}

func TestRegistry_Pinning(t *testing.T) {
	t.Run("pinned instance survives last disconnect", func(t *testing.T) {
		env := newTestEnv(t)
		h := env.create(t, postProcDescriptor(), speaker, client("c1"), PatchSnapshot{1: speakerPatch(1)})
		inst, _ := h.Instance()

		if !h.Disconnect(false) {
			t.Fatal("Disconnect() = false")
		}
		if env.registry.Len() != 1 {
			t.Fatalf("Len() = %d, want 1 while pinned", env.registry.Len())
		}
		if inst.HandleCount() != 0 {
			t.Errorf("HandleCount() = %d, want 0", inst.HandleCount())
		}

		env.registry.OnPatchReleased(1)
		if inst.IsPinned() {
			t.Error("instance pinned after patch release")
		}
		if env.registry.Len() != 1 {
			t.Errorf("Len() = %d, patch release must not evict", env.registry.Len())
		}

		h2 := env.create(t, postProcDescriptor(), speaker, client("c2"), nil)
		i2, _ := h2.Instance()
		if i2 != inst {
			t.Fatal("unpinned zero-handle instance was not reused")
		}
		h2.Disconnect(false)
		if env.registry.Len() != 0 {
			t.Errorf("Len() = %d after next count-zero event, want 0", env.registry.Len())
		}
	})

	t.Run("unpinIfLast evicts a pinned instance", func(t *testing.T) {
		env := newTestEnv(t)
		h := env.create(t, postProcDescriptor(), speaker, client("c1"), PatchSnapshot{1: speakerPatch(1)})

		h.Disconnect(true)
		if env.registry.Len() != 0 {
			t.Errorf("Len() = %d, want 0", env.registry.Len())
		}
		if got := env.factory.effect(0).removed; !slices.Equal(got, []PatchID{1}) {
			t.Errorf("RemoveFromDevice calls = %v, want [1]", got)
		}
	})

	t.Run("unpinIfLast with remaining handles keeps instance", func(t *testing.T) {
		env := newTestEnv(t)
		h1 := env.create(t, postProcDescriptor(), speaker, client("c1"), nil)
		env.create(t, postProcDescriptor(), speaker, client("c2"), nil)

		h1.Disconnect(true)
		if env.registry.Len() != 1 {
			t.Errorf("Len() = %d, want 1", env.registry.Len())
		}
	})
}

func TestRegistry_PatchIdempotence(t *testing.T) {
	env := newTestEnv(t)
	h := env.create(t, postProcDescriptor(), speaker, client("c1"), nil)
	inst, _ := h.Instance()

	env.registry.OnPatchCreated(2, speakerPatch(2))
	env.registry.OnPatchCreated(2, speakerPatch(2))

	if got := inst.Patches(); !slices.Equal(got, []PatchID{2}) {
		t.Errorf("Patches() = %v, want [2]", got)
	}
	if got := env.factory.effect(0).addedPatches(); !slices.Equal(got, []PatchID{2}) {
		t.Errorf("AddToDevice calls = %v, want [2]", got)
	}
	if got := env.observer.count(EventPatchBound); got != 1 {
		t.Errorf("patch_bound events = %d, want 1", got)
	}

	env.registry.OnPatchReleased(99)
	if got := inst.Patches(); !slices.Equal(got, []PatchID{2}) {
		t.Errorf("Patches() after unknown release = %v, want [2]", got)
	}
	if got := env.observer.count(EventPatchReleased); got != 0 {
		t.Errorf("patch_released events = %d, want 0", got)
	}
}

func TestRegistry_PatchFanOutIsolatesFailures(t *testing.T) {
	env := newTestEnv(t)

	env.factory.addErr = errMockHAL
	hBad := env.create(t, postProcDescriptor(), speaker, client("c1"), nil)
	env.factory.addErr = nil
	hGood := env.create(t, preProcDescriptor(), speaker, client("c1"), nil)

	env.registry.OnPatchCreated(5, speakerPatch(5))

	bad, _ := hBad.Instance()
	good, _ := hGood.Instance()
	if bad.IsPinned() {
		t.Error("failing instance was bound")
	}
	if got := good.Patches(); !slices.Equal(got, []PatchID{5}) {
		t.Errorf("healthy instance Patches() = %v, want [5]", got)
	}
}

func TestRegistry_InputDevicesBindSources(t *testing.T) {
	env := newTestEnv(t)
	h := env.create(t, preProcDescriptor(), builtInMic, client("c1"), nil)
	inst, _ := h.Instance()

	env.registry.OnPatchCreated(8, Patch{ID: 8, Sources: []DeviceKey{builtInMic}, Sinks: []DeviceKey{speaker}})
	if !inst.IsPinned() {
		t.Error("input instance not bound to patch sourcing its device")
	}
}

func TestRegistry_DisconnectEffectHandle(t *testing.T) {
	env := newTestEnv(t)
	h := env.create(t, postProcDescriptor(), speaker, client("c1"), nil)

	if env.registry.DisconnectEffectHandle(foreignHandle{}, false) {
		t.Error("foreign handle reported as handled")
	}

	other := newTestEnv(t)
	if other.registry.DisconnectEffectHandle(h, false) {
		t.Error("handle of another registry reported as handled")
	}

	if !env.registry.DisconnectEffectHandle(h, false) {
		t.Error("DisconnectEffectHandle() = false for own handle")
	}
	if env.registry.DisconnectEffectHandle(h, false) {
		t.Error("second disconnect reported as handled")
	}
}

func TestRegistry_RemoveEffectInstance(t *testing.T) {
	env := newTestEnv(t)
	h := env.create(t, postProcDescriptor(), speaker, client("c1"), nil)
	env.create(t, postProcDescriptor(), headset, client("c1"), nil)
	inst, _ := h.Instance()

	if got := env.registry.RemoveEffectInstance(inst); got != 1 {
		t.Errorf("RemoveEffectInstance() = %d, want 1", got)
	}
	if got := env.registry.RemoveEffectInstance(inst); got != 1 {
		t.Errorf("second RemoveEffectInstance() = %d, want 1", got)
	}

	if _, err := h.SetEnabled(true); !errors.Is(err, ErrStaleHandle) {
		t.Errorf("SetEnabled() on retired instance error = %v, want ErrStaleHandle", err)
	}
	if h.Disconnect(false) {
		t.Error("Disconnect() on retired instance = true, want false")
	}
}

func TestRegistry_StaleRemovalKeepsNewInstance(t *testing.T) {
	env := newTestEnv(t)
	h := env.create(t, postProcDescriptor(), speaker, client("c1"), nil)
	old, _ := h.Instance()
	env.registry.RemoveEffectInstance(old)

	h2 := env.create(t, postProcDescriptor(), speaker, client("c2"), nil)
	env.registry.RemoveEffectInstance(old)

	if env.registry.Len() != 1 {
		t.Fatalf("Len() = %d, removing a retired instance evicted its successor", env.registry.Len())
	}
	if _, ok := h2.Instance(); !ok {
		t.Error("successor instance retired")
	}
}

func TestRegistry_EventsOrder(t *testing.T) {
	env := newTestEnv(t)
	h := env.create(t, postProcDescriptor(), speaker, client("c1"), PatchSnapshot{1: speakerPatch(1)})
	h.SetEnabled(true)
	env.registry.OnPatchReleased(1)
	h.Disconnect(false)

	want := []EventKind{
		EventInstanceCreated,
		EventPatchBound,
		EventHandleAttached,
		EventEnabledChanged,
		EventPatchReleased,
		EventHandleDetached,
		EventInstanceEvicted,
	}
	if got := env.observer.kinds(); !slices.Equal(got, want) {
		t.Errorf("events = %v, want %v", got, want)
	}
}

// gatedObserver records events and blocks on the first handle_detached
// until release is closed.
type gatedObserver struct {
	recordingObserver
	once    sync.Once
	blocked chan struct{}
	release chan struct{}
}

func (o *gatedObserver) OnEffectEvent(ev Event) {
	o.recordingObserver.OnEffectEvent(ev)
	if ev.Kind == EventHandleDetached {
		o.once.Do(func() {
			close(o.blocked)
			<-o.release
		})
	}
}

func TestRegistry_EventsFollowMutationOrder(t *testing.T) {
	env := newTestEnv(t)
	obs := &gatedObserver{blocked: make(chan struct{}), release: make(chan struct{})}
	env.registry.SetObserver(obs)

	first := env.create(t, postProcDescriptor(), speaker, client("c1"), nil)
	firstInst, _ := first.Instance()

	done := make(chan struct{})
	go func() {
		defer close(done)
		first.Disconnect(false)
	}()
	<-obs.blocked

	// The eviction is complete but its events are still being delivered.
	second := env.create(t, postProcDescriptor(), speaker, client("c2"), nil)
	secondInst, _ := second.Instance()
	if secondInst == firstInst {
		t.Fatal("evicted instance was reused")
	}

	close(obs.release)
	<-done

	obs.mu.Lock()
	defer obs.mu.Unlock()
	type step struct {
		kind EventKind
		id   int32
	}
	got := make([]step, 0, len(obs.events))
	for _, ev := range obs.events {
		got = append(got, step{ev.Kind, ev.InstanceID})
	}
	want := []step{
		{EventInstanceCreated, firstInst.ID()},
		{EventHandleAttached, firstInst.ID()},
		{EventHandleDetached, firstInst.ID()},
		{EventInstanceEvicted, firstInst.ID()},
		{EventInstanceCreated, secondInst.ID()},
		{EventHandleAttached, secondInst.ID()},
	}
	if !slices.Equal(got, want) {
		t.Errorf("events = %v, want %v", got, want)
	}
}

func TestRegistry_ObserverPanicDoesNotStopDelivery(t *testing.T) {
	env := newTestEnv(t)
	calls := 0
	env.registry.SetObserver(ObserverFunc(func(ev Event) {
		calls++
		if ev.Kind == EventInstanceCreated {
			panic("observer failure")
		}
	}))

	h := env.create(t, postProcDescriptor(), speaker, client("c1"), nil)
	h.Disconnect(false)

	// created (panics), attached, detached, evicted
	if calls != 4 {
		t.Errorf("observer calls = %d, want 4", calls)
	}
}

func TestRegistry_Instances(t *testing.T) {
	env := newTestEnv(t)
	env.create(t, postProcDescriptor(), usbOut, client("c1"), nil)
	env.create(t, postProcDescriptor(), speaker, client("c2"), nil)

	infos := env.registry.Instances()
	if len(infos) != 2 {
		t.Fatalf("Instances() len = %d, want 2", len(infos))
	}
	if infos[0].Device != speaker || infos[1].Device != usbOut {
		t.Errorf("Instances() not ordered by device: %v, %v", infos[0].Device, infos[1].Device)
	}
	if len(infos[0].Handles) != 1 || infos[0].Handles[0].Client.ID != "c2" {
		t.Errorf("Handles = %+v, want one for c2", infos[0].Handles)
	}
}
