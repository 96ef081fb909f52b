package effect

import (
	"errors"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/google/uuid"
)

// MockEffect is a test implementation of HALEffect that records calls.
type MockEffect struct {
	mu       sync.Mutex
	added    []PatchID
	removed  []PatchID
	enables  []bool
	closed   int
	addErr   error
	closeErr error
}

func (m *MockEffect) AddToDevice(_ DeviceKey, patch PatchID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.addErr != nil {
		return m.addErr
	}
	m.added = append(m.added, patch)
	return nil
}

func (m *MockEffect) RemoveFromDevice(_ DeviceKey, patch PatchID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.removed = append(m.removed, patch)
	return nil
}

func (m *MockEffect) SetEnabled(enabled bool) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.enables = append(m.enables, enabled)
	return nil
}

func (m *MockEffect) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed++
	return m.closeErr
}

func (m *MockEffect) closeCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.closed
}

func (m *MockEffect) addedPatches() []PatchID {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]PatchID(nil), m.added...)
}

// MockFactory is a test implementation of EffectFactory.
type MockFactory struct {
	mu        sync.Mutex
	version   HalVersion
	createErr error
	addErr    error
	created   []*MockEffect
	sessions  []int32
}

func NewMockFactory() *MockFactory {
	return &MockFactory{version: HalVersion{Type: HalTypeAIDL, Major: 1, Minor: 0}}
}

func (f *MockFactory) CreateEffect(_ uuid.UUID, sessionID, _ int32) (HALEffect, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.createErr != nil {
		return nil, f.createErr
	}
	e := &MockEffect{addErr: f.addErr}
	f.created = append(f.created, e)
	f.sessions = append(f.sessions, sessionID)
	return e, nil
}

func (f *MockFactory) VersionInfo() HalVersion {
	return f.version
}

func (f *MockFactory) createdCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.created)
}

func (f *MockFactory) effect(i int) *MockEffect {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.created[i]
}

// counterIDs is a trivial IDAllocator.
type counterIDs struct {
	next atomic.Int32
}

func (c *counterIDs) NewEffectID() int32 {
	return c.next.Add(1)
}

// recordingObserver collects events.
type recordingObserver struct {
	mu     sync.Mutex
	events []Event
}

func (o *recordingObserver) OnEffectEvent(ev Event) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.events = append(o.events, ev)
}

func (o *recordingObserver) kinds() []EventKind {
	o.mu.Lock()
	defer o.mu.Unlock()
	kinds := make([]EventKind, 0, len(o.events))
	for _, ev := range o.events {
		kinds = append(kinds, ev.Kind)
	}
	return kinds
}

func (o *recordingObserver) count(kind EventKind) int {
	n := 0
	for _, k := range o.kinds() {
		if k == kind {
			n++
		}
	}
	return n
}

// suspendCall records one CheckSuspendOnEffectEnabled call.
type suspendCall struct {
	instanceID   int32
	enabled      bool
	threadLocked bool
}

type recordingSuspender struct {
	mu    sync.Mutex
	calls []suspendCall
}

func (s *recordingSuspender) CheckSuspendOnEffectEnabled(info InstanceInfo, enabled, threadLocked bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls = append(s.calls, suspendCall{instanceID: info.ID, enabled: enabled, threadLocked: threadLocked})
}

func (s *recordingSuspender) snapshot() []suspendCall {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]suspendCall(nil), s.calls...)
}

// foreignHandle is a ClientHandle that is not a device effect handle.
type foreignHandle struct{}

func (foreignHandle) ID() uuid.UUID { return uuid.Nil }
func (foreignHandle) Enabled() bool { return false }

var errMockHAL = errors.New("mock HAL failure")

var (
	speaker    = DeviceKey{Type: DeviceOutSpeaker, Address: ""}
	headset    = DeviceKey{Type: DeviceOutWiredHeadset, Address: ""}
	usbOut     = DeviceKey{Type: DeviceOutUSBDevice, Address: "card=1;device=0"}
	builtInMic = DeviceKey{Type: DeviceInBuiltinMic, Address: "bottom"}

	eqUUID  = uuid.MustParse("ce772f20-847d-11df-bb17-0002a5d5c51b")
	aecUUID = uuid.MustParse("bb392ec0-8d4d-11e0-a896-0002a5d5c51b")
)

func postProcDescriptor() Descriptor {
	return Descriptor{
		Type:  uuid.MustParse("0bed4300-ddd6-11db-8f34-0002a5d5c51b"),
		UUID:  eqUUID,
		Name:  "Equalizer",
		Flags: FlagTypePostProc,
	}
}

func preProcDescriptor() Descriptor {
	return Descriptor{
		Type:  uuid.MustParse("7b491460-8d4d-11e0-bd61-0002a5d5c51b"),
		UUID:  aecUUID,
		Name:  "Acoustic Echo Canceler",
		Flags: FlagTypePreProc,
	}
}

func client(id string) ClientIdentity {
	return ClientIdentity{ID: id, PID: 1000, UID: 10001}
}

type testEnv struct {
	registry  *Registry
	factory   *MockFactory
	observer  *recordingObserver
	suspender *recordingSuspender
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	env := &testEnv{
		factory:   NewMockFactory(),
		observer:  &recordingObserver{},
		suspender: &recordingSuspender{},
	}
	env.registry = NewRegistry(env.factory, &counterIDs{})
	env.registry.SetObserver(env.observer)
	env.registry.SetSuspendCoordinator(env.suspender)
	return env
}

func (env *testEnv) create(t *testing.T, desc Descriptor, device DeviceKey, c ClientIdentity, patches PatchSnapshot) *Handle {
	t.Helper()
	h, _, err := env.registry.CreateEffect(CreateRequest{
		Descriptor: desc,
		Device:     device,
		Client:     c,
		Patches:    patches,
	})
	if err != nil {
		t.Fatalf("CreateEffect() error = %v", err)
	}
	if h == nil {
		t.Fatal("CreateEffect() returned nil handle")
	}
	return h
}
