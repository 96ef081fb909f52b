package effect

import (
	"cmp"
	"fmt"
	"slices"
	"strconv"
	"strings"

	"github.com/google/uuid"
)

// DeviceType identifies the kind of physical audio device.
// Input devices carry the deviceBitIn flag.
type DeviceType uint32

// deviceBitIn marks capture devices.
const deviceBitIn DeviceType = 0x80000000

// Known device types.
const (
	DeviceNone              DeviceType = 0x0
	DeviceOutEarpiece       DeviceType = 0x1
	DeviceOutSpeaker        DeviceType = 0x2
	DeviceOutWiredHeadset   DeviceType = 0x4
	DeviceOutWiredHeadphone DeviceType = 0x8
	DeviceOutBluetoothA2DP  DeviceType = 0x80
	DeviceOutHDMI           DeviceType = 0x400
	DeviceOutUSBDevice      DeviceType = 0x4000
	DeviceOutBus            DeviceType = 0x1000000

	DeviceInBuiltinMic   DeviceType = deviceBitIn | 0x4
	DeviceInWiredHeadset DeviceType = deviceBitIn | 0x10
	DeviceInUSBDevice    DeviceType = deviceBitIn | 0x1000
	DeviceInBus          DeviceType = deviceBitIn | 0x100000
)

var deviceTypeNames = map[DeviceType]string{
	DeviceNone:              "AUDIO_DEVICE_NONE",
	DeviceOutEarpiece:       "AUDIO_DEVICE_OUT_EARPIECE",
	DeviceOutSpeaker:        "AUDIO_DEVICE_OUT_SPEAKER",
	DeviceOutWiredHeadset:   "AUDIO_DEVICE_OUT_WIRED_HEADSET",
	DeviceOutWiredHeadphone: "AUDIO_DEVICE_OUT_WIRED_HEADPHONE",
	DeviceOutBluetoothA2DP:  "AUDIO_DEVICE_OUT_BLUETOOTH_A2DP",
	DeviceOutHDMI:           "AUDIO_DEVICE_OUT_HDMI",
	DeviceOutUSBDevice:      "AUDIO_DEVICE_OUT_USB_DEVICE",
	DeviceOutBus:            "AUDIO_DEVICE_OUT_BUS",
	DeviceInBuiltinMic:      "AUDIO_DEVICE_IN_BUILTIN_MIC",
	DeviceInWiredHeadset:    "AUDIO_DEVICE_IN_WIRED_HEADSET",
	DeviceInUSBDevice:       "AUDIO_DEVICE_IN_USB_DEVICE",
	DeviceInBus:             "AUDIO_DEVICE_IN_BUS",
}

// IsInput reports whether t is a capture device.
func (t DeviceType) IsInput() bool {
	return t&deviceBitIn != 0
}

// String returns the canonical device name, or a hex value for unknown types.
func (t DeviceType) String() string {
	if name, ok := deviceTypeNames[t]; ok {
		return name
	}
	return fmt.Sprintf("0x%08x", uint32(t))
}

// MarshalText encodes the device type by name.
func (t DeviceType) MarshalText() ([]byte, error) {
	return []byte(t.String()), nil
}

// UnmarshalText decodes a device type name.
func (t *DeviceType) UnmarshalText(text []byte) error {
	parsed, err := ParseDeviceType(string(text))
	if err != nil {
		return err
	}
	*t = parsed
	return nil
}

// ParseDeviceType parses a canonical device name. The AUDIO_DEVICE_ prefix
// is optional and matching is case-insensitive. Hex values as printed by
// String for unknown types are accepted too.
func ParseDeviceType(name string) (DeviceType, error) {
	want := strings.ToUpper(strings.TrimSpace(name))
	if hex, ok := strings.CutPrefix(want, "0X"); ok {
		v, err := strconv.ParseUint(hex, 16, 32)
		if err != nil {
			return DeviceNone, fmt.Errorf("%w: %q", ErrUnknownDeviceType, name)
		}
		return DeviceType(v), nil
	}
	if !strings.HasPrefix(want, "AUDIO_DEVICE_") {
		want = "AUDIO_DEVICE_" + want
	}
	for t, n := range deviceTypeNames {
		if n == want {
			return t, nil
		}
	}
	return DeviceNone, fmt.Errorf("%w: %q", ErrUnknownDeviceType, name)
}

// DeviceKey identifies one physical device. Two keys are equal iff both the
// type and the address match exactly.
type DeviceKey struct {
	Type    DeviceType `json:"type" yaml:"type"`
	Address string     `json:"address" yaml:"address"`
}

// String formats the key for logs and dumps.
func (k DeviceKey) String() string {
	return fmt.Sprintf("%s address %q", k.Type, k.Address)
}

// compareDeviceKeys orders keys by type then address.
func compareDeviceKeys(a, b DeviceKey) int {
	if c := cmp.Compare(a.Type, b.Type); c != 0 {
		return c
	}
	return cmp.Compare(a.Address, b.Address)
}

// Effect classification values, stored in the low bits of Descriptor.Flags.
const (
	FlagTypeMask      uint32 = 0x7
	FlagTypeInsert    uint32 = 0x0
	FlagTypeAuxiliary uint32 = 0x1
	FlagTypeReplace   uint32 = 0x2
	FlagTypePreProc   uint32 = 0x3
	FlagTypePostProc  uint32 = 0x4
)

var classificationNames = map[uint32]string{
	FlagTypeInsert:    "insert",
	FlagTypeAuxiliary: "auxiliary",
	FlagTypeReplace:   "replace",
	FlagTypePreProc:   "pre_proc",
	FlagTypePostProc:  "post_proc",
}

// ClassificationName returns the name of a classification value.
func ClassificationName(c uint32) string {
	if name, ok := classificationNames[c&FlagTypeMask]; ok {
		return name
	}
	return fmt.Sprintf("type_%d", c&FlagTypeMask)
}

// ParseClassification parses a classification name such as "post_proc".
func ParseClassification(name string) (uint32, error) {
	want := strings.ToLower(strings.TrimSpace(name))
	for c, n := range classificationNames {
		if n == want {
			return c, nil
		}
	}
	return 0, fmt.Errorf("%w: %q", ErrUnknownClassification, name)
}

// Descriptor describes an effect implementation. It is immutable once an
// instance has been created from it.
type Descriptor struct {
	Type        uuid.UUID `json:"type"`
	UUID        uuid.UUID `json:"uuid"`
	Name        string    `json:"name"`
	Implementor string    `json:"implementor,omitempty"`
	Flags       uint32    `json:"flags"`
}

// Classification returns the effect type bits of the descriptor flags.
func (d Descriptor) Classification() uint32 {
	return d.Flags & FlagTypeMask
}

// HalType is the interface family of the effect HAL.
// HIDL orders before AIDL.
type HalType int

// Known HAL types.
const (
	HalTypeHIDL HalType = iota
	HalTypeAIDL
)

// String returns the HAL type name.
func (t HalType) String() string {
	switch t {
	case HalTypeHIDL:
		return "HIDL"
	case HalTypeAIDL:
		return "AIDL"
	default:
		return fmt.Sprintf("HalType(%d)", int(t))
	}
}

// ParseHalType parses "hidl" or "aidl" (case-insensitive).
func ParseHalType(s string) (HalType, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "hidl":
		return HalTypeHIDL, nil
	case "aidl":
		return HalTypeAIDL, nil
	default:
		return 0, fmt.Errorf("%w: %q", ErrUnknownHalType, s)
	}
}

// HalVersion is the version of the underlying effect HAL.
// Versions are totally ordered by type, then major, then minor.
type HalVersion struct {
	Type  HalType
	Major int
	Minor int
}

// Compare returns -1, 0 or +1 depending on whether v sorts before, equal to,
// or after o.
func (v HalVersion) Compare(o HalVersion) int {
	if c := cmp.Compare(v.Type, o.Type); c != 0 {
		return c
	}
	if c := cmp.Compare(v.Major, o.Major); c != 0 {
		return c
	}
	return cmp.Compare(v.Minor, o.Minor)
}

// Less reports whether v sorts before o.
func (v HalVersion) Less(o HalVersion) bool {
	return v.Compare(o) < 0
}

// String formats the version as "HIDL 6.0".
func (v HalVersion) String() string {
	return fmt.Sprintf("%s %d.%d", v.Type, v.Major, v.Minor)
}

// MinDeviceEffectHalVersion is the oldest HAL able to host device effects.
var MinDeviceEffectHalVersion = HalVersion{Type: HalTypeHIDL, Major: 6, Minor: 0}

// PatchID identifies an audio patch created by the routing subsystem.
type PatchID int32

// PatchNone is the zero, invalid patch ID.
const PatchNone PatchID = 0

// Patch is a route between source and sink devices.
type Patch struct {
	ID      PatchID     `json:"id"`
	Sources []DeviceKey `json:"sources,omitempty"`
	Sinks   []DeviceKey `json:"sinks"`
}

// Touches reports whether the patch routes the given device. Output devices
// match a sink; input devices match a source.
func (p Patch) Touches(key DeviceKey) bool {
	devices := p.Sinks
	if key.Type.IsInput() {
		devices = p.Sources
	}
	return slices.Contains(devices, key)
}

// PatchSnapshot is a point-in-time copy of the routing subsystem's patches.
type PatchSnapshot map[PatchID]Patch

// IDs returns the snapshot's patch IDs in ascending order.
func (s PatchSnapshot) IDs() []PatchID {
	ids := make([]PatchID, 0, len(s))
	for id := range s {
		ids = append(ids, id)
	}
	slices.Sort(ids)
	return ids
}

// ClientIdentity identifies the client behind a handle.
type ClientIdentity struct {
	ID  string `json:"id"`
	PID int    `json:"pid,omitempty"`
	UID int    `json:"uid,omitempty"`
}

// SessionDevice is the session ID used for effects attached to a device.
const SessionDevice int32 = -2
