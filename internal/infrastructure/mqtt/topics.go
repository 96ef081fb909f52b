package mqtt

import (
	"fmt"
	"strings"
)

// Topic prefixes for the device effect service.
const (
	// TopicPrefix is the base of every topic this service uses.
	TopicPrefix = "graylogic/fx"

	// TopicPrefixRouting carries patch lifecycle events from routing.
	TopicPrefixRouting = TopicPrefix + "/routing"

	// TopicPrefixEffect carries per-instance effect state.
	TopicPrefixEffect = TopicPrefix + "/effect"
)

// Topics provides builders for the service's MQTT topics.
//
//	topics := mqtt.Topics{}
//	topics.EffectState("AUDIO_DEVICE_OUT_SPEAKER", "", "c8e70ecd-...")
//	// Returns: "graylogic/fx/effect/AUDIO_DEVICE_OUT_SPEAKER/c8e70ecd-.../state"
type Topics struct{}

// PatchCreated is where routing announces a new patch.
//
// Example: graylogic/fx/routing/patch/created
func (Topics) PatchCreated() string {
	return TopicPrefixRouting + "/patch/created"
}

// PatchReleased is where routing announces a released patch.
//
// Example: graylogic/fx/routing/patch/released
func (Topics) PatchReleased() string {
	return TopicPrefixRouting + "/patch/released"
}

// AllPatchEvents matches both patch topics.
//
// Pattern: graylogic/fx/routing/patch/+
func (Topics) AllPatchEvents() string {
	return TopicPrefixRouting + "/patch/+"
}

// EffectState returns the retained state topic of one device effect.
// The device segment is built by DeviceSegment.
//
// Example: graylogic/fx/effect/AUDIO_DEVICE_OUT_USB_DEVICE@card=1;device=0/<uuid>/state
func (Topics) EffectState(deviceType, address, effectUUID string) string {
	return fmt.Sprintf("%s/%s/%s/state", TopicPrefixEffect, DeviceSegment(deviceType, address), effectUUID)
}

// AllEffectStates matches every effect state topic.
//
// Pattern: graylogic/fx/effect/+/+/state
func (Topics) AllEffectStates() string {
	return TopicPrefixEffect + "/+/+/state"
}

// SuspendRestore carries notices that suspended effects may resume.
//
// Example: graylogic/fx/suspend/restore
func (Topics) SuspendRestore() string {
	return TopicPrefix + "/suspend/restore"
}

// SystemStatus is the retained online/offline status topic (and the LWT).
//
// Example: graylogic/fx/system/status
func (Topics) SystemStatus() string {
	return TopicPrefix + "/system/status"
}

// topicUnsafe replaces characters that are not allowed, or have meaning, in
// a single topic level.
var topicUnsafe = strings.NewReplacer("/", "_", "+", "_", "#", "_", " ", "_")

// DeviceSegment renders a device as one topic level: the type name, plus
// "@address" when the address is not empty.
func DeviceSegment(deviceType, address string) string {
	if address == "" {
		return topicUnsafe.Replace(deviceType)
	}
	return topicUnsafe.Replace(deviceType + "@" + address)
}
