package events

import (
	"encoding/json"
	"sync"
	"time"

	"github.com/nerrad567/gray-logic-fx/internal/effect"
	"github.com/nerrad567/gray-logic-fx/internal/infrastructure/mqtt"
)

// Publisher is the subset of the MQTT client used here.
type Publisher interface {
	Publish(topic string, payload []byte, qos byte, retained bool) error
}

// EffectState is the retained payload on an effect's state topic.
type EffectState struct {
	InstanceID int32            `json:"instance_id"`
	Device     effect.DeviceKey `json:"device"`
	EffectUUID string           `json:"effect_uuid"`
	EffectName string           `json:"effect_name"`
	Handles    int              `json:"handles"`
	Enabled    bool             `json:"enabled"`
	Pinned     bool             `json:"pinned"`
	LastEvent  effect.EventKind `json:"last_event"`
	Timestamp  time.Time        `json:"timestamp"`
}

// RestoreNotice is published when an effect's enabled state changes so
// that effects suspended in its favour can be resumed.
type RestoreNotice struct {
	InstanceID   int32            `json:"instance_id"`
	Device       effect.DeviceKey `json:"device"`
	EffectUUID   string           `json:"effect_uuid"`
	EffectName   string           `json:"effect_name"`
	Enabled      bool             `json:"enabled"`
	ThreadLocked bool             `json:"thread_locked"`
	Timestamp    time.Time        `json:"timestamp"`
}

// MQTTPublisher mirrors effect state onto MQTT. It is both an
// effect.Observer and the registry's effect.SuspendCoordinator.
type MQTTPublisher struct {
	pub    Publisher
	qos    byte
	logger Logger

	// owners maps a state topic to the instance that last published on it.
	mu     sync.Mutex
	owners map[string]int32
}

// NewMQTTPublisher creates a publisher using qos for every message.
func NewMQTTPublisher(pub Publisher, qos byte) *MQTTPublisher {
	return &MQTTPublisher{pub: pub, qos: qos, logger: noopLogger{}, owners: make(map[string]int32)}
}

// SetLogger sets the logger for publish failures.
func (p *MQTTPublisher) SetLogger(logger Logger) {
	p.logger = logger
}

// OnEffectEvent publishes the instance state retained. Eviction clears the
// retained message with an empty payload, unless a newer instance for the
// same device and effect has published since.
func (p *MQTTPublisher) OnEffectEvent(ev effect.Event) {
	topic := mqtt.Topics{}.EffectState(ev.Device.Type.String(), ev.Device.Address, ev.EffectUUID.String())
	if !p.claim(topic, ev) {
		return
	}

	var payload []byte
	if ev.Kind != effect.EventInstanceEvicted {
		var err error
		payload, err = json.Marshal(EffectState{
			InstanceID: ev.InstanceID,
			Device:     ev.Device,
			EffectUUID: ev.EffectUUID.String(),
			EffectName: ev.EffectName,
			Handles:    ev.Handles,
			Enabled:    ev.Enabled,
			Pinned:     ev.Pinned,
			LastEvent:  ev.Kind,
			Timestamp:  ev.Time,
		})
		if err != nil {
			p.logger.Error("encoding effect state", "instance_id", ev.InstanceID, "error", err)
			return
		}
	}

	if err := p.pub.Publish(topic, payload, p.qos, true); err != nil {
		p.logger.Warn("publishing effect state failed", "topic", topic, "error", err)
	}
}

// claim records ev's instance as the owner of topic and reports whether the
// event may be published.
func (p *MQTTPublisher) claim(topic string, ev effect.Event) bool {
	p.mu.Lock()
	defer p.mu.Unlock()

	owner, ok := p.owners[topic]
	if ev.Kind != effect.EventInstanceEvicted {
		p.owners[topic] = ev.InstanceID
		return true
	}
	if ok && owner != ev.InstanceID {
		return false
	}
	delete(p.owners, topic)
	return true
}

// CheckSuspendOnEffectEnabled implements effect.SuspendCoordinator.
func (p *MQTTPublisher) CheckSuspendOnEffectEnabled(info effect.InstanceInfo, enabled bool, threadLocked bool) {
	payload, err := json.Marshal(RestoreNotice{
		InstanceID:   info.ID,
		Device:       info.Device,
		EffectUUID:   info.Descriptor.UUID.String(),
		EffectName:   info.Descriptor.Name,
		Enabled:      enabled,
		ThreadLocked: threadLocked,
		Timestamp:    time.Now().UTC(),
	})
	if err != nil {
		p.logger.Error("encoding restore notice", "instance_id", info.ID, "error", err)
		return
	}

	topic := mqtt.Topics{}.SuspendRestore()
	if err := p.pub.Publish(topic, payload, p.qos, false); err != nil {
		p.logger.Warn("publishing restore notice failed", "topic", topic, "error", err)
	}
}
