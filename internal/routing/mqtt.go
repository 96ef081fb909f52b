package routing

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/nerrad567/gray-logic-fx/internal/effect"
	"github.com/nerrad567/gray-logic-fx/internal/infrastructure/mqtt"
)

// Subscriber is the subset of the MQTT client the panel needs.
type Subscriber interface {
	Subscribe(topic string, qos byte, handler mqtt.MessageHandler) error
}

// releasedPayload is the body of a patch/released message.
type releasedPayload struct {
	ID effect.PatchID `json:"id"`
}

// SubscribeMQTT subscribes to the routing service's patch topics.
func (p *PatchPanel) SubscribeMQTT(sub Subscriber, qos byte) error {
	if err := sub.Subscribe(mqtt.Topics{}.AllPatchEvents(), qos, p.HandleMessage); err != nil {
		return fmt.Errorf("subscribing to patch events: %w", err)
	}
	return nil
}

// HandleMessage applies one patch event. Malformed payloads and unknown
// topics return an ErrInvalidPatch error and change nothing. Creating or
// releasing a patch under the ID of a locally created one returns
// ErrPatchConflict. Releasing an unknown patch is logged and ignored, since
// routing may replay releases after a reconnect.
func (p *PatchPanel) HandleMessage(topic string, payload []byte) error {
	topics := mqtt.Topics{}

	switch topic {
	case topics.PatchCreated():
		var patch effect.Patch
		if err := json.Unmarshal(payload, &patch); err != nil {
			return fmt.Errorf("%w: decoding %s: %w", ErrInvalidPatch, topic, err)
		}
		return p.AddPatch(patch)

	case topics.PatchReleased():
		var msg releasedPayload
		if err := json.Unmarshal(payload, &msg); err != nil {
			return fmt.Errorf("%w: decoding %s: %w", ErrInvalidPatch, topic, err)
		}
		if msg.ID <= effect.PatchNone {
			return fmt.Errorf("%w: id %d must be positive", ErrInvalidPatch, msg.ID)
		}
		err := p.release(msg.ID, false)
		switch {
		case errors.Is(err, ErrPatchConflict):
			return err
		case err != nil:
			p.logger.Debug("ignoring release of unknown patch", "patch_id", msg.ID)
		}
		return nil

	default:
		return fmt.Errorf("%w: unexpected topic %s", ErrInvalidPatch, topic)
	}
}
