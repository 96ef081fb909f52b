// Package mqtt provides the MQTT client used by the device effect service.
//
// This package manages:
//   - Connection to the broker with auto-reconnect
//   - Publishing with QoS and retained state
//   - Topic subscriptions, restored after every reconnect
//   - Last Will and Testament (LWT) for offline detection
//
// # Architecture
//
// The routing subsystem announces patch changes on the bus and the effect
// service publishes per-instance state and suspend notices back:
//
//	Routing ──patch/created, patch/released──▶ Broker ──▶ graylogic-fx
//	graylogic-fx ──effect/+/+/state, suspend/restore──▶ Broker ──▶ UI, mixers
//
// # Security Considerations
//
//   - TLS is required for production deployments (cfg.Broker.TLS=true)
//   - Anonymous access is only for local development
//
// # Usage
//
//	client, err := mqtt.Connect(cfg.MQTT)
//	if err != nil {
//	    return err
//	}
//	defer client.Close()
//
//	err = client.Subscribe(mqtt.Topics{}.AllPatchEvents(), 1,
//	    func(topic string, payload []byte) error {
//	        return panel.HandleMessage(topic, payload)
//	    })
package mqtt
