// Package events fans device effect lifecycle events out to the service's
// outputs.
//
// The registry delivers each event once, synchronously, to its Observer.
// That observer is a Bus, which queues the event and returns immediately;
// a single goroutine then hands events in order to every subscriber:
//
//	effect.Registry ──▶ Bus ──▶ journal.Recorder   (SQLite)
//	                        ├─▶ MQTTPublisher      (retained state)
//	                        ├─▶ InfluxRecorder     (telemetry points)
//	                        ├─▶ PromCollector      (counters)
//	                        └─▶ api.Hub            (WebSocket clients)
//
// When the queue is full the event is dropped and counted rather than
// blocking a client request.
package events
