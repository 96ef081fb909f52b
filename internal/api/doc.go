// Package api implements the HTTP REST API and WebSocket server for the
// device effect service.
//
// This package provides:
//   - REST endpoints to create, enable and disconnect device effect handles
//   - Read endpoints for instance snapshots, the routing table and the
//     lifecycle journal
//   - The text diagnostic dump and Prometheus metrics
//   - A WebSocket hub that streams lifecycle events
//   - JWT authentication and per-role permissions
//
// # Handle ownership
//
// The server is the client-facing control layer: every handle created over
// the API is owned by the server on behalf of the client named in the JWT
// subject. A client may only act on its own handles unless its role grants
// effect:any. Close disconnects every handle the server still owns, which
// evicts instances nobody else references.
//
// # Graceful Degradation
//
// The journal and MQTT are optional. Without them the corresponding
// endpoints report 503 and the health check reports the broker as absent.
package api
