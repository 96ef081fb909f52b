// Gray Logic FX - device effect service
//
// graylogic-fx keeps one audio effect instance per (device, effect) pair,
// shared by every client handle that asks for it, and binds each instance to
// the audio patches that route its device. Patches arrive over MQTT or the
// REST API; lifecycle events go to the SQLite journal, MQTT, InfluxDB,
// Prometheus and WebSocket subscribers.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
)

// Version information - set at build time via ldflags
// Example: go build -ldflags "-X main.version=1.0.0 -X main.commit=abc123"
var (
	version = "dev"     // Semantic version (e.g., "1.0.0")
	commit  = "unknown" // Git commit hash
	date    = "unknown" // Build date
)

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := newRootCommand().ExecuteContext(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
