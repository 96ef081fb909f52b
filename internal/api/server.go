package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/nerrad567/gray-logic-fx/internal/effect"
	"github.com/nerrad567/gray-logic-fx/internal/hal"
	"github.com/nerrad567/gray-logic-fx/internal/infrastructure/config"
	"github.com/nerrad567/gray-logic-fx/internal/infrastructure/logging"
	"github.com/nerrad567/gray-logic-fx/internal/journal"
	"github.com/nerrad567/gray-logic-fx/internal/routing"
)

// gracefulShutdownTimeout is the maximum time to wait for in-flight requests
// to complete during shutdown.
const gracefulShutdownTimeout = 10 * time.Second

// HealthChecker is satisfied by infrastructure clients (MQTT, InfluxDB).
type HealthChecker interface {
	HealthCheck(ctx context.Context) error
	IsConnected() bool
}

// Deps holds the dependencies required by the API server.
type Deps struct {
	Config   config.APIConfig
	WS       config.WebSocketConfig
	Security config.SecurityConfig
	Logger   *logging.Logger
	Registry *effect.Registry
	Catalog  *hal.Catalog
	Panel    *routing.PatchPanel
	Journal  journal.Repository  // optional
	MQTT     HealthChecker       // optional
	Gatherer prometheus.Gatherer // defaults to prometheus.DefaultGatherer
	Hub      *Hub                // if set, used instead of a hub owned by the server
	Version  string
}

// Server is the HTTP API server.
//
// It owns the device effect handles created through it, keyed by handle ID.
type Server struct {
	cfg         config.APIConfig
	wsCfg       config.WebSocketConfig
	secCfg      config.SecurityConfig
	logger      *logging.Logger
	registry    *effect.Registry
	catalog     *hal.Catalog
	panel       *routing.PatchPanel
	journal     journal.Repository
	mqtt        HealthChecker
	gatherer    prometheus.Gatherer
	version     string
	startTime   time.Time
	server      *http.Server
	hub         *Hub
	externalHub bool
	cancel      context.CancelFunc

	handlesMu sync.Mutex
	handles   map[uuid.UUID]*effect.Handle
}

// New creates a new API server with the given dependencies.
// The server is not started until Start() is called.
func New(deps Deps) (*Server, error) {
	if deps.Logger == nil {
		return nil, fmt.Errorf("logger is required")
	}
	if deps.Registry == nil {
		return nil, fmt.Errorf("effect registry is required")
	}
	if deps.Catalog == nil {
		return nil, fmt.Errorf("effect catalog is required")
	}
	if deps.Panel == nil {
		return nil, fmt.Errorf("patch panel is required")
	}

	s := &Server{
		cfg:       deps.Config,
		wsCfg:     deps.WS,
		secCfg:    deps.Security,
		logger:    deps.Logger.Component("api"),
		registry:  deps.Registry,
		catalog:   deps.Catalog,
		panel:     deps.Panel,
		journal:   deps.Journal,
		mqtt:      deps.MQTT,
		gatherer:  deps.Gatherer,
		version:   deps.Version,
		startTime: time.Now(),
		handles:   make(map[uuid.UUID]*effect.Handle),
	}
	if s.gatherer == nil {
		s.gatherer = prometheus.DefaultGatherer
	}
	if deps.Hub != nil {
		s.hub = deps.Hub
		s.externalHub = true
	} else {
		s.hub = NewHub(deps.WS, s.logger)
	}
	s.hub.SetOnClientGone(s.clientGone)
	return s, nil
}

// Hub returns the WebSocket hub, which doubles as an effect.Observer.
func (s *Server) Hub() *Hub {
	return s.hub
}

// Handler returns the fully wired router without starting a listener.
func (s *Server) Handler() http.Handler {
	return s.buildRouter()
}

// Start begins listening for HTTP connections in a background goroutine.
// The server can be stopped with Close().
func (s *Server) Start(ctx context.Context) error {
	var srvCtx context.Context
	srvCtx, s.cancel = context.WithCancel(ctx)

	if !s.externalHub {
		go s.hub.Run(srvCtx)
	}

	s.server = &http.Server{
		Addr:              fmt.Sprintf("%s:%d", s.cfg.Host, s.cfg.Port),
		Handler:           s.buildRouter(),
		ReadTimeout:       time.Duration(s.cfg.Timeouts.Read) * time.Second,
		ReadHeaderTimeout: time.Duration(s.cfg.Timeouts.Read) * time.Second,
		WriteTimeout:      time.Duration(s.cfg.Timeouts.Write) * time.Second,
		IdleTimeout:       time.Duration(s.cfg.Timeouts.Idle) * time.Second,
	}

	go func() {
		var err error
		if s.cfg.TLS.Enabled {
			s.logger.Info("API server starting with TLS",
				"address", s.server.Addr,
				"cert", s.cfg.TLS.CertFile,
			)
			err = s.server.ListenAndServeTLS(s.cfg.TLS.CertFile, s.cfg.TLS.KeyFile)
		} else {
			s.logger.Info("API server starting", "address", s.server.Addr)
			err = s.server.ListenAndServe()
		}
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("API server error", "error", err)
		}
	}()

	return nil
}

// Close gracefully shuts down the API server and disconnects every handle it
// still owns.
//
// It waits up to 10 seconds for in-flight requests to complete,
// then forcefully closes remaining connections.
func (s *Server) Close() error {
	if s.cancel != nil {
		s.cancel()
	}

	var err error
	if s.server != nil {
		ctx, cancel := context.WithTimeout(context.Background(), gracefulShutdownTimeout)
		defer cancel()

		s.logger.Info("API server shutting down")
		if shutdownErr := s.server.Shutdown(ctx); shutdownErr != nil {
			err = fmt.Errorf("shutting down API server: %w", shutdownErr)
		}
	}

	if n := s.disconnectAll(); n > 0 {
		s.logger.Info("disconnected client handles", "count", n)
	}
	return err
}

// HealthCheck verifies the API server is running and responsive.
func (s *Server) HealthCheck(ctx context.Context) error {
	select {
	case <-ctx.Done():
		return fmt.Errorf("api health check: %w", ctx.Err())
	default:
	}

	if s.server == nil {
		return fmt.Errorf("api server not started")
	}
	return nil
}

// trackHandle records a handle created on behalf of a client.
func (s *Server) trackHandle(h *effect.Handle) {
	s.handlesMu.Lock()
	s.handles[h.ID()] = h
	s.handlesMu.Unlock()
}

// lookupHandle returns an owned handle.
func (s *Server) lookupHandle(id uuid.UUID) (*effect.Handle, bool) {
	s.handlesMu.Lock()
	defer s.handlesMu.Unlock()
	h, ok := s.handles[id]
	return h, ok
}

// releaseHandle forgets a handle. It reports false if another request
// already released it.
func (s *Server) releaseHandle(id uuid.UUID) bool {
	s.handlesMu.Lock()
	defer s.handlesMu.Unlock()
	if _, ok := s.handles[id]; !ok {
		return false
	}
	delete(s.handles, id)
	return true
}

// ownedHandleCount returns the number of handles the server holds.
func (s *Server) ownedHandleCount() int {
	s.handlesMu.Lock()
	defer s.handlesMu.Unlock()
	return len(s.handles)
}

// clientGone disconnects the handles of a client whose last WebSocket
// connection closed.
func (s *Server) clientGone(clientID string) {
	if n := s.disconnectClient(clientID); n > 0 {
		s.logger.Info("client gone, disconnected its handles", "client_id", clientID, "count", n)
	}
}

// disconnectClient disconnects every owned handle of one client.
func (s *Server) disconnectClient(clientID string) int {
	s.handlesMu.Lock()
	var owned []*effect.Handle
	for id, h := range s.handles {
		if h.Client().ID == clientID {
			owned = append(owned, h)
			delete(s.handles, id)
		}
	}
	s.handlesMu.Unlock()

	for _, h := range owned {
		s.registry.DisconnectEffectHandle(h, false)
	}
	return len(owned)
}

// disconnectAll disconnects every owned handle, as if each client had gone
// away. Handles are disconnected outside handlesMu.
func (s *Server) disconnectAll() int {
	s.handlesMu.Lock()
	owned := make([]*effect.Handle, 0, len(s.handles))
	for id, h := range s.handles {
		owned = append(owned, h)
		delete(s.handles, id)
	}
	s.handlesMu.Unlock()

	for _, h := range owned {
		s.registry.DisconnectEffectHandle(h, false)
	}
	return len(owned)
}
