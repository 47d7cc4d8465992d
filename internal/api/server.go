package api

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/nerrad567/gray-logic-kasa/internal/audit"
	"github.com/nerrad567/gray-logic-kasa/internal/command"
	"github.com/nerrad567/gray-logic-kasa/internal/device"
	"github.com/nerrad567/gray-logic-kasa/internal/dispatch"
	"github.com/nerrad567/gray-logic-kasa/internal/infrastructure/config"
	"github.com/nerrad567/gray-logic-kasa/internal/infrastructure/logging"
)

// gracefulShutdownTimeout is the maximum time to wait for in-flight requests
// to complete during shutdown.
const gracefulShutdownTimeout = 10 * time.Second

// Dispatcher is what the API needs from the job dispatcher.
// *dispatch.Dispatcher implements it.
type Dispatcher interface {
	command.Dispatcher
	Stats() dispatch.Stats
}

// ConnectionStatus reports whether an external connection is up.
type ConnectionStatus interface {
	IsConnected() bool
}

// Deps holds the dependencies required by the API server.
type Deps struct {
	Config     config.APIConfig
	WS         config.WebSocketConfig
	Security   config.SecurityConfig
	Logger     *logging.Logger
	Dispatcher Dispatcher
	Registry   *device.Registry
	Jobs       audit.Repository          // optional: GET /kasa/jobs returns 503 without it
	History    device.HistoryRepository  // optional: GET /kasa/devices/{address}/history
	DB         *sql.DB                   // optional: pool stats in /metrics
	MQTT       ConnectionStatus          // optional: broker status in /metrics
	Hub        *Hub                      // if set, the server uses this hub instead of creating its own
	Version    string
}

// Server is the HTTP API server for the Kasa bridge.
//
// It provides:
//   - REST intake for device operations (202 Accepted, result delivered later)
//   - Read-only queries over the registry, job log and snapshot history
//   - A WebSocket hub that delivers responses and state changes
//
// The server is created with New() and started with Start().
//
// Thread Safety:
//   - Handlers run concurrently; the dispatcher and registry are safe for
//     concurrent use, so no server-level locking is needed.
type Server struct {
	cfg        config.APIConfig
	wsCfg      config.WebSocketConfig
	secCfg     config.SecurityConfig
	logger     *logging.Logger
	dispatcher Dispatcher
	registry   *device.Registry
	jobs       audit.Repository
	history    device.HistoryRepository
	db         *sql.DB
	mqtt       ConnectionStatus
	version    string
	startTime  time.Time
	server     *http.Server
	hub        *Hub
	cancel     context.CancelFunc
}

// New creates a new API server with the given dependencies.
//
// The server is not started until Start() is called.
//
// Parameters:
//   - deps: Dependencies; Logger, Dispatcher and Registry are required, and
//     a JWT secret must be configured
//
// Returns:
//   - *Server: Configured server
//   - error: If a required dependency is missing
func New(deps Deps) (*Server, error) {
	if deps.Logger == nil {
		return nil, fmt.Errorf("logger is required")
	}
	if deps.Dispatcher == nil {
		return nil, fmt.Errorf("dispatcher is required")
	}
	if deps.Registry == nil {
		return nil, fmt.Errorf("device registry is required")
	}
	if deps.Security.JWT.Secret == "" {
		return nil, fmt.Errorf("jwt secret is required")
	}

	return &Server{
		cfg:        deps.Config,
		wsCfg:      deps.WS,
		secCfg:     deps.Security,
		logger:     deps.Logger,
		dispatcher: deps.Dispatcher,
		registry:   deps.Registry,
		jobs:       deps.Jobs,
		history:    deps.History,
		db:         deps.DB,
		mqtt:       deps.MQTT,
		version:    deps.Version,
		startTime:  time.Now(),
		hub:        deps.Hub,
	}, nil
}

// Hub returns the WebSocket hub. It is nil until Start() when no hub
// was injected.
func (s *Server) Hub() *Hub {
	return s.hub
}

// Start begins listening for HTTP connections.
//
// It performs the following:
//  1. Creates and runs the WebSocket hub, unless one was injected
//  2. Builds the chi router with middleware
//  3. Launches the listener (TLS if configured) in a background goroutine
//
// Parameters:
//   - ctx: Lifetime of a hub created here
//
// Returns:
//   - error: nil; listener failures after startup are logged
//
// Stop it with Close().
func (s *Server) Start(ctx context.Context) error {
	var srvCtx context.Context
	srvCtx, s.cancel = context.WithCancel(ctx)

	if s.hub == nil {
		s.hub = NewHub(s.wsCfg, s.logger)
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

// Close gracefully shuts down the API server.
//
// It waits up to 10 seconds for in-flight requests to complete.
func (s *Server) Close() error {
	if s.cancel != nil {
		s.cancel()
	}
	if s.server == nil {
		return nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), gracefulShutdownTimeout)
	defer cancel()

	if err := s.server.Shutdown(ctx); err != nil {
		return fmt.Errorf("shutting down API server: %w", err)
	}
	s.logger.Info("API server stopped")
	return nil
}

// HealthCheck reports whether the server has been started.
//
// Returns:
//   - error: nil once Start has run, an error otherwise
func (s *Server) HealthCheck(_ context.Context) error {
	if s.server == nil {
		return fmt.Errorf("API server not started")
	}
	return nil
}
