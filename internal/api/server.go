package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/nerrad567/accessguard-core/internal/audit"
	"github.com/nerrad567/accessguard-core/internal/backup"
	"github.com/nerrad567/accessguard-core/internal/card"
	"github.com/nerrad567/accessguard-core/internal/infrastructure/config"
	"github.com/nerrad567/accessguard-core/internal/infrastructure/logging"
	"github.com/nerrad567/accessguard-core/internal/router"
	"github.com/nerrad567/accessguard-core/internal/security"
)

// gracefulShutdownTimeout is the maximum time to wait for in-flight requests
// to complete during shutdown.
const gracefulShutdownTimeout = 10 * time.Second

// HealthChecker is a dependency that can report its health.
// *database.DB and *mqtt.Client satisfy it.
type HealthChecker interface {
	HealthCheck(ctx context.Context) error
}

// ConnectionChecker reports broker connectivity and how many topics the
// service is subscribed to. *mqtt.Client satisfies it.
type ConnectionChecker interface {
	IsConnected() bool
	SubscriptionCount() int
}

// StatsSource exposes device protocol counters. *router.Router satisfies it.
type StatsSource interface {
	Stats() router.StatsSnapshot
}

// Deps holds the dependencies required by the API server.
type Deps struct {
	Config   config.APIConfig
	WS       config.WebSocketConfig
	Security config.SecurityConfig
	Logger   *logging.Logger

	Tracker  *card.Tracker
	Detector *security.Detector
	Backups  *backup.Manager

	DB     HealthChecker     // optional
	MQTT   ConnectionChecker // optional
	Router StatsSource       // optional
	Audit  audit.Repository  // optional; admin mutations are not audited without it

	ExternalHub *Hub // If set, the server uses this hub instead of creating its own
	Version     string
}

// Server is the administrative HTTP API server.
//
// It manages the HTTP listener, routes, middleware, and WebSocket hub.
// The server is created with New() and started with Start().
type Server struct {
	cfg         config.APIConfig
	wsCfg       config.WebSocketConfig
	secCfg      config.SecurityConfig
	logger      *logging.Logger
	tracker     *card.Tracker
	detector    *security.Detector
	backups     *backup.Manager
	db          HealthChecker
	mqtt        ConnectionChecker
	routerStats StatsSource
	audit       audit.Repository
	version     string
	startTime   time.Time
	tickets     *ticketStore
	server      *http.Server
	hub         *Hub
	cancel      context.CancelFunc // cancels background goroutines on Close()
}

// New creates a new API server with the given dependencies.
//
// The server is not started until Start() is called.
func New(deps Deps) (*Server, error) {
	if deps.Logger == nil {
		return nil, fmt.Errorf("logger is required")
	}
	if deps.Tracker == nil {
		return nil, fmt.Errorf("card tracker is required")
	}
	if deps.Detector == nil {
		return nil, fmt.Errorf("intrusion detector is required")
	}
	if deps.Backups == nil {
		return nil, fmt.Errorf("backup manager is required")
	}

	return &Server{
		cfg:         deps.Config,
		wsCfg:       deps.WS,
		secCfg:      deps.Security,
		logger:      deps.Logger,
		tracker:     deps.Tracker,
		detector:    deps.Detector,
		backups:     deps.Backups,
		db:          deps.DB,
		mqtt:        deps.MQTT,
		routerStats: deps.Router,
		audit:       deps.Audit,
		version:     deps.Version,
		startTime:   time.Now(),
		tickets:     newTicketStore(),
		hub:         deps.ExternalHub,
	}, nil
}

// Hub returns the WebSocket hub. Nil until Start unless one was injected.
func (s *Server) Hub() *Hub {
	return s.hub
}

// Start begins listening for HTTP connections.
//
// It sets up the router, starts the WebSocket hub (unless injected) and
// launches the HTTP listener in a background goroutine. The server can be
// stopped with Close().
func (s *Server) Start(ctx context.Context) error {
	var srvCtx context.Context
	srvCtx, s.cancel = context.WithCancel(ctx)

	if s.hub == nil {
		s.hub = NewHub(s.wsCfg, s.logger)
		go s.hub.Run(srvCtx)
	}

	// Start periodic ticket cleanup to prevent memory leaks
	go s.cleanTicketsLoop(srvCtx)

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
// It waits up to 10 seconds for in-flight requests to complete,
// then forcefully closes remaining connections.
func (s *Server) Close() error {
	if s.server == nil {
		return nil
	}

	if s.cancel != nil {
		s.cancel()
	}

	ctx, cancel := context.WithTimeout(context.Background(), gracefulShutdownTimeout)
	defer cancel()

	s.logger.Info("API server shutting down")
	if err := s.server.Shutdown(ctx); err != nil {
		return fmt.Errorf("shutting down API server: %w", err)
	}
	return nil
}

// HealthCheck verifies the API server is running.
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
