package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/vyon/auth-service/internal/audit"
	"github.com/vyon/auth-service/internal/auth"
	"github.com/vyon/auth-service/internal/infrastructure/config"
	"github.com/vyon/auth-service/internal/infrastructure/database"
	"github.com/vyon/auth-service/internal/infrastructure/influxdb"
	"github.com/vyon/auth-service/internal/infrastructure/logging"
	"github.com/vyon/auth-service/internal/infrastructure/mqtt"
)

// gracefulShutdownTimeout is the maximum time to wait for in-flight requests
// to complete during shutdown.
const gracefulShutdownTimeout = 10 * time.Second

// Deps holds the dependencies required by the API server.
type Deps struct {
	Config      config.APIConfig
	Environment string
	Logger      *logging.Logger
	Service     *auth.Service
	Gate        *auth.Gate
	AuditRepo   audit.Repository // optional
	DB          *database.DB     // optional: health and pool metrics
	MQTT        *mqtt.Client     // optional
	Influx      *influxdb.Client // optional: request latency points
	Version     string
}

// Server is the HTTP API server.
//
// It manages the HTTP listener, routes, middleware and the audit writer.
// The server is created with New() and started with Start().
type Server struct {
	cfg         config.APIConfig
	environment string
	logger      *logging.Logger
	service     *auth.Service
	gate        *auth.Gate
	auditRepo   audit.Repository
	auditCh     chan *audit.AuditLog
	db          *database.DB
	mqtt        *mqtt.Client
	influx      *influxdb.Client
	version     string
	startTime   time.Time

	server *http.Server
	cancel context.CancelFunc // stops the audit writer on Close()
	bg     sync.WaitGroup
}

// New creates a new API server with the given dependencies.
// The server is not started until Start() is called.
func New(deps Deps) (*Server, error) {
	if deps.Logger == nil {
		return nil, fmt.Errorf("logger is required")
	}
	if deps.Service == nil {
		return nil, fmt.Errorf("auth service is required")
	}
	if deps.Gate == nil {
		return nil, fmt.Errorf("auth gate is required")
	}

	s := &Server{
		cfg:         deps.Config,
		environment: deps.Environment,
		logger:      deps.Logger,
		service:     deps.Service,
		gate:        deps.Gate,
		auditRepo:   deps.AuditRepo,
		db:          deps.DB,
		mqtt:        deps.MQTT,
		influx:      deps.Influx,
		version:     deps.Version,
		startTime:   time.Now(),
	}
	if s.auditRepo != nil {
		s.auditCh = make(chan *audit.AuditLog, auditChanSize)
	}

	return s, nil
}

// Start launches the audit writer and the HTTP listener in background
// goroutines. The server can be stopped with Close().
func (s *Server) Start(ctx context.Context) error {
	s.startBackground(ctx)

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

// startBackground runs the audit writer until Close.
func (s *Server) startBackground(ctx context.Context) {
	var bgCtx context.Context
	bgCtx, s.cancel = context.WithCancel(ctx)

	if s.auditCh != nil {
		s.bg.Add(1)
		go func() {
			defer s.bg.Done()
			s.drainAuditLog(bgCtx)
		}()
	}
}

// Close gracefully shuts down the API server.
//
// It waits up to 10 seconds for in-flight requests to complete, then
// flushes queued audit entries.
func (s *Server) Close() error {
	var shutdownErr error
	if s.server != nil {
		ctx, cancel := context.WithTimeout(context.Background(), gracefulShutdownTimeout)
		defer cancel()

		s.logger.Info("API server shutting down")
		if err := s.server.Shutdown(ctx); err != nil {
			shutdownErr = fmt.Errorf("shutting down API server: %w", err)
		}
	}

	if s.cancel != nil {
		s.cancel()
	}
	s.bg.Wait()

	return shutdownErr
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
