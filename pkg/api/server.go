package api

import (
	"context"
	"net/http"

	"github.com/gorilla/mux"

	"github.com/platinummonkey/trellis/pkg/extension"
	"github.com/platinummonkey/trellis/pkg/httputil"
	"github.com/platinummonkey/trellis/pkg/messages"
	"github.com/platinummonkey/trellis/pkg/observability"
	"github.com/platinummonkey/trellis/pkg/updater"
)

// maxBodyBytes bounds request bodies
const maxBodyBytes = 1 << 20

// Registry is the part of the capability registry the API drives
type Registry interface {
	List(kind extension.Kind) []extension.Entry
	Get(kind extension.Kind, id string) (extension.Entry, error)
	SetEnabled(kind extension.Kind, id string, enabled bool) error
	ResetEnabled(kind extension.Kind, id string) error
	SetOrder(kind extension.Kind, ids []string) error
	Move(kind extension.Kind, from, to int) error
	Active() (extension.Entry, bool)
	SetActive(id string) error
	SetConnectivity(online bool)
	Connectivity() bool
}

// Updates triggers forced update checks
type Updates interface {
	CheckNow(ctx context.Context) (updater.Report, error)
}

// Config holds the server's collaborators. Updates, Health and Metrics are
// optional.
type Config struct {
	Registry Registry
	Updates  Updates
	Messages *messages.Bus
	Health   *observability.HealthChecker
	Metrics  *observability.Metrics
	Logger   *observability.Logger
}

// Server represents the management API server
type Server struct {
	registry Registry
	updates  Updates
	messages *messages.Bus
	health   *observability.HealthChecker
	metrics  *observability.Metrics
	logger   *observability.Logger
	router   *mux.Router
}

// NewServer creates the API server and its routes
func NewServer(cfg Config) *Server {
	if cfg.Logger == nil {
		cfg.Logger = observability.NewLogger(observability.InfoLevel, nil)
	}
	s := &Server{
		registry: cfg.Registry,
		updates:  cfg.Updates,
		messages: cfg.Messages,
		health:   cfg.Health,
		metrics:  cfg.Metrics,
		logger:   cfg.Logger,
		router:   mux.NewRouter(),
	}
	s.setupMiddleware()
	s.setupRoutes()
	return s
}

func (s *Server) setupMiddleware() {
	s.router.Use(httputil.RequestIDMiddleware)
	s.router.Use(httputil.RecoveryMiddleware(s.logger))
	s.router.Use(httputil.LoggingMiddleware(s.logger))
	if s.metrics != nil {
		s.router.Use(httputil.MetricsMiddleware(s.metrics))
	}
	s.router.Use(httputil.MaxBytesMiddleware(maxBodyBytes))
}

// setupRoutes configures all the API routes
func (s *Server) setupRoutes() {
	// Extension routes
	s.router.HandleFunc("/v1/extensions", s.listAllExtensions).Methods("GET")
	s.router.HandleFunc("/v1/extensions/{kind}", s.listExtensions).Methods("GET")
	s.router.HandleFunc("/v1/extensions/{kind}/order", s.setOrder).Methods("PUT")
	s.router.HandleFunc("/v1/extensions/{kind}/move", s.moveExtension).Methods("POST")
	s.router.HandleFunc("/v1/extensions/{kind}/{id}", s.getExtension).Methods("GET")
	s.router.HandleFunc("/v1/extensions/{kind}/{id}/enable", s.enableExtension).Methods("POST")
	s.router.HandleFunc("/v1/extensions/{kind}/{id}/disable", s.disableExtension).Methods("POST")
	s.router.HandleFunc("/v1/extensions/{kind}/{id}/enabled", s.resetEnabled).Methods("DELETE")

	// Active selection
	s.router.HandleFunc("/v1/active", s.getActive).Methods("GET")
	s.router.HandleFunc("/v1/active", s.setActive).Methods("PUT")

	// Connectivity
	s.router.HandleFunc("/v1/connectivity", s.getConnectivity).Methods("GET")
	s.router.HandleFunc("/v1/connectivity", s.setConnectivity).Methods("PUT")

	// Updates and messages
	s.router.HandleFunc("/v1/updates/check", s.checkUpdates).Methods("POST")
	s.router.HandleFunc("/v1/messages", s.listMessages).Methods("GET")

	// Operations
	if s.health != nil {
		s.router.HandleFunc("/healthz", s.health.Liveness).Methods("GET")
		s.router.HandleFunc("/readyz", s.health.Readiness).Methods("GET")
	}
	if s.metrics != nil {
		s.router.Handle("/metrics", s.metrics.Handler()).Methods("GET")
	}
}

// ServeHTTP implements http.Handler
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

// RouteRegistrar is an interface for types that can register routes
type RouteRegistrar interface {
	RegisterRoutes(router *mux.Router)
}

// RegisterRoutes registers routes from a RouteRegistrar
func (s *Server) RegisterRoutes(registrar RouteRegistrar) {
	registrar.RegisterRoutes(s.router)
}
