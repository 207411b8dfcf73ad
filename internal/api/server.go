// Package api exposes the node's HTTP control surface: stream status,
// recording toggles, recent logs and Prometheus metrics.
package api

import (
	"context"
	"encoding/base64"
	"log/slog"
	"net/http"
	"strings"

	"github.com/danielgtaylor/huma/v2"
	"github.com/danielgtaylor/huma/v2/adapters/humachi"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/smazurov/nvrnode/internal/events"
	"github.com/smazurov/nvrnode/internal/logging"
	"github.com/smazurov/nvrnode/internal/record"
	"github.com/smazurov/nvrnode/internal/streams"
	"github.com/smazurov/nvrnode/internal/version"
)

// StreamController is the subset of the stream manager the API drives.
type StreamController interface {
	StartStream(name string) error
	StopStream(ctx context.Context, name string) error
	SetRecording(name string, enabled bool) error
	Running(name string) bool
}

// Options configures the API server.
type Options struct {
	AuthUsername string
	AuthPassword string

	Controller StreamController
	Store      streams.Store
	States     *streams.Registry
	Recorders  *record.Registry

	// Events serves GET /api/events when set.
	Events *events.Recent

	// PrometheusHandler serves GET /metrics when set.
	PrometheusHandler http.Handler
}

// Server is the huma v2 API server over a chi router.
type Server struct {
	api        huma.API
	router     chi.Router
	httpServer *http.Server
	opts       *Options
	logger     *slog.Logger
}

// NewServer creates the API server and registers all routes.
func NewServer(opts *Options) *Server {
	router := chi.NewRouter()
	router.Use(middleware.RequestID)
	router.Use(middleware.Recoverer)

	cfg := huma.DefaultConfig("nvrnode API", "1.0.0")
	cfg.Info.Description = "Stream ingest, recording and detection control for the NVR node"
	cfg.Servers = []*huma.Server{}
	cfg.Components.SecuritySchemes = map[string]*huma.SecurityScheme{
		"basicAuth": {
			Type:   "http",
			Scheme: "basic",
		},
	}

	api := humachi.New(router, cfg)

	s := &Server{
		api:    api,
		router: router,
		opts:   opts,
		logger: logging.GetLogger("api"),
	}

	api.UseMiddleware(s.loggingMiddleware)
	if opts.AuthUsername != "" && opts.AuthPassword != "" {
		api.UseMiddleware(s.basicAuthMiddleware(opts.AuthUsername, opts.AuthPassword))
	}

	if opts.PrometheusHandler != nil {
		router.Method(http.MethodGet, "/metrics", opts.PrometheusHandler)
	}

	s.registerRoutes()
	return s
}

// API returns the huma API, mainly for tests.
func (s *Server) API() huma.API {
	return s.api
}

// Handler returns the root HTTP handler.
func (s *Server) Handler() http.Handler {
	return s.router
}

// Start serves HTTP on addr until Stop or a listener error.
func (s *Server) Start(addr string) error {
	s.logger.Info("Starting API server", "addr", addr)
	s.logger.Info("OpenAPI documentation available", "url", "http://"+addr+"/docs")

	s.httpServer = &http.Server{
		Addr:    addr,
		Handler: s.router,
	}
	return s.httpServer.ListenAndServe()
}

// Stop shuts the server down immediately.
func (s *Server) Stop() error {
	s.logger.Info("Stopping API server")
	if s.httpServer != nil {
		return s.httpServer.Close()
	}
	return nil
}

func (s *Server) registerRoutes() {
	huma.Register(s.api, huma.Operation{
		OperationID: "health-check",
		Method:      http.MethodGet,
		Path:        "/api/health",
		Summary:     "Health",
		Description: "Check API health status",
		Tags:        []string{"health"},
		Security:    []map[string][]string{}, // no auth
	}, func(ctx context.Context, input *struct{}) (*HealthResponse, error) {
		return &HealthResponse{
			Body: HealthData{Status: "ok"},
		}, nil
	})

	huma.Register(s.api, huma.Operation{
		OperationID: "get-version",
		Method:      http.MethodGet,
		Path:        "/api/version",
		Summary:     "Version",
		Description: "Build and version information",
		Tags:        []string{"health"},
		Security:    []map[string][]string{}, // no auth
	}, func(ctx context.Context, input *struct{}) (*VersionResponse, error) {
		return &VersionResponse{Body: version.Get()}, nil
	})

	s.registerStreamRoutes()
	s.registerEventRoutes()
	s.registerLogRoutes()
}

// basicAuthMiddleware guards operations that declare a security requirement.
func (s *Server) basicAuthMiddleware(username, password string) func(huma.Context, func(huma.Context)) {
	return func(ctx huma.Context, next func(huma.Context)) {
		op := ctx.Operation()
		if op != nil && len(op.Security) == 0 {
			next(ctx)
			return
		}

		unauthorized := func(msg string) {
			ctx.SetHeader("WWW-Authenticate", `Basic realm="nvrnode API"`)
			huma.WriteErr(s.api, ctx, http.StatusUnauthorized, msg)
		}

		const prefix = "Basic "
		authHeader := ctx.Header("Authorization")
		if !strings.HasPrefix(authHeader, prefix) {
			unauthorized("Authentication required")
			return
		}
		decoded, err := base64.StdEncoding.DecodeString(authHeader[len(prefix):])
		if err != nil {
			unauthorized("Invalid credentials format")
			return
		}
		parts := strings.SplitN(string(decoded), ":", 2)
		if len(parts) != 2 || parts[0] != username || parts[1] != password {
			unauthorized("Invalid credentials")
			return
		}

		next(ctx)
	}
}

// withAuth marks an operation as requiring basic auth.
func withAuth() []map[string][]string {
	return []map[string][]string{
		{"basicAuth": {}},
	}
}
