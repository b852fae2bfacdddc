// Package server exposes a backend.Service over the JSON HTTP API the client
// speaks, plus health and Prometheus endpoints.
package server

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"contractgen/internal/backend"
	"contractgen/internal/platform/logger"
)

// DefaultAddr is the listen address used when none is configured.
const DefaultAddr = ":3000"

// DefaultOrigins are the browser origins allowed by CORS.
var DefaultOrigins = []string{
	"http://localhost:3000",
	"http://localhost:5173",
	"http://127.0.0.1:3000",
	"http://127.0.0.1:5173",
}

// Server routes HTTP requests to a backend.Service.
type Server struct {
	svc      backend.Service
	log      *logger.Logger
	gatherer prometheus.Gatherer
	origins  []string
	auth     *Authenticator
	engine   *gin.Engine
}

// Option customizes a Server.
type Option func(*Server)

// WithLogger sets the request logger.
func WithLogger(l *logger.Logger) Option {
	return func(s *Server) { s.log = logger.OrNop(l) }
}

// WithGatherer sets the registry served at /metrics.
func WithGatherer(g prometheus.Gatherer) Option {
	return func(s *Server) {
		if g != nil {
			s.gatherer = g
		}
	}
}

// WithOrigins replaces the CORS allow list.
func WithOrigins(origins ...string) Option {
	return func(s *Server) { s.origins = origins }
}

// WithAuthenticator requires a valid bearer token on every /api route.
func WithAuthenticator(a *Authenticator) Option {
	return func(s *Server) { s.auth = a }
}

// New builds the router.
func New(svc backend.Service, opts ...Option) *Server {
	s := &Server{
		svc:      svc,
		log:      logger.Nop(),
		gatherer: prometheus.DefaultGatherer,
		origins:  DefaultOrigins,
	}
	for _, opt := range opts {
		opt(s)
	}
	s.engine = s.routes()
	return s
}

// Handler returns the HTTP handler.
func (s *Server) Handler() http.Handler { return s.engine }

func (s *Server) routes() *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery(), s.requestLogger())
	r.Use(cors.New(cors.Config{
		AllowOrigins:     s.origins,
		AllowMethods:     []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowHeaders:     []string{"Authorization", "Content-Type", "Accept"},
		ExposeHeaders:    []string{"Content-Disposition"},
		AllowCredentials: true,
	}))

	r.GET("/healthcheck", func(c *gin.Context) { c.String(http.StatusOK, "ok") })
	r.GET("/metrics", gin.WrapH(promhttp.HandlerFor(s.gatherer, promhttp.HandlerOpts{})))

	api := r.Group("/api")
	if s.auth != nil {
		api.Use(s.auth.Require())
	}

	api.GET("/modelos", s.listTemplates)
	api.POST("/modelos", s.createTemplate)
	api.POST("/modelos/upload", s.uploadTemplateAsset)
	api.GET("/modelos/:id", s.getTemplate)
	api.PUT("/modelos/:id", s.updateTemplate)
	api.DELETE("/modelos/:id", s.deleteTemplate)

	api.POST("/contratos/dados/:modeloId", s.fetchResolvedData)
	api.POST("/contratos/gerar/:modeloId", s.generateContract)
	api.POST("/contratos/historico/:modeloId", s.fetchHistory)
	// GET routes share wildcard segments so the router never sees a static
	// and a param child at the same depth.
	api.GET("/contratos/:first", s.listActiveContracts)
	api.GET("/contratos/:first/:second/download", s.download)
	return r
}

func (s *Server) requestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		s.log.Debug("request served",
			"method", c.Request.Method,
			"path", c.FullPath(),
			"status", c.Writer.Status(),
			"duration", time.Since(start),
		)
	}
}

// Run serves on addr until ctx is cancelled, then shuts down gracefully.
func (s *Server) Run(ctx context.Context, addr string) error {
	if addr == "" {
		addr = DefaultAddr
	}
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.engine,
		ReadHeaderTimeout: 10 * time.Second,
	}
	errCh := make(chan error, 1)
	go func() {
		s.log.Info("server listening", "addr", addr)
		errCh <- srv.ListenAndServe()
	}()
	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	s.log.Info("server stopped")
	return nil
}
