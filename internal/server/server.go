package server

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/vyrodovalexey/envproxy/internal/config"
	"github.com/vyrodovalexey/envproxy/internal/middleware"
	"github.com/vyrodovalexey/envproxy/internal/observability"
	"github.com/vyrodovalexey/envproxy/internal/proxy"
	"github.com/vyrodovalexey/envproxy/internal/registry"
)

// RelativePathParam is the name of the catch-all parameter of a mount.
const RelativePathParam = "relativePath"

// ginModeOnce ensures gin.SetMode is only called once to avoid race conditions
var ginModeOnce sync.Once

// ErrAlreadyRunning is returned by Start on a running server.
var ErrAlreadyRunning = errors.New("server already running")

// Config holds configuration for the ingress server.
type Config struct {
	Address        string
	Port           int
	ReadTimeout    time.Duration
	WriteTimeout   time.Duration
	IdleTimeout    time.Duration
	MaxHeaderBytes int
}

// DefaultConfig returns a Config with default values.
func DefaultConfig() *Config {
	return &Config{
		Port:           config.DefaultPort,
		ReadTimeout:    config.DefaultReadTimeout,
		IdleTimeout:    config.DefaultIdleTimeout,
		MaxHeaderBytes: config.DefaultMaxHeaderBytes,
	}
}

// ConfigFromListener converts the listener section of the settings.
func ConfigFromListener(l config.ListenerConfig) *Config {
	return &Config{
		Address:        l.Address,
		Port:           l.Port,
		ReadTimeout:    l.ReadTimeout.Duration(),
		WriteTimeout:   l.WriteTimeout.Duration(),
		IdleTimeout:    l.IdleTimeout.Duration(),
		MaxHeaderBytes: l.MaxHeaderBytes,
	}
}

// Server is the ingress HTTP server.
type Server struct {
	engine     *gin.Engine
	httpServer *http.Server
	listener   net.Listener
	logger     observability.Logger
	config     *Config
	mounts     []string
	mu         sync.RWMutex
	running    bool
}

// Option is a functional option for configuring the server.
type Option func(*Server)

// WithLogger sets the logger.
func WithLogger(logger observability.Logger) Option {
	return func(s *Server) {
		s.logger = logger
	}
}

// WithMiddleware adds engine-wide middleware, run in order for every
// request including unmatched ones.
func WithMiddleware(mw ...gin.HandlerFunc) Option {
	return func(s *Server) {
		s.engine.Use(mw...)
	}
}

// New creates a new ingress server.
func New(cfg *Config, opts ...Option) *Server {
	if cfg == nil {
		cfg = DefaultConfig()
	}

	ginModeOnce.Do(func() {
		gin.SetMode(gin.ReleaseMode)
	})

	engine := gin.New()
	engine.RedirectTrailingSlash = false
	engine.RedirectFixedPath = false
	engine.HandleMethodNotAllowed = false
	engine.NoRoute(func(c *gin.Context) {
		c.JSON(http.StatusNotFound, gin.H{
			"error":   "not found",
			"message": "no service is mounted on this path",
		})
	})

	s := &Server{
		engine: engine,
		logger: observability.NopLogger(),
		config: cfg,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Engine returns the underlying gin engine.
func (s *Server) Engine() *gin.Engine {
	return s.engine
}

// Mounts returns the route patterns registered so far.
func (s *Server) Mounts() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]string(nil), s.mounts...)
}

// MountPatterns returns the gin patterns serving originalPath.
func MountPatterns(originalPath string) []string {
	prefix := strings.TrimSuffix(originalPath, "/")
	if prefix == "" {
		return []string{"/*" + RelativePathParam}
	}
	return []string{prefix, prefix + "/*" + RelativePathParam}
}

// Mount registers the handler of svc on its originalPath. The given
// middleware runs only for this service, after the engine-wide chain.
func (s *Server) Mount(svc *config.ServiceConfig, h *proxy.Handler, mw ...gin.HandlerFunc) (err error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.running {
		return fmt.Errorf("mount %s: %w", svc.Name, ErrAlreadyRunning)
	}

	// gin reports route conflicts by panicking.
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("mount %s on %s: %v", svc.Name, svc.OriginalPath, r)
		}
	}()

	handlers := append(append([]gin.HandlerFunc(nil), mw...), proxyHandler(svc.Name, h))
	for _, pattern := range MountPatterns(svc.OriginalPath) {
		s.engine.Any(pattern, handlers...)
		s.mounts = append(s.mounts, pattern)
	}
	return nil
}

// MountRegistry mounts every service of reg in registry order, each
// with its diagnostics middleware.
func (s *Server) MountRegistry(reg *registry.Registry, fwd *proxy.Forwarder) error {
	return reg.Each(func(svc *config.ServiceConfig) error {
		if err := s.Mount(svc, proxy.NewHandler(fwd, svc),
			middleware.Diagnostics(svc.Name, svc.LogLevel, s.logger),
		); err != nil {
			return err
		}
		s.logger.Debug("service mounted",
			observability.String("service", svc.Name),
			observability.Strings("patterns", MountPatterns(svc.OriginalPath)),
		)
		return nil
	})
}

// proxyHandler adapts a proxy.Handler to gin and exposes the outcome to
// the middleware chain.
func proxyHandler(service string, h *proxy.Handler) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Set(middleware.ServiceKey, service)

		outcome := h.Proxy(c.Writer, c.Request)
		if outcome.Environment != "" {
			c.Set(middleware.EnvironmentKey, outcome.Environment)
		}
		if outcome.Err != nil {
			_ = c.Error(outcome.Err)
		}
		if outcome.Status == proxy.StatusClientClosedRequest && !c.Writer.Written() {
			c.Status(proxy.StatusClientClosedRequest)
		}
	}
}

// Start listens on the configured address and serves until Stop is
// called or the listener fails.
func (s *Server) Start(ctx context.Context) error {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return ErrAlreadyRunning
	}

	addr := net.JoinHostPort(s.config.Address, strconv.Itoa(s.config.Port))
	var lc net.ListenConfig
	ln, err := lc.Listen(ctx, "tcp", addr)
	if err != nil {
		s.mu.Unlock()
		return fmt.Errorf("failed to listen on %s: %w", addr, err)
	}

	s.listener = ln
	s.httpServer = &http.Server{
		Handler:        s.engine,
		ReadTimeout:    s.config.ReadTimeout,
		WriteTimeout:   s.config.WriteTimeout,
		IdleTimeout:    s.config.IdleTimeout,
		MaxHeaderBytes: s.config.MaxHeaderBytes,
		ErrorLog:       zap.NewStdLog(s.logger.Zap()),
	}
	s.running = true
	httpServer := s.httpServer
	s.mu.Unlock()

	s.logger.Info("starting HTTP server",
		observability.String("address", ln.Addr().String()),
		observability.Duration("readTimeout", s.config.ReadTimeout),
		observability.Duration("writeTimeout", s.config.WriteTimeout),
		observability.Int("mounts", len(s.Mounts())),
	)

	err = httpServer.Serve(ln)
	if err != nil && !errors.Is(err, http.ErrServerClosed) {
		s.mu.Lock()
		s.running = false
		s.mu.Unlock()
		return fmt.Errorf("server error: %w", err)
	}
	return nil
}

// Stop stops the server gracefully, waiting for in-flight requests
// until ctx is done.
func (s *Server) Stop(ctx context.Context) error {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return nil
	}
	httpServer := s.httpServer
	s.mu.Unlock()

	s.logger.Info("stopping HTTP server")

	if err := httpServer.Shutdown(ctx); err != nil {
		return fmt.Errorf("failed to shutdown server: %w", err)
	}

	s.mu.Lock()
	s.running = false
	s.mu.Unlock()

	s.logger.Info("HTTP server stopped")
	return nil
}

// IsRunning returns whether the server is running.
func (s *Server) IsRunning() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.running
}

// Addr returns the address the server listens on, or "" before Start.
func (s *Server) Addr() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.listener == nil {
		return ""
	}
	return s.listener.Addr().String()
}
