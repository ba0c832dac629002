// Package daemon implements the JSON-RPC server named in spec.md §6: a
// single POST endpoint dispatching on a method field, supporting
// reload_config and create_subnet, built in the shape of the teacher's
// internal/daemon.Server (bearer-token auth middleware, a route table,
// Prometheus-instrumented handler) but routing on a JSON-RPC method name
// from one endpoint instead of REST verbs across many.
package daemon

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/ipc-subnet/subnet-agent/internal/config"
	"github.com/ipc-subnet/subnet-agent/internal/metrics"
	"github.com/ipc-subnet/subnet-agent/internal/rpcpool"
)

// maxRequestBodySize limits the size of JSON request bodies to prevent
// unbounded memory consumption from oversized or malicious payloads.
const maxRequestBodySize = 1 << 20 // 1 MB

// methodHandler implements one JSON-RPC method.
type methodHandler func(ctx context.Context, params json.RawMessage) (any, error)

// Server is the agent's JSON-RPC 2.0 control server: reload_config
// triggers an immediate ReloadableConfig.Reload, and create_subnet
// validates and persists a new [subnets.<name>] entry before reloading.
type Server struct {
	cfg        *config.ReloadableConfig
	configPath string
	pool       *rpcpool.Pool
	factory    rpcpool.ClientFactory

	authToken string
	metrics   *metrics.Metrics
	log       *slog.Logger

	methods map[string]methodHandler

	httpServer *http.Server
	listener   net.Listener
	shutdownCh chan struct{}
}

// NewServer returns a Server that reloads cfg (backed by the file at
// configPath), resolving chain RPC clients for create_subnet's network
// check through pool (for already-configured subnets) and factory (to
// build a throwaway client for the subnet being created).
func NewServer(cfg *config.ReloadableConfig, configPath string, pool *rpcpool.Pool, factory rpcpool.ClientFactory, log *slog.Logger) *Server {
	if log == nil {
		log = slog.Default()
	}
	s := &Server{
		cfg:        cfg,
		configPath: configPath,
		pool:       pool,
		factory:    factory,
		log:        log,
		shutdownCh: make(chan struct{}),
	}
	s.methods = map[string]methodHandler{
		"reload_config": s.handleReloadConfig,
		"create_subnet": s.handleCreateSubnet,
	}
	return s
}

// SetInstrumentation configures optional Prometheus metrics. Must be
// called before Start. Nil-safe.
func (s *Server) SetInstrumentation(m *metrics.Metrics) {
	s.metrics = m
}

// SetAuthToken requires every request to carry Authorization: Bearer
// <token>. An empty token (the default) disables auth.
func (s *Server) SetAuthToken(token string) {
	s.authToken = token
}

// ShutdownCh returns a channel callers can select on alongside OS signals,
// mirroring the teacher's daemon.Server shape. Nothing currently closes it
// since this server has no API-triggered shutdown method of its own.
func (s *Server) ShutdownCh() <-chan struct{} {
	return s.shutdownCh
}

// Listener returns the underlying net.Listener (for health checks), or
// nil before Start.
func (s *Server) Listener() net.Listener {
	return s.listener
}

// Start binds the configured json_rpc_address and begins serving in a
// background goroutine. It returns once the listener is bound.
func (s *Server) Start() error {
	addr := s.cfg.Current().Server().JSONRPCAddress

	listener, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("listen on %s: %w", addr, err)
	}
	s.listener = listener

	mux := http.NewServeMux()
	mux.HandleFunc("POST /", s.handleRequest)
	if s.metrics != nil {
		mux.Handle("GET /metrics", s.metrics.Handler())
	}

	s.httpServer = &http.Server{
		Handler:      InstrumentHandler(s.authMiddleware(mux), s.metrics),
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 30 * time.Second,
	}

	go func() {
		if err := s.httpServer.Serve(listener); err != nil && err != http.ErrServerClosed {
			s.log.Error("json-rpc server error", "error", err)
		}
	}()

	s.log.Info("json-rpc server listening", "address", addr)
	return nil
}

// Stop gracefully shuts down the HTTP server.
func (s *Server) Stop() {
	if s.httpServer == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	if err := s.httpServer.Shutdown(ctx); err != nil {
		s.log.Warn("json-rpc server shutdown error", "error", err)
	}
	s.log.Info("json-rpc server stopped")
}

// authMiddleware checks the Authorization: Bearer <token> header on every
// request when an auth token has been configured.
func (s *Server) authMiddleware(next http.Handler) http.Handler {
	if s.authToken == "" {
		return next
	}
	expected := "Bearer " + s.authToken
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != expected {
			writeHTTPError(w, http.StatusUnauthorized, ErrUnauthorized.Error())
			return
		}
		next.ServeHTTP(w, r)
	})
}
