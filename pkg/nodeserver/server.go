// Package nodeserver exposes a node's chain over HTTP: a machine-readable
// dump of the full block list, a small HTML view of the same data, and a
// shutdown endpoint a node can call on itself to end a bounded test run.
package nodeserver

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/gorilla/mux"

	"github.com/ramonaguilera/simplechain/pkg/chain"
	"github.com/ramonaguilera/simplechain/pkg/logger"
)

// Config controls how the server binds and how it shuts itself down.
type Config struct {
	Addr            string
	ShutdownTimeout time.Duration
}

// DefaultConfig binds to all interfaces on port 8000 and allows 5 seconds
// for in-flight requests to drain on shutdown.
func DefaultConfig() *Config {
	return &Config{Addr: ":8000", ShutdownTimeout: 5 * time.Second}
}

// Server serves a single node's chain to peers and to a human operator.
type Server struct {
	chain  *chain.Chain
	logger *logger.Logger
	srv    *http.Server
	cfg    *Config
}

// New builds a Server over c. cfg may be nil for DefaultConfig.
func New(c *chain.Chain, log *logger.Logger, cfg *Config) *Server {
	if cfg == nil {
		cfg = DefaultConfig()
	}

	s := &Server{chain: c, logger: log, cfg: cfg}

	router := mux.NewRouter()
	router.HandleFunc("/blockchain", s.handleBlockchain).Methods(http.MethodGet)
	router.HandleFunc("/", s.handleIndex).Methods(http.MethodGet)
	router.HandleFunc("/apagado", s.handleShutdown).Methods(http.MethodGet)

	s.srv = &http.Server{Addr: cfg.Addr, Handler: router}
	return s
}

// ListenAndServe blocks serving HTTP until the server is shut down via
// Shutdown or the /apagado endpoint, returning nil on a clean shutdown.
func (s *Server) ListenAndServe() error {
	if err := s.srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("nodeserver: listen: %w", err)
	}
	return nil
}

// Shutdown stops the server gracefully, allowing in-flight requests up to
// cfg.ShutdownTimeout to complete.
func (s *Server) Shutdown() error {
	ctx, cancel := context.WithTimeout(context.Background(), s.cfg.ShutdownTimeout)
	defer cancel()
	return s.srv.Shutdown(ctx)
}

func (s *Server) handleBlockchain(w http.ResponseWriter, r *http.Request) {
	blocks := s.chain.Snapshot()
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(blocks); err != nil && s.logger != nil {
		s.logger.Error("nodeserver: encode blockchain: %v", err)
	}
}

func (s *Server) handleIndex(w http.ResponseWriter, r *http.Request) {
	blocks := s.chain.Snapshot()
	buf, err := json.MarshalIndent(blocks, "", "  ")
	if err != nil {
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	fmt.Fprintf(w, "<html><head><title>simplechain node</title></head><body><pre>%s</pre></body></html>", buf)
}

// handleShutdown stops this server asynchronously and replies before doing
// so, since the request that triggers the shutdown would otherwise never
// get a response.
func (s *Server) handleShutdown(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	fmt.Fprint(w, "apagando")

	go func() {
		if err := s.Shutdown(); err != nil && s.logger != nil {
			s.logger.Error("nodeserver: shutdown: %v", err)
		}
	}()
}
