// Copyright (c) Aptos
// SPDX-License-Identifier: Apache-2.0

// Package rosetta serves the Rosetta-flavored HTTP gateway of a node.
// The gateway runs in one of two modes: online, backed by a rest client
// into a fullnode, or offline, where every call that needs the node
// fails with ErrNodeOffline and only self-contained operations work.
package rosetta

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/RJ0088/aptos-core/log"
	"github.com/rs/cors"
)

// Gateway versions reported on /network/status.
const (
	NodeVersion    = "0.1"
	RosettaVersion = "1.4.12"
)

// HealthCheckDefaultSecs is how far behind the fullnode may be before
// the health probe fails, when the caller does not say otherwise.
const HealthCheckDefaultSecs = 300

// ErrNodeOffline is returned by operations that need the fullnode rest
// client when the gateway runs in offline mode.
var ErrNodeOffline = errors.New("rosetta: node is offline")

// errBadRequest marks failures caused by the caller's input, mapped to
// 400 instead of 500.
var errBadRequest = errors.New("bad request")

// Client is the slice of the fullnode rest API the gateway consumes.
type Client interface {
	// ChainID reports the chain the fullnode is on.
	ChainID(ctx context.Context) (uint8, error)

	// HealthCheck fails if the fullnode's latest ledger entry is older
	// than the given number of seconds.
	HealthCheck(ctx context.Context, durationSecs uint64) error

	// LedgerVersion reports the fullnode's latest ledger version.
	LedgerVersion(ctx context.Context) (uint64, error)
}

// Config configures the gateway's HTTP endpoint.
type Config struct {
	// Address is the listen address, host:port.
	Address string

	// ReadTimeout and WriteTimeout bound request processing. Zero
	// values fall back to the defaults of DefaultConfig.
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
}

// DefaultConfig returns the gateway defaults, serving on the
// conventional Rosetta port.
func DefaultConfig() Config {
	return Config{
		Address:      "0.0.0.0:8082",
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 30 * time.Second,
	}
}

func (c Config) sanitized() Config {
	def := DefaultConfig()
	if c.Address == "" {
		c.Address = def.Address
	}
	if c.ReadTimeout == 0 {
		c.ReadTimeout = def.ReadTimeout
	}
	if c.WriteTimeout == 0 {
		c.WriteTimeout = def.WriteTimeout
	}
	return c
}

// Server is a running gateway.
type Server struct {
	chainID  uint8
	client   Client // nil in offline mode
	log      log.Logger
	listener net.Listener
	srv      *http.Server
}

// Bootstrap verifies the configuration against the fullnode, binds the
// listen address and starts serving. With a client configured the
// fullnode's chain id must match chainID, otherwise startup fails; with
// no client the gateway comes up offline.
func Bootstrap(ctx context.Context, chainID uint8, cfg Config, client Client) (*Server, error) {
	if client != nil {
		upstream, err := client.ChainID(ctx)
		if err != nil {
			return nil, fmt.Errorf("read upstream chain id: %w", err)
		}
		if upstream != chainID {
			return nil, fmt.Errorf("chain id mismatch: gateway configured for %d, fullnode is on %d", chainID, upstream)
		}
	}
	cfg = cfg.sanitized()

	s := &Server{
		chainID: chainID,
		client:  client,
		log:     log.New("server", "rosetta"),
	}
	handler := cors.New(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{http.MethodGet, http.MethodPost},
		AllowedHeaders: []string{"Content-Type"},
	}).Handler(s.routes())

	listener, err := net.Listen("tcp", cfg.Address)
	if err != nil {
		return nil, fmt.Errorf("listen on %s: %w", cfg.Address, err)
	}
	s.listener = listener
	s.srv = &http.Server{
		Handler:      handler,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
	}
	go func() {
		if err := s.srv.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.log.Error("Gateway terminated", "err", err)
		}
	}()
	s.log.Info("Rosetta gateway started", "addr", listener.Addr(), "chainid", chainID, "online", client != nil)
	return s, nil
}

// Addr returns the address the gateway is serving on.
func (s *Server) Addr() net.Addr {
	return s.listener.Addr()
}

// Shutdown drains in-flight requests and stops the gateway.
func (s *Server) Shutdown(ctx context.Context) error {
	s.log.Info("Rosetta gateway shutting down")
	return s.srv.Shutdown(ctx)
}

func (s *Server) routes() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/-/healthy", s.handleHealthy)
	mux.HandleFunc("/network/status", s.handleNetworkStatus)
	return mux
}

// restClient hands out the fullnode client, or fails in offline mode.
func (s *Server) restClient() (Client, error) {
	if s.client == nil {
		return nil, ErrNodeOffline
	}
	return s.client, nil
}

// handleHealthy delegates to the fullnode health probe, passing the
// caller's staleness bound through.
func (s *Server) handleHealthy(w http.ResponseWriter, r *http.Request) {
	client, err := s.restClient()
	if err != nil {
		s.writeError(w, err)
		return
	}
	durationSecs := uint64(HealthCheckDefaultSecs)
	if raw := r.URL.Query().Get("duration_secs"); raw != "" {
		durationSecs, err = strconv.ParseUint(raw, 10, 64)
		if err != nil {
			s.writeError(w, fmt.Errorf("%w: malformed duration_secs %q", errBadRequest, raw))
			return
		}
	}
	if err := client.HealthCheck(r.Context(), durationSecs); err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]string{"message": "aptos-node:ok"})
}

func (s *Server) handleNetworkStatus(w http.ResponseWriter, r *http.Request) {
	client, err := s.restClient()
	if err != nil {
		s.writeError(w, err)
		return
	}
	version, err := client.LedgerVersion(r.Context())
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]interface{}{
		"chain_id":        s.chainID,
		"ledger_version":  version,
		"node_version":    NodeVersion,
		"rosetta_version": RosettaVersion,
	})
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		s.log.Debug("Failed to write response", "err", err)
	}
}

func (s *Server) writeError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, ErrNodeOffline):
		status = http.StatusServiceUnavailable
	case errors.Is(err, errBadRequest):
		status = http.StatusBadRequest
	}
	s.log.Debug("Request failed", "err", err)
	s.writeJSON(w, status, map[string]string{"error": err.Error()})
}
