// Package server wires the credentials provider runtime and HTTP lifecycle.
package server

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net"
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"github.com/louisbranch/agentpay/internal/a2a"
	"github.com/louisbranch/agentpay/internal/platform/config"
	"github.com/louisbranch/agentpay/internal/platform/timeouts"
	credentialsagent "github.com/louisbranch/agentpay/internal/services/credentials/agent"
	credentialssqlite "github.com/louisbranch/agentpay/internal/services/credentials/storage/sqlite"
	"github.com/louisbranch/agentpay/internal/services/credentials/token"
	"github.com/louisbranch/agentpay/internal/services/credentials/vault"
)

type serverEnv struct {
	DBPath  string `env:"AGENTPAY_CREDENTIALS_DB_PATH"`
	BaseURL string `env:"AGENTPAY_CREDENTIALS_BASE_URL"`
}

func loadServerEnv() serverEnv {
	var cfg serverEnv
	_ = config.ParseEnv(&cfg)
	if strings.TrimSpace(cfg.DBPath) == "" {
		cfg.DBPath = filepath.Join("data", "credentials.db")
	}
	return cfg
}

// Server hosts the credentials provider agent endpoint and storage lifecycle.
type Server struct {
	listener   net.Listener
	httpServer *http.Server
	store      *credentialssqlite.Store
}

// New creates a configured credentials server listening on the provided port.
func New(port int) (*Server, error) {
	return NewWithAddr(fmt.Sprintf(":%d", port))
}

// NewWithAddr creates a configured credentials server for the provided address.
func NewWithAddr(addr string) (*Server, error) {
	listener, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("listen on %s: %w", addr, err)
	}
	srvEnv := loadServerEnv()
	store, err := openCredentialsStore(srvEnv.DBPath)
	if err != nil {
		_ = listener.Close()
		return nil, err
	}

	accountVault := vault.New()
	tokens := token.NewService(store, accountVault)
	// The advertised base URL rides inside issued token references so
	// processors can find the provider that minted a token.
	baseURL := strings.TrimSpace(srvEnv.BaseURL)
	if baseURL == "" {
		baseURL = "http://" + listener.Addr().String()
	}
	ag := credentialsagent.New(tokens, accountVault, store, baseURL)
	httpServer := &http.Server{
		Handler:           ag.Handler(a2a.NewMemoryTaskStore()).Routes(),
		ReadHeaderTimeout: timeouts.ReadHeader,
	}

	return &Server{
		listener:   listener,
		httpServer: httpServer,
		store:      store,
	}, nil
}

// Addr returns the listener address for the server.
func (s *Server) Addr() string {
	if s == nil || s.listener == nil {
		return ""
	}
	return s.listener.Addr().String()
}

// Run creates and serves a credentials server until context cancellation.
func Run(ctx context.Context, port int) error {
	server, err := New(port)
	if err != nil {
		return err
	}
	return server.Serve(ctx)
}

// Serve starts the HTTP server until context cancellation.
func (s *Server) Serve(ctx context.Context) error {
	if s == nil {
		return errors.New("server is nil")
	}
	if ctx == nil {
		ctx = context.Background()
	}
	defer s.Close()

	log.Printf("credentials server listening at %v", s.listener.Addr())
	serveErr := make(chan error, 1)
	go func() {
		serveErr <- s.httpServer.Serve(s.listener)
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), timeouts.Shutdown)
		defer cancel()
		_ = s.httpServer.Shutdown(shutdownCtx)
		err := <-serveErr
		if err == nil || errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("serve HTTP: %w", err)
	case err := <-serveErr:
		if err == nil || errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("serve HTTP: %w", err)
	}
}

// Close releases credentials server resources.
func (s *Server) Close() {
	if s == nil {
		return
	}
	if s.httpServer != nil {
		_ = s.httpServer.Close()
	}
	if s.listener != nil {
		_ = s.listener.Close()
	}
	if s.store != nil {
		if err := s.store.Close(); err != nil {
			log.Printf("close credentials store: %v", err)
		}
	}
}

func openCredentialsStore(path string) (*credentialssqlite.Store, error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create storage dir: %w", err)
		}
	}
	store, err := credentialssqlite.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open credentials sqlite store: %w", err)
	}
	return store, nil
}
