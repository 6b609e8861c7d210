// Package service hosts the MCP server bridging tool calls to the
// purchase flow. Each server process owns one purchase session at a time;
// creating a new intent starts the next purchase fresh.
package service

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/louisbranch/agentpay/internal/a2a"
	"github.com/louisbranch/agentpay/internal/mandate"
	"github.com/louisbranch/agentpay/internal/services/mcp/domain"
	"github.com/louisbranch/agentpay/internal/services/shopper/flow"
	"github.com/louisbranch/agentpay/internal/signing"
)

const (
	serverName = "agentpay-shopper"
	// serverVersion identifies the MCP server version.
	serverVersion = "0.1.0"
)

// Config locates the counterparty agent endpoints.
type Config struct {
	MerchantURL    string
	CredentialsURL string
}

// Server hosts the MCP server over one purchase session.
type Server struct {
	mcpServer *mcp.Server
}

// New creates a configured MCP server wired to the merchant and
// credentials provider endpoints.
func New(cfg Config) (*Server, error) {
	signer, err := signing.NewSignerFromEnv(nil)
	if err != nil {
		return nil, fmt.Errorf("load signing key: %w", err)
	}
	newSession := func() *flow.Session {
		return flow.NewSession(flow.Config{
			Merchant: a2a.NewClient(a2a.ClientConfig{
				Name:               "merchant",
				BaseURL:            cfg.MerchantURL,
				RequiredExtensions: []string{mandate.ExtensionURI},
			}),
			Credentials: a2a.NewClient(a2a.ClientConfig{
				Name:               "credentials_provider",
				BaseURL:            cfg.CredentialsURL,
				RequiredExtensions: []string{mandate.ExtensionURI},
			}),
			Signer: signer,
		})
	}
	return newServer(newSession), nil
}

func newServer(newSession func() *flow.Session) *Server {
	mcpServer := mcp.NewServer(&mcp.Implementation{Name: serverName, Version: serverVersion}, nil)
	purchase := &lockedFlow{newSession: newSession, session: newSession()}

	mcp.AddTool(mcpServer, domain.IntentCreateTool(), domain.IntentCreateHandler(purchase))
	mcp.AddTool(mcpServer, domain.ProductSearchTool(), domain.ProductSearchHandler(purchase))
	mcp.AddTool(mcpServer, domain.CartSelectTool(), domain.CartSelectHandler(purchase))
	mcp.AddTool(mcpServer, domain.ShippingAddressTool(), domain.ShippingAddressHandler(purchase))
	mcp.AddTool(mcpServer, domain.PaymentMethodSearchTool(), domain.PaymentMethodSearchHandler(purchase))
	mcp.AddTool(mcpServer, domain.TokenCreateTool(), domain.TokenCreateHandler(purchase))
	mcp.AddTool(mcpServer, domain.CartFinalizeTool(), domain.CartFinalizeHandler(purchase))
	mcp.AddTool(mcpServer, domain.MandateSignTool(), domain.MandateSignHandler(purchase))
	mcp.AddTool(mcpServer, domain.PaymentInitiateTool(), domain.PaymentInitiateHandler(purchase))
	mcp.AddTool(mcpServer, domain.OTPSubmitTool(), domain.OTPSubmitHandler(purchase))

	return &Server{mcpServer: mcpServer}
}

// Serve starts the MCP server on stdio and blocks until it stops or the
// context ends.
func (s *Server) Serve(ctx context.Context) error {
	return s.serveWithTransport(ctx, &mcp.StdioTransport{})
}

func (s *Server) serveWithTransport(ctx context.Context, transport mcp.Transport) error {
	if s == nil || s.mcpServer == nil {
		return fmt.Errorf("MCP server is not configured")
	}
	if ctx == nil {
		ctx = context.Background()
	}
	err := s.mcpServer.Run(ctx, transport)
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		err = nil
	}
	if err != nil {
		return fmt.Errorf("serve MCP: %w", err)
	}
	return nil
}

// Run creates and serves an MCP server until context cancellation.
func Run(ctx context.Context, cfg Config) error {
	server, err := New(cfg)
	if err != nil {
		return err
	}
	return server.Serve(ctx)
}

// lockedFlow serializes purchase session access. flow.Session is not safe
// for concurrent use and MCP clients may pipeline tool calls.
type lockedFlow struct {
	mu         sync.Mutex
	newSession func() *flow.Session
	session    *flow.Session
}

// CreateIntent starts a fresh session so each intent opens a new purchase.
func (f *lockedFlow) CreateIntent(description string, merchants, skus []string, requiresRefundability bool) (mandate.IntentMandate, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.session = f.newSession()
	return f.session.CreateIntent(description, merchants, skus, requiresRefundability)
}

func (f *lockedFlow) FindProducts(ctx context.Context) ([]mandate.CartMandate, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.session.FindProducts(ctx)
}

func (f *lockedFlow) SelectCart(cartID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.session.SelectCart(cartID)
}

func (f *lockedFlow) GetShippingAddress(ctx context.Context, accountEmail string) (mandate.ContactAddress, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.session.GetShippingAddress(ctx, accountEmail)
}

func (f *lockedFlow) SearchPaymentMethods(ctx context.Context) ([]string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.session.SearchPaymentMethods(ctx)
}

func (f *lockedFlow) CreatePaymentCredentialToken(ctx context.Context, paymentMethodAlias string) (mandate.TokenReference, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.session.CreatePaymentCredentialToken(ctx, paymentMethodAlias)
}

func (f *lockedFlow) UpdateCart(ctx context.Context) (mandate.CartMandate, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.session.UpdateCart(ctx)
}

func (f *lockedFlow) CreatePaymentMandate(ctx context.Context) (mandate.PaymentMandate, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.session.CreatePaymentMandate(ctx)
}

func (f *lockedFlow) SignMandates() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.session.SignMandates()
}

func (f *lockedFlow) SendSignedPaymentMandate(ctx context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.session.SendSignedPaymentMandate(ctx)
}

func (f *lockedFlow) InitiatePayment(ctx context.Context) (flow.Outcome, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.session.InitiatePayment(ctx)
}

func (f *lockedFlow) InitiatePaymentWithOTP(ctx context.Context, otp string) (flow.Outcome, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.session.InitiatePaymentWithOTP(ctx, otp)
}
