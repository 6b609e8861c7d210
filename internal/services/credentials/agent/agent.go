// Package agent exposes the credentials provider as an agent endpoint.
//
// The credentials provider plays four roles in a purchase: it manages a
// user's payment methods and shipping address, finds usable payment methods
// for a cart, issues payment credential tokens, and releases raw credentials
// to a payment processor once a signed payment mandate has been bound.
package agent

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/louisbranch/agentpay/internal/a2a"
	"github.com/louisbranch/agentpay/internal/errors"
	"github.com/louisbranch/agentpay/internal/mandate"
	"github.com/louisbranch/agentpay/internal/services/credentials/storage"
	"github.com/louisbranch/agentpay/internal/services/credentials/token"
	"github.com/louisbranch/agentpay/internal/services/credentials/vault"
)

// Operation names accepted by the credentials provider endpoint.
const (
	OpCreateToken          = "create_payment_credential_token"
	OpRawCredentials       = "get_payment_method_raw_credentials"
	OpShippingAddress      = "get_shipping_address"
	OpSearchMethods        = "search_payment_methods"
	OpSignedPaymentMandate = "signed_payment_mandate"
	OpPaymentReceipt       = "payment_receipt"
)

// Agent implements the credentials provider operations.
type Agent struct {
	tokens   *token.Service
	vault    *vault.Vault
	receipts storage.ReceiptStore
	// baseURL is advertised inside issued token references so payment
	// processors know which provider can redeem a token.
	baseURL string
	now     func() time.Time
}

// New wires a credentials provider agent.
func New(tokens *token.Service, accountVault *vault.Vault, receipts storage.ReceiptStore, baseURL string) *Agent {
	return &Agent{
		tokens:   tokens,
		vault:    accountVault,
		receipts: receipts,
		baseURL:  baseURL,
		now:      time.Now,
	}
}

// SetBaseURL records the endpoint advertised inside issued token
// references. Called once the listener address is known.
func (a *Agent) SetBaseURL(baseURL string) {
	a.baseURL = baseURL
}

// Card describes this agent endpoint.
func (a *Agent) Card() a2a.AgentCard {
	return a2a.AgentCard{
		Name:        "credentials_provider",
		Description: "Manages payment credentials and shipping addresses on a user's behalf.",
		Version:     "1.0.0",
		Extensions:  []string{mandate.ExtensionURI},
	}
}

// Handler returns the agent endpoint handler with all operations registered.
func (a *Agent) Handler(store a2a.TaskStore) *a2a.Handler {
	h := a2a.NewHandler(a.Card(), store)
	h.Register(OpCreateToken, a.createToken)
	h.Register(OpRawCredentials, a.rawCredentials)
	h.Register(OpShippingAddress, a.shippingAddress)
	h.Register(OpSearchMethods, a.searchMethods)
	h.Register(OpSignedPaymentMandate, a.signedPaymentMandate)
	h.Register(OpPaymentReceipt, a.paymentReceipt)
	return h
}

func (a *Agent) createToken(ctx context.Context, req *a2a.RequestContext, updater *a2a.TaskUpdater) error {
	email, ok := a2a.FindStringPart(mandate.AccountEmailKey, req.Parts)
	if !ok {
		return errors.New(errors.CodeMissingField, "missing account_email")
	}
	alias, ok := a2a.FindStringPart(mandate.PaymentMethodAliasKey, req.Parts)
	if !ok {
		return errors.New(errors.CodeMissingField, "missing payment_method_alias")
	}

	value, err := a.tokens.Create(ctx, email, alias)
	if err != nil {
		return err
	}

	reference := mandate.TokenReference{Value: value, URL: a.baseURL}
	if err := updater.AddArtifact(ctx, a2a.DataPart(mandate.CredentialTokenKey, reference)); err != nil {
		return err
	}
	return a.complete(ctx, updater, "Payment credential token created.")
}

func (a *Agent) searchMethods(ctx context.Context, req *a2a.RequestContext, updater *a2a.TaskUpdater) error {
	email, ok := a2a.FindStringPart(mandate.AccountEmailKey, req.Parts)
	if !ok {
		return errors.New(errors.CodeMissingField, "missing account_email")
	}

	// When a cart accompanies the search, only methods the merchant
	// accepts are offered back.
	supported := map[string]bool{}
	if _, present := a2a.FindDataPart(mandate.CartMandateKey, req.Parts); present {
		cart, err := a2a.ParseCanonicalObject[mandate.CartMandate](mandate.CartMandateKey, req.Parts)
		if err != nil {
			return err
		}
		for _, methodData := range cart.Contents.PaymentRequest.MethodData {
			supported[methodData.SupportedMethods] = true
		}
	}

	var aliases []string
	for _, method := range a.vault.PaymentMethods(email) {
		if len(supported) > 0 && !supported[method.Type] {
			continue
		}
		aliases = append(aliases, method.Alias)
	}

	if err := updater.AddArtifact(ctx, a2a.DataPart(mandate.PaymentMethodAliasesKey, aliases)); err != nil {
		return err
	}
	return a.complete(ctx, updater, fmt.Sprintf("Found %d payment methods.", len(aliases)))
}

func (a *Agent) shippingAddress(ctx context.Context, req *a2a.RequestContext, updater *a2a.TaskUpdater) error {
	email, ok := a2a.FindStringPart(mandate.AccountEmailKey, req.Parts)
	if !ok {
		return errors.New(errors.CodeMissingField, "missing account_email")
	}

	address := a.vault.ShippingAddress(email)
	if address == nil {
		return errors.WithMetadata(errors.CodeNotFound, "no shipping address on file",
			map[string]string{"account_email": email})
	}

	if err := updater.AddArtifact(ctx, a2a.DataPart(mandate.ShippingAddressKey, address)); err != nil {
		return err
	}
	return a.complete(ctx, updater, "Shipping address retrieved.")
}

func (a *Agent) signedPaymentMandate(ctx context.Context, req *a2a.RequestContext, updater *a2a.TaskUpdater) error {
	pm, err := a2a.ParseCanonicalObject[mandate.PaymentMandate](mandate.PaymentMandateKey, req.Parts)
	if err != nil {
		return err
	}
	if pm.UserAuthorization == "" {
		return errors.New(errors.CodeValidation, "payment mandate is not signed")
	}
	reference := pm.PaymentMandateContents.PaymentResponse.Details.Token
	if reference == nil || reference.Value == "" {
		return errors.New(errors.CodeMissingField, "payment mandate carries no credential token")
	}

	if err := a.tokens.Bind(ctx, reference.Value, pm.PaymentMandateContents.PaymentMandateID); err != nil {
		return err
	}
	return a.complete(ctx, updater, "Payment mandate received.")
}

func (a *Agent) rawCredentials(ctx context.Context, req *a2a.RequestContext, updater *a2a.TaskUpdater) error {
	pm, err := a2a.ParseCanonicalObject[mandate.PaymentMandate](mandate.PaymentMandateKey, req.Parts)
	if err != nil {
		return err
	}
	reference := pm.PaymentMandateContents.PaymentResponse.Details.Token
	if reference == nil || reference.Value == "" {
		return errors.New(errors.CodeInvalidToken, "invalid token")
	}

	method, err := a.tokens.Redeem(ctx, reference.Value, pm.PaymentMandateContents.PaymentMandateID)
	if err != nil {
		return err
	}

	if err := updater.AddArtifact(ctx, a2a.DataPart(mandate.PaymentMethodKey, method)); err != nil {
		return err
	}
	return a.complete(ctx, updater, "Payment method credentials released.")
}

func (a *Agent) paymentReceipt(ctx context.Context, req *a2a.RequestContext, updater *a2a.TaskUpdater) error {
	receipt, err := a2a.ParseCanonicalObject[mandate.PaymentReceipt](mandate.PaymentReceiptKey, req.Parts)
	if err != nil {
		return err
	}

	payload, err := json.Marshal(receipt)
	if err != nil {
		return errors.Wrap(errors.CodeUnknown, "encode receipt", err)
	}
	archived := storage.ArchivedReceipt{
		PaymentID:        receipt.PaymentID,
		PaymentMandateID: receipt.PaymentMandateID,
		Currency:         receipt.Amount.Currency,
		Amount:           receipt.Amount.Value,
		Payload:          string(payload),
		ReceivedAt:       a.now().UTC(),
	}
	if err := a.receipts.PutReceipt(ctx, archived); err != nil {
		return errors.Wrap(errors.CodeUnknown, "archive receipt", err)
	}
	return a.complete(ctx, updater, "Payment receipt recorded.")
}

func (a *Agent) complete(ctx context.Context, updater *a2a.TaskUpdater, text string) error {
	msg, err := updater.NewAgentMessage(a2a.TextPart(text))
	if err != nil {
		return err
	}
	return updater.Complete(ctx, msg)
}
