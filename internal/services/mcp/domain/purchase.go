// Package domain defines the MCP tool surface over the purchase flow.
package domain

import (
	"context"
	"fmt"
	"time"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/louisbranch/agentpay/internal/mandate"
	"github.com/louisbranch/agentpay/internal/services/shopper/flow"
	"github.com/louisbranch/agentpay/internal/services/shopper/format"
)

// Flow is the purchase session surface the MCP tools drive. Satisfied by
// flow.Session; the hosting server serializes access.
type Flow interface {
	CreateIntent(description string, merchants, skus []string, requiresRefundability bool) (mandate.IntentMandate, error)
	FindProducts(ctx context.Context) ([]mandate.CartMandate, error)
	SelectCart(cartID string) error
	GetShippingAddress(ctx context.Context, accountEmail string) (mandate.ContactAddress, error)
	SearchPaymentMethods(ctx context.Context) ([]string, error)
	CreatePaymentCredentialToken(ctx context.Context, paymentMethodAlias string) (mandate.TokenReference, error)
	UpdateCart(ctx context.Context) (mandate.CartMandate, error)
	CreatePaymentMandate(ctx context.Context) (mandate.PaymentMandate, error)
	SignMandates() error
	SendSignedPaymentMandate(ctx context.Context) error
	InitiatePayment(ctx context.Context) (flow.Outcome, error)
	InitiatePaymentWithOTP(ctx context.Context, otp string) (flow.Outcome, error)
}

// IntentCreateInput represents the MCP tool input for intent creation.
type IntentCreateInput struct {
	Description           string `json:"description" jsonschema:"natural language description of what to buy"`
	RequiresRefundability bool   `json:"requires_refundability,omitempty" jsonschema:"whether only refundable offers qualify"`
}

// IntentCreateResult represents the MCP tool output for intent creation.
type IntentCreateResult struct {
	Description string `json:"description" jsonschema:"recorded shopping intent"`
	ExpiresAt   string `json:"expires_at" jsonschema:"RFC3339 timestamp when the intent lapses"`
}

// CartEntry summarizes one cart offer for tool output.
type CartEntry struct {
	CartID   string `json:"cart_id" jsonschema:"cart identifier used to select this offer"`
	Merchant string `json:"merchant" jsonschema:"merchant name"`
	Summary  string `json:"summary" jsonschema:"line items and total, one per line"`
}

// ProductSearchInput represents the MCP tool input for product search.
type ProductSearchInput struct{}

// ProductSearchResult represents the MCP tool output for product search.
type ProductSearchResult struct {
	Carts []CartEntry `json:"carts" jsonschema:"candidate cart offers"`
}

// CartSelectInput represents the MCP tool input for choosing a cart.
type CartSelectInput struct {
	CartID string `json:"cart_id" jsonschema:"cart identifier from search_products"`
}

// CartSelectResult represents the MCP tool output for choosing a cart.
type CartSelectResult struct {
	CartID string `json:"cart_id" jsonschema:"selected cart identifier"`
}

// ShippingAddressInput represents the MCP tool input for address lookup.
type ShippingAddressInput struct {
	AccountEmail string `json:"account_email" jsonschema:"credentials provider account email"`
}

// ShippingAddressResult represents the MCP tool output for address lookup.
type ShippingAddressResult struct {
	Address string `json:"address" jsonschema:"shipping address block, one line per component"`
}

// PaymentMethodSearchInput represents the MCP tool input for method search.
type PaymentMethodSearchInput struct{}

// PaymentMethodSearchResult represents the MCP tool output for method search.
type PaymentMethodSearchResult struct {
	Aliases []string `json:"aliases" jsonschema:"payment method aliases usable with the selected cart"`
}

// TokenCreateInput represents the MCP tool input for credential token creation.
type TokenCreateInput struct {
	PaymentMethodAlias string `json:"payment_method_alias" jsonschema:"alias from search_payment_methods"`
}

// TokenCreateResult represents the MCP tool output for credential token creation.
type TokenCreateResult struct {
	Token       string `json:"token" jsonschema:"opaque payment credential token"`
	ProviderURL string `json:"provider_url" jsonschema:"credentials provider endpoint that can redeem the token"`
}

// CartFinalizeInput represents the MCP tool input for cart finalization.
type CartFinalizeInput struct{}

// CartFinalizeResult represents the MCP tool output for cart finalization.
type CartFinalizeResult struct {
	CartID  string `json:"cart_id" jsonschema:"finalized cart identifier"`
	Summary string `json:"summary" jsonschema:"final line items including shipping and tax"`
	Total   string `json:"total" jsonschema:"final charge amount"`
}

// MandateSignInput represents the MCP tool input for mandate signing.
type MandateSignInput struct{}

// MandateSignResult represents the MCP tool output for mandate signing.
type MandateSignResult struct {
	PaymentMandateID string `json:"payment_mandate_id" jsonschema:"signed payment mandate identifier"`
}

// PaymentInitiateInput represents the MCP tool input for starting payment.
type PaymentInitiateInput struct{}

// OTPSubmitInput represents the MCP tool input for answering a challenge.
type OTPSubmitInput struct {
	OTP string `json:"otp" jsonschema:"one-time password shown to the user"`
}

// PaymentOutcomeResult represents the MCP tool output for payment attempts.
type PaymentOutcomeResult struct {
	State         string `json:"state" jsonschema:"payment task state (input-required, completed, failed)"`
	ChallengeText string `json:"challenge_text,omitempty" jsonschema:"instruction to show the user when a challenge is pending"`
	Receipt       string `json:"receipt,omitempty" jsonschema:"receipt summary when the payment completed"`
	FailureReason string `json:"failure_reason,omitempty" jsonschema:"failure description when the payment failed"`
}

// IntentCreateTool defines the MCP tool schema for intent creation.
func IntentCreateTool() *mcp.Tool {
	return &mcp.Tool{
		Name:        "create_intent",
		Description: "Records what the user wants to buy and starts a purchase",
	}
}

// ProductSearchTool defines the MCP tool schema for product search.
func ProductSearchTool() *mcp.Tool {
	return &mcp.Tool{
		Name:        "search_products",
		Description: "Asks the merchant for cart offers matching the intent",
	}
}

// CartSelectTool defines the MCP tool schema for choosing a cart.
func CartSelectTool() *mcp.Tool {
	return &mcp.Tool{
		Name:        "select_cart",
		Description: "Chooses one cart offer to purchase",
	}
}

// ShippingAddressTool defines the MCP tool schema for address lookup.
func ShippingAddressTool() *mcp.Tool {
	return &mcp.Tool{
		Name:        "get_shipping_address",
		Description: "Fetches the user's shipping address from the credentials provider",
	}
}

// PaymentMethodSearchTool defines the MCP tool schema for method search.
func PaymentMethodSearchTool() *mcp.Tool {
	return &mcp.Tool{
		Name:        "search_payment_methods",
		Description: "Lists payment methods usable with the selected cart",
	}
}

// TokenCreateTool defines the MCP tool schema for credential token creation.
func TokenCreateTool() *mcp.Tool {
	return &mcp.Tool{
		Name:        "create_payment_credential_token",
		Description: "Issues an opaque credential token for the chosen payment method",
	}
}

// CartFinalizeTool defines the MCP tool schema for cart finalization.
func CartFinalizeTool() *mcp.Tool {
	return &mcp.Tool{
		Name:        "finalize_cart",
		Description: "Sends the shipping address to the merchant and gets the signed final cart",
	}
}

// MandateSignTool defines the MCP tool schema for mandate signing.
func MandateSignTool() *mcp.Tool {
	return &mcp.Tool{
		Name:        "sign_payment_mandate",
		Description: "Builds, signs, and registers the payment mandate",
	}
}

// PaymentInitiateTool defines the MCP tool schema for starting payment.
func PaymentInitiateTool() *mcp.Tool {
	return &mcp.Tool{
		Name:        "initiate_payment",
		Description: "Starts the payment; usually suspends on an OTP challenge",
	}
}

// OTPSubmitTool defines the MCP tool schema for answering a challenge.
func OTPSubmitTool() *mcp.Tool {
	return &mcp.Tool{
		Name:        "submit_otp",
		Description: "Answers the pending payment challenge with the user's OTP",
	}
}

// IntentCreateHandler records the shopping intent.
func IntentCreateHandler(purchase Flow) mcp.ToolHandlerFor[IntentCreateInput, IntentCreateResult] {
	return func(_ context.Context, _ *mcp.CallToolRequest, input IntentCreateInput) (*mcp.CallToolResult, IntentCreateResult, error) {
		intent, err := purchase.CreateIntent(input.Description, nil, nil, input.RequiresRefundability)
		if err != nil {
			return nil, IntentCreateResult{}, fmt.Errorf("create intent: %w", err)
		}
		return nil, IntentCreateResult{
			Description: intent.NaturalLanguageDescription,
			ExpiresAt:   intent.IntentExpiry.Format(time.RFC3339),
		}, nil
	}
}

// ProductSearchHandler fetches cart offers from the merchant.
func ProductSearchHandler(purchase Flow) mcp.ToolHandlerFor[ProductSearchInput, ProductSearchResult] {
	return func(ctx context.Context, _ *mcp.CallToolRequest, _ ProductSearchInput) (*mcp.CallToolResult, ProductSearchResult, error) {
		carts, err := purchase.FindProducts(ctx)
		if err != nil {
			return nil, ProductSearchResult{}, fmt.Errorf("search products: %w", err)
		}
		result := ProductSearchResult{}
		for _, cart := range carts {
			result.Carts = append(result.Carts, CartEntry{
				CartID:   cart.Contents.ID,
				Merchant: cart.Contents.MerchantName,
				Summary:  format.CartSummary(cart),
			})
		}
		return nil, result, nil
	}
}

// CartSelectHandler chooses one cart offer.
func CartSelectHandler(purchase Flow) mcp.ToolHandlerFor[CartSelectInput, CartSelectResult] {
	return func(_ context.Context, _ *mcp.CallToolRequest, input CartSelectInput) (*mcp.CallToolResult, CartSelectResult, error) {
		if err := purchase.SelectCart(input.CartID); err != nil {
			return nil, CartSelectResult{}, fmt.Errorf("select cart: %w", err)
		}
		return nil, CartSelectResult{CartID: input.CartID}, nil
	}
}

// ShippingAddressHandler fetches the account's shipping address.
func ShippingAddressHandler(purchase Flow) mcp.ToolHandlerFor[ShippingAddressInput, ShippingAddressResult] {
	return func(ctx context.Context, _ *mcp.CallToolRequest, input ShippingAddressInput) (*mcp.CallToolResult, ShippingAddressResult, error) {
		address, err := purchase.GetShippingAddress(ctx, input.AccountEmail)
		if err != nil {
			return nil, ShippingAddressResult{}, fmt.Errorf("get shipping address: %w", err)
		}
		return nil, ShippingAddressResult{Address: format.Address(address)}, nil
	}
}

// PaymentMethodSearchHandler lists usable payment method aliases.
func PaymentMethodSearchHandler(purchase Flow) mcp.ToolHandlerFor[PaymentMethodSearchInput, PaymentMethodSearchResult] {
	return func(ctx context.Context, _ *mcp.CallToolRequest, _ PaymentMethodSearchInput) (*mcp.CallToolResult, PaymentMethodSearchResult, error) {
		aliases, err := purchase.SearchPaymentMethods(ctx)
		if err != nil {
			return nil, PaymentMethodSearchResult{}, fmt.Errorf("search payment methods: %w", err)
		}
		return nil, PaymentMethodSearchResult{Aliases: aliases}, nil
	}
}

// TokenCreateHandler issues a payment credential token.
func TokenCreateHandler(purchase Flow) mcp.ToolHandlerFor[TokenCreateInput, TokenCreateResult] {
	return func(ctx context.Context, _ *mcp.CallToolRequest, input TokenCreateInput) (*mcp.CallToolResult, TokenCreateResult, error) {
		reference, err := purchase.CreatePaymentCredentialToken(ctx, input.PaymentMethodAlias)
		if err != nil {
			return nil, TokenCreateResult{}, fmt.Errorf("create payment credential token: %w", err)
		}
		return nil, TokenCreateResult{Token: reference.Value, ProviderURL: reference.URL}, nil
	}
}

// CartFinalizeHandler finalizes the cart with the merchant.
func CartFinalizeHandler(purchase Flow) mcp.ToolHandlerFor[CartFinalizeInput, CartFinalizeResult] {
	return func(ctx context.Context, _ *mcp.CallToolRequest, _ CartFinalizeInput) (*mcp.CallToolResult, CartFinalizeResult, error) {
		cart, err := purchase.UpdateCart(ctx)
		if err != nil {
			return nil, CartFinalizeResult{}, fmt.Errorf("finalize cart: %w", err)
		}
		return nil, CartFinalizeResult{
			CartID:  cart.Contents.ID,
			Summary: format.CartSummary(cart),
			Total:   format.Amount(cart.Contents.PaymentRequest.Details.Total.Amount),
		}, nil
	}
}

// MandateSignHandler builds, signs, and registers the payment mandate.
func MandateSignHandler(purchase Flow) mcp.ToolHandlerFor[MandateSignInput, MandateSignResult] {
	return func(ctx context.Context, _ *mcp.CallToolRequest, _ MandateSignInput) (*mcp.CallToolResult, MandateSignResult, error) {
		pm, err := purchase.CreatePaymentMandate(ctx)
		if err != nil {
			return nil, MandateSignResult{}, fmt.Errorf("create payment mandate: %w", err)
		}
		if err := purchase.SignMandates(); err != nil {
			return nil, MandateSignResult{}, fmt.Errorf("sign mandates: %w", err)
		}
		if err := purchase.SendSignedPaymentMandate(ctx); err != nil {
			return nil, MandateSignResult{}, fmt.Errorf("send signed payment mandate: %w", err)
		}
		return nil, MandateSignResult{PaymentMandateID: pm.PaymentMandateContents.PaymentMandateID}, nil
	}
}

// PaymentInitiateHandler starts the payment through the merchant.
func PaymentInitiateHandler(purchase Flow) mcp.ToolHandlerFor[PaymentInitiateInput, PaymentOutcomeResult] {
	return func(ctx context.Context, _ *mcp.CallToolRequest, _ PaymentInitiateInput) (*mcp.CallToolResult, PaymentOutcomeResult, error) {
		outcome, err := purchase.InitiatePayment(ctx)
		if err != nil {
			return nil, PaymentOutcomeResult{}, fmt.Errorf("initiate payment: %w", err)
		}
		return nil, outcomeResult(outcome), nil
	}
}

// OTPSubmitHandler answers the pending challenge.
func OTPSubmitHandler(purchase Flow) mcp.ToolHandlerFor[OTPSubmitInput, PaymentOutcomeResult] {
	return func(ctx context.Context, _ *mcp.CallToolRequest, input OTPSubmitInput) (*mcp.CallToolResult, PaymentOutcomeResult, error) {
		outcome, err := purchase.InitiatePaymentWithOTP(ctx, input.OTP)
		if err != nil {
			return nil, PaymentOutcomeResult{}, fmt.Errorf("submit otp: %w", err)
		}
		return nil, outcomeResult(outcome), nil
	}
}

func outcomeResult(outcome flow.Outcome) PaymentOutcomeResult {
	result := PaymentOutcomeResult{
		State:         string(outcome.State),
		ChallengeText: outcome.ChallengeText,
		FailureReason: outcome.FailureReason,
	}
	if outcome.Receipt != nil {
		result.Receipt = format.ReceiptSummary(*outcome.Receipt)
	}
	return result
}
