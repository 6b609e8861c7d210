// Package agent exposes the merchant as an agent endpoint.
//
// The merchant offers carts against shopper intents, finalizes a chosen
// cart with shipping costs and its authorization signature, and relays
// payment initiation to the payment processor integrated for the chosen
// payment method.
package agent

import (
	"context"
	stderrors "errors"
	"fmt"
	"time"

	"github.com/louisbranch/agentpay/internal/a2a"
	"github.com/louisbranch/agentpay/internal/errors"
	"github.com/louisbranch/agentpay/internal/mandate"
	"github.com/louisbranch/agentpay/internal/services/merchant/catalog"
	"github.com/louisbranch/agentpay/internal/services/merchant/storage"
	"github.com/louisbranch/agentpay/internal/signing"
)

// Operation names accepted by the merchant endpoint.
const (
	OpFindProducts    = "find_products"
	OpUpdateCart      = "update_cart"
	OpInitiatePayment = "initiate_payment"
)

// Finalizing a cart adds flat shipping and tax line items.
const (
	ShippingCost int64 = 400
	TaxCost      int64 = 350
)

// riskDataPayload is the opaque risk signal attached to offers. A real
// merchant would assemble this from device and session signals.
const riskDataPayload = "eyJhbGciOiJIUzI1NiIsInR5cCI6IkpXVCJ9...fake_risk_data"

// Agent implements the merchant operations.
type Agent struct {
	store storage.Store
	// signer produces the merchant authorization attached to finalized
	// carts.
	signer *signing.Signer
	// processors routes payment method names to processor endpoints.
	processors map[string]string
	newClient  func(baseURL string) *a2a.Client
	now        func() time.Time
}

// New wires a merchant agent. processors maps payment method names (for
// example "CARD") to the endpoints of integrated payment processors.
func New(store storage.Store, signer *signing.Signer, processors map[string]string) *Agent {
	return &Agent{
		store:      store,
		signer:     signer,
		processors: processors,
		newClient: func(baseURL string) *a2a.Client {
			return a2a.NewClient(a2a.ClientConfig{
				Name:               "payment_processor",
				BaseURL:            baseURL,
				RequiredExtensions: []string{mandate.ExtensionURI},
			})
		},
		now: time.Now,
	}
}

// Card describes this agent endpoint.
func (a *Agent) Card() a2a.AgentCard {
	return a2a.AgentCard{
		Name:        "merchant_agent",
		Description: "Offers products and finalizes carts on behalf of partner merchants.",
		Version:     "1.0.0",
		Extensions:  []string{mandate.ExtensionURI},
	}
}

// Handler returns the agent endpoint handler with all operations registered.
func (a *Agent) Handler(store a2a.TaskStore) *a2a.Handler {
	h := a2a.NewHandler(a.Card(), store)
	h.Register(OpFindProducts, a.findProducts)
	h.Register(OpUpdateCart, a.updateCart)
	h.Register(OpInitiatePayment, a.initiatePayment)
	return h
}

func (a *Agent) findProducts(ctx context.Context, req *a2a.RequestContext, updater *a2a.TaskUpdater) error {
	intent, err := a2a.ParseCanonicalObject[mandate.IntentMandate](mandate.IntentMandateKey, req.Parts)
	if err != nil {
		return err
	}
	if intent.Expired(a.now()) {
		return errors.New(errors.CodeValidation, "intent mandate has expired")
	}

	carts, err := catalog.BuildOffers(a.now())
	if err != nil {
		return err
	}
	for _, cart := range carts {
		record := storage.CartRecord{
			CartID:    cart.Contents.ID,
			Cart:      cart,
			UpdatedAt: a.now().UTC(),
		}
		if err := a.store.PutCart(ctx, record); err != nil {
			return errors.Wrap(errors.CodeUnknown, "store cart offer", err)
		}
		if err := updater.AddArtifact(ctx, a2a.DataPart(mandate.CartMandateKey, cart)); err != nil {
			return err
		}
	}

	if err := a.store.PutRiskData(ctx, updater.ContextID(), riskDataPayload); err != nil {
		return errors.Wrap(errors.CodeUnknown, "store risk data", err)
	}
	if err := updater.AddArtifact(ctx, a2a.DataPart(mandate.RiskDataKey, riskDataPayload)); err != nil {
		return err
	}
	return a.complete(ctx, updater, fmt.Sprintf("Found %d matching offers.", len(carts)))
}

func (a *Agent) updateCart(ctx context.Context, req *a2a.RequestContext, updater *a2a.TaskUpdater) error {
	cartID, ok := a2a.FindStringPart(mandate.CartIDKey, req.Parts)
	if !ok {
		return errors.New(errors.CodeMissingField, "missing cart_id")
	}
	address, err := a2a.ParseCanonicalObject[mandate.ContactAddress](mandate.ShippingAddressKey, req.Parts)
	if err != nil {
		return err
	}

	record, err := a.store.GetCart(ctx, cartID)
	if stderrors.Is(err, storage.ErrNotFound) {
		return errors.WithMetadata(errors.CodeNotFound,
			fmt.Sprintf("cart not found for cart_id: %s", cartID),
			map[string]string{"cart_id": cartID})
	}
	if err != nil {
		return errors.Wrap(errors.CodeUnknown, "load cart", err)
	}
	riskData, err := a.store.GetRiskData(ctx, updater.ContextID())
	if stderrors.Is(err, storage.ErrNotFound) {
		return errors.New(errors.CodeMissingField,
			fmt.Sprintf("missing risk data for context: %s", updater.ContextID()))
	}
	if err != nil {
		return errors.Wrap(errors.CodeUnknown, "load risk data", err)
	}

	cart := record.Cart
	// Re-delivery of the finalize message returns the stored cart
	// unchanged; shipping and tax are never added twice.
	if cart.Finalized() {
		return a.emitCart(ctx, updater, cart, riskData)
	}
	if cart.Expired(a.now()) {
		return errors.WithMetadata(errors.CodeValidation, "cart offer has expired",
			map[string]string{"cart_id": cartID})
	}

	currency := cart.Contents.PaymentRequest.Details.Total.Amount.Currency
	cart.Contents.PaymentRequest.ShippingAddress = &address
	cart.Contents.PaymentRequest.Details.DisplayItems = append(
		cart.Contents.PaymentRequest.Details.DisplayItems,
		mandate.PaymentItem{
			Label:  "Shipping",
			Amount: mandate.CurrencyAmount{Currency: currency, Value: ShippingCost},
		},
		mandate.PaymentItem{
			Label:  "Tax",
			Amount: mandate.CurrencyAmount{Currency: currency, Value: TaxCost},
		},
	)
	cart.Contents.PaymentRequest.Details.Total.Amount.Value = cart.Contents.ItemTotal()

	authorization, err := a.signer.SignCart(cart)
	if err != nil {
		return errors.Wrap(errors.CodeUnknown, "sign cart", err)
	}
	cart.MerchantAuthorization = authorization
	if err := cart.Validate(); err != nil {
		return err
	}

	record.Cart = cart
	record.UpdatedAt = a.now().UTC()
	if err := a.store.PutCart(ctx, record); err != nil {
		return errors.Wrap(errors.CodeUnknown, "store finalized cart", err)
	}
	return a.emitCart(ctx, updater, cart, riskData)
}

func (a *Agent) emitCart(ctx context.Context, updater *a2a.TaskUpdater, cart mandate.CartMandate, riskData string) error {
	if err := updater.AddArtifact(ctx,
		a2a.DataPart(mandate.CartMandateKey, cart),
		a2a.DataPart(mandate.RiskDataKey, riskData),
	); err != nil {
		return err
	}
	return a.complete(ctx, updater, "Cart updated.")
}

func (a *Agent) initiatePayment(ctx context.Context, req *a2a.RequestContext, updater *a2a.TaskUpdater) error {
	pm, err := a2a.ParseCanonicalObject[mandate.PaymentMandate](mandate.PaymentMandateKey, req.Parts)
	if err != nil {
		return err
	}
	riskData, ok := a2a.FindStringPart(mandate.RiskDataKey, req.Parts)
	if !ok {
		return errors.New(errors.CodeMissingField, "missing risk_data")
	}

	method := pm.PaymentMandateContents.PaymentResponse.MethodName
	processorURL, ok := a.processors[method]
	if !ok {
		return errors.WithMetadata(errors.CodeUnsupportedOperation,
			fmt.Sprintf("no payment processor found for method: %s", method),
			map[string]string{"method_name": method})
	}

	builder := a2a.NewMessageBuilder().
		AddText(OpInitiatePayment).
		AddData(mandate.PaymentMandateKey, pm).
		AddData(mandate.RiskDataKey, riskData).
		SetContextID(updater.ContextID())
	if response, ok := a2a.FindStringPart(mandate.ChallengeResponseKey, req.Parts); ok && response != "" {
		builder.AddData(mandate.ChallengeResponseKey, response)
	}
	// A continued payment resumes the processor's own task, recovered from
	// this task's history.
	if processorTaskID := a2a.CounterpartyTaskID(req.PriorTask); processorTaskID != "" {
		builder.SetTaskID(processorTaskID)
	}
	msg, err := builder.Build()
	if err != nil {
		return err
	}

	task, err := a.newClient(processorURL).Send(ctx, msg)
	if err != nil {
		return err
	}

	// Pass any payment receipt back to the shopper.
	receipts, err := a2a.FindCanonicalObjects[mandate.PaymentReceipt](task.Artifacts, mandate.PaymentReceiptKey)
	if err != nil {
		return err
	}
	if len(receipts) > 0 {
		receipt, err := a2a.Only(receipts)
		if err != nil {
			return err
		}
		if err := updater.AddArtifact(ctx, a2a.DataPart(mandate.PaymentReceiptKey, receipt)); err != nil {
			return err
		}
	}

	return a.mirrorStatus(ctx, updater, task)
}

// mirrorStatus applies the processor task's outcome to the local task. The
// processor's status message is appended verbatim so its task id lands in
// this task's history, which is what later continuation messages use to
// find the processor task again.
func (a *Agent) mirrorStatus(ctx context.Context, updater *a2a.TaskUpdater, task a2a.Task) error {
	switch task.Status.State {
	case a2a.TaskStateCompleted:
		return updater.Complete(ctx, task.Status.Message)
	case a2a.TaskStateInputRequired:
		return updater.RequiresInput(ctx, task.Status.Message)
	case a2a.TaskStateFailed:
		return updater.Failed(ctx, task.Status.Message)
	default:
		return errors.WithMetadata(errors.CodeUnknown, "unexpected processor task state",
			map[string]string{"state": string(task.Status.State)})
	}
}

func (a *Agent) complete(ctx context.Context, updater *a2a.TaskUpdater, text string) error {
	msg, err := updater.NewAgentMessage(a2a.TextPart(text))
	if err != nil {
		return err
	}
	return updater.Complete(ctx, msg)
}
