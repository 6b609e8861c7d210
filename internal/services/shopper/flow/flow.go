// Package flow drives a purchase end to end from the shopper's side.
//
// A Session accumulates the state a purchase needs (intent, offered carts,
// shipping address, credential token, payment mandate) and enforces the
// sequencing contract between steps: each step checks that its inputs were
// produced by an earlier step before sending anything over the wire.
package flow

import (
	"context"
	"time"

	"github.com/louisbranch/agentpay/internal/a2a"
	"github.com/louisbranch/agentpay/internal/errors"
	"github.com/louisbranch/agentpay/internal/mandate"
	"github.com/louisbranch/agentpay/internal/platform/id"
	credentialsagent "github.com/louisbranch/agentpay/internal/services/credentials/agent"
	merchantagent "github.com/louisbranch/agentpay/internal/services/merchant/agent"
	"github.com/louisbranch/agentpay/internal/signing"
)

// ShoppingAgentID identifies this shopper to merchants.
const ShoppingAgentID = "trusted_shopping_agent"

// Config wires a purchase session to its counterparties.
type Config struct {
	Merchant    *a2a.Client
	Credentials *a2a.Client
	// Signer stands in for the user's device when mandates are signed.
	Signer *signing.Signer
	Now    func() time.Time
}

// Session is one purchase in progress. Not safe for concurrent use; a
// session belongs to a single conversation.
type Session struct {
	merchant    *a2a.Client
	credentials *a2a.Client
	signer      *signing.Signer
	now         func() time.Time

	intent *mandate.IntentMandate
	// shoppingContextID groups every merchant message of this purchase.
	shoppingContextID string
	riskData          string
	carts             []mandate.CartMandate
	chosenCart        *mandate.CartMandate
	accountEmail      string
	shippingAddress   *mandate.ContactAddress
	tokenReference    *mandate.TokenReference
	paymentMandate    *mandate.PaymentMandate
	// paymentTaskID is the merchant task settling the payment, kept so an
	// OTP retry continues the same task.
	paymentTaskID string
}

// NewSession starts an empty purchase session.
func NewSession(cfg Config) *Session {
	now := cfg.Now
	if now == nil {
		now = time.Now
	}
	return &Session{
		merchant:    cfg.Merchant,
		credentials: cfg.Credentials,
		signer:      cfg.Signer,
		now:         now,
	}
}

// CreateIntent records the user's shopping intent.
func (s *Session) CreateIntent(description string, merchants, skus []string, requiresRefundability bool) (mandate.IntentMandate, error) {
	intent, err := mandate.NewIntentMandate(description, true, merchants, skus, requiresRefundability, s.now())
	if err != nil {
		return mandate.IntentMandate{}, err
	}
	s.intent = &intent
	return intent, nil
}

// FindProducts asks the merchant for offers matching the intent.
func (s *Session) FindProducts(ctx context.Context) ([]mandate.CartMandate, error) {
	if s.intent == nil {
		return nil, errors.New(errors.CodeValidation, "no intent mandate created yet")
	}

	msg, err := a2a.NewMessageBuilder().
		AddText(merchantagent.OpFindProducts).
		AddData(mandate.IntentMandateKey, s.intent).
		AddData(mandate.ShoppingAgentIDKey, ShoppingAgentID).
		Build()
	if err != nil {
		return nil, err
	}
	task, err := s.merchant.Send(ctx, msg)
	if err != nil {
		return nil, err
	}
	if task.Status.State != a2a.TaskStateCompleted {
		return nil, taskError("find products", task)
	}

	carts, err := a2a.FindCanonicalObjects[mandate.CartMandate](task.Artifacts, mandate.CartMandateKey)
	if err != nil {
		return nil, err
	}
	if len(carts) == 0 {
		return nil, errors.New(errors.CodeNotFound, "merchant offered no carts")
	}
	riskData := findRiskData(task.Artifacts)
	if riskData == "" {
		return nil, errors.New(errors.CodeMissingField, "merchant offered no risk data")
	}

	s.shoppingContextID = task.ContextID
	s.carts = carts
	s.riskData = riskData
	return carts, nil
}

// SelectCart picks one of the offered carts by cart id.
func (s *Session) SelectCart(cartID string) error {
	for i := range s.carts {
		if s.carts[i].Contents.ID == cartID {
			cart := s.carts[i]
			s.chosenCart = &cart
			return nil
		}
	}
	return errors.WithMetadata(errors.CodeNotFound, "no offered cart matches the id",
		map[string]string{"cart_id": cartID})
}

// GetShippingAddress fetches the user's shipping address from the
// credentials provider and records the account for later steps.
func (s *Session) GetShippingAddress(ctx context.Context, accountEmail string) (mandate.ContactAddress, error) {
	msg, err := a2a.NewMessageBuilder().
		AddText(credentialsagent.OpShippingAddress).
		AddData(mandate.AccountEmailKey, accountEmail).
		Build()
	if err != nil {
		return mandate.ContactAddress{}, err
	}
	task, err := s.credentials.Send(ctx, msg)
	if err != nil {
		return mandate.ContactAddress{}, err
	}
	if task.Status.State != a2a.TaskStateCompleted {
		return mandate.ContactAddress{}, taskError("get shipping address", task)
	}

	addresses, err := a2a.FindCanonicalObjects[mandate.ContactAddress](task.Artifacts, mandate.ShippingAddressKey)
	if err != nil {
		return mandate.ContactAddress{}, err
	}
	address, err := a2a.Only(addresses)
	if err != nil {
		return mandate.ContactAddress{}, err
	}
	s.accountEmail = accountEmail
	s.shippingAddress = &address
	return address, nil
}

// SearchPaymentMethods asks the credentials provider which stored payment
// methods can pay for the chosen cart.
func (s *Session) SearchPaymentMethods(ctx context.Context) ([]string, error) {
	if s.chosenCart == nil {
		return nil, errors.New(errors.CodeValidation, "no cart selected yet")
	}
	if s.accountEmail == "" {
		return nil, errors.New(errors.CodeValidation, "no account linked yet")
	}

	msg, err := a2a.NewMessageBuilder().
		AddText(credentialsagent.OpSearchMethods).
		AddData(mandate.AccountEmailKey, s.accountEmail).
		AddData(mandate.CartMandateKey, s.chosenCart).
		Build()
	if err != nil {
		return nil, err
	}
	task, err := s.credentials.Send(ctx, msg)
	if err != nil {
		return nil, err
	}
	if task.Status.State != a2a.TaskStateCompleted {
		return nil, taskError("search payment methods", task)
	}

	var aliases []string
	for _, artifact := range task.Artifacts {
		value, ok := a2a.FindDataPart(mandate.PaymentMethodAliasesKey, artifact.Parts)
		if !ok {
			continue
		}
		list, ok := value.([]any)
		if !ok {
			continue
		}
		for _, entry := range list {
			if alias, ok := entry.(string); ok {
				aliases = append(aliases, alias)
			}
		}
	}
	return aliases, nil
}

// CreatePaymentCredentialToken asks the credentials provider to issue a
// token for the chosen payment method alias.
func (s *Session) CreatePaymentCredentialToken(ctx context.Context, paymentMethodAlias string) (mandate.TokenReference, error) {
	if s.accountEmail == "" {
		return mandate.TokenReference{}, errors.New(errors.CodeValidation, "no account linked yet")
	}

	msg, err := a2a.NewMessageBuilder().
		AddText(credentialsagent.OpCreateToken).
		AddData(mandate.AccountEmailKey, s.accountEmail).
		AddData(mandate.PaymentMethodAliasKey, paymentMethodAlias).
		Build()
	if err != nil {
		return mandate.TokenReference{}, err
	}
	task, err := s.credentials.Send(ctx, msg)
	if err != nil {
		return mandate.TokenReference{}, err
	}
	if task.Status.State != a2a.TaskStateCompleted {
		return mandate.TokenReference{}, taskError("create payment credential token", task)
	}

	references, err := a2a.FindCanonicalObjects[mandate.TokenReference](task.Artifacts, mandate.CredentialTokenKey)
	if err != nil {
		return mandate.TokenReference{}, err
	}
	reference, err := a2a.Only(references)
	if err != nil {
		return mandate.TokenReference{}, err
	}
	s.tokenReference = &reference
	return reference, nil
}

// UpdateCart finalizes the chosen cart with the shipping address. The
// merchant answers with the re-priced, signed cart, which replaces the
// session's chosen cart after its signature and totals check out.
func (s *Session) UpdateCart(ctx context.Context) (mandate.CartMandate, error) {
	if s.chosenCart == nil {
		return mandate.CartMandate{}, errors.New(errors.CodeValidation, "no cart selected yet")
	}
	if s.shippingAddress == nil {
		return mandate.CartMandate{}, errors.New(errors.CodeValidation, "no shipping address collected yet")
	}

	msg, err := a2a.NewMessageBuilder().
		AddText(merchantagent.OpUpdateCart).
		AddData(mandate.CartIDKey, s.chosenCart.Contents.ID).
		AddData(mandate.ShippingAddressKey, s.shippingAddress).
		SetContextID(s.shoppingContextID).
		Build()
	if err != nil {
		return mandate.CartMandate{}, err
	}
	task, err := s.merchant.Send(ctx, msg)
	if err != nil {
		return mandate.CartMandate{}, err
	}
	if task.Status.State != a2a.TaskStateCompleted {
		return mandate.CartMandate{}, taskError("update cart", task)
	}

	carts, err := a2a.FindCanonicalObjects[mandate.CartMandate](task.Artifacts, mandate.CartMandateKey)
	if err != nil {
		return mandate.CartMandate{}, err
	}
	cart, err := a2a.Only(carts)
	if err != nil {
		return mandate.CartMandate{}, err
	}
	if !cart.Finalized() {
		return mandate.CartMandate{}, errors.New(errors.CodeValidation, "merchant returned an unsigned cart")
	}
	if err := s.signer.VerifyCart(cart.MerchantAuthorization, cart); err != nil {
		return mandate.CartMandate{}, err
	}
	if riskData := findRiskData(task.Artifacts); riskData != "" {
		s.riskData = riskData
	}

	s.chosenCart = &cart
	return cart, nil
}

// CreatePaymentMandate builds the payment mandate for the finalized cart
// and the issued credential token.
func (s *Session) CreatePaymentMandate(ctx context.Context) (mandate.PaymentMandate, error) {
	if s.chosenCart == nil || !s.chosenCart.Finalized() {
		return mandate.PaymentMandate{}, errors.New(errors.CodeValidation, "cart is not finalized yet")
	}
	if s.tokenReference == nil {
		return mandate.PaymentMandate{}, errors.New(errors.CodeValidation, "no credential token issued yet")
	}

	mandateID, err := id.NewPrefixedID("pm")
	if err != nil {
		return mandate.PaymentMandate{}, err
	}
	methodName := "CARD"
	if data := s.chosenCart.Contents.PaymentRequest.MethodData; len(data) > 0 {
		methodName = data[0].SupportedMethods
	}
	response := mandate.PaymentResponse{
		MethodName: methodName,
		Details: mandate.PaymentMethodDetails{
			Token: s.tokenReference,
		},
		ShippingAddress: s.shippingAddress,
	}
	pm, err := mandate.NewPaymentMandate(mandateID, *s.chosenCart, response, s.now())
	if err != nil {
		return mandate.PaymentMandate{}, err
	}
	s.paymentMandate = &pm
	return pm, nil
}

// SignMandates attaches the user authorization to the payment mandate, the
// step that would happen on the user's device.
func (s *Session) SignMandates() error {
	if s.paymentMandate == nil {
		return errors.New(errors.CodeValidation, "no payment mandate created yet")
	}
	authorization, err := s.signer.SignPaymentMandate(*s.paymentMandate)
	if err != nil {
		return err
	}
	s.paymentMandate.UserAuthorization = authorization
	return nil
}

// SendSignedPaymentMandate delivers the signed payment mandate to the
// credentials provider, binding the credential token to it.
func (s *Session) SendSignedPaymentMandate(ctx context.Context) error {
	if s.paymentMandate == nil || s.paymentMandate.UserAuthorization == "" {
		return errors.New(errors.CodeValidation, "payment mandate is not signed yet")
	}

	msg, err := a2a.NewMessageBuilder().
		AddText(credentialsagent.OpSignedPaymentMandate).
		AddData(mandate.PaymentMandateKey, s.paymentMandate).
		Build()
	if err != nil {
		return err
	}
	task, err := s.credentials.Send(ctx, msg)
	if err != nil {
		return err
	}
	if task.Status.State != a2a.TaskStateCompleted {
		return taskError("send signed payment mandate", task)
	}
	return nil
}

// Outcome reports how far a payment got.
type Outcome struct {
	State a2a.TaskState
	// ChallengeText is the instruction to show the user when the payment
	// suspended on a challenge.
	ChallengeText string
	// Receipt is present when the payment completed.
	Receipt *mandate.PaymentReceipt
	// FailureReason is present when the payment failed.
	FailureReason string
}

// InitiatePayment starts the payment through the merchant. It usually
// suspends on a challenge; call InitiatePaymentWithOTP to continue.
func (s *Session) InitiatePayment(ctx context.Context) (Outcome, error) {
	return s.sendPayment(ctx, "")
}

// InitiatePaymentWithOTP retries the payment with the user's challenge
// response, continuing the suspended merchant task.
func (s *Session) InitiatePaymentWithOTP(ctx context.Context, otp string) (Outcome, error) {
	if s.paymentTaskID == "" {
		return Outcome{}, errors.New(errors.CodeValidation, "no payment in progress")
	}
	return s.sendPayment(ctx, otp)
}

func (s *Session) sendPayment(ctx context.Context, challengeResponse string) (Outcome, error) {
	if s.paymentMandate == nil || s.paymentMandate.UserAuthorization == "" {
		return Outcome{}, errors.New(errors.CodeValidation, "payment mandate is not signed yet")
	}

	builder := a2a.NewMessageBuilder().
		AddText(merchantagent.OpInitiatePayment).
		AddData(mandate.PaymentMandateKey, s.paymentMandate).
		AddData(mandate.RiskDataKey, s.riskData).
		SetContextID(s.shoppingContextID)
	if challengeResponse != "" {
		builder.AddData(mandate.ChallengeResponseKey, challengeResponse)
	}
	if s.paymentTaskID != "" {
		builder.SetTaskID(s.paymentTaskID)
	}
	msg, err := builder.Build()
	if err != nil {
		return Outcome{}, err
	}
	task, err := s.merchant.Send(ctx, msg)
	if err != nil {
		return Outcome{}, err
	}
	s.paymentTaskID = task.ID

	outcome := Outcome{State: task.Status.State}
	switch task.Status.State {
	case a2a.TaskStateInputRequired:
		outcome.ChallengeText = challengeText(task.Status.Message)
	case a2a.TaskStateCompleted:
		receipts, err := a2a.FindCanonicalObjects[mandate.PaymentReceipt](task.Artifacts, mandate.PaymentReceiptKey)
		if err != nil {
			return Outcome{}, err
		}
		receipt, err := a2a.Only(receipts)
		if err != nil {
			return Outcome{}, err
		}
		outcome.Receipt = &receipt
	case a2a.TaskStateFailed:
		if task.Status.Message != nil {
			if text, ok := a2a.FindTextPart(task.Status.Message.Parts); ok {
				outcome.FailureReason = text
			}
		}
	}
	return outcome, nil
}

// challengeText extracts the user-facing challenge instruction from a
// suspension message, preferring the challenge payload's display text.
func challengeText(msg *a2a.Message) string {
	if msg == nil {
		return ""
	}
	if value, ok := a2a.FindDataPart(mandate.ChallengeKey, msg.Parts); ok {
		if challenge, ok := value.(map[string]any); ok {
			if text, ok := challenge["display_text"].(string); ok && text != "" {
				return text
			}
		}
	}
	text, _ := a2a.FindTextPart(msg.Parts)
	return text
}

func findRiskData(artifacts []a2a.Artifact) string {
	for _, artifact := range artifacts {
		if value, ok := a2a.FindStringPart(mandate.RiskDataKey, artifact.Parts); ok {
			return value
		}
	}
	return ""
}

func taskError(step string, task a2a.Task) error {
	reason := ""
	if task.Status.Message != nil {
		reason, _ = a2a.FindTextPart(task.Status.Message.Parts)
	}
	return errors.WithMetadata(errors.CodeUnknown, step+" did not complete", map[string]string{
		"state":  string(task.Status.State),
		"reason": reason,
	})
}
