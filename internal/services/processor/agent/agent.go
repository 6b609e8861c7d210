// Package agent exposes the merchant payment processor as an agent
// endpoint.
//
// The processor owns the step-up challenge for a payment: the first
// initiate_payment message for a task raises an OTP challenge and suspends,
// the continuation validates the response, redeems the payment credential
// token with the credentials provider, and settles the payment with a
// receipt delivered both to the credentials provider and to the caller.
package agent

import (
	"context"
	"fmt"
	"time"

	"github.com/louisbranch/agentpay/internal/a2a"
	"github.com/louisbranch/agentpay/internal/errors"
	"github.com/louisbranch/agentpay/internal/mandate"
	"github.com/louisbranch/agentpay/internal/platform/id"
	credentialsagent "github.com/louisbranch/agentpay/internal/services/credentials/agent"
	"github.com/louisbranch/agentpay/internal/services/credentials/vault"
)

// OpInitiatePayment is the single operation the processor accepts.
const OpInitiatePayment = "initiate_payment"

// ChallengeCode is the fixed OTP a demo payment must present. The
// challenge would normally come from the card issuer; the demo has no
// issuer, so the processor plays that role.
const ChallengeCode = "123"

const challengeDisplayText = "支払い方法の発行者が、登録されている電話番号宛てに認証コードを送信しました。" +
	"取引を承認するため、コードを発行者と共有する必要がありますので、以下に入力してください。" +
	"（デモ用ヒント：コードは 123 です）"

// Agent implements the payment processor operations.
type Agent struct {
	newClient func(baseURL string) *a2a.Client
	now       func() time.Time
}

// New wires a payment processor agent.
func New() *Agent {
	return &Agent{
		newClient: func(baseURL string) *a2a.Client {
			return a2a.NewClient(a2a.ClientConfig{
				Name:               "credentials_provider",
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
		Name:        "merchant_payment_processor",
		Description: "Settles payments authorized by a payment mandate.",
		Version:     "1.0.0",
		Extensions:  []string{mandate.ExtensionURI},
	}
}

// Handler returns the agent endpoint handler with all operations registered.
func (a *Agent) Handler(store a2a.TaskStore) *a2a.Handler {
	h := a2a.NewHandler(a.Card(), store)
	h.Register(OpInitiatePayment, a.initiatePayment)
	return h
}

func (a *Agent) initiatePayment(ctx context.Context, req *a2a.RequestContext, updater *a2a.TaskUpdater) error {
	pm, err := a2a.ParseCanonicalObject[mandate.PaymentMandate](mandate.PaymentMandateKey, req.Parts)
	if err != nil {
		return err
	}

	// A fresh task has no challenge outstanding yet: raise one and
	// suspend. The continuation arrives on the same task id.
	if req.PriorTask == nil {
		return a.raiseChallenge(ctx, updater)
	}
	if req.PriorTask.Status.State != a2a.TaskStateInputRequired {
		return errors.WithMetadata(errors.CodeValidation, "no challenge outstanding for task",
			map[string]string{"state": string(req.PriorTask.Status.State)})
	}

	response, _ := a2a.FindStringPart(mandate.ChallengeResponseKey, req.Parts)
	if response != ChallengeCode {
		msg, err := updater.NewAgentMessage(a2a.TextPart("Challenge response incorrect."))
		if err != nil {
			return err
		}
		return updater.RequiresInput(ctx, msg)
	}

	return a.completePayment(ctx, updater, pm)
}

func (a *Agent) raiseChallenge(ctx context.Context, updater *a2a.TaskUpdater) error {
	challenge := map[string]any{
		"type":         "otp",
		"display_text": challengeDisplayText,
	}
	msg, err := updater.NewAgentMessage(
		a2a.TextPart("Please provide the challenge response to complete the payment."),
		a2a.DataPart(mandate.ChallengeKey, challenge),
	)
	if err != nil {
		return err
	}
	return updater.RequiresInput(ctx, msg)
}

func (a *Agent) completePayment(ctx context.Context, updater *a2a.TaskUpdater, pm mandate.PaymentMandate) error {
	provider, err := a.credentialsProvider(pm)
	if err != nil {
		return err
	}
	if _, err := a.requestCredentials(ctx, provider, updater.ContextID(), pm); err != nil {
		return err
	}

	// The demo settles directly instead of calling an issuer.
	receipt, err := a.createReceipt(pm)
	if err != nil {
		return err
	}
	if err := a.sendReceipt(ctx, provider, updater.ContextID(), receipt); err != nil {
		return err
	}

	if err := updater.AddArtifact(ctx, a2a.DataPart(mandate.PaymentReceiptKey, receipt)); err != nil {
		return err
	}
	msg, err := updater.NewAgentMessage(a2a.TextPart("Payment completed."))
	if err != nil {
		return err
	}
	return updater.Complete(ctx, msg)
}

// credentialsProvider resolves the provider endpoint from the token
// reference inside the payment mandate.
func (a *Agent) credentialsProvider(pm mandate.PaymentMandate) (*a2a.Client, error) {
	reference := pm.PaymentMandateContents.PaymentResponse.Details.Token
	if reference == nil || reference.URL == "" {
		return nil, errors.New(errors.CodeMissingField, "payment mandate token carries no credentials provider url")
	}
	return a.newClient(reference.URL), nil
}

func (a *Agent) requestCredentials(ctx context.Context, provider *a2a.Client, contextID string, pm mandate.PaymentMandate) (vault.PaymentMethod, error) {
	msg, err := a2a.NewMessageBuilder().
		AddText(credentialsagent.OpRawCredentials).
		AddData(mandate.PaymentMandateKey, pm).
		SetContextID(contextID).
		Build()
	if err != nil {
		return vault.PaymentMethod{}, err
	}
	task, err := provider.Send(ctx, msg)
	if err != nil {
		return vault.PaymentMethod{}, err
	}
	if task.Status.State != a2a.TaskStateCompleted {
		return vault.PaymentMethod{}, errors.WithMetadata(errors.CodeInvalidToken,
			"credentials provider refused to release the payment method",
			map[string]string{"state": string(task.Status.State)})
	}
	methods, err := a2a.FindCanonicalObjects[vault.PaymentMethod](task.Artifacts, mandate.PaymentMethodKey)
	if err != nil {
		return vault.PaymentMethod{}, err
	}
	return a2a.Only(methods)
}

func (a *Agent) createReceipt(pm mandate.PaymentMandate) (mandate.PaymentReceipt, error) {
	paymentID, err := id.NewPrefixedID("pay")
	if err != nil {
		return mandate.PaymentReceipt{}, fmt.Errorf("generate payment id: %w", err)
	}
	receipt := mandate.PaymentReceipt{
		PaymentMandateID: pm.PaymentMandateContents.PaymentMandateID,
		Timestamp:        a.now().UTC(),
		PaymentID:        paymentID,
		Amount:           pm.PaymentMandateContents.PaymentDetailsTotal.Amount,
		Success: &mandate.PaymentSuccess{
			MerchantConfirmationID: paymentID,
			PSPConfirmationID:      paymentID,
		},
		MethodName: pm.PaymentMandateContents.PaymentResponse.MethodName,
	}
	if err := receipt.Validate(); err != nil {
		return mandate.PaymentReceipt{}, err
	}
	return receipt, nil
}

func (a *Agent) sendReceipt(ctx context.Context, provider *a2a.Client, contextID string, receipt mandate.PaymentReceipt) error {
	msg, err := a2a.NewMessageBuilder().
		AddText(credentialsagent.OpPaymentReceipt).
		AddData(mandate.PaymentReceiptKey, receipt).
		SetContextID(contextID).
		Build()
	if err != nil {
		return err
	}
	task, err := provider.Send(ctx, msg)
	if err != nil {
		return err
	}
	if task.Status.State != a2a.TaskStateCompleted {
		return errors.WithMetadata(errors.CodeUnknown, "credentials provider did not record the receipt",
			map[string]string{"state": string(task.Status.State)})
	}
	return nil
}
