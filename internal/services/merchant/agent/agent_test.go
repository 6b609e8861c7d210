package agent

import (
	"context"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/louisbranch/agentpay/internal/a2a"
	"github.com/louisbranch/agentpay/internal/mandate"
	"github.com/louisbranch/agentpay/internal/services/merchant/storage/sqlite"
	"github.com/louisbranch/agentpay/internal/signing"
)

type merchantFixture struct {
	client *a2a.Client
	signer *signing.Signer
}

func newMerchantFixture(t *testing.T, processors map[string]string) *merchantFixture {
	t.Helper()
	store, err := sqlite.Open(t.TempDir() + "/merchant.db")
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { _ = store.Close() })

	signer := signing.NewSigner("merchant-test-key", nil)
	a := New(store, signer, processors)
	srv := httptest.NewServer(a.Handler(a2a.NewMemoryTaskStore()).Routes())
	t.Cleanup(srv.Close)

	client := a2a.NewClient(a2a.ClientConfig{
		Name:               "merchant_agent",
		BaseURL:            srv.URL,
		RequiredExtensions: []string{mandate.ExtensionURI},
	})
	return &merchantFixture{client: client, signer: signer}
}

func (f *merchantFixture) send(t *testing.T, build func(*a2a.MessageBuilder)) a2a.Task {
	t.Helper()
	builder := a2a.NewMessageBuilder()
	build(builder)
	msg, err := builder.Build()
	if err != nil {
		t.Fatalf("build message: %v", err)
	}
	task, err := f.client.Send(context.Background(), msg)
	if err != nil {
		t.Fatalf("send: %v", err)
	}
	return task
}

func (f *merchantFixture) findProducts(t *testing.T) a2a.Task {
	t.Helper()
	intent, err := mandate.NewIntentMandate("おむつ Mサイズ", true, nil, nil, false, time.Now())
	if err != nil {
		t.Fatalf("new intent: %v", err)
	}
	return f.send(t, func(b *a2a.MessageBuilder) {
		b.AddText(OpFindProducts).AddData(mandate.IntentMandateKey, intent)
	})
}

func testAddress() mandate.ContactAddress {
	return mandate.ContactAddress{
		Recipient:   "山田 太郎",
		AddressLine: []string{"東京都新宿区西新宿2-8-1"},
		City:        "新宿区",
		Region:      "東京都",
		PostalCode:  "160-0023",
		Country:     "JP",
	}
}

func TestFindProductsOffersCartsAndRiskData(t *testing.T) {
	f := newMerchantFixture(t, nil)

	task := f.findProducts(t)
	if task.Status.State != a2a.TaskStateCompleted {
		t.Fatalf("state = %s, want completed", task.Status.State)
	}

	carts, err := a2a.FindCanonicalObjects[mandate.CartMandate](task.Artifacts, mandate.CartMandateKey)
	if err != nil {
		t.Fatalf("find carts: %v", err)
	}
	if len(carts) != 3 {
		t.Fatalf("carts = %d, want 3", len(carts))
	}

	foundRisk := false
	for _, artifact := range task.Artifacts {
		if _, ok := a2a.FindStringPart(mandate.RiskDataKey, artifact.Parts); ok {
			foundRisk = true
		}
	}
	if !foundRisk {
		t.Fatal("expected a risk data artifact")
	}
}

func TestFindProductsExpiredIntent(t *testing.T) {
	f := newMerchantFixture(t, nil)

	intent := mandate.IntentMandate{
		NaturalLanguageDescription: "おむつ",
		IntentExpiry:               time.Now().Add(-time.Hour).UTC(),
	}
	task := f.send(t, func(b *a2a.MessageBuilder) {
		b.AddText(OpFindProducts).AddData(mandate.IntentMandateKey, intent)
	})
	if task.Status.State != a2a.TaskStateFailed {
		t.Fatalf("state = %s, want failed", task.Status.State)
	}
}

func TestUpdateCartAddsShippingAndSigns(t *testing.T) {
	f := newMerchantFixture(t, nil)

	offers := f.findProducts(t)
	task := f.send(t, func(b *a2a.MessageBuilder) {
		b.AddText(OpUpdateCart).
			AddData(mandate.CartIDKey, "cart_2").
			AddData(mandate.ShippingAddressKey, testAddress()).
			SetContextID(offers.ContextID)
	})
	if task.Status.State != a2a.TaskStateCompleted {
		t.Fatalf("state = %s, want completed", task.Status.State)
	}

	carts, err := a2a.FindCanonicalObjects[mandate.CartMandate](task.Artifacts, mandate.CartMandateKey)
	if err != nil {
		t.Fatalf("find carts: %v", err)
	}
	cart, err := a2a.Only(carts)
	if err != nil {
		t.Fatalf("only: %v", err)
	}
	if got := cart.Contents.PaymentRequest.Details.Total.Amount.Value; got != 2580+ShippingCost+TaxCost {
		t.Fatalf("total = %d, want %d", got, 2580+ShippingCost+TaxCost)
	}
	if !cart.Finalized() {
		t.Fatal("expected merchant authorization on finalized cart")
	}
	if err := f.signer.VerifyCart(cart.MerchantAuthorization, cart); err != nil {
		t.Fatalf("verify merchant authorization: %v", err)
	}
	if cart.Contents.PaymentRequest.ShippingAddress == nil {
		t.Fatal("expected shipping address on finalized cart")
	}

	labels := make([]string, 0, len(cart.Contents.PaymentRequest.Details.DisplayItems))
	for _, item := range cart.Contents.PaymentRequest.Details.DisplayItems {
		labels = append(labels, item.Label)
	}
	joined := strings.Join(labels, ",")
	if !strings.Contains(joined, "Shipping") || !strings.Contains(joined, "Tax") {
		t.Fatalf("display items = %v, want shipping and tax lines", labels)
	}
}

func TestUpdateCartTwiceDoesNotDoubleCharge(t *testing.T) {
	f := newMerchantFixture(t, nil)

	offers := f.findProducts(t)
	update := func() mandate.CartMandate {
		task := f.send(t, func(b *a2a.MessageBuilder) {
			b.AddText(OpUpdateCart).
				AddData(mandate.CartIDKey, "cart_1").
				AddData(mandate.ShippingAddressKey, testAddress()).
				SetContextID(offers.ContextID)
		})
		if task.Status.State != a2a.TaskStateCompleted {
			t.Fatalf("state = %s, want completed", task.Status.State)
		}
		carts, err := a2a.FindCanonicalObjects[mandate.CartMandate](task.Artifacts, mandate.CartMandateKey)
		if err != nil {
			t.Fatalf("find carts: %v", err)
		}
		cart, err := a2a.Only(carts)
		if err != nil {
			t.Fatalf("only: %v", err)
		}
		return cart
	}

	first := update()
	second := update()
	if first.Contents.PaymentRequest.Details.Total.Amount.Value !=
		second.Contents.PaymentRequest.Details.Total.Amount.Value {
		t.Fatal("second finalize changed the total")
	}
	if got := second.Contents.PaymentRequest.Details.Total.Amount.Value; got != 1980+ShippingCost+TaxCost {
		t.Fatalf("total = %d, want %d", got, 1980+ShippingCost+TaxCost)
	}
}

func TestUpdateCartUnknownCart(t *testing.T) {
	f := newMerchantFixture(t, nil)

	offers := f.findProducts(t)
	task := f.send(t, func(b *a2a.MessageBuilder) {
		b.AddText(OpUpdateCart).
			AddData(mandate.CartIDKey, "cart_9").
			AddData(mandate.ShippingAddressKey, testAddress()).
			SetContextID(offers.ContextID)
	})
	if task.Status.State != a2a.TaskStateFailed {
		t.Fatalf("state = %s, want failed", task.Status.State)
	}
	text, _ := a2a.FindTextPart(task.Status.Message.Parts)
	if !strings.Contains(text, "cart_9") {
		t.Fatalf("failure text = %q, want the cart id named", text)
	}
}

func TestUpdateCartMissingRiskDataContext(t *testing.T) {
	f := newMerchantFixture(t, nil)

	f.findProducts(t)
	// A fresh context has no risk data recorded.
	task := f.send(t, func(b *a2a.MessageBuilder) {
		b.AddText(OpUpdateCart).
			AddData(mandate.CartIDKey, "cart_1").
			AddData(mandate.ShippingAddressKey, testAddress())
	})
	if task.Status.State != a2a.TaskStateFailed {
		t.Fatalf("state = %s, want failed", task.Status.State)
	}
}

func TestInitiatePaymentUnknownMethod(t *testing.T) {
	f := newMerchantFixture(t, map[string]string{"CARD": "http://localhost:0"})

	pm := mandate.PaymentMandate{
		PaymentMandateContents: mandate.PaymentMandateContents{
			PaymentMandateID: "pm_1",
			PaymentDetailsTotal: mandate.PaymentItem{
				Label:  "Total",
				Amount: mandate.CurrencyAmount{Currency: "JPY", Value: 100},
			},
			PaymentResponse: mandate.PaymentResponse{MethodName: "BANK_ACCOUNT"},
			Timestamp:       time.Now().UTC(),
		},
		UserAuthorization: "signed",
	}
	task := f.send(t, func(b *a2a.MessageBuilder) {
		b.AddText(OpInitiatePayment).
			AddData(mandate.PaymentMandateKey, pm).
			AddData(mandate.RiskDataKey, "risk")
	})
	if task.Status.State != a2a.TaskStateFailed {
		t.Fatalf("state = %s, want failed", task.Status.State)
	}
	text, _ := a2a.FindTextPart(task.Status.Message.Parts)
	if !strings.Contains(text, "BANK_ACCOUNT") {
		t.Fatalf("failure text = %q, want the method named", text)
	}
}
