package agent

import (
	"context"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/louisbranch/agentpay/internal/a2a"
	"github.com/louisbranch/agentpay/internal/mandate"
	"github.com/louisbranch/agentpay/internal/services/credentials/storage/sqlite"
	"github.com/louisbranch/agentpay/internal/services/credentials/token"
	"github.com/louisbranch/agentpay/internal/services/credentials/vault"
)

type testProvider struct {
	agent  *Agent
	tokens *token.Service
	client *a2a.Client
}

func newTestProvider(t *testing.T) *testProvider {
	t.Helper()
	store, err := sqlite.Open(t.TempDir() + "/credentials.db")
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { _ = store.Close() })

	accountVault := vault.New()
	tokens := token.NewService(store, accountVault)
	a := New(tokens, accountVault, store, "")
	srv := httptest.NewServer(a.Handler(a2a.NewMemoryTaskStore()).Routes())
	t.Cleanup(srv.Close)
	a.SetBaseURL(srv.URL)

	client := a2a.NewClient(a2a.ClientConfig{
		Name:               "credentials_provider",
		BaseURL:            srv.URL,
		RequiredExtensions: []string{mandate.ExtensionURI},
	})
	return &testProvider{agent: a, tokens: tokens, client: client}
}

func send(t *testing.T, client *a2a.Client, build func(*a2a.MessageBuilder)) a2a.Task {
	t.Helper()
	builder := a2a.NewMessageBuilder()
	build(builder)
	msg, err := builder.Build()
	if err != nil {
		t.Fatalf("build message: %v", err)
	}
	task, err := client.Send(context.Background(), msg)
	if err != nil {
		t.Fatalf("send: %v", err)
	}
	return task
}

func testPaymentMandate(t *testing.T, tokenValue, mandateID string) mandate.PaymentMandate {
	t.Helper()
	return mandate.PaymentMandate{
		PaymentMandateContents: mandate.PaymentMandateContents{
			PaymentMandateID: mandateID,
			PaymentDetailsTotal: mandate.PaymentItem{
				Label:  "合計",
				Amount: mandate.CurrencyAmount{Currency: "JPY", Value: 3330},
			},
			PaymentResponse: mandate.PaymentResponse{
				MethodName: "CARD",
				Details: mandate.PaymentMethodDetails{
					Token: &mandate.TokenReference{Value: tokenValue},
				},
			},
			Timestamp: time.Now().UTC(),
		},
		UserAuthorization: "signed.jwt.value",
	}
}

func TestCreateTokenOperation(t *testing.T) {
	p := newTestProvider(t)

	task := send(t, p.client, func(b *a2a.MessageBuilder) {
		b.AddText(OpCreateToken).
			AddData(mandate.AccountEmailKey, "taro.yamada@gmail.com").
			AddData(mandate.PaymentMethodAliasKey, "Visa（末尾 1234）")
	})
	if task.Status.State != a2a.TaskStateCompleted {
		t.Fatalf("state = %s, want completed", task.Status.State)
	}

	references, err := a2a.FindCanonicalObjects[mandate.TokenReference](task.Artifacts, mandate.CredentialTokenKey)
	if err != nil {
		t.Fatalf("find token reference: %v", err)
	}
	reference, err := a2a.Only(references)
	if err != nil {
		t.Fatalf("only: %v", err)
	}
	if !strings.HasPrefix(reference.Value, "tok_") {
		t.Fatalf("token = %q, want tok_ prefix", reference.Value)
	}
	if reference.URL == "" {
		t.Fatal("token reference must carry the provider url")
	}
}

func TestCreateTokenUnknownAliasFails(t *testing.T) {
	p := newTestProvider(t)

	task := send(t, p.client, func(b *a2a.MessageBuilder) {
		b.AddText(OpCreateToken).
			AddData(mandate.AccountEmailKey, "taro.yamada@gmail.com").
			AddData(mandate.PaymentMethodAliasKey, "missing alias")
	})
	if task.Status.State != a2a.TaskStateFailed {
		t.Fatalf("state = %s, want failed", task.Status.State)
	}
}

func TestSearchPaymentMethodsFiltersByCart(t *testing.T) {
	p := newTestProvider(t)

	cart := mandate.CartMandate{
		Contents: mandate.CartContents{
			ID:           "cart_1",
			MerchantName: "A社",
			CartExpiry:   time.Now().Add(time.Hour),
			PaymentRequest: mandate.PaymentRequest{
				MethodData: []mandate.PaymentMethodData{{SupportedMethods: vault.MethodTypeCard}},
				Details: mandate.PaymentDetails{
					ID: "order_1",
					DisplayItems: []mandate.PaymentItem{{
						Label:  "item",
						Amount: mandate.CurrencyAmount{Currency: "JPY", Value: 100},
					}},
					Total: mandate.PaymentItem{
						Label:  "合計",
						Amount: mandate.CurrencyAmount{Currency: "JPY", Value: 100},
					},
				},
			},
		},
	}

	task := send(t, p.client, func(b *a2a.MessageBuilder) {
		b.AddText(OpSearchMethods).
			AddData(mandate.AccountEmailKey, "taro.yamada@gmail.com").
			AddData(mandate.CartMandateKey, cart)
	})
	if task.Status.State != a2a.TaskStateCompleted {
		t.Fatalf("state = %s, want completed", task.Status.State)
	}

	value, ok := a2a.FindDataPart(mandate.PaymentMethodAliasesKey, task.Artifacts[0].Parts)
	if !ok {
		t.Fatal("expected payment_method_aliases artifact")
	}
	aliases, ok := value.([]any)
	if !ok {
		t.Fatalf("aliases type = %T", value)
	}
	// The digital wallets must be filtered out by the CARD-only cart.
	if len(aliases) != 2 {
		t.Fatalf("aliases = %v, want the two cards", aliases)
	}
}

func TestGetShippingAddress(t *testing.T) {
	p := newTestProvider(t)

	task := send(t, p.client, func(b *a2a.MessageBuilder) {
		b.AddText(OpShippingAddress).
			AddData(mandate.AccountEmailKey, "taro.yamada@gmail.com")
	})
	if task.Status.State != a2a.TaskStateCompleted {
		t.Fatalf("state = %s, want completed", task.Status.State)
	}

	addresses, err := a2a.FindCanonicalObjects[mandate.ContactAddress](task.Artifacts, mandate.ShippingAddressKey)
	if err != nil {
		t.Fatalf("find address: %v", err)
	}
	address, err := a2a.Only(addresses)
	if err != nil {
		t.Fatalf("only: %v", err)
	}
	if address.PostalCode != "160-0023" {
		t.Fatalf("postal code = %q, want 160-0023", address.PostalCode)
	}
}

func TestGetShippingAddressMissingAccount(t *testing.T) {
	p := newTestProvider(t)

	task := send(t, p.client, func(b *a2a.MessageBuilder) {
		b.AddText(OpShippingAddress).
			AddData(mandate.AccountEmailKey, "kenji.tanaka@example.com")
	})
	if task.Status.State != a2a.TaskStateFailed {
		t.Fatalf("state = %s, want failed", task.Status.State)
	}
}

func TestBindAndRedeemFlow(t *testing.T) {
	p := newTestProvider(t)
	ctx := context.Background()

	tokenValue, err := p.tokens.Create(ctx, "taro.yamada@gmail.com", "Visa（末尾 1234）")
	if err != nil {
		t.Fatalf("create token: %v", err)
	}
	pm := testPaymentMandate(t, tokenValue, "pm_1")

	bindTask := send(t, p.client, func(b *a2a.MessageBuilder) {
		b.AddText(OpSignedPaymentMandate).
			AddData(mandate.PaymentMandateKey, pm)
	})
	if bindTask.Status.State != a2a.TaskStateCompleted {
		t.Fatalf("bind state = %s, want completed", bindTask.Status.State)
	}

	redeemTask := send(t, p.client, func(b *a2a.MessageBuilder) {
		b.AddText(OpRawCredentials).
			AddData(mandate.PaymentMandateKey, pm)
	})
	if redeemTask.Status.State != a2a.TaskStateCompleted {
		t.Fatalf("redeem state = %s, want completed", redeemTask.Status.State)
	}

	methods, err := a2a.FindCanonicalObjects[vault.PaymentMethod](redeemTask.Artifacts, mandate.PaymentMethodKey)
	if err != nil {
		t.Fatalf("find method: %v", err)
	}
	method, err := a2a.Only(methods)
	if err != nil {
		t.Fatalf("only: %v", err)
	}
	if method.Token != "4111111111111234" {
		t.Fatalf("method token = %q, want 4111111111111234", method.Token)
	}
}

func TestRedeemWithWrongMandateFails(t *testing.T) {
	p := newTestProvider(t)
	ctx := context.Background()

	tokenValue, err := p.tokens.Create(ctx, "taro.yamada@gmail.com", "Visa（末尾 1234）")
	if err != nil {
		t.Fatalf("create token: %v", err)
	}
	if err := p.tokens.Bind(ctx, tokenValue, "pm_owner"); err != nil {
		t.Fatalf("bind: %v", err)
	}

	task := send(t, p.client, func(b *a2a.MessageBuilder) {
		b.AddText(OpRawCredentials).
			AddData(mandate.PaymentMandateKey, testPaymentMandate(t, tokenValue, "pm_other"))
	})
	if task.Status.State != a2a.TaskStateFailed {
		t.Fatalf("state = %s, want failed", task.Status.State)
	}
	if task.Status.Message == nil {
		t.Fatal("failed task must explain itself")
	}
}

func TestUnsignedMandateRejected(t *testing.T) {
	p := newTestProvider(t)

	pm := testPaymentMandate(t, "tok_x", "pm_1")
	pm.UserAuthorization = ""
	task := send(t, p.client, func(b *a2a.MessageBuilder) {
		b.AddText(OpSignedPaymentMandate).
			AddData(mandate.PaymentMandateKey, pm)
	})
	if task.Status.State != a2a.TaskStateFailed {
		t.Fatalf("state = %s, want failed", task.Status.State)
	}
}

func TestPaymentReceiptArchived(t *testing.T) {
	p := newTestProvider(t)

	receipt := mandate.PaymentReceipt{
		PaymentMandateID: "pm_1",
		Timestamp:        time.Now().UTC(),
		PaymentID:        "pay_1",
		Amount:           mandate.CurrencyAmount{Currency: "JPY", Value: 3330},
		Success: &mandate.PaymentSuccess{
			MerchantConfirmationID: "pay_1",
			PSPConfirmationID:      "pay_1",
		},
		MethodName: "CARD",
	}
	task := send(t, p.client, func(b *a2a.MessageBuilder) {
		b.AddText(OpPaymentReceipt).
			AddData(mandate.PaymentReceiptKey, receipt)
	})
	if task.Status.State != a2a.TaskStateCompleted {
		t.Fatalf("state = %s, want completed", task.Status.State)
	}
}
