package agent

import (
	"context"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/louisbranch/agentpay/internal/a2a"
	"github.com/louisbranch/agentpay/internal/mandate"
	credentialsagent "github.com/louisbranch/agentpay/internal/services/credentials/agent"
	credentialssqlite "github.com/louisbranch/agentpay/internal/services/credentials/storage/sqlite"
	"github.com/louisbranch/agentpay/internal/services/credentials/token"
	"github.com/louisbranch/agentpay/internal/services/credentials/vault"
)

type paymentFixture struct {
	client         *a2a.Client
	receiptStore   *credentialssqlite.Store
	paymentMandate mandate.PaymentMandate
}

// newPaymentFixture stands up a credentials provider and a processor, with
// a token already issued and bound to the fixture's payment mandate.
func newPaymentFixture(t *testing.T) *paymentFixture {
	t.Helper()
	ctx := context.Background()

	store, err := credentialssqlite.Open(t.TempDir() + "/credentials.db")
	if err != nil {
		t.Fatalf("open credentials store: %v", err)
	}
	t.Cleanup(func() { _ = store.Close() })

	accountVault := vault.New()
	tokens := token.NewService(store, accountVault)
	provider := credentialsagent.New(tokens, accountVault, store, "")
	providerSrv := httptest.NewServer(provider.Handler(a2a.NewMemoryTaskStore()).Routes())
	t.Cleanup(providerSrv.Close)

	tokenValue, err := tokens.Create(ctx, "taro.yamada@gmail.com", "Visa（末尾 1234）")
	if err != nil {
		t.Fatalf("create token: %v", err)
	}
	if err := tokens.Bind(ctx, tokenValue, "pm_1"); err != nil {
		t.Fatalf("bind token: %v", err)
	}

	pm := mandate.PaymentMandate{
		PaymentMandateContents: mandate.PaymentMandateContents{
			PaymentMandateID: "pm_1",
			PaymentDetailsID: "order_2",
			PaymentDetailsTotal: mandate.PaymentItem{
				Label:  "Total",
				Amount: mandate.CurrencyAmount{Currency: "JPY", Value: 3330},
			},
			PaymentResponse: mandate.PaymentResponse{
				MethodName: "CARD",
				Details: mandate.PaymentMethodDetails{
					Token: &mandate.TokenReference{Value: tokenValue, URL: providerSrv.URL},
				},
			},
			MerchantAgent: "B社",
			Timestamp:     time.Now().UTC(),
		},
		UserAuthorization: "signed.jwt.value",
	}

	processorSrv := httptest.NewServer(New().Handler(a2a.NewMemoryTaskStore()).Routes())
	t.Cleanup(processorSrv.Close)

	client := a2a.NewClient(a2a.ClientConfig{
		Name:               "merchant_payment_processor",
		BaseURL:            processorSrv.URL,
		RequiredExtensions: []string{mandate.ExtensionURI},
	})
	return &paymentFixture{client: client, receiptStore: store, paymentMandate: pm}
}

func (f *paymentFixture) initiate(t *testing.T, taskID, challengeResponse string) a2a.Task {
	t.Helper()
	builder := a2a.NewMessageBuilder().
		AddText(OpInitiatePayment).
		AddData(mandate.PaymentMandateKey, f.paymentMandate).
		AddData(mandate.RiskDataKey, "opaque-risk-payload")
	if taskID != "" {
		builder.SetTaskID(taskID)
	}
	if challengeResponse != "" {
		builder.AddData(mandate.ChallengeResponseKey, challengeResponse)
	}
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

func TestFirstMessageRaisesChallenge(t *testing.T) {
	f := newPaymentFixture(t)

	task := f.initiate(t, "", "")
	if task.Status.State != a2a.TaskStateInputRequired {
		t.Fatalf("state = %s, want input-required", task.Status.State)
	}
	if task.Status.Message == nil {
		t.Fatal("suspension must carry a message")
	}
	value, ok := a2a.FindDataPart(mandate.ChallengeKey, task.Status.Message.Parts)
	if !ok {
		t.Fatal("expected challenge data part")
	}
	challenge, ok := value.(map[string]any)
	if !ok {
		t.Fatalf("challenge type = %T", value)
	}
	if challenge["type"] != "otp" {
		t.Fatalf("challenge type = %v, want otp", challenge["type"])
	}
	if len(task.Artifacts) != 0 {
		t.Fatal("challenge must not attach artifacts")
	}
}

func TestWrongChallengeResponseSuspendsAgain(t *testing.T) {
	f := newPaymentFixture(t)

	first := f.initiate(t, "", "")
	second := f.initiate(t, first.ID, "999")
	if second.Status.State != a2a.TaskStateInputRequired {
		t.Fatalf("state = %s, want input-required", second.Status.State)
	}
	text, ok := a2a.FindTextPart(second.Status.Message.Parts)
	if !ok || text != "Challenge response incorrect." {
		t.Fatalf("message = %q, want corrective text", text)
	}
	if second.ID != first.ID {
		t.Fatalf("task id changed: %s != %s", second.ID, first.ID)
	}
}

func TestCorrectChallengeCompletesPayment(t *testing.T) {
	f := newPaymentFixture(t)

	first := f.initiate(t, "", "")
	done := f.initiate(t, first.ID, ChallengeCode)
	if done.Status.State != a2a.TaskStateCompleted {
		t.Fatalf("state = %s, want completed", done.Status.State)
	}

	receipts, err := a2a.FindCanonicalObjects[mandate.PaymentReceipt](done.Artifacts, mandate.PaymentReceiptKey)
	if err != nil {
		t.Fatalf("find receipts: %v", err)
	}
	receipt, err := a2a.Only(receipts)
	if err != nil {
		t.Fatalf("only: %v", err)
	}
	if receipt.Amount.Value != 3330 || receipt.Amount.Currency != "JPY" {
		t.Fatalf("receipt amount = %d %s, want 3330 JPY", receipt.Amount.Value, receipt.Amount.Currency)
	}
	if receipt.Success == nil {
		t.Fatal("expected success receipt")
	}
	if receipt.PaymentMandateID != "pm_1" {
		t.Fatalf("receipt mandate id = %q, want pm_1", receipt.PaymentMandateID)
	}

	// The credentials provider must have archived the same receipt.
	archived, err := f.receiptStore.GetReceipt(context.Background(), receipt.PaymentID)
	if err != nil {
		t.Fatalf("get archived receipt: %v", err)
	}
	if archived.Amount != 3330 {
		t.Fatalf("archived amount = %d, want 3330", archived.Amount)
	}
}

func TestWrongThenCorrectResponseRecovers(t *testing.T) {
	f := newPaymentFixture(t)

	first := f.initiate(t, "", "")
	retry := f.initiate(t, first.ID, "000")
	if retry.Status.State != a2a.TaskStateInputRequired {
		t.Fatalf("state after wrong response = %s, want input-required", retry.Status.State)
	}
	done := f.initiate(t, first.ID, ChallengeCode)
	if done.Status.State != a2a.TaskStateCompleted {
		t.Fatalf("state = %s, want completed", done.Status.State)
	}
}

func TestRedeemFailureFailsPayment(t *testing.T) {
	f := newPaymentFixture(t)
	// Point the mandate at a different mandate id than the bound one.
	f.paymentMandate.PaymentMandateContents.PaymentMandateID = "pm_other"

	first := f.initiate(t, "", "")
	done := f.initiate(t, first.ID, ChallengeCode)
	if done.Status.State != a2a.TaskStateFailed {
		t.Fatalf("state = %s, want failed", done.Status.State)
	}
	if done.Status.Message == nil {
		t.Fatal("failed task must explain itself")
	}
}

func TestCompletedTaskRedeliveryIsIdempotent(t *testing.T) {
	f := newPaymentFixture(t)

	first := f.initiate(t, "", "")
	done := f.initiate(t, first.ID, ChallengeCode)
	if done.Status.State != a2a.TaskStateCompleted {
		t.Fatalf("state = %s, want completed", done.Status.State)
	}

	again := f.initiate(t, first.ID, ChallengeCode)
	if again.Status.State != a2a.TaskStateCompleted {
		t.Fatalf("state = %s, want completed", again.Status.State)
	}
	if len(again.Artifacts) != len(done.Artifacts) {
		t.Fatal("redelivery must not settle the payment twice")
	}
}
