package signing

import (
	"testing"
	"time"

	apperrors "github.com/louisbranch/agentpay/internal/errors"
	"github.com/louisbranch/agentpay/internal/mandate"
)

var signTime = time.Date(2026, time.March, 10, 9, 30, 0, 0, time.UTC)

func signTestCart() mandate.CartMandate {
	return mandate.CartMandate{
		Contents: mandate.CartContents{
			ID:           "cart_1",
			MerchantName: "A社",
			CartExpiry:   signTime.Add(30 * time.Minute),
			PaymentRequest: mandate.PaymentRequest{
				Details: mandate.PaymentDetails{
					ID: "order_1",
					DisplayItems: []mandate.PaymentItem{
						{Label: "item", Amount: mandate.CurrencyAmount{Currency: "JPY", Value: 1000}},
					},
					Total: mandate.PaymentItem{Label: "Total", Amount: mandate.CurrencyAmount{Currency: "JPY", Value: 1000}},
				},
			},
		},
	}
}

func TestSignAndVerifyCart(t *testing.T) {
	signer := NewSigner("test-key", func() time.Time { return signTime })
	cart := signTestCart()

	token, err := signer.SignCart(cart)
	if err != nil {
		t.Fatalf("sign: %v", err)
	}
	if token == "" {
		t.Fatal("expected token")
	}
	if err := signer.VerifyCart(token, cart); err != nil {
		t.Fatalf("verify: %v", err)
	}
}

func TestVerifyCartRejectsTamperedTotal(t *testing.T) {
	signer := NewSigner("test-key", func() time.Time { return signTime })
	cart := signTestCart()

	token, err := signer.SignCart(cart)
	if err != nil {
		t.Fatalf("sign: %v", err)
	}

	cart.Contents.PaymentRequest.Details.Total.Amount.Value = 1
	if err := signer.VerifyCart(token, cart); !apperrors.IsCode(err, apperrors.CodeValidation) {
		t.Fatalf("expected VALIDATION, got %v", err)
	}
}

func TestVerifyCartRejectsWrongKey(t *testing.T) {
	signer := NewSigner("test-key", func() time.Time { return signTime })
	other := NewSigner("other-key", func() time.Time { return signTime })
	cart := signTestCart()

	token, err := signer.SignCart(cart)
	if err != nil {
		t.Fatalf("sign: %v", err)
	}
	if err := other.VerifyCart(token, cart); !apperrors.IsCode(err, apperrors.CodeValidation) {
		t.Fatalf("expected VALIDATION, got %v", err)
	}
}

func TestSignPaymentMandate(t *testing.T) {
	signer := NewSigner("test-key", func() time.Time { return signTime })
	pm := mandate.PaymentMandate{
		PaymentMandateContents: mandate.PaymentMandateContents{
			PaymentMandateID:    "pm_1",
			PaymentDetailsTotal: mandate.PaymentItem{Label: "Total", Amount: mandate.CurrencyAmount{Currency: "JPY", Value: 3330}},
			PaymentResponse:     mandate.PaymentResponse{MethodName: "CARD"},
			Timestamp:           signTime,
		},
	}
	token, err := signer.SignPaymentMandate(pm)
	if err != nil {
		t.Fatalf("sign: %v", err)
	}
	if token == "" {
		t.Fatal("expected token")
	}
}
