package format

import (
	"strings"
	"testing"
	"time"

	"github.com/louisbranch/agentpay/internal/mandate"
)

func TestAmountJPY(t *testing.T) {
	got := Amount(mandate.CurrencyAmount{Currency: "JPY", Value: 3330})
	if !strings.Contains(got, "3,330") && !strings.Contains(got, "3330") {
		t.Fatalf("amount = %q, want the value rendered", got)
	}
	// x/text renders the fullwidth yen sign for Japanese.
	if !strings.Contains(got, "¥") && !strings.Contains(got, "￥") && !strings.Contains(got, "JPY") {
		t.Fatalf("amount = %q, want a currency marker", got)
	}
}

func TestAmountUnknownCurrency(t *testing.T) {
	got := Amount(mandate.CurrencyAmount{Currency: "garbage", Value: 42})
	if got != "42 garbage" {
		t.Fatalf("amount = %q, want fallback rendering", got)
	}
}

func TestAddressBlock(t *testing.T) {
	got := Address(mandate.ContactAddress{
		Recipient:   "山田 太郎",
		AddressLine: []string{"東京都新宿区西新宿2-8-1"},
		City:        "新宿区",
		Region:      "東京都",
		PostalCode:  "160-0023",
		PhoneNumber: "+81-090-1234-5678",
	})
	for _, want := range []string{"山田 太郎", "東京都新宿区西新宿2-8-1", "160-0023"} {
		if !strings.Contains(got, want) {
			t.Fatalf("address %q missing %q", got, want)
		}
	}
}

func TestReceiptSummary(t *testing.T) {
	got := ReceiptSummary(mandate.PaymentReceipt{
		PaymentMandateID: "pm_1",
		Timestamp:        time.Now().UTC(),
		PaymentID:        "pay_1",
		Amount:           mandate.CurrencyAmount{Currency: "JPY", Value: 3330},
		Success: &mandate.PaymentSuccess{
			MerchantConfirmationID: "pay_1",
			PSPConfirmationID:      "pay_1",
		},
	})
	if !strings.Contains(got, "pay_1") || !strings.Contains(got, "success") {
		t.Fatalf("receipt summary = %q", got)
	}
}
