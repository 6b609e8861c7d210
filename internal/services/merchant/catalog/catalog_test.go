package catalog

import (
	"fmt"
	"testing"
	"time"

	"github.com/louisbranch/agentpay/internal/mandate"
)

func TestBuildOffers(t *testing.T) {
	now := time.Date(2026, time.March, 4, 9, 0, 0, 0, time.UTC)
	carts, err := BuildOffers(now)
	if err != nil {
		t.Fatalf("build offers: %v", err)
	}
	if len(carts) != 3 {
		t.Fatalf("offers = %d, want 3", len(carts))
	}

	wantMerchants := []string{"A社", "B社", "C社"}
	for i, cart := range carts {
		if got, want := cart.Contents.ID, fmt.Sprintf("cart_%d", i+1); got != want {
			t.Fatalf("cart id = %q, want %q", got, want)
		}
		if cart.Contents.MerchantName != wantMerchants[i] {
			t.Fatalf("merchant = %q, want %q", cart.Contents.MerchantName, wantMerchants[i])
		}
		if !cart.Contents.UserCartConfirmationRequired {
			t.Fatal("offers require user confirmation")
		}
		if cart.Finalized() {
			t.Fatal("fresh offers must not carry merchant authorization")
		}
		if got, want := cart.Contents.CartExpiry, now.Add(mandate.CartValidity); !got.Equal(want) {
			t.Fatalf("cart expiry = %v, want %v", got, want)
		}
		// The feature line item must not contribute to the total.
		if cart.Contents.PaymentRequest.Details.Total.Amount.Value != cart.Contents.ItemTotal() {
			t.Fatalf("total %d != item sum %d",
				cart.Contents.PaymentRequest.Details.Total.Amount.Value, cart.Contents.ItemTotal())
		}
		if len(cart.Contents.PaymentRequest.Details.DisplayItems) != 2 {
			t.Fatalf("display items = %d, want product plus feature line",
				len(cart.Contents.PaymentRequest.Details.DisplayItems))
		}
	}
}

func TestBuildOffersDeterministic(t *testing.T) {
	now := time.Date(2026, time.March, 4, 9, 0, 0, 0, time.UTC)
	first, err := BuildOffers(now)
	if err != nil {
		t.Fatalf("build offers: %v", err)
	}
	second, err := BuildOffers(now)
	if err != nil {
		t.Fatalf("build offers: %v", err)
	}
	for i := range first {
		if first[i].Contents.ID != second[i].Contents.ID {
			t.Fatalf("offer ids differ at %d", i)
		}
		if first[i].Contents.PaymentRequest.Details.Total.Amount.Value !=
			second[i].Contents.PaymentRequest.Details.Total.Amount.Value {
			t.Fatalf("offer totals differ at %d", i)
		}
	}
}
