package sqlite

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/louisbranch/agentpay/internal/services/merchant/catalog"
	"github.com/louisbranch/agentpay/internal/services/merchant/storage"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	store, err := Open(t.TempDir() + "/merchant.db")
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func TestCartRoundTrip(t *testing.T) {
	store := openTestStore(t)
	now := time.Date(2026, time.March, 4, 9, 0, 0, 0, time.UTC)

	carts, err := catalog.BuildOffers(now)
	if err != nil {
		t.Fatalf("build offers: %v", err)
	}
	cart := carts[0]
	if err := store.PutCart(context.Background(), storage.CartRecord{
		CartID:    cart.Contents.ID,
		Cart:      cart,
		UpdatedAt: now,
	}); err != nil {
		t.Fatalf("put cart: %v", err)
	}

	got, err := store.GetCart(context.Background(), cart.Contents.ID)
	if err != nil {
		t.Fatalf("get cart: %v", err)
	}
	if got.Cart.Contents.MerchantName != cart.Contents.MerchantName {
		t.Fatalf("merchant = %q, want %q", got.Cart.Contents.MerchantName, cart.Contents.MerchantName)
	}
	if got.Cart.Contents.PaymentRequest.Details.Total.Amount.Value !=
		cart.Contents.PaymentRequest.Details.Total.Amount.Value {
		t.Fatal("cart total changed through storage")
	}
	if !got.Cart.Contents.CartExpiry.Equal(cart.Contents.CartExpiry) {
		t.Fatalf("cart expiry = %v, want %v", got.Cart.Contents.CartExpiry, cart.Contents.CartExpiry)
	}
}

func TestCartOverwrite(t *testing.T) {
	store := openTestStore(t)
	now := time.Date(2026, time.March, 4, 9, 0, 0, 0, time.UTC)

	carts, err := catalog.BuildOffers(now)
	if err != nil {
		t.Fatalf("build offers: %v", err)
	}
	cart := carts[1]
	if err := store.PutCart(context.Background(), storage.CartRecord{CartID: cart.Contents.ID, Cart: cart}); err != nil {
		t.Fatalf("put cart: %v", err)
	}

	cart.MerchantAuthorization = "signed.cart.jwt"
	if err := store.PutCart(context.Background(), storage.CartRecord{CartID: cart.Contents.ID, Cart: cart}); err != nil {
		t.Fatalf("overwrite cart: %v", err)
	}

	got, err := store.GetCart(context.Background(), cart.Contents.ID)
	if err != nil {
		t.Fatalf("get cart: %v", err)
	}
	if !got.Cart.Finalized() {
		t.Fatal("expected finalized cart after overwrite")
	}
}

func TestCartMissing(t *testing.T) {
	store := openTestStore(t)

	_, err := store.GetCart(context.Background(), "cart_missing")
	if !errors.Is(err, storage.ErrNotFound) {
		t.Fatalf("get missing cart err = %v, want ErrNotFound", err)
	}
}

func TestRiskDataRoundTrip(t *testing.T) {
	store := openTestStore(t)

	if err := store.PutRiskData(context.Background(), "ctx_1", "opaque-risk-payload"); err != nil {
		t.Fatalf("put risk data: %v", err)
	}
	got, err := store.GetRiskData(context.Background(), "ctx_1")
	if err != nil {
		t.Fatalf("get risk data: %v", err)
	}
	if got != "opaque-risk-payload" {
		t.Fatalf("risk data = %q", got)
	}

	_, err = store.GetRiskData(context.Background(), "ctx_missing")
	if !errors.Is(err, storage.ErrNotFound) {
		t.Fatalf("get missing risk data err = %v, want ErrNotFound", err)
	}
}
