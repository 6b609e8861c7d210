package vault

import "testing"

func TestPaymentMethodsKnownAccount(t *testing.T) {
	v := New()

	methods := v.PaymentMethods("taro.yamada@gmail.com")
	if len(methods) != 4 {
		t.Fatalf("payment methods = %d, want 4", len(methods))
	}
	cards := 0
	for _, method := range methods {
		if method.Type == MethodTypeCard {
			cards++
		}
	}
	if cards != 2 {
		t.Fatalf("cards = %d, want 2", cards)
	}
}

func TestPaymentMethodsUnknownAccount(t *testing.T) {
	v := New()

	if methods := v.PaymentMethods("nobody@example.com"); len(methods) != 0 {
		t.Fatalf("unknown account methods = %d, want 0", len(methods))
	}
}

func TestShippingAddress(t *testing.T) {
	v := New()

	address := v.ShippingAddress("taro.yamada@gmail.com")
	if address == nil {
		t.Fatal("expected shipping address")
	}
	if address.PostalCode != "160-0023" {
		t.Fatalf("postal code = %q, want 160-0023", address.PostalCode)
	}

	// Accounts may have no address on file.
	if address := v.ShippingAddress("kenji.tanaka@example.com"); address != nil {
		t.Fatalf("expected no shipping address, got %+v", address)
	}
}

func TestPaymentMethodByAliasCaseInsensitive(t *testing.T) {
	v := New()

	method, ok := v.PaymentMethodByAlias("taro.yamada@gmail.com", "visa（末尾 1234）")
	if !ok {
		t.Fatal("expected alias match")
	}
	if method.Token != "4111111111111234" {
		t.Fatalf("token = %q, want 4111111111111234", method.Token)
	}

	if _, ok := v.PaymentMethodByAlias("taro.yamada@gmail.com", "no such alias"); ok {
		t.Fatal("expected no match")
	}
}

func TestAccountIsolation(t *testing.T) {
	v := New()

	methods := v.PaymentMethods("hanako.suzuki@example.com")
	if len(methods) != 2 {
		t.Fatalf("payment methods = %d, want 2", len(methods))
	}
	// Mutating the returned slice must not corrupt the vault.
	methods[0].Alias = "mutated"
	again := v.PaymentMethods("hanako.suzuki@example.com")
	if again[0].Alias == "mutated" {
		t.Fatal("vault contents leaked through returned slice")
	}
}
