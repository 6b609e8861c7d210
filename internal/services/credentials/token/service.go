// Package token implements the payment credential token lifecycle.
//
// Tokens are opaque references to a stored payment method. A token is
// created unbound, bound once to a payment mandate id, and redeemed for the
// raw payment method only by a caller presenting the exact bound mandate id.
package token

import (
	"context"
	stderrors "errors"
	"strings"
	"time"

	"github.com/louisbranch/agentpay/internal/errors"
	"github.com/louisbranch/agentpay/internal/platform/id"
	"github.com/louisbranch/agentpay/internal/services/credentials/storage"
	"github.com/louisbranch/agentpay/internal/services/credentials/vault"
)

// Service issues, binds and redeems payment credential tokens.
type Service struct {
	store storage.TokenStore
	vault *vault.Vault
	now   func() time.Time
}

// NewService wires a token service over the given store and vault.
func NewService(store storage.TokenStore, accountVault *vault.Vault) *Service {
	return &Service{
		store: store,
		vault: accountVault,
		now:   time.Now,
	}
}

// Create issues a new unbound token for the account's payment method alias.
func (s *Service) Create(ctx context.Context, accountEmail, paymentMethodAlias string) (string, error) {
	email := strings.TrimSpace(accountEmail)
	if email == "" {
		return "", errors.New(errors.CodeMissingField, "account email is required")
	}
	alias := strings.TrimSpace(paymentMethodAlias)
	if alias == "" {
		return "", errors.New(errors.CodeMissingField, "payment method alias is required")
	}
	if _, ok := s.vault.PaymentMethodByAlias(email, alias); !ok {
		return "", errors.WithMetadata(errors.CodeNotFound,
			"payment method not found for alias",
			map[string]string{"payment_method_alias": alias})
	}

	value, err := id.NewPrefixedID("tok")
	if err != nil {
		return "", errors.Wrap(errors.CodeUnknown, "generate token", err)
	}
	record := storage.CredentialToken{
		Token:              value,
		Account:            email,
		PaymentMethodAlias: alias,
		CreatedAt:          s.now().UTC(),
	}
	if err := s.store.PutToken(ctx, record); err != nil {
		return "", errors.Wrap(errors.CodeUnknown, "store token", err)
	}
	return value, nil
}

// Bind associates the payment mandate id with the token. The first bind
// wins; later binds are ignored so redelivered messages stay harmless.
func (s *Service) Bind(ctx context.Context, tokenValue, paymentMandateID string) error {
	value := strings.TrimSpace(tokenValue)
	if value == "" {
		return errors.New(errors.CodeMissingField, "token is required")
	}
	mandateID := strings.TrimSpace(paymentMandateID)
	if mandateID == "" {
		return errors.New(errors.CodeMissingField, "payment mandate id is required")
	}

	err := s.store.BindToken(ctx, value, mandateID)
	if stderrors.Is(err, storage.ErrNotFound) {
		return errors.WithMetadata(errors.CodeNotFound, "token not found",
			map[string]string{"token": value})
	}
	if err != nil {
		return errors.Wrap(errors.CodeUnknown, "bind token", err)
	}
	return nil
}

// Redeem exchanges a bound token for the underlying payment method. The
// presented mandate id must match the bound one exactly; unknown tokens,
// unbound tokens and mismatched mandate ids are all reported identically so
// callers cannot probe which tokens exist.
func (s *Service) Redeem(ctx context.Context, tokenValue, paymentMandateID string) (vault.PaymentMethod, error) {
	invalid := errors.New(errors.CodeInvalidToken, "invalid token")

	value := strings.TrimSpace(tokenValue)
	mandateID := strings.TrimSpace(paymentMandateID)
	if value == "" || mandateID == "" {
		return vault.PaymentMethod{}, invalid
	}

	record, err := s.store.GetToken(ctx, value)
	if stderrors.Is(err, storage.ErrNotFound) {
		return vault.PaymentMethod{}, invalid
	}
	if err != nil {
		return vault.PaymentMethod{}, errors.Wrap(errors.CodeUnknown, "load token", err)
	}
	if !record.Bound() || record.PaymentMandateID != mandateID {
		return vault.PaymentMethod{}, invalid
	}

	method, ok := s.vault.PaymentMethodByAlias(record.Account, record.PaymentMethodAlias)
	if !ok {
		return vault.PaymentMethod{}, invalid
	}
	return method, nil
}
