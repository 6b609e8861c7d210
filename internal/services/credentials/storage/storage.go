// Package storage defines persistence contracts for credentials provider
// state.
package storage

import (
	"context"
	"errors"
	"time"
)

// ErrNotFound indicates a requested record is missing.
var ErrNotFound = errors.New("record not found")

// CredentialToken is one issued opaque credential reference. It starts
// unbound and is bound to at most one payment mandate id for its lifetime.
type CredentialToken struct {
	Token              string
	Account            string
	PaymentMethodAlias string
	// PaymentMandateID is empty until the token is bound. Once set it
	// never changes; bind attempts against a bound token are ignored.
	PaymentMandateID string
	CreatedAt        time.Time
}

// Bound reports whether the token has been bound to a payment mandate.
func (t CredentialToken) Bound() bool {
	return t.PaymentMandateID != ""
}

// TokenStore persists issued credential tokens. Bind must be atomic:
// concurrent binds of the same token must leave exactly one winner.
type TokenStore interface {
	PutToken(ctx context.Context, token CredentialToken) error
	GetToken(ctx context.Context, token string) (CredentialToken, error)
	// BindToken sets the payment mandate id unless one is already bound.
	// Binding an already-bound token is a no-op regardless of the mandate
	// id supplied (first-writer-wins). Unknown tokens yield ErrNotFound.
	BindToken(ctx context.Context, token string, paymentMandateID string) error
}

// ArchivedReceipt is a payment receipt delivered to the credentials
// provider for record keeping.
type ArchivedReceipt struct {
	PaymentID        string
	PaymentMandateID string
	Currency         string
	Amount           int64
	Payload          string
	ReceivedAt       time.Time
}

// ReceiptStore archives receipts forwarded by payment processors.
type ReceiptStore interface {
	PutReceipt(ctx context.Context, receipt ArchivedReceipt) error
	GetReceipt(ctx context.Context, paymentID string) (ArchivedReceipt, error)
}
