// Package storage defines persistence contracts for merchant agent state.
package storage

import (
	"context"
	"errors"
	"time"

	"github.com/louisbranch/agentpay/internal/mandate"
)

// ErrNotFound indicates a requested record is missing.
var ErrNotFound = errors.New("record not found")

// CartRecord is one offered cart tracked through the purchase flow.
type CartRecord struct {
	CartID    string
	Cart      mandate.CartMandate
	UpdatedAt time.Time
}

// CartStore persists offered carts keyed by cart id. Carts are written when
// offered and overwritten once when finalized with shipping costs and the
// merchant authorization.
type CartStore interface {
	PutCart(ctx context.Context, record CartRecord) error
	GetCart(ctx context.Context, cartID string) (CartRecord, error)
}

// RiskDataStore tracks the opaque risk payload collected per shopping
// conversation. Keyed by context id so later payment messages in the same
// conversation can retrieve it.
type RiskDataStore interface {
	PutRiskData(ctx context.Context, contextID, riskData string) error
	GetRiskData(ctx context.Context, contextID string) (string, error)
}

// Store is the full merchant persistence surface.
type Store interface {
	CartStore
	RiskDataStore
}
