// Package mandate defines the signed, typed documents exchanged between the
// shopping agent, merchant, payment processor, and credentials provider.
// Each mandate is a pure validated value object; serialization is a lossless
// JSON round trip tagged by a canonical key.
package mandate

import (
	"time"

	apperrors "github.com/louisbranch/agentpay/internal/errors"
)

// IntentMandate captures a user's shopping intent. It is created once by
// the shopping agent and copied by value into request payloads; it is never
// mutated afterwards.
type IntentMandate struct {
	NaturalLanguageDescription   string    `json:"natural_language_description"`
	UserCartConfirmationRequired bool      `json:"user_cart_confirmation_required"`
	Merchants                    []string  `json:"merchants,omitempty"`
	SKUs                         []string  `json:"skus,omitempty"`
	RequiresRefundability        bool      `json:"requires_refundability"`
	IntentExpiry                 time.Time `json:"intent_expiry"`
}

// IntentValidity is how long a freshly created intent stays redeemable.
const IntentValidity = 24 * time.Hour

// NewIntentMandate creates a validated IntentMandate expiring after
// IntentValidity.
func NewIntentMandate(description string, confirmationRequired bool, merchants, skus []string, requiresRefundability bool, now time.Time) (IntentMandate, error) {
	m := IntentMandate{
		NaturalLanguageDescription:   description,
		UserCartConfirmationRequired: confirmationRequired,
		Merchants:                    merchants,
		SKUs:                         skus,
		RequiresRefundability:        requiresRefundability,
		IntentExpiry:                 now.UTC().Add(IntentValidity),
	}
	if err := m.Validate(); err != nil {
		return IntentMandate{}, err
	}
	return m, nil
}

// Validate checks required intent fields.
func (m IntentMandate) Validate() error {
	if m.NaturalLanguageDescription == "" {
		return apperrors.New(apperrors.CodeValidation, "intent description is required")
	}
	if m.IntentExpiry.IsZero() {
		return apperrors.New(apperrors.CodeValidation, "intent expiry is required")
	}
	return nil
}

// Expired reports whether the intent can no longer be acted on.
func (m IntentMandate) Expired(now time.Time) bool {
	return now.After(m.IntentExpiry)
}
