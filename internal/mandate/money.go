package mandate

import (
	"fmt"

	apperrors "github.com/louisbranch/agentpay/internal/errors"
)

// CurrencyAmount is a monetary amount in a named currency. Values are
// whole currency units; the demo flow deals in JPY which has no minor unit.
type CurrencyAmount struct {
	Currency string `json:"currency"`
	Value    int64  `json:"value"`
}

// Validate checks the amount for a currency code and a non-negative value.
func (a CurrencyAmount) Validate() error {
	if a.Currency == "" {
		return apperrors.New(apperrors.CodeValidation, "currency is required")
	}
	if a.Value < 0 {
		return apperrors.WithMetadata(apperrors.CodeValidation, "amount must not be negative", map[string]string{
			"value": fmt.Sprintf("%d", a.Value),
		})
	}
	return nil
}

// PaymentItem is one labeled line of a payment request, e.g. an offered
// product, a shipping cost, or the computed total.
type PaymentItem struct {
	Label  string         `json:"label"`
	Amount CurrencyAmount `json:"amount"`
}

// Validate checks the item label and amount.
func (i PaymentItem) Validate() error {
	if i.Label == "" {
		return apperrors.New(apperrors.CodeValidation, "payment item label is required")
	}
	return i.Amount.Validate()
}
