package mandate

import (
	"time"

	apperrors "github.com/louisbranch/agentpay/internal/errors"
)

// PaymentSuccess carries the confirmation ids of a settled payment.
type PaymentSuccess struct {
	MerchantConfirmationID string `json:"merchant_confirmation_id"`
	PSPConfirmationID      string `json:"psp_confirmation_id"`
}

// PaymentFailure records why a payment did not settle.
type PaymentFailure struct {
	Reason string `json:"reason"`
}

// PaymentReceipt is the processor's record of one completed payment
// attempt. Exactly one of Success or Failure is set. Created once after
// credential redemption; immutable.
type PaymentReceipt struct {
	PaymentMandateID string          `json:"payment_mandate_id"`
	Timestamp        time.Time       `json:"timestamp"`
	PaymentID        string          `json:"payment_id"`
	Amount           CurrencyAmount  `json:"amount"`
	Success          *PaymentSuccess `json:"success,omitempty"`
	Failure          *PaymentFailure `json:"failure,omitempty"`
	MethodName       string          `json:"method_name,omitempty"`
}

// Validate checks required receipt fields and that the status is exactly
// one of success or failure.
func (r PaymentReceipt) Validate() error {
	if r.PaymentMandateID == "" {
		return apperrors.New(apperrors.CodeValidation, "payment mandate id is required")
	}
	if r.PaymentID == "" {
		return apperrors.New(apperrors.CodeValidation, "payment id is required")
	}
	if (r.Success == nil) == (r.Failure == nil) {
		return apperrors.New(apperrors.CodeValidation, "receipt requires exactly one of success or failure")
	}
	return r.Amount.Validate()
}
