package mandate

import (
	"time"

	apperrors "github.com/louisbranch/agentpay/internal/errors"
)

// TokenReference points at a credential token held by a credentials
// provider: the opaque token value plus the provider endpoint that can
// redeem it.
type TokenReference struct {
	Value string `json:"value"`
	URL   string `json:"url"`
}

// PaymentMethodDetails carries method-specific response details. For
// tokenized methods this is the credential token reference.
type PaymentMethodDetails struct {
	Token *TokenReference `json:"token,omitempty"`
}

// PaymentResponse records the payment method the user selected for a cart.
type PaymentResponse struct {
	MethodName      string               `json:"method_name"`
	Details         PaymentMethodDetails `json:"details"`
	ShippingAddress *ContactAddress      `json:"shipping_address,omitempty"`
}

// PaymentMandateContents is the shopper-authored body of a payment mandate.
type PaymentMandateContents struct {
	PaymentMandateID    string          `json:"payment_mandate_id"`
	PaymentDetailsID    string          `json:"payment_details_id,omitempty"`
	PaymentDetailsTotal PaymentItem     `json:"payment_details_total"`
	PaymentResponse     PaymentResponse `json:"payment_response"`
	MerchantAgent       string          `json:"merchant_agent,omitempty"`
	Timestamp           time.Time       `json:"timestamp"`
}

// PaymentMandate authorizes payment for one chosen cart. It is created
// once by the shopping agent from a finalized CartMandate and never
// mutated.
type PaymentMandate struct {
	PaymentMandateContents PaymentMandateContents `json:"payment_mandate_contents"`
	// UserAuthorization is a JWT attached when the user signs the mandate
	// on their device. Empty until then.
	UserAuthorization string `json:"user_authorization,omitempty"`
}

// NewPaymentMandate builds a validated PaymentMandate from a finalized
// cart and the user's selected payment method token.
func NewPaymentMandate(id string, cart CartMandate, response PaymentResponse, now time.Time) (PaymentMandate, error) {
	m := PaymentMandate{
		PaymentMandateContents: PaymentMandateContents{
			PaymentMandateID:    id,
			PaymentDetailsID:    cart.Contents.PaymentRequest.Details.ID,
			PaymentDetailsTotal: cart.Contents.PaymentRequest.Details.Total,
			PaymentResponse:     response,
			MerchantAgent:       cart.Contents.MerchantName,
			Timestamp:           now.UTC(),
		},
	}
	if err := m.Validate(); err != nil {
		return PaymentMandate{}, err
	}
	return m, nil
}

// Validate checks required payment mandate fields.
func (m PaymentMandate) Validate() error {
	c := m.PaymentMandateContents
	if c.PaymentMandateID == "" {
		return apperrors.New(apperrors.CodeValidation, "payment mandate id is required")
	}
	if c.PaymentResponse.MethodName == "" {
		return apperrors.New(apperrors.CodeValidation, "payment method name is required")
	}
	return c.PaymentDetailsTotal.Validate()
}
