package mandate

import (
	"time"

	apperrors "github.com/louisbranch/agentpay/internal/errors"
)

// CartValidity is how long an offered cart stays accept-able.
const CartValidity = 30 * time.Minute

// PaymentMethodData declares one payment method kind a merchant accepts,
// plus method-specific parameters such as card networks.
type PaymentMethodData struct {
	SupportedMethods string         `json:"supported_methods"`
	Data             map[string]any `json:"data,omitempty"`
}

// PaymentOptions carries merchant-side request options.
type PaymentOptions struct {
	RequestShipping bool `json:"request_shipping"`
}

// PaymentDetails lists the labeled line items of a cart and their total.
type PaymentDetails struct {
	ID           string        `json:"id"`
	DisplayItems []PaymentItem `json:"display_items"`
	Total        PaymentItem   `json:"total"`
}

// PaymentRequest is the merchant's payment terms for one cart: accepted
// methods, line items, total, and (once supplied) the shipping address.
type PaymentRequest struct {
	MethodData      []PaymentMethodData `json:"method_data"`
	Details         PaymentDetails      `json:"details"`
	Options         *PaymentOptions     `json:"options,omitempty"`
	ShippingAddress *ContactAddress     `json:"shipping_address,omitempty"`
}

// CartContents is the merchant-owned body of a cart offer.
type CartContents struct {
	ID                           string         `json:"id"`
	UserCartConfirmationRequired bool           `json:"user_cart_confirmation_required"`
	PaymentRequest               PaymentRequest `json:"payment_request"`
	CartExpiry                   time.Time      `json:"cart_expiry"`
	MerchantName                 string         `json:"merchant_name"`
	RefundPeriodDays             int            `json:"refund_period_days,omitempty"`
}

// CartMandate is a merchant's offer for one candidate purchase. It is
// mutated exactly once, when the merchant attaches shipping cost, tax, and
// its authorization signature after the user supplies a shipping address,
// and is immutable thereafter.
type CartMandate struct {
	Contents CartContents `json:"contents"`
	// MerchantAuthorization is a JWT over the cart contents, attached when
	// the cart is finalized. Empty until then.
	MerchantAuthorization string `json:"merchant_authorization,omitempty"`
}

// ItemTotal sums the display item amounts.
func (c CartContents) ItemTotal() int64 {
	var sum int64
	for _, item := range c.PaymentRequest.Details.DisplayItems {
		sum += item.Amount.Value
	}
	return sum
}

// Validate checks required cart fields and the total invariant: the total
// amount must equal the sum of the display item amounts at every
// observation point.
func (m CartMandate) Validate() error {
	c := m.Contents
	if c.ID == "" {
		return apperrors.New(apperrors.CodeValidation, "cart id is required")
	}
	if c.MerchantName == "" {
		return apperrors.New(apperrors.CodeValidation, "merchant name is required")
	}
	if c.CartExpiry.IsZero() {
		return apperrors.New(apperrors.CodeValidation, "cart expiry is required")
	}
	if len(c.PaymentRequest.Details.DisplayItems) == 0 {
		return apperrors.New(apperrors.CodeValidation, "cart requires at least one display item")
	}
	for _, item := range c.PaymentRequest.Details.DisplayItems {
		if err := item.Validate(); err != nil {
			return err
		}
	}
	if err := c.PaymentRequest.Details.Total.Validate(); err != nil {
		return err
	}
	if got, want := c.PaymentRequest.Details.Total.Amount.Value, c.ItemTotal(); got != want {
		return apperrors.WithMetadata(apperrors.CodeValidation, "cart total does not equal sum of display items", map[string]string{
			"cart_id": c.ID,
		})
	}
	return nil
}

// Finalized reports whether the merchant has attached its authorization.
func (m CartMandate) Finalized() bool {
	return m.MerchantAuthorization != ""
}

// Expired reports whether the cart offer has lapsed.
func (m CartMandate) Expired(now time.Time) bool {
	return now.After(m.Contents.CartExpiry)
}
