// Package signing issues and verifies the placeholder mandate
// authorization tokens. Tokens are HS256 JWTs over mandate digests with a
// shared demo key; production would replace this with issuer-held
// asymmetric keys without changing the mandate fields that carry them.
package signing

import (
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/golang-jwt/jwt/v5"

	apperrors "github.com/louisbranch/agentpay/internal/errors"
	"github.com/louisbranch/agentpay/internal/mandate"
)

// signerEnv holds raw env values for the demo signing key.
type signerEnv struct {
	Key string `env:"AGENTPAY_SIGNING_KEY" envDefault:"agentpay-demo-signing-key"`
}

// Signer signs and verifies mandate authorization tokens.
type Signer struct {
	key []byte
	now func() time.Time
}

// NewSignerFromEnv creates a signer keyed from the environment.
func NewSignerFromEnv(now func() time.Time) (*Signer, error) {
	var raw signerEnv
	if err := env.Parse(&raw); err != nil {
		return nil, err
	}
	return NewSigner(strings.TrimSpace(raw.Key), now), nil
}

// NewSigner creates a signer with an explicit key.
func NewSigner(key string, now func() time.Time) *Signer {
	if now == nil {
		now = time.Now
	}
	return &Signer{key: []byte(key), now: now}
}

// cartClaims binds a merchant authorization to one finalized cart.
type cartClaims struct {
	jwt.RegisteredClaims
	CartID       string `json:"cart_id"`
	MerchantName string `json:"merchant_name"`
	TotalValue   int64  `json:"total_value"`
	Currency     string `json:"currency"`
}

// mandateClaims binds a user authorization to one payment mandate.
type mandateClaims struct {
	jwt.RegisteredClaims
	PaymentMandateID string `json:"payment_mandate_id"`
	TotalValue       int64  `json:"total_value"`
	Currency         string `json:"currency"`
}

// SignCart produces the merchant authorization token for a cart.
func (s *Signer) SignCart(cart mandate.CartMandate) (string, error) {
	total := cart.Contents.PaymentRequest.Details.Total.Amount
	claims := cartClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    cart.Contents.MerchantName,
			IssuedAt:  jwt.NewNumericDate(s.now().UTC()),
			ExpiresAt: jwt.NewNumericDate(cart.Contents.CartExpiry),
		},
		CartID:       cart.Contents.ID,
		MerchantName: cart.Contents.MerchantName,
		TotalValue:   total.Value,
		Currency:     total.Currency,
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.key)
}

// SignPaymentMandate produces the user authorization token for a payment
// mandate, standing in for a signature collected on the user's device.
func (s *Signer) SignPaymentMandate(pm mandate.PaymentMandate) (string, error) {
	total := pm.PaymentMandateContents.PaymentDetailsTotal.Amount
	claims := mandateClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:   "user-device",
			IssuedAt: jwt.NewNumericDate(s.now().UTC()),
		},
		PaymentMandateID: pm.PaymentMandateContents.PaymentMandateID,
		TotalValue:       total.Value,
		Currency:         total.Currency,
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.key)
}

// VerifyCart checks a merchant authorization against the cart it claims
// to sign.
func (s *Signer) VerifyCart(token string, cart mandate.CartMandate) error {
	var claims cartClaims
	_, err := jwt.ParseWithClaims(token, &claims, func(t *jwt.Token) (any, error) {
		return s.key, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}), jwt.WithTimeFunc(s.now))
	if err != nil {
		return apperrors.Wrap(apperrors.CodeValidation, "merchant authorization is invalid", err)
	}
	if claims.CartID != cart.Contents.ID {
		return apperrors.New(apperrors.CodeValidation, "merchant authorization signs a different cart")
	}
	if claims.TotalValue != cart.Contents.PaymentRequest.Details.Total.Amount.Value {
		return apperrors.New(apperrors.CodeValidation, "merchant authorization signs a different total")
	}
	return nil
}
