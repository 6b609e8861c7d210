// Package catalog produces merchant cart offers for a shopper intent.
//
// The demo catalog is deterministic: every product search yields the same
// three offers, one per partner merchant, so flows are reproducible. Each
// offer carries a zero-priced feature line item describing price level,
// absorbency and leak protection for cross-offer comparison.
package catalog

import (
	"fmt"
	"time"

	"github.com/louisbranch/agentpay/internal/mandate"
)

type offer struct {
	label          string
	amount         int64
	merchantName   string
	priceLevel     string
	absorbency     string
	leakProtection string
}

var demoOffers = []offer{
	{
		label:          "高吸水タイプ 紙おむつ Mサイズ 48枚入り",
		amount:         1980,
		merchantName:   "A社",
		priceLevel:     "中",
		absorbency:     "高い",
		leakProtection: "標準的",
	},
	{
		label:          "プレミアム紙おむつ Mサイズ ジャンボパック 54枚入り",
		amount:         2580,
		merchantName:   "B社",
		priceLevel:     "高",
		absorbency:     "非常に高い",
		leakProtection: "横漏れしにくい",
	},
	{
		label:          "標準タイプ 紙おむつ Mサイズ 44枚入り",
		amount:         1280,
		merchantName:   "C社",
		priceLevel:     "低",
		absorbency:     "普通",
		leakProtection: "標準的",
	},
}

// Currency is the pricing currency for every demo offer.
const Currency = "JPY"

// BuildOffers assembles the cart mandates offered against an intent. Carts
// are numbered cart_1..cart_N with order ids order_1..order_N and expire
// after the standard cart validity window.
func BuildOffers(now time.Time) ([]mandate.CartMandate, error) {
	carts := make([]mandate.CartMandate, 0, len(demoOffers))
	for i, o := range demoOffers {
		n := i + 1
		item := mandate.PaymentItem{
			Label:  o.label,
			Amount: mandate.CurrencyAmount{Currency: Currency, Value: o.amount},
		}
		// Zero amount keeps the feature line out of the cart total.
		featureItem := mandate.PaymentItem{
			Label: fmt.Sprintf("特徴: 価格=%s / 吸水性=%s / 横漏れ=%s",
				o.priceLevel, o.absorbency, o.leakProtection),
			Amount: mandate.CurrencyAmount{Currency: Currency, Value: 0},
		}

		cart := mandate.CartMandate{
			Contents: mandate.CartContents{
				ID:                           fmt.Sprintf("cart_%d", n),
				UserCartConfirmationRequired: true,
				MerchantName:                 o.merchantName,
				CartExpiry:                   now.Add(mandate.CartValidity).UTC(),
				PaymentRequest: mandate.PaymentRequest{
					MethodData: []mandate.PaymentMethodData{{
						SupportedMethods: "CARD",
						Data: map[string]any{
							"network": []string{"visa", "mastercard", "paypal", "amex"},
						},
					}},
					Details: mandate.PaymentDetails{
						ID:           fmt.Sprintf("order_%d", n),
						DisplayItems: []mandate.PaymentItem{item, featureItem},
						Total: mandate.PaymentItem{
							Label:  "Total",
							Amount: item.Amount,
						},
					},
					Options: &mandate.PaymentOptions{RequestShipping: true},
				},
			},
		}
		if err := cart.Validate(); err != nil {
			return nil, err
		}
		carts = append(carts, cart)
	}
	return carts, nil
}
