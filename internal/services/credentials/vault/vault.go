// Package vault holds user account records for the credentials provider.
//
// Each account carries a shipping address and a set of payment methods. The
// demo vault is pre-populated with sample accounts.
package vault

import (
	"strings"

	"github.com/louisbranch/agentpay/internal/mandate"
)

// Method type values.
const (
	MethodTypeCard          = "CARD"
	MethodTypeDigitalWallet = "DIGITAL_WALLET"
	MethodTypeBankAccount   = "BANK_ACCOUNT"
)

// CardNetwork describes one card network a stored card participates in.
type CardNetwork struct {
	Name    string   `json:"name"`
	Formats []string `json:"formats,omitempty"`
}

// BillingAddress is the subset of address fields kept for card billing.
type BillingAddress struct {
	Country    string `json:"country,omitempty"`
	PostalCode string `json:"postal_code,omitempty"`
}

// PaymentMethod is one stored payment instrument. Fields are populated
// according to Type; cards carry network credentials, wallets and bank
// accounts carry account identifiers.
type PaymentMethod struct {
	Type               string          `json:"type"`
	Alias              string          `json:"alias"`
	Brand              string          `json:"brand,omitempty"`
	Network            []CardNetwork   `json:"network,omitempty"`
	Cryptogram         string          `json:"cryptogram,omitempty"`
	Token              string          `json:"token,omitempty"`
	CardHolderName     string          `json:"card_holder_name,omitempty"`
	CardExpiration     string          `json:"card_expiration,omitempty"`
	CardBillingAddress *BillingAddress `json:"card_billing_address,omitempty"`
	AccountIdentifier  string          `json:"account_identifier,omitempty"`
	AccountNumber      string          `json:"account_number,omitempty"`
}

// Account groups one user's payment methods and shipping address.
type Account struct {
	Email           string
	ShippingAddress *mandate.ContactAddress
	PaymentMethods  []PaymentMethod
}

// Vault is an in-memory account registry. Reads only; account contents are
// fixed at construction.
type Vault struct {
	accounts map[string]Account
}

// New returns a vault pre-populated with the demo accounts.
func New() *Vault {
	accounts := make(map[string]Account, len(demoAccounts))
	for _, account := range demoAccounts {
		accounts[strings.ToLower(account.Email)] = account
	}
	return &Vault{accounts: accounts}
}

// PaymentMethods returns the payment methods stored for the account email.
// Unknown accounts yield an empty list.
func (v *Vault) PaymentMethods(email string) []PaymentMethod {
	if v == nil {
		return nil
	}
	account, ok := v.accounts[strings.ToLower(strings.TrimSpace(email))]
	if !ok {
		return nil
	}
	methods := make([]PaymentMethod, len(account.PaymentMethods))
	copy(methods, account.PaymentMethods)
	return methods
}

// ShippingAddress returns the shipping address for the account email, or nil
// when the account is unknown or has no address on file.
func (v *Vault) ShippingAddress(email string) *mandate.ContactAddress {
	if v == nil {
		return nil
	}
	account, ok := v.accounts[strings.ToLower(strings.TrimSpace(email))]
	if !ok || account.ShippingAddress == nil {
		return nil
	}
	address := *account.ShippingAddress
	return &address
}

// PaymentMethodByAlias returns the payment method matching the alias for the
// account email. The alias comparison is case-insensitive.
func (v *Vault) PaymentMethodByAlias(email, alias string) (PaymentMethod, bool) {
	want := strings.ToLower(strings.TrimSpace(alias))
	for _, method := range v.PaymentMethods(email) {
		if strings.ToLower(method.Alias) == want {
			return method, true
		}
	}
	return PaymentMethod{}, false
}

var demoAccounts = []Account{
	{
		Email: "taro.yamada@gmail.com",
		ShippingAddress: &mandate.ContactAddress{
			Recipient:    "山田 太郎",
			Organization: "ヤマダ商事",
			AddressLine:  []string{"東京都新宿区西新宿2-8-1"},
			City:         "新宿区",
			Region:       "東京都",
			PostalCode:   "160-0023",
			Country:      "JP",
			PhoneNumber:  "+81-090-1234-5678",
		},
		PaymentMethods: []PaymentMethod{
			{
				Type:           MethodTypeCard,
				Alias:          "Visa（末尾 1234）",
				Network:        []CardNetwork{{Name: "visa", Formats: []string{"DPAN"}}},
				Cryptogram:     "fake_cryptogram_jp_visa_123",
				Token:          "4111111111111234",
				CardHolderName: "Taro Yamada",
				CardExpiration: "11/2027",
				CardBillingAddress: &BillingAddress{
					Country:    "JP",
					PostalCode: "160-0023",
				},
			},
			{
				Type:           MethodTypeCard,
				Alias:          "Mastercard（末尾 5678）",
				Network:        []CardNetwork{{Name: "mastercard", Formats: []string{"DPAN"}}},
				Cryptogram:     "fake_cryptogram_jp_mc_456",
				Token:          "5555555555555678",
				CardHolderName: "Taro Yamada",
				CardExpiration: "03/2026",
				CardBillingAddress: &BillingAddress{
					Country:    "JP",
					PostalCode: "160-0023",
				},
			},
			{
				Type:              MethodTypeDigitalWallet,
				Brand:             "PayPal",
				AccountIdentifier: "taro.paypal@gmail.com",
				Alias:             "山田さんのPayPal",
			},
			{
				Type:              MethodTypeDigitalWallet,
				Brand:             "LINE Pay",
				AccountIdentifier: "taro.line@gmail.com",
				Alias:             "LINE Payアカウント",
			},
		},
	},
	{
		Email: "hanako.suzuki@example.com",
		ShippingAddress: &mandate.ContactAddress{
			Recipient:   "鈴木 花子",
			AddressLine: []string{"大阪府大阪市北区梅田3-1-1"},
			City:        "大阪市",
			Region:      "大阪府",
			PostalCode:  "530-0001",
			Country:     "JP",
			PhoneNumber: "+81-80-9876-5432",
		},
		PaymentMethods: []PaymentMethod{
			{
				Type:           MethodTypeCard,
				Alias:          "JCB（末尾 9012）",
				Network:        []CardNetwork{{Name: "jcb", Formats: []string{"DPAN"}}},
				Cryptogram:     "fake_cryptogram_jcb_789",
				Token:          "3530111333309012",
				CardHolderName: "Hanako Suzuki",
				CardExpiration: "07/2028",
				CardBillingAddress: &BillingAddress{
					Country:    "JP",
					PostalCode: "530-0001",
				},
			},
			{
				Type:              MethodTypeDigitalWallet,
				Brand:             "Rakuten Pay",
				AccountIdentifier: "hanako.rpay@example.com",
				Alias:             "楽天ペイ",
			},
		},
	},
	{
		Email: "kenji.tanaka@example.com",
		PaymentMethods: []PaymentMethod{
			{
				Type:          MethodTypeBankAccount,
				Brand:         "三井住友銀行",
				AccountNumber: "1234567",
				Alias:         "メイン普通預金口座",
			},
		},
	},
}
