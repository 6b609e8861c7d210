// Package format renders purchase data for terminal display.
package format

import (
	"fmt"
	"strings"

	"golang.org/x/text/currency"
	"golang.org/x/text/language"
	"golang.org/x/text/message"

	"github.com/louisbranch/agentpay/internal/mandate"
)

// Amount renders a currency amount with its symbol, e.g. "¥3,330".
// Unknown currency codes fall back to a plain "3330 XXX" rendering.
func Amount(amount mandate.CurrencyAmount) string {
	unit, err := currency.ParseISO(amount.Currency)
	if err != nil {
		return fmt.Sprintf("%d %s", amount.Value, amount.Currency)
	}
	printer := message.NewPrinter(language.Japanese)
	return printer.Sprint(currency.Symbol(unit.Amount(amount.Value)))
}

// CartSummary renders the cart's line items and total, one per line.
func CartSummary(cart mandate.CartMandate) string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s (%s)\n", cart.Contents.MerchantName, cart.Contents.ID)
	for _, item := range cart.Contents.PaymentRequest.Details.DisplayItems {
		fmt.Fprintf(&b, "  %s  %s\n", item.Label, Amount(item.Amount))
	}
	total := cart.Contents.PaymentRequest.Details.Total
	fmt.Fprintf(&b, "  %s  %s", total.Label, Amount(total.Amount))
	return b.String()
}

// Address renders a shipping address block.
func Address(address mandate.ContactAddress) string {
	var lines []string
	if address.Recipient != "" {
		lines = append(lines, address.Recipient)
	}
	if address.Organization != "" {
		lines = append(lines, address.Organization)
	}
	lines = append(lines, address.AddressLine...)
	region := strings.TrimSpace(address.Region + " " + address.City + " " + address.PostalCode)
	if region != "" {
		lines = append(lines, region)
	}
	if address.PhoneNumber != "" {
		lines = append(lines, address.PhoneNumber)
	}
	return strings.Join(lines, "\n")
}

// ReceiptSummary renders the final payment receipt block.
func ReceiptSummary(receipt mandate.PaymentReceipt) string {
	var b strings.Builder
	b.WriteString("Payment Receipt\n")
	fmt.Fprintf(&b, "  payment id: %s\n", receipt.PaymentID)
	fmt.Fprintf(&b, "  amount:     %s\n", Amount(receipt.Amount))
	if receipt.Success != nil {
		fmt.Fprintf(&b, "  status:     success (confirmation %s)", receipt.Success.PSPConfirmationID)
	} else if receipt.Failure != nil {
		fmt.Fprintf(&b, "  status:     failed (%s)", receipt.Failure.Reason)
	}
	return b.String()
}
