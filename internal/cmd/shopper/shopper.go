// Package shopper parses shopper CLI flags and runs a scripted purchase
// against live merchant and credentials provider endpoints.
package shopper

import (
	"bufio"
	"context"
	"flag"
	"fmt"
	"io"
	"strings"

	"github.com/louisbranch/agentpay/internal/a2a"
	"github.com/louisbranch/agentpay/internal/mandate"
	entrypoint "github.com/louisbranch/agentpay/internal/platform/cmd"
	"github.com/louisbranch/agentpay/internal/services/shopper/flow"
	"github.com/louisbranch/agentpay/internal/services/shopper/format"
	"github.com/louisbranch/agentpay/internal/signing"
)

// maxOTPAttempts bounds interactive challenge retries before giving up.
const maxOTPAttempts = 3

// Config holds shopper command configuration.
type Config struct {
	MerchantURL    string `env:"AGENTPAY_SHOPPER_MERCHANT_URL"    envDefault:"http://localhost:8091"`
	CredentialsURL string `env:"AGENTPAY_SHOPPER_CREDENTIALS_URL" envDefault:"http://localhost:8093"`
	AccountEmail   string `env:"AGENTPAY_SHOPPER_ACCOUNT_EMAIL"   envDefault:"taro.yamada@gmail.com"`

	Intent             string
	CartID             string
	PaymentMethodAlias string
	OTP                string
}

// ParseConfig parses environment and flags into Config.
func ParseConfig(fs *flag.FlagSet, args []string) (Config, error) {
	var cfg Config
	if err := entrypoint.ParseConfig(&cfg); err != nil {
		return Config{}, err
	}
	fs.StringVar(&cfg.MerchantURL, "merchant-url", cfg.MerchantURL, "merchant agent endpoint URL")
	fs.StringVar(&cfg.CredentialsURL, "credentials-url", cfg.CredentialsURL, "credentials provider endpoint URL")
	fs.StringVar(&cfg.AccountEmail, "account", cfg.AccountEmail, "credentials provider account email")
	fs.StringVar(&cfg.Intent, "intent", "おむつを買ってください。", "what to buy")
	fs.StringVar(&cfg.CartID, "cart", "", "cart id to purchase (default: first offer)")
	fs.StringVar(&cfg.PaymentMethodAlias, "method", "", "payment method alias (default: first usable)")
	fs.StringVar(&cfg.OTP, "otp", "", "challenge response (default: prompt on stdin)")
	if err := entrypoint.ParseArgs(fs, args); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Run executes one purchase end to end.
func Run(ctx context.Context, cfg Config, in io.Reader, out io.Writer) error {
	return entrypoint.RunWithTelemetry(ctx, entrypoint.ServiceShopper, func(context.Context) error {
		return runPurchase(ctx, cfg, in, out)
	})
}

func runPurchase(ctx context.Context, cfg Config, in io.Reader, out io.Writer) error {
	if in == nil {
		in = strings.NewReader("")
	}
	if out == nil {
		out = io.Discard
	}
	signer, err := signing.NewSignerFromEnv(nil)
	if err != nil {
		return fmt.Errorf("load signing key: %w", err)
	}
	session := flow.NewSession(flow.Config{
		Merchant: a2a.NewClient(a2a.ClientConfig{
			Name:               "merchant",
			BaseURL:            cfg.MerchantURL,
			RequiredExtensions: []string{mandate.ExtensionURI},
		}),
		Credentials: a2a.NewClient(a2a.ClientConfig{
			Name:               "credentials_provider",
			BaseURL:            cfg.CredentialsURL,
			RequiredExtensions: []string{mandate.ExtensionURI},
		}),
		Signer: signer,
	})

	if _, err := session.CreateIntent(cfg.Intent, nil, nil, false); err != nil {
		return fmt.Errorf("create intent: %w", err)
	}
	fmt.Fprintf(out, "Intent: %s\n\n", cfg.Intent)

	carts, err := session.FindProducts(ctx)
	if err != nil {
		return fmt.Errorf("find products: %w", err)
	}
	fmt.Fprintf(out, "Offers (%d):\n", len(carts))
	for _, cart := range carts {
		fmt.Fprintln(out, format.CartSummary(cart))
	}
	fmt.Fprintln(out)

	cartID := cfg.CartID
	if cartID == "" && len(carts) > 0 {
		cartID = carts[0].Contents.ID
	}
	if err := session.SelectCart(cartID); err != nil {
		return fmt.Errorf("select cart: %w", err)
	}
	fmt.Fprintf(out, "Selected cart: %s\n\n", cartID)

	address, err := session.GetShippingAddress(ctx, cfg.AccountEmail)
	if err != nil {
		return fmt.Errorf("get shipping address: %w", err)
	}
	fmt.Fprintf(out, "Shipping to:\n%s\n\n", format.Address(address))

	aliases, err := session.SearchPaymentMethods(ctx)
	if err != nil {
		return fmt.Errorf("search payment methods: %w", err)
	}
	if len(aliases) == 0 {
		return fmt.Errorf("no payment methods usable with cart %s", cartID)
	}
	alias := cfg.PaymentMethodAlias
	if alias == "" {
		alias = aliases[0]
	}
	fmt.Fprintf(out, "Payment method: %s\n\n", alias)

	if _, err := session.CreatePaymentCredentialToken(ctx, alias); err != nil {
		return fmt.Errorf("create payment credential token: %w", err)
	}

	finalCart, err := session.UpdateCart(ctx)
	if err != nil {
		return fmt.Errorf("finalize cart: %w", err)
	}
	fmt.Fprintf(out, "Final cart:\n%s\n\n", format.CartSummary(finalCart))

	if _, err := session.CreatePaymentMandate(ctx); err != nil {
		return fmt.Errorf("create payment mandate: %w", err)
	}
	if err := session.SignMandates(); err != nil {
		return fmt.Errorf("sign mandates: %w", err)
	}
	if err := session.SendSignedPaymentMandate(ctx); err != nil {
		return fmt.Errorf("send signed payment mandate: %w", err)
	}

	outcome, err := session.InitiatePayment(ctx)
	if err != nil {
		return fmt.Errorf("initiate payment: %w", err)
	}

	scanner := bufio.NewScanner(in)
	for attempt := 0; outcome.State == a2a.TaskStateInputRequired; attempt++ {
		if attempt >= maxOTPAttempts {
			return fmt.Errorf("challenge unanswered after %d attempts", maxOTPAttempts)
		}
		fmt.Fprintf(out, "%s\n", outcome.ChallengeText)
		otp := cfg.OTP
		if otp == "" {
			fmt.Fprint(out, "OTP: ")
			if !scanner.Scan() {
				return fmt.Errorf("no challenge response provided")
			}
			otp = strings.TrimSpace(scanner.Text())
		}
		outcome, err = session.InitiatePaymentWithOTP(ctx, otp)
		if err != nil {
			return fmt.Errorf("answer challenge: %w", err)
		}
		// A flag-supplied OTP is only tried once.
		cfg.OTP = ""
	}

	switch outcome.State {
	case a2a.TaskStateCompleted:
		fmt.Fprintf(out, "\n%s\n", format.ReceiptSummary(*outcome.Receipt))
		return nil
	case a2a.TaskStateFailed:
		return fmt.Errorf("payment failed: %s", outcome.FailureReason)
	default:
		return fmt.Errorf("payment ended in unexpected state %s", outcome.State)
	}
}
