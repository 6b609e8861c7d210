package mandate

// Canonical data-part keys. These tag typed documents inside a generic
// message payload and are the wire contract between independently developed
// agents. They must remain stable strings.
const (
	IntentMandateKey  = "agentpay.mandates.IntentMandate"
	CartMandateKey    = "agentpay.mandates.CartMandate"
	PaymentMandateKey = "agentpay.mandates.PaymentMandate"
	PaymentReceiptKey = "agentpay.mandates.PaymentReceipt"
)

// Auxiliary data-part keys used alongside mandates in the purchase flow.
const (
	RiskDataKey             = "risk_data"
	CartIDKey               = "cart_id"
	ShippingAddressKey      = "shipping_address"
	ChallengeKey            = "challenge"
	ChallengeResponseKey    = "challenge_response"
	AccountEmailKey         = "account_email"
	PaymentMethodAliasKey   = "payment_method_alias"
	PaymentMethodAliasesKey = "payment_method_aliases"
	PaymentMethodKey        = "payment_method"
	CredentialTokenKey      = "credential_token"
	ShoppingAgentIDKey      = "shopping_agent_id"
	DebugModeKey            = "debug_mode"
)

// ExtensionURI identifies the mandate exchange capability an agent must
// advertise on its card before any purchase message is accepted.
const ExtensionURI = "https://agentpay.dev/ext/mandates/v1"
