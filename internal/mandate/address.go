package mandate

// ContactAddress is a physical delivery address as collected from the user
// or a credentials provider account.
type ContactAddress struct {
	Recipient    string   `json:"recipient,omitempty"`
	Organization string   `json:"organization,omitempty"`
	AddressLine  []string `json:"address_line,omitempty"`
	City         string   `json:"city,omitempty"`
	Region       string   `json:"region,omitempty"`
	PostalCode   string   `json:"postal_code,omitempty"`
	Country      string   `json:"country,omitempty"`
	PhoneNumber  string   `json:"phone_number,omitempty"`
}
