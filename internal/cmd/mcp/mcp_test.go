package mcp

import (
	"flag"
	"testing"
)

func TestParseConfigDefaults(t *testing.T) {
	fs := flag.NewFlagSet("mcp", flag.ContinueOnError)
	cfg, err := ParseConfig(fs, nil)
	if err != nil {
		t.Fatalf("parse config: %v", err)
	}
	if cfg.MerchantURL != "http://localhost:8091" {
		t.Fatalf("expected default merchant url, got %q", cfg.MerchantURL)
	}
	if cfg.CredentialsURL != "http://localhost:8093" {
		t.Fatalf("expected default credentials url, got %q", cfg.CredentialsURL)
	}
}

func TestParseConfigOverrides(t *testing.T) {
	t.Setenv("AGENTPAY_MCP_MERCHANT_URL", "http://env-merchant")

	fs := flag.NewFlagSet("mcp", flag.ContinueOnError)
	args := []string{"-merchant-url", "http://flag-merchant", "-credentials-url", "http://flag-credentials"}
	cfg, err := ParseConfig(fs, args)
	if err != nil {
		t.Fatalf("parse config: %v", err)
	}
	if cfg.MerchantURL != "http://flag-merchant" {
		t.Fatalf("expected flag merchant url, got %q", cfg.MerchantURL)
	}
	if cfg.CredentialsURL != "http://flag-credentials" {
		t.Fatalf("expected flag credentials url, got %q", cfg.CredentialsURL)
	}
}
