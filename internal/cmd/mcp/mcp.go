// Package mcp parses MCP command flags and launches the stdio server.
package mcp

import (
	"context"
	"flag"

	entrypoint "github.com/louisbranch/agentpay/internal/platform/cmd"
	"github.com/louisbranch/agentpay/internal/services/mcp/service"
)

// Config holds MCP command configuration.
type Config struct {
	MerchantURL    string `env:"AGENTPAY_MCP_MERCHANT_URL"    envDefault:"http://localhost:8091"`
	CredentialsURL string `env:"AGENTPAY_MCP_CREDENTIALS_URL" envDefault:"http://localhost:8093"`
}

// ParseConfig parses environment and flags into a Config.
func ParseConfig(fs *flag.FlagSet, args []string) (Config, error) {
	var cfg Config
	if err := entrypoint.ParseConfig(&cfg); err != nil {
		return Config{}, err
	}
	fs.StringVar(&cfg.MerchantURL, "merchant-url", cfg.MerchantURL, "merchant agent endpoint URL")
	fs.StringVar(&cfg.CredentialsURL, "credentials-url", cfg.CredentialsURL, "credentials provider endpoint URL")
	if err := entrypoint.ParseArgs(fs, args); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Run starts the MCP protocol adapter on stdio.
func Run(ctx context.Context, cfg Config) error {
	return entrypoint.RunWithTelemetry(ctx, entrypoint.ServiceMCP, func(context.Context) error {
		return service.Run(ctx, service.Config{
			MerchantURL:    cfg.MerchantURL,
			CredentialsURL: cfg.CredentialsURL,
		})
	})
}
