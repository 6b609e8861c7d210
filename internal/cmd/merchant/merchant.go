// Package merchant parses merchant service flags and launches the service.
package merchant

import (
	"context"
	"flag"

	entrypoint "github.com/louisbranch/agentpay/internal/platform/cmd"
	server "github.com/louisbranch/agentpay/internal/services/merchant/app"
)

// Config holds merchant command configuration.
type Config struct {
	Port int `env:"AGENTPAY_MERCHANT_PORT" envDefault:"8091"`
}

// ParseConfig parses environment and flags into Config.
func ParseConfig(fs *flag.FlagSet, args []string) (Config, error) {
	var cfg Config
	if err := entrypoint.ParseConfig(&cfg); err != nil {
		return Config{}, err
	}
	fs.IntVar(&cfg.Port, "port", cfg.Port, "The merchant agent endpoint port")
	if err := entrypoint.ParseArgs(fs, args); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Run starts the merchant agent endpoint service.
func Run(ctx context.Context, cfg Config) error {
	return entrypoint.RunWithTelemetry(ctx, entrypoint.ServiceMerchant, func(context.Context) error {
		return server.Run(ctx, cfg.Port)
	})
}
