// Package processor parses payment processor flags and launches the service.
package processor

import (
	"context"
	"flag"

	entrypoint "github.com/louisbranch/agentpay/internal/platform/cmd"
	server "github.com/louisbranch/agentpay/internal/services/processor/app"
)

// Config holds processor command configuration.
type Config struct {
	Port int `env:"AGENTPAY_PROCESSOR_PORT" envDefault:"8092"`
}

// ParseConfig parses environment and flags into Config.
func ParseConfig(fs *flag.FlagSet, args []string) (Config, error) {
	var cfg Config
	if err := entrypoint.ParseConfig(&cfg); err != nil {
		return Config{}, err
	}
	fs.IntVar(&cfg.Port, "port", cfg.Port, "The payment processor agent endpoint port")
	if err := entrypoint.ParseArgs(fs, args); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Run starts the payment processor agent endpoint service.
func Run(ctx context.Context, cfg Config) error {
	return entrypoint.RunWithTelemetry(ctx, entrypoint.ServiceProcessor, func(context.Context) error {
		return server.Run(ctx, cfg.Port)
	})
}
