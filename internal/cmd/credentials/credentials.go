// Package credentials parses credentials provider flags and launches the service.
package credentials

import (
	"context"
	"flag"

	entrypoint "github.com/louisbranch/agentpay/internal/platform/cmd"
	server "github.com/louisbranch/agentpay/internal/services/credentials/app"
)

// Config holds credentials provider command configuration.
type Config struct {
	Port int `env:"AGENTPAY_CREDENTIALS_PORT" envDefault:"8093"`
}

// ParseConfig parses environment and flags into Config.
func ParseConfig(fs *flag.FlagSet, args []string) (Config, error) {
	var cfg Config
	if err := entrypoint.ParseConfig(&cfg); err != nil {
		return Config{}, err
	}
	fs.IntVar(&cfg.Port, "port", cfg.Port, "The credentials provider agent endpoint port")
	if err := entrypoint.ParseArgs(fs, args); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Run starts the credentials provider agent endpoint service.
func Run(ctx context.Context, cfg Config) error {
	return entrypoint.RunWithTelemetry(ctx, entrypoint.ServiceCredentials, func(context.Context) error {
		return server.Run(ctx, cfg.Port)
	})
}
