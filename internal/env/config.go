package env

import (
	"context"
	"os"

	"github.com/joho/godotenv"
	"github.com/sethvargo/go-envconfig"
)

type Config struct {
	// Host is the firewall management hostname or URL.
	Host string `env:"HERALD_HOST"`

	// APIKey authenticates against the management API.
	APIKey string `env:"HERALD_API_KEY"`

	// Vsys is the vsys context sent with every call, empty for the
	// device default.
	Vsys string `env:"HERALD_VSYS"`

	// Prefix namespaces every tag Herald registers.
	Prefix string `env:"HERALD_PREFIX"`

	// SkipVerify disables TLS verification of the management certificate.
	SkipVerify bool `env:"HERALD_SKIP_VERIFY"`

	Debug bool `env:"HERALD_DEBUG"`
}

func LoadConfig(ctx context.Context) (*Config, error) {
	config := Config{}

	if err := godotenv.Load(".env.local"); err != nil {
		if !os.IsNotExist(err) {
			panic(err)
		}
	}

	if err := envconfig.Process(ctx, &config); err != nil {
		return nil, err
	}

	return &config, nil
}
