package config

import (
	"fmt"

	"github.com/kelseyhightower/envconfig"
)

// Env contains the process level configuration read from VERIFIER_*
// environment variables.
type Env struct {
	HTTPAddr      string `envconfig:"HTTP_ADDR" default:":9000"`
	RedisURL      string `envconfig:"REDIS_URL" default:"redis://localhost:6379/0"`
	RPCURL        string `envconfig:"RPC_URL" default:"https://rpc.berachain.com"`
	RPCRateLimit  int    `envconfig:"RPC_RATE_LIMIT" default:"10"`
	DiscordToken  string `envconfig:"DISCORD_TOKEN"`
	SigningKey    string `envconfig:"SIGNING_KEY"`
	SettingsFile  string `envconfig:"SETTINGS_FILE" default:"config/settings.yaml"`
	LogLevel      string `envconfig:"LOG_LEVEL" default:"info"`
	LogFormat     string `envconfig:"LOG_FORMAT" default:"plain"`
	MetricsPrefix string `envconfig:"METRICS_NAMESPACE" default:"verifier"`
}

// LoadEnv processes the environment.
func LoadEnv() (*Env, error) {
	env := &Env{}
	if err := envconfig.Process("verifier", env); err != nil {
		return nil, fmt.Errorf("failed to process config: %w", err)
	}
	return env, nil
}
