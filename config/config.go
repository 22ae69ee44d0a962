// Package config loads client configuration from YAML files and NEAR_*
// environment variables. Environment values override file values.
package config

import (
	"strings"
	"time"

	"github.com/pkg/errors"
	"github.com/spf13/viper"
)

// Config carries everything needed to stand up a client: node endpoints,
// signing identity, and intent routing.
type Config struct {
	LogLevel string    `mapstructure:"log_level"`
	RPC      RPCConfig `mapstructure:"rpc"`
	Account  Account   `mapstructure:"account"`
	Intents  Intents   `mapstructure:"intents"`
}

// RPCConfig configures the multi-endpoint RPC client.
type RPCConfig struct {
	// Endpoints are node URLs, optionally "https://token@host" for
	// authenticated nodes. Order matters: failover walks the list.
	Endpoints []string `mapstructure:"endpoints"`

	Timeout        time.Duration `mapstructure:"timeout"`
	HealthInterval time.Duration `mapstructure:"health_interval"`

	// Broadcast submits transactions to every endpoint concurrently
	// instead of walking the failover order.
	Broadcast bool `mapstructure:"broadcast"`
}

// Account is the signing identity: one account, one or more ed25519 keys in
// "ed25519:<base58>" form.
type Account struct {
	ID          string   `mapstructure:"id"`
	PrivateKeys []string `mapstructure:"private_keys"`
}

// Intents configures the intent subsystem.
type Intents struct {
	RelayURL string `mapstructure:"relay_url"`
	Contract string `mapstructure:"contract"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("log_level", "info")
	v.SetDefault("rpc.endpoints", []string{"https://rpc.mainnet.near.org"})
	v.SetDefault("rpc.timeout", 30*time.Second)
	v.SetDefault("rpc.health_interval", 30*time.Second)
	v.SetDefault("rpc.broadcast", false)
	v.SetDefault("intents.relay_url", "https://solver-relay-v2.chaindefuser.com/rpc")
	v.SetDefault("intents.contract", "intents.near")
}

// Load reads configuration from the given YAML file, then applies NEAR_*
// environment overrides. An empty path loads defaults and environment only.
func Load(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix("NEAR")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, errors.Wrapf(err, "reading config %s", path)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, errors.Wrap(err, "decoding config")
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks the invariants the client constructors rely on.
func (c *Config) Validate() error {
	if len(c.RPC.Endpoints) == 0 {
		return errors.New("config: at least one rpc endpoint is required")
	}
	if c.RPC.Timeout <= 0 {
		return errors.New("config: rpc timeout must be positive")
	}
	for _, key := range c.Account.PrivateKeys {
		if !strings.HasPrefix(key, "ed25519:") {
			return errors.New("config: private keys must carry the ed25519: prefix")
		}
	}
	return nil
}
