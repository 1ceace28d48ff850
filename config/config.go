// Package config centralises runtime configuration for the gateway.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Environment identifies the runtime environment the gateway targets.
type Environment string

const (
	// EnvDev marks the development (simulated trading) environment.
	EnvDev Environment = "dev"
	// EnvProd marks the production environment.
	EnvProd Environment = "prod"
)

// Endpoints holds the URLs of the five logical websocket channels.
type Endpoints struct {
	PublicSpot        string `yaml:"public_spot"`
	PublicFuturesUSDT string `yaml:"public_futures_usdt"`
	PublicFuturesBTC  string `yaml:"public_futures_btc"`
	PrivateSpot       string `yaml:"private_spot"`
	PrivateFutures    string `yaml:"private_futures"`
}

// Validate checks that every required endpoint is present. Private endpoints
// are required only when authentication is requested.
func (e Endpoints) Validate(authenticate bool) error {
	if e.PublicSpot == "" || e.PublicFuturesUSDT == "" || e.PublicFuturesBTC == "" {
		return fmt.Errorf("config: public endpoint URLs required")
	}
	if authenticate && (e.PrivateSpot == "" || e.PrivateFutures == "") {
		return fmt.Errorf("config: private endpoint URLs required when authenticating")
	}
	return nil
}

// Credentials captures API credentials used for authenticated channels.
type Credentials struct {
	Key        string `yaml:"key"`
	Secret     string `yaml:"secret"`
	Passphrase string `yaml:"passphrase"`
}

// TelemetryConfig configures the OTLP metrics exporter.
type TelemetryConfig struct {
	OTLPEndpoint string `yaml:"otlp_endpoint"`
	ServiceName  string `yaml:"service_name"`
}

// DatabaseConfig configures the durable order-mirror store.
type DatabaseConfig struct {
	DSN string `yaml:"dsn"`
}

// Settings contains the gateway configuration tree.
type Settings struct {
	Environment Environment               `yaml:"environment"`
	Endpoints   map[Environment]Endpoints `yaml:"endpoints"`
	Credentials Credentials               `yaml:"credentials"`
	Telemetry   TelemetryConfig           `yaml:"telemetry"`
	Database    DatabaseConfig            `yaml:"database"`
	DialTimeout time.Duration             `yaml:"dial_timeout"`
}

// Default returns the default gateway configuration.
func Default() Settings {
	return Settings{
		Environment: EnvProd,
		Endpoints: map[Environment]Endpoints{
			EnvProd: {
				PublicSpot:        "wss://api.gateio.ws/ws/v4/",
				PublicFuturesUSDT: "wss://fx-ws.gateio.ws/v4/ws/usdt",
				PublicFuturesBTC:  "wss://fx-ws.gateio.ws/v4/ws/btc",
				PrivateSpot:       "wss://api.gateio.ws/ws/v4/",
				PrivateFutures:    "wss://fx-ws.gateio.ws/v4/ws/usdt",
			},
			EnvDev: {
				// Spot has no testnet; dev reuses the production spot URLs.
				PublicSpot:        "wss://api.gateio.ws/ws/v4/",
				PublicFuturesUSDT: "wss://fx-ws-testnet.gateio.ws/v4/ws/usdt",
				PublicFuturesBTC:  "wss://fx-ws-testnet.gateio.ws/v4/ws/btc",
				PrivateSpot:       "wss://api.gateio.ws/ws/v4/",
				PrivateFutures:    "wss://fx-ws-testnet.gateio.ws/v4/ws/usdt",
			},
		},
		Credentials: Credentials{},
		Telemetry:   TelemetryConfig{ServiceName: "gateio-gateway"},
		Database:    DatabaseConfig{},
		DialTimeout: 10 * time.Second,
	}
}

// FromEnv loads configuration values from environment variables, overriding
// defaults. Endpoint variables follow the established naming scheme, e.g.
// DEV_GATEIO_PUBLIC_FUTURES_BTC_URL.
func FromEnv() Settings {
	cfg := Default()
	if env := strings.TrimSpace(os.Getenv("GATEIO_ENV_MODE")); env != "" {
		cfg.Environment = Environment(strings.ToLower(env))
	}

	for _, env := range []Environment{EnvDev, EnvProd} {
		prefix := strings.ToUpper(string(env)) + "_GATEIO_"
		ep := cfg.Endpoints[env]
		overrideEndpoint(&ep.PublicSpot, prefix+"PUBLIC_SPOT_URL")
		overrideEndpoint(&ep.PublicFuturesUSDT, prefix+"PUBLIC_FUTURES_USDT_URL")
		overrideEndpoint(&ep.PublicFuturesBTC, prefix+"PUBLIC_FUTURES_BTC_URL")
		overrideEndpoint(&ep.PrivateSpot, prefix+"PRIVATE_SPOT_URL")
		overrideEndpoint(&ep.PrivateFutures, prefix+"PRIVATE_FUTURES_USDT_URL")
		cfg.Endpoints[env] = ep
	}

	if v := strings.TrimSpace(os.Getenv("GATEIO_API_KEY")); v != "" {
		cfg.Credentials.Key = v
	}
	if v := strings.TrimSpace(os.Getenv("GATEIO_API_SECRET")); v != "" {
		cfg.Credentials.Secret = v
	}
	if v := strings.TrimSpace(os.Getenv("GATEIO_API_PASSPHRASE")); v != "" {
		cfg.Credentials.Passphrase = v
	}
	if v := strings.TrimSpace(os.Getenv("GATEWAY_DATABASE_DSN")); v != "" {
		cfg.Database.DSN = v
	}
	if v := strings.TrimSpace(os.Getenv("GATEWAY_OTLP_ENDPOINT")); v != "" {
		cfg.Telemetry.OTLPEndpoint = v
	}
	if v := strings.TrimSpace(os.Getenv("GATEWAY_DIAL_TIMEOUT")); v != "" {
		if dur, err := time.ParseDuration(v); err == nil {
			cfg.DialTimeout = dur
		}
	}
	return cfg
}

// Load reads a YAML configuration file and layers it over FromEnv values.
// A missing file is not an error; environment values stand alone.
func Load(path string) (Settings, error) {
	cfg := FromEnv()
	path = strings.TrimSpace(path)
	if path == "" {
		path = "config/gateway.yaml"
	}
	data, err := os.ReadFile(filepath.Clean(path))
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return Settings{}, fmt.Errorf("read gateway config: %w", err)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return Settings{}, fmt.Errorf("unmarshal gateway config: %w", err)
	}
	return cfg, nil
}

// Option mutates Settings when applied via Apply.
type Option func(*Settings)

// Apply applies the provided Option set to a copy of the base Settings.
func Apply(base Settings, opts ...Option) Settings {
	cfg := base.clone()
	for _, opt := range opts {
		if opt != nil {
			opt(&cfg)
		}
	}
	return cfg
}

// WithEnvironment configures the top-level environment.
func WithEnvironment(env Environment) Option {
	return func(s *Settings) {
		if env != "" {
			s.Environment = env
		}
	}
}

// WithCredentials overrides the API credentials.
func WithCredentials(key, secret, passphrase string) Option {
	return func(s *Settings) {
		if key != "" {
			s.Credentials.Key = key
		}
		if secret != "" {
			s.Credentials.Secret = secret
		}
		if passphrase != "" {
			s.Credentials.Passphrase = passphrase
		}
	}
}

// WithEndpoints overrides the endpoint set for one environment.
func WithEndpoints(env Environment, endpoints Endpoints) Option {
	return func(s *Settings) {
		if env == "" {
			return
		}
		if s.Endpoints == nil {
			s.Endpoints = make(map[Environment]Endpoints)
		}
		s.Endpoints[env] = endpoints
	}
}

// ResolveEndpoints returns the endpoint set for the configured environment.
func (s Settings) ResolveEndpoints() (Endpoints, bool) {
	ep, ok := s.Endpoints[s.Environment]
	return ep, ok
}

// SimTrading reports whether the environment implies simulated trading.
func (s Settings) SimTrading() bool {
	return s.Environment == EnvDev
}

func (s Settings) clone() Settings {
	out := s
	if s.Endpoints != nil {
		out.Endpoints = make(map[Environment]Endpoints, len(s.Endpoints))
		for k, v := range s.Endpoints {
			out.Endpoints[k] = v
		}
	}
	return out
}

func overrideEndpoint(target *string, name string) {
	if v := strings.TrimSpace(os.Getenv(name)); v != "" {
		*target = v
	}
}
