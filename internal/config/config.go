// Package config loads service configuration from a YAML file, an ejson
// secrets file and environment overrides.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"time"

	"dario.cat/mergo"
	"github.com/Shopify/ejson"
	"github.com/caarlos0/env/v6"
	"github.com/ghodss/yaml"
)

const (
	// ConfigEnvVar may hold the whole YAML config instead of a file.
	ConfigEnvVar = "OWNSPEND_CONFIG"
	// EjsonKeyEnvVar names a file holding the ejson private key.
	EjsonKeyEnvVar = "OWNSPEND_EJSON_SECRET_KEY"

	defaultKeyDir = "/opt/ejson/keys"
)

// Default returns the configuration used for unset fields.
func Default() Config {
	return Config{
		Server:   ServerConfig{Port: 8080, ShutdownTimeout: "30s"},
		Log:      LogConfig{Level: "info", Format: "console"},
		Database: DatabaseConfig{Driver: "postgres"},
		Worker: WorkerConfig{
			Workers:         5,
			QueueSize:       100,
			MaxRetries:      3,
			ReparseSchedule: "@every 30m",
		},
		BigQuery: BigQueryConfig{Dataset: "ownspend", Table: "transactions"},
	}
}

// Load reads configFile (or the YAML in OWNSPEND_CONFIG) and secretsFile,
// applies environment overrides and fills unset fields from Default. Either
// file may be empty to skip it.
func Load(configFile, secretsFile string) (*Config, error) {
	cfg := Config{}

	raw, err := readRaw(configFile)
	if err != nil {
		return nil, fmt.Errorf("Load: read config: %w", err)
	}
	if len(raw) > 0 {
		if err := yaml.Unmarshal(raw, &cfg); err != nil {
			return nil, fmt.Errorf("Load: parse config: %w", err)
		}
	}

	if err := env.Parse(&cfg); err != nil {
		return nil, fmt.Errorf("Load: env overrides: %w", err)
	}
	if err := mergo.Merge(&cfg, Default()); err != nil {
		return nil, fmt.Errorf("Load: apply defaults: %w", err)
	}

	secrets, err := readSecrets(secretsFile)
	if err != nil {
		return nil, fmt.Errorf("Load: %w", err)
	}
	cfg.Secrets = *secrets

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("Load: %w", err)
	}
	return &cfg, nil
}

func readRaw(filename string) ([]byte, error) {
	if rawEnv := os.Getenv(ConfigEnvVar); rawEnv != "" {
		return []byte(rawEnv), nil
	}
	if filename == "" {
		return nil, nil
	}
	return os.ReadFile(filename)
}

// readSecrets merges ejson secrets under env secrets; env values win.
func readSecrets(filename string) (*Secrets, error) {
	envSecrets := Secrets{}
	if err := env.Parse(&envSecrets); err != nil {
		return nil, fmt.Errorf("parse env secrets: %w", err)
	}
	if filename == "" {
		return &envSecrets, nil
	}

	ejsonSecrets, err := readEjsonSecrets(filename)
	if err != nil {
		return nil, fmt.Errorf("read ejson secrets: %w", err)
	}
	if err := mergo.Merge(&envSecrets, *ejsonSecrets); err != nil {
		return nil, fmt.Errorf("merge secrets: %w", err)
	}
	return &envSecrets, nil
}

func readEjsonSecrets(filename string) (*Secrets, error) {
	var key []byte
	if keyFile := os.Getenv(EjsonKeyEnvVar); keyFile != "" {
		var err error
		key, err = os.ReadFile(keyFile)
		if err != nil {
			return nil, err
		}
	}

	raw, err := ejson.DecryptFile(filename, defaultKeyDir, string(key))
	if err != nil {
		return nil, err
	}

	secrets := Secrets{}
	err = json.Unmarshal(raw, &secrets)
	return &secrets, err
}

// Validate checks values that cannot be defaulted.
func (c *Config) Validate() error {
	switch c.Database.Driver {
	case "postgres", "memory":
	default:
		return fmt.Errorf("unknown database driver %q", c.Database.Driver)
	}
	if _, err := time.ParseDuration(c.Server.ShutdownTimeout); err != nil {
		return fmt.Errorf("server.shutdownTimeout: %w", err)
	}
	seen := make(map[string]bool)
	for _, d := range c.Secrets.Devices {
		if d.APIKey == "" || d.OwnerID == "" {
			return fmt.Errorf("device %q: apiKey and ownerId are required", d.DeviceID)
		}
		if seen[d.APIKey] {
			return fmt.Errorf("device %q: duplicate apiKey", d.DeviceID)
		}
		seen[d.APIKey] = true
	}
	return nil
}

// ShutdownTimeout returns the parsed server shutdown timeout.
func (c *Config) ShutdownTimeout() time.Duration {
	d, err := time.ParseDuration(c.Server.ShutdownTimeout)
	if err != nil {
		return 30 * time.Second
	}
	return d
}
