// Package config loads server configuration from an optional config.yaml
// plus PONDER_-prefixed environment variables, env taking precedence.
package config

import (
	"os"
	"regexp"
	"strings"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
)

type Config struct {
	Server   ServerConfig   `koanf:"server"`
	Provider ProviderConfig `koanf:"provider"`
	Patches  PatchesConfig  `koanf:"patches"`
	Storage  StorageConfig  `koanf:"storage"`
}

type ServerConfig struct {
	Port int `koanf:"port"`
}

// ProviderConfig is the server-side default provider. Request settings can
// override any of these per call.
type ProviderConfig struct {
	APIKey  string `koanf:"api_key"`
	BaseURL string `koanf:"base_url"`
	Model   string `koanf:"model"`
}

type PatchesConfig struct {
	Dir string `koanf:"dir"`
}

type StorageConfig struct {
	Path string `koanf:"path"` // SQLite database path; empty disables persistence
}

var envVarPattern = regexp.MustCompile(`\$\{([^}]+)\}`)

func Load() (*Config, error) {
	k := koanf.New(".")

	// Try to load from config.yaml file first
	if err := k.Load(file.Provider("config.yaml"), yaml.Parser()); err != nil {
		// File not found is OK, we'll use env vars
		if !os.IsNotExist(err) {
			return nil, err
		}
	}

	// Load environment variables (can override file config)
	if err := k.Load(env.Provider("PONDER_", ".", func(s string) string {
		return strings.Replace(strings.ToLower(strings.TrimPrefix(s, "PONDER_")), "__", ".", -1)
	}), nil); err != nil {
		return nil, err
	}

	// Default values
	if !k.Exists("server.port") {
		k.Set("server.port", 8080)
	}
	if !k.Exists("patches.dir") {
		k.Set("patches.dir", "patches/context")
	}

	var cfg Config
	if err := k.Unmarshal("", &cfg); err != nil {
		return nil, err
	}

	// Substitute environment variables in secrets so config.yaml can say
	// api_key: ${OPENAI_API_KEY} without embedding the value.
	cfg.Provider.APIKey = substituteEnvVars(cfg.Provider.APIKey)
	cfg.Provider.BaseURL = substituteEnvVars(cfg.Provider.BaseURL)

	return &cfg, nil
}

func substituteEnvVars(s string) string {
	return envVarPattern.ReplaceAllStringFunc(s, func(match string) string {
		// Extract variable name from ${VAR_NAME}
		varName := envVarPattern.FindStringSubmatch(match)[1]
		return os.Getenv(varName)
	})
}
