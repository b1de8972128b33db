package config

import (
	"fmt"
	"os"
	"strings"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/structs"
	"github.com/knadh/koanf/v2"
)

// EnvPrefix prefixes every environment override, e.g.
// TWEETCASTR_STREAM_BEARER_TOKEN sets stream.bearer_token.
const EnvPrefix = "TWEETCASTR_"

// ConfigPathEnvVar overrides the config file path when no flag is given.
const ConfigPathEnvVar = "TWEETCASTR_CONFIG"

// DefaultConfigPath is read when present and nothing else was requested.
const DefaultConfigPath = "tweetcastr.yaml"

// Unprefixed variables kept for compatibility with the usual deployment env.
var envAliases = map[string]string{
	"log_level":  "logging.level",
	"log_format": "logging.format",
}

var sliceConfigPaths = []string{
	"stream.languages",
	"ingest.stop_words",
}

// Load builds the configuration. path names an explicit YAML file and may be
// empty; an explicit file that cannot be read is an error.
func Load(path string) (*Config, error) {
	k := koanf.New(".")

	if err := k.Load(structs.Provider(defaultConfig(), "koanf"), nil); err != nil {
		return nil, fmt.Errorf("failed to load defaults: %w", err)
	}

	configPath, err := findConfigFile(path)
	if err != nil {
		return nil, err
	}
	if configPath != "" {
		if err := k.Load(file.Provider(configPath), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("failed to load config file %s: %w", configPath, err)
		}
	}

	if err := k.Load(env.ProviderWithValue("", ".", envTransformFunc), nil); err != nil {
		return nil, fmt.Errorf("failed to load environment variables: %w", err)
	}

	if err := processSliceFields(k); err != nil {
		return nil, fmt.Errorf("failed to process slice fields: %w", err)
	}

	cfg := &Config{}
	if err := k.Unmarshal("", cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal configuration: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return cfg, nil
}

func findConfigFile(explicit string) (string, error) {
	if explicit == "" {
		explicit = os.Getenv(ConfigPathEnvVar)
	}
	if explicit != "" {
		if _, err := os.Stat(explicit); err != nil {
			return "", fmt.Errorf("config file %s: %w", explicit, err)
		}
		return explicit, nil
	}

	if _, err := os.Stat(DefaultConfigPath); err == nil {
		return DefaultConfigPath, nil
	}
	return "", nil
}

// envTransformFunc maps TWEETCASTR_SECTION_KEY to section.key. Empty values
// and variables outside the prefix are ignored unless aliased.
func envTransformFunc(key, value string) (string, any) {
	if value == "" {
		return "", nil
	}

	if mapped, ok := envAliases[strings.ToLower(key)]; ok {
		return mapped, value
	}

	if !strings.HasPrefix(key, EnvPrefix) || key == ConfigPathEnvVar {
		return "", nil
	}
	rest := strings.ToLower(strings.TrimPrefix(key, EnvPrefix))
	if !strings.Contains(rest, "_") {
		return "", nil
	}
	return strings.Replace(rest, "_", ".", 1), value
}

// processSliceFields splits comma-separated env values into lists.
func processSliceFields(k *koanf.Koanf) error {
	for _, path := range sliceConfigPaths {
		strVal, ok := k.Get(path).(string)
		if !ok {
			continue
		}

		parts := strings.Split(strVal, ",")
		trimmed := make([]string, 0, len(parts))
		for _, p := range parts {
			if p = strings.TrimSpace(p); p != "" {
				trimmed = append(trimmed, p)
			}
		}
		if err := k.Set(path, trimmed); err != nil {
			return fmt.Errorf("failed to set %s: %w", path, err)
		}
	}
	return nil
}
