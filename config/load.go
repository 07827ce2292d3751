package config

import (
	"errors"
	"fmt"
	"io/fs"
	"strings"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
)

const (
	EnvPrefix = "CONSUMER__"

	// broker settings use dotted keys, so nesting is split on "/" instead.
	keyDelim = "/"
	envDelim = "__"
)

// Load merges the YAML file at path (optional, skipped when missing) with environment
// variables, applies defaults and validates the result.
//
// Environment keys are prefixed with CONSUMER__ and nested with __, e.g.
// CONSUMER__SUBSCRIPTION_GROUP__MAX_MESSAGES=50. Broker settings keep their dots:
// CONSUMER__SUBSCRIPTION_GROUP__KAFKA__bootstrap.servers=localhost:9092.
func Load(path string) (Config, error) {
	k := koanf.New(keyDelim)

	if path != "" {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return Config{}, fmt.Errorf("load config file %s: %w", path, err)
		}
	}

	if err := k.Load(env.Provider(EnvPrefix, keyDelim, envKey), nil); err != nil {
		return Config{}, fmt.Errorf("load config env: %w", err)
	}

	var cfg Config
	if err := k.Unmarshal("", &cfg); err != nil {
		return Config{}, fmt.Errorf("decode config: %w", err)
	}

	applyDefaults(&cfg)

	if err := cfg.Validate(); err != nil {
		return Config{}, fmt.Errorf("invalid config: %w", err)
	}

	return cfg, nil
}

// envKey maps CONSUMER__A__B__bootstrap.servers to a/b/bootstrap.servers.
// Only segments without dots are lowercased.
func envKey(s string) string {
	parts := strings.Split(strings.TrimPrefix(s, EnvPrefix), envDelim)
	for i, p := range parts {
		if !strings.Contains(p, ".") {
			parts[i] = strings.ToLower(p)
		}
	}
	return strings.Join(parts, keyDelim)
}
