package config

import (
	"bufio"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strings"

	"github.com/kelseyhightower/envconfig"
)

// EnvPrefix is the default prefix for environment overrides, e.g.
// HITCLIENT_BASE_URL or HITCLIENT_HEADERS="X-Api-Key:abc,Accept:text/plain".
const EnvPrefix = "HITCLIENT"

// LoadEnv reads overrides from the environment. Only variables that are set
// end up non-zero, so the result is meant to be merged over a file config.
func LoadEnv(prefix string) (*Config, error) {
	var cfg Config
	if err := envconfig.Process(prefix, &cfg); err != nil {
		return nil, fmt.Errorf("failed to load config from environment: %w", err)
	}
	return &cfg, nil
}

// Load resolves the effective configuration: the file at path (or the first
// file found in the current directory, or defaults), then the variables of
// an optional .env file, then the process environment.
func Load(path, dotEnvPath string) (*Config, error) {
	cfg, err := LoadConfig(path)
	if err != nil {
		return nil, err
	}

	if dotEnvPath != "" {
		if _, err := LoadAndExportDotEnv(dotEnvPath); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return nil, err
		}
	}

	overrides, err := LoadEnv(EnvPrefix)
	if err != nil {
		return nil, err
	}

	return cfg.Merge(overrides), nil
}

// LoadDotEnv parses a .env file and returns key-value pairs.
// Supports: KEY=value, KEY="quoted value", KEY='single quoted', # comments
// and an optional leading "export ".
func LoadDotEnv(path string) (map[string]string, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("cannot open env file: %w", err)
	}
	defer file.Close()

	result := make(map[string]string)
	scanner := bufio.NewScanner(file)
	for scanner.Scan() {
		if key, value, ok := parseDotEnvLine(scanner.Text()); ok {
			result[key] = value
		}
	}

	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("reading env file: %w", err)
	}

	return result, nil
}

func parseDotEnvLine(line string) (string, string, bool) {
	line = strings.TrimSpace(line)
	if line == "" || strings.HasPrefix(line, "#") {
		return "", "", false
	}
	line = strings.TrimPrefix(line, "export ")

	key, value, found := strings.Cut(line, "=")
	if !found {
		return "", "", false
	}

	key = strings.TrimSpace(key)
	value = strings.TrimSpace(value)
	if key == "" {
		return "", "", false
	}

	if len(value) >= 2 {
		if (value[0] == '"' && value[len(value)-1] == '"') ||
			(value[0] == '\'' && value[len(value)-1] == '\'') {
			value = value[1 : len(value)-1]
		}
	}

	return key, value, true
}

// LoadAndExportDotEnv parses a .env file and exports its variables to the
// process environment. Variables already set in the environment win.
func LoadAndExportDotEnv(path string) (map[string]string, error) {
	vars, err := LoadDotEnv(path)
	if err != nil {
		return nil, err
	}

	for k, v := range vars {
		if _, set := os.LookupEnv(k); !set {
			_ = os.Setenv(k, v) // Error ignored: only fails for invalid key names
		}
	}

	return vars, nil
}
