// Package config loads application configuration from JSONC files and
// PRICEPILOT_* environment variables.
package config

import (
	"encoding/json"
	"os"
	"path/filepath"
	"regexp"
	"strconv"

	"github.com/tidwall/jsonc"

	"github.com/pricepilot-ai/pricepilot/pkg/types"
)

// FileName is the config file name looked up in each location.
const FileName = "pricepilot.jsonc"

// Load loads configuration from multiple sources (priority order):
// 1. Global config (~/.pricepilot/)
// 2. Project config (directory)
// 3. PRICEPILOT_CONFIG file
// 4. Environment variables
func Load(directory string) (*types.Config, error) {
	config := &types.Config{}

	for _, path := range Paths(directory) {
		loadFile(path, config)
	}

	applyEnvOverrides(config)
	applyDefaults(config)

	return config, nil
}

// Paths returns the candidate config file paths in load order.
func Paths(directory string) []string {
	var paths []string

	if home, err := os.UserHomeDir(); err == nil {
		paths = append(paths,
			filepath.Join(home, ".pricepilot", "pricepilot.json"),
			filepath.Join(home, ".pricepilot", FileName),
		)
	}

	if directory != "" {
		paths = append(paths,
			filepath.Join(directory, "pricepilot.json"),
			filepath.Join(directory, FileName),
		)
	}

	if override := os.Getenv("PRICEPILOT_CONFIG"); override != "" {
		paths = append(paths, override)
	}

	return paths
}

// loadFile merges one config file into config. Missing or unparsable files
// are skipped.
func loadFile(path string, config *types.Config) {
	data, err := os.ReadFile(path)
	if err != nil {
		return
	}

	// Strip JSONC comments, then resolve {env:VAR} placeholders.
	data = jsonc.ToJSON(data)
	data = interpolate(data)

	var fileConfig types.Config
	if err := json.Unmarshal(data, &fileConfig); err != nil {
		return
	}

	merge(config, &fileConfig)
}

var envPattern = regexp.MustCompile(`\{env:([^}]+)\}`)

// interpolate replaces {env:VAR_NAME} placeholders with environment values.
func interpolate(data []byte) []byte {
	return envPattern.ReplaceAllFunc(data, func(match []byte) []byte {
		name := envPattern.FindSubmatch(match)[1]
		return []byte(os.Getenv(string(name)))
	})
}

// merge copies set fields of source into target.
func merge(target, source *types.Config) {
	if source.UpstreamURL != "" {
		target.UpstreamURL = source.UpstreamURL
	}
	if source.MarketContextURL != "" {
		target.MarketContextURL = source.MarketContextURL
	}
	if source.HeartbeatSeconds > 0 {
		target.HeartbeatSeconds = source.HeartbeatSeconds
	}
	if source.FailureThreshold > 0 {
		target.FailureThreshold = source.FailureThreshold
	}
	if source.DataDir != "" {
		target.DataDir = source.DataDir
	}
	if source.Port > 0 {
		target.Port = source.Port
	}
	if source.LogLevel != "" {
		target.LogLevel = source.LogLevel
	}
}

// applyEnvOverrides applies PRICEPILOT_* environment variables, which win
// over every file source.
func applyEnvOverrides(config *types.Config) {
	if v := os.Getenv("PRICEPILOT_UPSTREAM_URL"); v != "" {
		config.UpstreamURL = v
	}
	if v := os.Getenv("PRICEPILOT_MARKET_CONTEXT_URL"); v != "" {
		config.MarketContextURL = v
	}
	if v := os.Getenv("PRICEPILOT_DATA_DIR"); v != "" {
		config.DataDir = v
	}
	if v := os.Getenv("PRICEPILOT_LOG_LEVEL"); v != "" {
		config.LogLevel = v
	}
	if v, err := strconv.Atoi(os.Getenv("PRICEPILOT_PORT")); err == nil && v > 0 {
		config.Port = v
	}
	if v, err := strconv.Atoi(os.Getenv("PRICEPILOT_HEARTBEAT_SECONDS")); err == nil && v > 0 {
		config.HeartbeatSeconds = v
	}
	if v, err := strconv.Atoi(os.Getenv("PRICEPILOT_FAILURE_THRESHOLD")); err == nil && v > 0 {
		config.FailureThreshold = v
	}
}

func applyDefaults(config *types.Config) {
	if config.HeartbeatSeconds <= 0 {
		config.HeartbeatSeconds = types.DefaultHeartbeatSeconds
	}
	if config.FailureThreshold <= 0 {
		config.FailureThreshold = types.DefaultFailureThreshold
	}
	if config.Port <= 0 {
		config.Port = types.DefaultPort
	}
	if config.DataDir == "" {
		if home, err := os.UserHomeDir(); err == nil {
			config.DataDir = filepath.Join(home, ".pricepilot", "data")
		} else {
			config.DataDir = ".pricepilot-data"
		}
	}
}

// Save writes the configuration to a file.
func Save(config *types.Config, path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return err
	}

	data, err := json.MarshalIndent(config, "", "  ")
	if err != nil {
		return err
	}

	return os.WriteFile(path, data, 0644)
}
