// Config loading for the stockpile CLI.
package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/viper"

	"github.com/keeperhq/stockpile/pkg/types"
)

const (
	configFileName = "config"
	configFileType = "yaml"
	configFileExt  = "config.yaml"

	cfgKeyMode       = "mode"
	cfgKeyDataDir    = "data_dir"
	cfgKeyAPIBaseURL = "api_base_url"
	cfgKeyUsername   = "username"
	cfgKeyPassword   = "password"
	cfgKeySnapshot   = "snapshot_key"
	cfgKeyAutosave   = "autosave_interval"
	cfgKeyRedisAddr  = "redis_addr"

	defaultMode = string(types.ModeLocal)
)

// defaultConfigYAML is written to config.yaml on first run.
const defaultConfigYAML = `# Stockpile CLI configuration

# Backend mode: local, postgres, mongodb, or hybrid
mode: local

# Data directory for local snapshots (optional; overridable by --data-dir)
# data_dir:

# Remote backend settings
# api_base_url:
# username:
# password:
`

// loadConfig reads config.yaml from the resolved config directory using
// Viper, creating the directory and a default file on first run. A
// missing config.yaml is not an error.
func loadConfig(configDir string) (types.Config, error) {
	dir, err := resolveConfigDir(configDir)
	if err != nil {
		return types.Config{}, err
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return types.Config{}, fmt.Errorf("ensure config dir: %w", err)
	}
	if err := ensureDefaultConfigFile(dir); err != nil {
		return types.Config{}, fmt.Errorf("ensure default config: %w", err)
	}

	v := viper.New()
	v.SetDefault(cfgKeyMode, defaultMode)
	v.SetConfigName(configFileName)
	v.SetConfigType(configFileType)
	v.AddConfigPath(dir)
	v.SetEnvPrefix("STOCKPILE")
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return types.Config{}, fmt.Errorf("read config: %w", err)
		}
	}

	cfg := types.Config{
		Mode:             types.Mode(v.GetString(cfgKeyMode)),
		DataDir:          v.GetString(cfgKeyDataDir),
		APIBaseURL:       v.GetString(cfgKeyAPIBaseURL),
		Username:         v.GetString(cfgKeyUsername),
		Password:         v.GetString(cfgKeyPassword),
		SnapshotKey:      v.GetString(cfgKeySnapshot),
		AutosaveInterval: v.GetDuration(cfgKeyAutosave),
		RedisAddr:        v.GetString(cfgKeyRedisAddr),
	}
	if cfg.DataDir == "" {
		cfg.DataDir = filepath.Join(dir, "data")
	}
	return cfg, nil
}

func resolveConfigDir(configDir string) (string, error) {
	if configDir != "" {
		return configDir, nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("resolve home dir: %w", err)
	}
	return filepath.Join(home, ".stockpile"), nil
}

func ensureDefaultConfigFile(dir string) error {
	path := filepath.Join(dir, configFileExt)

	_, err := os.Stat(path)
	if err == nil {
		return nil
	}
	if !os.IsNotExist(err) {
		return fmt.Errorf("stat config file: %w", err)
	}
	return os.WriteFile(path, []byte(defaultConfigYAML), 0o644)
}
