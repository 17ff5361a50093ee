package config

import (
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// GlobalConfig represents configuration stored in ~/.config/simlearn/config.yml.
type GlobalConfig struct {
	WorkspacePath  string  `yaml:"workspace_path,omitempty"`
	EmbedURL       string  `yaml:"embed_url,omitempty"`
	EmbedModel     string  `yaml:"embed_model,omitempty"`
	EmbedAPIKey    string  `yaml:"embed_api_key,omitempty"`
	EmbedDims      int     `yaml:"embed_dimensions,omitempty"`
	EmbedRateLimit float64 `yaml:"embed_rate_limit,omitempty"`
}

const (
	// GlobalConfigDir is the directory name under XDG_CONFIG_HOME.
	GlobalConfigDir = "simlearn"
	// GlobalConfigFile is the config file name.
	GlobalConfigFile = "config.yml"
)

var globalConfigCache *GlobalConfig

// GlobalConfigPath returns the path to the global config file.
// Respects XDG_CONFIG_HOME, defaults to ~/.config/simlearn/config.yml.
func GlobalConfigPath() string {
	configHome := os.Getenv("XDG_CONFIG_HOME")
	if configHome == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return ""
		}
		configHome = filepath.Join(home, ".config")
	}
	return filepath.Join(configHome, GlobalConfigDir, GlobalConfigFile)
}

// LoadGlobalConfig loads the global configuration file.
// Returns an empty config (not an error) if the file doesn't exist.
func LoadGlobalConfig() (*GlobalConfig, error) {
	if globalConfigCache != nil {
		return globalConfigCache, nil
	}

	path := GlobalConfigPath()
	if path == "" {
		return &GlobalConfig{}, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return &GlobalConfig{}, nil
		}
		return nil, fmt.Errorf("reading global config: %w", err)
	}

	var cfg GlobalConfig
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parsing global config: %w", err)
	}

	if cfg.WorkspacePath != "" {
		cfg.WorkspacePath = ExpandPath(cfg.WorkspacePath)
	}

	globalConfigCache = &cfg
	return &cfg, nil
}

// ResetGlobalConfigCache clears the cached global config.
// Useful for testing.
func ResetGlobalConfigCache() {
	globalConfigCache = nil
}

// GetWorkspacePath returns the configured default workspace.
func GetWorkspacePath() string {
	cfg, err := LoadGlobalConfig()
	if err != nil {
		return ""
	}
	return cfg.WorkspacePath
}

// EmbedSettings returns the HTTP embedding provider settings.
// Environment variables take precedence over the config file.
func EmbedSettings() GlobalConfig {
	var out GlobalConfig
	if cfg, err := LoadGlobalConfig(); err == nil {
		out = *cfg
	}
	if v := os.Getenv("SIMLEARN_EMBED_URL"); v != "" {
		out.EmbedURL = v
	}
	if v := os.Getenv("SIMLEARN_EMBED_MODEL"); v != "" {
		out.EmbedModel = v
	}
	if v := os.Getenv("SIMLEARN_EMBED_API_KEY"); v != "" {
		out.EmbedAPIKey = v
	}
	return out
}

// HelpfulConfigMessage returns a helpful message when no workspace is found.
func HelpfulConfigMessage() string {
	configPath := GlobalConfigPath()
	return fmt.Sprintf(`No simlearn workspace found.

Run 'simlearn init --dataset /path/to/images' in a directory, or create %s:
  mkdir -p %s
  echo 'workspace_path: /path/to/workspace' > %s`,
		configPath,
		filepath.Dir(configPath),
		configPath)
}
