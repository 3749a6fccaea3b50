package config

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/BurntSushi/toml"
)

// ConfigFileName is the name of the agent-forge configuration file.
const ConfigFileName = "agent-forge.toml"

// EnvToken is the environment variable that overrides forge.token.
const EnvToken = "AGENT_FORGE_TOKEN"

// EnvLLMKey is the environment variable that overrides llm.api_key.
const EnvLLMKey = "AGENT_FORGE_LLM_KEY"

// FindConfigFile walks up from the given directory to find agent-forge.toml.
// Returns the absolute path to the config file, or an empty string if not
// found. Stops at the filesystem root.
func FindConfigFile(startDir string) (string, error) {
	dir, err := filepath.Abs(startDir)
	if err != nil {
		return "", fmt.Errorf("resolving path: %w", err)
	}
	for {
		candidate := filepath.Join(dir, ConfigFileName)
		if _, err := os.Stat(candidate); err == nil {
			return candidate, nil
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			// Reached filesystem root.
			return "", nil
		}
		dir = parent
	}
}

// LoadFromFile parses the TOML file at the given path over a defaults-filled
// Config and returns the configuration and TOML metadata. The metadata can be
// used to detect unknown keys via MetaData.Undecoded().
func LoadFromFile(path string) (*Config, toml.MetaData, error) {
	cfg := NewDefaults()
	md, err := toml.DecodeFile(path, cfg)
	if err != nil {
		return nil, md, fmt.Errorf("loading config %s: %w", path, err)
	}
	return cfg, md, nil
}

// Load finds, parses, and validates configuration starting from startDir.
// When no config file exists, defaults are returned. Credentials from the
// environment override file values in either case.
func Load(startDir string) (*Config, error) {
	path, err := FindConfigFile(startDir)
	if err != nil {
		return nil, err
	}

	var cfg *Config
	if path == "" {
		cfg = NewDefaults()
	} else {
		loaded, _, err := LoadFromFile(path)
		if err != nil {
			return nil, err
		}
		cfg = loaded
	}

	if tok := os.Getenv(EnvToken); tok != "" {
		cfg.Forge.Token = tok
	}
	if key := os.Getenv(EnvLLMKey); key != "" {
		cfg.LLM.APIKey = key
	}

	if errs := cfg.Validate(); len(errs) > 0 {
		return nil, fmt.Errorf("config: %d validation error(s), first: %w", len(errs), errs[0])
	}
	return cfg, nil
}
