package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"

	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"
)

// DefaultEnvFile is read when present and no other env file is named.
const DefaultEnvFile = ".env"

// Load builds the configuration: defaults, then the YAML settings file at
// path (if any), then the environment and the env file, then the keyring for
// a missing password. Process environment variables take precedence over the
// env file. The result is not validated.
func Load(path, envFile string) (*Config, error) {
	cfg := DefaultConfig()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config file %s: %w", path, err)
		}
	}

	v, err := loadEnv(envFile)
	if err != nil {
		return nil, err
	}
	applyEnv(cfg, v)

	if cfg.Instagram.Password == "" && cfg.Instagram.Username != "" {
		if pw, err := PasswordFromKeyringFor(cfg.Instagram.Username); err == nil && pw != "" {
			cfg.Instagram.Password = pw
			cfg.Instagram.PasswordSource = PasswordFromKeyring
		}
	}

	return cfg, nil
}

// loadEnv reads envFile as dotenv into a viper instance bound to the process
// environment. A missing default env file is not an error; a missing file
// that was asked for is.
func loadEnv(envFile string) (*viper.Viper, error) {
	v := viper.New()
	v.AutomaticEnv()

	explicit := envFile != ""
	if !explicit {
		envFile = DefaultEnvFile
	}
	if _, err := os.Stat(envFile); err != nil {
		if errors.Is(err, fs.ErrNotExist) && !explicit {
			return v, nil
		}
		return nil, fmt.Errorf("failed to read env file: %w", err)
	}

	v.SetConfigFile(envFile)
	v.SetConfigType("env")
	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("failed to parse env file %s: %w", envFile, err)
	}
	return v, nil
}

func applyEnv(cfg *Config, v *viper.Viper) {
	set := func(key string, dst *string) bool {
		if s := v.GetString(key); s != "" {
			*dst = s
			return true
		}
		return false
	}

	set(EnvUsername, &cfg.Instagram.Username)
	if set(EnvPassword, &cfg.Instagram.Password) {
		cfg.Instagram.PasswordSource = PasswordFromEnv
	}
	set(EnvBufferToken, &cfg.Buffer.AccessToken)
	set(EnvProfileID, &cfg.Buffer.ProfileID)
	set(EnvStateDir, &cfg.StateDir)
	set(EnvProxy, &cfg.Browser.ProxyAddress)

	if v.GetString(EnvHeadless) != "" {
		cfg.Browser.Headless = v.GetBool(EnvHeadless)
	}
}
