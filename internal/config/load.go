package config

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/spf13/viper"
)

// EnvPrefix prefixes every environment variable read by Load.
const EnvPrefix = "APPLY"

var defaults = map[string]any{
	"server.port":                            8080,
	"server.log_level":                       "info",
	"server.shutdown_timeout_seconds":        15,
	"database.driver":                        "postgres",
	"database.url":                           "",
	"database.seed_file":                     "",
	"auth.jwt_secret":                        "",
	"auth.token_lifetime_minutes":            60,
	"executor.base_url":                      "https://api.browser-use.com/api/v2",
	"executor.api_key":                       "",
	"executor.request_timeout_seconds":       30,
	"executor.run_timeout_minutes":           20,
	"executor.await_poll_interval_ms":        2000,
	"executor.max_retries":                   3,
	"executor.max_steps":                     0,
	"executor.vision":                        false,
	"task.worker_count":                      2,
	"task.queue_size":                        100,
	"task.stuck_task_age_minutes":            30,
	"task.stuck_task_check_interval_minutes": 5,
	"poller.interval_ms":                     2000,
	"secrets.age_identity_path":              "",
}

// Load configuration from environment variables and optionally a config.yaml
// in the working directory or $APPLY_CONFIG_DIR. Environment variables take
// precedence over file values.
func Load() (*Config, error) {
	v := viper.New()

	for key, value := range defaults {
		v.SetDefault(key, value)
	}

	v.SetConfigName("config")
	v.SetConfigType("yaml")
	if dir := os.Getenv(EnvPrefix + "_CONFIG_DIR"); dir != "" {
		v.AddConfigPath(dir)
	}
	v.AddConfigPath(".")

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
	}

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := Validate(&cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks struct tags on cfg.
func Validate(cfg *Config) error {
	if err := validator.New().Struct(cfg); err != nil {
		return fmt.Errorf("config validation failed: %w", err)
	}
	return nil
}
