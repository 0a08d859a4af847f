package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/spf13/viper"
)

// Load reads configuration from environment variables and optionally a
// config file. Environment variables (prefix VOXHALL_, dots replaced by
// underscores) take precedence over file values, which take precedence
// over defaults. Returns a populated Config or an error if loading or
// validation fails.
func Load(configPath string) (*Config, error) {
	v := viper.New()

	v.SetDefault("server.port", 8080)
	v.SetDefault("server.log_level", "info")
	v.SetDefault("task.max_concurrent_tasks", 2)
	v.SetDefault("task.max_queue_size", 50)
	v.SetDefault("task.task_timeout", time.Hour)
	v.SetDefault("task.cleanup_completed_after", 24*time.Hour)
	v.SetDefault("task.shutdown_timeout", 5*time.Second)
	v.SetDefault("persistence.enabled", true)
	v.SetDefault("persistence.archive_path", "")
	v.SetDefault("auth.enabled", false)
	v.SetDefault("events.redis_addr", "")
	v.SetDefault("engine.url", "http://127.0.0.1:7861/api/infer")
	v.SetDefault("engine.converter_path", "ffmpeg")

	v.SetEnvPrefix("VOXHALL")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if configPath != "" {
		v.SetConfigFile(configPath)
		if err := v.ReadInConfig(); err != nil {
			var notFound viper.ConfigFileNotFoundError
			if !errors.As(err, &notFound) {
				return nil, fmt.Errorf("failed to read config file: %w", err)
			}
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal configuration: %w", err)
	}

	if err := validator.New().Struct(&cfg); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &cfg, nil
}
