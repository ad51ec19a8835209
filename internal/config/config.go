// Package config loads application configuration.
package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

const envFile = ".env"

// NewConfig loads configuration from environment using viper with typed defaults and validation.
func NewConfig() (*Config, error) {
	if envMap, err := godotenv.Read(envFile); err == nil {
		for k, v := range envMap {
			if _, exists := os.LookupEnv(k); !exists {
				_ = os.Setenv(k, v)
			}
		}
	}

	v := viper.New()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)
	bindEnvs(v)

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

var defaults = map[string]any{
	"logging.level":       "info",
	"logging.file":        "",
	"logging.max_size_mb": 100,
	"logging.max_backups": 3,

	"server.host":             "0.0.0.0",
	"server.port":             8080,
	"server.shutdown_timeout": 10 * time.Second,

	"postgres.host":            "localhost",
	"postgres.port":            5432,
	"postgres.user":            "postgres",
	"postgres.password":        "postgres",
	"postgres.db_name":         "cohort",
	"postgres.ssl_mode":        "disable",
	"postgres.max_conns":       10,
	"postgres.min_conns":       2,
	"postgres.connect_timeout": 5 * time.Second,

	"engine.op_timeout":      5 * time.Second,
	"engine.max_tx_attempts": 5,
	"engine.retry_backoff":   20 * time.Millisecond,

	"redis.enabled":        false,
	"redis.addr":           "localhost:6379",
	"redis.password":       "",
	"redis.db":             0,
	"redis.channel_prefix": "cohort",
	"redis.op_timeout":     250 * time.Millisecond,

	"auth.token_secret": "",
}

func setDefaults(v *viper.Viper) {
	for k, val := range defaults {
		v.SetDefault(k, val)
	}
}

func bindEnvs(v *viper.Viper) {
	for k := range defaults {
		_ = v.BindEnv(k)
	}
}
