// Package conf provides configuration management using Viper.
// It supports loading configuration from YAML files and environment variables,
// with CLI flag overrides.
package conf

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
	"google.golang.org/protobuf/types/known/durationpb"
)

// NewBootstrap creates and initializes a Bootstrap configuration.
// It loads configuration from the specified config file path, applies defaults,
// and allows overrides from environment variables prefixed with SHIPRELAY_.
//
// Configuration priority: CLI flags > Environment variables > Config file > Defaults
//
// Required environment variables:
//   - MYSQL_DSN or SHIPRELAY_DATA_DATABASE_SOURCE: MySQL connection string
//   - ENCRYPTION_KEY or SHIPRELAY_AUTH_ENCRYPTION_KEY: credential encryption key
func NewBootstrap(configPath string) (*Bootstrap, error) {
	v := viper.New()

	// Set default values
	setDefaults(v)

	// Enable environment variable support with SHIPRELAY_ prefix
	v.SetEnvPrefix("SHIPRELAY")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Allow direct environment variable names (without SHIPRELAY_ prefix) for compatibility
	_ = v.BindEnv("data.database.source", "MYSQL_DSN", "SHIPRELAY_DATA_DATABASE_SOURCE")
	_ = v.BindEnv("data.redis.addr", "SHIPRELAY_DATA_REDIS_ADDR")
	_ = v.BindEnv("auth.admin_token", "ADMIN_TOKEN", "SHIPRELAY_AUTH_ADMIN_TOKEN")
	_ = v.BindEnv("auth.encryption.key", "ENCRYPTION_KEY", "SHIPRELAY_AUTH_ENCRYPTION_KEY")
	_ = v.BindEnv("client.proxy_url", "PROXY_URL", "SHIPRELAY_CLIENT_PROXY_URL")

	// Load configuration file
	if configPath != "" {
		v.SetConfigFile(configPath)
		if err := v.ReadInConfig(); err != nil {
			// If config file is specified but not found, return error
			return nil, fmt.Errorf("failed to read config file %s: %w", configPath, err)
		}
	}

	// Parse configuration into Bootstrap structure
	bc := &Bootstrap{
		Server: &Server{
			Http: &Server_HTTP{
				Network: v.GetString("server.http.network"),
				Addr:    v.GetString("server.http.addr"),
				Timeout: durationpb.New(v.GetDuration("server.http.timeout")),
			},
		},
		Data: &Data{
			Database: &Data_Database{
				Driver: v.GetString("data.database.driver"),
				Source: v.GetString("data.database.source"),
			},
			Redis: &Data_Redis{
				Network:      v.GetString("data.redis.network"),
				Addr:         v.GetString("data.redis.addr"),
				ReadTimeout:  durationpb.New(v.GetDuration("data.redis.read_timeout")),
				WriteTimeout: durationpb.New(v.GetDuration("data.redis.write_timeout")),
			},
		},
		Auth: &Auth{
			AdminToken: v.GetString("auth.admin_token"),
			Encryption: &Auth_Encryption{
				Key: v.GetString("auth.encryption.key"),
			},
		},
		Client: &Client{
			RequestTimeout:   durationpb.New(v.GetDuration("client.request_timeout")),
			MaxRetries:       v.GetInt("client.max_retries"),
			BaseDelay:        durationpb.New(v.GetDuration("client.base_delay")),
			BreakerThreshold: v.GetInt("client.breaker_threshold"),
			BreakerTimeout:   durationpb.New(v.GetDuration("client.breaker_timeout")),
			RateLimitWait:    durationpb.New(v.GetDuration("client.rate_limit_wait")),
			ErrorCeiling:     v.GetInt("client.error_ceiling"),
			ProxyURL:         v.GetString("client.proxy_url"),
		},
		Engine: &Engine{
			ExclusiveTagSets: parseExclusiveTagSets(v.GetStringMapStringSlice("engine.exclusive_tag_sets")),
			RuleCacheSize:    v.GetInt("engine.rule_cache_size"),
		},
		Log: &Log{
			Level:      v.GetString("log.level"),
			Format:     v.GetString("log.format"),
			Env:        v.GetString("log.env"),
			OutputFile: v.GetString("log.output_file"),
		},
	}

	// Validate required fields
	if err := Validate(bc); err != nil {
		return nil, err
	}

	return bc, nil
}

// parseExclusiveTagSets normalizes the configured collections: empty sets and
// blank tags are dropped.
func parseExclusiveTagSets(raw map[string][]string) map[string][]string {
	sets := make(map[string][]string, len(raw))
	for name, tags := range raw {
		var cleaned []string
		for _, t := range tags {
			if t = strings.TrimSpace(t); t != "" {
				cleaned = append(cleaned, t)
			}
		}
		if len(cleaned) > 1 {
			sets[name] = cleaned
		}
	}
	return sets
}

// setDefaults sets default configuration values.
func setDefaults(v *viper.Viper) {
	// Server defaults
	v.SetDefault("server.http.network", "tcp")
	v.SetDefault("server.http.addr", ":8080")
	v.SetDefault("server.http.timeout", 10*time.Minute)

	// Data defaults
	v.SetDefault("data.database.driver", "mysql")
	// Note: data.database.source (MYSQL_DSN) is required from environment

	v.SetDefault("data.redis.network", "tcp")
	v.SetDefault("data.redis.addr", "127.0.0.1:6379")
	v.SetDefault("data.redis.read_timeout", 200*time.Millisecond)
	v.SetDefault("data.redis.write_timeout", 200*time.Millisecond)

	// Resilient client defaults
	v.SetDefault("client.request_timeout", 30*time.Second)
	v.SetDefault("client.max_retries", 3)
	v.SetDefault("client.base_delay", 1*time.Second)
	v.SetDefault("client.breaker_threshold", 5)
	v.SetDefault("client.breaker_timeout", 60*time.Second)
	v.SetDefault("client.rate_limit_wait", 60*time.Second)
	v.SetDefault("client.error_ceiling", 10)

	// Engine defaults
	v.SetDefault("engine.rule_cache_size", 256)

	// Log defaults
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")
}

// Validate checks that all required configuration fields are present and valid.
// It returns an error listing all missing required fields.
func Validate(bc *Bootstrap) error {
	var missingFields []string

	// Check required database configuration
	if bc.Data == nil || bc.Data.Database == nil || bc.Data.Database.Source == "" {
		missingFields = append(missingFields, "data.database.source (MYSQL_DSN)")
	}

	// Check required auth configuration
	if bc.Auth == nil || bc.Auth.Encryption == nil || bc.Auth.Encryption.Key == "" {
		missingFields = append(missingFields, "auth.encryption.key (ENCRYPTION_KEY)")
	}

	if len(missingFields) > 0 {
		return fmt.Errorf("missing required configuration fields: %s", strings.Join(missingFields, ", "))
	}

	if bc.Client != nil {
		if bc.Client.MaxRetries < 0 {
			return fmt.Errorf("client.max_retries must not be negative")
		}
		if bc.Client.BreakerThreshold <= 0 {
			return fmt.Errorf("client.breaker_threshold must be positive")
		}
	}

	return nil
}
