// Package config loads the server and client configuration surfaces
// from a YAML file and the environment via viper. Command-line flag
// overrides are applied by the binaries after loading.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// ServerConfig is the complete configuration for the goodies-server
// process: its Postgres connection, HTTP listener, JWT auth, and the
// sync engine limits that aren't safe to hardcode.
type ServerConfig struct {
	Postgres PostgresConfig `mapstructure:"postgres"`
	API      APIConfig      `mapstructure:"api"`
	Sync     SyncConfig     `mapstructure:"sync"`
	Logging  LoggingConfig  `mapstructure:"logging"`
}

// PostgresConfig mirrors pkg/store.PostgresConfig's fields so it can be
// populated from file/env without pkg/store depending on viper.
type PostgresConfig struct {
	Host            string        `mapstructure:"host"`
	Port            int           `mapstructure:"port"`
	Database        string        `mapstructure:"database"`
	Username        string        `mapstructure:"username"`
	Password        string        `mapstructure:"password"`
	SSLMode         string        `mapstructure:"ssl_mode"`
	MaxOpenConns    int           `mapstructure:"max_open_conns"`
	MaxIdleConns    int           `mapstructure:"max_idle_conns"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
}

// APIConfig holds the HTTP transport's listener and JWT settings.
type APIConfig struct {
	Listen           string        `mapstructure:"listen"`
	JWTSecret        string        `mapstructure:"jwt_secret"`
	TokenExpiry      time.Duration `mapstructure:"token_expiry"`
	ProvisioningHash string        `mapstructure:"provisioning_hash"`
	MaxBodySize      int64         `mapstructure:"max_body_size"`
}

// SyncConfig holds the sync engine's tunable limits.
type SyncConfig struct {
	MaxBatchSize     int           `mapstructure:"max_batch_size"`
	MaxClockSkew     time.Duration `mapstructure:"max_clock_skew"`
	ConflictStrategy string        `mapstructure:"conflict_strategy"`
}

// LoggingConfig controls the zerolog sink.
type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"` // "json" or "console"
}

// ClientConfig is the complete configuration for the goodies CLI: its
// embedded replica location and the server it syncs against.
type ClientConfig struct {
	DeviceID   string        `mapstructure:"device_id"`
	UserID     string        `mapstructure:"user_id"`
	DataDir    string        `mapstructure:"data_dir"`
	ServerURL  string        `mapstructure:"server_url"`
	AuthToken  string        `mapstructure:"auth_token"`
	MaxRetries int           `mapstructure:"max_retries"`
	Logging    LoggingConfig `mapstructure:"logging"`
	PollEvery  time.Duration `mapstructure:"poll_every"`
}

// DefaultServerConfig returns the baseline a bare `goodies-server`
// invocation runs with absent a config file.
func DefaultServerConfig() *ServerConfig {
	return &ServerConfig{
		Postgres: PostgresConfig{
			Host:            "localhost",
			Port:            5432,
			Database:        "goodies",
			Username:        "goodies",
			SSLMode:         "disable",
			MaxOpenConns:    25,
			MaxIdleConns:    5,
			ConnMaxLifetime: 30 * time.Minute,
		},
		API: APIConfig{
			Listen:      "0.0.0.0:8080",
			TokenExpiry: 24 * time.Hour,
			MaxBodySize: 8 * 1024 * 1024,
		},
		Sync: SyncConfig{
			MaxBatchSize:     1000,
			MaxClockSkew:     5 * time.Minute,
			ConflictStrategy: "last_write_wins",
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
		},
	}
}

// DefaultClientConfig returns the baseline a bare `goodies` invocation
// runs with absent a config file.
func DefaultClientConfig() *ClientConfig {
	return &ClientConfig{
		DataDir:    "./data",
		MaxRetries: 5,
		PollEvery:  30 * time.Second,
		Logging: LoggingConfig{
			Level:  "info",
			Format: "console",
		},
	}
}

// LoadServerConfig reads configFile (or the standard search path if
// empty) via viper, falling back to DefaultServerConfig for anything
// unset.
func LoadServerConfig(configFile string) (*ServerConfig, error) {
	cfg := DefaultServerConfig()
	v := newViper("goodies-server", configFile)
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("config: unmarshaling server config: %w", err)
	}
	return cfg, nil
}

// LoadClientConfig reads configFile (or the standard search path if
// empty) via viper, falling back to DefaultClientConfig for anything
// unset.
func LoadClientConfig(configFile string) (*ClientConfig, error) {
	cfg := DefaultClientConfig()
	v := newViper("goodies", configFile)
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("config: unmarshaling client config: %w", err)
	}
	return cfg, nil
}

func newViper(envPrefix, configFile string) *viper.Viper {
	v := viper.New()
	if configFile != "" {
		v.SetConfigFile(configFile)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("$HOME/." + envPrefix)
		v.AddConfigPath("/etc/" + envPrefix)
	}
	// "goodies-server" -> GOODIES_SERVER_, and nested keys such as
	// api.listen map to GOODIES_SERVER_API_LISTEN. Environment variables
	// only override keys that the loaded config file sets.
	v.SetEnvPrefix(strings.ReplaceAll(envPrefix, "-", "_"))
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	_ = v.ReadInConfig() // absent config file falls through to defaults
	return v
}
