// Package config loads ftdc-cli's configuration via viper from
// environment variables, a YAML file, and built-in defaults, in that
// order of precedence.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/vjranagit/ftdc/pkg/ftdc"
)

// Config holds ftdc-cli's full configuration surface.
type Config struct {
	Server ServerConfig `mapstructure:"server"`
	Sink   SinkConfig   `mapstructure:"sink"`
	Decode DecodeConfig `mapstructure:"decode"`
}

// ServerConfig configures the "serve" subcommand's HTTP API.
type ServerConfig struct {
	ListenAddr string        `mapstructure:"listenAddr"`
	Timeout    time.Duration `mapstructure:"timeout"`
}

// SinkConfig configures the on-disk store samples are ingested into.
type SinkConfig struct {
	Path             string `mapstructure:"path"`
	RetentionDays    int    `mapstructure:"retentionDays"`
	CompressionLevel int    `mapstructure:"compressionLevel"`
	MaxOpenFiles     int    `mapstructure:"maxOpenFiles"`
	EnableWAL        bool   `mapstructure:"enableWal"`
	// CacheCapacity is the max number of distinct queries the result
	// cache holds, not a byte size: query results vary too widely in
	// size for a memory budget to translate into a useful entry count.
	CacheCapacity int `mapstructure:"cacheCapacity"`
}

// DecodeConfig configures chunk decoding behavior shared by every
// subcommand.
type DecodeConfig struct {
	// StrictSchema fails decoding on the first chunk whose flattened
	// schema differs from its predecessor, rather than allowing it.
	StrictSchema bool `mapstructure:"strictSchema"`
}

// ToOptions builds the ftdc.Options every decode call site should use,
// so the schema-change policy is a config decision in exactly one
// place rather than re-derived per caller.
func (c DecodeConfig) ToOptions() ftdc.Options {
	policy := ftdc.SchemaChangeAllow
	if c.StrictSchema {
		policy = ftdc.SchemaChangeError
	}
	return ftdc.Options{OnSchemaChange: policy}
}

// Load reads configuration from configPath (if non-empty), falling back
// to ./ftdc.yaml and environment variables prefixed FTDC_, then built-in
// defaults.
func Load(configPath string) (*Config, error) {
	v := viper.New()

	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		v.AddConfigPath(".")
		v.SetConfigName("ftdc")
		v.SetConfigType("yaml")
	}

	v.SetDefault("server.listenAddr", ":9090")
	v.SetDefault("server.timeout", 30*time.Second)
	v.SetDefault("sink.path", "./ftdc-data")
	v.SetDefault("sink.retentionDays", 30)
	v.SetDefault("sink.compressionLevel", 3)
	v.SetDefault("sink.maxOpenFiles", 1000)
	v.SetDefault("sink.enableWal", true)
	v.SetDefault("sink.cacheCapacity", 256)
	v.SetDefault("decode.strictSchema", false)

	v.SetEnvPrefix("FTDC")
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("config: read config file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("config: decode into struct: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks that the configuration is internally consistent.
func (c *Config) Validate() error {
	if c.Server.ListenAddr == "" {
		return fmt.Errorf("config: server listen address is required")
	}
	if c.Sink.Path == "" {
		return fmt.Errorf("config: sink path is required")
	}
	if c.Sink.RetentionDays < 1 {
		return fmt.Errorf("config: retention days must be at least 1")
	}
	if c.Sink.CompressionLevel < 1 || c.Sink.CompressionLevel > 4 {
		return fmt.Errorf("config: compression level must be between 1 and 4")
	}
	return nil
}
