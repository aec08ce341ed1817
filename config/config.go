// Copyright (C) 2024 The REPE Authors.

// Package config provides YAML-based configuration loading for a repe
// deployment: the TCP server and client, the UniUDP transport, and the
// fleets built on top of them.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config is the root application configuration.
type Config struct {
	AppName string `mapstructure:"app_name"`

	Log LogConfig `mapstructure:"log"`

	Server  ServerConfig  `mapstructure:"server"`
	Client  ClientConfig  `mapstructure:"client"`
	UniUDP  UniUDPConfig  `mapstructure:"uniudp"`
	Fleet   FleetConfig   `mapstructure:"fleet"`
}

// LogConfig defines logger settings.
type LogConfig struct {
	Level       string   `mapstructure:"level"` // debug, info, warn, error
	Format      string   `mapstructure:"format"` // console or json
	Outputs     []string `mapstructure:"outputs"` // stdout, stderr, or file paths
	Rotation    RotationConfig `mapstructure:"rotation"`
	Development bool     `mapstructure:"development"`
}

// RotationConfig controls log file rotation for file outputs.
type RotationConfig struct {
	Enable     bool `mapstructure:"enable"`
	Filename   string `mapstructure:"filename"`
	MaxSizeMB  int  `mapstructure:"max_size_mb"`
	MaxBackups int  `mapstructure:"max_backups"`
	MaxAgeDays int  `mapstructure:"max_age_days"`
	Compress   bool `mapstructure:"compress"`
}

// ServerConfig configures a TCP repe.Server.
type ServerConfig struct {
	Host string `mapstructure:"host"`
	Port string `mapstructure:"port"`
}

// ClientConfig configures a TCP repe.Client's default dial behavior.
type ClientConfig struct {
	Timeout time.Duration `mapstructure:"timeout"`
	NoDelay bool          `mapstructure:"no_delay"`
}

// UniUDPConfig configures a UniUDP sender/receiver pair.
type UniUDPConfig struct {
	Redundancy        int           `mapstructure:"redundancy"`
	ChunkSize         int           `mapstructure:"chunk_size"`
	FECGroupSize      int           `mapstructure:"fec_group_size"`
	InactivityTimeout time.Duration `mapstructure:"inactivity_timeout"`
	OverallTimeout    time.Duration `mapstructure:"overall_timeout"`
}

// FleetConfig configures the TCP fleet's default call timeout and retry
// behavior. The UniUDP fleet does not retry and takes none of these
// settings.
type FleetConfig struct {
	DefaultTimeout time.Duration `mapstructure:"default_timeout"`
	MaxAttempts    int           `mapstructure:"max_attempts"`
	RetryDelay     time.Duration `mapstructure:"retry_delay"`
}

// Default returns a Config populated with sensible defaults.
func Default() *Config {
	return &Config{
		AppName: "repe-node",
		Log: LogConfig{
			Level:       "info",
			Format:      "console",
			Outputs:     []string{"stdout"},
			Development: true,
			Rotation: RotationConfig{
				Enable:     false,
				Filename:   "logs/repe.log",
				MaxSizeMB:  50,
				MaxBackups: 3,
				MaxAgeDays: 28,
				Compress:   true,
			},
		},
		Server: ServerConfig{Host: "", Port: "8080"},
		Client: ClientConfig{Timeout: 30 * time.Second, NoDelay: true},
		UniUDP: UniUDPConfig{
			Redundancy:        1,
			ChunkSize:         1024,
			FECGroupSize:      1,
			InactivityTimeout: 5 * time.Second,
			OverallTimeout:    30 * time.Second,
		},
		Fleet: FleetConfig{
			DefaultTimeout: 10 * time.Second,
			MaxAttempts:    3,
			RetryDelay:     100 * time.Millisecond,
		},
	}
}

// Load reads configuration from the provided path (if non-empty), otherwise
// it searches common locations and supports environment overrides.
// Environment variables use the prefix REPE and `.`/`-` are replaced with
// `_`. Example: REPE_LOG_LEVEL=debug.
func Load(path string) (*Config, error) {
	cfg := Default()

	v := viper.New()
	v.SetConfigType("yaml")
	v.SetEnvPrefix("REPE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	v.AutomaticEnv()

	v.SetDefault("app_name", cfg.AppName)
	v.SetDefault("log.level", cfg.Log.Level)
	v.SetDefault("log.format", cfg.Log.Format)
	v.SetDefault("log.outputs", cfg.Log.Outputs)
	v.SetDefault("log.development", cfg.Log.Development)
	v.SetDefault("log.rotation.enable", cfg.Log.Rotation.Enable)
	v.SetDefault("log.rotation.filename", cfg.Log.Rotation.Filename)
	v.SetDefault("log.rotation.max_size_mb", cfg.Log.Rotation.MaxSizeMB)
	v.SetDefault("log.rotation.max_backups", cfg.Log.Rotation.MaxBackups)
	v.SetDefault("log.rotation.max_age_days", cfg.Log.Rotation.MaxAgeDays)
	v.SetDefault("log.rotation.compress", cfg.Log.Rotation.Compress)

	v.SetDefault("server.host", cfg.Server.Host)
	v.SetDefault("server.port", cfg.Server.Port)

	v.SetDefault("client.timeout", cfg.Client.Timeout)
	v.SetDefault("client.no_delay", cfg.Client.NoDelay)

	v.SetDefault("uniudp.redundancy", cfg.UniUDP.Redundancy)
	v.SetDefault("uniudp.chunk_size", cfg.UniUDP.ChunkSize)
	v.SetDefault("uniudp.fec_group_size", cfg.UniUDP.FECGroupSize)
	v.SetDefault("uniudp.inactivity_timeout", cfg.UniUDP.InactivityTimeout)
	v.SetDefault("uniudp.overall_timeout", cfg.UniUDP.OverallTimeout)

	v.SetDefault("fleet.default_timeout", cfg.Fleet.DefaultTimeout)
	v.SetDefault("fleet.max_attempts", cfg.Fleet.MaxAttempts)
	v.SetDefault("fleet.retry_delay", cfg.Fleet.RetryDelay)

	if path == "" {
		if envPath := os.Getenv("REPE_CONFIG"); envPath != "" {
			path = envPath
		}
	}

	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("repe")
		v.AddConfigPath(".")
		v.AddConfigPath("./configs")
		if home, err := os.UserHomeDir(); err == nil {
			v.AddConfigPath(filepath.Join(home, ".repe"))
		}
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("read config: %w", err)
		}
	}

	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) validate() error {
	lvl := strings.ToLower(strings.TrimSpace(c.Log.Level))
	switch lvl {
	case "debug", "info", "warn", "warning", "error":
	default:
		return fmt.Errorf("invalid log.level: %q", c.Log.Level)
	}
	if c.Log.Format == "" {
		c.Log.Format = "console"
	}
	if len(c.Log.Outputs) == 0 {
		c.Log.Outputs = []string{"stdout"}
	}
	if c.UniUDP.Redundancy < 1 {
		return fmt.Errorf("uniudp.redundancy must be >= 1, got %d", c.UniUDP.Redundancy)
	}
	if c.UniUDP.ChunkSize < 1 || c.UniUDP.ChunkSize > 65535 {
		return fmt.Errorf("uniudp.chunk_size out of range: %d", c.UniUDP.ChunkSize)
	}
	if c.UniUDP.FECGroupSize < 1 || c.UniUDP.FECGroupSize > 0x7FFF {
		return fmt.Errorf("uniudp.fec_group_size out of range: %d", c.UniUDP.FECGroupSize)
	}
	if c.Fleet.MaxAttempts < 1 {
		c.Fleet.MaxAttempts = 1
	}
	return nil
}

// MustLoad is a convenience that panics on error.
func MustLoad(path string) *Config {
	cfg, err := Load(path)
	if err != nil {
		panic(err)
	}
	return cfg
}
