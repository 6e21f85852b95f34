// Package config loads the server configuration from an optional YAML file
// and SNAKE_* environment variables.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config contains every option the snake server understands.
type Config struct {
	Server struct {
		// Address the HTTP/websocket listener binds to.
		Addr string `mapstructure:"addr"`
		// Directory with the browser client. Blank disables static serving.
		ClientDir string `mapstructure:"client_dir"`
		// Connection limits enforced before the websocket upgrade.
		MaxConnsPerIP int `mapstructure:"max_conns_per_ip"`
		MaxTotalConns int `mapstructure:"max_total_conns"`
		// Inbound frames allowed per connection per second before it is dropped.
		MessagesPerSecond int `mapstructure:"messages_per_second"`
	} `mapstructure:"server"`

	Game struct {
		GridSize       int           `mapstructure:"grid_size"`
		TickInterval   time.Duration `mapstructure:"tick_interval"`
		ScoreIncrement int           `mapstructure:"score_increment"`
		// Restore snake and score when a disconnected id joins again.
		ResumeOnReconnect bool          `mapstructure:"resume_on_reconnect"`
		ReconnectGrace    time.Duration `mapstructure:"reconnect_grace"`
	} `mapstructure:"game"`

	Log struct {
		// Minimum level: debug, info, warn, error
		Level string `mapstructure:"level"`
		// Rolling log file. Blank writes to stderr.
		File       string `mapstructure:"file"`
		MaxSizeMB  int    `mapstructure:"max_size_mb"`
		MaxBackups int    `mapstructure:"max_backups"`
		MaxAgeDays int    `mapstructure:"max_age_days"`
	} `mapstructure:"log"`

	Analytics struct {
		// SQLite file for the gameplay event journal. Blank disables it.
		DBPath string `mapstructure:"db_path"`
	} `mapstructure:"analytics"`

	Admin struct {
		Username string `mapstructure:"username"`
		// bcrypt hash of the admin password. Blank disables the admin API.
		PasswordHash string `mapstructure:"password_hash"`
		// HMAC secret for admin tokens. Blank generates one per process.
		JWTSecret string `mapstructure:"jwt_secret"`
	} `mapstructure:"admin"`
}

const envVarPrefix = "SNAKE"

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.addr", ":3000")
	v.SetDefault("server.client_dir", "")
	v.SetDefault("server.max_conns_per_ip", 8)
	v.SetDefault("server.max_total_conns", 256)
	v.SetDefault("server.messages_per_second", 50)

	v.SetDefault("game.grid_size", 20)
	v.SetDefault("game.tick_interval", 150*time.Millisecond)
	v.SetDefault("game.score_increment", 1)
	v.SetDefault("game.resume_on_reconnect", false)
	v.SetDefault("game.reconnect_grace", 30*time.Second)

	v.SetDefault("log.level", "info")
	v.SetDefault("log.file", "")
	v.SetDefault("log.max_size_mb", 10)
	v.SetDefault("log.max_backups", 3)
	v.SetDefault("log.max_age_days", 7)

	v.SetDefault("analytics.db_path", "")

	v.SetDefault("admin.username", "admin")
	v.SetDefault("admin.password_hash", "")
	v.SetDefault("admin.jwt_secret", "")
}

// Load reads snake.yaml from configPath (if present), applies SNAKE_*
// environment overrides and validates the result.
func Load(configPath string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.AddConfigPath(configPath)
	v.SetConfigName("snake")
	v.SetConfigType("yaml")

	// Nested keys map to env vars, e.g. game.grid_size -> SNAKE_GAME_GRID_SIZE.
	v.SetEnvPrefix(envVarPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("reading config file: %w", err)
		}
	}

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("unmarshaling config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Default returns the built-in configuration without reading any file.
func Default() *Config {
	v := viper.New()
	setDefaults(v)
	cfg := &Config{}
	// Defaults alone always decode.
	_ = v.Unmarshal(cfg)
	return cfg
}

// Validate rejects values the server cannot run with.
func (c *Config) Validate() error {
	if c.Game.GridSize < 2 {
		return fmt.Errorf("game.grid_size must be at least 2, got %d", c.Game.GridSize)
	}
	if c.Game.TickInterval <= 0 {
		return fmt.Errorf("game.tick_interval must be positive, got %s", c.Game.TickInterval)
	}
	if c.Game.ScoreIncrement < 0 {
		return fmt.Errorf("game.score_increment must not be negative, got %d", c.Game.ScoreIncrement)
	}
	if c.Game.ResumeOnReconnect && c.Game.ReconnectGrace <= 0 {
		return fmt.Errorf("game.reconnect_grace must be positive when resume_on_reconnect is set")
	}
	if c.Server.MaxConnsPerIP <= 0 || c.Server.MaxTotalConns <= 0 {
		return fmt.Errorf("server connection limits must be positive")
	}
	if c.Server.MessagesPerSecond <= 0 {
		return fmt.Errorf("server.messages_per_second must be positive")
	}
	return nil
}
