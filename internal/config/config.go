package config

import (
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/tailscale/hujson"
)

type Config struct {
	Server  ServerConfig  `json:"server"`
	Store   StoreConfig   `json:"store"`
	Channel ChannelConfig `json:"channel"`
	Actions ActionsConfig `json:"actions"`
	Log     LogConfig     `json:"log"`
}

type ServerConfig struct {
	ListenAddr     string `json:"listen_addr"`
	Host           string `json:"host"`
	Port           int    `json:"port"`
	FramePath      string `json:"frame_path"`
	FrameAuthToken string `json:"frame_auth_token"`
	APIAuthToken   string `json:"api_auth_token"`
	// AllowedOrigins limits which origins may open a frame connection.
	// Empty allows any origin.
	AllowedOrigins []string `json:"allowed_origins,omitempty"`
}

type StoreConfig struct {
	RedisAddr       string `json:"redis_addr"`
	CacheTTLSeconds int    `json:"cache_ttl_seconds"`
}

type ChannelConfig struct {
	WaitTimeoutMillis int `json:"wait_timeout_ms"`
}

type ActionsConfig struct {
	BackgroundWorkers int `json:"background_workers"`
}

type LogConfig struct {
	Level       string `json:"level"`
	Development bool   `json:"development"`
}

func (c StoreConfig) CacheTTL() time.Duration {
	return time.Duration(c.CacheTTLSeconds) * time.Second
}

func (c ChannelConfig) WaitTimeout() time.Duration {
	return time.Duration(c.WaitTimeoutMillis) * time.Millisecond
}

func Default() Config {
	return Config{
		Server: ServerConfig{
			ListenAddr:     ":8080",
			FramePath:      "/ws/frame",
			FrameAuthToken: os.Getenv("FRAME_AUTH_TOKEN"),
			APIAuthToken:   os.Getenv("API_AUTH_TOKEN"),
		},
		Store: StoreConfig{
			RedisAddr:       os.Getenv("REDIS_ADDR"),
			CacheTTLSeconds: 300,
		},
		Channel: ChannelConfig{
			WaitTimeoutMillis: 10000,
		},
		Actions: ActionsConfig{
			BackgroundWorkers: 10,
		},
		Log: LogConfig{
			Level: "info",
		},
	}
}

// Load reads a JSON config file. Comments and trailing commas are accepted.
// An empty path returns the defaults.
func Load(path string) (Config, error) {
	cfg := Default()
	if path == "" {
		return cfg, nil
	}

	content, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("read config failed: %w", err)
	}
	return Parse(content)
}

// Parse decodes content over the defaults.
func Parse(content []byte) (Config, error) {
	cfg := Default()

	std, err := hujson.Standardize(content)
	if err != nil {
		return Config{}, fmt.Errorf("parse config failed: %w", err)
	}
	if err := json.Unmarshal(std, &cfg); err != nil {
		return Config{}, fmt.Errorf("parse config failed: %w", err)
	}

	if cfg.Server.FramePath == "" {
		cfg.Server.FramePath = "/ws/frame"
	}
	if cfg.Server.ListenAddr == "" {
		if cfg.Server.Host != "" && cfg.Server.Port > 0 {
			cfg.Server.ListenAddr = fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
		} else {
			cfg.Server.ListenAddr = ":8080"
		}
	}
	if cfg.Channel.WaitTimeoutMillis <= 0 {
		cfg.Channel.WaitTimeoutMillis = 10000
	}
	if cfg.Actions.BackgroundWorkers <= 0 {
		cfg.Actions.BackgroundWorkers = 10
	}
	if cfg.Store.CacheTTLSeconds < 0 {
		cfg.Store.CacheTTLSeconds = 0
	}
	if cfg.Log.Level == "" {
		cfg.Log.Level = "info"
	}

	return cfg, nil
}
