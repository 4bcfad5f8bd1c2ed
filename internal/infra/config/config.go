// Package config loads and validates the client configuration from a
// YAML file with environment overrides. Debug resolution happens here,
// at construction time: explicit config beats the environment, which
// beats the default. Components consume the resolved values and never
// consult globals at runtime.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/qidu/webot/internal/domain"
)

// GatewayConfig holds gateway session settings. Duration fields are
// duration strings ("10s", "3s").
type GatewayConfig struct {
	URL               string   `yaml:"url"`
	Token             string   `yaml:"token"`
	Password          string   `yaml:"password"`
	ClientID          string   `yaml:"client_id"`
	DisplayName       string   `yaml:"display_name"`
	Mode              string   `yaml:"mode"`
	Role              string   `yaml:"role"`
	Scopes            []string `yaml:"scopes"`
	RequestTimeout    string   `yaml:"request_timeout"`
	ReconnectDelay    string   `yaml:"reconnect_delay"`
	MaxReconnectDelay string   `yaml:"max_reconnect_delay"`
	SessionKey        string   `yaml:"session_key"`
}

// HTTPConfig holds the web UI server settings.
type HTTPConfig struct {
	Addr           string `yaml:"addr"`
	BasePath       string `yaml:"base_path"`
	AssetsDir      string `yaml:"assets_dir"`
	ExposeToken    bool   `yaml:"expose_token"`
	RequestsPerMin int    `yaml:"requests_per_min"`
	Burst          int    `yaml:"burst"`
}

// LoggerConfig holds logging settings.
type LoggerConfig struct {
	Level  string `yaml:"level"`  // debug, info, warn, error
	Format string `yaml:"format"` // text or json
	Output string `yaml:"output"` // stdout, stderr, or a file path
}

// Config is the top-level client configuration.
type Config struct {
	Gateway GatewayConfig `yaml:"gateway"`
	HTTP    HTTPConfig    `yaml:"http"`
	Logger  LoggerConfig  `yaml:"logger"`
	Debug   *bool         `yaml:"debug,omitempty"` // nil = not set explicitly
}

// Default returns the built-in configuration.
func Default() Config {
	return Config{
		Gateway: GatewayConfig{
			URL:            "ws://127.0.0.1:18789/ws/gateway",
			ClientID:       "webot",
			DisplayName:    "Webot",
			Mode:           "backend",
			Role:           "operator",
			RequestTimeout: "10s",
			ReconnectDelay: "3s",
			SessionKey:     "main",
		},
		HTTP: HTTPConfig{
			Addr:           "127.0.0.1:8780",
			BasePath:       "/chat",
			AssetsDir:      "web",
			RequestsPerMin: 300,
			Burst:          50,
		},
		Logger: LoggerConfig{
			Level:  "info",
			Format: "text",
			Output: "stderr",
		},
	}
}

// Load reads the configuration file at path (missing file falls back to
// defaults), applies environment overrides, resolves the debug toggle,
// and validates the result.
func Load(path string) (Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		switch {
		case err == nil:
			if err := yaml.Unmarshal(data, &cfg); err != nil {
				return Config{}, domain.NewClientError("config.Load", domain.ErrConfigLoad, err.Error())
			}
		case os.IsNotExist(err):
			// Defaults plus environment are enough to run.
		default:
			return Config{}, domain.NewClientError("config.Load", domain.ErrConfigLoad, err.Error())
		}
	}

	applyEnvOverrides(&cfg)
	resolveDebug(&cfg)

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("WEBOT_GATEWAY_URL"); v != "" {
		cfg.Gateway.URL = v
	}
	if v := os.Getenv("WEBOT_GATEWAY_TOKEN"); v != "" {
		cfg.Gateway.Token = v
	}
	if v := os.Getenv("WEBOT_GATEWAY_PASSWORD"); v != "" {
		cfg.Gateway.Password = v
	}
	if v := os.Getenv("WEBOT_HTTP_ADDR"); v != "" {
		cfg.HTTP.Addr = v
	}
	if v := os.Getenv("WEBOT_LOG_LEVEL"); v != "" {
		cfg.Logger.Level = v
	}
}

// resolveDebug folds the debug toggle into the logger level. Precedence:
// explicit config value, then WEBOT_DEBUG, then off.
func resolveDebug(cfg *Config) {
	debug := false
	if cfg.Debug != nil {
		debug = *cfg.Debug
	} else if v := os.Getenv("WEBOT_DEBUG"); v != "" {
		parsed, err := strconv.ParseBool(v)
		debug = err == nil && parsed
	}
	if debug {
		cfg.Logger.Level = "debug"
	}
	resolved := debug
	cfg.Debug = &resolved
}

// Validate checks the configuration for internal consistency.
func (c *Config) Validate() error {
	if c.Gateway.URL == "" {
		return domain.NewClientError("config.Validate", domain.ErrInvalidConfig, "gateway.url is required")
	}
	if !strings.HasPrefix(c.Gateway.URL, "ws://") && !strings.HasPrefix(c.Gateway.URL, "wss://") {
		return domain.NewClientError("config.Validate", domain.ErrInvalidConfig,
			fmt.Sprintf("gateway.url must be a ws:// or wss:// URL, got %q", c.Gateway.URL))
	}
	for _, d := range []struct{ name, value string }{
		{"gateway.request_timeout", c.Gateway.RequestTimeout},
		{"gateway.reconnect_delay", c.Gateway.ReconnectDelay},
		{"gateway.max_reconnect_delay", c.Gateway.MaxReconnectDelay},
	} {
		if d.value == "" {
			continue
		}
		if _, err := time.ParseDuration(d.value); err != nil {
			return domain.NewClientError("config.Validate", domain.ErrInvalidConfig,
				fmt.Sprintf("%s: %v", d.name, err))
		}
	}
	if !strings.HasPrefix(c.HTTP.BasePath, "/") {
		return domain.NewClientError("config.Validate", domain.ErrInvalidConfig,
			fmt.Sprintf("http.base_path must start with /, got %q", c.HTTP.BasePath))
	}
	switch strings.ToLower(c.Logger.Format) {
	case "", "text", "json":
	default:
		return domain.NewClientError("config.Validate", domain.ErrInvalidConfig,
			fmt.Sprintf("logger.format must be text or json, got %q", c.Logger.Format))
	}
	return nil
}

// Duration parses a duration string field, returning fallback for the
// empty string. Call only after Validate.
func Duration(value string, fallback time.Duration) time.Duration {
	if value == "" {
		return fallback
	}
	d, err := time.ParseDuration(value)
	if err != nil {
		return fallback
	}
	return d
}
