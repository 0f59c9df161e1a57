// Package config loads client settings from a YAML file, a .env file and
// the environment, in increasing order of precedence.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/goccy/go-yaml"
	"github.com/joho/godotenv"
)

const (
	DefaultServerURL      = "http://localhost:8080"
	DefaultWSPath         = "/ws"
	DefaultTransport      = "gobwas"
	DefaultReconnectDelay = 5 * time.Second
	DefaultRequestTimeout = 10 * time.Second
	DefaultLogLevel       = "info"
)

// Environment variables overriding the file.
const (
	EnvServerURL   = "CHAT_SERVER_URL"
	EnvTransport   = "CHAT_TRANSPORT"
	EnvDataDir     = "CHAT_DATA_DIR"
	EnvLogLevel    = "CHAT_LOG_LEVEL"
	EnvMetricsAddr = "CHAT_METRICS_ADDR"
)

// Config holds the client settings.
type Config struct {
	ServerURL      string `yaml:"server_url"`
	WSPath         string `yaml:"ws_path"`
	Transport      string `yaml:"transport"`
	DataDir        string `yaml:"data_dir"`
	LogLevel       string `yaml:"log_level"`
	LogDevelopment bool   `yaml:"log_development"`
	MetricsAddr    string `yaml:"metrics_addr"`
	ReconnectDelay string `yaml:"reconnect_delay"`
	RequestTimeout string `yaml:"request_timeout"`
}

// Default returns the built-in settings.
func Default() *Config {
	return &Config{
		ServerURL:      DefaultServerURL,
		WSPath:         DefaultWSPath,
		Transport:      DefaultTransport,
		DataDir:        defaultDataDir(),
		LogLevel:       DefaultLogLevel,
		ReconnectDelay: DefaultReconnectDelay.String(),
		RequestTimeout: DefaultRequestTimeout.String(),
	}
}

func defaultDataDir() string {
	dir, err := os.UserConfigDir()
	if err != nil {
		return ".toy-chat"
	}
	return filepath.Join(dir, "toy-chat")
}

// Load builds the configuration. A missing file at path is not an error;
// an empty path skips the file. Values from a .env file in the working
// directory are applied to the environment without overriding it.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		switch {
		case errors.Is(err, fs.ErrNotExist):
		case err != nil:
			return nil, fmt.Errorf("failed to read config file: %w", err)
		default:
			if err := yaml.Unmarshal(data, cfg); err != nil {
				return nil, fmt.Errorf("failed to parse config file: %w", err)
			}
		}
	}

	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("failed to load .env: %w", err)
	}
	cfg.applyEnv()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) applyEnv() {
	for env, field := range map[string]*string{
		EnvServerURL:   &c.ServerURL,
		EnvTransport:   &c.Transport,
		EnvDataDir:     &c.DataDir,
		EnvLogLevel:    &c.LogLevel,
		EnvMetricsAddr: &c.MetricsAddr,
	} {
		if v, ok := os.LookupEnv(env); ok && v != "" {
			*field = v
		}
	}
}

// Validate checks the settings are usable.
func (c *Config) Validate() error {
	u, err := url.Parse(c.ServerURL)
	if err != nil {
		return fmt.Errorf("invalid server_url: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("invalid server_url %q: scheme must be http or https", c.ServerURL)
	}
	if _, err := c.ReconnectDelayDuration(); err != nil {
		return err
	}
	if _, err := c.RequestTimeoutDuration(); err != nil {
		return err
	}
	return nil
}

// WSURL derives the live channel URL from the server URL.
func (c *Config) WSURL() (string, error) {
	u, err := url.Parse(c.ServerURL)
	if err != nil {
		return "", fmt.Errorf("invalid server_url: %w", err)
	}
	switch u.Scheme {
	case "https":
		u.Scheme = "wss"
	default:
		u.Scheme = "ws"
	}
	path := c.WSPath
	if path == "" {
		path = DefaultWSPath
	}
	u.Path = strings.TrimRight(u.Path, "/") + "/" + strings.TrimLeft(path, "/")
	u.RawQuery = ""
	return u.String(), nil
}

// ReconnectDelayDuration parses reconnect_delay.
func (c *Config) ReconnectDelayDuration() (time.Duration, error) {
	return parseDuration("reconnect_delay", c.ReconnectDelay, DefaultReconnectDelay)
}

// RequestTimeoutDuration parses request_timeout.
func (c *Config) RequestTimeoutDuration() (time.Duration, error) {
	return parseDuration("request_timeout", c.RequestTimeout, DefaultRequestTimeout)
}

func parseDuration(name, value string, fallback time.Duration) (time.Duration, error) {
	if value == "" {
		return fallback, nil
	}
	d, err := time.ParseDuration(value)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", name, err)
	}
	if d <= 0 {
		return 0, fmt.Errorf("invalid %s: must be positive", name)
	}
	return d, nil
}
