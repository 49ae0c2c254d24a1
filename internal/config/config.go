package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

type Config struct {
	ListenAddr string   `yaml:"listen_addr"`
	Containers []string `yaml:"containers"`

	// Device ids pinned to a facing direction; empty means pick by label.
	RearDeviceID  string `yaml:"rear_device_id"`
	FrontDeviceID string `yaml:"front_device_id"`

	Width  int `yaml:"width"`
	Height int `yaml:"height"`
	FPS    int `yaml:"fps"`

	StunURL  string `yaml:"stun_url"`
	LogLevel string `yaml:"log_level"`
}

// LoadConfig reads .env (if present) into the environment, builds the config
// from it and overlays the YAML file named by PREVIEW_CONFIG_FILE.
func LoadConfig() (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("load .env: %w", err)
	}

	cfg, err := FromEnv()
	if err != nil {
		return nil, err
	}

	if path := os.Getenv("PREVIEW_CONFIG_FILE"); path != "" {
		if err := cfg.MergeFile(path); err != nil {
			return nil, err
		}
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// FromEnv builds a config from the process environment and defaults.
// Malformed numbers are reported rather than replaced by their default.
func FromEnv() (*Config, error) {
	env := &envReader{}
	cfg := &Config{
		ListenAddr:    envOr("PREVIEW_LISTEN_ADDR", ":8080"),
		Containers:    splitList(envOr("PREVIEW_CONTAINERS", "camera")),
		RearDeviceID:  os.Getenv("PREVIEW_REAR_DEVICE"),
		FrontDeviceID: os.Getenv("PREVIEW_FRONT_DEVICE"),
		Width:         env.intOr("PREVIEW_WIDTH", 640),
		Height:        env.intOr("PREVIEW_HEIGHT", 480),
		FPS:           env.intOr("PREVIEW_FPS", 30),
		StunURL:       envOr("STUN_URL", "stun:stun.l.google.com:19302"),
		LogLevel:      envOr("PREVIEW_LOG_LEVEL", "info"),
	}
	if env.err != nil {
		return nil, env.err
	}
	return cfg, nil
}

// MergeFile overlays the non-zero values of a YAML file onto c.
func (c *Config) MergeFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config file: %w", err)
	}
	if err := yaml.Unmarshal(data, c); err != nil {
		return fmt.Errorf("parse config file %s: %w", path, err)
	}
	return nil
}

func (c *Config) Validate() error {
	if c.ListenAddr == "" {
		return errors.New("listen address is empty")
	}
	if len(c.Containers) == 0 {
		return errors.New("at least one preview container is required")
	}
	for _, id := range c.Containers {
		if id == "" {
			return errors.New("preview container id is empty")
		}
	}
	if c.Width < 0 || c.Height < 0 {
		return fmt.Errorf("invalid preview size %dx%d", c.Width, c.Height)
	}
	if c.FPS <= 0 || c.FPS > 120 {
		return fmt.Errorf("invalid preview fps: %d", c.FPS)
	}
	return nil
}

func envOr(key, def string) string {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		return v
	}
	return def
}

// envReader collects parse errors across several lookups.
type envReader struct {
	err error
}

func (r *envReader) intOr(key string, def int) int {
	v, ok := os.LookupEnv(key)
	if !ok || v == "" {
		return def
	}
	n, err := strconv.Atoi(strings.TrimSpace(v))
	if err != nil {
		r.err = errors.Join(r.err, fmt.Errorf("%s: %q is not an integer", key, v))
		return def
	}
	return n
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
