package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

type Config struct {
	App         AppConfig                `json:"app" yaml:"app"`
	Gateways    map[string]GatewayConfig `json:"gateways" yaml:"gateways"`
	Storage     StorageConfig            `json:"storage" yaml:"storage"`
	Advertising AdvertisingConfig        `json:"advertising" yaml:"advertising"`
}

type AppConfig struct {
	Name        string `json:"name" yaml:"name"`
	LogDir      string `json:"log_dir" yaml:"log_dir"`
	MetricsAddr string `json:"metrics_addr,omitempty" yaml:"metrics_addr,omitempty"`
	Dashboard   bool   `json:"dashboard" yaml:"dashboard"`
}

type GatewayConfig struct {
	Token   string `json:"token" yaml:"token"`
	Enabled bool   `json:"enabled" yaml:"enabled"`
	GuildID string `json:"guild_id,omitempty" yaml:"guild_id,omitempty"`
}

type StorageConfig struct {
	Path string `json:"path" yaml:"path"`
}

type AdvertisingConfig struct {
	InProgressChannel string   `json:"in_progress_channel" yaml:"in_progress_channel"`
	AdChannel         string   `json:"ad_channel" yaml:"ad_channel"`
	MaxAdPerUser      int      `json:"max_ad_per_user" yaml:"max_ad_per_user"`
	DenyPatterns      []string `json:"deny_patterns,omitempty" yaml:"deny_patterns,omitempty"`
}

// Default returns the configuration written when none exists yet.
func Default() *Config {
	return &Config{
		App: AppConfig{
			Name:      "bidibip",
			LogDir:    "logs",
			Dashboard: true,
		},
		Gateways: map[string]GatewayConfig{
			"discord":  {Enabled: true},
			"telegram": {Enabled: false},
		},
		Storage: StorageConfig{Path: "bidibip.db"},
		Advertising: AdvertisingConfig{
			MaxAdPerUser: 2,
		},
	}
}

func isYAML(path string) bool {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		return true
	}
	return false
}

// LoadConfig reads a JSON or YAML (by extension) configuration. When the
// file does not exist a default one is written there and an error returned
// so the operator can fill it in.
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		if werr := Default().Save(path); werr != nil {
			return nil, fmt.Errorf("failed to write default config: %w", werr)
		}
		return nil, fmt.Errorf("no config at %s: a default one was created, fill it in and restart", path)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to open config file: %w", err)
	}

	cfg := Default()
	if isYAML(path) {
		err = yaml.Unmarshal(data, cfg)
	} else {
		err = json.Unmarshal(data, cfg)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to decode config file: %w", err)
	}
	return cfg, nil
}

func (c *Config) Save(path string) error {
	var (
		data []byte
		err  error
	)
	if isYAML(path) {
		data, err = yaml.Marshal(c)
	} else {
		data, err = json.MarshalIndent(c, "", "  ")
	}
	if err != nil {
		return err
	}
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return err
		}
	}
	return os.WriteFile(path, data, 0o600)
}

// Validate checks that exactly one gateway can be started and that the
// advertising channels are set.
func (c *Config) Validate() error {
	name, gw := c.GetGateway()
	if name == "" {
		return errors.New("no gateway is enabled")
	}
	if gw.Token == "" {
		return fmt.Errorf("gateway %s is enabled but has no token", name)
	}
	if name == "discord" && c.Advertising.InProgressChannel == "" {
		return errors.New("advertising.in_progress_channel is required")
	}
	if c.Advertising.AdChannel == "" {
		return errors.New("advertising.ad_channel is required")
	}
	if c.Advertising.MaxAdPerUser < 0 {
		return errors.New("advertising.max_ad_per_user must not be negative")
	}
	return nil
}

// GetGateway returns the enabled gateway, preferring Discord.
func (c *Config) GetGateway() (string, GatewayConfig) {
	for _, name := range []string{"discord", "telegram"} {
		if gw, ok := c.Gateways[name]; ok && gw.Enabled {
			return name, gw
		}
	}
	return "", GatewayConfig{}
}
