package config

import (
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

type Config struct {
	Backend    BackendConfig    `yaml:"backend"`
	Transport  TransportConfig  `yaml:"transport"`
	Reconciler ReconcilerConfig `yaml:"reconciler"`
	Relay      RelayConfig      `yaml:"relay"`
}

type BackendConfig struct {
	BaseURL string        `yaml:"base_url"`
	Timeout time.Duration `yaml:"timeout"`
}

type TransportConfig struct {
	AppID    string `yaml:"app_id"`
	RelayURL string `yaml:"relay_url"`
}

type ReconcilerConfig struct {
	PollInterval time.Duration `yaml:"poll_interval"`
	TickInterval time.Duration `yaml:"tick_interval"`
}

type RelayConfig struct {
	Host            string        `yaml:"host"`
	Port            int           `yaml:"port"`
	SessionDuration time.Duration `yaml:"session_duration"`
	Licenses        []LicenseSeed `yaml:"licenses"`
}

// LicenseSeed pre-loads a license code into the relay's dev backend.
type LicenseSeed struct {
	Code      string `yaml:"code"`
	MaxGuests int    `yaml:"max_guests"`
	Minutes   int    `yaml:"minutes"`
}

// Default returns the configuration used when no config file is given.
func Default() *Config {
	return &Config{
		Backend: BackendConfig{
			BaseURL: "http://127.0.0.1:8080",
			Timeout: 10 * time.Second,
		},
		Transport: TransportConfig{
			AppID:    "dev",
			RelayURL: "ws://127.0.0.1:8080",
		},
		Reconciler: ReconcilerConfig{
			PollInterval: 5 * time.Second,
			TickInterval: time.Second,
		},
		Relay: RelayConfig{
			Host:            "0.0.0.0",
			Port:            8080,
			SessionDuration: 90 * time.Minute,
		},
	}
}

func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	cfg := Default()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, err
	}

	return cfg, nil
}
