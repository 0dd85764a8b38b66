package main

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// rawConfig is the YAML representation of config.yml.
type rawConfig struct {
	Sleep          string      `yaml:"sleep"`
	Suspend        bool        `yaml:"suspend"`
	SuspendGrace   string      `yaml:"suspend_grace"`
	WakeupRtc      string      `yaml:"wakeup_rtc"`
	ExitKeys       []string    `yaml:"exit_keys"`
	InputDevices   string      `yaml:"input_devices"`
	RefreshCommand string      `yaml:"refresh_command"`
	WaitForNetwork *rawNetwork `yaml:"wait_for_network"`
}

type rawNetwork struct {
	URL     string `yaml:"url"`
	Timeout string `yaml:"timeout"`
}

// Config holds the resolved, validated configuration.
type Config struct {
	Sleep          time.Duration // 0 = refresh once and exit
	Suspend        bool
	SuspendGrace   time.Duration
	WakeupRtc      string
	ExitKeys       []KeyCode
	InputDevices   string
	RefreshCommand string
	WaitForNetwork *NetworkConfig
}

// minSuspendInterval is the shortest refresh interval allowed when
// suspending to RAM: suspend/resume cycles are too expensive for
// anything shorter.
const minSuspendInterval = 30 * time.Second

// LoadConfig reads and resolves a config file.
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", path, err)
	}

	var raw rawConfig
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}

	cfg, err := raw.resolve()
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return cfg, nil
}

func (r *rawConfig) resolve() (*Config, error) {
	cfg := &Config{
		Suspend:        r.Suspend,
		SuspendGrace:   3 * time.Second,
		WakeupRtc:      "/dev/rtc0",
		InputDevices:   "/dev/input/event*",
		RefreshCommand: r.RefreshCommand,
	}

	if r.Sleep != "" {
		d, err := time.ParseDuration(r.Sleep)
		if err != nil {
			return nil, fmt.Errorf("sleep: %w", err)
		}
		if d <= 0 {
			return nil, fmt.Errorf("sleep: interval must be positive, got %s", d)
		}
		cfg.Sleep = d
	}

	if r.SuspendGrace != "" {
		d, err := time.ParseDuration(r.SuspendGrace)
		if err != nil {
			return nil, fmt.Errorf("suspend_grace: %w", err)
		}
		if d < 0 {
			return nil, fmt.Errorf("suspend_grace: period must not be negative, got %s", d)
		}
		cfg.SuspendGrace = d
	}

	if r.WakeupRtc != "" {
		cfg.WakeupRtc = r.WakeupRtc
	}
	if r.InputDevices != "" {
		cfg.InputDevices = r.InputDevices
	}

	for _, s := range r.ExitKeys {
		code, err := ParseKeyCode(s)
		if err != nil {
			return nil, fmt.Errorf("exit_keys: %w", err)
		}
		cfg.ExitKeys = append(cfg.ExitKeys, code)
	}

	if r.WaitForNetwork != nil {
		if r.WaitForNetwork.URL == "" {
			return nil, fmt.Errorf("wait_for_network: url is required")
		}
		probe := &NetworkConfig{URL: r.WaitForNetwork.URL, Timeout: 30 * time.Second}
		if r.WaitForNetwork.Timeout != "" {
			d, err := time.ParseDuration(r.WaitForNetwork.Timeout)
			if err != nil {
				return nil, fmt.Errorf("wait_for_network.timeout: %w", err)
			}
			probe.Timeout = d
		}
		cfg.WaitForNetwork = probe
	}

	if cfg.Suspend && cfg.Sleep == 0 {
		return nil, fmt.Errorf("suspend requires a sleep interval")
	}
	if cfg.Suspend && cfg.Sleep < minSuspendInterval {
		return nil, fmt.Errorf("suspend to RAM requires a sleep interval of at least %s, got %s",
			minSuspendInterval, cfg.Sleep)
	}

	return cfg, nil
}
