package config

import (
	"os"
	"path/filepath"
	"time"

	"github.com/knadh/koanf/parsers/toml"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
	"go.uber.org/zap"
)

// Defaults are deliberately conservative; every value is overridable from
// the config file or environment.
const (
	defaultSinkPrefix = "autopause"
	defaultRetries    = 2
	defaultBackoffMs  = 150
	defaultSettleMs   = 1000
)

// Config holds the daemon configuration
type Config struct {
	Device  DeviceConfig  `koanf:"device"`
	Control ControlConfig `koanf:"control"`
	Players PlayersConfig `koanf:"players"`
}

// DeviceConfig identifies the managed output device
type DeviceConfig struct {
	// Sink is matched as a prefix against PulseAudio's default sink name
	Sink string `koanf:"sink"`
}

// ControlConfig tunes the control-channel command policy
type ControlConfig struct {
	// Retries is the number of re-attempts after a failed transport command
	Retries int `koanf:"retries"`
	// BackoffMs is the delay between attempts
	BackoffMs int `koanf:"backoff_ms"`
	// SettleMs bounds the wait for a command to take observable effect
	SettleMs int `koanf:"settle_ms"`
}

// Backoff returns the retry backoff as a duration
func (c ControlConfig) Backoff() time.Duration {
	return time.Duration(c.BackoffMs) * time.Millisecond
}

// Settle returns the command settle wait as a duration
func (c ControlConfig) Settle() time.Duration {
	return time.Duration(c.SettleMs) * time.Millisecond
}

// PlayersConfig selects which registered backends are active
type PlayersConfig struct {
	// Disabled lists player identities to skip at registration
	Disabled []string `koanf:"disabled"`
}

// Load reads configuration files in priority order (XDG config dir first,
// then the working directory; last file wins), applies defaults and
// environment overrides, and logs the effective values.
func Load(logger *zap.Logger) (*Config, error) {
	k := koanf.New(".")

	for _, path := range configPaths() {
		if _, err := os.Stat(path); err != nil {
			continue
		}
		if err := k.Load(file.Provider(path), toml.Parser()); err != nil {
			return nil, err
		}
		logger.Debug("Config file loaded", zap.String("path", path))
	}

	cfg := &Config{
		Device: DeviceConfig{Sink: defaultSinkPrefix},
		Control: ControlConfig{
			Retries:   defaultRetries,
			BackoffMs: defaultBackoffMs,
			SettleMs:  defaultSettleMs,
		},
	}

	if err := k.Unmarshal("", cfg); err != nil {
		return nil, err
	}

	// Environment override beats the config file for the sink name, so a
	// session script can point the daemon at a differently named loopback
	// without editing files.
	if sink := os.Getenv("AUTOPAUSE_SINK"); sink != "" {
		cfg.Device.Sink = sink
	}

	logger.Info("Configuration loaded",
		zap.String("sink", cfg.Device.Sink),
		zap.Int("retries", cfg.Control.Retries),
		zap.Duration("backoff", cfg.Control.Backoff()),
		zap.Duration("settle", cfg.Control.Settle()),
		zap.Strings("disabledPlayers", cfg.Players.Disabled))

	return cfg, nil
}

func configPaths() []string {
	paths := []string{}

	if home, err := os.UserHomeDir(); err == nil {
		paths = append(paths, filepath.Join(home, ".config", "autopause", "config.toml"))
	}

	// cwd config has the highest priority
	paths = append(paths, "config.toml")

	return paths
}
