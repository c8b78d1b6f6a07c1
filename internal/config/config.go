// Package config loads the player configuration from a YAML file.
package config

import (
	"os"
	"path/filepath"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/creasty/defaults"
	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"
)

// Config is the full player configuration.
type Config struct {
	Audio AudioConfig `yaml:"audio"`
	State StateConfig `yaml:"state"`
	Drop  DropConfig  `yaml:"drop"`
	IPC   IPCConfig   `yaml:"ipc"`
	Media MediaConfig `yaml:"media"`
}

// AudioConfig configures the output device and the engine poll rate.
type AudioConfig struct {
	SampleRate     int `yaml:"sample_rate" default:"44100" validate:"gt=0"`
	Channels       int `yaml:"channels" default:"2" validate:"oneof=1 2"`
	PollIntervalMs int `yaml:"poll_interval_ms" default:"150" validate:"gte=10,lte=1000"`
}

// StateConfig configures session persistence.
type StateConfig struct {
	Path            string `yaml:"path"`
	SaveIntervalMin int    `yaml:"save_interval_min" default:"20" validate:"gte=1,lte=720"`
}

// DropConfig configures the playlist drop directory.
type DropConfig struct {
	Dir string `yaml:"dir"`
}

// IPCConfig configures the local control socket.
type IPCConfig struct {
	Socket string `yaml:"socket"`
}

// MediaConfig configures desktop media session integration.
type MediaConfig struct {
	Enabled bool `yaml:"enabled" default:"true"`
}

// PollInterval returns the engine poll interval.
func (c *Config) PollInterval() time.Duration {
	return time.Duration(c.Audio.PollIntervalMs) * time.Millisecond
}

// SaveInterval returns the periodic state save interval.
func (c *Config) SaveInterval() time.Duration {
	return time.Duration(c.State.SaveIntervalMin) * time.Minute
}

// Load reads the configuration file, applies environment overrides,
// defaults and validation. A missing file is not an error; the player runs
// fine on defaults alone.
func Load(path string) (*Config, error) {
	var cfg Config

	data, err := os.ReadFile(path)
	switch {
	case errors.Is(err, os.ErrNotExist):
	case err != nil:
		return nil, errors.Wrap(err, "read config file")
	default:
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return nil, errors.Wrap(err, "parse config file")
		}
	}

	cfg.overrideFromEnv()

	if err := defaults.Set(&cfg); err != nil {
		return nil, errors.Wrap(err, "set config defaults")
	}
	cfg.resolvePaths()

	if err := validator.New().Struct(&cfg); err != nil {
		return nil, errors.Wrap(err, "config validation failed")
	}
	return &cfg, nil
}

func (c *Config) overrideFromEnv() {
	if v := os.Getenv("AUDIOWRENCH_STATE"); v != "" {
		c.State.Path = v
	}
	if v := os.Getenv("AUDIOWRENCH_DROP_DIR"); v != "" {
		c.Drop.Dir = v
	}
	if v := os.Getenv("AUDIOWRENCH_SOCKET"); v != "" {
		c.IPC.Socket = v
	}
}

// resolvePaths fills path defaults that depend on the host environment.
func (c *Config) resolvePaths() {
	if c.State.Path == "" {
		c.State.Path = filepath.Join(userConfigBase(), "audiowrench", "audio_wrench.json")
	}
	if c.Drop.Dir == "" {
		c.Drop.Dir = filepath.Join(userConfigBase(), "audiowrench", "drops")
	}
	if c.IPC.Socket == "" {
		dir := os.Getenv("XDG_RUNTIME_DIR")
		if dir == "" {
			dir = os.TempDir()
		}
		c.IPC.Socket = filepath.Join(dir, "wrenchd.sock")
	}
}

func userConfigBase() string {
	dir, err := os.UserConfigDir()
	if err != nil {
		return "."
	}
	return dir
}
