package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strings"

	"github.com/spf13/viper"
)

type Config struct {
	LogLevel string        `json:"log_level" mapstructure:"log_level"`
	Audio    AudioConfig   `json:"audio" mapstructure:"audio"`
	Output   OutputConfig  `json:"output" mapstructure:"output"`
	Console  ConsoleConfig `json:"console" mapstructure:"console"`
}

type AudioConfig struct {
	Backend       string `json:"backend" mapstructure:"backend"`           // "malgo", "portaudio", "synth" or "" for the default
	DeviceIndex   int    `json:"device_index" mapstructure:"device_index"` // -1 selects the first device
	SampleRate    int    `json:"sample_rate" mapstructure:"sample_rate"`
	Channels      int    `json:"channels" mapstructure:"channels"`
	LatencyFrames int    `json:"latency_frames" mapstructure:"latency_frames"`
}

type OutputConfig struct {
	File           string `json:"file" mapstructure:"file"`
	CopyPathOnSave bool   `json:"copy_path_on_save" mapstructure:"copy_path_on_save"`
}

type ConsoleConfig struct {
	MeterInterval int `json:"meter_interval" mapstructure:"meter_interval"` // callbacks between level readouts, 0 disables
}

// EnvPrefix prefixes environment overrides, e.g. AUDIOCAPTURE_AUDIO_BACKEND.
const EnvPrefix = "AUDIOCAPTURE"

func setDefaults(v *viper.Viper) {
	v.SetDefault("log_level", "info")
	v.SetDefault("audio.backend", "")
	v.SetDefault("audio.device_index", -1)
	v.SetDefault("audio.sample_rate", 48000)
	v.SetDefault("audio.channels", 2)
	v.SetDefault("audio.latency_frames", 4096)
	v.SetDefault("output.file", "captured-audio.wav")
	v.SetDefault("output.copy_path_on_save", false)
	v.SetDefault("console.meter_interval", 500)
}

// Load reads the config from the platform config path, falling back to
// defaults when the file does not exist.
func Load() (*Config, error) {
	return LoadFile(configPath())
}

// LoadFile reads the config from path. Missing files yield defaults;
// environment variables override both.
func LoadFile(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v)
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Load existing config if it exists
	if _, err := os.Stat(path); err == nil {
		v.SetConfigFile(path)
		v.SetConfigType("json")
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config %s: %w", path, err)
		}
	}

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("decode config %s: %w", path, err)
	}
	return cfg, nil
}

// Save writes the config to disk
func (c *Config) Save() error {
	return c.SaveFile(configPath())
}

// SaveFile writes the config to path.
func (c *Config) SaveFile(path string) error {
	// Ensure directory exists
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return err
	}

	data, err := json.MarshalIndent(c, "", "  ")
	if err != nil {
		return err
	}

	return os.WriteFile(path, data, 0644)
}

// Path returns the platform-specific config file path.
func Path() string {
	return configPath()
}

// configPath returns the platform-specific config file path
func configPath() string {
	var base string

	switch runtime.GOOS {
	case "darwin":
		base = os.Getenv("HOME") + "/Library/Application Support"
	case "windows":
		base = os.Getenv("APPDATA")
	default: // linux
		if xdg := os.Getenv("XDG_CONFIG_HOME"); xdg != "" {
			base = xdg
		} else {
			base = os.Getenv("HOME") + "/.config"
		}
	}

	return filepath.Join(base, "audiocapture", "config.json")
}
