package config

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"
)

const EnvPrefix = "AUDIOBRIDGE"

type Config struct {
	Audio    AudioConfig    `mapstructure:"audio" yaml:"audio"`
	Recorder RecorderConfig `mapstructure:"recorder" yaml:"recorder"`
	Server   ServerConfig   `mapstructure:"server" yaml:"server"`
	MQTT     MQTTConfig     `mapstructure:"mqtt" yaml:"mqtt"`
}

type AudioConfig struct {
	Backend     string `mapstructure:"backend" yaml:"backend"` // "pulse", "auto"
	PactlBinary string `mapstructure:"pactl_binary" yaml:"pactl_binary"`
}

type RecorderConfig struct {
	FFmpegBinary  string        `mapstructure:"ffmpeg_binary" yaml:"ffmpeg_binary"`
	InputFormat   string        `mapstructure:"input_format" yaml:"input_format"` // ffmpeg -f value
	Codec         string        `mapstructure:"codec" yaml:"codec"`
	SampleRate    int           `mapstructure:"sample_rate" yaml:"sample_rate"`
	Channels      int           `mapstructure:"channels" yaml:"channels"`
	Bitrate       string        `mapstructure:"bitrate" yaml:"bitrate"`
	Directory     string        `mapstructure:"output_directory" yaml:"output_directory"`
	FilePrefix    string        `mapstructure:"file_prefix" yaml:"file_prefix"`
	Extension     string        `mapstructure:"extension" yaml:"extension"`
	StopTimeout   time.Duration `mapstructure:"stop_timeout" yaml:"stop_timeout"`
	DefaultDevice string        `mapstructure:"default_device" yaml:"default_device"`
	RestoreOutput string        `mapstructure:"restore_output" yaml:"restore_output"`
}

type ServerConfig struct {
	Address   string `mapstructure:"address" yaml:"address"`
	Port      int    `mapstructure:"port" yaml:"port"`
	EnableMCP bool   `mapstructure:"enable_mcp" yaml:"enable_mcp"`
}

type MQTTConfig struct {
	Enabled  bool   `mapstructure:"enabled" yaml:"enabled"`
	Broker   string `mapstructure:"broker" yaml:"broker"`
	Topic    string `mapstructure:"topic" yaml:"topic"`
	ClientID string `mapstructure:"client_id" yaml:"client_id"`
	Username string `mapstructure:"username" yaml:"username"`
	Password string `mapstructure:"password" yaml:"password"`
}

var defaultConfig = Config{
	Audio: AudioConfig{
		Backend:     "auto",
		PactlBinary: "pactl",
	},
	Recorder: RecorderConfig{
		FFmpegBinary:  "ffmpeg",
		InputFormat:   "pulse",
		Codec:         "aac",
		SampleRate:    44100,
		Channels:      2,
		Bitrate:       "192k",
		Directory:     "~/Music/audiobridge",
		FilePrefix:    "recording",
		Extension:     "m4a",
		StopTimeout:   10 * time.Second,
		DefaultDevice: "BlackHole 2ch",
		RestoreOutput: "Speaker",
	},
	Server: ServerConfig{
		Address:   "127.0.0.1",
		Port:      3005,
		EnableMCP: true,
	},
	MQTT: MQTTConfig{
		Enabled:  false,
		Broker:   "tcp://localhost:1883",
		Topic:    "audiobridge/events",
		ClientID: "audiobridge",
	},
}

// Default returns a copy of the built-in configuration
func Default() *Config {
	cfg := defaultConfig
	cfg.Recorder.Directory = expandPath(cfg.Recorder.Directory)
	return &cfg
}

// DefaultPath returns the config file used when --config is not given
func DefaultPath() string {
	return expandPath("~/.config/audiobridge.yaml")
}

// Load reads configFile on top of the built-in defaults. A missing file is
// not an error. AUDIOBRIDGE_<SECTION>_<KEY> environment variables override
// both, e.g. AUDIOBRIDGE_SERVER_PORT.
func Load(configFile string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if configFile != "" {
		v.SetConfigFile(configFile)
		v.SetConfigType("yaml")
		if err := v.ReadInConfig(); err != nil {
			if !errors.Is(err, fs.ErrNotExist) {
				return nil, fmt.Errorf("error reading config file %s: %w", configFile, err)
			}
			slog.Debug("Config file not found, using defaults", "path", configFile)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("error decoding config: %w", err)
	}

	cfg.Recorder.Directory = expandPath(cfg.Recorder.Directory)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	d := defaultConfig

	v.SetDefault("audio.backend", d.Audio.Backend)
	v.SetDefault("audio.pactl_binary", d.Audio.PactlBinary)

	v.SetDefault("recorder.ffmpeg_binary", d.Recorder.FFmpegBinary)
	v.SetDefault("recorder.input_format", d.Recorder.InputFormat)
	v.SetDefault("recorder.codec", d.Recorder.Codec)
	v.SetDefault("recorder.sample_rate", d.Recorder.SampleRate)
	v.SetDefault("recorder.channels", d.Recorder.Channels)
	v.SetDefault("recorder.bitrate", d.Recorder.Bitrate)
	v.SetDefault("recorder.output_directory", d.Recorder.Directory)
	v.SetDefault("recorder.file_prefix", d.Recorder.FilePrefix)
	v.SetDefault("recorder.extension", d.Recorder.Extension)
	v.SetDefault("recorder.stop_timeout", d.Recorder.StopTimeout)
	v.SetDefault("recorder.default_device", d.Recorder.DefaultDevice)
	v.SetDefault("recorder.restore_output", d.Recorder.RestoreOutput)

	v.SetDefault("server.address", d.Server.Address)
	v.SetDefault("server.port", d.Server.Port)
	v.SetDefault("server.enable_mcp", d.Server.EnableMCP)

	v.SetDefault("mqtt.enabled", d.MQTT.Enabled)
	v.SetDefault("mqtt.broker", d.MQTT.Broker)
	v.SetDefault("mqtt.topic", d.MQTT.Topic)
	v.SetDefault("mqtt.client_id", d.MQTT.ClientID)
	v.SetDefault("mqtt.username", d.MQTT.Username)
	v.SetDefault("mqtt.password", d.MQTT.Password)
}

// Validate checks every section and reports the first problem found
func (c *Config) Validate() error {
	switch strings.ToLower(c.Audio.Backend) {
	case "", "auto", "pulse", "pulseaudio", "pipewire":
	default:
		return fmt.Errorf("audio.backend '%s' is not supported (use auto or pulse)", c.Audio.Backend)
	}

	r := c.Recorder
	if r.FFmpegBinary == "" {
		return fmt.Errorf("recorder.ffmpeg_binary is required")
	}
	if r.InputFormat == "" {
		return fmt.Errorf("recorder.input_format is required")
	}
	if r.Codec == "" {
		return fmt.Errorf("recorder.codec is required")
	}
	if r.SampleRate <= 0 {
		return fmt.Errorf("recorder.sample_rate must be positive, got %d", r.SampleRate)
	}
	if r.Channels < 1 || r.Channels > 8 {
		return fmt.Errorf("recorder.channels must be between 1 and 8, got %d", r.Channels)
	}
	if r.Directory == "" {
		return fmt.Errorf("recorder.output_directory is required")
	}
	if r.Extension == "" || strings.ContainsAny(r.Extension, "./") {
		return fmt.Errorf("recorder.extension '%s' is invalid", r.Extension)
	}
	if strings.ContainsRune(r.FilePrefix, filepath.Separator) {
		return fmt.Errorf("recorder.file_prefix '%s' must not contain a path separator", r.FilePrefix)
	}
	if r.StopTimeout <= 0 {
		return fmt.Errorf("recorder.stop_timeout must be positive, got %s", r.StopTimeout)
	}

	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return fmt.Errorf("server.port %d is out of range", c.Server.Port)
	}

	if c.MQTT.Enabled {
		if c.MQTT.Broker == "" {
			return fmt.Errorf("mqtt.broker is required when mqtt is enabled")
		}
		if c.MQTT.Topic == "" {
			return fmt.Errorf("mqtt.topic is required when mqtt is enabled")
		}
	}

	return nil
}

// RecordingPath returns the file a recording started at t is written to:
// <output_directory>/<file_prefix>-<unix millis>.<extension>
func (c *Config) RecordingPath(t time.Time) string {
	name := fmt.Sprintf("%d.%s", t.UnixMilli(), c.Recorder.Extension)
	if c.Recorder.FilePrefix != "" {
		name = c.Recorder.FilePrefix + "-" + name
	}
	return filepath.Join(c.Recorder.Directory, name)
}

// ListenAddress returns host:port for the HTTP server
func (c *Config) ListenAddress() string {
	return fmt.Sprintf("%s:%d", c.Server.Address, c.Server.Port)
}

// WriteFile writes the configuration as YAML, creating parent directories.
// An existing file is only replaced when overwrite is set.
func (c *Config) WriteFile(path string, overwrite bool) error {
	if !overwrite {
		if _, err := os.Stat(path); err == nil {
			return fmt.Errorf("config file %s already exists", path)
		}
	}

	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("error writing config file %s: %w", path, err)
	}
	return nil
}

func expandPath(path string) string {
	if strings.HasPrefix(path, "~/") {
		homeDir, _ := os.UserHomeDir()
		return filepath.Join(homeDir, path[2:])
	}
	return path
}
