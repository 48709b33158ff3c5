package config

import (
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config holds all configuration for the application
type Config struct {
	// Audio output configuration
	Audio AudioConfig `mapstructure:"audio"`

	// Playback defaults applied to every new program
	Playback PlaybackConfig `mapstructure:"playback"`

	// Export configuration
	Export ExportConfig `mapstructure:"export"`

	// Playlist resolution
	Playlist PlaylistConfig `mapstructure:"playlist"`

	// Logging configuration
	Logging LoggingConfig `mapstructure:"logging"`
}

// AudioConfig holds output device configuration
type AudioConfig struct {
	Buffer      time.Duration `mapstructure:"buffer"`
	ProgressLog time.Duration `mapstructure:"progress_log"`

	// Preload decodes every stream into memory before playing
	Preload bool `mapstructure:"preload"`
}

// PlaybackConfig holds the initial sequencer settings
type PlaybackConfig struct {
	Amplitude float64 `mapstructure:"amplitude"`
	Loop      bool    `mapstructure:"loop"`
	Epilogue  bool    `mapstructure:"epilogue"`
	Final     bool    `mapstructure:"final"`
}

// ExportConfig holds file sink configuration
type ExportConfig struct {
	BlockFrames  int     `mapstructure:"block_frames"`
	ProgressStep float64 `mapstructure:"progress_step"`
}

// PlaylistConfig controls how playlist entries map to stream files
type PlaylistConfig struct {
	Extension string `mapstructure:"extension"`
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"` // json or text
}

// SetDefaults registers default values on v
func SetDefaults(v *viper.Viper) {
	v.SetDefault("audio.buffer", "100ms")
	v.SetDefault("audio.progress_log", "5s")
	v.SetDefault("audio.preload", false)
	v.SetDefault("playback.amplitude", 1.0)
	v.SetDefault("playback.loop", true)
	v.SetDefault("playback.epilogue", false)
	v.SetDefault("playback.final", false)
	v.SetDefault("export.block_frames", 4096)
	v.SetDefault("export.progress_step", 0.01)
	v.SetDefault("playlist.extension", ".wav")
	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "text")
}

// LoadConfig loads configuration from file and environment variables
func LoadConfig() (*Config, error) {
	return Load(viper.GetViper())
}

// Load reads configuration through v
func Load(v *viper.Viper) (*Config, error) {
	SetDefaults(v)

	if v.ConfigFileUsed() == "" {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("$HOME/.musplay")
		v.AddConfigPath("/etc/musplay")
	}

	// Allow environment variables
	v.SetEnvPrefix("MUSPLAY")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, err
		}
		slog.Debug("No config file found, using defaults and environment variables")
	} else {
		slog.Debug("Using config file", slog.String("file", v.ConfigFileUsed()))
	}

	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, err
	}

	return &config, nil
}

// Validate validates the configuration
func (c *Config) Validate() error {
	if c.Audio.Buffer <= 0 {
		return &ConfigError{Field: "audio.buffer", Message: "must be positive"}
	}
	if c.Playback.Amplitude < 0 {
		return &ConfigError{Field: "playback.amplitude", Message: "must not be negative"}
	}
	if c.Export.BlockFrames <= 0 {
		return &ConfigError{Field: "export.block_frames", Message: "must be positive"}
	}
	if c.Export.ProgressStep <= 0 || c.Export.ProgressStep > 1 {
		return &ConfigError{Field: "export.progress_step", Message: "must be in (0, 1]"}
	}
	if !strings.HasPrefix(c.Playlist.Extension, ".") {
		return &ConfigError{Field: "playlist.extension", Message: fmt.Sprintf("%q must start with a dot", c.Playlist.Extension)}
	}
	switch strings.ToLower(c.Logging.Format) {
	case "text", "json":
	default:
		return &ConfigError{Field: "logging.format", Message: "must be text or json"}
	}
	return nil
}

// ConfigError represents a configuration validation error
type ConfigError struct {
	Field   string
	Message string
}

func (e *ConfigError) Error() string {
	return e.Field + ": " + e.Message
}
