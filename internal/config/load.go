package config

import (
	"errors"
	"fmt"
	"log"
	"os"
	"path/filepath"

	"github.com/BurntSushi/toml"
)

var ErrConfigNotFound = errors.New("config not found")

func GetConfigPath() (string, error) {
	configDir, err := os.UserConfigDir()
	if err != nil {
		return "", fmt.Errorf("failed to get user config directory: %w", err)
	}

	voxdDir := filepath.Join(configDir, "voxd")
	if err := os.MkdirAll(voxdDir, 0o755); err != nil {
		return "", fmt.Errorf("failed to create config directory: %w", err)
	}

	return filepath.Join(voxdDir, "config.toml"), nil
}

// Load reads the config file, creating it with defaults on first run.
func Load() (*Config, error) {
	configPath, err := GetConfigPath()
	if err != nil {
		return nil, err
	}

	if _, err := os.Stat(configPath); os.IsNotExist(err) {
		log.Printf("Config: no config at %s, writing defaults", configPath)
		if err := Save(DefaultConfig()); err != nil {
			return nil, fmt.Errorf("failed to create default config: %w", err)
		}
	} else if err != nil {
		return nil, fmt.Errorf("failed to stat config file %s: %w", configPath, err)
	}

	log.Printf("Config: loading configuration from %s", configPath)
	var config Config
	if _, err := toml.DecodeFile(configPath, &config); err != nil {
		return nil, fmt.Errorf("failed to parse config file %s: %w", configPath, err)
	}

	if config.Providers == nil {
		config.Providers = make(map[string]ProviderConfig)
	}
	config.applyDefaults()

	return &config, nil
}

// Save writes the config atomically next to the final path.
func Save(c *Config) error {
	configPath, err := GetConfigPath()
	if err != nil {
		return err
	}

	tmp := configPath + ".tmp"
	file, err := os.OpenFile(tmp, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0o600)
	if err != nil {
		return fmt.Errorf("failed to create config file: %w", err)
	}

	if err := toml.NewEncoder(file).Encode(c); err != nil {
		file.Close()
		os.Remove(tmp)
		return fmt.Errorf("failed to encode config: %w", err)
	}
	if err := file.Close(); err != nil {
		os.Remove(tmp)
		return err
	}
	return os.Rename(tmp, configPath)
}

// applyDefaults fills zero values a hand-edited file may have dropped.
func (c *Config) applyDefaults() {
	def := DefaultConfig()

	if c.Recording.NativeRate == 0 {
		c.Recording.NativeRate = def.Recording.NativeRate
	}
	if c.Recording.TargetRate == 0 {
		c.Recording.TargetRate = def.Recording.TargetRate
	}
	if c.Recording.SilenceThresholdDB == 0 {
		c.Recording.SilenceThresholdDB = def.Recording.SilenceThresholdDB
	}
	if c.Recording.MinDuration == 0 {
		c.Recording.MinDuration = def.Recording.MinDuration
	}
	if c.Transcription.URL == "" {
		c.Transcription.URL = def.Transcription.URL
	}
	if c.Transcription.MaxAttempts == 0 {
		c.Transcription.MaxAttempts = def.Transcription.MaxAttempts
	}
	if c.Transcription.MaxInFlight == 0 {
		c.Transcription.MaxInFlight = def.Transcription.MaxInFlight
	}
	if c.Transcription.PingInterval == 0 {
		c.Transcription.PingInterval = def.Transcription.PingInterval
	}
	if c.Transcription.HandshakeTimeout == 0 {
		c.Transcription.HandshakeTimeout = def.Transcription.HandshakeTimeout
	}
	if c.Transcription.FinalizeTimeout == 0 {
		c.Transcription.FinalizeTimeout = def.Transcription.FinalizeTimeout
	}
	if c.Commands.Cooldown == 0 {
		c.Commands.Cooldown = def.Commands.Cooldown
	}
	if c.Commands.WindowSeconds == 0 {
		c.Commands.WindowSeconds = def.Commands.WindowSeconds
	}
	if c.Commands.CharsPerSecond == 0 {
		c.Commands.CharsPerSecond = def.Commands.CharsPerSecond
	}
	if c.Input.DoubleTapWindow == 0 {
		c.Input.DoubleTapWindow = def.Input.DoubleTapWindow
	}
	if c.TTS.Model == "" {
		c.TTS.Model = def.TTS.Model
	}
	if c.TTS.Voice == "" {
		c.TTS.Voice = def.TTS.Voice
	}
	if c.TTS.Speed == 0 {
		c.TTS.Speed = def.TTS.Speed
	}
}
