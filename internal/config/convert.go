package config

import (
	"github.com/voxd-dev/voxd/internal/capture"
	"github.com/voxd-dev/voxd/internal/command"
	"github.com/voxd-dev/voxd/internal/inject"
	"github.com/voxd-dev/voxd/internal/transcribe"
)

func (c *Config) ToCaptureConfig() capture.Config {
	return capture.Config{
		NativeRate:        c.Recording.NativeRate,
		TargetRate:        c.Recording.TargetRate,
		Channels:          c.Recording.Channels,
		Format:            c.Recording.Format,
		BufferSize:        c.Recording.BufferSize,
		Device:            c.Recording.Device,
		ChannelBufferSize: c.Recording.ChannelBufferSize,
		StopGrace:         c.Recording.StopGrace,
	}
}

// ToStreamConfig builds the streaming client configuration. The API key is
// resolved separately by the credential provider and filled in by the
// session orchestrator.
func (c *Config) ToStreamConfig() transcribe.Config {
	return transcribe.Config{
		URL:                  c.Transcription.URL,
		Model:                c.Transcription.Model,
		Language:             c.Transcription.Language,
		MaxInFlight:          c.Transcription.MaxInFlight,
		PingInterval:         c.Transcription.PingInterval,
		HandshakeTimeout:     c.Transcription.HandshakeTimeout,
		VADThreshold:         c.Transcription.VAD.Threshold,
		VADPrefixPaddingMs:   c.Transcription.VAD.PrefixPaddingMs,
		VADSilenceDurationMs: c.Transcription.VAD.SilenceDurationMs,
		NoiseReduction:       c.Transcription.NoiseReduction,
	}
}

func (c *Config) ToDetectorConfig() command.Config {
	return command.Config{
		Enabled: c.Commands.Enabled,
		Aliases: map[command.Kind][]string{
			command.Stop:     c.Commands.StopAliases,
			command.Cancel:   c.Commands.CancelAliases,
			command.Continue: c.Commands.ContinueAliases,
		},
		WindowSeconds:  c.Commands.WindowSeconds,
		CharsPerSecond: c.Commands.CharsPerSecond,
		Cooldown:       c.Commands.Cooldown,
	}
}

func (c *Config) ToInjectConfig() inject.Config {
	return inject.Config{
		Backends:         c.Injection.Backends,
		YdotoolTimeout:   c.Injection.YdotoolTimeout,
		WtypeTimeout:     c.Injection.WtypeTimeout,
		ClipboardTimeout: c.Injection.ClipboardTimeout,
	}
}

// ProviderKeys flattens the providers table for the credential chain.
func (c *Config) ProviderKeys() map[string]string {
	keys := make(map[string]string, len(c.Providers))
	for name, pc := range c.Providers {
		keys[name] = pc.APIKey
	}
	return keys
}
