package config

import "time"

// DefaultConfig returns the configuration written on first run. Every tuning
// constant the daemon uses lives here rather than in component code.
func DefaultConfig() *Config {
	return &Config{
		Recording: RecordingConfig{
			NativeRate:         48000,
			TargetRate:         24000,
			Channels:           1,
			Format:             "s16le",
			BufferSize:         4096,
			Device:             "",
			ChannelBufferSize:  20,
			StopGrace:          150 * time.Millisecond,
			MinDuration:        300 * time.Millisecond,
			SilenceThresholdDB: -55,
			Timeout:            5 * time.Minute,
		},
		Transcription: TranscriptionConfig{
			Provider:         "openai",
			Model:            "gpt-4o-transcribe",
			BatchModel:       "whisper-1",
			Language:         "",
			Streaming:        true,
			URL:              "wss://api.openai.com/v1/realtime",
			MaxAttempts:      3,
			MaxInFlight:      100,
			PingInterval:     30 * time.Second,
			HandshakeTimeout: 10 * time.Second,
			FinalizeTimeout:  5 * time.Second,
			NoiseReduction:   "near_field",
			VAD: VADConfig{
				Threshold:         0.5,
				PrefixPaddingMs:   300,
				SilenceDurationMs: 500,
			},
		},
		Commands: CommandsConfig{
			Enabled:         true,
			StopAliases:     []string{"stop recording", "stop dictation", "stop listening"},
			CancelAliases:   []string{"cancel recording", "cancel dictation", "discard that"},
			ContinueAliases: []string{"keep recording", "keep going"},
			WindowSeconds:   6,
			CharsPerSecond:  15,
			Cooldown:        2 * time.Second,
		},
		Input: InputConfig{
			DoubleTapWindow: 800 * time.Millisecond,
		},
		Injection: InjectionConfig{
			Backends:         []string{"wtype", "ydotool", "clipboard"},
			YdotoolTimeout:   5 * time.Second,
			WtypeTimeout:     5 * time.Second,
			ClipboardTimeout: 3 * time.Second,
		},
		Notifications: NotificationsConfig{
			Enabled: true,
			Type:    "desktop",
		},
		TTS: TTSConfig{
			Enabled: false,
			Model:   "tts-1",
			Voice:   "alloy",
			Speed:   1.0,
		},
		Providers: make(map[string]ProviderConfig),
	}
}
