package config

import "time"

type Config struct {
	Recording     RecordingConfig           `toml:"recording"`
	Transcription TranscriptionConfig       `toml:"transcription"`
	Commands      CommandsConfig            `toml:"commands"`
	Input         InputConfig               `toml:"input"`
	Injection     InjectionConfig           `toml:"injection"`
	Notifications NotificationsConfig       `toml:"notifications"`
	TTS           TTSConfig                 `toml:"tts"`
	Providers     map[string]ProviderConfig `toml:"providers"`
}

// ProviderConfig holds the API key for one provider.
type ProviderConfig struct {
	APIKey string `toml:"api_key"`
}

type RecordingConfig struct {
	NativeRate         int           `toml:"native_rate"`
	TargetRate         int           `toml:"target_rate"`
	Channels           int           `toml:"channels"`
	Format             string        `toml:"format"`
	BufferSize         int           `toml:"buffer_size"`
	Device             string        `toml:"device"`
	ChannelBufferSize  int           `toml:"channel_buffer_size"`
	StopGrace          time.Duration `toml:"stop_grace"`
	MinDuration        time.Duration `toml:"min_duration"`
	SilenceThresholdDB float64       `toml:"silence_threshold_db"`
	Timeout            time.Duration `toml:"timeout"`
}

type TranscriptionConfig struct {
	Provider         string        `toml:"provider"`
	Model            string        `toml:"model"`
	BatchModel       string        `toml:"batch_model"`
	Language         string        `toml:"language"`
	Streaming        bool          `toml:"streaming"`
	URL              string        `toml:"url"`
	MaxAttempts      int           `toml:"max_attempts"`
	MaxInFlight      int64         `toml:"max_in_flight"`
	PingInterval     time.Duration `toml:"ping_interval"`
	HandshakeTimeout time.Duration `toml:"handshake_timeout"`
	FinalizeTimeout  time.Duration `toml:"finalize_timeout"`
	NoiseReduction   string        `toml:"noise_reduction"`
	VAD              VADConfig     `toml:"vad"`
}

type VADConfig struct {
	Threshold         float64 `toml:"threshold"`
	PrefixPaddingMs   int     `toml:"prefix_padding_ms"`
	SilenceDurationMs int     `toml:"silence_duration_ms"`
}

type CommandsConfig struct {
	Enabled         bool          `toml:"enabled"`
	StopAliases     []string      `toml:"stop_aliases"`
	CancelAliases   []string      `toml:"cancel_aliases"`
	ContinueAliases []string      `toml:"continue_aliases"`
	WindowSeconds   float64       `toml:"window_seconds"`
	CharsPerSecond  int           `toml:"chars_per_second"`
	Cooldown        time.Duration `toml:"cooldown"`
}

type InputConfig struct {
	DoubleTapWindow time.Duration `toml:"double_tap_window"`
}

type InjectionConfig struct {
	Backends         []string      `toml:"backends"`
	YdotoolTimeout   time.Duration `toml:"ydotool_timeout"`
	WtypeTimeout     time.Duration `toml:"wtype_timeout"`
	ClipboardTimeout time.Duration `toml:"clipboard_timeout"`
}

type NotificationsConfig struct {
	Enabled bool   `toml:"enabled"`
	Type    string `toml:"type"` // "desktop", "log", "none"
}

type TTSConfig struct {
	Enabled bool    `toml:"enabled"`
	Model   string  `toml:"model"`
	Voice   string  `toml:"voice"`
	Speed   float64 `toml:"speed"`
}
