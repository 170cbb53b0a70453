package config

import "fmt"

func (c *Config) Validate() error {
	if c.Recording.NativeRate <= 0 {
		return fmt.Errorf("invalid recording.native_rate: %d", c.Recording.NativeRate)
	}
	if c.Recording.TargetRate <= 0 {
		return fmt.Errorf("invalid recording.target_rate: %d", c.Recording.TargetRate)
	}
	if c.Recording.NativeRate > c.Recording.TargetRate &&
		c.Recording.NativeRate%c.Recording.TargetRate != 0 {
		return fmt.Errorf("recording.native_rate %d must be an integer multiple of target_rate %d",
			c.Recording.NativeRate, c.Recording.TargetRate)
	}
	if c.Recording.Channels <= 0 {
		return fmt.Errorf("invalid recording.channels: %d", c.Recording.Channels)
	}
	if c.Recording.BufferSize <= 0 {
		return fmt.Errorf("invalid recording.buffer_size: %d", c.Recording.BufferSize)
	}
	if c.Recording.ChannelBufferSize <= 0 {
		return fmt.Errorf("invalid recording.channel_buffer_size: %d", c.Recording.ChannelBufferSize)
	}
	if c.Recording.Format == "" {
		return fmt.Errorf("invalid recording.format: empty")
	}
	if c.Recording.SilenceThresholdDB >= 0 {
		return fmt.Errorf("invalid recording.silence_threshold_db: %v (must be negative dBFS)",
			c.Recording.SilenceThresholdDB)
	}
	if c.Recording.Timeout <= 0 {
		return fmt.Errorf("invalid recording.timeout: %v", c.Recording.Timeout)
	}

	if c.Transcription.Provider != "openai" {
		return fmt.Errorf("unsupported transcription.provider: %s (must be openai)", c.Transcription.Provider)
	}
	if c.Transcription.Model == "" {
		return fmt.Errorf("invalid transcription.model: empty")
	}
	if c.Transcription.Language != "" && !isValidLanguageCode(c.Transcription.Language) {
		return fmt.Errorf("invalid transcription.language: %s (use empty string for auto-detect or ISO-639-1 codes like 'en', 'es', 'fr')",
			c.Transcription.Language)
	}
	if c.Transcription.MaxAttempts <= 0 {
		return fmt.Errorf("invalid transcription.max_attempts: %d", c.Transcription.MaxAttempts)
	}
	if c.Transcription.MaxInFlight <= 0 {
		return fmt.Errorf("invalid transcription.max_in_flight: %d", c.Transcription.MaxInFlight)
	}
	if c.Transcription.FinalizeTimeout <= 0 {
		return fmt.Errorf("invalid transcription.finalize_timeout: %v", c.Transcription.FinalizeTimeout)
	}
	switch c.Transcription.NoiseReduction {
	case "", "near_field", "far_field":
	default:
		return fmt.Errorf("invalid transcription.noise_reduction: %s (must be near_field, far_field, or empty)",
			c.Transcription.NoiseReduction)
	}

	if c.Commands.Enabled {
		if c.Commands.WindowSeconds <= 0 {
			return fmt.Errorf("invalid commands.window_seconds: %v", c.Commands.WindowSeconds)
		}
		if c.Commands.CharsPerSecond <= 0 {
			return fmt.Errorf("invalid commands.chars_per_second: %d", c.Commands.CharsPerSecond)
		}
		if c.Commands.Cooldown <= 0 {
			return fmt.Errorf("invalid commands.cooldown: %v", c.Commands.Cooldown)
		}
	}

	if c.Input.DoubleTapWindow <= 0 {
		return fmt.Errorf("invalid input.double_tap_window: %v", c.Input.DoubleTapWindow)
	}

	if len(c.Injection.Backends) == 0 {
		return fmt.Errorf("invalid injection.backends: empty (must have at least one backend)")
	}
	validBackends := map[string]bool{"ydotool": true, "wtype": true, "clipboard": true}
	for _, backend := range c.Injection.Backends {
		if !validBackends[backend] {
			return fmt.Errorf("invalid injection.backends: unknown backend %q (must be ydotool, wtype, or clipboard)", backend)
		}
	}
	if c.Injection.YdotoolTimeout <= 0 {
		return fmt.Errorf("invalid injection.ydotool_timeout: %v", c.Injection.YdotoolTimeout)
	}
	if c.Injection.WtypeTimeout <= 0 {
		return fmt.Errorf("invalid injection.wtype_timeout: %v", c.Injection.WtypeTimeout)
	}
	if c.Injection.ClipboardTimeout <= 0 {
		return fmt.Errorf("invalid injection.clipboard_timeout: %v", c.Injection.ClipboardTimeout)
	}

	validTypes := map[string]bool{"desktop": true, "log": true, "none": true, "": true}
	if !validTypes[c.Notifications.Type] {
		return fmt.Errorf("invalid notifications.type: %s (must be desktop, log, or none)", c.Notifications.Type)
	}

	return nil
}

func isValidLanguageCode(code string) bool {
	validCodes := map[string]bool{
		"en": true, "es": true, "fr": true, "de": true, "it": true, "pt": true,
		"ru": true, "ja": true, "ko": true, "zh": true, "ar": true, "hi": true,
		"nl": true, "sv": true, "da": true, "no": true, "fi": true, "pl": true,
		"tr": true, "he": true, "th": true, "vi": true, "id": true, "ms": true,
		"uk": true, "cs": true, "hu": true, "ro": true, "bg": true, "hr": true,
		"sk": true, "sl": true, "et": true, "lv": true, "lt": true, "mt": true,
		"cy": true, "ga": true, "eu": true, "ca": true, "gl": true, "is": true,
	}
	return validCodes[code]
}
