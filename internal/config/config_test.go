package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestDefaultConfigIsValid(t *testing.T) {
	if err := DefaultConfig().Validate(); err != nil {
		t.Fatalf("default config invalid: %v", err)
	}
}

func TestValidateRejects(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(c *Config)
	}{
		{"zero native rate", func(c *Config) { c.Recording.NativeRate = 0 }},
		{"zero target rate", func(c *Config) { c.Recording.TargetRate = 0 }},
		{"non-integer decimation", func(c *Config) { c.Recording.NativeRate = 44100; c.Recording.TargetRate = 24000 }},
		{"positive silence threshold", func(c *Config) { c.Recording.SilenceThresholdDB = 10 }},
		{"zero timeout", func(c *Config) { c.Recording.Timeout = 0 }},
		{"unknown provider", func(c *Config) { c.Transcription.Provider = "acme" }},
		{"empty model", func(c *Config) { c.Transcription.Model = "" }},
		{"bad language", func(c *Config) { c.Transcription.Language = "english" }},
		{"zero max attempts", func(c *Config) { c.Transcription.MaxAttempts = 0 }},
		{"zero max in flight", func(c *Config) { c.Transcription.MaxInFlight = 0 }},
		{"bad noise reduction", func(c *Config) { c.Transcription.NoiseReduction = "underwater" }},
		{"zero command cooldown", func(c *Config) { c.Commands.Cooldown = 0 }},
		{"zero double tap window", func(c *Config) { c.Input.DoubleTapWindow = 0 }},
		{"no backends", func(c *Config) { c.Injection.Backends = nil }},
		{"unknown backend", func(c *Config) { c.Injection.Backends = []string{"telepathy"} }},
		{"bad notification type", func(c *Config) { c.Notifications.Type = "carrier-pigeon" }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(cfg)
			if err := cfg.Validate(); err == nil {
				t.Error("expected validation error")
			}
		})
	}
}

func TestValidateAccepts(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(c *Config)
	}{
		{"auto-detect language", func(c *Config) { c.Transcription.Language = "" }},
		{"explicit language", func(c *Config) { c.Transcription.Language = "es" }},
		{"no noise reduction", func(c *Config) { c.Transcription.NoiseReduction = "" }},
		{"far field", func(c *Config) { c.Transcription.NoiseReduction = "far_field" }},
		{"commands disabled skips command checks", func(c *Config) {
			c.Commands.Enabled = false
			c.Commands.Cooldown = 0
		}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(cfg)
			if err := cfg.Validate(); err != nil {
				t.Errorf("unexpected validation error: %v", err)
			}
		})
	}
}

func TestApplyDefaultsFillsZeroValues(t *testing.T) {
	cfg := &Config{}
	cfg.applyDefaults()

	def := DefaultConfig()
	if cfg.Recording.NativeRate != def.Recording.NativeRate {
		t.Errorf("native rate = %d", cfg.Recording.NativeRate)
	}
	if cfg.Recording.SilenceThresholdDB != def.Recording.SilenceThresholdDB {
		t.Errorf("silence threshold = %v", cfg.Recording.SilenceThresholdDB)
	}
	if cfg.Transcription.FinalizeTimeout != def.Transcription.FinalizeTimeout {
		t.Errorf("finalize timeout = %v", cfg.Transcription.FinalizeTimeout)
	}
	if cfg.Input.DoubleTapWindow != def.Input.DoubleTapWindow {
		t.Errorf("double tap window = %v", cfg.Input.DoubleTapWindow)
	}
}

func TestLoadCreatesDefaultsOnFirstRun(t *testing.T) {
	t.Setenv("XDG_CONFIG_HOME", t.TempDir())

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("freshly written defaults invalid: %v", err)
	}

	path, err := GetConfigPath()
	if err != nil {
		t.Fatal(err)
	}
	if _, err := os.Stat(path); err != nil {
		t.Errorf("config file not written: %v", err)
	}
}

func TestSaveRoundTrip(t *testing.T) {
	t.Setenv("XDG_CONFIG_HOME", t.TempDir())

	cfg := DefaultConfig()
	cfg.Transcription.Language = "de"
	cfg.Recording.StopGrace = 250 * time.Millisecond
	cfg.Providers["openai"] = ProviderConfig{APIKey: "sk-test"}

	if err := Save(cfg); err != nil {
		t.Fatalf("Save failed: %v", err)
	}

	loaded, err := Load()
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if loaded.Transcription.Language != "de" {
		t.Errorf("language = %q", loaded.Transcription.Language)
	}
	if loaded.Recording.StopGrace != 250*time.Millisecond {
		t.Errorf("stop grace = %v", loaded.Recording.StopGrace)
	}
	if loaded.Providers["openai"].APIKey != "sk-test" {
		t.Errorf("api key = %q", loaded.Providers["openai"].APIKey)
	}
}

func TestSaveLeavesNoTempFile(t *testing.T) {
	t.Setenv("XDG_CONFIG_HOME", t.TempDir())

	if err := Save(DefaultConfig()); err != nil {
		t.Fatalf("Save failed: %v", err)
	}

	path, _ := GetConfigPath()
	if _, err := os.Stat(path + ".tmp"); !os.IsNotExist(err) {
		t.Error("temp file left behind after save")
	}
	entries, _ := os.ReadDir(filepath.Dir(path))
	if len(entries) != 1 {
		t.Errorf("config dir has %d entries, want only the config file", len(entries))
	}
}

func TestConversions(t *testing.T) {
	cfg := DefaultConfig()

	cc := cfg.ToCaptureConfig()
	if cc.NativeRate != 48000 || cc.TargetRate != 24000 {
		t.Errorf("capture rates = %d/%d", cc.NativeRate, cc.TargetRate)
	}

	stream := cfg.ToStreamConfig()
	if stream.APIKey != "" {
		t.Error("stream config must not carry a key; the credential chain owns that")
	}
	if stream.Model != cfg.Transcription.Model {
		t.Errorf("stream model = %q", stream.Model)
	}
	if stream.VADThreshold != cfg.Transcription.VAD.Threshold {
		t.Errorf("vad threshold = %v", stream.VADThreshold)
	}

	det := cfg.ToDetectorConfig()
	if !det.Enabled || det.Cooldown != cfg.Commands.Cooldown {
		t.Errorf("detector config = %+v", det)
	}

	inj := cfg.ToInjectConfig()
	if len(inj.Backends) != len(cfg.Injection.Backends) {
		t.Errorf("inject backends = %v", inj.Backends)
	}
}

func TestManagerServesCopies(t *testing.T) {
	t.Setenv("XDG_CONFIG_HOME", t.TempDir())

	m, err := NewManager()
	if err != nil {
		t.Fatalf("NewManager failed: %v", err)
	}

	a := m.GetConfig()
	a.Transcription.Model = "mutated"

	b := m.GetConfig()
	if b.Transcription.Model == "mutated" {
		t.Error("GetConfig must return a copy, not shared state")
	}
}
