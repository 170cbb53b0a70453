package tui

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/charmbracelet/huh"
	"github.com/charmbracelet/lipgloss"
	"github.com/muesli/termenv"

	"github.com/voxd-dev/voxd/internal/config"
)

// ConfigureResult holds the configuration result from the TUI
type ConfigureResult struct {
	Config    *config.Config
	Cancelled bool
}

// ConfigSection represents a configuration section
type ConfigSection string

const (
	SectionProvider      ConfigSection = "provider"
	SectionTranscription ConfigSection = "transcription"
	SectionCommands      ConfigSection = "commands"
	SectionInjection     ConfigSection = "injection"
	SectionNotifications ConfigSection = "notifications"
	SectionTTS           ConfigSection = "tts"
	SectionAdvanced      ConfigSection = "advanced"
	SectionSaveExit      ConfigSection = "save_exit"
	SectionDiscardExit   ConfigSection = "discard_exit"
)

// Run starts the configuration wizard. The loop edits the config in memory;
// nothing touches disk until the user picks Save & Exit.
func Run(cfg *config.Config) (*ConfigureResult, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config is required")
	}

	for {
		clearScreen()
		fmt.Println(Logo())
		fmt.Println()

		section, err := selectSection(cfg)
		if err != nil {
			return &ConfigureResult{Cancelled: true}, nil
		}

		switch section {
		case SectionSaveExit:
			if err := cfg.Validate(); err != nil {
				fmt.Println(StyleError.Render(fmt.Sprintf("Invalid configuration: %v", err)))
				fmt.Println(StyleMuted.Render("Press enter to go back"))
				fmt.Scanln()
				continue
			}
			return &ConfigureResult{Config: cfg}, nil

		case SectionDiscardExit:
			return &ConfigureResult{Cancelled: true}, nil

		case SectionProvider:
			if err := editProvider(cfg); err != nil {
				continue
			}

		case SectionTranscription:
			if err := editTranscription(cfg); err != nil {
				continue
			}

		case SectionCommands:
			if err := editCommands(cfg); err != nil {
				continue
			}

		case SectionInjection:
			backends, err := selectBackends(cfg.Injection.Backends)
			if err != nil {
				continue
			}
			cfg.Injection.Backends = backends

		case SectionNotifications:
			if err := editNotifications(cfg); err != nil {
				continue
			}

		case SectionTTS:
			if err := editTTS(cfg); err != nil {
				continue
			}

		case SectionAdvanced:
			if err := editAdvanced(cfg); err != nil {
				continue
			}
		}
	}
}

func selectSection(cfg *config.Config) (ConfigSection, error) {
	options := []huh.Option[ConfigSection]{
		huh.NewOption(formatProviderLabel(cfg), SectionProvider),
		huh.NewOption(formatTranscriptionLabel(cfg), SectionTranscription),
		huh.NewOption(formatCommandsLabel(cfg), SectionCommands),
		huh.NewOption(fmt.Sprintf("Text Injection (%s)", strings.Join(cfg.Injection.Backends, ", ")), SectionInjection),
		huh.NewOption(fmt.Sprintf("Notifications (%s)", cfg.Notifications.Type), SectionNotifications),
		huh.NewOption(formatTTSLabel(cfg), SectionTTS),
		huh.NewOption("Advanced Settings", SectionAdvanced),
		huh.NewOption("Save & Exit", SectionSaveExit),
		huh.NewOption("Discard & Exit", SectionDiscardExit),
	}

	var selected ConfigSection
	form := huh.NewForm(
		huh.NewGroup(
			huh.NewSelect[ConfigSection]().
				Title("Configuration Menu").
				Description("↑/↓ navigate • enter select • esc cancel").
				Options(options...).
				Value(&selected),
		),
	).WithTheme(getTheme())

	if err := form.Run(); err != nil {
		return "", err
	}

	return selected, nil
}

func editProvider(cfg *config.Config) error {
	current := cfg.Providers["openai"].APIKey

	key := current
	form := huh.NewForm(
		huh.NewGroup(
			huh.NewInput().
				Title("OpenAI API Key").
				Description("Leave empty to use the OPENAI_API_KEY environment variable").
				EchoMode(huh.EchoModePassword).
				Value(&key),
		),
	).WithTheme(getTheme())

	if err := form.Run(); err != nil {
		return err
	}

	if cfg.Providers == nil {
		cfg.Providers = make(map[string]config.ProviderConfig)
	}
	cfg.Providers["openai"] = config.ProviderConfig{APIKey: strings.TrimSpace(key)}
	return nil
}

func editTranscription(cfg *config.Config) error {
	streaming := cfg.Transcription.Streaming
	model := cfg.Transcription.Model
	language := cfg.Transcription.Language

	form := huh.NewForm(
		huh.NewGroup(
			huh.NewConfirm().
				Title("Streaming transcription").
				Description("Stream audio live for incremental results; off buffers the whole recording").
				Value(&streaming),
			huh.NewSelect[string]().
				Title("Streaming model").
				Options(
					huh.NewOption("gpt-4o-transcribe", "gpt-4o-transcribe"),
					huh.NewOption("gpt-4o-mini-transcribe", "gpt-4o-mini-transcribe"),
				).
				Value(&model),
			huh.NewInput().
				Title("Language").
				Description("ISO-639-1 code like en, es, fr; empty for auto-detect").
				Value(&language),
		),
	).WithTheme(getTheme())

	if err := form.Run(); err != nil {
		return err
	}

	cfg.Transcription.Streaming = streaming
	cfg.Transcription.Model = model
	cfg.Transcription.Language = strings.TrimSpace(language)
	return nil
}

func editCommands(cfg *config.Config) error {
	enabled := cfg.Commands.Enabled
	stop := strings.Join(cfg.Commands.StopAliases, ", ")
	cancel := strings.Join(cfg.Commands.CancelAliases, ", ")

	form := huh.NewForm(
		huh.NewGroup(
			huh.NewConfirm().
				Title("Voice commands").
				Description("Detect phrases like \"stop recording\" in the live transcript").
				Value(&enabled),
			huh.NewInput().
				Title("Stop phrases").
				Description("Comma-separated").
				Value(&stop),
			huh.NewInput().
				Title("Cancel phrases").
				Description("Comma-separated").
				Value(&cancel),
		),
	).WithTheme(getTheme())

	if err := form.Run(); err != nil {
		return err
	}

	cfg.Commands.Enabled = enabled
	cfg.Commands.StopAliases = splitPhrases(stop)
	cfg.Commands.CancelAliases = splitPhrases(cancel)
	return nil
}

func selectBackends(current []string) ([]string, error) {
	selected := append([]string(nil), current...)
	form := huh.NewForm(
		huh.NewGroup(
			huh.NewMultiSelect[string]().
				Title("Injection Backends").
				Description("Tried in order until one succeeds").
				Options(
					huh.NewOption("wtype (Wayland)", "wtype"),
					huh.NewOption("ydotool (uinput)", "ydotool"),
					huh.NewOption("clipboard", "clipboard"),
				).
				Value(&selected),
		),
	).WithTheme(getTheme())

	if err := form.Run(); err != nil {
		return nil, err
	}
	if len(selected) == 0 {
		return nil, fmt.Errorf("at least one backend required")
	}
	return selected, nil
}

func editNotifications(cfg *config.Config) error {
	kind := cfg.Notifications.Type
	form := huh.NewForm(
		huh.NewGroup(
			huh.NewSelect[string]().
				Title("Notifications").
				Options(
					huh.NewOption("Desktop (notify-send)", "desktop"),
					huh.NewOption("Daemon log only", "log"),
					huh.NewOption("None", "none"),
				).
				Value(&kind),
		),
	).WithTheme(getTheme())

	if err := form.Run(); err != nil {
		return err
	}

	cfg.Notifications.Type = kind
	cfg.Notifications.Enabled = kind != "none"
	return nil
}

func editTTS(cfg *config.Config) error {
	enabled := cfg.TTS.Enabled
	voice := cfg.TTS.Voice

	form := huh.NewForm(
		huh.NewGroup(
			huh.NewConfirm().
				Title("Text-to-speech").
				Description("Enables the voxd speak command").
				Value(&enabled),
			huh.NewSelect[string]().
				Title("Voice").
				Options(
					huh.NewOption("alloy", "alloy"),
					huh.NewOption("echo", "echo"),
					huh.NewOption("fable", "fable"),
					huh.NewOption("onyx", "onyx"),
					huh.NewOption("nova", "nova"),
					huh.NewOption("shimmer", "shimmer"),
				).
				Value(&voice),
		),
	).WithTheme(getTheme())

	if err := form.Run(); err != nil {
		return err
	}

	cfg.TTS.Enabled = enabled
	cfg.TTS.Voice = voice
	return nil
}

func editAdvanced(cfg *config.Config) error {
	threshold := fmt.Sprintf("%g", cfg.Recording.SilenceThresholdDB)
	device := cfg.Recording.Device

	form := huh.NewForm(
		huh.NewGroup(
			huh.NewInput().
				Title("Silence threshold (dBFS)").
				Description("Recordings quieter than this are skipped; must be negative").
				Validate(func(s string) error {
					v, err := strconv.ParseFloat(s, 64)
					if err != nil {
						return fmt.Errorf("not a number")
					}
					if v >= 0 {
						return fmt.Errorf("must be negative")
					}
					return nil
				}).
				Value(&threshold),
			huh.NewInput().
				Title("Capture device").
				Description("PipeWire target object; empty for default").
				Value(&device),
		),
	).WithTheme(getTheme())

	if err := form.Run(); err != nil {
		return err
	}

	if v, err := strconv.ParseFloat(threshold, 64); err == nil {
		cfg.Recording.SilenceThresholdDB = v
	}
	cfg.Recording.Device = device
	return nil
}

func splitPhrases(s string) []string {
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if trimmed := strings.TrimSpace(p); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}

// clearScreen clears the terminal screen
func clearScreen() {
	output := termenv.NewOutput(os.Stdout)
	output.ClearScreen()
}

func getTheme() *huh.Theme {
	t := huh.ThemeBase()

	t.Focused.Title = lipgloss.NewStyle().Foreground(ColorPrimary).Bold(true)
	t.Focused.Description = lipgloss.NewStyle().Foreground(ColorMuted)
	t.Focused.Base = lipgloss.NewStyle().BorderForeground(ColorPrimary)
	t.Focused.SelectedOption = lipgloss.NewStyle().Foreground(ColorSecondary)
	t.Focused.UnselectedOption = lipgloss.NewStyle().Foreground(ColorText)

	t.Blurred.Title = lipgloss.NewStyle().Foreground(ColorMuted)
	t.Blurred.Description = lipgloss.NewStyle().Foreground(ColorSubtle)

	return t
}

func formatProviderLabel(cfg *config.Config) string {
	if key := cfg.Providers["openai"].APIKey; key != "" {
		return fmt.Sprintf("Provider (openai, key %s)", maskAPIKey(key))
	}
	return "Provider (openai, key from environment)"
}

func formatTranscriptionLabel(cfg *config.Config) string {
	mode := "batch"
	if cfg.Transcription.Streaming {
		mode = "streaming"
	}
	return fmt.Sprintf("Transcription (%s, %s)", cfg.Transcription.Model, mode)
}

func formatCommandsLabel(cfg *config.Config) string {
	if cfg.Commands.Enabled {
		return "Voice Commands (enabled)"
	}
	return "Voice Commands (disabled)"
}

func formatTTSLabel(cfg *config.Config) string {
	if cfg.TTS.Enabled {
		return fmt.Sprintf("Text-to-Speech (%s, %s)", cfg.TTS.Model, cfg.TTS.Voice)
	}
	return "Text-to-Speech (disabled)"
}

func maskAPIKey(key string) string {
	if len(key) <= 8 {
		return "***"
	}
	return key[:7] + "..." + key[len(key)-4:]
}
