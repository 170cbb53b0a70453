package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/voxd-dev/voxd/internal/bus"
	"github.com/voxd-dev/voxd/internal/config"
	"github.com/voxd-dev/voxd/internal/creds"
	"github.com/voxd-dev/voxd/internal/daemon"
	"github.com/voxd-dev/voxd/internal/doctor"
	"github.com/voxd-dev/voxd/internal/tts"
	"github.com/voxd-dev/voxd/internal/tui"
)

func main() {
	_ = rootCmd.Execute()
}

var rootCmd = &cobra.Command{
	Use:   "voxd",
	Short: "Voice dictation and control for the Linux desktop",
}

func init() {
	rootCmd.AddCommand(
		serveCmd(),
		toggleCmd(),
		gestureCmd(),
		cancelCmd(),
		statusCmd(),
		versionCmd(),
		stopCmd(),
		speakCmd(),
		configureCmd(),
		doctorCmd(),
	)
}

func serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the daemon",
		RunE: func(cmd *cobra.Command, args []string) error {
			d, err := daemon.New()
			if err != nil {
				return fmt.Errorf("failed to create daemon: %w", err)
			}
			return d.Run()
		},
	}
}

func toggleCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "toggle",
		Short: "Toggle recording on/off (keyboard channel)",
		RunE: func(cmd *cobra.Command, args []string) error {
			resp, err := bus.SendCommand('t')
			if err != nil {
				return fmt.Errorf("failed to toggle recording: %w", err)
			}
			fmt.Print(resp)
			return nil
		},
	}
}

func gestureCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "gesture",
		Short: "Toggle recording on/off (gesture channel)",
		RunE: func(cmd *cobra.Command, args []string) error {
			resp, err := bus.SendCommand('g')
			if err != nil {
				return fmt.Errorf("failed to toggle recording: %w", err)
			}
			fmt.Print(resp)
			return nil
		},
	}
}

func cancelCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "cancel",
		Short: "Cancel current operation",
		RunE: func(cmd *cobra.Command, args []string) error {
			resp, err := bus.SendCommand('c')
			if err != nil {
				return fmt.Errorf("failed to cancel operation: %w", err)
			}
			fmt.Print(resp)
			return nil
		},
	}
}

func statusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Get current recording status",
		RunE: func(cmd *cobra.Command, args []string) error {
			resp, err := bus.SendCommand('s')
			if err != nil {
				return fmt.Errorf("failed to get status: %w", err)
			}
			fmt.Print(resp)
			return nil
		},
	}
}

func versionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Get protocol version",
		RunE: func(cmd *cobra.Command, args []string) error {
			resp, err := bus.SendCommand('v')
			if err != nil {
				return fmt.Errorf("failed to get version: %w", err)
			}
			fmt.Print(resp)
			return nil
		},
	}
}

func stopCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "stop",
		Short: "Stop the daemon",
		RunE: func(cmd *cobra.Command, args []string) error {
			resp, err := bus.SendCommand('q')
			if err != nil {
				return fmt.Errorf("failed to stop daemon: %w", err)
			}
			fmt.Print(resp)
			return nil
		},
	}
}

func speakCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "speak <text>...",
		Short: "Synthesize text to speech and play it",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load()
			if err != nil {
				return fmt.Errorf("failed to load config: %w", err)
			}

			apiKey, err := creds.Default(cfg.ProviderKeys()).APIKey(cfg.Transcription.Provider)
			if err != nil {
				return fmt.Errorf("no API key: %w", err)
			}

			speaker := tts.NewSpeaker(apiKey, tts.Config{
				Model: cfg.TTS.Model,
				Voice: cfg.TTS.Voice,
				Speed: cfg.TTS.Speed,
			})
			return speaker.Speak(cmd.Context(), strings.Join(args, " "))
		},
	}
}

func configureCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "configure",
		Short: "Interactive configuration setup",
		Long: `Interactive configuration wizard for voxd.
This will guide you through setting up:
- OpenAI API key
- Transcription settings (streaming vs batch, model, language)
- Voice commands, text injection, notifications and TTS`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runConfigure()
		},
	}
}

func runConfigure() error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	result, err := tui.Run(cfg)
	if err != nil {
		return fmt.Errorf("configuration wizard error: %w", err)
	}

	if result.Cancelled {
		fmt.Println("Configuration cancelled.")
		return nil
	}

	if err := config.Save(result.Config); err != nil {
		return fmt.Errorf("failed to save config: %w", err)
	}

	fmt.Println()
	fmt.Println("Configuration saved successfully!")
	fmt.Println()

	configPath, _ := config.GetConfigPath()
	fmt.Printf("Config file location: %s\n", configPath)
	fmt.Println("Restart the daemon or let it hot-reload, then test with: voxd toggle")
	return nil
}

func doctorCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "doctor",
		Short: "Check external tool dependencies",
		RunE: func(cmd *cobra.Command, args []string) error {
			statuses := doctor.CheckAll()
			for _, s := range statuses {
				mark := "[ ]"
				if s.Installed {
					mark = "[x]"
				}
				line := fmt.Sprintf("%s %s - %s", mark, s.Name, s.Purpose)
				if s.Version != "" {
					line += fmt.Sprintf(" (%s)", s.Version)
				}
				if !s.Installed && s.Required {
					line += " REQUIRED"
				}
				fmt.Println(line)
			}

			if !doctor.Healthy(statuses) {
				return fmt.Errorf("missing required tools")
			}
			fmt.Println("\nAll required tools present.")
			return nil
		},
	}
}
