package tts

import (
	"context"
	"fmt"
	"io"
	"os/exec"

	openai "github.com/sashabaranov/go-openai"
)

// The PCM response format is fixed by the API: 24 kHz, mono, 16-bit.
const pcmRate = "24000"

type Config struct {
	Model string
	Voice string
	Speed float64
}

// Speaker synthesizes speech and plays it through PipeWire. Audio is piped
// straight from the HTTP response into pw-play, so playback starts before
// the full clip has downloaded.
type Speaker struct {
	client *openai.Client
	cfg    Config
}

func NewSpeaker(apiKey string, cfg Config) *Speaker {
	return &Speaker{client: openai.NewClient(apiKey), cfg: cfg}
}

func (s *Speaker) Speak(ctx context.Context, text string) error {
	if text == "" {
		return fmt.Errorf("nothing to speak")
	}

	resp, err := s.client.CreateSpeech(ctx, openai.CreateSpeechRequest{
		Model:          openai.SpeechModel(s.cfg.Model),
		Input:          text,
		Voice:          openai.SpeechVoice(s.cfg.Voice),
		Speed:          s.cfg.Speed,
		ResponseFormat: openai.SpeechResponseFormatPcm,
	})
	if err != nil {
		return fmt.Errorf("speech synthesis failed: %w", err)
	}
	defer resp.Close()

	cmd := exec.CommandContext(ctx, "pw-play",
		"--rate", pcmRate,
		"--channels", "1",
		"--format", "s16",
		"-")
	stdin, err := cmd.StdinPipe()
	if err != nil {
		return fmt.Errorf("failed to open pw-play stdin: %w", err)
	}

	if err := cmd.Start(); err != nil {
		return fmt.Errorf("failed to start pw-play: %w", err)
	}

	_, copyErr := io.Copy(stdin, resp)
	stdin.Close()

	if err := cmd.Wait(); err != nil {
		return fmt.Errorf("pw-play failed: %w", err)
	}
	if copyErr != nil {
		return fmt.Errorf("audio stream interrupted: %w", copyErr)
	}
	return nil
}
