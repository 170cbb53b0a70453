package transcribe

import (
	"bytes"
	"context"
	"encoding/binary"
	"fmt"

	openai "github.com/sashabaranov/go-openai"
)

// BatchTranscriber transcribes a whole buffered recording in one request.
// It is the fallback path when streaming is disabled in the configuration.
type BatchTranscriber struct {
	client   *openai.Client
	model    string
	language string
}

func NewBatchTranscriber(apiKey, model, language string) *BatchTranscriber {
	if model == "" {
		model = openai.Whisper1
	}
	return &BatchTranscriber{
		client:   openai.NewClient(apiKey),
		model:    model,
		language: language,
	}
}

// Transcribe wraps the PCM buffer in a WAV container and submits it.
func (b *BatchTranscriber) Transcribe(ctx context.Context, pcm []byte, sampleRate int) (string, error) {
	if len(pcm) == 0 {
		return "", fmt.Errorf("no audio to transcribe")
	}

	resp, err := b.client.CreateTranscription(ctx, openai.AudioRequest{
		Model:    b.model,
		Language: b.language,
		FilePath: "audio.wav",
		Reader:   bytes.NewReader(wavContainer(pcm, sampleRate)),
	})
	if err != nil {
		return "", fmt.Errorf("batch transcription: %w", err)
	}
	return resp.Text, nil
}

// wavContainer wraps mono s16le PCM in a minimal WAV header.
func wavContainer(pcm []byte, sampleRate int) []byte {
	const channels = 1
	const bitsPerSample = 16
	byteRate := sampleRate * channels * bitsPerSample / 8
	blockAlign := channels * bitsPerSample / 8

	var buf bytes.Buffer
	buf.WriteString("RIFF")
	binary.Write(&buf, binary.LittleEndian, uint32(36+len(pcm)))
	buf.WriteString("WAVE")

	buf.WriteString("fmt ")
	binary.Write(&buf, binary.LittleEndian, uint32(16))
	binary.Write(&buf, binary.LittleEndian, uint16(1)) // PCM
	binary.Write(&buf, binary.LittleEndian, uint16(channels))
	binary.Write(&buf, binary.LittleEndian, uint32(sampleRate))
	binary.Write(&buf, binary.LittleEndian, uint32(byteRate))
	binary.Write(&buf, binary.LittleEndian, uint16(blockAlign))
	binary.Write(&buf, binary.LittleEndian, uint16(bitsPerSample))

	buf.WriteString("data")
	binary.Write(&buf, binary.LittleEndian, uint32(len(pcm)))
	buf.Write(pcm)

	return buf.Bytes()
}
