package transcribe

// Outbound websocket message types. Field names belong to the remote
// service; they pass through unchanged.

type sessionUpdate struct {
	Type    string        `json:"type"`
	Session sessionConfig `json:"session"`
}

type sessionConfig struct {
	Modalities               []string             `json:"modalities,omitempty"`
	InputAudioFormat         string               `json:"input_audio_format,omitempty"`
	InputAudioTranscription  *transcriptionConfig `json:"input_audio_transcription,omitempty"`
	TurnDetection            *turnDetection       `json:"turn_detection,omitempty"`
	InputAudioNoiseReduction *noiseReduction      `json:"input_audio_noise_reduction,omitempty"`
}

type transcriptionConfig struct {
	Model    string `json:"model,omitempty"`
	Language string `json:"language,omitempty"`
}

type turnDetection struct {
	Type              string  `json:"type"`
	Threshold         float64 `json:"threshold,omitempty"`
	PrefixPaddingMs   int     `json:"prefix_padding_ms,omitempty"`
	SilenceDurationMs int     `json:"silence_duration_ms,omitempty"`
	CreateResponse    bool    `json:"create_response,omitempty"`
}

type noiseReduction struct {
	Type string `json:"type"`
}

type audioAppend struct {
	Type  string `json:"type"`
	Audio string `json:"audio"`
}

type audioCommit struct {
	Type string `json:"type"`
}

// serverEvent is the inbound envelope. Every inbound message carries a type
// discriminator; unknown types and extra fields are ignored, never an error.
type serverEvent struct {
	Type       string       `json:"type"`
	EventID    string       `json:"event_id,omitempty"`
	ItemID     string       `json:"item_id,omitempty"`
	Delta      string       `json:"delta,omitempty"`
	Transcript string       `json:"transcript,omitempty"`
	Session    *sessionInfo `json:"session,omitempty"`
	Error      *serverError `json:"error,omitempty"`
}

type sessionInfo struct {
	ID    string `json:"id"`
	Model string `json:"model"`
}

type serverError struct {
	Type    string `json:"type"`
	Code    string `json:"code,omitempty"`
	Message string `json:"message"`
}

// Inbound event kinds the receive loop recognizes.
const (
	evSessionCreated  = "session.created"
	evSessionUpdated  = "session.updated"
	evSpeechStarted   = "input_audio_buffer.speech_started"
	evSpeechStopped   = "input_audio_buffer.speech_stopped"
	evAudioCommitted  = "input_audio_buffer.committed"
	evTranscriptDelta = "conversation.item.input_audio_transcription.delta"
	evTranscriptDone  = "conversation.item.input_audio_transcription.completed"
	evTranscriptFail  = "conversation.item.input_audio_transcription.failed"
	evError           = "error"
)
