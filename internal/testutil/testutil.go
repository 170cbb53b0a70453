package testutil

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/voxd-dev/voxd/internal/capture"
	"github.com/voxd-dev/voxd/internal/config"
	"github.com/voxd-dev/voxd/internal/session"
	"github.com/voxd-dev/voxd/internal/transcribe"
)

// TestConfig returns a valid configuration for testing
func TestConfig() *config.Config {
	cfg := config.DefaultConfig()
	cfg.Notifications.Type = "none"
	cfg.Transcription.FinalizeTimeout = 200 * time.Millisecond
	cfg.Recording.MinDuration = 50 * time.Millisecond
	cfg.Providers = map[string]config.ProviderConfig{
		"openai": {APIKey: "test-api-key"},
	}
	return cfg
}

// StaticConfig serves one fixed config, no hot reload.
type StaticConfig struct {
	Cfg *config.Config
}

func (s StaticConfig) GetConfig() *config.Config {
	cfgCopy := *s.Cfg
	return &cfgCopy
}

// TestContext returns a context with timeout for testing
func TestContext() (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.Background(), 5*time.Second)
}

// WaitForCondition waits for a condition to be true or times out
func WaitForCondition(t *testing.T, condition func() bool, timeout time.Duration) {
	t.Helper()

	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	for {
		select {
		case <-ctx.Done():
			t.Fatalf("Condition not met within %v", timeout)
		default:
			if condition() {
				return
			}
			time.Sleep(10 * time.Millisecond)
		}
	}
}

// LoudFrame builds a full-scale square-wave frame that always clears any
// sane silence threshold.
func LoudFrame(samples int) capture.Frame {
	data := make([]byte, samples*2)
	for i := 0; i < samples; i++ {
		v := int16(16000)
		if i%2 == 0 {
			v = -16000
		}
		data[i*2] = byte(v)
		data[i*2+1] = byte(v >> 8)
	}
	return capture.Frame{Data: data, Timestamp: time.Now()}
}

// SilentFrame builds an all-zero frame.
func SilentFrame(samples int) capture.Frame {
	return capture.Frame{Data: make([]byte, samples*2), Timestamp: time.Now()}
}

// MockRecorder implements session.AudioSource for testing
type MockRecorder struct {
	Frames     []capture.Frame
	StartError error

	mu        sync.Mutex
	recording atomic.Bool
	stopCh    chan struct{}
	errCh     chan error
}

func NewMockRecorder(frames ...capture.Frame) *MockRecorder {
	if len(frames) == 0 {
		frames = []capture.Frame{LoudFrame(24000)}
	}
	return &MockRecorder{Frames: frames}
}

func (m *MockRecorder) Start(ctx context.Context) (<-chan capture.Frame, <-chan error, error) {
	if m.StartError != nil {
		return nil, nil, m.StartError
	}

	m.mu.Lock()
	m.stopCh = make(chan struct{})
	m.errCh = make(chan error, 1)
	errCh := m.errCh
	m.mu.Unlock()

	m.recording.Store(true)

	frameCh := make(chan capture.Frame, len(m.Frames)+1)

	go func() {
		defer close(frameCh)

		for _, frame := range m.Frames {
			select {
			case <-ctx.Done():
				return
			case <-m.stopCh:
				return
			case frameCh <- frame:
			}
		}

		// keep channel open until stopped
		select {
		case <-ctx.Done():
		case <-m.stopCh:
		}
	}()

	return frameCh, errCh, nil
}

func (m *MockRecorder) Stop() error {
	if !m.recording.Load() {
		return nil
	}
	m.recording.Store(false)

	m.mu.Lock()
	if m.stopCh != nil {
		close(m.stopCh)
		m.stopCh = nil
	}
	m.mu.Unlock()
	return nil
}

// FailWith injects a capture error into the running session.
func (m *MockRecorder) FailWith(err error) {
	m.mu.Lock()
	if m.errCh != nil {
		m.errCh <- err
	}
	m.mu.Unlock()
}

func (m *MockRecorder) IsRecording() bool {
	return m.recording.Load()
}

// MockStreamer implements session.Streamer for testing. Tests drive the
// delta/final callbacks through the Callbacks captured by the factory.
type MockStreamer struct {
	ConnectError error
	CommitError  error

	connected atomic.Bool
	chunks    atomic.Int64
	commits   atomic.Int64
}

func NewMockStreamer() *MockStreamer {
	return &MockStreamer{}
}

func (m *MockStreamer) Connect(ctx context.Context, maxAttempts int) error {
	if m.ConnectError != nil {
		return m.ConnectError
	}
	m.connected.Store(true)
	return nil
}

func (m *MockStreamer) SendChunk(data []byte) error {
	m.chunks.Add(1)
	return nil
}

func (m *MockStreamer) Commit() error {
	m.commits.Add(1)
	return m.CommitError
}

func (m *MockStreamer) Disconnect() {
	m.connected.Store(false)
}

func (m *MockStreamer) Connected() bool { return m.connected.Load() }
func (m *MockStreamer) Chunks() int64   { return m.chunks.Load() }
func (m *MockStreamer) Commits() int64  { return m.commits.Load() }

// MockBatch implements session.BatchTranscriber for testing
type MockBatch struct {
	Transcription string
	Err           error

	mu       sync.Mutex
	Received []byte
}

func (m *MockBatch) Transcribe(ctx context.Context, pcm []byte, sampleRate int) (string, error) {
	m.mu.Lock()
	m.Received = append([]byte(nil), pcm...)
	m.mu.Unlock()
	if m.Err != nil {
		return "", m.Err
	}
	return m.Transcription, nil
}

// MockInserter implements inject.Inserter for testing
type MockInserter struct {
	InsertError error

	mu            sync.Mutex
	InsertedTexts []string
}

func NewMockInserter() *MockInserter {
	return &MockInserter{}
}

func (m *MockInserter) Insert(ctx context.Context, text string) error {
	if m.InsertError != nil {
		return m.InsertError
	}
	m.mu.Lock()
	m.InsertedTexts = append(m.InsertedTexts, text)
	m.mu.Unlock()
	return nil
}

func (m *MockInserter) GetInsertedTexts() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	result := make([]string, len(m.InsertedTexts))
	copy(result, m.InsertedTexts)
	return result
}

// MockNotifier records every notification for assertions
type MockNotifier struct {
	mu     sync.Mutex
	Events []string
}

func NewMockNotifier() *MockNotifier {
	return &MockNotifier{}
}

func (m *MockNotifier) record(event string) {
	m.mu.Lock()
	m.Events = append(m.Events, event)
	m.mu.Unlock()
}

func (m *MockNotifier) RecordingStarted()     { m.record("started") }
func (m *MockNotifier) RecordingStopped()     { m.record("stopped") }
func (m *MockNotifier) Transcribed(string)    { m.record("transcribed") }
func (m *MockNotifier) Skipped(reason string) { m.record("skipped:" + reason) }
func (m *MockNotifier) Error(string)          { m.record("error") }

func (m *MockNotifier) GetEvents() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	result := make([]string, len(m.Events))
	copy(result, m.Events)
	return result
}

func (m *MockNotifier) Count(event string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for _, e := range m.Events {
		if e == event {
			n++
		}
	}
	return n
}

// MockHistory implements history.Recorder for testing
type MockHistory struct {
	mu      sync.Mutex
	Entries []string
}

func (m *MockHistory) Record(text string) {
	m.mu.Lock()
	m.Entries = append(m.Entries, text)
	m.mu.Unlock()
}

func (m *MockHistory) GetEntries() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	result := make([]string, len(m.Entries))
	copy(result, m.Entries)
	return result
}

// Factory helpers for session testing

// MockRecorderFactory returns a factory that yields the given mock recorder
func MockRecorderFactory(mock *MockRecorder) session.RecorderFactory {
	return func(cfg capture.Config) session.AudioSource {
		return mock
	}
}

// MockStreamerFactory returns a factory that yields the given mock streamer
// and exposes the orchestrator's callbacks so tests can emit deltas and
// finals as the server would.
func MockStreamerFactory(mock *MockStreamer, captured *transcribe.Callbacks) session.StreamerFactory {
	return func(cfg transcribe.Config, cb transcribe.Callbacks) session.Streamer {
		if captured != nil {
			*captured = cb
		}
		return mock
	}
}

// MockBatchFactory returns a factory that yields the given mock batch
// transcriber
func MockBatchFactory(mock *MockBatch) session.BatchFactory {
	return func(apiKey, model, language string) session.BatchTranscriber {
		return mock
	}
}
