package session

import (
	"context"
	"errors"
	"fmt"
	"log"
	"math"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/voxd-dev/voxd/internal/capture"
	"github.com/voxd-dev/voxd/internal/command"
	"github.com/voxd-dev/voxd/internal/config"
	"github.com/voxd-dev/voxd/internal/creds"
	"github.com/voxd-dev/voxd/internal/history"
	"github.com/voxd-dev/voxd/internal/inject"
	"github.com/voxd-dev/voxd/internal/notify"
	"github.com/voxd-dev/voxd/internal/state"
	"github.com/voxd-dev/voxd/internal/transcribe"
)

var ErrBusy = errors.New("another source is recording")

// AudioSource is the capture side of a session.
type AudioSource interface {
	Start(ctx context.Context) (<-chan capture.Frame, <-chan error, error)
	Stop() error
}

// Streamer is the transport side of a streaming session.
type Streamer interface {
	Connect(ctx context.Context, maxAttempts int) error
	SendChunk(data []byte) error
	Commit() error
	Disconnect()
}

// BatchTranscriber transcribes a fully buffered recording in one shot.
type BatchTranscriber interface {
	Transcribe(ctx context.Context, pcm []byte, sampleRate int) (string, error)
}

// Factories let tests substitute capture and transport without touching the
// orchestration logic.
type (
	RecorderFactory func(cfg capture.Config) AudioSource
	StreamerFactory func(cfg transcribe.Config, cb transcribe.Callbacks) Streamer
	BatchFactory    func(apiKey, model, language string) BatchTranscriber
)

// ConfigSource yields the current configuration; *config.Manager satisfies
// it with hot reload.
type ConfigSource interface {
	GetConfig() *config.Config
}

// Orchestrator ties capture, transport and command detection into one
// recording session at a time, and drives the shared state machine through
// it. All cleanup paths, user-driven or failure-driven, funnel into the same
// teardown.
type Orchestrator struct {
	machine  *state.Machine
	configs  ConfigSource
	notifier notify.Notifier
	inserter inject.Inserter
	history  history.Recorder
	creds    creds.Provider

	newRecorder RecorderFactory
	newStreamer StreamerFactory
	newBatch    BatchFactory

	// Optional hooks, used by the input mediator and by tests.
	OnCommand func(match command.Match)
	OnResult  func(text string)
	OnSkipped func(reason string)

	mu  sync.Mutex
	cur *session
}

type session struct {
	src      state.Source
	cfg      *config.Config
	detector *command.Detector
	recorder AudioSource
	streamer Streamer
	apiKey   string

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	finalized atomic.Bool

	mu         sync.Mutex
	deltas     []string
	pcm        []byte
	sumSquares float64
	samples    int
	fallback   *time.Timer
}

func New(machine *state.Machine, configs ConfigSource, notifier notify.Notifier,
	inserter inject.Inserter, hist history.Recorder, credentials creds.Provider) *Orchestrator {
	return &Orchestrator{
		machine:  machine,
		configs:  configs,
		notifier: notifier,
		inserter: inserter,
		history:  hist,
		creds:    credentials,
		newRecorder: func(cfg capture.Config) AudioSource {
			return capture.NewRecorder(cfg)
		},
		newStreamer: func(cfg transcribe.Config, cb transcribe.Callbacks) Streamer {
			return transcribe.NewClient(cfg, cb)
		},
		newBatch: func(apiKey, model, language string) BatchTranscriber {
			return transcribe.NewBatchTranscriber(apiKey, model, language)
		},
	}
}

// WithFactories overrides component construction, for tests.
func (o *Orchestrator) WithFactories(r RecorderFactory, s StreamerFactory, b BatchFactory) *Orchestrator {
	if r != nil {
		o.newRecorder = r
	}
	if s != nil {
		o.newStreamer = s
	}
	if b != nil {
		o.newBatch = b
	}
	return o
}

// Start begins a recording session for src. The client handshake completes
// before any capture starts, so audio is never fed to a connection that has
// not been acknowledged. On any failure the machine is back at idle and the
// user has been notified exactly once.
func (o *Orchestrator) Start(ctx context.Context, src state.Source) error {
	if !o.machine.Transition(state.Starting, src) {
		return ErrBusy
	}

	// Serialize with a prior still-stopping session.
	o.mu.Lock()
	prev := o.cur
	o.mu.Unlock()
	if prev != nil {
		prev.wg.Wait()
	}

	cfg := o.configs.GetConfig()

	apiKey, err := o.creds.APIKey(cfg.Transcription.Provider)
	if err != nil {
		return o.abortStart(fmt.Errorf("credentials: %w", err))
	}

	s := &session{src: src, cfg: cfg, apiKey: apiKey}
	s.ctx, s.cancel = context.WithTimeout(ctx, cfg.Recording.Timeout)
	s.detector = command.NewDetector(cfg.ToDetectorConfig())
	s.recorder = o.newRecorder(cfg.ToCaptureConfig())

	if cfg.Transcription.Streaming {
		streamCfg := cfg.ToStreamConfig()
		streamCfg.APIKey = apiKey
		s.streamer = o.newStreamer(streamCfg, transcribe.Callbacks{
			OnDelta: func(text string) { o.handleDelta(s, text) },
			OnFinal: func(text string) { o.finalize(s, text, "server final") },
			OnError: func(err error) { o.handleStreamError(s, err) },
		})

		if err := s.streamer.Connect(s.ctx, cfg.Transcription.MaxAttempts); err != nil {
			s.cancel()
			return o.abortStart(err)
		}
	}

	frameCh, errCh, err := s.recorder.Start(s.ctx)
	if err != nil {
		if s.streamer != nil {
			s.streamer.Disconnect()
		}
		s.cancel()
		return o.abortStart(err)
	}

	if !o.machine.Transition(state.Recording, src) {
		// Raced with an emergency reset; release everything.
		s.recorder.Stop()
		if s.streamer != nil {
			s.streamer.Disconnect()
		}
		s.cancel()
		return ErrBusy
	}

	o.mu.Lock()
	o.cur = s
	o.mu.Unlock()

	o.notifier.RecordingStarted()

	s.wg.Add(1)
	go o.pump(s, frameCh, errCh)

	return nil
}

func (o *Orchestrator) abortStart(err error) error {
	log.Printf("Session: start failed: %v", err)
	o.notifier.Error(err.Error())
	o.machine.Transition(state.Idle, "")
	return err
}

// pump moves captured frames into the transport (or the batch buffer) and
// keeps the running energy stats the silence policy needs.
func (o *Orchestrator) pump(s *session, frameCh <-chan capture.Frame, errCh <-chan error) {
	defer s.wg.Done()

	for {
		select {
		case frame, ok := <-frameCh:
			if !ok {
				return
			}
			s.accumulate(frame.Data)
			if s.streamer != nil {
				if err := s.streamer.SendChunk(frame.Data); err != nil {
					// A dropped chunk is lost, not retried: late audio has
					// no value in a real-time stream.
					log.Printf("Session: send chunk: %v", err)
				}
			}

		case err := <-errCh:
			if err != nil {
				o.failSession(s, err)
				return
			}

		case <-s.ctx.Done():
			if !s.finalized.Load() && o.machine.Status() == state.Recording {
				// Session hit its maximum duration; stop as if the user did.
				go o.Stop()
			}
			return
		}
	}
}

func (s *session) accumulate(data []byte) {
	sum, n := capture.SumSquares(data)

	s.mu.Lock()
	s.sumSquares += sum
	s.samples += n
	if !s.cfg.Transcription.Streaming {
		s.pcm = append(s.pcm, data...)
	}
	s.mu.Unlock()
}

func (s *session) stats() (time.Duration, float64) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.samples == 0 {
		return 0, -96
	}
	dur := time.Duration(float64(s.samples) / float64(s.cfg.Recording.TargetRate) * float64(time.Second))
	rms := math.Sqrt(s.sumSquares / float64(s.samples))
	if rms <= 0 {
		return dur, -96
	}
	return dur, 20 * math.Log10(rms)
}

func (s *session) appendDelta(text string) {
	s.mu.Lock()
	s.deltas = append(s.deltas, text)
	s.mu.Unlock()
}

// joined concatenates the deltas: the best-effort transcript when no
// authoritative final arrives.
func (s *session) joined() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return strings.Join(s.deltas, "")
}

func (s *session) stopFallback() {
	s.mu.Lock()
	if s.fallback != nil {
		s.fallback.Stop()
		s.fallback = nil
	}
	s.mu.Unlock()
}

func (o *Orchestrator) handleDelta(s *session, text string) {
	if s.finalized.Load() {
		return
	}
	s.appendDelta(text)

	match := s.detector.ProcessDelta(text)
	if match == nil {
		return
	}
	if o.OnCommand != nil {
		o.OnCommand(*match)
		return
	}
	switch match.Kind {
	case command.Stop:
		go o.Stop()
	case command.Cancel:
		go o.Cancel()
	default:
		log.Printf("Session: ignoring voice command %q while recording", match.Kind)
	}
}

func (o *Orchestrator) handleStreamError(s *session, err error) {
	if s.finalized.Load() {
		return
	}
	log.Printf("Session: stream error: %v", err)

	// The transport is gone; finalize with whatever partial transcript
	// exists, otherwise abort the session. The capture side may still be
	// running, so move through processing the way a user stop would.
	if partial := s.joined(); partial != "" {
		o.machine.Transition(state.Processing, s.src)
		s.recorder.Stop()
		o.finalize(s, partial, "transport error")
		return
	}
	o.failSession(s, err)
}

// Stop ends capture and hands the session to the server for finalization.
// The transcript completes on the server's final event; a fallback timer
// forces completion from accumulated deltas if that event never comes.
func (o *Orchestrator) Stop() {
	o.mu.Lock()
	s := o.cur
	o.mu.Unlock()
	if s == nil {
		return
	}

	if !o.machine.Transition(state.Processing, s.src) {
		return
	}
	o.notifier.RecordingStopped()
	s.recorder.Stop()

	dur, db := s.stats()
	if dur < s.cfg.Recording.MinDuration || db < s.cfg.Recording.SilenceThresholdDB {
		log.Printf("Session: skipping, duration=%v rms=%.1fdB", dur, db)
		o.skip(s, "silence")
		return
	}

	if s.streamer == nil {
		go o.finishBatch(s)
		return
	}

	if err := s.streamer.Commit(); err != nil {
		log.Printf("Session: commit: %v", err)
	}

	timeout := s.cfg.Transcription.FinalizeTimeout
	s.mu.Lock()
	s.fallback = time.AfterFunc(timeout, func() {
		o.finalize(s, s.joined(), "timeout")
	})
	s.mu.Unlock()
}

func (o *Orchestrator) finishBatch(s *session) {
	s.mu.Lock()
	pcm := s.pcm
	s.mu.Unlock()

	batch := o.newBatch(s.apiKey, s.cfg.Transcription.BatchModel, s.cfg.Transcription.Language)
	text, err := batch.Transcribe(s.ctx, pcm, s.cfg.Recording.TargetRate)
	if err != nil {
		o.failSession(s, err)
		return
	}
	o.finalize(s, text, "batch")
}

// finalize completes the session with the given transcript. The guard flag
// makes it structurally impossible for the server-final event and the
// fallback timer to both complete the same session.
func (o *Orchestrator) finalize(s *session, text, reason string) {
	if !s.finalized.CompareAndSwap(false, true) {
		return
	}
	log.Printf("Session: finalizing (%s)", reason)

	s.stopFallback()
	if s.streamer != nil {
		s.streamer.Disconnect()
	}
	s.cancel()

	clean := s.detector.Strip(text)
	if clean == "" {
		// The user said only commands, or nothing was transcribed. That is
		// a policy outcome, not an error.
		o.notifier.Skipped("no content")
		o.machine.Transition(state.Idle, "")
		if o.OnSkipped != nil {
			o.OnSkipped("no content")
		}
		return
	}

	insertCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := o.inserter.Insert(insertCtx, clean); err != nil {
		log.Printf("Session: insert failed: %v", err)
	}
	o.history.Record(clean)
	o.notifier.Transcribed(clean)

	// Re-arm so the same source can start again without renegotiating
	// exclusivity. If the machine is not in a state that can re-arm, reset
	// to idle rather than leave a dead session holding the source token.
	if !o.machine.Transition(state.ContinueMode, s.src) {
		o.machine.Transition(state.Idle, "")
	}

	if o.OnResult != nil {
		o.OnResult(clean)
	}
}

// skip discards the session without transcription.
func (o *Orchestrator) skip(s *session, reason string) {
	if !s.finalized.CompareAndSwap(false, true) {
		return
	}
	s.stopFallback()
	if s.streamer != nil {
		s.streamer.Disconnect()
	}
	s.cancel()

	o.notifier.Skipped(reason)
	o.machine.Transition(state.Idle, "")
	if o.OnSkipped != nil {
		o.OnSkipped(reason)
	}
}

// failSession aborts with a single user notification and a reset to idle.
func (o *Orchestrator) failSession(s *session, err error) {
	if !s.finalized.CompareAndSwap(false, true) {
		return
	}
	s.stopFallback()
	s.recorder.Stop()
	if s.streamer != nil {
		s.streamer.Disconnect()
	}
	s.cancel()

	o.notifier.Error(err.Error())
	o.machine.Transition(state.Idle, "")
}

// Cancel abandons whatever is happening and releases every resource. It is
// safe from any state at any time; it also exits continue mode.
func (o *Orchestrator) Cancel() {
	o.mu.Lock()
	s := o.cur
	o.mu.Unlock()

	if s != nil && s.finalized.CompareAndSwap(false, true) {
		s.stopFallback()
		s.recorder.Stop()
		if s.streamer != nil {
			s.streamer.Disconnect()
		}
		s.cancel()
	}
	o.machine.Transition(state.Idle, "")
}

// Shutdown cancels any live session and waits for its goroutines.
func (o *Orchestrator) Shutdown() {
	o.Cancel()
	o.mu.Lock()
	s := o.cur
	o.cur = nil
	o.mu.Unlock()
	if s != nil {
		s.wg.Wait()
	}
}
