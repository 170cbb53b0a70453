package session_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/voxd-dev/voxd/internal/capture"
	"github.com/voxd-dev/voxd/internal/creds"
	"github.com/voxd-dev/voxd/internal/session"
	"github.com/voxd-dev/voxd/internal/state"
	"github.com/voxd-dev/voxd/internal/testutil"
	"github.com/voxd-dev/voxd/internal/transcribe"
)

type harness struct {
	machine  *state.Machine
	engine   *session.Orchestrator
	recorder *testutil.MockRecorder
	streamer *testutil.MockStreamer
	batch    *testutil.MockBatch
	cb       transcribe.Callbacks
	inserter *testutil.MockInserter
	notifier *testutil.MockNotifier
	history  *testutil.MockHistory

	results chan string
	skips   chan string
}

func newHarness(t *testing.T, mutate func(h *harness) *testutil.StaticConfig) *harness {
	t.Helper()

	h := &harness{
		machine:  state.NewMachine(),
		recorder: testutil.NewMockRecorder(),
		streamer: testutil.NewMockStreamer(),
		batch:    &testutil.MockBatch{Transcription: "batch text"},
		inserter: testutil.NewMockInserter(),
		notifier: testutil.NewMockNotifier(),
		history:  &testutil.MockHistory{},
		results:  make(chan string, 4),
		skips:    make(chan string, 4),
	}

	cfgSource := testutil.StaticConfig{Cfg: testutil.TestConfig()}
	if mutate != nil {
		if custom := mutate(h); custom != nil {
			cfgSource = *custom
		}
	}

	h.engine = session.New(h.machine, cfgSource, h.notifier, h.inserter, h.history,
		creds.Static{"openai": "test-key"})
	h.engine.WithFactories(
		testutil.MockRecorderFactory(h.recorder),
		testutil.MockStreamerFactory(h.streamer, &h.cb),
		testutil.MockBatchFactory(h.batch),
	)
	h.engine.OnResult = func(text string) { h.results <- text }
	h.engine.OnSkipped = func(reason string) { h.skips <- reason }

	t.Cleanup(h.engine.Shutdown)
	return h
}

func (h *harness) waitResult(t *testing.T) string {
	t.Helper()
	select {
	case text := <-h.results:
		return text
	case <-time.After(3 * time.Second):
		t.Fatal("session never completed")
		return ""
	}
}

func (h *harness) waitSkip(t *testing.T) string {
	t.Helper()
	select {
	case reason := <-h.skips:
		return reason
	case <-time.After(3 * time.Second):
		t.Fatal("session never skipped")
		return ""
	}
}

func TestStreamingSessionLifecycle(t *testing.T) {
	h := newHarness(t, nil)

	if err := h.engine.Start(context.Background(), state.SourceDictation); err != nil {
		t.Fatalf("Start failed: %v", err)
	}

	status, src := h.machine.Current()
	if status != state.Recording || src != state.SourceDictation {
		t.Fatalf("after start: status=%s source=%s", status, src)
	}

	testutil.WaitForCondition(t, func() bool { return h.streamer.Chunks() > 0 }, 2*time.Second)

	h.cb.OnDelta("hello ")
	h.cb.OnDelta("world")
	h.engine.Stop()

	if got := h.machine.Status(); got != state.Processing {
		t.Errorf("after stop: status=%s, want processing", got)
	}
	if h.streamer.Commits() != 1 {
		t.Errorf("commits = %d, want 1", h.streamer.Commits())
	}

	h.cb.OnFinal("hello world")

	if got := h.waitResult(t); got != "hello world" {
		t.Errorf("result = %q", got)
	}
	if got := h.inserter.GetInsertedTexts(); len(got) != 1 || got[0] != "hello world" {
		t.Errorf("inserted = %v", got)
	}
	if got := h.history.GetEntries(); len(got) != 1 || got[0] != "hello world" {
		t.Errorf("history = %v", got)
	}

	status, src = h.machine.Current()
	if status != state.ContinueMode || src != state.SourceDictation {
		t.Errorf("after finalize: status=%s source=%s, want continue/dictation", status, src)
	}
	if h.streamer.Connected() {
		t.Error("streamer should be disconnected after finalize")
	}

	// Continue mode re-arms the same source without a reset to idle.
	if !h.machine.CanStart(state.SourceDictation) {
		t.Error("same source should be able to continue")
	}
	if h.machine.CanStart(state.SourceAssistant) {
		t.Error("other sources must stay locked out in continue mode")
	}
}

func TestSecondSourceRejectedWhileRecording(t *testing.T) {
	h := newHarness(t, nil)

	if err := h.engine.Start(context.Background(), state.SourceDictation); err != nil {
		t.Fatalf("Start failed: %v", err)
	}

	if err := h.engine.Start(context.Background(), state.SourceAssistant); !errors.Is(err, session.ErrBusy) {
		t.Errorf("second start err = %v, want ErrBusy", err)
	}
}

func TestSilentSessionSkipped(t *testing.T) {
	h := newHarness(t, func(h *harness) *testutil.StaticConfig {
		h.recorder.Frames = []capture.Frame{testutil.SilentFrame(24000)}
		return nil
	})

	if err := h.engine.Start(context.Background(), state.SourceDictation); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	testutil.WaitForCondition(t, func() bool { return h.streamer.Chunks() > 0 }, 2*time.Second)

	h.engine.Stop()

	if got := h.waitSkip(t); got != "silence" {
		t.Errorf("skip reason = %q, want silence", got)
	}
	if h.notifier.Count("skipped:silence") != 1 {
		t.Errorf("events = %v", h.notifier.GetEvents())
	}
	if got := h.machine.Status(); got != state.Idle {
		t.Errorf("status = %s, want idle", got)
	}
	if len(h.inserter.GetInsertedTexts()) != 0 {
		t.Error("silent session must not insert text")
	}
}

func TestShortSessionSkipped(t *testing.T) {
	h := newHarness(t, func(h *harness) *testutil.StaticConfig {
		// ~4ms of audio, below the minimum duration.
		h.recorder.Frames = []capture.Frame{testutil.LoudFrame(100)}
		return nil
	})

	if err := h.engine.Start(context.Background(), state.SourceDictation); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	testutil.WaitForCondition(t, func() bool { return h.streamer.Chunks() > 0 }, 2*time.Second)

	h.engine.Stop()

	if got := h.waitSkip(t); got != "silence" {
		t.Errorf("skip reason = %q", got)
	}
	if got := h.machine.Status(); got != state.Idle {
		t.Errorf("status = %s, want idle", got)
	}
}

func TestFallbackTimeoutFinalizesFromDeltas(t *testing.T) {
	h := newHarness(t, nil)

	if err := h.engine.Start(context.Background(), state.SourceDictation); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	testutil.WaitForCondition(t, func() bool { return h.streamer.Chunks() > 0 }, 2*time.Second)

	h.cb.OnDelta("partial transcript")
	h.engine.Stop()

	// No server final; the fallback timer must complete the session from
	// the accumulated deltas.
	if got := h.waitResult(t); got != "partial transcript" {
		t.Errorf("result = %q", got)
	}

	// A late server final must not complete the session a second time.
	h.cb.OnFinal("late authoritative transcript")
	time.Sleep(100 * time.Millisecond)

	if got := h.inserter.GetInsertedTexts(); len(got) != 1 {
		t.Errorf("inserted %d times, want exactly 1: %v", len(got), got)
	}
}

func TestCancelMidRecording(t *testing.T) {
	h := newHarness(t, nil)

	if err := h.engine.Start(context.Background(), state.SourceDictation); err != nil {
		t.Fatalf("Start failed: %v", err)
	}

	h.engine.Cancel()

	if got := h.machine.Status(); got != state.Idle {
		t.Errorf("status = %s, want idle", got)
	}
	if h.streamer.Connected() {
		t.Error("streamer should be disconnected after cancel")
	}
	if len(h.inserter.GetInsertedTexts()) != 0 {
		t.Error("cancel must not insert text")
	}
	if h.recorder.IsRecording() {
		t.Error("recorder should be stopped after cancel")
	}
}

func TestVoiceStopCommandEndsSession(t *testing.T) {
	h := newHarness(t, nil)

	if err := h.engine.Start(context.Background(), state.SourceDictation); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	testutil.WaitForCondition(t, func() bool { return h.streamer.Chunks() > 0 }, 2*time.Second)

	h.cb.OnDelta("take a note stop recording")

	testutil.WaitForCondition(t, func() bool {
		return h.machine.Status() == state.Processing
	}, 2*time.Second)

	h.cb.OnFinal("take a note stop recording")

	if got := h.waitResult(t); got != "take a note" {
		t.Errorf("result = %q, want command phrase stripped", got)
	}
}

func TestCommandOnlyTranscriptSkipped(t *testing.T) {
	h := newHarness(t, nil)

	if err := h.engine.Start(context.Background(), state.SourceDictation); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	testutil.WaitForCondition(t, func() bool { return h.streamer.Chunks() > 0 }, 2*time.Second)

	h.engine.Stop()
	h.cb.OnFinal("stop recording")

	if got := h.waitSkip(t); got != "no content" {
		t.Errorf("skip reason = %q, want no content", got)
	}
	if got := h.machine.Status(); got != state.Idle {
		t.Errorf("status = %s, want idle", got)
	}
}

func TestStreamErrorWithDeltasFinalizesPartial(t *testing.T) {
	h := newHarness(t, nil)

	if err := h.engine.Start(context.Background(), state.SourceDictation); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	testutil.WaitForCondition(t, func() bool { return h.streamer.Chunks() > 0 }, 2*time.Second)

	h.cb.OnDelta("salvaged words")
	h.cb.OnError(errors.New("connection reset"))

	if got := h.waitResult(t); got != "salvaged words" {
		t.Errorf("result = %q, want partial transcript", got)
	}

	// The machine must not stay parked in recording with the session dead;
	// finalizing from a mid-recording transport error re-arms like a normal
	// stop would.
	status, src := h.machine.Current()
	if status != state.ContinueMode || src != state.SourceDictation {
		t.Errorf("after finalize: status=%s source=%s, want continue/dictation", status, src)
	}
	if !h.machine.CanStart(state.SourceDictation) {
		t.Error("owning source must be able to start again after a stream-error finalize")
	}

	// A later stop call on the finished session must be a no-op.
	h.engine.Stop()
	if got := h.machine.Status(); got != state.ContinueMode {
		t.Errorf("after redundant stop: status=%s, want continue", got)
	}
}

func TestStreamErrorWithoutDeltasAborts(t *testing.T) {
	h := newHarness(t, nil)

	if err := h.engine.Start(context.Background(), state.SourceDictation); err != nil {
		t.Fatalf("Start failed: %v", err)
	}

	h.cb.OnError(errors.New("connection reset"))

	testutil.WaitForCondition(t, func() bool {
		return h.machine.Status() == state.Idle
	}, 2*time.Second)

	if h.notifier.Count("error") != 1 {
		t.Errorf("error notifications = %d, want exactly 1", h.notifier.Count("error"))
	}
	if len(h.inserter.GetInsertedTexts()) != 0 {
		t.Error("aborted session must not insert text")
	}
}

func TestConnectFailureResetsToIdle(t *testing.T) {
	h := newHarness(t, func(h *harness) *testutil.StaticConfig {
		h.streamer.ConnectError = errors.New("dial refused")
		return nil
	})

	if err := h.engine.Start(context.Background(), state.SourceDictation); err == nil {
		t.Fatal("Start should fail when the streamer cannot connect")
	}

	if got := h.machine.Status(); got != state.Idle {
		t.Errorf("status = %s, want idle", got)
	}
	if h.notifier.Count("error") != 1 {
		t.Errorf("error notifications = %d, want 1", h.notifier.Count("error"))
	}
}

func TestMissingCredentialsResetsToIdle(t *testing.T) {
	machine := state.NewMachine()
	notifier := testutil.NewMockNotifier()
	engine := session.New(machine, testutil.StaticConfig{Cfg: testutil.TestConfig()},
		notifier, testutil.NewMockInserter(), &testutil.MockHistory{}, creds.Static{})

	if err := engine.Start(context.Background(), state.SourceDictation); !errors.Is(err, creds.ErrKeyNotFound) {
		t.Fatalf("err = %v, want ErrKeyNotFound", err)
	}
	if got := machine.Status(); got != state.Idle {
		t.Errorf("status = %s, want idle", got)
	}
}

func TestBatchMode(t *testing.T) {
	h := newHarness(t, func(h *harness) *testutil.StaticConfig {
		cfg := testutil.TestConfig()
		cfg.Transcription.Streaming = false
		return &testutil.StaticConfig{Cfg: cfg}
	})

	if err := h.engine.Start(context.Background(), state.SourceDictation); err != nil {
		t.Fatalf("Start failed: %v", err)
	}

	// Batch mode buffers locally; nothing must touch the streamer.
	time.Sleep(50 * time.Millisecond)
	if h.streamer.Chunks() != 0 {
		t.Errorf("streamer received %d chunks in batch mode", h.streamer.Chunks())
	}

	h.engine.Stop()

	if got := h.waitResult(t); got != "batch text" {
		t.Errorf("result = %q", got)
	}
	if len(h.batch.Received) == 0 {
		t.Error("batch transcriber never received the buffered audio")
	}
	if got := h.machine.Status(); got != state.ContinueMode {
		t.Errorf("status = %s, want continue", got)
	}
}
