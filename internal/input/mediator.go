package input

import (
	"context"
	"log"
	"sync"
	"time"

	"github.com/voxd-dev/voxd/internal/command"
	"github.com/voxd-dev/voxd/internal/state"
)

// Engine is the recording manager the mediator drives. The session
// orchestrator satisfies it.
type Engine interface {
	Start(ctx context.Context, src state.Source) error
	Stop()
	Cancel()
}

// TapDetector turns raw press events into double-tap events. A single tap
// inside the window is forgotten once the window elapses; only the second
// tap fires.
type TapDetector struct {
	mu     sync.Mutex
	window time.Duration
	last   time.Time

	now func() time.Time
}

func NewTapDetector(window time.Duration) *TapDetector {
	return &TapDetector{window: window, now: time.Now}
}

// Tap records a press and reports whether it completed a double tap.
func (t *TapDetector) Tap() bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	now := t.now()
	if !t.last.IsZero() && now.Sub(t.last) <= t.window {
		t.last = time.Time{}
		return true
	}
	t.last = now
	return false
}

func (t *TapDetector) Reset() {
	t.mu.Lock()
	t.last = time.Time{}
	t.mu.Unlock()
}

// Mediator arbitrates between concurrently-arriving input channels. It never
// sequences channels against each other; every request routes through the
// state machine's guarded transitions, so simultaneous firing resolves to
// exactly one accepted transition and rejected no-ops for the rest.
type Mediator struct {
	machine *state.Machine
	engine  Engine

	KeySource     state.Source
	GestureSource state.Source

	keyTaps *TapDetector
}

func NewMediator(machine *state.Machine, engine Engine, doubleTapWindow time.Duration) *Mediator {
	return &Mediator{
		machine:       machine,
		engine:        engine,
		KeySource:     state.SourceDictation,
		GestureSource: state.SourceAssistant,
		keyTaps:       NewTapDetector(doubleTapWindow),
	}
}

// HandleKeyPress starts a session when the keyboard channel is allowed to,
// and stops one on a double tap while that channel owns the recording.
func (m *Mediator) HandleKeyPress(ctx context.Context) {
	if m.machine.CanStart(m.KeySource) {
		m.keyTaps.Reset()
		if err := m.engine.Start(ctx, m.KeySource); err != nil {
			log.Printf("Mediator: key start rejected: %v", err)
		}
		return
	}

	if !m.owns(m.KeySource) {
		log.Printf("Mediator: ignoring key press, another source is active")
		return
	}
	if m.keyTaps.Tap() {
		m.engine.Stop()
	}
}

// HandleGestureToggle starts or stops on behalf of the gesture channel.
func (m *Mediator) HandleGestureToggle(ctx context.Context) {
	if m.machine.CanStart(m.GestureSource) {
		if err := m.engine.Start(ctx, m.GestureSource); err != nil {
			log.Printf("Mediator: gesture start rejected: %v", err)
		}
		return
	}

	if !m.owns(m.GestureSource) {
		log.Printf("Mediator: ignoring gesture, another source is active")
		return
	}
	m.engine.Stop()
}

// HandleCancel cancels only if src is the active source. Cancellation from
// the owning channel is honored in any non-idle state.
func (m *Mediator) HandleCancel(src state.Source) {
	status, active := m.machine.Current()
	if status == state.Idle {
		return
	}
	if active != src {
		log.Printf("Mediator: ignoring cancel from %s, active source is %s", src, active)
		return
	}
	m.engine.Cancel()
}

// HandleVoiceCommand routes detected voice commands. The voice channel acts
// for whichever source owns the live recording, since the commands were
// spoken into that session's own audio stream.
func (m *Mediator) HandleVoiceCommand(match command.Match) {
	if m.machine.Status() != state.Recording {
		return
	}

	log.Printf("Mediator: voice command %q (%s)", match.Phrase, match.Kind)
	switch match.Kind {
	case command.Stop:
		m.engine.Stop()
	case command.Cancel:
		m.engine.Cancel()
	case command.Continue:
		// Recording is already live; nothing to re-arm.
	}
}

func (m *Mediator) owns(src state.Source) bool {
	status, active := m.machine.Current()
	return status == state.Recording && active == src
}
