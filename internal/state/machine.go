package state

import (
	"log"
	"sync"
)

// Status is the single recording status of the whole daemon. Exactly one
// status is active at any instant; it changes only through Transition.
type Status string

const (
	Idle         Status = "idle"
	Starting     Status = "starting"
	Recording    Status = "recording"
	Processing   Status = "processing"
	ContinueMode Status = "continue"
)

// Source identifies which pipeline currently owns the machine. It is empty
// whenever the status is Idle and set exclusively by the transition that
// enters Starting.
type Source string

const (
	SourceDictation Source = "dictation"
	SourceAssistant Source = "assistant"
	SourceScreen    Source = "screen"
)

// Observer receives the new status and active source after every accepted
// transition, including resets. Observers run off the triggering call stack.
type Observer func(Status, Source)

// Machine guards the recording lifecycle. It is constructed once per process
// and handed to every component that needs it; nothing else may cache the
// status or the source.
type Machine struct {
	mu        sync.Mutex
	status    Status
	source    Source
	observers []Observer
}

func NewMachine() *Machine {
	return &Machine{status: Idle}
}

// allowed is the transition table. Transitions to Idle are always accepted
// and handled before this table is consulted.
var allowed = map[Status][]Status{
	Idle:         {Starting},
	Starting:     {Recording},
	Recording:    {Processing},
	Processing:   {ContinueMode},
	ContinueMode: {Starting},
}

// Current returns the status and active source as one consistent snapshot.
func (m *Machine) Current() (Status, Source) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.status, m.source
}

func (m *Machine) Status() Status {
	s, _ := m.Current()
	return s
}

// CanStart reports whether src may begin a session right now: either the
// machine is idle, or it is in continue mode and src is the session that
// just finished.
func (m *Machine) CanStart(src Source) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.canStartLocked(src)
}

func (m *Machine) canStartLocked(src Source) bool {
	if m.status == Idle {
		return true
	}
	return m.status == ContinueMode && m.source == src
}

// Transition requests a move to the given status. Entering Starting requires
// a non-empty src and the exclusivity rule; entering Idle always succeeds and
// acts as the reset every error path funnels into. It returns false and
// leaves the machine untouched when the move is not in the table.
func (m *Machine) Transition(to Status, src Source) bool {
	m.mu.Lock()

	if to == Idle {
		m.applyLocked(Idle, "")
		return true
	}

	if to == Starting {
		if src == "" || !m.canStartLocked(src) {
			m.mu.Unlock()
			return false
		}
		m.applyLocked(Starting, src)
		return true
	}

	for _, next := range allowed[m.status] {
		if next == to {
			m.applyLocked(to, m.source)
			return true
		}
	}

	m.mu.Unlock()
	return false
}

// applyLocked commits the transition and releases the lock before notifying,
// so observers may call back into the machine without deadlocking.
func (m *Machine) applyLocked(to Status, src Source) {
	from := m.status
	m.status = to
	m.source = src
	observers := make([]Observer, len(m.observers))
	copy(observers, m.observers)
	m.mu.Unlock()

	log.Printf("State: %s -> %s (source=%q)", from, to, src)
	for _, fn := range observers {
		go fn(to, src)
	}
}

// Subscribe registers an observer for future transitions.
func (m *Machine) Subscribe(fn Observer) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.observers = append(m.observers, fn)
}
