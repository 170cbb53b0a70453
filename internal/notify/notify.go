package notify

import (
	"fmt"
	"log"
	"os/exec"
)

// Notifier surfaces session outcomes to the user. Every fatal-to-session
// error produces exactly one Error call; skips are policy outcomes and get
// their own signal so callers never mistake them for failures.
type Notifier interface {
	RecordingStarted()
	RecordingStopped()
	Transcribed(text string)
	Skipped(reason string)
	Error(msg string)
}

// Desktop sends notifications via notify-send.
type Desktop struct{}

func (Desktop) RecordingStarted() { send("Voxd: recording started", false) }
func (Desktop) RecordingStopped() { send("Voxd: transcribing...", false) }

func (Desktop) Transcribed(text string) {
	if len(text) > 80 {
		text = text[:77] + "..."
	}
	send(fmt.Sprintf("Voxd: %s", text), false)
}

func (Desktop) Skipped(reason string) {
	send(fmt.Sprintf("Voxd: skipped (%s)", reason), false)
}

func (Desktop) Error(msg string) {
	send(fmt.Sprintf("Voxd: %s", msg), true)
}

func send(msg string, critical bool) {
	args := []string{"-a", "Voxd"}
	if critical {
		args = append(args, "-u", "critical")
	}
	args = append(args, msg)
	if err := exec.Command("notify-send", args...).Run(); err != nil {
		log.Printf("Notify: failed to send notification: %v", err)
	}
}

// Log writes notifications to the daemon log instead of the desktop.
type Log struct{}

func (Log) RecordingStarted()       { log.Printf("Notify: recording started") }
func (Log) RecordingStopped()       { log.Printf("Notify: transcribing") }
func (Log) Transcribed(text string) { log.Printf("Notify: transcribed %q", text) }
func (Log) Skipped(reason string)   { log.Printf("Notify: skipped (%s)", reason) }
func (Log) Error(msg string)        { log.Printf("Notify: error: %s", msg) }

// Nop does nothing. Useful in tests and headless builds.
type Nop struct{}

func (Nop) RecordingStarted()  {}
func (Nop) RecordingStopped()  {}
func (Nop) Transcribed(string) {}
func (Nop) Skipped(string)     {}
func (Nop) Error(string)       {}

// ForType maps a notifications.type config value to an implementation.
func ForType(kind string) Notifier {
	switch kind {
	case "desktop":
		return Desktop{}
	case "log":
		return Log{}
	default:
		return Nop{}
	}
}
