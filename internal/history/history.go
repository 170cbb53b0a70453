package history

import (
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strings"
	"time"
)

// Recorder receives finished transcripts. Calls are fire-and-forget: the
// core never waits on or reacts to recording failures.
type Recorder interface {
	Record(text string)
}

// FileHistory appends timestamped transcripts to a log under the user state
// directory (~/.local/state/voxd/history.log).
type FileHistory struct {
	path string
}

func NewFileHistory() (*FileHistory, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return nil, err
	}
	dir := filepath.Join(home, ".local", "state", "voxd")
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return nil, err
	}
	return &FileHistory{path: filepath.Join(dir, "history.log")}, nil
}

func (h *FileHistory) Record(text string) {
	go func() {
		f, err := os.OpenFile(h.path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o600)
		if err != nil {
			log.Printf("History: open failed: %v", err)
			return
		}
		defer f.Close()

		line := fmt.Sprintf("%s\t%s\n", time.Now().Format(time.RFC3339),
			strings.ReplaceAll(text, "\n", " "))
		if _, err := f.WriteString(line); err != nil {
			log.Printf("History: write failed: %v", err)
		}
	}()
}

// Nop discards every transcript.
type Nop struct{}

func (Nop) Record(string) {}
