package inject

import (
	"context"
	"fmt"
	"log"
	"os/exec"
	"time"

	"github.com/atotto/clipboard"
)

// Inserter places text at the OS text cursor. The core calls it once per
// completed transcription and only logs failures.
type Inserter interface {
	Insert(ctx context.Context, text string) error
}

type Config struct {
	Backends         []string
	YdotoolTimeout   time.Duration
	WtypeTimeout     time.Duration
	ClipboardTimeout time.Duration
}

func DefaultConfig() Config {
	return Config{
		Backends:         []string{"wtype", "ydotool", "clipboard"},
		YdotoolTimeout:   5 * time.Second,
		WtypeTimeout:     5 * time.Second,
		ClipboardTimeout: 3 * time.Second,
	}
}

type inserter struct {
	config Config
}

func NewInserter(config Config) Inserter {
	return &inserter{config: config}
}

// Insert tries each configured backend in order until one succeeds.
func (i *inserter) Insert(ctx context.Context, text string) error {
	if text == "" {
		return fmt.Errorf("cannot insert empty text")
	}

	var lastErr error
	for _, backend := range i.config.Backends {
		var err error
		switch backend {
		case "wtype":
			err = i.wtype(ctx, text)
		case "ydotool":
			err = i.ydotool(ctx, text)
		case "clipboard":
			err = i.clipboard(text)
		default:
			err = fmt.Errorf("unknown backend %q", backend)
		}
		if err == nil {
			log.Printf("Inject: inserted %d chars via %s", len(text), backend)
			return nil
		}
		log.Printf("Inject: %s failed: %v", backend, err)
		lastErr = err
	}
	return fmt.Errorf("all injection backends failed: %w", lastErr)
}

func (i *inserter) wtype(ctx context.Context, text string) error {
	if _, err := exec.LookPath("wtype"); err != nil {
		return fmt.Errorf("wtype not found: %w", err)
	}
	runCtx, cancel := context.WithTimeout(ctx, i.config.WtypeTimeout)
	defer cancel()
	return exec.CommandContext(runCtx, "wtype", "--", text).Run()
}

func (i *inserter) ydotool(ctx context.Context, text string) error {
	if _, err := exec.LookPath("ydotool"); err != nil {
		return fmt.Errorf("ydotool not found: %w", err)
	}
	runCtx, cancel := context.WithTimeout(ctx, i.config.YdotoolTimeout)
	defer cancel()
	return exec.CommandContext(runCtx, "ydotool", "type", "--", text).Run()
}

func (i *inserter) clipboard(text string) error {
	if err := clipboard.WriteAll(text); err != nil {
		return fmt.Errorf("copy to clipboard: %w", err)
	}
	log.Printf("Inject: text copied to clipboard, paste manually")
	return nil
}
