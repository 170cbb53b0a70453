package command

import (
	"log"
	"regexp"
	"sort"
	"strings"
	"sync"
	"time"
)

// Kind is a voice command the user can speak mid-dictation.
type Kind string

const (
	Stop     Kind = "stop"
	Cancel   Kind = "cancel"
	Continue Kind = "continue"
)

// kindOrder fixes the scan order so simultaneous matches resolve the same
// way every time.
var kindOrder = []Kind{Stop, Cancel, Continue}

// Match is one detected command occurrence.
type Match struct {
	Kind   Kind
	Phrase string
	At     time.Time
}

type Config struct {
	Enabled        bool
	Aliases        map[Kind][]string
	WindowSeconds  float64
	CharsPerSecond int
	Cooldown       time.Duration
}

func DefaultConfig() Config {
	return Config{
		Enabled: true,
		Aliases: map[Kind][]string{
			Stop:     {"stop recording", "stop dictation", "stop listening"},
			Cancel:   {"cancel recording", "cancel dictation", "discard that"},
			Continue: {"keep recording", "keep going"},
		},
		WindowSeconds:  6,
		CharsPerSecond: 15,
		Cooldown:       2 * time.Second,
	}
}

// Detector watches transcript deltas for command phrases over a rolling
// window, with a cooldown so one utterance fires at most one event.
type Detector struct {
	cfg     Config
	window  int
	aliases map[Kind][]string

	stripRes []*regexp.Regexp

	mu       sync.Mutex
	buf      strings.Builder
	lastFire time.Time

	now func() time.Time
}

func NewDetector(cfg Config) *Detector {
	window := int(cfg.WindowSeconds * float64(cfg.CharsPerSecond))
	if window <= 0 {
		window = 90
	}

	// Longest alias first so "stop recording now" cannot fire on a shorter
	// alias that is its prefix.
	aliases := make(map[Kind][]string, len(cfg.Aliases))
	for kind, list := range cfg.Aliases {
		sorted := make([]string, len(list))
		for i, a := range list {
			sorted[i] = strings.ToLower(a)
		}
		sort.Slice(sorted, func(i, j int) bool { return len(sorted[i]) > len(sorted[j]) })
		aliases[kind] = sorted
	}

	all := make([]string, 0, 8)
	for _, kind := range kindOrder {
		all = append(all, aliases[kind]...)
	}
	sort.Slice(all, func(i, j int) bool { return len(all[i]) > len(all[j]) })
	stripRes := make([]*regexp.Regexp, 0, len(all))
	for _, alias := range all {
		stripRes = append(stripRes, regexp.MustCompile(`(?i)\b`+regexp.QuoteMeta(alias)+`\b`))
	}

	return &Detector{
		cfg:      cfg,
		window:   window,
		aliases:  aliases,
		stripRes: stripRes,
		now:      time.Now,
	}
}

// ProcessDelta appends the delta to the rolling buffer and scans it for a
// command phrase. It returns nil while the cooldown from the previous match
// is active. On a match the buffer is cleared so the same utterance cannot
// fire twice.
func (d *Detector) ProcessDelta(text string) *Match {
	if !d.cfg.Enabled || text == "" {
		return nil
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	d.buf.WriteString(text)
	if d.buf.Len() > d.window {
		trimmed := d.buf.String()
		trimmed = trimmed[d.buf.Len()-d.window:]
		d.buf.Reset()
		d.buf.WriteString(trimmed)
	}

	now := d.now()
	if !d.lastFire.IsZero() && now.Sub(d.lastFire) < d.cfg.Cooldown {
		return nil
	}

	haystack := strings.ToLower(d.buf.String())
	for _, kind := range kindOrder {
		for _, alias := range d.aliases[kind] {
			if strings.Contains(haystack, alias) {
				d.lastFire = now
				d.buf.Reset()
				log.Printf("Command: detected %q (%s)", alias, kind)
				return &Match{Kind: kind, Phrase: alias, At: now}
			}
		}
	}
	return nil
}

// Reset clears the rolling buffer, typically at session start.
func (d *Detector) Reset() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.buf.Reset()
}

// Strip removes every known command phrase from a finished transcript and
// collapses the whitespace left behind. An empty result means the user said
// nothing but commands; callers must treat that as no content.
func (d *Detector) Strip(transcript string) string {
	if transcript == "" {
		return ""
	}

	out := transcript
	for _, re := range d.stripRes {
		out = re.ReplaceAllString(out, " ")
	}

	out = strings.Join(strings.Fields(out), " ")
	return strings.TrimSpace(out)
}
