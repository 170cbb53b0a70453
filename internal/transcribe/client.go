package transcribe

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net/http"
	"net/url"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
)

// State is the connection lifecycle of a streaming client.
type State string

const (
	StateDisconnected State = "disconnected"
	StateConnecting   State = "connecting"
	StateConfiguring  State = "configuring"
	StateStreaming    State = "streaming"
	StateClosing      State = "closing"
)

var ErrConnectionFailed = errors.New("connection failed")

type Config struct {
	URL      string
	APIKey   string
	Model    string
	Language string

	MaxInFlight      int64
	PingInterval     time.Duration
	HandshakeTimeout time.Duration

	VADThreshold         float64
	VADPrefixPaddingMs   int
	VADSilenceDurationMs int
	NoiseReduction       string
}

func DefaultConfig() Config {
	return Config{
		URL:                  "wss://api.openai.com/v1/realtime",
		Model:                "gpt-4o-transcribe",
		MaxInFlight:          100,
		PingInterval:         30 * time.Second,
		HandshakeTimeout:     10 * time.Second,
		VADThreshold:         0.5,
		VADPrefixPaddingMs:   300,
		VADSilenceDurationMs: 500,
	}
}

// Callbacks deliver client events to the session orchestrator. OnFinal fires
// at most once per session; OnClosed fires exactly once, whichever of the
// teardown paths runs first.
type Callbacks struct {
	OnDelta  func(text string)
	OnFinal  func(text string)
	OnError  func(err error)
	OnClosed func()
}

type outbound struct {
	data  []byte
	chunk bool
}

// Client holds one persistent websocket session to the transcription
// service: connect with backoff and a configuration handshake, chunked
// audio upload guarded by an in-flight ceiling, keep-alive pings, and a
// single receive loop that surfaces deltas and finals.
type Client struct {
	cfg Config
	cb  Callbacks

	mu    sync.Mutex
	conn  *websocket.Conn
	state State

	sendCh   chan outbound
	eventCh  chan serverEvent
	inFlight atomic.Int64

	finalOnce  sync.Once
	closeOnce  sync.Once
	closedOnce sync.Once

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

func NewClient(cfg Config, cb Callbacks) *Client {
	if cfg.MaxInFlight <= 0 {
		cfg.MaxInFlight = 100
	}
	if cfg.PingInterval <= 0 {
		cfg.PingInterval = 30 * time.Second
	}
	if cfg.HandshakeTimeout <= 0 {
		cfg.HandshakeTimeout = 10 * time.Second
	}
	return &Client{
		cfg:     cfg,
		cb:      cb,
		state:   StateDisconnected,
		sendCh:  make(chan outbound, cfg.MaxInFlight+8),
		eventCh: make(chan serverEvent, 32),
	}
}

func (c *Client) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// InFlight reports the number of chunks handed to the transport and not yet
// written out.
func (c *Client) InFlight() int64 {
	return c.inFlight.Load()
}

func (c *Client) setState(s State) {
	c.mu.Lock()
	c.state = s
	c.mu.Unlock()
}

// Connect dials the service with exponential backoff (1s, 2s, 4s, ...) up to
// maxAttempts. Each attempt performs the full handshake: open the socket,
// send the session configuration and wait for the server acknowledgment.
// Only after the acknowledgment does the client enter streaming.
func (c *Client) Connect(ctx context.Context, maxAttempts int) error {
	if maxAttempts <= 0 {
		maxAttempts = 1
	}

	c.ctx, c.cancel = context.WithCancel(ctx)
	c.setState(StateConnecting)

	var lastErr error
	for attempt := 0; attempt < maxAttempts; attempt++ {
		if attempt > 0 {
			delay := time.Second << (attempt - 1)
			log.Printf("voxd-stream: retrying connect in %v (attempt %d/%d)", delay, attempt+1, maxAttempts)
			select {
			case <-c.ctx.Done():
				c.setState(StateDisconnected)
				return c.ctx.Err()
			case <-time.After(delay):
			}
		}

		conn, err := c.handshake()
		if err != nil {
			lastErr = err
			log.Printf("voxd-stream: connect attempt %d failed: %v", attempt+1, err)
			continue
		}

		c.mu.Lock()
		c.conn = conn
		c.state = StateStreaming
		c.mu.Unlock()

		c.wg.Add(3)
		go c.readLoop(conn)
		go c.writeLoop(conn)
		go c.keepAlive(conn)
		go c.dispatchLoop()

		log.Printf("voxd-stream: streaming, model=%s language=%q", c.cfg.Model, c.cfg.Language)
		return nil
	}

	c.setState(StateDisconnected)
	return fmt.Errorf("%w after %d attempts: %v", ErrConnectionFailed, maxAttempts, lastErr)
}

// handshake dials, sends session.update and reads until the server
// acknowledges the configuration.
func (c *Client) handshake() (*websocket.Conn, error) {
	wsURL, err := c.buildURL()
	if err != nil {
		return nil, fmt.Errorf("build websocket url: %w", err)
	}

	headers := http.Header{}
	if c.cfg.APIKey != "" {
		headers.Set("Authorization", "Bearer "+c.cfg.APIKey)
	}

	conn, resp, err := websocket.DefaultDialer.DialContext(c.ctx, wsURL, headers)
	if err != nil {
		if resp != nil {
			return nil, fmt.Errorf("websocket dial: %w (status %d)", err, resp.StatusCode)
		}
		return nil, fmt.Errorf("websocket dial: %w", err)
	}

	c.setState(StateConfiguring)

	if err := conn.WriteJSON(c.sessionConfig()); err != nil {
		conn.Close()
		return nil, fmt.Errorf("send session config: %w", err)
	}

	deadline := time.Now().Add(c.cfg.HandshakeTimeout)
	_ = conn.SetReadDeadline(deadline)
	for {
		var event serverEvent
		if err := conn.ReadJSON(&event); err != nil {
			conn.Close()
			return nil, fmt.Errorf("await session ack: %w", err)
		}
		switch event.Type {
		case evSessionCreated:
			if event.Session != nil {
				log.Printf("voxd-stream: session created, id=%s", event.Session.ID)
			}
		case evSessionUpdated:
			_ = conn.SetReadDeadline(time.Time{})
			return conn, nil
		case evError:
			conn.Close()
			return nil, fmt.Errorf("session config rejected: %s", serverErrString(event.Error))
		default:
			log.Printf("voxd-stream: ignoring %q during handshake", event.Type)
		}
	}
}

func (c *Client) sessionConfig() sessionUpdate {
	cfg := sessionUpdate{
		Type: "session.update",
		Session: sessionConfig{
			Modalities:       []string{"text"},
			InputAudioFormat: "pcm16",
			InputAudioTranscription: &transcriptionConfig{
				Model:    c.cfg.Model,
				Language: c.cfg.Language,
			},
			TurnDetection: &turnDetection{
				Type:              "server_vad",
				Threshold:         c.cfg.VADThreshold,
				PrefixPaddingMs:   c.cfg.VADPrefixPaddingMs,
				SilenceDurationMs: c.cfg.VADSilenceDurationMs,
				CreateResponse:    false,
			},
		},
	}
	if c.cfg.NoiseReduction != "" {
		cfg.Session.InputAudioNoiseReduction = &noiseReduction{Type: c.cfg.NoiseReduction}
	}
	return cfg
}

func (c *Client) buildURL() (string, error) {
	u, err := url.Parse(c.cfg.URL)
	if err != nil {
		return "", fmt.Errorf("parse url: %w", err)
	}
	q := u.Query()
	q.Set("model", c.cfg.Model)
	u.RawQuery = q.Encode()
	return u.String(), nil
}

// SendChunk hands one audio chunk to the transport. The backpressure check
// is a non-blocking counter test: at the ceiling the chunk is dropped and
// logged so a stalled network can never block real-time capture or grow
// memory without bound.
func (c *Client) SendChunk(data []byte) error {
	c.mu.Lock()
	st := c.state
	c.mu.Unlock()
	if st != StateStreaming {
		return fmt.Errorf("not streaming (state=%s)", st)
	}

	if c.inFlight.Load() >= c.cfg.MaxInFlight {
		log.Printf("voxd-stream: in-flight ceiling %d reached, dropping %d byte chunk",
			c.cfg.MaxInFlight, len(data))
		return nil
	}

	msg, err := json.Marshal(audioAppend{
		Type:  "input_audio_buffer.append",
		Audio: base64.StdEncoding.EncodeToString(data),
	})
	if err != nil {
		return fmt.Errorf("encode chunk: %w", err)
	}

	c.inFlight.Add(1)
	select {
	case c.sendCh <- outbound{data: msg, chunk: true}:
		return nil
	default:
		c.inFlight.Add(-1)
		log.Printf("voxd-stream: send queue full, dropping %d byte chunk", len(data))
		return nil
	}
}

// Commit asks the server to commit the buffered audio. Unlike chunks, a
// commit is never dropped under backpressure.
func (c *Client) Commit() error {
	c.mu.Lock()
	st := c.state
	c.mu.Unlock()
	if st != StateStreaming {
		return fmt.Errorf("not streaming (state=%s)", st)
	}

	msg, err := json.Marshal(audioCommit{Type: "input_audio_buffer.commit"})
	if err != nil {
		return err
	}
	select {
	case c.sendCh <- outbound{data: msg}:
		return nil
	case <-c.ctx.Done():
		return c.ctx.Err()
	}
}

func (c *Client) writeLoop(conn *websocket.Conn) {
	defer c.wg.Done()

	for {
		select {
		case <-c.ctx.Done():
			return
		case out := <-c.sendCh:
			err := conn.WriteMessage(websocket.TextMessage, out.data)
			if out.chunk {
				c.inFlight.Add(-1)
			}
			if err != nil {
				if c.ctx.Err() != nil {
					return
				}
				c.fail(fmt.Errorf("websocket write: %w", err))
				return
			}
		}
	}
}

func (c *Client) keepAlive(conn *websocket.Conn) {
	defer c.wg.Done()

	ticker := time.NewTicker(c.cfg.PingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-c.ctx.Done():
			return
		case <-ticker.C:
			deadline := time.Now().Add(5 * time.Second)
			if err := conn.WriteControl(websocket.PingMessage, nil, deadline); err != nil {
				// Not fatal: connection loss shows up in the receive loop.
				log.Printf("voxd-stream: ping failed: %v", err)
			}
		}
	}
}

// readLoop is the single receive loop. Events arrive in server order and are
// handed to the dispatch goroutine in that order; malformed payloads are
// logged and skipped.
func (c *Client) readLoop(conn *websocket.Conn) {
	defer c.wg.Done()

	for {
		_, message, err := conn.ReadMessage()
		if err != nil {
			if c.ctx.Err() != nil {
				return
			}
			c.fail(fmt.Errorf("websocket read: %w", err))
			return
		}

		var event serverEvent
		if err := json.Unmarshal(message, &event); err != nil {
			log.Printf("voxd-stream: malformed event, skipping: %v", err)
			continue
		}
		select {
		case c.eventCh <- event:
		case <-c.ctx.Done():
			return
		}
	}
}

// dispatchLoop delivers server events to the callbacks off the read loop, so
// a callback may call Disconnect without deadlocking against the goroutine
// that invoked it. It exits when Disconnect closes the event channel.
func (c *Client) dispatchLoop() {
	for event := range c.eventCh {
		c.handleEvent(event)
	}
}

func (c *Client) handleEvent(event serverEvent) {
	switch event.Type {
	case evSessionCreated, evSessionUpdated:
		log.Printf("voxd-stream: %s", event.Type)

	case evSpeechStarted:
		log.Printf("voxd-stream: speech started")

	case evSpeechStopped:
		log.Printf("voxd-stream: speech stopped, item=%s", event.ItemID)

	case evAudioCommitted:
		log.Printf("voxd-stream: audio committed, item=%s", event.ItemID)

	case evTranscriptDelta:
		if event.Delta != "" && c.cb.OnDelta != nil {
			c.cb.OnDelta(event.Delta)
		}

	case evTranscriptDone:
		c.finalOnce.Do(func() {
			log.Printf("voxd-stream: transcription completed: %q", event.Transcript)
			if c.cb.OnFinal != nil {
				c.cb.OnFinal(event.Transcript)
			}
		})

	case evTranscriptFail, evError:
		msg := serverErrString(event.Error)
		log.Printf("voxd-stream: server error: %s", msg)
		if c.cb.OnError != nil {
			c.cb.OnError(fmt.Errorf("server: %s", msg))
		}

	default:
		// Forward compatibility: unknown kinds are logged, never fatal.
		log.Printf("voxd-stream: unhandled event type %q", event.Type)
	}
}

// fail reports a transport error and tears the session down. Both run off
// this goroutine: the callback may itself call Disconnect, and Disconnect
// waits for the loop that called fail.
func (c *Client) fail(err error) {
	log.Printf("voxd-stream: %v", err)
	go func() {
		if c.cb.OnError != nil {
			c.cb.OnError(err)
		}
		c.Disconnect()
	}()
}

// Disconnect is idempotent and safe from any goroutine at any time,
// including from inside a delta/final/error callback: it cancels the loops,
// closes the socket, zeroes the in-flight counter and fires the
// session-ended callback exactly once. Every failure and cancellation path
// in the daemon funnels into this routine.
func (c *Client) Disconnect() {
	c.closeOnce.Do(func() {
		c.setState(StateClosing)

		if c.cancel != nil {
			c.cancel()
		}

		c.mu.Lock()
		conn := c.conn
		c.conn = nil
		c.mu.Unlock()

		if conn != nil {
			deadline := time.Now().Add(time.Second)
			_ = conn.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), deadline)
			conn.Close()
		}

		// The read loop has exited once Wait returns, so nothing writes to
		// the event channel anymore; closing it drains the dispatcher.
		c.wg.Wait()
		close(c.eventCh)
		c.inFlight.Store(0)
		c.setState(StateDisconnected)
		log.Printf("voxd-stream: closed")
	})

	c.closedOnce.Do(func() {
		if c.cb.OnClosed != nil {
			c.cb.OnClosed()
		}
	})
}

func serverErrString(e *serverError) string {
	if e == nil {
		return "unknown error"
	}
	if e.Code != "" {
		return fmt.Sprintf("%s: %s", e.Code, e.Message)
	}
	return e.Message
}
