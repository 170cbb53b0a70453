package transcribe

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
)

var testUpgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

// fakeServer runs a websocket transcription endpoint that performs the
// session handshake, then hands the connection to script.
type fakeServer struct {
	srv *httptest.Server

	mu       sync.Mutex
	authSeen string
	modelQ   string
}

func newFakeServer(t *testing.T, script func(conn *websocket.Conn)) *fakeServer {
	t.Helper()

	fs := &fakeServer{}
	fs.srv = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fs.mu.Lock()
		fs.authSeen = r.Header.Get("Authorization")
		fs.modelQ = r.URL.Query().Get("model")
		fs.mu.Unlock()

		conn, err := testUpgrader.Upgrade(w, r, nil)
		if err != nil {
			t.Errorf("upgrade failed: %v", err)
			return
		}
		defer conn.Close()

		// Handshake: expect session.update, acknowledge it.
		var update sessionUpdate
		if err := conn.ReadJSON(&update); err != nil {
			t.Errorf("read session config: %v", err)
			return
		}
		if update.Type != "session.update" {
			t.Errorf("first message type = %q, want session.update", update.Type)
		}

		conn.WriteJSON(map[string]any{"type": evSessionCreated, "session": map[string]string{"id": "sess_test"}})
		conn.WriteJSON(map[string]any{"type": evSessionUpdated})

		if script != nil {
			script(conn)
		} else {
			// Hold the connection open until the client goes away.
			for {
				if _, _, err := conn.ReadMessage(); err != nil {
					return
				}
			}
		}
	}))
	t.Cleanup(fs.srv.Close)
	return fs
}

func (fs *fakeServer) url() string {
	return "ws" + strings.TrimPrefix(fs.srv.URL, "http")
}

func testClientConfig(url string) Config {
	cfg := DefaultConfig()
	cfg.URL = url
	cfg.APIKey = "test-key"
	cfg.HandshakeTimeout = 2 * time.Second
	return cfg
}

func TestConnectHandshake(t *testing.T) {
	fs := newFakeServer(t, nil)

	c := NewClient(testClientConfig(fs.url()), Callbacks{})
	ctx, cancel := testCtx(t)
	defer cancel()

	if err := c.Connect(ctx, 1); err != nil {
		t.Fatalf("Connect failed: %v", err)
	}
	defer c.Disconnect()

	if got := c.State(); got != StateStreaming {
		t.Errorf("state = %s, want streaming", got)
	}

	fs.mu.Lock()
	defer fs.mu.Unlock()
	if fs.authSeen != "Bearer test-key" {
		t.Errorf("auth header = %q", fs.authSeen)
	}
	if fs.modelQ != "gpt-4o-transcribe" {
		t.Errorf("model query = %q", fs.modelQ)
	}
}

func TestConnectFailsFast(t *testing.T) {
	cfg := testClientConfig("ws://127.0.0.1:1")
	c := NewClient(cfg, Callbacks{})
	ctx, cancel := testCtx(t)
	defer cancel()

	err := c.Connect(ctx, 1)
	if !errors.Is(err, ErrConnectionFailed) {
		t.Fatalf("err = %v, want ErrConnectionFailed", err)
	}
	if got := c.State(); got != StateDisconnected {
		t.Errorf("state = %s, want disconnected", got)
	}
}

func TestHandshakeRejected(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := testUpgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()

		var update sessionUpdate
		conn.ReadJSON(&update)
		conn.WriteJSON(map[string]any{
			"type":  evError,
			"error": map[string]string{"code": "bad_session", "message": "no"},
		})
	}))
	defer srv.Close()

	c := NewClient(testClientConfig("ws"+strings.TrimPrefix(srv.URL, "http")), Callbacks{})
	ctx, cancel := testCtx(t)
	defer cancel()

	if err := c.Connect(ctx, 1); err == nil {
		t.Fatal("Connect should fail when the server rejects the session config")
	}
}

func TestDeltasAndFinalInOrder(t *testing.T) {
	fs := newFakeServer(t, func(conn *websocket.Conn) {
		conn.WriteJSON(map[string]any{"type": evTranscriptDelta, "delta": "hello "})
		conn.WriteJSON(map[string]any{"type": evTranscriptDelta, "delta": "world"})
		conn.WriteJSON(map[string]any{"type": evTranscriptDone, "transcript": "hello world"})
		// A duplicate final must be swallowed.
		conn.WriteJSON(map[string]any{"type": evTranscriptDone, "transcript": "again"})
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	})

	var mu sync.Mutex
	var deltas []string
	var finals []string
	finalCh := make(chan struct{}, 2)

	c := NewClient(testClientConfig(fs.url()), Callbacks{
		OnDelta: func(text string) {
			mu.Lock()
			deltas = append(deltas, text)
			mu.Unlock()
		},
		OnFinal: func(text string) {
			mu.Lock()
			finals = append(finals, text)
			mu.Unlock()
			finalCh <- struct{}{}
		},
	})

	ctx, cancel := testCtx(t)
	defer cancel()
	if err := c.Connect(ctx, 1); err != nil {
		t.Fatalf("Connect failed: %v", err)
	}
	defer c.Disconnect()

	select {
	case <-finalCh:
	case <-time.After(2 * time.Second):
		t.Fatal("final never arrived")
	}
	// Allow the duplicate a moment to (not) arrive.
	time.Sleep(100 * time.Millisecond)

	mu.Lock()
	defer mu.Unlock()
	if len(deltas) != 2 || deltas[0] != "hello " || deltas[1] != "world" {
		t.Errorf("deltas = %v", deltas)
	}
	if len(finals) != 1 || finals[0] != "hello world" {
		t.Errorf("finals = %v, want exactly one", finals)
	}
}

func TestMalformedEventSkipped(t *testing.T) {
	fs := newFakeServer(t, func(conn *websocket.Conn) {
		conn.WriteMessage(websocket.TextMessage, []byte("{not json"))
		conn.WriteJSON(map[string]any{"type": evTranscriptDelta, "delta": "still alive"})
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	})

	deltaCh := make(chan string, 1)
	c := NewClient(testClientConfig(fs.url()), Callbacks{
		OnDelta: func(text string) { deltaCh <- text },
	})

	ctx, cancel := testCtx(t)
	defer cancel()
	if err := c.Connect(ctx, 1); err != nil {
		t.Fatalf("Connect failed: %v", err)
	}
	defer c.Disconnect()

	select {
	case text := <-deltaCh:
		if text != "still alive" {
			t.Errorf("delta = %q", text)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("delta after malformed event never arrived")
	}
}

func TestServerErrorSurfaced(t *testing.T) {
	fs := newFakeServer(t, func(conn *websocket.Conn) {
		conn.WriteJSON(map[string]any{
			"type":  evError,
			"error": map[string]string{"code": "rate_limited", "message": "slow down"},
		})
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	})

	errCh := make(chan error, 1)
	c := NewClient(testClientConfig(fs.url()), Callbacks{
		OnError: func(err error) { errCh <- err },
	})

	ctx, cancel := testCtx(t)
	defer cancel()
	if err := c.Connect(ctx, 1); err != nil {
		t.Fatalf("Connect failed: %v", err)
	}
	defer c.Disconnect()

	select {
	case err := <-errCh:
		if !strings.Contains(err.Error(), "rate_limited") {
			t.Errorf("err = %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("server error never surfaced")
	}
}

func TestSendChunkAndCommit(t *testing.T) {
	type received struct {
		kind  string
		audio []byte
	}
	recvCh := make(chan received, 8)

	fs := newFakeServer(t, func(conn *websocket.Conn) {
		for {
			_, msg, err := conn.ReadMessage()
			if err != nil {
				return
			}
			var ev struct {
				Type  string `json:"type"`
				Audio string `json:"audio"`
			}
			if json.Unmarshal(msg, &ev) != nil {
				continue
			}
			audio, _ := base64.StdEncoding.DecodeString(ev.Audio)
			recvCh <- received{kind: ev.Type, audio: audio}
		}
	})

	c := NewClient(testClientConfig(fs.url()), Callbacks{})
	ctx, cancel := testCtx(t)
	defer cancel()
	if err := c.Connect(ctx, 1); err != nil {
		t.Fatalf("Connect failed: %v", err)
	}
	defer c.Disconnect()

	chunk := []byte{1, 2, 3, 4}
	if err := c.SendChunk(chunk); err != nil {
		t.Fatalf("SendChunk failed: %v", err)
	}
	if err := c.Commit(); err != nil {
		t.Fatalf("Commit failed: %v", err)
	}

	for _, want := range []string{"input_audio_buffer.append", "input_audio_buffer.commit"} {
		select {
		case got := <-recvCh:
			if got.kind != want {
				t.Errorf("message kind = %q, want %q", got.kind, want)
			}
			if want == "input_audio_buffer.append" && string(got.audio) != string(chunk) {
				t.Errorf("audio payload = %v, want %v", got.audio, chunk)
			}
		case <-time.After(2 * time.Second):
			t.Fatalf("server never received %s", want)
		}
	}
}

func TestSendChunkRequiresStreaming(t *testing.T) {
	c := NewClient(testClientConfig("ws://unused"), Callbacks{})
	if err := c.SendChunk([]byte{1}); err == nil {
		t.Error("SendChunk before Connect should error")
	}
}

func TestBackpressureDropsAtCeiling(t *testing.T) {
	fs := newFakeServer(t, nil)

	cfg := testClientConfig(fs.url())
	cfg.MaxInFlight = 4
	c := NewClient(cfg, Callbacks{})

	ctx, cancel := testCtx(t)
	defer cancel()
	if err := c.Connect(ctx, 1); err != nil {
		t.Fatalf("Connect failed: %v", err)
	}
	defer c.Disconnect()

	// Simulate a stalled writer sitting at the ceiling.
	c.inFlight.Store(cfg.MaxInFlight)

	if err := c.SendChunk([]byte{1, 2}); err != nil {
		t.Errorf("a dropped chunk is not an error: %v", err)
	}
	if got := c.InFlight(); got != cfg.MaxInFlight {
		t.Errorf("in-flight = %d, want unchanged %d (chunk dropped, not queued)", got, cfg.MaxInFlight)
	}
}

func TestDisconnectIdempotent(t *testing.T) {
	fs := newFakeServer(t, nil)

	closedCh := make(chan struct{}, 4)
	c := NewClient(testClientConfig(fs.url()), Callbacks{
		OnClosed: func() { closedCh <- struct{}{} },
	})

	ctx, cancel := testCtx(t)
	defer cancel()
	if err := c.Connect(ctx, 1); err != nil {
		t.Fatalf("Connect failed: %v", err)
	}

	var wg sync.WaitGroup
	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			c.Disconnect()
		}()
	}
	wg.Wait()

	if got := c.State(); got != StateDisconnected {
		t.Errorf("state = %s, want disconnected", got)
	}
	if got := c.InFlight(); got != 0 {
		t.Errorf("in-flight = %d after disconnect, want 0", got)
	}

	time.Sleep(50 * time.Millisecond)
	if got := len(closedCh); got != 1 {
		t.Errorf("OnClosed fired %d times, want exactly 1", got)
	}
}

func TestDisconnectFromFinalCallback(t *testing.T) {
	fs := newFakeServer(t, func(conn *websocket.Conn) {
		conn.WriteJSON(map[string]any{"type": evTranscriptDone, "transcript": "done"})
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	})

	// The session orchestrator tears the client down from inside the final
	// callback; that must complete instead of deadlocking the receive path.
	done := make(chan struct{})
	var c *Client
	c = NewClient(testClientConfig(fs.url()), Callbacks{
		OnFinal: func(string) {
			c.Disconnect()
			close(done)
		},
	})

	ctx, cancel := testCtx(t)
	defer cancel()
	if err := c.Connect(ctx, 1); err != nil {
		t.Fatalf("Connect failed: %v", err)
	}

	select {
	case <-done:
	case <-time.After(3 * time.Second):
		t.Fatal("Disconnect called from OnFinal never returned")
	}
	if got := c.State(); got != StateDisconnected {
		t.Errorf("state = %s, want disconnected", got)
	}
}

func TestDisconnectFromErrorCallback(t *testing.T) {
	fs := newFakeServer(t, func(conn *websocket.Conn) {
		conn.Close()
	})

	// Transport errors also funnel into Disconnect from inside the error
	// callback; the teardown must complete rather than wait on itself.
	var once sync.Once
	done := make(chan struct{})
	var c *Client
	c = NewClient(testClientConfig(fs.url()), Callbacks{
		OnError: func(error) {
			c.Disconnect()
			once.Do(func() { close(done) })
		},
	})

	ctx, cancel := testCtx(t)
	defer cancel()
	if err := c.Connect(ctx, 1); err != nil {
		t.Fatalf("Connect failed: %v", err)
	}

	select {
	case <-done:
	case <-time.After(3 * time.Second):
		t.Fatal("Disconnect called from OnError never returned")
	}
	if got := c.State(); got != StateDisconnected {
		t.Errorf("state = %s, want disconnected", got)
	}
}

func TestServerDisconnectFailsSession(t *testing.T) {
	fs := newFakeServer(t, func(conn *websocket.Conn) {
		conn.Close()
	})

	errCh := make(chan error, 1)
	c := NewClient(testClientConfig(fs.url()), Callbacks{
		OnError: func(err error) {
			select {
			case errCh <- err:
			default:
			}
		},
	})

	ctx, cancel := testCtx(t)
	defer cancel()
	if err := c.Connect(ctx, 1); err != nil {
		t.Fatalf("Connect failed: %v", err)
	}

	select {
	case <-errCh:
	case <-time.After(2 * time.Second):
		t.Fatal("connection loss never surfaced as an error")
	}
}

func testCtx(t *testing.T) (context.Context, context.CancelFunc) {
	t.Helper()
	return context.WithTimeout(context.Background(), 5*time.Second)
}
