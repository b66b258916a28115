package session

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/tidwall/gjson"
)

var testUpgrader = websocket.Upgrader{
	CheckOrigin: func(*http.Request) bool { return true },
}

// fakeBackend acks the session configuration and then hands each later
// inbound message to onMessage. Send pushes a raw event to the client.
type fakeBackend struct {
	srv        *httptest.Server
	onMessage  func(conn *websocket.Conn, data []byte)
	configured chan map[string]any
}

func newFakeBackend(t *testing.T) *fakeBackend {
	t.Helper()
	fb := &fakeBackend{configured: make(chan map[string]any, 1)}
	fb.srv = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := testUpgrader.Upgrade(w, r, nil)
		if err != nil {
			t.Errorf("upgrade: %v", err)
			return
		}
		defer conn.Close()
		for {
			_, data, err := conn.ReadMessage()
			if err != nil {
				return
			}
			if gjson.GetBytes(data, "type").String() == "session.update" {
				var msg map[string]any
				_ = json.Unmarshal(data, &msg)
				fb.configured <- msg
				_ = conn.WriteMessage(websocket.TextMessage, []byte(`{"type":"session.updated"}`))
				continue
			}
			if fb.onMessage != nil {
				fb.onMessage(conn, data)
			}
		}
	}))
	t.Cleanup(fb.srv.Close)
	return fb
}

func (fb *fakeBackend) url() string {
	return "ws://" + strings.TrimPrefix(fb.srv.URL, "http://")
}

func newTestRealtime(t *testing.T, fb *fakeBackend) *Realtime {
	t.Helper()
	r := NewRealtime(RealtimeConfig{
		APIKey:       "sk-test",
		Model:        "gpt-4o-realtime-preview-2024-10-01",
		Voice:        "alloy",
		Instructions: "sys",
		Temperature:  0.8,
		URL:          fb.url(),
		SettleDelay:  time.Millisecond,
	})
	if err := r.Connect(context.Background()); err != nil {
		t.Fatalf("Connect: %v", err)
	}
	t.Cleanup(func() { _ = r.Close() })
	return r
}

func waitEvent(t *testing.T, r *Realtime, want EventType) Event {
	t.Helper()
	deadline := time.After(2 * time.Second)
	for {
		select {
		case ev, ok := <-r.Events():
			if !ok {
				t.Fatalf("events channel closed while waiting for %s", want)
			}
			if ev.Type == want {
				return ev
			}
		case <-deadline:
			t.Fatalf("timed out waiting for %s", want)
		}
	}
}

func TestRealtimeHandshake(t *testing.T) {
	fb := newFakeBackend(t)
	r := newTestRealtime(t, fb)

	waitEvent(t, r, EventReady)
	if r.State() != StateReady {
		t.Fatalf("expected Ready, got %s", r.State())
	}

	cfg := <-fb.configured
	session, ok := cfg["session"].(map[string]any)
	if !ok {
		t.Fatalf("no session object in configuration: %v", cfg)
	}
	if session["input_audio_format"] != "g711_ulaw" || session["output_audio_format"] != "g711_ulaw" {
		t.Fatalf("unexpected audio formats: %v", session)
	}
	if session["voice"] != "alloy" {
		t.Fatalf("unexpected voice: %v", session["voice"])
	}
}

func TestRealtimeForwardAudioWaitsForReady(t *testing.T) {
	fb := newFakeBackend(t)
	received := make(chan string, 1)
	fb.onMessage = func(_ *websocket.Conn, data []byte) {
		if gjson.GetBytes(data, "type").String() == "input_audio_buffer.append" {
			received <- gjson.GetBytes(data, "audio").String()
		}
	}
	r := newTestRealtime(t, fb)

	// Issued before the backend acks; must suspend, then go through.
	if err := r.ForwardAudio(context.Background(), "c2lsZW5jZQ=="); err != nil {
		t.Fatalf("ForwardAudio: %v", err)
	}

	select {
	case got := <-received:
		if got != "c2lsZW5jZQ==" {
			t.Fatalf("payload altered in transit: %q", got)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("audio never reached the backend")
	}
}

func TestRealtimeMediaDeltaCarriesStreamSID(t *testing.T) {
	fb := newFakeBackend(t)
	fb.onMessage = func(conn *websocket.Conn, data []byte) {
		if gjson.GetBytes(data, "type").String() == "input_audio_buffer.append" {
			_ = conn.WriteMessage(websocket.TextMessage,
				[]byte(`{"type":"response.audio.delta","delta":"ZGVsdGE="}`))
		}
	}
	r := newTestRealtime(t, fb)
	r.SetStreamSID("ST123")

	if err := r.ForwardAudio(context.Background(), "c2lsZW5jZQ=="); err != nil {
		t.Fatalf("ForwardAudio: %v", err)
	}

	ev := waitEvent(t, r, EventMedia)
	if ev.Media.StreamSID != "ST123" {
		t.Fatalf("delta not tagged with stream SID: %+v", ev.Media)
	}
	if ev.Media.Payload != "ZGVsdGE=" {
		t.Fatalf("delta payload altered: %q", ev.Media.Payload)
	}
}

func TestRealtimeBackendErrorEmitted(t *testing.T) {
	fb := newFakeBackend(t)
	fb.onMessage = func(conn *websocket.Conn, data []byte) {
		if gjson.GetBytes(data, "type").String() == "input_audio_buffer.append" {
			_ = conn.WriteMessage(websocket.TextMessage,
				[]byte(`{"type":"error","error":{"message":"buffer too small"}}`))
		}
	}
	r := newTestRealtime(t, fb)

	if err := r.ForwardAudio(context.Background(), "c2lsZW5jZQ=="); err != nil {
		t.Fatalf("ForwardAudio: %v", err)
	}
	ev := waitEvent(t, r, EventError)
	if ev.Err == nil || !strings.Contains(ev.Err.Error(), "buffer too small") {
		t.Fatalf("unexpected error event: %v", ev.Err)
	}
}

func TestRealtimeForwardBeforeConnect(t *testing.T) {
	r := NewRealtime(RealtimeConfig{APIKey: "sk-test", Model: "m"})
	if err := r.ForwardAudio(context.Background(), "x"); !errors.Is(err, ErrNotOpen) {
		t.Fatalf("expected ErrNotOpen, got %v", err)
	}
}

func TestRealtimeCloseIdempotent(t *testing.T) {
	fb := newFakeBackend(t)
	r := newTestRealtime(t, fb)
	waitEvent(t, r, EventReady)

	if err := r.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if err := r.Close(); err != nil {
		t.Fatalf("second Close: %v", err)
	}
	if r.State() != StateClosed {
		t.Fatalf("expected Closed, got %s", r.State())
	}

	waitEvent(t, r, EventClose)
	if _, ok := <-r.Events(); ok {
		t.Fatal("events channel still open after close event")
	}

	if err := r.ForwardAudio(context.Background(), "x"); !errors.Is(err, ErrSessionClosed) {
		t.Fatalf("expected ErrSessionClosed, got %v", err)
	}
}

func TestRealtimeCloseUnblocksPendingForward(t *testing.T) {
	// A backend that never acks keeps the caller suspended on the ready
	// latch until the session is torn down.
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := testUpgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}))
	defer srv.Close()

	r := NewRealtime(RealtimeConfig{
		APIKey:      "sk-test",
		Model:       "m",
		URL:         "ws://" + strings.TrimPrefix(srv.URL, "http://"),
		SettleDelay: time.Millisecond,
	})
	if err := r.Connect(context.Background()); err != nil {
		t.Fatalf("Connect: %v", err)
	}

	errc := make(chan error, 1)
	go func() { errc <- r.ForwardAudio(context.Background(), "x") }()

	time.Sleep(20 * time.Millisecond)
	_ = r.Close()

	select {
	case err := <-errc:
		if !errors.Is(err, ErrSessionClosed) {
			t.Fatalf("expected ErrSessionClosed, got %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("pending forward leaked past close")
	}
}
