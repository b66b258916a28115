package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
	"github.com/tidwall/gjson"
)

// State tracks the streaming session's backend connection.
type State int32

const (
	StateConnecting State = iota
	StateAwaitingSessionAck
	StateReady
	StateClosed
	StateFailed
)

func (s State) String() string {
	switch s {
	case StateConnecting:
		return "connecting"
	case StateAwaitingSessionAck:
		return "awaiting-session-ack"
	case StateReady:
		return "ready"
	case StateClosed:
		return "closed"
	case StateFailed:
		return "failed"
	default:
		return "unknown"
	}
}

var (
	// ErrSessionClosed reports a forward attempted against a closed or
	// failed session.
	ErrSessionClosed = errors.New("session closed")

	// ErrNotOpen reports a forward attempted before the backend connection
	// exists. Distinct from "connected but not yet ready".
	ErrNotOpen = errors.New("backend connection not open")
)

// DefaultRealtimeURL is the OpenAI Realtime API endpoint.
const DefaultRealtimeURL = "wss://api.openai.com/v1/realtime"

// defaultSettleDelay is how long to wait after the socket opens before the
// session-configuration message is sent.
const defaultSettleDelay = 250 * time.Millisecond

// RealtimeConfig configures a Realtime session.
type RealtimeConfig struct {
	APIKey       string
	Model        string
	Voice        string
	Instructions string
	Temperature  float64
	URL          string        // defaults to DefaultRealtimeURL
	SettleDelay  time.Duration // defaults to 250ms
	Dialer       *websocket.Dialer
	Logger       *slog.Logger
}

// Realtime is the streaming Model Session: its own bidirectional connection
// to the model backend, audio in, audio deltas out, configured once at
// connect time. Events flow to the relay over the Events channel.
type Realtime struct {
	cfg    RealtimeConfig
	logger *slog.Logger

	conn    *websocket.Conn
	writeMu sync.Mutex

	state  atomic.Int32
	ready  chan struct{} // closed once, when the backend acks configuration
	done   chan struct{} // closed on teardown; pending waiters fail, not leak
	events chan Event

	readyOnce sync.Once
	doneOnce  sync.Once
	closeOnce sync.Once

	mu        sync.Mutex
	streamSID string
	failErr   error
}

// NewRealtime creates a Realtime session. Connect must be called before
// audio can be forwarded.
func NewRealtime(cfg RealtimeConfig) *Realtime {
	if cfg.URL == "" {
		cfg.URL = DefaultRealtimeURL
	}
	if cfg.SettleDelay <= 0 {
		cfg.SettleDelay = defaultSettleDelay
	}
	if cfg.Dialer == nil {
		cfg.Dialer = websocket.DefaultDialer
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	r := &Realtime{
		cfg:    cfg,
		logger: logger,
		ready:  make(chan struct{}),
		done:   make(chan struct{}),
		events: make(chan Event, 64),
	}
	r.state.Store(int32(StateConnecting))
	return r
}

// State returns the session state.
func (r *Realtime) State() State {
	return State(r.state.Load())
}

// Events returns the channel the session emits ready, media, close, and
// error events on. It is closed when the backend connection is torn down.
func (r *Realtime) Events() <-chan Event {
	return r.events
}

// SetStreamSID tags the session with the call's stream identifier. The relay
// sets it once, from the start frame.
func (r *Realtime) SetStreamSID(sid string) {
	r.mu.Lock()
	r.streamSID = sid
	r.mu.Unlock()
}

// StreamSID returns the stream identifier, or "" if the start frame has not
// arrived yet.
func (r *Realtime) StreamSID() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.streamSID
}

// Connect opens the backend socket and starts the configuration handshake.
// The session becomes Ready when the backend acknowledges the configuration;
// ForwardAudio calls issued before that suspend.
func (r *Realtime) Connect(ctx context.Context) error {
	url := fmt.Sprintf("%s?model=%s", r.cfg.URL, r.cfg.Model)
	header := http.Header{}
	header.Set("Authorization", "Bearer "+r.cfg.APIKey)
	header.Set("OpenAI-Beta", "realtime=v1")

	conn, resp, err := r.cfg.Dialer.DialContext(ctx, url, header)
	if err != nil {
		r.state.Store(int32(StateFailed))
		if resp != nil {
			return fmt.Errorf("dial realtime backend: %w (status %d)", err, resp.StatusCode)
		}
		return fmt.Errorf("dial realtime backend: %w", err)
	}
	r.conn = conn

	go r.configureAfterSettle()
	go r.readLoop()
	return nil
}

// configureAfterSettle sends the one session-configuration message after a
// short settling delay.
func (r *Realtime) configureAfterSettle() {
	timer := time.NewTimer(r.cfg.SettleDelay)
	defer timer.Stop()
	select {
	case <-r.done:
		return
	case <-timer.C:
	}

	update := map[string]any{
		"type": "session.update",
		"session": map[string]any{
			"turn_detection":      map[string]string{"type": "server_vad"},
			"input_audio_format":  "g711_ulaw",
			"output_audio_format": "g711_ulaw",
			"voice":               r.cfg.Voice,
			"instructions":        r.cfg.Instructions,
			"modalities":          []string{"text", "audio"},
			"temperature":         r.cfg.Temperature,
		},
	}
	if err := r.writeJSON(update); err != nil {
		r.fail(fmt.Errorf("sending session configuration: %w", err))
		return
	}
	r.state.CompareAndSwap(int32(StateConnecting), int32(StateAwaitingSessionAck))
	r.logger.Debug("session configuration sent")
}

// readLoop is the sole reader of the backend socket, the sole writer of the
// events channel, and the goroutine that closes it.
func (r *Realtime) readLoop() {
	defer func() {
		r.teardown()
		r.mu.Lock()
		failErr := r.failErr
		r.mu.Unlock()
		if failErr != nil {
			r.events <- Event{Type: EventError, Err: failErr}
		}
		r.events <- Event{Type: EventClose}
		close(r.events)
	}()

	for {
		_, data, err := r.conn.ReadMessage()
		if err != nil {
			if r.State() != StateClosed && !websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				r.setFailErr(err)
				r.state.Store(int32(StateFailed))
			}
			return
		}
		r.handleBackendMessage(data)
	}
}

func (r *Realtime) handleBackendMessage(data []byte) {
	typ := gjson.GetBytes(data, "type").String()
	switch typ {
	case "session.updated":
		r.state.Store(int32(StateReady))
		r.readyOnce.Do(func() { close(r.ready) })
		r.events <- Event{Type: EventReady}
		r.logger.Debug("realtime session ready")

	case "response.audio.delta":
		delta := gjson.GetBytes(data, "delta").String()
		if delta == "" {
			return
		}
		r.events <- Event{Type: EventMedia, Media: MediaDelta{
			StreamSID: r.StreamSID(),
			Payload:   delta,
		}}

	case "error":
		msg := gjson.GetBytes(data, "error.message").String()
		r.events <- Event{Type: EventError, Err: fmt.Errorf("backend error: %s", msg)}

	default:
		r.logger.Debug("realtime event", "type", typ)
	}
}

// ForwardAudio relays one opaque encoded payload to the backend unmodified.
// Before the session is Ready it suspends until the ready latch opens; the
// latch is one-shot, so calls after Ready never wait. A session torn down
// while a caller is suspended fails that caller instead of leaking it.
func (r *Realtime) ForwardAudio(ctx context.Context, payload string) error {
	if r.conn == nil {
		return ErrNotOpen
	}

	if r.State() != StateReady {
		select {
		case <-r.ready:
		case <-r.done:
			return ErrSessionClosed
		case <-ctx.Done():
			return ctx.Err()
		}
	}

	select {
	case <-r.done:
		return ErrSessionClosed
	default:
	}

	if err := r.writeJSON(map[string]any{
		"type":  "input_audio_buffer.append",
		"audio": payload,
	}); err != nil {
		return fmt.Errorf("forwarding audio: %w", err)
	}
	return nil
}

// Close closes the backend connection if open. Idempotent; safe from any
// state.
func (r *Realtime) Close() error {
	r.closeOnce.Do(func() {
		if r.State() != StateFailed {
			r.state.Store(int32(StateClosed))
		}
		if r.conn != nil {
			r.writeMu.Lock()
			_ = r.conn.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
				time.Now().Add(time.Second))
			r.writeMu.Unlock()
		}
		r.teardown()
	})
	return nil
}

func (r *Realtime) writeJSON(v any) error {
	r.writeMu.Lock()
	defer r.writeMu.Unlock()
	select {
	case <-r.done:
		return ErrSessionClosed
	default:
	}
	return r.conn.WriteJSON(v)
}

func (r *Realtime) fail(err error) {
	r.setFailErr(err)
	r.state.Store(int32(StateFailed))
	r.teardown()
}

func (r *Realtime) setFailErr(err error) {
	r.mu.Lock()
	if r.failErr == nil {
		r.failErr = err
	}
	r.mu.Unlock()
}

func (r *Realtime) teardown() {
	r.doneOnce.Do(func() { close(r.done) })
	if r.conn != nil {
		_ = r.conn.Close()
	}
}
