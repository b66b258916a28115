package relay

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"sync"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/agentplexus/voicerelay/session"
)

// StreamingSession is the streaming-variant session contract the relay
// drives. *session.Realtime satisfies it.
type StreamingSession interface {
	ForwardAudio(ctx context.Context, payload string) error
	SetStreamSID(sid string)
	Events() <-chan session.Event
	Close() error
}

// AudioConfig configures an AudioHandler.
type AudioConfig struct {
	// Connect opens the streaming Model Session for one call.
	Connect func(ctx context.Context) (StreamingSession, error)

	Registry *Registry
	Logger   *slog.Logger
}

// AudioHandler terminates Media Streams connections. Inbound media frames
// are forwarded to the streaming session; backend audio deltas flow back
// asynchronously through a single writer goroutine.
type AudioHandler struct {
	cfg      AudioConfig
	upgrader websocket.Upgrader
}

// NewAudioHandler creates an AudioHandler.
func NewAudioHandler(cfg AudioConfig) *AudioHandler {
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.Registry == nil {
		cfg.Registry = NewRegistry()
	}
	return &AudioHandler{
		cfg: cfg,
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool { return true },
		},
	}
}

// ServeHTTP upgrades the connection and serves the call until disconnect.
func (h *AudioHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.cfg.Logger.Error("websocket upgrade failed", "err", err)
		return
	}
	h.serve(conn)
}

func (h *AudioHandler) serve(conn *websocket.Conn) {
	id := uuid.NewString()
	logger := h.cfg.Logger.With("relay", "audio", "id", id)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sess, err := h.cfg.Connect(ctx)
	if err != nil {
		logger.Error("backend connect failed", "err", err)
		_ = conn.Close()
		return
	}

	unregister := h.cfg.Registry.Register(id, Handle{Cancel: func() {
		cancel()
		_ = sess.Close()
		_ = conn.Close()
	}})
	defer unregister()

	logger.Info("client connected")

	// Sole writer of the telephony connection. Runs until the session's
	// event channel closes so teardown never strands queued events.
	var writers sync.WaitGroup
	writers.Add(1)
	go func() {
		defer writers.Done()
		h.pumpBackendEvents(logger, conn, sess)
	}()

	// Closing the telephony connection must terminate the backend
	// connection and fail any ForwardAudio still waiting for readiness.
	defer func() {
		cancel()
		_ = sess.Close()
		_ = conn.Close()
		writers.Wait()
	}()

	streamBound := false
	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			if !websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				logger.Info("connection closed", "err", err)
			} else {
				logger.Info("client disconnected")
			}
			return
		}

		var frame MediaFrame
		if err := json.Unmarshal(data, &frame); err != nil {
			logger.Error("malformed frame", "err", err)
			continue
		}

		switch frame.Event {
		case "connected":
			logger.Info("media stream connected")

		case "start":
			if frame.Start == nil {
				logger.Warn("start event without payload")
				continue
			}
			if streamBound {
				logger.Warn("ignoring repeated start event", "stream_sid", frame.Start.StreamSID)
				continue
			}
			streamBound = true
			sess.SetStreamSID(frame.Start.StreamSID)
			logger.Info("stream started", "stream_sid", frame.Start.StreamSID, "call_sid", frame.Start.CallSID)

		case "media":
			if frame.Media == nil || frame.Media.Payload == "" {
				continue
			}
			if err := sess.ForwardAudio(ctx, frame.Media.Payload); err != nil {
				if errors.Is(err, session.ErrSessionClosed) || errors.Is(err, context.Canceled) {
					logger.Warn("audio after session close", "err", err)
					continue
				}
				logger.Error("forward failed", "err", err)
			}

		case "dtmf":
			if frame.DTMF != nil {
				logger.Info("dtmf", "digit", frame.DTMF.Digit)
			}

		case "stop":
			logger.Info("stream stopped")
			return

		case "mark":
			// Synchronization marker only.

		default:
			logger.Warn("unknown media event", "event", frame.Event)
		}
	}
}

// pumpBackendEvents drains the session's events, writing media deltas back
// onto the telephony connection. A backend close or error tears the call
// down by closing the telephony socket, which unblocks the read loop.
func (h *AudioHandler) pumpBackendEvents(logger *slog.Logger, conn *websocket.Conn, sess StreamingSession) {
	for ev := range sess.Events() {
		switch ev.Type {
		case session.EventReady:
			logger.Info("backend session ready")

		case session.EventMedia:
			out := OutboundMedia{
				Event:     "media",
				StreamSID: ev.Media.StreamSID,
				Media:     OutboundMediaPayload{Payload: ev.Media.Payload},
			}
			if err := conn.WriteJSON(out); err != nil {
				logger.Error("media write failed", "err", err)
			}

		case session.EventError:
			logger.Error("backend error", "err", ev.Err)

		case session.EventClose:
			logger.Info("backend session closed")
			_ = conn.Close()
		}
	}
}
