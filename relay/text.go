package relay

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/agentplexus/voicerelay/session"
)

// FallbackUtterance is spoken when a turn fails. A failed backend or tool
// call must never leave the caller with silence.
const FallbackUtterance = "I'm sorry, I ran into a problem on my end. Could you say that again?"

// ModelSession is the text-variant session contract the relay drives.
// *session.Chat satisfies it.
type ModelSession interface {
	BindCall(info session.CallInfo) bool
	SubmitUtterance(ctx context.Context, text string) (session.Reply, error)
}

// TextConfig configures a TextHandler.
type TextConfig struct {
	// NewSession creates the Model Session for one call.
	NewSession func() ModelSession

	Registry *Registry
	Logger   *slog.Logger
}

// TextHandler terminates ConversationRelay connections: one Model Session
// per connection, frames dispatched by type, replies written back on the
// same connection.
type TextHandler struct {
	cfg      TextConfig
	upgrader websocket.Upgrader
}

// NewTextHandler creates a TextHandler.
func NewTextHandler(cfg TextConfig) *TextHandler {
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.Registry == nil {
		cfg.Registry = NewRegistry()
	}
	return &TextHandler{
		cfg: cfg,
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool { return true },
		},
	}
}

// ServeHTTP upgrades the connection and serves the call until disconnect.
func (h *TextHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.cfg.Logger.Error("websocket upgrade failed", "err", err)
		return
	}
	h.serve(conn)
}

func (h *TextHandler) serve(conn *websocket.Conn) {
	id := uuid.NewString()
	logger := h.cfg.Logger.With("relay", "text", "id", id)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sess := h.cfg.NewSession()
	unregister := h.cfg.Registry.Register(id, Handle{Cancel: func() {
		cancel()
		_ = conn.Close()
	}})
	defer unregister()
	defer func() { _ = conn.Close() }()

	logger.Info("client connected")

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

		var frame TextFrame
		if err := json.Unmarshal(data, &frame); err != nil {
			// One malformed frame must never kill the call.
			logger.Error("malformed frame", "err", err)
			continue
		}

		h.dispatch(ctx, logger, conn, sess, frame)
	}
}

func (h *TextHandler) dispatch(ctx context.Context, logger *slog.Logger, conn *websocket.Conn, sess ModelSession, frame TextFrame) {
	switch frame.Type {
	case "setup":
		info := session.CallInfo{
			SessionID: frame.SessionID,
			CallSID:   frame.CallSID,
			From:      frame.From,
			To:        frame.To,
		}
		if sess.BindCall(info) {
			logger.Info("call bound", "call_sid", frame.CallSID, "from", frame.From, "to", frame.To)
		} else {
			logger.Warn("ignoring repeated setup frame", "call_sid", frame.CallSID)
		}

	case "prompt":
		logger.Info("utterance received", "voice_prompt", frame.VoicePrompt)
		reply, err := sess.SubmitUtterance(ctx, frame.VoicePrompt)
		if err != nil {
			logger.Error("utterance failed", "err", err)
			h.write(logger, conn, TextReply{Type: "text", Token: FallbackUtterance, Last: true})
			return
		}
		switch reply.Kind {
		case session.ReplyHandoff:
			logger.Info("handing off to live agent")
			h.write(logger, conn, EndReply{Type: "end", HandoffData: reply.HandoffData})
		default:
			logger.Info("reply sent", "token", reply.Text)
			h.write(logger, conn, TextReply{Type: "text", Token: reply.Text, Last: true})
		}

	case "interrupt":
		// A timing signal, not content; the transcript is untouched.
		logger.Info("interrupt", "utterance", frame.UtteranceUntilInterrupt, "duration_ms", frame.DurationUntilInterruptMs)

	case "dtmf":
		logger.Info("dtmf", "digit", frame.Digit)

	default:
		logger.Warn("unknown frame type", "type", frame.Type)
	}
}

func (h *TextHandler) write(logger *slog.Logger, conn *websocket.Conn, v any) {
	if err := conn.WriteJSON(v); err != nil {
		logger.Error("write failed", "err", err)
	}
}
