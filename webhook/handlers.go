// Package webhook serves the call-control endpoints Twilio hits around a
// call: TwiML documents that connect the call to one of the relays, the
// live-agent handoff document, and status webhooks.
package webhook

import (
	"fmt"
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/twilio/twilio-go/twiml"

	"github.com/agentplexus/voicerelay"
)

// Config configures the webhook handlers.
type Config struct {
	// Domain is the externally reachable domain used in generated TwiML.
	Domain string

	// Voice passed to ConversationRelay.
	Voice string

	// WorkflowSID is the TaskRouter workflow receiving handoffs.
	WorkflowSID string

	Logger *slog.Logger
}

// Handlers serves the TwiML and status endpoints.
type Handlers struct {
	cfg Config
}

// New creates the webhook handlers.
func New(cfg Config) *Handlers {
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &Handlers{cfg: cfg}
}

// Register mounts the routes.
func (h *Handlers) Register(r gin.IRouter) {
	r.GET("/", h.health)
	r.GET("/echo", h.health)
	r.Any("/connect-relay", h.connectRelay)
	r.Any("/connect-stream", h.connectStream)
	r.Any("/live-agent-handoff", h.liveAgentHandoff)
	r.POST("/webhook", h.webhook)
	r.POST("/transcription", h.transcription)
}

func (h *Handlers) health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"message": "voicerelay server is running"})
}

// connectRelay returns the TwiML connecting the call to the text relay.
// There is no ConversationRelay helper verb in the library, so the document
// is built by hand.
func (h *Handlers) connectRelay(c *gin.Context) {
	doc := fmt.Sprintf(`<?xml version="1.0" encoding="UTF-8"?>
<Response>
    <Connect>
        <ConversationRelay url="wss://%s%s" voice="%s" dtmfDetection="true" interruptByDtmf="true" />
    </Connect>
</Response>`, h.cfg.Domain, voicerelay.TextRelayPath, h.cfg.Voice)

	h.cfg.Logger.Info("connect-relay served", "domain", h.cfg.Domain)
	c.Header("Content-Type", "application/xml")
	c.String(http.StatusOK, doc)
}

// connectStream returns the TwiML connecting the call to the audio relay.
func (h *Handlers) connectStream(c *gin.Context) {
	stream := &twiml.VoiceStream{
		Url: fmt.Sprintf("wss://%s%s", h.cfg.Domain, voicerelay.MediaStreamPath),
	}
	connect := &twiml.VoiceConnect{
		InnerElements: []twiml.Element{stream},
	}
	say := &twiml.VoiceSay{
		Message: "O.K. you can start talking!",
	}

	doc, err := twiml.Voice([]twiml.Element{say, connect})
	if err != nil {
		h.cfg.Logger.Error("building stream twiml", "err", err)
		c.String(http.StatusInternalServerError, "cannot handle call atm")
		return
	}

	h.cfg.Logger.Info("connect-stream served", "domain", h.cfg.Domain)
	c.Header("Content-Type", "text/xml")
	c.String(http.StatusOK, doc)
}

// liveAgentHandoff returns the TwiML that moves the caller to a human via
// the configured TaskRouter workflow.
func (h *Handlers) liveAgentHandoff(c *gin.Context) {
	say := &twiml.VoiceSay{
		Message: "Connecting you to the next available agent.",
	}
	enqueue := &twiml.VoiceEnqueue{
		WorkflowSid: h.cfg.WorkflowSID,
	}

	doc, err := twiml.Voice([]twiml.Element{say, enqueue})
	if err != nil {
		h.cfg.Logger.Error("building handoff twiml", "err", err)
		c.String(http.StatusInternalServerError, "cannot handle call atm")
		return
	}

	h.cfg.Logger.Info("live-agent-handoff served", "call_sid", c.PostForm("CallSid"))
	c.Header("Content-Type", "text/xml")
	c.String(http.StatusOK, doc)
}

func (h *Handlers) webhook(c *gin.Context) {
	var body map[string]any
	if err := c.ShouldBindJSON(&body); err == nil {
		h.cfg.Logger.Info("webhook received", "body", body)
	}
	c.Status(http.StatusOK)
}

// transcription receives real-time transcription status callbacks.
func (h *Handlers) transcription(c *gin.Context) {
	event := c.PostForm("TranscriptionEvent")
	switch event {
	case "transcription-started":
		h.cfg.Logger.Info("transcription started", "sid", c.PostForm("TranscriptionSid"))
	case "transcription-content":
		h.cfg.Logger.Info("transcription content",
			"data", c.PostForm("TranscriptionData"), "track", c.PostForm("Track"))
	case "transcription-stopped":
		h.cfg.Logger.Info("transcription stopped", "sid", c.PostForm("TranscriptionSid"))
	case "transcription-error":
		h.cfg.Logger.Error("transcription error",
			"sid", c.PostForm("TranscriptionSid"), "code", c.PostForm("TranscriptionErrorCode"))
	default:
		h.cfg.Logger.Warn("unknown transcription event", "event", event)
	}
	c.Status(http.StatusOK)
}
