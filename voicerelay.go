// Package voicerelay relays live voice calls between Twilio and OpenAI.
//
// The repository wires three moving parts together:
//   - relay: terminates the per-call WebSocket from Twilio and classifies
//     inbound frames (ConversationRelay text frames or Media Streams audio
//     frames)
//   - session: owns one conversation against the OpenAI backend, either the
//     Chat Completions text variant or the Realtime streaming variant
//   - tool: dispatches model-issued function calls to external HTTP handlers,
//     with a terminal live-agent handoff path
//
// # Environment Variables
//
//	OPENAI_API_KEY     - OpenAI API key (required)
//	OPENAI_MODEL       - Chat Completions model name
//	TWILIO_ACCOUNT_SID - Twilio Account SID (tool server only)
//	TWILIO_AUTH_TOKEN  - Twilio Auth Token (tool server only)
//
// # Quick Start
//
//	import (
//	    "github.com/agentplexus/voicerelay/relay"
//	    "github.com/agentplexus/voicerelay/session"
//	)
//
//	// Terminate ConversationRelay connections with a chat session per call
//	h := relay.NewTextHandler(cfg)
//	mux.HandleFunc("/conversation-relay", h.ServeHTTP)
package voicerelay

// Version is the module version.
const Version = "0.1.0"

// WebSocket paths served for the two inbound relay protocols.
const (
	// TextRelayPath terminates Twilio ConversationRelay connections.
	TextRelayPath = "/conversation-relay"

	// MediaStreamPath terminates Twilio Media Streams connections.
	MediaStreamPath = "/media-stream"
)

// ConversationRelay inbound frame types.
const (
	FrameSetup     = "setup"
	FramePrompt    = "prompt"
	FrameInterrupt = "interrupt"
	FrameDTMF      = "dtmf"
)

// ConversationRelay outbound frame types.
const (
	FrameText = "text"
	FrameEnd  = "end"
)

// Media Streams event names.
const (
	EventConnected = "connected"
	EventStart     = "start"
	EventMedia     = "media"
	EventDTMF      = "dtmf"
	EventStop      = "stop"
	EventMark      = "mark"
)

// Audio format constants for Media Streams.
const (
	// AudioEncodingMulaw is the μ-law encoding (8-bit, 8kHz).
	AudioEncodingMulaw = "audio/x-mulaw"

	// RealtimeAudioFormat is the matching OpenAI Realtime codec name.
	RealtimeAudioFormat = "g711_ulaw"

	// DefaultSampleRate is the default sample rate for Twilio audio (8kHz).
	DefaultSampleRate = 8000
)
