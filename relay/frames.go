// Package relay terminates the per-call duplex connections from the
// telephony edge, classifies inbound frames, and bridges them to a Model
// Session. One handler instance serves many calls; every call gets its own
// connection, session, and goroutines.
package relay

// Twilio ConversationRelay inbound frame. The Type discriminator selects
// which of the remaining fields are populated.
type TextFrame struct {
	Type string `json:"type"`

	// setup
	SessionID string `json:"sessionId,omitempty"`
	CallSID   string `json:"callSid,omitempty"`
	From      string `json:"from,omitempty"`
	To        string `json:"to,omitempty"`

	// prompt
	VoicePrompt string `json:"voicePrompt,omitempty"`
	Lang        string `json:"lang,omitempty"`
	Last        bool   `json:"last,omitempty"`

	// dtmf
	Digit string `json:"digit,omitempty"`

	// interrupt
	UtteranceUntilInterrupt  string `json:"utteranceUntilInterrupt,omitempty"`
	DurationUntilInterruptMs int64  `json:"durationUntilInterruptMs,omitempty"`
}

// TextReply is the outbound spoken-token frame.
type TextReply struct {
	Type  string `json:"type"`
	Token string `json:"token"`
	Last  bool   `json:"last"`
}

// EndReply is the terminal handoff frame; HandoffData is an opaque JSON
// string for the call-control platform.
type EndReply struct {
	Type        string `json:"type"`
	HandoffData string `json:"handoffData"`
}

// Twilio Media Streams inbound frame.
type MediaFrame struct {
	Event     string        `json:"event"`
	StreamSID string        `json:"streamSid,omitempty"`
	Start     *startPayload `json:"start,omitempty"`
	Media     *mediaPayload `json:"media,omitempty"`
	Stop      *stopPayload  `json:"stop,omitempty"`
	DTMF      *dtmfPayload  `json:"dtmf,omitempty"`
	Mark      *markPayload  `json:"mark,omitempty"`
}

type startPayload struct {
	StreamSID    string            `json:"streamSid"`
	AccountSID   string            `json:"accountSid"`
	CallSID      string            `json:"callSid"`
	Tracks       []string          `json:"tracks"`
	MediaFormat  mediaFormat       `json:"mediaFormat"`
	CustomParams map[string]string `json:"customParameters"`
}

type mediaFormat struct {
	Encoding   string `json:"encoding"`
	SampleRate int    `json:"sampleRate"`
	Channels   int    `json:"channels"`
}

type mediaPayload struct {
	Track     string `json:"track"`
	Chunk     string `json:"chunk"`
	Timestamp string `json:"timestamp"`
	Payload   string `json:"payload"` // base64 encoded audio
}

type stopPayload struct {
	AccountSID string `json:"accountSid"`
	CallSID    string `json:"callSid"`
}

type dtmfPayload struct {
	Track string `json:"track"`
	Digit string `json:"digit"`
}

type markPayload struct {
	Name string `json:"name"`
}

// OutboundMedia is the outbound audio frame, tagged with the stream
// identifier captured from the start event.
type OutboundMedia struct {
	Event     string               `json:"event"`
	StreamSID string               `json:"streamSid"`
	Media     OutboundMediaPayload `json:"media"`
}

// OutboundMediaPayload carries the base64 audio.
type OutboundMediaPayload struct {
	Payload string `json:"payload"`
}
