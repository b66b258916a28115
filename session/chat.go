package session

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	openai "github.com/sashabaranov/go-openai"

	"github.com/agentplexus/voicerelay/tool"
)

// maxToolRounds bounds how many completion rounds one utterance may spend
// resolving tool calls.
const maxToolRounds = 5

// ChatClient is the slice of the OpenAI client the Chat session needs.
// *openai.Client satisfies it.
type ChatClient interface {
	CreateChatCompletion(ctx context.Context, req openai.ChatCompletionRequest) (openai.ChatCompletionResponse, error)
}

// ToolInvoker performs external tool invocations. *tool.Invoker satisfies it.
type ToolInvoker interface {
	Invoke(ctx context.Context, name string, args json.RawMessage) (json.RawMessage, error)
}

// ReplyKind discriminates the two terminal outcomes of a text turn.
type ReplyKind int

const (
	// ReplyText is a spoken reply for the caller.
	ReplyText ReplyKind = iota

	// ReplyHandoff ends AI handling of the call in favor of a live agent.
	ReplyHandoff
)

// Reply is the user-facing result of one utterance.
type Reply struct {
	Kind ReplyKind
	Text string

	// HandoffData is the JSON payload for the call-control platform,
	// set when Kind == ReplyHandoff.
	HandoffData string
}

// CallInfo identifies the phone call behind a session. Bound at most once,
// from the first setup frame.
type CallInfo struct {
	SessionID string
	CallSID   string
	From      string
	To        string
}

// ChatConfig configures a Chat session.
type ChatConfig struct {
	Client       ChatClient
	Model        string
	Instructions string
	Catalog      *tool.Catalog
	Invoker      ToolInvoker
	Temperature  float32
	Logger       *slog.Logger
}

// Chat is the text-variant Model Session: one Chat Completions conversation
// with tools resolved inline. It is driven by a single relay goroutine and is
// not safe for concurrent use.
type Chat struct {
	client      ChatClient
	model       string
	catalog     *tool.Catalog
	invoker     ToolInvoker
	temperature float32
	logger      *slog.Logger

	transcript *Transcript
	call       CallInfo
	bound      bool
}

// NewChat creates a Chat session with the system turn already in place.
func NewChat(cfg ChatConfig) *Chat {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	catalog := cfg.Catalog
	if catalog == nil {
		catalog = tool.NewCatalog()
	}
	return &Chat{
		client:      cfg.Client,
		model:       cfg.Model,
		catalog:     catalog,
		invoker:     cfg.Invoker,
		temperature: cfg.Temperature,
		logger:      logger,
		transcript:  NewTranscript(cfg.Instructions),
	}
}

// BindCall binds caller/callee identifiers into the session. The first call
// wins; later calls are ignored and reported as false.
func (c *Chat) BindCall(info CallInfo) bool {
	if c.bound {
		return false
	}
	c.call = info
	c.bound = true
	return true
}

// Call returns the bound call identifiers.
func (c *Chat) Call() CallInfo {
	return c.call
}

// Transcript returns a copy of the conversation so far.
func (c *Chat) Transcript() []Turn {
	return c.transcript.Turns()
}

// SubmitUtterance appends text as a user turn and drives the backend until a
// terminal reply is produced. Tool invocations are resolved strictly in the
// order the model issued them; a handoff invocation short-circuits the rest
// of its batch. On failure, turns appended so far stay in the transcript and
// the caller must produce the user-visible fallback.
func (c *Chat) SubmitUtterance(ctx context.Context, text string) (Reply, error) {
	c.transcript.AppendUser(text)

	for round := 0; round < maxToolRounds; round++ {
		resp, err := c.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
			Model:       c.model,
			Messages:    c.transcript.Messages(),
			Tools:       c.catalog.OpenAITools(),
			Temperature: c.temperature,
		})
		if err != nil {
			return Reply{}, fmt.Errorf("chat completion: %w", err)
		}
		if len(resp.Choices) == 0 {
			return Reply{}, fmt.Errorf("chat completion: no choices in response")
		}

		msg := resp.Choices[0].Message
		if len(msg.ToolCalls) == 0 {
			c.transcript.AppendAssistant(msg.Content)
			return Reply{Kind: ReplyText, Text: msg.Content}, nil
		}

		for _, tc := range msg.ToolCalls {
			call := ToolCall{
				ID:   tc.ID,
				Name: tc.Function.Name,
				Args: json.RawMessage(tc.Function.Arguments),
			}

			if c.catalog.KindOf(call.Name) == tool.KindTerminalHandoff {
				// Advertised to the model but handled locally: the
				// arguments become the handoff payload and any
				// remaining invocations in the batch are dropped.
				c.logger.Info("live agent handoff requested",
					"session_id", c.call.SessionID, "call_sid", c.call.CallSID)
				return Reply{Kind: ReplyHandoff, HandoffData: tc.Function.Arguments}, nil
			}

			result, err := c.invoker.Invoke(ctx, call.Name, call.Args)
			if err != nil {
				return Reply{}, fmt.Errorf("invoking %s: %w", call.Name, err)
			}
			c.transcript.AppendToolResult(call, result)
			c.logger.Debug("tool invocation resolved",
				"tool", call.Name, "call_id", call.ID, "session_id", c.call.SessionID)
		}
	}

	return Reply{}, fmt.Errorf("utterance exceeded %d tool rounds", maxToolRounds)
}
