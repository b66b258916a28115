// Package session owns one conversation against the OpenAI backend: the
// transcript, the tool catalog, and the protocol for turning caller input
// into replies. Two variants exist: Chat (request/response text turns, tools
// resolved inline) and Realtime (a persistent audio connection of its own).
package session

import (
	"encoding/json"

	openai "github.com/sashabaranov/go-openai"
)

// Role tags one transcript turn.
type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleTool      Role = "tool"
)

// ToolCall identifies one model-issued invocation: the correlation ID, the
// tool name, and the serialized argument payload.
type ToolCall struct {
	ID   string
	Name string
	Args json.RawMessage
}

// Turn is one entry in a transcript. Tool turns carry the invocation they
// answer and its result; other turns carry content only.
type Turn struct {
	Role    Role
	Content string

	// Set on RoleTool turns only.
	Call   ToolCall
	Result json.RawMessage
}

// Transcript is the ordered, append-only record of one conversation. It is
// owned exclusively by its session: exactly one system turn, inserted first
// and never removed; every later turn is appended, nothing is deleted or
// reordered.
type Transcript struct {
	turns []Turn
}

// NewTranscript creates a transcript seeded with the system turn.
func NewTranscript(systemPrompt string) *Transcript {
	return &Transcript{
		turns: []Turn{{Role: RoleSystem, Content: systemPrompt}},
	}
}

// AppendUser records a caller utterance. Empty content is recorded too: the
// history must reflect what was said.
func (t *Transcript) AppendUser(content string) {
	t.turns = append(t.turns, Turn{Role: RoleUser, Content: content})
}

// AppendAssistant records a model reply.
func (t *Transcript) AppendAssistant(content string) {
	t.turns = append(t.turns, Turn{Role: RoleAssistant, Content: content})
}

// AppendToolResult records the result of one tool invocation, correlated to
// the invocation by its ID.
func (t *Transcript) AppendToolResult(call ToolCall, result json.RawMessage) {
	t.turns = append(t.turns, Turn{Role: RoleTool, Call: call, Result: result})
}

// Len returns the number of turns.
func (t *Transcript) Len() int {
	return len(t.turns)
}

// Turns returns a copy of the transcript.
func (t *Transcript) Turns() []Turn {
	out := make([]Turn, len(t.turns))
	copy(out, t.turns)
	return out
}

// Messages renders the transcript as Chat Completions messages. A tool turn
// expands into the assistant tool-call message the API requires, followed by
// the correlated tool result.
func (t *Transcript) Messages() []openai.ChatCompletionMessage {
	msgs := make([]openai.ChatCompletionMessage, 0, len(t.turns)+4)
	for _, turn := range t.turns {
		switch turn.Role {
		case RoleTool:
			msgs = append(msgs,
				openai.ChatCompletionMessage{
					Role: openai.ChatMessageRoleAssistant,
					ToolCalls: []openai.ToolCall{{
						ID:   turn.Call.ID,
						Type: openai.ToolTypeFunction,
						Function: openai.FunctionCall{
							Name:      turn.Call.Name,
							Arguments: string(turn.Call.Args),
						},
					}},
				},
				openai.ChatCompletionMessage{
					Role:       openai.ChatMessageRoleTool,
					ToolCallID: turn.Call.ID,
					Content:    string(turn.Result),
				},
			)
		default:
			msgs = append(msgs, openai.ChatCompletionMessage{
				Role:    string(turn.Role),
				Content: turn.Content,
			})
		}
	}
	return msgs
}
