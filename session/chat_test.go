package session

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"

	openai "github.com/sashabaranov/go-openai"

	"github.com/agentplexus/voicerelay/tool"
)

// scriptedClient replays a fixed sequence of responses and records every
// request it saw.
type scriptedClient struct {
	responses []openai.ChatCompletionResponse
	errs      []error
	requests  []openai.ChatCompletionRequest
}

func (s *scriptedClient) CreateChatCompletion(_ context.Context, req openai.ChatCompletionRequest) (openai.ChatCompletionResponse, error) {
	i := len(s.requests)
	s.requests = append(s.requests, req)
	if i < len(s.errs) && s.errs[i] != nil {
		return openai.ChatCompletionResponse{}, s.errs[i]
	}
	if i >= len(s.responses) {
		return openai.ChatCompletionResponse{}, errors.New("script exhausted")
	}
	return s.responses[i], nil
}

type recordingInvoker struct {
	calls   []string
	results map[string]string
	err     error
}

func (r *recordingInvoker) Invoke(_ context.Context, name string, _ json.RawMessage) (json.RawMessage, error) {
	r.calls = append(r.calls, name)
	if r.err != nil {
		return nil, r.err
	}
	if res, ok := r.results[name]; ok {
		return json.RawMessage(res), nil
	}
	return json.RawMessage(`{}`), nil
}

func textResponse(content string) openai.ChatCompletionResponse {
	return openai.ChatCompletionResponse{
		Choices: []openai.ChatCompletionChoice{{
			Message: openai.ChatCompletionMessage{
				Role:    openai.ChatMessageRoleAssistant,
				Content: content,
			},
		}},
	}
}

func toolResponse(calls ...openai.ToolCall) openai.ChatCompletionResponse {
	return openai.ChatCompletionResponse{
		Choices: []openai.ChatCompletionChoice{{
			Message: openai.ChatCompletionMessage{
				Role:      openai.ChatMessageRoleAssistant,
				ToolCalls: calls,
			},
		}},
	}
}

func toolCall(id, name, args string) openai.ToolCall {
	return openai.ToolCall{
		ID:   id,
		Type: openai.ToolTypeFunction,
		Function: openai.FunctionCall{Name: name, Arguments: args},
	}
}

func newTestChat(client ChatClient, invoker ToolInvoker) *Chat {
	return NewChat(ChatConfig{
		Client:       client,
		Model:        "gpt-4o",
		Instructions: "sys",
		Catalog:      tool.Default(),
		Invoker:      invoker,
	})
}

func TestChatBindCallFirstWins(t *testing.T) {
	c := newTestChat(&scriptedClient{}, &recordingInvoker{})

	if !c.BindCall(CallInfo{SessionID: "VX1", CallSID: "CA1", From: "+15550001", To: "+15550002"}) {
		t.Fatal("first bind rejected")
	}
	if c.BindCall(CallInfo{SessionID: "VX2", CallSID: "CA2"}) {
		t.Fatal("second bind accepted")
	}
	if got := c.Call(); got.SessionID != "VX1" || got.From != "+15550001" {
		t.Fatalf("bound identifiers overwritten: %+v", got)
	}
}

func TestChatDirectReply(t *testing.T) {
	client := &scriptedClient{responses: []openai.ChatCompletionResponse{
		textResponse("Hello! How can I help?"),
	}}
	c := newTestChat(client, &recordingInvoker{})

	reply, err := c.SubmitUtterance(context.Background(), "hi")
	if err != nil {
		t.Fatalf("SubmitUtterance: %v", err)
	}
	if reply.Kind != ReplyText || reply.Text != "Hello! How can I help?" {
		t.Fatalf("unexpected reply: %+v", reply)
	}

	// system, user, assistant.
	turns := c.Transcript()
	if len(turns) != 3 {
		t.Fatalf("expected 3 turns, got %d", len(turns))
	}
	if turns[2].Role != RoleAssistant {
		t.Fatalf("expected assistant turn last, got %s", turns[2].Role)
	}
}

func TestChatResolvesToolCallThenReplies(t *testing.T) {
	client := &scriptedClient{responses: []openai.ChatCompletionResponse{
		toolResponse(toolCall("call_1", "get-customer", `{}`)),
		textResponse("Your account number is A-1234567890."),
	}}
	invoker := &recordingInvoker{results: map[string]string{
		"get-customer": `{"firstName":"Des","accountNumber":"A-1234567890"}`,
	}}
	c := newTestChat(client, invoker)

	reply, err := c.SubmitUtterance(context.Background(), "what's my account number")
	if err != nil {
		t.Fatalf("SubmitUtterance: %v", err)
	}
	if reply.Kind != ReplyText || !strings.Contains(reply.Text, "A-1234567890") {
		t.Fatalf("unexpected reply: %+v", reply)
	}
	if len(invoker.calls) != 1 || invoker.calls[0] != "get-customer" {
		t.Fatalf("unexpected invocations: %v", invoker.calls)
	}

	// system, user, tool result, assistant.
	turns := c.Transcript()
	if len(turns) != 4 {
		t.Fatalf("expected 4 turns, got %d", len(turns))
	}
	if turns[2].Role != RoleTool || turns[2].Call.Name != "get-customer" {
		t.Fatalf("expected tool turn, got %+v", turns[2])
	}

	// The second request must replay the tool result to the model.
	second := client.requests[1]
	last := second.Messages[len(second.Messages)-1]
	if last.Role != openai.ChatMessageRoleTool || last.ToolCallID != "call_1" {
		t.Fatalf("tool result not sent back: %+v", last)
	}
}

func TestChatToolsResolvedInOrder(t *testing.T) {
	client := &scriptedClient{responses: []openai.ChatCompletionResponse{
		toolResponse(
			toolCall("call_1", "get-customer", `{}`),
			toolCall("call_2", "verify-send", `{"to":"+15550001"}`),
		),
		textResponse("Done."),
	}}
	invoker := &recordingInvoker{}
	c := newTestChat(client, invoker)

	if _, err := c.SubmitUtterance(context.Background(), "verify me"); err != nil {
		t.Fatalf("SubmitUtterance: %v", err)
	}
	if len(invoker.calls) != 2 || invoker.calls[0] != "get-customer" || invoker.calls[1] != "verify-send" {
		t.Fatalf("invocations out of order: %v", invoker.calls)
	}
}

func TestChatHandoffShortCircuits(t *testing.T) {
	handoffArgs := `{"reasonCode":"live-agent-handoff","reason":"caller asked for a human"}`
	client := &scriptedClient{responses: []openai.ChatCompletionResponse{
		toolResponse(
			toolCall("call_1", tool.HandoffToolName, handoffArgs),
			toolCall("call_2", "get-customer", `{}`),
		),
	}}
	invoker := &recordingInvoker{}
	c := newTestChat(client, invoker)

	reply, err := c.SubmitUtterance(context.Background(), "I want a real person")
	if err != nil {
		t.Fatalf("SubmitUtterance: %v", err)
	}
	if reply.Kind != ReplyHandoff {
		t.Fatalf("expected handoff reply, got %+v", reply)
	}
	if reply.HandoffData != handoffArgs {
		t.Fatalf("handoff payload not passed through: %q", reply.HandoffData)
	}
	// The handoff is handled locally and drops the rest of the batch.
	if len(invoker.calls) != 0 {
		t.Fatalf("tools invoked after handoff: %v", invoker.calls)
	}
	if len(client.requests) != 1 {
		t.Fatalf("expected a single completion round, got %d", len(client.requests))
	}
}

func TestChatToolFailureKeepsPartialTranscript(t *testing.T) {
	client := &scriptedClient{responses: []openai.ChatCompletionResponse{
		toolResponse(toolCall("call_1", "send-sms", `{"message":"hi"}`)),
	}}
	invoker := &recordingInvoker{err: errors.New("connection refused")}
	c := newTestChat(client, invoker)

	if _, err := c.SubmitUtterance(context.Background(), "text me"); err == nil {
		t.Fatal("expected error from failed invocation")
	}

	// The user turn stays; the session is still usable.
	turns := c.Transcript()
	if len(turns) != 2 || turns[1].Role != RoleUser {
		t.Fatalf("unexpected transcript after failure: %+v", turns)
	}
}

func TestChatBackendErrorSurfaces(t *testing.T) {
	client := &scriptedClient{errs: []error{errors.New("rate limited")}}
	c := newTestChat(client, &recordingInvoker{})

	if _, err := c.SubmitUtterance(context.Background(), "hi"); err == nil {
		t.Fatal("expected error from backend failure")
	}
	if got := c.Transcript(); len(got) != 2 {
		t.Fatalf("user turn dropped after backend failure: %+v", got)
	}
}

func TestChatBoundedToolRounds(t *testing.T) {
	var responses []openai.ChatCompletionResponse
	for i := 0; i < maxToolRounds+1; i++ {
		responses = append(responses, toolResponse(toolCall("call_x", "get-customer", `{}`)))
	}
	client := &scriptedClient{responses: responses}
	c := newTestChat(client, &recordingInvoker{})

	if _, err := c.SubmitUtterance(context.Background(), "loop forever"); err == nil {
		t.Fatal("expected error once the round budget is exhausted")
	}
	if len(client.requests) != maxToolRounds {
		t.Fatalf("expected %d rounds, got %d", maxToolRounds, len(client.requests))
	}
}
