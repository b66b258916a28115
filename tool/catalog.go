// Package tool describes the capabilities advertised to the model and
// performs the HTTP calls behind them.
package tool

import (
	"encoding/json"

	openai "github.com/sashabaranov/go-openai"
)

// Kind classifies how a model-issued invocation is resolved.
type Kind int

const (
	// KindExternal tools are resolved by an HTTP call to a tool handler.
	KindExternal Kind = iota

	// KindTerminalHandoff tools end AI handling of the call. They are
	// advertised to the model but have no external handler; the session
	// synthesizes the result locally.
	KindTerminalHandoff
)

// HandoffToolName is the tool the model calls to hand the caller to a
// live agent.
const HandoffToolName = "live-agent-handoff"

// Descriptor describes one tool: its name, its parameter schema, and how an
// invocation of it is resolved.
type Descriptor struct {
	Name        string
	Description string
	Parameters  json.RawMessage
	Kind        Kind
}

// Catalog is a fixed list of tool descriptors. It is supplied at session
// creation and read-only afterward.
type Catalog struct {
	descriptors []Descriptor
	byName      map[string]Descriptor
}

// NewCatalog builds a catalog from descriptors. Order is preserved.
func NewCatalog(descriptors ...Descriptor) *Catalog {
	byName := make(map[string]Descriptor, len(descriptors))
	for _, d := range descriptors {
		byName[d.Name] = d
	}
	return &Catalog{descriptors: descriptors, byName: byName}
}

// Lookup returns the descriptor for name. Unknown names resolve as external
// tools so the handler, not the relay, owns the failure.
func (c *Catalog) Lookup(name string) (Descriptor, bool) {
	d, ok := c.byName[name]
	return d, ok
}

// KindOf classifies an invocation by name.
func (c *Catalog) KindOf(name string) Kind {
	if d, ok := c.byName[name]; ok {
		return d.Kind
	}
	return KindExternal
}

// Len returns the number of descriptors.
func (c *Catalog) Len() int {
	return len(c.descriptors)
}

// OpenAITools renders the catalog as Chat Completions tool definitions.
func (c *Catalog) OpenAITools() []openai.Tool {
	tools := make([]openai.Tool, 0, len(c.descriptors))
	for _, d := range c.descriptors {
		var params any
		if len(d.Parameters) > 0 {
			params = d.Parameters
		}
		tools = append(tools, openai.Tool{
			Type: openai.ToolTypeFunction,
			Function: &openai.FunctionDefinition{
				Name:        d.Name,
				Description: d.Description,
				Parameters:  params,
			},
		})
	}
	return tools
}

// Default returns the catalog the demo call flow advertises: customer
// lookup, SMS sending, verification, and the terminal handoff.
func Default() *Catalog {
	return NewCatalog(
		Descriptor{
			Name:        "get-customer",
			Description: "Look up the customer record for the calling phone number.",
			Parameters: json.RawMessage(`{
				"type": "object",
				"properties": {
					"caller": {"type": "string", "description": "Caller phone number in E.164 format"}
				},
				"required": ["caller"]
			}`),
		},
		Descriptor{
			Name:        "send-sms",
			Description: "Send an SMS message to the caller.",
			Parameters: json.RawMessage(`{
				"type": "object",
				"properties": {
					"to":      {"type": "string", "description": "Destination phone number in E.164 format"},
					"message": {"type": "string", "description": "Message body"}
				},
				"required": ["to", "message"]
			}`),
		},
		Descriptor{
			Name:        "verify-send",
			Description: "Send a verification code to the caller by SMS.",
			Parameters: json.RawMessage(`{
				"type": "object",
				"properties": {
					"phone": {"type": "string", "description": "Phone number to send the code to"}
				},
				"required": ["phone"]
			}`),
		},
		Descriptor{
			Name:        "verify-code",
			Description: "Check a verification code the caller read back.",
			Parameters: json.RawMessage(`{
				"type": "object",
				"properties": {
					"phone": {"type": "string", "description": "Phone number the code was sent to"},
					"code":  {"type": "string", "description": "Code the caller provided"}
				},
				"required": ["phone", "code"]
			}`),
		},
		Descriptor{
			Name:        HandoffToolName,
			Description: "Hand the call to a live agent. Use for legal, liability, or sensitive topics, or when the caller asks for a human.",
			Parameters: json.RawMessage(`{
				"type": "object",
				"properties": {
					"reasonCode": {"type": "string", "enum": ["legal", "liability", "financial", "user-requested"]},
					"reason":     {"type": "string", "description": "Brief summary of the caller's query"}
				},
				"required": ["reasonCode", "reason"]
			}`),
			Kind: KindTerminalHandoff,
		},
	)
}
