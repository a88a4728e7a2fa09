// Package types defines the shared types used across all Attestia packages.
//
// These types form the lingua franca between the tool registry, the agent
// execution engine, the model providers, and the gateway. They are
// intentionally minimal — each package defines its own domain types, but
// cross-cutting data structures live here to avoid circular imports.
package types

import "time"

// Actor identifies the caller on whose behalf an operation runs. It is
// resolved server-side at the gateway; client-supplied identity fields are
// never trusted.
type Actor struct {
	// UserID is the authenticated user's stable identifier. Empty for
	// anonymous callers.
	UserID string

	// OrganizationID is the tenant the user belongs to, when known.
	OrganizationID string
}

// IsAnonymous reports whether the actor carries no authenticated identity.
func (a Actor) IsAnonymous() bool {
	return a.UserID == ""
}

// Key returns the identifier used for per-caller accounting (rate-limit
// windows, conversation ownership). Anonymous callers share one bucket.
func (a Actor) Key() string {
	if a.UserID == "" {
		return "anonymous"
	}
	return a.UserID
}

// InvocationContext carries the caller identity and correlation data for a
// single tool invocation. It is never empty for tools that require
// authentication.
type InvocationContext struct {
	// Actor is the resolved caller identity.
	Actor Actor

	// SessionID is the session/correlation identifier for this request.
	SessionID string

	// AgentID is set when the invocation originates from an agent turn
	// rather than a direct gateway call.
	AgentID string

	// Metadata holds free-form key/value pairs propagated to audit records.
	Metadata map[string]string
}

// Message represents a single message in a model conversation history.
type Message struct {
	// Role is one of "system", "user", "assistant", or "tool".
	Role string

	// Content is the text content of the message.
	Content string

	// Name is an optional participant name (for multi-speaker contexts).
	Name string

	// ToolCalls contains any tool invocations requested by the assistant.
	ToolCalls []ToolCall

	// ToolCallID is set when Role is "tool", identifying which tool call
	// this responds to.
	ToolCallID string

	// Blocks holds typed content blocks for providers that represent tool
	// use and tool results inline within a message rather than as separate
	// tool-role messages. Nil for providers using the flat message shape.
	Blocks []ContentBlock
}

// ContentBlock is a typed fragment within a single message, used by
// providers whose wire format interleaves text, tool-use requests, and
// tool results inside one message body.
type ContentBlock struct {
	// Type is one of "text", "tool_use", or "tool_result".
	Type string

	// Text is set when Type is "text".
	Text string

	// ToolCallID links a "tool_use" block to its "tool_result" block.
	ToolCallID string

	// ToolName is the requested tool for "tool_use" blocks.
	ToolName string

	// Input is the JSON-encoded tool arguments for "tool_use" blocks.
	Input string

	// Content is the tool output for "tool_result" blocks.
	Content string

	// IsError marks a "tool_result" block carrying a failure.
	IsError bool
}

// ToolCall represents a tool invocation requested by the model.
type ToolCall struct {
	// ID is the unique identifier for this tool call (provider-assigned).
	ID string

	// Name is the tool name.
	Name string

	// Arguments is the JSON-encoded arguments string.
	Arguments string
}

// ToolDefinition describes a tool as offered to a model provider. It is the
// projection of a registry tool into the schema shape providers understand;
// it never carries the handler.
type ToolDefinition struct {
	// Name is the tool's unique identifier.
	Name string

	// Description explains what the tool does (included in model prompts).
	Description string

	// Parameters is the JSON Schema describing the tool's input parameters.
	Parameters map[string]any
}

// ModelCapabilities describes what a model supports.
type ModelCapabilities struct {
	// ContextWindow is the maximum token count for input + output.
	ContextWindow int

	// MaxOutputTokens is the maximum tokens the model can generate in one
	// completion.
	MaxOutputTokens int

	// SupportsToolCalling indicates native function/tool calling support.
	SupportsToolCalling bool

	// SupportsStreaming indicates the model supports streaming completions.
	SupportsStreaming bool
}

// Attachment is a caller-supplied document fragment accompanying an agent
// turn. Attachments are normalized and budget-checked at the gateway before
// any model call.
type Attachment struct {
	// Name is an optional display name (e.g., a file name).
	Name string

	// Type is the MIME-like content type (e.g., "text/plain",
	// "application/json").
	Type string

	// Content is the inline textual content, when present.
	Content string

	// Data is a base64-encoded payload for non-inline content.
	Data string
}

// UsageRecord captures the accounted cost of one model interaction.
type UsageRecord struct {
	// Actor is whose quota the usage was charged against.
	Actor Actor

	// Model is the provider model that served the request.
	Model string

	// Purpose labels what the tokens were spent on (e.g., "agent_turn").
	Purpose string

	// PromptTokens and ResponseTokens are the estimated token counts.
	PromptTokens   int
	ResponseTokens int

	// RecordedAt is when the usage was recorded.
	RecordedAt time.Time
}
