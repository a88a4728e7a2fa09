// Package llm defines the Provider interface for model backends.
//
// A provider wraps a remote or local model API (OpenAI, Anthropic, a local
// Ollama instance) and exposes a uniform surface the agent engine uses to
// run completions, count tokens, and inspect capabilities without coupling
// to any specific SDK. How a conversation is shaped for a particular
// provider family is the engine's concern, not the provider's: backends
// receive messages already arranged for their wire format.
//
// Implementations must be safe for concurrent use.
package llm

import (
	"context"

	"github.com/attestia/attestia/pkg/types"
)

// Usage holds token accounting returned by the backend. Counts are in the
// model's native token unit and differ between providers for the same text.
type Usage struct {
	// PromptTokens is the number of tokens consumed by the input messages
	// and system prompt.
	PromptTokens int

	// CompletionTokens is the number of tokens generated in the response.
	CompletionTokens int

	// TotalTokens is PromptTokens + CompletionTokens.
	TotalTokens int
}

// CompletionRequest carries everything the model needs to produce a
// response. Messages must be non-empty.
type CompletionRequest struct {
	// Messages is the ordered conversation, already shaped for the target
	// provider family.
	Messages []types.Message

	// Tools is the set of tool definitions offered to the model. Empty for
	// providers without native tool calling.
	Tools []types.ToolDefinition

	// Temperature controls output randomness in [0.0, 2.0]. Zero requests
	// the provider default.
	Temperature float64

	// MaxTokens caps completion tokens. Zero means the provider default.
	MaxTokens int

	// SystemPrompt is injected before the conversation using whatever
	// mechanism the provider treats as high-priority instruction.
	SystemPrompt string
}

// Chunk is a single fragment emitted by a streaming completion. A chunk may
// carry text, a finish signal, tool calls, or any combination.
type Chunk struct {
	// Text is the incremental text content.
	Text string

	// FinishReason is set on the final chunk: "stop", "length",
	// "tool_calls", or "error".
	FinishReason string

	// ToolCalls contains tool invocations the model is requesting.
	ToolCalls []types.ToolCall
}

// CompletionResponse is returned by Complete.
type CompletionResponse struct {
	// Content is the full text of the assistant's reply. Empty when the
	// model responds exclusively with tool calls.
	Content string

	// ToolCalls lists the tool invocations the model requested. The engine
	// executes them and appends results to the conversation.
	ToolCalls []types.ToolCall

	// Usage contains token accounting for this exchange.
	Usage Usage
}

// Provider is the abstraction over any model backend.
//
// Methods must propagate context cancellation promptly: when ctx is
// cancelled the method must return (or close its channel) as quickly as
// possible.
type Provider interface {
	// Complete sends req and waits for the full response.
	Complete(ctx context.Context, req CompletionRequest) (*CompletionResponse, error)

	// StreamCompletion sends req and returns a read-only channel emitting
	// chunks as they arrive. The implementation closes the channel when
	// generation finishes or ctx is cancelled; callers must drain it.
	// Errors after the stream opens surface as a Chunk with FinishReason
	// "error"; the error return is non-nil only when the stream cannot
	// start.
	StreamCompletion(ctx context.Context, req CompletionRequest) (<-chan Chunk, error)

	// CountTokens estimates how many tokens the messages would consume in
	// the model's context window. The result need not be exact but should
	// not undercount.
	CountTokens(messages []types.Message) (int, error)

	// Capabilities returns static metadata for the underlying model,
	// constant for the lifetime of the Provider.
	Capabilities() types.ModelCapabilities
}
