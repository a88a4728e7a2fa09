package agent

import (
	"strings"

	"github.com/attestia/attestia/pkg/provider/llm"
	"github.com/attestia/attestia/pkg/types"
)

// textOnlyWindow is how many history messages the text-only strategy folds
// into its flattened transcript.
const textOnlyWindow = 10

// toolExchange pairs one requested tool call with its serialized outcome.
type toolExchange struct {
	call    types.ToolCall
	output  string
	isError bool
}

// strategy shapes a conversation for one provider family. The turn loop is
// identical across strategies; only the message shape differs.
type strategy interface {
	// name labels the strategy in turn metadata.
	name() string

	// supportsTools reports whether tool definitions are offered to the
	// model at all.
	supportsTools() bool

	// initialMessages builds the message list for the first model call of
	// a turn from stored history and the assembled user prompt.
	initialMessages(history []types.Message, userPrompt string) []types.Message

	// assistantMessage converts a model response into the message appended
	// to the working conversation.
	assistantMessage(resp *llm.CompletionResponse) types.Message

	// toolResultMessages converts executed tool calls into the messages
	// that carry their results back to the model.
	toolResultMessages(exchanges []toolExchange) []types.Message
}

// selectStrategy picks the conversation shape for a provider family. Models
// without native tool calling always get the text-only strategy regardless
// of family.
func selectStrategy(providerFamily string, caps types.ModelCapabilities) strategy {
	if !caps.SupportsToolCalling {
		return textOnlyStrategy{}
	}
	switch strings.ToLower(providerFamily) {
	case "anthropic":
		return blockStrategy{}
	case "openai", "llamacpp", "gemini", "groq", "deepseek", "mistral":
		return toolRoleStrategy{}
	default:
		return textOnlyStrategy{}
	}
}

// toolRoleStrategy is the OpenAI shape: assistant messages carry tool
// calls, and each tool result is a separate tool-role message linked by
// call ID.
type toolRoleStrategy struct{}

func (toolRoleStrategy) name() string        { return "tool-role" }
func (toolRoleStrategy) supportsTools() bool { return true }

func (toolRoleStrategy) initialMessages(history []types.Message, userPrompt string) []types.Message {
	msgs := make([]types.Message, 0, len(history)+1)
	msgs = append(msgs, history...)
	return append(msgs, types.Message{Role: "user", Content: userPrompt})
}

func (toolRoleStrategy) assistantMessage(resp *llm.CompletionResponse) types.Message {
	return types.Message{
		Role:      "assistant",
		Content:   resp.Content,
		ToolCalls: resp.ToolCalls,
	}
}

func (toolRoleStrategy) toolResultMessages(exchanges []toolExchange) []types.Message {
	msgs := make([]types.Message, 0, len(exchanges))
	for _, ex := range exchanges {
		msgs = append(msgs, types.Message{
			Role:       "tool",
			Content:    ex.output,
			ToolCallID: ex.call.ID,
		})
	}
	return msgs
}

// blockStrategy is the Anthropic shape: tool use lives in typed content
// blocks inside the assistant message, and tool results come back as
// tool_result blocks inside a single user message.
type blockStrategy struct{}

func (blockStrategy) name() string        { return "content-blocks" }
func (blockStrategy) supportsTools() bool { return true }

func (blockStrategy) initialMessages(history []types.Message, userPrompt string) []types.Message {
	msgs := make([]types.Message, 0, len(history)+1)
	msgs = append(msgs, history...)
	return append(msgs, types.Message{Role: "user", Content: userPrompt})
}

func (blockStrategy) assistantMessage(resp *llm.CompletionResponse) types.Message {
	msg := types.Message{Role: "assistant"}
	if resp.Content != "" {
		msg.Blocks = append(msg.Blocks, types.ContentBlock{Type: "text", Text: resp.Content})
	}
	for _, tc := range resp.ToolCalls {
		msg.Blocks = append(msg.Blocks, types.ContentBlock{
			Type:       "tool_use",
			ToolCallID: tc.ID,
			ToolName:   tc.Name,
			Input:      tc.Arguments,
		})
	}
	return msg
}

func (blockStrategy) toolResultMessages(exchanges []toolExchange) []types.Message {
	msg := types.Message{Role: "user"}
	for _, ex := range exchanges {
		msg.Blocks = append(msg.Blocks, types.ContentBlock{
			Type:       "tool_result",
			ToolCallID: ex.call.ID,
			Content:    ex.output,
			IsError:    ex.isError,
		})
	}
	return []types.Message{msg}
}

// textOnlyStrategy serves models without tool calling: the last
// textOnlyWindow history messages are flattened into one transcript-style
// user message, tools are withheld, and the loop runs a single iteration.
type textOnlyStrategy struct{}

func (textOnlyStrategy) name() string        { return "text-only" }
func (textOnlyStrategy) supportsTools() bool { return false }

func (textOnlyStrategy) initialMessages(history []types.Message, userPrompt string) []types.Message {
	if len(history) > textOnlyWindow {
		history = history[len(history)-textOnlyWindow:]
	}

	var sb strings.Builder
	for _, m := range history {
		content := m.Content
		if content == "" {
			continue
		}
		switch m.Role {
		case "user":
			sb.WriteString("User: ")
		case "assistant":
			sb.WriteString("Assistant: ")
		default:
			continue
		}
		sb.WriteString(content)
		sb.WriteString("\n")
	}
	sb.WriteString("User: ")
	sb.WriteString(userPrompt)

	return []types.Message{{Role: "user", Content: sb.String()}}
}

func (textOnlyStrategy) assistantMessage(resp *llm.CompletionResponse) types.Message {
	return types.Message{Role: "assistant", Content: resp.Content}
}

func (textOnlyStrategy) toolResultMessages([]toolExchange) []types.Message {
	// Tools are never offered, so there is nothing to carry back.
	return nil
}
