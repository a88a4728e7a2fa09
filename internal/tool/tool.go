// Package tool implements the capability registry at the centre of the
// Attestia orchestration core.
//
// A [Tool] is a named, schema-described callable with a handler. The
// [Registry] validates calls against the declared parameter schema, applies
// per-caller rate limits, wraps externally classified tools in circuit
// breakers, and leaves an audit trail for every attempted execution.
//
// Tools are registered once at process start; the registry holds
// process-wide mutable state with no external persistence — tools are
// redefined, not edited, on each startup.
package tool

import (
	"context"

	"github.com/attestia/attestia/pkg/types"
)

// Classification describes where a tool's side effects land.
type Classification string

const (
	// ClassInternal tools touch only Attestia-owned state.
	ClassInternal Classification = "internal"

	// ClassExternal tools call out to third-party systems and run under a
	// circuit breaker.
	ClassExternal Classification = "external"

	// ClassHybrid tools combine both.
	ClassHybrid Classification = "hybrid"
)

// IsValid reports whether c is a recognised classification.
func (c Classification) IsValid() bool {
	return c == ClassInternal || c == ClassExternal || c == ClassHybrid
}

// ParamType is the primitive type of a declared parameter.
type ParamType string

const (
	TypeString  ParamType = "string"
	TypeNumber  ParamType = "number"
	TypeBoolean ParamType = "boolean"
	TypeObject  ParamType = "object"
	TypeArray   ParamType = "array"
)

// Parameter declares a single tool input.
type Parameter struct {
	// Name is the parameter key in the call's argument map.
	Name string

	// Type is the expected primitive type.
	Type ParamType

	// Description explains the parameter in tool documentation and model
	// schemas.
	Description string

	// Required marks the parameter as mandatory.
	Required bool

	// Enum restricts string parameters to a fixed value set when non-empty.
	Enum []string

	// Default is included in the projected schema for documentation; the
	// registry does not inject defaults into calls.
	Default any
}

// RateLimit is a fixed-window call quota applied per (tool, caller).
type RateLimit struct {
	// MaxCalls is the number of calls permitted within one window.
	MaxCalls int

	// WindowMs is the window length in milliseconds.
	WindowMs int64
}

// Result is the outcome of a tool execution.
//
// Invariant: when Success is false, Data is nil and Error is non-empty.
type Result struct {
	Success  bool           `json:"success"`
	Data     any            `json:"data,omitempty"`
	Error    string         `json:"error,omitempty"`
	Metadata map[string]any `json:"metadata,omitempty"`
}

// Failure builds an unsuccessful [Result] with the given message.
func Failure(msg string) Result {
	return Result{Success: false, Error: msg}
}

// Handler executes a tool call. params has already passed schema
// validation; inv carries the resolved caller identity.
//
// A returned error is treated as an internal fault (audited at high
// severity, message sanitized in production); business-level failures
// should instead be reported via a Result with Success=false.
type Handler func(ctx context.Context, params map[string]any, inv types.InvocationContext) (Result, error)

// Tool is a registered capability.
type Tool struct {
	// Name is the globally unique identifier.
	Name string

	// Description is the human-readable summary shown in documentation and
	// model schemas.
	Description string

	// Classification describes the tool's side-effect surface.
	Classification Classification

	// Parameters is the ordered input schema.
	Parameters []Parameter

	// Returns describes the shape of Result.Data (documentation only).
	Returns string

	// RateLimit is the optional per-caller call quota. Nil means
	// unlimited.
	RateLimit *RateLimit

	// RequiresAuth rejects calls whose invocation context carries no
	// authenticated user.
	RequiresAuth bool

	// Handler performs the work. Not validated at registration time —
	// a malformed handler fails at call time.
	Handler Handler
}

// Doc is the externally visible documentation for a tool. It exposes
// exactly the declared surface — never the handler.
type Doc struct {
	Name           string         `json:"name"`
	Description    string         `json:"description"`
	Classification Classification `json:"classification"`
	Parameters     []Parameter    `json:"parameters"`
	Returns        string         `json:"returns,omitempty"`
	RateLimit      *RateLimit     `json:"rateLimit,omitempty"`
	RequiresAuth   bool           `json:"requiresAuth"`
}

// Doc returns the tool's documentation projection.
func (t Tool) Doc() Doc {
	var rl *RateLimit
	if t.RateLimit != nil {
		cp := *t.RateLimit
		rl = &cp
	}
	return Doc{
		Name:           t.Name,
		Description:    t.Description,
		Classification: t.Classification,
		Parameters:     append([]Parameter(nil), t.Parameters...),
		Returns:        t.Returns,
		RateLimit:      rl,
		RequiresAuth:   t.RequiresAuth,
	}
}

// Definition projects the tool into the JSON-Schema shape offered to model
// providers.
func (t Tool) Definition() types.ToolDefinition {
	properties := make(map[string]any, len(t.Parameters))
	var required []string
	for _, p := range t.Parameters {
		prop := map[string]any{
			"type": string(p.Type),
		}
		if p.Description != "" {
			prop["description"] = p.Description
		}
		if len(p.Enum) > 0 {
			prop["enum"] = p.Enum
		}
		if p.Default != nil {
			prop["default"] = p.Default
		}
		properties[p.Name] = prop
		if p.Required {
			required = append(required, p.Name)
		}
	}

	schema := map[string]any{
		"type":       "object",
		"properties": properties,
	}
	if len(required) > 0 {
		schema["required"] = required
	}

	return types.ToolDefinition{
		Name:        t.Name,
		Description: t.Description,
		Parameters:  schema,
	}
}
