// Package agent implements the agent execution engine: agent definitions,
// per-caller conversation history, attachment inlining, and the bounded
// tool-calling turn loop that bridges model providers and the tool
// registry.
//
// Agents are registered once at startup and are immutable afterwards.
// Conversation state lives in process memory for the lifetime of the
// service.
package agent

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"sort"
	"sync"

	"github.com/attestia/attestia/pkg/provider/llm"
)

// Definition is the static description of one agent.
type Definition struct {
	// ID is the unique agent identifier used in API routes and history
	// keys.
	ID string `yaml:"id"`

	// DisplayName is the human-readable name.
	DisplayName string `yaml:"displayName"`

	// Description summarises what the agent is for.
	Description string `yaml:"description"`

	// Provider names the configured provider entry backing this agent.
	Provider string `yaml:"provider"`

	// Family is the provider family (openai, anthropic, ollama, ...) of
	// that entry, filled in during startup wiring. It selects the
	// conversation-shaping strategy; when empty, Provider is used as the
	// family directly.
	Family string `yaml:"-"`

	// Model is the provider-specific model identifier.
	Model string `yaml:"model"`

	// Tools lists the registry tool names this agent may call.
	Tools []string `yaml:"tools"`

	// SystemPrompt is the agent's standing instruction.
	SystemPrompt string `yaml:"systemPrompt"`

	// Temperature is passed through to the provider. Zero means provider
	// default.
	Temperature float64 `yaml:"temperature"`

	// MaxTokens caps completion tokens per model call. Zero means provider
	// default.
	MaxTokens int `yaml:"maxTokens"`

	// Tags are free-form capability labels exposed in agent listings.
	Tags []string `yaml:"tags"`
}

// Validate checks the definition's required fields.
func (d Definition) Validate() error {
	if d.ID == "" {
		return fmt.Errorf("agent: definition requires an id")
	}
	if d.Provider == "" {
		return fmt.Errorf("agent %s: provider must not be empty", d.ID)
	}
	if d.Model == "" {
		return fmt.Errorf("agent %s: model must not be empty", d.ID)
	}
	return nil
}

// PromptTemplateID derives a stable identity for the agent's system prompt,
// reported in turn metadata so responses can be traced to the prompt
// revision that produced them.
func (d Definition) PromptTemplateID() string {
	sum := sha256.Sum256([]byte(d.SystemPrompt))
	return d.ID + "@" + hex.EncodeToString(sum[:4])
}

// registeredAgent pairs a definition with its provider instance.
type registeredAgent struct {
	def      Definition
	provider llm.Provider
}

// Roster holds the registered agents. Registration happens during startup
// wiring; afterwards the roster is read-only.
type Roster struct {
	mu     sync.RWMutex
	agents map[string]registeredAgent
}

// NewRoster creates an empty roster.
func NewRoster() *Roster {
	return &Roster{agents: make(map[string]registeredAgent)}
}

// Register adds an agent with its provider. Duplicate IDs are rejected:
// agents are defined once, not overwritten.
func (r *Roster) Register(def Definition, provider llm.Provider) error {
	if err := def.Validate(); err != nil {
		return err
	}
	if provider == nil {
		return fmt.Errorf("agent %s: provider instance must not be nil", def.ID)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.agents[def.ID]; exists {
		return fmt.Errorf("agent %s: already registered", def.ID)
	}
	r.agents[def.ID] = registeredAgent{def: def, provider: provider}
	return nil
}

// Get returns the definition and provider for id.
func (r *Roster) Get(id string) (Definition, llm.Provider, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	a, ok := r.agents[id]
	return a.def, a.provider, ok
}

// List returns all definitions sorted by ID.
func (r *Roster) List() []Definition {
	r.mu.RLock()
	defs := make([]Definition, 0, len(r.agents))
	for _, a := range r.agents {
		defs = append(defs, a.def)
	}
	r.mu.RUnlock()

	sort.Slice(defs, func(i, j int) bool { return defs[i].ID < defs[j].ID })
	return defs
}
