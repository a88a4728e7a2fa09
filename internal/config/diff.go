package config

import (
	"slices"

	"github.com/attestia/attestia/internal/agent"
)

// ConfigDiff describes what changed between two configs.
// Only fields that can be safely hot-reloaded are tracked.
type ConfigDiff struct {
	AgentsChanged   bool        // true if any agent prompt, model, tools, or tags changed
	AgentChanges    []AgentDiff // per-agent diffs
	LogLevelChanged bool
	NewLogLevel     LogLevel
	BudgetChanged   bool
	NewDailyCap     int64
}

// AgentDiff describes what changed for a single agent between two configs.
type AgentDiff struct {
	ID                  string
	SystemPromptChanged bool
	ModelChanged        bool
	ToolsChanged        bool
	TagsChanged         bool
	Added               bool
	Removed             bool
}

// Diff compares old and new configs and returns what changed.
// Only tracks changes that are safe to apply without restart; provider
// credentials and server settings require a restart.
func Diff(old, new *Config) ConfigDiff {
	d := ConfigDiff{}

	if old.Server.LogLevel != new.Server.LogLevel {
		d.LogLevelChanged = true
		d.NewLogLevel = new.Server.LogLevel
	}

	if old.Budget.DailyTokenCap != new.Budget.DailyTokenCap {
		d.BudgetChanged = true
		d.NewDailyCap = new.Budget.DailyTokenCap
	}

	oldAgents := make(map[string]int, len(old.Agents))
	for i := range old.Agents {
		oldAgents[old.Agents[i].ID] = i
	}
	newAgents := make(map[string]int, len(new.Agents))
	for i := range new.Agents {
		newAgents[new.Agents[i].ID] = i
	}

	// Detect modified and removed agents.
	for id, oi := range oldAgents {
		ni, exists := newAgents[id]
		if !exists {
			d.AgentChanges = append(d.AgentChanges, AgentDiff{ID: id, Removed: true})
			d.AgentsChanged = true
			continue
		}
		ad := diffAgent(id, &old.Agents[oi], &new.Agents[ni])
		if ad.SystemPromptChanged || ad.ModelChanged || ad.ToolsChanged || ad.TagsChanged {
			d.AgentChanges = append(d.AgentChanges, ad)
			d.AgentsChanged = true
		}
	}

	// Detect added agents.
	for id := range newAgents {
		if _, exists := oldAgents[id]; !exists {
			d.AgentChanges = append(d.AgentChanges, AgentDiff{ID: id, Added: true})
			d.AgentsChanged = true
		}
	}

	return d
}

// diffAgent compares two agent definitions with the same ID.
func diffAgent(id string, old, new *agent.Definition) AgentDiff {
	ad := AgentDiff{ID: id}

	if old.SystemPrompt != new.SystemPrompt {
		ad.SystemPromptChanged = true
	}
	if old.Model != new.Model || old.Provider != new.Provider {
		ad.ModelChanged = true
	}
	if !slices.Equal(old.Tools, new.Tools) {
		ad.ToolsChanged = true
	}
	if !slices.Equal(old.Tags, new.Tags) {
		ad.TagsChanged = true
	}

	return ad
}
