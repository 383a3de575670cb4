package agent

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/agentcore/orchestrator/internal/tools/policy"
)

// definitionsDoc mirrors the on-disk shape of an agents.yaml file: a flat
// list of agent definitions, one entry per agent the manager should
// register at startup.
type definitionsDoc struct {
	Agents []definitionEntry `yaml:"agents"`
}

type definitionEntry struct {
	Name         string       `yaml:"name"`
	Description  string       `yaml:"description"`
	SystemPrompt string       `yaml:"system_prompt"`
	Tools        []string     `yaml:"tools"`
	ToolPolicy   *policyEntry `yaml:"tool_policy"`
	Temperature  *float64     `yaml:"temperature"`
	Remote       bool         `yaml:"remote"`
	Endpoint     string       `yaml:"endpoint"`
	Provider     string       `yaml:"provider"`
	Model        string       `yaml:"model"`
}

type policyEntry struct {
	Profile policy.Profile `yaml:"profile"`
	Allow   []string       `yaml:"allow"`
	Deny    []string       `yaml:"deny"`
}

// LoadDefinitions reads an agents.yaml file at path and returns the agent
// Definitions it describes. Environment variables of the form ${VAR} in
// the file are expanded before parsing, matching the convention used by
// the MCP servers manifest (§ internal/config/watch.go).
func LoadDefinitions(path string) ([]*Definition, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read agent definitions %s: %w", path, err)
	}

	expanded := os.ExpandEnv(string(data))

	var doc definitionsDoc
	if err := yaml.NewDecoder(strings.NewReader(expanded)).Decode(&doc); err != nil {
		return nil, fmt.Errorf("parse agent definitions %s: %w", path, err)
	}

	defs := make([]*Definition, 0, len(doc.Agents))
	seen := make(map[string]bool, len(doc.Agents))
	for i, entry := range doc.Agents {
		if entry.Name == "" {
			return nil, fmt.Errorf("agent definitions %s: entry %d is missing a name", path, i)
		}
		if seen[entry.Name] {
			return nil, fmt.Errorf("agent definitions %s: duplicate agent name %q", path, entry.Name)
		}
		seen[entry.Name] = true

		if entry.Remote && entry.Endpoint == "" {
			return nil, fmt.Errorf("agent definitions %s: agent %q is remote but has no endpoint", path, entry.Name)
		}

		def := &Definition{
			Name:                 entry.Name,
			Description:          entry.Description,
			SystemPromptTemplate: entry.SystemPrompt,
			ToolNames:            entry.Tools,
			IsRemote:             entry.Remote,
			Endpoint:             entry.Endpoint,
			Provider:             entry.Provider,
			Model:                entry.Model,
		}
		if entry.Temperature != nil {
			def.Temperature = *entry.Temperature
		}
		if entry.ToolPolicy != nil {
			p := policy.NewPolicy(entry.ToolPolicy.Profile)
			p.WithAllow(entry.ToolPolicy.Allow...)
			p.WithDeny(entry.ToolPolicy.Deny...)
			def.ToolPolicy = p
		} else {
			def.ToolPolicy = policy.NewPolicy(policy.ProfileMinimal)
		}

		defs = append(defs, def)
	}

	if len(defs) == 0 {
		return nil, fmt.Errorf("agent definitions %s: no agents defined", path)
	}

	return defs, nil
}
