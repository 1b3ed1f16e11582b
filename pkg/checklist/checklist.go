package checklist

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Item is a single interview topic the agent must (or may) cover
type Item struct {
	ID       string   `json:"id" yaml:"id"`             // Unique identifier for the topic
	Question string   `json:"question" yaml:"question"` // Prompt text the agent asks
	Keywords []string `json:"keywords" yaml:"keywords"` // Keywords that mark the topic as covered
	Required bool     `json:"required" yaml:"required"` // Whether the topic is mandatory
	Category string   `json:"category" yaml:"category"` // Grouping label for the UI
}

// Definition is the ordered list of interview topics. It is loaded once
// before a session starts and is immutable for the session's duration
type Definition struct {
	Items []Item `json:"items" yaml:"items"`
}

// LoadDefinition reads a checklist definition from a YAML file
func LoadDefinition(path string) (*Definition, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read checklist file: %w", err)
	}

	var def Definition
	if err := yaml.Unmarshal(data, &def); err != nil {
		return nil, fmt.Errorf("failed to parse checklist file: %w", err)
	}

	if err := def.Validate(); err != nil {
		return nil, err
	}

	return &def, nil
}

// Validate checks the definition for structural problems
func (d *Definition) Validate() error {
	if len(d.Items) == 0 {
		return fmt.Errorf("checklist has no items")
	}

	seen := make(map[string]bool, len(d.Items))
	for i, item := range d.Items {
		if item.ID == "" {
			return fmt.Errorf("checklist item %d has no id", i)
		}
		if seen[item.ID] {
			return fmt.Errorf("duplicate checklist item id '%s'", item.ID)
		}
		seen[item.ID] = true

		if len(item.Keywords) == 0 {
			return fmt.Errorf("checklist item '%s' has no keywords", item.ID)
		}
	}

	return nil
}

// FirstPrompt returns the opening question used to seed the conversation
func (d *Definition) FirstPrompt() string {
	if len(d.Items) == 0 {
		return ""
	}
	return d.Items[0].Question
}
