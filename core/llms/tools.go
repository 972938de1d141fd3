package llms

import (
	"encoding/json"
	"fmt"
)

// Tool is a function the model may call during generation. Function carries
// the schema advertised to the model; Execute runs the registered callback
// against the model-provided arguments.
type Tool struct {
	Type     string
	Function ToolFunction

	execute func(arguments string) (string, error)
}

// ToolFunction describes a tool to the model.
type ToolFunction struct {
	Name        string
	Description string
	Parameters  ToolParameters
}

// ToolParameters is a flat JSON-schema object description.
type ToolParameters struct {
	Type       string
	Properties map[string]ParameterBase
	Required   []string
}

// ParameterBase describes one tool parameter.
type ParameterBase struct {
	Type        string
	Description string
}

// NewTool builds a Tool whose callback receives the model's arguments
// unmarshalled into T. All declared parameters are marked required.
func NewTool[T any](name, description string, parameters map[string]ParameterBase, callback func(T) (string, error)) Tool {
	required := make([]string, 0, len(parameters))
	for parameter := range parameters {
		required = append(required, parameter)
	}

	return Tool{
		Type: "function",
		Function: ToolFunction{
			Name:        name,
			Description: description,
			Parameters: ToolParameters{
				Type:       "object",
				Properties: parameters,
				Required:   required,
			},
		},
		execute: func(arguments string) (string, error) {
			var parsed T
			if err := json.Unmarshal([]byte(arguments), &parsed); err != nil {
				return "", fmt.Errorf("failed to parse tool arguments: %w", err)
			}
			return callback(parsed)
		},
	}
}

// Execute runs the tool against raw JSON arguments.
func (t Tool) Execute(arguments string) (string, error) {
	if t.execute == nil {
		return "", fmt.Errorf("tool %q has no callback", t.Function.Name)
	}
	return t.execute(arguments)
}
