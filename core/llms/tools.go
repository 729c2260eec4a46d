package llms

import (
	"encoding/json"
	"fmt"
	"reflect"

	"github.com/invopop/jsonschema"
)

// Tool is a named action the model may request during a conversation. The
// parameter schema is derived from the execute function's argument type.
type Tool struct {
	Function ToolFunction

	execute func(arguments string) (string, error)
}

// ToolFunction is the model-facing description of a tool.
type ToolFunction struct {
	Name        string
	Description string
	Parameters  *jsonschema.Schema
}

// NewTool builds a tool whose parameter schema is reflected from T. The
// execute callback receives the model-provided arguments already unmarshalled.
func NewTool[T any](name string, description string, execute func(T) (string, error)) Tool {
	reflector := jsonschema.Reflector{DoNotReference: true}

	var arguments T
	var schema *jsonschema.Schema
	if t := reflect.TypeOf(arguments); t != nil && t.Kind() == reflect.Ptr {
		schema = reflector.ReflectFromType(t.Elem())
	} else if t != nil {
		schema = reflector.ReflectFromType(t)
	}
	if schema != nil {
		// Top-level schema metadata is noise on a tool parameter object.
		schema.Version = ""
	}

	return Tool{
		Function: ToolFunction{
			Name:        name,
			Description: description,
			Parameters:  schema,
		},
		execute: func(rawArguments string) (string, error) {
			var parsed T
			if rawArguments != "" {
				if err := json.Unmarshal([]byte(rawArguments), &parsed); err != nil {
					return "", fmt.Errorf("failed to unmarshal arguments for tool %q: %w", name, err)
				}
			}
			return execute(parsed)
		},
	}
}

// Execute runs the tool against raw JSON arguments.
func (t Tool) Execute(arguments string) (string, error) {
	if t.execute == nil {
		return "", fmt.Errorf("tool %q has no executor", t.Function.Name)
	}
	return t.execute(arguments)
}
