package tools

import "fmt"

// validateArgs checks a call's arguments against the tool's parameter
// schema before the handler runs: required keys must be present, value
// types must match, and unknown keys are rejected. A lightweight check
// of the JSON-schema subset the tools actually declare.
func validateArgs(t *Tool, args map[string]any) error {
	props, _ := t.Parameters["properties"].(map[string]any)

	required, _ := t.Parameters["required"].([]string)
	for _, key := range required {
		if _, ok := args[key]; !ok {
			return &ErrInvalidArguments{ToolName: t.Name, Reason: fmt.Sprintf("missing required parameter %q", key)}
		}
	}

	for key, value := range args {
		spec, ok := props[key].(map[string]any)
		if !ok {
			return &ErrInvalidArguments{ToolName: t.Name, Reason: fmt.Sprintf("unknown parameter %q", key)}
		}
		if value == nil {
			continue
		}
		wantType, _ := spec["type"].(string)
		if err := checkType(key, wantType, value); err != nil {
			return &ErrInvalidArguments{ToolName: t.Name, Reason: err.Error()}
		}
	}
	return nil
}

func checkType(key, wantType string, value any) error {
	switch wantType {
	case "string":
		if _, ok := value.(string); !ok {
			return fmt.Errorf("parameter %q must be a string", key)
		}
	case "integer", "number":
		// JSON numbers decode as float64; models sometimes send
		// integers as strings, which handlers do not accept.
		switch value.(type) {
		case float64, int:
		default:
			return fmt.Errorf("parameter %q must be a number", key)
		}
	case "boolean":
		if _, ok := value.(bool); !ok {
			return fmt.Errorf("parameter %q must be a boolean", key)
		}
	case "object":
		if _, ok := value.(map[string]any); !ok {
			return fmt.Errorf("parameter %q must be an object", key)
		}
	}
	return nil
}

// stringArg returns the string value for key, or "" when absent.
func stringArg(args map[string]any, key string) string {
	s, _ := args[key].(string)
	return s
}

// intArg returns the integer value for key, or def when absent.
func intArg(args map[string]any, key string, def int) int {
	switch v := args[key].(type) {
	case float64:
		return int(v)
	case int:
		return v
	}
	return def
}
