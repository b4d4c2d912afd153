package llm

import jsoniter "github.com/json-iterator/go"

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// schemaMap converts a JSON schema string to a map. Invalid or empty schemas
// yield an empty object schema.
func schemaMap(schema string) map[string]any {
	out := map[string]any{}
	if schema == "" {
		out["type"] = "object"
		return out
	}
	if err := json.Unmarshal([]byte(schema), &out); err != nil {
		return map[string]any{"type": "object"}
	}
	return out
}

// argsMap decodes tool call arguments into a map; malformed input yields an
// empty map.
func argsMap(input string) map[string]any {
	args := map[string]any{}
	if input != "" {
		_ = json.Unmarshal([]byte(input), &args)
	}
	return args
}
