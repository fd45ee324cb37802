package llm

// Tool is the declaration half of a capability: everything a model needs to
// know in order to request it. Declarations are immutable once registered.
type Tool interface {
	Name() string
	Description() string
	// Parameters returns the JSON schema "properties" of the tool input.
	Parameters() map[string]any
	RequiredParameters() []string
}

// ToolSchema renders the full JSON schema object for a tool's input.
func ToolSchema(t Tool) map[string]any {
	props := t.Parameters()
	if props == nil {
		props = map[string]any{}
	}
	schema := map[string]any{
		"type":       "object",
		"properties": props,
	}
	if req := t.RequiredParameters(); len(req) > 0 {
		schema["required"] = req
	}
	return schema
}

// ToolsToFunctionFormat converts declarations into the generic
// {"type":"function","function":{...}} shape shared by OpenAI compatible
// and Ollama APIs.
func ToolsToFunctionFormat(tools []Tool) []map[string]any {
	if len(tools) == 0 {
		return nil
	}
	out := make([]map[string]any, 0, len(tools))
	for _, t := range tools {
		out = append(out, map[string]any{
			"type": "function",
			"function": map[string]any{
				"name":        t.Name(),
				"description": t.Description(),
				"parameters":  ToolSchema(t),
			},
		})
	}
	return out
}
