package mcpserver

// JSONSchema describes tool input parameters in JSON Schema form.
type JSONSchema struct {
	Type        string                 `json:"type"`
	Description string                 `json:"description,omitempty"`
	Properties  map[string]*JSONSchema `json:"properties,omitempty"`
	Required    []string               `json:"required,omitempty"`
	Enum        []string               `json:"enum,omitempty"`
	Default     any                    `json:"default,omitempty"`
	Minimum     *float64               `json:"minimum,omitempty"`
	Maximum     *float64               `json:"maximum,omitempty"`
}

// Definition is the tool definition advertised by tools/list.
type Definition struct {
	Name        string      `json:"name"`
	Description string      `json:"description"`
	InputSchema *JSONSchema `json:"inputSchema"`
}

// objectSchema builds an object schema. Clients expect properties and
// required to be present even when empty.
func objectSchema(props map[string]*JSONSchema, required ...string) *JSONSchema {
	if props == nil {
		props = map[string]*JSONSchema{}
	}
	if required == nil {
		required = []string{}
	}
	return &JSONSchema{Type: "object", Properties: props, Required: required}
}

func floatPtr(v float64) *float64 { return &v }
