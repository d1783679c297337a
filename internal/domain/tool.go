package domain

// Tool is an operation as presented to a Model Context Protocol client.
type Tool struct {
	// Name is the operation id. It MUST be unique within the MCP server.
	Name string `json:"name"`

	// Description tells the model when to use the tool.
	Description string `json:"description"`

	// InputSchema is the JSON Schema of the derived input shape.
	InputSchema JSONSchemaProps `json:"input_schema"`

	// OutputSchema is the JSON Schema of the derived output shape.
	OutputSchema *JSONSchemaProps `json:"output_schema,omitempty"`
}

// JSONSchemaProps represents the properties of a JSON schema.
type JSONSchemaProps struct {
	Type        string                     `json:"type,omitempty"`
	Description string                     `json:"description,omitempty"`
	Properties  map[string]JSONSchemaProps `json:"properties,omitempty"`
	Required    []string                   `json:"required,omitempty"`
	Items       *JSONSchemaProps           `json:"items,omitempty"`
	Format      string                     `json:"format,omitempty"`
	Enum        []interface{}              `json:"enum,omitempty"`
	MaxItems    *int                       `json:"maxItems,omitempty"`
}

// NewTool describes an operation from its configuration and derived schema.
func NewTool(cfg OperationConfig, schema *DerivedSchema) Tool {
	description := cfg.Description
	if description == "" {
		description = "Executes " + cfg.EffectiveMethod() + " " + cfg.Path
	}
	tool := Tool{
		Name:        cfg.ID,
		Description: description,
		InputSchema: FieldJSONSchema(schema.Input),
	}
	if schema.Output != nil && len(schema.Output.Fields) > 0 {
		out := FieldJSONSchema(schema.Output)
		tool.OutputSchema = &out
	}
	return tool
}

// FieldJSONSchema converts a field tree to JSON Schema. Repeated fields become arrays.
func FieldJSONSchema(f *Field) JSONSchemaProps {
	if f == nil {
		return JSONSchemaProps{Type: "object"}
	}
	item := scalarJSONSchema(f)
	if f.Kind() == KindObject {
		item.Type = "object"
		if len(f.Fields) > 0 {
			item.Properties = make(map[string]JSONSchemaProps, len(f.Fields))
		}
		for _, child := range f.Fields {
			item.Properties[child.Name] = FieldJSONSchema(child)
			if child.Required() {
				item.Required = append(item.Required, child.Name)
			}
		}
	}
	if !f.Repeated {
		return item
	}
	arr := JSONSchemaProps{Type: "array", Description: item.Description, Items: &item}
	item.Description = ""
	if f.MaxOccurs > 0 {
		max := f.MaxOccurs
		arr.MaxItems = &max
	}
	return arr
}

func scalarJSONSchema(f *Field) JSONSchemaProps {
	props := JSONSchemaProps{Description: f.Description}
	for _, e := range f.Enum {
		props.Enum = append(props.Enum, e)
	}
	switch f.Kind() {
	case KindInteger:
		props.Type = "integer"
	case KindNumber:
		props.Type = "number"
	case KindBoolean:
		props.Type = "boolean"
	case KindURI:
		props.Type = "string"
		props.Format = "uri"
	case KindStream:
		props.Type = "string"
		props.Format = "binary"
	case KindAny:
		// no type constraint
	default:
		props.Type = "string"
	}
	return props
}
