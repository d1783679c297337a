package domain

// Kind is the value type carried by a Field.
type Kind string

const (
	KindString  Kind = "string"
	KindInteger Kind = "integer"
	KindNumber  Kind = "number"
	KindBoolean Kind = "boolean"
	KindURI     Kind = "uri"
	KindStream  Kind = "stream"
	KindObject  Kind = "object"
	// KindAny accepts any decoded value as-is.
	KindAny Kind = "any"
)

// CollectionFormat is the wire serialization rule for a repeated query parameter.
type CollectionFormat string

const (
	CollectionCSV           CollectionFormat = "CSV"
	CollectionMulti         CollectionFormat = "MULTI"
	CollectionLabel         CollectionFormat = "LABEL"
	CollectionMatrixImplode CollectionFormat = "MATRIX_IMPLODE"
	CollectionMatrixExplode CollectionFormat = "MATRIX_EXPLODE"
)

// Field describes one node of a structural shape: a parameter, a body property,
// or a section grouping other fields.
type Field struct {
	Name  string `json:"name" yaml:"name"`
	Alias string `json:"alias,omitempty" yaml:"alias,omitempty"`
	Type  Kind   `json:"type,omitempty" yaml:"type,omitempty"`
	// MinOccurs greater than zero marks the field as required.
	MinOccurs int `json:"minOccurs,omitempty" yaml:"minOccurs,omitempty"`
	// Repeated fields carry a list of values. MaxOccurs bounds the list, zero means unbounded.
	Repeated         bool             `json:"repeated,omitempty" yaml:"repeated,omitempty"`
	MaxOccurs        int              `json:"maxOccurs,omitempty" yaml:"maxOccurs,omitempty"`
	CollectionFormat CollectionFormat `json:"collectionFormat,omitempty" yaml:"collectionFormat,omitempty"`
	Description      string           `json:"description,omitempty" yaml:"description,omitempty"`
	Enum             []string         `json:"enum,omitempty" yaml:"enum,omitempty"`
	Fields           []*Field         `json:"fields,omitempty" yaml:"fields,omitempty"`
}

// Kind returns the effective type. Fields with children are objects, untyped leaves are strings.
func (f *Field) Kind() Kind {
	if f.Type != "" {
		return f.Type
	}
	if len(f.Fields) > 0 {
		return KindObject
	}
	return KindString
}

// Required reports whether the field must be present.
func (f *Field) Required() bool {
	return f.MinOccurs > 0
}

// WireName is the name used on the wire: the alias when set, otherwise the name.
func (f *Field) WireName() string {
	if f.Alias != "" {
		return f.Alias
	}
	return f.Name
}

// Format returns the collection format, CSV when unset.
func (f *Field) Format() CollectionFormat {
	if f.CollectionFormat == "" {
		return CollectionCSV
	}
	return f.CollectionFormat
}

// Field returns the direct child with the given name, or nil.
func (f *Field) Field(name string) *Field {
	if f == nil {
		return nil
	}
	for _, child := range f.Fields {
		if child.Name == name {
			return child
		}
	}
	return nil
}

// AnyRequired reports whether at least one child is required.
func (f *Field) AnyRequired() bool {
	for _, child := range f.Fields {
		if child.Required() {
			return true
		}
	}
	return false
}

// Clone returns a deep copy.
func (f *Field) Clone() *Field {
	if f == nil {
		return nil
	}
	c := *f
	if f.Enum != nil {
		c.Enum = append([]string(nil), f.Enum...)
	}
	if f.Fields != nil {
		c.Fields = make([]*Field, len(f.Fields))
		for i, child := range f.Fields {
			c.Fields[i] = child.Clone()
		}
	}
	return &c
}

// CloneFields deep copies a field list.
func CloneFields(fields []*Field) []*Field {
	if fields == nil {
		return nil
	}
	out := make([]*Field, len(fields))
	for i, f := range fields {
		out[i] = f.Clone()
	}
	return out
}

// Names of the sections of a derived input or output shape.
const (
	SectionTransactionID  = "transactionId"
	SectionEndpoint       = "endpoint"
	SectionQuery          = "query"
	SectionHeader         = "header"
	SectionPath           = "path"
	SectionContent        = "content"
	SectionAuthentication = "authentication"
	SectionAPIHeaderKey   = "apiHeaderKey"
	SectionAPIQueryKey    = "apiQueryKey"
)

// DerivedSchema is the synthesized input and output shape of an operation.
type DerivedSchema struct {
	Input  *Field `json:"input"`
	Output *Field `json:"output"`
}

// Section returns the named input section, or nil when the configuration does not produce it.
func (s *DerivedSchema) Section(name string) *Field {
	if s == nil {
		return nil
	}
	return s.Input.Field(name)
}

// OutputSection returns the named output section, or nil.
func (s *DerivedSchema) OutputSection(name string) *Field {
	if s == nil {
		return nil
	}
	return s.Output.Field(name)
}
