package domain

// SchemaType defines the type of a source API description used to import operations.
type SchemaType string

const (
	SchemaTypeOpenAPI SchemaType = "openapi"
	SchemaTypeGitHub  SchemaType = "github" // GitHub-hosted OpenAPI documents
)

// APISchema represents a fetched API description before it is turned into
// endpoint and operation configuration.
type APISchema struct {
	// Source indicates the origin of the document (URL, file path, github:// reference).
	Source string
	// Type specifies the kind of document.
	Type SchemaType
	// RawData holds the unprocessed document content (JSON or YAML).
	RawData []byte
	// ParsedData holds the document parsed into a library-specific representation,
	// *openapi3.T for OpenAPI.
	ParsedData interface{}
}
