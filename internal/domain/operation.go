package domain

import (
	"strings"
	"sync"
)

// EndpointConfig holds defaults shared by many operations.
type EndpointConfig struct {
	Name     string `json:"name" yaml:"-"`
	Host     string `json:"host,omitempty" yaml:"host,omitempty"`
	BasePath string `json:"basePath,omitempty" yaml:"basePath,omitempty"`
	Secure   *bool  `json:"secure,omitempty" yaml:"secure,omitempty"`
	Charset  string `json:"charset,omitempty" yaml:"charset,omitempty"`
	Gzip     *bool  `json:"gzip,omitempty" yaml:"gzip,omitempty"`

	Username                    string   `json:"username,omitempty" yaml:"username,omitempty"`
	Password                    string   `json:"-" yaml:"password,omitempty"`
	PreemptiveAuthorizationType AuthType `json:"preemptiveAuthorizationType,omitempty" yaml:"preemptiveAuthorizationType,omitempty"`

	RequestType  ContentType `json:"requestType,omitempty" yaml:"requestType,omitempty"`
	ResponseType ContentType `json:"responseType,omitempty" yaml:"responseType,omitempty"`
	UserAgent    string      `json:"userAgent,omitempty" yaml:"userAgent,omitempty"`

	// A fixed key is injected automatically. A name without a key asks the caller for one.
	APIHeaderName string `json:"apiHeaderName,omitempty" yaml:"apiHeaderName,omitempty"`
	APIHeaderKey  string `json:"-" yaml:"apiHeaderKey,omitempty"`
	APIQueryName  string `json:"apiQueryName,omitempty" yaml:"apiQueryName,omitempty"`
	APIQueryKey   string `json:"-" yaml:"apiQueryKey,omitempty"`

	SecurityType    string `json:"securityType,omitempty" yaml:"securityType,omitempty"`
	SecurityContext string `json:"securityContext,omitempty" yaml:"securityContext,omitempty"`

	OmitContentLengthIfEmpty bool   `json:"omitContentLengthIfEmpty,omitempty" yaml:"omitContentLengthIfEmpty,omitempty"`
	HTTPClient               string `json:"httpClient,omitempty" yaml:"httpClient,omitempty"`
}

// OperationConfig is the declarative description of one REST call.
type OperationConfig struct {
	ID          string `json:"id" yaml:"-"`
	Description string `json:"description,omitempty" yaml:"description,omitempty"`
	Endpoint    string `json:"endpoint,omitempty" yaml:"endpoint,omitempty"`

	Method string `json:"method,omitempty" yaml:"method,omitempty"`
	Host   string `json:"host,omitempty" yaml:"host,omitempty"`
	Secure *bool  `json:"secure,omitempty" yaml:"secure,omitempty"`
	Path   string `json:"path,omitempty" yaml:"path,omitempty"`

	// Comma or whitespace separated parameter name lists.
	QueryParameters string `json:"queryParameters,omitempty" yaml:"queryParameters,omitempty"`
	RequestHeaders  string `json:"requestHeaders,omitempty" yaml:"requestHeaders,omitempty"`
	ResponseHeaders string `json:"responseHeaders,omitempty" yaml:"responseHeaders,omitempty"`

	InputAsStream  bool   `json:"inputAsStream,omitempty" yaml:"inputAsStream,omitempty"`
	OutputAsStream bool   `json:"outputAsStream,omitempty" yaml:"outputAsStream,omitempty"`
	Input          *Field `json:"input,omitempty" yaml:"input,omitempty"`
	Output         *Field `json:"output,omitempty" yaml:"output,omitempty"`

	RequestType  ContentType `json:"requestType,omitempty" yaml:"requestType,omitempty"`
	ResponseType ContentType `json:"responseType,omitempty" yaml:"responseType,omitempty"`
	Charset      string      `json:"charset,omitempty" yaml:"charset,omitempty"`
	Gzip         *bool       `json:"gzip,omitempty" yaml:"gzip,omitempty"`

	Username                    string   `json:"username,omitempty" yaml:"username,omitempty"`
	Password                    string   `json:"-" yaml:"password,omitempty"`
	PreemptiveAuthorizationType AuthType `json:"preemptiveAuthorizationType,omitempty" yaml:"preemptiveAuthorizationType,omitempty"`

	Lenient                  *bool `json:"lenient,omitempty" yaml:"lenient,omitempty"`
	ValidateInput            bool  `json:"validateInput,omitempty" yaml:"validateInput,omitempty"`
	ValidateOutput           bool  `json:"validateOutput,omitempty" yaml:"validateOutput,omitempty"`
	SanitizeOutput           bool  `json:"sanitizeOutput,omitempty" yaml:"sanitizeOutput,omitempty"`
	CamelCaseDashes          bool  `json:"camelCaseDashes,omitempty" yaml:"camelCaseDashes,omitempty"`
	IgnoreRootIfArrayWrapper *bool `json:"ignoreRootIfArrayWrapper,omitempty" yaml:"ignoreRootIfArrayWrapper,omitempty"`

	HTTPClient string `json:"httpClient,omitempty" yaml:"httpClient,omitempty"`

	// Persisted parameter fragments. They carry metadata added to derived fields
	// (occurrence bounds, collection formats) across restarts.
	QueryFields          []*Field `json:"queryFields,omitempty" yaml:"queryFields,omitempty"`
	RequestHeaderFields  []*Field `json:"requestHeaderFields,omitempty" yaml:"requestHeaderFields,omitempty"`
	ResponseHeaderFields []*Field `json:"responseHeaderFields,omitempty" yaml:"responseHeaderFields,omitempty"`
	PathFields           []*Field `json:"pathFields,omitempty" yaml:"pathFields,omitempty"`
}

// EffectiveMethod returns the upper-cased method, GET when unset.
func (c OperationConfig) EffectiveMethod() string {
	if strings.TrimSpace(c.Method) == "" {
		return "GET"
	}
	return strings.ToUpper(strings.TrimSpace(c.Method))
}

// IsLenient defaults to true.
func (c OperationConfig) IsLenient() bool {
	return c.Lenient == nil || *c.Lenient
}

// UnwrapRootArray defaults to true.
func (c OperationConfig) UnwrapRootArray() bool {
	return c.IgnoreRootIfArrayWrapper == nil || *c.IgnoreRootIfArrayWrapper
}

// DeriveFunc synthesizes the schema of an operation. prev is the previously derived
// schema, nil on first derivation.
type DeriveFunc func(cfg OperationConfig, endpoint *EndpointConfig, prev *DerivedSchema) *DerivedSchema

// Operation couples a configuration with its lazily derived schema.
// The schema is the only mutable shared state and is guarded by mu.
type Operation struct {
	mu       sync.RWMutex
	config   OperationConfig
	endpoint *EndpointConfig
	schema   *DerivedSchema
	// prev keeps the last derived schema across invalidations so that
	// preserved field metadata survives a configuration edit.
	prev *DerivedSchema
}

// NewOperation creates an operation holder. endpoint may be nil.
func NewOperation(cfg OperationConfig, endpoint *EndpointConfig) *Operation {
	return &Operation{config: cfg, endpoint: endpoint}
}

// Name returns the operation id.
func (o *Operation) Name() string {
	o.mu.RLock()
	defer o.mu.RUnlock()
	return o.config.ID
}

// Config returns a copy of the configuration and the referenced endpoint.
func (o *Operation) Config() (OperationConfig, *EndpointConfig) {
	o.mu.RLock()
	defer o.mu.RUnlock()
	return o.config, o.endpoint
}

// Schema returns the cached schema, deriving it on first access.
func (o *Operation) Schema(derive DeriveFunc) *DerivedSchema {
	_, _, s := o.Snapshot(derive)
	return s
}

// Snapshot returns a consistent view of configuration, endpoint and schema for one
// invocation, deriving the schema under the write lock when the cache is empty.
func (o *Operation) Snapshot(derive DeriveFunc) (OperationConfig, *EndpointConfig, *DerivedSchema) {
	o.mu.RLock()
	if o.schema != nil {
		defer o.mu.RUnlock()
		return o.config, o.endpoint, o.schema
	}
	o.mu.RUnlock()

	o.mu.Lock()
	defer o.mu.Unlock()
	if o.schema == nil {
		o.schema = derive(o.config, o.endpoint, o.prev)
		o.prev = o.schema
	}
	return o.config, o.endpoint, o.schema
}

// Update replaces the configuration and invalidates the cached schema.
func (o *Operation) Update(cfg OperationConfig, endpoint *EndpointConfig) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.config = cfg
	o.endpoint = endpoint
	o.schema = nil
}

// Invalidate drops the cached schema. The next access derives it again.
func (o *Operation) Invalidate() {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.schema = nil
}

// Fragments returns the parameter fragments of the current schema for persistence.
// It returns the configured fragments when no schema has been derived yet.
func (o *Operation) Fragments() (query, requestHeaders, responseHeaders, path []*Field) {
	o.mu.RLock()
	defer o.mu.RUnlock()
	if o.schema == nil {
		return o.config.QueryFields, o.config.RequestHeaderFields, o.config.ResponseHeaderFields, o.config.PathFields
	}
	children := func(f *Field) []*Field {
		if f == nil {
			return nil
		}
		return CloneFields(f.Fields)
	}
	return children(o.schema.Section(SectionQuery)),
		children(o.schema.Section(SectionHeader)),
		children(o.schema.OutputSection(SectionHeader)),
		children(o.schema.Section(SectionPath))
}
