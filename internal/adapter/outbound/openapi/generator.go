package openapi

import (
	"fmt"
	"log/slog"
	"net/url"
	"sort"
	"strconv"
	"strings"

	"github.com/getkin/kin-openapi/openapi3"

	"github.com/i2y/restbridge/internal/domain"
)

// maxSchemaDepth bounds the conversion of recursive body schemas. Deeper nodes accept any value.
const maxSchemaDepth = 16

// OperationGenerator implements the usecase.OperationGenerator interface for OpenAPI documents.
type OperationGenerator struct {
	logger *slog.Logger
}

// NewOperationGenerator creates a new OpenAPI OperationGenerator.
func NewOperationGenerator(logger *slog.Logger) *OperationGenerator {
	return &OperationGenerator{
		logger: logger.With("component", "openapi_generator"),
	}
}

// Generate converts an OpenAPI document into one endpoint holding the server and security
// settings and one operation per path and method. endpointName defaults to the document title.
func (g *OperationGenerator) Generate(schema domain.APISchema, endpointName string) (domain.EndpointConfig, []domain.OperationConfig, error) {
	log := g.logger.With(slog.String("source", schema.Source))
	log.Info("Generating operations from OpenAPI schema")

	doc, ok := schema.ParsedData.(*openapi3.T)
	if !ok || doc == nil {
		log.Error("Invalid or missing parsed OpenAPI document in APISchema")
		return domain.EndpointConfig{}, nil, fmt.Errorf("invalid or missing parsed OpenAPI document in APISchema")
	}

	if endpointName == "" && doc.Info != nil {
		endpointName = sanitizeName(doc.Info.Title)
	}
	if endpointName == "" {
		endpointName = "openapi"
	}
	log = log.With(slog.String("endpoint", endpointName))

	endpoint := domain.EndpointConfig{Name: endpointName}
	if err := g.applyServers(&endpoint, schema.Source, doc.Servers); err != nil {
		// The host can still come from the per-call endpoint override.
		log.Warn("No usable server in OpenAPI document", slog.Any("error", err))
	}
	g.applySecurity(log, &endpoint, doc)
	log.Info("Determined endpoint", slog.String("host", endpoint.Host), slog.String("basePath", endpoint.BasePath))

	var operations []domain.OperationConfig
	used := make(map[string]int)
	if doc.Paths != nil {
		paths := doc.Paths.Map()
		pathKeys := make([]string, 0, len(paths))
		for p := range paths {
			pathKeys = append(pathKeys, p)
		}
		sort.Strings(pathKeys)

		for _, path := range pathKeys {
			pathItem := paths[path]
			if pathItem == nil {
				continue
			}
			ops := pathItem.Operations()
			methods := make([]string, 0, len(ops))
			for m := range ops {
				methods = append(methods, m)
			}
			sort.Strings(methods)

			for _, method := range methods {
				op := ops[method]
				if op == nil {
					continue
				}
				cfg := g.generateOperation(log, endpointName, path, method, pathItem.Parameters, op)
				if n := used[cfg.ID]; n > 0 {
					used[cfg.ID] = n + 1
					cfg.ID = cfg.ID + "_" + strconv.Itoa(n+1)
				} else {
					used[cfg.ID] = 1
				}
				operations = append(operations, cfg)
				log.Debug("Generated operation", slog.String("operation", cfg.ID), slog.String("method", cfg.Method), slog.String("path", path))
			}
		}
	}

	log.Info("Finished generating operations from OpenAPI schema", slog.Int("generated_count", len(operations)))
	return endpoint, operations, nil
}

// applyServers takes the first http(s) server. Relative server URLs resolve against the
// document source and server variables take their defaults.
func (g *OperationGenerator) applyServers(ep *domain.EndpointConfig, source string, servers openapi3.Servers) error {
	if len(servers) == 0 {
		return fmt.Errorf("no servers defined in OpenAPI document")
	}
	base, err := url.Parse(source)
	if err != nil || !base.IsAbs() {
		base = nil
	}

	for _, server := range servers {
		if server == nil || server.URL == "" {
			continue
		}
		raw := server.URL
		for name, v := range server.Variables {
			if v != nil {
				raw = strings.ReplaceAll(raw, "{"+name+"}", v.Default)
			}
		}
		u, err := url.Parse(raw)
		if err != nil {
			g.logger.Warn("Could not parse server URL, skipping", slog.String("url", raw), slog.Any("error", err))
			continue
		}
		if !u.IsAbs() {
			if base == nil {
				g.logger.Warn("Cannot resolve relative server URL without an absolute source", slog.String("relative_url", raw))
				continue
			}
			u = base.ResolveReference(u)
		}
		if (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
			continue
		}
		ep.Host = u.Host
		secure := u.Scheme == "https"
		ep.Secure = &secure
		basePath := u.Path
		if len(basePath) > 1 && strings.HasSuffix(basePath, "/") {
			basePath = basePath[:len(basePath)-1]
		}
		if basePath != "/" {
			ep.BasePath = basePath
		}
		return nil
	}
	return fmt.Errorf("no suitable HTTP/HTTPS server URL found or resolvable in OpenAPI document")
}

// applySecurity maps the first supported scheme of the document-wide requirements, or of the
// first operation declaring one, onto API key names and preemptive authentication.
func (g *OperationGenerator) applySecurity(log *slog.Logger, ep *domain.EndpointConfig, doc *openapi3.T) {
	if doc.Components == nil || len(doc.Components.SecuritySchemes) == 0 {
		return
	}
	requirements := doc.Security
	if len(requirements) == 0 && doc.Paths != nil {
		keys := make([]string, 0, doc.Paths.Len())
		for p := range doc.Paths.Map() {
			keys = append(keys, p)
		}
		sort.Strings(keys)
	search:
		for _, p := range keys {
			item := doc.Paths.Value(p)
			if item == nil {
				continue
			}
			for _, op := range item.Operations() {
				if op != nil && op.Security != nil && len(*op.Security) > 0 {
					requirements = *op.Security
					break search
				}
			}
		}
	}

	for _, req := range requirements {
		names := make([]string, 0, len(req))
		for name := range req {
			names = append(names, name)
		}
		sort.Strings(names)
		for _, name := range names {
			ref := doc.Components.SecuritySchemes[name]
			if ref == nil || ref.Value == nil {
				continue
			}
			if applyScheme(ep, ref.Value) {
				log.Debug("Applied security scheme", slog.String("scheme", name), slog.String("type", ref.Value.Type))
				return
			}
			log.Debug("Unsupported security scheme", slog.String("scheme", name), slog.String("type", ref.Value.Type))
		}
	}
}

func applyScheme(ep *domain.EndpointConfig, s *openapi3.SecurityScheme) bool {
	switch strings.ToLower(s.Type) {
	case "apikey":
		switch s.In {
		case openapi3.ParameterInHeader:
			ep.APIHeaderName = s.Name
			return true
		case openapi3.ParameterInQuery:
			ep.APIQueryName = s.Name
			return true
		}
	case "http":
		switch strings.ToLower(s.Scheme) {
		case "basic":
			ep.PreemptiveAuthorizationType = domain.AuthBasic
			return true
		case "bearer":
			ep.PreemptiveAuthorizationType = domain.AuthBearer
			return true
		}
	}
	return false
}

func (g *OperationGenerator) generateOperation(log *slog.Logger, endpointName, path, method string, shared openapi3.Parameters, op *openapi3.Operation) domain.OperationConfig {
	description := op.Description
	if description == "" {
		description = op.Summary
	}
	cfg := domain.OperationConfig{
		ID:          generateOperationName(endpointName, path, method, op),
		Description: description,
		Endpoint:    endpointName,
		Method:      strings.ToUpper(method),
		Path:        path,
	}

	var queryNames, headerNames []string
	for _, param := range mergeParameters(shared, op.Parameters) {
		switch param.In {
		case openapi3.ParameterInQuery:
			queryNames = append(queryNames, param.Name)
			cfg.QueryFields = append(cfg.QueryFields, parameterField(param, domain.CleanIdentifier(param.Name), true))
		case openapi3.ParameterInHeader:
			headerNames = append(headerNames, param.Name)
			cfg.RequestHeaderFields = append(cfg.RequestHeaderFields, parameterField(param, domain.HeaderToField(param.Name), false))
		case openapi3.ParameterInPath:
			cfg.PathFields = append(cfg.PathFields, parameterField(param, param.Name, false))
		default:
			log.Debug("Skipping parameter", slog.String("param_name", param.Name), slog.String("param_in", param.In))
		}
	}
	cfg.QueryParameters = strings.Join(queryNames, ", ")
	cfg.RequestHeaders = strings.Join(headerNames, ", ")

	if op.RequestBody != nil && op.RequestBody.Value != nil {
		mediaType, media := pickMedia(op.RequestBody.Value.Content)
		switch {
		case media == nil:
		case mediaType == domain.MIMEOctetStream || !structured(mediaType):
			cfg.InputAsStream = true
		default:
			cfg.RequestType = domain.ContentTypeForMIME(mediaType)
			cfg.Input = bodyField(media.Schema)
			if cfg.Input != nil && op.RequestBody.Value.Required {
				cfg.Input.MinOccurs = 1
			}
		}
	}

	if resp := successResponse(op.Responses); resp != nil {
		mediaType, media := pickMedia(resp.Content)
		switch {
		case media == nil:
		case mediaType == domain.MIMEOctetStream || !structured(mediaType):
			cfg.OutputAsStream = true
		default:
			cfg.ResponseType = domain.ContentTypeForMIME(mediaType)
			cfg.Output = bodyField(media.Schema)
		}

		names := make([]string, 0, len(resp.Headers))
		for name := range resp.Headers {
			names = append(names, name)
		}
		sort.Strings(names)
		cfg.ResponseHeaders = strings.Join(names, ", ")
		for _, name := range names {
			f := &domain.Field{Name: domain.HeaderToField(name), Type: domain.KindString}
			if f.Name != name {
				f.Alias = name
			}
			if h := resp.Headers[name]; h != nil && h.Value != nil {
				f.Description = h.Value.Description
				if h.Value.Schema != nil && h.Value.Schema.Value != nil {
					f.Type = scalarKind(h.Value.Schema.Value)
				}
			}
			cfg.ResponseHeaderFields = append(cfg.ResponseHeaderFields, f)
		}
	}
	return cfg
}

// mergeParameters lets operation parameters override path-level ones with the same name and location.
func mergeParameters(shared, own openapi3.Parameters) []*openapi3.Parameter {
	var out []*openapi3.Parameter
	index := make(map[string]int)
	for _, list := range []openapi3.Parameters{shared, own} {
		for _, ref := range list {
			if ref == nil || ref.Value == nil {
				continue
			}
			key := ref.Value.In + ":" + ref.Value.Name
			if i, ok := index[key]; ok {
				out[i] = ref.Value
				continue
			}
			index[key] = len(out)
			out = append(out, ref.Value)
		}
	}
	return out
}

// parameterField builds the persisted fragment of a parameter. Query parameters repeat when
// their schema is an array and carry the collection format of their style.
func parameterField(p *openapi3.Parameter, name string, query bool) *domain.Field {
	f := &domain.Field{Name: name, Type: domain.KindString, Description: p.Description}
	if name != p.Name {
		f.Alias = p.Name
	}
	if p.Required || p.In == openapi3.ParameterInPath {
		f.MinOccurs = 1
	}
	if p.Schema != nil && p.Schema.Value != nil {
		s := p.Schema.Value
		if firstType(s) == "array" {
			f.Repeated = query
			if s.MaxItems != nil {
				f.MaxOccurs = int(*s.MaxItems)
			}
			if s.Items != nil && s.Items.Value != nil {
				s = s.Items.Value
			}
		}
		f.Type = scalarKind(s)
		f.Enum = enumStrings(s.Enum)
	}
	if query && f.Repeated {
		f.CollectionFormat = collectionFormat(p)
	}
	return f
}

// collectionFormat maps an OpenAPI parameter style onto the wire format of a repeated value.
func collectionFormat(p *openapi3.Parameter) domain.CollectionFormat {
	style := p.Style
	if style == "" {
		style = openapi3.SerializationForm
	}
	// explode defaults to true for the form style only
	explode := style == openapi3.SerializationForm
	if p.Explode != nil {
		explode = *p.Explode
	}
	switch style {
	case openapi3.SerializationLabel:
		return domain.CollectionLabel
	case openapi3.SerializationMatrix:
		if explode {
			return domain.CollectionMatrixExplode
		}
		return domain.CollectionMatrixImplode
	case openapi3.SerializationForm:
		if explode {
			return domain.CollectionMulti
		}
	}
	return domain.CollectionCSV
}

// pickMedia prefers JSON, then form, then XML. Other types are returned only when nothing
// structured is offered.
func pickMedia(content openapi3.Content) (string, *openapi3.MediaType) {
	if len(content) == 0 {
		return "", nil
	}
	types := make([]string, 0, len(content))
	for t := range content {
		types = append(types, t)
	}
	sort.Strings(types)

	rank := func(t string) int {
		m := domain.NormalizeMIME(t)
		switch {
		case domain.ContentTypeForMIME(m) == domain.ContentTypeJSON:
			return 0
		case m == domain.MIMEForm:
			return 1
		case strings.Contains(m, "xml"):
			return 2
		}
		return 3
	}
	best := types[0]
	for _, t := range types[1:] {
		if rank(t) < rank(best) {
			best = t
		}
	}
	return domain.NormalizeMIME(best), content[best]
}

func structured(mediaType string) bool {
	return mediaType == domain.MIMEForm ||
		domain.ContentTypeForMIME(mediaType) == domain.ContentTypeJSON ||
		strings.Contains(mediaType, "xml")
}

// successResponse picks 200, then 201, then the lowest other 2xx response.
func successResponse(responses *openapi3.Responses) *openapi3.Response {
	if responses == nil {
		return nil
	}
	m := responses.Map()
	for _, code := range []string{"200", "201"} {
		if ref, ok := m[code]; ok && ref != nil {
			return ref.Value
		}
	}
	codes := make([]string, 0, len(m))
	for code := range m {
		if strings.HasPrefix(code, "2") {
			codes = append(codes, code)
		}
	}
	sort.Strings(codes)
	for _, code := range codes {
		if ref := m[code]; ref != nil {
			return ref.Value
		}
	}
	return nil
}

// bodyField converts a body schema. The root is named after its XML name or component, and a
// root array becomes an object with one repeated "items" field.
func bodyField(ref *openapi3.SchemaRef) *domain.Field {
	if ref == nil || ref.Value == nil {
		return nil
	}
	name := domain.SectionContent
	if ref.Value.XML != nil && ref.Value.XML.Name != "" {
		name = ref.Value.XML.Name
	} else if ref.Ref != "" {
		name = ref.Ref[strings.LastIndex(ref.Ref, "/")+1:]
	}

	if firstType(ref.Value) == "array" {
		items := convertSchema("items", ref.Value.Items, nil, 0)
		items.Repeated = true
		if ref.Value.MaxItems != nil {
			items.MaxOccurs = int(*ref.Value.MaxItems)
		}
		return &domain.Field{Name: name, Type: domain.KindObject, Fields: []*domain.Field{items}}
	}
	root := convertSchema(name, ref, nil, 0)
	if root.Kind() != domain.KindObject {
		// scalar bodies are not representable as structured content
		return nil
	}
	return root
}

// convertSchema converts one schema node into a field. visiting holds the schemas on the
// current path so that recursive definitions stop instead of looping.
func convertSchema(name string, ref *openapi3.SchemaRef, visiting map[*openapi3.Schema]bool, depth int) *domain.Field {
	f := &domain.Field{Name: name}
	if ref == nil || ref.Value == nil {
		f.Type = domain.KindAny
		return f
	}
	s := ref.Value
	if depth > maxSchemaDepth || visiting[s] {
		f.Type = domain.KindAny
		return f
	}
	f.Description = s.Description
	if s.XML != nil && s.XML.Name != "" && s.XML.Name != name {
		f.Alias = s.XML.Name
	}

	switch firstType(s) {
	case "array":
		item := convertSchema(name, s.Items, visiting, depth+1)
		item.Alias, item.Description = f.Alias, f.Description
		item.Repeated = true
		item.MinOccurs = int(s.MinItems)
		if s.MaxItems != nil {
			item.MaxOccurs = int(*s.MaxItems)
		}
		if item.Type == "" && len(item.Fields) == 0 {
			item.Type = domain.KindString
		}
		return item
	case "object", "":
		props, requiredNames := objectProperties(s)
		if len(props) == 0 {
			if firstType(s) == "" && len(s.Enum) > 0 {
				break
			}
			f.Type = domain.KindAny
			return f
		}
		if visiting == nil {
			visiting = make(map[*openapi3.Schema]bool)
		}
		visiting[s] = true
		defer delete(visiting, s)

		names := make([]string, 0, len(props))
		for prop := range props {
			names = append(names, prop)
		}
		sort.Strings(names)
		required := make(map[string]bool, len(requiredNames))
		for _, r := range requiredNames {
			required[r] = true
		}
		f.Type = domain.KindObject
		for _, prop := range names {
			child := convertSchema(prop, props[prop], visiting, depth+1)
			if required[prop] && child.MinOccurs == 0 {
				child.MinOccurs = 1
			}
			f.Fields = append(f.Fields, child)
		}
		return f
	}
	f.Type = scalarKind(s)
	f.Enum = enumStrings(s.Enum)
	return f
}

// objectProperties returns the properties of s merged with those of its allOf members.
func objectProperties(s *openapi3.Schema) (openapi3.Schemas, []string) {
	if len(s.AllOf) == 0 {
		return s.Properties, s.Required
	}
	props := make(openapi3.Schemas, len(s.Properties))
	required := append([]string(nil), s.Required...)
	for _, member := range s.AllOf {
		if member == nil || member.Value == nil {
			continue
		}
		for name, prop := range member.Value.Properties {
			props[name] = prop
		}
		required = append(required, member.Value.Required...)
	}
	for name, prop := range s.Properties {
		props[name] = prop
	}
	return props, required
}

func scalarKind(s *openapi3.Schema) domain.Kind {
	switch firstType(s) {
	case "integer":
		return domain.KindInteger
	case "number":
		return domain.KindNumber
	case "boolean":
		return domain.KindBoolean
	case "string":
		switch s.Format {
		case "uri", "url":
			return domain.KindURI
		case "binary":
			return domain.KindStream
		}
	}
	return domain.KindString
}

func firstType(s *openapi3.Schema) string {
	if s == nil || s.Type == nil || len(*s.Type) == 0 {
		return ""
	}
	return (*s.Type)[0]
}

func enumStrings(values []interface{}) []string {
	if len(values) == 0 {
		return nil
	}
	out := make([]string, 0, len(values))
	for _, v := range values {
		out = append(out, fmt.Sprint(v))
	}
	return out
}

// generateOperationName creates a unique and descriptive name for the operation:
// {endpoint}_{operationId}, or {endpoint}_{method}_{path parts} without an operationId.
func generateOperationName(namespace, path, method string, op *openapi3.Operation) string {
	if op.OperationID != "" {
		return fmt.Sprintf("%s_%s", namespace, sanitizeName(op.OperationID))
	}

	nameParts := []string{namespace, strings.ToLower(method)}
	for _, part := range strings.Split(strings.Trim(path, "/"), "/") {
		if part == "" || (strings.HasPrefix(part, "{") && strings.HasSuffix(part, "}")) {
			continue
		}
		nameParts = append(nameParts, sanitizeName(part))
	}
	return strings.Join(nameParts, "_")
}

// sanitizeName removes characters unsuitable for identifiers and replaces them.
func sanitizeName(name string) string {
	name = strings.ToLower(name)
	replacer := strings.NewReplacer(" ", "_", "-", "_", "/", "_", ".", "_")
	name = replacer.Replace(name)
	for strings.Contains(name, "__") {
		name = strings.ReplaceAll(name, "__", "_")
	}
	return strings.Trim(name, "_")
}
