package usecase

import (
	"log/slog"
	"regexp"
	"strings"

	"github.com/i2y/restbridge/internal/domain"
)

var (
	nameListSeparator = regexp.MustCompile(`[\s,]+`)
	// placeholderPattern matches "{id}", "{ id }" and "{id:[0-9]+}".
	placeholderPattern = regexp.MustCompile(`\{\s*(\w+)\b[^}]*\}`)
	repeatedSlashes    = regexp.MustCompile(`/{2,}`)
)

// SchemaDeriver synthesizes the input and output shapes of an operation from its
// parameter lists, path template and body schemas.
type SchemaDeriver struct {
	logger *slog.Logger
}

// NewSchemaDeriver creates a new SchemaDeriver.
func NewSchemaDeriver(logger *slog.Logger) *SchemaDeriver {
	return &SchemaDeriver{logger: logger.With("component", "schema_deriver")}
}

// Schema returns the cached schema of op, deriving it on first access.
func (d *SchemaDeriver) Schema(op *domain.Operation) *domain.DerivedSchema {
	return op.Schema(d.Derive)
}

// Derive builds the schema. Fields of prev (or of the persisted fragments when prev is nil)
// that are still named by the configuration are kept as they are, new names get fresh
// fields, names that disappeared are dropped.
func (d *SchemaDeriver) Derive(cfg domain.OperationConfig, ep *domain.EndpointConfig, prev *domain.DerivedSchema) *domain.DerivedSchema {
	priorQuery, priorHeader, priorPath, priorResponseHeader := cfg.QueryFields, cfg.RequestHeaderFields, cfg.PathFields, cfg.ResponseHeaderFields
	if prev != nil {
		priorQuery = sectionFields(prev.Section(domain.SectionQuery))
		priorHeader = sectionFields(prev.Section(domain.SectionHeader))
		priorPath = sectionFields(prev.Section(domain.SectionPath))
		priorResponseHeader = sectionFields(prev.OutputSection(domain.SectionHeader))
	}

	input := &domain.Field{Name: "input", Type: domain.KindObject}
	input.Fields = append(input.Fields,
		&domain.Field{Name: domain.SectionTransactionID, Type: domain.KindString},
		&domain.Field{Name: domain.SectionEndpoint, Type: domain.KindURI},
	)

	if names := SplitNames(cfg.QueryParameters); len(names) > 0 {
		fields := requireNew(mergeFields(priorQuery, names, domain.CleanIdentifier), priorQuery)
		input.Fields = append(input.Fields, section(domain.SectionQuery, fields))
	}
	if names := SplitNames(cfg.RequestHeaders); len(names) > 0 {
		fields := requireNew(mergeFields(priorHeader, names, domain.HeaderToField), priorHeader)
		input.Fields = append(input.Fields, section(domain.SectionHeader, fields))
	}
	if names := PathPlaceholders(derivationPath(cfg, ep)); len(names) > 0 {
		fields := mergeFields(priorPath, names, func(s string) string { return s })
		for _, f := range requireNew(fields, priorPath) {
			f.Repeated = false
		}
		input.Fields = append(input.Fields, section(domain.SectionPath, fields))
	}
	if content := contentField(cfg.InputAsStream, cfg.Input); content != nil {
		input.Fields = append(input.Fields, content)
	}
	input.Fields = append(input.Fields, &domain.Field{
		Name: domain.SectionAuthentication,
		Type: domain.KindObject,
		Fields: []*domain.Field{
			{Name: "username", Type: domain.KindString},
			{Name: "password", Type: domain.KindString},
		},
	})
	if ep != nil && ep.APIHeaderName != "" && ep.APIHeaderKey == "" {
		input.Fields = append(input.Fields, &domain.Field{Name: domain.SectionAPIHeaderKey, Type: domain.KindString, MinOccurs: 1})
	}
	if ep != nil && ep.APIQueryName != "" && ep.APIQueryKey == "" {
		input.Fields = append(input.Fields, &domain.Field{Name: domain.SectionAPIQueryKey, Type: domain.KindString, MinOccurs: 1})
	}

	output := &domain.Field{Name: "output", Type: domain.KindObject}
	if names := SplitNames(cfg.ResponseHeaders); len(names) > 0 {
		output.Fields = append(output.Fields, section(domain.SectionHeader, mergeFields(priorResponseHeader, names, domain.HeaderToField)))
	}
	if content := contentField(cfg.OutputAsStream, cfg.Output); content != nil {
		output.Fields = append(output.Fields, content)
	}

	d.logger.Debug("Derived operation schema",
		slog.String("operation", cfg.ID),
		slog.Int("input_fields", len(input.Fields)),
		slog.Int("output_fields", len(output.Fields)))
	return &domain.DerivedSchema{Input: input, Output: output}
}

// SplitNames splits a comma or whitespace separated name list, dropping empty entries.
func SplitNames(list string) []string {
	if strings.TrimSpace(list) == "" {
		return nil
	}
	var names []string
	for _, n := range nameListSeparator.Split(list, -1) {
		if n != "" {
			names = append(names, n)
		}
	}
	return names
}

// PathPlaceholders returns the distinct placeholder names of a path template in order.
func PathPlaceholders(path string) []string {
	var names []string
	seen := make(map[string]struct{})
	for _, m := range placeholderPattern.FindAllStringSubmatch(path, -1) {
		if _, ok := seen[m[1]]; ok {
			continue
		}
		seen[m[1]] = struct{}{}
		names = append(names, m[1])
	}
	return names
}

// derivationPath is the path template prefixed with the endpoint base path.
func derivationPath(cfg domain.OperationConfig, ep *domain.EndpointConfig) string {
	path := cfg.Path
	if ep != nil && strings.TrimSpace(ep.BasePath) != "" && strings.TrimSpace(ep.BasePath) != "/" {
		if path == "" {
			path = ep.BasePath
		} else {
			path = repeatedSlashes.ReplaceAllString(ep.BasePath+"/"+path, "/")
		}
	}
	return path
}

// mergeFields keeps prior fields still named in names (in name order) and creates the
// missing ones. clean maps a raw name to its identifier; a changed name is kept as alias.
func mergeFields(prior []*domain.Field, names []string, clean func(string) string) []*domain.Field {
	byName := make(map[string]*domain.Field, len(prior))
	for _, f := range prior {
		byName[f.Name] = f
	}
	var fields []*domain.Field
	added := make(map[string]struct{}, len(names))
	for _, raw := range names {
		name := clean(raw)
		if name == "" {
			continue
		}
		if _, dup := added[name]; dup {
			continue
		}
		added[name] = struct{}{}
		if f, ok := byName[name]; ok {
			fields = append(fields, f.Clone())
			continue
		}
		f := &domain.Field{Name: name, Type: domain.KindString, Repeated: true}
		if name != raw {
			f.Alias = raw
		}
		fields = append(fields, f)
	}
	return fields
}

// requireNew makes fields without a prior fragment required. Fragments keep their own
// occurrence bounds.
func requireNew(fields, prior []*domain.Field) []*domain.Field {
	for _, f := range fields {
		if f.MinOccurs == 0 && isNew(f, prior) {
			f.MinOccurs = 1
		}
	}
	return fields
}

func isNew(f *domain.Field, prior []*domain.Field) bool {
	for _, p := range prior {
		if p.Name == f.Name {
			return false
		}
	}
	return true
}

// section groups fields. It is required as a whole when any member is required.
func section(name string, fields []*domain.Field) *domain.Field {
	s := &domain.Field{Name: name, Type: domain.KindObject, Fields: fields}
	if s.AnyRequired() {
		s.MinOccurs = 1
	}
	return s
}

func sectionFields(f *domain.Field) []*domain.Field {
	if f == nil {
		return nil
	}
	return f.Fields
}

// contentField is a stream placeholder, a copy of the body schema named "content" with the
// original root name as alias, or nil.
func contentField(asStream bool, body *domain.Field) *domain.Field {
	if asStream {
		return &domain.Field{Name: domain.SectionContent, Type: domain.KindStream}
	}
	if body == nil {
		return nil
	}
	c := body.Clone()
	if c.Name != "" && c.Name != domain.SectionContent && c.Alias == "" {
		c.Alias = c.Name
	}
	c.Name = domain.SectionContent
	if c.Type == "" && len(c.Fields) > 0 {
		c.Type = domain.KindObject
	}
	return c
}
