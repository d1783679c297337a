package validation

import (
	"errors"
	"fmt"
	"log/slog"
	"reflect"
	"sort"
	"strconv"
	"strings"

	"github.com/go-playground/validator/v10"

	"github.com/i2y/restbridge/internal/domain"
)

// Violation is one failed rule.
type Violation struct {
	Field   string `json:"field"`
	Rule    string `json:"rule"`
	Message string `json:"message"`
}

// Error lists every violation found in one value.
type Error struct {
	Violations []Violation
}

func (e *Error) Error() string {
	msgs := make([]string, 0, len(e.Violations))
	for _, v := range e.Violations {
		msgs = append(msgs, v.Field+": "+v.Message)
	}
	return strings.Join(msgs, "; ")
}

// Validator implements usecase.ContentValidator. Typed structs are checked with their
// `validate` tags, maps against the occurrence bounds, enums and kinds of the schema.
type Validator struct {
	validate *validator.Validate
	logger   *slog.Logger
}

// New creates a new Validator.
func New(logger *slog.Logger) *Validator {
	return &Validator{
		validate: validator.New(),
		logger:   logger.With("component", "content_validator"),
	}
}

// Validate implements usecase.ContentValidator.
func (v *Validator) Validate(value any, schema *domain.Field) error {
	if isStruct(value) {
		err := v.validate.Struct(value)
		var valErrs validator.ValidationErrors
		if errors.As(err, &valErrs) {
			out := &Error{}
			for _, fe := range valErrs {
				out.Violations = append(out.Violations, Violation{Field: fe.Namespace(), Rule: fe.Tag(), Message: formatFieldError(fe)})
			}
			return out
		}
		return err
	}

	m, ok := value.(map[string]any)
	if !ok {
		if value == nil && schema != nil && schema.Required() {
			return &Error{Violations: []Violation{{Field: schema.Name, Rule: "required", Message: "required"}}}
		}
		return nil
	}
	var violations []Violation
	v.walk(m, schema, "", &violations)
	if len(violations) == 0 {
		return nil
	}
	sort.SliceStable(violations, func(i, j int) bool { return violations[i].Field < violations[j].Field })
	v.logger.Debug("Content failed validation", slog.Int("violations", len(violations)))
	return &Error{Violations: violations}
}

func (v *Validator) walk(m map[string]any, schema *domain.Field, path string, out *[]Violation) {
	if schema == nil {
		return
	}
	for _, f := range schema.Fields {
		name := joinPath(path, f.Name)
		value, present := m[f.Name]
		if !present && f.Alias != "" {
			value, present = m[f.Alias]
		}
		if !present || value == nil {
			if f.Required() {
				*out = append(*out, Violation{Field: name, Rule: "required", Message: "required"})
			}
			continue
		}
		if f.Repeated {
			v.checkList(value, f, name, out)
			continue
		}
		v.checkValue(value, f, name, out)
	}
}

func (v *Validator) checkList(value any, f *domain.Field, name string, out *[]Violation) {
	rv := reflect.ValueOf(value)
	if rv.Kind() != reflect.Slice && rv.Kind() != reflect.Array {
		v.checkValue(value, f, name, out)
		return
	}
	if f.MinOccurs > 1 {
		v.check(value, "min="+strconv.Itoa(f.MinOccurs), name, out)
	}
	if f.MaxOccurs > 0 {
		v.check(value, "max="+strconv.Itoa(f.MaxOccurs), name, out)
	}
	for i := 0; i < rv.Len(); i++ {
		item := rv.Index(i).Interface()
		if item == nil {
			continue
		}
		v.checkValue(item, f, name+"."+strconv.Itoa(i), out)
	}
}

func (v *Validator) checkValue(value any, f *domain.Field, name string, out *[]Violation) {
	switch f.Kind() {
	case domain.KindObject:
		child, ok := value.(map[string]any)
		if !ok {
			*out = append(*out, Violation{Field: name, Rule: "object", Message: "must be an object"})
			return
		}
		v.walk(child, f, name, out)
		return
	case domain.KindInteger:
		if !isInteger(value) {
			*out = append(*out, Violation{Field: name, Rule: "integer", Message: "must be an integer"})
			return
		}
	case domain.KindNumber:
		if !isNumber(value) {
			*out = append(*out, Violation{Field: name, Rule: "number", Message: "must be a number"})
			return
		}
	case domain.KindBoolean:
		if _, ok := value.(bool); !ok {
			*out = append(*out, Violation{Field: name, Rule: "boolean", Message: "must be a boolean"})
			return
		}
	case domain.KindURI:
		if s, ok := value.(string); ok {
			v.check(s, "uri", name, out)
		}
	}
	if len(f.Enum) > 0 {
		if s, ok := value.(string); ok && !contains(f.Enum, s) {
			*out = append(*out, Violation{Field: name, Rule: "oneof", Message: "must be one of: " + strings.Join(f.Enum, " ")})
		}
	}
}

func (v *Validator) check(value any, tag, name string, out *[]Violation) {
	err := v.validate.Var(value, tag)
	var valErrs validator.ValidationErrors
	if !errors.As(err, &valErrs) {
		return
	}
	for _, fe := range valErrs {
		*out = append(*out, Violation{Field: name, Rule: fe.Tag(), Message: formatFieldError(fe)})
	}
}

// formatFieldError converts a validator.FieldError to a human-readable message.
func formatFieldError(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return "required"
	case "min":
		return fmt.Sprintf("must have at least %s", fe.Param())
	case "max":
		return fmt.Sprintf("must have at most %s", fe.Param())
	case "uri", "url":
		return "must be a valid URI"
	case "oneof":
		return fmt.Sprintf("must be one of: %s", fe.Param())
	default:
		if fe.Param() != "" {
			return fmt.Sprintf("failed %s=%s validation", fe.Tag(), fe.Param())
		}
		return fmt.Sprintf("failed %s validation", fe.Tag())
	}
}

func isInteger(v any) bool {
	switch t := v.(type) {
	case float64:
		return t == float64(int64(t))
	case float32:
		return t == float32(int64(t))
	case string:
		_, err := strconv.ParseInt(t, 10, 64)
		return err == nil
	}
	switch reflect.ValueOf(v).Kind() {
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64,
		reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		return true
	}
	return false
}

func isNumber(v any) bool {
	if isInteger(v) {
		return true
	}
	switch t := v.(type) {
	case float32, float64:
		return true
	case string:
		_, err := strconv.ParseFloat(t, 64)
		return err == nil
	}
	return false
}

func isStruct(v any) bool {
	rv := reflect.ValueOf(v)
	if rv.Kind() == reflect.Pointer {
		if rv.IsNil() {
			return false
		}
		rv = rv.Elem()
	}
	return rv.Kind() == reflect.Struct
}

func contains(list []string, s string) bool {
	for _, item := range list {
		if item == s {
			return true
		}
	}
	return false
}

func joinPath(path, name string) string {
	if path == "" {
		return name
	}
	return path + "." + name
}
