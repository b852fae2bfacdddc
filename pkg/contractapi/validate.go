package contractapi

import (
	"fmt"
	"strings"
)

// ParameterLabel renders a parameter name for humans: underscores become
// spaces and the result is lower-cased.
func ParameterLabel(name string) string {
	return strings.ToLower(strings.ReplaceAll(name, "_", " "))
}

// ValidateParameterValues returns one error per parameter whose value is
// missing or blank after trimming, in parameter order.
func ValidateParameterValues(params []string, values map[string]string) []FieldError {
	var errs []FieldError
	for _, name := range params {
		if strings.TrimSpace(values[name]) == "" {
			errs = append(errs, FieldError{Field: name, Message: fmt.Sprintf("the field %s is required", ParameterLabel(name))})
		}
	}
	return errs
}

// ValidateTemplate checks the structural invariants of a template before it is
// stored. It never returns a Go error; every failure is field scoped.
func ValidateTemplate(t Template) []FieldError {
	var errs []FieldError
	add := func(field, msg string) { errs = append(errs, FieldError{Field: field, Message: msg}) }

	if strings.TrimSpace(t.Title) == "" {
		add("title", "title is required")
	}
	if t.Category != "" && !t.Category.Valid() {
		add("category", fmt.Sprintf("unknown category %q", t.Category))
	}
	if strings.TrimSpace(t.Description) == "" {
		add("description", "description is required")
	}
	if strings.TrimSpace(t.AssetPath) == "" {
		add("asset", "template file is required")
	}
	if strings.TrimSpace(t.MainQuery) == "" {
		add("mainQuery", "main query is required")
	}
	if len(t.Variables) == 0 {
		add("variables", "add at least one variable to the template")
	}
	seen := make(map[string]struct{}, len(t.Variables))
	for i, v := range t.Variables {
		prefix := fmt.Sprintf("variables[%d]", i)
		name := NormalizeName(v.Name())
		if name == "" {
			add(prefix+".name", "variable name is required")
			continue
		}
		if name != v.Name() {
			add(prefix+".name", fmt.Sprintf("variable name %q is not normalized (expected %q)", v.Name(), name))
		}
		if _, dup := seen[name]; dup {
			add(prefix+".name", "a variable with this name already exists")
		}
		seen[name] = struct{}{}
		g, grouped := v.Group()
		if !grouped {
			continue
		}
		if len(g.Fields) == 0 {
			add(prefix+".fields", fmt.Sprintf("add at least one field for the %s", v.Kind().Label()))
		}
		fields := make(map[string]struct{}, len(g.Fields))
		for j, f := range g.Fields {
			fieldPrefix := fmt.Sprintf("%s.fields[%d]", prefix, j)
			canon := NormalizeName(f)
			switch {
			case canon == "":
				add(fieldPrefix, "field name is required")
				continue
			case canon != f:
				add(fieldPrefix, fmt.Sprintf("field name %q is not normalized (expected %q)", f, canon))
			}
			if _, dup := fields[canon]; dup {
				add(fieldPrefix, "this field already exists")
			}
			fields[canon] = struct{}{}
		}
		if strings.TrimSpace(g.Query) == "" {
			add(prefix+".query", fmt.Sprintf("define a query for the %s", v.Kind().Label()))
		}
	}
	return errs
}

// Placeholder returns how the variable is referenced inside a template
// document.
func (v Variable) Placeholder() string {
	switch v.kind {
	case KindList:
		return fmt.Sprintf("{#%s} ... {/%s}", v.name, v.name)
	case KindTable:
		var b strings.Builder
		b.WriteString("{#" + v.name + "}")
		for _, f := range v.Fields() {
			b.WriteString("{" + f + "}")
		}
		b.WriteString("{/" + v.name + "}")
		return b.String()
	default:
		return fmt.Sprintf("{principal.%s}", v.name)
	}
}
