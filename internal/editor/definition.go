package editor

import (
	"fmt"
	"io"

	"gopkg.in/yaml.v3"

	"contractgen/pkg/contractapi"
)

// Definition is the YAML form of a template accepted by the CLI.
type Definition struct {
	Title       string               `yaml:"title"`
	Category    string               `yaml:"category"`
	Description string               `yaml:"description"`
	MainQuery   string               `yaml:"main_query"`
	Asset       string               `yaml:"asset"`
	Variables   []VariableDefinition `yaml:"variables"`
}

// VariableDefinition is one variable entry of a Definition.
type VariableDefinition struct {
	Name   string   `yaml:"name"`
	Kind   string   `yaml:"kind"`
	Query  string   `yaml:"query"`
	Fields []string `yaml:"fields"`
}

// DecodeDefinition parses a YAML template definition.
func DecodeDefinition(r io.Reader) (Definition, error) {
	var def Definition
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(&def); err != nil {
		return Definition{}, fmt.Errorf("decode template definition: %w", err)
	}
	return def, nil
}

// Apply replays the definition through the editors of d so that the same
// normalization and validation rules as interactive editing apply. The
// returned errors name the variable that failed to commit.
func (def Definition) Apply(d *TemplateDraft) []contractapi.FieldError {
	var errs []contractapi.FieldError
	if def.Title != "" {
		d.Title = def.Title
	}
	if def.Description != "" {
		d.Description = def.Description
	}
	if def.MainQuery != "" {
		d.MainQuery = def.MainQuery
	}
	if def.Category != "" {
		c, err := contractapi.ParseCategory(def.Category)
		if err != nil {
			errs = append(errs, contractapi.FieldError{Field: "category", Message: err.Error()})
		} else {
			d.Category = c
		}
	}
	if d.Variables == nil {
		d.Variables = NewVariableEditor(nil)
	}
	for i, vd := range def.Variables {
		prefix := fmt.Sprintf("variables[%d]", i)
		kind, err := contractapi.ParseKind(vd.Kind)
		if err != nil {
			errs = append(errs, contractapi.FieldError{Field: prefix + ".kind", Message: err.Error()})
			continue
		}
		ed := d.Variables
		ed.SetName(vd.Name)
		ed.SetKind(kind)
		ed.SetQuery(vd.Query)
		for _, f := range vd.Fields {
			ed.AddField(f)
		}
		fieldErrs := ed.Errors()
		if len(fieldErrs) == 0 && !ed.Commit() {
			fieldErrs = ed.Errors()
			if len(fieldErrs) == 0 {
				fieldErrs = []contractapi.FieldError{{Field: FieldName, Message: "variable name is required"}}
			}
		}
		for _, fe := range fieldErrs {
			errs = append(errs, contractapi.FieldError{Field: prefix + "." + fe.Field, Message: fe.Message})
		}
		if len(fieldErrs) > 0 {
			ed.SetName("")
			ed.SetKind(contractapi.KindScalar)
		}
	}
	return errs
}
