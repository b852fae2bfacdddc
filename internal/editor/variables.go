// Package editor holds the incremental builders used while authoring a
// template: the variable editor with its single draft variable, the
// template-level draft and the read-only kind filter.
package editor

import (
	"fmt"
	"slices"
	"strings"

	"contractgen/pkg/contractapi"
)

// Field names used to scope draft errors.
const (
	FieldName   = "name"
	FieldFields = "fields"
	FieldQuery  = "query"
)

var draftFieldOrder = []string{FieldName, FieldFields, FieldQuery}

// VariableDraft is the variable currently being composed.
type VariableDraft struct {
	Name   string
	Kind   contractapi.Kind
	Fields []string
	Query  string
}

func emptyDraft() VariableDraft {
	return VariableDraft{Kind: contractapi.KindScalar}
}

// VariableEditor builds a template's variable list one draft at a time.
// Invalid input never panics and never touches the committed list; it is
// reported through field-scoped errors on the draft.
type VariableEditor struct {
	committed []contractapi.Variable
	draft     VariableDraft
	errs      map[string]string
}

// NewVariableEditor starts an editor over an existing variable list.
func NewVariableEditor(existing []contractapi.Variable) *VariableEditor {
	e := &VariableEditor{draft: emptyDraft(), errs: map[string]string{}}
	for _, v := range existing {
		e.committed = append(e.committed, cloneVariable(v))
	}
	return e
}

// Draft returns a copy of the draft variable.
func (e *VariableEditor) Draft() VariableDraft {
	d := e.draft
	d.Fields = slices.Clone(e.draft.Fields)
	return d
}

// SetName updates the raw draft name. Normalization happens on commit.
func (e *VariableEditor) SetName(name string) {
	e.draft.Name = name
	delete(e.errs, FieldName)
}

// SetKind changes the draft kind. Switching to scalar discards fields and
// query; switching between list and table keeps them.
func (e *VariableEditor) SetKind(kind contractapi.Kind) {
	e.draft.Kind = kind
	if !kind.Grouped() {
		e.draft.Fields = nil
		e.draft.Query = ""
		delete(e.errs, FieldFields)
		delete(e.errs, FieldQuery)
	}
}

// SetQuery sets the query of a list or table draft. Scalars take no query.
func (e *VariableEditor) SetQuery(query string) {
	if !e.draft.Kind.Grouped() {
		return
	}
	e.draft.Query = query
	delete(e.errs, FieldQuery)
}

// AddField normalizes raw and appends it to the draft fields. Blank input is
// ignored; a duplicate sets a fields error. It reports whether a field was
// added.
func (e *VariableEditor) AddField(raw string) bool {
	if strings.TrimSpace(raw) == "" {
		return false
	}
	name := contractapi.NormalizeName(raw)
	if name == "" {
		return false
	}
	if slices.Contains(e.draft.Fields, name) {
		e.errs[FieldFields] = "this field already exists"
		return false
	}
	e.draft.Fields = append(e.draft.Fields, name)
	delete(e.errs, FieldFields)
	return true
}

// RemoveField drops the draft field at index i. Out of range is a no-op.
func (e *VariableEditor) RemoveField(i int) {
	if i < 0 || i >= len(e.draft.Fields) {
		return
	}
	e.draft.Fields = slices.Delete(e.draft.Fields, i, i+1)
}

// Commit validates the draft and appends it to the committed list. A blank
// name is ignored silently. Validation stops at the first failing rule, in
// the order fields, query, name. On success the draft resets to an empty
// scalar and its errors are cleared.
func (e *VariableEditor) Commit() bool {
	if strings.TrimSpace(e.draft.Name) == "" {
		return false
	}
	kind := e.draft.Kind
	if kind.Grouped() {
		if len(e.draft.Fields) == 0 {
			e.errs[FieldFields] = fmt.Sprintf("add at least one field for the %s", kind.Label())
			return false
		}
		if strings.TrimSpace(e.draft.Query) == "" {
			e.errs[FieldQuery] = fmt.Sprintf("define a query for the %s", kind.Label())
			return false
		}
	}
	name := contractapi.NormalizeName(e.draft.Name)
	for _, v := range e.committed {
		if contractapi.NormalizeName(v.Name()) == name {
			e.errs[FieldName] = "a variable with this name already exists"
			return false
		}
	}

	var v contractapi.Variable
	if kind.Grouped() {
		grouped, err := contractapi.NewGrouped(name, kind, e.draft.Query, e.draft.Fields)
		if err != nil {
			e.errs[FieldName] = err.Error()
			return false
		}
		v = grouped
	} else {
		v = contractapi.NewScalar(name)
	}
	e.committed = append(e.committed, v)
	e.draft = emptyDraft()
	clear(e.errs)
	return true
}

// Remove deletes the committed variable at index i without re-validating the
// rest. Out of range is a no-op.
func (e *VariableEditor) Remove(i int) {
	if i < 0 || i >= len(e.committed) {
		return
	}
	e.committed = slices.Delete(e.committed, i, i+1)
}

// Variables returns a copy of the committed variables.
func (e *VariableEditor) Variables() []contractapi.Variable {
	out := make([]contractapi.Variable, len(e.committed))
	for i, v := range e.committed {
		out[i] = cloneVariable(v)
	}
	return out
}

// Len returns the number of committed variables.
func (e *VariableEditor) Len() int { return len(e.committed) }

// Error returns the draft error for field, or "".
func (e *VariableEditor) Error(field string) string { return e.errs[field] }

// Errors returns the draft errors in field order.
func (e *VariableEditor) Errors() []contractapi.FieldError {
	var out []contractapi.FieldError
	for _, f := range draftFieldOrder {
		if msg, ok := e.errs[f]; ok {
			out = append(out, contractapi.FieldError{Field: f, Message: msg})
		}
	}
	return out
}

// Filter returns the committed variables visible under f.
func (e *VariableEditor) Filter(f Filter) []contractapi.Variable {
	return FilterVariables(e.Variables(), f)
}

func cloneVariable(v contractapi.Variable) contractapi.Variable {
	if g, ok := v.Group(); ok {
		out, err := contractapi.NewGrouped(v.Name(), v.Kind(), g.Query, g.Fields)
		if err == nil {
			return out
		}
	}
	return v
}
