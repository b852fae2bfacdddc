// Package contractapi defines the contract template model shared by the
// client, the local engine and the HTTP surfaces: templates, variables,
// generated instances and the pure helpers that operate on them (parameter
// extraction, name normalization and filename sanitization).
package contractapi

import (
	"encoding/json"
	"errors"
	"fmt"
	"slices"
	"time"
)

// Category classifies a template. Values are the identifiers used on the wire.
type Category string

const (
	CategoryServiceProvision Category = "prestacao-servicos"
	CategorySale             Category = "compra-venda"
	CategoryLease            Category = "locacao"
	CategoryPartnership      Category = "parceria"
	CategoryConfidentiality  Category = "confidencialidade"
)

var categoryLabels = map[Category]string{
	CategoryServiceProvision: "Service provision",
	CategorySale:             "Sale",
	CategoryLease:            "Lease",
	CategoryPartnership:      "Partnership",
	CategoryConfidentiality:  "Confidentiality",
}

// Categories returns every known category in display order.
func Categories() []Category {
	return []Category{
		CategoryServiceProvision,
		CategorySale,
		CategoryLease,
		CategoryPartnership,
		CategoryConfidentiality,
	}
}

// Valid reports whether c is one of the known categories.
func (c Category) Valid() bool {
	_, ok := categoryLabels[c]
	return ok
}

// Label returns the human readable category name. Unknown categories are
// returned verbatim.
func (c Category) Label() string {
	if label, ok := categoryLabels[c]; ok {
		return label
	}
	return string(c)
}

// ParseCategory accepts either a wire identifier or a label.
func ParseCategory(raw string) (Category, error) {
	candidate := Category(raw)
	if candidate.Valid() {
		return candidate, nil
	}
	for _, c := range Categories() {
		if NormalizeName(c.Label()) == NormalizeName(raw) {
			return c, nil
		}
	}
	return "", fmt.Errorf("contractapi: unknown category %q", raw)
}

// Kind is the shape of a template variable.
type Kind string

const (
	KindScalar Kind = "simples"
	KindList   Kind = "lista"
	KindTable  Kind = "tabela"
)

// Label returns the english name of the kind.
func (k Kind) Label() string {
	switch k {
	case KindScalar:
		return "scalar"
	case KindList:
		return "list"
	case KindTable:
		return "table"
	default:
		return string(k)
	}
}

// Grouped reports whether the kind carries a query and fields.
func (k Kind) Grouped() bool { return k == KindList || k == KindTable }

// ParseKind accepts a wire value or the english label.
func ParseKind(raw string) (Kind, error) {
	switch NormalizeName(raw) {
	case "simples", "scalar", "":
		return KindScalar, nil
	case "lista", "list":
		return KindList, nil
	case "tabela", "table":
		return KindTable, nil
	}
	return "", fmt.Errorf("contractapi: unknown variable kind %q", raw)
}

// Group holds the query and projected fields of a list or table variable.
type Group struct {
	Query  string
	Fields []string
}

// Variable is a named placeholder inside a template. Scalars carry no group;
// list and table variables always carry one.
type Variable struct {
	name  string
	kind  Kind
	group *Group
}

// ErrScalarGroup is returned when a group is requested for a scalar kind.
var ErrScalarGroup = errors.New("contractapi: scalar variables take no query or fields")

// NewScalar builds a scalar variable. The name is stored as given; callers
// normalize before construction.
func NewScalar(name string) Variable {
	return Variable{name: name, kind: KindScalar}
}

// NewGrouped builds a list or table variable.
func NewGrouped(name string, kind Kind, query string, fields []string) (Variable, error) {
	if !kind.Grouped() {
		return Variable{}, ErrScalarGroup
	}
	return Variable{name: name, kind: kind, group: &Group{Query: query, Fields: slices.Clone(fields)}}, nil
}

// Name returns the normalized variable name.
func (v Variable) Name() string { return v.name }

// Kind returns the variable shape.
func (v Variable) Kind() Kind { return v.kind }

// Group returns a copy of the list/table payload; ok is false for scalars.
func (v Variable) Group() (Group, bool) {
	if v.group == nil {
		return Group{}, false
	}
	return Group{Query: v.group.Query, Fields: slices.Clone(v.group.Fields)}, true
}

// Query returns the variable query or "" for scalars.
func (v Variable) Query() string {
	if v.group == nil {
		return ""
	}
	return v.group.Query
}

// Fields returns a copy of the projected fields or nil for scalars.
func (v Variable) Fields() []string {
	if v.group == nil {
		return nil
	}
	return slices.Clone(v.group.Fields)
}

// Equal reports structural equality.
func (v Variable) Equal(o Variable) bool {
	if v.name != o.name || v.kind != o.kind {
		return false
	}
	if (v.group == nil) != (o.group == nil) {
		return false
	}
	if v.group == nil {
		return true
	}
	return v.group.Query == o.group.Query && slices.Equal(v.group.Fields, o.group.Fields)
}

type variableWire struct {
	Name   string   `json:"nome"`
	Kind   Kind     `json:"tipo"`
	Fields []string `json:"subvariaveis"`
	Query  string   `json:"query"`
}

// MarshalJSON encodes the variable using the backend field names.
func (v Variable) MarshalJSON() ([]byte, error) {
	wire := variableWire{Name: v.name, Kind: v.kind, Fields: []string{}}
	if v.group != nil {
		wire.Query = v.group.Query
		if len(v.group.Fields) > 0 {
			wire.Fields = slices.Clone(v.group.Fields)
		}
	}
	return json.Marshal(wire)
}

// UnmarshalJSON decodes the backend representation. Query and fields sent for
// a scalar are dropped.
func (v *Variable) UnmarshalJSON(data []byte) error {
	var wire variableWire
	if err := json.Unmarshal(data, &wire); err != nil {
		return err
	}
	kind, err := ParseKind(string(wire.Kind))
	if err != nil {
		return err
	}
	*v = Variable{name: wire.Name, kind: kind}
	if kind.Grouped() {
		v.group = &Group{Query: wire.Query, Fields: slices.Clone(wire.Fields)}
	}
	return nil
}

// Template is a reusable contract definition.
type Template struct {
	ID          string     `json:"_id,omitempty"`
	Title       string     `json:"titulo"`
	Category    Category   `json:"tipo"`
	Description string     `json:"descricao"`
	AssetPath   string     `json:"caminhoTemplate"`
	MainQuery   string     `json:"queryPrincipal"`
	Variables   []Variable `json:"variaveis"`
	CreatedAt   time.Time  `json:"createdAt,omitzero"`
	UpdatedAt   time.Time  `json:"updatedAt,omitzero"`
}

// Parameters returns the ordered parameter set of the template: tokens of the
// main query first, then the queries of list and table variables.
func (t Template) Parameters() []string {
	queries := make([]string, 0, len(t.Variables))
	for _, v := range t.Variables {
		if q := v.Query(); q != "" {
			queries = append(queries, q)
		}
	}
	return ExtractAllParameters(t.MainQuery, queries)
}

// Clone returns a deep copy of the template.
func (t Template) Clone() Template {
	out := t
	if t.Variables != nil {
		out.Variables = make([]Variable, len(t.Variables))
		for i, v := range t.Variables {
			out.Variables[i] = v
			if v.group != nil {
				out.Variables[i].group = &Group{Query: v.group.Query, Fields: slices.Clone(v.group.Fields)}
			}
		}
	}
	return out
}

// File references a stored document.
type File struct {
	Name    string `json:"nome"`
	Locator string `json:"caminho,omitempty"`
}

// Identifiers are the human readable keys shown in contract listings.
type Identifiers struct {
	Primary   string `json:"primario,omitempty"`
	Secondary string `json:"secundario,omitempty"`
}

// Instance is one generated contract version.
type Instance struct {
	ID          string            `json:"_id,omitempty"`
	TemplateID  string            `json:"modeloId"`
	Parameters  map[string]string `json:"parametros"`
	Hash        string            `json:"hash"`
	Version     int               `json:"versao"`
	GeneratedAt time.Time         `json:"dataGeracao"`
	Active      bool              `json:"ativo"`
	File        File              `json:"arquivo"`
	Identifiers Identifiers       `json:"identificadoresCampos,omitzero"`
}

// Clone returns a deep copy of the instance.
func (i Instance) Clone() Instance {
	out := i
	out.Parameters = CloneValues(i.Parameters)
	return out
}

// GenerateResult is the outcome of a generation request.
type GenerateResult struct {
	Contract Instance `json:"contrato"`
	File     File     `json:"arquivo"`
}

// Record is one row of resolved data.
type Record map[string]any

// Collection is the resolved data of a list or table variable. A collection
// resolved to a single object round trips as an object. Anything that is
// not an object or an array of objects, such as a bare total, is kept in
// Value.
type Collection struct {
	Rows   []Record
	Single bool
	Value  any
}

// MarshalJSON encodes single collections as an object, raw values verbatim
// and others as an array.
func (c Collection) MarshalJSON() ([]byte, error) {
	if c.Value != nil {
		return json.Marshal(c.Value)
	}
	if c.Single && len(c.Rows) == 1 {
		return json.Marshal(c.Rows[0])
	}
	rows := c.Rows
	if rows == nil {
		rows = []Record{}
	}
	return json.Marshal(rows)
}

// UnmarshalJSON accepts an array of objects, a single object or any other
// JSON value.
func (c *Collection) UnmarshalJSON(data []byte) error {
	var rows []Record
	if err := json.Unmarshal(data, &rows); err == nil {
		*c = Collection{Rows: rows}
		return nil
	}
	var single Record
	if err := json.Unmarshal(data, &single); err == nil {
		*c = Collection{Rows: []Record{single}, Single: true}
		return nil
	}
	var v any
	if err := json.Unmarshal(data, &v); err != nil {
		return fmt.Errorf("contractapi: decode collection: %w", err)
	}
	*c = Collection{Value: v}
	return nil
}

// Clone returns a deep copy of the collection.
func (c Collection) Clone() Collection {
	out := Collection{Single: c.Single, Value: cloneValue(c.Value)}
	if c.Rows != nil {
		out.Rows = make([]Record, len(c.Rows))
		for i, r := range c.Rows {
			out.Rows[i] = r.Clone()
		}
	}
	return out
}

// Clone returns a deep copy of the record.
func (r Record) Clone() Record {
	if r == nil {
		return nil
	}
	out := make(Record, len(r))
	for k, v := range r {
		out[k] = cloneValue(v)
	}
	return out
}

func cloneValue(v any) any {
	switch t := v.(type) {
	case map[string]any:
		return map[string]any(Record(t).Clone())
	case Record:
		return t.Clone()
	case []any:
		out := make([]any, len(t))
		for i, e := range t {
			out[i] = cloneValue(e)
		}
		return out
	default:
		return v
	}
}

// ResolvedData is the preview returned by data resolution: principal rows from
// the main query plus one collection per list or table variable.
type ResolvedData struct {
	Principal   []Record              `json:"principal"`
	Collections map[string]Collection `json:"variaveis,omitempty"`
}

// Clone returns a deep copy of the resolved data.
func (d ResolvedData) Clone() ResolvedData {
	var out ResolvedData
	if d.Principal != nil {
		out.Principal = make([]Record, len(d.Principal))
		for i, r := range d.Principal {
			out.Principal[i] = r.Clone()
		}
	}
	if d.Collections != nil {
		out.Collections = make(map[string]Collection, len(d.Collections))
		for k, c := range d.Collections {
			out.Collections[k] = c.Clone()
		}
	}
	return out
}

// FieldError is a validation failure scoped to a named field.
type FieldError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

func (e FieldError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// CloneValues copies a parameter value map.
func CloneValues(in map[string]string) map[string]string {
	if in == nil {
		return nil
	}
	out := make(map[string]string, len(in))
	for k, v := range in {
		out[k] = v
	}
	return out
}
