package localbackend

import (
	"context"
	"fmt"
	"io"
	"os"

	"gopkg.in/yaml.v3"

	"contractgen/pkg/contractapi"
)

// Resolver produces the data a template's queries would return for a set of
// parameter values.
type Resolver interface {
	Resolve(ctx context.Context, t contractapi.Template, params map[string]string) (contractapi.ResolvedData, error)
}

// FixtureSet is the data available to one template: rows for the main query
// and one row set per list or table variable.
type FixtureSet struct {
	Principal   []contractapi.Record            `yaml:"principal"`
	Collections map[string][]contractapi.Record `yaml:"collections"`
}

// Fixtures is the YAML document loaded by FixtureResolver. Sets under
// templates are keyed by template id and take precedence over the default
// set.
type Fixtures struct {
	FixtureSet `yaml:",inline"`
	Templates  map[string]FixtureSet `yaml:"templates"`
}

// FixtureResolver answers queries from static fixtures. A row matches when
// every column named like a supplied parameter holds that parameter's value.
// No SQL is executed.
type FixtureResolver struct {
	fixtures Fixtures
}

// NewFixtureResolver wraps already decoded fixtures.
func NewFixtureResolver(f Fixtures) *FixtureResolver {
	return &FixtureResolver{fixtures: f}
}

// DecodeFixtures reads a fixtures document.
func DecodeFixtures(r io.Reader) (*FixtureResolver, error) {
	var f Fixtures
	if err := yaml.NewDecoder(r).Decode(&f); err != nil && err != io.EOF {
		return nil, fmt.Errorf("decode fixtures: %w", err)
	}
	return NewFixtureResolver(f), nil
}

// LoadFixtures reads a fixtures file. An empty path yields an empty
// resolver.
func LoadFixtures(path string) (*FixtureResolver, error) {
	if path == "" {
		return NewFixtureResolver(Fixtures{}), nil
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open fixtures: %w", err)
	}
	defer func() { _ = f.Close() }()
	return DecodeFixtures(f)
}

// Resolve implements Resolver.
func (r *FixtureResolver) Resolve(ctx context.Context, t contractapi.Template, params map[string]string) (contractapi.ResolvedData, error) {
	if err := ctx.Err(); err != nil {
		return contractapi.ResolvedData{}, err
	}
	set, ok := r.fixtures.Templates[t.ID]
	if !ok {
		set = r.fixtures.FixtureSet
	}
	out := contractapi.ResolvedData{Principal: filterRows(set.Principal, params)}
	if out.Principal == nil {
		out.Principal = []contractapi.Record{}
	}
	for _, v := range t.Variables {
		if !v.Kind().Grouped() {
			continue
		}
		if out.Collections == nil {
			out.Collections = make(map[string]contractapi.Collection)
		}
		rows := project(filterRows(set.Collections[v.Name()], params), v.Fields())
		if rows == nil {
			rows = []contractapi.Record{}
		}
		out.Collections[v.Name()] = contractapi.Collection{Rows: rows}
	}
	return out, nil
}

func filterRows(rows []contractapi.Record, params map[string]string) []contractapi.Record {
	var out []contractapi.Record
	for _, row := range rows {
		if rowMatches(row, params) {
			out = append(out, row.Clone())
		}
	}
	return out
}

func rowMatches(row contractapi.Record, params map[string]string) bool {
	for name, want := range params {
		got, ok := row[name]
		if !ok {
			continue
		}
		if fmt.Sprint(got) != want {
			return false
		}
	}
	return true
}

// project keeps the declared fields of each row. Rows keep every column
// when no fields are declared.
func project(rows []contractapi.Record, fields []string) []contractapi.Record {
	if len(fields) == 0 {
		return rows
	}
	out := make([]contractapi.Record, len(rows))
	for i, row := range rows {
		rec := make(contractapi.Record, len(fields))
		for _, f := range fields {
			if v, ok := row[f]; ok {
				rec[f] = v
			}
		}
		out[i] = rec
	}
	return out
}
