package contractapi

import (
	"testing"

	"github.com/google/go-cmp/cmp"
)

func TestExtractParameters(t *testing.T) {
	cases := []struct {
		name  string
		query string
		want  []string
	}{
		{"empty", "", nil},
		{"none", "SELECT * FROM contracts", nil},
		{"single", "SELECT * FROM x WHERE id=:id", []string{"id"}},
		{"dedup keeps first order", "SELECT * FROM t WHERE a=:a AND b=:b AND c=:a", []string{"a", "b"}},
		{"digits and underscore", "WHERE x=:cod_cliente_2 OR y=:Z9", []string{"cod_cliente_2", "Z9"}},
		{"lone colon ignored", "SELECT ':' || name, a::text FROM t WHERE k = :key", []string{"text", "key"}},
		{"stops at punctuation", "IN (:a,:b)", []string{"a", "b"}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got := ExtractParameters(tc.query)
			if diff := cmp.Diff(tc.want, got); diff != "" {
				t.Fatalf("ExtractParameters(%q) mismatch (-want +got):\n%s", tc.query, diff)
			}
		})
	}
}

func TestExtractAllParametersUnionOrder(t *testing.T) {
	got := ExtractAllParameters("WHERE a=:a", []string{"WHERE b=:b AND a=:a", "WHERE c=:c"})
	want := []string{"a", "b", "c"}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Fatalf("union mismatch (-want +got):\n%s", diff)
	}
}

func TestExtractAllParametersNoDuplicates(t *testing.T) {
	got := ExtractAllParameters(":x :y :x", []string{":y :z", ":z :x"})
	seen := map[string]bool{}
	for _, p := range got {
		if seen[p] {
			t.Fatalf("duplicate parameter %q in %v", p, got)
		}
		seen[p] = true
	}
	if len(got) != 3 {
		t.Fatalf("expected 3 parameters, got %v", got)
	}
}

func TestTemplateParametersSkipsScalarVariables(t *testing.T) {
	list, err := NewGrouped("debtors", KindList, "SELECT * FROM d WHERE contract=:contract_id AND kind=:kind", []string{"name"})
	if err != nil {
		t.Fatalf("NewGrouped: %v", err)
	}
	tpl := Template{
		MainQuery: "SELECT * FROM contracts WHERE id=:contract_id",
		Variables: []Variable{NewScalar("client"), list},
	}
	want := []string{"contract_id", "kind"}
	if diff := cmp.Diff(want, tpl.Parameters()); diff != "" {
		t.Fatalf("template parameters mismatch (-want +got):\n%s", diff)
	}
}

func TestValidateParameterValues(t *testing.T) {
	errs := ValidateParameterValues([]string{"id", "nome_cliente", "cpf"}, map[string]string{
		"id":           "42",
		"nome_cliente": "   ",
	})
	want := []FieldError{
		{Field: "nome_cliente", Message: "the field nome cliente is required"},
		{Field: "cpf", Message: "the field cpf is required"},
	}
	if diff := cmp.Diff(want, errs); diff != "" {
		t.Fatalf("validation mismatch (-want +got):\n%s", diff)
	}
}
