package editor

import (
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"

	"contractgen/pkg/contractapi"
)

func TestNewTemplateDraftValidation(t *testing.T) {
	d := NewTemplateDraft()
	got := d.Validate()
	want := []contractapi.FieldError{
		{Field: "title", Message: "title is required"},
		{Field: "description", Message: "description is required"},
		{Field: "asset", Message: "template file is required"},
		{Field: "mainQuery", Message: "main query is required"},
		{Field: "variables", Message: "add at least one variable to the template"},
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Fatalf("validation mismatch (-want +got):\n%s", diff)
	}
}

func TestSelectAssetRejectsUnsupportedExtension(t *testing.T) {
	d := NewTemplateDraft()
	if d.SelectAsset("contrato.pdf", []byte("x")) {
		t.Fatalf("pdf must be rejected")
	}
	if _, ok := d.PendingAsset(); ok {
		t.Fatalf("rejected asset must not be pending")
	}
	found := false
	for _, e := range d.Validate() {
		if e.Field == "asset" && e.Message == "only .dotx or .docx files are accepted" {
			found = true
		}
	}
	if !found {
		t.Fatalf("expected extension error, got %v", d.Validate())
	}
	if !d.SelectAsset("Modelo.DOTX", []byte("x")) {
		t.Fatalf("dotx must be accepted")
	}
	d.Title = "Contrato de Locação"
	if got := d.UploadName(); got != "contrato-de-locacao.dotx" {
		t.Fatalf("unexpected upload name %q", got)
	}
}

func TestEditTemplateKeepsStoredAsset(t *testing.T) {
	tpl := contractapi.Template{
		ID:          "t1",
		Title:       "NDA",
		Category:    contractapi.CategoryConfidentiality,
		Description: "mutual",
		AssetPath:   "templates/nda.docx",
		MainQuery:   "SELECT * FROM c WHERE id=:id",
		Variables:   []contractapi.Variable{contractapi.NewScalar("cliente")},
	}
	d := EditTemplate(tpl)
	if errs := d.Validate(); len(errs) != 0 {
		t.Fatalf("existing template should validate, got %v", errs)
	}
	built := d.Build("")
	if built.AssetPath != "templates/nda.docx" || built.ID != "t1" {
		t.Fatalf("unexpected build %+v", built)
	}
	if got := d.Build("templates/new.docx").AssetPath; got != "templates/new.docx" {
		t.Fatalf("uploaded path must win, got %q", got)
	}
	if diff := cmp.Diff([]string{"id"}, d.Parameters()); diff != "" {
		t.Fatalf("parameters mismatch (-want +got):\n%s", diff)
	}
}

func TestDefinitionApply(t *testing.T) {
	src := `
title: Contrato de Prestação de Serviços
category: prestacao-servicos
description: Modelo padrão
main_query: SELECT * FROM contratos WHERE id = :id
asset: modelo.docx
variables:
  - name: Nome Cliente
  - name: Parcelas
    kind: table
    query: SELECT * FROM parcelas WHERE contrato = :id AND ano = :ano
    fields: [valor, Data Vencimento]
  - name: nome_cliente
  - name: devedores
    kind: list
`
	def, err := DecodeDefinition(strings.NewReader(src))
	if err != nil {
		t.Fatalf("DecodeDefinition: %v", err)
	}
	d := NewTemplateDraft()
	errs := def.Apply(d)
	want := []contractapi.FieldError{
		{Field: "variables[2].name", Message: "a variable with this name already exists"},
		{Field: "variables[3].fields", Message: "add at least one field for the list"},
	}
	if diff := cmp.Diff(want, errs); diff != "" {
		t.Fatalf("apply errors mismatch (-want +got):\n%s", diff)
	}
	vars := d.Variables.Variables()
	if len(vars) != 2 || vars[1].Name() != "parcelas" {
		t.Fatalf("unexpected variables %+v", vars)
	}
	if diff := cmp.Diff([]string{"valor", "data_vencimento"}, vars[1].Fields()); diff != "" {
		t.Fatalf("fields mismatch (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff([]string{"id", "ano"}, d.Parameters()); diff != "" {
		t.Fatalf("parameters mismatch (-want +got):\n%s", diff)
	}
	if len(d.Variables.Errors()) != 0 {
		t.Fatalf("draft errors should be cleared after apply, got %v", d.Variables.Errors())
	}
}

func TestDecodeDefinitionRejectsUnknownKeys(t *testing.T) {
	if _, err := DecodeDefinition(strings.NewReader("titel: typo\n")); err == nil {
		t.Fatalf("expected unknown field error")
	}
}
