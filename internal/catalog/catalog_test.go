package catalog

import (
	"context"
	"errors"
	"io"
	"testing"

	"github.com/google/go-cmp/cmp"

	"contractgen/internal/editor"
	"contractgen/pkg/contractapi"
)

type fakeBackend struct {
	templates map[string]contractapi.Template
	uploads   map[string]string
	gets      int
	uploadErr error
}

func newFakeBackend(ts ...contractapi.Template) *fakeBackend {
	f := &fakeBackend{templates: map[string]contractapi.Template{}, uploads: map[string]string{}}
	for _, t := range ts {
		f.templates[t.ID] = t
	}
	return f
}

func (f *fakeBackend) ListTemplates(context.Context) ([]contractapi.Template, error) {
	var out []contractapi.Template
	for _, t := range f.templates {
		out = append(out, t)
	}
	return out, nil
}

func (f *fakeBackend) GetTemplate(_ context.Context, id string) (contractapi.Template, error) {
	f.gets++
	t, ok := f.templates[id]
	if !ok {
		return contractapi.Template{}, errors.New("template not found")
	}
	return t, nil
}

func (f *fakeBackend) CreateTemplate(_ context.Context, t contractapi.Template) (contractapi.Template, error) {
	t.ID = "new-1"
	f.templates[t.ID] = t
	return t, nil
}

func (f *fakeBackend) UpdateTemplate(_ context.Context, id string, t contractapi.Template) (contractapi.Template, error) {
	t.ID = id
	f.templates[id] = t
	return t, nil
}

func (f *fakeBackend) DeleteTemplate(_ context.Context, id string) error {
	delete(f.templates, id)
	return nil
}

func (f *fakeBackend) UploadTemplateAsset(_ context.Context, filename string, r io.Reader) (string, error) {
	if f.uploadErr != nil {
		return "", f.uploadErr
	}
	data, _ := io.ReadAll(r)
	f.uploads[filename] = string(data)
	return "templates/" + filename, nil
}

func completeDraft(t *testing.T) *editor.TemplateDraft {
	t.Helper()
	d := editor.NewTemplateDraft()
	d.Title = "Contrato de Locação"
	d.Category = contractapi.CategoryLease
	d.Description = "Residential lease"
	d.MainQuery = "SELECT * FROM leases WHERE id = :id"
	d.Variables.SetName("tenant")
	if !d.Variables.Commit() {
		t.Fatalf("commit failed: %v", d.Variables.Errors())
	}
	return d
}

func TestPublishNewTemplateUploadsSanitizedAsset(t *testing.T) {
	f := newFakeBackend()
	c := New(f, nil)
	d := completeDraft(t)
	if !d.SelectAsset("Lease.DOCX", []byte("doc")) {
		t.Fatalf("expected docx asset to be accepted")
	}
	saved, errs, err := c.Publish(context.Background(), d)
	if err != nil || len(errs) != 0 {
		t.Fatalf("Publish: %v %v", errs, err)
	}
	if got := f.uploads["contrato-de-locacao.docx"]; got != "doc" {
		t.Fatalf("expected sanitized upload name, uploads=%v", f.uploads)
	}
	if saved.AssetPath != "templates/contrato-de-locacao.docx" {
		t.Fatalf("expected server asset path, got %q", saved.AssetPath)
	}
	if cached, ok := c.Cached(saved.ID); !ok || cached.Title != "Contrato de Locação" {
		t.Fatalf("expected published template in cache, got %+v %v", cached, ok)
	}
}

func TestPublishRejectsInvalidDraftWithoutCalls(t *testing.T) {
	f := newFakeBackend()
	c := New(f, nil)
	d := editor.NewTemplateDraft()
	_, errs, err := c.Publish(context.Background(), d)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	want := []string{"title", "description", "asset", "mainQuery", "variables"}
	var got []string
	for _, e := range errs {
		got = append(got, e.Field)
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Fatalf("field errors mismatch (-want +got):\n%s", diff)
	}
	if len(f.uploads) != 0 || len(f.templates) != 0 {
		t.Fatalf("invalid draft must not reach the backend")
	}
}

func TestPublishUpdateKeepsStoredAsset(t *testing.T) {
	existing := contractapi.Template{
		ID: "t1", Title: "NDA", Category: contractapi.CategoryConfidentiality, Description: "d",
		AssetPath: "templates/nda.docx", MainQuery: "SELECT 1 WHERE id = :id",
		Variables: []contractapi.Variable{contractapi.NewScalar("client")},
	}
	f := newFakeBackend(existing)
	c := New(f, nil)
	d := editor.EditTemplate(existing)
	d.Description = "updated"
	saved, errs, err := c.Publish(context.Background(), d)
	if err != nil || len(errs) != 0 {
		t.Fatalf("Publish: %v %v", errs, err)
	}
	if len(f.uploads) != 0 {
		t.Fatalf("update without a new asset must not upload")
	}
	if saved.AssetPath != "templates/nda.docx" || saved.Description != "updated" {
		t.Fatalf("unexpected saved template %+v", saved)
	}
}

func TestPublishUploadFailure(t *testing.T) {
	f := newFakeBackend()
	f.uploadErr = errors.New("storage offline")
	c := New(f, nil)
	d := completeDraft(t)
	d.SelectAsset("a.dotx", []byte("x"))
	if _, _, err := c.Publish(context.Background(), d); err == nil || err.Error() != "storage offline" {
		t.Fatalf("expected upload error, got %v", err)
	}
	if len(f.templates) != 0 {
		t.Fatalf("template must not be created after a failed upload")
	}
}

func TestListSortsAndCaches(t *testing.T) {
	f := newFakeBackend(
		contractapi.Template{ID: "b", Title: "beta"},
		contractapi.Template{ID: "a", Title: "Alpha"},
	)
	c := New(f, nil)
	list, err := c.List(context.Background())
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if list[0].ID != "a" || list[1].ID != "b" {
		t.Fatalf("expected title order, got %v %v", list[0].ID, list[1].ID)
	}
	if _, err := c.Get(context.Background(), "b"); err != nil || f.gets != 0 {
		t.Fatalf("expected cached get, gets=%d err=%v", f.gets, err)
	}
	if err := c.Delete(context.Background(), "b"); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if _, ok := c.Cached("b"); ok {
		t.Fatalf("deleted template should be evicted")
	}
}

func TestSearch(t *testing.T) {
	templates := []contractapi.Template{
		{ID: "1", Title: "NDA", Category: contractapi.CategoryConfidentiality},
		{ID: "2", Title: "Office", Description: "commercial LEASE", Category: contractapi.CategoryLease},
		{ID: "3", Title: "Supply", Category: contractapi.CategorySale},
	}
	cases := []struct {
		query string
		want  []string
	}{
		{"", []string{"1", "2", "3"}},
		{"nda", []string{"1"}},
		{"lease", []string{"2"}},
		{"confidential", []string{"1"}},
		{"zzz", nil},
	}
	for _, tc := range cases {
		var got []string
		for _, tpl := range Search(templates, tc.query) {
			got = append(got, tpl.ID)
		}
		if diff := cmp.Diff(tc.want, got); diff != "" {
			t.Fatalf("Search(%q) mismatch (-want +got):\n%s", tc.query, diff)
		}
	}
}
