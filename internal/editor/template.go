package editor

import (
	"slices"
	"strings"
	"time"

	"contractgen/pkg/contractapi"
)

// Asset is a template document selected for upload.
type Asset struct {
	Name string
	Data []byte
}

// TemplateDraft is the form state for creating or editing a template.
type TemplateDraft struct {
	ID          string
	Title       string
	Category    contractapi.Category
	Description string
	MainQuery   string
	Variables   *VariableEditor

	currentAsset string
	asset        *Asset
	assetErr     string
	createdAt    time.Time
}

// NewTemplateDraft starts an empty draft for a new template.
func NewTemplateDraft() *TemplateDraft {
	return &TemplateDraft{
		Category:  contractapi.CategoryServiceProvision,
		Variables: NewVariableEditor(nil),
	}
}

// EditTemplate starts a draft pre-filled from an existing template. The
// stored asset stays in use unless a new one is selected.
func EditTemplate(t contractapi.Template) *TemplateDraft {
	return &TemplateDraft{
		ID:           t.ID,
		Title:        t.Title,
		Category:     t.Category,
		Description:  t.Description,
		MainQuery:    t.MainQuery,
		Variables:    NewVariableEditor(t.Variables),
		currentAsset: t.AssetPath,
		createdAt:    t.CreatedAt,
	}
}

// Editing reports whether the draft updates an existing template.
func (d *TemplateDraft) Editing() bool { return d.ID != "" }

// CurrentAsset returns the stored asset reference of the template being
// edited, or "".
func (d *TemplateDraft) CurrentAsset() string { return d.currentAsset }

// SelectAsset replaces the pending asset. Only .docx and .dotx files are
// accepted; anything else clears the selection and records an asset error.
func (d *TemplateDraft) SelectAsset(name string, data []byte) bool {
	if ferr := contractapi.ValidateAssetName(name); ferr != nil {
		d.asset = nil
		d.assetErr = ferr.Message
		return false
	}
	d.asset = &Asset{Name: name, Data: slices.Clone(data)}
	d.assetErr = ""
	return true
}

// PendingAsset returns the asset selected for upload, if any.
func (d *TemplateDraft) PendingAsset() (Asset, bool) {
	if d.asset == nil {
		return Asset{}, false
	}
	return *d.asset, true
}

// UploadName is the storage name for the pending asset derived from the
// current title.
func (d *TemplateDraft) UploadName() string {
	if d.asset == nil {
		return ""
	}
	return contractapi.AssetFilename(d.Title, d.asset.Name)
}

// Validate checks the template-level form. A new template needs an asset;
// an edited one may keep its stored asset.
func (d *TemplateDraft) Validate() []contractapi.FieldError {
	var errs []contractapi.FieldError
	add := func(field, msg string) { errs = append(errs, contractapi.FieldError{Field: field, Message: msg}) }
	if strings.TrimSpace(d.Title) == "" {
		add("title", "title is required")
	}
	if strings.TrimSpace(d.Description) == "" {
		add("description", "description is required")
	}
	switch {
	case d.assetErr != "":
		add("asset", d.assetErr)
	case d.asset == nil && d.currentAsset == "":
		add("asset", "template file is required")
	}
	if strings.TrimSpace(d.MainQuery) == "" {
		add("mainQuery", "main query is required")
	}
	if d.Variables == nil || d.Variables.Len() == 0 {
		add("variables", "add at least one variable to the template")
	}
	return errs
}

// Parameters returns the parameter set the draft would produce.
func (d *TemplateDraft) Parameters() []string {
	return d.Build("").Parameters()
}

// Build assembles the template. assetPath is the reference returned by an
// upload; when empty the stored asset is kept.
func (d *TemplateDraft) Build(assetPath string) contractapi.Template {
	if assetPath == "" {
		assetPath = d.currentAsset
	}
	var vars []contractapi.Variable
	if d.Variables != nil {
		vars = d.Variables.Variables()
	}
	return contractapi.Template{
		ID:          d.ID,
		Title:       strings.TrimSpace(d.Title),
		Category:    d.Category,
		Description: strings.TrimSpace(d.Description),
		AssetPath:   assetPath,
		MainQuery:   d.MainQuery,
		Variables:   vars,
		CreatedAt:   d.createdAt,
	}
}
