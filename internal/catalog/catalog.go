// Package catalog manages the template collection on top of a backend:
// listing with a per-id cache, search, and publishing editor drafts.
package catalog

import (
	"bytes"
	"context"
	"io"
	"sort"
	"strings"
	"sync"

	"contractgen/internal/editor"
	"contractgen/internal/platform/logger"
	"contractgen/pkg/contractapi"
)

// Backend is the subset of backend.Service the catalog needs.
type Backend interface {
	ListTemplates(ctx context.Context) ([]contractapi.Template, error)
	GetTemplate(ctx context.Context, id string) (contractapi.Template, error)
	CreateTemplate(ctx context.Context, t contractapi.Template) (contractapi.Template, error)
	UpdateTemplate(ctx context.Context, id string, t contractapi.Template) (contractapi.Template, error)
	DeleteTemplate(ctx context.Context, id string) error
	UploadTemplateAsset(ctx context.Context, filename string, r io.Reader) (string, error)
}

// Catalog caches templates by id. The cache is refreshed by List and
// updated by every write made through the catalog.
type Catalog struct {
	backend Backend
	log     *logger.Logger

	mu    sync.RWMutex
	cache map[string]contractapi.Template
}

// New constructs a catalog over b.
func New(b Backend, log *logger.Logger) *Catalog {
	return &Catalog{backend: b, log: logger.OrNop(log), cache: make(map[string]contractapi.Template)}
}

// List fetches all templates ordered by title and refreshes the cache.
func (c *Catalog) List(ctx context.Context) ([]contractapi.Template, error) {
	templates, err := c.backend.ListTemplates(ctx)
	if err != nil {
		return nil, err
	}
	sort.SliceStable(templates, func(i, j int) bool {
		return strings.ToLower(templates[i].Title) < strings.ToLower(templates[j].Title)
	})
	c.mu.Lock()
	clear(c.cache)
	for _, t := range templates {
		c.cache[t.ID] = t.Clone()
	}
	c.mu.Unlock()
	return templates, nil
}

// Get returns a template, serving it from the cache when possible.
func (c *Catalog) Get(ctx context.Context, id string) (contractapi.Template, error) {
	if t, ok := c.Cached(id); ok {
		return t, nil
	}
	t, err := c.backend.GetTemplate(ctx, id)
	if err != nil {
		return contractapi.Template{}, err
	}
	c.remember(t)
	return t, nil
}

// Cached returns a template from the cache without contacting the backend.
func (c *Catalog) Cached(id string) (contractapi.Template, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	t, ok := c.cache[id]
	if !ok {
		return contractapi.Template{}, false
	}
	return t.Clone(), true
}

// Publish validates the draft, uploads a newly selected asset under a name
// derived from the title, then creates or updates the template with the
// asset reference the backend returned. Validation failures are returned as
// field errors and nothing is sent.
func (c *Catalog) Publish(ctx context.Context, d *editor.TemplateDraft) (contractapi.Template, []contractapi.FieldError, error) {
	if errs := d.Validate(); len(errs) > 0 {
		return contractapi.Template{}, errs, nil
	}
	assetPath := ""
	if asset, ok := d.PendingAsset(); ok {
		name := d.UploadName()
		path, err := c.backend.UploadTemplateAsset(ctx, name, bytes.NewReader(asset.Data))
		if err != nil {
			c.log.Warn("template asset upload failed", "asset", name, "error", err)
			return contractapi.Template{}, nil, err
		}
		assetPath = path
	}
	tpl := d.Build(assetPath)
	var (
		saved contractapi.Template
		err   error
	)
	if d.Editing() {
		saved, err = c.backend.UpdateTemplate(ctx, d.ID, tpl)
	} else {
		saved, err = c.backend.CreateTemplate(ctx, tpl)
	}
	if err != nil {
		c.log.Warn("template save failed", "template_id", d.ID, "error", err)
		return contractapi.Template{}, nil, err
	}
	c.remember(saved)
	c.log.Info("template published", "template_id", saved.ID, "title", saved.Title, "updated", d.Editing())
	return saved, nil, nil
}

// Delete removes a template and evicts it from the cache.
func (c *Catalog) Delete(ctx context.Context, id string) error {
	if err := c.backend.DeleteTemplate(ctx, id); err != nil {
		return err
	}
	c.mu.Lock()
	delete(c.cache, id)
	c.mu.Unlock()
	return nil
}

func (c *Catalog) remember(t contractapi.Template) {
	if t.ID == "" {
		return
	}
	c.mu.Lock()
	c.cache[t.ID] = t.Clone()
	c.mu.Unlock()
}

// Search keeps the templates whose title, description or category label
// contains query, ignoring case. A blank query keeps everything.
func Search(templates []contractapi.Template, query string) []contractapi.Template {
	q := strings.ToLower(strings.TrimSpace(query))
	if q == "" {
		return templates
	}
	var out []contractapi.Template
	for _, t := range templates {
		if strings.Contains(strings.ToLower(t.Title), q) ||
			strings.Contains(strings.ToLower(t.Description), q) ||
			strings.Contains(strings.ToLower(t.Category.Label()), q) {
			out = append(out, t)
		}
	}
	return out
}
