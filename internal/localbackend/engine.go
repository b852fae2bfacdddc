// Package localbackend is a self-contained implementation of
// backend.Service. Templates and instance history live in a store.Store,
// template documents and generated manifests in a blob.Store, and query
// results come from a Resolver.
package localbackend

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"path"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"contractgen/internal/backend"
	"contractgen/internal/blob"
	"contractgen/internal/metrics"
	"contractgen/internal/platform/logger"
	"contractgen/internal/store"
	"contractgen/pkg/contractapi"
)

const docxMIME = "application/vnd.openxmlformats-officedocument.wordprocessingml.document"

// Engine implements backend.Service locally.
type Engine struct {
	store    store.Store
	blobs    blob.Store
	resolver Resolver
	log      *logger.Logger
	metrics  metrics.Recorder
	now      func() time.Time
	newID    func() string

	// genMu serializes generation so version numbers stay dense per hash.
	genMu sync.Mutex
}

var _ backend.Service = (*Engine)(nil)

// Option customizes an Engine.
type Option func(*Engine)

// WithLogger sets the engine logger.
func WithLogger(l *logger.Logger) Option {
	return func(e *Engine) { e.log = logger.OrNop(l) }
}

// WithMetrics sets the operation recorder.
func WithMetrics(r metrics.Recorder) Option {
	return func(e *Engine) {
		if r != nil {
			e.metrics = r
		}
	}
}

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(e *Engine) {
		if now != nil {
			e.now = now
		}
	}
}

// WithIDGenerator overrides identifier generation.
func WithIDGenerator(fn func() string) Option {
	return func(e *Engine) {
		if fn != nil {
			e.newID = fn
		}
	}
}

// New constructs an engine. A nil resolver resolves every query to no rows.
func New(st store.Store, blobs blob.Store, resolver Resolver, opts ...Option) *Engine {
	if resolver == nil {
		resolver = NewFixtureResolver(Fixtures{})
	}
	e := &Engine{
		store:    st,
		blobs:    blobs,
		resolver: resolver,
		log:      logger.Nop(),
		metrics:  metrics.Noop{},
		now:      func() time.Time { return time.Now().UTC() },
		newID:    uuid.NewString,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// ListTemplates implements backend.Service.
func (e *Engine) ListTemplates(ctx context.Context) (out []contractapi.Template, err error) {
	defer metrics.Since(ctx, e.metrics, "list_templates", time.Now(), &err)
	err = e.store.View(ctx, func(v store.View) error {
		out = v.ListTemplates()
		return nil
	})
	return out, err
}

// GetTemplate implements backend.Service.
func (e *Engine) GetTemplate(ctx context.Context, id string) (t contractapi.Template, err error) {
	defer metrics.Since(ctx, e.metrics, "get_template", time.Now(), &err)
	return e.template(ctx, "get_template", id)
}

func (e *Engine) template(ctx context.Context, op, id string) (contractapi.Template, error) {
	var (
		t  contractapi.Template
		ok bool
	)
	if err := e.store.View(ctx, func(v store.View) error {
		t, ok = v.FindTemplate(id)
		return nil
	}); err != nil {
		return contractapi.Template{}, err
	}
	if !ok {
		return contractapi.Template{}, backend.NotFound(op, "template not found")
	}
	return t, nil
}

// CreateTemplate implements backend.Service.
func (e *Engine) CreateTemplate(ctx context.Context, t contractapi.Template) (out contractapi.Template, err error) {
	defer metrics.Since(ctx, e.metrics, "create_template", time.Now(), &err)
	if errs := contractapi.ValidateTemplate(t); len(errs) > 0 {
		return contractapi.Template{}, backend.Invalid("create_template", errs[0].Message)
	}
	now := e.now()
	out = t.Clone()
	out.ID = e.newID()
	out.CreatedAt = now
	out.UpdatedAt = now
	err = e.store.RunInTransaction(ctx, func(tx store.Tx) error {
		tx.PutTemplate(out)
		return nil
	})
	if err != nil {
		return contractapi.Template{}, err
	}
	e.log.Info("template created", "template_id", out.ID, "title", out.Title)
	return out, nil
}

// UpdateTemplate implements backend.Service. An empty asset path keeps the
// stored document.
func (e *Engine) UpdateTemplate(ctx context.Context, id string, t contractapi.Template) (out contractapi.Template, err error) {
	defer metrics.Since(ctx, e.metrics, "update_template", time.Now(), &err)
	err = e.store.RunInTransaction(ctx, func(tx store.Tx) error {
		existing, ok := tx.FindTemplate(id)
		if !ok {
			return backend.NotFound("update_template", "template not found")
		}
		out = t.Clone()
		out.ID = id
		out.CreatedAt = existing.CreatedAt
		out.UpdatedAt = e.now()
		if out.AssetPath == "" {
			out.AssetPath = existing.AssetPath
		}
		if errs := contractapi.ValidateTemplate(out); len(errs) > 0 {
			return backend.Invalid("update_template", errs[0].Message)
		}
		tx.PutTemplate(out)
		return nil
	})
	if err != nil {
		return contractapi.Template{}, err
	}
	e.log.Info("template updated", "template_id", id)
	return out, nil
}

// DeleteTemplate implements backend.Service. Generated history is kept.
func (e *Engine) DeleteTemplate(ctx context.Context, id string) (err error) {
	defer metrics.Since(ctx, e.metrics, "delete_template", time.Now(), &err)
	err = e.store.RunInTransaction(ctx, func(tx store.Tx) error {
		if !tx.DeleteTemplate(id) {
			return backend.NotFound("delete_template", "template not found")
		}
		return nil
	})
	if err == nil {
		e.log.Info("template deleted", "template_id", id)
	}
	return err
}

// UploadTemplateAsset implements backend.Service. Each upload gets its own
// key, so re-uploading a file with the same name never collides.
func (e *Engine) UploadTemplateAsset(ctx context.Context, filename string, r io.Reader) (key string, err error) {
	defer metrics.Since(ctx, e.metrics, "upload_template_asset", time.Now(), &err)
	if ferr := contractapi.ValidateAssetName(filename); ferr != nil {
		return "", backend.Invalid("upload_template_asset", ferr.Message)
	}
	key = blob.AssetKey(e.newID(), filename)
	if _, err := e.blobs.Put(ctx, key, r, blob.PutOptions{
		ContentType: docxMIME,
		Metadata:    map[string]string{"filename": path.Base(filename)},
	}); err != nil {
		return "", fmt.Errorf("store template asset: %w", err)
	}
	e.log.Info("template asset stored", "key", key)
	return key, nil
}

// FetchResolvedData implements backend.Service.
func (e *Engine) FetchResolvedData(ctx context.Context, templateID string, params map[string]string) (data contractapi.ResolvedData, err error) {
	defer metrics.Since(ctx, e.metrics, "fetch_resolved_data", time.Now(), &err)
	t, err := e.template(ctx, "fetch_resolved_data", templateID)
	if err != nil {
		return contractapi.ResolvedData{}, err
	}
	if err := requireValues("fetch_resolved_data", t, params); err != nil {
		return contractapi.ResolvedData{}, err
	}
	return e.resolver.Resolve(ctx, t, params)
}

// GenerateContract implements backend.Service. Generating the same
// parameters again returns the active version unless force is set, in
// which case a new version is written and the previous one deactivated.
func (e *Engine) GenerateContract(ctx context.Context, templateID string, params map[string]string, force bool) (res contractapi.GenerateResult, err error) {
	defer metrics.Since(ctx, e.metrics, "generate_contract", time.Now(), &err)
	t, err := e.template(ctx, "generate_contract", templateID)
	if err != nil {
		return contractapi.GenerateResult{}, err
	}
	if err := requireValues("generate_contract", t, params); err != nil {
		return contractapi.GenerateResult{}, err
	}
	values := scopedValues(t, params)
	hash := ContentHash(templateID, values)

	e.genMu.Lock()
	defer e.genMu.Unlock()

	var history []contractapi.Instance
	if err := e.store.View(ctx, func(v store.View) error {
		history = v.ListInstances(store.InstanceFilter{TemplateID: templateID, Hash: hash})
		return nil
	}); err != nil {
		return contractapi.GenerateResult{}, err
	}
	if !force {
		for _, inst := range history {
			if inst.Active {
				e.log.Debug("returning existing contract", "template_id", templateID, "hash", hash, "version", inst.Version)
				return contractapi.GenerateResult{Contract: inst, File: inst.File}, nil
			}
		}
	}
	version := 1
	if len(history) > 0 {
		version = history[0].Version + 1
	}

	data, err := e.resolver.Resolve(ctx, t, values)
	if err != nil {
		return contractapi.GenerateResult{}, fmt.Errorf("resolve data: %w", err)
	}
	inst := contractapi.Instance{
		ID:          e.newID(),
		TemplateID:  templateID,
		Parameters:  values,
		Hash:        hash,
		Version:     version,
		GeneratedAt: e.now(),
		Active:      true,
		Identifiers: identifiers(t.Parameters(), values),
	}
	inst.File = contractapi.File{
		Name:    contractFilename(t.Title, version),
		Locator: blob.ContractKey(templateID, hash, version),
	}
	payload, err := renderManifest(t, inst, data)
	if err != nil {
		return contractapi.GenerateResult{}, fmt.Errorf("render contract: %w", err)
	}
	if _, err := e.blobs.Put(ctx, inst.File.Locator, bytes.NewReader(payload), blob.PutOptions{
		ContentType: manifestContentType,
		Metadata:    map[string]string{"template": templateID, "hash": hash},
	}); err != nil {
		return contractapi.GenerateResult{}, fmt.Errorf("store contract: %w", err)
	}
	err = e.store.RunInTransaction(ctx, func(tx store.Tx) error {
		for _, prev := range tx.ListInstances(store.InstanceFilter{TemplateID: templateID, Hash: hash, ActiveOnly: true}) {
			prev.Active = false
			tx.PutInstance(prev)
		}
		tx.PutInstance(inst)
		return nil
	})
	if err != nil {
		if _, derr := e.blobs.Delete(ctx, inst.File.Locator); derr != nil {
			e.log.Warn("orphaned contract file", "key", inst.File.Locator, "error", derr)
		}
		return contractapi.GenerateResult{}, err
	}
	e.log.Info("contract generated", "template_id", templateID, "hash", hash, "version", version, "forced", force)
	return contractapi.GenerateResult{Contract: inst, File: inst.File}, nil
}

// FetchGenerationHistory implements backend.Service. Entries are ordered
// newest version first.
func (e *Engine) FetchGenerationHistory(ctx context.Context, templateID string, params map[string]string) (out []contractapi.Instance, err error) {
	defer metrics.Since(ctx, e.metrics, "fetch_generation_history", time.Now(), &err)
	t, err := e.template(ctx, "fetch_generation_history", templateID)
	if err != nil {
		return nil, err
	}
	hash := ContentHash(templateID, scopedValues(t, params))
	err = e.store.View(ctx, func(v store.View) error {
		out = v.ListInstances(store.InstanceFilter{TemplateID: templateID, Hash: hash})
		return nil
	})
	return out, err
}

// ListActiveContracts implements backend.Service.
func (e *Engine) ListActiveContracts(ctx context.Context, templateID string) (out []contractapi.Instance, err error) {
	defer metrics.Since(ctx, e.metrics, "list_active_contracts", time.Now(), &err)
	err = e.store.View(ctx, func(v store.View) error {
		out = v.ListInstances(store.InstanceFilter{TemplateID: templateID, ActiveOnly: true})
		return nil
	})
	return out, err
}

// DownloadTemplateAsset implements backend.Service.
func (e *Engine) DownloadTemplateAsset(ctx context.Context, templateID string) (d backend.Download, err error) {
	defer metrics.Since(ctx, e.metrics, "download_template_asset", time.Now(), &err)
	t, err := e.template(ctx, "download_template_asset", templateID)
	if err != nil {
		return backend.Download{}, err
	}
	if t.AssetPath == "" {
		return backend.Download{}, backend.NotFound("download_template_asset", "template file not found")
	}
	info, data, err := blob.ReadAll(ctx, e.blobs, t.AssetPath)
	if err != nil {
		if errors.Is(err, blob.ErrNotFound) {
			return backend.Download{}, backend.NotFound("download_template_asset", "template file not found")
		}
		return backend.Download{}, err
	}
	name := info.Metadata["filename"]
	if name == "" {
		name = path.Base(t.AssetPath)
	}
	return backend.Download{Name: name, ContentType: docxMIME, Data: data}, nil
}

// DownloadGeneratedContract implements backend.Service. Version 0 selects
// the active version, falling back to the newest.
func (e *Engine) DownloadGeneratedContract(ctx context.Context, templateID, hash string, version int) (d backend.Download, err error) {
	defer metrics.Since(ctx, e.metrics, "download_generated_contract", time.Now(), &err)
	var history []contractapi.Instance
	if err := e.store.View(ctx, func(v store.View) error {
		history = v.ListInstances(store.InstanceFilter{TemplateID: templateID, Hash: hash})
		return nil
	}); err != nil {
		return backend.Download{}, err
	}
	inst, ok := pickVersion(history, version)
	if !ok {
		return backend.Download{}, backend.NotFound("download_generated_contract", "contract file not found")
	}
	_, data, err := blob.ReadAll(ctx, e.blobs, inst.File.Locator)
	if err != nil {
		if errors.Is(err, blob.ErrNotFound) {
			return backend.Download{}, backend.NotFound("download_generated_contract", "contract file not found")
		}
		return backend.Download{}, err
	}
	return backend.Download{Name: inst.File.Name, ContentType: manifestContentType, Data: data}, nil
}

func pickVersion(history []contractapi.Instance, version int) (contractapi.Instance, bool) {
	if len(history) == 0 {
		return contractapi.Instance{}, false
	}
	for _, inst := range history {
		if (version == 0 && inst.Active) || (version != 0 && inst.Version == version) {
			return inst, true
		}
	}
	if version == 0 {
		return history[0], true
	}
	return contractapi.Instance{}, false
}

// requireValues rejects requests missing a value for any template
// parameter.
func requireValues(op string, t contractapi.Template, params map[string]string) error {
	if errs := contractapi.ValidateParameterValues(t.Parameters(), params); len(errs) > 0 {
		return backend.Invalid(op, errs[0].Message)
	}
	return nil
}

// scopedValues keeps the template's parameters, trimmed, so unrelated or
// padded inputs do not change the content hash.
func scopedValues(t contractapi.Template, params map[string]string) map[string]string {
	out := make(map[string]string, len(params))
	for _, p := range t.Parameters() {
		out[p] = strings.TrimSpace(params[p])
	}
	return out
}
