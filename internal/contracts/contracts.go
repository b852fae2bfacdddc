// Package contracts lists active contract instances decorated with the
// title and category of the template that produced them.
package contracts

import (
	"context"
	"errors"
	"strings"
	"sync"

	"golang.org/x/sync/errgroup"

	"contractgen/internal/backend"
	"contractgen/internal/platform/logger"
	"contractgen/pkg/contractapi"
)

// Fallbacks shown when a template can no longer be resolved.
const (
	MissingTemplateTitle = "template not found"
	UnknownCategory      = "unknown"
)

const defaultConcurrency = 4

// Backend is the subset of backend.Service the lister needs.
type Backend interface {
	ListActiveContracts(ctx context.Context, templateID string) ([]contractapi.Instance, error)
	GetTemplate(ctx context.Context, id string) (contractapi.Template, error)
}

// Entry is an active instance with its template summary.
type Entry struct {
	Instance      contractapi.Instance
	TemplateTitle string
	Category      string
}

type summary struct {
	title    string
	category string
}

// Lister resolves template summaries concurrently and remembers them per
// template id for the lifetime of the lister.
type Lister struct {
	backend     Backend
	log         *logger.Logger
	concurrency int

	mu    sync.Mutex
	cache map[string]summary
}

// Option customizes a Lister.
type Option func(*Lister)

// WithConcurrency bounds parallel template lookups.
func WithConcurrency(n int) Option {
	return func(l *Lister) {
		if n > 0 {
			l.concurrency = n
		}
	}
}

// WithLogger sets the lister logger.
func WithLogger(log *logger.Logger) Option {
	return func(l *Lister) { l.log = logger.OrNop(log) }
}

// NewLister constructs a lister over b.
func NewLister(b Backend, opts ...Option) *Lister {
	l := &Lister{
		backend:     b,
		log:         logger.Nop(),
		concurrency: defaultConcurrency,
		cache:       make(map[string]summary),
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// List returns active instances, optionally restricted to one template.
// Templates that cannot be fetched are reported with fallback labels rather
// than failing the listing.
func (l *Lister) List(ctx context.Context, templateID string) ([]Entry, error) {
	instances, err := l.backend.ListActiveContracts(ctx, templateID)
	if err != nil {
		return nil, err
	}
	var pending []string
	seen := make(map[string]bool)
	l.mu.Lock()
	for _, inst := range instances {
		if _, ok := l.cache[inst.TemplateID]; ok || seen[inst.TemplateID] {
			continue
		}
		seen[inst.TemplateID] = true
		pending = append(pending, inst.TemplateID)
	}
	l.mu.Unlock()

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(l.concurrency)
	for _, id := range pending {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			l.resolve(gctx, id)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]Entry, 0, len(instances))
	for _, inst := range instances {
		s, ok := l.cache[inst.TemplateID]
		if !ok {
			s = summary{title: MissingTemplateTitle, category: UnknownCategory}
		}
		out = append(out, Entry{Instance: inst, TemplateTitle: s.title, Category: s.category})
	}
	return out, nil
}

// resolve caches the summary of id. Missing templates are cached with the
// fallback labels; transient failures are not cached.
func (l *Lister) resolve(ctx context.Context, id string) {
	t, err := l.backend.GetTemplate(ctx, id)
	var s summary
	switch {
	case err == nil:
		s = summary{title: t.Title, category: t.Category.Label()}
	case errors.Is(err, backend.ErrNotFound):
		s = summary{title: MissingTemplateTitle, category: UnknownCategory}
	default:
		l.log.Warn("template lookup failed", "template_id", id, "error", err)
		return
	}
	l.mu.Lock()
	l.cache[id] = s
	l.mu.Unlock()
}

// Search keeps entries whose primary or secondary identifier or template
// title contains query, ignoring case. A blank query keeps everything.
func Search(entries []Entry, query string) []Entry {
	q := strings.ToLower(strings.TrimSpace(query))
	if q == "" {
		return entries
	}
	var out []Entry
	for _, e := range entries {
		ids := e.Instance.Identifiers
		if strings.Contains(strings.ToLower(ids.Primary), q) ||
			strings.Contains(strings.ToLower(ids.Secondary), q) ||
			strings.Contains(strings.ToLower(e.TemplateTitle), q) {
			out = append(out, e)
		}
	}
	return out
}
