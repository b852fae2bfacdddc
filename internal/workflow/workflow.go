// Package workflow drives one contract generation session: collecting
// parameter values, previewing resolved data, generating the document and
// browsing earlier generations.
package workflow

import (
	"context"
	"errors"
	"slices"
	"strings"
	"sync"
	"time"

	"contractgen/internal/backend"
	"contractgen/internal/metrics"
	"contractgen/internal/platform/logger"
	"contractgen/pkg/contractapi"
)

// State is a step of the generation session.
type State string

const (
	StateCollectingParameters State = "collecting_parameters"
	StatePreviewingData       State = "previewing_data"
	StateContractGenerated    State = "contract_generated"
	StateViewingHistory       State = "viewing_history"
)

var (
	// ErrBusy is returned while another request of the session is in flight.
	ErrBusy = errors.New("workflow: a request is already in flight")
	// ErrStale is returned when a response arrives after the session left the
	// state that issued the request. The response is discarded.
	ErrStale = errors.New("workflow: response discarded after leaving the issuing state")
	// ErrInvalidTransition is returned when an action is not allowed in the
	// current state.
	ErrInvalidTransition = errors.New("workflow: action not allowed in the current state")
	// ErrUnknownParameter is returned when setting a name the template does
	// not declare.
	ErrUnknownParameter = errors.New("workflow: unknown parameter")
	// ErrNoValues is returned when history is requested with every value blank.
	ErrNoValues = errors.New("workflow: fill at least one parameter to view the history")
)

// Backend is the part of the backend the session drives.
type Backend interface {
	GetTemplate(ctx context.Context, id string) (contractapi.Template, error)
	FetchResolvedData(ctx context.Context, templateID string, params map[string]string) (contractapi.ResolvedData, error)
	GenerateContract(ctx context.Context, templateID string, params map[string]string, force bool) (contractapi.GenerateResult, error)
	FetchGenerationHistory(ctx context.Context, templateID string, params map[string]string) ([]contractapi.Instance, error)
	DownloadTemplateAsset(ctx context.Context, templateID string) (backend.Download, error)
	DownloadGeneratedContract(ctx context.Context, templateID, hash string, version int) (backend.Download, error)
}

// Option customizes a Session.
type Option func(*Session)

// WithLogger sets the session logger.
func WithLogger(l *logger.Logger) Option {
	return func(s *Session) { s.log = logger.OrNop(l) }
}

// WithMetrics sets the recorder for backend calls.
func WithMetrics(r metrics.Recorder) Option {
	return func(s *Session) {
		if r != nil {
			s.metrics = r
		}
	}
}

// Session is a single generation workflow. All methods are safe for
// concurrent use; at most one backend request is in flight at a time.
type Session struct {
	backend Backend
	log     *logger.Logger
	metrics metrics.Recorder

	mu        sync.Mutex
	template  contractapi.Template
	params    []string
	values    map[string]string
	state     State
	epoch     uint64
	busy      bool
	force     bool
	preview   *contractapi.ResolvedData
	result    *contractapi.GenerateResult
	history   []contractapi.Instance
	fieldErrs []contractapi.FieldError
	lastErr   string
}

// Open loads the template and starts a session collecting its parameters.
func Open(ctx context.Context, b Backend, templateID string, opts ...Option) (*Session, error) {
	tpl, err := b.GetTemplate(ctx, templateID)
	if err != nil {
		return nil, err
	}
	if tpl.ID == "" {
		tpl.ID = templateID
	}
	return New(b, tpl, opts...), nil
}

// New starts a session for an already loaded template. Parameters are
// computed once and start blank.
func New(b Backend, tpl contractapi.Template, opts ...Option) *Session {
	s := &Session{
		backend:  b,
		log:      logger.Nop(),
		metrics:  metrics.Noop{},
		template: tpl.Clone(),
		params:   tpl.Parameters(),
		state:    StateCollectingParameters,
	}
	s.values = make(map[string]string, len(s.params))
	for _, p := range s.params {
		s.values[p] = ""
	}
	for _, opt := range opts {
		opt(s)
	}
	s.log = s.log.With("template_id", tpl.ID)
	return s
}

// Template returns the template the session was opened for.
func (s *Session) Template() contractapi.Template {
	return s.template.Clone()
}

// State returns the current state.
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Parameters returns the parameter names in order.
func (s *Session) Parameters() []string { return slices.Clone(s.params) }

// Values returns a copy of the current parameter values.
func (s *Session) Values() map[string]string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return contractapi.CloneValues(s.values)
}

// SetParameter records a value while collecting parameters and clears that
// parameter's validation error.
func (s *Session) SetParameter(name, value string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.values[name]; !ok {
		return ErrUnknownParameter
	}
	if s.busy {
		return ErrBusy
	}
	if s.state != StateCollectingParameters {
		return ErrInvalidTransition
	}
	s.values[name] = value
	s.fieldErrs = slices.DeleteFunc(s.fieldErrs, func(e contractapi.FieldError) bool { return e.Field == name })
	return nil
}

// SetForceRegenerate toggles forced regeneration while previewing.
func (s *Session) SetForceRegenerate(force bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.busy {
		return ErrBusy
	}
	if s.state != StatePreviewingData {
		return ErrInvalidTransition
	}
	s.force = force
	return nil
}

// CanViewHistory reports whether history may be requested: the session is
// collecting parameters and at least one value is filled, or the template
// has no parameters.
func (s *Session) CanViewHistory() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state == StateCollectingParameters && !s.busy && s.hasValues()
}

func (s *Session) hasValues() bool {
	if len(s.params) == 0 {
		return true
	}
	for _, v := range s.values {
		if strings.TrimSpace(v) != "" {
			return true
		}
	}
	return false
}

// ticket identifies an in-flight request.
type ticket struct {
	epoch  uint64
	values map[string]string
	force  bool
	result *contractapi.GenerateResult
}

// beginLocked claims the in-flight slot. Caller holds s.mu.
func (s *Session) beginLocked(allowed ...State) (ticket, error) {
	if s.busy {
		return ticket{}, ErrBusy
	}
	if len(allowed) > 0 && !slices.Contains(allowed, s.state) {
		return ticket{}, ErrInvalidTransition
	}
	s.busy = true
	s.lastErr = ""
	t := ticket{epoch: s.epoch, values: contractapi.CloneValues(s.values), force: s.force}
	if s.result != nil {
		r := *s.result
		t.result = &r
	}
	return t, nil
}

// finishLocked releases the slot for t. It reports false when the session
// moved on, in which case the response must be dropped. Caller holds s.mu.
func (s *Session) finishLocked(t ticket, op string) bool {
	if s.epoch != t.epoch {
		s.log.Debug("discarding stale response", "operation", op)
		return false
	}
	s.busy = false
	return true
}

// failLocked records err as the session error. Caller holds s.mu.
func (s *Session) failLocked(op string, err error) {
	s.lastErr = err.Error()
	s.log.Warn("request failed", "operation", op, "error", err)
}

func (s *Session) transitionLocked(to State) {
	if s.state != to {
		s.log.Info("state changed", "from", s.state, "to", to)
	}
	s.state = to
	s.epoch++
}

// Preview validates the parameter values and fetches the resolved data. When
// any value is blank it returns one error per blank parameter and issues no
// request. On success the session moves to StatePreviewingData.
func (s *Session) Preview(ctx context.Context) ([]contractapi.FieldError, error) {
	s.mu.Lock()
	if s.busy {
		s.mu.Unlock()
		return nil, ErrBusy
	}
	if s.state != StateCollectingParameters {
		s.mu.Unlock()
		return nil, ErrInvalidTransition
	}
	s.fieldErrs = contractapi.ValidateParameterValues(s.params, s.values)
	if len(s.fieldErrs) > 0 {
		errs := slices.Clone(s.fieldErrs)
		s.mu.Unlock()
		return errs, nil
	}
	t, err := s.beginLocked(StateCollectingParameters)
	s.mu.Unlock()
	if err != nil {
		return nil, err
	}

	start := time.Now()
	data, err := s.backend.FetchResolvedData(ctx, s.template.ID, t.values)
	metrics.Since(ctx, s.metrics, "fetch_resolved_data", start, &err)

	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.finishLocked(t, "fetch_resolved_data") {
		return nil, ErrStale
	}
	if err != nil {
		s.failLocked("fetch_resolved_data", err)
		return nil, err
	}
	s.preview = &data
	s.transitionLocked(StatePreviewingData)
	return nil, nil
}

// Generate requests the contract for the previewed values, honouring the
// force flag. On success the session moves to StateContractGenerated.
func (s *Session) Generate(ctx context.Context) (contractapi.GenerateResult, error) {
	s.mu.Lock()
	t, err := s.beginLocked(StatePreviewingData)
	s.mu.Unlock()
	if err != nil {
		return contractapi.GenerateResult{}, err
	}

	start := time.Now()
	res, err := s.backend.GenerateContract(ctx, s.template.ID, t.values, t.force)
	metrics.Since(ctx, s.metrics, "generate_contract", start, &err)

	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.finishLocked(t, "generate_contract") {
		return contractapi.GenerateResult{}, ErrStale
	}
	if err != nil {
		s.failLocked("generate_contract", err)
		return contractapi.GenerateResult{}, err
	}
	s.result = &res
	s.log.Info("contract generated", "hash", res.Contract.Hash, "version", res.Contract.Version, "forced", t.force)
	s.transitionLocked(StateContractGenerated)
	return res, nil
}

// ShowHistory fetches earlier generations for the current values and moves
// to StateViewingHistory.
func (s *Session) ShowHistory(ctx context.Context) ([]contractapi.Instance, error) {
	s.mu.Lock()
	if s.state == StateCollectingParameters && !s.busy && !s.hasValues() {
		s.mu.Unlock()
		return nil, ErrNoValues
	}
	t, err := s.beginLocked(StateCollectingParameters)
	s.mu.Unlock()
	if err != nil {
		return nil, err
	}

	start := time.Now()
	entries, err := s.backend.FetchGenerationHistory(ctx, s.template.ID, t.values)
	metrics.Since(ctx, s.metrics, "fetch_generation_history", start, &err)

	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.finishLocked(t, "fetch_generation_history") {
		return nil, ErrStale
	}
	if err != nil {
		s.failLocked("fetch_generation_history", err)
		return nil, err
	}
	s.history = cloneInstances(entries)
	s.transitionLocked(StateViewingHistory)
	return cloneInstances(entries), nil
}

// CloseHistory returns from the history view to parameter collection.
func (s *Session) CloseHistory() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state != StateViewingHistory {
		return ErrInvalidTransition
	}
	s.history = nil
	s.busy = false
	s.transitionLocked(StateCollectingParameters)
	return nil
}

// Back returns to parameter collection from any later state, discarding the
// preview, the generated result and the history while keeping the parameter
// values. A request still in flight is abandoned and its response dropped.
func (s *Session) Back() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state == StateCollectingParameters && !s.busy {
		return
	}
	s.preview = nil
	s.result = nil
	s.history = nil
	s.force = false
	s.busy = false
	s.transitionLocked(StateCollectingParameters)
}

// DownloadContract fetches the document of the contract generated in this
// session. It never triggers a generation.
func (s *Session) DownloadContract(ctx context.Context) (backend.Download, error) {
	s.mu.Lock()
	t, err := s.beginLocked(StateContractGenerated)
	s.mu.Unlock()
	if err != nil {
		return backend.Download{}, err
	}
	c := t.result.Contract
	return s.download(ctx, t, "download_contract", func() (backend.Download, error) {
		return s.backend.DownloadGeneratedContract(ctx, s.template.ID, c.Hash, c.Version)
	})
}

// DownloadHistoryEntry fetches the document of one history entry while the
// history is shown.
func (s *Session) DownloadHistoryEntry(ctx context.Context, entry contractapi.Instance) (backend.Download, error) {
	s.mu.Lock()
	t, err := s.beginLocked(StateViewingHistory)
	s.mu.Unlock()
	if err != nil {
		return backend.Download{}, err
	}
	return s.download(ctx, t, "download_history_entry", func() (backend.Download, error) {
		return s.backend.DownloadGeneratedContract(ctx, s.template.ID, entry.Hash, entry.Version)
	})
}

// DownloadTemplateAsset fetches the template document. It is allowed in any
// state.
func (s *Session) DownloadTemplateAsset(ctx context.Context) (backend.Download, error) {
	s.mu.Lock()
	t, err := s.beginLocked()
	s.mu.Unlock()
	if err != nil {
		return backend.Download{}, err
	}
	return s.download(ctx, t, "download_template_asset", func() (backend.Download, error) {
		return s.backend.DownloadTemplateAsset(ctx, s.template.ID)
	})
}

func (s *Session) download(ctx context.Context, t ticket, op string, fetch func() (backend.Download, error)) (backend.Download, error) {
	start := time.Now()
	d, err := fetch()
	metrics.Since(ctx, s.metrics, op, start, &err)

	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.finishLocked(t, op) {
		return backend.Download{}, ErrStale
	}
	if err != nil {
		s.failLocked(op, err)
		return backend.Download{}, err
	}
	return d, nil
}

func cloneInstances(in []contractapi.Instance) []contractapi.Instance {
	if in == nil {
		return nil
	}
	out := make([]contractapi.Instance, len(in))
	for i, inst := range in {
		out[i] = inst.Clone()
	}
	return out
}
