package workflow

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/google/go-cmp/cmp"

	"contractgen/internal/backend"
	"contractgen/pkg/contractapi"
)

type fakeBackend struct {
	mu         sync.Mutex
	tpl        contractapi.Template
	calls      map[string]int
	lastParams map[string]string
	lastForce  bool
	lastHash   string
	lastVer    int
	dataErr    error
	genErr     error
	started    chan string
	release    chan struct{}
}

func newFakeBackend(mainQuery string) *fakeBackend {
	return &fakeBackend{
		tpl:   contractapi.Template{ID: "tpl-1", Title: "Lease", MainQuery: mainQuery},
		calls: map[string]int{},
	}
}

func (f *fakeBackend) record(op string, params map[string]string) {
	f.mu.Lock()
	f.calls[op]++
	if params != nil {
		f.lastParams = contractapi.CloneValues(params)
	}
	started, release := f.started, f.release
	f.mu.Unlock()
	if started != nil {
		started <- op
	}
	if release != nil {
		<-release
	}
}

func (f *fakeBackend) count(op string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[op]
}

func (f *fakeBackend) GetTemplate(_ context.Context, id string) (contractapi.Template, error) {
	if id != f.tpl.ID {
		return contractapi.Template{}, backend.NotFound("get_template", "template not found")
	}
	return f.tpl, nil
}

func (f *fakeBackend) FetchResolvedData(_ context.Context, _ string, params map[string]string) (contractapi.ResolvedData, error) {
	f.record("data", params)
	if f.dataErr != nil {
		return contractapi.ResolvedData{}, f.dataErr
	}
	return contractapi.ResolvedData{Principal: []contractapi.Record{{"id": params["id"]}}}, nil
}

func (f *fakeBackend) GenerateContract(_ context.Context, templateID string, params map[string]string, force bool) (contractapi.GenerateResult, error) {
	f.record("generate", params)
	f.mu.Lock()
	f.lastForce = force
	f.mu.Unlock()
	if f.genErr != nil {
		return contractapi.GenerateResult{}, f.genErr
	}
	inst := contractapi.Instance{TemplateID: templateID, Hash: "h1", Version: 3, Active: true, File: contractapi.File{Name: "lease-v3.docx"}}
	return contractapi.GenerateResult{Contract: inst, File: inst.File}, nil
}

func (f *fakeBackend) FetchGenerationHistory(_ context.Context, _ string, params map[string]string) ([]contractapi.Instance, error) {
	f.record("history", params)
	return []contractapi.Instance{{Hash: "h1", Version: 2}, {Hash: "h1", Version: 1}}, nil
}

func (f *fakeBackend) DownloadTemplateAsset(_ context.Context, _ string) (backend.Download, error) {
	f.record("asset", nil)
	return backend.Download{Name: "lease.docx"}, nil
}

func (f *fakeBackend) DownloadGeneratedContract(_ context.Context, _ string, hash string, version int) (backend.Download, error) {
	f.record("download", nil)
	f.mu.Lock()
	f.lastHash, f.lastVer = hash, version
	f.mu.Unlock()
	return backend.Download{Name: "lease-v3.docx", Data: []byte("doc")}, nil
}

func TestOpenUnknownTemplate(t *testing.T) {
	_, err := Open(context.Background(), newFakeBackend(""), "missing")
	if !errors.Is(err, backend.ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
}

func TestPreviewBlankParametersMakesNoCall(t *testing.T) {
	fb := newFakeBackend("SELECT * FROM c WHERE id=:id AND owner=:nome_cliente")
	s, err := Open(context.Background(), fb, "tpl-1")
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	if diff := cmp.Diff([]string{"id", "nome_cliente"}, s.Parameters()); diff != "" {
		t.Fatalf("parameters mismatch (-want +got):\n%s", diff)
	}
	if err := s.SetParameter("id", " 42 "); err != nil {
		t.Fatalf("SetParameter: %v", err)
	}
	errs, err := s.Preview(context.Background())
	if err != nil {
		t.Fatalf("Preview: %v", err)
	}
	want := []contractapi.FieldError{{Field: "nome_cliente", Message: "the field nome cliente is required"}}
	if diff := cmp.Diff(want, errs); diff != "" {
		t.Fatalf("errors mismatch (-want +got):\n%s", diff)
	}
	if fb.count("data") != 0 {
		t.Fatalf("backend called with blank parameters")
	}
	if s.State() != StateCollectingParameters {
		t.Fatalf("state changed to %s", s.State())
	}
	if err := s.SetParameter("nome_cliente", "ACME"); err != nil {
		t.Fatalf("SetParameter: %v", err)
	}
	if len(s.Snapshot().Errors) != 0 {
		t.Fatalf("setting a value should clear its error")
	}
	if err := s.SetParameter("unknown", "x"); !errors.Is(err, ErrUnknownParameter) {
		t.Fatalf("expected ErrUnknownParameter, got %v", err)
	}
}

func TestHappyPathAndBackKeepsValues(t *testing.T) {
	fb := newFakeBackend("SELECT * FROM x WHERE id=:id")
	s := New(fb, fb.tpl)
	ctx := context.Background()
	_ = s.SetParameter("id", "42")

	if errs, err := s.Preview(ctx); err != nil || len(errs) != 0 {
		t.Fatalf("Preview: %v %v", errs, err)
	}
	if s.State() != StatePreviewingData {
		t.Fatalf("expected previewing, got %s", s.State())
	}
	if err := s.SetParameter("id", "43"); !errors.Is(err, ErrInvalidTransition) {
		t.Fatalf("values must be frozen while previewing, got %v", err)
	}
	if err := s.SetForceRegenerate(true); err != nil {
		t.Fatalf("SetForceRegenerate: %v", err)
	}
	res, err := s.Generate(ctx)
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	if !fb.lastForce || res.Contract.Version != 3 {
		t.Fatalf("force not forwarded or unexpected result: %v %+v", fb.lastForce, res)
	}
	if s.State() != StateContractGenerated {
		t.Fatalf("expected generated, got %s", s.State())
	}
	if _, err := s.DownloadContract(ctx); err != nil {
		t.Fatalf("DownloadContract: %v", err)
	}
	if fb.lastHash != "h1" || fb.lastVer != 3 {
		t.Fatalf("download targeted %s v%d", fb.lastHash, fb.lastVer)
	}
	if fb.count("generate") != 1 {
		t.Fatalf("download must not regenerate")
	}

	s.Back()
	v := s.Snapshot()
	if v.State != StateCollectingParameters || v.Preview != nil || v.Result != nil || v.ForceRegenerate {
		t.Fatalf("back did not reset session: %+v", v)
	}
	if got := s.Values()["id"]; got != "42" {
		t.Fatalf("expected id to survive back, got %q", got)
	}
}

func TestSnapshotPreviewIsDetached(t *testing.T) {
	fb := newFakeBackend("SELECT * FROM x WHERE id=:id")
	s := New(fb, fb.tpl)
	_ = s.SetParameter("id", "42")
	if _, err := s.Preview(context.Background()); err != nil {
		t.Fatalf("Preview: %v", err)
	}
	v := s.Snapshot()
	v.Preview.Principal[0]["id"] = "changed"
	v.Preview.Principal = append(v.Preview.Principal, contractapi.Record{"id": "extra"})

	again := s.Snapshot()
	if len(again.Preview.Principal) != 1 || again.Preview.Principal[0]["id"] != "42" {
		t.Fatalf("snapshot shares preview storage: %+v", again.Preview.Principal)
	}
}

func TestFailedRequestKeepsStateAndData(t *testing.T) {
	fb := newFakeBackend("WHERE id=:id")
	s := New(fb, fb.tpl)
	ctx := context.Background()
	_ = s.SetParameter("id", "1")
	fb.dataErr = &backend.Error{Op: "data", Status: 500, Message: "query failed: relation missing"}
	if _, err := s.Preview(ctx); err == nil {
		t.Fatalf("expected preview failure")
	}
	if s.State() != StateCollectingParameters || s.LastError() != "query failed: relation missing" {
		t.Fatalf("unexpected state after failure: %s %q", s.State(), s.LastError())
	}

	fb.dataErr = nil
	if _, err := s.Preview(ctx); err != nil {
		t.Fatalf("Preview: %v", err)
	}
	if s.LastError() != "" {
		t.Fatalf("successful retry should clear the error")
	}
	fb.genErr = errors.New("renderer unavailable")
	if _, err := s.Generate(ctx); err == nil {
		t.Fatalf("expected generate failure")
	}
	v := s.Snapshot()
	if v.State != StatePreviewingData || v.Preview == nil || v.Result != nil || v.LastError != "renderer unavailable" {
		t.Fatalf("failure corrupted session: %+v", v)
	}
}

func TestForceToggleOnlyWhilePreviewing(t *testing.T) {
	fb := newFakeBackend("")
	s := New(fb, fb.tpl)
	if err := s.SetForceRegenerate(true); !errors.Is(err, ErrInvalidTransition) {
		t.Fatalf("expected ErrInvalidTransition, got %v", err)
	}
	if _, err := s.Generate(context.Background()); !errors.Is(err, ErrInvalidTransition) {
		t.Fatalf("generate before preview must fail, got %v", err)
	}
	if _, err := s.DownloadContract(context.Background()); !errors.Is(err, ErrInvalidTransition) {
		t.Fatalf("download before generation must fail, got %v", err)
	}
}

func TestSecondRequestWhileInFlightIsBusy(t *testing.T) {
	fb := newFakeBackend("WHERE id=:id")
	fb.started = make(chan string, 1)
	fb.release = make(chan struct{})
	s := New(fb, fb.tpl)
	_ = s.SetParameter("id", "1")

	done := make(chan error, 1)
	go func() {
		_, err := s.Preview(context.Background())
		done <- err
	}()
	<-fb.started
	if _, err := s.Preview(context.Background()); !errors.Is(err, ErrBusy) {
		t.Fatalf("expected ErrBusy, got %v", err)
	}
	if _, err := s.ShowHistory(context.Background()); !errors.Is(err, ErrBusy) {
		t.Fatalf("expected ErrBusy for history, got %v", err)
	}
	if err := s.SetParameter("id", "2"); !errors.Is(err, ErrBusy) {
		t.Fatalf("expected ErrBusy for edits, got %v", err)
	}
	if !s.Snapshot().Busy {
		t.Fatalf("snapshot should report busy")
	}
	close(fb.release)
	if err := <-done; err != nil {
		t.Fatalf("Preview: %v", err)
	}
	if fb.count("data") != 1 {
		t.Fatalf("expected exactly one backend call, got %d", fb.count("data"))
	}
}

func TestStaleGenerateResponseIsDiscarded(t *testing.T) {
	fb := newFakeBackend("WHERE id=:id")
	s := New(fb, fb.tpl)
	ctx := context.Background()
	_ = s.SetParameter("id", "42")
	if _, err := s.Preview(ctx); err != nil {
		t.Fatalf("Preview: %v", err)
	}

	fb.mu.Lock()
	fb.started = make(chan string, 1)
	fb.release = make(chan struct{})
	fb.mu.Unlock()

	done := make(chan error, 1)
	go func() {
		_, err := s.Generate(ctx)
		done <- err
	}()
	<-fb.started
	s.Back()
	close(fb.release)
	if err := <-done; !errors.Is(err, ErrStale) {
		t.Fatalf("expected ErrStale, got %v", err)
	}
	v := s.Snapshot()
	if v.State != StateCollectingParameters || v.Result != nil || v.Busy {
		t.Fatalf("stale response leaked into session: %+v", v)
	}
	if v.Parameters[0].Value != "42" {
		t.Fatalf("values lost: %+v", v.Parameters)
	}
}

func TestHistoryBranch(t *testing.T) {
	fb := newFakeBackend("WHERE a=:a AND b=:b")
	s := New(fb, fb.tpl)
	ctx := context.Background()
	if s.CanViewHistory() {
		t.Fatalf("history must be disabled with all values blank")
	}
	if _, err := s.ShowHistory(ctx); !errors.Is(err, ErrNoValues) {
		t.Fatalf("expected ErrNoValues, got %v", err)
	}
	_ = s.SetParameter("a", "x")
	entries, err := s.ShowHistory(ctx)
	if err != nil {
		t.Fatalf("ShowHistory: %v", err)
	}
	if len(entries) != 2 || s.State() != StateViewingHistory {
		t.Fatalf("unexpected history %v in %s", entries, s.State())
	}
	if diff := cmp.Diff(map[string]string{"a": "x", "b": ""}, fb.lastParams); diff != "" {
		t.Fatalf("history params mismatch (-want +got):\n%s", diff)
	}
	if _, err := s.DownloadHistoryEntry(ctx, entries[1]); err != nil {
		t.Fatalf("DownloadHistoryEntry: %v", err)
	}
	if fb.lastVer != 1 {
		t.Fatalf("history download should target its own version, got %d", fb.lastVer)
	}
	if err := s.CloseHistory(); err != nil {
		t.Fatalf("CloseHistory: %v", err)
	}
	if s.State() != StateCollectingParameters || s.Values()["a"] != "x" || s.Snapshot().History != nil {
		t.Fatalf("close history did not restore the form")
	}
	if err := s.CloseHistory(); !errors.Is(err, ErrInvalidTransition) {
		t.Fatalf("expected ErrInvalidTransition, got %v", err)
	}
}

func TestTemplateWithoutParametersCanViewHistory(t *testing.T) {
	fb := newFakeBackend("SELECT 1")
	s := New(fb, fb.tpl)
	if !s.CanViewHistory() {
		t.Fatalf("templates without parameters should allow history")
	}
	if _, err := s.DownloadTemplateAsset(context.Background()); err != nil {
		t.Fatalf("DownloadTemplateAsset: %v", err)
	}
}
