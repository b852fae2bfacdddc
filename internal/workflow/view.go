package workflow

import (
	"slices"

	"contractgen/pkg/contractapi"
)

// Parameter is a parameter with its display label and current value.
type Parameter struct {
	Name  string
	Label string
	Value string
}

// View is a point-in-time copy of the session for rendering.
type View struct {
	State           State
	TemplateID      string
	TemplateTitle   string
	Parameters      []Parameter
	Errors          []contractapi.FieldError
	ForceRegenerate bool
	Preview         *contractapi.ResolvedData
	Result          *contractapi.GenerateResult
	History         []contractapi.Instance
	LastError       string
	Busy            bool
}

// Snapshot returns a copy of the session state.
func (s *Session) Snapshot() View {
	s.mu.Lock()
	defer s.mu.Unlock()
	v := View{
		State:           s.state,
		TemplateID:      s.template.ID,
		TemplateTitle:   s.template.Title,
		Errors:          slices.Clone(s.fieldErrs),
		ForceRegenerate: s.force,
		History:         cloneInstances(s.history),
		LastError:       s.lastErr,
		Busy:            s.busy,
	}
	for _, p := range s.params {
		v.Parameters = append(v.Parameters, Parameter{Name: p, Label: contractapi.ParameterLabel(p), Value: s.values[p]})
	}
	if s.preview != nil {
		p := s.preview.Clone()
		v.Preview = &p
	}
	if s.result != nil {
		r := *s.result
		r.Contract = r.Contract.Clone()
		v.Result = &r
	}
	return v
}

// LastError returns the message of the most recent failed request, or "".
func (s *Session) LastError() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastErr
}
