// Package store declares the persistence contract for templates and
// generated contract instances. Implementations keep the working set in
// memory and snapshot it to durable storage after every committed
// transaction.
package store

import (
	"context"
	"encoding/json"
	"fmt"

	"contractgen/pkg/contractapi"
)

// Driver identifies a concrete persistent storage implementation.
type Driver string

const (
	DriverMemory   Driver = "memory"   // in-memory only (tests / ephemeral)
	DriverSQLite   Driver = "sqlite"   // embedded sqlite file
	DriverPostgres Driver = "postgres" // PostgreSQL server
)

// InstanceFilter narrows ListInstances. Zero fields match everything.
type InstanceFilter struct {
	TemplateID string
	Hash       string
	ActiveOnly bool
}

// Matches reports whether inst passes the filter.
func (f InstanceFilter) Matches(inst contractapi.Instance) bool {
	if f.TemplateID != "" && inst.TemplateID != f.TemplateID {
		return false
	}
	if f.Hash != "" && inst.Hash != f.Hash {
		return false
	}
	return !f.ActiveOnly || inst.Active
}

// View is a read-only snapshot.
type View interface {
	FindTemplate(id string) (contractapi.Template, bool)
	// ListTemplates returns templates ordered by creation time then id.
	ListTemplates() []contractapi.Template
	// ListInstances returns matching instances, newest version first.
	ListInstances(filter InstanceFilter) []contractapi.Instance
}

// Tx mutates a private copy of the state that is committed when the
// transaction function returns nil.
type Tx interface {
	View
	PutTemplate(t contractapi.Template)
	DeleteTemplate(id string) bool
	PutInstance(inst contractapi.Instance)
}

// Store is a transactional template and instance store.
type Store interface {
	RunInTransaction(ctx context.Context, fn func(Tx) error) error
	View(ctx context.Context, fn func(View) error) error
	Driver() Driver
	Close() error
}

// Snapshot is the full persisted state.
type Snapshot struct {
	Templates map[string]contractapi.Template
	Instances map[string]contractapi.Instance
}

// Clone deep-copies the snapshot.
func (s Snapshot) Clone() Snapshot {
	out := Snapshot{
		Templates: make(map[string]contractapi.Template, len(s.Templates)),
		Instances: make(map[string]contractapi.Instance, len(s.Instances)),
	}
	for id, t := range s.Templates {
		out.Templates[id] = t.Clone()
	}
	for id, inst := range s.Instances {
		out.Instances[id] = inst.Clone()
	}
	return out
}

// Buckets lists the snapshot sections persisted as separate rows.
var Buckets = []string{"templates", "instances"}

// EncodeBucket serializes one snapshot section.
func EncodeBucket(s Snapshot, bucket string) ([]byte, error) {
	switch bucket {
	case "templates":
		return json.Marshal(s.Templates)
	case "instances":
		return json.Marshal(s.Instances)
	}
	return nil, fmt.Errorf("unknown bucket %q", bucket)
}

// DecodeBucket restores one snapshot section. Unknown buckets are ignored so
// older binaries can read newer databases.
func DecodeBucket(s *Snapshot, bucket string, payload []byte) error {
	if len(payload) == 0 {
		return nil
	}
	var err error
	switch bucket {
	case "templates":
		err = json.Unmarshal(payload, &s.Templates)
	case "instances":
		err = json.Unmarshal(payload, &s.Instances)
	default:
		return nil
	}
	if err != nil {
		return fmt.Errorf("decode %s: %w", bucket, err)
	}
	return nil
}
