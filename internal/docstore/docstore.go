// Package docstore is a hierarchical document store with optimistic
// transactions. Documents are flat JSON objects addressed by slash separated
// paths; a transaction body must issue all of its reads before its first
// write and may be executed more than once.
package docstore

import (
	"context"
	"errors"
	"maps"
)

var (
	ErrNotFound      = errors.New("docstore: document not found")
	ErrAlreadyExists = errors.New("docstore: document already exists")
	// ErrConflict reports that a concurrent transaction committed first. The
	// retry loop re-runs the body when it sees it.
	ErrConflict = errors.New("docstore: transaction conflict")
	// ErrReadAfterWrite is returned when a transaction reads after staging a
	// write.
	ErrReadAfterWrite = errors.New("docstore: read after write in transaction")
)

// Data is the body of a document.
type Data map[string]any

// Snapshot is the result of a read. Data is nil when the document does not
// exist.
type Snapshot struct {
	Path   string
	Exists bool
	Data   Data
}

// String returns a string field, or "" when it is absent or not a string.
func (s Snapshot) String(field string) string {
	if s.Data == nil {
		return ""
	}
	v, _ := s.Data[field].(string)
	return v
}

func (s Snapshot) Bool(field string) bool {
	if s.Data == nil {
		return false
	}
	v, _ := s.Data[field].(bool)
	return v
}

// Tx is a read-modify-write transaction.
type Tx interface {
	Get(ctx context.Context, path string) (Snapshot, error)
	// Create fails with ErrAlreadyExists if the document exists at commit.
	Create(ctx context.Context, path string, data Data) error
	Set(ctx context.Context, path string, data Data) error
	// Update merges top level fields and fails with ErrNotFound if the
	// document does not exist.
	Update(ctx context.Context, path string, data Data) error
	Delete(ctx context.Context, path string) error
}

type TxFunc func(ctx context.Context, tx Tx) error

// Backend runs one attempt of a transaction.
type Backend interface {
	Attempt(ctx context.Context, fn TxFunc) error
	Get(ctx context.Context, path string) (Snapshot, error)
	// DeleteTree removes root and every document below it.
	DeleteTree(ctx context.Context, root string) error
	Ping(ctx context.Context) error
	Close() error
}

// Store is the contract used by the engine.
type Store interface {
	RunTransaction(ctx context.Context, fn TxFunc) error
	Get(ctx context.Context, path string) (Snapshot, error)
	DeleteTree(ctx context.Context, root string) error
	Ping(ctx context.Context) error
	Close() error
}

func cloneData(d Data) Data {
	if d == nil {
		return nil
	}
	return maps.Clone(d)
}
