package docstore

import (
	"context"
	"sort"
	"sync"
)

type memEntry struct {
	data    Data
	version int64
}

// Memory is an in-process Backend. Commits are validated against the version
// of every document the transaction read.
type Memory struct {
	mu    sync.Mutex
	docs  map[string]memEntry
	clock int64
	// beforeCommit runs between the body and validation. Tests use it to
	// inject concurrent writes.
	beforeCommit func()
}

func NewMemory() *Memory {
	return &Memory{docs: make(map[string]memEntry)}
}

func (m *Memory) Attempt(ctx context.Context, fn TxFunc) error {
	tx := &memTx{store: m, reads: make(map[string]int64)}
	if err := fn(ctx, tx); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	if hook := m.beforeCommit; hook != nil {
		hook()
	}
	return m.commit(tx)
}

func (m *Memory) commit(tx *memTx) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	for path, version := range tx.reads {
		if m.docs[path].version != version {
			return ErrConflict
		}
	}

	// Validate against a scratch view so a failing op leaves nothing applied.
	view := make(map[string]bool)
	exists := func(path string) bool {
		if v, ok := view[path]; ok {
			return v
		}
		_, ok := m.docs[path]
		return ok
	}
	for _, op := range tx.ops {
		switch op.kind {
		case opCreate:
			if exists(op.path) {
				return ErrAlreadyExists
			}
			view[op.path] = true
		case opSet:
			view[op.path] = true
		case opUpdate:
			if !exists(op.path) {
				return ErrNotFound
			}
		case opDelete:
			view[op.path] = false
		}
	}

	m.clock++
	for _, op := range tx.ops {
		switch op.kind {
		case opCreate, opSet:
			m.docs[op.path] = memEntry{data: cloneData(op.data), version: m.clock}
		case opUpdate:
			merged := cloneData(m.docs[op.path].data)
			for k, v := range op.data {
				merged[k] = v
			}
			m.docs[op.path] = memEntry{data: merged, version: m.clock}
		case opDelete:
			delete(m.docs, op.path)
		}
	}
	return nil
}

func (m *Memory) Get(ctx context.Context, path string) (Snapshot, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	entry, ok := m.docs[path]
	if !ok {
		return Snapshot{Path: path}, nil
	}
	return Snapshot{Path: path, Exists: true, Data: cloneData(entry.data)}, nil
}

func (m *Memory) DeleteTree(ctx context.Context, root string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for path := range m.docs {
		if InTree(root, path) {
			delete(m.docs, path)
		}
	}
	m.clock++
	return nil
}

// Paths lists every stored path under root in sorted order.
func (m *Memory) Paths(root string) []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []string
	for path := range m.docs {
		if root == "" || InTree(root, path) {
			out = append(out, path)
		}
	}
	sort.Strings(out)
	return out
}

func (m *Memory) Ping(ctx context.Context) error { return ctx.Err() }

func (m *Memory) Close() error { return nil }

type opKind int

const (
	opCreate opKind = iota
	opSet
	opUpdate
	opDelete
)

type memOp struct {
	kind opKind
	path string
	data Data
}

type memTx struct {
	store *Memory
	reads map[string]int64
	ops   []memOp
}

func (t *memTx) Get(ctx context.Context, path string) (Snapshot, error) {
	if len(t.ops) > 0 {
		return Snapshot{}, ErrReadAfterWrite
	}
	t.store.mu.Lock()
	entry, ok := t.store.docs[path]
	t.store.mu.Unlock()
	t.reads[path] = entry.version
	if !ok {
		return Snapshot{Path: path}, nil
	}
	return Snapshot{Path: path, Exists: true, Data: cloneData(entry.data)}, nil
}

func (t *memTx) Create(ctx context.Context, path string, data Data) error {
	t.ops = append(t.ops, memOp{kind: opCreate, path: path, data: data})
	return nil
}

func (t *memTx) Set(ctx context.Context, path string, data Data) error {
	t.ops = append(t.ops, memOp{kind: opSet, path: path, data: data})
	return nil
}

func (t *memTx) Update(ctx context.Context, path string, data Data) error {
	t.ops = append(t.ops, memOp{kind: opUpdate, path: path, data: data})
	return nil
}

func (t *memTx) Delete(ctx context.Context, path string) error {
	t.ops = append(t.ops, memOp{kind: opDelete, path: path})
	return nil
}
