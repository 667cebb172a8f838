// Package writebuf stages the writes of one transaction attempt and applies
// them together once every payload has been produced.
package writebuf

import (
	"context"
	"fmt"

	"golang.org/x/sync/errgroup"

	"rememberme/api/internal/docstore"
)

// Payload produces a document body at commit time. Payloads are resolved
// concurrently.
type Payload func(ctx context.Context) (docstore.Data, error)

type entry struct {
	path    string
	payload Payload
}

// Buffer is not safe for concurrent staging. Create a new Buffer for every
// transaction attempt.
type Buffer struct {
	creates []entry
	sets    []entry
	updates []entry
	deletes []string
}

func New() *Buffer {
	return &Buffer{}
}

// Value wraps an already known body.
func Value(data docstore.Data) Payload {
	return func(context.Context) (docstore.Data, error) { return data, nil }
}

func (b *Buffer) Create(path string, payload Payload) {
	b.creates = append(b.creates, entry{path: path, payload: payload})
}

func (b *Buffer) Set(path string, payload Payload) {
	b.sets = append(b.sets, entry{path: path, payload: payload})
}

func (b *Buffer) Update(path string, payload Payload) {
	b.updates = append(b.updates, entry{path: path, payload: payload})
}

func (b *Buffer) Delete(path string) {
	b.deletes = append(b.deletes, path)
}

// Len returns the number of staged operations.
func (b *Buffer) Len() int {
	return len(b.creates) + len(b.sets) + len(b.updates) + len(b.deletes)
}

// Execute resolves every payload and applies creates, then sets, then updates,
// then deletes. If any payload fails nothing is written.
func (b *Buffer) Execute(ctx context.Context, tx docstore.Tx) error {
	groups := [][]entry{b.creates, b.sets, b.updates}
	resolved := make([][]docstore.Data, len(groups))

	g, gctx := errgroup.WithContext(ctx)
	for gi, entries := range groups {
		resolved[gi] = make([]docstore.Data, len(entries))
		for i, e := range entries {
			g.Go(func() error {
				data, err := e.payload(gctx)
				if err != nil {
					return fmt.Errorf("resolve %s: %w", e.path, err)
				}
				resolved[gi][i] = data
				return nil
			})
		}
	}
	if err := g.Wait(); err != nil {
		return err
	}

	for i, e := range b.creates {
		if err := tx.Create(ctx, e.path, resolved[0][i]); err != nil {
			return err
		}
	}
	for i, e := range b.sets {
		if err := tx.Set(ctx, e.path, resolved[1][i]); err != nil {
			return err
		}
	}
	for i, e := range b.updates {
		if err := tx.Update(ctx, e.path, resolved[2][i]); err != nil {
			return err
		}
	}
	for _, path := range b.deletes {
		if err := tx.Delete(ctx, path); err != nil {
			return err
		}
	}
	return nil
}
