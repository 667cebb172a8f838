package docstore

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	_ "github.com/jackc/pgx/v5/stdlib"
)

// OpenPostgres opens a pgx backed *sql.DB and checks the connection.
func OpenPostgres(ctx context.Context, databaseURL string) (*sql.DB, error) {
	db, err := sql.Open("pgx", databaseURL)
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}
	db.SetConnMaxIdleTime(5 * time.Minute)
	db.SetConnMaxLifetime(30 * time.Minute)
	db.SetMaxIdleConns(10)
	db.SetMaxOpenConns(20)

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping db: %w", err)
	}
	return db, nil
}

// Postgres stores documents in a single table keyed by path. Transactions
// run at SERIALIZABLE isolation; serialization failures become ErrConflict.
type Postgres struct {
	db *sql.DB
}

func NewPostgres(db *sql.DB) *Postgres {
	return &Postgres{db: db}
}

func (p *Postgres) Attempt(ctx context.Context, fn TxFunc) (err error) {
	sqlTx, err := p.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelSerializable})
	if err != nil {
		return classifyPgError(fmt.Errorf("begin tx: %w", err))
	}
	defer func() {
		if err != nil {
			_ = sqlTx.Rollback()
		}
	}()

	tx := &pgTx{tx: sqlTx}
	if err := fn(ctx, tx); err != nil {
		return classifyPgError(err)
	}
	if err := sqlTx.Commit(); err != nil {
		return classifyPgError(fmt.Errorf("commit tx: %w", err))
	}
	return nil
}

func (p *Postgres) Get(ctx context.Context, path string) (Snapshot, error) {
	return getDocument(ctx, p.db, path)
}

func (p *Postgres) DeleteTree(ctx context.Context, root string) error {
	_, err := p.db.ExecContext(ctx,
		`DELETE FROM documents WHERE path = $1 OR starts_with(path, $2)`,
		root, root+"/",
	)
	if err != nil {
		return fmt.Errorf("delete tree %s: %w", root, err)
	}
	return nil
}

func (p *Postgres) Ping(ctx context.Context) error {
	return p.db.PingContext(ctx)
}

func (p *Postgres) Close() error {
	return p.db.Close()
}

type queryer interface {
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

func getDocument(ctx context.Context, q queryer, path string) (Snapshot, error) {
	var raw []byte
	err := q.QueryRowContext(ctx, `SELECT data FROM documents WHERE path = $1`, path).Scan(&raw)
	if errors.Is(err, sql.ErrNoRows) {
		return Snapshot{Path: path}, nil
	}
	if err != nil {
		return Snapshot{}, fmt.Errorf("get %s: %w", path, err)
	}
	var data Data
	if err := json.Unmarshal(raw, &data); err != nil {
		return Snapshot{}, fmt.Errorf("decode %s: %w", path, err)
	}
	return Snapshot{Path: path, Exists: true, Data: data}, nil
}

type pgTx struct {
	tx    *sql.Tx
	wrote bool
}

func (t *pgTx) Get(ctx context.Context, path string) (Snapshot, error) {
	if t.wrote {
		return Snapshot{}, ErrReadAfterWrite
	}
	return getDocument(ctx, t.tx, path)
}

func (t *pgTx) Create(ctx context.Context, path string, data Data) error {
	t.wrote = true
	raw, err := json.Marshal(data)
	if err != nil {
		return fmt.Errorf("encode %s: %w", path, err)
	}
	_, err = t.tx.ExecContext(ctx,
		`INSERT INTO documents(path, parent, data) VALUES($1, $2, $3)`,
		path, Parent(path), raw,
	)
	if isUniqueViolation(err) {
		return ErrAlreadyExists
	}
	if err != nil {
		return fmt.Errorf("create %s: %w", path, err)
	}
	return nil
}

func (t *pgTx) Set(ctx context.Context, path string, data Data) error {
	t.wrote = true
	raw, err := json.Marshal(data)
	if err != nil {
		return fmt.Errorf("encode %s: %w", path, err)
	}
	_, err = t.tx.ExecContext(ctx, `
		INSERT INTO documents(path, parent, data) VALUES($1, $2, $3)
		ON CONFLICT (path) DO UPDATE
		SET data = EXCLUDED.data, version = documents.version + 1, updated_at = NOW()
	`, path, Parent(path), raw)
	if err != nil {
		return fmt.Errorf("set %s: %w", path, err)
	}
	return nil
}

func (t *pgTx) Update(ctx context.Context, path string, data Data) error {
	t.wrote = true
	raw, err := json.Marshal(data)
	if err != nil {
		return fmt.Errorf("encode %s: %w", path, err)
	}
	res, err := t.tx.ExecContext(ctx, `
		UPDATE documents
		SET data = data || $2::jsonb, version = version + 1, updated_at = NOW()
		WHERE path = $1
	`, path, raw)
	if err != nil {
		return fmt.Errorf("update %s: %w", path, err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return ErrNotFound
	}
	return nil
}

func (t *pgTx) Delete(ctx context.Context, path string) error {
	t.wrote = true
	if _, err := t.tx.ExecContext(ctx, `DELETE FROM documents WHERE path = $1`, path); err != nil {
		return fmt.Errorf("delete %s: %w", path, err)
	}
	return nil
}

func classifyPgError(err error) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case "40001", "40P01":
			return fmt.Errorf("%w: %s", ErrConflict, pgErr.Message)
		}
	}
	return err
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}
