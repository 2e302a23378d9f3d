package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/devsynth-io/crossmem/src/memory/model"
)

// PostgresStore is a relational adapter. It supports native
// transactions: once BeginTransaction succeeds, every mutation and read
// is routed through the active pgx.Tx until commit or rollback. A
// single transaction may be active at a time; overlapping transactions
// must be serialized by the caller.
type PostgresStore struct {
	pool *pgxpool.Pool

	mu   sync.Mutex
	tx   pgx.Tx
	txID string
}

var (
	_ Store         = (*PostgresStore)(nil)
	_ Transactional = (*PostgresStore)(nil)
)

// pgxQuerier is the subset of pgx shared by pool and transaction.
type pgxQuerier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// NewPostgresStore connects to Postgres and ensures the items table.
func NewPostgresStore(ctx context.Context, connStr string) (*PostgresStore, error) {
	pool, err := pgxpool.New(ctx, connStr)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to Postgres: %w", err)
	}
	ps := &PostgresStore{pool: pool}
	if err := ps.createSchema(ctx); err != nil {
		pool.Close()
		return nil, err
	}
	return ps, nil
}

func (ps *PostgresStore) createSchema(ctx context.Context) error {
	_, err := ps.pool.Exec(ctx, postgresSchema)
	if err != nil {
		return fmt.Errorf("failed to execute schema: %w", err)
	}
	return nil
}

// querier returns the active transaction when one exists, else the pool.
func (ps *PostgresStore) querier() pgxQuerier {
	ps.mu.Lock()
	defer ps.mu.Unlock()
	if ps.tx != nil {
		return ps.tx
	}
	return ps.pool
}

func (ps *PostgresStore) Store(ctx context.Context, item model.MemoryItem) (string, error) {
	if item.ID == "" {
		item.ID = uuid.NewString()
	}
	if item.CreatedAt.IsZero() {
		item.CreatedAt = time.Now().UTC()
	}
	metadataJSON, err := json.Marshal(item.Metadata)
	if err != nil {
		return "", fmt.Errorf("encode metadata: %w", err)
	}
	_, err = ps.querier().Exec(ctx, `
                INSERT INTO memory_items (id, content, memory_type, metadata, created_at)
                VALUES ($1, $2, $3, $4::jsonb, $5)
                ON CONFLICT (id) DO UPDATE
                SET content = EXCLUDED.content,
                    memory_type = EXCLUDED.memory_type,
                    metadata = EXCLUDED.metadata
        `, item.ID, item.Content, string(item.MemoryType), string(metadataJSON), item.CreatedAt)
	if err != nil {
		return "", err
	}
	return item.ID, nil
}

func (ps *PostgresStore) Retrieve(ctx context.Context, id string) (*model.MemoryItem, error) {
	row := ps.querier().QueryRow(ctx, `
                SELECT id, content, memory_type, metadata::text, created_at
                FROM memory_items WHERE id = $1
        `, id)
	item, err := scanItem(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return item, nil
}

func (ps *PostgresStore) Search(ctx context.Context, q Query) ([]model.MemoryItem, error) {
	sql := `
                SELECT id, content, memory_type, metadata::text, created_at
                FROM memory_items
        `
	args := []any{}
	if q.Text != "" {
		sql += ` WHERE position($1 in content) > 0`
		args = append(args, q.Text)
	}
	sql += ` ORDER BY created_at ASC, id ASC`
	if q.Limit > 0 && q.Filter == nil {
		args = append(args, q.Limit)
		sql += fmt.Sprintf(` LIMIT $%d`, len(args))
	}
	rows, err := ps.querier().Query(ctx, sql, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var items []model.MemoryItem
	for rows.Next() {
		item, err := scanItem(rows)
		if err != nil {
			return nil, err
		}
		if !model.MatchesFilter(item.Metadata, q.Filter) {
			continue
		}
		items = append(items, *item)
		if q.Limit > 0 && len(items) == q.Limit {
			break
		}
	}
	return items, rows.Err()
}

func (ps *PostgresStore) Delete(ctx context.Context, id string) (bool, error) {
	tag, err := ps.querier().Exec(ctx, `DELETE FROM memory_items WHERE id = $1`, id)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() > 0, nil
}

func (ps *PostgresStore) BeginTransaction(ctx context.Context, txID string) (string, error) {
	ps.mu.Lock()
	defer ps.mu.Unlock()
	if ps.tx != nil {
		return "", fmt.Errorf("transaction %q already active", ps.txID)
	}
	tx, err := ps.pool.Begin(ctx)
	if err != nil {
		return "", err
	}
	if txID == "" {
		txID = uuid.NewString()
	}
	ps.tx = tx
	ps.txID = txID
	return txID, nil
}

func (ps *PostgresStore) CommitTransaction(ctx context.Context, txID string) error {
	ps.mu.Lock()
	defer ps.mu.Unlock()
	if ps.tx == nil || ps.txID != txID {
		return fmt.Errorf("transaction %q is not active", txID)
	}
	err := ps.tx.Commit(ctx)
	ps.tx = nil
	ps.txID = ""
	return err
}

func (ps *PostgresStore) RollbackTransaction(ctx context.Context, txID string) error {
	ps.mu.Lock()
	defer ps.mu.Unlock()
	if ps.tx == nil || ps.txID != txID {
		return fmt.Errorf("transaction %q is not active", txID)
	}
	err := ps.tx.Rollback(ctx)
	ps.tx = nil
	ps.txID = ""
	return err
}

func (ps *PostgresStore) IsTransactionActive(txID string) bool {
	ps.mu.Lock()
	defer ps.mu.Unlock()
	return ps.tx != nil && ps.txID == txID
}

// Close releases the underlying connection pool.
func (ps *PostgresStore) Close() error {
	if ps == nil || ps.pool == nil {
		return nil
	}
	ps.pool.Close()
	return nil
}

func scanItem(row pgx.Row) (*model.MemoryItem, error) {
	var item model.MemoryItem
	var memoryType, metadataJSON string
	if err := row.Scan(&item.ID, &item.Content, &memoryType, &metadataJSON, &item.CreatedAt); err != nil {
		return nil, err
	}
	item.MemoryType = model.MemoryType(memoryType)
	if metadataJSON != "" && metadataJSON != "null" {
		if err := json.Unmarshal([]byte(metadataJSON), &item.Metadata); err != nil {
			return nil, fmt.Errorf("decode metadata: %w", err)
		}
	}
	return &item, nil
}

const postgresSchema = `
CREATE TABLE IF NOT EXISTS memory_items (
    id TEXT PRIMARY KEY,
    content TEXT NOT NULL,
    memory_type TEXT NOT NULL DEFAULT '',
    metadata JSONB,
    created_at TIMESTAMPTZ DEFAULT NOW()
);

CREATE INDEX IF NOT EXISTS memory_items_type_idx ON memory_items (memory_type);
CREATE INDEX IF NOT EXISTS memory_items_created_idx ON memory_items (created_at);
`
