package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/devsynth-io/crossmem/src/memory/model"
)

// GraphAccessMode controls whether a session is opened for read or write
// operations.
type GraphAccessMode string

const (
	AccessModeWrite GraphAccessMode = "write"
	AccessModeRead  GraphAccessMode = "read"
)

// GraphSessionConfig mirrors the minimal subset of Neo4j session
// configuration we require.
type GraphSessionConfig struct {
	AccessMode   GraphAccessMode
	DatabaseName string
}

// graphDriver abstracts the Neo4j driver capabilities used by the
// store. This allows tests to provide lightweight fakes without
// spinning up a server.
type graphDriver interface {
	NewSession(ctx context.Context, config GraphSessionConfig) (graphSession, error)
	Close(ctx context.Context) error
}

type graphSession interface {
	BeginTransaction(ctx context.Context) (graphTransaction, error)
	Run(ctx context.Context, query string, params map[string]any) (graphResult, error)
	Close(ctx context.Context) error
}

type graphTransaction interface {
	Run(ctx context.Context, query string, params map[string]any) (graphResult, error)
	Commit(ctx context.Context) error
	Rollback(ctx context.Context) error
	Close(ctx context.Context) error
}

type graphResult interface {
	Next(ctx context.Context) bool
	Record() graphRecord
	Err() error
	Close(ctx context.Context) error
}

type graphRecord interface {
	Get(key string) (any, bool)
}

// ErrGraphUnavailable is returned when operations are attempted without
// a configured driver.
var ErrGraphUnavailable = errors.New("graph driver not configured")

// GraphStore persists memory items as (:Memory) nodes in Neo4j. It
// supports native transactions: while one is active every statement is
// routed through the explicit driver transaction.
type GraphStore struct {
	driver   graphDriver
	database string

	mu        sync.Mutex
	tx        graphTransaction
	txSession graphSession
	txID      string
}

var (
	_ Store         = (*GraphStore)(nil)
	_ Transactional = (*GraphStore)(nil)
)

// NewGraphStore constructs a Neo4j-backed adapter.
func NewGraphStore(driver graphDriver, database string) (*GraphStore, error) {
	if driver == nil {
		return nil, errors.New("graph driver is nil")
	}
	return &GraphStore{driver: driver, database: database}, nil
}

// run executes a statement, preferring the active transaction.
func (gs *GraphStore) run(ctx context.Context, mode GraphAccessMode, query string, params map[string]any, collect func(graphResult) error) error {
	gs.mu.Lock()
	tx := gs.tx
	gs.mu.Unlock()
	if tx != nil {
		res, err := tx.Run(ctx, query, params)
		if err != nil {
			return err
		}
		defer res.Close(ctx)
		if collect != nil {
			return collect(res)
		}
		return nil
	}
	session, err := gs.driver.NewSession(ctx, GraphSessionConfig{AccessMode: mode, DatabaseName: gs.database})
	if err != nil {
		return fmt.Errorf("graph new session: %w", err)
	}
	defer session.Close(ctx)
	res, err := session.Run(ctx, query, params)
	if err != nil {
		return err
	}
	defer res.Close(ctx)
	if collect != nil {
		return collect(res)
	}
	return nil
}

func (gs *GraphStore) Store(ctx context.Context, item model.MemoryItem) (string, error) {
	if gs.driver == nil {
		return "", ErrGraphUnavailable
	}
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
	params := map[string]any{
		"id":          item.ID,
		"content":     item.Content,
		"memory_type": string(item.MemoryType),
		"metadata":    string(metadataJSON),
		"created_at":  item.CreatedAt.UTC().Format(time.RFC3339Nano),
	}
	if err := gs.run(ctx, AccessModeWrite, graphUpsertCypher, params, nil); err != nil {
		return "", fmt.Errorf("graph upsert node: %w", err)
	}
	return item.ID, nil
}

func (gs *GraphStore) Retrieve(ctx context.Context, id string) (*model.MemoryItem, error) {
	if gs.driver == nil {
		return nil, ErrGraphUnavailable
	}
	var found *model.MemoryItem
	err := gs.run(ctx, AccessModeRead, graphRetrieveCypher, map[string]any{"id": id}, func(res graphResult) error {
		for res.Next(ctx) {
			item := mapGraphRecord(res.Record())
			found = &item
		}
		return res.Err()
	})
	if err != nil {
		return nil, fmt.Errorf("graph retrieve: %w", err)
	}
	return found, nil
}

func (gs *GraphStore) Search(ctx context.Context, q Query) ([]model.MemoryItem, error) {
	if gs.driver == nil {
		return nil, ErrGraphUnavailable
	}
	var items []model.MemoryItem
	err := gs.run(ctx, AccessModeRead, graphSearchCypher, map[string]any{"text": q.Text}, func(res graphResult) error {
		for res.Next(ctx) {
			item := mapGraphRecord(res.Record())
			if !model.MatchesFilter(item.Metadata, q.Filter) {
				continue
			}
			items = append(items, item)
			if q.Limit > 0 && len(items) == q.Limit {
				break
			}
		}
		return res.Err()
	})
	if err != nil {
		return nil, fmt.Errorf("graph search: %w", err)
	}
	return items, nil
}

func (gs *GraphStore) Delete(ctx context.Context, id string) (bool, error) {
	if gs.driver == nil {
		return false, ErrGraphUnavailable
	}
	deleted := false
	err := gs.run(ctx, AccessModeWrite, graphDeleteCypher, map[string]any{"id": id}, func(res graphResult) error {
		for res.Next(ctx) {
			if v, ok := res.Record().Get("deleted"); ok {
				deleted = toInt64(v) > 0
			}
		}
		return res.Err()
	})
	if err != nil {
		return false, fmt.Errorf("graph delete: %w", err)
	}
	return deleted, nil
}

func (gs *GraphStore) BeginTransaction(ctx context.Context, txID string) (string, error) {
	if gs.driver == nil {
		return "", ErrGraphUnavailable
	}
	gs.mu.Lock()
	defer gs.mu.Unlock()
	if gs.tx != nil {
		return "", fmt.Errorf("transaction %q already active", gs.txID)
	}
	session, err := gs.driver.NewSession(ctx, GraphSessionConfig{AccessMode: AccessModeWrite, DatabaseName: gs.database})
	if err != nil {
		return "", fmt.Errorf("graph new session: %w", err)
	}
	tx, err := session.BeginTransaction(ctx)
	if err != nil {
		_ = session.Close(ctx)
		return "", fmt.Errorf("graph begin tx: %w", err)
	}
	if txID == "" {
		txID = uuid.NewString()
	}
	gs.tx = tx
	gs.txSession = session
	gs.txID = txID
	return txID, nil
}

func (gs *GraphStore) CommitTransaction(ctx context.Context, txID string) error {
	gs.mu.Lock()
	defer gs.mu.Unlock()
	if gs.tx == nil || gs.txID != txID {
		return fmt.Errorf("transaction %q is not active", txID)
	}
	err := gs.tx.Commit(ctx)
	gs.closeTxLocked(ctx)
	return err
}

func (gs *GraphStore) RollbackTransaction(ctx context.Context, txID string) error {
	gs.mu.Lock()
	defer gs.mu.Unlock()
	if gs.tx == nil || gs.txID != txID {
		return fmt.Errorf("transaction %q is not active", txID)
	}
	err := gs.tx.Rollback(ctx)
	gs.closeTxLocked(ctx)
	return err
}

func (gs *GraphStore) IsTransactionActive(txID string) bool {
	gs.mu.Lock()
	defer gs.mu.Unlock()
	return gs.tx != nil && gs.txID == txID
}

func (gs *GraphStore) closeTxLocked(ctx context.Context) {
	if gs.tx != nil {
		_ = gs.tx.Close(ctx)
	}
	if gs.txSession != nil {
		_ = gs.txSession.Close(ctx)
	}
	gs.tx = nil
	gs.txSession = nil
	gs.txID = ""
}

// Close releases the underlying driver.
func (gs *GraphStore) Close() error {
	if gs.driver == nil {
		return nil
	}
	return gs.driver.Close(context.Background())
}

const (
	graphUpsertCypher = `
MERGE (m:Memory {id: $id})
ON CREATE SET m.created_at = $created_at
SET m.content = $content,
    m.memory_type = $memory_type,
    m.metadata = $metadata
`
	graphRetrieveCypher = `
MATCH (m:Memory {id: $id})
RETURN m.id AS id, m.content AS content, m.memory_type AS memory_type,
       m.metadata AS metadata, m.created_at AS created_at
`
	graphSearchCypher = `
MATCH (m:Memory)
WHERE $text = '' OR m.content CONTAINS $text
RETURN m.id AS id, m.content AS content, m.memory_type AS memory_type,
       m.metadata AS metadata, m.created_at AS created_at
ORDER BY m.created_at ASC
`
	graphDeleteCypher = `
MATCH (m:Memory {id: $id})
DETACH DELETE m
RETURN count(m) AS deleted
`
)

func mapGraphRecord(rec graphRecord) model.MemoryItem {
	var item model.MemoryItem
	if rec == nil {
		return item
	}
	if v, ok := rec.Get("id"); ok {
		item.ID = toString(v)
	}
	if v, ok := rec.Get("content"); ok {
		item.Content = toString(v)
	}
	if v, ok := rec.Get("memory_type"); ok {
		item.MemoryType = model.MemoryType(toString(v))
	}
	if v, ok := rec.Get("metadata"); ok {
		if raw := toString(v); strings.TrimSpace(raw) != "" && raw != "null" {
			_ = json.Unmarshal([]byte(raw), &item.Metadata)
		}
	}
	if v, ok := rec.Get("created_at"); ok {
		item.CreatedAt = parseTime(toString(v))
	}
	return item
}

func toString(v any) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return t
	case fmt.Stringer:
		return t.String()
	}
	return fmt.Sprintf("%v", v)
}

func toInt64(v any) int64 {
	switch t := v.(type) {
	case int:
		return int64(t)
	case int32:
		return int64(t)
	case int64:
		return t
	case float32:
		return int64(t)
	case float64:
		return int64(t)
	}
	return 0
}

func parseTime(value string) time.Time {
	value = strings.TrimSpace(value)
	if value == "" {
		return time.Time{}
	}
	if ts, err := time.Parse(time.RFC3339Nano, value); err == nil {
		return ts
	}
	if ts, err := time.Parse(time.RFC3339, value); err == nil {
		return ts
	}
	return time.Time{}
}
