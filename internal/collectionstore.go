package internal

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/stashbase/stashbase"
)

// CollectionStore performs the physical row operations for user
// collections. Every collection is one table with exactly three columns —
// id, an opaque JSONB data blob, created_at — independent of how many
// logical fields the schema declares. Logical fields live inside the blob,
// so schema growth never needs ALTER TABLE.
type CollectionStore struct {
	pool PgxPool
}

// NewCollectionStore creates a collection store over the given pool.
func NewCollectionStore(pool PgxPool) *CollectionStore {
	return &CollectionStore{pool: pool}
}

// CreateTable creates the physical table backing a collection.
func (s *CollectionStore) CreateTable(ctx context.Context, collection string) error {
	ddl := fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
		id TEXT PRIMARY KEY,
		data JSONB NOT NULL,
		created_at TIMESTAMPTZ NOT NULL
	)`, QuoteIdent(collection))
	if _, err := s.pool.Exec(ctx, ddl); err != nil {
		return stashbase.NewStorageError(fmt.Sprintf("create table for collection '%s'", collection), err)
	}
	return nil
}

// Insert stores one document row.
func (s *CollectionStore) Insert(ctx context.Context, collection, id string, data stashbase.Document, createdAt time.Time) error {
	blob, err := json.Marshal(data)
	if err != nil {
		return stashbase.NewStorageError("serialize document", err)
	}
	query := fmt.Sprintf(
		"INSERT INTO %s (id, data, created_at) VALUES ($1, $2, $3)",
		QuoteIdent(collection),
	)
	if _, err := s.pool.Exec(ctx, query, id, blob, createdAt); err != nil {
		return stashbase.NewStorageError(fmt.Sprintf("insert into collection '%s'", collection), err)
	}
	return nil
}

// Get loads one document's data blob by id, or nil when the id is absent.
func (s *CollectionStore) Get(ctx context.Context, collection, id string) (stashbase.Document, error) {
	query := fmt.Sprintf("SELECT data FROM %s WHERE id = $1", QuoteIdent(collection))
	var blob []byte
	if err := s.pool.QueryRow(ctx, query, id).Scan(&blob); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, stashbase.NewStorageError(fmt.Sprintf("load document from '%s'", collection), err)
	}
	var data stashbase.Document
	if err := json.Unmarshal(blob, &data); err != nil {
		return nil, stashbase.NewStorageError("deserialize document", err)
	}
	return data, nil
}

// UpdateData replaces a document's data blob. Returns false when the id
// does not exist.
func (s *CollectionStore) UpdateData(ctx context.Context, collection, id string, data stashbase.Document) (bool, error) {
	blob, err := json.Marshal(data)
	if err != nil {
		return false, stashbase.NewStorageError("serialize document", err)
	}
	query := fmt.Sprintf("UPDATE %s SET data = $1 WHERE id = $2", QuoteIdent(collection))
	tag, err := s.pool.Exec(ctx, query, blob, id)
	if err != nil {
		return false, stashbase.NewStorageError(fmt.Sprintf("update document in '%s'", collection), err)
	}
	return tag.RowsAffected() > 0, nil
}

// Delete removes a document row by id. Deleting an absent id is not an
// error.
func (s *CollectionStore) Delete(ctx context.Context, collection, id string) error {
	query := fmt.Sprintf("DELETE FROM %s WHERE id = $1", QuoteIdent(collection))
	if _, err := s.pool.Exec(ctx, query, id); err != nil {
		return stashbase.NewStorageError(fmt.Sprintf("delete document from '%s'", collection), err)
	}
	return nil
}

// Count returns the number of documents in a collection.
func (s *CollectionStore) Count(ctx context.Context, collection string) (int64, error) {
	query := fmt.Sprintf("SELECT count(*) FROM %s", QuoteIdent(collection))
	var count int64
	if err := s.pool.QueryRow(ctx, query).Scan(&count); err != nil {
		return 0, stashbase.NewStorageError(fmt.Sprintf("count documents in '%s'", collection), err)
	}
	return count, nil
}

// Select executes a built collection query and re-expands each row's
// opaque data blob into a flat document merged with the id and created_at
// system columns.
func (s *CollectionStore) Select(ctx context.Context, query string, args []any) ([]stashbase.Document, error) {
	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, stashbase.NewStorageError("execute collection query", err)
	}
	defer rows.Close()

	documents := make([]stashbase.Document, 0)
	for rows.Next() {
		var id string
		var blob []byte
		var createdAt time.Time
		if err := rows.Scan(&id, &blob, &createdAt); err != nil {
			return nil, stashbase.NewStorageError("scan document row", err)
		}
		var doc stashbase.Document
		if err := json.Unmarshal(blob, &doc); err != nil {
			return nil, stashbase.NewStorageError("deserialize document", err)
		}
		if doc == nil {
			doc = make(stashbase.Document)
		}
		doc["id"] = id
		doc["created_at"] = createdAt.UTC().Format(time.RFC3339)
		documents = append(documents, doc)
	}
	if err := rows.Err(); err != nil {
		return nil, stashbase.NewStorageError("iterate document rows", err)
	}
	return documents, nil
}
