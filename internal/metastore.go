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

// DefaultMetaTable is the reserved system table holding collection
// metadata. The underscore prefix keeps it out of the user collection
// namespace.
const DefaultMetaTable = "_collections_meta"

// MetaStore persists collection definitions in one reserved system table
// keyed by collection name. Field lists are stored as a serialized JSON
// array; timestamps are set by the store, never by the caller.
type MetaStore struct {
	pool  PgxPool
	table string
}

// NewMetaStore creates a metadata store over the given pool and table name.
func NewMetaStore(pool PgxPool, table string) *MetaStore {
	if table == "" {
		table = DefaultMetaTable
	}
	return &MetaStore{pool: pool, table: table}
}

// EnsureTable creates the metadata table if it does not exist yet.
func (s *MetaStore) EnsureTable(ctx context.Context) error {
	ddl := fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
		name TEXT PRIMARY KEY,
		description TEXT NOT NULL DEFAULT '',
		fields JSONB NOT NULL,
		created_at TIMESTAMPTZ NOT NULL,
		updated_at TIMESTAMPTZ NOT NULL
	)`, QuoteIdent(s.table))
	if _, err := s.pool.Exec(ctx, ddl); err != nil {
		return stashbase.NewStorageError("create metadata table", err)
	}
	return nil
}

// List returns every collection's metadata, sorted by name ascending.
func (s *MetaStore) List(ctx context.Context) ([]stashbase.CollectionMeta, error) {
	query := fmt.Sprintf(
		"SELECT name, description, fields, created_at, updated_at FROM %s ORDER BY name ASC",
		QuoteIdent(s.table),
	)
	rows, err := s.pool.Query(ctx, query)
	if err != nil {
		return nil, stashbase.NewStorageError("list collections", err)
	}
	defer rows.Close()

	var metas []stashbase.CollectionMeta
	for rows.Next() {
		meta, err := scanMeta(rows)
		if err != nil {
			return nil, err
		}
		metas = append(metas, *meta)
	}
	if err := rows.Err(); err != nil {
		return nil, stashbase.NewStorageError("iterate collections", err)
	}
	return metas, nil
}

// Get returns the metadata for one collection, or nil when it is absent.
func (s *MetaStore) Get(ctx context.Context, name string) (*stashbase.CollectionMeta, error) {
	query := fmt.Sprintf(
		"SELECT name, description, fields, created_at, updated_at FROM %s WHERE name = $1",
		QuoteIdent(s.table),
	)
	row := s.pool.QueryRow(ctx, query, name)
	meta, err := scanMeta(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return meta, nil
}

// Exists reports whether a collection with the given name is registered.
func (s *MetaStore) Exists(ctx context.Context, name string) (bool, error) {
	query := fmt.Sprintf("SELECT count(*) FROM %s WHERE name = $1", QuoteIdent(s.table))
	var count int64
	if err := s.pool.QueryRow(ctx, query, name).Scan(&count); err != nil {
		return false, stashbase.NewStorageError("check collection existence", err)
	}
	return count > 0, nil
}

// Create persists a new collection definition. Callers are expected to
// have checked non-existence through Exists first; a duplicate name fails
// on the primary key.
func (s *MetaStore) Create(ctx context.Context, name, description string, fields []stashbase.FieldDefinition) (*stashbase.CollectionMeta, error) {
	serialized, err := json.Marshal(fields)
	if err != nil {
		return nil, stashbase.NewStorageError("serialize field definitions", err)
	}

	now := time.Now().UTC()
	query := fmt.Sprintf(
		"INSERT INTO %s (name, description, fields, created_at, updated_at) VALUES ($1, $2, $3, $4, $5)",
		QuoteIdent(s.table),
	)
	if _, err := s.pool.Exec(ctx, query, name, description, serialized, now, now); err != nil {
		return nil, stashbase.NewStorageError("persist collection metadata", err)
	}

	return &stashbase.CollectionMeta{
		Name:        name,
		Description: description,
		Fields:      fields,
		CreatedAt:   now,
		UpdatedAt:   now,
	}, nil
}

// UpdateFields replaces the stored field list and refreshes updated_at.
// Schema growth is append-only, so the caller always passes the full,
// already-extended list.
func (s *MetaStore) UpdateFields(ctx context.Context, name string, fields []stashbase.FieldDefinition) (*stashbase.CollectionMeta, error) {
	serialized, err := json.Marshal(fields)
	if err != nil {
		return nil, stashbase.NewStorageError("serialize field definitions", err)
	}

	now := time.Now().UTC()
	query := fmt.Sprintf(
		"UPDATE %s SET fields = $1, updated_at = $2 WHERE name = $3",
		QuoteIdent(s.table),
	)
	tag, err := s.pool.Exec(ctx, query, serialized, now, name)
	if err != nil {
		return nil, stashbase.NewStorageError("update collection metadata", err)
	}
	if tag.RowsAffected() == 0 {
		return nil, stashbase.NewCollectionNotFoundError(name)
	}

	return s.Get(ctx, name)
}

// scanMeta reads one metadata row, deserializing the field list.
func scanMeta(row pgx.Row) (*stashbase.CollectionMeta, error) {
	var meta stashbase.CollectionMeta
	var serialized []byte
	if err := row.Scan(&meta.Name, &meta.Description, &serialized, &meta.CreatedAt, &meta.UpdatedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, err
		}
		return nil, stashbase.NewStorageError("scan collection metadata", err)
	}
	if err := json.Unmarshal(serialized, &meta.Fields); err != nil {
		return nil, stashbase.NewStorageError("deserialize field definitions", err)
	}
	return &meta, nil
}
