package internal

import (
	"context"
	"encoding/hex"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/stashbase/stashbase"
	"go.uber.org/zap"
)

// Engine orchestrates the metadata store, the schema validator, and the
// query builder into the document operations exposed by the handler
// surface. It is the one place that decides operation ordering: metadata
// is written only after validation succeeds and the physical table exists.
type Engine struct {
	meta   *MetaStore
	docs   *CollectionStore
	limits QueryLimits
}

// NewEngine wires an engine over one shared pool.
func NewEngine(pool PgxPool, metaTable string, limits QueryLimits) *Engine {
	return &Engine{
		meta:   NewMetaStore(pool, metaTable),
		docs:   NewCollectionStore(pool),
		limits: limits,
	}
}

// NewDocumentID generates an opaque document id: 32 hex characters from
// UUIDv7 bytes, so ids stay unique and roughly time-ordered.
func NewDocumentID() string {
	id := uuid.Must(uuid.NewV7())
	return hex.EncodeToString(id[:])
}

// documentTimeLayouts are the accepted created_at forms for backdating,
// most specific first.
var documentTimeLayouts = []string{
	time.RFC3339Nano,
	time.RFC3339,
	"2006-01-02T15:04:05",
	"2006-01-02T15:04",
	"2006-01-02 15:04:05",
	"2006-01-02",
}

// ParseDocumentTime parses a caller-supplied created_at value.
func ParseDocumentTime(value string) (time.Time, bool) {
	for _, layout := range documentTimeLayouts {
		if parsed, err := time.Parse(layout, value); err == nil {
			return parsed, true
		}
	}
	return time.Time{}, false
}

// ListCollections returns every collection with its document count,
// sorted by name.
func (e *Engine) ListCollections(ctx context.Context) ([]stashbase.CollectionSummary, error) {
	metas, err := e.meta.List(ctx)
	if err != nil {
		return nil, err
	}
	summaries := make([]stashbase.CollectionSummary, 0, len(metas))
	for _, meta := range metas {
		count, err := e.docs.Count(ctx, meta.Name)
		if err != nil {
			return nil, err
		}
		summaries = append(summaries, stashbase.CollectionSummary{
			Name:        meta.Name,
			Description: meta.Description,
			Count:       count,
		})
	}
	return summaries, nil
}

// GetCollectionSchema returns one collection's full schema and count.
func (e *Engine) GetCollectionSchema(ctx context.Context, collection string) (*stashbase.CollectionSchema, error) {
	meta, err := e.meta.Get(ctx, collection)
	if err != nil {
		return nil, err
	}
	if meta == nil {
		return nil, stashbase.NewCollectionNotFoundError(collection)
	}
	count, err := e.docs.Count(ctx, collection)
	if err != nil {
		return nil, err
	}
	return &stashbase.CollectionSchema{
		Name:        meta.Name,
		Description: meta.Description,
		Fields:      meta.Fields,
		Count:       count,
		CreatedAt:   meta.CreatedAt,
	}, nil
}

// CreateCollection validates the collection name and field definitions,
// creates the backing table, then persists the metadata. The physical
// table always has exactly three columns regardless of the logical field
// count; there is no cross-store transaction, so a crash between table
// creation and the metadata write can leave an orphaned table behind.
func (e *Engine) CreateCollection(ctx context.Context, name, description string, fields []stashbase.FieldDefinition) (*stashbase.CreateCollectionResult, error) {
	if strings.HasPrefix(name, "_") {
		return nil, stashbase.NewInputError(stashbase.ErrCodeReservedName,
			fmt.Sprintf("collection name '%s' uses the reserved '_' prefix", name))
	}
	if !IsValidCollectionName(name) {
		return nil, stashbase.NewInputError(stashbase.ErrCodeInvalidCollectionName,
			fmt.Sprintf("invalid collection name '%s': must be lowercase snake_case starting with a letter", name))
	}

	exists, err := e.meta.Exists(ctx, name)
	if err != nil {
		return nil, err
	}
	if exists {
		return nil, stashbase.NewInputError(stashbase.ErrCodeCollectionExists,
			fmt.Sprintf("collection '%s' already exists", name))
	}

	if err := ValidateFieldDefinitions(fields); err != nil {
		return nil, stashbase.NewInputError(stashbase.ErrCodeInvalidFieldDef, err.Error())
	}

	if err := e.docs.CreateTable(ctx, name); err != nil {
		return nil, err
	}
	if _, err := e.meta.Create(ctx, name, description, fields); err != nil {
		return nil, err
	}

	zap.S().Infow("collection created", "collection", name, "fields", len(fields))
	return &stashbase.CreateCollectionResult{
		Success:     true,
		Name:        name,
		FieldsCount: len(fields),
	}, nil
}

// InsertDocument validates a document in insert mode and stores it under a
// freshly generated id. A caller-supplied created_at is honored when it
// parses as a date (backdating past events) and stripped otherwise.
func (e *Engine) InsertDocument(ctx context.Context, collection string, data stashbase.Document) (*stashbase.InsertResult, error) {
	meta, err := e.requireCollection(ctx, collection)
	if err != nil {
		return nil, err
	}
	if data == nil {
		data = make(stashbase.Document)
	}

	createdAt := time.Now().UTC()
	if raw, supplied := data["created_at"]; supplied {
		if s, ok := raw.(string); ok {
			if parsed, ok := ParseDocumentTime(s); ok {
				createdAt = parsed.UTC()
			}
		}
		data = withoutKey(data, "created_at")
	}

	validated, details := ValidateDocument(meta.Fields, data, ModeInsert)
	if details != nil {
		return nil, stashbase.NewValidationError(details)
	}

	id := NewDocumentID()
	if err := e.docs.Insert(ctx, collection, id, validated, createdAt); err != nil {
		return nil, err
	}

	zap.S().Debugw("document inserted", "collection", collection, "id", id)
	return &stashbase.InsertResult{Success: true, ID: id}, nil
}

// QueryCollection compiles and executes one parameterized read, returning
// flat documents with their id and created_at system columns merged in.
func (e *Engine) QueryCollection(ctx context.Context, req *stashbase.QueryRequest) ([]stashbase.Document, error) {
	if req == nil {
		return nil, stashbase.NewInputError(stashbase.ErrCodeInvalidCollectionName, "query request is required")
	}
	if _, err := e.requireCollection(ctx, req.Collection); err != nil {
		return nil, err
	}

	query, args, err := BuildCollectionQuery(req, e.limits)
	if err != nil {
		return nil, err
	}
	return e.docs.Select(ctx, query, args)
}

// UpdateDocument validates a partial payload in update mode and merges the
// validated fields over the existing data blob. The merge is shallow:
// object-typed fields are replaced wholesale.
func (e *Engine) UpdateDocument(ctx context.Context, collection, id string, data stashbase.Document) (*stashbase.UpdateResult, error) {
	meta, err := e.requireCollection(ctx, collection)
	if err != nil {
		return nil, err
	}

	existing, err := e.docs.Get(ctx, collection, id)
	if err != nil {
		return nil, err
	}
	if existing == nil {
		return nil, stashbase.NewDocumentNotFoundError(collection, id)
	}

	if data == nil {
		data = make(stashbase.Document)
	}
	validated, details := ValidateDocument(meta.Fields, data, ModeUpdate)
	if details != nil {
		return nil, stashbase.NewValidationError(details)
	}

	merged := MergePatch(existing, validated)
	updated, err := e.docs.UpdateData(ctx, collection, id, merged)
	if err != nil {
		return nil, err
	}
	if !updated {
		return nil, stashbase.NewDocumentNotFoundError(collection, id)
	}

	zap.S().Debugw("document updated", "collection", collection, "id", id, "fields", len(validated))
	return &stashbase.UpdateResult{Success: true, ID: id}, nil
}

// DeleteDocument removes a document by id. Deleting a nonexistent id
// succeeds: delete is idempotent.
func (e *Engine) DeleteDocument(ctx context.Context, collection, id string) (*stashbase.DeleteResult, error) {
	if _, err := e.requireCollection(ctx, collection); err != nil {
		return nil, err
	}
	if err := e.docs.Delete(ctx, collection, id); err != nil {
		return nil, err
	}
	return &stashbase.DeleteResult{Success: true}, nil
}

// UpdateCollectionSchema appends new fields to a collection's schema.
// Growth is strictly additive: a new field can never be required (existing
// documents would violate it) and can never collide with a declared field.
func (e *Engine) UpdateCollectionSchema(ctx context.Context, collection string, newFields []stashbase.FieldDefinition) (*stashbase.SchemaUpdateResult, error) {
	meta, err := e.requireCollection(ctx, collection)
	if err != nil {
		return nil, err
	}

	for _, f := range newFields {
		if f.Required {
			return nil, stashbase.NewInputError(stashbase.ErrCodeRequiredNewField,
				fmt.Sprintf("new field '%s' cannot be required: existing documents would violate it", f.Name))
		}
		if _, clash := meta.FieldByName(f.Name); clash {
			return nil, stashbase.NewInputError(stashbase.ErrCodeDuplicateField,
				fmt.Sprintf("field '%s' already exists in collection '%s'", f.Name, collection))
		}
	}

	if err := ValidateFieldDefinitions(newFields); err != nil {
		return nil, stashbase.NewInputError(stashbase.ErrCodeInvalidFieldDef, err.Error())
	}

	extended := append(append([]stashbase.FieldDefinition{}, meta.Fields...), newFields...)
	if _, err := e.meta.UpdateFields(ctx, collection, extended); err != nil {
		return nil, err
	}

	zap.S().Infow("collection schema extended", "collection", collection, "added", len(newFields), "total", len(extended))
	return &stashbase.SchemaUpdateResult{Success: true, TotalFields: len(extended)}, nil
}

// requireCollection loads metadata for an operation that demands an
// existing collection.
func (e *Engine) requireCollection(ctx context.Context, collection string) (*stashbase.CollectionMeta, error) {
	meta, err := e.meta.Get(ctx, collection)
	if err != nil {
		return nil, err
	}
	if meta == nil {
		return nil, stashbase.NewCollectionNotFoundError(collection)
	}
	return meta, nil
}

// withoutKey copies a document minus one key.
func withoutKey(data stashbase.Document, key string) stashbase.Document {
	copied := make(stashbase.Document, len(data))
	for k, v := range data {
		if k == key {
			continue
		}
		copied[k] = v
	}
	return copied
}
