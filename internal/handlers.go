package internal

import (
	"context"
	"fmt"

	"github.com/stashbase/stashbase"
	"go.uber.org/zap"
)

// ToolHandlers folds the engine's typed operations into the uniform tool
// result envelope. Every call returns a ToolResult: successes carry the
// operation payload as a JSON text block, failures carry the error text
// with the error flag set. Nothing is allowed to propagate a panic or an
// error across this boundary.
type ToolHandlers struct {
	engine *Engine
}

// NewToolHandlers wraps an engine in the handler envelope.
func NewToolHandlers(engine *Engine) *ToolHandlers {
	return &ToolHandlers{engine: engine}
}

var _ stashbase.Handlers = (*ToolHandlers)(nil)

func (h *ToolHandlers) ListCollections(ctx context.Context) stashbase.ToolResult {
	return envelope("list_collections", func() (any, error) {
		return h.engine.ListCollections(ctx)
	})
}

func (h *ToolHandlers) GetCollectionSchema(ctx context.Context, collection string) stashbase.ToolResult {
	return envelope("get_collection_schema", func() (any, error) {
		return h.engine.GetCollectionSchema(ctx, collection)
	})
}

func (h *ToolHandlers) CreateCollection(ctx context.Context, name, description string, fields []stashbase.FieldDefinition) stashbase.ToolResult {
	return envelope("create_collection", func() (any, error) {
		return h.engine.CreateCollection(ctx, name, description, fields)
	})
}

func (h *ToolHandlers) InsertDocument(ctx context.Context, collection string, data stashbase.Document) stashbase.ToolResult {
	return envelope("insert_document", func() (any, error) {
		return h.engine.InsertDocument(ctx, collection, data)
	})
}

func (h *ToolHandlers) QueryCollection(ctx context.Context, req *stashbase.QueryRequest) stashbase.ToolResult {
	return envelope("query_collection", func() (any, error) {
		return h.engine.QueryCollection(ctx, req)
	})
}

func (h *ToolHandlers) UpdateDocument(ctx context.Context, collection, id string, data stashbase.Document) stashbase.ToolResult {
	return envelope("update_document", func() (any, error) {
		return h.engine.UpdateDocument(ctx, collection, id, data)
	})
}

func (h *ToolHandlers) DeleteDocument(ctx context.Context, collection, id string) stashbase.ToolResult {
	return envelope("delete_document", func() (any, error) {
		return h.engine.DeleteDocument(ctx, collection, id)
	})
}

func (h *ToolHandlers) UpdateCollectionSchema(ctx context.Context, collection string, newFields []stashbase.FieldDefinition) stashbase.ToolResult {
	return envelope("update_collection_schema", func() (any, error) {
		return h.engine.UpdateCollectionSchema(ctx, collection, newFields)
	})
}

// envelope runs one operation and converts its outcome into a ToolResult.
// A panic inside the operation is downgraded to an error result rather
// than crossing the handler boundary.
func envelope(op string, fn func() (any, error)) (result stashbase.ToolResult) {
	defer func() {
		if r := recover(); r != nil {
			zap.S().Errorw("handler panic", "op", op, "panic", r)
			result = stashbase.ErrorResult(fmt.Sprintf("internal error in %s: %v", op, r))
		}
	}()

	payload, err := fn()
	if err != nil {
		zap.S().Warnw("handler error", "op", op, "error", err)
		return stashbase.ToToolResult(err)
	}
	return stashbase.TextResult(payload)
}
