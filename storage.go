package stashbase

import (
	"context"
)

// Handlers is the externally exposed API surface of the collection store.
// Every operation returns the uniform ToolResult envelope; errors never
// cross this boundary as Go errors. The same interface is consumed by the
// MCP tool adapter, the HTTP route adapter, and plugin hosts.
type Handlers interface {
	ListCollections(ctx context.Context) ToolResult
	GetCollectionSchema(ctx context.Context, collection string) ToolResult
	CreateCollection(ctx context.Context, name, description string, fields []FieldDefinition) ToolResult
	InsertDocument(ctx context.Context, collection string, data Document) ToolResult
	QueryCollection(ctx context.Context, req *QueryRequest) ToolResult
	UpdateDocument(ctx context.Context, collection, id string, data Document) ToolResult
	DeleteDocument(ctx context.Context, collection, id string) ToolResult
	UpdateCollectionSchema(ctx context.Context, collection string, newFields []FieldDefinition) ToolResult
}
