package stashbase

import (
	"encoding/json"
	"time"
)

// FieldType enumerates the closed set of logical field types a collection
// schema may declare. Anything outside this set is rejected when the field
// definitions are validated.
type FieldType string

const (
	FieldTypeString      FieldType = "string"
	FieldTypeInt         FieldType = "int"
	FieldTypeFloat       FieldType = "float"
	FieldTypeBool        FieldType = "bool"
	FieldTypeDatetime    FieldType = "datetime"
	FieldTypeStringArray FieldType = "array<string>"
	FieldTypeIntArray    FieldType = "array<int>"
	FieldTypeFloatArray  FieldType = "array<float>"
	FieldTypeObject      FieldType = "object"
)

// FieldTypes lists every supported field type, in declaration order.
var FieldTypes = []FieldType{
	FieldTypeString,
	FieldTypeInt,
	FieldTypeFloat,
	FieldTypeBool,
	FieldTypeDatetime,
	FieldTypeStringArray,
	FieldTypeIntArray,
	FieldTypeFloatArray,
	FieldTypeObject,
}

// Valid reports whether t is one of the supported field types.
func (t FieldType) Valid() bool {
	for _, known := range FieldTypes {
		if t == known {
			return true
		}
	}
	return false
}

// FieldDefinition describes one logical attribute of a collection's documents.
type FieldDefinition struct {
	Name string    `json:"name"`
	Type FieldType `json:"type"`
	// Required is only enforceable at insert time. Fields appended to an
	// existing collection can never be required, because pre-existing
	// documents would violate the constraint.
	Required bool `json:"required,omitempty"`
	// Enum restricts string fields to an exact value set.
	Enum []string `json:"enum,omitempty"`
	// Default is advisory only: it is stored for consumers and never
	// auto-applied by validation.
	Default any `json:"default,omitempty"`
}

// CollectionMeta is the persistent record describing one collection.
// Fields is append-only: schema growth happens exclusively by adding new
// optional fields, never by removing or renaming existing ones.
type CollectionMeta struct {
	Name        string            `json:"name"`
	Description string            `json:"description"`
	Fields      []FieldDefinition `json:"fields"`
	CreatedAt   time.Time         `json:"created_at"`
	UpdatedAt   time.Time         `json:"updated_at"`
}

// FieldByName returns the definition for the named field, if declared.
func (m *CollectionMeta) FieldByName(name string) (FieldDefinition, bool) {
	for _, f := range m.Fields {
		if f.Name == name {
			return f, true
		}
	}
	return FieldDefinition{}, false
}

// Document is one stored record within a collection: the user fields plus
// the system-managed "id" and "created_at" entries.
type Document map[string]any

// SortOrder defines sort direction for collection queries.
type SortOrder string

const (
	SortAsc  SortOrder = "asc"
	SortDesc SortOrder = "desc"
)

// QueryRequest carries the filter/sort/limit parameters of a collection
// query. Filters are exact-match equality, ANDed together. Limit is a JSON
// number so callers may send fractional values; it is floored and clamped
// before use, and nil means "not supplied".
type QueryRequest struct {
	Collection string         `json:"collection"`
	Filters    map[string]any `json:"filters,omitempty"`
	SortBy     string         `json:"sort_by,omitempty"`
	SortOrder  SortOrder      `json:"sort_order,omitempty"`
	Limit      *float64       `json:"limit,omitempty"`
}

// CollectionSummary is one row of the listCollections response.
type CollectionSummary struct {
	Name        string `json:"name"`
	Description string `json:"description"`
	Count       int64  `json:"count"`
}

// CollectionSchema is the getCollectionSchema response.
type CollectionSchema struct {
	Name        string            `json:"name"`
	Description string            `json:"description"`
	Fields      []FieldDefinition `json:"fields"`
	Count       int64             `json:"count"`
	CreatedAt   time.Time         `json:"created_at"`
}

// CreateCollectionResult is the createCollection response.
type CreateCollectionResult struct {
	Success     bool   `json:"success"`
	Name        string `json:"name"`
	FieldsCount int    `json:"fields_count"`
}

// InsertResult is the insertDocument response.
type InsertResult struct {
	Success bool   `json:"success"`
	ID      string `json:"id"`
}

// UpdateResult is the updateDocument response.
type UpdateResult struct {
	Success bool   `json:"success"`
	ID      string `json:"id"`
}

// DeleteResult is the deleteDocument response.
type DeleteResult struct {
	Success bool `json:"success"`
}

// SchemaUpdateResult is the updateCollectionSchema response.
type SchemaUpdateResult struct {
	Success     bool `json:"success"`
	TotalFields int  `json:"total_fields"`
}

// ContentBlock is one element of a tool result's content list. Only text
// blocks are produced by this package.
type ContentBlock struct {
	Type string `json:"type"`
	Text string `json:"text"`
}

// ToolResult is the uniform envelope every handler operation returns: a
// content block carrying the JSON payload, plus an error flag. This is the
// shape tool-calling LLM frameworks expect, and the same envelope is served
// to HTTP and plugin adapters.
type ToolResult struct {
	Content []ContentBlock `json:"content"`
	IsError bool           `json:"isError,omitempty"`
}

// TextResult wraps a success payload into the uniform envelope.
func TextResult(payload any) ToolResult {
	data, err := json.Marshal(payload)
	if err != nil {
		return ErrorResult("failed to encode result: " + err.Error())
	}
	return ToolResult{Content: []ContentBlock{{Type: "text", Text: string(data)}}}
}

// ErrorResult wraps an error message into the uniform envelope.
func ErrorResult(message string) ToolResult {
	data, _ := json.Marshal(map[string]string{"error": message})
	return ToolResult{
		Content: []ContentBlock{{Type: "text", Text: string(data)}},
		IsError: true,
	}
}

// ValidationErrorResult wraps schema validation failures into the envelope,
// carrying one message per violated field.
func ValidationErrorResult(details []string) ToolResult {
	data, _ := json.Marshal(map[string]any{
		"error":   "Validation failed",
		"details": details,
	})
	return ToolResult{
		Content: []ContentBlock{{Type: "text", Text: string(data)}},
		IsError: true,
	}
}

// Text returns the first text content of the envelope, or "".
func (r ToolResult) Text() string {
	if len(r.Content) == 0 {
		return ""
	}
	return r.Content[0].Text
}
