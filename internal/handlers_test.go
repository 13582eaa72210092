package internal

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stashbase/stashbase"
)

func newTestHandlers(t *testing.T) (*ToolHandlers, pgxmock.PgxPoolIface) {
	t.Helper()
	engine, mock := newTestEngine(t)
	return NewToolHandlers(engine), mock
}

func TestToolHandlers_SuccessEnvelope(t *testing.T) {
	handlers, mock := newTestHandlers(t)

	mock.ExpectQuery(`SELECT count\(\*\) FROM "_collections_meta" WHERE name = \$1`).
		WithArgs("meals").
		WillReturnRows(pgxmock.NewRows([]string{"count"}).AddRow(int64(0)))
	mock.ExpectExec(`CREATE TABLE IF NOT EXISTS "meals"`).
		WillReturnResult(pgxmock.NewResult("CREATE", 0))
	mock.ExpectExec(`INSERT INTO "_collections_meta"`).
		WithArgs("meals", "meal log", pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg()).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	result := handlers.CreateCollection(context.Background(), "meals", "meal log", mealFields())
	require.False(t, result.IsError)
	require.Len(t, result.Content, 1)
	assert.Equal(t, "text", result.Content[0].Type)

	var payload stashbase.CreateCollectionResult
	require.NoError(t, json.Unmarshal([]byte(result.Text()), &payload))
	assert.True(t, payload.Success)
	assert.Equal(t, "meals", payload.Name)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestToolHandlers_ErrorEnvelope(t *testing.T) {
	handlers, _ := newTestHandlers(t)

	result := handlers.CreateCollection(context.Background(), "_reserved", "", mealFields())
	require.True(t, result.IsError)
	assert.Contains(t, result.Text(), "reserved")
}

func TestToolHandlers_ValidationEnvelope(t *testing.T) {
	handlers, mock := newTestHandlers(t)

	expectMetaGet(t, mock, "meals", mealFields())

	result := handlers.InsertDocument(context.Background(), "meals", stashbase.Document{
		"meal_name": "Bad",
		"calories":  "oops",
	})
	require.True(t, result.IsError)

	var envelope struct {
		Error   string   `json:"error"`
		Details []string `json:"details"`
	}
	require.NoError(t, json.Unmarshal([]byte(result.Text()), &envelope))
	assert.Equal(t, "Validation failed", envelope.Error)
	require.Len(t, envelope.Details, 1)
	assert.Contains(t, envelope.Details[0], "calories")
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestToolHandlers_NotFoundEnvelope(t *testing.T) {
	handlers, mock := newTestHandlers(t)

	mock.ExpectQuery(`SELECT name, description, fields, created_at, updated_at FROM "_collections_meta" WHERE name = \$1`).
		WithArgs("ghosts").
		WillReturnRows(pgxmock.NewRows(metaColumns()))

	result := handlers.GetCollectionSchema(context.Background(), "ghosts")
	require.True(t, result.IsError)
	assert.Contains(t, result.Text(), "does not exist")
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestToolHandlers_DeleteIdempotentEnvelope(t *testing.T) {
	handlers, mock := newTestHandlers(t)

	expectMetaGet(t, mock, "meals", mealFields())
	mock.ExpectExec(`DELETE FROM "meals" WHERE id = \$1`).
		WithArgs("random-id").
		WillReturnResult(pgxmock.NewResult("DELETE", 0))

	result := handlers.DeleteDocument(context.Background(), "meals", "random-id")
	require.False(t, result.IsError)

	var payload stashbase.DeleteResult
	require.NoError(t, json.Unmarshal([]byte(result.Text()), &payload))
	assert.True(t, payload.Success)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestToolHandlers_QueryEnvelopeReturnsDocuments(t *testing.T) {
	handlers, mock := newTestHandlers(t)

	expectMetaGet(t, mock, "meals", mealFields())
	rows := pgxmock.NewRows([]string{"id", "data", "created_at"}).
		AddRow("id1", []byte(`{"meal_name":"Salad","calories":600}`), time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC))
	mock.ExpectQuery(`SELECT id, data, created_at FROM "meals"`).
		WillReturnRows(rows)

	result := handlers.QueryCollection(context.Background(), &stashbase.QueryRequest{Collection: "meals"})
	require.False(t, result.IsError)

	var docs []stashbase.Document
	require.NoError(t, json.Unmarshal([]byte(result.Text()), &docs))
	require.Len(t, docs, 1)
	assert.Equal(t, "id1", docs[0]["id"])
	assert.Equal(t, "Salad", docs[0]["meal_name"])
	assert.NotEmpty(t, docs[0]["created_at"])
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestEnvelope_RecoversPanic(t *testing.T) {
	result := envelope("boom_op", func() (any, error) {
		panic("boom")
	})
	require.True(t, result.IsError)
	assert.Contains(t, result.Text(), "boom_op")
	assert.Contains(t, result.Text(), "boom")
}
