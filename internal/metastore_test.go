package internal

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stashbase/stashbase"
)

func metaColumns() []string {
	return []string{"name", "description", "fields", "created_at", "updated_at"}
}

func marshalFields(t *testing.T, fields []stashbase.FieldDefinition) []byte {
	t.Helper()
	data, err := json.Marshal(fields)
	require.NoError(t, err)
	return data
}

func TestMetaStore_EnsureTable(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	mock.ExpectExec(`CREATE TABLE IF NOT EXISTS "_collections_meta"`).
		WillReturnResult(pgxmock.NewResult("CREATE", 0))

	store := NewMetaStore(mock, "")
	require.NoError(t, store.EnsureTable(context.Background()))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestMetaStore_List(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	now := time.Now().UTC()
	fields := mealFields()
	rows := pgxmock.NewRows(metaColumns()).
		AddRow("expenses", "spending log", marshalFields(t, fields), now, now).
		AddRow("meals", "meal log", marshalFields(t, fields), now, now)
	mock.ExpectQuery(`SELECT name, description, fields, created_at, updated_at FROM "_collections_meta" ORDER BY name ASC`).
		WillReturnRows(rows)

	store := NewMetaStore(mock, DefaultMetaTable)
	metas, err := store.List(context.Background())
	require.NoError(t, err)
	require.Len(t, metas, 2)
	assert.Equal(t, "expenses", metas[0].Name)
	assert.Equal(t, "meals", metas[1].Name)
	assert.Len(t, metas[1].Fields, len(fields))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestMetaStore_GetFound(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	now := time.Now().UTC()
	rows := pgxmock.NewRows(metaColumns()).
		AddRow("meals", "meal log", marshalFields(t, mealFields()), now, now)
	mock.ExpectQuery(`SELECT name, description, fields, created_at, updated_at FROM "_collections_meta" WHERE name = \$1`).
		WithArgs("meals").
		WillReturnRows(rows)

	store := NewMetaStore(mock, DefaultMetaTable)
	meta, err := store.Get(context.Background(), "meals")
	require.NoError(t, err)
	require.NotNil(t, meta)
	assert.Equal(t, "meals", meta.Name)
	assert.Equal(t, "meal log", meta.Description)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestMetaStore_GetAbsentReturnsNil(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	mock.ExpectQuery(`SELECT name, description, fields, created_at, updated_at FROM "_collections_meta" WHERE name = \$1`).
		WithArgs("missing").
		WillReturnError(pgx.ErrNoRows)

	store := NewMetaStore(mock, DefaultMetaTable)
	meta, err := store.Get(context.Background(), "missing")
	require.NoError(t, err)
	assert.Nil(t, meta)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestMetaStore_Exists(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	mock.ExpectQuery(`SELECT count\(\*\) FROM "_collections_meta" WHERE name = \$1`).
		WithArgs("meals").
		WillReturnRows(pgxmock.NewRows([]string{"count"}).AddRow(int64(1)))

	store := NewMetaStore(mock, DefaultMetaTable)
	exists, err := store.Exists(context.Background(), "meals")
	require.NoError(t, err)
	assert.True(t, exists)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestMetaStore_Create(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	fields := mealFields()
	mock.ExpectExec(`INSERT INTO "_collections_meta" \(name, description, fields, created_at, updated_at\)`).
		WithArgs("meals", "meal log", pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg()).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	store := NewMetaStore(mock, DefaultMetaTable)
	meta, err := store.Create(context.Background(), "meals", "meal log", fields)
	require.NoError(t, err)
	assert.Equal(t, "meals", meta.Name)
	assert.Equal(t, fields, meta.Fields)
	assert.False(t, meta.CreatedAt.IsZero())
	assert.Equal(t, meta.CreatedAt, meta.UpdatedAt)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestMetaStore_UpdateFieldsNotFound(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	mock.ExpectExec(`UPDATE "_collections_meta" SET fields = \$1, updated_at = \$2 WHERE name = \$3`).
		WithArgs(pgxmock.AnyArg(), pgxmock.AnyArg(), "missing").
		WillReturnResult(pgxmock.NewResult("UPDATE", 0))

	store := NewMetaStore(mock, DefaultMetaTable)
	_, err = store.UpdateFields(context.Background(), "missing", mealFields())
	require.Error(t, err)
	assert.True(t, stashbase.IsNotFound(err))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestMetaStore_ListQueryError(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	mock.ExpectQuery(`SELECT name, description, fields, created_at, updated_at FROM "_collections_meta"`).
		WillReturnError(errors.New("connection reset"))

	store := NewMetaStore(mock, DefaultMetaTable)
	_, err = store.List(context.Background())
	require.Error(t, err)

	var se *stashbase.StoreError
	require.ErrorAs(t, err, &se)
	assert.Equal(t, stashbase.ErrorTypeStorage, se.Type)
	require.NoError(t, mock.ExpectationsWereMet())
}
