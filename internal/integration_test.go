package internal

import (
	"context"
	"fmt"
	"os"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/stashbase/stashbase"
)

// startPostgres launches a throwaway postgres container and returns a
// connected pool. Requires a local container runtime; gated behind
// STASHBASE_INTEGRATION so the unit suite stays hermetic.
func startPostgres(t *testing.T, ctx context.Context) *pgxpool.Pool {
	t.Helper()

	req := testcontainers.ContainerRequest{
		Image:        "postgres:16",
		ExposedPorts: []string{"5432/tcp"},
		Env: map[string]string{
			"POSTGRES_PASSWORD": "password",
			"POSTGRES_USER":     "postgres",
			"POSTGRES_DB":       "postgres",
		},
		WaitingFor: wait.ForListeningPort("5432/tcp").WithStartupTimeout(30 * time.Second),
	}
	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: req,
		Started:          true,
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = container.Terminate(context.Background()) })

	host, err := container.Host(ctx)
	require.NoError(t, err)
	mapped, err := container.MappedPort(ctx, "5432")
	require.NoError(t, err)

	dsn := fmt.Sprintf("postgres://postgres:password@%s:%s/postgres?sslmode=disable", host, mapped.Port())

	deadline := time.Now().Add(20 * time.Second)
	for {
		pool, err := pgxpool.New(ctx, dsn)
		if err == nil {
			if err = pool.Ping(ctx); err == nil {
				t.Cleanup(pool.Close)
				return pool
			}
			pool.Close()
		}
		if time.Now().After(deadline) {
			t.Fatalf("postgres did not become ready: %v", err)
		}
		time.Sleep(200 * time.Millisecond)
	}
}

func TestEngineAgainstPostgres(t *testing.T) {
	if os.Getenv("STASHBASE_INTEGRATION") == "" {
		t.Skip("set STASHBASE_INTEGRATION=1 to run container-backed tests")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	pool := startPostgres(t, ctx)

	meta := NewMetaStore(pool, DefaultMetaTable)
	require.NoError(t, meta.EnsureTable(ctx))

	engine := NewEngine(pool, DefaultMetaTable, DefaultQueryLimits)

	fields := []stashbase.FieldDefinition{
		{Name: "meal_name", Type: stashbase.FieldTypeString, Required: true},
		{Name: "calories", Type: stashbase.FieldTypeInt},
		{Name: "meal_type", Type: stashbase.FieldTypeString, Enum: []string{"breakfast", "lunch", "dinner"}},
	}

	created, err := engine.CreateCollection(ctx, "meals", "meal log", fields)
	require.NoError(t, err)
	assert.True(t, created.Success)

	// duplicate create is rejected
	_, err = engine.CreateCollection(ctx, "meals", "again", fields)
	require.Error(t, err)

	inserted, err := engine.InsertDocument(ctx, "meals", stashbase.Document{
		"meal_name": "Salad",
		"calories":  600,
		"meal_type": "lunch",
	})
	require.NoError(t, err)
	require.Len(t, inserted.ID, 32)

	_, err = engine.InsertDocument(ctx, "meals", stashbase.Document{
		"meal_name": "Soup",
		"calories":  250,
		"meal_type": "dinner",
	})
	require.NoError(t, err)

	// closed validation holds against the live store too
	_, err = engine.InsertDocument(ctx, "meals", stashbase.Document{
		"meal_name": "Bad",
		"surprise":  true,
	})
	require.Error(t, err)
	assert.True(t, stashbase.IsValidation(err))

	docs, err := engine.QueryCollection(ctx, &stashbase.QueryRequest{
		Collection: "meals",
		Filters:    map[string]any{"meal_type": "lunch"},
	})
	require.NoError(t, err)
	require.Len(t, docs, 1)
	assert.Equal(t, "Salad", docs[0]["meal_name"])

	updated, err := engine.UpdateDocument(ctx, "meals", inserted.ID, stashbase.Document{"calories": 700})
	require.NoError(t, err)
	assert.True(t, updated.Success)

	docs, err = engine.QueryCollection(ctx, &stashbase.QueryRequest{
		Collection: "meals",
		Filters:    map[string]any{"meal_name": "Salad"},
	})
	require.NoError(t, err)
	require.Len(t, docs, 1)
	assert.Equal(t, float64(700), docs[0]["calories"])

	schemaResult, err := engine.UpdateCollectionSchema(ctx, "meals", []stashbase.FieldDefinition{
		{Name: "notes", Type: stashbase.FieldTypeString},
	})
	require.NoError(t, err)
	assert.Equal(t, len(fields)+1, schemaResult.TotalFields)

	// the new optional field is immediately writable
	_, err = engine.InsertDocument(ctx, "meals", stashbase.Document{
		"meal_name": "Toast",
		"notes":     "burnt",
	})
	require.NoError(t, err)

	_, err = engine.InsertDocument(ctx, "meals", stashbase.Document{
		"meal_name": "Feast",
		"calories":  1000,
	})
	require.NoError(t, err)

	// int fields sort numerically: 1000 comes after 250 and 700 even
	// though it sorts first as text
	docs, err = engine.QueryCollection(ctx, &stashbase.QueryRequest{
		Collection: "meals",
		SortBy:     "calories",
		SortOrder:  stashbase.SortAsc,
	})
	require.NoError(t, err)
	require.Len(t, docs, 4)
	assert.Equal(t, "Soup", docs[0]["meal_name"])
	assert.Equal(t, "Salad", docs[1]["meal_name"])
	assert.Equal(t, "Feast", docs[2]["meal_name"])
	// a document without the field sorts after every present value
	assert.Equal(t, "Toast", docs[3]["meal_name"])

	deleted, err := engine.DeleteDocument(ctx, "meals", inserted.ID)
	require.NoError(t, err)
	assert.True(t, deleted.Success)

	// idempotent: deleting again still succeeds
	deleted, err = engine.DeleteDocument(ctx, "meals", inserted.ID)
	require.NoError(t, err)
	assert.True(t, deleted.Success)

	summaries, err := engine.ListCollections(ctx)
	require.NoError(t, err)
	require.Len(t, summaries, 1)
	assert.Equal(t, int64(3), summaries[0].Count)
}
