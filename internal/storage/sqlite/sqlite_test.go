package sqlite

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"csvingest/internal/schema"
	"csvingest/internal/storage"
	"csvingest/internal/value"
)

func openMemory(t *testing.T) storage.Store {
	t.Helper()
	st, err := storage.Open(context.Background(), storage.Config{Kind: "sqlite"})
	require.NoError(t, err)
	t.Cleanup(func() { _ = st.Close() })
	return st
}

func connectionsSpec() schema.TableSpec {
	return schema.TableSpec{
		Name: "connections",
		Columns: []schema.ColumnSpec{
			{Name: "first_name", Type: schema.Text},
			{Name: "email", Type: schema.Text},
			{Name: "connected_on", Type: schema.Date, Nullable: true},
			{Name: "score", Type: schema.Real, Nullable: true},
			{Name: "active", Type: schema.Boolean, Nullable: true},
		},
		PrimaryKey: schema.PrimaryKeySpec{Name: "email"},
		Indexes: []schema.IndexSpec{
			{Name: "idx_connections_first_name", Columns: []string{"first_name"}},
		},
	}
}

func TestStore_CreateInsertBrowse(t *testing.T) {
	ctx := context.Background()
	st := openMemory(t)
	spec := connectionsSpec()

	require.NoError(t, st.CreateTable(ctx, spec))
	ok, err := st.TableExists(ctx, "Connections")
	require.NoError(t, err)
	assert.True(t, ok)

	day := time.Date(2023, 5, 1, 0, 0, 0, 0, time.UTC)
	tx, err := st.Begin(ctx)
	require.NoError(t, err)
	n, err := tx.Insert(ctx, spec.Name, spec.ColumnNames(), [][]value.Value{
		{value.Text("Ada"), value.Text("ada@example.com"), value.Date(day), value.Real(1.5), value.Boolean(true)},
		{value.Text("Alan"), value.Text("alan@example.com"), value.Null{}, value.Null{}, value.Boolean(false)},
		{value.Text("Grace_50%"), value.Text("grace@example.com"), value.Null{}, value.Real(2), value.Null{}},
	})
	require.NoError(t, err)
	require.NoError(t, tx.Commit(ctx))
	assert.EqualValues(t, 3, n)

	count, err := st.CountRows(ctx, spec.Name)
	require.NoError(t, err)
	assert.EqualValues(t, 3, count)

	tables, err := st.ListTables(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"connections"}, tables)

	cols, err := st.DescribeTable(ctx, spec.Name)
	require.NoError(t, err)
	require.Len(t, cols, 5)
	assert.Equal(t, storage.ColumnInfo{Name: "email", Type: "TEXT", PrimaryKey: true}, cols[1])
	assert.Equal(t, "TIMESTAMP", cols[2].Type)
	assert.True(t, cols[2].Nullable)

	rows, err := st.SelectRows(ctx, spec.Name, 10, 0)
	require.NoError(t, err)
	require.Len(t, rows, 3)
	assert.Equal(t, "Ada", rows[0]["first_name"])
	got, ok := rows[0]["connected_on"].(time.Time)
	require.True(t, ok, "connected_on = %T", rows[0]["connected_on"])
	assert.True(t, got.Equal(day))
	assert.Equal(t, true, rows[0]["active"])
	assert.Nil(t, rows[1]["connected_on"])

	page, err := st.SelectRows(ctx, spec.Name, 1, 1)
	require.NoError(t, err)
	require.Len(t, page, 1)
	assert.Equal(t, "Alan", page[0]["first_name"])

	hits, err := st.SearchTable(ctx, spec.Name, []string{"first_name", "email"}, "AL", 10)
	require.NoError(t, err)
	require.Len(t, hits, 1)
	assert.Equal(t, "alan@example.com", hits[0]["email"])

	hits, err = st.SearchTable(ctx, spec.Name, []string{"first_name"}, "_50%", 10)
	require.NoError(t, err)
	require.Len(t, hits, 1)
	assert.Equal(t, "Grace_50%", hits[0]["first_name"])

	require.NoError(t, st.DropTable(ctx, spec.Name))
	ok, err = st.TableExists(ctx, spec.Name)
	require.NoError(t, err)
	assert.False(t, ok)

	_, err = st.DescribeTable(ctx, spec.Name)
	assert.True(t, errors.Is(err, storage.ErrTableNotFound), "err=%v", err)
}

func TestStore_SyntheticKey(t *testing.T) {
	ctx := context.Background()
	st := openMemory(t)
	spec := schema.TableSpec{
		Name:       "messages",
		Columns:    []schema.ColumnSpec{{Name: "body", Type: schema.Text}},
		PrimaryKey: schema.PrimaryKeySpec{Name: "id", Synthetic: true},
	}
	require.NoError(t, st.CreateTable(ctx, spec))

	tx, err := st.Begin(ctx)
	require.NoError(t, err)
	_, err = tx.Insert(ctx, spec.Name, spec.ColumnNames(), [][]value.Value{{value.Text("a")}, {value.Text("b")}})
	require.NoError(t, err)
	require.NoError(t, tx.Commit(ctx))

	rows, err := st.SelectRows(ctx, spec.Name, 10, 0)
	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.EqualValues(t, 1, rows[0]["id"])
	assert.EqualValues(t, 2, rows[1]["id"])
}

func TestStore_FailedBatchRollsBack(t *testing.T) {
	ctx := context.Background()
	st := openMemory(t)
	spec := connectionsSpec()
	require.NoError(t, st.CreateTable(ctx, spec))

	row := func(email string) []value.Value {
		return []value.Value{value.Text("x"), value.Text(email), value.Null{}, value.Null{}, value.Null{}}
	}

	tx, err := st.Begin(ctx)
	require.NoError(t, err)
	_, err = tx.Insert(ctx, spec.Name, spec.ColumnNames(), [][]value.Value{row("a@x.io")})
	require.NoError(t, err)
	require.NoError(t, tx.Commit(ctx))

	tx, err = st.Begin(ctx)
	require.NoError(t, err)
	_, err = tx.Insert(ctx, spec.Name, spec.ColumnNames(), [][]value.Value{row("b@x.io"), row("a@x.io")})
	require.Error(t, err)
	var se *storage.StoreError
	require.True(t, errors.As(err, &se))
	assert.Equal(t, "insert", se.Op)
	require.NoError(t, tx.Rollback(ctx))
	require.NoError(t, tx.Rollback(ctx), "second rollback is a no-op")

	count, err := st.CountRows(ctx, spec.Name)
	require.NoError(t, err)
	assert.EqualValues(t, 1, count, "prior batch stays committed")
}

func TestStore_InsertChunksLargeBatches(t *testing.T) {
	ctx := context.Background()
	st := openMemory(t)
	spec := schema.TableSpec{
		Name:       "wide",
		Columns:    []schema.ColumnSpec{{Name: "a", Type: schema.Integer}, {Name: "b", Type: schema.Integer}},
		PrimaryKey: schema.PrimaryKeySpec{Name: "id", Synthetic: true},
	}
	require.NoError(t, st.CreateTable(ctx, spec))

	rows := make([][]value.Value, 20000)
	for i := range rows {
		rows[i] = []value.Value{value.Integer(i), value.Integer(-i)}
	}
	tx, err := st.Begin(ctx)
	require.NoError(t, err)
	n, err := tx.Insert(ctx, spec.Name, spec.ColumnNames(), rows)
	require.NoError(t, err)
	require.NoError(t, tx.Commit(ctx))
	assert.EqualValues(t, len(rows), n)

	count, err := st.CountRows(ctx, spec.Name)
	require.NoError(t, err)
	assert.EqualValues(t, len(rows), count)
}
