package probe

import (
	"reflect"
	"testing"

	"csvingest/internal/schema"
)

func TestForeignKeyHints(t *testing.T) {
	t.Parallel()

	tables := []schema.TableSpec{
		{
			Name:       "email_addresses",
			Columns:    []schema.ColumnSpec{{Name: "email"}, {Name: "confirmed"}},
			PrimaryKey: schema.PrimaryKeySpec{Name: "email"},
		},
		{
			Name:       "connections",
			Columns:    []schema.ColumnSpec{{Name: "first_name"}, {Name: "email_address"}},
			PrimaryKey: schema.PrimaryKeySpec{Name: "id", Synthetic: true},
		},
		{
			Name:       "positions",
			Columns:    []schema.ColumnSpec{{Name: "id"}, {Name: "title"}},
			PrimaryKey: schema.PrimaryKeySpec{Name: "id"},
		},
		{
			Name:       "endorsements",
			Columns:    []schema.ColumnSpec{{Name: "position_id"}, {Name: "email"}},
			PrimaryKey: schema.PrimaryKeySpec{Name: "id", Synthetic: true},
		},
	}

	got := ForeignKeyHints(tables)
	want := []schema.ForeignKeyHint{
		{Table: "connections", Column: "email_address", RefTable: "email_addresses", RefColumn: "email"},
		{Table: "endorsements", Column: "email", RefTable: "email_addresses", RefColumn: "email"},
		{Table: "endorsements", Column: "position_id", RefTable: "positions", RefColumn: "id"},
	}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("ForeignKeyHints() = %#v, want %#v", got, want)
	}
}

func TestForeignKeyHints_NoNaturalKeys(t *testing.T) {
	t.Parallel()

	tables := []schema.TableSpec{
		{Name: "a", Columns: []schema.ColumnSpec{{Name: "email"}}, PrimaryKey: schema.PrimaryKeySpec{Name: "id", Synthetic: true}},
		{Name: "b", Columns: []schema.ColumnSpec{{Name: "email"}}, PrimaryKey: schema.PrimaryKeySpec{Name: "id", Synthetic: true}},
	}
	if got := ForeignKeyHints(tables); len(got) != 0 {
		t.Fatalf("ForeignKeyHints() = %#v, want none", got)
	}
}
