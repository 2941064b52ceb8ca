package mysql

import (
	"reflect"
	"strings"
	"testing"

	"csvingest/internal/schema"
	"csvingest/internal/storage/sqlstore"
)

func TestBuildCreateSQL_MySQL(t *testing.T) {
	t.Parallel()

	spec := schema.TableSpec{
		Name: "connections",
		Columns: []schema.ColumnSpec{
			{Name: "email", Type: schema.Text},
			{Name: "first_name", Type: schema.Text, Nullable: true},
			{Name: "connected_on", Type: schema.Date, Nullable: true},
		},
		PrimaryKey: schema.PrimaryKeySpec{Name: "email"},
		Indexes: []schema.IndexSpec{
			{Name: "idx_connections_first_name", Columns: []string{"first_name"}},
			{Name: "idx_connections_connected_on", Columns: []string{"connected_on"}},
		},
	}

	got, err := sqlstore.BuildCreateSQL(Dialect, spec)
	if err != nil {
		t.Fatalf("BuildCreateSQL() err=%v", err)
	}
	want := []string{
		"CREATE TABLE `connections` (`email` VARCHAR(255) NOT NULL PRIMARY KEY, `first_name` LONGTEXT, `connected_on` DATETIME(6))",
		"CREATE INDEX `idx_connections_first_name` ON `connections` (`first_name`(191))",
		"CREATE INDEX `idx_connections_connected_on` ON `connections` (`connected_on`)",
	}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("BuildCreateSQL() =\n%q\nwant\n%q", got, want)
	}
}

func TestQuote(t *testing.T) {
	t.Parallel()

	if got := quote("a`b"); got != "`a``b`" {
		t.Fatalf("quote() = %s", got)
	}
}

func TestNormalizeDSN(t *testing.T) {
	t.Parallel()

	got, err := normalizeDSN("user:pw@tcp(db:3306)/exports")
	if err != nil {
		t.Fatalf("normalizeDSN() err=%v", err)
	}
	for _, part := range []string{"parseTime=true", "charset=utf8mb4", "tcp(db:3306)/exports"} {
		if !strings.Contains(got, part) {
			t.Fatalf("normalizeDSN() = %q, missing %q", got, part)
		}
	}

	got, err = normalizeDSN("user:pw@tcp(db:3306)/exports?charset=latin1")
	if err != nil {
		t.Fatalf("normalizeDSN() err=%v", err)
	}
	if !strings.Contains(got, "charset=latin1") || strings.Contains(got, "utf8mb4") {
		t.Fatalf("normalizeDSN() must keep an explicit charset: %q", got)
	}

	if _, err := normalizeDSN("not a dsn"); err == nil {
		t.Fatalf("normalizeDSN(invalid) err=nil")
	}
}
