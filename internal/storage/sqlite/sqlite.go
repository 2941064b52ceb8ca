package sqlite

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"
	_ "modernc.org/sqlite"

	"csvingest/internal/schema"
	"csvingest/internal/storage"
	"csvingest/internal/storage/sqlstore"
	"csvingest/internal/value"
)

// maxParams is SQLITE_MAX_VARIABLE_NUMBER for SQLite >= 3.32.
const maxParams = 32766

func init() {
	sqlx.BindDriver("sqlite", sqlx.QUESTION)
	storage.Register("sqlite", Open)
}

// Dialect is the SQLite dialect.
//
// SQLite has no native date or boolean type. Dates are stored as RFC3339Nano
// text in UTC and booleans as 0/1; the declared column types (TIMESTAMP,
// BOOLEAN) are kept so DescribeTable and Decode can tell them apart.
var Dialect = sqlstore.Dialect{
	Kind:  "sqlite",
	Quote: sqlstore.QuoteDouble,
	ColumnType: func(t schema.ColumnType, _ sqlstore.Role) string {
		switch t {
		case schema.Integer:
			return "INTEGER"
		case schema.Real:
			return "REAL"
		case schema.Boolean:
			return "BOOLEAN"
		case schema.Date:
			return "TIMESTAMP"
		default:
			return "TEXT"
		}
	},
	SyntheticKey:    func(q string) string { return q + " INTEGER PRIMARY KEY AUTOINCREMENT" },
	Bind:            bind,
	MaxParams:       maxParams,
	ListTablesQuery: `SELECT name FROM sqlite_master WHERE type = 'table' AND name NOT LIKE 'sqlite!_%' ESCAPE '!' ORDER BY name`,
	Describe:        describe,
	Decode:          decode,
	TextExpr:        func(q string) string { return "LOWER(CAST(" + q + " AS TEXT))" },
}

// Open opens (or creates) the database file named by cfg.DSN. An empty DSN
// opens a private in-memory database.
//
// The pool is limited to one connection: every connection to ":memory:" is a
// separate database, and SQLite serializes writers anyway.
func Open(ctx context.Context, cfg storage.Config) (storage.Store, error) {
	db, err := sqlx.Open("sqlite", dsn(cfg.DSN))
	if err != nil {
		return nil, storage.Wrap("open", "", err)
	}
	db.SetMaxOpenConns(1)
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, storage.Wrap("open", "", err)
	}
	return sqlstore.New(db, Dialect), nil
}

func dsn(s string) string {
	s = strings.TrimSpace(s)
	if s == "" {
		return ":memory:"
	}
	if s == ":memory:" || strings.Contains(s, "_pragma=busy_timeout") {
		return s
	}
	sep := "?"
	if strings.Contains(s, "?") {
		sep = "&"
	}
	return s + sep + "_pragma=busy_timeout(5000)"
}

func bind(v value.Value) any {
	switch x := v.(type) {
	case value.Date:
		return formatSQLiteTime(time.Time(x))
	case value.Boolean:
		if x {
			return int64(1)
		}
		return int64(0)
	default:
		return value.Native(v)
	}
}

// decode turns stored dates and booleans back into time.Time and bool.
// Values that do not parse are returned unchanged.
func decode(declType string, v any) any {
	switch strings.ToUpper(declType) {
	case "TIMESTAMP":
		if s, ok := v.(string); ok {
			if ts, err := parseSQLiteTime(s); err == nil {
				return ts
			}
		}
	case "BOOLEAN":
		if n, ok := v.(int64); ok {
			return n != 0
		}
	}
	return v
}

type tableInfoRow struct {
	Name    string `db:"name"`
	Type    string `db:"type"`
	NotNull int    `db:"notnull"`
	PK      int    `db:"pk"`
}

func describe(ctx context.Context, db *sqlx.DB, table string) ([]storage.ColumnInfo, error) {
	var rows []tableInfoRow
	q := `SELECT name, type, "notnull", pk FROM pragma_table_info(?) ORDER BY cid`
	if err := db.SelectContext(ctx, &rows, q, table); err != nil {
		return nil, fmt.Errorf("table_info: %w", err)
	}
	out := make([]storage.ColumnInfo, 0, len(rows))
	for _, r := range rows {
		out = append(out, storage.ColumnInfo{
			Name:       r.Name,
			Type:       strings.ToUpper(r.Type),
			PrimaryKey: r.PK > 0,
			Nullable:   r.NotNull == 0 && r.PK == 0,
		})
	}
	return out, nil
}

// formatSQLiteTime formats a time as RFC3339Nano in UTC.
// Timestamps are stored as TEXT for reliable scanning with modernc.org/sqlite.
func formatSQLiteTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}

// parseSQLiteTime parses timestamps read back from SQLite.
//
// Supported formats:
//   - RFC3339Nano (what we write)
//   - RFC3339
//   - "2006-01-02 15:04:05Z07:00" and its fractional form, as written by
//     other SQLite tools
//   - "2006-01-02 15:04:05" (interpreted as UTC)
func parseSQLiteTime(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, fmt.Errorf("empty time string")
	}

	layouts := []string{
		time.RFC3339Nano,
		time.RFC3339,
		"2006-01-02 15:04:05Z07:00",
		"2006-01-02 15:04:05.999999999Z07:00",
	}
	for _, layout := range layouts {
		if ts, err := time.Parse(layout, s); err == nil {
			return ts.UTC(), nil
		}
	}
	if ts, err := time.ParseInLocation("2006-01-02 15:04:05", s, time.UTC); err == nil {
		return ts, nil
	}
	return time.Time{}, fmt.Errorf("unsupported time format: %q", s)
}
