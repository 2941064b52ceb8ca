// Package mysql is the MySQL / MariaDB store backend.
package mysql

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/go-sql-driver/mysql"
	"github.com/jmoiron/sqlx"

	"csvingest/internal/schema"
	"csvingest/internal/storage"
	"csvingest/internal/storage/sqlstore"
)

// indexPrefix is the key prefix for indexed LONGTEXT columns: 191 utf8mb4
// characters fit the 767-byte limit of older InnoDB row formats.
const indexPrefix = 191

func init() {
	storage.Register("mysql", Open)
}

// Dialect is the MySQL dialect. LONGTEXT cannot be a key, so natural key text
// columns are VARCHAR(255) and indexed text columns use a prefix index.
var Dialect = sqlstore.Dialect{
	Kind:  "mysql",
	Quote: quote,
	ColumnType: func(t schema.ColumnType, role sqlstore.Role) string {
		switch t {
		case schema.Integer:
			return "BIGINT"
		case schema.Real:
			return "DOUBLE"
		case schema.Boolean:
			return "BOOLEAN"
		case schema.Date:
			return "DATETIME(6)"
		}
		if role == sqlstore.PrimaryKey {
			return "VARCHAR(255)"
		}
		return "LONGTEXT"
	},
	SyntheticKey: func(q string) string { return q + " BIGINT NOT NULL AUTO_INCREMENT PRIMARY KEY" },
	IndexColumn: func(q string, t schema.ColumnType) string {
		if t == schema.Text {
			return fmt.Sprintf("%s(%d)", q, indexPrefix)
		}
		return q
	},
	MaxParams: 65535,
	ListTablesQuery: `SELECT table_name FROM information_schema.tables
WHERE table_schema = DATABASE() AND table_type = 'BASE TABLE'
ORDER BY table_name`,
	Describe: sqlstore.DescribeQuery(`SELECT column_name AS name,
       data_type AS type,
       is_nullable = 'YES' AS nullable,
       column_key = 'PRI' AS pk
FROM information_schema.columns
WHERE table_schema = DATABASE() AND table_name = ?
ORDER BY ordinal_position`),
	TextExpr: func(q string) string { return "LOWER(CAST(" + q + " AS CHAR))" },
}

// Open connects to cfg.DSN (go-sql-driver format). Time parsing and UTC are
// forced; the charset defaults to utf8mb4.
func Open(ctx context.Context, cfg storage.Config) (storage.Store, error) {
	dsn, err := normalizeDSN(cfg.DSN)
	if err != nil {
		return nil, storage.Wrap("open", "", err)
	}
	db, err := sqlx.Open("mysql", dsn)
	if err != nil {
		return nil, storage.Wrap("open", "", err)
	}
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, storage.Wrap("open", "", err)
	}
	return sqlstore.New(db, Dialect), nil
}

func normalizeDSN(dsn string) (string, error) {
	if !strings.Contains(dsn, "charset=") {
		sep := "?"
		if strings.Contains(dsn, "?") {
			sep = "&"
		}
		dsn += sep + "charset=utf8mb4"
	}
	c, err := mysql.ParseDSN(dsn)
	if err != nil {
		return "", fmt.Errorf("mysql: parse dsn: %w", err)
	}
	c.ParseTime = true
	c.Loc = time.UTC
	return c.FormatDSN(), nil
}

func quote(ident string) string {
	return "`" + strings.ReplaceAll(ident, "`", "``") + "`"
}
