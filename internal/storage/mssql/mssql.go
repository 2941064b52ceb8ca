// Package mssql is the Microsoft SQL Server store backend.
//
// Note on driver registration:
//   - This package does NOT blank-import a SQL Server driver. The binary
//     registers "sqlserver" (github.com/microsoft/go-mssqldb) in main.
package mssql

import (
	"context"
	"strings"

	"github.com/jmoiron/sqlx"

	"csvingest/internal/schema"
	"csvingest/internal/storage"
	"csvingest/internal/storage/sqlstore"
)

const (
	// SQL Server accepts at most 2100 parameters per request and 1000 rows
	// per table value constructor.
	maxParams = 2000
	maxRows   = 1000

	// NVARCHAR(450) is the widest text that fits the 900-byte key limit.
	keyText = "NVARCHAR(450)"
)

func init() {
	storage.Register("mssql", Open)
}

// Dialect is the SQL Server dialect.
var Dialect = sqlstore.Dialect{
	Kind:  "mssql",
	Quote: mssqlIdent,
	ColumnType: func(t schema.ColumnType, role sqlstore.Role) string {
		switch t {
		case schema.Integer:
			return "BIGINT"
		case schema.Real:
			return "FLOAT"
		case schema.Boolean:
			return "BIT"
		case schema.Date:
			return "DATETIME2"
		}
		if role == sqlstore.Plain {
			return "NVARCHAR(MAX)"
		}
		return keyText
	},
	SyntheticKey: func(q string) string { return q + " BIGINT IDENTITY(1,1) PRIMARY KEY" },
	MaxParams:    maxParams,
	MaxRows:      maxRows,
	ListTablesQuery: `SELECT TABLE_NAME FROM INFORMATION_SCHEMA.TABLES
WHERE TABLE_TYPE = 'BASE TABLE' AND TABLE_SCHEMA = SCHEMA_NAME()
ORDER BY TABLE_NAME`,
	Describe: sqlstore.DescribeQuery(`SELECT c.COLUMN_NAME AS name,
       c.DATA_TYPE AS type,
       CAST(CASE WHEN c.IS_NULLABLE = 'YES' THEN 1 ELSE 0 END AS BIT) AS nullable,
       CAST(CASE WHEN EXISTS (
         SELECT 1
         FROM INFORMATION_SCHEMA.TABLE_CONSTRAINTS tc
         JOIN INFORMATION_SCHEMA.KEY_COLUMN_USAGE k
           ON k.CONSTRAINT_NAME = tc.CONSTRAINT_NAME
          AND k.TABLE_SCHEMA = tc.TABLE_SCHEMA
          AND k.TABLE_NAME = tc.TABLE_NAME
         WHERE tc.CONSTRAINT_TYPE = 'PRIMARY KEY'
           AND tc.TABLE_SCHEMA = c.TABLE_SCHEMA
           AND tc.TABLE_NAME = c.TABLE_NAME
           AND k.COLUMN_NAME = c.COLUMN_NAME
       ) THEN 1 ELSE 0 END AS BIT) AS pk
FROM INFORMATION_SCHEMA.COLUMNS c
WHERE c.TABLE_SCHEMA = SCHEMA_NAME() AND c.TABLE_NAME = ?
ORDER BY c.ORDINAL_POSITION`),
	Page:     page,
	TextExpr: func(q string) string { return "LOWER(CAST(" + q + " AS NVARCHAR(MAX)))" },
}

// Open connects with the "sqlserver" driver. The caller must have
// registered it before calling Open, otherwise sqlx.Open fails.
func Open(ctx context.Context, cfg storage.Config) (storage.Store, error) {
	db, err := sqlx.Open("sqlserver", cfg.DSN)
	if err != nil {
		return nil, storage.Wrap("open", "", err)
	}

	// Conservative defaults for bursty loads with several workers.
	db.SetMaxOpenConns(64)
	db.SetMaxIdleConns(64)

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, storage.Wrap("open", "", err)
	}
	return sqlstore.New(db, Dialect), nil
}

// page uses OFFSET/FETCH; SQL Server has no LIMIT.
func page(orderBy string, limit, offset int) (string, []any) {
	return " ORDER BY " + orderBy + " OFFSET ? ROWS FETCH NEXT ? ROWS ONLY", []any{offset, limit}
}

// mssqlIdent returns a bracket-quoted identifier, escaping ']' as ']]'.
func mssqlIdent(name string) string {
	return "[" + strings.ReplaceAll(name, "]", "]]") + "]"
}
