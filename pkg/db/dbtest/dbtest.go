// Package dbtest opens an in-memory SQLite database migrated with the embedded
// boxoffice migrations for package tests.
package dbtest

import (
	"strings"
	"testing"

	"github.com/bwmarrin/snowflake"
	"github.com/glebarez/sqlite"
	"github.com/smallbiznis/boxoffice/internal/migration"
	"gorm.io/gorm"
)

// sqliteTypes maps the PostgreSQL column types used by the migrations onto
// names the SQLite driver decodes the same way.
var sqliteTypes = strings.NewReplacer(
	"TIMESTAMPTZ", "TIMESTAMP",
	"JSONB", "TEXT",
)

// Open returns a fresh database named after the test. The pool is capped at a
// single connection so concurrent tests serialize on SQLite instead of failing
// with lock errors.
func Open(t *testing.T) *gorm.DB {
	t.Helper()

	conn, err := gorm.Open(sqlite.Open("file:"+t.Name()+"?mode=memory&cache=shared"), &gorm.Config{
		TranslateError: true,
	})
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	sqlDB, err := conn.DB()
	if err != nil {
		t.Fatalf("db handle: %v", err)
	}
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })

	stmts, err := migration.UpStatements()
	if err != nil {
		t.Fatalf("load migrations: %v", err)
	}
	for _, stmt := range stmts {
		if err := conn.Exec(sqliteTypes.Replace(stmt)).Error; err != nil {
			t.Fatalf("apply migration: %v\n%s", err, stmt)
		}
	}
	return conn
}

// Node returns a snowflake node for generating test IDs.
func Node(t *testing.T, n int64) *snowflake.Node {
	t.Helper()
	node, err := snowflake.NewNode(n)
	if err != nil {
		t.Fatalf("snowflake node: %v", err)
	}
	return node
}
