// Package schema discovers and caches the warehouse's column layout via
// information_schema.columns, so the warehouse applier knows which
// columns exist (and in what type) without querying on every row batch.
// Grounded on original_source/src/targets_tables_column_names.rs.
package schema

import (
	"context"
	"fmt"
	"sync"

	sq "github.com/Masterminds/squirrel"
	"github.com/jmoiron/sqlx"
)

// ColumnInfo describes one warehouse column as information_schema
// reports it.
type ColumnInfo struct {
	Name     string `db:"column_name"`
	DataType string `db:"data_type"`
}

// Cache holds the last-refreshed column list per "schema.table".
type Cache struct {
	mu      sync.RWMutex
	columns map[string][]ColumnInfo
}

func NewCache() *Cache {
	return &Cache{columns: make(map[string][]ColumnInfo)}
}

// Columns returns the cached column list for schema.table, or nil if
// Refresh has never seen that table.
func (c *Cache) Columns(schemaName, table string) []ColumnInfo {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.columns[key(schemaName, table)]
}

// Refresh re-reads information_schema.columns for each table named in
// tables, replacing the cached entries atomically per table. Tables
// already cached but not named in tables are left as they are.
func (c *Cache) Refresh(ctx context.Context, db *sqlx.DB, tables []string) error {
	for _, full := range tables {
		schemaName, table, err := splitTable(full)
		if err != nil {
			return err
		}

		q, args, err := sq.Select("column_name", "data_type").
			From("information_schema.columns").
			Where(sq.Eq{"table_schema": schemaName, "table_name": table}).
			OrderBy("ordinal_position").
			PlaceholderFormat(sq.Dollar).
			ToSql()
		if err != nil {
			return fmt.Errorf("schema: build query for %s: %w", full, err)
		}

		var cols []ColumnInfo
		if err := db.SelectContext(ctx, &cols, q, args...); err != nil {
			return fmt.Errorf("schema: query columns for %s: %w", full, err)
		}

		c.mu.Lock()
		c.columns[key(schemaName, table)] = cols
		c.mu.Unlock()
	}
	return nil
}

func key(schemaName, table string) string {
	return schemaName + "." + table
}

func splitTable(full string) (schemaName, table string, err error) {
	for i := 0; i < len(full); i++ {
		if full[i] == '.' {
			return full[:i], full[i+1:], nil
		}
	}
	return "", "", fmt.Errorf("schema: table name %q has no schema prefix", full)
}
