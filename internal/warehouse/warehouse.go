// Package warehouse applies staged S3 files into the destination
// Postgres/Redshift tables via a COPY-into-staging-table-then-merge
// pattern, idempotent under at-least-once delivery. Grounded on
// original_source/src/database_writer.rs and database_writer_threads.rs.
// The package has no worker lane of its own: cmd/cdc-pipeline calls
// Apply for one staged file at a time from a single goroutine.
package warehouse

import (
	"context"
	"fmt"
	"strings"

	sq "github.com/Masterminds/squirrel"
	"github.com/jmoiron/sqlx"

	"github.com/meetcleo/cdc-pipeline/internal/schema"
	"github.com/meetcleo/cdc-pipeline/internal/uploader"
)

// SkipTables is the set of "schema.table" names the warehouse applier
// never touches even if the uploader staged files for them, configured
// via WAREHOUSE_SKIP_TABLES (see the redesigned skip-list behavior).
type SkipTables map[string]bool

// Applier owns the SQL for loading one StagedFile into its destination
// table.
type Applier struct {
	db        *sqlx.DB
	schema    *schema.Cache
	credsArn  string
	skip      SkipTables
	schemaOut string // TARGET_SCHEMA_NAME override, empty to keep source schema
}

func NewApplier(db *sqlx.DB, cache *schema.Cache, s3CredentialsArn string, skip SkipTables, targetSchema string) *Applier {
	return &Applier{db: db, schema: cache, credsArn: s3CredentialsArn, skip: skip, schemaOut: targetSchema}
}

func (a *Applier) destSchemaTable(table string) (schemaName, tableName string) {
	schemaName, tableName = splitQualified(table)
	if a.schemaOut != "" {
		schemaName = a.schemaOut
	}
	return schemaName, tableName
}

func splitQualified(full string) (string, string) {
	idx := strings.IndexByte(full, '.')
	if idx < 0 {
		return "", full
	}
	return full[:idx], full[idx+1:]
}

// Apply loads one staged file into the warehouse. Insert and Delete each
// get their own idempotent staging-table merge; Update StagedFiles are
// explicitly skipped (noted as open work in the upstream design: updates
// aren't represented on the warehouse by this core, only by the
// insert/delete patterns above it), exactly like a skip-listed table.
func (a *Applier) Apply(ctx context.Context, sf uploader.StagedFile) error {
	if a.skip[string(sf.Table)] || sf.Kind == "update" {
		return nil
	}

	schemaName, tableName := a.destSchemaTable(string(sf.Table))
	columns := a.schema.Columns(schemaName, tableName)
	if len(columns) == 0 {
		return fmt.Errorf("warehouse: no known columns for %s.%s, refusing to apply %s", schemaName, tableName, sf.Key)
	}

	tx, err := a.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("warehouse: begin tx: %w", err)
	}
	defer tx.Rollback()

	stagingTable := stagingTableName(tableName)
	if sf.Kind == "delete" {
		if err := a.applyDelete(ctx, tx, schemaName, tableName, stagingTable, sf); err != nil {
			return err
		}
	} else {
		if err := a.applyInsert(ctx, tx, schemaName, tableName, stagingTable, sf, columns); err != nil {
			return err
		}
	}
	return tx.Commit()
}

func stagingTableName(table string) string {
	return "stg_" + table
}

// applyInsert loads an Insert StagedFile via a dedupe-on-id INSERT...SELECT,
// making replay safe under at-least-once delivery. There is no UPDATE
// merge here: Insert shards only ever carry newly inserted rows.
func (a *Applier) applyInsert(ctx context.Context, tx *sqlx.Tx, schemaName, table, staging string, sf uploader.StagedFile, columns []schema.ColumnInfo) error {
	create := fmt.Sprintf(`CREATE TEMP TABLE %s (LIKE %s.%s)`, staging, schemaName, table)
	if _, err := tx.ExecContext(ctx, create); err != nil {
		return fmt.Errorf("warehouse: create staging table %s: %w", staging, err)
	}

	copy := a.copySQL(staging, sf)
	if _, err := tx.ExecContext(ctx, copy); err != nil {
		return fmt.Errorf("warehouse: copy into %s: %w", staging, err)
	}

	colNames := make([]string, len(columns))
	for i, c := range columns {
		colNames[i] = c.Name
	}
	colList := strings.Join(colNames, ", ")

	insert, _, err := sq.Select("s.*").
		From(staging + " s").
		JoinClause(fmt.Sprintf("LEFT JOIN %s.%s d ON s.id = d.id", schemaName, table)).
		Where("d.id IS NULL").
		Prefix(fmt.Sprintf("INSERT INTO %s.%s (%s)", schemaName, table, colList)).
		ToSql()
	if err != nil {
		return fmt.Errorf("warehouse: build dedupe insert: %w", err)
	}
	if _, err := tx.ExecContext(ctx, insert); err != nil {
		return fmt.Errorf("warehouse: dedupe insert into %s.%s: %w", schemaName, table, err)
	}

	drop := fmt.Sprintf(`DROP TABLE IF EXISTS %s`, staging)
	if _, err := tx.ExecContext(ctx, drop); err != nil {
		return fmt.Errorf("warehouse: drop staging table %s: %w", staging, err)
	}
	return nil
}

func (a *Applier) applyDelete(ctx context.Context, tx *sqlx.Tx, schemaName, table, staging string, sf uploader.StagedFile) error {
	create := fmt.Sprintf(`CREATE TEMP TABLE %s (id %s)`, staging, idColumnType(a.schema, schemaName, table))
	if _, err := tx.ExecContext(ctx, create); err != nil {
		return fmt.Errorf("warehouse: create delete staging table %s: %w", staging, err)
	}

	if _, err := tx.ExecContext(ctx, a.copySQL(staging, sf)); err != nil {
		return fmt.Errorf("warehouse: copy into %s: %w", staging, err)
	}

	del, _, err := sq.Delete(schemaName+"."+table).
		Where(fmt.Sprintf("id IN (SELECT id FROM %s)", staging)).
		ToSql()
	if err != nil {
		return fmt.Errorf("warehouse: build delete apply: %w", err)
	}
	if _, err := tx.ExecContext(ctx, del); err != nil {
		return fmt.Errorf("warehouse: delete apply on %s.%s: %w", schemaName, table, err)
	}

	if _, err := tx.ExecContext(ctx, fmt.Sprintf(`DROP TABLE IF EXISTS %s`, staging)); err != nil {
		return fmt.Errorf("warehouse: drop delete staging table %s: %w", staging, err)
	}
	return nil
}

func idColumnType(cache *schema.Cache, schemaName, table string) string {
	for _, c := range cache.Columns(schemaName, table) {
		if c.Name == "id" {
			return c.DataType
		}
	}
	return "bigint"
}

func (a *Applier) copySQL(staging string, sf uploader.StagedFile) string {
	return fmt.Sprintf(
		`COPY %s FROM 's3://%s/%s' CREDENTIALS '%s' GZIP CSV IGNOREHEADER 1 DELIMITER ',' EMPTYASNULL BLANKSASNULL COMPUPDATE OFF STATUPDATE OFF TRUNCATECOLUMNS`,
		staging, sf.Bucket, sf.Key, a.credsArn,
	)
}
