package schema

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sort"

	"github.com/kadirbelkuyu/dbclone/internal/database"
	"github.com/kadirbelkuyu/dbclone/pkg/logger"
)

const userSchemaFilter = `n.nspname NOT IN ('pg_catalog', 'information_schema', 'pg_toast') AND n.nspname NOT LIKE 'pg_temp_%'`

// Extractor reads the source catalog and renders DDL for the target schema.
type Extractor struct {
	db     database.Querier
	target string
	logger *logger.Logger
}

func NewExtractor(db database.Querier, targetSchema string, logger *logger.Logger) *Extractor {
	return &Extractor{
		db:     db,
		target: targetSchema,
		logger: logger,
	}
}

func (e *Extractor) ListEnums(ctx context.Context) ([]EnumInfo, error) {
	query := `
		SELECT n.nspname, t.typname, e.enumlabel
		FROM pg_type t
		JOIN pg_enum e ON e.enumtypid = t.oid
		JOIN pg_namespace n ON n.oid = t.typnamespace
		WHERE t.typtype = 'e'
		AND ` + userSchemaFilter + `
		ORDER BY n.nspname, t.typname, e.enumsortorder
	`

	rows, err := e.db.QueryContext(ctx, query)
	if err != nil {
		return nil, database.QueryError("list enums", err)
	}
	defer rows.Close()

	var enums []EnumInfo
	for rows.Next() {
		var schemaName, typeName, label string
		if err := rows.Scan(&schemaName, &typeName, &label); err != nil {
			return nil, database.QueryError("read enum label", err)
		}

		last := len(enums) - 1
		if last < 0 || enums[last].Schema != schemaName || enums[last].Name != typeName {
			enums = append(enums, EnumInfo{Schema: schemaName, Name: typeName})
			last++
		}
		enums[last].Values = append(enums[last].Values, label)
	}
	if err := rows.Err(); err != nil {
		return nil, database.QueryError("list enums", err)
	}

	e.logger.Debugf("%d enums found", len(enums))
	return enums, nil
}

func (e *Extractor) ListTables(ctx context.Context) ([]TableInfo, error) {
	query := `
		SELECT
			n.nspname,
			c.relname,
			c.relkind = 'p',
			COALESCE(pg_get_partkeydef(c.oid), ''),
			c.relispartition,
			COALESCE(pg_get_expr(c.relpartbound, c.oid), '')
		FROM pg_class c
		JOIN pg_namespace n ON n.oid = c.relnamespace
		WHERE c.relkind IN ('r', 'p')
		AND ` + userSchemaFilter + `
		ORDER BY n.nspname, c.relname
	`

	rows, err := e.db.QueryContext(ctx, query)
	if err != nil {
		return nil, database.QueryError("list tables", err)
	}
	defer rows.Close()

	var tables []TableInfo
	for rows.Next() {
		var table TableInfo
		if err := rows.Scan(
			&table.Schema,
			&table.Name,
			&table.Partitioned,
			&table.PartitionKey,
			&table.IsPartition,
			&table.PartitionBound,
		); err != nil {
			return nil, database.QueryError("read table metadata", err)
		}
		tables = append(tables, table)
	}
	if err := rows.Err(); err != nil {
		return nil, database.QueryError("list tables", err)
	}

	e.logger.Debugf("%d tables found", len(tables))
	return tables, nil
}

// Columns returns one row per column name, in ordinal order.
func (e *Extractor) Columns(ctx context.Context, schemaName, table string) ([]ColumnInfo, error) {
	query := `
		SELECT DISTINCT ON (c.column_name)
			c.column_name,
			c.data_type,
			CASE WHEN t.typtype = 'e' THEN t.typname ELSE format_type(a.atttypid, a.atttypmod) END,
			t.typtype = 'e',
			c.character_maximum_length,
			c.is_nullable = 'YES',
			c.column_default,
			c.ordinal_position,
			COALESCE(c.identity_generation, ''),
			COALESCE(c.generation_expression, '')
		FROM information_schema.columns c
		JOIN pg_namespace n ON n.nspname = c.table_schema
		JOIN pg_class cl ON cl.relnamespace = n.oid AND cl.relname = c.table_name
		JOIN pg_attribute a ON a.attrelid = cl.oid AND a.attname = c.column_name AND NOT a.attisdropped
		JOIN pg_type t ON t.oid = a.atttypid
		WHERE c.table_schema = $1 AND c.table_name = $2
		ORDER BY c.column_name, c.ordinal_position
	`

	rows, err := e.db.QueryContext(ctx, query, schemaName, table)
	if err != nil {
		return nil, database.QueryError(fmt.Sprintf("query columns of %s.%s", schemaName, table), err)
	}
	defer rows.Close()

	var columns []ColumnInfo
	for rows.Next() {
		var col ColumnInfo
		var maxLength sql.NullInt64
		var defaultValue sql.NullString

		if err := rows.Scan(
			&col.Name,
			&col.DataType,
			&col.TypeName,
			&col.IsEnum,
			&maxLength,
			&col.IsNullable,
			&defaultValue,
			&col.Position,
			&col.Identity,
			&col.Generated,
		); err != nil {
			return nil, database.QueryError("read column metadata", err)
		}

		if maxLength.Valid {
			length := int(maxLength.Int64)
			col.CharMaxLength = &length
		}
		if defaultValue.Valid {
			col.Default = &defaultValue.String
		}

		columns = append(columns, col)
	}
	if err := rows.Err(); err != nil {
		return nil, database.QueryError("read column metadata", err)
	}

	sort.Slice(columns, func(i, j int) bool { return columns[i].Position < columns[j].Position })
	return columns, nil
}

func (e *Extractor) TableDDL(ctx context.Context, table TableInfo) (string, error) {
	columns, err := e.Columns(ctx, table.Schema, table.Name)
	if err != nil {
		return "", err
	}
	if len(columns) == 0 {
		return "", database.StructureError("no DDL returned for table %s", table)
	}

	ddl, err := BuildCreateTable(e.target, table, columns)
	if err != nil {
		return "", database.StructureError("%v", err)
	}
	return ddl, nil
}

func (e *Extractor) TableSequences(ctx context.Context, schemaName, table string) ([]SequenceRef, error) {
	query := `
		SELECT column_default
		FROM information_schema.columns
		WHERE table_schema = $1 AND table_name = $2
		AND column_default LIKE 'nextval(%'
		ORDER BY ordinal_position
	`

	rows, err := e.db.QueryContext(ctx, query, schemaName, table)
	if err != nil {
		return nil, database.QueryError(fmt.Sprintf("query sequences of %s.%s", schemaName, table), err)
	}
	defer rows.Close()

	var defaults []string
	for rows.Next() {
		var def string
		if err := rows.Scan(&def); err != nil {
			return nil, database.QueryError("read column default", err)
		}
		e.logger.Tracef("found column default: %s", def)
		defaults = append(defaults, def)
	}
	if err := rows.Err(); err != nil {
		return nil, database.QueryError("read column default", err)
	}

	return SequenceRefs(defaults, schemaName), nil
}

// SequenceDDL renders CREATE SEQUENCE in the target schema. A sequence the
// catalog does not know gets the default definition and a warning.
func (e *Extractor) SequenceDDL(ctx context.Context, ref SequenceRef) (string, error) {
	query := `
		SELECT increment, minimum_value, maximum_value, start_value
		FROM information_schema.sequences
		WHERE sequence_schema = $1 AND sequence_name = $2
	`

	var info SequenceInfo
	err := e.db.QueryRowContext(ctx, query, ref.Schema, ref.Name).Scan(
		&info.Increment,
		&info.MinValue,
		&info.MaxValue,
		&info.Start,
	)
	switch {
	case errors.Is(err, sql.ErrNoRows):
		ddl := BuildSequenceDDL(e.target, ref.Name, DefaultSequence)
		e.logger.Warnf("sequence %s not found in source catalog, using default definition: %s", ref, ddl)
		return ddl, nil
	case err != nil:
		return "", database.QueryError(fmt.Sprintf("read sequence %s", ref), err)
	}

	return BuildSequenceDDL(e.target, ref.Name, info), nil
}

// PartitionDDL returns CREATE TABLE ... PARTITION OF for every partition
// below table, parents before children.
func (e *Extractor) PartitionDDL(ctx context.Context, schemaName, table string) ([]string, error) {
	query := `
		WITH RECURSIVE parts AS (
			SELECT i.inhrelid AS child, i.inhparent AS parent, 1 AS depth
			FROM pg_inherits i
			JOIN pg_class pc ON pc.oid = i.inhparent
			JOIN pg_namespace n ON n.oid = pc.relnamespace
			WHERE n.nspname = $1 AND pc.relname = $2
			UNION ALL
			SELECT i.inhrelid, i.inhparent, p.depth + 1
			FROM pg_inherits i
			JOIN parts p ON i.inhparent = p.child
		)
		SELECT
			c.relname,
			pc.relname,
			COALESCE(pg_get_expr(c.relpartbound, c.oid), ''),
			COALESCE(pg_get_partkeydef(c.oid), '')
		FROM parts p
		JOIN pg_class c ON c.oid = p.child
		JOIN pg_class pc ON pc.oid = p.parent
		WHERE c.relispartition
		ORDER BY p.depth, c.relname
	`

	rows, err := e.db.QueryContext(ctx, query, schemaName, table)
	if err != nil {
		return nil, database.QueryError(fmt.Sprintf("query partitions of %s.%s", schemaName, table), err)
	}
	defer rows.Close()

	var ddls []string
	for rows.Next() {
		var part PartitionInfo
		if err := rows.Scan(&part.Name, &part.Parent, &part.Bound, &part.PartitionKey); err != nil {
			return nil, database.QueryError("read partition metadata", err)
		}
		ddls = append(ddls, BuildPartitionDDL(e.target, part))
	}
	if err := rows.Err(); err != nil {
		return nil, database.QueryError("read partition metadata", err)
	}

	return ddls, nil
}

// IndexDDL returns the definition of every index on table that is not
// owned by a constraint. Constraint indexes come back with the constraint.
func (e *Extractor) IndexDDL(ctx context.Context, schemaName, table string) ([]string, error) {
	query := `
		SELECT pg_get_indexdef(i.indexrelid) || ';'
		FROM pg_index i
		JOIN pg_class t ON t.oid = i.indrelid
		JOIN pg_namespace n ON n.oid = t.relnamespace
		JOIN pg_class ic ON ic.oid = i.indexrelid
		WHERE n.nspname = $1 AND t.relname = $2
		AND NOT EXISTS (
			SELECT 1 FROM pg_constraint con
			WHERE con.conindid = i.indexrelid AND con.contype IN ('p', 'u', 'x')
		)
		ORDER BY ic.relname
	`

	return e.collectStrings(ctx, query, fmt.Sprintf("query indexes of %s.%s", schemaName, table), schemaName, table)
}

// ConstraintDDL returns primary keys, unique, exclusion, check and foreign
// key constraints of table, in that order.
func (e *Extractor) ConstraintDDL(ctx context.Context, schemaName, table string) ([]ConstraintDDL, error) {
	query := `
		SELECT
			con.conname,
			con.contype::text,
			pg_get_constraintdef(con.oid),
			con.condeferrable,
			con.condeferred,
			NOT con.convalidated
		FROM pg_constraint con
		JOIN pg_class t ON t.oid = con.conrelid
		JOIN pg_namespace n ON n.oid = t.relnamespace
		WHERE n.nspname = $1 AND t.relname = $2
		AND con.contype IN ('p', 'u', 'x', 'c', 'f')
		AND con.conislocal
		ORDER BY
			CASE con.contype
				WHEN 'p' THEN 0
				WHEN 'u' THEN 1
				WHEN 'x' THEN 2
				WHEN 'c' THEN 3
				ELSE 4
			END,
			con.conname
	`

	rows, err := e.db.QueryContext(ctx, query, schemaName, table)
	if err != nil {
		return nil, database.QueryError(fmt.Sprintf("query constraints of %s.%s", schemaName, table), err)
	}
	defer rows.Close()

	var ddls []ConstraintDDL
	for rows.Next() {
		var c ConstraintInfo
		if err := rows.Scan(&c.Name, &c.Type, &c.Definition, &c.Deferrable, &c.Deferred, &c.NotValid); err != nil {
			return nil, database.QueryError("read constraint metadata", err)
		}
		ddls = append(ddls, BuildConstraintDDL(e.target, schemaName, table, c))
	}
	if err := rows.Err(); err != nil {
		return nil, database.QueryError("read constraint metadata", err)
	}

	return ddls, nil
}

// DataColumns returns information_schema metadata used to copy rows.
func (e *Extractor) DataColumns(ctx context.Context, schemaName, table string) ([]DataColumn, error) {
	query := `
		SELECT
			column_name,
			data_type,
			is_nullable = 'YES',
			column_default IS NOT NULL,
			is_identity = 'YES',
			is_generated = 'ALWAYS'
		FROM information_schema.columns
		WHERE table_schema = $1 AND table_name = $2
		ORDER BY ordinal_position
	`

	rows, err := e.db.QueryContext(ctx, query, schemaName, table)
	if err != nil {
		return nil, database.QueryError(fmt.Sprintf("query columns of %s.%s", schemaName, table), err)
	}
	defer rows.Close()

	var columns []DataColumn
	for rows.Next() {
		var col DataColumn
		if err := rows.Scan(&col.Name, &col.DataType, &col.IsNullable, &col.HasDefault, &col.IsIdentity, &col.IsGenerated); err != nil {
			return nil, database.QueryError("read column metadata", err)
		}
		columns = append(columns, col)
	}
	if err := rows.Err(); err != nil {
		return nil, database.QueryError("read column metadata", err)
	}

	return columns, nil
}

func (e *Extractor) collectStrings(ctx context.Context, query, action string, args ...any) ([]string, error) {
	rows, err := e.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, database.QueryError(action, err)
	}
	defer rows.Close()

	var out []string
	for rows.Next() {
		var v string
		if err := rows.Scan(&v); err != nil {
			return nil, database.QueryError(action, err)
		}
		out = append(out, v)
	}
	if err := rows.Err(); err != nil {
		return nil, database.QueryError(action, err)
	}
	return out, nil
}

// SequenceExists reports whether schemaName.name is a sequence in the
// connected database.
func (e *Extractor) SequenceExists(ctx context.Context, schemaName, name string) (bool, error) {
	query := `
		SELECT EXISTS (
			SELECT 1
			FROM pg_class c
			JOIN pg_namespace n ON n.oid = c.relnamespace
			WHERE c.relkind = 'S' AND n.nspname = $1 AND c.relname = $2
		)
	`

	var exists bool
	if err := e.db.QueryRowContext(ctx, query, schemaName, name).Scan(&exists); err != nil {
		return false, database.QueryError(fmt.Sprintf("check sequence %s.%s", schemaName, name), err)
	}
	return exists, nil
}
