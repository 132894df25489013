package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/burugo/schemaforge"
	"github.com/burugo/schemaforge/internal/ddl"
)

// columnRow is one row of information_schema.columns.
type columnRow struct {
	Name       string         `db:"column_name"`
	DataType   string         `db:"data_type"`
	IsNullable string         `db:"is_nullable"`
	Default    sql.NullString `db:"column_default"`
	CharLength sql.NullInt64  `db:"character_maximum_length"`
	Precision  sql.NullInt64  `db:"numeric_precision"`
	Scale      sql.NullInt64  `db:"numeric_scale"`
	IsIdentity string         `db:"is_identity"`
}

type indexRow struct {
	IndexName  string `db:"index_name"`
	ColumnName string `db:"column_name"`
}

type foreignKeyRow struct {
	Name             string `db:"constraint_name"`
	Column           string `db:"column_name"`
	ReferencedTable  string `db:"referenced_table"`
	ReferencedColumn string `db:"referenced_column"`
	OnDelete         string `db:"on_delete"`
	OnUpdate         string `db:"on_update"`
}

const (
	hasTableQuery = `SELECT COUNT(*) FROM information_schema.tables
		WHERE table_schema = $1 AND table_name = $2`

	hasColumnQuery = `SELECT COUNT(*) FROM information_schema.columns
		WHERE table_schema = $1 AND table_name = $2 AND column_name = $3`

	columnsQuery = `SELECT column_name, data_type, is_nullable, column_default,
			character_maximum_length, numeric_precision, numeric_scale, is_identity
		FROM information_schema.columns
		WHERE table_schema = $1 AND table_name = $2
		ORDER BY ordinal_position`

	indexesQuery = `SELECT i.relname AS index_name, a.attname AS column_name
		FROM pg_class t
		JOIN pg_namespace n ON n.oid = t.relnamespace
		JOIN pg_index ix ON ix.indrelid = t.oid
		JOIN pg_class i ON i.oid = ix.indexrelid
		JOIN pg_attribute a ON a.attrelid = t.oid AND a.attnum = ANY(ix.indkey)
		WHERE t.relkind = 'r' AND n.nspname = $1 AND t.relname = $2
		ORDER BY i.relname, a.attnum`

	foreignKeysQuery = `SELECT c.conname AS constraint_name,
			la.attname AS column_name,
			rt.relname AS referenced_table,
			ra.attname AS referenced_column,
			c.confdeltype::text AS on_delete,
			c.confupdtype::text AS on_update
		FROM pg_constraint c
		JOIN pg_class lt ON lt.oid = c.conrelid
		JOIN pg_namespace n ON n.oid = lt.relnamespace
		JOIN pg_class rt ON rt.oid = c.confrelid
		CROSS JOIN LATERAL unnest(c.conkey, c.confkey) WITH ORDINALITY AS k(lnum, rnum, ord)
		JOIN pg_attribute la ON la.attrelid = c.conrelid AND la.attnum = k.lnum
		JOIN pg_attribute ra ON ra.attrelid = c.confrelid AND ra.attnum = k.rnum
		WHERE c.contype = 'f' AND n.nspname = $1 AND lt.relname = $2
		ORDER BY c.conname, k.ord`
)

func (a *Adapter) HasTable(ctx context.Context, table string) (bool, error) {
	s, err := a.conn("has table")
	if err != nil {
		return false, err
	}
	return s.Exists(ctx, hasTableQuery, a.schema, table)
}

func (a *Adapter) HasColumn(ctx context.Context, table, column string) (bool, error) {
	s, err := a.conn("has column")
	if err != nil {
		return false, err
	}
	return s.Exists(ctx, hasColumnQuery, a.schema, table, column)
}

// GetColumns reads the live columns of table in ordinal order. A missing table yields no
// columns and no error.
func (a *Adapter) GetColumns(ctx context.Context, table string) ([]*schemaforge.Column, error) {
	s, err := a.conn("get columns")
	if err != nil {
		return nil, err
	}
	var rows []columnRow
	if err := s.Select(ctx, &rows, columnsQuery, a.schema, table); err != nil {
		return nil, err
	}
	columns := make([]*schemaforge.Column, 0, len(rows))
	for _, r := range rows {
		columns = append(columns, r.column())
	}
	return columns, nil
}

// column rebuilds a Column through the inverse type mapping. Sequence-backed and identity
// columns keep their data type, are marked Identity and carry no default.
func (r columnRow) column() *schemaforge.Column {
	native := r.DataType
	switch {
	case r.CharLength.Valid:
		native = fmt.Sprintf("%s(%d)", r.DataType, r.CharLength.Int64)
	case (r.DataType == "numeric" || r.DataType == "decimal") && r.Precision.Valid:
		native = fmt.Sprintf("%s(%d,%d)", r.DataType, r.Precision.Int64, r.Scale.Int64)
	}
	nt := fromNative(native)
	c := &schemaforge.Column{
		Name:      r.Name,
		Type:      schemaforge.PortableType(nt.Name),
		Limit:     nt.Limit,
		Precision: nt.Precision,
		Scale:     nt.Scale,
		Null:      r.IsNullable == "YES",
	}
	sequenced := r.Default.Valid && strings.HasPrefix(r.Default.String, "nextval(")
	if sequenced || r.IsIdentity == "YES" {
		c.Identity = true
		c.Null = false
		return c
	}
	c.Default = ddl.ParseDefault(r.Default.String, r.Default.Valid)
	return c
}

// indexes returns index name to lowercased column names, in key order.
func (a *Adapter) indexes(ctx context.Context, table string) (map[string][]string, error) {
	s, err := a.conn("list indexes")
	if err != nil {
		return nil, err
	}
	var rows []indexRow
	if err := s.Select(ctx, &rows, indexesQuery, a.schema, table); err != nil {
		return nil, err
	}
	out := make(map[string][]string)
	for _, r := range rows {
		out[r.IndexName] = append(out[r.IndexName], strings.ToLower(r.ColumnName))
	}
	return out, nil
}

func (a *Adapter) HasIndex(ctx context.Context, table string, columns []string) (bool, error) {
	idx, err := a.indexes(ctx, table)
	if err != nil {
		return false, err
	}
	for _, cols := range idx {
		if ddl.ColumnsCover(cols, columns) {
			return true, nil
		}
	}
	return false, nil
}

func (a *Adapter) HasForeignKey(ctx context.Context, table string, columns []string, constraint string) (bool, error) {
	fks, err := a.GetForeignKeys(ctx, table)
	if err != nil {
		return false, err
	}
	return ddl.ForeignKeyExists(fks, columns, constraint), nil
}

// GetForeignKeys maps constraint name to its definition, columns in key order.
func (a *Adapter) GetForeignKeys(ctx context.Context, table string) (map[string]schemaforge.ForeignKeyInfo, error) {
	s, err := a.conn("get foreign keys")
	if err != nil {
		return nil, err
	}
	var rows []foreignKeyRow
	if err := s.Select(ctx, &rows, foreignKeysQuery, a.schema, table); err != nil {
		return nil, err
	}
	out := make(map[string]schemaforge.ForeignKeyInfo)
	for _, r := range rows {
		fk, ok := out[r.Name]
		if !ok {
			fk = schemaforge.ForeignKeyInfo{
				Name:            r.Name,
				ReferencedTable: r.ReferencedTable,
				OnDelete:        referentialAction(r.OnDelete),
				OnUpdate:        referentialAction(r.OnUpdate),
			}
		}
		fk.Columns = append(fk.Columns, r.Column)
		fk.ReferencedColumns = append(fk.ReferencedColumns, r.ReferencedColumn)
		out[r.Name] = fk
	}
	return out, nil
}

// referentialAction decodes pg_constraint.confdeltype/confupdtype.
func referentialAction(code string) schemaforge.Action {
	switch code {
	case "r":
		return schemaforge.Restrict
	case "c":
		return schemaforge.Cascade
	case "n":
		return schemaforge.SetNull
	case "d":
		return schemaforge.SetDefault
	}
	return schemaforge.NoAction
}
