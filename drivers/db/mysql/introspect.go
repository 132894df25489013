package mysql

import (
	"context"
	"database/sql"
	"errors"
	"strings"

	"github.com/burugo/schemaforge"
	"github.com/burugo/schemaforge/internal/ddl"
)

// MySQL 8 returns information_schema labels in upper case, so every selected column is
// aliased to the lower-case name the db tags expect.
const (
	hasTableQuery = `SELECT COUNT(*) FROM information_schema.tables
		WHERE table_schema = DATABASE() AND table_name = ?`

	hasColumnQuery = `SELECT COUNT(*) FROM information_schema.columns
		WHERE table_schema = DATABASE() AND table_name = ? AND column_name = ?`

	columnsSelect = `SELECT column_name AS column_name, column_type AS column_type,
			is_nullable AS is_nullable, column_default AS column_default, extra AS extra
		FROM information_schema.columns
		WHERE table_schema = DATABASE() AND table_name = ?`

	columnsQuery = columnsSelect + ` ORDER BY ordinal_position`

	columnQuery = columnsSelect + ` AND column_name = ?`

	indexesQuery = `SELECT index_name AS index_name, column_name AS column_name
		FROM information_schema.statistics
		WHERE table_schema = DATABASE() AND table_name = ?
		ORDER BY index_name, seq_in_index`

	foreignKeysQuery = `SELECT k.constraint_name AS constraint_name, k.column_name AS column_name,
			k.referenced_table_name AS referenced_table, k.referenced_column_name AS referenced_column,
			r.delete_rule AS on_delete, r.update_rule AS on_update
		FROM information_schema.key_column_usage k
		JOIN information_schema.referential_constraints r
			ON r.constraint_schema = k.constraint_schema
			AND r.constraint_name = k.constraint_name
			AND r.table_name = k.table_name
		WHERE k.table_schema = DATABASE() AND k.table_name = ? AND k.referenced_table_name IS NOT NULL
		ORDER BY k.constraint_name, k.ordinal_position`
)

type columnRow struct {
	Name       string         `db:"column_name"`
	ColumnType string         `db:"column_type"`
	IsNullable string         `db:"is_nullable"`
	Default    sql.NullString `db:"column_default"`
	Extra      string         `db:"extra"`
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

func (r columnRow) autoIncrement() bool {
	return strings.Contains(strings.ToLower(r.Extra), "auto_increment")
}

func (r columnRow) generatedDefault() bool {
	return strings.Contains(strings.ToUpper(r.Extra), "DEFAULT_GENERATED") ||
		strings.HasPrefix(strings.ToUpper(r.Default.String), "CURRENT_TIMESTAMP")
}

// expressionDefault renders a generated default. Only CURRENT_TIMESTAMP may stand bare;
// any other expression needs parentheses in DDL.
func (r columnRow) expressionDefault() string {
	d := strings.TrimSpace(r.Default.String)
	if strings.HasPrefix(strings.ToUpper(d), "CURRENT_TIMESTAMP") || strings.HasPrefix(d, "(") {
		return d
	}
	return "(" + d + ")"
}

// definition renders the live column definition without its name, as CHANGE needs it.
func (r columnRow) definition() string {
	def := r.ColumnType
	if r.IsNullable == "YES" {
		def += " NULL"
	} else {
		def += " NOT NULL"
	}
	if r.Default.Valid {
		if r.generatedDefault() {
			def += " DEFAULT " + r.expressionDefault()
		} else {
			def += " DEFAULT " + ddl.QuoteString(r.Default.String)
		}
	}
	extra := strings.TrimSpace(strings.ReplaceAll(r.Extra, "DEFAULT_GENERATED", ""))
	if extra != "" {
		def += " " + extra
	}
	return def
}

// column rebuilds a Column. MySQL reports defaults without quotes, so string columns keep
// the raw text and numeric columns are parsed.
func (r columnRow) column() *schemaforge.Column {
	nt := fromNative(r.ColumnType)
	c := &schemaforge.Column{
		Name:      r.Name,
		Type:      schemaforge.PortableType(nt.Name),
		Limit:     nt.Limit,
		Precision: nt.Precision,
		Scale:     nt.Scale,
		Null:      r.IsNullable == "YES",
	}
	if r.autoIncrement() {
		c.Identity = true
		c.Null = false
		return c
	}
	switch {
	case !r.Default.Valid:
	case r.generatedDefault():
		c.Default = schemaforge.Literal(r.expressionDefault())
	case c.Type.Numeric() || c.Type == schemaforge.Boolean:
		c.Default = ddl.ParseDefault(r.Default.String, true)
	default:
		c.Default = r.Default.String
	}
	return c
}

func (a *Adapter) HasTable(ctx context.Context, table string) (bool, error) {
	s, err := a.conn("has table")
	if err != nil {
		return false, err
	}
	return s.Exists(ctx, hasTableQuery, table)
}

func (a *Adapter) HasColumn(ctx context.Context, table, column string) (bool, error) {
	s, err := a.conn("has column")
	if err != nil {
		return false, err
	}
	return s.Exists(ctx, hasColumnQuery, table, column)
}

// liveColumn returns the information_schema row of one column, or false when it is absent.
func (a *Adapter) liveColumn(ctx context.Context, table, column string) (columnRow, bool, error) {
	s, err := a.conn("get column")
	if err != nil {
		return columnRow{}, false, err
	}
	var row columnRow
	err = s.Get(ctx, &row, columnQuery, table, column)
	if errors.Is(err, sql.ErrNoRows) {
		return columnRow{}, false, nil
	}
	if err != nil {
		return columnRow{}, false, err
	}
	return row, true, nil
}

func (a *Adapter) GetColumns(ctx context.Context, table string) ([]*schemaforge.Column, error) {
	s, err := a.conn("get columns")
	if err != nil {
		return nil, err
	}
	var rows []columnRow
	if err := s.Select(ctx, &rows, columnsQuery, table); err != nil {
		return nil, err
	}
	columns := make([]*schemaforge.Column, 0, len(rows))
	for _, r := range rows {
		columns = append(columns, r.column())
	}
	return columns, nil
}

func (a *Adapter) indexes(ctx context.Context, table string) (map[string][]string, error) {
	s, err := a.conn("list indexes")
	if err != nil {
		return nil, err
	}
	var rows []indexRow
	if err := s.Select(ctx, &rows, indexesQuery, table); err != nil {
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

func (a *Adapter) GetForeignKeys(ctx context.Context, table string) (map[string]schemaforge.ForeignKeyInfo, error) {
	s, err := a.conn("get foreign keys")
	if err != nil {
		return nil, err
	}
	var rows []foreignKeyRow
	if err := s.Select(ctx, &rows, foreignKeysQuery, table); err != nil {
		return nil, err
	}
	out := make(map[string]schemaforge.ForeignKeyInfo)
	for _, r := range rows {
		fk, ok := out[r.Name]
		if !ok {
			fk = schemaforge.ForeignKeyInfo{
				Name:            r.Name,
				ReferencedTable: r.ReferencedTable,
				OnDelete:        schemaforge.Action(r.OnDelete),
				OnUpdate:        schemaforge.Action(r.OnUpdate),
			}
		}
		fk.Columns = append(fk.Columns, r.Column)
		fk.ReferencedColumns = append(fk.ReferencedColumns, r.ReferencedColumn)
		out[r.Name] = fk
	}
	return out, nil
}
