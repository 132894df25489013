package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"regexp"
	"strings"

	"github.com/burugo/schemaforge"
	"github.com/burugo/schemaforge/internal/ddl"
)

const (
	hasTableQuery = `SELECT COUNT(*) FROM sqlite_master WHERE type = 'table' AND name = ?`

	tableSQLQuery = `SELECT sql FROM sqlite_master WHERE type = 'table' AND name = ?`

	columnsQuery = `SELECT cid, name, type, "notnull", dflt_value, pk
		FROM pragma_table_info(?) ORDER BY cid`

	indexesQuery = `SELECT il.name AS index_name, il."unique" AS is_unique, il.origin AS origin,
			ii.name AS column_name
		FROM pragma_index_list(?) AS il, pragma_index_info(il.name) AS ii
		ORDER BY il.name, ii.seqno`

	foreignKeysQuery = `SELECT id, seq, "table" AS referenced_table, "from" AS column_name,
			"to" AS referenced_column, on_update, on_delete
		FROM pragma_foreign_key_list(?) ORDER BY id, seq`
)

// columnRow is one row of pragma_table_info.
type columnRow struct {
	Cid     int            `db:"cid"`
	Name    string         `db:"name"`
	Type    string         `db:"type"`
	NotNull bool           `db:"notnull"`
	Default sql.NullString `db:"dflt_value"`
	PK      int            `db:"pk"`
}

type indexRow struct {
	IndexName  string         `db:"index_name"`
	Unique     bool           `db:"is_unique"`
	Origin     string         `db:"origin"`
	ColumnName sql.NullString `db:"column_name"`
}

type foreignKeyRow struct {
	ID               int            `db:"id"`
	Seq              int            `db:"seq"`
	ReferencedTable  string         `db:"referenced_table"`
	Column           string         `db:"column_name"`
	ReferencedColumn sql.NullString `db:"referenced_column"`
	OnUpdate         string         `db:"on_update"`
	OnDelete         string         `db:"on_delete"`
}

// definition re-renders the column as declared, for table rebuilds.
func (r columnRow) definition(d Dialector) string {
	def := d.Quote(r.Name)
	if r.Type != "" {
		def += " " + r.Type
	}
	if r.NotNull {
		def += " NOT NULL"
	}
	if r.Default.Valid {
		def += " DEFAULT " + r.Default.String
	}
	return def
}

// column rebuilds a Column. identity is set when r is the table's only key column and is
// declared INTEGER, which makes it the rowid alias; its type stays integer.
func (r columnRow) column(identity bool) *schemaforge.Column {
	nt := fromNative(r.Type)
	c := &schemaforge.Column{
		Name:      r.Name,
		Type:      schemaforge.PortableType(nt.Name),
		Limit:     nt.Limit,
		Precision: nt.Precision,
		Scale:     nt.Scale,
		Null:      !r.NotNull && r.PK == 0,
		Default:   ddl.ParseDefault(r.Default.String, r.Default.Valid),
	}
	if identity {
		c.Identity = true
		c.Null = false
	}
	return c
}

// index groups the rows of one index.
type index struct {
	Name    string
	Unique  bool
	Origin  string
	Columns []string
}

const identPattern = `"(?:[^"]|"")+"|\w+`

var fkConstraintRe = regexp.MustCompile(`(?i)CONSTRAINT\s+(` + identPattern + `)\s+FOREIGN\s+KEY\s*\(([^)]*)\)` +
	`\s*REFERENCES\s+(` + identPattern + `)\s*(?:\(([^)]*)\))?`)

// declaredForeignKey is a named FOREIGN KEY clause of a CREATE TABLE statement.
type declaredForeignKey struct {
	Name              string
	Columns           []string
	ReferencedTable   string
	ReferencedColumns []string
}

// matches reports whether the clause declares fk. Referenced columns are compared only
// when both sides list them.
func (d declaredForeignKey) matches(fk *schemaforge.ForeignKeyInfo) bool {
	if columnsKey(d.Columns) != columnsKey(fk.Columns) || !strings.EqualFold(d.ReferencedTable, fk.ReferencedTable) {
		return false
	}
	if len(d.ReferencedColumns) == 0 || fk.ReferencedColumns[0] == "" {
		return true
	}
	return columnsKey(d.ReferencedColumns) == columnsKey(fk.ReferencedColumns)
}

func splitIdents(list string) []string {
	var out []string
	for _, c := range strings.Split(list, ",") {
		if c = strings.TrimSpace(c); c != "" {
			out = append(out, unquote(c))
		}
	}
	return out
}

// constraintNames lists the named foreign key clauses of a CREATE TABLE statement in
// declaration order. SQLite keeps the names only in the statement text.
func constraintNames(createSQL string) []declaredForeignKey {
	var out []declaredForeignKey
	for _, m := range fkConstraintRe.FindAllStringSubmatch(createSQL, -1) {
		out = append(out, declaredForeignKey{
			Name:              unquote(m[1]),
			Columns:           splitIdents(m[2]),
			ReferencedTable:   unquote(m[3]),
			ReferencedColumns: splitIdents(m[4]),
		})
	}
	return out
}

func unquote(s string) string {
	if len(s) >= 2 && s[0] == '"' && s[len(s)-1] == '"' {
		return strings.ReplaceAll(s[1:len(s)-1], `""`, `"`)
	}
	return s
}

func columnsKey(cols []string) string {
	return strings.ToLower(strings.Join(cols, ","))
}

func (a *Adapter) HasTable(ctx context.Context, table string) (bool, error) {
	s, err := a.conn("has table")
	if err != nil {
		return false, err
	}
	return s.Exists(ctx, hasTableQuery, table)
}

func (a *Adapter) HasColumn(ctx context.Context, table, column string) (bool, error) {
	rows, err := a.columnRows(ctx, table)
	if err != nil {
		return false, err
	}
	for _, r := range rows {
		if strings.EqualFold(r.Name, column) {
			return true, nil
		}
	}
	return false, nil
}

func (a *Adapter) columnRows(ctx context.Context, table string) ([]columnRow, error) {
	s, err := a.conn("get columns")
	if err != nil {
		return nil, err
	}
	var rows []columnRow
	if err := s.Select(ctx, &rows, columnsQuery, table); err != nil {
		return nil, err
	}
	return rows, nil
}

// identityColumn returns the name of the rowid alias column, if the table has one.
func identityColumn(rows []columnRow) string {
	var key []columnRow
	for _, r := range rows {
		if r.PK > 0 {
			key = append(key, r)
		}
	}
	if len(key) == 1 && strings.EqualFold(key[0].Type, "integer") {
		return key[0].Name
	}
	return ""
}

func primaryKey(rows []columnRow) []string {
	var key []columnRow
	for _, r := range rows {
		if r.PK > 0 {
			key = append(key, r)
		}
	}
	names := make([]string, len(key))
	for _, r := range key {
		names[r.PK-1] = r.Name
	}
	return names
}

func (a *Adapter) GetColumns(ctx context.Context, table string) ([]*schemaforge.Column, error) {
	rows, err := a.columnRows(ctx, table)
	if err != nil {
		return nil, err
	}
	id := identityColumn(rows)
	columns := make([]*schemaforge.Column, 0, len(rows))
	for _, r := range rows {
		columns = append(columns, r.column(r.Name == id))
	}
	return columns, nil
}

func (a *Adapter) indexes(ctx context.Context, table string) ([]index, error) {
	s, err := a.conn("list indexes")
	if err != nil {
		return nil, err
	}
	var rows []indexRow
	if err := s.Select(ctx, &rows, indexesQuery, table); err != nil {
		return nil, err
	}
	var out []index
	for _, r := range rows {
		if len(out) == 0 || out[len(out)-1].Name != r.IndexName {
			out = append(out, index{Name: r.IndexName, Unique: r.Unique, Origin: r.Origin})
		}
		if r.ColumnName.Valid {
			last := &out[len(out)-1]
			last.Columns = append(last.Columns, r.ColumnName.String)
		}
	}
	return out, nil
}

func (a *Adapter) HasIndex(ctx context.Context, table string, columns []string) (bool, error) {
	idx, err := a.indexes(ctx, table)
	if err != nil {
		return false, err
	}
	for _, i := range idx {
		if ddl.ColumnsCover(i.Columns, columns) {
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

func (a *Adapter) createSQL(ctx context.Context, table string) (string, error) {
	s, err := a.conn("get table definition")
	if err != nil {
		return "", err
	}
	var stmt sql.NullString
	err = s.Get(ctx, &stmt, tableSQLQuery, table)
	if errors.Is(err, sql.ErrNoRows) {
		return "", nil
	}
	return stmt.String, err
}

// GetForeignKeys lists the table's foreign keys. Names come from the CONSTRAINT clauses of
// the table definition, matched on local columns, referenced table and referenced columns;
// unnamed constraints get the <table>_<cols> name. Every live constraint has an entry.
func (a *Adapter) GetForeignKeys(ctx context.Context, table string) (map[string]schemaforge.ForeignKeyInfo, error) {
	s, err := a.conn("get foreign keys")
	if err != nil {
		return nil, err
	}
	var rows []foreignKeyRow
	if err := s.Select(ctx, &rows, foreignKeysQuery, table); err != nil {
		return nil, err
	}
	createSQL, err := a.createSQL(ctx, table)
	if err != nil {
		return nil, err
	}
	declared := constraintNames(createSQL)

	byID := make(map[int]*schemaforge.ForeignKeyInfo)
	var order []int
	for _, r := range rows {
		fk, ok := byID[r.ID]
		if !ok {
			fk = &schemaforge.ForeignKeyInfo{
				ReferencedTable: r.ReferencedTable,
				OnDelete:        schemaforge.Action(r.OnDelete),
				OnUpdate:        schemaforge.Action(r.OnUpdate),
			}
			byID[r.ID] = fk
			order = append(order, r.ID)
		}
		fk.Columns = append(fk.Columns, r.Column)
		fk.ReferencedColumns = append(fk.ReferencedColumns, r.ReferencedColumn.String)
	}

	out := make(map[string]schemaforge.ForeignKeyInfo, len(order))
	used := make([]bool, len(declared))
	var unnamed []*schemaforge.ForeignKeyInfo
	for _, id := range order {
		fk := byID[id]
		for i, d := range declared {
			if !used[i] && d.matches(fk) {
				used[i] = true
				fk.Name = d.Name
				break
			}
		}
		if fk.Name == "" || hasKey(out, fk.Name) {
			unnamed = append(unnamed, fk)
			continue
		}
		out[fk.Name] = *fk
	}
	// constraints without a usable name get <table>_<cols>, made unique by the referenced
	// table and then a counter when several share a column set
	for _, fk := range unnamed {
		base := schemaforge.ForeignKeyName(table, fk.Columns)
		name := base
		if hasKey(out, name) {
			name = base + "_" + fk.ReferencedTable
		}
		for n := 2; hasKey(out, name); n++ {
			name = fmt.Sprintf("%s_%s_%d", base, fk.ReferencedTable, n)
		}
		fk.Name = name
		out[name] = *fk
	}
	return out, nil
}

func hasKey(m map[string]schemaforge.ForeignKeyInfo, key string) bool {
	_, ok := m[key]
	return ok
}
