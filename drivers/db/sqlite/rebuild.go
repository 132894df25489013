package sqlite

import (
	"context"
	"fmt"
	"regexp"
	"sort"
	"strings"

	"github.com/burugo/schemaforge"
	"github.com/burugo/schemaforge/common"
	"github.com/burugo/schemaforge/internal/ddl"
)

const rebuildSuffix = "__rebuild"

// uncarriedRe finds table definition clauses a rebuild cannot reproduce from the pragma
// listings: CHECK constraints, AUTOINCREMENT and generated columns.
var uncarriedRe = regexp.MustCompile(`(?i)\bCHECK\s*\(|\bAUTOINCREMENT\b|\bGENERATED\s+ALWAYS\b|\bAS\s*\(`)

// rebuildColumn is one column of a table being rebuilt. from is the column the rows are
// copied out of; an empty from leaves the new column to its default.
type rebuildColumn struct {
	def  string
	from string
	to   string
}

// tableShape is the editable form of a live table.
type tableShape struct {
	table   string
	columns []rebuildColumn
	pk      []string
	fks     []*schemaforge.ForeignKey
	renames map[string]string
}

func (t *tableShape) find(column string) int {
	for i, c := range t.columns {
		if strings.EqualFold(c.to, column) {
			return i
		}
	}
	return -1
}

// rename records that column is now called newName everywhere the table refers to it.
func (t *tableShape) rename(column, newName string) {
	if strings.EqualFold(column, newName) {
		return
	}
	t.renames[strings.ToLower(column)] = newName
	t.pk = renameAll(t.pk, column, newName)
	for _, fk := range t.fks {
		fk.Columns = renameAll(fk.Columns, column, newName)
	}
}

func renameAll(cols []string, column, newName string) []string {
	out := make([]string, len(cols))
	for i, c := range cols {
		if strings.EqualFold(c, column) {
			c = newName
		}
		out[i] = c
	}
	return out
}

func (a *Adapter) shape(ctx context.Context, table string) (*tableShape, []index, error) {
	rows, err := a.columnRows(ctx, table)
	if err != nil {
		return nil, nil, err
	}
	if len(rows) == 0 {
		return nil, nil, fmt.Errorf("rebuild %s: table does not exist", table)
	}
	createSQL, err := a.createSQL(ctx, table)
	if err != nil {
		return nil, nil, err
	}
	if m := uncarriedRe.FindString(createSQL); m != "" {
		return nil, nil, fmt.Errorf("rebuild %s: definition uses %q, which a rebuild would drop: %w",
			table, strings.TrimSpace(strings.TrimSuffix(m, "(")), common.ErrUnsupportedOperation)
	}
	infos, err := a.GetForeignKeys(ctx, table)
	if err != nil {
		return nil, nil, err
	}
	idx, err := a.indexes(ctx, table)
	if err != nil {
		return nil, nil, err
	}

	t := &tableShape{table: table, pk: primaryKey(rows), renames: make(map[string]string)}
	for _, r := range rows {
		t.columns = append(t.columns, rebuildColumn{def: r.definition(Dialector{}), from: r.Name, to: r.Name})
	}
	names := make([]string, 0, len(infos))
	for name := range infos {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		info := infos[name]
		fk := schemaforge.NewForeignKey(info.Columns, info.ReferencedTable, info.ReferencedColumns,
			schemaforge.ConstraintName(name))
		if info.OnDelete != schemaforge.NoAction {
			fk.OnDelete = info.OnDelete
		}
		if info.OnUpdate != schemaforge.NoAction {
			fk.OnUpdate = info.OnUpdate
		}
		t.fks = append(t.fks, fk)
	}

	var kept []index
	for _, i := range idx {
		switch i.Origin {
		case "c":
			kept = append(kept, i)
		case "u":
			// inline UNIQUE is not part of the rendered columns, so it comes back as a
			// unique index; sqlite_autoindex_ names are reserved
			i.Name = ""
			kept = append(kept, i)
		}
	}
	return t, kept, nil
}

// rebuild applies edit to the live definition of table and swaps the table for a new one
// built from the result: create <table>__rebuild, copy the rows, drop, rename, re-create
// indexes. Inline UNIQUE constraints become unique indexes. A table whose definition holds
// clauses the rebuild cannot reproduce is refused with ErrUnsupportedOperation. It joins
// the open transaction or runs in its own.
func (a *Adapter) rebuild(ctx context.Context, table string, edit func(*tableShape) error) error {
	s, err := a.conn("rebuild table")
	if err != nil {
		return err
	}
	t, idx, err := a.shape(ctx, table)
	if err != nil {
		return err
	}
	if err := edit(t); err != nil {
		return err
	}

	tmp := table + rebuildSuffix
	defs := make([]string, 0, len(t.columns))
	var from, to []string
	for _, c := range t.columns {
		defs = append(defs, c.def)
		if c.from != "" {
			from = append(from, c.from)
			to = append(to, c.to)
		}
	}
	create, err := a.b.tableSQL(tmp, table, defs, t.pk, t.fks)
	if err != nil {
		return err
	}
	stmts := []string{
		create,
		a.b.copyRows(table, tmp, from, to),
		a.b.dropTable(table),
		a.b.renameTable(tmp, table),
	}
	for _, i := range idx {
		cols := make([]string, len(i.Columns))
		for n, c := range i.Columns {
			if renamed, ok := t.renames[strings.ToLower(c)]; ok {
				c = renamed
			}
			cols[n] = c
		}
		stmts = append(stmts, ddl.CreateIndexSQL(a.b.d, table, &schemaforge.Index{Columns: cols, Unique: i.Unique, Name: i.Name}))
	}

	a.logf("rebuilding table %s", table)
	if s.InTransaction() {
		return a.execAll(ctx, "rebuild table", stmts...)
	}
	if err := s.Begin(ctx); err != nil {
		return err
	}
	if err := a.execAll(ctx, "rebuild table", stmts...); err != nil {
		if rbErr := s.Rollback(); rbErr != nil {
			a.logf("rollback after failed rebuild of %s: %v", table, rbErr)
		}
		return err
	}
	return s.Commit()
}
