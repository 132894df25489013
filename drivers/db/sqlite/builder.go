package sqlite

import (
	"fmt"
	"strings"

	"github.com/burugo/schemaforge"
	"github.com/burugo/schemaforge/internal/ddl"
)

// Dialector quotes identifiers with double quotes and binds with "?".
type Dialector struct{}

func (Dialector) Quote(identifier string) string {
	return ddl.QuoteIdentifier(identifier, '"')
}

func (Dialector) Placeholder(int) string {
	return "?"
}

type builder struct {
	d Dialector
}

func (b builder) columnDefinition(c *schemaforge.Column) (string, error) {
	nt, err := columnType(c)
	if err != nil {
		return "", err
	}
	def := b.d.Quote(c.Name) + " " + nt.String()
	if c.IsNull() {
		def += " NULL"
	} else {
		def += " NOT NULL"
	}
	return def + ddl.RenderDefault(c, ddl.NumericBools), nil
}

// tableSQL renders CREATE TABLE name from already rendered column definitions. Foreign key
// names derive from owner, the table the constraints belong to once the statement settles.
func (b builder) tableSQL(name, owner string, defs, pk []string, fks []*schemaforge.ForeignKey) (string, error) {
	parts := append([]string(nil), defs...)
	if len(pk) > 0 {
		parts = append(parts, fmt.Sprintf("CONSTRAINT %s PRIMARY KEY (%s)",
			b.d.Quote(ddl.PrimaryKeyName(owner)), ddl.QuoteList(b.d, pk)))
	}
	for _, fk := range fks {
		if err := fk.Validate(owner); err != nil {
			return "", err
		}
		parts = append(parts, ddl.ForeignKeyClause(b.d, owner, fk))
	}
	return fmt.Sprintf("CREATE TABLE %s (%s)", b.d.Quote(name), strings.Join(parts, ", ")), nil
}

func (b builder) createTable(t *schemaforge.Table) ([]string, error) {
	cols, pk := ddl.ResolveColumns(t)
	defs := make([]string, 0, len(cols))
	for _, c := range cols {
		def, err := b.columnDefinition(c)
		if err != nil {
			return nil, err
		}
		defs = append(defs, def)
	}
	stmt, err := b.tableSQL(t.Name(), t.Name(), defs, pk, t.ForeignKeys())
	if err != nil {
		return nil, err
	}
	stmts := []string{stmt}
	for _, idx := range t.Indexes() {
		stmts = append(stmts, ddl.CreateIndexSQL(b.d, t.Name(), idx))
	}
	return stmts, nil
}

func (b builder) renameTable(table, newName string) string {
	return fmt.Sprintf("ALTER TABLE %s RENAME TO %s", b.d.Quote(table), b.d.Quote(newName))
}

func (b builder) dropTable(table string) string {
	return "DROP TABLE " + b.d.Quote(table)
}

func (b builder) addColumn(table string, c *schemaforge.Column) (string, error) {
	def, err := b.columnDefinition(c)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("ALTER TABLE %s ADD COLUMN %s", b.d.Quote(table), def), nil
}

func (b builder) renameColumn(table, column, newName string) string {
	return fmt.Sprintf("ALTER TABLE %s RENAME COLUMN %s TO %s",
		b.d.Quote(table), b.d.Quote(column), b.d.Quote(newName))
}

func (b builder) dropColumn(table, column string) string {
	return fmt.Sprintf("ALTER TABLE %s DROP COLUMN %s", b.d.Quote(table), b.d.Quote(column))
}

func (b builder) dropIndex(name string) string {
	return "DROP INDEX " + b.d.Quote(name)
}

// copyRows renders the INSERT ... SELECT that moves rows into a rebuilt table.
func (b builder) copyRows(from, to string, fromCols, toCols []string) string {
	return fmt.Sprintf("INSERT INTO %s (%s) SELECT %s FROM %s",
		b.d.Quote(to), ddl.QuoteList(b.d, toCols), ddl.QuoteList(b.d, fromCols), b.d.Quote(from))
}
