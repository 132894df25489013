package mysql

import (
	"fmt"
	"strings"

	"github.com/burugo/schemaforge"
	"github.com/burugo/schemaforge/internal/ddl"
)

// Dialector quotes identifiers with backticks and binds with "?".
type Dialector struct{}

func (Dialector) Quote(identifier string) string {
	return ddl.QuoteIdentifier(identifier, '`')
}

func (Dialector) Placeholder(int) string {
	return "?"
}

// builder renders MySQL DDL. charset is appended to CREATE TABLE.
type builder struct {
	charset string
	d       Dialector
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
	def += ddl.RenderDefault(c, ddl.NumericBools)
	if c.Identity {
		def += " AUTO_INCREMENT"
	}
	return def, nil
}

func (b builder) createTable(t *schemaforge.Table) ([]string, error) {
	cols, pk := ddl.ResolveColumns(t)
	parts := make([]string, 0, len(cols)+len(t.ForeignKeys())+1)
	for _, c := range cols {
		def, err := b.columnDefinition(c)
		if err != nil {
			return nil, err
		}
		parts = append(parts, def)
	}
	if len(pk) > 0 {
		parts = append(parts, fmt.Sprintf("CONSTRAINT %s PRIMARY KEY (%s)",
			b.d.Quote(ddl.PrimaryKeyName(t.Name())), ddl.QuoteList(b.d, pk)))
	}
	for _, fk := range t.ForeignKeys() {
		if err := fk.Validate(t.Name()); err != nil {
			return nil, err
		}
		parts = append(parts, ddl.ForeignKeyClause(b.d, t.Name(), fk))
	}
	stmts := []string{fmt.Sprintf("CREATE TABLE %s (%s) ENGINE = InnoDB DEFAULT CHARSET = %s",
		b.d.Quote(t.Name()), strings.Join(parts, ", "), b.charset)}
	for _, idx := range t.Indexes() {
		stmts = append(stmts, ddl.CreateIndexSQL(b.d, t.Name(), idx))
	}
	return stmts, nil
}

func (b builder) renameTable(table, newName string) string {
	return fmt.Sprintf("RENAME TABLE %s TO %s", b.d.Quote(table), b.d.Quote(newName))
}

func (b builder) dropTable(table string) string {
	return "DROP TABLE " + b.d.Quote(table)
}

func (b builder) addColumn(table string, c *schemaforge.Column) (string, error) {
	def, err := b.columnDefinition(c)
	if err != nil {
		return "", err
	}
	stmt := fmt.Sprintf("ALTER TABLE %s ADD COLUMN %s", b.d.Quote(table), def)
	if c.After != "" {
		stmt += " AFTER " + b.d.Quote(c.After)
	}
	return stmt, nil
}

// changeColumn renders CHANGE, which also renames when newColumn.Name differs.
func (b builder) changeColumn(table, column string, c *schemaforge.Column) (string, error) {
	target := *c
	if target.Name == "" {
		target.Name = column
	}
	def, err := b.columnDefinition(&target)
	if err != nil {
		return "", err
	}
	stmt := fmt.Sprintf("ALTER TABLE %s CHANGE %s %s", b.d.Quote(table), b.d.Quote(column), def)
	if c.After != "" {
		stmt += " AFTER " + b.d.Quote(c.After)
	}
	return stmt, nil
}

// renameColumn re-declares the live definition under the new name; CHANGE needs the full
// column definition.
func (b builder) renameColumn(table, column, newName string, live columnRow) string {
	return fmt.Sprintf("ALTER TABLE %s CHANGE %s %s %s",
		b.d.Quote(table), b.d.Quote(column), b.d.Quote(newName), live.definition())
}

func (b builder) dropColumn(table, column string) string {
	return fmt.Sprintf("ALTER TABLE %s DROP COLUMN %s", b.d.Quote(table), b.d.Quote(column))
}

func (b builder) dropIndex(table, name string) string {
	return fmt.Sprintf("DROP INDEX %s ON %s", b.d.Quote(name), b.d.Quote(table))
}

func (b builder) addForeignKey(table string, fk *schemaforge.ForeignKey) (string, error) {
	if err := fk.Validate(table); err != nil {
		return "", err
	}
	return fmt.Sprintf("ALTER TABLE %s ADD %s", b.d.Quote(table), ddl.ForeignKeyClause(b.d, table, fk)), nil
}

func (b builder) dropForeignKey(table, name string) string {
	return fmt.Sprintf("ALTER TABLE %s DROP FOREIGN KEY %s", b.d.Quote(table), b.d.Quote(name))
}
