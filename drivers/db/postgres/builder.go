package postgres

import (
	"fmt"
	"strings"

	"github.com/burugo/schemaforge"
	"github.com/burugo/schemaforge/internal/ddl"
)

// Dialector quotes identifiers and binds parameters for PostgreSQL.
type Dialector struct{}

func (Dialector) Quote(identifier string) string {
	return ddl.QuoteIdentifier(identifier, '"')
}

func (Dialector) Placeholder(index int) string {
	return fmt.Sprintf("$%d", index)
}

// builder renders DDL for tables living in one schema. It never touches the database.
type builder struct {
	schema string
	d      Dialector
}

func newBuilder(schema string) builder {
	return builder{schema: schema}
}

// table returns the schema-qualified, quoted table name.
func (b builder) table(name string) string {
	return b.d.Quote(b.schema) + "." + b.d.Quote(name)
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
	return def + ddl.RenderDefault(c, ddl.StandardBools), nil
}

// createTable renders the CREATE TABLE statement followed by one CREATE INDEX per index.
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
		parts = append(parts, b.foreignKeyClause(t.Name(), fk))
	}
	stmts := []string{fmt.Sprintf("CREATE TABLE %s (%s)", b.table(t.Name()), strings.Join(parts, ", "))}
	for _, idx := range t.Indexes() {
		stmts = append(stmts, b.addIndex(t.Name(), idx))
	}
	return stmts, nil
}

// foreignKeyClause qualifies the referenced table with the builder's schema.
func (b builder) foreignKeyClause(table string, fk *schemaforge.ForeignKey) string {
	clause := ddl.ForeignKeyClause(b.d, table, fk)
	return strings.Replace(clause, " REFERENCES "+b.d.Quote(fk.ReferencedTable)+" ",
		" REFERENCES "+b.table(fk.ReferencedTable)+" ", 1)
}

func (b builder) renameTable(table, newName string) string {
	return fmt.Sprintf("ALTER TABLE %s RENAME TO %s", b.table(table), b.d.Quote(newName))
}

func (b builder) dropTable(table string) string {
	return "DROP TABLE " + b.table(table)
}

// addColumn ignores c.After: PostgreSQL always appends.
func (b builder) addColumn(table string, c *schemaforge.Column) (string, error) {
	def, err := b.columnDefinition(c)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("ALTER TABLE %s ADD COLUMN %s", b.table(table), def), nil
}

func (b builder) renameColumn(table, column, newName string) string {
	return fmt.Sprintf("ALTER TABLE %s RENAME COLUMN %s TO %s", b.table(table), b.d.Quote(column), b.d.Quote(newName))
}

// changeColumn renders one ALTER carrying the type, nullability and default actions, plus a
// rename when the new definition carries a different name.
func (b builder) changeColumn(table, column string, c *schemaforge.Column) ([]string, error) {
	nt, err := columnType(c)
	if err != nil {
		return nil, err
	}
	nt = alterType(nt)
	col := b.d.Quote(column)
	actions := []string{
		fmt.Sprintf("ALTER COLUMN %s TYPE %s USING %s::%s", col, nt.String(), col, nt.String()),
	}
	if c.IsNull() {
		actions = append(actions, fmt.Sprintf("ALTER COLUMN %s DROP NOT NULL", col))
	} else {
		actions = append(actions, fmt.Sprintf("ALTER COLUMN %s SET NOT NULL", col))
	}
	if !c.Identity {
		if c.Default == nil {
			actions = append(actions, fmt.Sprintf("ALTER COLUMN %s DROP DEFAULT", col))
		} else {
			actions = append(actions, fmt.Sprintf("ALTER COLUMN %s SET DEFAULT %s", col,
				ddl.DefaultValue(c.Type, c.Default, ddl.StandardBools)))
		}
	}
	stmts := []string{fmt.Sprintf("ALTER TABLE %s %s", b.table(table), strings.Join(actions, ", "))}
	if c.Name != "" && c.Name != column {
		stmts = append(stmts, b.renameColumn(table, column, c.Name))
	}
	return stmts, nil
}

func (b builder) dropColumn(table, column string) string {
	return fmt.Sprintf("ALTER TABLE %s DROP COLUMN %s", b.table(table), b.d.Quote(column))
}

func (b builder) addIndex(table string, idx *schemaforge.Index) string {
	unique := ""
	if idx.Unique {
		unique = "UNIQUE "
	}
	return fmt.Sprintf("CREATE %sINDEX %s ON %s (%s)",
		unique, b.d.Quote(idx.NameFor(table)), b.table(table), ddl.QuoteList(b.d, idx.Columns))
}

func (b builder) dropIndex(name string) string {
	return "DROP INDEX " + b.table(name)
}

func (b builder) addForeignKey(table string, fk *schemaforge.ForeignKey) (string, error) {
	if err := fk.Validate(table); err != nil {
		return "", err
	}
	return fmt.Sprintf("ALTER TABLE %s ADD %s", b.table(table), b.foreignKeyClause(table, fk)), nil
}

func (b builder) dropConstraint(table, name string) string {
	return fmt.Sprintf("ALTER TABLE %s DROP CONSTRAINT %s", b.table(table), b.d.Quote(name))
}
