// Package ddl holds the dialect-independent pieces of statement synthesis and
// introspection shared by the engine adapters: identifier quoting, default rendering,
// primary key resolution and column-set comparison.
//
// Nothing here talks to a database. Every identifier an adapter renders goes through
// the adapter's Dialector.Quote, which is built on QuoteIdentifier.
package ddl

import (
	"fmt"
	"math/big"
	"reflect"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/burugo/schemaforge"
)

// QuoteIdentifier wraps name in quote, doubling any quote character inside it.
func QuoteIdentifier(name string, quote byte) string {
	q := string(quote)
	return q + strings.ReplaceAll(name, q, q+q) + q
}

// QuoteList quotes each name and joins them with ", ".
func QuoteList(d schemaforge.Dialector, names []string) string {
	quoted := make([]string, len(names))
	for i, n := range names {
		quoted[i] = d.Quote(n)
	}
	return strings.Join(quoted, ", ")
}

// QuoteString renders s as a single-quoted SQL string literal.
func QuoteString(s string) string {
	return "'" + strings.ReplaceAll(s, "'", "''") + "'"
}

// BoolLiterals is how an engine spells boolean defaults.
type BoolLiterals struct {
	True, False string
}

var (
	StandardBools = BoolLiterals{True: "TRUE", False: "FALSE"}
	NumericBools  = BoolLiterals{True: "1", False: "0"}
)

// RenderDefault returns the " DEFAULT ..." suffix for c, or "" when c has no default.
// Numeric values (and numeric strings on numeric columns) are unquoted, everything else is
// quoted. schemaforge.Null renders NULL and schemaforge.Literal is emitted verbatim.
func RenderDefault(c *schemaforge.Column, bools BoolLiterals) string {
	if c.Default == nil {
		return ""
	}
	return " DEFAULT " + DefaultValue(c.Type, c.Default, bools)
}

// DefaultValue renders a default value for a column of type t.
func DefaultValue(t schemaforge.PortableType, v any, bools BoolLiterals) string {
	switch val := v.(type) {
	case schemaforge.Literal:
		return string(val)
	case bool:
		if val {
			return bools.True
		}
		return bools.False
	case string:
		if t.Numeric() && isNumber(val) {
			return val
		}
		return QuoteString(val)
	case time.Time:
		return QuoteString(val.Format("2006-01-02 15:04:05"))
	case fmt.Stringer:
		return QuoteString(val.String())
	}
	if v == schemaforge.Null {
		return "NULL"
	}
	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return strconv.FormatInt(rv.Int(), 10)
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		return strconv.FormatUint(rv.Uint(), 10)
	case reflect.Float32, reflect.Float64:
		return strconv.FormatFloat(rv.Float(), 'f', -1, 64)
	}
	return QuoteString(fmt.Sprint(v))
}

func isNumber(s string) bool {
	s = strings.TrimSpace(s)
	if s == "" {
		return false
	}
	_, ok := new(big.Float).SetString(s)
	return ok
}

// ResolveColumns returns the columns to render for a new table, with the implicit identity
// column prepended according to the table options, and the primary key column names.
func ResolveColumns(t *schemaforge.Table) ([]*schemaforge.Column, []string) {
	opts := t.Options()
	pending := t.PendingColumns()
	cols := make([]*schemaforge.Column, 0, len(pending)+1)

	switch {
	case opts.NoID:
		cols = append(cols, pending...)
		pk := append([]string(nil), opts.PrimaryKey...)
		if len(pk) == 0 {
			for _, c := range pending {
				if c.Type == schemaforge.PrimaryKey {
					pk = append(pk, c.Name)
				}
			}
		}
		return cols, pk
	case opts.IDColumn != "":
		cols = append(cols, schemaforge.NewColumn(opts.IDColumn, schemaforge.Integer, schemaforge.Identity()))
		cols = append(cols, pending...)
		return cols, []string{opts.IDColumn}
	default:
		name := t.Name() + "_id"
		cols = append(cols, schemaforge.NewColumn(name, schemaforge.PrimaryKey, schemaforge.Identity()))
		cols = append(cols, pending...)
		return cols, []string{name}
	}
}

// PrimaryKeyName is the constraint name used for a table's primary key.
func PrimaryKeyName(table string) string {
	return table + "_pkey"
}

// ForeignKeyClause renders "CONSTRAINT name FOREIGN KEY (...) REFERENCES t (...) [ON ...]".
func ForeignKeyClause(d schemaforge.Dialector, table string, fk *schemaforge.ForeignKey) string {
	var sb strings.Builder
	sb.WriteString("CONSTRAINT ")
	sb.WriteString(d.Quote(fk.NameFor(table)))
	sb.WriteString(" FOREIGN KEY (")
	sb.WriteString(QuoteList(d, fk.Columns))
	sb.WriteString(") REFERENCES ")
	sb.WriteString(d.Quote(fk.ReferencedTable))
	sb.WriteString(" (")
	sb.WriteString(QuoteList(d, fk.ReferencedColumns))
	sb.WriteString(")")
	if fk.OnDelete != "" {
		sb.WriteString(" ON DELETE ")
		sb.WriteString(string(fk.OnDelete))
	}
	if fk.OnUpdate != "" {
		sb.WriteString(" ON UPDATE ")
		sb.WriteString(string(fk.OnUpdate))
	}
	return sb.String()
}

// CreateIndexSQL renders CREATE [UNIQUE] INDEX with the columns in the order supplied.
func CreateIndexSQL(d schemaforge.Dialector, table string, idx *schemaforge.Index) string {
	unique := ""
	if idx.Unique {
		unique = "UNIQUE "
	}
	return fmt.Sprintf("CREATE %sINDEX %s ON %s (%s)",
		unique, d.Quote(idx.NameFor(table)), d.Quote(table), QuoteList(d, idx.Columns))
}

// ColumnsCover reports whether every column in want appears in have, case-insensitively.
func ColumnsCover(have, want []string) bool {
	set := lowerSet(have)
	for _, w := range want {
		if !set[strings.ToLower(w)] {
			return false
		}
	}
	return true
}

// SameColumns reports whether a and b hold the same column set, case-insensitively.
func SameColumns(a, b []string) bool {
	sa, sb := lowerSet(a), lowerSet(b)
	if len(sa) != len(sb) {
		return false
	}
	for k := range sa {
		if !sb[k] {
			return false
		}
	}
	return true
}

func lowerSet(cols []string) map[string]bool {
	set := make(map[string]bool, len(cols))
	for _, c := range cols {
		set[strings.ToLower(c)] = true
	}
	return set
}

// MatchingForeignKeys returns the sorted names of constraints whose columns equal columns.
func MatchingForeignKeys(fks map[string]schemaforge.ForeignKeyInfo, columns []string) []string {
	var names []string
	for name, fk := range fks {
		if SameColumns(fk.Columns, columns) {
			names = append(names, name)
		}
	}
	sort.Strings(names)
	return names
}

// ForeignKeyExists implements the HasForeignKey rule shared by every engine: by name when a
// constraint is given, otherwise any constraint whose columns cover the requested ones.
func ForeignKeyExists(fks map[string]schemaforge.ForeignKeyInfo, columns []string, constraint string) bool {
	if constraint != "" {
		_, ok := fks[constraint]
		return ok
	}
	for _, fk := range fks {
		if ColumnsCover(fk.Columns, columns) {
			return true
		}
	}
	return false
}
