package schemaforge

import (
	"fmt"
	"strings"

	"github.com/burugo/schemaforge/common"
)

// Action is a referential action for ON DELETE / ON UPDATE.
type Action string

const (
	NoAction   Action = "NO ACTION"
	Restrict   Action = "RESTRICT"
	Cascade    Action = "CASCADE"
	SetNull    Action = "SET NULL"
	SetDefault Action = "SET DEFAULT"
)

// ForeignKey references ReferencedColumns of ReferencedTable from Columns.
// Constraint overrides the generated <table>_<col1>_<col2> name.
type ForeignKey struct {
	Columns           []string
	ReferencedTable   string
	ReferencedColumns []string
	OnDelete          Action
	OnUpdate          Action
	Constraint        string
}

// ForeignKeyOption customizes a ForeignKey.
type ForeignKeyOption func(*ForeignKey)

func OnDelete(a Action) ForeignKeyOption {
	return func(fk *ForeignKey) { fk.OnDelete = a }
}

func OnUpdate(a Action) ForeignKeyOption {
	return func(fk *ForeignKey) { fk.OnUpdate = a }
}

func ConstraintName(name string) ForeignKeyOption {
	return func(fk *ForeignKey) { fk.Constraint = name }
}

// NewForeignKey builds a foreign key. Validate reports column count mismatches.
func NewForeignKey(columns []string, refTable string, refColumns []string, opts ...ForeignKeyOption) *ForeignKey {
	fk := &ForeignKey{
		Columns:           append([]string(nil), columns...),
		ReferencedTable:   refTable,
		ReferencedColumns: append([]string(nil), refColumns...),
	}
	for _, opt := range opts {
		opt(fk)
	}
	return fk
}

// Validate checks that the foreign key can be rendered for table.
func (fk *ForeignKey) Validate(table string) error {
	switch {
	case len(fk.Columns) == 0:
		return &common.InvalidForeignKeyError{Table: table, Reason: "no local columns"}
	case fk.ReferencedTable == "":
		return &common.InvalidForeignKeyError{Table: table, Reason: "no referenced table"}
	case len(fk.Columns) != len(fk.ReferencedColumns):
		return &common.InvalidForeignKeyError{
			Table:  table,
			Reason: fmt.Sprintf("%d local columns but %d referenced columns", len(fk.Columns), len(fk.ReferencedColumns)),
		}
	}
	return nil
}

// NameFor returns the explicit constraint name or <table>_<col1>_<col2>...
func (fk *ForeignKey) NameFor(table string) string {
	if fk.Constraint != "" {
		return fk.Constraint
	}
	return ForeignKeyName(table, fk.Columns)
}

// ForeignKeyName is the deterministic constraint name for columns of table.
func ForeignKeyName(table string, columns []string) string {
	return table + "_" + strings.Join(columns, "_")
}

// ForeignKeyInfo is a foreign key as read back from the live database.
type ForeignKeyInfo struct {
	Name              string
	Columns           []string
	ReferencedTable   string
	ReferencedColumns []string
	OnDelete          Action
	OnUpdate          Action
}
