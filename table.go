package schemaforge

import (
	"context"
	"errors"
	"fmt"
)

// TableOptions controls primary key synthesis when a table is created.
//
//   - NoID false and IDColumn empty: a leading "<table>_id" primary_key identity column.
//   - IDColumn set: a leading integer identity column with that name.
//   - NoID true: no implicit column; PrimaryKey may name explicit key columns.
type TableOptions struct {
	NoID       bool
	IDColumn   string
	PrimaryKey []string
}

// TableOption customizes TableOptions.
type TableOption func(*TableOptions)

// WithoutID disables the implicit identity column.
func WithoutID() TableOption {
	return func(o *TableOptions) { o.NoID = true }
}

// WithIDColumn names the implicit identity column; its type is integer.
func WithIDColumn(name string) TableOption {
	return func(o *TableOptions) { o.IDColumn = name }
}

// WithPrimaryKey declares explicit primary key columns.
func WithPrimaryKey(columns ...string) TableOption {
	return func(o *TableOptions) { o.PrimaryKey = append([]string(nil), columns...) }
}

// Table accumulates pending columns, indexes and foreign keys until it is materialized
// with Create, Update or Save. The pending set is cleared after a successful materialization.
type Table struct {
	name        string
	options     TableOptions
	adapter     Adapter
	columns     []*Column
	indexes     []*Index
	foreignKeys []*ForeignKey
}

// NewTable returns a table bound to adapter. adapter may be nil when the table is only
// handed to an adapter directly (Adapter.CreateTable).
func NewTable(name string, adapter Adapter, opts ...TableOption) *Table {
	t := &Table{name: name, adapter: adapter}
	for _, opt := range opts {
		opt(&t.options)
	}
	return t
}

func (t *Table) Name() string { return t.name }
func (t *Table) Options() TableOptions { return t.options }
func (t *Table) PendingColumns() []*Column { return t.columns }
func (t *Table) Indexes() []*Index { return t.indexes }
func (t *Table) ForeignKeys() []*ForeignKey { return t.foreignKeys }
func (t *Table) SetName(name string) { t.name = name }
func (t *Table) SetOptions(opts TableOptions) { t.options = opts }

// AddColumn queues a column.
func (t *Table) AddColumn(name string, typ PortableType, opts ...ColumnOption) *Table {
	t.columns = append(t.columns, NewColumn(name, typ, opts...))
	return t
}

// AddColumnDef queues an already built column.
func (t *Table) AddColumnDef(c *Column) *Table {
	t.columns = append(t.columns, c)
	return t
}

// AddIndex queues an index over columns.
func (t *Table) AddIndex(columns []string, opts ...IndexOption) *Table {
	t.indexes = append(t.indexes, NewIndex(columns, opts...))
	return t
}

// AddForeignKey queues a foreign key.
func (t *Table) AddForeignKey(columns []string, refTable string, refColumns []string, opts ...ForeignKeyOption) *Table {
	t.foreignKeys = append(t.foreignKeys, NewForeignKey(columns, refTable, refColumns, opts...))
	return t
}

// AddForeignKeyDef queues an already built foreign key.
func (t *Table) AddForeignKeyDef(fk *ForeignKey) *Table {
	t.foreignKeys = append(t.foreignKeys, fk)
	return t
}

func (t *Table) reset() {
	t.columns = nil
	t.indexes = nil
	t.foreignKeys = nil
}

var errNoAdapter = errors.New("table is not bound to an adapter")

func (t *Table) bound() error {
	if t.adapter == nil {
		return fmt.Errorf("%s: %w", t.name, errNoAdapter)
	}
	return nil
}

// Exists reports whether the table is present in the live database.
func (t *Table) Exists(ctx context.Context) (bool, error) {
	if err := t.bound(); err != nil {
		return false, err
	}
	return t.adapter.HasTable(ctx, t.name)
}

// Create materializes the table with everything pending.
func (t *Table) Create(ctx context.Context) error {
	if err := t.bound(); err != nil {
		return err
	}
	if err := t.adapter.CreateTable(ctx, t); err != nil {
		return err
	}
	t.reset()
	return nil
}

// Update applies pending columns, indexes and foreign keys to an existing table, one
// statement each and in that order.
func (t *Table) Update(ctx context.Context) error {
	if err := t.bound(); err != nil {
		return err
	}
	for _, c := range t.columns {
		if err := t.adapter.AddColumn(ctx, t.name, c); err != nil {
			return err
		}
	}
	for _, idx := range t.indexes {
		if err := t.adapter.AddIndex(ctx, t.name, idx); err != nil {
			return err
		}
	}
	for _, fk := range t.foreignKeys {
		if err := t.adapter.AddForeignKey(ctx, t.name, fk); err != nil {
			return err
		}
	}
	t.reset()
	return nil
}

// Save creates the table when it does not exist yet and updates it otherwise.
func (t *Table) Save(ctx context.Context) error {
	exists, err := t.Exists(ctx)
	if err != nil {
		return err
	}
	if exists {
		return t.Update(ctx)
	}
	return t.Create(ctx)
}

// Rename renames the live table and this handle.
func (t *Table) Rename(ctx context.Context, newName string) error {
	if err := t.bound(); err != nil {
		return err
	}
	if err := t.adapter.RenameTable(ctx, t.name, newName); err != nil {
		return err
	}
	t.name = newName
	return nil
}

func (t *Table) Drop(ctx context.Context) error {
	if err := t.bound(); err != nil {
		return err
	}
	return t.adapter.DropTable(ctx, t.name)
}

func (t *Table) RenameColumn(ctx context.Context, column, newName string) error {
	if err := t.bound(); err != nil {
		return err
	}
	return t.adapter.RenameColumn(ctx, t.name, column, newName)
}

func (t *Table) ChangeColumn(ctx context.Context, column string, newColumn *Column) error {
	if err := t.bound(); err != nil {
		return err
	}
	return t.adapter.ChangeColumn(ctx, t.name, column, newColumn)
}

func (t *Table) RemoveColumn(ctx context.Context, column string) error {
	if err := t.bound(); err != nil {
		return err
	}
	return t.adapter.DropColumn(ctx, t.name, column)
}

func (t *Table) RemoveIndex(ctx context.Context, name string) error {
	if err := t.bound(); err != nil {
		return err
	}
	return t.adapter.DropIndex(ctx, t.name, name)
}

func (t *Table) DropForeignKey(ctx context.Context, columns []string, constraint string) error {
	if err := t.bound(); err != nil {
		return err
	}
	return t.adapter.DropForeignKey(ctx, t.name, columns, constraint)
}

func (t *Table) HasColumn(ctx context.Context, column string) (bool, error) {
	if err := t.bound(); err != nil {
		return false, err
	}
	return t.adapter.HasColumn(ctx, t.name, column)
}

func (t *Table) HasIndex(ctx context.Context, columns ...string) (bool, error) {
	if err := t.bound(); err != nil {
		return false, err
	}
	return t.adapter.HasIndex(ctx, t.name, columns)
}

func (t *Table) HasForeignKey(ctx context.Context, columns []string, constraint string) (bool, error) {
	if err := t.bound(); err != nil {
		return false, err
	}
	return t.adapter.HasForeignKey(ctx, t.name, columns, constraint)
}
