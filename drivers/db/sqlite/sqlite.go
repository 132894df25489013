// Package sqlite is the SQLite adapter. Importing it registers the adapter under "sqlite"
// and "sqlite3".
//
// SQLite's ALTER TABLE cannot change a column or its foreign keys, so ChangeColumn,
// AddForeignKey and DropForeignKey rebuild the table. Foreign key enforcement is left at
// the engine default (off) so a rebuild never cascades into referencing tables.
package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"log"
	"time"

	_ "github.com/mattn/go-sqlite3" // SQLite driver

	"github.com/burugo/schemaforge"
	"github.com/burugo/schemaforge/common"
	"github.com/burugo/schemaforge/internal/ddl"
	"github.com/burugo/schemaforge/internal/history"
	"github.com/burugo/schemaforge/internal/session"
)

const (
	dialectName = "sqlite"
	engineName  = "SQLite"
	memoryName  = ":memory:"
)

// Adapter implements schemaforge.Adapter for SQLite. Config.Name is the database file, or
// ":memory:".
type Adapter struct {
	cfg        schemaforge.Config
	b          builder
	sess       *session.Session
	logEnabled bool
}

// Compile-time check to ensure the interface is implemented.
var _ schemaforge.Adapter = (*Adapter)(nil)

func init() {
	schemaforge.Register(func(cfg schemaforge.Config) (schemaforge.Adapter, error) {
		return New(cfg)
	}, "sqlite", "sqlite3")
}

// New returns an unconnected adapter. Only the database name is required.
func New(cfg schemaforge.Config) (*Adapter, error) {
	if err := cfg.ValidateName(); err != nil {
		return nil, err
	}
	return &Adapter{cfg: cfg, logEnabled: true}, nil
}

// EnableLog turns adapter and statement logging on or off.
func (a *Adapter) EnableLog(enable bool) {
	a.logEnabled = enable
	if a.sess != nil {
		a.sess.EnableLog(enable)
	}
}

func (a *Adapter) logf(format string, args ...any) {
	if a.logEnabled {
		log.Printf("[sqlite] "+format, args...)
	}
}

func dsn(name string) string {
	if name == memoryName {
		return name
	}
	return "file:" + name + "?_busy_timeout=5000"
}

// Connect opens the database and creates the ledger table when it is missing. Calling
// Connect on a connected adapter does nothing.
func (a *Adapter) Connect(ctx context.Context) error {
	if a.sess.Connected() {
		return nil
	}
	sess, err := session.Open(ctx, engineName, "sqlite3", dsn(a.cfg.Name))
	if err != nil {
		return err
	}
	sess.EnableLog(a.logEnabled)
	a.sess = sess
	ok, err := a.HasSchemaTable(ctx)
	if err == nil && !ok {
		err = a.CreateSchemaTable(ctx)
	}
	if err != nil {
		a.sess.Close()
		a.sess = nil
		return err
	}
	return nil
}

// Disconnect closes the session. An in-memory database is gone afterwards.
func (a *Adapter) Disconnect() error {
	err := a.sess.Close()
	a.sess = nil
	return err
}

func (a *Adapter) Connected() bool { return a.sess.Connected() }

// HasTransactions is true; SQLite DDL is transactional.
func (a *Adapter) HasTransactions() bool { return true }

func (a *Adapter) DialectName() string { return dialectName }

func (a *Adapter) Dialect() schemaforge.Dialector { return Dialector{} }

func (a *Adapter) conn(op string) (*session.Session, error) {
	if !a.sess.Connected() {
		return nil, &common.NotConnectedError{Op: op}
	}
	return a.sess, nil
}

func (a *Adapter) BeginTransaction(ctx context.Context) error {
	s, err := a.conn("begin transaction")
	if err != nil {
		return err
	}
	return s.Begin(ctx)
}

func (a *Adapter) Commit() error {
	s, err := a.conn("commit")
	if err != nil {
		return err
	}
	return s.Commit()
}

func (a *Adapter) Rollback() error {
	s, err := a.conn("rollback")
	if err != nil {
		return err
	}
	return s.Rollback()
}

func (a *Adapter) Execute(ctx context.Context, query string, args ...any) (sql.Result, error) {
	s, err := a.conn("execute")
	if err != nil {
		return nil, err
	}
	return s.Exec(ctx, query, args...)
}

func (a *Adapter) execAll(ctx context.Context, op string, stmts ...string) error {
	s, err := a.conn(op)
	if err != nil {
		return err
	}
	for _, stmt := range stmts {
		if _, err := s.Exec(ctx, stmt); err != nil {
			return err
		}
	}
	return nil
}

// --- Synthesizer ---

func (a *Adapter) CreateTable(ctx context.Context, table *schemaforge.Table) error {
	stmts, err := a.b.createTable(table)
	if err != nil {
		return err
	}
	return a.execAll(ctx, "create table", stmts...)
}

func (a *Adapter) RenameTable(ctx context.Context, table, newName string) error {
	return a.execAll(ctx, "rename table", a.b.renameTable(table, newName))
}

func (a *Adapter) DropTable(ctx context.Context, table string) error {
	return a.execAll(ctx, "drop table", a.b.dropTable(table))
}

// AddColumn appends the column. SQLite has no positional insert, so After is ignored.
func (a *Adapter) AddColumn(ctx context.Context, table string, column *schemaforge.Column) error {
	if column.After != "" {
		a.logf("ignoring AFTER %s for %s.%s", column.After, table, column.Name)
	}
	stmt, err := a.b.addColumn(table, column)
	if err != nil {
		return err
	}
	return a.execAll(ctx, "add column", stmt)
}

func (a *Adapter) requireColumn(ctx context.Context, table, column string) error {
	ok, err := a.HasColumn(ctx, table, column)
	if err != nil {
		return err
	}
	if !ok {
		return &common.UnknownColumnError{Table: table, Column: column}
	}
	return nil
}

func (a *Adapter) RenameColumn(ctx context.Context, table, column, newName string) error {
	if err := a.requireColumn(ctx, table, column); err != nil {
		return err
	}
	return a.execAll(ctx, "rename column", a.b.renameColumn(table, column, newName))
}

// ChangeColumn rebuilds the table with the column redefined in place. Rows keep their
// values; a new name carries over to the primary key, foreign keys and indexes.
func (a *Adapter) ChangeColumn(ctx context.Context, table, column string, newColumn *schemaforge.Column) error {
	if err := a.requireColumn(ctx, table, column); err != nil {
		return err
	}
	target := *newColumn
	if target.Name == "" {
		target.Name = column
	}
	def, err := a.b.columnDefinition(&target)
	if err != nil {
		return err
	}
	return a.rebuild(ctx, table, func(t *tableShape) error {
		i := t.find(column)
		if i < 0 {
			return &common.UnknownColumnError{Table: table, Column: column}
		}
		t.columns[i].def = def
		t.columns[i].to = target.Name
		t.rename(column, target.Name)
		return nil
	})
}

func (a *Adapter) DropColumn(ctx context.Context, table, column string) error {
	return a.execAll(ctx, "drop column", a.b.dropColumn(table, column))
}

func (a *Adapter) AddIndex(ctx context.Context, table string, index *schemaforge.Index) error {
	return a.execAll(ctx, "add index", ddl.CreateIndexSQL(a.b.d, table, index))
}

func (a *Adapter) DropIndex(ctx context.Context, table, name string) error {
	return a.execAll(ctx, "drop index", a.b.dropIndex(name))
}

func (a *Adapter) AddForeignKey(ctx context.Context, table string, fk *schemaforge.ForeignKey) error {
	if err := fk.Validate(table); err != nil {
		return err
	}
	named := *fk
	named.Constraint = fk.NameFor(table)
	return a.rebuild(ctx, table, func(t *tableShape) error {
		t.fks = append(t.fks, &named)
		return nil
	})
}

// DropForeignKey rebuilds the table without the matching constraints. All matches go in a
// single rebuild.
func (a *Adapter) DropForeignKey(ctx context.Context, table string, columns []string, constraint string) error {
	fks, err := a.GetForeignKeys(ctx, table)
	if err != nil {
		return err
	}
	var names []string
	if constraint != "" {
		if _, ok := fks[constraint]; !ok {
			return fmt.Errorf("%s: foreign key %q does not exist: %w", table, constraint, common.ErrAmbiguousForeignKey)
		}
		names = []string{constraint}
	} else {
		names = ddl.MatchingForeignKeys(fks, columns)
		if len(names) == 0 {
			return &common.AmbiguousForeignKeyDropError{Table: table, Columns: columns}
		}
	}
	drop := make(map[string]bool, len(names))
	for _, n := range names {
		a.logf("dropping foreign key %s on %s", n, table)
		drop[n] = true
	}
	return a.rebuild(ctx, table, func(t *tableShape) error {
		kept := t.fks[:0]
		for _, fk := range t.fks {
			if !drop[fk.Constraint] {
				kept = append(kept, fk)
			}
		}
		t.fks = kept
		return nil
	})
}

// --- History ---

func (a *Adapter) SchemaTableName() string { return a.cfg.LedgerTable() }

func (a *Adapter) ledger(s *session.Session) history.Ledger {
	return history.Ledger{Session: s, Dialect: Dialector{}, Table: a.SchemaTableName()}
}

func (a *Adapter) HasSchemaTable(ctx context.Context) (bool, error) {
	return a.HasTable(ctx, a.SchemaTableName())
}

func (a *Adapter) CreateSchemaTable(ctx context.Context) error {
	a.logf("creating schema table %s", a.SchemaTableName())
	return a.CreateTable(ctx, history.Definition(a.SchemaTableName()))
}

func (a *Adapter) Migrated(ctx context.Context, version int64, direction schemaforge.Direction, start, end time.Time) error {
	s, err := a.conn("record migration")
	if err != nil {
		return err
	}
	return a.ledger(s).Record(ctx, version, direction, start, end)
}

func (a *Adapter) GetVersions(ctx context.Context) ([]int64, error) {
	s, err := a.conn("get versions")
	if err != nil {
		return nil, err
	}
	return a.ledger(s).Versions(ctx)
}

func (a *Adapter) GetHistory(ctx context.Context) ([]schemaforge.HistoryEntry, error) {
	s, err := a.conn("get history")
	if err != nil {
		return nil, err
	}
	return a.ledger(s).Entries(ctx)
}
