// Package mysql is the MySQL adapter. Importing it registers the adapter under "mysql".
package mysql

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log"
	"net"
	"strconv"
	"time"

	"github.com/go-sql-driver/mysql" // MySQL driver

	"github.com/burugo/schemaforge"
	"github.com/burugo/schemaforge/common"
	"github.com/burugo/schemaforge/internal/ddl"
	"github.com/burugo/schemaforge/internal/history"
	"github.com/burugo/schemaforge/internal/session"
)

const (
	dialectName    = "mysql"
	engineName     = "MySQL"
	defaultPort    = 3306
	defaultCharset = "utf8mb4"

	errDatabaseExists = 1007
)

// Adapter implements schemaforge.Adapter for MySQL. The configured database is the
// namespace; there is no schema bootstrap step.
type Adapter struct {
	cfg        schemaforge.Config
	b          builder
	sess       *session.Session
	logEnabled bool
	// serverOnly is set while sess is a ConnectServer session, which Connect replaces.
	serverOnly bool
}

// Compile-time checks to ensure interfaces are implemented.
var (
	_ schemaforge.Adapter         = (*Adapter)(nil)
	_ schemaforge.ServerConnector = (*Adapter)(nil)
)

func init() {
	schemaforge.Register(func(cfg schemaforge.Config) (schemaforge.Adapter, error) {
		return New(cfg)
	}, "mysql")
}

// New returns an unconnected adapter. Host and database name are required.
func New(cfg schemaforge.Config) (*Adapter, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &Adapter{
		cfg:        cfg,
		b:          builder{charset: cfg.CharsetOr(defaultCharset)},
		logEnabled: true,
	}, nil
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
		log.Printf("[mysql] "+format, args...)
	}
}

// dsn builds the driver DSN. Times are parsed into time.Time and multi-statement scripts are
// allowed so SQL migration files can be executed as a whole.
func (a *Adapter) dsn(dbname string) string {
	c := mysql.NewConfig()
	c.User = a.cfg.User
	c.Passwd = a.cfg.Pass
	c.Net = "tcp"
	c.Addr = net.JoinHostPort(a.cfg.Host, strconv.Itoa(a.cfg.PortOr(defaultPort)))
	c.DBName = dbname
	c.ParseTime = true
	c.MultiStatements = true
	c.Params = map[string]string{"charset": a.cfg.CharsetOr(defaultCharset)}
	return c.FormatDSN()
}

// Connect opens the session and creates the ledger table when it is missing. Calling
// Connect on a connected adapter does nothing, unless the session came from ConnectServer:
// that one is closed and replaced by a session on the configured database.
func (a *Adapter) Connect(ctx context.Context) error {
	if a.sess.Connected() && !a.serverOnly {
		return nil
	}
	if a.serverOnly {
		if err := a.Disconnect(); err != nil {
			return err
		}
	}
	sess, err := session.Open(ctx, engineName, "mysql", a.dsn(a.cfg.Name))
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

// ConnectServer opens a session with no default database.
func (a *Adapter) ConnectServer(ctx context.Context) error {
	if a.sess.Connected() {
		return nil
	}
	sess, err := session.Open(ctx, engineName, "mysql", a.dsn(""))
	if err != nil {
		return err
	}
	sess.EnableLog(a.logEnabled)
	a.sess = sess
	a.serverOnly = true
	return nil
}

func (a *Adapter) Disconnect() error {
	err := a.sess.Close()
	a.sess = nil
	a.serverOnly = false
	return err
}

func (a *Adapter) Connected() bool { return a.sess.Connected() }

// HasTransactions is true, but MySQL commits implicitly around DDL statements.
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

func (a *Adapter) AddColumn(ctx context.Context, table string, column *schemaforge.Column) error {
	stmt, err := a.b.addColumn(table, column)
	if err != nil {
		return err
	}
	return a.execAll(ctx, "add column", stmt)
}

func (a *Adapter) RenameColumn(ctx context.Context, table, column, newName string) error {
	live, ok, err := a.liveColumn(ctx, table, column)
	if err != nil {
		return err
	}
	if !ok {
		return &common.UnknownColumnError{Table: table, Column: column}
	}
	return a.execAll(ctx, "rename column", a.b.renameColumn(table, column, newName, live))
}

func (a *Adapter) ChangeColumn(ctx context.Context, table, column string, newColumn *schemaforge.Column) error {
	ok, err := a.HasColumn(ctx, table, column)
	if err != nil {
		return err
	}
	if !ok {
		return &common.UnknownColumnError{Table: table, Column: column}
	}
	stmt, err := a.b.changeColumn(table, column, newColumn)
	if err != nil {
		return err
	}
	return a.execAll(ctx, "change column", stmt)
}

func (a *Adapter) DropColumn(ctx context.Context, table, column string) error {
	return a.execAll(ctx, "drop column", a.b.dropColumn(table, column))
}

func (a *Adapter) AddIndex(ctx context.Context, table string, index *schemaforge.Index) error {
	return a.execAll(ctx, "add index", ddl.CreateIndexSQL(a.b.d, table, index))
}

func (a *Adapter) DropIndex(ctx context.Context, table, name string) error {
	return a.execAll(ctx, "drop index", a.b.dropIndex(table, name))
}

func (a *Adapter) AddForeignKey(ctx context.Context, table string, fk *schemaforge.ForeignKey) error {
	stmt, err := a.b.addForeignKey(table, fk)
	if err != nil {
		return err
	}
	return a.execAll(ctx, "add foreign key", stmt)
}

func (a *Adapter) DropForeignKey(ctx context.Context, table string, columns []string, constraint string) error {
	if constraint != "" {
		return a.execAll(ctx, "drop foreign key", a.b.dropForeignKey(table, constraint))
	}
	fks, err := a.GetForeignKeys(ctx, table)
	if err != nil {
		return err
	}
	names := ddl.MatchingForeignKeys(fks, columns)
	if len(names) == 0 {
		return &common.AmbiguousForeignKeyDropError{Table: table, Columns: columns}
	}
	for _, name := range names {
		a.logf("dropping foreign key %s on %s", name, table)
		if err := a.execAll(ctx, "drop foreign key", a.b.dropForeignKey(table, name)); err != nil {
			return err
		}
	}
	return nil
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

// --- DatabaseManager ---

// CreateDatabase creates name with the configured charset. An existing database is an error.
func (a *Adapter) CreateDatabase(ctx context.Context, name string) error {
	stmt := fmt.Sprintf("CREATE DATABASE %s DEFAULT CHARACTER SET %s",
		Dialector{}.Quote(name), a.cfg.CharsetOr(defaultCharset))
	err := a.execAll(ctx, "create database", stmt)
	if IsDatabaseExists(err) {
		return fmt.Errorf("database %s already exists: %w", name, err)
	}
	return err
}

// IsDatabaseExists reports whether err carries MySQL error 1007.
func IsDatabaseExists(err error) bool {
	var myErr *mysql.MySQLError
	return errors.As(err, &myErr) && myErr.Number == errDatabaseExists
}

func (a *Adapter) HasDatabase(ctx context.Context, name string) (bool, error) {
	s, err := a.conn("has database")
	if err != nil {
		return false, err
	}
	return s.Exists(ctx, "SELECT COUNT(*) FROM information_schema.schemata WHERE schema_name = ?", name)
}

func (a *Adapter) DropDatabase(ctx context.Context, name string) error {
	return a.execAll(ctx, "drop database", "DROP DATABASE IF EXISTS "+Dialector{}.Quote(name))
}
