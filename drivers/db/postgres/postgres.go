// Package postgres is the PostgreSQL adapter. Importing it registers the adapter under
// "pgsql", "postgres" and "postgresql".
package postgres

import (
	"context"
	"database/sql"
	"errors"
	"log"
	"net"
	"net/url"
	"strconv"
	"time"

	"github.com/lib/pq" // PostgreSQL driver

	"github.com/burugo/schemaforge"
	"github.com/burugo/schemaforge/common"
	"github.com/burugo/schemaforge/internal/ddl"
	"github.com/burugo/schemaforge/internal/history"
	"github.com/burugo/schemaforge/internal/session"
)

const (
	dialectName    = "postgres"
	engineName     = "PostgreSQL"
	defaultPort    = 5432
	defaultSchema  = "public"
	defaultCharset = "utf8"
	maintenanceDB  = "postgres"

	// SQLSTATE duplicate_schema
	codeDuplicateSchema = "42P06"
)

// Adapter implements schemaforge.Adapter for PostgreSQL.
type Adapter struct {
	cfg        schemaforge.Config
	schema     string
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
	}, "pgsql", "postgres", "postgresql")
}

// New returns an unconnected adapter. Host and database name are required.
func New(cfg schemaforge.Config) (*Adapter, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	schema := cfg.Schema
	if schema == "" {
		schema = defaultSchema
	}
	return &Adapter{
		cfg:        cfg,
		schema:     schema,
		b:          newBuilder(schema),
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
		log.Printf("[postgres] "+format, args...)
	}
}

// Schema returns the namespace the adapter works in.
func (a *Adapter) Schema() string { return a.schema }

func (a *Adapter) dsn(dbname string) string {
	u := url.URL{
		Scheme: "postgres",
		Host:   net.JoinHostPort(a.cfg.Host, strconv.Itoa(a.cfg.PortOr(defaultPort))),
		Path:   "/" + dbname,
	}
	switch {
	case a.cfg.User != "" && a.cfg.Pass != "":
		u.User = url.UserPassword(a.cfg.User, a.cfg.Pass)
	case a.cfg.User != "":
		u.User = url.User(a.cfg.User)
	}
	q := url.Values{}
	if a.cfg.SSLMode != "" {
		q.Set("sslmode", a.cfg.SSLMode)
	}
	u.RawQuery = q.Encode()
	return u.String()
}

// Connect opens the session, makes sure the schema exists and creates the ledger table when
// it is missing. Calling Connect on a connected adapter does nothing, unless the session
// came from ConnectServer: that one is closed and replaced by a session on the configured
// database.
func (a *Adapter) Connect(ctx context.Context) error {
	if a.sess.Connected() && !a.serverOnly {
		return nil
	}
	if a.serverOnly {
		if err := a.Disconnect(); err != nil {
			return err
		}
	}
	sess, err := session.Open(ctx, engineName, "postgres", a.dsn(a.cfg.Name))
	if err != nil {
		return err
	}
	sess.EnableLog(a.logEnabled)
	a.sess = sess
	if err := a.bootstrap(ctx); err != nil {
		a.sess.Close()
		a.sess = nil
		return err
	}
	return nil
}

// ConnectServer opens a session on the maintenance database without bootstrapping, for
// CreateDatabase/DropDatabase against a server where the target database may not exist.
func (a *Adapter) ConnectServer(ctx context.Context) error {
	if a.sess.Connected() {
		return nil
	}
	sess, err := session.Open(ctx, engineName, "postgres", a.dsn(maintenanceDB))
	if err != nil {
		return err
	}
	sess.EnableLog(a.logEnabled)
	a.sess = sess
	a.serverOnly = true
	return nil
}

func (a *Adapter) bootstrap(ctx context.Context) error {
	exists, err := a.HasSchema(ctx, a.schema)
	if err != nil {
		return err
	}
	if !exists {
		if err := a.CreateSchema(ctx, a.schema); err != nil && !isDuplicateSchema(err) {
			return err
		}
	}
	ok, err := a.HasSchemaTable(ctx)
	if err != nil {
		return err
	}
	if !ok {
		return a.CreateSchemaTable(ctx)
	}
	return nil
}

func isDuplicateSchema(err error) bool {
	var pqErr *pq.Error
	return errors.As(err, &pqErr) && string(pqErr.Code) == codeDuplicateSchema
}

// Disconnect closes the session. Any open transaction is rolled back.
func (a *Adapter) Disconnect() error {
	err := a.sess.Close()
	a.sess = nil
	a.serverOnly = false
	return err
}

func (a *Adapter) Connected() bool { return a.sess.Connected() }

func (a *Adapter) HasTransactions() bool { return true }

func (a *Adapter) DialectName() string { return dialectName }

func (a *Adapter) Dialect() schemaforge.Dialector { return Dialector{} }

// conn returns the live session or a NotConnectedError naming op.
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

// Execute runs raw SQL, inside the open transaction if there is one.
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
	if column.After != "" {
		a.logf("column %s.%s: AFTER %s is not supported, appending", table, column.Name, column.After)
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

// ChangeColumn alters type, nullability and default of column in one statement, then renames
// it when newColumn.Name differs.
func (a *Adapter) ChangeColumn(ctx context.Context, table, column string, newColumn *schemaforge.Column) error {
	if err := a.requireColumn(ctx, table, column); err != nil {
		return err
	}
	stmts, err := a.b.changeColumn(table, column, newColumn)
	if err != nil {
		return err
	}
	return a.execAll(ctx, "change column", stmts...)
}

func (a *Adapter) DropColumn(ctx context.Context, table, column string) error {
	return a.execAll(ctx, "drop column", a.b.dropColumn(table, column))
}

func (a *Adapter) AddIndex(ctx context.Context, table string, index *schemaforge.Index) error {
	return a.execAll(ctx, "add index", a.b.addIndex(table, index))
}

func (a *Adapter) DropIndex(ctx context.Context, table, name string) error {
	return a.execAll(ctx, "drop index", a.b.dropIndex(name))
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
		return a.execAll(ctx, "drop foreign key", a.b.dropConstraint(table, constraint))
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
		if err := a.execAll(ctx, "drop foreign key", a.b.dropConstraint(table, name)); err != nil {
			return err
		}
	}
	return nil
}

// --- History ---

func (a *Adapter) SchemaTableName() string { return a.cfg.LedgerTable() }

func (a *Adapter) ledger(s *session.Session) history.Ledger {
	return history.Ledger{Session: s, Dialect: Dialector{}, Schema: a.schema, Table: a.SchemaTableName()}
}

func (a *Adapter) HasSchemaTable(ctx context.Context) (bool, error) {
	return a.HasTable(ctx, a.SchemaTableName())
}

func (a *Adapter) CreateSchemaTable(ctx context.Context) error {
	a.logf("creating schema table %s.%s", a.schema, a.SchemaTableName())
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
