// interfaces.go
// Core interfaces for schemaforge: Adapter and the capabilities it is composed of.
// Each supported engine provides one concrete Adapter under drivers/db.

package schemaforge

import (
	"context"
	"database/sql"
	"time"
)

// Dialector defines how to quote identifiers and bind variables for a specific SQL dialect.
type Dialector interface {
	Quote(identifier string) string // Quote a SQL identifier (table/column name)
	Placeholder(index int) string   // Bind variable placeholder (e.g. ?, $1), index is 1-based
}

// Connector owns the live database handle and transaction state.
type Connector interface {
	// Connect is idempotent. After the first successful call the default namespace and the
	// schema history table exist.
	Connect(ctx context.Context) error
	Disconnect() error
	Connected() bool
	HasTransactions() bool
	// BeginTransaction rejects nesting with ErrTransactionInProgress.
	BeginTransaction(ctx context.Context) error
	Commit() error
	Rollback() error
	Execute(ctx context.Context, query string, args ...any) (sql.Result, error)
	DialectName() string
	Dialect() Dialector
}

// TypeMapper maps portable types to engine types and back.
type TypeMapper interface {
	ToNativeType(t PortableType) (NativeType, error)
	// FromNativeType never fails; unknown spellings pass through as the portable name.
	FromNativeType(native string) NativeType
}

// Synthesizer renders and executes DDL for abstract schema operations.
type Synthesizer interface {
	CreateTable(ctx context.Context, table *Table) error
	RenameTable(ctx context.Context, table, newName string) error
	DropTable(ctx context.Context, table string) error
	AddColumn(ctx context.Context, table string, column *Column) error
	RenameColumn(ctx context.Context, table, column, newName string) error
	ChangeColumn(ctx context.Context, table, column string, newColumn *Column) error
	DropColumn(ctx context.Context, table, column string) error
	AddIndex(ctx context.Context, table string, index *Index) error
	DropIndex(ctx context.Context, table, name string) error
	AddForeignKey(ctx context.Context, table string, fk *ForeignKey) error
	// DropForeignKey drops by constraint name when given. Otherwise every constraint whose
	// column set equals columns is dropped one statement at a time; this is not atomic unless
	// the caller wraps it in a transaction.
	DropForeignKey(ctx context.Context, table string, columns []string, constraint string) error
}

// Introspector answers existence and shape questions about the live schema.
type Introspector interface {
	HasTable(ctx context.Context, table string) (bool, error)
	HasColumn(ctx context.Context, table, column string) (bool, error)
	// HasIndex is true when some index's column set contains every requested column,
	// compared case-insensitively.
	HasIndex(ctx context.Context, table string, columns []string) (bool, error)
	HasForeignKey(ctx context.Context, table string, columns []string, constraint string) (bool, error)
	// GetColumns reports engine-generated columns by their data type with Identity set, so
	// primary_key and integer identity columns both read back as Integer.
	GetColumns(ctx context.Context, table string) ([]*Column, error)
	GetForeignKeys(ctx context.Context, table string) (map[string]ForeignKeyInfo, error)
}

// History maintains the schema history ledger inside the target database.
type History interface {
	SchemaTableName() string
	HasSchemaTable(ctx context.Context) (bool, error)
	CreateSchemaTable(ctx context.Context) error
	// Migrated inserts the version row for Up and deletes it for Down. Deleting a version
	// that was never recorded is a no-op.
	Migrated(ctx context.Context, version int64, direction Direction, start, end time.Time) error
	GetVersions(ctx context.Context) ([]int64, error)
	GetHistory(ctx context.Context) ([]HistoryEntry, error)
}

// DatabaseManager creates and removes whole databases.
type DatabaseManager interface {
	CreateDatabase(ctx context.Context, name string) error
	HasDatabase(ctx context.Context, name string) (bool, error)
	DropDatabase(ctx context.Context, name string) error
}

// Adapter is the complete per-engine surface consumed by migrations.
type Adapter interface {
	Connector
	TypeMapper
	Synthesizer
	Introspector
	History
	DatabaseManager
}

// ServerConnector is implemented by engines that can open a session on the server without
// the configured database, which CreateDatabase needs before that database exists.
type ServerConnector interface {
	ConnectServer(ctx context.Context) error
}
