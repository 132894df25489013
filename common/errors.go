package common

import (
	"errors"
	"fmt"
	"strings"
)

// Package-level sentinel errors. Typed errors below match them through Is so callers can
// test with errors.Is without knowing the concrete type.
var (
	ErrNotConnected          = errors.New("schemaforge: adapter is not connected")
	ErrTransactionInProgress = errors.New("schemaforge: a transaction is already in progress")
	ErrNoTransaction         = errors.New("schemaforge: no transaction in progress")
	ErrLockNotAcquired       = errors.New("schemaforge: could not acquire migration lock")
	ErrUnsupportedOperation  = errors.New("schemaforge: operation not supported by this adapter")
	ErrUnsupportedType       = errors.New("schemaforge: unsupported column type")
	ErrUnknownColumn         = errors.New("schemaforge: unknown column")
	ErrConnection            = errors.New("schemaforge: connection failed")
	ErrStatement             = errors.New("schemaforge: statement rejected by database")
	ErrAmbiguousForeignKey   = errors.New("schemaforge: foreign key drop did not resolve to a constraint")
	ErrInvalidForeignKey     = errors.New("schemaforge: invalid foreign key definition")
	ErrUnknownAdapter        = errors.New("schemaforge: unknown adapter")
	ErrInvalidConfig         = errors.New("schemaforge: invalid configuration")
)

// ConnectionError reports a driver-level failure while opening or pinging the database.
type ConnectionError struct {
	Adapter string
	Err     error
}

func (e *ConnectionError) Error() string {
	return fmt.Sprintf("%s: there was a problem connecting to the database: %v", e.Adapter, e.Err)
}

func (e *ConnectionError) Unwrap() error { return e.Err }

func (e *ConnectionError) Is(target error) bool { return target == ErrConnection }

// NotConnectedError is returned when an operation runs before Connect.
type NotConnectedError struct {
	Op string
}

func (e *NotConnectedError) Error() string {
	return fmt.Sprintf("%s: adapter is not connected", e.Op)
}

func (e *NotConnectedError) Is(target error) bool { return target == ErrNotConnected }

// UnsupportedTypeError is returned by the type mapper for a portable type it does not know.
type UnsupportedTypeError struct {
	Type    string
	Adapter string
}

func (e *UnsupportedTypeError) Error() string {
	return fmt.Sprintf("%s: the type %q is not supported", e.Adapter, e.Type)
}

func (e *UnsupportedTypeError) Is(target error) bool { return target == ErrUnsupportedType }

// UnknownColumnError is returned before a rename or change targets a column the live table lacks.
type UnknownColumnError struct {
	Table  string
	Column string
}

func (e *UnknownColumnError) Error() string {
	return fmt.Sprintf("the specified column doesn't exist: %s.%s", e.Table, e.Column)
}

func (e *UnknownColumnError) Is(target error) bool { return target == ErrUnknownColumn }

// StatementExecutionError wraps the native driver error for a rejected statement.
// Unwrap yields the driver error unchanged so errors.As(*pq.Error) and friends keep working.
type StatementExecutionError struct {
	SQL string
	Err error
}

func (e *StatementExecutionError) Error() string {
	return fmt.Sprintf("failed to execute statement: %v\nSQL: %s", e.Err, e.SQL)
}

func (e *StatementExecutionError) Unwrap() error { return e.Err }

func (e *StatementExecutionError) Is(target error) bool { return target == ErrStatement }

// AmbiguousForeignKeyDropError is returned when dropping a foreign key by columns matched
// no constraint on the table.
type AmbiguousForeignKeyDropError struct {
	Table   string
	Columns []string
	Matches []string
}

func (e *AmbiguousForeignKeyDropError) Error() string {
	if len(e.Matches) == 0 {
		return fmt.Sprintf("no foreign key on %s matches columns (%s)", e.Table, strings.Join(e.Columns, ", "))
	}
	return fmt.Sprintf("foreign key drop on %s columns (%s) matched unexpected constraints: %s",
		e.Table, strings.Join(e.Columns, ", "), strings.Join(e.Matches, ", "))
}

func (e *AmbiguousForeignKeyDropError) Is(target error) bool { return target == ErrAmbiguousForeignKey }

// InvalidForeignKeyError reports a foreign key whose local and referenced column counts differ.
type InvalidForeignKeyError struct {
	Table  string
	Reason string
}

func (e *InvalidForeignKeyError) Error() string {
	return fmt.Sprintf("invalid foreign key on %s: %s", e.Table, e.Reason)
}

func (e *InvalidForeignKeyError) Is(target error) bool { return target == ErrInvalidForeignKey }

// UnknownAdapterError is returned by the registry for an adapter name nobody registered.
type UnknownAdapterError struct {
	Name string
}

func (e *UnknownAdapterError) Error() string {
	return fmt.Sprintf("adapter %q is not registered (did you import its driver package?)", e.Name)
}

func (e *UnknownAdapterError) Is(target error) bool { return target == ErrUnknownAdapter }

// ConfigError reports a missing or malformed configuration field.
type ConfigError struct {
	Field  string
	Reason string
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("config: %s %s", e.Field, e.Reason)
}

func (e *ConfigError) Is(target error) bool { return target == ErrInvalidConfig }
