package postgres

import (
	"context"
	"fmt"

	"github.com/burugo/schemaforge/internal/ddl"
)

// CreateDatabase creates name with the configured charset (utf8 by default). It cannot run
// inside a transaction.
func (a *Adapter) CreateDatabase(ctx context.Context, name string) error {
	stmt := fmt.Sprintf("CREATE DATABASE %s WITH ENCODING = %s",
		Dialector{}.Quote(name), ddl.QuoteString(a.cfg.CharsetOr(defaultCharset)))
	return a.execAll(ctx, "create database", stmt)
}

func (a *Adapter) HasDatabase(ctx context.Context, name string) (bool, error) {
	s, err := a.conn("has database")
	if err != nil {
		return false, err
	}
	return s.Exists(ctx, "SELECT COUNT(*) FROM pg_database WHERE datname = $1", name)
}

func (a *Adapter) DropDatabase(ctx context.Context, name string) error {
	return a.execAll(ctx, "drop database", "DROP DATABASE IF EXISTS "+Dialector{}.Quote(name))
}

// HasSchema reports whether the namespace exists.
func (a *Adapter) HasSchema(ctx context.Context, name string) (bool, error) {
	s, err := a.conn("has schema")
	if err != nil {
		return false, err
	}
	return s.Exists(ctx, "SELECT COUNT(*) FROM pg_namespace WHERE nspname = $1", name)
}

// CreateSchema creates the namespace. An existing one fails with SQLSTATE 42P06.
func (a *Adapter) CreateSchema(ctx context.Context, name string) error {
	return a.execAll(ctx, "create schema", "CREATE SCHEMA "+Dialector{}.Quote(name))
}

// DropSchema drops the namespace and everything in it.
func (a *Adapter) DropSchema(ctx context.Context, name string) error {
	return a.execAll(ctx, "drop schema", fmt.Sprintf("DROP SCHEMA IF EXISTS %s CASCADE", Dialector{}.Quote(name)))
}

// GetAllSchemas lists user namespaces, leaving out information_schema and pg_*.
func (a *Adapter) GetAllSchemas(ctx context.Context) ([]string, error) {
	s, err := a.conn("get schemas")
	if err != nil {
		return nil, err
	}
	var names []string
	err = s.Select(ctx, &names, `SELECT schema_name FROM information_schema.schemata
		WHERE schema_name <> 'information_schema' AND schema_name !~ '^pg_'
		ORDER BY schema_name`)
	if err != nil {
		return nil, err
	}
	return names, nil
}

// DropAllSchemas drops every user namespace.
func (a *Adapter) DropAllSchemas(ctx context.Context) error {
	names, err := a.GetAllSchemas(ctx)
	if err != nil {
		return err
	}
	for _, name := range names {
		if err := a.DropSchema(ctx, name); err != nil {
			return err
		}
	}
	return nil
}
