package sqlite

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
)

// A SQLite database is a file, so the database manager works on the filesystem and does not
// need a session. ":memory:" always exists and cannot be created or dropped.

// CreateDatabase creates an empty database file. An existing file is left untouched.
func (a *Adapter) CreateDatabase(_ context.Context, name string) error {
	if name == memoryName {
		return nil
	}
	f, err := os.OpenFile(name, os.O_RDWR|os.O_CREATE, 0o644)
	if err != nil {
		return fmt.Errorf("create database %s: %w", name, err)
	}
	return f.Close()
}

func (a *Adapter) HasDatabase(_ context.Context, name string) (bool, error) {
	if name == memoryName {
		return true, nil
	}
	_, err := os.Stat(name)
	if errors.Is(err, fs.ErrNotExist) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("stat database %s: %w", name, err)
	}
	return true, nil
}

// DropDatabase removes the database file and its rollback journal. The adapter disconnects
// first when name is the database it is connected to.
func (a *Adapter) DropDatabase(_ context.Context, name string) error {
	if name == memoryName {
		return nil
	}
	if name == a.cfg.Name && a.sess.Connected() {
		if err := a.Disconnect(); err != nil {
			return err
		}
	}
	for _, path := range []string{name, name + "-journal"} {
		if err := os.Remove(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("drop database %s: %w", name, err)
		}
	}
	return nil
}
