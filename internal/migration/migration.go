// Package migration runs versioned schema migrations against a schemaforge.Adapter and
// records them in the adapter's history ledger.
package migration

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strconv"

	"github.com/burugo/schemaforge"
)

// ErrIrreversible is returned when a migration has no down step.
var ErrIrreversible = errors.New("migration has no down step")

// Migration is one versioned change to the schema.
type Migration interface {
	Version() int64
	Name() string
	Up(ctx context.Context, a schemaforge.Adapter) error
	Down(ctx context.Context, a schemaforge.Adapter) error
}

// MigrationFile is a migration script found on disk.
type MigrationFile struct {
	Version   int64
	Name      string
	Direction schemaforge.Direction
	FilePath  string
}

var migrationFilenameRegex = regexp.MustCompile(`^(\d+)_([a-zA-Z0-9_]+)\.(up|down)\.sql$`)

// DiscoverMigrations lists <version>_<name>.(up|down).sql files in dir, ordered by version
// with the down script of a version before its up script. A missing directory yields no files.
func DiscoverMigrations(dir string) ([]MigrationFile, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return []MigrationFile{}, nil
		}
		return nil, fmt.Errorf("failed to read migrations directory %s: %w", dir, err)
	}

	var files []MigrationFile
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		match := migrationFilenameRegex.FindStringSubmatch(entry.Name())
		if len(match) != 4 {
			continue
		}
		// versions that overflow int64 are not migrations
		version, err := strconv.ParseInt(match[1], 10, 64)
		if err != nil {
			continue
		}
		files = append(files, MigrationFile{
			Version:   version,
			Name:      match[2],
			Direction: schemaforge.Direction(match[3]),
			FilePath:  filepath.Join(dir, entry.Name()),
		})
	}

	sort.Slice(files, func(i, j int) bool {
		if files[i].Version != files[j].Version {
			return files[i].Version < files[j].Version
		}
		return files[i].Direction < files[j].Direction
	})
	return files, nil
}

// DuplicateVersionError reports two migrations claiming the same version.
type DuplicateVersionError struct {
	Version int64
	Names   []string
}

func (e *DuplicateVersionError) Error() string {
	return fmt.Sprintf("duplicate migration version %d: %q", e.Version, e.Names)
}

// Load pairs the up and down scripts in dir into migrations, ordered by version.
// A version with no up script is skipped; a down script is optional.
func Load(dir string) ([]Migration, error) {
	files, err := DiscoverMigrations(dir)
	if err != nil {
		return nil, err
	}
	byVersion := make(map[int64]*SQLMigration)
	var order []int64
	for _, f := range files {
		m, ok := byVersion[f.Version]
		if !ok {
			m = &SQLMigration{version: f.Version, name: f.Name}
			byVersion[f.Version] = m
			order = append(order, f.Version)
		} else if m.name != f.Name {
			return nil, &DuplicateVersionError{Version: f.Version, Names: []string{m.name, f.Name}}
		}
		if f.Direction == schemaforge.Up {
			m.upPath = f.FilePath
		} else {
			m.downPath = f.FilePath
		}
	}
	out := make([]Migration, 0, len(order))
	for _, v := range order {
		if byVersion[v].upPath == "" {
			continue
		}
		out = append(out, byVersion[v])
	}
	return out, nil
}

// SQLMigration executes a script file as a whole in each direction.
type SQLMigration struct {
	version  int64
	name     string
	upPath   string
	downPath string
}

func (m *SQLMigration) Version() int64 { return m.version }
func (m *SQLMigration) Name() string   { return m.name }

func (m *SQLMigration) Up(ctx context.Context, a schemaforge.Adapter) error {
	return m.run(ctx, a, m.upPath)
}

func (m *SQLMigration) Down(ctx context.Context, a schemaforge.Adapter) error {
	if m.downPath == "" {
		return fmt.Errorf("%d_%s: %w", m.version, m.name, ErrIrreversible)
	}
	return m.run(ctx, a, m.downPath)
}

func (m *SQLMigration) run(ctx context.Context, a schemaforge.Adapter, path string) error {
	script, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read migration file %s: %w", path, err)
	}
	_, err = a.Execute(ctx, string(script))
	return err
}

// FuncMigration is a migration written in Go.
type FuncMigration struct {
	ID       int64
	Label    string
	UpFunc   func(ctx context.Context, a schemaforge.Adapter) error
	DownFunc func(ctx context.Context, a schemaforge.Adapter) error
}

func (m FuncMigration) Version() int64 { return m.ID }
func (m FuncMigration) Name() string   { return m.Label }

func (m FuncMigration) Up(ctx context.Context, a schemaforge.Adapter) error {
	return m.UpFunc(ctx, a)
}

func (m FuncMigration) Down(ctx context.Context, a schemaforge.Adapter) error {
	if m.DownFunc == nil {
		return fmt.Errorf("%d_%s: %w", m.ID, m.Label, ErrIrreversible)
	}
	return m.DownFunc(ctx, a)
}
