package migration

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/burugo/schemaforge"
	"github.com/burugo/schemaforge/drivers/db/sqlite"
)

func writeFiles(t *testing.T, dir string, files map[string]string) {
	t.Helper()
	for name, body := range files {
		require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte(body), 0644))
	}
}

func TestDiscoverMigrations(t *testing.T) {
	tempDir := t.TempDir()
	writeFiles(t, tempDir, map[string]string{
		"00002_add_email.up.sql":               "-- test",
		"00001_create_users.up.sql":            "-- test",
		"00001_create_users.down.sql":          "-- test",
		"00002_add_email.down.sql":             "-- test",
		"00003_no_direction.sql":               "-- test",
		"not_a_migration.txt":                  "-- test",
		"abc_wrong_version.up.sql":             "-- test",
		"123456789012345678901_too_big.up.sql": "-- test",
	})
	require.NoError(t, os.Mkdir(filepath.Join(tempDir, "subdir"), 0755))

	migrations, err := DiscoverMigrations(tempDir)
	require.NoError(t, err)
	require.Len(t, migrations, 4, "should find 4 valid migration files")

	assert.Equal(t, int64(1), migrations[0].Version)
	assert.Equal(t, "create_users", migrations[0].Name)
	assert.Equal(t, schemaforge.Down, migrations[0].Direction)
	assert.Equal(t, schemaforge.Up, migrations[1].Direction)
	assert.Equal(t, int64(2), migrations[2].Version)
	assert.Equal(t, "add_email", migrations[3].Name)
	assert.Equal(t, schemaforge.Up, migrations[3].Direction)

	migs, err := DiscoverMigrations(filepath.Join(tempDir, "non_existent_dir"))
	require.NoError(t, err)
	assert.Empty(t, migs)
}

func TestLoad(t *testing.T) {
	dir := t.TempDir()
	writeFiles(t, dir, map[string]string{
		"1_users.up.sql":    "CREATE TABLE users (id INTEGER PRIMARY KEY);",
		"1_users.down.sql":  "DROP TABLE users;",
		"2_orphan.down.sql": "DROP TABLE nothing;",
		"3_indexes.up.sql":  "CREATE INDEX idx_users_id ON users (id);",
	})
	migs, err := Load(dir)
	require.NoError(t, err)
	require.Len(t, migs, 2)
	assert.Equal(t, int64(1), migs[0].Version())
	assert.Equal(t, "users", migs[0].Name())
	assert.Equal(t, int64(3), migs[1].Version())

	err = migs[1].Down(context.Background(), nil)
	assert.ErrorIs(t, err, ErrIrreversible)

	writeFiles(t, dir, map[string]string{"3_other.up.sql": "SELECT 1;"})
	_, err = Load(dir)
	var dup *DuplicateVersionError
	require.True(t, errors.As(err, &dup))
	assert.Equal(t, int64(3), dup.Version)
}

var fixedTime = time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

func newAdapter(t *testing.T) schemaforge.Adapter {
	t.Helper()
	a, err := sqlite.New(schemaforge.Config{Name: ":memory:"})
	require.NoError(t, err)
	a.EnableLog(false)
	t.Cleanup(func() { a.Disconnect() })
	return a
}

func tableMigration(version int64, table string) FuncMigration {
	return FuncMigration{
		ID:    version,
		Label: "create_" + table,
		UpFunc: func(ctx context.Context, a schemaforge.Adapter) error {
			t := schemaforge.NewTable(table, a)
			t.AddColumn("name", schemaforge.String)
			return t.Create(ctx)
		},
		DownFunc: func(ctx context.Context, a schemaforge.Adapter) error {
			return a.DropTable(ctx, table)
		},
	}
}

type recordingLocker struct {
	mu       sync.Mutex
	keys     []string
	released int
}

func (l *recordingLocker) Acquire(_ context.Context, key string) (func(), error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.keys = append(l.keys, key)
	return func() {
		l.mu.Lock()
		l.released++
		l.mu.Unlock()
	}, nil
}

func hasTable(t *testing.T, a schemaforge.Adapter, table string) bool {
	t.Helper()
	ok, err := a.HasTable(context.Background(), table)
	require.NoError(t, err)
	return ok
}

func TestMigrateAndRollback(t *testing.T) {
	a := newAdapter(t)
	ctx := context.Background()
	locker := &recordingLocker{}
	m, err := NewMigrator(a, []Migration{
		tableMigration(3, "tags"),
		tableMigration(1, "users"),
		tableMigration(2, "posts"),
	}, WithLocker(locker))
	require.NoError(t, err)
	m.EnableLog(false)

	require.NoError(t, m.Migrate(ctx, 2))
	assert.True(t, hasTable(t, a, "posts"))
	assert.False(t, hasTable(t, a, "tags"))

	require.NoError(t, m.Migrate(ctx, 0))
	versions, err := a.GetVersions(ctx)
	require.NoError(t, err)
	assert.Equal(t, []int64{1, 2, 3}, versions)

	status, err := m.Status(ctx)
	require.NoError(t, err)
	require.Len(t, status, 3)
	for _, s := range status {
		assert.True(t, s.Applied, s.Name)
		assert.False(t, s.AppliedAt.IsZero())
	}

	require.NoError(t, m.Rollback(ctx, 0))
	assert.False(t, hasTable(t, a, "tags"))
	assert.True(t, hasTable(t, a, "posts"))

	require.NoError(t, m.Rollback(ctx, 1))
	versions, err = a.GetVersions(ctx)
	require.NoError(t, err)
	assert.Equal(t, []int64{1}, versions)
	assert.False(t, hasTable(t, a, "posts"))

	assert.Equal(t, []string{"schemaforge:sqlite:schema_migrations"}, locker.keys[:1])
	assert.Len(t, locker.keys, 4)
	assert.Equal(t, 4, locker.released)
}

func TestFailedMigrationRollsBack(t *testing.T) {
	a := newAdapter(t)
	ctx := context.Background()
	boom := errors.New("boom")
	m, err := NewMigrator(a, []Migration{
		tableMigration(1, "users"),
		FuncMigration{
			ID:    2,
			Label: "half_done",
			UpFunc: func(ctx context.Context, a schemaforge.Adapter) error {
				t := schemaforge.NewTable("partial", a)
				t.AddColumn("v", schemaforge.Integer)
				if err := t.Create(ctx); err != nil {
					return err
				}
				return boom
			},
		},
		tableMigration(3, "never"),
	})
	require.NoError(t, err)
	m.EnableLog(false)

	err = m.Migrate(ctx, 0)
	require.Error(t, err)
	assert.ErrorIs(t, err, boom)
	var step *StepError
	require.True(t, errors.As(err, &step))
	assert.Equal(t, int64(2), step.Version)
	assert.Equal(t, schemaforge.Up, step.Direction)

	assert.True(t, hasTable(t, a, "users"))
	assert.False(t, hasTable(t, a, "partial"))
	assert.False(t, hasTable(t, a, "never"))
	versions, err := a.GetVersions(ctx)
	require.NoError(t, err)
	assert.Equal(t, []int64{1}, versions)
}

func TestSQLMigrations(t *testing.T) {
	dir := t.TempDir()
	writeFiles(t, dir, map[string]string{
		"20240101000000_create_users.up.sql": `CREATE TABLE users (id INTEGER PRIMARY KEY, email TEXT);
CREATE INDEX idx_users_email ON users (email);`,
		"20240101000000_create_users.down.sql": "DROP TABLE users;",
	})
	migs, err := Load(dir)
	require.NoError(t, err)

	a := newAdapter(t)
	ctx := context.Background()
	m, err := NewMigrator(a, migs)
	require.NoError(t, err)
	m.EnableLog(false)

	require.NoError(t, m.Migrate(ctx, 0))
	ok, err := a.HasIndex(ctx, "users", []string{"email"})
	require.NoError(t, err)
	assert.True(t, ok)

	require.NoError(t, m.Rollback(ctx, 0))
	assert.False(t, hasTable(t, a, "users"))
}

func TestStatusReportsMissingVersions(t *testing.T) {
	a := newAdapter(t)
	ctx := context.Background()
	m, err := NewMigrator(a, []Migration{tableMigration(1, "users")})
	require.NoError(t, err)
	m.EnableLog(false)

	require.NoError(t, a.Connect(ctx))
	require.NoError(t, a.Migrated(ctx, 99, schemaforge.Up, fixedTime, fixedTime))

	status, err := m.Status(ctx)
	require.NoError(t, err)
	require.Len(t, status, 2)
	assert.False(t, status[0].Applied)
	assert.True(t, status[1].Missing)
	assert.Equal(t, int64(99), status[1].Version)

	err = m.Rollback(ctx, 0)
	assert.ErrorContains(t, err, "no migration defines it")
}

func TestDuplicateVersions(t *testing.T) {
	a := newAdapter(t)
	_, err := NewMigrator(a, []Migration{tableMigration(1, "a"), tableMigration(1, "b")})
	var dup *DuplicateVersionError
	require.True(t, errors.As(err, &dup))
	assert.Equal(t, []string{"create_a", "create_b"}, dup.Names)
}

func TestLockKey(t *testing.T) {
	assert.Equal(t, "schemaforge:app:schema_versions", LockKey("app", "schema_versions"))
}

func TestLocalLocker(t *testing.T) {
	l := NewLocalLocker()
	ctx := context.Background()

	release, err := l.Acquire(ctx, "a")
	require.NoError(t, err)

	other, err := l.Acquire(ctx, "b")
	require.NoError(t, err, "keys are independent")
	other()

	short, cancel := context.WithTimeout(ctx, 20*time.Millisecond)
	defer cancel()
	_, err = l.Acquire(short, "a")
	assert.ErrorIs(t, err, schemaforge.ErrLockNotAcquired)

	done := make(chan struct{})
	go func() {
		r, err := l.Acquire(ctx, "a")
		if err == nil {
			r()
		}
		close(done)
	}()
	release()
	release()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("waiter did not get the lock after release")
	}
}
