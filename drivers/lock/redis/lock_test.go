package redis

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/burugo/schemaforge"
	"github.com/burugo/schemaforge/common"
	"github.com/burugo/schemaforge/drivers/db/sqlite"
	"github.com/burugo/schemaforge/internal/migration"
)

func newLocker(t *testing.T, opts *Options) (*Locker, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	if opts == nil {
		opts = &Options{}
	}
	opts.Addr = mr.Addr()
	l, err := New(nil, opts)
	require.NoError(t, err)
	t.Cleanup(func() { l.Close() })
	return l, mr
}

func TestAcquireAndRelease(t *testing.T) {
	l, mr := newLocker(t, nil)
	ctx := context.Background()

	release, err := l.Acquire(ctx, "schemaforge:app:schema_migrations")
	require.NoError(t, err)
	assert.True(t, mr.Exists("schemaforge:app:schema_migrations"))
	assert.Equal(t, defaultTTL, mr.TTL("schemaforge:app:schema_migrations"))

	release()
	assert.False(t, mr.Exists("schemaforge:app:schema_migrations"))
	// a second call is a no-op
	release()
}

func TestTryAcquireWhileHeld(t *testing.T) {
	l, _ := newLocker(t, nil)
	ctx := context.Background()

	release, ok, err := l.TryAcquire(ctx, "k")
	require.NoError(t, err)
	require.True(t, ok)

	_, ok, err = l.TryAcquire(ctx, "k")
	require.NoError(t, err)
	assert.False(t, ok)

	release()
	release2, ok, err := l.TryAcquire(ctx, "k")
	require.NoError(t, err)
	assert.True(t, ok)
	release2()
}

func TestReleaseChecksToken(t *testing.T) {
	l, mr := newLocker(t, &Options{TTL: time.Second})
	ctx := context.Background()

	stale, err := l.Acquire(ctx, "k")
	require.NoError(t, err)

	// the first holder's key expires and another run takes the lock
	mr.FastForward(2 * time.Second)
	fresh, err := l.Acquire(ctx, "k")
	require.NoError(t, err)

	stale()
	assert.True(t, mr.Exists("k"), "a stale release must not drop the new holder's lock")

	fresh()
	assert.False(t, mr.Exists("k"))
}

func TestAcquireGivesUpWithContext(t *testing.T) {
	l, _ := newLocker(t, &Options{RetryInterval: 10 * time.Millisecond})

	release, err := l.Acquire(context.Background(), "k")
	require.NoError(t, err)
	defer release()

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	_, err = l.Acquire(ctx, "k")
	require.Error(t, err)
	assert.True(t, errors.Is(err, common.ErrLockNotAcquired))
}

func TestAcquireWaitsForRelease(t *testing.T) {
	l, _ := newLocker(t, &Options{RetryInterval: 5 * time.Millisecond})

	release, err := l.Acquire(context.Background(), "k")
	require.NoError(t, err)
	go func() {
		time.Sleep(30 * time.Millisecond)
		release()
	}()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	release2, err := l.Acquire(ctx, "k")
	require.NoError(t, err)
	release2()
}

func TestExternalClient(t *testing.T) {
	mr := miniredis.RunT(t)
	cli := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer cli.Close()

	l, err := New(cli, nil)
	require.NoError(t, err)
	require.NoError(t, l.Close())

	// Close leaves a caller-owned client open
	require.NoError(t, cli.Ping(context.Background()).Err())
}

func TestNewFailsWithoutServer(t *testing.T) {
	mr, err := miniredis.Run()
	require.NoError(t, err)
	addr := mr.Addr()
	mr.Close()

	_, err = New(nil, &Options{Addr: addr})
	assert.ErrorContains(t, err, "failed to ping redis")
}

func TestMigratorHoldsRedisLock(t *testing.T) {
	l, mr := newLocker(t, nil)
	a, err := sqlite.New(schemaforge.Config{Name: ":memory:"})
	require.NoError(t, err)
	a.EnableLog(false)
	defer a.Disconnect()

	key := migration.LockKey("app", a.SchemaTableName())
	var held bool
	m, err := migration.NewMigrator(a, []migration.Migration{
		migration.FuncMigration{
			ID:    1,
			Label: "check_lock",
			UpFunc: func(ctx context.Context, a schemaforge.Adapter) error {
				held = mr.Exists(key)
				return nil
			},
		},
	}, migration.WithLocker(l), migration.WithLockKey(key))
	require.NoError(t, err)
	m.EnableLog(false)

	require.NoError(t, m.Migrate(context.Background(), 0))
	assert.True(t, held)
	assert.False(t, mr.Exists(key))
}
