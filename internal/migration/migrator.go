package migration

import (
	"context"
	"fmt"
	"log"
	"sort"
	"time"

	"github.com/burugo/schemaforge"
)

// Migrator applies and reverts migrations through an adapter.
type Migrator struct {
	adapter    schemaforge.Adapter
	migrations []Migration
	locker     Locker
	lockKey    string
	logEnabled bool
}

// Option customizes a Migrator.
type Option func(*Migrator)

// WithLocker makes runs hold a lock from l instead of the process-wide LocalLocker.
func WithLocker(l Locker) Option {
	return func(m *Migrator) { m.locker = l }
}

// WithLockKey overrides the default lock key.
func WithLockKey(key string) Option {
	return func(m *Migrator) { m.lockKey = key }
}

// NewMigrator sorts migrations by version and rejects duplicate versions.
func NewMigrator(adapter schemaforge.Adapter, migrations []Migration, opts ...Option) (*Migrator, error) {
	sorted := append([]Migration(nil), migrations...)
	sort.SliceStable(sorted, func(i, j int) bool { return sorted[i].Version() < sorted[j].Version() })
	for i := 1; i < len(sorted); i++ {
		if sorted[i].Version() == sorted[i-1].Version() {
			return nil, &DuplicateVersionError{
				Version: sorted[i].Version(),
				Names:   []string{sorted[i-1].Name(), sorted[i].Name()},
			}
		}
	}
	m := &Migrator{
		adapter:    adapter,
		migrations: sorted,
		locker:     defaultLocker,
		lockKey:    LockKey(adapter.DialectName(), adapter.SchemaTableName()),
		logEnabled: true,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m, nil
}

// EnableLog enables/disables logging
func (m *Migrator) EnableLog(enable bool) {
	m.logEnabled = enable
}

func (m *Migrator) logf(format string, args ...any) {
	if m.logEnabled {
		log.Printf("[Migrator] "+format, args...)
	}
}

// StepError wraps the failure of a single migration.
type StepError struct {
	Version   int64
	Name      string
	Direction schemaforge.Direction
	Err       error
}

func (e *StepError) Error() string {
	return fmt.Sprintf("migration %d (%s) %s failed: %v", e.Version, e.Name, e.Direction, e.Err)
}

func (e *StepError) Unwrap() error { return e.Err }

// locked connects the adapter and runs fn while holding the migration lock.
func (m *Migrator) locked(ctx context.Context, fn func(applied map[int64]bool) error) error {
	if err := m.adapter.Connect(ctx); err != nil {
		return err
	}
	release, err := m.locker.Acquire(ctx, m.lockKey)
	if err != nil {
		return fmt.Errorf("acquire migration lock %s: %w", m.lockKey, err)
	}
	defer release()

	versions, err := m.adapter.GetVersions(ctx)
	if err != nil {
		return err
	}
	applied := make(map[int64]bool, len(versions))
	for _, v := range versions {
		applied[v] = true
	}
	return fn(applied)
}

// Migrate applies every pending migration up to and including target, in ascending
// order. A target of 0 means all of them. It stops at the first failure.
func (m *Migrator) Migrate(ctx context.Context, target int64) error {
	m.logf("Starting migration process...")
	return m.locked(ctx, func(applied map[int64]bool) error {
		var pending []Migration
		for _, mig := range m.migrations {
			if target > 0 && mig.Version() > target {
				break
			}
			if !applied[mig.Version()] {
				pending = append(pending, mig)
			}
		}
		if len(pending) == 0 {
			m.logf("No pending migrations to apply.")
			return nil
		}
		m.logf("Found %d pending migrations to apply.", len(pending))
		for _, mig := range pending {
			if err := m.step(ctx, mig, schemaforge.Up); err != nil {
				return err
			}
		}
		m.logf("Migration process completed successfully.")
		return nil
	})
}

// Rollback reverts applied migrations newer than target, newest first. A target of 0
// reverts only the most recent one.
func (m *Migrator) Rollback(ctx context.Context, target int64) error {
	return m.locked(ctx, func(applied map[int64]bool) error {
		known := make(map[int64]Migration, len(m.migrations))
		for _, mig := range m.migrations {
			known[mig.Version()] = mig
		}
		versions := make([]int64, 0, len(applied))
		for v := range applied {
			versions = append(versions, v)
		}
		sort.Slice(versions, func(i, j int) bool { return versions[i] > versions[j] })

		var revert []int64
		for _, v := range versions {
			if target == 0 {
				revert = append(revert, v)
				break
			}
			if v > target {
				revert = append(revert, v)
			}
		}
		if len(revert) == 0 {
			m.logf("Nothing to roll back.")
			return nil
		}
		for _, v := range revert {
			mig, ok := known[v]
			if !ok {
				return fmt.Errorf("version %d is recorded as applied but no migration defines it", v)
			}
			if err := m.step(ctx, mig, schemaforge.Down); err != nil {
				return err
			}
		}
		return nil
	})
}

// step runs one migration and records it, inside a transaction when the engine has them.
func (m *Migrator) step(ctx context.Context, mig Migration, dir schemaforge.Direction) error {
	m.logf("%s migration %d: %s...", dir, mig.Version(), mig.Name())
	tx := m.adapter.HasTransactions()
	if tx {
		if err := m.adapter.BeginTransaction(ctx); err != nil {
			return err
		}
	}
	fail := func(err error) error {
		if tx {
			if rbErr := m.adapter.Rollback(); rbErr != nil {
				m.logf("rollback after failed migration %d: %v", mig.Version(), rbErr)
			}
		}
		return &StepError{Version: mig.Version(), Name: mig.Name(), Direction: dir, Err: err}
	}

	start := time.Now()
	run := mig.Up
	if dir == schemaforge.Down {
		run = mig.Down
	}
	if err := run(ctx, m.adapter); err != nil {
		return fail(err)
	}
	if err := m.adapter.Migrated(ctx, mig.Version(), dir, start, time.Now()); err != nil {
		return fail(err)
	}
	if tx {
		if err := m.adapter.Commit(); err != nil {
			return fail(err)
		}
	}
	m.logf("Finished %s migration %d (%s)", dir, mig.Version(), time.Since(start))
	return nil
}

// Status is the state of one migration version.
type Status struct {
	Version   int64
	Name      string
	Applied   bool
	AppliedAt time.Time
	// Missing marks a ledger row no known migration defines.
	Missing bool
}

// Status lists every known migration and every recorded version, ordered by version.
func (m *Migrator) Status(ctx context.Context) ([]Status, error) {
	if err := m.adapter.Connect(ctx); err != nil {
		return nil, err
	}
	entries, err := m.adapter.GetHistory(ctx)
	if err != nil {
		return nil, err
	}
	recorded := make(map[int64]schemaforge.HistoryEntry, len(entries))
	for _, e := range entries {
		recorded[e.Version] = e
	}

	out := make([]Status, 0, len(m.migrations))
	for _, mig := range m.migrations {
		s := Status{Version: mig.Version(), Name: mig.Name()}
		if e, ok := recorded[mig.Version()]; ok {
			s.Applied = true
			s.AppliedAt = e.EndTime
			delete(recorded, mig.Version())
		}
		out = append(out, s)
	}
	for v, e := range recorded {
		out = append(out, Status{Version: v, Applied: true, AppliedAt: e.EndTime, Missing: true})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Version < out[j].Version })
	return out, nil
}
