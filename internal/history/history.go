// Package history implements the schema history ledger on top of a session. Engines differ
// only in how they quote identifiers and bind parameters, so one Ledger serves all of them.
package history

import (
	"context"
	"fmt"
	"time"

	"github.com/burugo/schemaforge"
	"github.com/burugo/schemaforge/internal/session"
)

// Ledger reads and writes the ledger table through Session. Schema, when set, qualifies
// the table name.
type Ledger struct {
	Session *session.Session
	Dialect schemaforge.Dialector
	Schema  string
	Table   string
}

func (l Ledger) table() string {
	if l.Schema != "" {
		return l.Dialect.Quote(l.Schema) + "." + l.Dialect.Quote(l.Table)
	}
	return l.Dialect.Quote(l.Table)
}

// Definition returns the ledger table as a pending Table so each engine can create it with
// its own synthesizer. All three columns are NOT NULL and there is no implicit id column.
func Definition(name string) *schemaforge.Table {
	t := schemaforge.NewTable(name, nil, schemaforge.WithoutID())
	t.AddColumn("version", schemaforge.BigInteger).
		AddColumn("start_time", schemaforge.Timestamp).
		AddColumn("end_time", schemaforge.Timestamp)
	return t
}

// InsertSQL renders the parameterized insert for an applied migration.
func (l Ledger) InsertSQL() string {
	return fmt.Sprintf("INSERT INTO %s (%s, %s, %s) VALUES (%s, %s, %s)",
		l.table(),
		l.Dialect.Quote("version"), l.Dialect.Quote("start_time"), l.Dialect.Quote("end_time"),
		l.Dialect.Placeholder(1), l.Dialect.Placeholder(2), l.Dialect.Placeholder(3))
}

// DeleteSQL renders the parameterized delete for a reverted migration.
func (l Ledger) DeleteSQL() string {
	return fmt.Sprintf("DELETE FROM %s WHERE %s = %s",
		l.table(), l.Dialect.Quote("version"), l.Dialect.Placeholder(1))
}

// SelectSQL renders the ordered ledger select.
func (l Ledger) SelectSQL() string {
	return fmt.Sprintf("SELECT %s, %s, %s FROM %s ORDER BY %s ASC",
		l.Dialect.Quote("version"), l.Dialect.Quote("start_time"), l.Dialect.Quote("end_time"),
		l.table(), l.Dialect.Quote("version"))
}

// Record inserts the version for Up and deletes it for Down. Deleting a version that was
// never recorded affects no rows and is not an error.
func (l Ledger) Record(ctx context.Context, version int64, direction schemaforge.Direction, start, end time.Time) error {
	switch direction {
	case schemaforge.Up:
		_, err := l.Session.Exec(ctx, l.InsertSQL(), version, start.UTC(), end.UTC())
		return err
	case schemaforge.Down:
		_, err := l.Session.Exec(ctx, l.DeleteSQL(), version)
		return err
	}
	return fmt.Errorf("record migration %d: invalid direction %q", version, direction)
}

// Entries returns every ledger row ordered by version.
func (l Ledger) Entries(ctx context.Context) ([]schemaforge.HistoryEntry, error) {
	var rows []schemaforge.HistoryEntry
	if err := l.Session.Select(ctx, &rows, l.SelectSQL()); err != nil {
		return nil, err
	}
	return rows, nil
}

// Versions returns the recorded versions in ascending order.
func (l Ledger) Versions(ctx context.Context) ([]int64, error) {
	entries, err := l.Entries(ctx)
	if err != nil {
		return nil, err
	}
	versions := make([]int64, len(entries))
	for i, e := range entries {
		versions[i] = e.Version
	}
	return versions, nil
}
