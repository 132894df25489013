package sqlite

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/mattn/go-sqlite3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/burugo/schemaforge"
)

func newMemoryAdapter(t *testing.T) *Adapter {
	t.Helper()
	a, err := New(schemaforge.Config{Adapter: "sqlite", Name: ":memory:"})
	require.NoError(t, err)
	a.EnableLog(false)
	require.NoError(t, a.Connect(context.Background()))
	t.Cleanup(func() { a.Disconnect() })
	return a
}

func createUsersAndPosts(t *testing.T, a *Adapter) {
	t.Helper()
	ctx := context.Background()
	users := schemaforge.NewTable("users", a)
	users.AddColumn("email", schemaforge.String, schemaforge.WithLimit(190)).
		AddColumn("active", schemaforge.Boolean, schemaforge.WithDefault(true)).
		AddColumn("nick", schemaforge.String, schemaforge.Nullable()).
		AddIndex([]string{"email"}, schemaforge.Unique())
	require.NoError(t, users.Create(ctx))

	posts := schemaforge.NewTable("posts", a)
	posts.AddColumn("user_id", schemaforge.Integer).
		AddColumn("title", schemaforge.String).
		AddIndex([]string{"title"}).
		AddForeignKey([]string{"user_id"}, "users", []string{"users_id"}, schemaforge.OnDelete(schemaforge.Cascade))
	require.NoError(t, posts.Create(ctx))
}

func TestBuilderCreateTable(t *testing.T) {
	tbl := schemaforge.NewTable("users", nil)
	tbl.AddColumn("email", schemaforge.String, schemaforge.WithLimit(190)).
		AddColumn("active", schemaforge.Boolean, schemaforge.WithDefault(false)).
		AddIndex([]string{"email"})

	stmts, err := builder{}.createTable(tbl)
	require.NoError(t, err)
	require.Len(t, stmts, 2)
	assert.Equal(t,
		`CREATE TABLE "users" ("users_id" INTEGER NOT NULL, "email" VARCHAR(190) NOT NULL, `+
			`"active" BOOLEAN NOT NULL DEFAULT 0, CONSTRAINT "users_pkey" PRIMARY KEY ("users_id"))`,
		stmts[0])
	assert.Equal(t, `CREATE INDEX "idx_users_email" ON "users" ("email")`, stmts[1])

	b := builder{}
	assert.Equal(t, `ALTER TABLE "a" RENAME TO "b"`, b.renameTable("a", "b"))
	assert.Equal(t, `ALTER TABLE "a" RENAME COLUMN "x" TO "y"`, b.renameColumn("a", "x", "y"))
	assert.Equal(t, `DROP INDEX "idx_a_x"`, b.dropIndex("idx_a_x"))
	assert.Equal(t, `INSERT INTO "t__rebuild" ("id", "b") SELECT "id", "a" FROM "t"`,
		b.copyRows("t", "t__rebuild", []string{"id", "a"}, []string{"id", "b"}))
}

func TestTypeMapping(t *testing.T) {
	a := &Adapter{}
	for _, pt := range schemaforge.PortableTypes {
		nt, err := a.ToNativeType(pt)
		require.NoError(t, err, pt)
		back := a.FromNativeType(nt.String())
		want := pt
		if pt == schemaforge.PrimaryKey {
			want = schemaforge.Integer
		}
		assert.Equal(t, string(want), back.Name, pt)
	}
	assert.Equal(t, schemaforge.NativeType{Name: "string", Limit: 64}, a.FromNativeType("VARCHAR(64)"))
	assert.Equal(t, schemaforge.NativeType{Name: "decimal", Precision: 8, Scale: 3}, a.FromNativeType("NUMERIC(8,3)"))
	assert.Equal(t, schemaforge.NativeType{Name: "json"}, a.FromNativeType("JSON"))

	_, err := a.ToNativeType("uuid")
	assert.ErrorIs(t, err, schemaforge.ErrUnsupportedType)
}

func TestConstraintNames(t *testing.T) {
	names := constraintNames(`CREATE TABLE "p" ("a" INTEGER, "b" INTEGER, ` +
		`CONSTRAINT "fk ""x""" FOREIGN KEY ("a", "B") REFERENCES "q" ("a", "b"), ` +
		`constraint plain foreign key (a) references q (a), ` +
		`CONSTRAINT bare FOREIGN KEY (b) REFERENCES r)`)
	assert.Equal(t, []declaredForeignKey{
		{Name: `fk "x"`, Columns: []string{"a", "B"}, ReferencedTable: "q", ReferencedColumns: []string{"a", "b"}},
		{Name: "plain", Columns: []string{"a"}, ReferencedTable: "q", ReferencedColumns: []string{"a"}},
		{Name: "bare", Columns: []string{"b"}, ReferencedTable: "r"},
	}, names)
}

func TestCreateAndIntrospect(t *testing.T) {
	a := newMemoryAdapter(t)
	ctx := context.Background()
	createUsersAndPosts(t, a)

	ok, err := a.HasTable(ctx, "users")
	require.NoError(t, err)
	assert.True(t, ok)

	cols, err := a.GetColumns(ctx, "users")
	require.NoError(t, err)
	require.Len(t, cols, 4)
	assert.Equal(t, "users_id", cols[0].Name)
	assert.Equal(t, schemaforge.Integer, cols[0].Type)
	assert.True(t, cols[0].Identity)
	assert.Equal(t, schemaforge.String, cols[1].Type)
	assert.Equal(t, 190, cols[1].Limit)
	assert.Equal(t, schemaforge.Boolean, cols[2].Type)
	assert.Equal(t, int64(1), cols[2].Default)
	assert.False(t, cols[2].Null)
	assert.True(t, cols[3].Null)
	assert.Nil(t, cols[3].Default)

	ok, err = a.HasColumn(ctx, "users", "NICK")
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = a.HasIndex(ctx, "users", []string{"EMAIL"})
	require.NoError(t, err)
	assert.True(t, ok)
	ok, err = a.HasIndex(ctx, "users", []string{"email", "nick"})
	require.NoError(t, err)
	assert.False(t, ok)

	fks, err := a.GetForeignKeys(ctx, "posts")
	require.NoError(t, err)
	require.Contains(t, fks, "posts_user_id")
	fk := fks["posts_user_id"]
	assert.Equal(t, []string{"user_id"}, fk.Columns)
	assert.Equal(t, "users", fk.ReferencedTable)
	assert.Equal(t, []string{"users_id"}, fk.ReferencedColumns)
	assert.Equal(t, schemaforge.Cascade, fk.OnDelete)
	assert.Equal(t, schemaforge.NoAction, fk.OnUpdate)

	ok, err = a.HasForeignKey(ctx, "posts", []string{"user_id"}, "")
	require.NoError(t, err)
	assert.True(t, ok)
	ok, err = a.HasForeignKey(ctx, "posts", nil, "nope")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestIdentityColumnGeneratesValues(t *testing.T) {
	a := newMemoryAdapter(t)
	ctx := context.Background()
	createUsersAndPosts(t, a)

	_, err := a.Execute(ctx, `INSERT INTO "users" ("email") VALUES (?), (?)`, "a@x", "b@x")
	require.NoError(t, err)
	var ids []int64
	require.NoError(t, a.sess.Select(ctx, &ids, `SELECT "users_id" FROM "users" ORDER BY "users_id"`))
	assert.Equal(t, []int64{1, 2}, ids)
}

func TestChangeColumnRebuildsTable(t *testing.T) {
	a := newMemoryAdapter(t)
	ctx := context.Background()
	createUsersAndPosts(t, a)
	_, err := a.Execute(ctx, `INSERT INTO "posts" ("user_id", "title") VALUES (1, 'hello'), (2, 'world')`)
	require.NoError(t, err)

	err = a.ChangeColumn(ctx, "posts", "title", schemaforge.NewColumn("body", schemaforge.Text, schemaforge.Nullable()))
	require.NoError(t, err)

	var bodies []string
	require.NoError(t, a.sess.Select(ctx, &bodies, `SELECT "body" FROM "posts" ORDER BY "posts_id"`))
	assert.Equal(t, []string{"hello", "world"}, bodies)

	cols, err := a.GetColumns(ctx, "posts")
	require.NoError(t, err)
	require.Len(t, cols, 3)
	assert.True(t, cols[0].Identity)
	assert.Equal(t, "body", cols[2].Name)
	assert.Equal(t, schemaforge.Text, cols[2].Type)
	assert.True(t, cols[2].Null)

	ok, err := a.HasIndex(ctx, "posts", []string{"body"})
	require.NoError(t, err)
	assert.True(t, ok)
	ok, err = a.HasForeignKey(ctx, "posts", nil, "posts_user_id")
	require.NoError(t, err)
	assert.True(t, ok)
	ok, err = a.HasTable(ctx, "posts__rebuild")
	require.NoError(t, err)
	assert.False(t, ok)

	err = a.ChangeColumn(ctx, "posts", "missing", schemaforge.NewColumn("", schemaforge.Text))
	assert.ErrorIs(t, err, schemaforge.ErrUnknownColumn)
}

func TestForeignKeyAddAndDrop(t *testing.T) {
	a := newMemoryAdapter(t)
	ctx := context.Background()
	createUsersAndPosts(t, a)

	require.NoError(t, a.DropForeignKey(ctx, "posts", []string{"USER_ID"}, ""))
	ok, err := a.HasForeignKey(ctx, "posts", []string{"user_id"}, "")
	require.NoError(t, err)
	assert.False(t, ok)

	err = a.DropForeignKey(ctx, "posts", []string{"user_id"}, "")
	assert.ErrorIs(t, err, schemaforge.ErrAmbiguousForeignKey)
	var ambiguous *schemaforge.AmbiguousForeignKeyDropError
	require.True(t, errors.As(err, &ambiguous))
	assert.Equal(t, "posts", ambiguous.Table)

	fk := schemaforge.NewForeignKey([]string{"user_id"}, "users", []string{"users_id"},
		schemaforge.ConstraintName("fk_posts_author"), schemaforge.OnUpdate(schemaforge.SetNull))
	require.NoError(t, a.AddForeignKey(ctx, "posts", fk))
	fks, err := a.GetForeignKeys(ctx, "posts")
	require.NoError(t, err)
	require.Contains(t, fks, "fk_posts_author")
	assert.Equal(t, schemaforge.SetNull, fks["fk_posts_author"].OnUpdate)

	ok, err = a.HasIndex(ctx, "posts", []string{"title"})
	require.NoError(t, err)
	assert.True(t, ok, "indexes survive a rebuild")

	err = a.DropForeignKey(ctx, "posts", nil, "not_there")
	assert.ErrorIs(t, err, schemaforge.ErrAmbiguousForeignKey)
	require.NoError(t, a.DropForeignKey(ctx, "posts", nil, "fk_posts_author"))
	fks, err = a.GetForeignKeys(ctx, "posts")
	require.NoError(t, err)
	assert.Empty(t, fks)

	bad := schemaforge.NewForeignKey([]string{"user_id", "title"}, "users", []string{"users_id"})
	assert.ErrorIs(t, a.AddForeignKey(ctx, "posts", bad), schemaforge.ErrInvalidForeignKey)
}

func TestForeignKeysSharingColumns(t *testing.T) {
	a := newMemoryAdapter(t)
	ctx := context.Background()
	for _, name := range []string{"users", "admins"} {
		require.NoError(t, schemaforge.NewTable(name, a, schemaforge.WithIDColumn("id")).Create(ctx))
	}
	posts := schemaforge.NewTable("posts", a)
	posts.AddColumn("owner_id", schemaforge.Integer).
		AddColumn("title", schemaforge.String).
		AddForeignKey([]string{"owner_id"}, "users", []string{"id"}, schemaforge.ConstraintName("fk_owner_user")).
		AddForeignKey([]string{"owner_id"}, "admins", []string{"id"}, schemaforge.ConstraintName("fk_owner_admin"))
	require.NoError(t, posts.Create(ctx))

	check := func() map[string]schemaforge.ForeignKeyInfo {
		t.Helper()
		fks, err := a.GetForeignKeys(ctx, "posts")
		require.NoError(t, err)
		return fks
	}
	fks := check()
	require.Len(t, fks, 2)
	assert.Equal(t, "users", fks["fk_owner_user"].ReferencedTable)
	assert.Equal(t, "admins", fks["fk_owner_admin"].ReferencedTable)

	// an unrelated rebuild keeps both
	require.NoError(t, a.ChangeColumn(ctx, "posts", "title", schemaforge.NewColumn("title", schemaforge.Text)))
	fks = check()
	require.Len(t, fks, 2)
	assert.Equal(t, "users", fks["fk_owner_user"].ReferencedTable)
	assert.Equal(t, "admins", fks["fk_owner_admin"].ReferencedTable)

	require.NoError(t, a.DropForeignKey(ctx, "posts", nil, "fk_owner_admin"))
	fks = check()
	require.Len(t, fks, 1)
	assert.Equal(t, "users", fks["fk_owner_user"].ReferencedTable)

	// unnamed constraints on the same columns still get distinct names
	_, err := a.Execute(ctx, `CREATE TABLE "notes" ("owner_id" INTEGER REFERENCES "users" ("id"), `+
		`FOREIGN KEY ("owner_id") REFERENCES "admins" ("id"))`)
	require.NoError(t, err)
	notes, err := a.GetForeignKeys(ctx, "notes")
	require.NoError(t, err)
	require.Len(t, notes, 2)
	refs := map[string]bool{}
	for name, fk := range notes {
		assert.Contains(t, name, "notes_owner_id")
		refs[fk.ReferencedTable] = true
	}
	assert.Equal(t, map[string]bool{"users": true, "admins": true}, refs)

	require.NoError(t, a.DropForeignKey(ctx, "notes", []string{"owner_id"}, ""))
	notes, err = a.GetForeignKeys(ctx, "notes")
	require.NoError(t, err)
	assert.Empty(t, notes)
}

func TestRebuildKeepsInlineUnique(t *testing.T) {
	a := newMemoryAdapter(t)
	ctx := context.Background()
	_, err := a.Execute(ctx, `CREATE TABLE accounts (id INTEGER PRIMARY KEY, email TEXT UNIQUE, age INTEGER)`)
	require.NoError(t, err)
	_, err = a.Execute(ctx, `INSERT INTO accounts (email, age) VALUES ('a@x', 30)`)
	require.NoError(t, err)

	require.NoError(t, a.ChangeColumn(ctx, "accounts", "age", schemaforge.NewColumn("age", schemaforge.BigInteger, schemaforge.Nullable())))

	_, err = a.Execute(ctx, `INSERT INTO accounts (email, age) VALUES ('a@x', 31)`)
	var sqliteErr sqlite3.Error
	require.True(t, errors.As(err, &sqliteErr), "duplicate email must be rejected, got %v", err)
	assert.Equal(t, sqlite3.ErrConstraint, sqliteErr.Code)

	ok, err := a.HasIndex(ctx, "accounts", []string{"email"})
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestRebuildRefusesUncarriedClauses(t *testing.T) {
	a := newMemoryAdapter(t)
	ctx := context.Background()
	tables := map[string]string{
		"checked":  `CREATE TABLE checked (id INTEGER PRIMARY KEY, age INTEGER CHECK (age > 0))`,
		"counters": `CREATE TABLE counters (id INTEGER PRIMARY KEY AUTOINCREMENT, age INTEGER)`,
		"derived":  `CREATE TABLE derived (id INTEGER PRIMARY KEY, age INTEGER, twice INTEGER GENERATED ALWAYS AS (age * 2))`,
	}
	for table, stmt := range tables {
		_, err := a.Execute(ctx, stmt)
		require.NoError(t, err, table)

		err = a.ChangeColumn(ctx, table, "age", schemaforge.NewColumn("age", schemaforge.BigInteger))
		assert.ErrorIs(t, err, schemaforge.ErrUnsupportedOperation, table)

		cols, err := a.GetColumns(ctx, table)
		require.NoError(t, err)
		assert.Equal(t, schemaforge.Integer, cols[1].Type, "%s is left as it was", table)
	}
}

func TestIdentityColumnReadsBackAsInteger(t *testing.T) {
	a := newMemoryAdapter(t)
	ctx := context.Background()
	require.NoError(t, schemaforge.NewTable("members", a, schemaforge.WithIDColumn("uid")).
		AddColumn("name", schemaforge.String).Create(ctx))

	cols, err := a.GetColumns(ctx, "members")
	require.NoError(t, err)
	require.Len(t, cols, 2)
	assert.Equal(t, "uid", cols[0].Name)
	assert.Equal(t, schemaforge.Integer, cols[0].Type)
	assert.True(t, cols[0].Identity)
	assert.False(t, cols[0].Null)
}

func TestAlterOperations(t *testing.T) {
	a := newMemoryAdapter(t)
	ctx := context.Background()
	createUsersAndPosts(t, a)

	tbl := schemaforge.NewTable("users", a)
	tbl.AddColumn("score", schemaforge.Decimal, schemaforge.WithPrecision(6, 2), schemaforge.WithDefault("1.5"), schemaforge.After("email"))
	require.NoError(t, tbl.Save(ctx))
	cols, err := a.GetColumns(ctx, "users")
	require.NoError(t, err)
	last := cols[len(cols)-1]
	assert.Equal(t, "score", last.Name)
	assert.Equal(t, 6, last.Precision)
	assert.Equal(t, 2, last.Scale)
	assert.Equal(t, 1.5, last.Default)

	require.NoError(t, tbl.RenameColumn(ctx, "score", "rating"))
	err = tbl.RenameColumn(ctx, "score", "again")
	assert.ErrorIs(t, err, schemaforge.ErrUnknownColumn)

	require.NoError(t, tbl.RemoveColumn(ctx, "rating"))
	ok, err := tbl.HasColumn(ctx, "rating")
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, tbl.RemoveIndex(ctx, "uniq_users_email"))
	ok, err = tbl.HasIndex(ctx, "email")
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, tbl.Rename(ctx, "members"))
	ok, err = a.HasTable(ctx, "members")
	require.NoError(t, err)
	assert.True(t, ok)
	require.NoError(t, tbl.Drop(ctx))
	ok, err = a.HasTable(ctx, "members")
	require.NoError(t, err)
	assert.False(t, ok)

	bad := schemaforge.NewTable("weird", a)
	bad.AddColumn("data", "json")
	assert.ErrorIs(t, bad.Create(ctx), schemaforge.ErrUnsupportedType)
}

func TestTransactions(t *testing.T) {
	a := newMemoryAdapter(t)
	ctx := context.Background()
	createUsersAndPosts(t, a)

	require.NoError(t, a.BeginTransaction(ctx))
	assert.ErrorIs(t, a.BeginTransaction(ctx), schemaforge.ErrTransactionInProgress)
	tmp := schemaforge.NewTable("scratch", a)
	tmp.AddColumn("v", schemaforge.Integer)
	require.NoError(t, tmp.Create(ctx))
	require.NoError(t, a.ChangeColumn(ctx, "posts", "title", schemaforge.NewColumn("headline", schemaforge.String)))
	require.NoError(t, a.Rollback())

	ok, err := a.HasTable(ctx, "scratch")
	require.NoError(t, err)
	assert.False(t, ok)
	ok, err = a.HasColumn(ctx, "posts", "title")
	require.NoError(t, err)
	assert.True(t, ok, "rebuild joined the rolled back transaction")

	assert.ErrorIs(t, a.Commit(), schemaforge.ErrNoTransaction)
}

func TestHistory(t *testing.T) {
	a := newMemoryAdapter(t)
	ctx := context.Background()

	ok, err := a.HasSchemaTable(ctx)
	require.NoError(t, err)
	assert.True(t, ok)

	start := time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC)
	end := start.Add(2 * time.Second)
	require.NoError(t, a.Migrated(ctx, 20240301100000, schemaforge.Up, start, end))
	require.NoError(t, a.Migrated(ctx, 20240101000000, schemaforge.Up, start, end))

	versions, err := a.GetVersions(ctx)
	require.NoError(t, err)
	assert.Equal(t, []int64{20240101000000, 20240301100000}, versions)

	entries, err := a.GetHistory(ctx)
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.True(t, entries[1].StartTime.Equal(start))
	assert.True(t, entries[1].EndTime.Equal(end))

	require.NoError(t, a.Migrated(ctx, 20240301100000, schemaforge.Down, start, end))
	require.NoError(t, a.Migrated(ctx, 1, schemaforge.Down, start, end))
	versions, err = a.GetVersions(ctx)
	require.NoError(t, err)
	assert.Equal(t, []int64{20240101000000}, versions)
}

func TestCustomLedgerTable(t *testing.T) {
	a, err := New(schemaforge.Config{Name: ":memory:", SchemaTable: "schema_versions"})
	require.NoError(t, err)
	a.EnableLog(false)
	ctx := context.Background()
	require.NoError(t, a.Connect(ctx))
	defer a.Disconnect()
	require.NoError(t, a.Connect(ctx), "connect is idempotent")

	ok, err := a.HasTable(ctx, "schema_versions")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "schema_versions", a.SchemaTableName())
}

func TestStatementErrorKeepsDriverError(t *testing.T) {
	a := newMemoryAdapter(t)
	_, err := a.Execute(context.Background(), "SELEC 1")
	require.Error(t, err)
	assert.ErrorIs(t, err, schemaforge.ErrStatement)
	var sqlErr sqlite3.Error
	require.True(t, errors.As(err, &sqlErr))
	assert.Equal(t, sqlite3.ErrError, sqlErr.Code)
}

func TestNotConnected(t *testing.T) {
	a, err := New(schemaforge.Config{Name: ":memory:"})
	require.NoError(t, err)
	ctx := context.Background()
	_, err = a.HasTable(ctx, "users")
	assert.ErrorIs(t, err, schemaforge.ErrNotConnected)
	assert.ErrorIs(t, a.DropTable(ctx, "users"), schemaforge.ErrNotConnected)
	assert.ErrorIs(t, a.BeginTransaction(ctx), schemaforge.ErrNotConnected)
	assert.False(t, a.Connected())

	_, err = New(schemaforge.Config{})
	assert.ErrorIs(t, err, schemaforge.ErrInvalidConfig)

	reg, err := schemaforge.New(schemaforge.Config{Adapter: "sqlite3", Name: ":memory:"})
	require.NoError(t, err)
	assert.Equal(t, "sqlite", reg.DialectName())
}

func TestDatabaseFiles(t *testing.T) {
	path := filepath.Join(t.TempDir(), "app.db")
	a, err := New(schemaforge.Config{Name: path})
	require.NoError(t, err)
	a.EnableLog(false)
	ctx := context.Background()

	ok, err := a.HasDatabase(ctx, path)
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, a.CreateDatabase(ctx, path))
	require.NoError(t, a.CreateDatabase(ctx, path))
	ok, err = a.HasDatabase(ctx, path)
	require.NoError(t, err)
	assert.True(t, ok)

	require.NoError(t, a.Connect(ctx))
	ok, err = a.HasSchemaTable(ctx)
	require.NoError(t, err)
	assert.True(t, ok)

	require.NoError(t, a.DropDatabase(ctx, path))
	assert.False(t, a.Connected())
	ok, err = a.HasDatabase(ctx, path)
	require.NoError(t, err)
	assert.False(t, ok)
	require.NoError(t, a.DropDatabase(ctx, path))

	ok, err = a.HasDatabase(ctx, ":memory:")
	require.NoError(t, err)
	assert.True(t, ok)
}
