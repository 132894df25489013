package ddl

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/burugo/schemaforge"
)

type doubleQuote struct{}

func (doubleQuote) Quote(s string) string { return QuoteIdentifier(s, '"') }
func (doubleQuote) Placeholder(i int) string { return "$" + string(rune('0'+i)) }

func TestQuoteIdentifier(t *testing.T) {
	assert.Equal(t, `"users"`, QuoteIdentifier("users", '"'))
	assert.Equal(t, `"we""ird"`, QuoteIdentifier(`we"ird`, '"'))
	assert.Equal(t, "`a``b`", QuoteIdentifier("a`b", '`'))
	assert.Equal(t, `"a", "b"`, QuoteList(doubleQuote{}, []string{"a", "b"}))
}

func TestDefaultValue(t *testing.T) {
	cases := []struct {
		name string
		typ  schemaforge.PortableType
		v    any
		want string
	}{
		{"int", schemaforge.Integer, 5, "5"},
		{"int64", schemaforge.BigInteger, int64(-7), "-7"},
		{"float", schemaforge.Float, 1.5, "1.5"},
		{"numeric string on numeric column", schemaforge.Decimal, "2.50", "2.50"},
		{"numeric string on text column", schemaforge.String, "42", "'42'"},
		{"string", schemaforge.String, "it's", "'it''s'"},
		{"null", schemaforge.String, schemaforge.Null, "NULL"},
		{"literal", schemaforge.Timestamp, schemaforge.Literal("CURRENT_TIMESTAMP"), "CURRENT_TIMESTAMP"},
		{"true", schemaforge.Boolean, true, "TRUE"},
		{"false", schemaforge.Boolean, false, "FALSE"},
		{"time", schemaforge.Timestamp, time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC), "'2024-01-02 03:04:05'"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, DefaultValue(tc.typ, tc.v, StandardBools))
		})
	}
	assert.Equal(t, "1", DefaultValue(schemaforge.Boolean, true, NumericBools))
}

func TestRenderDefaultAbsent(t *testing.T) {
	assert.Empty(t, RenderDefault(schemaforge.NewColumn("a", schemaforge.String), StandardBools))
	c := schemaforge.NewColumn("a", schemaforge.Integer, schemaforge.WithDefault(0))
	assert.Equal(t, " DEFAULT 0", RenderDefault(c, StandardBools))
}

func TestResolveColumns(t *testing.T) {
	t.Run("implicit id", func(t *testing.T) {
		tbl := schemaforge.NewTable("users", nil)
		tbl.AddColumn("email", schemaforge.String)
		cols, pk := ResolveColumns(tbl)
		require.Len(t, cols, 2)
		assert.Equal(t, "users_id", cols[0].Name)
		assert.Equal(t, schemaforge.PrimaryKey, cols[0].Type)
		assert.True(t, cols[0].Identity)
		assert.Equal(t, []string{"users_id"}, pk)
	})
	t.Run("named id", func(t *testing.T) {
		tbl := schemaforge.NewTable("users", nil, schemaforge.WithIDColumn("uid"))
		cols, pk := ResolveColumns(tbl)
		require.Len(t, cols, 1)
		assert.Equal(t, schemaforge.Integer, cols[0].Type)
		assert.Equal(t, []string{"uid"}, pk)
	})
	t.Run("no id with explicit key", func(t *testing.T) {
		tbl := schemaforge.NewTable("pairs", nil, schemaforge.WithoutID(), schemaforge.WithPrimaryKey("a", "b"))
		tbl.AddColumn("a", schemaforge.Integer).AddColumn("b", schemaforge.Integer)
		cols, pk := ResolveColumns(tbl)
		assert.Len(t, cols, 2)
		assert.Equal(t, []string{"a", "b"}, pk)
	})
	t.Run("no id and no key", func(t *testing.T) {
		tbl := schemaforge.NewTable("log", nil, schemaforge.WithoutID())
		tbl.AddColumn("line", schemaforge.Text)
		_, pk := ResolveColumns(tbl)
		assert.Empty(t, pk)
	})
}

func TestForeignKeyClause(t *testing.T) {
	fk := schemaforge.NewForeignKey([]string{"user_id"}, "users", []string{"id"}, schemaforge.OnDelete(schemaforge.Cascade))
	assert.Equal(t,
		`CONSTRAINT "posts_user_id" FOREIGN KEY ("user_id") REFERENCES "users" ("id") ON DELETE CASCADE`,
		ForeignKeyClause(doubleQuote{}, "posts", fk))
}

func TestCreateIndexSQL(t *testing.T) {
	idx := schemaforge.NewIndex([]string{"b", "a"}, schemaforge.Unique())
	assert.Equal(t, `CREATE UNIQUE INDEX "uniq_t_b_a" ON "t" ("b", "a")`, CreateIndexSQL(doubleQuote{}, "t", idx))
}

func TestColumnSets(t *testing.T) {
	assert.True(t, ColumnsCover([]string{"A", "b", "c"}, []string{"a", "B"}))
	assert.False(t, ColumnsCover([]string{"a"}, []string{"a", "b"}))
	assert.True(t, ColumnsCover([]string{"a"}, nil))

	assert.True(t, SameColumns([]string{"a", "B"}, []string{"b", "A"}))
	assert.False(t, SameColumns([]string{"a", "b"}, []string{"a"}))
}

func TestForeignKeyLookup(t *testing.T) {
	fks := map[string]schemaforge.ForeignKeyInfo{
		"posts_user_id":      {Name: "posts_user_id", Columns: []string{"user_id"}},
		"posts_user_id_copy": {Name: "posts_user_id_copy", Columns: []string{"user_id"}},
		"posts_pair":         {Name: "posts_pair", Columns: []string{"a", "b"}},
	}
	assert.Equal(t, []string{"posts_user_id", "posts_user_id_copy"}, MatchingForeignKeys(fks, []string{"USER_ID"}))
	assert.Empty(t, MatchingForeignKeys(fks, []string{"a"}))

	assert.True(t, ForeignKeyExists(fks, []string{"a"}, ""))
	assert.True(t, ForeignKeyExists(fks, nil, "posts_pair"))
	assert.False(t, ForeignKeyExists(fks, []string{"a"}, "missing"))
	assert.False(t, ForeignKeyExists(fks, []string{"z"}, ""))
}
