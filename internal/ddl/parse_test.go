package ddl

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/burugo/schemaforge"
)

func TestParseTypeSpec(t *testing.T) {
	cases := map[string]TypeSpec{
		"varchar(255)":                   {Name: "varchar", Args: []int{255}},
		"DECIMAL(10, 2)":                 {Name: "decimal", Args: []int{10, 2}},
		"int(11) unsigned":               {Name: "int", Args: []int{11}, Modifier: "unsigned"},
		"double precision":               {Name: "double precision"},
		"character varying":              {Name: "character varying"},
		"timestamp(6) without time zone": {Name: "timestamp", Args: []int{6}, Modifier: "without time zone"},
		"text":                           {Name: "text"},
	}
	for in, want := range cases {
		t.Run(in, func(t *testing.T) {
			assert.Equal(t, want, ParseTypeSpec(in))
		})
	}
	spec := ParseTypeSpec("decimal(8,3)")
	assert.Equal(t, 8, spec.Arg(0))
	assert.Equal(t, 3, spec.Arg(1))
	assert.Equal(t, 0, spec.Arg(2))
}

func TestParseDefault(t *testing.T) {
	assert.Nil(t, ParseDefault("", false))
	assert.Nil(t, ParseDefault("  ", true))
	assert.Equal(t, schemaforge.Null, ParseDefault("NULL", true))
	assert.Equal(t, schemaforge.Null, ParseDefault("NULL::character varying", true))
	assert.Equal(t, "abc", ParseDefault("'abc'::character varying", true))
	assert.Equal(t, "it's", ParseDefault("'it''s'", true))
	assert.Equal(t, int64(0), ParseDefault("0", true))
	assert.Equal(t, int64(3), ParseDefault("(3)", true))
	assert.Equal(t, 1.25, ParseDefault("1.25", true))
	assert.Equal(t, schemaforge.Literal("CURRENT_TIMESTAMP"), ParseDefault("CURRENT_TIMESTAMP", true))
	assert.Equal(t, schemaforge.Literal("nextval('users_id_seq'::regclass)"), ParseDefault("nextval('users_id_seq'::regclass)", true))
}
