package schemaforge

// nullDefault marks an explicit DEFAULT NULL.
type nullDefault struct{}

// Null as a column default renders DEFAULT NULL.
var Null = nullDefault{}

// Literal is a default rendered verbatim, e.g. Literal("CURRENT_TIMESTAMP").
type Literal string

// Column describes one table column.
//
// Default is nil when the column has no default. Numeric Go values render unquoted,
// Null renders NULL, Literal renders as-is and anything else is quoted as a string.
type Column struct {
	Name      string
	Type      PortableType
	Limit     int
	Precision int
	Scale     int
	Null      bool
	Default   any
	Identity  bool
	After     string
}

// ColumnOption customizes a Column built with NewColumn.
type ColumnOption func(*Column)

// NewColumn returns a non-null column of the given type.
func NewColumn(name string, typ PortableType, opts ...ColumnOption) *Column {
	c := &Column{Name: name, Type: typ}
	for _, opt := range opts {
		opt(c)
	}
	if c.Identity {
		c.Null = false
	}
	return c
}

func WithLimit(limit int) ColumnOption {
	return func(c *Column) { c.Limit = limit }
}

func WithPrecision(precision, scale int) ColumnOption {
	return func(c *Column) {
		c.Precision = precision
		c.Scale = scale
	}
}

func Nullable() ColumnOption {
	return func(c *Column) { c.Null = true }
}

func NotNull() ColumnOption {
	return func(c *Column) { c.Null = false }
}

func WithDefault(v any) ColumnOption {
	return func(c *Column) { c.Default = v }
}

// Identity marks the column as engine-generated. Identity columns are never null.
func Identity() ColumnOption {
	return func(c *Column) { c.Identity = true }
}

// After asks for positional insertion after the named column. Only engines whose grammar
// supports it honour the hint.
func After(column string) ColumnOption {
	return func(c *Column) { c.After = column }
}

// IsNull reports whether the column accepts NULL. Identity columns never do.
func (c *Column) IsNull() bool {
	return c.Null && !c.Identity
}
