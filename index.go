package schemaforge

import (
	"fmt"
	"strings"
)

// Index is a (possibly unique) index over an ordered list of columns.
type Index struct {
	Columns []string
	Unique  bool
	Name    string
}

// IndexOption customizes an Index.
type IndexOption func(*Index)

func Unique() IndexOption {
	return func(i *Index) { i.Unique = true }
}

func IndexName(name string) IndexOption {
	return func(i *Index) { i.Name = name }
}

// NewIndex builds an index over columns.
func NewIndex(columns []string, opts ...IndexOption) *Index {
	idx := &Index{Columns: append([]string(nil), columns...)}
	for _, opt := range opts {
		opt(idx)
	}
	return idx
}

// NameFor returns the explicit name or derives idx_<table>_<cols> (uniq_ for unique indexes).
func (i *Index) NameFor(table string) string {
	if i.Name != "" {
		return i.Name
	}
	prefix := "idx"
	if i.Unique {
		prefix = "uniq"
	}
	return fmt.Sprintf("%s_%s_%s", prefix, table, strings.Join(i.Columns, "_"))
}
