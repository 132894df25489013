package sqlite

import (
	"strings"

	"github.com/burugo/schemaforge"
	"github.com/burugo/schemaforge/common"
	"github.com/burugo/schemaforge/internal/ddl"
)

const defaultStringLimit = 255

// ToNativeType maps a portable type onto the declared type SQLite stores for it.
func (a *Adapter) ToNativeType(t schemaforge.PortableType) (schemaforge.NativeType, error) {
	return toNative(t)
}

// FromNativeType maps a declared column type back to a portable type. SQLite keeps the
// declaration text verbatim, so anything this adapter did not write passes through.
func (a *Adapter) FromNativeType(native string) schemaforge.NativeType {
	return fromNative(native)
}

func toNative(t schemaforge.PortableType) (schemaforge.NativeType, error) {
	switch t {
	case schemaforge.PrimaryKey, schemaforge.Integer:
		return schemaforge.NativeType{Name: "integer"}, nil
	case schemaforge.String:
		return schemaforge.NativeType{Name: "varchar", Limit: defaultStringLimit}, nil
	case schemaforge.Text:
		return schemaforge.NativeType{Name: "text"}, nil
	case schemaforge.BigInteger:
		return schemaforge.NativeType{Name: "bigint"}, nil
	case schemaforge.Float:
		return schemaforge.NativeType{Name: "float"}, nil
	case schemaforge.Decimal:
		return schemaforge.NativeType{Name: "decimal"}, nil
	case schemaforge.Timestamp:
		return schemaforge.NativeType{Name: "timestamp"}, nil
	case schemaforge.Time:
		return schemaforge.NativeType{Name: "time"}, nil
	case schemaforge.Date:
		return schemaforge.NativeType{Name: "date"}, nil
	case schemaforge.Binary:
		return schemaforge.NativeType{Name: "blob"}, nil
	case schemaforge.Boolean:
		return schemaforge.NativeType{Name: "boolean"}, nil
	}
	return schemaforge.NativeType{}, &common.UnsupportedTypeError{Type: string(t), Adapter: dialectName}
}

func fromNative(native string) schemaforge.NativeType {
	spec := ddl.ParseTypeSpec(native)
	name := strings.TrimSuffix(spec.Name, " unsigned")
	switch name {
	case "integer", "int", "smallint", "tinyint", "mediumint":
		return schemaforge.NativeType{Name: string(schemaforge.Integer)}
	case "bigint", "int8":
		return schemaforge.NativeType{Name: string(schemaforge.BigInteger)}
	case "varchar", "nvarchar", "character varying":
		limit := spec.Arg(0)
		if limit == defaultStringLimit {
			limit = 0
		}
		return schemaforge.NativeType{Name: string(schemaforge.String), Limit: limit}
	case "char", "character", "nchar":
		return schemaforge.NativeType{Name: string(schemaforge.String), Limit: spec.Arg(0)}
	case "text", "clob":
		return schemaforge.NativeType{Name: string(schemaforge.Text)}
	case "float", "double", "double precision", "real":
		return schemaforge.NativeType{Name: string(schemaforge.Float)}
	case "decimal", "numeric":
		return schemaforge.NativeType{Name: string(schemaforge.Decimal), Precision: spec.Arg(0), Scale: spec.Arg(1)}
	case "timestamp", "datetime":
		return schemaforge.NativeType{Name: string(schemaforge.Timestamp)}
	case "time":
		return schemaforge.NativeType{Name: string(schemaforge.Time)}
	case "date":
		return schemaforge.NativeType{Name: string(schemaforge.Date)}
	case "blob":
		return schemaforge.NativeType{Name: string(schemaforge.Binary)}
	case "boolean", "bool":
		return schemaforge.NativeType{Name: string(schemaforge.Boolean)}
	}
	return schemaforge.NativeType{Name: spec.Name, Limit: spec.Arg(0)}
}

// columnType resolves the declared type of c. Identity columns are always INTEGER so the
// column aliases the rowid.
func columnType(c *schemaforge.Column) (schemaforge.NativeType, error) {
	if c.Identity && (c.Type == schemaforge.BigInteger || c.Type == schemaforge.Integer || c.Type == schemaforge.PrimaryKey) {
		return schemaforge.NativeType{Name: "integer"}, nil
	}
	nt, err := toNative(c.Type)
	if err != nil {
		return nt, err
	}
	switch c.Type {
	case schemaforge.String:
		if c.Limit > 0 {
			nt.Limit = c.Limit
		}
	case schemaforge.Decimal:
		nt.Precision, nt.Scale = c.Precision, c.Scale
	}
	return nt, nil
}
