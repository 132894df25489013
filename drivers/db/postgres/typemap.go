package postgres

import (
	"github.com/burugo/schemaforge"
	"github.com/burugo/schemaforge/common"
	"github.com/burugo/schemaforge/internal/ddl"
)

const defaultStringLimit = 255

// ToNativeType maps a portable type onto a PostgreSQL type.
func (a *Adapter) ToNativeType(t schemaforge.PortableType) (schemaforge.NativeType, error) {
	return toNative(t)
}

// FromNativeType maps a PostgreSQL type spelling, as found in information_schema, back to a
// portable type. Spellings it does not know pass through unchanged.
func (a *Adapter) FromNativeType(native string) schemaforge.NativeType {
	return fromNative(native)
}

func toNative(t schemaforge.PortableType) (schemaforge.NativeType, error) {
	switch t {
	case schemaforge.PrimaryKey:
		return schemaforge.NativeType{Name: "serial"}, nil
	case schemaforge.String:
		return schemaforge.NativeType{Name: "varchar", Limit: defaultStringLimit}, nil
	case schemaforge.Text:
		return schemaforge.NativeType{Name: "text"}, nil
	case schemaforge.Integer:
		return schemaforge.NativeType{Name: "integer"}, nil
	case schemaforge.BigInteger:
		return schemaforge.NativeType{Name: "bigint"}, nil
	case schemaforge.Float:
		return schemaforge.NativeType{Name: "double precision"}, nil
	case schemaforge.Decimal:
		return schemaforge.NativeType{Name: "decimal"}, nil
	case schemaforge.Timestamp:
		return schemaforge.NativeType{Name: "timestamp"}, nil
	case schemaforge.Time:
		return schemaforge.NativeType{Name: "time"}, nil
	case schemaforge.Date:
		return schemaforge.NativeType{Name: "date"}, nil
	case schemaforge.Binary:
		return schemaforge.NativeType{Name: "bytea"}, nil
	case schemaforge.Boolean:
		return schemaforge.NativeType{Name: "boolean"}, nil
	}
	return schemaforge.NativeType{}, &common.UnsupportedTypeError{Type: string(t), Adapter: dialectName}
}

func fromNative(native string) schemaforge.NativeType {
	spec := ddl.ParseTypeSpec(native)
	switch spec.Name {
	case "character varying", "varchar":
		limit := spec.Arg(0)
		if limit == defaultStringLimit {
			limit = 0
		}
		return schemaforge.NativeType{Name: string(schemaforge.String), Limit: limit}
	case "character", "char", "bpchar":
		return schemaforge.NativeType{Name: string(schemaforge.String), Limit: spec.Arg(0)}
	case "text":
		return schemaforge.NativeType{Name: string(schemaforge.Text)}
	case "integer", "int", "int4", "int2", "smallint":
		return schemaforge.NativeType{Name: string(schemaforge.Integer)}
	case "bigint", "int8":
		return schemaforge.NativeType{Name: string(schemaforge.BigInteger)}
	case "serial", "serial4", "bigserial", "serial8":
		return schemaforge.NativeType{Name: string(schemaforge.PrimaryKey)}
	case "double precision", "float8", "real", "float4", "float":
		return schemaforge.NativeType{Name: string(schemaforge.Float)}
	case "numeric", "decimal":
		return schemaforge.NativeType{Name: string(schemaforge.Decimal), Precision: spec.Arg(0), Scale: spec.Arg(1)}
	case "timestamp", "timestamp without time zone", "timestamp with time zone", "timestamptz":
		return schemaforge.NativeType{Name: string(schemaforge.Timestamp)}
	case "time", "time without time zone", "time with time zone", "timetz":
		return schemaforge.NativeType{Name: string(schemaforge.Time)}
	case "date":
		return schemaforge.NativeType{Name: string(schemaforge.Date)}
	case "bytea", "blob":
		return schemaforge.NativeType{Name: string(schemaforge.Binary)}
	case "boolean", "bool":
		return schemaforge.NativeType{Name: string(schemaforge.Boolean)}
	}
	return schemaforge.NativeType{Name: spec.Name, Limit: spec.Arg(0)}
}

// columnType resolves the rendered type of c. Identity integer columns become sequence
// backed (serial/bigserial); a column limit overrides the string default of 255.
func columnType(c *schemaforge.Column) (schemaforge.NativeType, error) {
	if c.Identity {
		switch c.Type {
		case schemaforge.PrimaryKey, schemaforge.Integer:
			return schemaforge.NativeType{Name: "serial"}, nil
		case schemaforge.BigInteger:
			return schemaforge.NativeType{Name: "bigserial"}, nil
		}
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

// alterType is the type used by ALTER COLUMN ... TYPE, where serial pseudo-types are invalid.
func alterType(nt schemaforge.NativeType) schemaforge.NativeType {
	switch nt.Name {
	case "serial":
		return schemaforge.NativeType{Name: "integer"}
	case "bigserial":
		return schemaforge.NativeType{Name: "bigint"}
	}
	return nt
}
