package schemaforge

import (
	"fmt"
	"strings"
	"time"
)

// PortableType is an engine-agnostic column type used by migration authors.
type PortableType string

// The fixed set of portable types every adapter maps.
const (
	PrimaryKey PortableType = "primary_key"
	String     PortableType = "string"
	Text       PortableType = "text"
	Integer    PortableType = "integer"
	BigInteger PortableType = "biginteger"
	Float      PortableType = "float"
	Decimal    PortableType = "decimal"
	Timestamp  PortableType = "timestamp"
	Time       PortableType = "time"
	Date       PortableType = "date"
	Binary     PortableType = "binary"
	Boolean    PortableType = "boolean"
)

// PortableTypes lists every portable type in declaration order.
var PortableTypes = []PortableType{
	PrimaryKey, String, Text, Integer, BigInteger, Float,
	Decimal, Timestamp, Time, Date, Binary, Boolean,
}

// Valid reports whether t is one of the portable types.
func (t PortableType) Valid() bool {
	for _, p := range PortableTypes {
		if p == t {
			return true
		}
	}
	return false
}

// Numeric reports whether defaults of this type are rendered unquoted.
func (t PortableType) Numeric() bool {
	switch t {
	case PrimaryKey, Integer, BigInteger, Float, Decimal:
		return true
	}
	return false
}

// ParsePortableType normalizes s and returns the matching portable type.
func ParsePortableType(s string) (PortableType, bool) {
	t := PortableType(strings.ToLower(strings.TrimSpace(s)))
	return t, t.Valid()
}

// NativeType is a type name plus optional length or precision/scale.
// Zero values mean absent. When returned by FromNativeType, Name holds the portable name.
type NativeType struct {
	Name      string
	Limit     int
	Precision int
	Scale     int
}

// String renders the type as it appears in DDL.
func (n NativeType) String() string {
	name := strings.ToUpper(n.Name)
	switch {
	case n.Precision > 0 && n.Scale > 0:
		return fmt.Sprintf("%s(%d,%d)", name, n.Precision, n.Scale)
	case n.Precision > 0:
		return fmt.Sprintf("%s(%d)", name, n.Precision)
	case n.Limit > 0:
		return fmt.Sprintf("%s(%d)", name, n.Limit)
	}
	return name
}

// Direction is the direction a migration ran in.
type Direction string

const (
	Up   Direction = "up"
	Down Direction = "down"
)

// ParseDirection accepts "up" or "down" in any case.
func ParseDirection(s string) (Direction, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "up":
		return Up, nil
	case "down":
		return Down, nil
	}
	return "", fmt.Errorf("invalid migration direction %q", s)
}

// HistoryEntry is one row of the schema history ledger.
type HistoryEntry struct {
	Version   int64     `db:"version"`
	StartTime time.Time `db:"start_time"`
	EndTime   time.Time `db:"end_time"`
}
