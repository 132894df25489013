package ddl

import (
	"regexp"
	"strconv"
	"strings"

	"github.com/burugo/schemaforge"
)

var typeSpecRe = regexp.MustCompile(`^\s*([a-zA-Z][a-zA-Z0-9_ ]*?)\s*(?:\(\s*(\d+)\s*(?:,\s*(\d+)\s*)?\)\s*([a-zA-Z ]*))?\s*$`)

// TypeSpec is a native column type split into its parts, e.g. "decimal(10,2)".
type TypeSpec struct {
	Name     string // lowercased base name
	Args     []int
	Modifier string // trailing words such as "unsigned"
}

// ParseTypeSpec splits a native type declaration. Unparseable input comes back as a
// lowercased name with no arguments.
func ParseTypeSpec(s string) TypeSpec {
	m := typeSpecRe.FindStringSubmatch(s)
	if m == nil {
		return TypeSpec{Name: strings.ToLower(strings.TrimSpace(s))}
	}
	spec := TypeSpec{
		Name:     strings.ToLower(strings.TrimSpace(m[1])),
		Modifier: strings.ToLower(strings.TrimSpace(m[4])),
	}
	for _, arg := range m[2:4] {
		if arg == "" {
			continue
		}
		n, _ := strconv.Atoi(arg)
		spec.Args = append(spec.Args, n)
	}
	return spec
}

// Arg returns the i-th argument or 0.
func (s TypeSpec) Arg(i int) int {
	if i < len(s.Args) {
		return s.Args[i]
	}
	return 0
}

var castSuffixRe = regexp.MustCompile(`::[a-zA-Z_ ]+(\[\])?$`)

// ParseDefault turns a default expression read back from a catalog into a column default:
// nil for none, schemaforge.Null for NULL, a string for quoted literals, int64/float64 for
// numbers, and schemaforge.Literal for any other expression (function calls, sequences).
func ParseDefault(raw string, valid bool) any {
	if !valid {
		return nil
	}
	s := strings.TrimSpace(raw)
	if s == "" {
		return nil
	}
	s = castSuffixRe.ReplaceAllString(s, "")
	for len(s) > 1 && s[0] == '(' && s[len(s)-1] == ')' {
		s = strings.TrimSpace(s[1 : len(s)-1])
	}
	if strings.EqualFold(s, "NULL") {
		return schemaforge.Null
	}
	if len(s) >= 2 && s[0] == '\'' && s[len(s)-1] == '\'' {
		return strings.ReplaceAll(s[1:len(s)-1], "''", "'")
	}
	if n, err := strconv.ParseInt(s, 10, 64); err == nil {
		return n
	}
	if f, err := strconv.ParseFloat(s, 64); err == nil {
		return f
	}
	return schemaforge.Literal(s)
}
