// Package sqlutil provides SQL rendering utilities for the analytical store
// dialect: bare identifiers, inline literals.
package sqlutil

import (
	"fmt"
	"strconv"
	"strings"
)

// QuoteString quotes a SQL string literal with single quotes and escapes
// any single quotes within the string by doubling them.
func QuoteString(s string) string {
	escaped := strings.ReplaceAll(s, "'", "''")
	return "'" + escaped + "'"
}

// Qualify renders alias.column, or the bare column when alias is empty
// (inside a subquery only one table is in scope).
func Qualify(alias, column string) string {
	if alias == "" {
		return column
	}
	return alias + "." + column
}

// Literal renders a filter value as an inline SQL literal. JSON-decoded
// numbers arrive as float64; integral values must render without a decimal
// point so IN-list types align with integer key columns.
func Literal(v any) string {
	switch val := v.(type) {
	case nil:
		return "NULL"
	case string:
		return QuoteString(val)
	case bool:
		if val {
			return "TRUE"
		}
		return "FALSE"
	case float64:
		return strconv.FormatFloat(val, 'f', -1, 64)
	case float32:
		return strconv.FormatFloat(float64(val), 'f', -1, 32)
	case int:
		return strconv.Itoa(val)
	case int64:
		return strconv.FormatInt(val, 10)
	default:
		return QuoteString(fmt.Sprintf("%v", val))
	}
}
