package filter

import (
	"fmt"
	"strconv"
	"strings"
)

// Display labels for sentinel values. Users filter on the labels the charts
// show, so the compiler and the aggregation normalizer must agree on them:
// a category labeled "(Empty)" covers both empty strings and NULLs, while
// "(N/A)" covers the literal textual not-available markers.
const (
	EmptyLabel = "(Empty)"
	NALabel    = "(N/A)"
)

// naSpellings are the raw store values normalized to the (N/A) label.
var naSpellings = map[string]struct{}{
	"na":              {},
	"n/a":             {},
	"not available":   {},
	"[not available]": {},
}

// IsEmptyLabel reports whether a filter value is the (Empty) display label.
func IsEmptyLabel(v any) bool {
	s, ok := v.(string)
	return ok && s == EmptyLabel
}

// IsNALabel reports whether a filter value is the (N/A) display label.
func IsNALabel(v any) bool {
	s, ok := v.(string)
	return ok && s == NALabel
}

// IsNARaw reports whether a raw store value normalizes to (N/A).
func IsNARaw(s string) bool {
	_, ok := naSpellings[strings.ToLower(strings.TrimSpace(s))]
	return ok
}

// DisplayLabel maps a raw store value to the label charts display. The raw
// value is kept alongside the label so filters round-trip exactly.
func DisplayLabel(raw any) string {
	switch v := raw.(type) {
	case nil:
		return EmptyLabel
	case string:
		if v == "" {
			return EmptyLabel
		}
		if IsNARaw(v) {
			return NALabel
		}
		return v
	case []byte:
		return DisplayLabel(string(v))
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64)
	case int64:
		return strconv.FormatInt(v, 10)
	case bool:
		return strconv.FormatBool(v)
	default:
		return fmt.Sprintf("%v", v)
	}
}
