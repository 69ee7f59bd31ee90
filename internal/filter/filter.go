// Package filter models user-supplied filter trees and compiles them into
// boolean SQL against the analytical store.
package filter

import (
	"encoding/json"
	"fmt"
)

// Condition operators. Temporal variants behave like their plain
// counterparts but exist so clients can mark date semantics explicitly.
const (
	OpEq              = "eq"
	OpIn              = "in"
	OpGt              = "gt"
	OpLt              = "lt"
	OpGte             = "gte"
	OpLte             = "lte"
	OpBetween         = "between"
	OpTemporalBefore  = "temporal_before"
	OpTemporalAfter   = "temporal_after"
	OpTemporalSince   = "temporal_since"
	OpTemporalUntil   = "temporal_until"
	OpTemporalBetween = "temporal_between"
)

// Condition is a leaf predicate. TableName identifies which table's column
// the predicate applies to; it is the sole signal for same-table versus
// cross-table compilation, and a leaf without it always compiles against
// the base table.
type Condition struct {
	Column     string `json:"column"`
	Operator   string `json:"operator"`
	Value      any    `json:"value"`
	TableName  string `json:"tableName,omitempty"`
	CountByKey string `json:"countByKey,omitempty"`
}

// Filter is a tagged union: exactly one of Cond, And, Or, Not is set.
// UnmarshalJSON enforces the invariant so the compiler can be a single
// recursive switch with no unwrap helpers.
type Filter struct {
	Cond *Condition
	And  []Filter
	Or   []Filter
	Not  *Filter
}

type filterJSON struct {
	And []Filter `json:"and,omitempty"`
	Or  []Filter `json:"or,omitempty"`
	Not *Filter  `json:"not,omitempty"`

	Column     string          `json:"column,omitempty"`
	Operator   string          `json:"operator,omitempty"`
	Value      json.RawMessage `json:"value,omitempty"`
	TableName  string          `json:"tableName,omitempty"`
	CountByKey string          `json:"countByKey,omitempty"`
}

// UnmarshalJSON decodes either a combinator object ({"and": [...]}, etc.)
// or a leaf condition, rejecting objects that mix variants.
func (f *Filter) UnmarshalJSON(data []byte) error {
	var raw filterJSON
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}

	variants := 0
	if len(raw.And) > 0 {
		variants++
	}
	if len(raw.Or) > 0 {
		variants++
	}
	if raw.Not != nil {
		variants++
	}
	if raw.Column != "" {
		variants++
	}
	if variants == 0 {
		return fmt.Errorf("filter must be a condition or one of and/or/not")
	}
	if variants > 1 {
		return fmt.Errorf("filter cannot mix condition fields with and/or/not")
	}

	switch {
	case len(raw.And) > 0:
		*f = Filter{And: raw.And}
	case len(raw.Or) > 0:
		*f = Filter{Or: raw.Or}
	case raw.Not != nil:
		*f = Filter{Not: raw.Not}
	default:
		cond := &Condition{
			Column:     raw.Column,
			Operator:   raw.Operator,
			TableName:  raw.TableName,
			CountByKey: raw.CountByKey,
		}
		if len(raw.Value) > 0 {
			if err := json.Unmarshal(raw.Value, &cond.Value); err != nil {
				return fmt.Errorf("invalid filter value for column %s: %w", raw.Column, err)
			}
		}
		*f = Filter{Cond: cond}
	}
	return nil
}

// MarshalJSON renders the populated variant back to its wire shape.
func (f Filter) MarshalJSON() ([]byte, error) {
	switch {
	case len(f.And) > 0:
		return json.Marshal(map[string]any{"and": f.And})
	case len(f.Or) > 0:
		return json.Marshal(map[string]any{"or": f.Or})
	case f.Not != nil:
		return json.Marshal(map[string]any{"not": f.Not})
	case f.Cond != nil:
		return json.Marshal(f.Cond)
	default:
		return []byte("null"), nil
	}
}

// ParseFilters decodes the JSON-encoded filter list carried in the
// aggregation request's query string. An empty input is no filters.
func ParseFilters(raw string) ([]Filter, error) {
	if raw == "" {
		return nil, nil
	}
	var filters []Filter
	if err := json.Unmarshal([]byte(raw), &filters); err != nil {
		return nil, fmt.Errorf("invalid filters parameter: %w", err)
	}
	return filters, nil
}
