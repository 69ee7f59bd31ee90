package filter

import (
	"encoding/json"
	"testing"
)

func TestFilterUnmarshal_Leaf(t *testing.T) {
	var f Filter
	err := json.Unmarshal([]byte(`{"column":"status","operator":"eq","value":"Confirmed","tableName":"samples"}`), &f)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if f.Cond == nil {
		t.Fatal("expected leaf condition")
	}
	if f.Cond.Column != "status" || f.Cond.Operator != OpEq || f.Cond.Value != "Confirmed" || f.Cond.TableName != "samples" {
		t.Fatalf("unexpected condition: %+v", f.Cond)
	}
}

func TestFilterUnmarshal_Combinators(t *testing.T) {
	var f Filter
	err := json.Unmarshal([]byte(`{"or":[{"column":"a","operator":"eq","value":1},{"not":{"and":[{"column":"b","operator":"eq","value":2}]}}]}`), &f)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(f.Or) != 2 {
		t.Fatalf("expected 2 or-children, got %d", len(f.Or))
	}
	if f.Or[0].Cond == nil {
		t.Fatal("expected first child to be a leaf")
	}
	not := f.Or[1].Not
	if not == nil || len(not.And) != 1 || not.And[0].Cond == nil {
		t.Fatalf("expected not(and(leaf)), got %+v", f.Or[1])
	}
}

func TestFilterUnmarshal_RejectsMixedVariants(t *testing.T) {
	var f Filter
	err := json.Unmarshal([]byte(`{"column":"a","operator":"eq","value":1,"and":[{"column":"b","operator":"eq","value":2}]}`), &f)
	if err == nil {
		t.Fatal("expected error for mixed condition and combinator fields")
	}
}

func TestFilterUnmarshal_RejectsEmptyObject(t *testing.T) {
	var f Filter
	if err := json.Unmarshal([]byte(`{}`), &f); err == nil {
		t.Fatal("expected error for empty filter object")
	}
}

func TestParseFilters_EmptyInput(t *testing.T) {
	filters, err := ParseFilters("")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if filters != nil {
		t.Fatalf("expected no filters, got %+v", filters)
	}
}

func TestParseFilters_InvalidJSON(t *testing.T) {
	if _, err := ParseFilters(`[{`); err == nil {
		t.Fatal("expected error for malformed JSON")
	}
}

func TestFilterMarshal_RoundTrip(t *testing.T) {
	raw := `[{"and":[{"column":"status","operator":"in","value":["A","B"]},{"not":{"column":"age","operator":"gt","value":40}}]}]`
	filters, err := ParseFilters(raw)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	encoded, err := json.Marshal(filters)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	reparsed, err := ParseFilters(string(encoded))
	if err != nil {
		t.Fatalf("re-parse failed: %v", err)
	}
	if len(reparsed) != 1 || len(reparsed[0].And) != 2 {
		t.Fatalf("round-trip lost structure: %s", encoded)
	}
}
