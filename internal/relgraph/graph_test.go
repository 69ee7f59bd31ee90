package relgraph

import (
	"errors"
	"testing"

	"datascope/internal/metadata"
)

// chainTables builds mutations → samples → patients → hospitals, each child
// holding the foreign key to its parent.
func chainTables() []metadata.TableMetadata {
	return []metadata.TableMetadata{
		{Name: "hospitals"},
		{Name: "patients", Relationships: []metadata.Relationship{
			{ForeignKeyColumn: "hospital_id", ReferencedTable: "hospitals", ReferencedColumn: "hospital_id"},
		}},
		{Name: "samples", Relationships: []metadata.Relationship{
			{ForeignKeyColumn: "patient_id", ReferencedTable: "patients", ReferencedColumn: "patient_id"},
		}},
		{Name: "mutations", Relationships: []metadata.Relationship{
			{ForeignKeyColumn: "sample_id", ReferencedTable: "samples", ReferencedColumn: "sample_id"},
		}},
		{Name: "islands"},
	}
}

func TestFindPath_SingleForwardHop(t *testing.T) {
	path := FindPath("samples", "patients", chainTables())
	if len(path) != 1 {
		t.Fatalf("expected 1 segment, got %d: %+v", len(path), path)
	}
	seg := path[0]
	if seg.FromTable != "samples" || seg.ToTable != "patients" || seg.ViaColumn != "patient_id" || seg.Backward {
		t.Fatalf("unexpected segment: %+v", seg)
	}
	if seg.LocalColumn() != "patient_id" || seg.RemoteColumn() != "patient_id" {
		t.Fatalf("unexpected join columns: %+v", seg)
	}
}

func TestFindPath_SingleBackwardHop(t *testing.T) {
	path := FindPath("patients", "samples", chainTables())
	if len(path) != 1 {
		t.Fatalf("expected 1 segment, got %d: %+v", len(path), path)
	}
	seg := path[0]
	if !seg.Backward {
		t.Fatalf("expected backward hop, got %+v", seg)
	}
	// Walking parent to child, the local side joins on the referenced key
	// and the remote side on the child's foreign key.
	if seg.LocalColumn() != "patient_id" || seg.RemoteColumn() != "patient_id" {
		t.Fatalf("unexpected join columns: %+v", seg)
	}
}

func TestFindPath_TwoHopsIsShortest(t *testing.T) {
	path := FindPath("mutations", "patients", chainTables())
	if len(path) != 2 {
		t.Fatalf("expected 2 segments, got %d: %+v", len(path), path)
	}
	if path[0].FromTable != "mutations" || path[0].ToTable != "samples" {
		t.Fatalf("unexpected first segment: %+v", path[0])
	}
	if path[1].FromTable != "samples" || path[1].ToTable != "patients" {
		t.Fatalf("unexpected second segment: %+v", path[1])
	}
}

func TestFindPath_SameTableIsNil(t *testing.T) {
	if path := FindPath("samples", "samples", chainTables()); path != nil {
		t.Fatalf("expected nil path, got %+v", path)
	}
}

func TestFindPath_UnreachableIsNil(t *testing.T) {
	if path := FindPath("samples", "islands", chainTables()); path != nil {
		t.Fatalf("expected nil path, got %+v", path)
	}
}

func TestFindPath_PrefersShortestOverLongerAlternative(t *testing.T) {
	// Two routes from orders to regions: a direct FK and a 2-hop route
	// through customers. BFS must take the direct edge.
	tables := []metadata.TableMetadata{
		{Name: "regions"},
		{Name: "customers", Relationships: []metadata.Relationship{
			{ForeignKeyColumn: "region_id", ReferencedTable: "regions", ReferencedColumn: "region_id"},
		}},
		{Name: "orders", Relationships: []metadata.Relationship{
			{ForeignKeyColumn: "customer_id", ReferencedTable: "customers", ReferencedColumn: "customer_id"},
			{ForeignKeyColumn: "region_id", ReferencedTable: "regions", ReferencedColumn: "region_id"},
		}},
	}
	path := FindPath("orders", "regions", tables)
	if len(path) != 1 {
		t.Fatalf("expected direct 1-hop path, got %+v", path)
	}
	if path[0].ViaColumn != "region_id" {
		t.Fatalf("expected direct region_id edge, got %+v", path[0])
	}
}

func TestFindAncestorChain_ThreeHops(t *testing.T) {
	chain, err := FindAncestorChain("mutations", "hospitals", chainTables())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(chain) != 3 {
		t.Fatalf("expected 3 segments, got %d: %+v", len(chain), chain)
	}
	for _, seg := range chain {
		if seg.Backward {
			t.Fatalf("ancestor chain must only walk owned foreign keys, got %+v", seg)
		}
	}
	if chain[2].ToTable != "hospitals" || chain[2].ViaColumn != "hospital_id" {
		t.Fatalf("unexpected final segment: %+v", chain[2])
	}
}

func TestFindAncestorChain_RejectsBackwardReachability(t *testing.T) {
	// patients reaches samples through a reversed edge only, so samples is
	// not an ancestor of patients.
	_, err := FindAncestorChain("patients", "samples", chainTables())
	var nre *NoRelationshipError
	if !errors.As(err, &nre) {
		t.Fatalf("expected NoRelationshipError, got %v", err)
	}
}

func TestFindAncestorChain_SameTable(t *testing.T) {
	if _, err := FindAncestorChain("samples", "samples", chainTables()); err == nil {
		t.Fatal("expected error for self-targeted chain")
	}
}

func TestGraph_ReusableAcrossQueries(t *testing.T) {
	g := New(chainTables())
	if p := g.FindPath("mutations", "hospitals"); len(p) != 3 {
		t.Fatalf("expected 3 hops, got %+v", p)
	}
	if p := g.FindPath("hospitals", "mutations"); len(p) != 3 {
		t.Fatalf("expected 3 reverse hops, got %+v", p)
	}
	if p := g.FindPath("mutations", "hospitals"); len(p) != 3 {
		t.Fatalf("expected stable result on reuse, got %+v", p)
	}
}
