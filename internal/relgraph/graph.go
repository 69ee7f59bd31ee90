// Package relgraph answers reachability questions over a dataset's
// foreign-key graph: which tables can filter which, and which tables are
// ancestors reachable through owned foreign keys.
package relgraph

import (
	"datascope/internal/metadata"
)

type edge struct {
	to               string
	viaColumn        string
	referencedColumn string
	backward         bool
}

// Graph is an adjacency view over a metadata snapshot, built once per
// request so traversals do not rescan the flat table list on every step.
type Graph struct {
	neighbors map[string][]edge // forward + backward edges, declaration order
	forward   map[string][]edge // only edges where the key table holds the FK
}

// New builds the adjacency structure from the dataset's tables. Edge order
// follows the declaration order of tables and relationships, which makes
// BFS tie-breaking deterministic for a fixed metadata snapshot.
func New(tables []metadata.TableMetadata) *Graph {
	g := &Graph{
		neighbors: make(map[string][]edge, len(tables)),
		forward:   make(map[string][]edge, len(tables)),
	}
	for _, t := range tables {
		for _, rel := range t.Relationships {
			fwd := edge{
				to:               rel.ReferencedTable,
				viaColumn:        rel.ForeignKeyColumn,
				referencedColumn: rel.ReferencedColumn,
			}
			g.forward[t.Name] = append(g.forward[t.Name], fwd)
			g.neighbors[t.Name] = append(g.neighbors[t.Name], fwd)
		}
	}
	// Backward edges: any other table's relationship that references this
	// table is traversable too, parent to child.
	for _, t := range tables {
		for _, rel := range t.Relationships {
			g.neighbors[rel.ReferencedTable] = append(g.neighbors[rel.ReferencedTable], edge{
				to:               t.Name,
				viaColumn:        rel.ForeignKeyColumn,
				referencedColumn: rel.ReferencedColumn,
				backward:         true,
			})
		}
	}
	return g
}

// FindPath returns the shortest relationship path from one table to another,
// traversing foreign keys in either direction. It returns nil when the two
// names are equal or no path exists. The first path discovered at a given
// BFS depth wins, so the result is stable for a fixed metadata snapshot.
func (g *Graph) FindPath(from, to string) []metadata.PathSegment {
	if from == to {
		return nil
	}
	return g.bfs(from, to, g.neighbors)
}

// FindAncestorChain returns the path from base to target following owned
// foreign keys only (child to parent). A table is an ancestor of base when
// base, or a table base transitively references, declares a foreign key to
// it; backward edges do not count.
func (g *Graph) FindAncestorChain(base, target string) ([]metadata.PathSegment, error) {
	if base == target {
		return nil, &NoRelationshipError{Base: base, Target: target}
	}
	path := g.bfs(base, target, g.forward)
	if path == nil {
		return nil, &NoRelationshipError{Base: base, Target: target}
	}
	return path, nil
}

func (g *Graph) bfs(from, to string, adjacency map[string][]edge) []metadata.PathSegment {
	type visit struct {
		table string
		prev  int // index into the segment trail, -1 for the start
	}
	trail := []metadata.PathSegment{}
	trailPrev := []int{}

	queue := []visit{{table: from, prev: -1}}
	seen := map[string]struct{}{from: {}}

	for len(queue) > 0 {
		cur := queue[0]
		queue = queue[1:]

		for _, e := range adjacency[cur.table] {
			if _, ok := seen[e.to]; ok {
				continue
			}
			seen[e.to] = struct{}{}
			trail = append(trail, metadata.PathSegment{
				FromTable:        cur.table,
				ViaColumn:        e.viaColumn,
				ToTable:          e.to,
				ReferencedColumn: e.referencedColumn,
				Backward:         e.backward,
			})
			trailPrev = append(trailPrev, cur.prev)
			if e.to == to {
				return rebuild(trail, trailPrev, len(trail)-1)
			}
			queue = append(queue, visit{table: e.to, prev: len(trail) - 1})
		}
	}
	return nil
}

func rebuild(trail []metadata.PathSegment, prev []int, last int) []metadata.PathSegment {
	var path []metadata.PathSegment
	for i := last; i >= 0; i = prev[i] {
		path = append(path, trail[i])
	}
	// Reverse into from→to order.
	for l, r := 0, len(path)-1; l < r; l, r = l+1, r-1 {
		path[l], path[r] = path[r], path[l]
	}
	return path
}

// FindPath is the one-shot form of Graph.FindPath for callers that do not
// hold a prebuilt graph.
func FindPath(from, to string, tables []metadata.TableMetadata) []metadata.PathSegment {
	return New(tables).FindPath(from, to)
}

// FindAncestorChain is the one-shot form of Graph.FindAncestorChain.
func FindAncestorChain(base, target string, tables []metadata.TableMetadata) ([]metadata.PathSegment, error) {
	return New(tables).FindAncestorChain(base, target)
}
