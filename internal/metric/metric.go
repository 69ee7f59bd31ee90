// Package metric resolves what an aggregation counts: base-table rows, or
// distinct entities of an ancestor table reached through owned foreign keys.
package metric

import (
	"fmt"
	"strings"
	"unicode"

	"datascope/internal/metadata"
	"datascope/internal/relgraph"
)

// Mode is the counting unit of an aggregation.
type Mode string

const (
	ModeRows   Mode = "rows"
	ModeParent Mode = "parent"
)

// BaseAlias is the alias every compiled query gives the base table.
const BaseAlias = "base_table"

// Selection is the caller's "what to count" choice.
type Selection struct {
	Mode        Mode
	TargetTable string // set when Mode is ModeParent
}

// ParseSelection parses the countBy query parameter: "", "rows", or
// "parent:<table>".
func ParseSelection(raw string) (Selection, error) {
	raw = strings.TrimSpace(raw)
	switch {
	case raw == "" || raw == string(ModeRows):
		return Selection{Mode: ModeRows}, nil
	case strings.HasPrefix(raw, string(ModeParent)+":"):
		target := strings.TrimPrefix(raw, string(ModeParent)+":")
		if target == "" {
			return Selection{}, fmt.Errorf("countBy parent selection is missing a table name")
		}
		return Selection{Mode: ModeParent, TargetTable: target}, nil
	default:
		return Selection{}, fmt.Errorf("unsupported countBy value %q (use \"rows\" or \"parent:<table>\")", raw)
	}
}

// JoinStep is one aliased join needed to reach the counted ancestor.
type JoinStep struct {
	Alias         string
	PhysicalTable string
	OnCondition   string
}

// Context is the request-scoped resolution of a Selection against a base
// table: the join chain to the ancestor, the expression identifying the
// ancestor's key, and the alias each on-path table is addressable by.
type Context struct {
	Mode                  Mode
	ParentTable           string
	ParentColumn          string
	JoinChain             []JoinStep
	AncestorKeyExpression string
	PathSegments          []metadata.PathSegment
	AliasByTable          map[string]string
}

// AliasFor returns the alias a table is joined under, or empty when the
// table is not part of the metric join chain.
func (c *Context) AliasFor(table string) string {
	if c == nil {
		return ""
	}
	return c.AliasByTable[table]
}

// ResolveContext builds the metric context for a base table. Rows mode needs
// no joins. Parent mode walks the ancestor chain and emits one deterministic
// aliased join per hop: ancestor_0, ancestor_1, and so on outward from the
// base table.
func ResolveContext(baseTable string, sel Selection, tables []metadata.TableMetadata) (*Context, error) {
	if sel.Mode != ModeParent {
		return &Context{
			Mode:         ModeRows,
			AliasByTable: map[string]string{baseTable: BaseAlias},
		}, nil
	}

	chain, err := relgraph.FindAncestorChain(baseTable, sel.TargetTable, tables)
	if err != nil {
		return nil, err
	}

	ctx := &Context{
		Mode:         ModeParent,
		ParentTable:  sel.TargetTable,
		PathSegments: chain,
		AliasByTable: map[string]string{baseTable: BaseAlias},
	}

	prevAlias := BaseAlias
	for i, seg := range chain {
		alias := fmt.Sprintf("ancestor_%d", i)
		ctx.JoinChain = append(ctx.JoinChain, JoinStep{
			Alias:         alias,
			PhysicalTable: metadata.PhysicalTable(tables, seg.ToTable),
			OnCondition:   fmt.Sprintf("%s.%s = %s.%s", prevAlias, seg.ViaColumn, alias, seg.ReferencedColumn),
		})
		ctx.AliasByTable[seg.ToTable] = alias
		prevAlias = alias
	}

	last := chain[len(chain)-1]
	ctx.ParentColumn = last.ReferencedColumn
	ctx.AncestorKeyExpression = fmt.Sprintf("%s.%s", prevAlias, last.ReferencedColumn)
	return ctx, nil
}

// RenderPath renders a metric path as a human-readable provenance trail,
// e.g. "Hospitals via mutations.sample_id → samples.patient_id →
// patients.hospital_id". Consumed by chart tooltips.
func RenderPath(targetTable string, segs []metadata.PathSegment) string {
	if len(segs) == 0 {
		return titleCase(targetTable)
	}
	hops := make([]string, len(segs))
	for i, seg := range segs {
		hops[i] = seg.FromTable + "." + seg.ViaColumn
	}
	return titleCase(targetTable) + " via " + strings.Join(hops, " → ")
}

func titleCase(name string) string {
	if name == "" {
		return name
	}
	runes := []rune(name)
	runes[0] = unicode.ToUpper(runes[0])
	return string(runes)
}
