package filter

import (
	"fmt"
	"strings"

	"datascope/internal/metadata"
	"datascope/internal/metric"
	"datascope/internal/relgraph"
	"datascope/internal/sqlutil"
)

// CompileOptions carries the optional context a compilation can use.
type CompileOptions struct {
	// AliasFor overrides the alias a table's columns are qualified with.
	// When nil the base table compiles as metric.BaseAlias.
	AliasFor func(table string) string
	// MetricContext enables alias addressing of ancestor-chain tables and
	// switches NOT semantics to ancestor-level exclusion where required.
	MetricContext *metric.Context
	// Graph is a prebuilt relationship graph; built from tables when nil.
	Graph *relgraph.Graph
}

// BuildWhereClause compiles a filter forest into a boolean SQL expression,
// AND-joining the clauses that survive validation. Unknown columns and
// malformed leaves are dropped, never errors: dataset-wide filter lists are
// broadcast to every table and legitimately contain filters that do not
// apply everywhere. Returns the empty string when nothing survives.
func BuildWhereClause(
	filters []Filter,
	knownColumns map[string]map[string]struct{},
	baseTable string,
	tables []metadata.TableMetadata,
	opts CompileOptions,
) string {
	graph := opts.Graph
	if graph == nil {
		graph = relgraph.New(tables)
	}
	c := &compiler{
		baseTable: baseTable,
		tables:    tables,
		known:     knownColumns,
		graph:     graph,
		aliasFor:  opts.AliasFor,
		metricCtx: opts.MetricContext,
	}

	var clauses []string
	for _, f := range filters {
		if clause := c.compile(f); clause != "" {
			clauses = append(clauses, clause)
		}
	}
	return strings.Join(clauses, " AND ")
}

type compiler struct {
	baseTable string
	tables    []metadata.TableMetadata
	known     map[string]map[string]struct{}
	graph     *relgraph.Graph
	aliasFor  func(table string) string
	metricCtx *metric.Context
}

func (c *compiler) compile(f Filter) string {
	switch {
	case len(f.And) > 0:
		return c.combine(f.And, " AND ")
	case len(f.Or) > 0:
		return c.combine(f.Or, " OR ")
	case f.Not != nil:
		return c.compileNot(*f.Not)
	case f.Cond != nil:
		return c.compileCondition(f.Cond)
	}
	return ""
}

func (c *compiler) combine(children []Filter, sep string) string {
	var parts []string
	for _, child := range children {
		if clause := c.compile(child); clause != "" {
			parts = append(parts, clause)
		}
	}
	switch len(parts) {
	case 0:
		return ""
	case 1:
		return parts[0]
	default:
		return "(" + strings.Join(parts, sep) + ")"
	}
}

func (c *compiler) compileCondition(cond *Condition) string {
	table := c.conditionTable(cond)
	if !c.columnKnown(table, cond.Column) {
		return ""
	}

	if table == c.baseTable {
		return renderComparison(c.baseAlias(), cond)
	}
	// Ancestor attributes are already joined into the row set; address them
	// by alias instead of repeating the join as a subquery.
	if alias := c.metricCtx.AliasFor(table); alias != "" {
		return renderComparison(alias, cond)
	}

	path := c.graph.FindPath(c.baseTable, table)
	if path == nil {
		return ""
	}
	outerCol, subquery, ok := c.nestedSubquery(path, cond)
	if !ok {
		return ""
	}
	return fmt.Sprintf("%s.%s IN (%s)", c.baseAlias(), outerCol, subquery)
}

// compileNot chooses the negation shape. The unit of truth decides it: a
// predicate on a row already in scope (base table, or an aliased ancestor)
// negates in place, while under parent counting a predicate on a table
// below the counted ancestor must exclude whole ancestors that have any
// matching descendant.
func (c *compiler) compileNot(inner Filter) string {
	if inner.Cond == nil {
		positive := c.compile(inner)
		if positive == "" {
			return ""
		}
		return "NOT (" + positive + ")"
	}

	cond := inner.Cond
	table := c.conditionTable(cond)
	if !c.columnKnown(table, cond.Column) {
		return ""
	}

	parentMode := c.metricCtx != nil && c.metricCtx.Mode == metric.ModeParent

	// Attributes of the ancestor itself, or of an intermediate chain table,
	// are in scope through their join alias: plain row-level negation.
	if table != c.baseTable {
		if alias := c.metricCtx.AliasFor(table); alias != "" {
			positive := renderComparison(alias, cond)
			if positive == "" {
				return ""
			}
			return "NOT (" + positive + ")"
		}
	} else if !parentMode {
		positive := renderComparison(c.baseAlias(), cond)
		if positive == "" {
			return ""
		}
		return "NOT (" + positive + ")"
	}

	if parentMode {
		if clause := c.ancestorExclusion(table, cond); clause != "" {
			return clause
		}
		if table == c.baseTable {
			return ""
		}
	}

	path := c.graph.FindPath(c.baseTable, table)
	if path == nil {
		return ""
	}
	outerCol, subquery, ok := c.nestedSubquery(path, cond)
	if !ok {
		return ""
	}
	// The IS NULL guard is mandatory: rows with an absent foreign key have
	// no matching parent and must not be excluded by a negated parent
	// condition.
	local := fmt.Sprintf("%s.%s", c.baseAlias(), outerCol)
	return fmt.Sprintf("(%s NOT IN (%s) OR %s IS NULL)", local, subquery, local)
}

// ancestorExclusion builds the parent-counting negation: exclude every
// counted ancestor that has any descendant matching the positive condition.
func (c *compiler) ancestorExclusion(table string, cond *Condition) string {
	mc := c.metricCtx
	path := c.graph.FindPath(mc.ParentTable, table)
	if path == nil {
		return ""
	}
	outerCol, subquery, ok := c.nestedSubquery(path, cond)
	if !ok {
		return ""
	}
	parentAlias := mc.AliasFor(mc.ParentTable)
	return fmt.Sprintf("%s.%s NOT IN (%s)", parentAlias, outerCol, subquery)
}

// nestedSubquery builds the existence subquery for a relationship path as
// nested IN clauses, innermost hop first. Filter existence checks do not
// need row-level join semantics, and nested IN is cheaper on a columnar
// engine with no foreign-key indexes.
func (c *compiler) nestedSubquery(path []metadata.PathSegment, cond *Condition) (outerColumn, subquery string, ok bool) {
	inner := renderComparison("", cond)
	if inner == "" {
		return "", "", false
	}
	for i := len(path) - 1; i >= 1; i-- {
		seg := path[i]
		inner = fmt.Sprintf("%s IN (SELECT %s FROM %s WHERE %s)",
			seg.LocalColumn(), seg.RemoteColumn(), c.physical(seg.ToTable), inner)
	}
	first := path[0]
	subquery = fmt.Sprintf("SELECT %s FROM %s WHERE %s",
		first.RemoteColumn(), c.physical(first.ToTable), inner)
	return first.LocalColumn(), subquery, true
}

func (c *compiler) physical(table string) string {
	return metadata.PhysicalTable(c.tables, table)
}

func (c *compiler) conditionTable(cond *Condition) string {
	if cond.TableName == "" {
		return c.baseTable
	}
	return cond.TableName
}

func (c *compiler) baseAlias() string {
	if c.aliasFor != nil {
		if alias := c.aliasFor(c.baseTable); alias != "" {
			return alias
		}
	}
	return metric.BaseAlias
}

// columnKnown validates a leaf against the table's column set when one is
// available; tables without column metadata are trusted.
func (c *compiler) columnKnown(table, column string) bool {
	cols, ok := c.known[table]
	if !ok {
		return true
	}
	_, ok = cols[column]
	return ok
}

var comparisonOps = map[string]string{
	OpGt:             ">",
	OpLt:             "<",
	OpGte:            ">=",
	OpLte:            "<=",
	OpTemporalBefore: "<",
	OpTemporalAfter:  ">",
	OpTemporalSince:  ">=",
	OpTemporalUntil:  "<=",
}

// renderComparison renders a leaf condition against a single aliased table
// (empty alias inside a subquery, where only one table is in scope).
// Returns the empty string for operators or values the column cannot
// support, dropping the leaf rather than failing the request.
func renderComparison(alias string, cond *Condition) string {
	col := sqlutil.Qualify(alias, cond.Column)

	switch cond.Operator {
	case OpEq:
		switch {
		case IsEmptyLabel(cond.Value):
			return fmt.Sprintf("(%s = '' OR isNull(%s))", col, col)
		case IsNALabel(cond.Value):
			return fmt.Sprintf("%s = 'N/A'", col)
		case cond.Value == nil:
			return fmt.Sprintf("isNull(%s)", col)
		default:
			return fmt.Sprintf("%s = %s", col, sqlutil.Literal(cond.Value))
		}

	case OpIn:
		values, ok := cond.Value.([]any)
		if !ok {
			return ""
		}
		return renderInList(col, values)

	case OpBetween, OpTemporalBetween:
		bounds, ok := cond.Value.([]any)
		if !ok || len(bounds) != 2 {
			return ""
		}
		return fmt.Sprintf("%s BETWEEN %s AND %s", col, sqlutil.Literal(bounds[0]), sqlutil.Literal(bounds[1]))

	default:
		op, ok := comparisonOps[cond.Operator]
		if !ok || cond.Value == nil {
			return ""
		}
		return fmt.Sprintf("%s %s %s", col, op, sqlutil.Literal(cond.Value))
	}
}

// renderInList compiles an IN list, unfolding sentinel members: (N/A)
// matches the literal string, (Empty) matches both empty string and NULL,
// and a raw null contributes an isNull disjunct.
func renderInList(col string, values []any) string {
	var literals []string
	hasEmpty, hasNull := false, false
	for _, v := range values {
		switch {
		case v == nil:
			hasNull = true
		case IsEmptyLabel(v):
			hasEmpty = true
		case IsNALabel(v):
			literals = append(literals, sqlutil.QuoteString("N/A"))
		default:
			literals = append(literals, sqlutil.Literal(v))
		}
	}

	var parts []string
	if len(literals) > 0 {
		parts = append(parts, fmt.Sprintf("%s IN (%s)", col, strings.Join(literals, ", ")))
	}
	if hasEmpty {
		parts = append(parts, fmt.Sprintf("%s = ''", col))
	}
	if hasEmpty || hasNull {
		parts = append(parts, fmt.Sprintf("isNull(%s)", col))
	}

	switch len(parts) {
	case 0:
		return ""
	case 1:
		return parts[0]
	default:
		return "(" + strings.Join(parts, " OR ") + ")"
	}
}
