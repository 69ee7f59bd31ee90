package aggregation

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"sort"
	"strconv"
	"time"

	sq "github.com/Masterminds/squirrel"
	"golang.org/x/sync/errgroup"

	"datascope/internal/dbexec"
	"datascope/internal/filter"
	"datascope/internal/metadata"
	"datascope/internal/metric"
	"datascope/internal/observability"
	"datascope/internal/relgraph"
)

// Options tunes the computer. Zero values select the defaults.
type Options struct {
	// HistogramBuckets is the fixed bucket count for numeric histograms.
	HistogramBuckets int
	// ColumnConcurrency bounds how many per-column query sequences run at
	// once within a single request.
	ColumnConcurrency int
	Logger            *slog.Logger
	Metrics           *observability.AggregationMetrics
}

const (
	defaultHistogramBuckets  = 10
	defaultColumnConcurrency = 4
)

// Computer runs aggregation requests against the analytical store. It is
// stateless between requests; the metadata snapshot and relationship graph
// are rebuilt per request and shared across that request's columns.
type Computer struct {
	exec    dbexec.QueryExecutor
	store   metadata.Store
	buckets int
	limit   int
	logger  *slog.Logger
	metrics *observability.AggregationMetrics
}

// NewComputer creates a computer over an executor and a metadata store.
func NewComputer(exec dbexec.QueryExecutor, store metadata.Store, opts Options) *Computer {
	if opts.HistogramBuckets <= 0 {
		opts.HistogramBuckets = defaultHistogramBuckets
	}
	if opts.ColumnConcurrency <= 0 {
		opts.ColumnConcurrency = defaultColumnConcurrency
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	return &Computer{
		exec:    exec,
		store:   store,
		buckets: opts.HistogramBuckets,
		limit:   opts.ColumnConcurrency,
		logger:  opts.Logger,
		metrics: opts.Metrics,
	}
}

// requestScope is the per-request snapshot shared by every column: metadata,
// relationship graph, resolved metric context, and the compiled WHERE text.
type requestScope struct {
	tables []metadata.TableMetadata
	table  metadata.TableMetadata
	mc     *metric.Context
	where  string
}

func (c *Computer) resolveScope(ctx context.Context, datasetID, tableID string, filters []filter.Filter, sel metric.Selection) (*requestScope, error) {
	tables, err := c.store.DatasetTables(ctx, datasetID)
	if err != nil {
		return nil, err
	}
	table, ok := metadata.TableByName(tables, tableID)
	if !ok {
		return nil, &metadata.NotFoundError{Kind: "table", Name: tableID}
	}

	mc, err := metric.ResolveContext(table.Name, sel, tables)
	if err != nil {
		return nil, err
	}

	graph := relgraph.New(tables)
	where := filter.BuildWhereClause(filters, metadata.KnownColumns(tables), table.Name, tables, filter.CompileOptions{
		MetricContext: mc,
		Graph:         graph,
	})
	return &requestScope{tables: tables, table: table, mc: mc, where: where}, nil
}

// TableAggregations aggregates every column of a table. Columns run
// concurrently up to the configured bound; within a column the queries are
// sequential. The result preserves metadata column order.
func (c *Computer) TableAggregations(ctx context.Context, datasetID, tableID string, filters []filter.Filter, sel metric.Selection) ([]ColumnAggregation, error) {
	start := time.Now()
	c.metrics.IncrementActiveRequests(ctx)
	defer c.metrics.DecrementActiveRequests(ctx)

	scope, err := c.resolveScope(ctx, datasetID, tableID, filters, sel)
	if err != nil {
		c.metrics.RecordRequest(ctx, time.Since(start), true, string(sel.Mode))
		return nil, err
	}

	results := make([]ColumnAggregation, len(scope.table.Columns))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(c.limit)
	for i, col := range scope.table.Columns {
		g.Go(func() error {
			agg, err := c.computeColumn(gctx, scope, col)
			if err != nil {
				return err
			}
			results[i] = agg
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		c.metrics.RecordRequest(ctx, time.Since(start), true, string(sel.Mode))
		return nil, err
	}

	c.metrics.RecordColumnsComputed(ctx, int64(len(results)))
	c.metrics.RecordRequest(ctx, time.Since(start), false, string(sel.Mode))
	c.logger.DebugContext(ctx, "computed table aggregations",
		"dataset", datasetID,
		"table", tableID,
		"columns", len(results),
		"metric_type", string(sel.Mode),
		"duration_ms", time.Since(start).Milliseconds(),
	)
	return results, nil
}

// ColumnAggregation aggregates a single column, used when one chart needs a
// refresh without recomputing the whole table.
func (c *Computer) ColumnAggregation(ctx context.Context, datasetID, tableID, columnName string, filters []filter.Filter, sel metric.Selection) (ColumnAggregation, error) {
	scope, err := c.resolveScope(ctx, datasetID, tableID, filters, sel)
	if err != nil {
		return ColumnAggregation{}, err
	}
	for _, col := range scope.table.Columns {
		if col.Name == columnName {
			return c.computeColumn(ctx, scope, col)
		}
	}
	return ColumnAggregation{}, &metadata.NotFoundError{Kind: "column", Name: columnName}
}

func (c *Computer) computeColumn(ctx context.Context, scope *requestScope, col metadata.Column) (ColumnAggregation, error) {
	agg := ColumnAggregation{
		ColumnName:  col.Name,
		DisplayType: col.DisplayType,
		MetricType:  string(scope.mc.Mode),
	}
	if scope.mc.Mode == metric.ModeParent {
		agg.MetricParentTable = scope.mc.ParentTable
		agg.MetricPath = scope.mc.PathSegments
		agg.MetricPathDisplay = metric.RenderPath(scope.mc.ParentTable, scope.mc.PathSegments)
	}

	colExpr := metric.BaseAlias + "." + col.Name

	total, err := c.queryCount(ctx, scope, c.unitCountExpr(scope.mc))
	if err != nil {
		return ColumnAggregation{}, fmt.Errorf("failed to count %s rows: %w", scope.table.Name, err)
	}
	agg.TotalRows = total

	nullCount, uniqueCount, err := c.queryNullUnique(ctx, scope, colExpr)
	if err != nil {
		return ColumnAggregation{}, fmt.Errorf("failed to profile column %s: %w", col.Name, err)
	}
	agg.NullCount = nullCount
	agg.UniqueCount = uniqueCount

	switch col.DisplayType {
	case metadata.DisplayNumeric:
		stats, err := c.queryNumericStats(ctx, scope, colExpr)
		if err != nil {
			return ColumnAggregation{}, fmt.Errorf("failed to compute stats for %s: %w", col.Name, err)
		}
		agg.NumericStats = stats
		if stats.Min != nil && stats.Max != nil {
			histogram, err := c.queryHistogram(ctx, scope, colExpr, *stats.Min, *stats.Max)
			if err != nil {
				return ColumnAggregation{}, fmt.Errorf("failed to compute histogram for %s: %w", col.Name, err)
			}
			agg.Histogram = histogram
		}
	default:
		categories, err := c.queryCategories(ctx, scope, colExpr, total)
		if err != nil {
			return ColumnAggregation{}, fmt.Errorf("failed to compute categories for %s: %w", col.Name, err)
		}
		agg.Categories = categories
	}
	return agg, nil
}

// baseQuery starts a select over the base table with the metric join chain
// and compiled WHERE applied. All values are inlined by the compiler, so the
// generated SQL carries no placeholders.
func (c *Computer) baseQuery(scope *requestScope, exprs ...string) sq.SelectBuilder {
	q := sq.Select(exprs...).
		From(fmt.Sprintf("%s AS %s", metadata.PhysicalTable(scope.tables, scope.table.Name), metric.BaseAlias))
	for _, step := range scope.mc.JoinChain {
		q = q.Join(fmt.Sprintf("%s AS %s ON %s", step.PhysicalTable, step.Alias, step.OnCondition))
	}
	if scope.where != "" {
		q = q.Where(sq.Expr(scope.where))
	}
	return q
}

// unitCountExpr is the counting expression for the request's metric unit:
// base rows, or distinct ancestors over the joined relation.
func (c *Computer) unitCountExpr(mc *metric.Context) string {
	if mc.Mode == metric.ModeParent {
		return fmt.Sprintf("count(DISTINCT %s)", mc.AncestorKeyExpression)
	}
	return "count(*)"
}

func (c *Computer) queryCount(ctx context.Context, scope *requestScope, countExpr string) (int64, error) {
	sqlText, args, err := c.baseQuery(scope, countExpr).ToSql()
	if err != nil {
		return 0, err
	}
	rows, err := c.exec.QueryContext(ctx, sqlText, args...)
	if err != nil {
		c.metrics.RecordStoreError(ctx, "count")
		return 0, err
	}
	defer rows.Close()

	var total int64
	if rows.Next() {
		if err := rows.Scan(&total); err != nil {
			return 0, err
		}
	}
	return total, rows.Err()
}

func (c *Computer) queryNullUnique(ctx context.Context, scope *requestScope, colExpr string) (nullCount, uniqueCount int64, err error) {
	nullExpr := fmt.Sprintf("count(*) - count(%s)", colExpr)
	if scope.mc.Mode == metric.ModeParent {
		nullExpr = fmt.Sprintf("count(DISTINCT CASE WHEN %s IS NULL THEN %s END)", colExpr, scope.mc.AncestorKeyExpression)
	}
	sqlText, args, err := c.baseQuery(scope, nullExpr, fmt.Sprintf("count(DISTINCT %s)", colExpr)).ToSql()
	if err != nil {
		return 0, 0, err
	}
	rows, err := c.exec.QueryContext(ctx, sqlText, args...)
	if err != nil {
		c.metrics.RecordStoreError(ctx, "null_unique")
		return 0, 0, err
	}
	defer rows.Close()

	if rows.Next() {
		if err := rows.Scan(&nullCount, &uniqueCount); err != nil {
			return 0, 0, err
		}
	}
	return nullCount, uniqueCount, rows.Err()
}

func (c *Computer) queryCategories(ctx context.Context, scope *requestScope, colExpr string, total int64) ([]CategoryCount, error) {
	sqlText, args, err := c.baseQuery(scope, colExpr+" AS value", c.unitCountExpr(scope.mc)+" AS cnt").
		GroupBy(colExpr).
		ToSql()
	if err != nil {
		return nil, err
	}
	rows, err := c.exec.QueryContext(ctx, sqlText, args...)
	if err != nil {
		c.metrics.RecordStoreError(ctx, "categories")
		return nil, err
	}
	defer rows.Close()

	// Distinct raw values can collapse onto one display label ("" and NULL
	// both read (Empty)); merge their counts under the first raw value seen.
	var categories []CategoryCount
	byLabel := make(map[string]int)
	for rows.Next() {
		var value any
		var count int64
		if err := rows.Scan(&value, &count); err != nil {
			return nil, err
		}
		label := filter.DisplayLabel(value)
		if i, ok := byLabel[label]; ok {
			categories[i].Count += count
			continue
		}
		byLabel[label] = len(categories)
		categories = append(categories, CategoryCount{Value: value, DisplayValue: label, Count: count})
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	sort.SliceStable(categories, func(i, j int) bool {
		if categories[i].Count != categories[j].Count {
			return categories[i].Count > categories[j].Count
		}
		return categories[i].DisplayValue < categories[j].DisplayValue
	})
	for i := range categories {
		if total > 0 {
			categories[i].Percentage = float64(categories[i].Count) / float64(total) * 100
		}
	}
	return categories, nil
}

func (c *Computer) queryNumericStats(ctx context.Context, scope *requestScope, colExpr string) (*NumericStats, error) {
	sqlText, args, err := c.baseQuery(scope,
		fmt.Sprintf("min(%s)", colExpr),
		fmt.Sprintf("max(%s)", colExpr),
		fmt.Sprintf("avg(%s)", colExpr),
		fmt.Sprintf("median(%s)", colExpr),
		fmt.Sprintf("stddev_pop(%s)", colExpr),
		fmt.Sprintf("quantile_cont(%s, 0.25)", colExpr),
		fmt.Sprintf("quantile_cont(%s, 0.75)", colExpr),
	).ToSql()
	if err != nil {
		return nil, err
	}
	rows, err := c.exec.QueryContext(ctx, sqlText, args...)
	if err != nil {
		c.metrics.RecordStoreError(ctx, "numeric_stats")
		return nil, err
	}
	defer rows.Close()

	stats := &NumericStats{}
	if rows.Next() {
		var minVal, maxVal, mean, median, stddev, q1, q3 sql.NullFloat64
		if err := rows.Scan(&minVal, &maxVal, &mean, &median, &stddev, &q1, &q3); err != nil {
			return nil, err
		}
		stats.Min = nullableFloat(minVal)
		stats.Max = nullableFloat(maxVal)
		stats.Mean = nullableFloat(mean)
		stats.Median = nullableFloat(median)
		stats.StdDev = nullableFloat(stddev)
		stats.Q1 = nullableFloat(q1)
		stats.Q3 = nullableFloat(q3)
	}
	return stats, rows.Err()
}

// queryHistogram builds a fixed-bucket-count histogram. Bucket membership is
// floor((value - min) / width) clamped to the final bucket, so every bucket
// is half-open except the last, which includes the maximum.
func (c *Computer) queryHistogram(ctx context.Context, scope *requestScope, colExpr string, minVal, maxVal float64) ([]HistogramBucket, error) {
	if minVal == maxVal {
		count, err := c.queryCount(ctx, scope, c.nonNullCountExpr(scope.mc, colExpr))
		if err != nil {
			return nil, err
		}
		return []HistogramBucket{{Lower: minVal, Upper: maxVal, Count: count}}, nil
	}

	width := (maxVal - minVal) / float64(c.buckets)
	bucketExpr := fmt.Sprintf("least(CAST(floor((%s - %s) / %s) AS BIGINT), %d)",
		colExpr, formatFloat(minVal), formatFloat(width), c.buckets-1)

	sqlText, args, err := c.baseQuery(scope, bucketExpr+" AS bucket", c.unitCountExpr(scope.mc)+" AS cnt").
		Where(sq.Expr(colExpr + " IS NOT NULL")).
		GroupBy("bucket").
		OrderBy("bucket").
		ToSql()
	if err != nil {
		return nil, err
	}
	rows, err := c.exec.QueryContext(ctx, sqlText, args...)
	if err != nil {
		c.metrics.RecordStoreError(ctx, "histogram")
		return nil, err
	}
	defer rows.Close()

	buckets := make([]HistogramBucket, c.buckets)
	for i := range buckets {
		buckets[i].Lower = minVal + float64(i)*width
		buckets[i].Upper = minVal + float64(i+1)*width
	}
	buckets[c.buckets-1].Upper = maxVal

	for rows.Next() {
		var bucket int64
		var count int64
		if err := rows.Scan(&bucket, &count); err != nil {
			return nil, err
		}
		if bucket >= 0 && bucket < int64(c.buckets) {
			buckets[bucket].Count = count
		}
	}
	return buckets, rows.Err()
}

func (c *Computer) nonNullCountExpr(mc *metric.Context, colExpr string) string {
	if mc.Mode == metric.ModeParent {
		return fmt.Sprintf("count(DISTINCT CASE WHEN %s IS NOT NULL THEN %s END)", colExpr, mc.AncestorKeyExpression)
	}
	return fmt.Sprintf("count(%s)", colExpr)
}

func nullableFloat(v sql.NullFloat64) *float64 {
	if !v.Valid {
		return nil
	}
	f := v.Float64
	return &f
}

func formatFloat(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}
