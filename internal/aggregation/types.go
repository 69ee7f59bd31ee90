// Package aggregation computes per-column summaries of a dataset table:
// category breakdowns for categorical columns, descriptive statistics and
// histograms for numeric ones, all scoped by compiled filters and by the
// request's counting unit.
package aggregation

import (
	"datascope/internal/metadata"
)

// CategoryCount is one row of a categorical breakdown. Value preserves the
// raw store value so a chart click can round-trip into an exact filter,
// while DisplayValue carries the normalized label the chart shows.
type CategoryCount struct {
	Value        any     `json:"value"`
	DisplayValue string  `json:"display_value"`
	Count        int64   `json:"count"`
	Percentage   float64 `json:"percentage"`
}

// NumericStats summarizes a numeric column over the filtered row set.
// Pointers are nil when the filtered set has no non-null values.
type NumericStats struct {
	Min    *float64 `json:"min"`
	Max    *float64 `json:"max"`
	Mean   *float64 `json:"mean"`
	Median *float64 `json:"median"`
	StdDev *float64 `json:"std_dev"`
	Q1     *float64 `json:"q1"`
	Q3     *float64 `json:"q3"`
}

// HistogramBucket is one half-open bucket [Lower, Upper) of a fixed-width
// histogram; the final bucket is closed so the maximum value is counted.
type HistogramBucket struct {
	Lower float64 `json:"lower"`
	Upper float64 `json:"upper"`
	Count int64   `json:"count"`
}

// ColumnAggregation is the full aggregation result for one column.
type ColumnAggregation struct {
	ColumnName  string `json:"column_name"`
	DisplayType string `json:"display_type"`

	TotalRows   int64 `json:"total_rows"`
	NullCount   int64 `json:"null_count"`
	UniqueCount int64 `json:"unique_count"`

	Categories   []CategoryCount   `json:"categories,omitempty"`
	NumericStats *NumericStats     `json:"numeric_stats,omitempty"`
	Histogram    []HistogramBucket `json:"histogram,omitempty"`

	// Provenance of the counting unit: what was counted, which ancestor it
	// came from, and the foreign-key chain that reached it.
	MetricType        string                 `json:"metric_type"`
	MetricParentTable string                 `json:"metric_parent_table,omitempty"`
	MetricPath        []metadata.PathSegment `json:"metric_path,omitempty"`
	MetricPathDisplay string                 `json:"metric_path_display,omitempty"`
}
