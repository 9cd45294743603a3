package models

// TimeRangeKind distinguishes user time-range intent.
type TimeRangeKind string

const (
	// TimeRangeRecent means "the last N seconds", resolved against the
	// newest server-known window at query time.
	TimeRangeRecent TimeRangeKind = "recent"
	// TimeRangeAbsolute means an explicit begin/end window.
	TimeRangeAbsolute TimeRangeKind = "absolute"
)

// DefaultRecentSeconds is the default lookback window (30 minutes).
const DefaultRecentSeconds int64 = 30 * 60

// TimeRange is the user's intent for a time window. It is distinct from
// StatementTimeRange: a TimeRange is what the user asked for, a
// StatementTimeRange is a concrete window the server can answer.
type TimeRange struct {
	Kind TimeRangeKind `json:"kind"`
	// RecentSeconds is set when Kind == TimeRangeRecent.
	RecentSeconds int64 `json:"recent_seconds,omitempty"`
	// BeginTime/EndTime are unix seconds, set when Kind == TimeRangeAbsolute.
	BeginTime int64 `json:"begin_time,omitempty"`
	EndTime   int64 `json:"end_time,omitempty"`
}

// RecentTimeRange returns a "last N seconds" time range.
func RecentTimeRange(seconds int64) TimeRange {
	return TimeRange{Kind: TimeRangeRecent, RecentSeconds: seconds}
}

// AbsoluteTimeRange returns an explicit begin/end time range (unix seconds).
func AbsoluteTimeRange(begin, end int64) TimeRange {
	return TimeRange{Kind: TimeRangeAbsolute, BeginTime: begin, EndTime: end}
}

// StatementTimeRange is a concrete server-known statistics window.
// The server aggregates statements into fixed windows; only these
// windows can be queried.
type StatementTimeRange struct {
	BeginTime int64 `json:"begin_time"`
	EndTime   int64 `json:"end_time"`
}

// IsZero reports whether the window is unset.
func (r StatementTimeRange) IsZero() bool {
	return r.BeginTime == 0 && r.EndTime == 0
}

// QueryOptions is the complete filter selection for the statement view.
// It is an immutable value: setters replace it wholesale, callers must
// always supply the full struct (no partial updates).
type QueryOptions struct {
	TimeRange  TimeRange `json:"time_range"`
	Schemas    []string  `json:"schemas"`
	StmtTypes  []string  `json:"stmt_types"`
	SearchText string    `json:"search_text"`
}

// DefaultQueryOptions returns the initial filter selection: last 30
// minutes, all schemas, all statement types, no search text.
func DefaultQueryOptions() QueryOptions {
	return QueryOptions{
		TimeRange: RecentTimeRange(DefaultRecentSeconds),
	}
}

// OrderOptions holds the sort column and direction for the view.
type OrderOptions struct {
	OrderBy string `json:"order_by"`
	Desc    bool   `json:"desc"`
}

// DefaultOrderOptions sorts by total latency, heaviest first.
func DefaultOrderOptions() OrderOptions {
	return OrderOptions{OrderBy: "sum_latency", Desc: true}
}

// ColumnVisibility maps a column key to whether it is shown. Keys match
// StatementModel JSON field names.
type ColumnVisibility map[string]bool

// StatementModel is one row of statement statistics as returned by the
// dashboard API. Field names double as column keys and as the remote
// field selector vocabulary; fields that were not requested come back
// zero-valued.
type StatementModel struct {
	SchemaName string `json:"schema_name"`
	Digest     string `json:"digest"`
	DigestText string `json:"digest_text"`

	SumLatency      int64   `json:"sum_latency"`
	ExecCount       int64   `json:"exec_count"`
	AvgLatency      int64   `json:"avg_latency"`
	MaxLatency      int64   `json:"max_latency"`
	MinLatency      int64   `json:"min_latency"`
	AvgMem          int64   `json:"avg_mem"`
	MaxMem          int64   `json:"max_mem"`
	AvgAffectedRows float64 `json:"avg_affected_rows"`
	SumErrors       int64   `json:"sum_errors"`
	SumWarnings     int64   `json:"sum_warnings"`

	RelatedSchemas string `json:"related_schemas"`
	TableNames     string `json:"table_names"`
	PlanCount      int64  `json:"plan_count"`
}
