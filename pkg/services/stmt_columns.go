package services

import (
	"github.com/zwinlu/tidb-dashboard/pkg/models"
)

// StmtColumn describes one renderable column of the statement table.
type StmtColumn struct {
	Key     string `json:"key"`
	Title   string `json:"title"`
	Numeric bool   `json:"numeric"`
	// MultiLine marks the digest text column when the full statement
	// template is shown instead of a single truncated line.
	MultiLine bool `json:"multi_line"`
}

// DefaultColumnVisibility is the out-of-the-box column selection.
func DefaultColumnVisibility() models.ColumnVisibility {
	return models.ColumnVisibility{
		"sum_latency": true,
		"avg_latency": true,
		"exec_count":  true,
		"avg_mem":     true,
	}
}

// optionalStmtColumns lists the stat columns in display order, each with
// a predicate telling whether a fetched row carries the field. Fields
// that were not requested come back zero-valued, so the column set is
// derived from the rows actually present.
var optionalStmtColumns = []struct {
	key     string
	title   string
	present func(m models.StatementModel) bool
}{
	{"sum_latency", "Total Latency", func(m models.StatementModel) bool { return m.SumLatency > 0 }},
	{"exec_count", "Executions", func(m models.StatementModel) bool { return m.ExecCount > 0 }},
	{"avg_latency", "Mean Latency", func(m models.StatementModel) bool { return m.AvgLatency > 0 }},
	{"max_latency", "Max Latency", func(m models.StatementModel) bool { return m.MaxLatency > 0 }},
	{"min_latency", "Min Latency", func(m models.StatementModel) bool { return m.MinLatency > 0 }},
	{"avg_mem", "Mean Memory", func(m models.StatementModel) bool { return m.AvgMem > 0 }},
	{"max_mem", "Max Memory", func(m models.StatementModel) bool { return m.MaxMem > 0 }},
	{"avg_affected_rows", "Mean Affected Rows", func(m models.StatementModel) bool { return m.AvgAffectedRows > 0 }},
	{"sum_errors", "Errors", func(m models.StatementModel) bool { return m.SumErrors > 0 }},
	{"sum_warnings", "Warnings", func(m models.StatementModel) bool { return m.SumWarnings > 0 }},
	{"plan_count", "Plans", func(m models.StatementModel) bool { return m.PlanCount > 0 }},
}

// BuildStmtColumns turns fetched rows plus the "show full text" toggle
// into the renderable column descriptors. Pure; recomputed whenever
// either input changes.
func BuildStmtColumns(rows []models.StatementModel, showFullSQL bool) []StmtColumn {
	columns := []StmtColumn{
		{Key: "digest_text", Title: "Statement Template", MultiLine: showFullSQL},
		{Key: "schema_name", Title: "Execution Schema"},
	}

	for _, candidate := range optionalStmtColumns {
		for _, row := range rows {
			if candidate.present(row) {
				columns = append(columns, StmtColumn{
					Key:     candidate.key,
					Title:   candidate.title,
					Numeric: true,
				})
				break
			}
		}
	}

	return columns
}
