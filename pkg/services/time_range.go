package services

import (
	"github.com/zwinlu/tidb-dashboard/pkg/models"
)

// ValidateTimeRange combines the user's requested time range with the
// server-known statistics windows and returns the concrete window to
// query. Pure and deterministic.
//
// Rules:
//   - known empty: returns the zero value. Callers must check known
//     directly before querying; the zero value is not a sentinel to
//     branch on.
//   - recent N seconds: the window ends at the newest known end time
//     and begins N seconds earlier, clamped to the oldest known begin.
//   - absolute begin/end: both bounds are clamped into
//     [oldest known begin, newest known end]; a window inverted by
//     clamping collapses to the empty window at its end bound.
func ValidateTimeRange(requested models.TimeRange, known []models.StatementTimeRange) models.StatementTimeRange {
	if len(known) == 0 {
		return models.StatementTimeRange{}
	}

	minBegin := known[0].BeginTime
	maxEnd := known[0].EndTime
	for _, r := range known[1:] {
		if r.BeginTime < minBegin {
			minBegin = r.BeginTime
		}
		if r.EndTime > maxEnd {
			maxEnd = r.EndTime
		}
	}

	if requested.Kind == models.TimeRangeAbsolute {
		begin := clamp(requested.BeginTime, minBegin, maxEnd)
		end := clamp(requested.EndTime, minBegin, maxEnd)
		if begin > end {
			begin = end
		}
		return models.StatementTimeRange{BeginTime: begin, EndTime: end}
	}

	seconds := requested.RecentSeconds
	if seconds <= 0 {
		seconds = models.DefaultRecentSeconds
	}
	begin := maxEnd - seconds
	if begin < minBegin {
		begin = minBegin
	}
	return models.StatementTimeRange{BeginTime: begin, EndTime: maxEnd}
}

func clamp(v, lo, hi int64) int64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
