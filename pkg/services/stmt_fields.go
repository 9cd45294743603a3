package services

import (
	"sort"
	"strings"

	"github.com/zwinlu/tidb-dashboard/pkg/models"
)

// DerivedStmtFields are always requested regardless of column
// visibility: rows cannot be identified or rendered without them.
var DerivedStmtFields = []string{"digest", "digest_text", "schema_name"}

// SelectStmtFields maps the visible columns plus the mandatory derived
// fields to the field selector string sent to the dashboard API. The
// result is the sorted, comma-joined union of both sets.
func SelectStmtFields(visible models.ColumnVisibility, derived []string) string {
	fields := make(map[string]struct{}, len(visible)+len(derived))
	for _, f := range derived {
		fields[f] = struct{}{}
	}
	for key, shown := range visible {
		if shown {
			fields[key] = struct{}{}
		}
	}

	out := make([]string, 0, len(fields))
	for f := range fields {
		out = append(out, f)
	}
	sort.Strings(out)
	return strings.Join(out, ",")
}
