// Package citescore loads journal-metrics reference tables of unknown
// column naming and encoding into a canonical form, and builds the lookup
// index used to match publications to their best reference row.
package citescore

import (
	"fmt"
	"sort"
	"strings"
)

// Entry is one canonical row of the reference table. At least one of
// RegistryID, PrintID, ElectronicID is non-empty; rows that normalize to
// nothing are dropped at load time.
type Entry struct {
	RegistryID   string // numeric registry (source) id, digits only
	PrintID      string // normalized print identifier
	ElectronicID string // normalized electronic identifier
	SubjectCodes map[string]struct{}
	Percentile   *float64
	Score        *float64
}

// Table is the canonical reference table plus what we learned about the
// source schema during loading.
type Table struct {
	Entries []Entry

	// HasRegistry reports whether the source carried a registry-id column.
	// When false the index backfills registry ids via the resolver.
	HasRegistry bool

	// SkippedLines counts malformed lines dropped by the lenient reader.
	SkippedLines int
}

// SchemaError reports required concepts that could not be resolved against
// the source table's columns. It aborts the run for that table.
type SchemaError struct {
	Missing []string // canonical concept names, e.g. "percentile"
	Columns []string // columns actually present in the source
}

func (e *SchemaError) Error() string {
	return fmt.Sprintf("reference table missing required column(s) %s; columns present: %s",
		strings.Join(e.Missing, ", "), strings.Join(e.Columns, ", "))
}

// subjectKey renders a subject-code set as a stable string for dedupe keys.
func subjectKey(codes map[string]struct{}) string {
	if len(codes) == 0 {
		return ""
	}
	list := make([]string, 0, len(codes))
	for c := range codes {
		list = append(list, c)
	}
	sort.Strings(list)
	return strings.Join(list, ",")
}
