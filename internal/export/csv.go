package export

import (
	"encoding/csv"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/bau-research/appscore/internal/publication"
	"github.com/bau-research/appscore/internal/scoring"
)

// WriteCSV writes the enriched article list to a CSV file with the same
// columns as the workbook's Articles sheet.
func WriteCSV(path string, pubs []publication.Publication) error {
	file, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("creating CSV file: %w", err)
	}
	defer file.Close()

	w := csv.NewWriter(file)
	if err := w.Write(articleHeader); err != nil {
		return fmt.Errorf("writing CSV header: %w", err)
	}
	for i := range pubs {
		record := make([]string, len(articleHeader))
		for j, v := range articleRow(&pubs[i]) {
			record[j] = cellString(v)
		}
		if err := w.Write(record); err != nil {
			return fmt.Errorf("writing CSV record: %w", err)
		}
	}

	w.Flush()
	return w.Error()
}

func articleRow(p *publication.Publication) []any {
	return []any{
		p.EID, p.Title, p.Year, p.JournalName, p.TypeCode, p.DOI,
		p.RegistryID, p.PrintID, p.ElectronicID,
		strings.Join(p.SubjectCodes, "; "),
		p.AuthorCount, optFloat(p.Score), optFloat(p.Percentile), p.Quartile,
	}
}

func scoreRow(s *scoring.ScoredPublication) []any {
	return []any{
		s.EID, s.Title, s.Year, s.JournalName, s.AuthorCount,
		s.Percentile, s.Quartile, s.AuthorCredit, s.QualityClass,
		s.Contribution,
	}
}

// optFloat keeps absent metrics as empty cells rather than zeros.
func optFloat(v *float64) any {
	if v == nil {
		return ""
	}
	return *v
}

func yearsLabel(years []int) string {
	parts := make([]string, len(years))
	for i, y := range years {
		parts[i] = strconv.Itoa(y)
	}
	return strings.Join(parts, ", ")
}

func toAny(ss []string) []any {
	out := make([]any, len(ss))
	for i, s := range ss {
		out[i] = s
	}
	return out
}

func cellString(v any) string {
	switch x := v.(type) {
	case string:
		return x
	case int:
		return strconv.Itoa(x)
	case float64:
		return strconv.FormatFloat(x, 'f', -1, 64)
	default:
		return fmt.Sprint(x)
	}
}
