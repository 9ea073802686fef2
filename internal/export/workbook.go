// Package export writes scoring results to spreadsheet and CSV files.
package export

import (
	"fmt"

	"github.com/xuri/excelize/v2"

	"github.com/bau-research/appscore/internal/publication"
	"github.com/bau-research/appscore/internal/scoring"
)

const (
	articlesSheet = "Articles"
	scoreSheet    = "APP"
)

var articleHeader = []string{
	"eid", "title", "year", "publication_name", "type", "doi",
	"source_id", "issn_print", "issn_electronic", "asjc_codes",
	"authors_count", "citescore", "cs_percentile", "quartile",
}

var scoreHeader = []string{
	"eid", "title", "year", "publication_name", "authors_count",
	"cs_percentile", "quartile", "author_credit", "quality_class",
	"contribution",
}

// Workbook writes an XLSX file with an Articles sheet holding the full
// enriched list and an APP sheet holding the summary block and the scored
// table beneath it.
func Workbook(path, authorLabel string, pubs []publication.Publication, table []scoring.ScoredPublication, summary scoring.Summary) error {
	f := excelize.NewFile()
	defer f.Close()

	if err := writeArticles(f, pubs); err != nil {
		return err
	}
	if err := writeScores(f, authorLabel, table, summary); err != nil {
		return err
	}

	// excelize creates "Sheet1" by default; drop it
	f.DeleteSheet("Sheet1")
	if idx, err := f.GetSheetIndex(articlesSheet); err == nil {
		f.SetActiveSheet(idx)
	}

	if err := f.SaveAs(path); err != nil {
		return fmt.Errorf("writing workbook: %w", err)
	}
	return nil
}

func writeArticles(f *excelize.File, pubs []publication.Publication) error {
	if _, err := f.NewSheet(articlesSheet); err != nil {
		return fmt.Errorf("creating sheet: %w", err)
	}
	if err := setRow(f, articlesSheet, 1, toAny(articleHeader)); err != nil {
		return err
	}
	for i := range pubs {
		if err := setRow(f, articlesSheet, i+2, articleRow(&pubs[i])); err != nil {
			return err
		}
	}
	return nil
}

func writeScores(f *excelize.File, authorLabel string, table []scoring.ScoredPublication, summary scoring.Summary) error {
	if _, err := f.NewSheet(scoreSheet); err != nil {
		return fmt.Errorf("creating sheet: %w", err)
	}

	block := [][]any{
		{"Annual Publication Performance", authorLabel},
		{"Years considered", yearsLabel(summary.Years)},
		{"APP score", summary.Total},
		{"Eligibility", summary.EligibilityTier},
	}
	for i, row := range block {
		if err := setRow(f, scoreSheet, i+1, row); err != nil {
			return err
		}
	}

	// summary block occupies rows 1-4; table starts at row 6
	if err := setRow(f, scoreSheet, 6, toAny(scoreHeader)); err != nil {
		return err
	}
	for i := range table {
		if err := setRow(f, scoreSheet, i+7, scoreRow(&table[i])); err != nil {
			return err
		}
	}
	return nil
}

func setRow(f *excelize.File, sheet string, row int, values []any) error {
	cell, err := excelize.CoordinatesToCellName(1, row)
	if err != nil {
		return err
	}
	if err := f.SetSheetRow(sheet, cell, &values); err != nil {
		return fmt.Errorf("writing row %d: %w", row, err)
	}
	return nil
}
