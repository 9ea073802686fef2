// Package publication defines the publication record exchanged between the
// bibliographic source, the enrichment pass, and the scoring engine.
package publication

import (
	"github.com/bau-research/appscore/internal/normalize"
)

// TypeArticle is the only publication type code eligible for APP scoring.
const TypeArticle = "ar"

// Publication is one bibliographic record for a target author. The identity
// fields are set by the bibliographic source and never change afterwards;
// only the enrichment fields are written by this system.
type Publication struct {
	EID          string   `json:"eid"`
	Title        string   `json:"title"`
	Year         string   `json:"year"` // raw cover-date prefix, parsed on demand
	JournalName  string   `json:"publication_name"`
	TypeCode     string   `json:"subtype"`
	DOI          string   `json:"doi,omitempty"`
	RegistryID   string   `json:"source_id,omitempty"`
	PrintID      string   `json:"issn_print,omitempty"`      // normalized
	ElectronicID string   `json:"issn_electronic,omitempty"` // normalized
	SubjectCodes []string `json:"asjc_codes,omitempty"`      // 4-digit, sorted
	AuthorCount  int      `json:"authors_count"`
	Keywords     string   `json:"keywords,omitempty"`
	Abstract     string   `json:"abstract,omitempty"`

	AuthorID   string `json:"author_id,omitempty"`
	AuthorName string `json:"author_name,omitempty"`

	// Enrichment fields, attached by the enrichment pass.
	Percentile *float64 `json:"cs_percentile,omitempty"`
	Score      *float64 `json:"citescore,omitempty"`
	Quartile   string   `json:"quartile,omitempty"`
}

// YearInt parses the publication year, false when absent or unparseable.
func (p *Publication) YearInt() (int, bool) {
	return normalize.Year(p.Year)
}

// SubjectSet returns the publication's subject codes as a set.
func (p *Publication) SubjectSet() map[string]struct{} {
	return normalize.SubjectCodeList(p.SubjectCodes)
}
