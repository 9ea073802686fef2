// Package scoring implements the Annual Publication Performance formula:
// eligibility filtering, per-item weights, the aggregate total, and the
// support-allowance tier derived from it.
package scoring

import (
	"math"
	"sort"
	"strings"
	"time"

	"github.com/bau-research/appscore/internal/publication"
)

// CreditNumerator is the author-credit numerator. It is deliberately 1.2
// rather than 1.0: sole authorship earns a 20% bonus over an even 1/n
// split. Institutional policy value; change only with the policy.
const CreditNumerator = 1.2

// Eligibility tiers, evaluated in order against the aggregate total.
const (
	TierTwoAllowances = "two support allowances per academic year, one of which requires full indexing and APP verification"
	TierOneAllowance  = "one support allowance per academic year"
	TierConditional   = "one support allowance per academic year, contingent on other criteria"
	TierNoEligible    = "no eligible items"
)

// ScoredPublication is one qualifying publication with its derived weights.
type ScoredPublication struct {
	EID          string  `json:"eid"`
	Title        string  `json:"title"`
	Year         int     `json:"year"`
	JournalName  string  `json:"publication_name"`
	AuthorCount  int     `json:"authors_count"`
	Percentile   float64 `json:"cs_percentile"`
	Quartile     string  `json:"quartile"`
	AuthorCredit float64 `json:"author_credit"`
	QualityClass float64 `json:"quality_class"`
	Contribution float64 `json:"contribution"`
}

// Summary is the aggregate result of one scoring run.
type Summary struct {
	Total           float64 `json:"app_total"`
	EligibilityTier string  `json:"eligibility"`
	Years           []int   `json:"years"`
}

// Window is the set of publication years considered for scoring.
type Window map[int]struct{}

// DefaultWindow covers the current year and the two preceding years.
func DefaultWindow(now time.Time) Window {
	y := now.Year()
	return Window{y: {}, y - 1: {}, y - 2: {}}
}

// FixedWindow builds a window from a caller-supplied year set.
func FixedWindow(years []int) Window {
	w := make(Window, len(years))
	for _, y := range years {
		w[y] = struct{}{}
	}
	return w
}

// Contains reports whether a year falls inside the window.
func (w Window) Contains(year int) bool {
	_, ok := w[year]
	return ok
}

// Years returns the window's years in ascending order.
func (w Window) Years() []int {
	out := make([]int, 0, len(w))
	for y := range w {
		out = append(out, y)
	}
	sort.Ints(out)
	return out
}

// QualityClass maps a percentile to its scoring weight. Returns false for
// values below zero: such an item is excluded even though its percentile is
// present, since the value is invalid under the policy.
func QualityClass(p float64) (float64, bool) {
	switch {
	case p >= 90:
		return 1.4, true
	case p >= 75:
		return 1.0, true
	case p >= 50:
		return 0.8, true
	case p >= 25:
		return 0.6, true
	case p >= 0:
		return 0.4, true
	default:
		return 0, false
	}
}

// AuthorCredit returns the per-author credit weight. Sole authorship gets
// the full numerator; otherwise it is split evenly across authors.
func AuthorCredit(n int) float64 {
	if n <= 1 {
		return CreditNumerator
	}
	return CreditNumerator / float64(n)
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}

// Score filters the enriched publications down to the qualifying set,
// derives per-item weights and contributions, and aggregates them into the
// summary. A publication qualifies iff its type code is "ar", its year
// parses into the window, and its percentile is present and valid.
//
// The returned table is sorted by year descending, then contribution
// descending, stable otherwise.
func Score(pubs []publication.Publication, window Window) ([]ScoredPublication, Summary) {
	var table []ScoredPublication
	for i := range pubs {
		p := &pubs[i]
		if !strings.EqualFold(p.TypeCode, publication.TypeArticle) {
			continue
		}
		year, ok := p.YearInt()
		if !ok || !window.Contains(year) {
			continue
		}
		if p.Percentile == nil {
			continue
		}
		qc, ok := QualityClass(*p.Percentile)
		if !ok {
			continue
		}

		n := p.AuthorCount
		if n < 1 {
			n = 1
		}
		ac := AuthorCredit(n)

		table = append(table, ScoredPublication{
			EID:          p.EID,
			Title:        p.Title,
			Year:         year,
			JournalName:  p.JournalName,
			AuthorCount:  n,
			Percentile:   *p.Percentile,
			Quartile:     p.Quartile,
			AuthorCredit: round2(ac),
			QualityClass: round2(qc),
			Contribution: round2(ac * qc),
		})
	}

	summary := Summary{Years: window.Years()}
	if len(table) == 0 {
		summary.EligibilityTier = TierNoEligible
		return nil, summary
	}

	sort.SliceStable(table, func(i, j int) bool {
		if table[i].Year != table[j].Year {
			return table[i].Year > table[j].Year
		}
		return table[i].Contribution > table[j].Contribution
	})

	total := 0.0
	for _, s := range table {
		total += s.Contribution
	}
	summary.Total = round2(total)
	summary.EligibilityTier = Tier(summary.Total)
	return table, summary
}

// Tier classifies an aggregate total into its eligibility tier. Use only
// for non-empty qualifying sets; an empty set is TierNoEligible.
func Tier(total float64) string {
	switch {
	case total > 1.0:
		return TierTwoAllowances
	case total >= 0.4:
		return TierOneAllowance
	default:
		return TierConditional
	}
}
