// Package enrich attaches journal-quality metrics to publications by
// running each one through the reference-table matcher.
package enrich

import (
	"github.com/bau-research/appscore/internal/citescore"
	"github.com/bau-research/appscore/internal/normalize"
	"github.com/bau-research/appscore/internal/publication"
)

// Matcher selects the best reference entry for one publication, nil when
// unmatched. Satisfied by *citescore.Index.
type Matcher interface {
	Match(pub *publication.Publication) *citescore.Entry
}

// Apply returns a copy of pubs with percentile, score, and quartile label
// attached. Pure and order-preserving; unmatched publications get nil
// metrics and an empty quartile, which downstream scoring treats as not
// eligible.
func Apply(pubs []publication.Publication, m Matcher) []publication.Publication {
	out := make([]publication.Publication, len(pubs))
	for i := range pubs {
		out[i] = pubs[i]
		Annotate(&out[i], m)
	}
	return out
}

// Annotate enriches a single publication in place.
func Annotate(pub *publication.Publication, m Matcher) {
	pub.Percentile = nil
	pub.Score = nil

	if e := m.Match(pub); e != nil {
		if e.Percentile != nil {
			v := *e.Percentile
			pub.Percentile = &v
		}
		if e.Score != nil {
			v := *e.Score
			pub.Score = &v
		}
	}
	pub.Quartile = normalize.QuartileFromPercentile(pub.Percentile)
}
