package citescore

import (
	"context"
	"sort"

	"github.com/bau-research/appscore/internal/normalize"
	"github.com/bau-research/appscore/internal/publication"
)

// RegistryResolver resolves a normalized journal identifier to its numeric
// registry id. Implemented by the bibliographic client; a nil resolver
// disables backfill.
type RegistryResolver interface {
	ResolveRegistryID(ctx context.Context, journalID string) (string, error)
}

// Index holds the read-only lookup views over a canonical reference table.
// Built once per run; concurrent Match calls only read it.
type Index struct {
	byRegistry   map[string][]*Entry
	byPrint      map[string][]*Entry
	byElectronic map[string][]*Entry
	entries      []Entry

	// Unresolved counts rows whose registry id could not be backfilled.
	// They remain matchable through their identifiers.
	Unresolved int
}

// BuildIndex builds the lookup index from a loaded table. When the table has
// no registry column and a resolver is available, registry ids are
// backfilled best effort (print identifier first, then electronic); rows
// that stay unresolved keep an empty registry id. Rows are de-duplicated on
// (registry id, subject-code set), keeping the first occurrence.
func BuildIndex(ctx context.Context, t *Table, resolver RegistryResolver) (*Index, error) {
	ix := &Index{
		byRegistry:   make(map[string][]*Entry),
		byPrint:      make(map[string][]*Entry),
		byElectronic: make(map[string][]*Entry),
	}

	entries := make([]Entry, len(t.Entries))
	copy(entries, t.Entries)

	if !t.HasRegistry && resolver != nil {
		for i := range entries {
			if err := ctx.Err(); err != nil {
				return nil, err
			}
			entries[i].RegistryID = backfillRegistry(ctx, resolver, &entries[i])
			if entries[i].RegistryID == "" {
				ix.Unresolved++
			}
		}
	}

	seen := make(map[string]struct{}, len(entries))
	for _, e := range entries {
		if e.RegistryID == "" && e.PrintID == "" && e.ElectronicID == "" {
			continue
		}
		key := dedupeKey(&e)
		if _, dup := seen[key]; dup {
			continue
		}
		seen[key] = struct{}{}
		ix.entries = append(ix.entries, e)
	}

	for i := range ix.entries {
		e := &ix.entries[i]
		if e.RegistryID != "" {
			ix.byRegistry[e.RegistryID] = append(ix.byRegistry[e.RegistryID], e)
		}
		if e.PrintID != "" {
			ix.byPrint[e.PrintID] = append(ix.byPrint[e.PrintID], e)
		}
		if e.ElectronicID != "" {
			ix.byElectronic[e.ElectronicID] = append(ix.byElectronic[e.ElectronicID], e)
		}
	}
	return ix, nil
}

// backfillRegistry asks the resolver for a registry id, trying the print
// identifier before the electronic one. Resolution failures leave the row
// unresolved rather than failing the build.
func backfillRegistry(ctx context.Context, resolver RegistryResolver, e *Entry) string {
	for _, id := range []string{e.PrintID, e.ElectronicID} {
		if id == "" {
			continue
		}
		rid, err := resolver.ResolveRegistryID(ctx, id)
		if err != nil {
			continue
		}
		if rid = normalize.Digits(rid); rid != "" {
			return rid
		}
	}
	return ""
}

// dedupeKey identifies duplicate rows. Rows with a registry id collapse on
// (registry, subject codes); registry-less rows need their identifiers in
// the key so distinct journals don't collapse together.
func dedupeKey(e *Entry) string {
	if e.RegistryID != "" {
		return "r:" + e.RegistryID + "|" + subjectKey(e.SubjectCodes)
	}
	return "i:" + e.PrintID + "|" + e.ElectronicID + "|" + subjectKey(e.SubjectCodes)
}

// Len returns the number of indexed entries after dedupe.
func (ix *Index) Len() int {
	return len(ix.entries)
}

// Match selects the best reference entry for one publication, or nil when
// the publication is unmatched.
//
// Candidates come from the registry id when the publication has one and it
// hits; otherwise from the union of print and electronic identifier lookups.
// A journal appears once per subject area, so a hit is a candidate set, not
// a single row. Ranking: subject-code overlap with the publication first
// (the subject-area row closest to this specific article wins), percentile
// as the tie-break, missing percentile sorting last.
func (ix *Index) Match(pub *publication.Publication) *Entry {
	var cands []*Entry
	if rid := normalize.Digits(pub.RegistryID); rid != "" {
		cands = ix.byRegistry[rid]
	}
	if len(cands) == 0 {
		cands = ix.identifierCandidates(pub)
	}
	if len(cands) == 0 {
		return nil
	}
	return pickBest(cands, pub.SubjectSet())
}

func (ix *Index) identifierCandidates(pub *publication.Publication) []*Entry {
	var out []*Entry
	seen := make(map[*Entry]struct{})
	add := func(list []*Entry) {
		for _, e := range list {
			if _, dup := seen[e]; dup {
				continue
			}
			seen[e] = struct{}{}
			out = append(out, e)
		}
	}
	if pub.PrintID != "" {
		add(ix.byPrint[pub.PrintID])
	}
	if pub.ElectronicID != "" {
		add(ix.byElectronic[pub.ElectronicID])
	}
	return out
}

func pickBest(cands []*Entry, subjects map[string]struct{}) *Entry {
	ranked := make([]*Entry, len(cands))
	copy(ranked, cands)

	overlap := func(e *Entry) int {
		n := 0
		for c := range e.SubjectCodes {
			if _, ok := subjects[c]; ok {
				n++
			}
		}
		return n
	}
	pct := func(e *Entry) float64 {
		if e.Percentile == nil {
			return -1e9 // missing percentile sorts last
		}
		return *e.Percentile
	}

	sort.SliceStable(ranked, func(i, j int) bool {
		oi, oj := overlap(ranked[i]), overlap(ranked[j])
		if oi != oj {
			return oi > oj
		}
		return pct(ranked[i]) > pct(ranked[j])
	})
	return ranked[0]
}
