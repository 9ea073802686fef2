// Package pipeline orchestrates a full scoring run: reference table in,
// publications fetched and enriched, APP table and summary out.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/bau-research/appscore/internal/citescore"
	"github.com/bau-research/appscore/internal/enrich"
	"github.com/bau-research/appscore/internal/publication"
	"github.com/bau-research/appscore/internal/scopus"
	"github.com/bau-research/appscore/internal/scoring"
)

// Source is the bibliographic API surface the pipeline needs. Satisfied by
// *scopus.Client.
type Source interface {
	ResolveAuthor(ctx context.Context, authorID string) (string, error)
	ListPublicationIDs(ctx context.Context, authorID string) ([]string, error)
	FetchPublication(ctx context.Context, eid, authorID, affiliationID string) (*publication.Publication, error)
	ResolveRegistryID(ctx context.Context, journalID string) (string, error)
}

// Store is an optional read-through record cache. Satisfied by *cache.Cache.
// Lookups carry the run's affiliation filter: the fetch applies the subtype
// and affiliation checks before anything is stored, so a record cached
// under one filter is not valid for a run using another.
type Store interface {
	Get(eid, affiliationID string) (*publication.Publication, bool, error)
	Put(pub *publication.Publication, affiliationID string) error
}

// Skip reasons recorded per item.
const (
	ReasonNotArticle  = "not an article or review"
	ReasonAffiliation = "author not at affiliation"
	ReasonFetchError  = "fetch failed"
)

// ItemResult records the outcome of fetching one publication record.
type ItemResult struct {
	EID     string `json:"eid"`
	Skipped bool   `json:"skipped"`
	Reason  string `json:"reason,omitempty"`
	Err     error  `json:"-"`
}

// Report aggregates per-item outcomes for one run.
type Report struct {
	Fetched int            `json:"fetched"`
	Cached  int            `json:"cached"`
	Skipped map[string]int `json:"skipped,omitempty"`
	Items   []ItemResult   `json:"items,omitempty"`
}

func (r *Report) record(res ItemResult, fromCache bool) {
	r.Items = append(r.Items, res)
	if res.Skipped {
		if r.Skipped == nil {
			r.Skipped = make(map[string]int)
		}
		r.Skipped[res.Reason]++
		return
	}
	if fromCache {
		r.Cached++
	} else {
		r.Fetched++
	}
}

// Author is one resolved author in a run.
type Author struct {
	ID   string `json:"author_id"`
	Name string `json:"author_name"`
}

// Result is the full outcome of one run.
type Result struct {
	Authors      []Author                    `json:"authors"`
	Publications []publication.Publication   `json:"articles"`
	Table        []scoring.ScoredPublication `json:"app_table"`
	Summary      scoring.Summary             `json:"summary"`
	Report       Report                      `json:"report"`
	Unresolved   int                         `json:"unresolved_journals,omitempty"`
}

// Options configures a run.
type Options struct {
	AffiliationID string
	Workers       int
	Window        scoring.Window
	Logger        *slog.Logger
}

// Run executes the pipeline for the given authors against the reference
// table at tablePath. Per-item collaborator failures are logged and recorded
// in the report; only an unusable reference table aborts the run. Honors ctx
// cancellation between items.
func Run(ctx context.Context, src Source, store Store, tablePath string, authorIDs []string, opts Options) (*Result, error) {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	workers := opts.Workers
	if workers < 1 {
		workers = 1
	}

	table, err := citescore.LoadTable(tablePath)
	if err != nil {
		return nil, fmt.Errorf("loading reference table: %w", err)
	}
	if table.SkippedLines > 0 {
		logger.Warn("reference table had unparseable lines", "skipped", table.SkippedLines)
	}

	var resolver citescore.RegistryResolver
	if !table.HasRegistry {
		resolver = src
	}
	index, err := citescore.BuildIndex(ctx, table, resolver)
	if err != nil {
		return nil, fmt.Errorf("indexing reference table: %w", err)
	}
	if index.Unresolved > 0 {
		logger.Warn("journals left without a registry id", "count", index.Unresolved)
	}

	result := &Result{Unresolved: index.Unresolved}
	seen := make(map[string]struct{})

	for _, authorID := range authorIDs {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		name, err := src.ResolveAuthor(ctx, authorID)
		if err != nil {
			logger.Warn("could not resolve author name", "author_id", authorID, "error", err)
			name = authorID
		}
		result.Authors = append(result.Authors, Author{ID: authorID, Name: name})

		eids, err := src.ListPublicationIDs(ctx, authorID)
		if err != nil {
			logger.Warn("could not list publications", "author_id", authorID, "error", err)
			continue
		}

		pubs := fetchAll(ctx, src, store, logger, eids, authorID, opts.AffiliationID, workers, &result.Report)
		for i := range pubs {
			if _, dup := seen[pubs[i].EID]; dup {
				continue
			}
			seen[pubs[i].EID] = struct{}{}
			pubs[i].AuthorID = authorID
			pubs[i].AuthorName = name
			result.Publications = append(result.Publications, pubs[i])
		}
	}

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	result.Publications = enrich.Apply(result.Publications, index)
	result.Table, result.Summary = scoring.Score(result.Publications, opts.Window)
	return result, nil
}

type item struct {
	pub       *publication.Publication
	res       ItemResult
	fromCache bool
}

// fetchAll retrieves records through a bounded worker pool, consulting the
// store first when one is configured. Results come back in input order.
func fetchAll(ctx context.Context, src Source, store Store, logger *slog.Logger, eids []string, authorID, affiliationID string, workers int, report *Report) []publication.Publication {
	items := make([]item, len(eids))
	jobs := make(chan int)

	var wg sync.WaitGroup
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := range jobs {
				items[i] = fetchOne(ctx, src, store, logger, eids[i], authorID, affiliationID)
			}
		}()
	}

dispatch:
	for i := range eids {
		select {
		case jobs <- i:
		case <-ctx.Done():
			break dispatch
		}
	}
	close(jobs)
	wg.Wait()

	var pubs []publication.Publication
	for i := range items {
		if items[i].res.EID == "" {
			continue // never dispatched
		}
		report.record(items[i].res, items[i].fromCache)
		if items[i].pub != nil {
			pubs = append(pubs, *items[i].pub)
		}
	}
	return pubs
}

func fetchOne(ctx context.Context, src Source, store Store, logger *slog.Logger, eid, authorID, affiliationID string) (out item) {
	out.res = ItemResult{EID: eid}

	if store != nil {
		if pub, ok, err := store.Get(eid, affiliationID); err != nil {
			logger.Warn("cache read failed", "eid", eid, "error", err)
		} else if ok {
			out.pub = pub
			out.fromCache = true
			return out
		}
	}

	pub, err := src.FetchPublication(ctx, eid, authorID, affiliationID)
	if err != nil {
		out.res.Skipped = true
		out.res.Reason = skipReason(err)
		out.res.Err = err
		if !scopus.IsSkip(err) {
			logger.Warn("fetch failed", "eid", eid, "error", err)
		}
		return out
	}

	if store != nil {
		if err := store.Put(pub, affiliationID); err != nil {
			logger.Warn("cache write failed", "eid", eid, "error", err)
		}
	}
	out.pub = pub
	return out
}

func skipReason(err error) string {
	switch {
	case errors.Is(err, scopus.ErrNotArticle):
		return ReasonNotArticle
	case errors.Is(err, scopus.ErrAffiliationMismatch):
		return ReasonAffiliation
	default:
		return ReasonFetchError
	}
}
