package pipeline

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/bau-research/appscore/internal/publication"
	"github.com/bau-research/appscore/internal/scopus"
	"github.com/bau-research/appscore/internal/scoring"
)

type fakeSource struct {
	mu       sync.Mutex
	name     string
	nameErr  error
	eids     []string
	listErr  error
	pubs     map[string]*publication.Publication
	fetchErr map[string]error
	registry map[string]string

	fetchCalls    []string
	registryCalls []string
}

func (f *fakeSource) ResolveAuthor(ctx context.Context, authorID string) (string, error) {
	if f.nameErr != nil {
		return "", f.nameErr
	}
	return f.name, nil
}

func (f *fakeSource) ListPublicationIDs(ctx context.Context, authorID string) ([]string, error) {
	if f.listErr != nil {
		return nil, f.listErr
	}
	return f.eids, nil
}

func (f *fakeSource) FetchPublication(ctx context.Context, eid, authorID, affiliationID string) (*publication.Publication, error) {
	f.mu.Lock()
	f.fetchCalls = append(f.fetchCalls, eid)
	f.mu.Unlock()
	if err, ok := f.fetchErr[eid]; ok {
		return nil, err
	}
	if pub, ok := f.pubs[eid]; ok {
		c := *pub
		return &c, nil
	}
	return nil, scopus.ErrNotFound
}

func (f *fakeSource) ResolveRegistryID(ctx context.Context, journalID string) (string, error) {
	f.mu.Lock()
	f.registryCalls = append(f.registryCalls, journalID)
	f.mu.Unlock()
	if id, ok := f.registry[journalID]; ok {
		return id, nil
	}
	return "", scopus.ErrNotFound
}

type memStore struct {
	mu   sync.Mutex
	m    map[string]*publication.Publication
	gets int
	puts int
}

func newMemStore() *memStore { return &memStore{m: make(map[string]*publication.Publication)} }

func storeKey(eid, affiliationID string) string { return eid + "\x00" + affiliationID }

func (s *memStore) Get(eid, affiliationID string) (*publication.Publication, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.gets++
	pub, ok := s.m[storeKey(eid, affiliationID)]
	if !ok {
		return nil, false, nil
	}
	c := *pub
	return &c, true, nil
}

func (s *memStore) Put(pub *publication.Publication, affiliationID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.puts++
	c := *pub
	s.m[storeKey(pub.EID, affiliationID)] = &c
	return nil
}

func fp(v float64) *float64 { return &v }

func writeTable(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "citescore.csv")
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatal(err)
	}
	return path
}

const registryTable = `Source ID,Print ISSN,E-ISSN,Percentile,CiteScore,ASJC
100,1234-5678,,92,11.5,1402; 2700
200,8765-4321,,60,2.0,2700
`

func articlePub(eid, registryID, year string, authors int) *publication.Publication {
	return &publication.Publication{
		EID: eid, Title: "T " + eid, TypeCode: "ar", Year: year,
		RegistryID: registryID, AuthorCount: authors,
	}
}

func TestRun(t *testing.T) {
	src := &fakeSource{
		name: "Ayşe Demir",
		eids: []string{"e1", "e2", "e3"},
		pubs: map[string]*publication.Publication{
			"e1": articlePub("e1", "100", "2024", 1),
			"e2": articlePub("e2", "200", "2023", 3),
		},
		fetchErr: map[string]error{"e3": scopus.ErrNotArticle},
	}

	res, err := Run(context.Background(), src, nil, writeTable(t, registryTable),
		[]string{"7004212771"}, Options{
			Workers: 2,
			Window:  scoring.FixedWindow([]int{2023, 2024}),
		})
	if err != nil {
		t.Fatal(err)
	}

	if len(res.Authors) != 1 || res.Authors[0].Name != "Ayşe Demir" {
		t.Errorf("Authors = %+v", res.Authors)
	}
	if len(res.Publications) != 2 {
		t.Fatalf("got %d publications, want 2", len(res.Publications))
	}
	if res.Report.Fetched != 2 || res.Report.Skipped[ReasonNotArticle] != 1 {
		t.Errorf("report = %+v", res.Report)
	}

	// e1: registry 100 -> p92 -> QC 1.4, sole author AC 1.2 -> 1.68
	// e2: registry 200 -> p60 -> QC 0.8, 3 authors AC 0.4 -> 0.32
	if res.Summary.Total != 2.0 {
		t.Errorf("Total = %v, want 2.0", res.Summary.Total)
	}
	if res.Summary.EligibilityTier != scoring.TierTwoAllowances {
		t.Errorf("tier = %q", res.Summary.EligibilityTier)
	}
	if len(res.Table) != 2 || res.Table[0].EID != "e1" {
		t.Errorf("table = %+v", res.Table)
	}

	// enrichment carried onto the article list too
	for _, p := range res.Publications {
		if p.EID == "e1" && (p.Percentile == nil || *p.Percentile != 92 || p.Quartile != "QT") {
			t.Errorf("e1 not enriched: %+v", p)
		}
		if p.AuthorID != "7004212771" {
			t.Errorf("author id not stamped: %+v", p)
		}
	}

	if len(src.registryCalls) != 0 {
		t.Errorf("registry backfill should not run when the table has source ids")
	}
}

func TestRunCacheReadThrough(t *testing.T) {
	src := &fakeSource{
		name: "N",
		eids: []string{"e1", "e2"},
		pubs: map[string]*publication.Publication{
			"e1": articlePub("e1", "100", "2024", 1),
			"e2": articlePub("e2", "200", "2024", 2),
		},
	}
	store := newMemStore()
	cached := articlePub("e1", "100", "2024", 1)
	if err := store.Put(cached, ""); err != nil {
		t.Fatal(err)
	}
	store.puts = 0

	res, err := Run(context.Background(), src, store, writeTable(t, registryTable),
		[]string{"a"}, Options{Window: scoring.FixedWindow([]int{2024})})
	if err != nil {
		t.Fatal(err)
	}

	if res.Report.Cached != 1 || res.Report.Fetched != 1 {
		t.Errorf("report = %+v, want 1 cached + 1 fetched", res.Report)
	}
	if len(src.fetchCalls) != 1 || src.fetchCalls[0] != "e2" {
		t.Errorf("fetchCalls = %v, want only the miss", src.fetchCalls)
	}
	if store.puts != 1 {
		t.Errorf("puts = %d, want the fetched record stored", store.puts)
	}
}

func TestRunAffiliationChangeMissesCache(t *testing.T) {
	// A record cached by an unfiltered run must not satisfy a later run
	// that filters on affiliation; the record is refetched and rejected.
	src := &fakeSource{
		name:     "N",
		eids:     []string{"e1"},
		fetchErr: map[string]error{"e1": scopus.ErrAffiliationMismatch},
	}
	store := newMemStore()
	if err := store.Put(articlePub("e1", "100", "2024", 1), ""); err != nil {
		t.Fatal(err)
	}

	res, err := Run(context.Background(), src, store, writeTable(t, registryTable),
		[]string{"a"}, Options{
			AffiliationID: "60021379",
			Window:        scoring.FixedWindow([]int{2024}),
		})
	if err != nil {
		t.Fatal(err)
	}

	if len(src.fetchCalls) != 1 {
		t.Errorf("fetchCalls = %v, want the record refetched under the new filter", src.fetchCalls)
	}
	if len(res.Publications) != 0 {
		t.Errorf("got %d publications, want 0: %+v", len(res.Publications), res.Publications)
	}
	if res.Report.Skipped[ReasonAffiliation] != 1 || res.Report.Cached != 0 {
		t.Errorf("report = %+v, want 1 affiliation skip and no cache hits", res.Report)
	}
	if res.Summary.Total != 0.0 || res.Summary.EligibilityTier != scoring.TierNoEligible {
		t.Errorf("summary = %+v, want empty result", res.Summary)
	}
}

func TestRunRegistryBackfill(t *testing.T) {
	table := `Print ISSN,E-ISSN,Percentile,CiteScore,ASJC
1234-5678,,92,11.5,1402
`
	src := &fakeSource{
		name:     "N",
		eids:     []string{"e1"},
		pubs:     map[string]*publication.Publication{"e1": articlePub("e1", "100", "2024", 1)},
		registry: map[string]string{"12345678": "100"},
	}

	res, err := Run(context.Background(), src, nil, writeTable(t, table),
		[]string{"a"}, Options{Window: scoring.FixedWindow([]int{2024})})
	if err != nil {
		t.Fatal(err)
	}

	if len(src.registryCalls) == 0 {
		t.Fatal("expected registry backfill lookups")
	}
	if res.Summary.Total != 1.68 {
		t.Errorf("Total = %v, want 1.68 via backfilled registry match", res.Summary.Total)
	}
}

func TestRunAuthorFallbacks(t *testing.T) {
	t.Run("name resolution failure falls back to id", func(t *testing.T) {
		src := &fakeSource{
			nameErr: scopus.ErrNotFound,
			eids:    []string{"e1"},
			pubs:    map[string]*publication.Publication{"e1": articlePub("e1", "100", "2024", 1)},
		}
		res, err := Run(context.Background(), src, nil, writeTable(t, registryTable),
			[]string{"12345"}, Options{Window: scoring.FixedWindow([]int{2024})})
		if err != nil {
			t.Fatal(err)
		}
		if res.Authors[0].Name != "12345" {
			t.Errorf("Name = %q, want the id as fallback", res.Authors[0].Name)
		}
	})

	t.Run("listing failure skips the author", func(t *testing.T) {
		src := &fakeSource{name: "N", listErr: errors.New("search down")}
		res, err := Run(context.Background(), src, nil, writeTable(t, registryTable),
			[]string{"12345"}, Options{Window: scoring.FixedWindow([]int{2024})})
		if err != nil {
			t.Fatal(err)
		}
		if len(res.Publications) != 0 {
			t.Errorf("Publications = %+v, want none", res.Publications)
		}
		if res.Summary.EligibilityTier != scoring.TierNoEligible {
			t.Errorf("tier = %q", res.Summary.EligibilityTier)
		}
	})
}

func TestRunDeduplicatesAcrossAuthors(t *testing.T) {
	src := &fakeSource{
		name: "N",
		eids: []string{"e1"},
		pubs: map[string]*publication.Publication{"e1": articlePub("e1", "100", "2024", 2)},
	}

	res, err := Run(context.Background(), src, nil, writeTable(t, registryTable),
		[]string{"a", "b"}, Options{Window: scoring.FixedWindow([]int{2024})})
	if err != nil {
		t.Fatal(err)
	}
	if len(res.Publications) != 1 {
		t.Errorf("got %d publications, want shared paper counted once", len(res.Publications))
	}
	if res.Publications[0].AuthorID != "a" {
		t.Errorf("AuthorID = %q, want first claiming author", res.Publications[0].AuthorID)
	}
}

func TestRunBadTableAborts(t *testing.T) {
	path := writeTable(t, "Print ISSN,Notes\n1234-5678,x\n")
	src := &fakeSource{name: "N"}
	if _, err := Run(context.Background(), src, nil, path, []string{"a"}, Options{}); err == nil {
		t.Fatal("expected error for unusable reference table")
	}
}

func TestRunCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	src := &fakeSource{name: "N", eids: []string{"e1"}}
	_, err := Run(ctx, src, nil, writeTable(t, registryTable), []string{"a"},
		Options{Window: scoring.FixedWindow([]int{2024})})
	if !errors.Is(err, context.Canceled) {
		t.Errorf("err = %v, want context.Canceled", err)
	}
}
