package scopus

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"reflect"
	"strconv"
	"testing"
)

func newTestClient(t *testing.T, handler http.HandlerFunc) *Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return NewClient(
		WithBaseURL(srv.URL),
		WithAPIKey("test-key"),
		WithRateLimit(10000), // don't slow the tests down
	)
}

const abstractJSON = `{
  "abstracts-retrieval-response": {
    "coredata": {
      "dc:title": "A study of things",
      "prism:coverDate": "2024-03-15",
      "prism:publicationName": "Journal of Things",
      "subtype": "ar",
      "prism:doi": "10.1000/jot.1",
      "source-id": "21100855841",
      "prism:issn": "1234-5678 8765-432X",
      "dc:description": "We studied things."
    },
    "authors": {
      "author": [
        {"@auid": "7004212771", "affiliation": {"@id": "60021379"}},
        {"@auid": "55555", "affiliation": [{"@id": "10000"}, {"@id": "20000"}]},
        {"@auid": "66666"}
      ]
    },
    "subject-areas": {
      "subject-area": [
        {"@code": "1402"},
        {"@code": "2700"},
        {"@code": "804"}
      ]
    },
    "authkeywords": {
      "author-keyword": [{"$": "things"}, {"$": "stuff"}]
    }
  }
}`

func TestFetchPublication(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("X-ELS-APIKey") != "test-key" {
			t.Errorf("missing API key header")
		}
		if r.URL.Query().Get("view") != "FULL" {
			t.Errorf("view = %q, want FULL", r.URL.Query().Get("view"))
		}
		w.Write([]byte(abstractJSON))
	})

	pub, err := client.FetchPublication(context.Background(), "2-s2.0-1", "7004212771", "60021379")
	if err != nil {
		t.Fatalf("FetchPublication: %v", err)
	}

	if pub.Title != "A study of things" || pub.Year != "2024" {
		t.Errorf("title/year = %q/%q", pub.Title, pub.Year)
	}
	if pub.TypeCode != "ar" {
		t.Errorf("TypeCode = %q", pub.TypeCode)
	}
	if pub.RegistryID != "21100855841" {
		t.Errorf("RegistryID = %q", pub.RegistryID)
	}
	if pub.PrintID != "12345678" {
		t.Errorf("PrintID = %q, want normalized print identifier", pub.PrintID)
	}
	if pub.ElectronicID != "8765432X" {
		t.Errorf("ElectronicID = %q, want second issn token", pub.ElectronicID)
	}
	want := []string{"0804", "1402", "2700"}
	if !reflect.DeepEqual(pub.SubjectCodes, want) {
		t.Errorf("SubjectCodes = %v, want %v (zero-padded, sorted)", pub.SubjectCodes, want)
	}
	if pub.AuthorCount != 3 {
		t.Errorf("AuthorCount = %d, want 3", pub.AuthorCount)
	}
	if pub.Keywords != "things; stuff" {
		t.Errorf("Keywords = %q", pub.Keywords)
	}
}

func TestFetchPublicationSubtypeFiltered(t *testing.T) {
	body := `{"abstracts-retrieval-response": {"coredata": {"subtype": "cp"}}}`
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(body))
	})

	_, err := client.FetchPublication(context.Background(), "2-s2.0-1", "1", "")
	if !errors.Is(err, ErrNotArticle) {
		t.Fatalf("err = %v, want ErrNotArticle", err)
	}
	if !IsSkip(err) {
		t.Error("subtype filter should be a skip, not a failure")
	}
}

func TestFetchPublicationAffiliationFilter(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(abstractJSON))
	})

	t.Run("wrong affiliation", func(t *testing.T) {
		_, err := client.FetchPublication(context.Background(), "2-s2.0-1", "7004212771", "99999")
		if !errors.Is(err, ErrAffiliationMismatch) {
			t.Fatalf("err = %v, want ErrAffiliationMismatch", err)
		}
	})

	t.Run("other author's affiliation does not count", func(t *testing.T) {
		_, err := client.FetchPublication(context.Background(), "2-s2.0-1", "7004212771", "10000")
		if !errors.Is(err, ErrAffiliationMismatch) {
			t.Fatalf("err = %v, want ErrAffiliationMismatch", err)
		}
	})

	t.Run("no filter passes", func(t *testing.T) {
		if _, err := client.FetchPublication(context.Background(), "2-s2.0-1", "7004212771", ""); err != nil {
			t.Fatalf("err = %v, want nil without affiliation filter", err)
		}
	})

	t.Run("affiliation list form", func(t *testing.T) {
		if _, err := client.FetchPublication(context.Background(), "2-s2.0-1", "55555", "20000"); err != nil {
			t.Fatalf("err = %v, want match via affiliation array", err)
		}
	})
}

func TestResolveAuthor(t *testing.T) {
	body := `{"author-retrieval-response": [{"author-profile": {"preferred-name": {"given-name": "Ayşe", "surname": "Demir"}}}]}`
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(body))
	})

	name, err := client.ResolveAuthor(context.Background(), "7004212771")
	if err != nil {
		t.Fatalf("ResolveAuthor: %v", err)
	}
	if name != "Ayşe Demir" {
		t.Errorf("name = %q", name)
	}
}

func TestListPublicationIDsPaging(t *testing.T) {
	pages := []string{
		`{"search-results": {"opensearch:totalResults": "27", "entry": [` + eidEntries(0, 25) + `]}}`,
		`{"search-results": {"opensearch:totalResults": "27", "entry": [` + eidEntries(25, 27) + `]}}`,
	}
	var starts []string
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		start := r.URL.Query().Get("start")
		starts = append(starts, start)
		if start == "0" {
			w.Write([]byte(pages[0]))
		} else {
			w.Write([]byte(pages[1]))
		}
	})

	eids, err := client.ListPublicationIDs(context.Background(), "7004212771")
	if err != nil {
		t.Fatalf("ListPublicationIDs: %v", err)
	}
	if len(eids) != 27 {
		t.Fatalf("got %d eids, want 27", len(eids))
	}
	if eids[0] != "2-s2.0-0" || eids[26] != "2-s2.0-26" {
		t.Errorf("eids out of order: first=%q last=%q", eids[0], eids[26])
	}
	if len(starts) != 2 {
		t.Errorf("made %d requests, want 2", len(starts))
	}
}

func eidEntries(from, to int) string {
	out := ""
	for i := from; i < to; i++ {
		if out != "" {
			out += ","
		}
		out += `{"eid": "2-s2.0-` + strconv.Itoa(i) + `"}`
	}
	return out
}

func TestListPublicationIDsEmptyResult(t *testing.T) {
	body := `{"search-results": {"opensearch:totalResults": "0", "entry": [{"error": "Result set was empty"}]}}`
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(body))
	})

	eids, err := client.ListPublicationIDs(context.Background(), "123")
	if err != nil {
		t.Fatalf("ListPublicationIDs: %v", err)
	}
	if len(eids) != 0 {
		t.Errorf("got %d eids, want 0", len(eids))
	}
}

func TestResolveRegistryID(t *testing.T) {
	body := `{"serial-metadata-response": {"entry": [{"source-id": "21100855841"}]}}`
	var path string
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		path = r.URL.Path
		w.Write([]byte(body))
	})

	id, err := client.ResolveRegistryID(context.Background(), "1234-5678")
	if err != nil {
		t.Fatalf("ResolveRegistryID: %v", err)
	}
	if id != "21100855841" {
		t.Errorf("id = %q", id)
	}
	if path != "/serial/title/issn/12345678" {
		t.Errorf("path = %q, want normalized identifier in path", path)
	}
}

func TestResolveRegistryIDEmptyInput(t *testing.T) {
	client := NewClient(WithBaseURL("http://unused.invalid"))
	_, err := client.ResolveRegistryID(context.Background(), "---")
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("err = %v, want ErrNotFound without a network call", err)
	}
}

func TestErrorMapping(t *testing.T) {
	tests := []struct {
		name   string
		status int
		check  func(error) bool
	}{
		{"unauthorized", 401, IsAuthError},
		{"forbidden", 403, IsAuthError},
		{"not found", 404, IsNotFound},
		{"rate limited", 429, IsRateLimited},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
			})
			_, err := client.ResolveAuthor(context.Background(), "1")
			if err == nil || !tt.check(err) {
				t.Errorf("status %d mapped to %v", tt.status, err)
			}
		})
	}
}
