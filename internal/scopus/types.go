package scopus

import "encoding/json"

// The Scopus JSON surface is irregular: several fields appear as either a
// single object or an array depending on the record. flexList flattens both
// forms into a slice.
type flexList[T any] []T

func (f *flexList[T]) UnmarshalJSON(data []byte) error {
	if string(data) == "null" {
		*f = nil
		return nil
	}

	var one T
	if err := json.Unmarshal(data, &one); err == nil {
		*f = flexList[T]{one}
		return nil
	}

	var many []T
	if err := json.Unmarshal(data, &many); err != nil {
		return err
	}
	*f = many
	return nil
}

// authorEntry is one author on an abstract record, with just enough of the
// affiliation structure to apply the affiliation filter.
type authorEntry struct {
	AUID        string                   `json:"@auid"`
	Affiliation flexList[affiliationRef] `json:"affiliation"`
}

type affiliationRef struct {
	ID string `json:"@id"`
}

// abstractResponse mirrors the FULL view of an abstract retrieval.
type abstractResponse struct {
	Response struct {
		Coredata struct {
			Title           string `json:"dc:title"`
			CoverDate       string `json:"prism:coverDate"`
			PublicationName string `json:"prism:publicationName"`
			Subtype         string `json:"subtype"`
			DOI             string `json:"prism:doi"`
			SourceID        string `json:"source-id"`
			ISSN            string `json:"prism:issn"`
			EISSN           string `json:"prism:eIssn"`
			Description     string `json:"dc:description"`
		} `json:"coredata"`
		Authors struct {
			Author []authorEntry `json:"author"`
		} `json:"authors"`
		SubjectAreas struct {
			SubjectArea []struct {
				Code string `json:"@code"`
			} `json:"subject-area"`
		} `json:"subject-areas"`
		AuthKeywords struct {
			Keyword flexList[keywordEntry] `json:"author-keyword"`
		} `json:"authkeywords"`
	} `json:"abstracts-retrieval-response"`
}

type keywordEntry struct {
	Text string `json:"$"`
}

// authorResponse mirrors an author retrieval (preferred name only).
type authorResponse struct {
	Response []struct {
		Profile struct {
			PreferredName struct {
				GivenName string `json:"given-name"`
				Surname   string `json:"surname"`
			} `json:"preferred-name"`
		} `json:"author-profile"`
	} `json:"author-retrieval-response"`
}

// searchResponse mirrors one page of a Scopus search.
type searchResponse struct {
	Results struct {
		TotalResults string `json:"opensearch:totalResults"`
		Entry        []struct {
			EID   string `json:"eid"`
			Error string `json:"error"` // "Result set was empty" marker entry
		} `json:"entry"`
	} `json:"search-results"`
}

// serialResponse mirrors a serial-title lookup.
type serialResponse struct {
	Response struct {
		Entry []struct {
			SourceID string `json:"source-id"`
		} `json:"entry"`
	} `json:"serial-metadata-response"`
}
