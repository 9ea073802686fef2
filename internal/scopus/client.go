// Package scopus is a rate-limited client for the Elsevier Scopus APIs,
// covering the four calls this system needs: author name resolution,
// publication listing, abstract retrieval, and serial-title (registry id)
// lookup.
package scopus

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"sort"
	"strconv"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"github.com/bau-research/appscore/internal/normalize"
	"github.com/bau-research/appscore/internal/publication"
)

const (
	// BaseURL is the Elsevier API base URL.
	BaseURL = "https://api.elsevier.com/content"

	// DefaultTimeout is the default HTTP request timeout.
	DefaultTimeout = 60 * time.Second

	// DefaultRateLimit keeps well inside Elsevier's per-second quota.
	DefaultRateLimit = 5.0

	// searchPageSize is the page size for publication-id listing. 25 is the
	// standard-view maximum for the search API.
	searchPageSize = 25
)

// Client is a rate-limited HTTP client for the Scopus APIs.
type Client struct {
	httpClient *http.Client
	limiter    *rate.Limiter
	apiKey     string
	baseURL    string
}

// ClientOption configures a Client.
type ClientOption func(*Client)

// WithAPIKey sets the API key for authenticated requests.
func WithAPIKey(key string) ClientOption {
	return func(c *Client) {
		c.apiKey = key
	}
}

// WithHTTPClient sets a custom HTTP client.
func WithHTTPClient(hc *http.Client) ClientOption {
	return func(c *Client) {
		c.httpClient = hc
	}
}

// WithBaseURL sets a custom base URL (for testing).
func WithBaseURL(u string) ClientOption {
	return func(c *Client) {
		c.baseURL = u
	}
}

// WithRateLimit overrides the default request rate.
func WithRateLimit(perSecond float64) ClientOption {
	return func(c *Client) {
		if perSecond > 0 {
			c.limiter = rate.NewLimiter(rate.Limit(perSecond), 1)
		}
	}
}

// NewClient creates a new Scopus API client.
func NewClient(opts ...ClientOption) *Client {
	c := &Client{
		httpClient: &http.Client{Timeout: DefaultTimeout},
		limiter:    rate.NewLimiter(rate.Limit(DefaultRateLimit), 1),
		baseURL:    BaseURL,
	}

	// Check for API key in environment
	if key := os.Getenv("SCOPUS_API_KEY"); key != "" {
		c.apiKey = key
	}

	for _, opt := range opts {
		opt(c)
	}

	return c
}

// checkHTTPErrors returns an error if the HTTP response indicates a problem.
func checkHTTPErrors(resp *http.Response) error {
	switch {
	case resp.StatusCode == 401 || resp.StatusCode == 403:
		return fmt.Errorf("%w: status %d", ErrAuthError, resp.StatusCode)
	case resp.StatusCode == 404:
		return fmt.Errorf("%w: status %d", ErrNotFound, resp.StatusCode)
	case resp.StatusCode == 429:
		return fmt.Errorf("%w: status %d", ErrRateLimited, resp.StatusCode)
	case resp.StatusCode >= 400:
		return &APIError{StatusCode: resp.StatusCode, Message: http.StatusText(resp.StatusCode)}
	}
	return nil
}

// get performs one rate-limited GET and returns the response body.
func (c *Client) get(ctx context.Context, path string, query url.Values) ([]byte, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("rate limiter: %w", err)
	}

	u := c.baseURL + path
	if len(query) > 0 {
		u += "?" + query.Encode()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if c.apiKey != "" {
		req.Header.Set("X-ELS-APIKey", c.apiKey)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrNetworkError, err)
	}
	defer resp.Body.Close()

	if err := checkHTTPErrors(resp); err != nil {
		return nil, err
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("reading response: %w", err)
	}
	return body, nil
}

// ResolveAuthor returns the author's preferred display name. Callers fall
// back to the raw id when resolution fails.
func (c *Client) ResolveAuthor(ctx context.Context, authorID string) (string, error) {
	q := url.Values{"field": {"given-name,surname"}}
	body, err := c.get(ctx, "/author/author_id/"+url.PathEscape(authorID), q)
	if err != nil {
		return "", err
	}

	var ar authorResponse
	if err := json.Unmarshal(body, &ar); err != nil {
		return "", fmt.Errorf("%w: parsing author: %v", ErrInvalidResponse, err)
	}
	if len(ar.Response) == 0 {
		return "", ErrNotFound
	}

	name := ar.Response[0].Profile.PreferredName
	full := strings.TrimSpace(name.GivenName + " " + name.Surname)
	if full == "" {
		return "", ErrNotFound
	}
	return full, nil
}

// ListPublicationIDs returns all EIDs for an author via AU-ID search,
// following result pages in order.
func (c *Client) ListPublicationIDs(ctx context.Context, authorID string) ([]string, error) {
	var eids []string
	for start := 0; ; start += searchPageSize {
		q := url.Values{
			"query": {fmt.Sprintf("AU-ID(%s)", authorID)},
			"field": {"eid"},
			"count": {strconv.Itoa(searchPageSize)},
			"start": {strconv.Itoa(start)},
		}
		body, err := c.get(ctx, "/search/scopus", q)
		if err != nil {
			return nil, err
		}

		var sr searchResponse
		if err := json.Unmarshal(body, &sr); err != nil {
			return nil, fmt.Errorf("%w: parsing search results: %v", ErrInvalidResponse, err)
		}

		page := 0
		for _, entry := range sr.Results.Entry {
			if entry.Error != "" || entry.EID == "" {
				continue
			}
			eids = append(eids, entry.EID)
			page++
		}
		if page == 0 {
			break
		}

		total, err := strconv.Atoi(sr.Results.TotalResults)
		if err != nil || start+searchPageSize >= total {
			break
		}
	}
	return eids, nil
}

// FetchPublication retrieves the FULL abstract record for one EID and maps
// it to a Publication. Records whose subtype is not article/review return
// ErrNotArticle; when affiliationID is non-empty and the target author is
// not listed with that affiliation on the record, ErrAffiliationMismatch.
func (c *Client) FetchPublication(ctx context.Context, eid, authorID, affiliationID string) (*publication.Publication, error) {
	q := url.Values{"view": {"FULL"}}
	body, err := c.get(ctx, "/abstract/eid/"+url.PathEscape(eid), q)
	if err != nil {
		return nil, err
	}

	var ar abstractResponse
	if err := json.Unmarshal(body, &ar); err != nil {
		return nil, fmt.Errorf("%w: parsing abstract %s: %v", ErrInvalidResponse, eid, err)
	}
	core := ar.Response.Coredata

	subtype := strings.ToLower(core.Subtype)
	if subtype != "ar" && subtype != "re" {
		return nil, fmt.Errorf("%w: %s is %q", ErrNotArticle, eid, core.Subtype)
	}

	if affiliationID != "" && !authorAtAffiliation(ar.Response.Authors.Author, authorID, affiliationID) {
		return nil, fmt.Errorf("%w: %s", ErrAffiliationMismatch, eid)
	}

	printID, electronicID := extractIdentifiers(core.ISSN, core.EISSN)

	year := core.CoverDate
	if len(year) > 4 {
		year = year[:4]
	}

	authorCount := len(ar.Response.Authors.Author)
	if authorCount == 0 {
		authorCount = 1
	}

	var keywords []string
	for _, kw := range ar.Response.AuthKeywords.Keyword {
		if kw.Text != "" {
			keywords = append(keywords, kw.Text)
		}
	}

	return &publication.Publication{
		EID:          eid,
		Title:        core.Title,
		Year:         year,
		JournalName:  core.PublicationName,
		TypeCode:     subtype,
		DOI:          core.DOI,
		RegistryID:   normalize.Digits(core.SourceID),
		PrintID:      printID,
		ElectronicID: electronicID,
		SubjectCodes: extractSubjectCodes(ar),
		AuthorCount:  authorCount,
		Keywords:     strings.Join(keywords, "; "),
		Abstract:     core.Description,
	}, nil
}

// ResolveRegistryID looks up the numeric registry (source) id for a
// normalized journal identifier via the serial-title API.
func (c *Client) ResolveRegistryID(ctx context.Context, journalID string) (string, error) {
	journalID = normalize.JournalID(journalID)
	if journalID == "" {
		return "", ErrNotFound
	}

	q := url.Values{"field": {"source-id"}}
	body, err := c.get(ctx, "/serial/title/issn/"+url.PathEscape(journalID), q)
	if err != nil {
		return "", err
	}

	var sr serialResponse
	if err := json.Unmarshal(body, &sr); err != nil {
		return "", fmt.Errorf("%w: parsing serial title: %v", ErrInvalidResponse, err)
	}
	for _, entry := range sr.Response.Entry {
		if id := normalize.Digits(entry.SourceID); id != "" {
			return id, nil
		}
	}
	return "", ErrNotFound
}

// authorAtAffiliation reports whether the target author appears on the
// record with the given affiliation id.
func authorAtAffiliation(authors []authorEntry, authorID, affiliationID string) bool {
	want := normalize.Digits(affiliationID)
	for _, a := range authors {
		if a.AUID != authorID {
			continue
		}
		for _, aff := range a.Affiliation {
			if normalize.Digits(aff.ID) == want {
				return true
			}
		}
	}
	return false
}

// extractIdentifiers normalizes the coredata identifier pair. prism:issn
// occasionally carries both identifiers space-separated; the second one
// fills the electronic slot when prism:eIssn is absent.
func extractIdentifiers(issn, eissn string) (printID, electronicID string) {
	electronicID = normalize.JournalID(eissn)

	parts := strings.Fields(issn)
	if len(parts) > 0 {
		printID = normalize.JournalID(parts[0])
	}
	if electronicID == "" && len(parts) > 1 {
		electronicID = normalize.JournalID(parts[1])
	}
	return printID, electronicID
}

// extractSubjectCodes collects the record's ASJC codes, zero-padded to four
// digits and sorted.
func extractSubjectCodes(ar abstractResponse) []string {
	seen := make(map[string]struct{})
	for _, sa := range ar.Response.SubjectAreas.SubjectArea {
		d := normalize.Digits(sa.Code)
		if d == "" {
			continue
		}
		n, err := strconv.Atoi(d)
		if err != nil {
			continue
		}
		seen[fmt.Sprintf("%04d", n)] = struct{}{}
	}
	if len(seen) == 0 {
		return nil
	}
	out := make([]string, 0, len(seen))
	for c := range seen {
		out = append(out, c)
	}
	sort.Strings(out)
	return out
}
