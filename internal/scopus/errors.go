package scopus

import (
	"errors"
	"fmt"
)

// Common errors returned by the Scopus client.
var (
	// ErrNotFound indicates the resource was not found.
	ErrNotFound = errors.New("not found in Scopus")

	// ErrAuthError indicates an authentication error (missing/invalid API key).
	ErrAuthError = errors.New("Scopus authentication error")

	// ErrRateLimited indicates the rate limit or quota has been exceeded.
	ErrRateLimited = errors.New("Scopus rate limit exceeded")

	// ErrNetworkError indicates a network connectivity issue.
	ErrNetworkError = errors.New("network error communicating with Scopus")

	// ErrInvalidResponse indicates an unexpected API response.
	ErrInvalidResponse = errors.New("invalid response from Scopus")

	// ErrNotArticle indicates the record's subtype is not scoring-eligible
	// (only journal articles and reviews are fetched).
	ErrNotArticle = errors.New("publication subtype is not article or review")

	// ErrAffiliationMismatch indicates an affiliation filter was set and the
	// target author is not listed with that affiliation on the record.
	ErrAffiliationMismatch = errors.New("target author not at requested affiliation")
)

// APIError represents an error response from the Scopus API.
type APIError struct {
	StatusCode int
	Message    string
	EID        string // for context in record-level errors
}

func (e *APIError) Error() string {
	if e.EID != "" {
		return fmt.Sprintf("Scopus API error (status %d): %s (eid: %s)", e.StatusCode, e.Message, e.EID)
	}
	return fmt.Sprintf("Scopus API error (status %d): %s", e.StatusCode, e.Message)
}

// IsNotFound returns true if the error indicates a resource was not found.
func IsNotFound(err error) bool {
	if errors.Is(err, ErrNotFound) {
		return true
	}
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr.StatusCode == 404
	}
	return false
}

// IsAuthError returns true if the error indicates an authentication problem.
func IsAuthError(err error) bool {
	if errors.Is(err, ErrAuthError) {
		return true
	}
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr.StatusCode == 401 || apiErr.StatusCode == 403
	}
	return false
}

// IsRateLimited returns true if the error indicates rate limiting.
func IsRateLimited(err error) bool {
	if errors.Is(err, ErrRateLimited) {
		return true
	}
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr.StatusCode == 429
	}
	return false
}

// IsSkip returns true for errors that mean "this record is filtered out",
// as opposed to a retrieval failure.
func IsSkip(err error) bool {
	return errors.Is(err, ErrNotArticle) || errors.Is(err, ErrAffiliationMismatch)
}
