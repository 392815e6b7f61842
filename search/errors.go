package search

import (
	"errors"
)

var (
	ErrEmptyQuery         = errors.New("Empty query")
	ErrNoMatches          = errors.New("No matches")
	ErrBackendUnavailable = errors.New("Search backend unavailable")
	ErrBackendTimeout     = errors.New("Search backend timed out")
	ErrMalformedRow       = errors.New("Malformed result row")
	ErrInvalidWeights     = errors.New("Search weights must be between 0 and 1, and may not all be zero")
)

// IsNoResults is true for both flavours of "nothing to show"
func IsNoResults(err error) bool {
	return errors.Is(err, ErrEmptyQuery) || errors.Is(err, ErrNoMatches)
}

// IsRetryable is true for failures that may succeed if the same query is sent again.
// Nothing in this package retries by itself.
func IsRetryable(err error) bool {
	return errors.Is(err, ErrBackendUnavailable) || errors.Is(err, ErrBackendTimeout)
}

// NoResultsReason is the short machine-readable reason sent to API consumers
func NoResultsReason(err error) string {
	switch {
	case errors.Is(err, ErrEmptyQuery):
		return "empty_query"
	case errors.Is(err, ErrNoMatches):
		return "no_matches"
	}
	return ""
}
