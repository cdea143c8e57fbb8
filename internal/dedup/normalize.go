// Package dedup computes identity signals for raw job records and reconciles
// them against persisted listings so repeated, multi-source ingestion does
// not store duplicates.
package dedup

import (
	"errors"
	"fmt"
	"net/url"
	"strings"
)

var (
	errEmptyURL            = errors.New("normalize url: empty input")
	errMissingSchemeOrHost = errors.New("normalize url: missing scheme or host")
)

// NormalizeJobURL applies deterministic transformations to a listing URL so
// that equivalent URLs produce identical strings: the query string and
// fragment are stripped, the trailing slash removed, and the result
// lowercased. Tracking parameters therefore never affect identity.
func NormalizeJobURL(rawURL string) (string, error) {
	if rawURL == "" {
		return "", errEmptyURL
	}

	parsed, err := url.Parse(strings.TrimSpace(rawURL))
	if err != nil {
		return "", fmt.Errorf("normalize url: %w", err)
	}
	if parsed.Scheme == "" || parsed.Host == "" {
		return "", errMissingSchemeOrHost
	}

	parsed.RawQuery = ""
	parsed.Fragment = ""
	parsed.RawFragment = ""

	normalized := strings.TrimRight(parsed.String(), "/")

	return strings.ToLower(normalized), nil
}

// Fingerprint derives the last-resort identity key for a listing from its
// company, title and location. Case and surrounding/internal whitespace do
// not affect the result. Computed once at creation and immutable thereafter.
func Fingerprint(company, title, location string) string {
	return collapse(company) + "|" + collapse(title) + "|" + collapse(location)
}

// collapse lowercases and squeezes all whitespace runs to single spaces.
func collapse(s string) string {
	return strings.ToLower(strings.Join(strings.Fields(s), " "))
}
