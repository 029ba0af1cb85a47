// Package urlx normalizes link URLs. Candidate submission and winner
// matching must agree on the canonical form, so both sides go through
// Canonicalize.
package urlx

import (
	"net/url"
	"sort"
	"strings"
)

var trackingParamPrefixes = []string{"utm_"}

var trackingParams = map[string]struct{}{
	"fbclid":  {},
	"gclid":   {},
	"igshid":  {},
	"mc_cid":  {},
	"mc_eid":  {},
	"ref_src": {},
}

func isTrackingParam(key string) bool {
	lower := strings.ToLower(key)
	if _, ok := trackingParams[lower]; ok {
		return true
	}
	for _, prefix := range trackingParamPrefixes {
		if strings.HasPrefix(lower, prefix) {
			return true
		}
	}
	return false
}

type queryPair struct {
	key   string
	value string
}

// Canonicalize folds a URL into its canonical form: lower-case scheme and
// host, no leading "www.", tracking parameters dropped, remaining query
// pairs sorted, trailing slash trimmed (root path stays "/"), fragment
// removed.
func Canonicalize(raw string) string {
	parsed, err := url.Parse(strings.TrimSpace(raw))
	if err != nil {
		return strings.TrimSpace(raw)
	}

	scheme := strings.ToLower(parsed.Scheme)
	if scheme == "" {
		scheme = "https"
	}
	host := strings.ToLower(parsed.Host)
	host = strings.TrimPrefix(host, "www.")

	var pairs []queryPair
	for _, part := range strings.Split(parsed.RawQuery, "&") {
		if part == "" {
			continue
		}
		key, value, _ := strings.Cut(part, "=")
		key, errK := url.QueryUnescape(key)
		value, errV := url.QueryUnescape(value)
		if errK != nil || errV != nil {
			continue
		}
		if key == "" || value == "" {
			continue
		}
		if isTrackingParam(key) {
			continue
		}
		pairs = append(pairs, queryPair{key: key, value: value})
	}
	sort.Slice(pairs, func(i, j int) bool {
		if pairs[i].key != pairs[j].key {
			return pairs[i].key < pairs[j].key
		}
		return pairs[i].value < pairs[j].value
	})

	query := make(url.Values, len(pairs))
	for _, pair := range pairs {
		query.Add(pair.key, pair.value)
	}

	path := parsed.Path
	if path == "" {
		path = "/"
	}
	path = strings.TrimRight(path, "/")
	if path == "" {
		path = "/"
	}

	canonical := url.URL{
		Scheme:   scheme,
		Host:     host,
		Path:     path,
		RawQuery: query.Encode(),
	}
	return canonical.String()
}

// Domain extracts the bare host of a URL, without any leading "www.".
func Domain(raw string) string {
	parsed, err := url.Parse(strings.TrimSpace(raw))
	if err != nil {
		return ""
	}
	host := strings.ToLower(parsed.Host)
	return strings.TrimPrefix(host, "www.")
}
