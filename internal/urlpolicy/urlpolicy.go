// Package urlpolicy holds the pure, context-free URL rules the crawl state
// machine and coordinator apply when deciding whether a discovered link may
// be admitted: depth accounting, include/exclude matching, host scoping, and
// relative-link resolution.
package urlpolicy

import (
	"net/url"
	"regexp"
	"strings"
)

// URLDepth returns the number of non-empty path segments in u. The root
// path ("/" or "") is depth 0.
func URLDepth(u url.URL) int {
	trimmed := strings.Trim(u.Path, "/")
	if trimmed == "" {
		return 0
	}
	return len(strings.Split(trimmed, "/"))
}

// AdjustedMaxDepth returns the absolute depth ceiling for a crawl whose seed
// sits at a non-root path: adjustedMaxDepth = urlDepth(seed) + configuredMaxDepth.
// This lets a crawl seeded at /docs/v2 still explore configuredMaxDepth
// levels beneath /docs/v2, rather than counting /docs/v2 itself against the
// budget.
func AdjustedMaxDepth(seed url.URL, configuredMaxDepth int) int {
	return URLDepth(seed) + configuredMaxDepth
}

// Normalize produces the comparison key used by the URL lock set: lowercase
// host with a leading "www." collapsed, port, query and fragment dropped,
// trailing slash removed (except root). It loses information that
// Canonicalize in pkg/urlutil keeps for the fetchable form (the "www."
// prefix, a non-default port), so Normalize must only be used for dedup
// keys, never to construct a request URL.
func Normalize(u url.URL) string {
	host := strings.ToLower(u.Hostname())
	host = strings.TrimPrefix(host, "www.")

	path := u.Path
	if len(path) > 1 {
		path = strings.TrimRight(path, "/")
	}
	if path == "" {
		path = "/"
	}

	return u.Scheme + "://" + host + path
}

// MatchesIncludeExclude reports whether u's path satisfies the include/
// exclude pattern sets. Patterns match the path only (never scheme, host,
// or query). An empty include set matches everything; any exclude match
// rejects regardless of include.
func MatchesIncludeExclude(u url.URL, include, exclude []*regexp.Regexp) bool {
	for _, re := range exclude {
		if re.MatchString(u.Path) {
			return false
		}
	}
	if len(include) == 0 {
		return true
	}
	for _, re := range include {
		if re.MatchString(u.Path) {
			return true
		}
	}
	return false
}

// FilterByHost returns the subset of urls whose host is in allowedHosts
// (case-insensitive). An empty allowedHosts set allows every host.
func FilterByHost(urls []url.URL, allowedHosts map[string]struct{}) []url.URL {
	if len(allowedHosts) == 0 {
		return urls
	}
	lowered := make(map[string]struct{}, len(allowedHosts))
	for h := range allowedHosts {
		lowered[strings.ToLower(h)] = struct{}{}
	}
	filtered := make([]url.URL, 0, len(urls))
	for _, u := range urls {
		if _, ok := lowered[strings.ToLower(u.Hostname())]; ok {
			filtered = append(filtered, u)
		}
	}
	return filtered
}

// ResolveLink resolves a possibly-relative href discovered on a page at
// base into an absolute URL.
func ResolveLink(base url.URL, href string) (url.URL, error) {
	ref, err := url.Parse(strings.TrimSpace(href))
	if err != nil {
		return url.URL{}, err
	}
	resolved := base.ResolveReference(ref)
	resolved.Fragment = ""
	resolved.RawFragment = ""
	return *resolved, nil
}
