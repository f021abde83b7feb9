package urlutil

import (
	"net/url"
	"strings"
)

// FilterByHost returns the subset of rawURLs whose host matches allowedHosts
// (case-insensitive). An empty allowedHosts set allows every host. Entries
// that fail to parse are dropped rather than propagated, since link
// discovery must not abort a crawl over a single malformed href.
func FilterByHost(rawURLs []string, allowedHosts map[string]struct{}) []string {
	if len(allowedHosts) == 0 {
		return rawURLs
	}

	lowered := make(map[string]struct{}, len(allowedHosts))
	for h := range allowedHosts {
		lowered[strings.ToLower(h)] = struct{}{}
	}

	filtered := make([]string, 0, len(rawURLs))
	for _, raw := range rawURLs {
		parsed, err := url.Parse(raw)
		if err != nil {
			continue
		}
		if _, ok := lowered[strings.ToLower(parsed.Hostname())]; ok {
			filtered = append(filtered, raw)
		}
	}
	return filtered
}

// Resolve resolves ref against base, returning an absolute URL. Ref may be
// relative (path, path+query, fragment-only) or already absolute. Scheme-less
// refs (protocol-relative "//host/path") inherit base's scheme.
func Resolve(base url.URL, ref string) (url.URL, error) {
	parsedRef, err := url.Parse(ref)
	if err != nil {
		return url.URL{}, err
	}
	resolved := base.ResolveReference(parsedRef)
	return *resolved, nil
}
