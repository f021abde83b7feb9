package crawlstate

import (
	"net/url"
	"strings"

	"github.com/PuerkitoBio/goquery"
)

// rewriteTargets lists the (tag, attribute) pairs whose paths get resolved
// to absolute URLs against a page's own address. Anchors are included
// alongside image/script/stylesheet references since downstream markdown
// and HTML consumers alike need a self-contained document that survives
// being moved out of the page's original host context.
var rewriteTargets = []struct {
	selector string
	attr     string
}{
	{"a[href]", "href"},
	{"img[src]", "src"},
	{"script[src]", "src"},
	{"link[href]", "href"},
}

// RewriteAbsolutePaths resolves every relative href/src in html against
// base and returns the rewritten document. Unparseable fragments and
// unparseable individual attribute values are left untouched rather than
// dropped, since a partially-rewritten document is still usable.
func RewriteAbsolutePaths(html string, base url.URL) string {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return html
	}

	for _, target := range rewriteTargets {
		doc.Find(target.selector).Each(func(_ int, s *goquery.Selection) {
			raw, ok := s.Attr(target.attr)
			if !ok {
				return
			}
			raw = strings.TrimSpace(raw)
			if raw == "" || strings.HasPrefix(raw, "#") || strings.HasPrefix(raw, "javascript:") || strings.HasPrefix(raw, "data:") || strings.HasPrefix(raw, "mailto:") {
				return
			}
			ref, err := url.Parse(raw)
			if err != nil {
				return
			}
			resolved := base.ResolveReference(ref)
			s.SetAttr(target.attr, resolved.String())
		})
	}

	rewritten, err := doc.Html()
	if err != nil {
		return html
	}
	return rewritten
}
