// Package crawlstate implements the per-URL state machine and link
// discovery pipeline a crawl-mode job runs after a page has been fetched:
// extract outbound links, then normalize/filter/admit them before handing
// an ordered batch back to the worker for enqueue.
package crawlstate

import (
	"strings"

	"github.com/PuerkitoBio/goquery"
)

// ExtractLinks returns every href found in html's anchor tags, in document
// order (duplicates included — deduplication happens later, against the
// lock set, so first-in-document wins the tie-break).
func ExtractLinks(html string) []string {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return nil
	}

	var hrefs []string
	doc.Find("a[href]").Each(func(_ int, s *goquery.Selection) {
		href, ok := s.Attr("href")
		if !ok {
			return
		}
		href = strings.TrimSpace(href)
		if href == "" || strings.HasPrefix(href, "#") || strings.HasPrefix(href, "javascript:") || strings.HasPrefix(href, "mailto:") {
			return
		}
		hrefs = append(hrefs, href)
	})
	return hrefs
}
