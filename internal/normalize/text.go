package normalize

import (
	"strings"

	"github.com/PuerkitoBio/goquery"
)

// BodyText converts an upstream HTML body into plain text, one block per line.
// Input without markup is returned cleaned.
func BodyText(html string) string {
	html = strings.TrimSpace(html)
	if html == "" {
		return ""
	}
	if !strings.Contains(html, "<") && !strings.Contains(html, "&") {
		return joinLines(html)
	}

	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return joinLines(html)
	}
	doc.Find("script,style").Remove()
	doc.Find("br").ReplaceWithHtml("\n")
	doc.Find("p,div,li,tr,h1,h2,h3,h4,table").Each(func(_ int, s *goquery.Selection) {
		s.AppendHtml("\n")
	})
	doc.Find("td,th").Each(func(_ int, s *goquery.Selection) {
		s.AppendHtml(" ")
	})

	return joinLines(doc.Text())
}

func joinLines(text string) string {
	text = strings.ReplaceAll(Clean(text), "\r\n", "\n")
	parts := strings.Split(text, "\n")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.Join(strings.Fields(p), " ")
		if p != "" {
			out = append(out, p)
		}
	}
	return strings.Join(out, "\n")
}
