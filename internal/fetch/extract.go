package fetch

import (
	"bytes"
	"errors"
	"strings"

	"github.com/PuerkitoBio/goquery"
)

// minReadableLength is the smallest extraction considered article content.
// Shorter pages are almost always interstitials or link farms.
const minReadableLength = 80

// ExtractReadable pulls the title and main article text out of an HTML
// document. Strategy: strip obvious chrome, then take paragraph text from the
// most specific content container that yields enough of it.
func ExtractReadable(html []byte) (title, text string, err error) {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(html))
	if err != nil {
		return "", "", err
	}

	title = strings.TrimSpace(doc.Find("title").First().Text())
	if og, ok := doc.Find(`meta[property="og:title"]`).Attr("content"); ok && og != "" {
		title = strings.TrimSpace(og)
	}

	doc.Find("script, style, noscript, template, iframe, nav, header, footer, aside, form").Remove()

	for _, container := range []string{"article", "main", `[role="main"]`, "body"} {
		sel := doc.Find(container).First()
		if sel.Length() == 0 {
			continue
		}
		if got := paragraphText(sel); len(got) >= minReadableLength {
			return title, got, nil
		}
	}

	// Last resort: whole-document text, collapsed.
	if got := collapse(doc.Text()); len(got) >= minReadableLength {
		return title, got, nil
	}

	return title, "", errors.New("no readable content found")
}

func paragraphText(sel *goquery.Selection) string {
	var parts []string
	sel.Find("p, h1, h2, h3, li").Each(func(_ int, p *goquery.Selection) {
		if t := collapse(p.Text()); t != "" {
			parts = append(parts, t)
		}
	})
	return strings.Join(parts, "\n")
}

func collapse(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
