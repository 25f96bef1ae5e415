package discovery

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/FranksOps/scout/pkg/httpclient"
	"github.com/FranksOps/scout/pkg/useragent"
)

// DDG scrapes the DuckDuckGo HTML endpoint. No API key required, which makes
// it the default provider.
type DDG struct {
	BaseURL string // override for tests; defaults to the html endpoint
	Client  *httpclient.Client
	UAPool  *useragent.Pool
	Policy  RankPolicy
}

const ddgHTMLEndpoint = "https://html.duckduckgo.com/html/"

func (d *DDG) Name() string { return "ddg" }

// Discover runs a text search and parses the result page. DuckDuckGo wraps
// result links in a /l/?uddg= redirect, which is unwrapped here.
func (d *DDG) Discover(ctx context.Context, topic string) ([]Candidate, error) {
	base := d.BaseURL
	if base == "" {
		base = ddgHTMLEndpoint
	}

	q := url.Values{}
	q.Set("q", topic)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, base+"?"+q.Encode(), nil)
	if err != nil {
		return nil, &Error{Provider: d.Name(), Err: err}
	}
	if d.UAPool != nil {
		req.Header.Set("User-Agent", d.UAPool.GetRandom())
	}
	req.Header.Set("Accept", "text/html,application/xhtml+xml")

	resp, err := d.Client.Do(ctx, req)
	if err != nil {
		return nil, &Error{Provider: d.Name(), Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, &Error{Provider: d.Name(), Err: fmt.Errorf("unexpected status %d", resp.StatusCode)}
	}

	doc, err := goquery.NewDocumentFromReader(resp.Body)
	if err != nil {
		return nil, &Error{Provider: d.Name(), Err: fmt.Errorf("parse result page: %w", err)}
	}

	var items []Candidate
	doc.Find("div.result").Each(func(i int, s *goquery.Selection) {
		link := s.Find("a.result__a").First()
		href, ok := link.Attr("href")
		if !ok {
			return
		}
		target := unwrapDDGRedirect(href)
		if target == "" {
			return
		}
		items = append(items, Candidate{
			URL:     target,
			Title:   strings.TrimSpace(link.Text()),
			Snippet: strings.TrimSpace(s.Find(".result__snippet").Text()),
			Rank:    i,
		})
	})

	return d.Policy.Apply(items), nil
}

// unwrapDDGRedirect extracts the destination from a duckduckgo.com/l/?uddg=
// redirect link. Absolute links pass through unchanged.
func unwrapDDGRedirect(href string) string {
	if strings.HasPrefix(href, "//") {
		href = "https:" + href
	}
	u, err := url.Parse(href)
	if err != nil {
		return ""
	}
	if uddg := u.Query().Get("uddg"); uddg != "" {
		return uddg
	}
	if u.Scheme == "http" || u.Scheme == "https" {
		return u.String()
	}
	return ""
}
