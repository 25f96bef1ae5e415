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

// Bing scrapes the Bing web results page.
type Bing struct {
	BaseURL string // override for tests; defaults to bing.com/search
	Client  *httpclient.Client
	UAPool  *useragent.Pool
	Policy  RankPolicy
}

const bingEndpoint = "https://www.bing.com/search"

func (b *Bing) Name() string { return "bing" }

func (b *Bing) Discover(ctx context.Context, topic string) ([]Candidate, error) {
	base := b.BaseURL
	if base == "" {
		base = bingEndpoint
	}

	q := url.Values{}
	q.Set("q", topic)
	if b.Policy.MaxResults > 0 {
		q.Set("count", fmt.Sprintf("%d", b.Policy.MaxResults*2))
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, base+"?"+q.Encode(), nil)
	if err != nil {
		return nil, &Error{Provider: b.Name(), Err: err}
	}
	if b.UAPool != nil {
		req.Header.Set("User-Agent", b.UAPool.GetRandom())
	}
	req.Header.Set("Accept", "text/html,application/xhtml+xml")
	req.Header.Set("Accept-Language", "en-US,en;q=0.5")

	resp, err := b.Client.Do(ctx, req)
	if err != nil {
		return nil, &Error{Provider: b.Name(), Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, &Error{Provider: b.Name(), Err: fmt.Errorf("unexpected status %d", resp.StatusCode)}
	}

	doc, err := goquery.NewDocumentFromReader(resp.Body)
	if err != nil {
		return nil, &Error{Provider: b.Name(), Err: fmt.Errorf("parse result page: %w", err)}
	}

	var items []Candidate
	doc.Find("li.b_algo").Each(func(i int, s *goquery.Selection) {
		link := s.Find("h2 a").First()
		href, ok := link.Attr("href")
		if !ok || !strings.HasPrefix(href, "http") {
			return
		}
		items = append(items, Candidate{
			URL:     href,
			Title:   strings.TrimSpace(link.Text()),
			Snippet: strings.TrimSpace(s.Find(".b_caption p").First().Text()),
			Rank:    i,
		})
	})

	return b.Policy.Apply(items), nil
}
