package discovery

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"

	sitemap "github.com/oxffaa/gopher-parse-sitemap"

	"github.com/FranksOps/scout/pkg/httpclient"
	"github.com/FranksOps/scout/pkg/useragent"
)

// Site discovers candidates by walking the sitemaps of the trusted-domain
// whitelist and keeping URLs that mention the topic. It is the offline-search
// alternative for deployments that cannot reach a search engine.
type Site struct {
	Client  *httpclient.Client
	UAPool  *useragent.Pool
	Logger  *slog.Logger
	Policy  RankPolicy
	PerSite int // max candidates taken per trusted domain (0 = 5)
}

func (s *Site) Name() string { return "site" }

func (s *Site) Discover(ctx context.Context, topic string) ([]Candidate, error) {
	if len(s.Policy.Trusted) == 0 {
		return nil, &Error{Provider: s.Name(), Err: errors.New("site provider needs a trusted-domain whitelist")}
	}

	logger := s.Logger
	if logger == nil {
		logger = slog.Default()
	}
	perSite := s.PerSite
	if perSite <= 0 {
		perSite = 5
	}

	terms := topicTerms(topic)

	var items []Candidate
	for _, domain := range s.Policy.Trusted {
		domain = strings.TrimSpace(domain)
		if domain == "" {
			continue
		}
		urls, err := s.fetchSitemap(ctx, "https://"+domain+"/sitemap.xml", 0)
		if err != nil {
			logger.Warn("sitemap walk failed", "domain", domain, "err", err)
			continue
		}

		taken := 0
		for i, u := range urls {
			if taken >= perSite {
				break
			}
			if !urlMentions(u, terms) {
				continue
			}
			items = append(items, Candidate{URL: u, Domain: domain, Rank: i})
			taken++
		}
	}

	if len(items) == 0 {
		return nil, &Error{Provider: s.Name(), Err: errors.New("no sitemap entries matched the topic")}
	}

	return s.Policy.Apply(items), nil
}

// fetchSitemap downloads and parses one sitemap, recursing one level into
// sitemap indexes.
func (s *Site) fetchSitemap(ctx context.Context, sitemapURL string, depth int) ([]string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, sitemapURL, nil)
	if err != nil {
		return nil, err
	}
	if s.UAPool != nil {
		req.Header.Set("User-Agent", s.UAPool.GetSequential())
	}

	resp, err := s.Client.Do(ctx, req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return nil, fmt.Errorf("bad status code: %d", resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, 4<<20))
	if err != nil {
		return nil, fmt.Errorf("read sitemap: %w", err)
	}

	var urls []string
	err = sitemap.Parse(bytes.NewReader(body), func(e sitemap.Entry) error {
		urls = append(urls, e.GetLocation())
		return nil
	})

	if err != nil || len(urls) == 0 {
		// Might be a sitemap index instead of a plain sitemap.
		var nested []string
		indexErr := sitemap.ParseIndex(bytes.NewReader(body), func(e sitemap.IndexEntry) error {
			nested = append(nested, e.GetLocation())
			return nil
		})
		if len(nested) == 0 {
			switch {
			case err != nil:
				return nil, fmt.Errorf("parse sitemap: %w", err)
			case indexErr != nil:
				return nil, fmt.Errorf("parse sitemap index: %w", indexErr)
			default:
				return nil, errors.New("empty sitemap")
			}
		}
		if depth < 1 {
			for _, nestedURL := range nested {
				nestedURLs, fetchErr := s.fetchSitemap(ctx, nestedURL, depth+1)
				if fetchErr != nil {
					continue
				}
				urls = append(urls, nestedURLs...)
			}
		}
	}

	return urls, nil
}

func topicTerms(topic string) []string {
	fields := strings.Fields(strings.ToLower(topic))
	terms := make([]string, 0, len(fields))
	for _, f := range fields {
		if len(f) >= 3 {
			terms = append(terms, f)
		}
	}
	return terms
}

func urlMentions(rawURL string, terms []string) bool {
	if len(terms) == 0 {
		return true
	}
	lower := strings.ToLower(rawURL)
	for _, t := range terms {
		if strings.Contains(lower, t) {
			return true
		}
	}
	return false
}
