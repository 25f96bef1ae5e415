// Package discovery turns a topic into an ordered list of candidate web
// sources. Providers abstract the search backend; ranking applies the
// trusted/blacklist domain policy before the result cap.
package discovery

import (
	"context"
	"fmt"
	"net/url"
	"strings"
)

// Candidate is one discovered source. Rank preserves provider order and is
// used only for presentation tie-breaks.
type Candidate struct {
	URL     string `json:"url"`
	Title   string `json:"title"`
	Snippet string `json:"snippet"`
	Domain  string `json:"domain"`
	Rank    int    `json:"rank"`
}

// Provider abstracts a search backend that returns candidate sources for a
// topic. Implementations may scrape result pages or call JSON APIs. A provider
// failure is terminal for the run; there are no retries at this layer.
type Provider interface {
	Name() string
	Discover(ctx context.Context, topic string) ([]Candidate, error)
}

// Error wraps a provider failure. Discovery errors fail the whole run since
// there is nothing to fetch without candidates.
type Error struct {
	Provider string
	Err      error
}

func (e *Error) Error() string {
	return fmt.Sprintf("discovery via %s failed: %v", e.Provider, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// DomainOf extracts the hostname of a URL, empty on parse failure.
func DomainOf(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil {
		return ""
	}
	return u.Hostname()
}

// RankPolicy filters and orders raw provider results: blacklisted domains are
// dropped, trusted domains float to the front, and the list is capped at
// MaxResults. With OnlyTrusted set, untrusted results are dropped entirely.
type RankPolicy struct {
	Trusted     []string
	Blacklist   []string
	OnlyTrusted bool
	MaxResults  int
}

func matchDomain(host string, domains []string) bool {
	host = strings.ToLower(host)
	for _, d := range domains {
		d = strings.ToLower(strings.TrimSpace(d))
		if d == "" {
			continue
		}
		if host == d || strings.HasSuffix(host, "."+d) {
			return true
		}
	}
	return false
}

// Apply ranks the candidates and reassigns Rank to the final presentation order.
func (p RankPolicy) Apply(items []Candidate) []Candidate {
	var trusted, others []Candidate
	for _, it := range items {
		dom := it.Domain
		if dom == "" {
			dom = DomainOf(it.URL)
		}
		if matchDomain(dom, p.Blacklist) {
			continue
		}
		it.Domain = dom
		if matchDomain(dom, p.Trusted) {
			trusted = append(trusted, it)
		} else if !p.OnlyTrusted {
			others = append(others, it)
		}
	}

	ranked := append(trusted, others...)
	if p.MaxResults > 0 && len(ranked) > p.MaxResults {
		ranked = ranked[:p.MaxResults]
	}
	for i := range ranked {
		ranked[i].Rank = i
	}
	return ranked
}
