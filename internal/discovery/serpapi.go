package discovery

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/FranksOps/scout/pkg/httpclient"
)

// SerpAPI queries the serpapi.com JSON API with the google engine.
type SerpAPI struct {
	BaseURL string // override for tests; defaults to the public endpoint
	APIKey  string
	Client  *httpclient.Client
	Policy  RankPolicy
}

const serpapiEndpoint = "https://serpapi.com/search.json"

type serpapiResponse struct {
	Error          string `json:"error"`
	OrganicResults []struct {
		Position int    `json:"position"`
		Title    string `json:"title"`
		Link     string `json:"link"`
		Snippet  string `json:"snippet"`
	} `json:"organic_results"`
}

func (s *SerpAPI) Name() string { return "serpapi" }

func (s *SerpAPI) Discover(ctx context.Context, topic string) ([]Candidate, error) {
	if s.APIKey == "" {
		return nil, &Error{Provider: s.Name(), Err: errors.New("missing API key")}
	}

	base := s.BaseURL
	if base == "" {
		base = serpapiEndpoint
	}

	q := url.Values{}
	q.Set("engine", "google")
	q.Set("q", topic)
	q.Set("api_key", s.APIKey)
	if s.Policy.MaxResults > 0 {
		q.Set("num", strconv.Itoa(s.Policy.MaxResults * 2))
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, base+"?"+q.Encode(), nil)
	if err != nil {
		return nil, &Error{Provider: s.Name(), Err: err}
	}

	resp, err := s.Client.Do(ctx, req)
	if err != nil {
		return nil, &Error{Provider: s.Name(), Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		payload, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, &Error{
			Provider: s.Name(),
			Err:      fmt.Errorf("status %d: %s", resp.StatusCode, strings.TrimSpace(string(payload))),
		}
	}

	var parsed serpapiResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return nil, &Error{Provider: s.Name(), Err: fmt.Errorf("decode response: %w", err)}
	}
	if parsed.Error != "" {
		return nil, &Error{Provider: s.Name(), Err: errors.New(parsed.Error)}
	}

	items := make([]Candidate, 0, len(parsed.OrganicResults))
	for i, r := range parsed.OrganicResults {
		if r.Link == "" {
			continue
		}
		items = append(items, Candidate{
			URL:     r.Link,
			Title:   r.Title,
			Snippet: r.Snippet,
			Rank:    i,
		})
	}

	return s.Policy.Apply(items), nil
}
