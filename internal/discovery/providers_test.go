package discovery

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"

	"github.com/FranksOps/scout/pkg/httpclient"
	"github.com/FranksOps/scout/pkg/useragent"
)

func hostOf(t *testing.T, rawURL string) string {
	t.Helper()
	u, err := url.Parse(rawURL)
	if err != nil {
		t.Fatalf("parse url: %v", err)
	}
	return u.Hostname()
}

func testClient(t *testing.T) *httpclient.Client {
	t.Helper()
	c, err := httpclient.New(httpclient.Config{})
	if err != nil {
		t.Fatalf("create client: %v", err)
	}
	return c
}

func TestDDG_Discover(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("q") != "solar storms" {
			t.Errorf("expected topic in query, got %q", r.URL.RawQuery)
		}
		w.Header().Set("Content-Type", "text/html")
		fmt.Fprint(w, `<html><body>
			<div class="result">
				<a class="result__a" href="//duckduckgo.com/l/?uddg=https%3A%2F%2Fspace.example.com%2Fflare">Solar flare warning</a>
				<a class="result__snippet" href="#">A strong flare was observed.</a>
			</div>
			<div class="result">
				<a class="result__a" href="https://news.example.org/aurora">Aurora visible tonight</a>
				<a class="result__snippet" href="#">Northern lights expected.</a>
			</div>
		</body></html>`)
	}))
	defer ts.Close()

	p := &DDG{
		BaseURL: ts.URL,
		Client:  testClient(t),
		UAPool:  useragent.NewPool(nil),
		Policy:  RankPolicy{MaxResults: 10},
	}

	got, err := p.Discover(context.Background(), "solar storms")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("expected 2 candidates, got %d", len(got))
	}
	if got[0].URL != "https://space.example.com/flare" {
		t.Errorf("redirect not unwrapped: %s", got[0].URL)
	}
	if got[0].Title != "Solar flare warning" {
		t.Errorf("unexpected title: %q", got[0].Title)
	}
	if got[1].Domain != "news.example.org" {
		t.Errorf("expected domain filled, got %q", got[1].Domain)
	}
}

func TestDDG_DiscoverServerError(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer ts.Close()

	p := &DDG{BaseURL: ts.URL, Client: testClient(t)}
	_, err := p.Discover(context.Background(), "anything")
	if err == nil {
		t.Fatal("expected discovery error on 429")
	}
	var derr *Error
	if !errors.As(err, &derr) || derr.Provider != "ddg" {
		t.Errorf("expected *discovery.Error from ddg, got %v", err)
	}
}

func TestBing_Discover(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		fmt.Fprint(w, `<html><body><ol id="b_results">
			<li class="b_algo">
				<h2><a href="https://example.com/one">First hit</a></h2>
				<div class="b_caption"><p>First snippet</p></div>
			</li>
			<li class="b_algo">
				<h2><a href="https://example.com/two">Second hit</a></h2>
				<div class="b_caption"><p>Second snippet</p></div>
			</li>
		</ol></body></html>`)
	}))
	defer ts.Close()

	p := &Bing{
		BaseURL: ts.URL,
		Client:  testClient(t),
		UAPool:  useragent.NewPool(nil),
		Policy:  RankPolicy{MaxResults: 10},
	}

	got, err := p.Discover(context.Background(), "anything")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("expected 2 candidates, got %d", len(got))
	}
	if got[1].Snippet != "Second snippet" {
		t.Errorf("unexpected snippet: %q", got[1].Snippet)
	}
}

func TestSerpAPI_Discover(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("api_key") != "k" {
			t.Errorf("expected api key in query")
		}
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, `{"organic_results":[
			{"position":1,"title":"A","link":"https://a.example.com","snippet":"sa"},
			{"position":2,"title":"B","link":"https://b.example.com","snippet":"sb"}
		]}`)
	}))
	defer ts.Close()

	p := &SerpAPI{BaseURL: ts.URL, APIKey: "k", Client: testClient(t), Policy: RankPolicy{MaxResults: 10}}
	got, err := p.Discover(context.Background(), "anything")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(got) != 2 || got[0].Title != "A" {
		t.Fatalf("unexpected candidates: %v", got)
	}
}

func TestSerpAPI_MissingKey(t *testing.T) {
	p := &SerpAPI{Client: testClient(t)}
	if _, err := p.Discover(context.Background(), "x"); err == nil {
		t.Fatal("expected error for missing API key")
	}
}

func TestSite_Discover(t *testing.T) {
	var ts *httptest.Server
	ts = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/xml")
		fmt.Fprintf(w, `<?xml version="1.0" encoding="UTF-8"?>
<urlset xmlns="http://www.sitemap.org/schemas/sitemap/0.9">
  <url><loc>%s/news/solar-flare-update</loc></url>
  <url><loc>%s/sports/football</loc></url>
</urlset>`, ts.URL, ts.URL)
	}))
	defer ts.Close()

	// The provider builds https://<domain>/sitemap.xml, so point a custom
	// transport at the test server instead.
	p := &Site{
		Client: testClient(t),
		UAPool: useragent.NewPool(nil),
		Policy: RankPolicy{Trusted: []string{hostOf(t, ts.URL)}},
	}
	got, err := p.fetchSitemap(context.Background(), ts.URL+"/sitemap.xml", 0)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("expected 2 sitemap URLs, got %d", len(got))
	}

	if !urlMentions(got[0], topicTerms("solar flare")) {
		t.Errorf("expected %q to match topic terms", got[0])
	}
	if urlMentions(got[1], topicTerms("solar flare")) {
		t.Errorf("expected %q not to match topic terms", got[1])
	}
}

func TestSite_EmptySitemap(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/xml")
		fmt.Fprint(w, `<?xml version="1.0" encoding="UTF-8"?>
<urlset xmlns="http://www.sitemap.org/schemas/sitemap/0.9"></urlset>`)
	}))
	defer ts.Close()

	p := &Site{Client: testClient(t), UAPool: useragent.NewPool(nil)}

	_, err := p.fetchSitemap(context.Background(), ts.URL+"/sitemap.xml", 0)
	if err == nil {
		t.Fatal("expected an error for a sitemap with no entries")
	}
	if strings.Contains(err.Error(), "%!w") {
		t.Errorf("error wraps a nil cause: %q", err.Error())
	}
}
