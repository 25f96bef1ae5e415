package fetch

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/FranksOps/scout/internal/discovery"
	"github.com/FranksOps/scout/internal/fingerprint"
	"github.com/FranksOps/scout/internal/metrics"
	"github.com/FranksOps/scout/pkg/httpclient"
	"github.com/FranksOps/scout/pkg/proxy"
	"github.com/FranksOps/scout/pkg/ratelimit"
	"github.com/FranksOps/scout/pkg/useragent"
)

type contextKey string

const proxyKey contextKey = "proxy_url"

// Config configures the source fetcher.
type Config struct {
	Timeout      time.Duration // client-level ceiling; lane timeouts come from FetchAll
	MaxRedirects int           // 0 selects the default of 5, negative follows none
	UAPool       *useragent.Pool
	ProxyPool    *proxy.Pool
	Fingerprint  fingerprint.Profile
	Limiter      *ratelimit.Limiter
	// RespectRobots checks robots.txt before fetching a source; disallowed
	// URLs produce a Blocked lane failure.
	RespectRobots bool
	// MaxBodyBytes caps how much of a response body is read (0 = 8 MiB).
	MaxBodyBytes int64
}

// Fetcher performs single-source fetches with readable-content extraction.
// One Fetcher is shared by all lanes of a run; each lane owns its own
// request/timeout state exclusively.
type Fetcher struct {
	cfg    Config
	client *httpclient.Client
	robots *robotsAuditor
	logger *slog.Logger
}

// NewFetcher initializes a new Fetcher with the given configuration.
func NewFetcher(cfg Config, logger *slog.Logger) (*Fetcher, error) {
	if cfg.Timeout == 0 {
		cfg.Timeout = 30 * time.Second
	}
	if cfg.MaxRedirects == 0 {
		// Discovered URLs routinely 301 (http to https, trailing slash);
		// a lane must follow those. Negative disables redirects entirely.
		cfg.MaxRedirects = 5
	}
	if cfg.UAPool == nil {
		cfg.UAPool = useragent.NewPool(nil)
	}
	if string(cfg.Fingerprint) == "" {
		cfg.Fingerprint = fingerprint.ProfileChrome
	}
	if cfg.MaxBodyBytes <= 0 {
		cfg.MaxBodyBytes = 8 << 20
	}
	if logger == nil {
		logger = slog.Default()
	}

	// One transport per fetcher so connections pool across lanes. The proxy
	// function reads from the request context to allow per-request rotation.
	proxyFunc := func(req *http.Request) (*url.URL, error) {
		if val := req.Context().Value(proxyKey); val != nil {
			if u, ok := val.(*url.URL); ok {
				return u, nil
			}
		}
		return http.ProxyFromEnvironment(req)
	}

	transport, err := fingerprint.Transport(cfg.Fingerprint, proxyFunc)
	if err != nil {
		return nil, err
	}

	client, err := httpclient.New(httpclient.Config{
		Timeout:      cfg.Timeout,
		MaxRedirects: cfg.MaxRedirects,
		Transport:    transport,
	})
	if err != nil {
		return nil, err
	}

	f := &Fetcher{
		cfg:    cfg,
		client: client,
		logger: logger,
	}
	if cfg.RespectRobots {
		f.robots = newRobotsAuditor(client, logger)
	}
	return f, nil
}

// Fetch retrieves one source and extracts its readable content. All failures
// come back as a typed *Error; the lane decides nothing about the run.
func (f *Fetcher) Fetch(ctx context.Context, cand discovery.Candidate) (*Page, *Error) {
	start := time.Now()

	if f.robots != nil {
		allowed, err := f.robots.isAllowed(ctx, cand.URL)
		if err != nil {
			// Robots errors fail open; the page fetch itself decides.
			f.logger.Warn("robots.txt check failed", "url", cand.URL, "err", err)
		} else if !allowed {
			return nil, &Error{Kind: KindBlocked, URL: cand.URL, Err: errors.New("disallowed by robots.txt")}
		}
	}

	if f.cfg.Limiter != nil {
		if err := f.cfg.Limiter.Wait(ctx); err != nil {
			return nil, f.classify(ctx, cand.URL, err)
		}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, cand.URL, nil)
	if err != nil {
		return nil, &Error{Kind: KindConnection, URL: cand.URL, Err: err}
	}

	var activeProxy *url.URL
	if f.cfg.ProxyPool != nil {
		if activeProxy = f.cfg.ProxyPool.Next(); activeProxy != nil {
			req = req.WithContext(context.WithValue(req.Context(), proxyKey, activeProxy))
		}
	}

	req.Header.Set("User-Agent", f.cfg.UAPool.GetSequential())
	req.Header.Set("Accept", "text/html,application/xhtml+xml,application/xml;q=0.9,*/*;q=0.8")
	req.Header.Set("Accept-Language", "en-US,en;q=0.5")

	resp, err := f.client.Do(req.Context(), req)
	if err != nil {
		if activeProxy != nil {
			_ = f.cfg.ProxyPool.MarkFailure(activeProxy)
			metrics.ProxyFailures.WithLabelValues(activeProxy.String()).Inc()
		}
		return nil, f.classify(ctx, cand.URL, err)
	}
	defer resp.Body.Close()

	if activeProxy != nil {
		_ = f.cfg.ProxyPool.MarkSuccess(activeProxy)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, &Error{Kind: KindHTTPStatus, URL: cand.URL, Status: resp.StatusCode,
			Err: errors.New(http.StatusText(resp.StatusCode))}
	}

	ctype := strings.ToLower(resp.Header.Get("Content-Type"))
	if ctype != "" && !strings.Contains(ctype, "text/html") && !strings.Contains(ctype, "application/xhtml") {
		return nil, &Error{Kind: KindParse, URL: cand.URL,
			Err: errors.New("not an HTML document: " + ctype)}
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, f.cfg.MaxBodyBytes))
	if err != nil {
		return nil, f.classify(ctx, cand.URL, err)
	}

	title, text, err := ExtractReadable(body)
	if err != nil {
		return nil, &Error{Kind: KindParse, URL: cand.URL, Err: err}
	}
	if title == "" {
		title = cand.Title
	}

	return &Page{
		Title:      title,
		Text:       text,
		StatusCode: resp.StatusCode,
		Bytes:      len(body),
		Duration:   time.Since(start),
	}, nil
}

// classify maps a transport-level error onto the fetch taxonomy. A lane whose
// context deadline fired is a Timeout; anything else is a connection failure.
func (f *Fetcher) classify(ctx context.Context, rawURL string, err error) *Error {
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return &Error{Kind: KindTimeout, URL: rawURL, Err: context.DeadlineExceeded}
	}
	return &Error{Kind: KindConnection, URL: rawURL, Err: err}
}
