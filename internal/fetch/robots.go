package fetch

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"sync"

	"github.com/temoto/robotstxt"

	"github.com/FranksOps/scout/pkg/httpclient"
)

// robotsAuditor caches robots.txt per host and answers allow/deny for the
// scout user agent.
type robotsAuditor struct {
	client *httpclient.Client
	logger *slog.Logger
	mu     sync.RWMutex
	cache  map[string]*robotstxt.RobotsData
}

const robotsUserAgent = "scout"

func newRobotsAuditor(client *httpclient.Client, logger *slog.Logger) *robotsAuditor {
	if logger == nil {
		logger = slog.Default()
	}
	return &robotsAuditor{
		client: client,
		logger: logger,
		cache:  make(map[string]*robotstxt.RobotsData),
	}
}

func (a *robotsAuditor) isAllowed(ctx context.Context, rawURL string) (bool, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return false, fmt.Errorf("parse url: %w", err)
	}

	host := u.Scheme + "://" + u.Host

	a.mu.RLock()
	data, ok := a.cache[host]
	a.mu.RUnlock()

	if !ok {
		data, err = a.fetchRobots(ctx, host)
		if err != nil {
			return false, err
		}
		a.mu.Lock()
		a.cache[host] = data
		a.mu.Unlock()
	}

	if data == nil {
		// No robots.txt means everything is allowed.
		return true, nil
	}

	return data.TestAgent(u.Path, robotsUserAgent), nil
}

func (a *robotsAuditor) fetchRobots(ctx context.Context, host string) (*robotstxt.RobotsData, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, host+"/robots.txt", nil)
	if err != nil {
		return nil, err
	}

	resp, err := a.client.Do(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("fetch robots.txt: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		// Missing or forbidden robots.txt: treat as absent.
		return nil, nil
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, fmt.Errorf("read robots.txt: %w", err)
	}

	data, err := robotstxt.FromBytes(body)
	if err != nil {
		return nil, fmt.Errorf("parse robots.txt: %w", err)
	}
	return data, nil
}
