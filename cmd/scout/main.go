package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/FranksOps/scout/internal/config"
	"github.com/FranksOps/scout/internal/discovery"
	"github.com/FranksOps/scout/internal/fetch"
	"github.com/FranksOps/scout/internal/fingerprint"
	"github.com/FranksOps/scout/internal/llm"
	"github.com/FranksOps/scout/internal/metrics"
	"github.com/FranksOps/scout/internal/render"
	"github.com/FranksOps/scout/internal/report"
	"github.com/FranksOps/scout/internal/run"
	"github.com/FranksOps/scout/internal/server"
	"github.com/FranksOps/scout/internal/storage"
	"github.com/FranksOps/scout/internal/storage/postgres"
	"github.com/FranksOps/scout/internal/storage/sqlite"
	"github.com/FranksOps/scout/pkg/httpclient"
	"github.com/FranksOps/scout/pkg/proxy"
	"github.com/FranksOps/scout/pkg/ratelimit"
	"github.com/FranksOps/scout/pkg/useragent"
)

func main() {
	configPath := flag.String("config", "", "path to YAML config (default $SCOUT_CONFIG)")
	debug := flag.Bool("debug", false, "enable debug logging")
	flag.Parse()

	// .env is optional; real environments set variables directly.
	_ = godotenv.Load()

	level := slog.LevelInfo
	if *debug {
		level = slog.LevelDebug
	}
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
	slog.SetDefault(logger)

	cfg, err := config.Load(*configPath)
	if err != nil {
		logger.Error("configuration invalid", "err", err)
		os.Exit(1)
	}

	if err := runService(cfg, logger); err != nil {
		logger.Error("service failed", "err", err)
		os.Exit(1)
	}
}

func runService(cfg config.Config, logger *slog.Logger) error {
	uaPool := useragent.NewPool(cfg.Fetch.UserAgents)

	var proxyPool *proxy.Pool
	if cfg.Fetch.ProxyFile != "" {
		proxyPool = proxy.NewPool(proxy.Config{})
		if err := proxyPool.LoadFile(cfg.Fetch.ProxyFile); err != nil {
			return fmt.Errorf("load proxy file: %w", err)
		}
	}

	var limiter *ratelimit.Limiter
	if cfg.Fetch.RequestsPerSec > 0 {
		limiter = ratelimit.NewLimiter(cfg.Fetch.RequestsPerSec, float64(cfg.Fetch.JitterMs))
	}

	fetcher, err := fetch.NewFetcher(fetch.Config{
		Timeout:       cfg.Fetch.Timeout(),
		MaxRedirects:  cfg.Fetch.MaxRedirects,
		UAPool:        uaPool,
		ProxyPool:     proxyPool,
		Fingerprint:   fingerprint.Profile(cfg.Fetch.Fingerprint),
		Limiter:       limiter,
		RespectRobots: cfg.Fetch.RespectRobots,
	}, logger)
	if err != nil {
		return fmt.Errorf("build fetcher: %w", err)
	}

	provider, err := buildProvider(cfg, uaPool)
	if err != nil {
		return err
	}

	archive, err := buildArchive(cfg)
	if err != nil {
		return err
	}
	if archive != nil {
		defer archive.Close()
	}

	orch := &run.Orchestrator{
		Provider: provider,
		Fetcher:  fetcher,
		Generator: &report.Generator{
			LLM: llm.NewClient(llm.Config{
				Endpoint: cfg.LLM.Endpoint,
				Model:    cfg.LLM.Model,
				APIKey:   cfg.LLM.APIKey,
			}),
			Logger: logger,
		},
		Renderer: &render.Renderer{Dir: cfg.Report.Dir, PDFCommand: cfg.Report.PDFCommand},
		Archive:  archive,
		Logger:   logger,
		Config: run.Config{
			MaxFetch:        cfg.Fetch.MaxFetch,
			FetchTimeout:    cfg.Fetch.Timeout(),
			StreamChunks:    cfg.Report.StreamOutput,
			LowFetchRate:    cfg.Report.LowFetchRate,
			LowFetchMinDocs: cfg.Report.LowFetchMinDocs,
		},
	}

	metricsSrv := metrics.Start(cfg.Server.MetricsPort)
	srv := server.New(run.NewManager(orch), logger)

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.Start(cfg.Server.Addr)
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-errCh:
		return err
	case sig := <-quit:
		logger.Info("shutting down", "signal", sig.String())
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Stop(ctx); err != nil {
		return fmt.Errorf("shutdown http server: %w", err)
	}
	if err := metricsSrv.Stop(ctx); err != nil {
		logger.Warn("shutdown metrics server", "err", err)
	}
	return nil
}

func buildProvider(cfg config.Config, uaPool *useragent.Pool) (discovery.Provider, error) {
	client, err := httpclient.New(httpclient.Config{Timeout: 20 * time.Second, MaxRedirects: 5})
	if err != nil {
		return nil, fmt.Errorf("build discovery client: %w", err)
	}

	policy := discovery.RankPolicy{
		Trusted:     cfg.Search.Trusted,
		Blacklist:   cfg.Search.Blacklist,
		OnlyTrusted: cfg.Search.OnlyTrusted,
		MaxResults:  cfg.Search.MaxResults,
	}

	switch cfg.Search.Provider {
	case "ddg":
		return &discovery.DDG{Client: client, UAPool: uaPool, Policy: policy}, nil
	case "bing":
		return &discovery.Bing{Client: client, UAPool: uaPool, Policy: policy}, nil
	case "serpapi":
		return &discovery.SerpAPI{APIKey: cfg.Search.SerpAPIKey, Client: client, Policy: policy}, nil
	case "site":
		return &discovery.Site{Client: client, UAPool: uaPool, Policy: policy}, nil
	default:
		return nil, fmt.Errorf("unknown search provider %q", cfg.Search.Provider)
	}
}

func buildArchive(cfg config.Config) (storage.Backend, error) {
	switch cfg.Archive.Backend {
	case "sqlite":
		b, err := sqlite.New(cfg.Archive.DSN)
		if err != nil {
			return nil, fmt.Errorf("open sqlite archive: %w", err)
		}
		return b, nil
	case "postgres":
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		b, err := postgres.New(ctx, cfg.Archive.DSN)
		if err != nil {
			return nil, fmt.Errorf("open postgres archive: %w", err)
		}
		return b, nil
	case "none":
		return nil, nil
	default:
		return nil, fmt.Errorf("unknown archive backend %q", cfg.Archive.Backend)
	}
}
