package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io/fs"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/lmittmann/tint"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/sync/errgroup"

	"github.com/aluiziolira/go-chart-client/cache"
	"github.com/aluiziolira/go-chart-client/charts"
	"github.com/aluiziolira/go-chart-client/config"
	"github.com/aluiziolira/go-chart-client/enrich"
	"github.com/aluiziolira/go-chart-client/export"
	"github.com/aluiziolira/go-chart-client/resilience"
)

func main() {
	envErr := godotenv.Load()

	cfg := config.DefaultConfig()
	cfg.ApplyEnv()

	chartList := flag.String("charts", charts.DefaultChartID, "Comma separated chart ids to fetch")
	week := flag.String("week", "", "Historical chart week (YYYY-MM-DD); empty fetches the current chart")
	force := flag.Bool("force", false, "Bypass fresh cache entries")
	timeout := flag.Duration("timeout", cfg.Timeout, "Per-attempt upstream timeout")
	parallelism := flag.Int("parallel", cfg.Parallelism, "Number of charts fetched concurrently")
	outputFile := flag.String("output", cfg.OutputFile, "Output file path")
	outputFormat := flag.String("format", cfg.OutputFormat, "Output format: csv, json, or dual")
	metricsAddr := flag.String("metrics-addr", cfg.MetricsAddr, "Metrics and health listen address (empty disables)")
	noEnrich := flag.Bool("no-enrich", false, "Skip catalog enrichment")
	verbose := flag.Bool("v", false, "Enable verbose logging")

	flag.Parse()

	logger, level := newLogger(*verbose)
	slog.SetDefault(logger)
	slog.SetLogLoggerLevel(level.Level())

	if envErr != nil && !errors.Is(envErr, fs.ErrNotExist) {
		slog.Warn("could not load .env file", slog.Any("error", envErr))
	}

	cfg.Timeout = *timeout
	cfg.Parallelism = *parallelism
	cfg.OutputFile = *outputFile
	cfg.OutputFormat = strings.ToLower(*outputFormat)
	cfg.MetricsAddr = *metricsAddr
	cfg.Verbose = *verbose
	if *noEnrich {
		cfg.Catalog.Enabled = false
	}
	if err := cfg.Validate(); err != nil {
		slog.Error("invalid configuration", slog.Any("error", err))
		os.Exit(1)
	}
	if *week != "" {
		if _, err := time.Parse(time.DateOnly, *week); err != nil {
			slog.Error("invalid week, expected YYYY-MM-DD", slog.String("week", *week))
			os.Exit(1)
		}
	}
	chartIDs := parseChartIDs(*chartList)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	go func() {
		<-ctx.Done()
		slog.Info("shutdown signal received, waiting for in-flight work to finish")
	}()

	store, closeStore := newStore(cfg)
	defer closeStore()

	metrics := charts.NewMetrics()
	opts := []charts.Option{
		charts.WithCache(store),
		charts.WithMetrics(metrics),
		charts.WithHTTPClient(&http.Client{}),
	}
	if svc := newEnricher(cfg, store, metrics); svc != nil {
		opts = append(opts, charts.WithEnricher(svc))
	}

	client, err := charts.NewClient(cfg, opts...)
	if err != nil {
		slog.Error("initialising chart client", slog.Any("error", err))
		os.Exit(1)
	}
	if cfg.APIKey == "" {
		slog.Warn("RAPIDAPI_KEY is not set; only cached charts can be served")
	}

	writer, err := export.NewWriter(cfg.OutputFormat, cfg.OutputFile)
	if err != nil {
		slog.Error("creating writer", slog.Any("error", err))
		os.Exit(1)
	}
	defer func() {
		if err := writer.Close(); err != nil {
			slog.Error("close writer", slog.Any("error", err))
		}
	}()

	metricsServer := startMetricsServer(cfg.MetricsAddr, metrics, client)

	p := export.NewPipeline(writer, 0)
	p.Start(cfg.Parallelism)
	if cfg.Verbose {
		p.StartProgressReporting(10 * time.Second)
	}

	slog.Info("fetching charts",
		slog.Any("charts", chartIDs),
		slog.String("week", *week),
		slog.Int("workers", cfg.Parallelism),
	)

	startTime := time.Now()
	summary := fetchAll(ctx, client, p, chartIDs, charts.FetchOptions{
		Week:           *week,
		ForceRefresh:   *force,
		SkipEnrichment: !cfg.Catalog.Enabled,
	}, cfg.Parallelism)

	if err := p.Close(); err != nil {
		slog.Error("export pipeline failed", slog.Any("error", err))
		os.Exit(1)
	}

	if metricsServer != nil {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		if err := metricsServer.Shutdown(shutdownCtx); err != nil {
			slog.Error("metrics server shutdown failed", slog.Any("error", err))
		}
		cancel()
	}

	printSummary(summary, p.Stats(), time.Since(startTime), cfg.OutputFile)

	if summary.fetched == 0 {
		slog.Error("no charts fetched")
		os.Exit(1)
	}
	if err := writer.Validate(); err != nil {
		slog.Error("output validation failed", slog.Any("error", err))
		os.Exit(1)
	}
}

type fetchSummary struct {
	mu        sync.Mutex
	fetched   int
	cacheHits int
	stale     int
	failed    map[string]string
}

func (s *fetchSummary) record(chartID string, res *fetchOutcome) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if res.err != nil {
		s.failed[chartID] = string(res.kind)
		return
	}
	s.fetched++
	if res.fromCache {
		s.cacheHits++
	}
	if res.stale {
		s.stale++
	}
}

type fetchOutcome struct {
	fromCache bool
	stale     bool
	kind      charts.ErrorKind
	err       error
}

func fetchAll(ctx context.Context, client *charts.Client, p *export.Pipeline, chartIDs []string, opts charts.FetchOptions, parallelism int) *fetchSummary {
	summary := &fetchSummary{failed: make(map[string]string)}

	var g errgroup.Group
	g.SetLimit(parallelism)
	for _, chartID := range chartIDs {
		g.Go(func() error {
			res, err := client.FetchChart(ctx, chartID, opts)
			if err != nil {
				kind := charts.KindFetchFailed
				var fetchErr *charts.FetchError
				if errors.As(err, &fetchErr) {
					kind = fetchErr.Kind
				}
				slog.Error("chart fetch failed",
					slog.String("chart", chartID),
					slog.String("kind", string(kind)),
					slog.Any("error", err),
				)
				summary.record(chartID, &fetchOutcome{kind: kind, err: err})
				return nil
			}

			summary.record(chartID, &fetchOutcome{fromCache: res.ServedFromCache, stale: res.Stale})
			if err := p.Process(export.RowsFromSnapshot(chartID, res.Snapshot)); err != nil {
				slog.Error("queue chart rows", slog.String("chart", chartID), slog.Any("error", err))
			}
			return nil
		})
	}
	_ = g.Wait()
	return summary
}

func parseChartIDs(raw string) []string {
	var ids []string
	seen := make(map[string]struct{})
	for _, part := range strings.Split(raw, ",") {
		id := strings.ToLower(strings.TrimSpace(part))
		if id == "" {
			continue
		}
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		ids = append(ids, id)
	}
	if len(ids) == 0 {
		ids = []string{charts.DefaultChartID}
	}
	return ids
}

// newStore prefers Redis and falls back to an in-process LRU.
func newStore(cfg *config.Config) (cache.Store, func()) {
	if cfg.RedisURL != "" {
		rs, err := cache.NewRedisStore(cfg.RedisURL, cfg.CacheTimeout)
		if err == nil {
			slog.Info("using redis cache")
			return rs, func() {
				if err := rs.Close(); err != nil {
					slog.Warn("close redis", slog.Any("error", err))
				}
			}
		}
		slog.Warn("redis unavailable, falling back to in-memory cache", slog.Any("error", err))
	}

	ms, err := cache.NewMemoryStore(cfg.MemoryCacheSize)
	if err != nil {
		slog.Warn("in-memory cache disabled", slog.Any("error", err))
		return nil, func() {}
	}
	return ms, func() {}
}

func newEnricher(cfg *config.Config, store cache.Store, metrics *charts.Metrics) *enrich.Service {
	cc := cfg.Catalog
	if !cc.Enabled {
		return nil
	}
	if !cc.HasCredentials() {
		slog.Info("catalog credentials not set, enrichment disabled")
		return nil
	}
	tokens, err := enrich.NewTokenSource(cc.TeamID, cc.KeyID, []byte(cc.PrivateKey))
	if err != nil {
		slog.Warn("catalog token source unavailable, enrichment disabled", slog.Any("error", err))
		return nil
	}

	breaker := resilience.NewBreaker(resilience.BreakerConfig{
		Name:             resilience.CatalogAPIBreaker().Name,
		FailureThreshold: cc.BreakerThreshold,
		RecoveryTimeout:  cc.BreakerRecovery,
	})
	if err := metrics.RegisterBreaker(breaker); err != nil {
		slog.Warn("register catalog breaker metrics", slog.Any("error", err))
	}

	policy := resilience.CatalogAPIPolicy()
	policy.MaxAttempts = cc.MaxAttempts
	policy.AttemptTimeout = cc.Timeout

	catalog := enrich.NewCatalogClient(cc.BaseURL, cc.Storefront, tokens, &http.Client{}, cc.Timeout)
	return enrich.NewService(catalog, enrich.Options{
		Store:        store,
		Breaker:      breaker,
		Policy:       policy,
		BatchSize:    cc.BatchSize,
		BatchDelay:   cc.BatchDelay,
		ResultTTL:    cc.ResultTTL,
		FailureTTL:   cc.FailureTTL,
		CacheTimeout: cfg.CacheTimeout,
		BaseURL:      catalog.BaseURL(),
	})
}

func startMetricsServer(addr string, metrics *charts.Metrics, client *charts.Client) *http.Server {
	if addr == "" {
		return nil
	}

	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(metrics.Registry, promhttp.HandlerOpts{}))
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		report := client.Health(r.Context())
		w.Header().Set("Content-Type", "application/json")
		if report.Status != "ok" {
			w.WriteHeader(http.StatusServiceUnavailable)
		}
		if err := json.NewEncoder(w).Encode(report); err != nil {
			slog.Warn("encode health report", slog.Any("error", err))
		}
	})

	server := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("metrics server failed", slog.Any("error", err))
		}
	}()
	slog.Info("metrics server enabled", slog.String("addr", addr))
	return server
}

func printSummary(summary *fetchSummary, stats export.Stats, duration time.Duration, outputFile string) {
	separator := "--------------------------------------------------"
	fmt.Println("\n" + separator)
	fmt.Println("Fetch complete")
	fmt.Printf("  Charts fetched: %d\n", summary.fetched)
	fmt.Printf("  From cache:     %d\n", summary.cacheHits)
	fmt.Printf("  Stale:          %d\n", summary.stale)
	fmt.Printf("  Failed:         %d\n", len(summary.failed))
	if len(summary.failed) > 0 {
		fmt.Printf("  Failures:       %v\n", summary.failed)
	}
	fmt.Printf("  Rows written:   %d\n", stats.Written)
	if len(stats.Rejected) > 0 {
		fmt.Printf("  Rejected rows:  %v\n", stats.Rejected)
	}
	fmt.Printf("  Duration:       %v\n", duration.Round(time.Millisecond))
	fmt.Printf("  Output file:    %s\n", outputFile)
	fmt.Println(separator)
}

func newLogger(verbose bool) (*slog.Logger, *slog.LevelVar) {
	level := &slog.LevelVar{}
	if verbose {
		level.Set(slog.LevelDebug)
	} else {
		level.Set(slog.LevelInfo)
	}

	var handler slog.Handler
	if isTerminal(os.Stderr) {
		handler = tint.NewHandler(os.Stderr, &tint.Options{Level: level, TimeFormat: time.Kitchen})
	} else {
		handler = slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: level})
	}

	return slog.New(handler), level
}

func isTerminal(f *os.File) bool {
	info, err := f.Stat()
	if err != nil {
		return false
	}
	return (info.Mode() & os.ModeCharDevice) != 0
}
