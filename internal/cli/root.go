package cmd

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"github.com/ternarybob/arbor"

	"github.com/rohmanhakim/crawlsvc/internal/build"
	"github.com/rohmanhakim/crawlsvc/internal/config"
	"github.com/rohmanhakim/crawlsvc/internal/coordinator"
	"github.com/rohmanhakim/crawlsvc/internal/fetchclient"
	"github.com/rohmanhakim/crawlsvc/internal/kvstore"
	"github.com/rohmanhakim/crawlsvc/internal/metadata"
	"github.com/rohmanhakim/crawlsvc/internal/model"
	"github.com/rohmanhakim/crawlsvc/internal/queue"
	"github.com/rohmanhakim/crawlsvc/internal/robots"
	"github.com/rohmanhakim/crawlsvc/internal/robots/cache"
	"github.com/rohmanhakim/crawlsvc/internal/storage"
	"github.com/rohmanhakim/crawlsvc/internal/webhook"
	"github.com/rohmanhakim/crawlsvc/internal/worker"
	"github.com/rohmanhakim/crawlsvc/pkg/hashutil"
	"github.com/rohmanhakim/crawlsvc/pkg/limiter"
	"github.com/rohmanhakim/crawlsvc/pkg/retry"
	"github.com/rohmanhakim/crawlsvc/pkg/timeutil"
)

var (
	cfgFile            string
	seedURL            string
	maxDepth           int
	maxCrawledLinks    int
	limitPages         int
	ignoreSitemap      bool
	allowExternalLinks bool
	concurrentRequests int
	dataDir            string
	renderingURL       string
	localMode          bool
)

var rootCmd = &cobra.Command{
	Use:     "crawld",
	Short:   "A distributed web-crawling and scraping service.",
	Version: build.FullVersion(),
}

var submitCmd = &cobra.Command{
	Use:   "submit",
	Short: "Submit a crawl and run it to completion against an in-process worker pool.",
	Run:   runSubmit,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config-file", "", "config file path (e.g., /home/myuser/config.json)")

	submitCmd.Flags().StringVar(&seedURL, "seed-url", "", "starting URL to crawl (required)")
	submitCmd.Flags().IntVar(&maxDepth, "max-depth", 10, "maximum link depth from the seed URL")
	submitCmd.Flags().IntVar(&maxCrawledLinks, "max-crawled-links", 1000, "maximum number of links admitted per crawl")
	submitCmd.Flags().IntVar(&limitPages, "limit", 10000, "maximum number of pages enqueued per crawl")
	submitCmd.Flags().BoolVar(&ignoreSitemap, "ignore-sitemap", true, "skip sitemap resolution and seed a single crawl-mode job")
	submitCmd.Flags().BoolVar(&allowExternalLinks, "allow-external-links", false, "admit discovered links whose host differs from the seed")
	submitCmd.Flags().IntVar(&concurrentRequests, "concurrent-requests", 20, "maximum number of fetches in flight across the worker pool")
	submitCmd.Flags().StringVar(&dataDir, "data-dir", "./data/crawlsvc", "directory the kvstore persists crawl state under")
	submitCmd.Flags().StringVar(&renderingURL, "rendering-service-url", "", "rendering service base URL (empty uses the direct HTTP fetcher)")
	submitCmd.Flags().BoolVar(&localMode, "local", false, "use http instead of https for the returned resource URL")

	rootCmd.AddCommand(submitCmd)
}

func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

// InitConfig resolves the active Config from --config-file if set, or from
// CLI-flag-sourced overrides otherwise.
func InitConfig() (config.Config, error) {
	if cfgFile != "" {
		return config.WithConfigFile(cfgFile)
	}
	return config.WithDefault().
		WithDataDir(dataDir).
		WithRenderingServiceURL(renderingURL).
		WithLocalMode(localMode).
		WithConcurrentRequests(concurrentRequests).
		Build()
}

func runSubmit(cmd *cobra.Command, args []string) {
	if seedURL == "" {
		fmt.Fprintln(os.Stderr, "Error: --seed-url is required")
		cmd.Usage()
		os.Exit(1)
	}

	cfg, err := InitConfig()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %s\n", err)
		os.Exit(1)
	}

	logger := arbor.NewLogger()

	store, err := kvstore.Open(cfg.DataDir())
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error opening kvstore: %s\n", err)
		os.Exit(1)
	}
	defer func() {
		if closer, ok := store.(interface{ Close() error }); ok {
			closer.Close()
		}
	}()

	q := queue.NewPriorityQueue()
	policy := queue.NewPriorityPolicy(cfg.TenantLoadThreshold())
	sink := metadata.NewRecorder(logger, "")

	httpClient := &http.Client{Timeout: cfg.Timeout()}
	robotsClient := robots.NewClient(httpClient, cache.NewMemoryCache(), cfg.UserAgent(), sink)

	coord := coordinator.New(store, q, policy, robotsClient, httpClient, sink, cfg.LocalMode())

	opts := model.NewCrawlerOptions().
		WithMaxDepth(maxDepth).
		WithMaxCrawledLinks(maxCrawledLinks).
		WithLimit(limitPages).
		WithIgnoreSitemap(ignoreSitemap).
		WithAllowExternalLinks(allowExternalLinks)

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	crawlID, resourceURL, err := coord.Submit(ctx, coordinator.Request{
		URL:     seedURL,
		Options: opts,
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error submitting crawl: %s\n", err)
		os.Exit(1)
	}
	fmt.Printf("crawl %s submitted: %s\n", crawlID, resourceURL)

	var direct fetchclient.Fetcher
	directFetcher, err := fetchclient.NewDirectFetcher(cfg.Timeout())
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error constructing fetcher: %s\n", err)
		os.Exit(1)
	}
	direct = directFetcher

	var renderer fetchclient.Fetcher
	if cfg.RenderingServiceURL() != "" {
		renderer = fetchclient.NewRenderingFetcher(cfg.RenderingServiceURL(), httpClient, cfg.Timeout())
	}

	rateLimiter := limiter.NewConcurrentRateLimiter()
	rateLimiter.SetBaseDelay(cfg.BaseDelay())
	rateLimiter.SetJitter(cfg.Jitter())
	rateLimiter.SetRandomSeed(cfg.RandomSeed())

	dispatcher := webhook.NewDispatcher(httpClient, sink)

	pool := worker.NewPool(q, store, policy, renderer, direct, rateLimiter, consoleProgress{}, dispatcher, sink, worker.Options{
		ConcurrentRequests: cfg.ConcurrentRequests(),
		RetryParam: retry.NewRetryParam(
			cfg.BaseDelay(),
			cfg.Jitter(),
			cfg.RandomSeed(),
			cfg.MaxAttempt(),
			timeutil.NewBackoffParam(cfg.BackoffInitialDuration(), cfg.BackoffMultiplier(), cfg.BackoffMaxDuration()),
		),
	})

	if cfg.OutputDir() != "" && !cfg.DryRun() {
		localSink := storage.NewLocalSink(sink)
		pool.WithLocalSink(&localSink, cfg.OutputDir(), hashutil.HashAlgoBLAKE3)
	}

	runCtx, runCancel := context.WithTimeout(ctx, 5*time.Minute)
	defer runCancel()
	pool.Run(runCtx)

	fmt.Println("crawl finished or context cancelled")
}

type consoleProgress struct{}

func (consoleProgress) Report(p worker.Progress) {
	fmt.Printf("[%s] %d/%d %s\n", p.CrawlID, p.Current, p.Total, p.CurrentDocumentURL)
}
