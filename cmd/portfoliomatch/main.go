// Command portfoliomatch drives the embedding-backed portfolio matching
// core from the command line: it ingests a catalog of artist portfolios
// into the durable embedding cache and serves recommend/stats queries
// against the resulting index. The HTTP façade and upstream catalog
// clients are out of scope here; this CLI reads artist records from a
// local JSON file instead.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/schollz/progressbar/v3"

	"github.com/lamim/portfoliomatch/internal/aggregate"
	"github.com/lamim/portfoliomatch/internal/analytics"
	"github.com/lamim/portfoliomatch/internal/config"
	"github.com/lamim/portfoliomatch/internal/embedcache"
	"github.com/lamim/portfoliomatch/internal/encoder"
	"github.com/lamim/portfoliomatch/internal/imagefetch"
	"github.com/lamim/portfoliomatch/internal/recommend"
)

const version = "portfoliomatch v0.1.0"

func main() {
	if len(os.Args) < 2 {
		printHelp()
		os.Exit(1)
	}

	switch os.Args[1] {
	case "ingest":
		ingestCmd(os.Args[2:])
	case "query":
		queryCmd(os.Args[2:])
	case "stats":
		statsCmd(os.Args[2:])
	case "version":
		fmt.Println(version)
	case "help", "-h", "--help":
		printHelp()
	default:
		fmt.Fprintf(os.Stderr, "unknown command %q\n\n", os.Args[1])
		printHelp()
		os.Exit(1)
	}
}

// artistFile is the on-disk shape of the JSON catalog this CLI reads in
// place of the upstream portfolio collaborator (out of scope for the
// core), via a jsonCatalog implementing recommend.PortfolioSource.
type artistFile struct {
	ID        int64    `json:"id"`
	Name      string   `json:"name"`
	ImageURLs []string `json:"image_urls"`
}

// jsonCatalog is the local stand-in for the upstream portfolio
// collaborator: it implements recommend.PortfolioSource by reading a
// flat JSON array from disk instead of calling out to another service.
type jsonCatalog struct {
	path string
}

func (c jsonCatalog) ListArtists(ctx context.Context) ([]recommend.ArtistProfile, error) {
	data, err := os.ReadFile(c.path)
	if err != nil {
		return nil, fmt.Errorf("reading artist catalog %s: %w", c.path, err)
	}
	var raw []artistFile
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("parsing artist catalog %s: %w", c.path, err)
	}
	artists := make([]recommend.ArtistProfile, len(raw))
	for i, a := range raw {
		artists[i] = recommend.ArtistProfile{ID: a.ID, Name: a.Name, ImageURLs: a.ImageURLs}
	}
	return artists, nil
}

func loadArtists(ctx context.Context, path string) ([]recommend.ArtistProfile, error) {
	var source recommend.PortfolioSource = jsonCatalog{path: path}
	return source.ListArtists(ctx)
}

// buildRecommender loads config, wires the encoder/cache/fetcher/ingest
// pipeline, and returns a Recommender ready for Reload plus the optional
// query-history sink (nil when database.enabled is false or the
// connection fails — analytics never blocks the core from running).
func buildRecommender(configPath string) (*recommend.Recommender, *analytics.Storage, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, nil, fmt.Errorf("loading config: %w", err)
	}
	for _, w := range config.Validate(cfg) {
		log.Printf("Warning: %s", w)
	}

	enc, err := encoder.New(encoder.Config{
		ModelName: cfg.Encoder.ModelName,
		BaseURL:   cfg.Encoder.BaseURL,
		APIKey:    cfg.Encoder.APIKey,
		Dimension: cfg.Encoder.Dimension,
	})
	if err != nil {
		log.Fatalf("Fatal: cannot build embedding encoder: %v", err)
	}

	cache, err := embedcache.Open(cfg.Cache.Dir, cfg.Encoder.ModelName)
	if err != nil {
		log.Fatalf("Fatal: embedding cache directory unusable: %v", err)
	}

	if cfg.Cache.WatchForTamper {
		wd, err := embedcache.NewWatchdog(cfg.Cache.Dir)
		if err != nil {
			log.Printf("Warning: could not start cache directory watchdog: %v", err)
		} else {
			go wd.Watch(context.Background())
		}
	}

	fetcher := imagefetch.New(imagefetch.Config{
		DownloadTimeout:  time.Duration(cfg.Image.DownloadTimeoutS) * time.Second,
		MaxResponseBytes: cfg.Image.MaxResponseBytes,
	})

	ing := recommend.NewIngest(recommend.IngestConfig{
		Fetcher:         fetcher,
		Encoder:         enc,
		Cache:           cache,
		MaxImageSize:    cfg.Image.MaxImageSize,
		BatchSize:       cfg.Image.BatchSize,
		DownloadWorkers: cfg.Image.DownloadWorkers,
	})

	rec, err := recommend.New(recommend.Config{
		Encoder:             enc,
		Cache:               cache,
		Ingest:              ing,
		AggregationStrategy: aggregate.Strategy(cfg.Aggregator.Strategy),
		TopKForWeighted:     cfg.Aggregator.TopKIllustrations,
	})
	if err != nil {
		log.Fatalf("Fatal: cannot build recommender: %v", err)
	}

	var store *analytics.Storage
	if cfg.Database.Enabled {
		store, err = analytics.Connect(context.Background(), analytics.Config{
			URL:       cfg.Database.URL,
			Namespace: cfg.Database.Namespace,
			Database:  cfg.Database.Database,
			Username:  cfg.Database.Username,
			Password:  cfg.Database.Password,
		})
		if err != nil {
			log.Printf("Warning: analytics database unreachable, continuing without query history: %v", err)
			store = nil
		}
	}

	return rec, store, nil
}

func withCancellation() context.Context {
	ctx, cancel := context.WithCancel(context.Background())
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		fmt.Println("\nInterrupted, cancelling...")
		cancel()
	}()
	return ctx
}

func ingestCmd(args []string) {
	fs := flag.NewFlagSet("ingest", flag.ExitOnError)
	configPath := fs.String("config", "", "Path to config file")
	catalogPath := fs.String("catalog", "", "Path to artist catalog JSON file")
	quiet := fs.Bool("quiet", false, "Suppress the progress bar")
	fs.Parse(args)

	if *catalogPath == "" {
		fmt.Fprintln(os.Stderr, "Usage: portfoliomatch ingest --catalog <artists.json> [--config <config.toml>]")
		os.Exit(1)
	}

	ctx := withCancellation()
	artists, err := loadArtists(ctx, *catalogPath)
	if err != nil {
		log.Fatalf("Fatal: %v", err)
	}

	rec, _, err := buildRecommender(*configPath)
	if err != nil {
		log.Fatalf("Fatal: %v", err)
	}

	var bar *progressbar.ProgressBar
	if !*quiet {
		bar = progressbar.NewOptions(len(artists),
			progressbar.OptionSetDescription("ingesting portfolios"),
			progressbar.OptionSetWriter(os.Stderr),
			progressbar.OptionShowCount(),
			progressbar.OptionSetPredictTime(true),
			progressbar.OptionThrottle(100*time.Millisecond),
		)
	}

	var lastIndexed int64
	progressCb := func(status recommend.IngestStatus) {
		if bar == nil {
			return
		}
		delta := status.ArtistsIndexed + status.ArtistsExcluded - lastIndexed
		if delta > 0 {
			bar.Add64(delta)
			lastIndexed = status.ArtistsIndexed + status.ArtistsExcluded
		}
	}

	fmt.Printf("Ingesting %d artist portfolios...\n", len(artists))
	status := rec.Reload(ctx, artists, progressCb)
	if bar != nil {
		bar.Finish()
	}

	fmt.Println()
	fmt.Printf("Ingestion complete in %v\n", status.CompletedAt.Sub(status.StartedAt))
	fmt.Printf("  URLs total:        %d\n", status.URLsTotal)
	fmt.Printf("  Cache hits:        %d\n", status.CacheHits)
	fmt.Printf("  Fetch attempts:    %d\n", status.FetchAttempted)
	fmt.Printf("  Fetch failures:    %d\n", status.FetchFailures)
	fmt.Printf("  Encode failures:   %d\n", status.EncodeFailures)
	fmt.Printf("  Artists indexed:   %d\n", status.ArtistsIndexed)
	fmt.Printf("  Artists excluded:  %d\n", status.ArtistsExcluded)
}

func queryCmd(args []string) {
	fs := flag.NewFlagSet("query", flag.ExitOnError)
	configPath := fs.String("config", "", "Path to config file")
	catalogPath := fs.String("catalog", "", "Path to artist catalog JSON file")
	topK := fs.Int("top-k", 10, "Number of results to return")
	fs.Parse(args)

	remaining := fs.Args()
	if *catalogPath == "" || len(remaining) == 0 {
		fmt.Fprintln(os.Stderr, `Usage: portfoliomatch query --catalog <artists.json> "<brief text>"`)
		os.Exit(1)
	}
	brief := strings.Join(remaining, " ")

	ctx := withCancellation()
	artists, err := loadArtists(ctx, *catalogPath)
	if err != nil {
		log.Fatalf("Fatal: %v", err)
	}

	rec, store, err := buildRecommender(*configPath)
	if err != nil {
		log.Fatalf("Fatal: %v", err)
	}
	if store != nil {
		defer store.Close()
	}

	rec.Reload(ctx, artists, nil)

	start := time.Now()
	results, err := rec.Recommend(ctx, brief, *topK)
	if err != nil {
		log.Fatalf("Fatal: %v", err)
	}

	logRecord := analytics.QueryRecord{
		Brief:       brief,
		TopK:        *topK,
		ResultCount: len(results),
		LatencyMs:   float64(time.Since(start).Milliseconds()),
		QueriedAt:   start,
	}
	if len(results) > 0 {
		logRecord.TopArtistID = results[0].ArtistID
		logRecord.TopScore = float64(results[0].Score)
		logRecord.AggregationStrategy = results[0].AggregationStrategy
	}
	store.RecordQuery(ctx, logRecord)

	if len(results) == 0 {
		fmt.Println("No matching artists.")
		return
	}

	fmt.Printf("%-4s %-30s %-8s %-5s %s\n", "Rank", "Artist", "Score", "N", "Top illustration")
	for i, r := range results {
		fmt.Printf("%-4d %-30s %-8.4f %-5d %s\n", i+1, truncateName(r.Name, 30), r.Score, r.NumIllustrations, r.TopIllustrationURL)
	}
}

func statsCmd(args []string) {
	fs := flag.NewFlagSet("stats", flag.ExitOnError)
	configPath := fs.String("config", "", "Path to config file")
	catalogPath := fs.String("catalog", "", "Path to artist catalog JSON file")
	fs.Parse(args)

	if *catalogPath == "" {
		fmt.Fprintln(os.Stderr, "Usage: portfoliomatch stats --catalog <artists.json>")
		os.Exit(1)
	}

	ctx := withCancellation()
	artists, err := loadArtists(ctx, *catalogPath)
	if err != nil {
		log.Fatalf("Fatal: %v", err)
	}

	rec, store, err := buildRecommender(*configPath)
	if err != nil {
		log.Fatalf("Fatal: %v", err)
	}
	if store != nil {
		defer store.Close()
	}

	rec.Reload(ctx, artists, nil)

	s := rec.Stats()
	fmt.Printf("artists_indexed:          %d\n", s.ArtistsIndexed)
	fmt.Printf("cache_hit_rate:           %.4f\n", s.CacheHitRate)
	fmt.Printf("avg_score:                %.4f\n", s.AvgScore)
	fmt.Printf("avg_latency_ms:           %.4f\n", s.AvgLatencyMs)
	fmt.Printf("uptime_s:                 %.1f\n", s.UptimeSeconds)
	fmt.Printf("index_state:              %s\n", s.IndexState)

	if store != nil {
		hist := store.Stats(ctx)
		fmt.Printf("history_total_queries:    %d\n", hist.TotalQueries)
		fmt.Printf("history_avg_latency_ms:   %.4f\n", hist.AvgLatencyMs)
		fmt.Printf("history_avg_result_size:  %.4f\n", hist.AvgResultSize)
	}
}

func truncateName(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen-3] + "..."
}

func printHelp() {
	fmt.Print(`portfoliomatch - visual portfolio matching core

Commands:
  ingest   Ingest an artist catalog into the embedding cache
  query    Rank artists against a text brief
  stats    Report index and cache statistics
  version  Show version
  help     Show this help

Ingest Options:
  --catalog   Path to artist catalog JSON file (required)
  --config    Path to config file
  --quiet     Suppress the progress bar

Query Options:
  --catalog   Path to artist catalog JSON file (required)
  --config    Path to config file
  --top-k     Number of results to return (default 10)

Stats Options:
  --catalog   Path to artist catalog JSON file (required)
  --config    Path to config file

Environment Variables:
  MAX_IMAGE_SIZE, IMAGE_BATCH_SIZE, IMAGE_DOWNLOAD_TIMEOUT,
  IMAGE_DOWNLOAD_WORKERS, EMBEDDING_CACHE_DIR, AGGREGATION_STRATEGY,
  TOP_K_ILLUSTRATIONS, CLIP_MODEL_NAME

Examples:
  portfoliomatch ingest --catalog ./artists.json
  portfoliomatch query --catalog ./artists.json --top-k 5 "a bold geometric poster"
  portfoliomatch stats --catalog ./artists.json
`)
}
