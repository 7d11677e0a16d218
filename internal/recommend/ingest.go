package recommend

import (
	"context"
	"image"
	"log"
	"sync"
	"sync/atomic"
	"time"

	"github.com/lamim/portfoliomatch/internal/embedcache"
	"github.com/lamim/portfoliomatch/internal/encoder"
	"github.com/lamim/portfoliomatch/internal/imagefetch"
)

// IngestStatus is a snapshot of ingestion progress and outcome
// counters, safe to copy and hand to a progress callback.
type IngestStatus struct {
	State            string
	StartedAt        time.Time
	CompletedAt      time.Time
	URLsTotal        int64
	CacheHits        int64
	FetchAttempted   int64
	FetchFailures    int64
	EncodeFailures   int64
	CacheWriteErrors int64
	ArtistsIndexed   int64
	ArtistsExcluded  int64
}

// Ingest runs the A→C→B pipeline: a bounded fetch worker pool feeding a
// single encoder task (the model is the expensive, not-safe-for-
// concurrent-use resource) that in turn writes completed vectors to the
// cache before results flow back to the caller.
type Ingest struct {
	fetcher         *imagefetch.Fetcher
	enc             encoder.Encoder
	cache           *embedcache.Cache
	maxImageSize    int
	batchSize       int
	downloadWorkers int
	metrics         *Metrics
}

// IngestConfig configures an Ingest pipeline.
type IngestConfig struct {
	Fetcher         *imagefetch.Fetcher
	Encoder         encoder.Encoder
	Cache           *embedcache.Cache
	MaxImageSize    int
	BatchSize       int
	DownloadWorkers int
	Metrics         *Metrics
}

// NewIngest builds an Ingest pipeline from cfg, applying the same
// defaults as internal/config.DefaultConfig for any zero value.
func NewIngest(cfg IngestConfig) *Ingest {
	if cfg.MaxImageSize <= 0 {
		cfg.MaxImageSize = 512
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 32
	}
	if cfg.DownloadWorkers <= 0 {
		cfg.DownloadWorkers = 10
	}
	return &Ingest{
		fetcher:         cfg.Fetcher,
		enc:             cfg.Encoder,
		cache:           cfg.Cache,
		maxImageSize:    cfg.MaxImageSize,
		batchSize:       cfg.BatchSize,
		downloadWorkers: cfg.DownloadWorkers,
		metrics:         cfg.Metrics,
	}
}

type urlOutcome struct {
	vec []float32
	err error
}

// Run ingests artists: it flattens their image URLs to the unique set
// needed, consults the cache, fetches and encodes the rest through the
// pipeline, attaches embeddings back to each artist in URL order of
// success, and excludes any artist whose every URL failed. Per-image
// and per-batch failures are recorded and never abort or panic the run.
func (in *Ingest) Run(ctx context.Context, artists []ArtistProfile, progressCb func(IngestStatus)) ([]ArtistResult, IngestStatus) {
	start := time.Now()
	status := IngestStatus{State: "ingesting", StartedAt: start}

	unique := uniqueURLs(artists)
	status.URLsTotal = int64(len(unique))

	outcomes := make(map[string]urlOutcome, len(unique))
	var outcomesMu sync.Mutex

	var needFetch []string
	for _, url := range unique {
		if vec, ok := in.cache.Get(url); ok {
			outcomes[url] = urlOutcome{vec: vec}
			status.CacheHits++
		} else {
			needFetch = append(needFetch, url)
		}
	}
	if progressCb != nil {
		progressCb(status)
	}

	if len(needFetch) > 0 {
		in.fetchEncodeCache(ctx, needFetch, outcomes, &outcomesMu, &status, progressCb)
	}

	results := make([]ArtistResult, 0, len(artists))
	for _, a := range artists {
		ar := ArtistResult{ID: a.ID, Name: a.Name, ImageURLs: a.ImageURLs}
		for _, url := range a.ImageURLs {
			oc, ok := outcomes[url]
			if !ok || oc.err != nil {
				ar.FailedURLs = append(ar.FailedURLs, url)
				continue
			}
			ar.Embeddings = append(ar.Embeddings, URLVector{URL: url, Vector: oc.vec})
		}

		if len(ar.Embeddings) == 0 {
			status.ArtistsExcluded++
			log.Printf("Warning: excluding artist %d (%s) from index: all %d image URLs failed", a.ID, a.Name, len(a.ImageURLs))
			continue
		}
		results = append(results, ar)
	}

	status.State = "idle"
	status.ArtistsIndexed = int64(len(results))
	status.CompletedAt = time.Now()
	if progressCb != nil {
		progressCb(status)
	}

	if in.metrics != nil {
		in.metrics.RecordIngest(status)
	}

	return results, status
}

// fetchEncodeCache runs the three-stage producer/consumer pipeline: an
// I/O pool of fetch workers, a batching channel feeding a single
// encoder task, and cache writes performed by that same task right
// after each batch is encoded.
func (in *Ingest) fetchEncodeCache(ctx context.Context, urls []string, outcomes map[string]urlOutcome, outcomesMu *sync.Mutex, status *IngestStatus, progressCb func(IngestStatus)) {
	type decodedImage struct {
		url string
		img image.Image
	}

	jobs := make(chan string)
	batchCh := make(chan decodedImage, in.batchSize)

	var fetchFailures, fetchAttempted atomic.Int64

	var fetchWG sync.WaitGroup
	for i := 0; i < in.downloadWorkers; i++ {
		fetchWG.Add(1)
		go func() {
			defer fetchWG.Done()
			for url := range jobs {
				fetchAttempted.Add(1)
				img, err := in.fetcher.Fetch(ctx, url)
				if err != nil {
					fetchFailures.Add(1)
					outcomesMu.Lock()
					outcomes[url] = urlOutcome{err: err}
					outcomesMu.Unlock()
					log.Printf("Warning: image fetch failed for %s: %v", url, err)
					continue
				}
				normalized := imagefetch.Normalize(img.Img, in.maxImageSize)
				select {
				case batchCh <- decodedImage{url: url, img: normalized}:
				case <-ctx.Done():
					return
				}
			}
		}()
	}

	go func() {
		defer close(jobs)
		for _, url := range urls {
			select {
			case jobs <- url:
			case <-ctx.Done():
				return
			}
		}
	}()

	go func() {
		fetchWG.Wait()
		close(batchCh)
	}()

	var encodeFailures, cacheWriteErrors int64
	batch := make([]decodedImage, 0, in.batchSize)

	flush := func() {
		if len(batch) == 0 {
			return
		}
		images := make([]image.Image, len(batch))
		for i, d := range batch {
			images[i] = d.img
		}

		vecs, err := in.enc.EncodeImages(ctx, images)
		if err != nil {
			// A batch encode failure marks every item in that batch as
			// failed and continues rather than aborting the run.
			log.Printf("Warning: batch encode failed for %d images: %v", len(batch), err)
			outcomesMu.Lock()
			for _, d := range batch {
				outcomes[d.url] = urlOutcome{err: err}
			}
			outcomesMu.Unlock()
			encodeFailures += int64(len(batch))
			batch = batch[:0]
			return
		}

		outcomesMu.Lock()
		for i, d := range batch {
			outcomes[d.url] = urlOutcome{vec: vecs[i]}
		}
		outcomesMu.Unlock()

		for i, d := range batch {
			if err := in.cache.Set(d.url, vecs[i]); err != nil {
				cacheWriteErrors++
			}
		}
		batch = batch[:0]
	}

	for d := range batchCh {
		batch = append(batch, d)
		if len(batch) >= in.batchSize {
			flush()
			if progressCb != nil {
				status.FetchAttempted = fetchAttempted.Load()
				status.FetchFailures = fetchFailures.Load()
				progressCb(*status)
			}
		}
	}
	flush() // flush a partially-filled final batch

	status.FetchAttempted = fetchAttempted.Load()
	status.FetchFailures = fetchFailures.Load()
	status.EncodeFailures = encodeFailures
	status.CacheWriteErrors = cacheWriteErrors
}

// uniqueURLs returns the union of every artist's image URLs, each
// appearing once regardless of how many artists (or how many times
// within one artist) reference it, so embeddings are computed once per
// unique URL.
func uniqueURLs(artists []ArtistProfile) []string {
	seen := make(map[string]bool)
	var out []string
	for _, a := range artists {
		for _, url := range a.ImageURLs {
			if !seen[url] {
				seen[url] = true
				out = append(out, url)
			}
		}
	}
	return out
}
