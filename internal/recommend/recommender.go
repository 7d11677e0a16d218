package recommend

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/lamim/portfoliomatch/internal/aggregate"
	"github.com/lamim/portfoliomatch/internal/embedcache"
	"github.com/lamim/portfoliomatch/internal/encoder"
)

// ErrNotReady is returned by Recommend while the index is loading
// (StateLoading). Failing fast is the deliberate choice over blocking
// the caller until the load completes.
var ErrNotReady = errors.New("recommend: index not ready")

// Recommender wires the encoder, cache, ingestion pipeline, and index
// together and serves the query path: encode the brief once, score
// every artist's illustrations against it, aggregate per artist, and
// return the top-k ranked results.
type Recommender struct {
	index      *Index
	ingest     *Ingest
	enc        encoder.Encoder
	cache      *embedcache.Cache
	strategy   aggregate.Strategy
	topK       int
	metrics    *Metrics
	startedAt  time.Time
	reloadMu   sync.Mutex // serializes concurrent Reload calls
	queryCount atomic.Int64
	latencySum atomic.Int64 // nanoseconds, for avg_latency_ms
	scoreSum   atomic.Int64 // fixed-point (score * 1e6), for avg_score
}

// Config configures a Recommender.
type Config struct {
	Encoder             encoder.Encoder
	Cache               *embedcache.Cache
	Ingest              *Ingest
	AggregationStrategy aggregate.Strategy
	TopKForWeighted     int // "k" used by TopKMean aggregation
	Metrics             *Metrics
}

// New builds a Recommender in StateEmpty; call Reload to ingest an
// initial artist list before serving queries.
func New(cfg Config) (*Recommender, error) {
	if cfg.Encoder == nil {
		return nil, errors.New("recommend: encoder is required")
	}
	if cfg.Cache == nil {
		return nil, errors.New("recommend: cache is required")
	}
	if cfg.Ingest == nil {
		return nil, errors.New("recommend: ingest pipeline is required")
	}
	if !aggregate.Valid(cfg.AggregationStrategy) {
		return nil, fmt.Errorf("recommend: invalid aggregation strategy %q", cfg.AggregationStrategy)
	}
	if cfg.TopKForWeighted <= 0 {
		cfg.TopKForWeighted = 3
	}
	return &Recommender{
		index:     NewIndex(),
		ingest:    cfg.Ingest,
		enc:       cfg.Encoder,
		cache:     cfg.Cache,
		strategy:  cfg.AggregationStrategy,
		topK:      cfg.TopKForWeighted,
		metrics:   cfg.Metrics,
		startedAt: time.Now(),
	}, nil
}

// Reload runs BeginLoad → Ingest.Run → Publish: new queries observe
// StateLoading for the duration, and queries already reading the prior
// snapshot are unaffected. Concurrent Reload calls are serialized; the
// second caller's ingest still runs to completion and publishes, it
// simply queues behind the first.
func (r *Recommender) Reload(ctx context.Context, artists []ArtistProfile, progressCb func(IngestStatus)) IngestStatus {
	r.reloadMu.Lock()
	defer r.reloadMu.Unlock()

	r.index.BeginLoad()
	results, status := r.ingest.Run(ctx, artists, progressCb)
	r.index.Publish(results)
	return status
}

// State returns the index's current lifecycle state.
func (r *Recommender) State() State {
	return r.index.State()
}

// Recommend encodes brief, scores every indexed artist's illustrations
// against it, aggregates per artist per the configured strategy, and
// returns the top k artists ranked by score descending, ties broken by
// ascending artist ID.
func (r *Recommender) Recommend(ctx context.Context, brief string, k int) ([]RecommendationResult, error) {
	start := time.Now()

	if r.index.State() == StateLoading {
		return nil, ErrNotReady
	}
	if k <= 0 {
		k = 10
	}

	textVec, err := r.enc.EncodeText(ctx, brief)
	if err != nil {
		return nil, fmt.Errorf("recommend: encoding brief: %w", err)
	}

	artists := r.index.Snapshot()
	results := make([]RecommendationResult, 0, len(artists))

	for _, a := range artists {
		if len(a.Embeddings) == 0 {
			continue
		}
		scores := make([]float32, len(a.Embeddings))
		for i, ev := range a.Embeddings {
			scores[i] = aggregate.CosineToScore(cosineSimilarity(textVec, ev.Vector))
		}

		agg := aggregate.Aggregate(r.strategy, scores, r.topK)

		bestIdx := 0
		for i := 1; i < len(scores); i++ {
			if scores[i] > scores[bestIdx] {
				bestIdx = i
			}
		}

		results = append(results, RecommendationResult{
			ArtistID:            a.ID,
			Name:                a.Name,
			Score:               agg,
			TopIllustrationURL:  a.Embeddings[bestIdx].URL,
			NumIllustrations:    len(a.Embeddings),
			AggregationStrategy: string(r.strategy),
		})
	}

	sort.Slice(results, func(i, j int) bool {
		if results[i].Score != results[j].Score {
			return results[i].Score > results[j].Score
		}
		return results[i].ArtistID < results[j].ArtistID
	})

	if k < len(results) {
		results = results[:k]
	}

	r.recordQuery(start, results)
	return results, nil
}

func (r *Recommender) recordQuery(start time.Time, results []RecommendationResult) {
	elapsed := time.Since(start)
	r.queryCount.Add(1)
	r.latencySum.Add(elapsed.Nanoseconds())

	var top float32
	if len(results) > 0 {
		top = results[0].Score
	}
	r.scoreSum.Add(int64(top * 1e6))

	if r.metrics != nil {
		r.metrics.RecordQuery(elapsed, len(results))
	}
}

// Stats reports the aggregate counters exposed as the external stats
// surface.
func (r *Recommender) Stats() Stats {
	cacheStats := r.cache.Stats()
	count := r.queryCount.Load()

	var avgLatencyMs, avgScore float64
	if count > 0 {
		avgLatencyMs = float64(r.latencySum.Load()) / float64(count) / 1e6
		avgScore = float64(r.scoreSum.Load()) / float64(count) / 1e6
	}

	artists := r.index.Snapshot()

	return Stats{
		ArtistsIndexed: len(artists),
		CacheHitRate:   cacheStats.HitRate,
		AvgScore:       avgScore,
		AvgLatencyMs:   avgLatencyMs,
		QueryCount:     count,
		UptimeSeconds:  time.Since(r.startedAt).Seconds(),
		IndexState:     r.index.State().String(),
	}
}

// Stats is the snapshot returned by Recommender.Stats.
type Stats struct {
	ArtistsIndexed int
	CacheHitRate   float64
	AvgScore       float64
	AvgLatencyMs   float64
	QueryCount     int64
	UptimeSeconds  float64
	IndexState     string
}

// cosineSimilarity assumes both vectors are already L2-normalized (the
// encoder contract requires it), so it is a plain dot product.
func cosineSimilarity(a, b []float32) float32 {
	var sum float32
	n := len(a)
	if len(b) < n {
		n = len(b)
	}
	for i := 0; i < n; i++ {
		sum += a[i] * b[i]
	}
	return sum
}
