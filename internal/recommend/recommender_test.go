package recommend

import (
	"context"
	"errors"
	"image/color"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/lamim/portfoliomatch/internal/aggregate"
	"github.com/lamim/portfoliomatch/internal/embedcache"
	"github.com/lamim/portfoliomatch/internal/encoder"
	"github.com/lamim/portfoliomatch/internal/imagefetch"
)

func newRecommenderFixture(t *testing.T, strategy aggregate.Strategy) (*Recommender, *httptest.Server) {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("/red.png", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "image/png")
		w.Write(pngBytes(t, color.RGBA{R: 255, A: 255}))
	})
	mux.HandleFunc("/blue.png", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "image/png")
		w.Write(pngBytes(t, color.RGBA{B: 255, A: 255}))
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)

	fetcher := imagefetch.New(imagefetch.Config{DownloadTimeout: 2 * time.Second})
	cache, err := embedcache.Open(t.TempDir(), "mock")
	if err != nil {
		t.Fatal(err)
	}
	ing := NewIngest(IngestConfig{Fetcher: fetcher, Encoder: encoder.NewMock(0), Cache: cache, BatchSize: 4, DownloadWorkers: 4})

	rec, err := New(Config{
		Encoder:             encoder.NewMock(0),
		Cache:               cache,
		Ingest:              ing,
		AggregationStrategy: strategy,
		TopKForWeighted:     3,
	})
	if err != nil {
		t.Fatal(err)
	}
	return rec, srv
}

func TestRecommendNotReadyWhileLoading(t *testing.T) {
	rec, _ := newRecommenderFixture(t, aggregate.Max)
	rec.index.BeginLoad()

	_, err := rec.Recommend(context.Background(), "a bold poster", 5)
	if !errors.Is(err, ErrNotReady) {
		t.Fatalf("expected ErrNotReady while loading, got %v", err)
	}
}

func TestRecommendEmptyIndexReturnsEmptyList(t *testing.T) {
	rec, _ := newRecommenderFixture(t, aggregate.Max)
	results, err := rec.Recommend(context.Background(), "anything", 5)
	if err != nil {
		t.Fatal(err)
	}
	if len(results) != 0 {
		t.Fatalf("expected empty results on empty index, got %d", len(results))
	}
}

// Ranking tie-break: two artists with identical score are ordered
// by ascending artist_id.
func TestRecommendTieBreaksByAscendingArtistID(t *testing.T) {
	rec, srv := newRecommenderFixture(t, aggregate.Max)

	artists := []ArtistProfile{
		{ID: 10, Name: "ten", ImageURLs: []string{srv.URL + "/red.png"}},
		{ID: 2, Name: "two", ImageURLs: []string{srv.URL + "/red.png"}},
	}
	rec.Reload(context.Background(), artists, nil)

	results, err := rec.Recommend(context.Background(), "brief", 2)
	if err != nil {
		t.Fatal(err)
	}
	if len(results) != 2 {
		t.Fatalf("expected 2 results, got %d", len(results))
	}
	// Both artists share the identical image, so identical score under
	// any aggregation strategy; the tie must resolve id 2 before id 10.
	if results[0].Score != results[1].Score {
		t.Fatalf("expected tied scores for identical portfolios, got %v vs %v", results[0].Score, results[1].Score)
	}
	if results[0].ArtistID != 2 || results[1].ArtistID != 10 {
		t.Fatalf("expected ascending id tiebreak [2,10], got [%d,%d]", results[0].ArtistID, results[1].ArtistID)
	}
}

func TestRecommendScoreRangeAndBestURL(t *testing.T) {
	rec, srv := newRecommenderFixture(t, aggregate.Max)
	artists := []ArtistProfile{
		{ID: 1, Name: "mixed", ImageURLs: []string{srv.URL + "/red.png", srv.URL + "/blue.png"}},
	}
	rec.Reload(context.Background(), artists, nil)

	results, err := rec.Recommend(context.Background(), "a fiery red dragon", 1)
	if err != nil {
		t.Fatal(err)
	}
	if len(results) != 1 {
		t.Fatalf("expected 1 result, got %d", len(results))
	}
	r := results[0]
	if r.Score < 0 || r.Score > 1 {
		t.Fatalf("score out of [0,1]: %v", r.Score)
	}
	if r.NumIllustrations != 2 {
		t.Fatalf("expected 2 illustrations, got %d", r.NumIllustrations)
	}
	if r.TopIllustrationURL != srv.URL+"/red.png" && r.TopIllustrationURL != srv.URL+"/blue.png" {
		t.Fatalf("unexpected top illustration url: %s", r.TopIllustrationURL)
	}
}

// Two artists with identical image_urls must score identically for the
// same brief regardless of any difference in name.
func TestRecommendDescriptionIndependence(t *testing.T) {
	rec, srv := newRecommenderFixture(t, aggregate.Mean)
	artists := []ArtistProfile{
		{ID: 1, Name: "alpha", ImageURLs: []string{srv.URL + "/red.png", srv.URL + "/blue.png"}},
		{ID: 2, Name: "completely different display name", ImageURLs: []string{srv.URL + "/red.png", srv.URL + "/blue.png"}},
	}
	rec.Reload(context.Background(), artists, nil)

	results, err := rec.Recommend(context.Background(), "a calm seascape", 2)
	if err != nil {
		t.Fatal(err)
	}
	if len(results) != 2 {
		t.Fatalf("expected 2 results, got %d", len(results))
	}
	if results[0].Score != results[1].Score {
		t.Fatalf("expected identical scores for identical portfolios, got %v vs %v", results[0].Score, results[1].Score)
	}
}

func TestStateTransitionsReadyLoadingReady(t *testing.T) {
	rec, srv := newRecommenderFixture(t, aggregate.Max)
	if rec.State() != StateEmpty {
		t.Fatalf("expected initial state Empty, got %v", rec.State())
	}

	artists := []ArtistProfile{{ID: 1, Name: "one", ImageURLs: []string{srv.URL + "/red.png"}}}
	rec.Reload(context.Background(), artists, nil)

	if rec.State() != StateReady {
		t.Fatalf("expected Ready after reload, got %v", rec.State())
	}
}
