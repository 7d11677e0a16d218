// Package recommend implements Component E, the Recommender: it
// orchestrates ingestion (fetch → encode → cache) at initialization and
// serves the query path (text encode → cosine → aggregate → rank) at
// request time. It owns the artist index and the metrics counters.
package recommend

import "context"

// ArtistProfile is the core's strict internal view of an upstream
// artist record; any other fields upstream supplies are ignored at the
// boundary, never inside the core.
type ArtistProfile struct {
	ID        int64
	Name      string
	ImageURLs []string
}

// ArtistResult is ArtistProfile after ingestion: the successfully
// embedded subsequence of ImageURLs plus the set of URLs that failed.
type ArtistResult struct {
	ID         int64
	Name       string
	ImageURLs  []string
	Embeddings []URLVector
	FailedURLs []string
}

// URLVector pairs a source URL with its embedding, in the order the URL
// appears in ImageURLs among successfully processed URLs.
type URLVector struct {
	URL    string
	Vector []float32
}

// RecommendationResult is one ranked entry returned by recommend().
type RecommendationResult struct {
	ArtistID            int64
	Name                string
	Score               float32
	TopIllustrationURL  string
	NumIllustrations    int
	AggregationStrategy string
}

// PortfolioSource supplies the set of artist records to ingest. The
// upstream collaborator that implements it is out of scope for this
// core; Reload itself takes the resulting []ArtistProfile, not a
// PortfolioSource.
type PortfolioSource interface {
	ListArtists(ctx context.Context) ([]ArtistProfile, error)
}
