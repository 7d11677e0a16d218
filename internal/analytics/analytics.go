// Package analytics is an optional query-history sink backed by
// SurrealDB. It records each recommend() call for later aggregate
// reporting; it is disabled by default and never allowed to fail a
// query on the caller's behalf — every write degrades to a logged
// warning rather than an error when the database is unreachable.
package analytics

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/surrealdb/surrealdb.go"
)

// QueryRecord is one logged recommend() invocation.
type QueryRecord struct {
	ID                  string    `json:"id"`
	Brief               string    `json:"brief"`
	TopK                int       `json:"top_k"`
	ResultCount         int       `json:"result_count"`
	TopArtistID         int64     `json:"top_artist_id,omitempty"`
	TopScore            float64   `json:"top_score,omitempty"`
	AggregationStrategy string    `json:"aggregation_strategy"`
	LatencyMs           float64   `json:"latency_ms"`
	QueriedAt           time.Time `json:"queried_at"`
}

// Stats summarizes the recorded history for reporting.
type Stats struct {
	TotalQueries  int64
	AvgLatencyMs  float64
	AvgResultSize float64
}

// Config controls the connection to the optional query-history store.
type Config struct {
	URL       string
	Namespace string
	Database  string
	Username  string
	Password  string
}

// Storage is a connected, schema-initialized query-history sink.
type Storage struct {
	db        *surrealdb.DB
	namespace string
	database  string
}

// Connect opens a SurrealDB connection and ensures the query_log table
// exists. Callers should treat a non-nil error as "run without
// analytics" rather than a fatal condition — the core's stats surface
// functions fully without this package.
func Connect(ctx context.Context, cfg Config) (*Storage, error) {
	db, err := surrealdb.New(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("analytics: connect to %s: %w", cfg.URL, err)
	}

	if cfg.Username != "" {
		if _, err := db.SignIn(ctx, map[string]interface{}{
			"user": cfg.Username,
			"pass": cfg.Password,
		}); err != nil {
			return nil, fmt.Errorf("analytics: sign in: %w", err)
		}
	}

	if err := db.Use(ctx, cfg.Namespace, cfg.Database); err != nil {
		return nil, fmt.Errorf("analytics: use namespace/database: %w", err)
	}

	s := &Storage{db: db, namespace: cfg.Namespace, database: cfg.Database}
	if err := s.runMigrations(ctx); err != nil {
		log.Printf("Warning: analytics schema migration failed, continuing without it: %v", err)
	}
	return s, nil
}

func (s *Storage) runMigrations(ctx context.Context) error {
	migrations := []string{
		`DEFINE TABLE query_log SCHEMAFULL`,
		`DEFINE FIELD brief ON query_log TYPE string`,
		`DEFINE FIELD top_k ON query_log TYPE int`,
		`DEFINE FIELD result_count ON query_log TYPE int`,
		`DEFINE FIELD top_artist_id ON query_log TYPE option<int>`,
		`DEFINE FIELD top_score ON query_log TYPE option<float>`,
		`DEFINE FIELD aggregation_strategy ON query_log TYPE string`,
		`DEFINE FIELD latency_ms ON query_log TYPE float`,
		`DEFINE FIELD queried_at ON query_log TYPE datetime`,
		`DEFINE INDEX idx_query_log_queried_at ON query_log FIELDS queried_at`,
	}
	for _, m := range migrations {
		if _, err := surrealdb.Query[any](ctx, s.db, m, nil); err != nil {
			continue // likely "already exists"; non-fatal either way
		}
	}
	return nil
}

// Close releases the underlying connection.
func (s *Storage) Close() error {
	return s.db.Close(context.Background())
}

// RecordQuery inserts one QueryRecord as a new query_log row. Failures are logged, not
// returned as fatal — callers should not let a logging sink affect
// query latency guarantees or user-visible errors.
func (s *Storage) RecordQuery(ctx context.Context, rec QueryRecord) {
	if s == nil {
		return
	}
	query := `CREATE query_log SET
		brief = $brief,
		top_k = $top_k,
		result_count = $result_count,
		top_artist_id = $top_artist_id,
		top_score = $top_score,
		aggregation_strategy = $aggregation_strategy,
		latency_ms = $latency_ms,
		queried_at = $queried_at`

	_, err := surrealdb.Query[any](ctx, s.db, query, map[string]any{
		"brief":                rec.Brief,
		"top_k":                rec.TopK,
		"result_count":         rec.ResultCount,
		"top_artist_id":        rec.TopArtistID,
		"top_score":            rec.TopScore,
		"aggregation_strategy": rec.AggregationStrategy,
		"latency_ms":           rec.LatencyMs,
		"queried_at":           rec.QueriedAt,
	})
	if err != nil {
		log.Printf("Warning: analytics query log write failed, continuing: %v", err)
	}
}

// Stats aggregates the recorded history. A connection error or empty
// history yields the zero Stats rather than an error.
func (s *Storage) Stats(ctx context.Context) Stats {
	if s == nil {
		return Stats{}
	}

	query := `SELECT count() AS total, math::mean(latency_ms) AS avg_latency_ms, math::mean(result_count) AS avg_result_size FROM query_log GROUP ALL`
	type row struct {
		Total         int64   `json:"total"`
		AvgLatencyMs  float64 `json:"avg_latency_ms"`
		AvgResultSize float64 `json:"avg_result_size"`
	}
	results, err := surrealdb.Query[[]row](ctx, s.db, query, nil)
	if err != nil || results == nil || len(*results) == 0 || len((*results)[0].Result) == 0 {
		if err != nil {
			log.Printf("Warning: analytics stats query failed, returning zero stats: %v", err)
		}
		return Stats{}
	}

	r := (*results)[0].Result[0]
	return Stats{
		TotalQueries:  r.Total,
		AvgLatencyMs:  r.AvgLatencyMs,
		AvgResultSize: r.AvgResultSize,
	}
}
