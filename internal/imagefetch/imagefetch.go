// Package imagefetch downloads portfolio illustration URLs, validates and
// decodes them, and returns a normalized RGB image ready for the encoder's
// own resize step.
package imagefetch

import (
	"bytes"
	"context"
	"fmt"
	"image"
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"
	"io"
	"log"
	"net/http"
	"strings"
	"time"

	_ "golang.org/x/image/webp"

	"github.com/lamim/portfoliomatch/internal/httpclient"
)

// ErrorKind classifies a fetch failure per the error taxonomy.
type ErrorKind string

const (
	KindInvalidURL             ErrorKind = "InvalidURL"
	KindTimeout                ErrorKind = "Timeout"
	KindNetworkError           ErrorKind = "NetworkError"
	KindHTTPError              ErrorKind = "HTTPError"
	KindUnsupportedContentType ErrorKind = "UnsupportedContentType"
	KindInvalidImage           ErrorKind = "InvalidImage"
	KindTooLarge               ErrorKind = "TooLarge"
)

// FetchError records the URL, failure kind, and elapsed time of a failed
// fetch attempt.
type FetchError struct {
	URL     string
	Kind    ErrorKind
	Status  int
	Elapsed time.Duration
	Err     error
}

func (e *FetchError) Error() string {
	if e.Status != 0 {
		return fmt.Sprintf("fetch %s: %s (status %d) after %v: %v", e.URL, e.Kind, e.Status, e.Elapsed, e.Err)
	}
	return fmt.Sprintf("fetch %s: %s after %v: %v", e.URL, e.Kind, e.Elapsed, e.Err)
}

func (e *FetchError) Unwrap() error { return e.Err }

// Image is a decoded raster in a canonical RGB color space, ready for the
// encoder's own preprocessing.
type Image struct {
	Img    image.Image
	Format string
	Width  int
	Height int
}

// Fetcher downloads and decodes image URLs. It is stateless; callers
// invoke it concurrently from a bounded worker pool.
type Fetcher struct {
	client           *http.Client
	downloadTimeout  time.Duration
	maxResponseBytes int64
}

// Config controls a Fetcher's timeout and size limits.
type Config struct {
	DownloadTimeout  time.Duration
	MaxResponseBytes int64
}

// New builds a Fetcher sharing the package-wide pooled HTTP client keyed
// by cfg.DownloadTimeout.
func New(cfg Config) *Fetcher {
	if cfg.DownloadTimeout <= 0 {
		cfg.DownloadTimeout = 10 * time.Second
	}
	if cfg.MaxResponseBytes <= 0 {
		cfg.MaxResponseBytes = 20 * 1024 * 1024
	}
	return &Fetcher{
		client:           httpclient.GetSharedClient(cfg.DownloadTimeout),
		downloadTimeout:  cfg.DownloadTimeout,
		maxResponseBytes: cfg.MaxResponseBytes,
	}
}

var backoffSchedule = []time.Duration{1 * time.Second, 2 * time.Second}

// Fetch downloads url, retrying transient failures with exponential
// backoff (1s, then 2s) up to 3 attempts total, and returns a decoded,
// canonical-RGB image on success.
func (f *Fetcher) Fetch(ctx context.Context, url string) (*Image, error) {
	if !strings.HasPrefix(url, "http://") && !strings.HasPrefix(url, "https://") {
		return nil, &FetchError{URL: url, Kind: KindInvalidURL, Err: fmt.Errorf("unsupported URL scheme")}
	}

	start := time.Now()
	var lastErr error

	for attempt := 0; attempt <= len(backoffSchedule); attempt++ {
		select {
		case <-ctx.Done():
			return nil, &FetchError{URL: url, Kind: KindTimeout, Elapsed: time.Since(start), Err: ctx.Err()}
		default:
		}

		img, err := f.attempt(ctx, url, start)
		if err == nil {
			return img, nil
		}
		lastErr = err

		fe, ok := err.(*FetchError)
		if !ok || !retryable(fe) {
			return nil, err
		}
		if attempt == len(backoffSchedule) {
			break
		}

		backoff := backoffSchedule[attempt]
		log.Printf("Warning: retrying image fetch for %s (attempt %d/%d, backoff %v): %v", url, attempt+1, len(backoffSchedule)+1, backoff, err)

		select {
		case <-time.After(backoff):
		case <-ctx.Done():
			return nil, &FetchError{URL: url, Kind: KindTimeout, Elapsed: time.Since(start), Err: ctx.Err()}
		}
	}

	return nil, lastErr
}

func retryable(fe *FetchError) bool {
	switch fe.Kind {
	case KindNetworkError, KindTimeout:
		return true
	case KindHTTPError:
		if fe.Status == 408 || fe.Status == 429 {
			return true
		}
		return fe.Status >= 500
	default:
		return false
	}
}

func (f *Fetcher) attempt(ctx context.Context, url string, start time.Time) (*Image, error) {
	reqCtx, cancel := context.WithTimeout(ctx, f.downloadTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(reqCtx, http.MethodGet, url, nil)
	if err != nil {
		return nil, &FetchError{URL: url, Kind: KindInvalidURL, Elapsed: time.Since(start), Err: err}
	}
	req.Header.Set("User-Agent", "portfoliomatch/1.0")
	req.Header.Set("Accept", "image/jpeg,image/png,image/webp,image/gif,image/*")

	resp, err := f.client.Do(req)
	if err != nil {
		if reqCtx.Err() != nil {
			return nil, &FetchError{URL: url, Kind: KindTimeout, Elapsed: time.Since(start), Err: err}
		}
		return nil, &FetchError{URL: url, Kind: KindNetworkError, Elapsed: time.Since(start), Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, &FetchError{URL: url, Kind: KindHTTPError, Status: resp.StatusCode, Elapsed: time.Since(start), Err: fmt.Errorf("unexpected status %d", resp.StatusCode)}
	}

	contentType := resp.Header.Get("Content-Type")
	if !strings.HasPrefix(strings.ToLower(contentType), "image/") {
		return nil, &FetchError{URL: url, Kind: KindUnsupportedContentType, Elapsed: time.Since(start), Err: fmt.Errorf("content type %q is not an image", contentType)}
	}

	if resp.ContentLength > f.maxResponseBytes {
		return nil, &FetchError{URL: url, Kind: KindTooLarge, Elapsed: time.Since(start), Err: fmt.Errorf("content length %d exceeds limit %d", resp.ContentLength, f.maxResponseBytes)}
	}

	limited := io.LimitReader(resp.Body, f.maxResponseBytes+1)
	data, err := io.ReadAll(limited)
	if err != nil {
		return nil, &FetchError{URL: url, Kind: KindNetworkError, Elapsed: time.Since(start), Err: err}
	}
	if int64(len(data)) > f.maxResponseBytes {
		return nil, &FetchError{URL: url, Kind: KindTooLarge, Elapsed: time.Since(start), Err: fmt.Errorf("body exceeds limit %d bytes", f.maxResponseBytes)}
	}

	img, format, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, &FetchError{URL: url, Kind: KindInvalidImage, Elapsed: time.Since(start), Err: err}
	}

	bounds := img.Bounds()
	return &Image{Img: Normalize(img, 0), Format: format, Width: bounds.Dx(), Height: bounds.Dy()}, nil
}
