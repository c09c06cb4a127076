// Package blob copies objects from a source blob store to a destination one.
//
// The copy is strictly sequential: list, presign, download, upload, one key
// at a time. The first failure stops the run.
package blob

import (
	"context"
	"fmt"
	"io"
	"log"
	"net/http"
	"strings"
	"time"
	"unicode/utf8"

	"migrator/internal/metrics"
)

// SignedURLTTL is how long presigned download URLs stay valid.
const SignedURLTTL = 5 * time.Minute

// Source lists keys and presigns GET URLs for them.
type Source interface {
	List(ctx context.Context) ([]string, error)
	SignedURL(key string, ttl time.Duration) (string, error)
}

// UploadOptions controls how the destination stores an object.
type UploadOptions struct {
	CacheControl string
	Upsert       bool
	ContentType  string
}

// Destination stores an object body under name.
type Destination interface {
	Upload(ctx context.Context, name string, body []byte, opts UploadOptions) error
}

// Migrator moves every eligible key from Source to Destination.
type Migrator struct {
	Source      Source
	Destination Destination

	// MinKeyLength filters out keys of this length or shorter (folder
	// markers such as "public/").
	MinKeyLength int
	StripPrefix  string
	CacheControl string

	// HTTPClient downloads presigned URLs; nil means http.DefaultClient.
	HTTPClient *http.Client
}

// Result summarizes a run.
type Result struct {
	Listed    int
	Eligible  int
	Processed int
}

// Run executes the migration and returns how far it got.
func (m *Migrator) Run(ctx context.Context) (Result, error) {
	var res Result
	start := time.Now()

	keys, err := m.Source.List(ctx)
	if err != nil {
		metrics.RecordStep("blob_list", start, err)
		return res, fmt.Errorf("blob: list: %w", err)
	}
	metrics.RecordStep("blob_list", start, nil)
	res.Listed = len(keys)

	eligible := FilterKeys(keys, m.MinKeyLength)
	res.Eligible = len(eligible)
	log.Printf("blob: listed=%d eligible=%d", res.Listed, res.Eligible)

	for _, key := range eligible {
		if err := ctx.Err(); err != nil {
			return res, err
		}
		name := DestName(key, m.StripPrefix)
		if err := m.transfer(ctx, key, name); err != nil {
			metrics.IncCounter(metrics.BlobTransfersTotal, 1, metrics.Labels{"status": "error"})
			return res, fmt.Errorf("blob: %s: %w", key, err)
		}
		metrics.IncCounter(metrics.BlobTransfersTotal, 1, metrics.Labels{"status": "ok"})
		res.Processed++
		log.Printf("blob: %d/%d %s", res.Processed, res.Eligible, name)
	}
	return res, nil
}

func (m *Migrator) transfer(ctx context.Context, key, name string) error {
	u, err := m.Source.SignedURL(key, SignedURLTTL)
	if err != nil {
		return fmt.Errorf("presign: %w", err)
	}

	start := time.Now()
	body, err := m.download(ctx, u)
	if err != nil {
		metrics.ObserveHistogram(metrics.BlobDownloadSeconds, time.Since(start).Seconds(), metrics.Labels{"status": "error"})
		return fmt.Errorf("download: %w", err)
	}
	ok := metrics.Labels{"status": "ok"}
	metrics.ObserveHistogram(metrics.BlobDownloadSeconds, time.Since(start).Seconds(), ok)
	metrics.ObserveHistogram(metrics.BlobBytes, float64(len(body)), ok)

	opts := UploadOptions{
		CacheControl: m.CacheControl,
		Upsert:       true,
		ContentType:  ContentType(name),
	}
	if err := m.Destination.Upload(ctx, name, body, opts); err != nil {
		return fmt.Errorf("upload %s: %w", name, err)
	}
	return nil
}

func (m *Migrator) download(ctx context.Context, u string) ([]byte, error) {
	hc := m.HTTPClient
	if hc == nil {
		hc = http.DefaultClient
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, err
	}
	resp, err := hc.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil, fmt.Errorf("status %d", resp.StatusCode)
	}
	return io.ReadAll(resp.Body)
}

// FilterKeys keeps keys longer than minLen characters, preserving order.
// Length is counted in runes, not bytes, so non-ASCII keys are not favored.
func FilterKeys(keys []string, minLen int) []string {
	out := make([]string, 0, len(keys))
	for _, k := range keys {
		if utf8.RuneCountInString(k) > minLen {
			out = append(out, k)
		}
	}
	return out
}

// DestName removes the first occurrence of prefix from key.
//
//	"public/abc123456789.jpg" -> "abc123456789.jpg"
func DestName(key, prefix string) string {
	if prefix == "" {
		return key
	}
	return strings.Replace(key, prefix, "", 1)
}

// ContentType derives an image MIME type from the dot-separated segment
// that follows the first '.' in name: "a.b.png" yields "image/b". "jpg"
// maps to "jpeg". A name without '.' yields "image/".
func ContentType(name string) string {
	ext := ""
	if parts := strings.Split(name, "."); len(parts) > 1 {
		ext = parts[1]
	}
	ext = strings.ToLower(ext)
	if ext == "jpg" {
		ext = "jpeg"
	}
	return "image/" + ext
}
