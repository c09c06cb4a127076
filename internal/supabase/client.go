// Package supabase adapts the supabase-community PostgREST and Storage
// clients to the two operations the migrator needs: writing rows under
// /rest/v1 and uploading objects under /storage/v1.
package supabase

import (
	"bytes"
	"context"
	"fmt"
	"net/url"
	"strings"

	"github.com/supabase-community/postgrest-go"
	storage_go "github.com/supabase-community/storage-go"
)

const (
	restPath    = "/rest/v1"
	storagePath = "/storage/v1"

	// returnMinimal keeps PostgREST from echoing the written rows back.
	returnMinimal = "minimal"
)

// Client talks to one Supabase project.
type Client struct {
	baseURL string
	headers map[string]string
	token   string
	rest    *postgrest.Client
}

// New returns a Client for the project at baseURL. token is sent as the
// bearer token; when empty the api key is used instead, which is what the
// service-role key setups expect.
func New(baseURL, apiKey, token string) (*Client, error) {
	baseURL = strings.TrimRight(strings.TrimSpace(baseURL), "/")
	if baseURL == "" {
		return nil, fmt.Errorf("supabase: missing url")
	}
	if _, err := url.Parse(baseURL); err != nil {
		return nil, fmt.Errorf("supabase: parse url: %w", err)
	}
	if apiKey == "" {
		return nil, fmt.Errorf("supabase: missing api key")
	}
	if token == "" {
		token = apiKey
	}
	headers := map[string]string{
		"apikey":        apiKey,
		"Authorization": "Bearer " + token,
	}
	rest := postgrest.NewClient(baseURL+restPath, "", headers)
	if rest.ClientError != nil {
		return nil, fmt.Errorf("supabase: rest client: %w", rest.ClientError)
	}
	return &Client{baseURL: baseURL, headers: headers, token: token, rest: rest}, nil
}

// Insert posts rows to table. rows must marshal to a JSON array.
func (c *Client) Insert(ctx context.Context, table string, rows any) error {
	if table == "" {
		return fmt.Errorf("supabase: missing table")
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	if _, _, err := c.rest.From(table).Insert(rows, false, "", returnMinimal, "").Execute(); err != nil {
		return fmt.Errorf("supabase: insert %s: %w", table, err)
	}
	return nil
}

// Upsert posts rows with merge-duplicates resolution. onConflict names the
// unique columns; empty means the table's primary key.
func (c *Client) Upsert(ctx context.Context, table string, rows any, onConflict []string) error {
	if table == "" {
		return fmt.Errorf("supabase: missing table")
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	conflict := strings.Join(onConflict, ",")
	if _, _, err := c.rest.From(table).Upsert(rows, conflict, returnMinimal, "").Execute(); err != nil {
		return fmt.Errorf("supabase: upsert %s: %w", table, err)
	}
	return nil
}

// UploadOptions mirrors the Storage upload headers. CacheControl is the
// max-age in seconds.
type UploadOptions struct {
	CacheControl string
	ContentType  string
	Upsert       bool
}

// UploadObject stores body as bucket/name.
func (c *Client) UploadObject(ctx context.Context, bucket, name string, body []byte, opts UploadOptions) error {
	if bucket == "" || name == "" {
		return fmt.Errorf("supabase: upload: bucket and name are required")
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	fo := storage_go.FileOptions{Upsert: &opts.Upsert}
	if opts.ContentType != "" {
		ct := opts.ContentType
		fo.ContentType = &ct
	}
	if opts.CacheControl != "" {
		cc := opts.CacheControl
		if !strings.HasPrefix(cc, "max-age=") {
			cc = "max-age=" + cc
		}
		fo.CacheControl = &cc
	}

	// The storage client sets upload headers on its shared transport, so
	// each upload gets its own.
	st := storage_go.NewClient(c.baseURL+storagePath, c.token, c.headers)
	if _, err := st.UploadFile(bucket, name, bytes.NewReader(body), fo); err != nil {
		return fmt.Errorf("supabase: upload %s/%s: %w", bucket, name, err)
	}
	return nil
}
