// Package supadst uploads objects to a Supabase Storage bucket.
package supadst

import (
	"context"
	"fmt"

	"migrator/internal/blob"
	"migrator/internal/supabase"
)

type uploader interface {
	UploadObject(ctx context.Context, bucket, name string, body []byte, opts supabase.UploadOptions) error
}

// Destination implements blob.Destination for one bucket.
type Destination struct {
	client uploader
	bucket string
}

// New returns a Destination writing into bucket.
func New(client *supabase.Client, bucket string) *Destination {
	return &Destination{client: client, bucket: bucket}
}

// Upload implements blob.Destination.
func (d *Destination) Upload(ctx context.Context, name string, body []byte, opts blob.UploadOptions) error {
	err := d.client.UploadObject(ctx, d.bucket, name, body, supabase.UploadOptions{
		CacheControl: opts.CacheControl,
		ContentType:  opts.ContentType,
		Upsert:       opts.Upsert,
	})
	if err != nil {
		return fmt.Errorf("supadst: %w", err)
	}
	return nil
}

var _ blob.Destination = (*Destination)(nil)
