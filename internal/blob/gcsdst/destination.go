// Package gcsdst uploads objects to a Google Cloud Storage bucket.
package gcsdst

import (
	"bytes"
	"context"
	"fmt"
	"io"

	"cloud.google.com/go/storage"

	"migrator/internal/blob"
)

// objectWriter is the part of *storage.Writer used here.
type objectWriter interface {
	io.Writer
	Close() error
}

// Destination implements blob.Destination for one bucket.
type Destination struct {
	bucket string

	// open returns a writer for name carrying attrs. When ifAbsent is set
	// the write must fail if the object already exists.
	open func(ctx context.Context, name string, attrs storage.ObjectAttrs, ifAbsent bool) objectWriter
}

// New returns a Destination writing into bucket through client.
func New(client *storage.Client, bucket string) *Destination {
	bh := client.Bucket(bucket)
	return &Destination{
		bucket: bucket,
		open: func(ctx context.Context, name string, attrs storage.ObjectAttrs, ifAbsent bool) objectWriter {
			obj := bh.Object(name)
			if ifAbsent {
				obj = obj.If(storage.Conditions{DoesNotExist: true})
			}
			w := obj.NewWriter(ctx)
			w.ContentType = attrs.ContentType
			w.CacheControl = attrs.CacheControl
			return w
		},
	}
}

// Upload implements blob.Destination. CacheControl is given in seconds and
// stored as "max-age=<n>".
func (d *Destination) Upload(ctx context.Context, name string, body []byte, opts blob.UploadOptions) error {
	attrs := storage.ObjectAttrs{ContentType: opts.ContentType}
	if opts.CacheControl != "" {
		attrs.CacheControl = "max-age=" + opts.CacheControl
	}

	w := d.open(ctx, name, attrs, !opts.Upsert)
	if _, err := io.Copy(w, bytes.NewReader(body)); err != nil {
		_ = w.Close()
		return fmt.Errorf("gcsdst: write %s/%s: %w", d.bucket, name, err)
	}
	if err := w.Close(); err != nil {
		return fmt.Errorf("gcsdst: close %s/%s: %w", d.bucket, name, err)
	}
	return nil
}

var _ blob.Destination = (*Destination)(nil)
