package config

import "fmt"

// Severity classifies a validation issue.
type Severity string

const (
	SeverityError   Severity = "error"
	SeverityWarning Severity = "warning"
)

// Issue is one validation finding, addressed by a JSON-ish path.
type Issue struct {
	Severity Severity
	Path     string
	Message  string
}

// Validate checks cfg for the product and table pipelines.
// Errors make the run impossible; warnings usually mean the SDK will fall
// back to its own credential chain.
func Validate(cfg Config) []Issue {
	var out []Issue
	add := func(sev Severity, path, format string, a ...any) {
		out = append(out, Issue{Severity: sev, Path: path, Message: fmt.Sprintf(format, a...)})
	}

	if cfg.Concurrency <= 0 {
		add(SeverityError, "concurrency", "must be > 0 (got %d)", cfg.Concurrency)
	}

	if cfg.Source.AWS.Region == "" {
		add(SeverityError, "source.aws.region", "is required")
	}
	if cfg.Source.AWS.AccessKey == "" || cfg.Source.AWS.SecretKey == "" {
		add(SeverityWarning, "source.aws", "no static credentials; using the default AWS credential chain")
	}
	for _, f := range []struct{ path, v string }{
		{"source.product_table", cfg.Source.ProductTable},
		{"source.sticker_table", cfg.Source.StickerTable},
		{"source.specification_table", cfg.Source.SpecificationTable},
	} {
		if f.v == "" {
			add(SeverityError, f.path, "is required")
		}
	}

	switch cfg.Sink.Kind {
	case "postgres", "sqlite", "mssql":
		if cfg.Sink.DSN == "" {
			add(SeverityError, "sink.dsn", "is required for kind=%s", cfg.Sink.Kind)
		}
	case "supabase":
		if cfg.Sink.URL == "" {
			add(SeverityError, "sink.url", "is required for kind=supabase")
		}
		if cfg.Sink.APIKey == "" {
			add(SeverityError, "sink.api_key", "is required for kind=supabase")
		}
		if cfg.Sink.Token == "" {
			add(SeverityWarning, "sink.token", "empty; the api key is sent as bearer token")
		}
	case "":
		add(SeverityError, "sink.kind", "is required")
	default:
		add(SeverityError, "sink.kind", "unsupported kind %q", cfg.Sink.Kind)
	}
	if cfg.Sink.ProductTable == "" {
		add(SeverityError, "sink.product_table", "is required")
	}
	if len(cfg.Sink.ConflictKeys) == 0 {
		add(SeverityWarning, "sink.conflict_keys", "empty; upserts fall back to the backend primary key")
	}

	return out
}

// ValidateBlob checks cfg for the blob migrator.
func ValidateBlob(cfg Config) []Issue {
	var out []Issue
	add := func(sev Severity, path, msg string) {
		out = append(out, Issue{Severity: sev, Path: path, Message: msg})
	}

	if cfg.Source.AWS.Region == "" {
		add(SeverityError, "source.aws.region", "is required")
	}
	if cfg.Blob.SourceBucket == "" {
		add(SeverityError, "blob.source_bucket", "is required")
	}
	if cfg.Blob.DestBucket == "" {
		add(SeverityError, "blob.dest_bucket", "is required")
	}
	switch cfg.Blob.Dest {
	case "supabase":
		if cfg.Sink.URL == "" || cfg.Sink.APIKey == "" {
			add(SeverityError, "sink.url", "supabase url and api key are required for blob.dest=supabase")
		}
	case "gcs":
	default:
		add(SeverityError, "blob.dest", fmt.Sprintf("unsupported destination %q", cfg.Blob.Dest))
	}
	return out
}

// HasErrors reports whether issues contains at least one error.
func HasErrors(issues []Issue) bool {
	for _, iss := range issues {
		if iss.Severity == SeverityError {
			return true
		}
	}
	return false
}
