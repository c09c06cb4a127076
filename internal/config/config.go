// Package config loads the migrator configuration.
//
// Values come from the environment first (optionally seeded from a .env
// file), then an optional JSON file is overlaid on top. The JSON file is
// passed through os.ExpandEnv so secrets can stay in the environment:
//
//	{ "sink": { "kind": "postgres", "dsn": "${DATABASE_URL}" } }
package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"

	"migrator/pkg/records"
)

// DefaultTableSuffix is appended to the logical source table names.
const DefaultTableSuffix = "-4i6eliuey5bphp7uom3vuz4bh4-dev"

// Config is the full migrator configuration.
type Config struct {
	Job         string `json:"job"`
	Concurrency int    `json:"concurrency"`

	Source SourceConfig `json:"source"`
	Sink   SinkConfig   `json:"sink"`
	Blob   BlobConfig   `json:"blob"`
}

// AWSConfig holds the region/credential triple shared by DynamoDB and S3.
type AWSConfig struct {
	Region    string `json:"region"`
	AccessKey string `json:"access_key"`
	SecretKey string `json:"secret_key"`
	Endpoint  string `json:"endpoint,omitempty"`
}

// SourceConfig describes the key-value source tables.
type SourceConfig struct {
	AWS AWSConfig `json:"aws"`

	TableSuffix        string `json:"table_suffix"`
	ProductTable       string `json:"product_table"`
	StickerTable       string `json:"sticker_table"`
	SpecificationTable string `json:"specification_table"`

	// Dates lists, per source table, the fields coerced to timestamps.
	Dates records.DateSchema `json:"dates,omitempty"`
}

// SinkConfig selects and configures the relational backend.
type SinkConfig struct {
	// Kind: "postgres" | "sqlite" | "mssql" | "supabase"
	Kind string `json:"kind"`
	DSN  string `json:"dsn"`

	// Supabase REST settings (used by kind=supabase).
	URL    string `json:"url"`
	APIKey string `json:"api_key"`
	Token  string `json:"token"`

	ProductTable string   `json:"product_table"`
	ConflictKeys []string `json:"conflict_keys"`
}

// BlobConfig configures the blob migrator.
type BlobConfig struct {
	SourceBucket string `json:"source_bucket"`
	StripPrefix  string `json:"strip_prefix"`
	MinKeyLength int    `json:"min_key_length"`

	// Dest: "supabase" | "gcs"
	Dest         string `json:"dest"`
	DestBucket   string `json:"dest_bucket"`
	CacheControl string `json:"cache_control"`
}

// Table returns the physical name for a logical source table.
func (s SourceConfig) Table(logical string) string {
	return logical + s.TableSuffix
}

// Default returns a Config populated from the environment.
func Default() Config {
	cfg := Config{
		Job:         envOr("MIGRATE_JOB", "migrate_products"),
		Concurrency: envInt("CONCURRENCY", 16),
		Source: SourceConfig{
			AWS: AWSConfig{
				Region:    os.Getenv("DDB_REGION"),
				AccessKey: os.Getenv("DDB_ACCESS_KEY"),
				SecretKey: os.Getenv("DDB_SECRET_KEY"),
				Endpoint:  os.Getenv("DDB_ENDPOINT"),
			},
			TableSuffix:        envOr("TABLE_SUFFIX", DefaultTableSuffix),
			ProductTable:       "Product",
			StickerTable:       "ProductSticker",
			SpecificationTable: "ProductSpecification",
		},
		Sink: SinkConfig{
			Kind:         envOr("SINK_KIND", "supabase"),
			DSN:          os.Getenv("SINK_DSN"),
			URL:          os.Getenv("SUPABASE_URI"),
			APIKey:       os.Getenv("SUPABASE_KEY"),
			Token:        os.Getenv("SUPABASE_TOKEN"),
			ProductTable: "product",
			ConflictKeys: []string{"id"},
		},
		Blob: BlobConfig{
			SourceBucket: os.Getenv("S3_BUCKET"),
			StripPrefix:  "public/",
			MinKeyLength: 15,
			Dest:         envOr("BLOB_DEST", "supabase"),
			DestBucket:   envOr("BLOB_DEST_BUCKET", "images"),
			CacheControl: "3600",
		},
	}
	return cfg
}

// Load reads .env (if present), builds the environment defaults and overlays
// the JSON file at path. An empty path skips the overlay.
func Load(path string) (Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return Config{}, fmt.Errorf("config: load .env: %w", err)
	}

	cfg := Default()
	if path == "" {
		return cfg, nil
	}

	raw, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("config: read %s: %w", path, err)
	}
	if err := json.Unmarshal([]byte(os.ExpandEnv(string(raw))), &cfg); err != nil {
		return Config{}, fmt.Errorf("config: decode %s: %w", path, err)
	}
	return cfg, nil
}

func envOr(key, def string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return def
}

func envInt(key string, def int) int {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return def
	}
	return n
}
