package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"time"

	"cloud.google.com/go/storage"
	"github.com/aws/aws-sdk-go/service/s3"
	"github.com/google/uuid"

	"migrator/internal/awsutil"
	"migrator/internal/blob"
	"migrator/internal/blob/gcsdst"
	"migrator/internal/blob/s3src"
	"migrator/internal/blob/supadst"
	"migrator/internal/config"
	"migrator/internal/metrics/setup"
	"migrator/internal/supabase"
)

// main copies every eligible object of the S3 bucket to the destination
// blob store, one object at a time.
func main() {
	var (
		cfgPath           string
		metricsBackendFlg string
		pushGatewayURLFlg string
		validate          bool
	)

	flag.StringVar(&cfgPath, "config", "", "optional JSON config overlaid on the environment")
	flag.StringVar(&metricsBackendFlg, "metrics-backend", "", "metrics backend: pushgateway | datadog | none (overrides env METRICS_BACKEND)")
	flag.StringVar(&pushGatewayURLFlg, "pushgateway-url", "", "Pushgateway base URL (overrides env PUSHGATEWAY_URL)")
	flag.BoolVar(&validate, "validate", false, "validate the configuration and exit")
	verbose := flag.Bool("v", false, "enable verbose logs")

	flag.Parse()

	cfg, err := config.Load(cfgPath)
	if err != nil {
		fatalf("load config: %v", err)
	}

	issues := config.ValidateBlob(cfg)
	for _, iss := range issues {
		fmt.Fprintf(os.Stderr, "%s: %s: %s\n", iss.Severity, iss.Path, iss.Message)
	}
	if config.HasErrors(issues) {
		log.Printf("Configuration is invalid")
		os.Exit(1)
	}
	if validate {
		log.Printf("Configuration is valid")
		os.Exit(0)
	}

	ctx := context.Background()
	runID := uuid.NewString()
	shutdown := setup.Install(ctx, setup.Options{
		Backend:        metricsBackendFlg,
		PushgatewayURL: pushGatewayURLFlg,
		Job:            "migrate_blobs",
		RunID:          runID,
		Verbose:        *verbose,
	})

	start := time.Now()
	res, err := run(ctx, cfg)
	shutdown()
	if err != nil {
		// A failed run must exit non-zero; cron and CI key off the status.
		log.Fatalf("blob: stopped after %d/%d: %v", res.Processed, res.Eligible, err)
	}

	log.Printf("blob: run=%s processed=%d/%d in %s", runID, res.Processed, res.Eligible, time.Since(start).Truncate(time.Millisecond))
}

func run(ctx context.Context, cfg config.Config) (blob.Result, error) {
	sess, err := awsutil.NewSession(cfg.Source.AWS)
	if err != nil {
		return blob.Result{}, err
	}

	dst, closeDst, err := newDestination(ctx, cfg)
	if err != nil {
		return blob.Result{}, err
	}
	defer closeDst()

	m := &blob.Migrator{
		Source:       s3src.New(s3.New(sess), cfg.Blob.SourceBucket),
		Destination:  dst,
		MinKeyLength: cfg.Blob.MinKeyLength,
		StripPrefix:  cfg.Blob.StripPrefix,
		CacheControl: cfg.Blob.CacheControl,
	}
	return m.Run(ctx)
}

func newDestination(ctx context.Context, cfg config.Config) (blob.Destination, func(), error) {
	switch cfg.Blob.Dest {
	case "supabase":
		c, err := supabase.New(cfg.Sink.URL, cfg.Sink.APIKey, cfg.Sink.Token)
		if err != nil {
			return nil, nil, err
		}
		return supadst.New(c, cfg.Blob.DestBucket), func() {}, nil
	case "gcs":
		c, err := storage.NewClient(ctx)
		if err != nil {
			return nil, nil, fmt.Errorf("gcs: new client: %w", err)
		}
		return gcsdst.New(c, cfg.Blob.DestBucket), func() { _ = c.Close() }, nil
	default:
		return nil, nil, fmt.Errorf("unknown blob destination %q", cfg.Blob.Dest)
	}
}

func fatalf(format string, a ...any) {
	fmt.Fprintf(os.Stderr, format+"\n", a...)
	os.Exit(1)
}
