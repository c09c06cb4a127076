package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"log"
	"os"
	"time"

	"github.com/aws/aws-sdk-go/service/dynamodb"
	"github.com/google/uuid"

	"migrator/internal/assemble"
	"migrator/internal/awsutil"
	"migrator/internal/config"
	"migrator/internal/metrics/setup"
	"migrator/internal/source/dynamo"
	"migrator/internal/storage"
	"migrator/pkg/records"

	// register all sink backends with the storage factory.
	_ "migrator/internal/storage/all"
)

// main loads the configuration, installs the metrics backend and runs one
// migration pipeline against DynamoDB and the configured sink.
func main() {
	var (
		cfgPath           string
		pipeline          string
		sourceTable       string
		targetTable       string
		metricsBackendFlg string
		pushGatewayURLFlg string
		validate          bool
	)

	flag.StringVar(&cfgPath, "config", "", "optional JSON config overlaid on the environment")
	flag.StringVar(&pipeline, "pipeline", "product", "pipeline to run: product | table")
	flag.StringVar(&sourceTable, "source-table", "Product", "logical source table for -pipeline table")
	flag.StringVar(&targetTable, "target-table", "", "sink table for -pipeline table (default: the source table name)")
	flag.StringVar(&metricsBackendFlg, "metrics-backend", "", "metrics backend: pushgateway | datadog | none (overrides env METRICS_BACKEND)")
	flag.StringVar(&pushGatewayURLFlg, "pushgateway-url", "", "Pushgateway base URL (overrides env PUSHGATEWAY_URL)")
	flag.BoolVar(&validate, "validate", false, "validate the configuration and exit")
	verbose := flag.Bool("v", false, "enable verbose logs")

	flag.Parse()

	cfg, err := config.Load(cfgPath)
	if err != nil {
		fatalf("load config: %v", err)
	}

	issues := config.Validate(cfg)
	printIssues(os.Stderr, issues)
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
		Job:            cfg.Job,
		RunID:          runID,
		Verbose:        *verbose,
	})

	start := time.Now()
	if *verbose {
		log.Printf("pipeline: run=%s kind=%s sink=%s suffix=%s", runID, pipeline, cfg.Sink.Kind, cfg.Source.TableSuffix)
	}

	err = run(ctx, cfg, pipeline, sourceTable, targetTable)
	shutdown()
	if err != nil {
		// A failed run must exit non-zero; cron and CI key off the status.
		log.Fatalf("%v", err)
	}

	if *verbose {
		log.Printf("completed in %s", time.Since(start).Truncate(time.Millisecond))
	}
}

func run(ctx context.Context, cfg config.Config, pipeline, sourceTable, targetTable string) error {
	sess, err := awsutil.NewSession(cfg.Source.AWS)
	if err != nil {
		return err
	}
	fetcher := dynamo.New(dynamodb.New(sess), physicalDates(cfg.Source))

	sink, err := storage.New(ctx, storage.Config{
		Kind:   cfg.Sink.Kind,
		DSN:    cfg.Sink.DSN,
		URL:    cfg.Sink.URL,
		APIKey: cfg.Sink.APIKey,
		Token:  cfg.Sink.Token,
	})
	if err != nil {
		return err
	}
	defer sink.Close()

	p := newPipeline(cfg, fetcher, sink)
	switch pipeline {
	case "product":
		return p.RunProducts(ctx)
	case "table":
		if targetTable == "" {
			targetTable = sourceTable
		}
		return p.RunTable(ctx, cfg.Source.Table(sourceTable), targetTable)
	default:
		return fmt.Errorf("unknown pipeline %q (want product or table)", pipeline)
	}
}

func newPipeline(cfg config.Config, src assemble.Source, sink storage.Sink) *assemble.Pipeline {
	return &assemble.Pipeline{
		Source: src,
		Sink:   sink,
		Tables: assemble.Tables{
			Product:       cfg.Source.Table(cfg.Source.ProductTable),
			Sticker:       cfg.Source.Table(cfg.Source.StickerTable),
			Specification: cfg.Source.Table(cfg.Source.SpecificationTable),
		},
		SinkTable:    cfg.Sink.ProductTable,
		ConflictKeys: cfg.Sink.ConflictKeys,
		Concurrency:  cfg.Concurrency,
	}
}

// physicalDates rekeys the configured date schema from logical table names
// to the suffixed names the fetcher sees.
func physicalDates(src config.SourceConfig) records.DateSchema {
	if len(src.Dates) == 0 {
		return nil
	}
	out := make(records.DateSchema, len(src.Dates))
	for logical, fields := range src.Dates {
		out[src.Table(logical)] = fields
	}
	return out
}

func printIssues(w io.Writer, issues []config.Issue) {
	for _, iss := range issues {
		fmt.Fprintf(w, "%s: %s: %s\n", iss.Severity, iss.Path, iss.Message)
	}
}

func fatalf(format string, a ...any) {
	fmt.Fprintf(os.Stderr, format+"\n", a...)
	os.Exit(1)
}
