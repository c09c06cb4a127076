// Command probe samples a DynamoDB source table and suggests the sink table
// for it.
//
// It reads one scan page (default 200 rows), applies the same field stripping
// and renaming as the migration, and prints either a CREATE TABLE statement
// for the sink backend or, with -report, a per-column uniqueness report.
//
// Key columns come from -keys; when empty, the columns that were unique on
// every sampled row are reported as candidates.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"strings"

	"github.com/aws/aws-sdk-go/service/dynamodb"

	"migrator/internal/awsutil"
	"migrator/internal/config"
	"migrator/internal/probe"
	"migrator/internal/source/dynamo"
)

func main() {
	var (
		flagConfig  = flag.String("config", "", "optional JSON config overlaid on the environment")
		flagTable   = flag.String("table", "Product", "logical source table to sample")
		flagLimit   = flag.Int("limit", 200, "maximum rows to sample")
		flagBackend = flag.String("backend", "", "DDL dialect: postgres | sqlite | mssql (default: sink kind)")
		flagSink    = flag.String("sink-table", "", "sink table name (default: lower-cased source table)")
		flagKeys    = flag.String("keys", "id", "comma-separated primary key columns")
		flagReport  = flag.Bool("report", false, "print the uniqueness report instead of DDL")
	)
	flag.Parse()

	cfg, err := config.Load(*flagConfig)
	if err != nil {
		fatalf("load config: %v", err)
	}
	sess, err := awsutil.NewSession(cfg.Source.AWS)
	if err != nil {
		fatalf("%v", err)
	}

	physical := cfg.Source.Table(*flagTable)
	fetcher := dynamo.New(dynamodb.New(sess), nil)
	rows, err := fetcher.Sample(context.Background(), physical, *flagLimit)
	if err != nil {
		fatalf("%v", err)
	}
	res := probe.Analyze(rows)
	log.Printf("probe: table=%s sampled=%d columns=%d", physical, res.SampledRows, len(res.Columns))

	if *flagReport {
		fmt.Println(probe.FormatReport(res))
		if c := probe.KeyCandidates(res); len(c) > 0 {
			fmt.Printf("key candidates: %s\n", strings.Join(c, ", "))
		}
		return
	}

	backend := *flagBackend
	if backend == "" {
		backend = cfg.Sink.Kind
	}
	sinkTable := *flagSink
	if sinkTable == "" {
		sinkTable = strings.ToLower(*flagTable)
	}

	ddl, err := probe.CreateTableSQL(backend, sinkTable, res, splitCSV(*flagKeys))
	if err != nil {
		fatalf("%v", err)
	}
	fmt.Println(ddl)
}

func splitCSV(s string) []string {
	var out []string
	for _, p := range strings.Split(s, ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

func fatalf(format string, a ...any) {
	fmt.Fprintf(os.Stderr, format+"\n", a...)
	os.Exit(1)
}
