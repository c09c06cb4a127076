package assemble

import (
	"context"
	"fmt"
	"log"
	"time"

	"migrator/internal/metrics"
	"migrator/internal/storage"
	"migrator/pkg/records"
)

// Source reads whole tables and single rows from the key-value store.
type Source interface {
	SpecLookup
	FetchAll(ctx context.Context, table string) ([]records.Record, error)
}

// Tables names the physical source tables of the product pipeline.
type Tables struct {
	Product       string
	Sticker       string
	Specification string
}

// Pipeline wires a Source, the Assembler and a storage.Sink together.
type Pipeline struct {
	Source Source
	Sink   storage.Sink
	Tables Tables

	// SinkTable receives the assembled products.
	SinkTable    string
	ConflictKeys []string
	Concurrency  int
}

// RunProducts fetches the three product tables, assembles them and upserts
// the result into SinkTable as a single batch.
func (p *Pipeline) RunProducts(ctx context.Context) error {
	products, err := p.Source.FetchAll(ctx, p.Tables.Product)
	if err != nil {
		return fmt.Errorf("fetch products: %w", err)
	}
	stickers, err := p.Source.FetchAll(ctx, p.Tables.Sticker)
	if err != nil {
		return fmt.Errorf("fetch stickers: %w", err)
	}
	specs, err := p.Source.FetchAll(ctx, p.Tables.Specification)
	if err != nil {
		return fmt.Errorf("fetch specifications: %w", err)
	}

	asm := &Assembler{
		Normalizer: &Normalizer{Specs: p.Source, Table: p.Tables.Specification, Limit: p.Concurrency},
		Limit:      p.Concurrency,
	}

	start := time.Now()
	assembled, err := asm.Assemble(ctx, products, stickers, specs)
	metrics.RecordStep("assemble", start, err)
	if err != nil {
		return err
	}
	log.Printf("assemble: products=%d stickers=%d specifications=%d assembled=%d",
		len(products), len(stickers), len(specs), len(assembled))

	start = time.Now()
	err = p.Sink.Upsert(ctx, p.SinkTable, assembled, p.ConflictKeys)
	metrics.RecordStep("sink", start, err)
	if err != nil {
		log.Printf("storage: upsert table=%s rows=%d: %v", p.SinkTable, len(assembled), err)
		return fmt.Errorf("upsert %s: %w", p.SinkTable, err)
	}
	metrics.IncCounter(metrics.BatchesTotal, 1, nil)
	metrics.RecordRows(p.SinkTable, len(assembled))
	log.Printf("storage: upserted table=%s rows=%d", p.SinkTable, len(assembled))
	return nil
}

// RunTable copies every row of source into target with plain inserts.
func (p *Pipeline) RunTable(ctx context.Context, source, target string) error {
	rows, err := p.Source.FetchAll(ctx, source)
	if err != nil {
		return fmt.Errorf("fetch %s: %w", source, err)
	}

	start := time.Now()
	err = p.Sink.Insert(ctx, target, rows)
	metrics.RecordStep("sink", start, err)
	if err != nil {
		log.Printf("storage: insert table=%s rows=%d: %v", target, len(rows), err)
		return fmt.Errorf("insert %s: %w", target, err)
	}
	metrics.IncCounter(metrics.BatchesTotal, 1, nil)
	metrics.RecordRows(target, len(rows))
	log.Printf("storage: inserted table=%s rows=%d", target, len(rows))
	return nil
}
