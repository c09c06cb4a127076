package assemble

import (
	"context"
	"fmt"
	"log"
	"strings"

	"golang.org/x/sync/errgroup"

	"migrator/pkg/records"
)

// Fields added to every assembled product.
const (
	FieldTemplateJSON         = "template_json"
	FieldTemplateHTML         = "template_html"
	FieldProductSpecification = "product_specification"

	fieldProductID = "product_id"
)

// Assembler merges products with their sticker and specification rows.
type Assembler struct {
	Normalizer *Normalizer
	// Limit caps the number of products assembled concurrently. <= 0 means
	// unbounded.
	Limit int
}

// Assemble returns one merged record per valid product, in input order.
//
// Products and stickers without a string id, and specifications without a
// string product_id, are logged and skipped. When several stickers share an
// id the first one in fetch order is used. Specification rows are folded in
// fetch order, so a repeated key keeps its last value.
//
// Any per-product failure aborts the whole batch.
func (a *Assembler) Assemble(ctx context.Context, products, stickers, specs []records.Record) ([]records.Record, error) {
	stickerByID := indexStickers(stickers)
	specsByProduct := groupSpecifications(specs)

	valid := make([]records.Record, 0, len(products))
	for i, p := range products {
		if err := records.RequireString(p, "id"); err != nil {
			log.Printf("assemble: skipping product row %d: %v", i, err)
			continue
		}
		valid = append(valid, p)
	}

	out := make([]records.Record, len(valid))

	g, gctx := errgroup.WithContext(ctx)
	if a.Limit > 0 {
		g.SetLimit(a.Limit)
	}
	for i, p := range valid {
		i, p := i, p
		g.Go(func() error {
			rec, err := a.assembleOne(gctx, p, stickerByID, specsByProduct)
			if err != nil {
				return err
			}
			out[i] = rec
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return out, nil
}

func (a *Assembler) assembleOne(
	ctx context.Context,
	product records.Record,
	stickerByID map[string]records.Record,
	specsByProduct map[string][]records.Record,
) (records.Record, error) {
	id, _ := product.ID()
	rec := product.Clone()

	var templateJSON, templateHTML any
	if sticker, ok := stickerByID[id]; ok {
		normalized, err := a.Normalizer.Normalize(ctx, sticker[FieldTemplateJSON])
		if err != nil {
			return nil, fmt.Errorf("assemble: product %s: normalize template: %w", id, err)
		}
		templateJSON = normalized
		templateHTML = sticker[FieldTemplateHTML]
	}

	rec[FieldTemplateJSON] = templateJSON
	rec[FieldTemplateHTML] = templateHTML
	rec[FieldProductSpecification] = FoldSpecifications(specsByProduct[id])
	return rec, nil
}

// FoldSpecifications folds specification rows into key -> value with both
// sides trimmed. Later rows overwrite earlier ones.
func FoldSpecifications(rows []records.Record) map[string]string {
	out := make(map[string]string, len(rows))
	for _, r := range rows {
		k, ok := r["key"]
		if !ok || k == nil {
			continue
		}
		out[strings.TrimSpace(stringify(k))] = strings.TrimSpace(stringify(r["value"]))
	}
	return out
}

func stringify(v any) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return t
	default:
		return fmt.Sprint(t)
	}
}

// indexStickers keeps the first sticker seen for each id.
func indexStickers(stickers []records.Record) map[string]records.Record {
	idx := make(map[string]records.Record, len(stickers))
	dupes := 0
	for i, s := range stickers {
		id, ok := s.ID()
		if !ok {
			log.Printf("assemble: skipping sticker row %d: missing id", i)
			continue
		}
		if _, seen := idx[id]; seen {
			dupes++
			continue
		}
		idx[id] = s
	}
	if dupes > 0 {
		log.Printf("assemble: %d duplicate sticker rows ignored (first match wins)", dupes)
	}
	return idx
}

// groupSpecifications buckets rows by product_id, keeping fetch order.
func groupSpecifications(specs []records.Record) map[string][]records.Record {
	out := make(map[string][]records.Record)
	for i, s := range specs {
		pid, ok := s.String(fieldProductID)
		if !ok {
			log.Printf("assemble: skipping specification row %d: missing product_id", i)
			continue
		}
		out[pid] = append(out[pid], s)
	}
	return out
}
