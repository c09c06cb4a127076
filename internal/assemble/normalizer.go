// Package assemble joins product rows with their sticker and specification
// rows and normalizes the embedded sticker template.
package assemble

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"strings"
	"sync"

	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/semaphore"

	"migrator/pkg/records"
)

const (
	fieldTypename        = "__typename"
	fieldSpecificationID = "specificationId"

	// ResolvedKeyField replaces specificationId in a normalized template entry.
	ResolvedKeyField = "key"
)

// SpecLookup finds specification rows by id.
type SpecLookup interface {
	FetchByID(ctx context.Context, table, id string) ([]records.Record, error)
}

// Normalizer rewrites a sticker's template JSON: field names are converted to
// the underscore convention, __typename is dropped, and specificationId
// references are replaced by the referenced specification's trimmed key.
type Normalizer struct {
	Specs SpecLookup
	// Table is the physical specification table queried for references.
	Table string
	// Limit caps the lookups in flight across every Normalize call made on
	// this Normalizer. <= 0 means unbounded.
	Limit int

	semOnce sync.Once
	sem     *semaphore.Weighted
}

// acquire takes one lookup slot, blocking until one is free.
func (n *Normalizer) acquire(ctx context.Context) (release func(), err error) {
	n.semOnce.Do(func() {
		if n.Limit > 0 {
			n.sem = semaphore.NewWeighted(int64(n.Limit))
		}
	})
	if n.sem == nil {
		return func() {}, nil
	}
	if err := n.sem.Acquire(ctx, 1); err != nil {
		return nil, err
	}
	return func() { n.sem.Release(1) }, nil
}

type pendingLookup struct {
	entry int
	id    string
	key   string
	ok    bool
}

// Normalize returns the normalized form of tmpl.
//
// A map of entries yields a map with the same entry names; a slice yields a
// slice in the same order. A string holding a JSON object or array is
// decoded first. nil is returned as nil and entries that are not objects
// pass through untouched. Failed or empty lookups drop the field and
// are logged; the only error returned is context cancellation.
func (n *Normalizer) Normalize(ctx context.Context, tmpl any) (any, error) {
	switch t := tmpl.(type) {
	case nil:
		return nil, nil

	case map[string]any:
		names := make([]string, 0, len(t))
		entries := make([]any, 0, len(t))
		for name, e := range t {
			names = append(names, name)
			entries = append(entries, e)
		}
		normalized, err := n.normalizeEntries(ctx, entries)
		if err != nil {
			return nil, err
		}
		out := make(map[string]any, len(t))
		for i, name := range names {
			out[name] = normalized[i]
		}
		return out, nil

	case []any:
		normalized, err := n.normalizeEntries(ctx, t)
		if err != nil {
			return nil, err
		}
		return normalized, nil

	case string:
		// AppSync stores AWSJSON attributes as strings.
		var decoded any
		if err := json.Unmarshal([]byte(t), &decoded); err != nil {
			return tmpl, nil
		}
		switch decoded.(type) {
		case map[string]any, []any:
			return n.Normalize(ctx, decoded)
		}
		return tmpl, nil

	default:
		return tmpl, nil
	}
}

func (n *Normalizer) normalizeEntries(ctx context.Context, entries []any) ([]any, error) {
	out := make([]any, len(entries))
	var lookups []*pendingLookup

	for i, e := range entries {
		fields, ok := e.(map[string]any)
		if !ok {
			out[i] = e
			continue
		}

		m := make(map[string]any, len(fields))
		for k, v := range fields {
			switch {
			case k == fieldTypename:
			case k == fieldSpecificationID:
				id, ok := v.(string)
				if !ok || id == "" {
					log.Printf("assemble: template entry %d: specificationId %v is not a string id; dropped", i, v)
					continue
				}
				lookups = append(lookups, &pendingLookup{entry: i, id: id})
			case v == nil:
			default:
				m[records.SnakeCase(k)] = v
			}
		}
		out[i] = m
	}

	if len(lookups) > 0 {
		if err := n.resolve(ctx, lookups); err != nil {
			return nil, err
		}
		for _, l := range lookups {
			if l.ok {
				out[l.entry].(map[string]any)[ResolvedKeyField] = l.key
			}
		}
	}
	return out, nil
}

// resolve runs the specification lookups concurrently. Each lookup writes
// only to its own pendingLookup. Outbound calls are bounded by the
// Normalizer-wide semaphore, not per call, so concurrent products share one
// budget.
func (n *Normalizer) resolve(ctx context.Context, lookups []*pendingLookup) error {
	g, gctx := errgroup.WithContext(ctx)

	// Templates commonly reference the same specification from several
	// entries; share one lookup per id.
	var mu sync.Mutex
	inflight := map[string]*specResult{}

	for _, l := range lookups {
		l := l
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}

			mu.Lock()
			r, seen := inflight[l.id]
			if !seen {
				r = &specResult{}
				inflight[l.id] = r
			}
			mu.Unlock()

			r.once.Do(func() { r.key, r.ok = n.lookupKey(gctx, l.id) })
			l.key, l.ok = r.key, r.ok
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}
	return ctx.Err()
}

type specResult struct {
	once sync.Once
	key  string
	ok   bool
}

func (n *Normalizer) lookupKey(ctx context.Context, id string) (string, bool) {
	release, err := n.acquire(ctx)
	if err != nil {
		return "", false
	}
	rows, err := n.Specs.FetchByID(ctx, n.Table, id)
	release()
	if err != nil {
		log.Printf("assemble: fetch specification id=%s: %v", id, err)
		return "", false
	}
	if len(rows) == 0 {
		log.Printf("assemble: specification id=%s not found; field dropped", id)
		return "", false
	}
	k, ok := rows[0][ResolvedKeyField]
	if !ok || k == nil {
		log.Printf("assemble: specification id=%s has no key; field dropped", id)
		return "", false
	}
	return strings.TrimSpace(fmt.Sprint(k)), true
}
